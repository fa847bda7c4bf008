package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeMarkers = "MARKERS"
	TypeTF      = "TF"
	TypeError   = "ERROR"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	Topic           string `json:"topic,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
