package observerproto

import "sceneviz.dev/internal/protocol"

// Version is the observer protocol version (separate from the marker envelope version).
const Version = "0.1"

const (
	TypeSubscribe  = "SUBSCRIBE"
	TypeSubscribed = "SUBSCRIBED"
)

// Client -> Server. First message on the observer WS connection, and can be re-sent to change topics.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Topics to receive; empty means every topic.
	Topics []string `json:"topics,omitempty"`
	// MaxQueue bounds buffered messages before new ones are dropped.
	MaxQueue int `json:"max_queue,omitempty"`
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string        `json:"protocol_version"`
	WireVersion     string        `json:"wire_version"`
	RootFrame       string        `json:"root_frame"`
	Topics          []string      `json:"topics"`
	PublishPeriodMs int           `json:"publish_period_ms"`
	TickRateHz      int           `json:"tick_rate_hz"`
	SimTime         protocol.Time `json:"sim_time"`
	Frames          int           `json:"frames"`
	Geometries      int           `json:"geometries"`
}

// Server -> Client. Sent once per accepted SUBSCRIBE.
type SubscribedMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	SessionID       string   `json:"session_id"`
	Topics          []string `json:"topics"`
}
