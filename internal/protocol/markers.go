package protocol

// Marker type codes understood by the display tool.
const (
	MarkerCube         = 1
	MarkerSphere       = 2
	MarkerCylinder     = 3
	MarkerMeshResource = 10
)

// Marker action codes. ADD also modifies an existing marker.
const (
	MarkerAdd       = 0
	MarkerDelete    = 2
	MarkerDeleteAll = 3
)

type Time struct {
	Sec     int32  `json:"sec"`
	Nanosec uint32 `json:"nanosec"`
}

type Header struct {
	Stamp   Time   `json:"stamp"`
	FrameID string `json:"frame_id"`
}

type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

type PoseMsg struct {
	Position    Vector3    `json:"position"`
	Orientation Quaternion `json:"orientation"`
}

type ColorRGBA struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

type MarkerMsg struct {
	Header       Header    `json:"header"`
	Ns           string    `json:"ns"`
	ID           int       `json:"id"`
	Type         int       `json:"type"`
	Action       int       `json:"action"`
	Pose         PoseMsg   `json:"pose"`
	Scale        Vector3   `json:"scale"`
	Color        ColorRGBA `json:"color"`
	Lifetime     Time      `json:"lifetime"` // zero: forever
	FrameLocked  bool      `json:"frame_locked"`
	MeshResource string    `json:"mesh_resource,omitempty"`
}

type MarkerArrayMsg struct {
	Markers []MarkerMsg `json:"markers"`
}

type TransformMsg struct {
	Translation Vector3    `json:"translation"`
	Rotation    Quaternion `json:"rotation"`
}

type TransformStampedMsg struct {
	Header       Header       `json:"header"`
	ChildFrameID string       `json:"child_frame_id"`
	Transform    TransformMsg `json:"transform"`
}

type TFMsg struct {
	Transforms []TransformStampedMsg `json:"transforms"`
}

// MARKERS (server -> viewer)
type MarkersEnvelope struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Topic           string         `json:"topic"`
	Seq             uint64         `json:"seq"`
	Markers         MarkerArrayMsg `json:"markers"`
}

// TF (server -> viewer)
type TFEnvelope struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Topic           string `json:"topic"`
	Seq             uint64 `json:"seq"`
	TF              TFMsg  `json:"tf"`
}

// ERROR (server -> viewer): an evaluation that produced no batch.
type ErrorEnvelope struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Topic           string `json:"topic"`
	Seq             uint64 `json:"seq"`
	Stamp           Time   `json:"stamp"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
