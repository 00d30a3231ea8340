// Package telemetry maintains the duplex link to the object-detection
// server: camera frames and sensor state flow out, detection results flow
// back and land in a single-slot cache.
package telemetry

import "encoding/json"

// Message types on the wire, both directions.
const (
	TypeFrame          = "frame"
	TypeSetLabels      = "set_labels"
	TypeDetections     = "detections"
	TypeLabelsResponse = "labels_response"
)

// FrameMessage is one outbound telemetry sample: the current camera frame
// plus the sensor and motor state captured alongside it.
type FrameMessage struct {
	Type       string             `json:"type"`
	Image      string             `json:"image"` // base64 JPEG
	Ultrasonic *UltrasonicReading `json:"ultrasonic,omitempty"`
	Motors     MotorState         `json:"motors"`
}

// UltrasonicReading reports the forward obstacle distance in both units the
// dashboard consumes.
type UltrasonicReading struct {
	DistanceM  float64 `json:"distance_m"`
	DistanceCM float64 `json:"distance_cm"`
}

// MotorState is the commanded wheel pair at frame time.
type MotorState struct {
	Left  float64 `json:"left"`
	Right float64 `json:"right"`
}

// SetLabelsMessage asks the detection server to switch its label set.
type SetLabelsMessage struct {
	Type   string   `json:"type"`
	Labels []string `json:"labels"`
}

// envelope is the minimal inbound frame used to dispatch on type.
type envelope struct {
	Type string `json:"type"`
}

// Box is a detection bounding box in frame pixel coordinates.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// CenterX returns the horizontal center of the box.
func (b Box) CenterX() float64 {
	return (b.X1 + b.X2) / 2
}

// Detection is one detected object.
type Detection struct {
	ClassID    int     `json:"class_id"`
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// DetectionsMessage is one inbound detection result for a previously sent
// frame. Model is kept raw: servers report it as a bare string or as a
// structured object depending on version.
type DetectionsMessage struct {
	Type          string          `json:"type"`
	Detections    []Detection     `json:"detections"`
	NumDetections int             `json:"num_detections"`
	Model         json.RawMessage `json:"model,omitempty"`
	Labels        []string        `json:"labels,omitempty"`
}

// LabelsResponse acknowledges a set_labels request.
type LabelsResponse struct {
	Type    string   `json:"type"`
	Success bool     `json:"success"`
	Labels  []string `json:"labels,omitempty"`
}
