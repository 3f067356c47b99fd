// Package wire defines the JSON shapes exchanged with the mission backend:
// push frames on the event channel and the bodies of the HTTP endpoints.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// FrameType identifies a push frame.
type FrameType string

const (
	// FrameStart announces a newly created task.
	FrameStart FrameType = "start"
	// FrameLog carries one progress line for a task.
	FrameLog FrameType = "log"
	// FrameComplete carries the terminal status and result of a task.
	FrameComplete FrameType = "complete"
)

var (
	// ErrMalformedFrame is returned for frames that are not a JSON object.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrUnknownType is returned for frames whose type is missing or not
	// recognized.
	ErrUnknownType = errors.New("unknown frame type")
	// ErrMissingTaskID is returned for recognized frames without a task id.
	ErrMissingTaskID = errors.New("frame missing task_id")
)

// Frame is an inbound push event.
type Frame struct {
	// Type selects how the remaining fields are interpreted.
	Type FrameType `json:"type"`
	// TaskID is the backend-assigned task identifier.
	TaskID string `json:"task_id"`
	// Persona is set on start frames.
	Persona string `json:"persona,omitempty"`
	// Message is set on log frames.
	Message string `json:"message,omitempty"`
	// Status is set on complete frames ("success" or "failed").
	Status string `json:"status,omitempty"`
	// Result is the opaque task result on complete frames.
	Result json.RawMessage `json:"result,omitempty"`
	// Timestamp is the server time of a start frame, when provided.
	Timestamp string `json:"timestamp,omitempty"`
}

// Decode parses a text frame from the event channel.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	switch f.Type {
	case FrameStart, FrameLog, FrameComplete:
	case "":
		return Frame{}, fmt.Errorf("%w: missing type", ErrUnknownType)
	default:
		return Frame{}, fmt.Errorf("%w: %q", ErrUnknownType, f.Type)
	}
	if strings.TrimSpace(f.TaskID) == "" {
		return Frame{}, fmt.Errorf("%w: type %s", ErrMissingTaskID, f.Type)
	}
	if isJSONNull(f.Result) {
		f.Result = nil
	}
	return f, nil
}

func isJSONNull(raw json.RawMessage) bool {
	return len(raw) == 0 || strings.TrimSpace(string(raw)) == "null"
}

// timestampLayouts covers RFC 3339 and the zone-less ISO form the backend
// produces.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ParseTimestamp parses a backend timestamp. Zone-less values are read as
// UTC.
func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
