// Package tasks tracks backend tasks over a live event channel.
//
// A Stream keeps one duplex connection open, reconnecting with a fixed delay
// for as long as it runs, and reconciles a local registry against push frames
// and full fetches. A frame that references a task the registry has never
// seen triggers a resync instead of being applied.
package tasks

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/droidcore/mission/internal/wire"
)

// Status is the lifecycle status of a task.
type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// ParseStatus maps a backend status string. Anything that is not terminal is
// reported as running.
func ParseStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success":
		return StatusSuccess
	case "failed", "error":
		return StatusFailed
	default:
		return StatusRunning
	}
}

// completionStatus maps the status of a complete frame. A completion never
// leaves a task running.
func completionStatus(raw string) Status {
	if ParseStatus(raw) == StatusSuccess {
		return StatusSuccess
	}
	return StatusFailed
}

// Task is a registry entry.
type Task struct {
	ID        string
	Persona   string
	Status    Status
	CreatedAt time.Time
	Logs      []string
	Result    json.RawMessage
	Payload   json.RawMessage
}

// Done reports whether the task reached a terminal status.
func (t Task) Done() bool {
	return t.Status == StatusSuccess || t.Status == StatusFailed
}

// Clone returns a deep copy of t.
func (t Task) Clone() Task {
	t.Logs = slices.Clone(t.Logs)
	t.Result = slices.Clone(t.Result)
	t.Payload = slices.Clone(t.Payload)
	return t
}

// FromRecord converts a bulk fetch record.
func FromRecord(rec wire.TaskRecord) Task {
	created, _ := wire.ParseTimestamp(rec.CreatedAt)
	logs := rec.Logs
	if logs == nil {
		logs = []string{}
	}
	t := Task{
		ID:        rec.ID,
		Persona:   rec.Persona,
		Status:    ParseStatus(rec.Status),
		CreatedAt: created,
		Logs:      logs,
		Result:    rec.Result,
		Payload:   rec.Payload,
	}
	if string(t.Result) == "null" {
		t.Result = nil
	}
	return t.Clone()
}

// SortNewestFirst orders tasks by creation time, newest first. Ties are
// broken by id so the order is stable across snapshots.
func SortNewestFirst(list []Task) {
	slices.SortFunc(list, func(a, b Task) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
