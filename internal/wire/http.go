package wire

import "encoding/json"

// TaskPayload is the body of POST /task. Only "persona" is interpreted by
// this client; every other key is persona specific and passed through.
type TaskPayload map[string]any

// NewTaskPayload returns a payload for persona carrying fields.
func NewTaskPayload(persona string, fields map[string]any) TaskPayload {
	p := make(TaskPayload, len(fields)+1)
	for k, v := range fields {
		p[k] = v
	}
	p["persona"] = persona
	return p
}

// Persona returns the payload persona, or "" when unset.
func (p TaskPayload) Persona() string {
	s, _ := p["persona"].(string)
	return s
}

// SubmitResponse is the body returned by POST /task.
type SubmitResponse struct {
	// TaskID is the id of the queued task, when the backend reports it.
	TaskID string `json:"task_id,omitempty"`
	// Status is the acceptance status (e.g. "accepted").
	Status string `json:"status,omitempty"`
	// Message is a human-readable acknowledgement.
	Message string `json:"message,omitempty"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// ChatResponse is the body returned by POST /api/chat.
type ChatResponse struct {
	Response string `json:"response"`
}

// TaskRecord is one element of GET /tasks and the body of GET /tasks/{id}.
type TaskRecord struct {
	ID        string          `json:"id"`
	Persona   string          `json:"persona"`
	Status    string          `json:"status"`
	CreatedAt string          `json:"created_at"`
	Logs      []string        `json:"logs"`
	Result    json.RawMessage `json:"result,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ErrorResponse is the body the backend returns for lookups that fail with a
// 200 status.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ResultSummary is the subset of a task result that is announced to the user.
type ResultSummary struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SummarizeResult extracts the announced fields of an opaque result.
func SummarizeResult(raw json.RawMessage) ResultSummary {
	var s ResultSummary
	if len(raw) == 0 {
		return s
	}
	_ = json.Unmarshal(raw, &s)
	return s
}
