package model

import "time"

// ExecRequest carries source code to run in the sandbox
type ExecRequest struct {
	Code string `json:"code"`
}

// ImportRequest carries a dependency manifest to install in the sandbox
type ImportRequest struct {
	Manifest string `json:"manifest"`
}

// SubmitResponse acknowledges that a request was queued. The result of the
// work itself is only ever reported through events tagged with RequestID.
type SubmitResponse struct {
	Accepted  bool   `json:"accepted"`
	RequestID string `json:"request_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Event is the wire form of a sandbox notification.
// RequestID is empty for events not caused by one request, such as
// provisioning status.
type Event struct {
	Kind      string    `json:"kind"`
	Text      string    `json:"text,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
