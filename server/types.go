package server

import "time"

// Wire types for the control surface. These are plain structs carried
// as JSON by the Connect handlers; there is no compiled schema, so the
// field tags are the contract.

// SpawnRequest creates an actor from a registered template.
type SpawnRequest struct {
	ActorID  string `json:"actor_id"`
	Template string `json:"template"`
}

type SpawnResponse struct {
	ActorID string `json:"actor_id"`
}

// StopRequest stops an actor. The zero value asks for a graceful stop
// with the server's default deadline; Force skips the final save.
type StopRequest struct {
	ActorID       string `json:"actor_id"`
	Force         bool   `json:"force,omitempty"`
	TimeoutMillis int64  `json:"timeout_ms,omitempty"`
}

type StopResponse struct {
	State string `json:"state"`
}

// SendRequest delivers one perception to an actor's queue.
type SendRequest struct {
	ActorID string                 `json:"actor_id"`
	Type    string                 `json:"type"`
	Source  string                 `json:"source,omitempty"`
	Urgency string                 `json:"urgency,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

type SendResponse struct{}

type GetStatusRequest struct {
	ActorID string `json:"actor_id"`
}

// ActorStatus mirrors the runtime's status summary.
type ActorStatus struct {
	ActorID        string `json:"actor_id"`
	Template       string `json:"template"`
	State          string `json:"state"`
	LastFault      string `json:"last_fault,omitempty"`
	Ticks          uint64 `json:"ticks"`
	QueueLen       int    `json:"queue_len"`
	QueueDropped   uint64 `json:"queue_dropped"`
	ContinuationID string `json:"continuation_id,omitempty"`
	AwaitingPoint  string `json:"awaiting_point,omitempty"`
}

type ListRequest struct{}

type ListResponse struct {
	Actors []ActorStatus `json:"actors"`
}

// AttachRequest offers an extension model for a pending continuation.
// Model carries the serialized bytes (base64 in JSON).
type AttachRequest struct {
	ContinuationID string `json:"continuation_id"`
	Model          []byte `json:"model"`
}

// AttachResponse reports the engine's verdict: "attached",
// "already_resolved", or "not_found". Rejections are results, not
// transport errors; only a malformed model fails the call itself.
type AttachResponse struct {
	Result string `json:"result"`
}

type ListPendingRequest struct{}

// PendingContinuation is one open (or recently resolved) extension
// window. Deadline is when the default path takes over.
type PendingContinuation struct {
	ContinuationID string    `json:"continuation_id"`
	Point          string    `json:"point"`
	State          string    `json:"state"`
	Opened         time.Time `json:"opened"`
	Deadline       time.Time `json:"deadline"`
	DefaultFlow    string    `json:"default_flow,omitempty"`
}

type ListPendingResponse struct {
	Pending []PendingContinuation `json:"pending"`
}
