package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave  Action = "autosave"
	ActionViolation Action = "violation"
	ActionSubmit    Action = "submit"
	ActionPing      Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AutosaveRequest is sent by the client to save a single answer.
type AutosaveRequest struct {
	Action     Action `json:"action"`
	QuestionID string `json:"question_id"`
	OptionID   string `json:"option_id"`
}

// ViolationRequest is sent by the client to report a proctoring event.
type ViolationRequest struct {
	Action    Action `json:"action"`
	EventType string `json:"event_type"`
	Metadata  string `json:"metadata,omitempty"`
}

// SubmitRequest is sent by the client to finish and grade the attempt.
type SubmitRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventSuccess   Event = "success"
	EventViolation Event = "violation"
	EventGraded    Event = "graded"
	EventPong      Event = "pong"
)

type AutosaveResponse struct {
	Event  Event  `json:"event"`
	Status string `json:"status"`
}

// ViolationResponse carries the updated counter so the client can warn
// the student before the limit trips.
type ViolationResponse struct {
	Event       Event `json:"event"`
	Violations  int   `json:"violations"`
	Remaining   int   `json:"remaining"`
	ForceSubmit bool  `json:"force_submit"`
	TrustHint   int   `json:"trust_hint"`
}

type GradedResponse struct {
	Event  Event   `json:"event"`
	Status string  `json:"status"`
	Score  float64 `json:"score"`
	Late   bool    `json:"late"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
