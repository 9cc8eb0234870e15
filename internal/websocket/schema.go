package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionPing     Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AutosaveRequest is sent by the taker to save a single answer selection.
// Index is the question's display position; -1 clears the answer.
type AutosaveRequest struct {
	Action Action `json:"action"`
	Index  int    `json:"index"`
	Answer int    `json:"answer"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError  Event = "error"
	EventSaved  Event = "saved"
	EventPong   Event = "pong"
	EventResult Event = "result"
)

type SavedResponse struct {
	Event Event `json:"event"`
	Index int   `json:"index"`
}

// ResultPush is streamed to a test owner whenever a submission finalizes.
type ResultPush struct {
	Event   Event       `json:"event"`
	Payload interface{} `json:"payload"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
