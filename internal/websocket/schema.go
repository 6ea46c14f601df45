package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer    Action = "answer"
	ActionAdvance   Action = "advance"
	ActionViolation Action = "violation"
	ActionSubmit    Action = "submit"
	ActionPing      Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest is sent by the client to record a single answer.
type AnswerRequest struct {
	Action Action `json:"action"`
	QID    string `json:"q_id"`
	Answer string `json:"ans"`
}

// AdvanceRequest is sent by the client to move to the next question.
type AdvanceRequest struct {
	Action Action `json:"action"`
}

// ViolationRequest is sent by the client to report a proctoring event.
type ViolationRequest struct {
	Action  Action `json:"action"`
	Kind    string `json:"kind"`
	Details string `json:"details"`
}

// SubmitRequest is sent by the client to finish and grade the evaluation.
type SubmitRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError           Event = "error"
	EventSuccess         Event = "success"
	EventAdvanced        Event = "advanced"
	EventWarning         Event = "warning"
	EventQuestionTimeout Event = "question_timeout"
	EventTimeUp          Event = "time_up"
	EventGraded          Event = "graded"
	EventLocked          Event = "locked"
	EventPong            Event = "pong"
)

type AckResponse struct {
	Event  Event  `json:"event"`
	Status string `json:"status"`
}

// WarningResponse carries the running violation count after each report.
type WarningResponse struct {
	Event     Event  `json:"event"`
	Count     int    `json:"count"`
	Threshold int    `json:"threshold"`
	Reason    string `json:"reason"`
}

// QuestionTimeoutResponse tells the client the per-question budget expired
// and the session moved on.
type QuestionTimeoutResponse struct {
	Event            Event `json:"event"`
	QuestionIndex    int   `json:"question_index"`
	QuestionDuration int   `json:"question_duration"`
}

// AdvancedResponse acknowledges a manual move to the next question.
type AdvancedResponse struct {
	Event         Event `json:"event"`
	QuestionIndex int   `json:"question_index"`
}

type TimeUpResponse struct {
	Event Event `json:"event"`
}

type GradedResponse struct {
	Event  Event   `json:"event"`
	Status string  `json:"status"`
	Score  float64 `json:"score"`
	Reussi bool    `json:"reussi"`
}

type LockedResponse struct {
	Event  Event  `json:"event"`
	Reason string `json:"reason"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
