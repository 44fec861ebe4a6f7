package events

import "time"

type Type string

const (
	TypeCallReady       Type = "call-ready"
	TypeUserSpeech      Type = "user-speech"
	TypeAIResponse      Type = "ai-response"
	TypeUserInterrupted Type = "user-interrupted"
	TypeCallError       Type = "call-error"
	TypeCallEnded       Type = "call-ended"
	TypeTurnCompleted   Type = "turn-completed"
)

// Event is a lifecycle notification about one call.
type Event struct {
	Type       Type      `json:"type"`
	CallID     string    `json:"callId"`
	SessionID  string    `json:"sessionId,omitempty"`
	CustomerID int64     `json:"customerId,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Payload    any       `json:"payload,omitempty"`
}

type CallReady struct {
	CallID    string `json:"callId"`
	SessionID string `json:"sessionId"`
}

type UserSpeech struct {
	Text       string  `json:"text"`
	IsFinal    bool    `json:"isFinal"`
	Confidence float64 `json:"confidence,omitempty"`
}

// AIResponse is published when the first audio of a reply is ready.
// AudioByteLength covers the audio synthesized so far; Duration is the
// estimated spoken length of the whole reply in seconds.
type AIResponse struct {
	TurnID          string  `json:"turnId"`
	Text            string  `json:"text"`
	AudioByteLength int     `json:"audioByteLength"`
	Duration        float64 `json:"duration"`
	Fallback        bool    `json:"fallback,omitempty"`
}

type UserInterrupted struct {
	TurnID string `json:"turnId"`
}

type CallError struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

type CallEnded struct {
	Duration float64 `json:"duration"`
	Reason   string  `json:"reason"`
}

type TurnCompleted struct {
	TurnID          string  `json:"turnId"`
	Status          string  `json:"status"`
	UserText        string  `json:"userText"`
	ReplyText       string  `json:"replyText,omitempty"`
	AudioByteLength int     `json:"audioByteLength"`
	Duration        float64 `json:"duration"`
	LatencyMs       int64   `json:"latencyMs,omitempty"`
}
