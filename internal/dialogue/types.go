package dialogue

import (
	"context"
	"time"
)

const DefaultFallbackReply = "I'm sorry, I'm having trouble answering right now. Could you say that again?"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role   Role      `json:"role"`
	Text   string    `json:"text"`
	TurnID string    `json:"turn_id,omitempty"`
	At     time.Time `json:"at"`
}

type TurnStatus string

const (
	TurnPending     TurnStatus = "pending"
	TurnSpeaking    TurnStatus = "speaking"
	TurnCompleted   TurnStatus = "completed"
	TurnInterrupted TurnStatus = "interrupted"
	TurnFailed      TurnStatus = "failed"
)

func (s TurnStatus) Terminal() bool {
	return s == TurnCompleted || s == TurnInterrupted || s == TurnFailed
}

// Turn is one user utterance and the AI reply to it.
type Turn struct {
	ID              string        `json:"id"`
	UserText        string        `json:"user_text"`
	ReplyText       string        `json:"reply_text,omitempty"`
	AudioBytes      int           `json:"audio_bytes"`
	DurationSeconds float64       `json:"duration_seconds"`
	Status          TurnStatus    `json:"status"`
	Fallback        bool          `json:"fallback,omitempty"`
	Latency         time.Duration `json:"latency_ns,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
}

type Request struct {
	CallID       string
	SystemPrompt string
	History      []Message
	UserText     string
}

// Generator produces the assistant reply for a turn. The deadline is carried
// by ctx.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}
