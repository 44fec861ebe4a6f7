package transcription

import (
	"time"

	"github.com/eleven-am/voice-callcenter/internal/shared"
)

// Utterance is a partial or final transcript for one span of caller speech.
type Utterance struct {
	Text       string    `json:"text"`
	IsFinal    bool      `json:"is_final"`
	Confidence float64   `json:"confidence,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

type Config struct {
	URL              string
	APIKey           string
	Model            string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Retry            shared.RetryPolicy
	ReplayWindow     time.Duration
}

type SessionOptions struct {
	CallID     string
	Language   string
	SampleRate int
}
