package synthesis

import (
	"time"

	"github.com/eleven-am/voice-callcenter/internal/shared"
)

type Config struct {
	URL              string
	APIKey           string
	Voice            string
	Model            string
	HandshakeTimeout time.Duration
	// ReadTimeout bounds the wait for each server message once a request is sent.
	ReadTimeout time.Duration
	Retry       shared.RetryPolicy
}

type Request struct {
	CallID     string
	Text       string
	Voice      string
	Speed      float32
	SampleRate int
}
