package transcription

import "context"

// Transcriber opens streaming recognition sessions.
type Transcriber interface {
	Open(ctx context.Context, opts SessionOptions) (Stream, error)
}

// Stream is one live recognition session. Events is closed when the session
// ends; Err then reports why, or nil after Close.
type Stream interface {
	SendAudio(pcm []byte) error
	Events() <-chan Utterance
	Err() error
	Close() error
}
