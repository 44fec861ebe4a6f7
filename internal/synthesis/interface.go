package synthesis

import "context"

// Synthesizer turns text into a stream of PCM audio. Cancelling ctx aborts
// the stream.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (Stream, error)
}

// Stream yields audio chunks in order. Chunks is closed when synthesis ends;
// Err then reports a failure, or nil on normal completion or Close.
type Stream interface {
	Chunks() <-chan []byte
	Err() error
	Close() error
}

// Warmer is implemented by synthesizers that benefit from connecting ahead
// of the first reply.
type Warmer interface {
	Warm(ctx context.Context) error
}
