package callsession

import "context"

// AudioOutput receives synthesized audio frames for the caller, normally the
// media bridge connection of the call.
type AudioOutput interface {
	WriteAudio(ctx context.Context, frame []byte) error
}

// Flusher is implemented by outputs that buffer audio and can drop it on
// barge-in. FlushAudio returns the number of frames discarded.
type Flusher interface {
	FlushAudio() int
}

type discardOutput struct{}

func (discardOutput) WriteAudio(context.Context, []byte) error { return nil }

type outputBox struct {
	out AudioOutput
}
