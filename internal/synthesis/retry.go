package synthesis

import (
	"context"
	"log/slog"

	"github.com/eleven-am/voice-callcenter/internal/shared"
)

// Retrying opens synthesis streams under a retry policy. Once audio is
// flowing a failure is reported as is.
type Retrying struct {
	next   Synthesizer
	policy shared.RetryPolicy
	log    *slog.Logger
}

func NewRetrying(next Synthesizer, policy shared.RetryPolicy, logger *slog.Logger) *Retrying {
	return &Retrying{next: next, policy: policy, log: logger.With("component", "tts_retry")}
}

func (r *Retrying) Synthesize(ctx context.Context, req Request) (Stream, error) {
	var stream Stream
	err := r.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		s, err := r.next.Synthesize(ctx, req)
		if err != nil {
			r.log.Warn("tts open failed", "call_id", req.CallID, "attempt", attempt, "error", err)
			return err
		}
		stream = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func (r *Retrying) Warm(ctx context.Context) error {
	if w, ok := r.next.(Warmer); ok {
		return w.Warm(ctx)
	}
	return nil
}
