package stats

import (
	"context"
	"log/slog"

	"github.com/eleven-am/voice-callcenter/internal/dialogue"
	"github.com/eleven-am/voice-callcenter/internal/events"
)

// Recorder turns call events into hourly customer counters.
type Recorder struct {
	store *Store
	log   *slog.Logger
}

func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, log: logger.With("component", "stats_recorder")}
}

func (r *Recorder) HandleEvent(ctx context.Context, e events.Event) {
	fields := map[string]int64{}
	switch p := e.Payload.(type) {
	case events.CallEnded:
		fields[FieldCalls] = 1
		fields[FieldTalkMs] = int64(p.Duration * 1000)
	case events.CallError:
		fields[FieldErrors] = 1
	case events.TurnCompleted:
		fields[FieldTurns] = 1
		switch dialogue.TurnStatus(p.Status) {
		case dialogue.TurnInterrupted:
			fields[FieldInterrupts] = 1
		case dialogue.TurnFailed:
			fields[FieldFailedTurns] = 1
		}
		if p.LatencyMs > 0 {
			fields[fieldLatencyTotal] = p.LatencyMs
			fields[fieldLatencyCount] = 1
		}
	default:
		return
	}

	if err := r.store.Increment(ctx, e.CustomerID, e.Timestamp, fields); err != nil {
		r.log.Warn("failed to record call stats", "call_id", e.CallID, "event", e.Type, "error", err)
	}
}
