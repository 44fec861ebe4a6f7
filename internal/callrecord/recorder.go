package callrecord

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/voice-callcenter/internal/dialogue"
	"github.com/eleven-am/voice-callcenter/internal/events"
)

const saveTimeout = 5 * time.Second

// Saver persists a finished call. *Store satisfies it.
type Saver interface {
	Save(ctx context.Context, rec *CallRecord) error
}

// Recorder builds a CallRecord from a session's events and saves it when the
// call ends. Attach it to the event bus.
type Recorder struct {
	store Saver
	log   *slog.Logger

	mu      sync.Mutex
	pending map[string]*CallRecord
}

func NewRecorder(store Saver, logger *slog.Logger) *Recorder {
	return &Recorder{
		store:   store,
		log:     logger.With("component", "call_recorder"),
		pending: make(map[string]*CallRecord),
	}
}

func (r *Recorder) HandleEvent(ctx context.Context, e events.Event) {
	switch p := e.Payload.(type) {
	case events.TurnCompleted:
		r.withRecord(e, func(rec *CallRecord) {
			rec.Turns = append(rec.Turns, TurnRecord{
				ID:              p.TurnID,
				Seq:             len(rec.Turns) + 1,
				Status:          p.Status,
				UserText:        p.UserText,
				ReplyText:       p.ReplyText,
				AudioBytes:      p.AudioByteLength,
				DurationSeconds: p.Duration,
				LatencyMs:       p.LatencyMs,
				CompletedAt:     e.Timestamp,
			})
		})
	case events.CallError:
		r.withRecord(e, func(rec *CallRecord) {
			rec.ErrorStage = p.Stage
			rec.ErrorMessage = p.Message
		})
	case events.CallEnded:
		r.finish(ctx, e, p)
	default:
		if e.Type == events.TypeCallReady {
			r.withRecord(e, func(*CallRecord) {})
		}
	}
}

func (r *Recorder) withRecord(e events.Event, fn func(*CallRecord)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.pending[e.SessionID]
	if !ok {
		rec = &CallRecord{
			ID:         e.SessionID,
			CallID:     e.CallID,
			CustomerID: e.CustomerID,
			StartedAt:  e.Timestamp,
		}
		r.pending[e.SessionID] = rec
	}
	fn(rec)
}

func (r *Recorder) finish(ctx context.Context, e events.Event, p events.CallEnded) {
	var rec *CallRecord
	r.withRecord(e, func(c *CallRecord) { rec = c })

	r.mu.Lock()
	delete(r.pending, e.SessionID)
	r.mu.Unlock()

	rec.EndReason = p.Reason
	rec.EndedAt = e.Timestamp
	rec.DurationSeconds = p.Duration
	rec.StartedAt = e.Timestamp.Add(-time.Duration(p.Duration * float64(time.Second)))
	rec.TurnCount = len(rec.Turns)
	for _, t := range rec.Turns {
		rec.AudioBytes += t.AudioBytes
		switch dialogue.TurnStatus(t.Status) {
		case dialogue.TurnInterrupted:
			rec.InterruptedTurns++
		case dialogue.TurnFailed:
			rec.FailedTurns++
		}
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := r.store.Save(saveCtx, rec); err != nil {
		r.log.Error("failed to save call record", "call_id", rec.CallID, "session_id", rec.ID, "error", err)
		return
	}
	r.log.Debug("call record saved", "call_id", rec.CallID, "turns", rec.TurnCount)
}

// Pending returns the number of calls still being collected.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
