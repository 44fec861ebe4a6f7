package callsession

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eleven-am/voice-callcenter/internal/audio"
)

var ErrMissingCallID = errors.New("call id is required")

// Registry owns every live call on this node, keyed by call id.
type Registry struct {
	cfg  Config
	deps Dependencies
	log  *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	ended    map[string]time.Time // recently ended ids, kept so EndCall stays idempotent
	closed   bool

	unknownDrops atomic.Uint64
}

func NewRegistry(cfg Config, deps Dependencies, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Events == nil {
		deps.Events = nopPublisher{}
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	return &Registry{
		cfg:      cfg.withDefaults(),
		deps:     deps,
		log:      logger.With("component", "call_registry"),
		sessions: make(map[string]*Session),
		ended:    make(map[string]time.Time),
	}
}

// StartCall registers a new call and starts its actor. The call is returned in
// the connecting state; call-ready follows once the adapters are up.
func (r *Registry) StartCall(ctx context.Context, req StartRequest) (*Session, error) {
	req.CallID = strings.TrimSpace(req.CallID)
	if req.CallID == "" {
		return nil, ErrMissingCallID
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, newCallError(ErrRegistryClosed, req.CallID)
	}
	if _, ok := r.sessions[req.CallID]; ok {
		r.mu.Unlock()
		return nil, newCallError(ErrDuplicateCall, req.CallID)
	}
	s := newSession(req, r.cfg, r.deps, r.log, r.remove)
	r.sessions[req.CallID] = s
	delete(r.ended, req.CallID)
	r.mu.Unlock()

	r.deps.Observer.CallStarted()
	r.log.Info("call started", "call_id", req.CallID, "session_id", s.SessionID(), "customer_id", req.CustomerID)
	s.start()
	return s, nil
}

// EndCall hangs up callID and waits for teardown. Ending a call that already
// ended is not an error.
func (r *Registry) EndCall(ctx context.Context, callID string) error {
	r.mu.RLock()
	s, ok := r.sessions[callID]
	_, wasEnded := r.ended[callID]
	r.mu.RUnlock()

	if !ok {
		if wasEnded {
			return nil
		}
		return newCallError(ErrUnknownCall, callID)
	}
	return s.End(ctx, ReasonHangup)
}

// remove runs on the session's actor goroutine after teardown.
func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.callID]; ok && cur == s {
		delete(r.sessions, s.callID)
	}
	r.ended[s.callID] = time.Now()
	r.pruneEndedLocked()
}

func (r *Registry) pruneEndedLocked() {
	cutoff := time.Now().Add(-r.cfg.EndedRetention)
	for id, at := range r.ended {
		if at.Before(cutoff) {
			delete(r.ended, id)
		}
	}
}

func (r *Registry) lookup(callID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[callID]
}

// ProcessAudio queues caller audio under the next sequence number. It never
// blocks.
func (r *Registry) ProcessAudio(callID string, pcm []byte) audio.PushResult {
	s := r.lookup(callID)
	if s == nil {
		r.dropUnknown()
		return audio.PushClosed
	}
	return s.ingestPCM(pcm)
}

// ProcessAudioChunk queues a sequenced chunk. It never blocks.
func (r *Registry) ProcessAudioChunk(c audio.Chunk) audio.PushResult {
	s := r.lookup(c.CallID)
	if s == nil {
		r.dropUnknown()
		return audio.PushClosed
	}
	return s.ingest(c)
}

func (r *Registry) dropUnknown() {
	r.unknownDrops.Add(1)
	r.deps.Observer.AudioDropped(DropUnknownCall)
}

func (r *Registry) UnknownDrops() uint64 { return r.unknownDrops.Load() }

// AttachOutput routes synthesized audio for callID to out.
func (r *Registry) AttachOutput(callID string, out AudioOutput) error {
	s := r.lookup(callID)
	if s == nil {
		return newCallError(ErrUnknownCall, callID)
	}
	if s.State().Terminal() {
		return newCallError(ErrCallNotActive, callID)
	}
	s.SetOutput(out)
	return nil
}

// DetachOutput removes out if it is still attached to callID.
func (r *Registry) DetachOutput(callID string, out AudioOutput) {
	if s := r.lookup(callID); s != nil {
		s.ClearOutput(out)
	}
}

func (r *Registry) Session(callID string) (*Session, bool) {
	s := r.lookup(callID)
	return s, s != nil
}

// GetSessionInfo returns the latest snapshot of a call that has not yet been
// torn down. Ended calls are gone from the registry and report nothing.
func (r *Registry) GetSessionInfo(callID string) (*SessionInfo, bool) {
	s := r.lookup(callID)
	if s == nil {
		return nil, false
	}
	info := s.Info()
	return &info, true
}

func (r *Registry) ActiveSessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ListSessions returns snapshots of all live calls ordered by start time.
func (r *Registry) ListSessions() []SessionInfo {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	slices.SortFunc(infos, func(a, b SessionInfo) int {
		return a.StartedAt.Compare(b.StartedAt)
	})
	return infos
}

// Close refuses new calls and ends every live call.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	if len(sessions) > 0 {
		r.log.Info("ending active calls", "count", len(sessions))
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.End(ctx, ReasonShutdown); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
