package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/voice-callcenter/internal/audio"
	"github.com/eleven-am/voice-callcenter/internal/shared"
)

const DefaultReplayWindow = 5 * time.Second

var ErrReconnectFailed = errors.New("asr reconnect failed")

type ResilientOptions struct {
	Policy       shared.RetryPolicy
	ReplayWindow time.Duration
	// OnReconnect is called after every reconnect attempt.
	OnReconnect func(err error)
}

// ResilientStream keeps one recognition session alive across a dropped
// connection. Audio sent since the last final utterance is kept and replayed
// into the replacement stream so the pending utterance is not lost. A drop is
// retried once per the policy; if that fails the stream ends with an error.
type ResilientStream struct {
	transcriber Transcriber
	opts        SessionOptions
	ropts       ResilientOptions
	maxReplay   int
	log         *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	current    Stream
	replay     [][]byte
	replayLen  int
	reconnects int
	closed     bool

	out  chan Utterance
	done chan struct{}

	errMu sync.Mutex
	err   error
}

// OpenResilient opens the first stream, retrying per the policy.
func OpenResilient(ctx context.Context, t Transcriber, opts SessionOptions, ropts ResilientOptions, logger *slog.Logger) (*ResilientStream, error) {
	if ropts.ReplayWindow <= 0 {
		ropts.ReplayWindow = DefaultReplayWindow
	}

	s := &ResilientStream{
		transcriber: t,
		opts:        opts,
		ropts:       ropts,
		maxReplay:   audio.PCMBytesFor(ropts.ReplayWindow),
		log:         logger.With("component", "asr_stream", "call_id", opts.CallID),
		out:         make(chan Utterance, eventBufferSize),
		done:        make(chan struct{}),
	}

	var first Stream
	err := ropts.Policy.Do(ctx, func(ctx context.Context, attempt int) error {
		st, err := t.Open(ctx, opts)
		if err != nil {
			s.log.Warn("asr open failed", "attempt", attempt, "error", err)
			return err
		}
		first = st
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("open asr stream: %w", err)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.current = first
	go s.run(first)
	return s, nil
}

func (s *ResilientStream) Events() <-chan Utterance { return s.out }

func (s *ResilientStream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *ResilientStream) Reconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects
}

func (s *ResilientStream) run(st Stream) {
	defer close(s.done)
	defer close(s.out)

	for {
		if !s.forward(st) {
			return
		}

		cause := st.Err()
		_ = st.Close()
		s.log.Warn("asr stream dropped, reconnecting", "error", cause)

		next, err := s.reconnect()
		if s.ctx.Err() != nil {
			if next != nil {
				_ = next.Close()
			}
			return
		}
		if s.ropts.OnReconnect != nil {
			s.ropts.OnReconnect(err)
		}
		if err != nil {
			s.setErr(fmt.Errorf("%w: %w (after %v)", ErrReconnectFailed, err, cause))
			return
		}
		st = next
	}
}

// forward relays utterances until st ends. It reports false when the
// ResilientStream itself was closed.
func (s *ResilientStream) forward(st Stream) bool {
	for {
		select {
		case <-s.ctx.Done():
			return false
		case u, ok := <-st.Events():
			if !ok {
				return s.ctx.Err() == nil
			}
			if u.IsFinal {
				s.clearReplay()
			}
			select {
			case s.out <- u:
			case <-s.ctx.Done():
				return false
			}
		}
	}
}

func (s *ResilientStream) reconnect() (Stream, error) {
	s.mu.Lock()
	s.current = nil
	s.reconnects++
	s.mu.Unlock()

	retries := s.ropts.Policy.MaxAttempts - 1
	if retries < 1 {
		return nil, fmt.Errorf("retries disabled")
	}

	var (
		next    Stream
		lastErr error
	)
	for attempt := 1; attempt <= retries && next == nil; attempt++ {
		timer := time.NewTimer(s.ropts.Policy.Delay(attempt))
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return nil, ErrStreamClosed
		case <-timer.C:
		}

		st, err := s.transcriber.Open(s.ctx, s.opts)
		if err != nil {
			s.log.Warn("asr reconnect attempt failed", "attempt", attempt, "error", err)
			lastErr = err
			continue
		}
		next = st
	}
	if next == nil {
		return nil, lastErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = next.Close()
		return nil, ErrStreamClosed
	}
	for _, pcm := range s.replay {
		if err := next.SendAudio(pcm); err != nil {
			_ = next.Close()
			return nil, fmt.Errorf("replay audio: %w", err)
		}
	}
	s.current = next
	s.log.Info("asr stream restored", "replayed_bytes", s.replayLen)
	return next, nil
}

// SendAudio forwards pcm to the live stream and keeps it for replay. While a
// reconnect is in progress audio is only buffered.
func (s *ResilientStream) SendAudio(pcm []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStreamClosed
	}
	s.remember(pcm)
	current := s.current
	s.mu.Unlock()

	if current == nil {
		if err := s.Err(); err != nil {
			return err
		}
		return nil
	}
	if err := current.SendAudio(pcm); err != nil {
		s.log.Debug("asr send failed, waiting for reconnect", "error", err)
		_ = current.Close()
	}
	return nil
}

func (s *ResilientStream) remember(pcm []byte) {
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	s.replay = append(s.replay, cp)
	s.replayLen += len(cp)
	for s.replayLen > s.maxReplay && len(s.replay) > 1 {
		s.replayLen -= len(s.replay[0])
		s.replay[0] = nil
		s.replay = s.replay[1:]
	}
}

func (s *ResilientStream) clearReplay() {
	s.mu.Lock()
	s.replay = nil
	s.replayLen = 0
	s.mu.Unlock()
}

func (s *ResilientStream) setErr(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
	s.log.Error("asr stream failed", "error", err)
}

func (s *ResilientStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	current := s.current
	s.current = nil
	s.mu.Unlock()

	s.cancel()
	var err error
	if current != nil {
		err = current.Close()
	}
	<-s.done
	return err
}
