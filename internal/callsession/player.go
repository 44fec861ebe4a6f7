package callsession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eleven-am/voice-callcenter/internal/audio"
	"github.com/eleven-am/voice-callcenter/internal/synthesis"
)

var ErrSynthesisStalled = errors.New("synthesis stalled")

// pacer releases frames at real-time rate, allowing lead worth of audio to
// run ahead of the wall clock.
type pacer struct {
	start  time.Time
	played time.Duration
	lead   time.Duration
}

func newPacer(lead time.Duration) *pacer {
	return &pacer{lead: lead}
}

// wait accounts d of written audio and sleeps until the next frame is due.
// It reports false when ctx ended first.
func (p *pacer) wait(ctx context.Context, d time.Duration) bool {
	now := time.Now()
	if p.start.IsZero() {
		p.start = now
	}
	p.played += d

	delay := p.start.Add(p.played - p.lead).Sub(now)
	if delay <= 0 {
		// synthesis fell behind; rebase instead of bursting to catch up
		if delay < -p.lead {
			p.start = p.start.Add(-delay - p.lead)
		}
		return ctx.Err() == nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// play synthesizes text sentence by sentence and writes it to the current
// output in fixed frames. Cancellation is observed between frames; a stream
// that goes quiet for ChunkTimeout fails the turn.
func (s *Session) play(run *turnRun, text string) {
	frameBytes := audio.PCMBytesFor(s.cfg.FrameDuration)
	p := newPacer(s.cfg.FrameDuration)
	started := false

	idle := time.NewTimer(s.cfg.ChunkTimeout)
	defer idle.Stop()

	for _, sentence := range splitSentences(text) {
		stream, err := s.deps.Synthesizer.Synthesize(run.ctx, synthesis.Request{
			CallID:     s.callID,
			Text:       sentence,
			Voice:      s.cfg.Voice,
			Speed:      s.cfg.SpeakingRate,
			SampleRate: audio.SampleRate,
		})
		if err != nil {
			s.playbackDone(run, err)
			return
		}
		idle.Reset(s.cfg.ChunkTimeout)

	chunks:
		for {
			var chunk []byte
			var ok bool
			select {
			case chunk, ok = <-stream.Chunks():
				if !ok {
					break chunks
				}
			case <-idle.C:
				_ = stream.Close()
				s.playbackDone(run, fmt.Errorf("%w: no audio for %s", ErrSynthesisStalled, s.cfg.ChunkTimeout))
				return
			case <-run.ctx.Done():
				_ = stream.Close()
				s.playbackDone(run, nil)
				return
			}

			if !started {
				started = true
				s.post(msgPlaybackStarted{turnID: run.turnID, bytes: len(chunk)})
			}
			for _, frame := range audio.SplitFrames(chunk, frameBytes) {
				if run.ctx.Err() != nil {
					_ = stream.Close()
					s.playbackDone(run, nil)
					return
				}
				if err := s.output().WriteAudio(run.ctx, frame); err != nil && run.ctx.Err() == nil {
					s.log.Debug("output write failed", "turn_id", run.turnID, "error", err)
				}
				run.sent.Add(int64(len(frame)))
				if !p.wait(run.ctx, audio.PCMDuration(len(frame))) {
					_ = stream.Close()
					s.playbackDone(run, nil)
					return
				}
			}
			idle.Reset(s.cfg.ChunkTimeout)
		}

		err = stream.Err()
		_ = stream.Close()
		if err != nil {
			s.playbackDone(run, err)
			return
		}
	}
	s.playbackDone(run, nil)
}

func (s *Session) playbackDone(run *turnRun, err error) {
	cancelled := run.ctx.Err() != nil
	if cancelled {
		err = nil
	}
	s.post(msgPlaybackDone{
		turnID:    run.turnID,
		bytes:     int(run.sent.Load()),
		err:       err,
		cancelled: cancelled,
	})
}
