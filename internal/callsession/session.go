package callsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/eleven-am/voice-callcenter/internal/audio"
	"github.com/eleven-am/voice-callcenter/internal/dialogue"
	"github.com/eleven-am/voice-callcenter/internal/events"
	"github.com/eleven-am/voice-callcenter/internal/shared"
	"github.com/eleven-am/voice-callcenter/internal/synthesis"
	"github.com/eleven-am/voice-callcenter/internal/transcription"
)

const (
	ReasonHangup   = "hangup"
	ReasonError    = "error"
	ReasonShutdown = "shutdown"
	ReasonInternal = "internal_error"

	StageASR      = "asr"
	StageTTS      = "tts"
	StageInternal = "internal"
)

type Dependencies struct {
	Transcriber transcription.Transcriber
	Synthesizer synthesis.Synthesizer
	Generator   dialogue.Generator
	Events      Publisher
	Observer    Observer
}

type StartRequest struct {
	CallID       string
	CustomerID   int64
	SystemPrompt string
	Output       AudioOutput
}

// SessionInfo is a point-in-time copy of a call's state.
type SessionInfo struct {
	CallID        string             `json:"call_id"`
	SessionID     string             `json:"session_id"`
	CustomerID    int64              `json:"customer_id"`
	State         State              `json:"state"`
	StartedAt     time.Time          `json:"started_at"`
	EndedAt       *time.Time         `json:"ended_at,omitempty"`
	EndReason     string             `json:"end_reason,omitempty"`
	CurrentTurnID string             `json:"current_turn_id,omitempty"`
	Turns         []dialogue.Turn    `json:"turns"`
	History       []dialogue.Message `json:"history"`
	HistoryLength int                `json:"history_length"`
	Ingest        audio.QueueStats   `json:"ingest"`
	InactiveDrops uint64             `json:"inactive_drops"`
}

type message interface{ sessionMessage() }

type msgConnected struct {
	stream *transcription.ResilientStream
	stage  string
	err    error
}

type msgVoice struct {
	voiced   bool
	duration time.Duration
}

type msgUtterance struct {
	utterance transcription.Utterance
}

type msgASRClosed struct {
	err error
}

type msgReply struct {
	turnID  string
	text    string
	err     error
	latency time.Duration
}

type msgPlaybackStarted struct {
	turnID string
	bytes  int
}

type msgPlaybackDone struct {
	turnID    string
	bytes     int
	err       error
	cancelled bool
}

type msgEnd struct {
	reason string
}

func (msgConnected) sessionMessage()       {}
func (msgVoice) sessionMessage()           {}
func (msgUtterance) sessionMessage()       {}
func (msgASRClosed) sessionMessage()       {}
func (msgReply) sessionMessage()           {}
func (msgPlaybackStarted) sessionMessage() {}
func (msgPlaybackDone) sessionMessage()    {}
func (msgEnd) sessionMessage()             {}

// turnRun is the in-flight part of a turn: its cancellation scope and the
// audio written so far.
type turnRun struct {
	turnID  string
	index   int
	ctx     context.Context
	cancel  context.CancelFunc
	playing bool
	sent    atomic.Int64
}

// Session is one live call. A single actor goroutine owns all mutable call
// state and is fed through the mailbox; adapter I/O runs on helper goroutines
// that post their results back.
type Session struct {
	callID       string
	sessionID    string
	customerID   int64
	systemPrompt string
	startedAt    time.Time

	cfg  Config
	deps Dependencies
	log  *slog.Logger

	queue     *audio.ChunkQueue
	gate      audio.EnergyGate
	mailbox   chan message
	mailMu    sync.RWMutex
	mailShut  bool
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	onExit    func(*Session)
	outBox    atomic.Pointer[outputBox]
	liveState atomic.Value
	snapshot  atomic.Pointer[SessionInfo]
	inactive  atomic.Uint64
	dropWarn  *rate.Limiter

	// owned by the actor goroutine
	state     State
	asr       *transcription.ResilientStream
	turns     []dialogue.Turn
	history   []dialogue.Message
	current   *turnRun
	arbiter   turnArbiter
	bargeIn   *BargeInController
	endedAt   *time.Time
	endReason string
	dirty     bool
}

func newSession(req StartRequest, cfg Config, deps Dependencies, logger *slog.Logger, onExit func(*Session)) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	sessionID := shared.NewSessionID()

	s := &Session{
		callID:       req.CallID,
		sessionID:    sessionID,
		customerID:   req.CustomerID,
		systemPrompt: req.SystemPrompt,
		startedAt:    time.Now(),
		cfg:          cfg,
		deps:         deps,
		log:          logger.With("call_id", req.CallID, "session_id", sessionID),
		queue:        audio.NewChunkQueue(cfg.MaxBuffered),
		gate:         audio.NewEnergyGate(cfg.EnergyThreshold),
		mailbox:      make(chan message, cfg.MailboxSize),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
		onExit:       onExit,
		dropWarn:     rate.NewLimiter(rate.Every(time.Second), 1),
		bargeIn:      NewBargeInController(cfg.BargeIn),
	}
	if req.Output != nil {
		s.SetOutput(req.Output)
	}
	s.setState(StateConnecting)
	s.publishSnapshot()
	return s
}

func (s *Session) start() {
	go s.run()
}

func (s *Session) CallID() string        { return s.callID }
func (s *Session) SessionID() string     { return s.sessionID }
func (s *Session) CustomerID() int64     { return s.customerID }
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) State() State {
	st, _ := s.liveState.Load().(State)
	return st
}

// Info returns the latest snapshot without waiting on the actor.
func (s *Session) Info() SessionInfo {
	info := *s.snapshot.Load()
	info.Ingest = s.queue.Stats()
	info.InactiveDrops = s.inactive.Load()
	return info
}

// SetOutput routes synthesized audio to out.
func (s *Session) SetOutput(out AudioOutput) {
	s.outBox.Store(&outputBox{out: out})
}

// ClearOutput detaches out if it is still the current output.
func (s *Session) ClearOutput(out AudioOutput) {
	box := s.outBox.Load()
	if box != nil && box.out == out {
		s.outBox.CompareAndSwap(box, nil)
	}
}

func (s *Session) output() AudioOutput {
	if box := s.outBox.Load(); box != nil && box.out != nil {
		return box.out
	}
	return discardOutput{}
}

// End asks the actor to hang up and waits until teardown completes.
func (s *Session) End(ctx context.Context, reason string) error {
	select {
	case s.mailbox <- msgEnd{reason: reason}:
	case <-s.ctx.Done():
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) ingest(c audio.Chunk) audio.PushResult {
	if !s.State().Accepting() {
		s.inactive.Add(1)
		s.deps.Observer.AudioDropped(DropInactive)
		return audio.PushClosed
	}
	return s.account(s.queue.Push(c), c.Sequence)
}

func (s *Session) ingestPCM(pcm []byte) audio.PushResult {
	if !s.State().Accepting() {
		s.inactive.Add(1)
		s.deps.Observer.AudioDropped(DropInactive)
		return audio.PushClosed
	}
	return s.account(s.queue.Append(s.callID, pcm), 0)
}

func (s *Session) account(res audio.PushResult, seq uint64) audio.PushResult {
	switch res {
	case audio.PushOutOfOrder:
		s.deps.Observer.AudioDropped(DropOutOfOrder)
		if s.dropWarn.Allow() {
			s.log.Warn("out-of-order audio chunk dropped", "sequence", seq)
		}
	case audio.PushOverflow:
		s.deps.Observer.AudioDropped(DropOverflow)
		if s.dropWarn.Allow() {
			s.log.Warn("ingest buffer full, oldest audio dropped", "stats", s.queue.Stats())
		}
	case audio.PushClosed:
		s.inactive.Add(1)
		s.deps.Observer.AudioDropped(DropInactive)
	}
	return res
}

// post hands m to the actor. It reports false once the call is tearing down;
// the caller keeps ownership of anything m carries.
func (s *Session) post(m message) bool {
	s.mailMu.RLock()
	defer s.mailMu.RUnlock()
	if s.mailShut || s.ctx.Err() != nil {
		return false
	}
	select {
	case s.mailbox <- m:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// shutMailbox refuses further posts and releases resources carried by
// messages the actor never handled.
func (s *Session) shutMailbox() {
	s.cancel()
	s.mailMu.Lock()
	s.mailShut = true
	s.mailMu.Unlock()

	for {
		select {
		case m := <-s.mailbox:
			if c, ok := m.(msgConnected); ok && c.stream != nil {
				_ = c.stream.Close()
			}
		default:
			return
		}
	}
}

func (s *Session) run() {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("session actor panicked", "panic", r, "stack", string(debug.Stack()))
			s.publish(events.TypeCallError, events.CallError{Stage: StageInternal, Message: fmt.Sprint(r)})
			s.teardown(ReasonInternal)
		}
		s.shutMailbox()
		if s.onExit != nil {
			s.onExit(s)
		}
		close(s.done)
	}()

	go s.connect()

	for s.state != StateEnded {
		s.handle(<-s.mailbox)
		if s.dirty {
			s.publishSnapshot()
		}
	}
}

func (s *Session) handle(m message) {
	switch m := m.(type) {
	case msgConnected:
		s.onConnected(m)
	case msgVoice:
		s.onVoice(m)
	case msgUtterance:
		s.onUtterance(m.utterance)
	case msgASRClosed:
		s.onASRClosed(m.err)
	case msgReply:
		s.onReply(m)
	case msgPlaybackStarted:
		s.onPlaybackStarted(m)
	case msgPlaybackDone:
		s.onPlaybackDone(m)
	case msgEnd:
		s.teardown(m.reason)
	}
}

func (s *Session) connect() {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.ConnectTimeout)
	defer cancel()

	stream, err := transcription.OpenResilient(ctx, s.deps.Transcriber, transcription.SessionOptions{
		CallID:     s.callID,
		Language:   s.cfg.Language,
		SampleRate: audio.SampleRate,
	}, transcription.ResilientOptions{
		Policy:       s.cfg.Retry,
		ReplayWindow: s.cfg.ReplayWindow,
		OnReconnect:  s.deps.Observer.ASRReconnect,
	}, s.log)
	if err != nil {
		s.post(msgConnected{stage: StageASR, err: err})
		return
	}

	if w, ok := s.deps.Synthesizer.(synthesis.Warmer); ok {
		werr := s.cfg.Retry.Do(ctx, func(ctx context.Context, _ int) error {
			return w.Warm(ctx)
		})
		if werr != nil {
			_ = stream.Close()
			s.post(msgConnected{stage: StageTTS, err: fmt.Errorf("warm tts: %w", werr)})
			return
		}
	}

	if !s.post(msgConnected{stream: stream}) {
		_ = stream.Close()
	}
}

func (s *Session) onConnected(m msgConnected) {
	if s.state != StateConnecting {
		if m.stream != nil {
			_ = m.stream.Close()
		}
		return
	}
	if m.err != nil {
		s.fail(m.stage, m.err)
		return
	}

	s.asr = m.stream
	go s.pump(m.stream)
	go s.readTranscripts(m.stream)

	s.setState(StateActive)
	s.log.Info("call ready")
	s.publish(events.TypeCallReady, events.CallReady{CallID: s.callID, SessionID: s.sessionID})
}

// pump moves queued caller audio through the voice gate into the recognizer.
func (s *Session) pump(stream *transcription.ResilientStream) {
	for {
		c, err := s.queue.Pop(s.ctx)
		if err != nil {
			return
		}
		voiced, _ := s.gate.Voiced(c.Data)
		if err := stream.SendAudio(c.Data); err != nil && !errors.Is(err, transcription.ErrStreamClosed) {
			s.log.Debug("asr send failed", "error", err)
		}
		if !s.post(msgVoice{voiced: voiced, duration: audio.PCMDuration(len(c.Data))}) {
			return
		}
	}
}

func (s *Session) readTranscripts(stream *transcription.ResilientStream) {
	for u := range stream.Events() {
		if !s.post(msgUtterance{utterance: u}) {
			return
		}
	}
	s.post(msgASRClosed{err: stream.Err()})
}

func (s *Session) onASRClosed(err error) {
	if !s.state.Live() {
		return
	}
	if err == nil {
		err = errors.New("asr stream ended unexpectedly")
	}
	s.fail(StageASR, err)
}

func (s *Session) onVoice(m msgVoice) {
	if !s.state.Live() {
		return
	}
	s.executeActions(s.bargeIn.OnVoice(m.voiced, m.duration))
}

func (s *Session) onUtterance(u transcription.Utterance) {
	if !s.state.Live() {
		return
	}
	text := strings.TrimSpace(u.Text)
	if text == "" {
		return
	}

	s.publish(events.TypeUserSpeech, events.UserSpeech{Text: text, IsFinal: u.IsFinal, Confidence: u.Confidence})

	if !u.IsFinal {
		if s.state == StateActive {
			s.setState(StateListening)
		}
		s.executeActions(s.bargeIn.OnPartial(text))
		return
	}
	s.startTurn(text)
}

func (s *Session) startTurn(text string) {
	if s.current != nil {
		wasPlaying := s.current.playing
		s.interruptCurrent("superseded", true)
		if wasPlaying {
			s.flushOutput()
		}
	}

	now := time.Now()
	turn := dialogue.Turn{
		ID:        shared.NewID("turn_"),
		UserText:  text,
		Status:    dialogue.TurnPending,
		CreatedAt: now,
	}
	s.turns = append(s.turns, turn)

	ctx, cancel := context.WithCancel(s.ctx)
	run := &turnRun{turnID: turn.ID, index: len(s.turns) - 1, ctx: ctx, cancel: cancel}
	s.current = run
	s.arbiter.Begin(turn.ID)
	s.setState(StateListening)

	s.log.Info("turn started", "turn_id", turn.ID)
	go s.generate(run, dialogue.Request{
		CallID:       s.callID,
		SystemPrompt: s.systemPrompt,
		History:      slices.Clone(s.history),
		UserText:     text,
	})
}

type generation struct {
	text string
	err  error
}

// generate enforces the generation deadline even if the generator ignores ctx.
func (s *Session) generate(run *turnRun, req dialogue.Request) {
	ctx, cancel := context.WithTimeout(run.ctx, s.cfg.GenerationTimeout)
	defer cancel()

	start := time.Now()
	result := make(chan generation, 1)
	go func() {
		text, err := s.deps.Generator.Generate(ctx, req)
		result <- generation{text: text, err: err}
	}()

	var g generation
	select {
	case g = <-result:
	case <-ctx.Done():
		g.err = ctx.Err()
	}
	if g.err == nil && strings.TrimSpace(g.text) == "" {
		g.err = errors.New("empty reply")
	}
	if run.ctx.Err() != nil {
		return
	}
	s.post(msgReply{turnID: run.turnID, text: strings.TrimSpace(g.text), err: g.err, latency: time.Since(start)})
}

func (s *Session) onReply(m msgReply) {
	run := s.current
	if run == nil || run.turnID != m.turnID || !s.arbiter.Claim(m.turnID) {
		s.log.Debug("discarding stale reply", "turn_id", m.turnID)
		return
	}

	turn := &s.turns[run.index]
	turn.Latency = m.latency
	reply := m.text
	if m.err != nil {
		s.log.Warn("reply generation failed, speaking fallback", "turn_id", turn.ID, "error", m.err)
		turn.Status = dialogue.TurnFailed
		turn.Fallback = true
		reply = s.cfg.FallbackReply
	} else {
		turn.Status = dialogue.TurnSpeaking
	}
	turn.ReplyText = reply

	run.playing = true
	s.bargeIn.OnPlaybackStart()
	s.setState(StateSpeaking)
	go s.play(run, reply)
}

func (s *Session) onPlaybackStarted(m msgPlaybackStarted) {
	run := s.current
	if run == nil || run.turnID != m.turnID {
		return
	}
	turn := s.turns[run.index]
	s.publish(events.TypeAIResponse, events.AIResponse{
		TurnID:          turn.ID,
		Text:            turn.ReplyText,
		AudioByteLength: m.bytes,
		Duration:        estimateSpeechSeconds(turn.ReplyText),
		Fallback:        turn.Fallback,
	})
}

func (s *Session) onPlaybackDone(m msgPlaybackDone) {
	run := s.current
	if run == nil || run.turnID != m.turnID || m.cancelled {
		return
	}
	s.current = nil
	s.arbiter.Release(run.turnID)
	s.bargeIn.OnPlaybackEnd()
	run.cancel()

	turn := &s.turns[run.index]
	now := time.Now()
	turn.CompletedAt = &now
	turn.AudioBytes = m.bytes
	turn.DurationSeconds = audio.PCMDuration(m.bytes).Seconds()

	if m.err != nil {
		turn.Status = dialogue.TurnFailed
		s.finishTurn(turn)
		s.fail(StageTTS, m.err)
		return
	}

	if turn.Status != dialogue.TurnFailed {
		turn.Status = dialogue.TurnCompleted
	}
	s.history = append(s.history,
		dialogue.Message{Role: dialogue.RoleUser, Text: turn.UserText, TurnID: turn.ID, At: turn.CreatedAt},
		dialogue.Message{Role: dialogue.RoleAssistant, Text: turn.ReplyText, TurnID: turn.ID, At: now},
	)
	s.finishTurn(turn)
	s.setState(StateActive)
}

func (s *Session) executeActions(actions []Action) {
	for _, action := range actions {
		switch action.Type {
		case ActionStopPlayback:
			if s.current != nil && s.current.playing {
				s.current.cancel()
			}
		case ActionCancelTurn:
			if s.current != nil && s.current.playing {
				s.deps.Observer.BargeIn()
			}
			s.interruptCurrent(action.Reason, true)
			s.setState(StateListening)
		case ActionFlushOutput:
			s.flushOutput()
		}
	}
}

// interruptCurrent cancels the in-flight turn. Only the caller's words enter
// the history.
func (s *Session) interruptCurrent(reason string, byCaller bool) {
	run := s.current
	if run == nil {
		return
	}
	s.current = nil
	run.cancel()
	s.arbiter.Release(run.turnID)
	if run.playing {
		s.bargeIn.OnPlaybackEnd()
	}

	turn := &s.turns[run.index]
	now := time.Now()
	turn.Status = dialogue.TurnInterrupted
	turn.CompletedAt = &now
	turn.AudioBytes = int(run.sent.Load())
	turn.DurationSeconds = audio.PCMDuration(turn.AudioBytes).Seconds()
	s.history = append(s.history, dialogue.Message{
		Role: dialogue.RoleUser, Text: turn.UserText, TurnID: turn.ID, At: turn.CreatedAt,
	})

	s.log.Info("turn interrupted", "turn_id", turn.ID, "reason", reason, "audio_bytes", turn.AudioBytes)
	if byCaller {
		s.publish(events.TypeUserInterrupted, events.UserInterrupted{TurnID: turn.ID})
	}
	s.finishTurn(turn)
}

func (s *Session) finishTurn(turn *dialogue.Turn) {
	s.dirty = true
	s.deps.Observer.TurnFinished(turn.Status, turn.Latency)
	s.publish(events.TypeTurnCompleted, events.TurnCompleted{
		TurnID:          turn.ID,
		Status:          string(turn.Status),
		UserText:        turn.UserText,
		ReplyText:       turn.ReplyText,
		AudioByteLength: turn.AudioBytes,
		Duration:        turn.DurationSeconds,
		LatencyMs:       turn.Latency.Milliseconds(),
	})
}

func (s *Session) flushOutput() {
	if f, ok := s.output().(Flusher); ok {
		if n := f.FlushAudio(); n > 0 {
			s.log.Debug("flushed queued output audio", "frames", n)
		}
	}
}

func (s *Session) fail(stage string, err error) {
	s.log.Error("call failed", "stage", stage, "error", err)
	s.publish(events.TypeCallError, events.CallError{Stage: stage, Message: err.Error()})
	s.teardown(ReasonError)
}

func (s *Session) teardown(reason string) {
	if s.state == StateEnded {
		return
	}
	s.setState(StateEnding)
	s.interruptCurrent("call_ended", false)
	s.cancel()
	s.queue.Close()
	if s.asr != nil {
		_ = s.asr.Close()
		s.asr = nil
	}
	s.flushOutput()

	now := time.Now()
	s.endedAt = &now
	s.endReason = reason
	d := now.Sub(s.startedAt)
	s.publish(events.TypeCallEnded, events.CallEnded{Duration: d.Seconds(), Reason: reason})
	s.deps.Observer.CallEnded(reason, d)
	s.log.Info("call ended", "reason", reason, "duration", d, "turns", len(s.turns))

	s.setState(StateEnded)
	s.publishSnapshot()
}

func (s *Session) setState(st State) {
	if s.state != st {
		s.log.Debug("state transition", "from", s.state, "to", st)
	}
	s.state = st
	s.liveState.Store(st)
	s.dirty = true
}

func (s *Session) publish(t events.Type, payload any) {
	s.deps.Events.Publish(events.Event{
		Type:       t,
		CallID:     s.callID,
		SessionID:  s.sessionID,
		CustomerID: s.customerID,
		Timestamp:  time.Now(),
		Payload:    payload,
	})
}

func (s *Session) publishSnapshot() {
	info := &SessionInfo{
		CallID:        s.callID,
		SessionID:     s.sessionID,
		CustomerID:    s.customerID,
		State:         s.state,
		StartedAt:     s.startedAt,
		EndedAt:       s.endedAt,
		EndReason:     s.endReason,
		Turns:         slices.Clone(s.turns),
		History:       slices.Clone(s.history),
		HistoryLength: len(s.history),
	}
	if s.current != nil {
		info.CurrentTurnID = s.current.turnID
	}
	if info.Turns == nil {
		info.Turns = []dialogue.Turn{}
	}
	if info.History == nil {
		info.History = []dialogue.Message{}
	}
	s.snapshot.Store(info)
	s.dirty = false
}
