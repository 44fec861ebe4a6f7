package callsession

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eleven-am/voice-callcenter/internal/audio"
	"github.com/eleven-am/voice-callcenter/internal/dialogue"
	"github.com/eleven-am/voice-callcenter/internal/events"
	"github.com/eleven-am/voice-callcenter/internal/shared"
	"github.com/eleven-am/voice-callcenter/internal/synthesis"
	"github.com/eleven-am/voice-callcenter/internal/transcription"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// tone returns d of 16 kHz PCM at the given peak amplitude (0..1).
func tone(d time.Duration, amplitude float64) []byte {
	n := audio.PCMBytesFor(d) / 2
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(amplitude * 32767 * math.Sin(2*math.Pi*440*float64(i)/audio.SampleRate))
	}
	return audio.Int16ToPCMBytes(samples)
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type fakeASRStream struct {
	mu     sync.Mutex
	events chan transcription.Utterance
	sent   int
	err    error
	once   sync.Once
}

func newFakeASRStream() *fakeASRStream {
	return &fakeASRStream{events: make(chan transcription.Utterance, 16)}
}

func (f *fakeASRStream) SendAudio(pcm []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent += len(pcm)
	return nil
}

func (f *fakeASRStream) Events() <-chan transcription.Utterance { return f.events }

func (f *fakeASRStream) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeASRStream) Close() error {
	f.once.Do(func() { close(f.events) })
	return nil
}

func (f *fakeASRStream) emit(text string, final bool) {
	f.events <- transcription.Utterance{Text: text, IsFinal: final, Confidence: 0.9}
}

func (f *fakeASRStream) drop(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
	f.Close()
}

func (f *fakeASRStream) sentBytes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}

type fakeTranscriber struct {
	mu      sync.Mutex
	streams []*fakeASRStream
	opens   int
	// failFrom makes every Open from this attempt onwards fail; 0 disables.
	failFrom int
}

func (f *fakeTranscriber) Open(ctx context.Context, opts transcription.SessionOptions) (transcription.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.failFrom > 0 && f.opens >= f.failFrom {
		return nil, errors.New("asr unavailable")
	}
	st := newFakeASRStream()
	f.streams = append(f.streams, st)
	return st, nil
}

func (f *fakeTranscriber) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

func (f *fakeTranscriber) stream(t *testing.T, i int) *fakeASRStream {
	t.Helper()
	var st *fakeASRStream
	waitUntil(t, "asr stream", func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		if len(f.streams) > i {
			st = f.streams[i]
			return true
		}
		return false
	})
	return st
}

// listeningTranscriber recognizes audio by energy: every voiced chunk adds
// the next scripted word and yields a partial; silence of at least endSilence
// after speech yields the final.
type listeningTranscriber struct {
	script     []string
	endSilence time.Duration
}

func (l *listeningTranscriber) Open(ctx context.Context, opts transcription.SessionOptions) (transcription.Stream, error) {
	return &listeningStream{
		script:     l.script,
		endSilence: l.endSilence,
		gate:       audio.NewEnergyGate(audio.DefaultEnergyThreshold),
		events:     make(chan transcription.Utterance, 64),
	}, nil
}

type listeningStream struct {
	script     []string
	endSilence time.Duration
	gate       audio.EnergyGate

	mu      sync.Mutex
	heard   []string
	silence time.Duration
	closed  bool
	events  chan transcription.Utterance
}

func (l *listeningStream) SendAudio(pcm []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return transcription.ErrStreamClosed
	}
	if voiced, _ := l.gate.Voiced(pcm); voiced {
		l.silence = 0
		l.heard = append(l.heard, l.script[len(l.heard)%len(l.script)])
		l.events <- transcription.Utterance{Text: strings.Join(l.heard, " "), Confidence: 0.6}
		return nil
	}
	if len(l.heard) == 0 {
		return nil
	}
	l.silence += audio.PCMDuration(len(pcm))
	if l.silence >= l.endSilence {
		l.events <- transcription.Utterance{Text: strings.Join(l.heard, " "), IsFinal: true, Confidence: 0.95}
		l.heard = nil
		l.silence = 0
	}
	return nil
}

func (l *listeningStream) Events() <-chan transcription.Utterance { return l.events }
func (l *listeningStream) Err() error                             { return nil }

func (l *listeningStream) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.events)
	}
	return nil
}

type fakeSynthStream struct {
	chunks chan []byte
	quit   chan struct{}
	once   sync.Once
	err    error
}

func (s *fakeSynthStream) Chunks() <-chan []byte { return s.chunks }
func (s *fakeSynthStream) Err() error            { return s.err }
func (s *fakeSynthStream) Close() error {
	s.once.Do(func() { close(s.quit) })
	return nil
}

// fakeSynth produces chunksPerSentence chunks of chunkDur loud audio for every
// request, as fast as the consumer reads them. With stall set it accepts the
// request and never sends anything.
type fakeSynth struct {
	chunksPerSentence int
	chunkDur          time.Duration
	failWith          error
	stall             bool

	mu       sync.Mutex
	requests []synthesis.Request
	warmed   int
}

func (f *fakeSynth) Synthesize(ctx context.Context, req synthesis.Request) (synthesis.Stream, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	s := &fakeSynthStream{chunks: make(chan []byte), quit: make(chan struct{})}
	go func() {
		defer close(s.chunks)
		if f.failWith != nil {
			s.err = f.failWith
			return
		}
		if f.stall {
			select {
			case <-ctx.Done():
			case <-s.quit:
			}
			return
		}
		for i := 0; i < f.chunksPerSentence; i++ {
			select {
			case s.chunks <- tone(f.chunkDur, 0.3):
			case <-ctx.Done():
				return
			case <-s.quit:
				return
			}
		}
	}()
	return s, nil
}

func (f *fakeSynth) Warm(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.warmed++
	return nil
}

type fakeGenerator struct {
	fn func(ctx context.Context, req dialogue.Request) (string, error)

	mu       sync.Mutex
	requests []dialogue.Request
}

func (g *fakeGenerator) Generate(ctx context.Context, req dialogue.Request) (string, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	return g.fn(ctx, req)
}

func (g *fakeGenerator) lastRequest() dialogue.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[len(g.requests)-1]
}

func replyWith(text string) *fakeGenerator {
	return &fakeGenerator{fn: func(context.Context, dialogue.Request) (string, error) { return text, nil }}
}

type writtenFrame struct {
	at    time.Time
	bytes int
}

type recordingOutput struct {
	mu      sync.Mutex
	frames  []writtenFrame
	flushes int
}

func (o *recordingOutput) WriteAudio(ctx context.Context, frame []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.frames = append(o.frames, writtenFrame{at: time.Now(), bytes: len(frame)})
	return nil
}

func (o *recordingOutput) FlushAudio() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.flushes++
	return 0
}

func (o *recordingOutput) totalBytes() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, f := range o.frames {
		n += f.bytes
	}
	return n
}

func (o *recordingOutput) framesAfter(t time.Time) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, f := range o.frames {
		if f.at.After(t) {
			n++
		}
	}
	return n
}

func (o *recordingOutput) flushCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.flushes
}

type eventSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *eventSink) Publish(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *eventSink) all() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Event(nil), s.events...)
}

func (s *eventSink) count(typ events.Type) int {
	n := 0
	for _, e := range s.all() {
		if e.Type == typ {
			n++
		}
	}
	return n
}

// wait returns the nth (1-based) event of typ.
func (s *eventSink) wait(t *testing.T, typ events.Type, n int) events.Event {
	t.Helper()
	var found events.Event
	waitUntil(t, string(typ), func() bool {
		seen := 0
		for _, e := range s.all() {
			if e.Type == typ {
				seen++
				if seen == n {
					found = e
					return true
				}
			}
		}
		return false
	})
	return found
}

func (s *eventSink) types() []events.Type {
	var out []events.Type
	for _, e := range s.all() {
		out = append(out, e.Type)
	}
	return out
}

type countingObserver struct {
	nopObserver
	mu      sync.Mutex
	drops   map[string]int
	bargeIn int
	turns   map[dialogue.TurnStatus]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{drops: map[string]int{}, turns: map[dialogue.TurnStatus]int{}}
}

func (o *countingObserver) AudioDropped(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.drops[reason]++
}

func (o *countingObserver) BargeIn() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bargeIn++
}

func (o *countingObserver) TurnFinished(status dialogue.TurnStatus, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.turns[status]++
}

func (o *countingObserver) dropCount(reason string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.drops[reason]
}

type harness struct {
	registry *Registry
	asr      *fakeTranscriber
	tts      *fakeSynth
	gen      *fakeGenerator
	sink     *eventSink
	out      *recordingOutput
	obs      *countingObserver
}

func newHarness(t *testing.T, gen *fakeGenerator, mutate func(*Config)) *harness {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Retry = shared.RetryPolicy{MaxAttempts: 2, Initial: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
	cfg.ConnectTimeout = time.Second
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{
		asr:  &fakeTranscriber{},
		tts:  &fakeSynth{chunksPerSentence: 2, chunkDur: 80 * time.Millisecond},
		gen:  gen,
		sink: &eventSink{},
		out:  &recordingOutput{},
		obs:  newCountingObserver(),
	}
	h.registry = NewRegistry(cfg, Dependencies{
		Transcriber: h.asr,
		Synthesizer: h.tts,
		Generator:   gen,
		Events:      h.sink,
		Observer:    h.obs,
	}, testLogger())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		h.registry.Close(ctx)
	})
	return h
}

// start begins a call and waits for call-ready.
func (h *harness) start(t *testing.T, callID string) (*Session, *fakeASRStream) {
	t.Helper()
	s, err := h.registry.StartCall(context.Background(), StartRequest{
		CallID:       callID,
		CustomerID:   7,
		SystemPrompt: "You are a helpful agent.",
		Output:       h.out,
	})
	if err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	h.sink.wait(t, events.TypeCallReady, 1)
	return s, h.asr.stream(t, 0)
}

// waitInfo polls the call snapshot until cond holds.
func (h *harness) waitInfo(t *testing.T, callID string, cond func(*SessionInfo) bool) *SessionInfo {
	t.Helper()
	var info *SessionInfo
	waitUntil(t, "session info", func() bool {
		i, ok := h.registry.GetSessionInfo(callID)
		if ok && cond(i) {
			info = i
			return true
		}
		return false
	})
	return info
}
