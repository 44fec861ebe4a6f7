package gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/eleven-am/voice-callcenter/internal/audio"
	"github.com/eleven-am/voice-callcenter/internal/callrecord"
	"github.com/eleven-am/voice-callcenter/internal/callsession"
	"github.com/eleven-am/voice-callcenter/internal/dialogue"
	"github.com/eleven-am/voice-callcenter/internal/events"
	"github.com/eleven-am/voice-callcenter/internal/shared"
	"github.com/eleven-am/voice-callcenter/internal/stats"
	"github.com/eleven-am/voice-callcenter/internal/synthesis"
	"github.com/eleven-am/voice-callcenter/internal/transcription"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
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

type stubASRStream struct {
	events chan transcription.Utterance
	sent   atomic.Int64
	once   sync.Once
}

func (s *stubASRStream) SendAudio(pcm []byte) error {
	s.sent.Add(int64(len(pcm)))
	return nil
}

func (s *stubASRStream) Events() <-chan transcription.Utterance { return s.events }
func (s *stubASRStream) Err() error                             { return nil }

func (s *stubASRStream) Close() error {
	s.once.Do(func() { close(s.events) })
	return nil
}

func (s *stubASRStream) say(text string) {
	s.events <- transcription.Utterance{Text: text, IsFinal: true, Confidence: 0.95}
}

type stubTranscriber struct {
	mu      sync.Mutex
	streams map[string]*stubASRStream
}

func (f *stubTranscriber) Open(ctx context.Context, opts transcription.SessionOptions) (transcription.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.streams == nil {
		f.streams = make(map[string]*stubASRStream)
	}
	s := &stubASRStream{events: make(chan transcription.Utterance, 8)}
	f.streams[opts.CallID] = s
	return s, nil
}

func (f *stubTranscriber) stream(t *testing.T, callID string) *stubASRStream {
	t.Helper()
	var s *stubASRStream
	waitUntil(t, "asr stream for "+callID, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		s = f.streams[callID]
		return s != nil
	})
	return s
}

type stubSynthStream struct {
	chunks chan []byte
}

func (s *stubSynthStream) Chunks() <-chan []byte { return s.chunks }
func (s *stubSynthStream) Err() error            { return nil }
func (s *stubSynthStream) Close() error          { return nil }

// stubSynth renders every sentence as 120ms of quiet tone.
type stubSynth struct{}

func (stubSynth) Synthesize(ctx context.Context, req synthesis.Request) (synthesis.Stream, error) {
	ch := make(chan []byte, 1)
	ch <- make([]byte, audio.PCMBytesFor(120*time.Millisecond))
	close(ch)
	return &stubSynthStream{chunks: ch}, nil
}

type testGateway struct {
	registry *callsession.Registry
	bus      *events.Bus
	asr      *stubTranscriber
	records  *callrecord.Store
	stats    *stats.Store
	redis    *miniredis.Miniredis
	echo     *echo.Echo
	server   *httptest.Server
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()
	logger := testLogger()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	records := callrecord.NewStore(db)
	if err := records.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	g := &testGateway{
		bus:     events.NewBus(logger),
		asr:     &stubTranscriber{},
		records: records,
		stats:   stats.NewStore(client),
		redis:   mr,
	}

	cfg := callsession.DefaultConfig()
	cfg.Retry = shared.RetryPolicy{MaxAttempts: 2, Initial: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
	g.registry = callsession.NewRegistry(cfg, callsession.Dependencies{
		Transcriber: g.asr,
		Synthesizer: stubSynth{},
		Generator:   dialogue.EchoGenerator{},
		Events:      g.bus,
	}, logger)

	g.echo = echo.New()
	api := g.echo.Group("/api/v1")
	NewCallHandler(g.registry, g.records, g.stats, logger).RegisterRoutes(api)
	NewMediaHandler(g.registry, logger).RegisterRoutes(api)
	NewEventStreamHandler(g.bus, nil, logger).RegisterRoutes(api)
	g.server = httptest.NewServer(g.echo)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		g.registry.Close(ctx)
		g.bus.Close()
		g.server.Close()
	})
	return g
}

func (g *testGateway) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(g.server.URL, "http") + path
}

// startCall registers a call directly and waits until its adapters are up.
func (g *testGateway) startCall(t *testing.T, callID string) *callsession.Session {
	t.Helper()
	s, err := g.registry.StartCall(context.Background(), callsession.StartRequest{CallID: callID, CustomerID: 9})
	if err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	waitUntil(t, "call active", func() bool {
		st := s.State()
		return st != callsession.StateConnecting
	})
	return s
}
