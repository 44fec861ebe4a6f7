package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/eleven-am/voice-callcenter/internal/callsession"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeRegistry struct {
	sessions []callsession.SessionInfo
}

func (f fakeRegistry) ActiveSessionCount() int                 { return len(f.sessions) }
func (f fakeRegistry) ListSessions() []callsession.SessionInfo { return f.sessions }
func (f fakeRegistry) UnknownDrops() uint64                    { return 3 }

type fakeBus struct{}

func (fakeBus) Published() uint64    { return 10 }
func (fakeBus) Dropped() uint64      { return 1 }
func (fakeBus) SubscriberCount() int { return 4 }

func setupDeps(t *testing.T) (*gorm.DB, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return db, client, mr
}

func serve(h *Handler, path string) *httptest.ResponseRecorder {
	e := echo.New()
	h.RegisterRoutes(e)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestLiveness(t *testing.T) {
	h := NewHandler(nil, nil, nil, nil, nil, nil, "test")
	rec := serve(h, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestReadiness_Healthy(t *testing.T) {
	db, client, _ := setupDeps(t)
	reg := fakeRegistry{sessions: []callsession.SessionInfo{{CallID: "c1"}}}
	h := NewHandler(db, client, fakePinger{}, fakePinger{}, reg, fakeBus{}, "1.2.3")
	h.IncrementRequests()

	rec := serve(h, "/health/ready")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != StatusHealthy {
		t.Errorf("status = %s, want healthy (%+v)", resp.Status, resp.Components)
	}
	if resp.Version != "1.2.3" {
		t.Errorf("version = %q", resp.Version)
	}
	if resp.Stats.Calls.Active != 1 || resp.Stats.Calls.UnknownAudioDrops != 3 {
		t.Errorf("unexpected call stats %+v", resp.Stats.Calls)
	}
	if resp.Stats.Events.Published != 10 || resp.Stats.Events.Subscribers != 4 {
		t.Errorf("unexpected event stats %+v", resp.Stats.Events)
	}
	if resp.Stats.Requests.TotalRequests != 1 {
		t.Errorf("total requests = %d, want 1", resp.Stats.Requests.TotalRequests)
	}
	for _, name := range []string{"database", "redis", "asr", "tts"} {
		if _, ok := resp.Components[name]; !ok {
			t.Errorf("missing component %s", name)
		}
	}
}

func TestReadiness_AdapterDownIsDegraded(t *testing.T) {
	db, client, _ := setupDeps(t)
	h := NewHandler(db, client, fakePinger{err: errors.New("refused")}, fakePinger{}, nil, nil, "test")

	status, components := h.Check(context.Background())
	if status != StatusDegraded {
		t.Errorf("status = %s, want degraded", status)
	}
	if components["asr"].Status != StatusUnhealthy || components["asr"].Error == "" {
		t.Errorf("unexpected asr component %+v", components["asr"])
	}
}

func TestReadiness_RedisDownIsUnhealthy(t *testing.T) {
	db, client, mr := setupDeps(t)
	mr.Close()
	h := NewHandler(db, client, fakePinger{}, fakePinger{}, nil, nil, "test")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	status, _ := h.Check(ctx)
	if status != StatusUnhealthy {
		t.Errorf("status = %s, want unhealthy", status)
	}

	rec := serve(h, "/health/ready")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("http status = %d, want 503", rec.Code)
	}
}

func TestComputeOverallStatus(t *testing.T) {
	tests := []struct {
		name       string
		components map[string]ComponentStatus
		want       Status
	}{
		{"all healthy", map[string]ComponentStatus{"database": {Status: StatusHealthy}, "tts": {Status: StatusHealthy}}, StatusHealthy},
		{"critical down", map[string]ComponentStatus{"database": {Status: StatusUnhealthy}}, StatusUnhealthy},
		{"adapter degraded", map[string]ComponentStatus{"database": {Status: StatusHealthy}, "tts": {Status: StatusDegraded}}, StatusDegraded},
		{"adapter down", map[string]ComponentStatus{"redis": {Status: StatusHealthy}, "asr": {Status: StatusUnhealthy}}, StatusDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := computeOverallStatus(tt.components); got != tt.want {
				t.Errorf("computeOverallStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSessions(t *testing.T) {
	started := time.Now().UTC()
	reg := fakeRegistry{sessions: []callsession.SessionInfo{
		{CallID: "c1", SessionID: "s1", CustomerID: 7, State: callsession.StateSpeaking, StartedAt: started, CurrentTurnID: "t1"},
	}}
	h := NewHandler(nil, nil, nil, nil, reg, nil, "test")

	rec := serve(h, "/health/sessions")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp SessionsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || resp.Sessions[0].State != "speaking" || resp.Sessions[0].CurrentTurnID != "t1" {
		t.Errorf("unexpected sessions %+v", resp)
	}
}
