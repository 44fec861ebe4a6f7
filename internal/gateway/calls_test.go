package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eleven-am/voice-callcenter/internal/callrecord"
	"github.com/eleven-am/voice-callcenter/internal/dto"
	"github.com/eleven-am/voice-callcenter/internal/shared"
	"github.com/eleven-am/voice-callcenter/internal/stats"
	"github.com/labstack/echo/v4"
)

func (g *testGateway) do(t *testing.T, method, path string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil && header == nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	g.echo.ServeHTTP(rec, req)
	return rec
}

func decodeAPIError(t *testing.T, rec *httptest.ResponseRecorder) shared.APIError {
	t.Helper()
	var apiErr shared.APIError
	if err := json.Unmarshal(rec.Body.Bytes(), &apiErr); err != nil {
		t.Fatalf("failed to decode error body %q: %v", rec.Body.String(), err)
	}
	return apiErr
}

func TestCallHandler_RegisterRoutes(t *testing.T) {
	h := NewCallHandler(nil, nil, nil, testLogger())
	e := echo.New()
	h.RegisterRoutes(e.Group("/api/v1"))

	expected := map[string]bool{
		"POST /api/v1/calls":                false,
		"GET /api/v1/calls":                 false,
		"GET /api/v1/calls/:id":             false,
		"DELETE /api/v1/calls/:id":          false,
		"POST /api/v1/calls/:id/audio":      false,
		"GET /api/v1/calls/:id/record":      false,
		"GET /api/v1/customers/:id/metrics": false,
	}
	for _, r := range e.Routes() {
		key := r.Method + " " + r.Path
		if _, ok := expected[key]; ok {
			expected[key] = true
		}
	}
	for route, found := range expected {
		if !found {
			t.Errorf("route %s not registered", route)
		}
	}
}

func TestCallHandler_StartCall(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(t, http.MethodPost, "/api/v1/calls", []byte(`{"call_id":"c1","customer_id":42,"system_prompt":"Be brief."}`), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rec.Code, rec.Body.String())
	}

	var resp dto.CallResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.CallID != "c1" || resp.CustomerID != 42 {
		t.Errorf("unexpected call %+v", resp)
	}
	if resp.SessionID == "" {
		t.Error("expected a session id")
	}
	if resp.State == "" {
		t.Error("expected a state")
	}
}

func TestCallHandler_StartCall_Duplicate(t *testing.T) {
	g := newTestGateway(t)
	g.startCall(t, "c1")

	rec := g.do(t, http.MethodPost, "/api/v1/calls", []byte(`{"call_id":"c1"}`), nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if code := decodeAPIError(t, rec).Code; code != "duplicate_call" {
		t.Errorf("code = %q, want duplicate_call", code)
	}
}

func TestCallHandler_StartCall_Invalid(t *testing.T) {
	g := newTestGateway(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing call id", `{"customer_id":1}`},
		{"blank call id", `{"call_id":"   "}`},
		{"malformed json", `{"call_id":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := g.do(t, http.MethodPost, "/api/v1/calls", []byte(tt.body), nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestCallHandler_GetAndList(t *testing.T) {
	g := newTestGateway(t)
	g.startCall(t, "a")
	time.Sleep(2 * time.Millisecond)
	g.startCall(t, "b")

	rec := g.do(t, http.MethodGet, "/api/v1/calls", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var list dto.CallListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if list.Active != 2 || len(list.Calls) != 2 {
		t.Fatalf("unexpected list %+v", list)
	}
	if list.Calls[0].CallID != "a" || list.Calls[1].CallID != "b" {
		t.Errorf("calls not ordered by start: %s, %s", list.Calls[0].CallID, list.Calls[1].CallID)
	}

	rec = g.do(t, http.MethodGet, "/api/v1/calls/b", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = g.do(t, http.MethodGet, "/api/v1/calls/missing", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCallHandler_EndCall(t *testing.T) {
	g := newTestGateway(t)
	g.startCall(t, "c1")

	rec := g.do(t, http.MethodDelete, "/api/v1/calls/c1", nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	rec = g.do(t, http.MethodDelete, "/api/v1/calls/c1", nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("ending twice: status = %d, want 204", rec.Code)
	}

	rec = g.do(t, http.MethodGet, "/api/v1/calls/c1", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("ended call lookup: status = %d, want 404", rec.Code)
	}

	rec = g.do(t, http.MethodDelete, "/api/v1/calls/never", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown call: status = %d, want 404", rec.Code)
	}
}

func TestCallHandler_PushAudio(t *testing.T) {
	g := newTestGateway(t)
	g.startCall(t, "c1")
	chunk := make([]byte, 640)

	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   string
	}{
		{"unsequenced", "/api/v1/calls/c1/audio", map[string]string{}, "accepted"},
		{"sequenced", "/api/v1/calls/c1/audio", map[string]string{sequenceHeader: "100"}, "accepted"},
		{"replayed sequence", "/api/v1/calls/c1/audio", map[string]string{sequenceHeader: "100"}, "out_of_order"},
		{"unknown call", "/api/v1/calls/nope/audio", map[string]string{}, "closed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := g.do(t, http.MethodPost, tt.path, chunk, tt.header)
			if rec.Code != http.StatusAccepted {
				t.Fatalf("status = %d, want 202", rec.Code)
			}
			var resp dto.AudioAcceptedResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Result != tt.want {
				t.Errorf("result = %q, want %q", resp.Result, tt.want)
			}
		})
	}

	if g.registry.UnknownDrops() != 1 {
		t.Errorf("unknown drops = %d, want 1", g.registry.UnknownDrops())
	}
}

func TestCallHandler_PushAudio_Invalid(t *testing.T) {
	g := newTestGateway(t)
	g.startCall(t, "c1")

	rec := g.do(t, http.MethodPost, "/api/v1/calls/c1/audio", make([]byte, 64), map[string]string{sequenceHeader: "-1"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad sequence: status = %d, want 400", rec.Code)
	}

	rec = g.do(t, http.MethodPost, "/api/v1/calls/c1/audio", make([]byte, maxAudioBodySize+2), map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("oversized body: status = %d, want 400", rec.Code)
	}
}

func TestCallHandler_GetRecord(t *testing.T) {
	g := newTestGateway(t)
	started := time.Now().Add(-time.Minute).UTC()
	err := g.records.Save(context.Background(), &callrecord.CallRecord{
		ID:              "sess-1",
		CallID:          "c1",
		CustomerID:      5,
		EndReason:       "hangup",
		TurnCount:       1,
		DurationSeconds: 60,
		StartedAt:       started,
		EndedAt:         started.Add(time.Minute),
		Turns: []callrecord.TurnRecord{
			{ID: "t1", Seq: 1, Status: "completed", UserText: "hi", ReplyText: "You said: hi", LatencyMs: 12},
		},
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	rec := g.do(t, http.MethodGet, "/api/v1/calls/c1/record", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp dto.CallRecordResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.CustomerID != 5 || len(resp.Turns) != 1 || resp.Turns[0].ReplyText != "You said: hi" {
		t.Errorf("unexpected record %+v", resp)
	}

	rec = g.do(t, http.MethodGet, "/api/v1/calls/missing/record", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCallHandler_GetRecord_Disabled(t *testing.T) {
	h := NewCallHandler(nil, nil, nil, testLogger())
	e := echo.New()
	h.RegisterRoutes(e.Group("/api/v1"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/calls/c1/record", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestCallHandler_GetMetrics(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()
	now := time.Now()
	if err := g.stats.Increment(ctx, 42, now, map[string]int64{stats.FieldCalls: 2, stats.FieldTurns: 5}); err != nil {
		t.Fatal(err)
	}
	if err := g.stats.RecordLatency(ctx, 42, now, 300); err != nil {
		t.Fatal(err)
	}

	rec := g.do(t, http.MethodGet, "/api/v1/customers/42/metrics?hours=2", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp dto.MetricsListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.CustomerID != 42 || resp.Hours != 2 {
		t.Errorf("unexpected envelope %+v", resp)
	}
	if len(resp.Metrics) != 1 {
		t.Fatalf("metrics = %d buckets, want 1", len(resp.Metrics))
	}
	m := resp.Metrics[0]
	if m.Calls != 2 || m.Turns != 5 || m.AvgLatencyMs != 300 {
		t.Errorf("unexpected bucket %+v", m)
	}

	rec = g.do(t, http.MethodGet, "/api/v1/customers/42/metrics?hours=9999", nil, nil)
	if !strings.Contains(rec.Body.String(), `"hours":24`) {
		t.Errorf("out of range hours should fall back to 24, got %s", rec.Body.String())
	}

	rec = g.do(t, http.MethodGet, "/api/v1/customers/abc/metrics", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
