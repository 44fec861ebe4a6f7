package gateway

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/eleven-am/voice-callcenter/internal/audio"
	"github.com/eleven-am/voice-callcenter/internal/callrecord"
	"github.com/eleven-am/voice-callcenter/internal/callsession"
	"github.com/eleven-am/voice-callcenter/internal/dto"
	"github.com/eleven-am/voice-callcenter/internal/shared"
	"github.com/eleven-am/voice-callcenter/internal/stats"
	"github.com/labstack/echo/v4"
)

const (
	sequenceHeader   = "X-Sequence-Number"
	maxAudioBodySize = 256 * 1024
	defaultHours     = 24
	maxHours         = 168
)

type CallHandler struct {
	registry *callsession.Registry
	records  *callrecord.Store
	stats    *stats.Store
	logger   *slog.Logger
}

func NewCallHandler(registry *callsession.Registry, records *callrecord.Store, statsStore *stats.Store, logger *slog.Logger) *CallHandler {
	return &CallHandler{
		registry: registry,
		records:  records,
		stats:    statsStore,
		logger:   logger.With("handler", "calls"),
	}
}

func (h *CallHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/calls", h.StartCall)
	g.GET("/calls", h.ListCalls)
	g.GET("/calls/:id", h.GetCall)
	g.DELETE("/calls/:id", h.EndCall)
	g.POST("/calls/:id/audio", h.PushAudio)
	g.GET("/calls/:id/record", h.GetRecord)
	g.GET("/customers/:id/metrics", h.GetMetrics)
}

// @Summary      Start a call session
// @Description  Registers a call and connects its speech adapters. The call is returned while still connecting
// @Tags         calls
// @Accept       json
// @Produce      json
// @Param        request  body      dto.StartCallRequest  true  "Call to start"
// @Success      201      {object}  dto.CallResponse
// @Failure      400      {object}  shared.APIError
// @Failure      409      {object}  shared.APIError
// @Failure      503      {object}  shared.APIError
// @Router       /calls [post]
func (h *CallHandler) StartCall(c echo.Context) error {
	var req dto.StartCallRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_request", "invalid request body")
	}

	sess, err := h.registry.StartCall(c.Request().Context(), callsession.StartRequest{
		CallID:       req.CallID,
		CustomerID:   req.CustomerID,
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		return callErrorToHTTP(err)
	}

	return c.JSON(http.StatusCreated, callToResponse(sess.Info()))
}

// @Summary      List active calls
// @Tags         calls
// @Produce      json
// @Success      200  {object}  dto.CallListResponse
// @Router       /calls [get]
func (h *CallHandler) ListCalls(c echo.Context) error {
	infos := h.registry.ListSessions()
	calls := make([]dto.CallResponse, len(infos))
	for i, info := range infos {
		calls[i] = callToResponse(info)
	}
	return c.JSON(http.StatusOK, dto.CallListResponse{
		Active: len(calls),
		Calls:  calls,
	})
}

// @Summary      Get a call session
// @Description  Returns a call that has not been torn down. Ended calls return 404
// @Tags         calls
// @Produce      json
// @Param        id   path      string  true  "Call ID"
// @Success      200  {object}  dto.CallResponse
// @Failure      404  {object}  shared.APIError
// @Router       /calls/{id} [get]
func (h *CallHandler) GetCall(c echo.Context) error {
	info, ok := h.registry.GetSessionInfo(c.Param("id"))
	if !ok {
		return shared.NotFound("unknown_call", "call not found")
	}
	return c.JSON(http.StatusOK, callToResponse(*info))
}

// @Summary      End a call session
// @Description  Hangs up the call and waits for teardown. Ending an already ended call succeeds
// @Tags         calls
// @Param        id   path  string  true  "Call ID"
// @Success      204
// @Failure      404  {object}  shared.APIError
// @Router       /calls/{id} [delete]
func (h *CallHandler) EndCall(c echo.Context) error {
	if err := h.registry.EndCall(c.Request().Context(), c.Param("id")); err != nil {
		return callErrorToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// @Summary      Push caller audio
// @Description  Accepts one chunk of 16 kHz mono PCM16. The result reports whether the chunk was queued, dropped or rejected
// @Tags         calls
// @Accept       application/octet-stream
// @Produce      json
// @Param        id                 path    string  true   "Call ID"
// @Param        X-Sequence-Number  header  int     false  "Monotonic chunk sequence"
// @Success      202  {object}  dto.AudioAcceptedResponse
// @Failure      400  {object}  shared.APIError
// @Router       /calls/{id}/audio [post]
func (h *CallHandler) PushAudio(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxAudioBodySize+1))
	if err != nil {
		return shared.BadRequest("invalid_audio", "failed to read audio body")
	}
	if len(body) > maxAudioBodySize {
		return shared.BadRequest("audio_too_large", "audio chunk exceeds "+strconv.Itoa(maxAudioBodySize)+" bytes")
	}

	callID := c.Param("id")
	var result audio.PushResult
	if raw := c.Request().Header.Get(sequenceHeader); raw != "" {
		seq, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return shared.BadRequest("invalid_sequence", "sequence number must be an unsigned integer")
		}
		result = h.registry.ProcessAudioChunk(audio.Chunk{
			CallID:     callID,
			Sequence:   seq,
			Data:       body,
			CapturedAt: time.Now(),
		})
	} else {
		result = h.registry.ProcessAudio(callID, body)
	}

	return c.JSON(http.StatusAccepted, dto.AudioAcceptedResponse{Result: result.String()})
}

// @Summary      Get a call record
// @Description  Returns the persisted summary of the most recent finished session for a call
// @Tags         calls
// @Produce      json
// @Param        id   path      string  true  "Call ID"
// @Success      200  {object}  dto.CallRecordResponse
// @Failure      404  {object}  shared.APIError
// @Failure      503  {object}  shared.APIError
// @Router       /calls/{id}/record [get]
func (h *CallHandler) GetRecord(c echo.Context) error {
	if h.records == nil {
		return shared.ServiceUnavailable("records_disabled", "call records are not configured")
	}

	rec, err := h.records.GetByCallID(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NotFound("record_not_found", "call record not found")
		}
		h.logger.Error("failed to get call record", "error", err, "call_id", c.Param("id"))
		return shared.InternalError("get_record_failed", "failed to get call record")
	}

	return c.JSON(http.StatusOK, recordToResponse(rec))
}

// @Summary      Get customer call metrics
// @Description  Hourly call counters for a customer, newest first
// @Tags         metrics
// @Produce      json
// @Param        id     path      int  true   "Customer ID"
// @Param        hours  query     int  false  "Hours to include (1-168, default 24)"
// @Success      200    {object}  dto.MetricsListResponse
// @Failure      400    {object}  shared.APIError
// @Failure      503    {object}  shared.APIError
// @Router       /customers/{id}/metrics [get]
func (h *CallHandler) GetMetrics(c echo.Context) error {
	if h.stats == nil {
		return shared.ServiceUnavailable("metrics_disabled", "call metrics are not configured")
	}

	customerID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return shared.BadRequest("invalid_customer_id", "customer id must be an integer")
	}

	hours := defaultHours
	if raw := c.QueryParam("hours"); raw != "" {
		if hr, err := strconv.Atoi(raw); err == nil && hr > 0 && hr <= maxHours {
			hours = hr
		}
	}

	metrics, err := h.stats.GetMetrics(c.Request().Context(), customerID, hours)
	if err != nil {
		h.logger.Error("failed to get metrics", "error", err, "customer_id", customerID)
		return shared.InternalError("get_metrics_failed", "failed to get metrics")
	}

	response := make([]dto.MetricsResponse, len(metrics))
	for i, m := range metrics {
		response[i] = metricsToResponse(m)
	}

	return c.JSON(http.StatusOK, dto.MetricsListResponse{
		CustomerID: customerID,
		Hours:      hours,
		Metrics:    response,
	})
}

func callErrorToHTTP(err error) error {
	switch {
	case errors.Is(err, callsession.ErrMissingCallID):
		return shared.BadRequest("invalid_request", err.Error())
	case errors.Is(err, callsession.ErrDuplicateCall):
		return shared.Conflict("duplicate_call", err.Error())
	case errors.Is(err, callsession.ErrUnknownCall):
		return shared.NotFound("unknown_call", err.Error())
	case errors.Is(err, callsession.ErrCallNotActive):
		return shared.Conflict("call_not_active", err.Error())
	case errors.Is(err, callsession.ErrRegistryClosed):
		return shared.ServiceUnavailable("shutting_down", err.Error())
	default:
		return shared.InternalError("call_failed", err.Error())
	}
}

func callToResponse(info callsession.SessionInfo) dto.CallResponse {
	turns := make([]dto.TurnResponse, len(info.Turns))
	for i, t := range info.Turns {
		turns[i] = dto.TurnResponse{
			ID:              t.ID,
			UserText:        t.UserText,
			ReplyText:       t.ReplyText,
			Status:          string(t.Status),
			Fallback:        t.Fallback,
			AudioBytes:      t.AudioBytes,
			DurationSeconds: t.DurationSeconds,
			LatencyMs:       t.Latency.Milliseconds(),
			CreatedAt:       t.CreatedAt,
			CompletedAt:     t.CompletedAt,
		}
	}
	return dto.CallResponse{
		CallID:        info.CallID,
		SessionID:     info.SessionID,
		CustomerID:    info.CustomerID,
		State:         string(info.State),
		StartedAt:     info.StartedAt,
		EndedAt:       info.EndedAt,
		EndReason:     info.EndReason,
		CurrentTurnID: info.CurrentTurnID,
		HistoryLength: info.HistoryLength,
		Turns:         turns,
		Ingest: dto.IngestStats{
			Accepted:      info.Ingest.Accepted,
			OutOfOrder:    info.Ingest.OutOfOrder,
			Overflow:      info.Ingest.Overflow,
			Inactive:      info.InactiveDrops,
			BufferedBytes: info.Ingest.BufferedBytes,
		},
	}
}

func recordToResponse(rec *callrecord.CallRecord) dto.CallRecordResponse {
	turns := make([]dto.TurnRecordResponse, len(rec.Turns))
	for i, t := range rec.Turns {
		turns[i] = dto.TurnRecordResponse{
			Seq:             t.Seq,
			Status:          t.Status,
			UserText:        t.UserText,
			ReplyText:       t.ReplyText,
			AudioBytes:      t.AudioBytes,
			DurationSeconds: t.DurationSeconds,
			LatencyMs:       t.LatencyMs,
		}
	}
	return dto.CallRecordResponse{
		ID:               rec.ID,
		CallID:           rec.CallID,
		CustomerID:       rec.CustomerID,
		EndReason:        rec.EndReason,
		ErrorStage:       rec.ErrorStage,
		ErrorMessage:     rec.ErrorMessage,
		TurnCount:        rec.TurnCount,
		InterruptedTurns: rec.InterruptedTurns,
		FailedTurns:      rec.FailedTurns,
		DurationSeconds:  rec.DurationSeconds,
		StartedAt:        rec.StartedAt,
		EndedAt:          rec.EndedAt,
		Turns:            turns,
	}
}

func metricsToResponse(m *stats.Metrics) dto.MetricsResponse {
	return dto.MetricsResponse{
		Date:         m.Date,
		Hour:         m.Hour,
		Calls:        m.Calls,
		Turns:        m.Turns,
		Interrupts:   m.Interrupts,
		FailedTurns:  m.FailedTurns,
		Errors:       m.Errors,
		TalkMs:       m.TalkMs,
		AvgLatencyMs: m.AvgLatencyMs,
	}
}
