package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/eleven-am/voice-callcenter/internal/events"
	"github.com/eleven-am/voice-callcenter/internal/shared"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	eventBuffer   = 128
	sseKeepAlive  = 15 * time.Second
	scopeCluster  = "cluster"
	scopeInstance = "instance"
)

// Follower streams events published by every instance, normally backed by
// redis pub/sub.
type Follower interface {
	Follow(ctx context.Context, callID string) <-chan events.Event
}

type EventStreamHandler struct {
	bus      *events.Bus
	follower Follower
	logger   *slog.Logger
}

func NewEventStreamHandler(bus *events.Bus, follower Follower, logger *slog.Logger) *EventStreamHandler {
	return &EventStreamHandler{
		bus:      bus,
		follower: follower,
		logger:   logger.With("handler", "events"),
	}
}

func (h *EventStreamHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/events", h.HandleConnect)
}

// @Summary      Stream call events
// @Description  Streams lifecycle events as JSON over a websocket, or as server-sent events when Accept is text/event-stream
// @Tags         events
// @Produce      json
// @Param        call_id  query  string  false  "Only events of this call"
// @Param        type     query  string  false  "Comma separated event types"
// @Param        scope    query  string  false  "instance (default) or cluster"
// @Success      101
// @Failure      400  {object}  shared.APIError
// @Failure      503  {object}  shared.APIError
// @Router       /events [get]
func (h *EventStreamHandler) HandleConnect(c echo.Context) error {
	scope := c.QueryParam("scope")
	if scope == "" {
		scope = scopeInstance
	}
	if scope != scopeInstance && scope != scopeCluster {
		return shared.BadRequest("invalid_scope", "scope must be instance or cluster")
	}
	if scope == scopeCluster && h.follower == nil {
		return shared.ServiceUnavailable("cluster_events_disabled", "cluster event stream is not configured")
	}

	if strings.Contains(c.Request().Header.Get("Accept"), "text/event-stream") {
		return h.handleSSE(c, scope)
	}
	return h.handleWebSocket(c, scope)
}

// open returns the event source for a request and a function releasing it.
func (h *EventStreamHandler) open(ctx context.Context, c echo.Context, scope string) (<-chan events.Event, func()) {
	callID := c.QueryParam("call_id")
	types := parseTypes(c.QueryParam("type"))

	if scope == scopeCluster {
		fctx, cancel := context.WithCancel(ctx)
		src := h.follower.Follow(fctx, callID)
		if len(types) == 0 {
			return src, cancel
		}
		keep := events.OfType(types...)
		out := make(chan events.Event, eventBuffer)
		go func() {
			defer close(out)
			for e := range src {
				if !keep(e) {
					continue
				}
				select {
				case out <- e:
				case <-fctx.Done():
					return
				}
			}
		}()
		return out, cancel
	}

	var filters []events.Filter
	if callID != "" {
		filters = append(filters, events.ForCall(callID))
	}
	if len(types) > 0 {
		filters = append(filters, events.OfType(types...))
	}
	sub := h.bus.Subscribe("stream:"+c.RealIP(), eventBuffer, filters...)
	return sub.C(), sub.Close
}

func parseTypes(raw string) []events.Type {
	if raw == "" {
		return nil
	}
	var types []events.Type
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, events.Type(t))
		}
	}
	return types
}

func (h *EventStreamHandler) handleWebSocket(c echo.Context, scope string) error {
	ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return err
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	src, release := h.open(ctx, c, scope)
	defer release()

	// Reads only serve control frames and notice the peer going away.
	go func() {
		defer cancel()
		ws.SetReadLimit(maxMessageSize)
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			_ = ws.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.logger.Info("event stream connected", "transport", "websocket", "scope", scope, "call_id", c.QueryParam("call_id"))

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-src:
			if !ok {
				_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
				_ = ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "event stream closed"))
				return nil
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(e); err != nil {
				h.logger.Debug("event stream write failed", "error", err)
				return nil
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}

func (h *EventStreamHandler) handleSSE(c echo.Context, scope string) error {
	w := c.Response()
	flusher, ok := w.Writer.(http.Flusher)
	if !ok {
		return shared.InternalError("streaming_unsupported", "response does not support streaming")
	}

	ctx := c.Request().Context()
	src, release := h.open(ctx, c, scope)
	defer release()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Info("event stream connected", "transport", "sse", "scope", scope, "call_id", c.QueryParam("call_id"))

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-src:
			if !ok {
				return nil
			}
			data, err := json.Marshal(e)
			if err != nil {
				h.logger.Error("failed to marshal event", "error", err)
				continue
			}
			if _, err := w.Write([]byte("event: " + string(e.Type) + "\ndata: " + string(data) + "\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}
