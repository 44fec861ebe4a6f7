package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/eleven-am/voice-callcenter/internal/audio"
	"github.com/eleven-am/voice-callcenter/internal/callsession"
	"github.com/eleven-am/voice-callcenter/internal/shared"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
	sendBuffer     = 64
	hangupTimeout  = 5 * time.Second
)

var errConnClosed = errors.New("media connection closed")

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ControlMessage is a text frame sent by the media bridge alongside binary audio.
type ControlMessage struct {
	Type string `json:"type"`
}

const ControlHangup = "hangup"

// MediaConn carries one call's audio over a websocket: binary frames in are
// caller PCM, binary frames out are synthesized speech.
type MediaConn struct {
	ws         *websocket.Conn
	callID     string
	sampleRate int
	logger     *slog.Logger
	send       chan []byte
	mu         sync.Mutex
	closed     bool
	done       chan struct{}
}

func NewMediaConn(ws *websocket.Conn, callID string, sampleRate int, logger *slog.Logger) *MediaConn {
	if sampleRate <= 0 {
		sampleRate = audio.SampleRate
	}
	return &MediaConn{
		ws:         ws,
		callID:     callID,
		sampleRate: sampleRate,
		logger:     logger.With("call_id", callID),
		send:       make(chan []byte, sendBuffer),
		done:       make(chan struct{}),
	}
}

func (c *MediaConn) CallID() string { return c.callID }

// WriteAudio queues one frame for the caller. A full buffer drops the frame.
func (c *MediaConn) WriteAudio(_ context.Context, frame []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}

	if c.sampleRate != audio.SampleRate {
		frame = audio.ResamplePCM(frame, audio.SampleRate, c.sampleRate)
	}

	select {
	case c.send <- frame:
		return nil
	default:
		c.logger.Warn("send buffer full, dropping audio frame")
		return nil
	}
}

// FlushAudio discards frames that have not been written to the socket yet.
func (c *MediaConn) FlushAudio() int {
	n := 0
	for {
		select {
		case <-c.send:
			n++
		default:
			return n
		}
	}
}

func (c *MediaConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	return c.ws.Close()
}

func (c *MediaConn) readPump(ctx context.Context, registry *callsession.Registry) {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		kind, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket read error", "error", err)
			}
			return
		}

		switch kind {
		case websocket.BinaryMessage:
			if c.sampleRate != audio.SampleRate {
				message = audio.ResamplePCM(message, c.sampleRate, audio.SampleRate)
			}
			if res := registry.ProcessAudio(c.callID, message); res == audio.PushClosed {
				return
			}
		case websocket.TextMessage:
			var msg ControlMessage
			if err := json.Unmarshal(message, &msg); err != nil {
				c.logger.Error("failed to unmarshal control message", "error", err)
				continue
			}
			if msg.Type == ControlHangup {
				hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hangupTimeout)
				if err := registry.EndCall(hctx, c.callID); err != nil {
					c.logger.Warn("hangup failed", "error", err)
				}
				cancel()
				return
			}
			c.logger.Debug("ignoring control message", "type", msg.Type)
		}
	}
}

func (c *MediaConn) writePump(ctx context.Context, callDone <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-callDone:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "call ended"))
			return
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				c.logger.Error("websocket write error", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type MediaHandler struct {
	registry *callsession.Registry
	logger   *slog.Logger
}

func NewMediaHandler(registry *callsession.Registry, logger *slog.Logger) *MediaHandler {
	return &MediaHandler{
		registry: registry,
		logger:   logger.With("handler", "media"),
	}
}

func (h *MediaHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/calls/:id/media", h.HandleMedia)
}

// @Summary      Stream call audio
// @Description  Websocket carrying caller PCM16 in and synthesized speech out as binary frames. Send {"type":"hangup"} to end the call
// @Tags         calls
// @Param        id           path   string  true   "Call ID"
// @Param        sample_rate  query  int     false  "Bridge sample rate in Hz (default 16000)"
// @Success      101
// @Failure      400  {object}  shared.APIError
// @Failure      404  {object}  shared.APIError
// @Failure      409  {object}  shared.APIError
// @Router       /calls/{id}/media [get]
func (h *MediaHandler) HandleMedia(c echo.Context) error {
	callID := c.Param("id")

	sampleRate := audio.SampleRate
	if raw := c.QueryParam("sample_rate"); raw != "" {
		sr, err := strconv.Atoi(raw)
		if err != nil || sr < 8000 || sr > 48000 {
			return shared.BadRequest("invalid_sample_rate", "sample_rate must be between 8000 and 48000")
		}
		sampleRate = sr
	}

	sess, ok := h.registry.Session(callID)
	if !ok {
		return shared.NotFound("unknown_call", "call not found")
	}
	if sess.State().Terminal() {
		return shared.Conflict("call_not_active", "call is ending")
	}

	ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return err
	}

	conn := NewMediaConn(ws, callID, sampleRate, h.logger)
	if err := h.registry.AttachOutput(callID, conn); err != nil {
		h.logger.Warn("failed to attach media output", "call_id", callID, "error", err)
		_ = ws.Close()
		return nil
	}

	h.logger.Info("media connected", "call_id", callID, "sample_rate", sampleRate)

	ctx := c.Request().Context()
	go conn.writePump(ctx, sess.Done())
	conn.readPump(ctx, h.registry)

	h.registry.DetachOutput(callID, conn)
	h.logger.Info("media disconnected", "call_id", callID)
	return nil
}
