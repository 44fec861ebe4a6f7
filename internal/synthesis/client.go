package synthesis

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eleven-am/voice-callcenter/internal/audio"
	"github.com/eleven-am/voice-callcenter/internal/shared"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultReadTimeout      = 10 * time.Second
	chunkBufferSize         = 32
)

var ErrEmptyText = errors.New("empty text")

// WSClient synthesizes each request over its own websocket: one JSON request
// out, JSON chunk messages with base64 PCM back.
type WSClient struct {
	cfg    Config
	dialer websocket.Dialer
	log    *slog.Logger
}

func NewWSClient(cfg Config, logger *slog.Logger) *WSClient {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	return &WSClient{
		cfg:    cfg,
		dialer: websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		log:    logger.With("component", "tts_client"),
	}
}

type outputFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

type synthesizeMessage struct {
	Type         string       `json:"type"`
	ContextID    string       `json:"context_id"`
	Transcript   string       `json:"transcript"`
	Voice        string       `json:"voice,omitempty"`
	Model        string       `json:"model,omitempty"`
	Speed        float32      `json:"speed,omitempty"`
	OutputFormat outputFormat `json:"output_format"`
}

type serverMessage struct {
	Type  string `json:"type"`
	Data  string `json:"data"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

func (c *WSClient) dial(ctx context.Context) (*websocket.Conn, error) {
	headers := http.Header{}
	if c.cfg.APIKey != "" {
		headers.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, headers)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return nil, fmt.Errorf("tts connect (status %d): %s: %w", resp.StatusCode, string(body), err)
		}
		return nil, fmt.Errorf("tts connect: %w", err)
	}
	return conn, nil
}

func (c *WSClient) Synthesize(ctx context.Context, req Request) (Stream, error) {
	if req.Text == "" {
		return nil, shared.Permanent(ErrEmptyText)
	}

	voice := req.Voice
	if voice == "" {
		voice = c.cfg.Voice
	}
	sampleRate := req.SampleRate
	if sampleRate == 0 {
		sampleRate = audio.SampleRate
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}

	msg := synthesizeMessage{
		Type:         "synthesize",
		ContextID:    shared.NewID("ctx_"),
		Transcript:   req.Text,
		Voice:        voice,
		Model:        c.cfg.Model,
		Speed:        req.Speed,
		OutputFormat: outputFormat{Encoding: "pcm_s16le", SampleRate: sampleRate},
	}
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send synthesis request: %w", err)
	}

	s := &wsStream{
		conn:        conn,
		readTimeout: c.cfg.ReadTimeout,
		chunks:      make(chan []byte, chunkBufferSize),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	s.stopWatch = context.AfterFunc(ctx, func() { _ = s.Close() })
	go s.readLoop()
	return s, nil
}

// Warm opens and closes a connection so DNS, TLS and the upstream session
// pool are ready before the first reply.
func (c *WSClient) Warm(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return conn.Close()
}

func (c *WSClient) Ping(ctx context.Context) error {
	return c.Warm(ctx)
}

type wsStream struct {
	conn        *websocket.Conn
	readTimeout time.Duration
	chunks      chan []byte
	quit        chan struct{}
	done        chan struct{}
	stopWatch   func() bool

	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

func (s *wsStream) Chunks() <-chan []byte { return s.chunks }

func (s *wsStream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *wsStream) fail(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
}

func (s *wsStream) closing() bool {
	select {
	case <-s.quit:
		return true
	default:
		return false
	}
}

func (s *wsStream) readLoop() {
	defer func() {
		s.stopWatch()
		close(s.chunks)
		close(s.done)
		s.conn.Close()
	}()

	for {
		var msg serverMessage
		_ = s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		if err := s.conn.ReadJSON(&msg); err != nil {
			if s.closing() || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return
			}
			s.fail(fmt.Errorf("tts connection lost: %w", err))
			return
		}

		switch msg.Type {
		case "chunk":
			if msg.Data != "" {
				pcm, err := base64.StdEncoding.DecodeString(msg.Data)
				if err != nil {
					s.fail(fmt.Errorf("decode audio chunk: %w", err))
					return
				}
				select {
				case s.chunks <- pcm:
				case <-s.quit:
					return
				}
			}
			if msg.Done {
				return
			}
		case "done":
			return
		case "error":
			s.fail(fmt.Errorf("tts error: %s", msg.Error))
			return
		}
	}
}

func (s *wsStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.quit)
		_ = s.conn.Close()
	})
	<-s.done
	return nil
}
