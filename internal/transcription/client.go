package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eleven-am/voice-callcenter/internal/audio"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	eventBufferSize         = 64
)

var ErrStreamClosed = errors.New("transcription stream closed")

// WSClient speaks the streaming recognition protocol over a websocket:
// binary frames carry PCM, text frames carry JSON transcript messages.
type WSClient struct {
	cfg    Config
	dialer websocket.Dialer
	log    *slog.Logger
}

func NewWSClient(cfg Config, logger *slog.Logger) *WSClient {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return &WSClient{
		cfg:    cfg,
		dialer: websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		log:    logger.With("component", "asr_client"),
	}
}

func (c *WSClient) streamURL(opts SessionOptions) (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse asr url: %w", err)
	}

	language := opts.Language
	if language == "" {
		language = "en"
	}
	sampleRate := opts.SampleRate
	if sampleRate == 0 {
		sampleRate = audio.SampleRate
	}

	q := u.Query()
	q.Set("encoding", "pcm_s16le")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("language", language)
	if c.cfg.Model != "" {
		q.Set("model", c.cfg.Model)
	}
	if opts.CallID != "" {
		q.Set("call_id", opts.CallID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *WSClient) dial(ctx context.Context, rawURL string) (*websocket.Conn, error) {
	headers := http.Header{}
	if c.cfg.APIKey != "" {
		headers.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	conn, resp, err := c.dialer.DialContext(ctx, rawURL, headers)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return nil, fmt.Errorf("asr connect (status %d): %s: %w", resp.StatusCode, string(body), err)
		}
		return nil, fmt.Errorf("asr connect: %w", err)
	}
	return conn, nil
}

func (c *WSClient) Open(ctx context.Context, opts SessionOptions) (Stream, error) {
	rawURL, err := c.streamURL(opts)
	if err != nil {
		return nil, err
	}
	conn, err := c.dial(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	s := &wsStream{
		conn:         conn,
		events:       make(chan Utterance, eventBufferSize),
		done:         make(chan struct{}),
		quit:         make(chan struct{}),
		openedAt:     time.Now(),
		writeTimeout: c.cfg.WriteTimeout,
		log:          c.log.With("call_id", opts.CallID),
	}
	go s.readLoop()
	return s, nil
}

// Ping checks that the recognizer accepts connections.
func (c *WSClient) Ping(ctx context.Context) error {
	rawURL, err := c.streamURL(SessionOptions{})
	if err != nil {
		return err
	}
	conn, err := c.dial(ctx, rawURL)
	if err != nil {
		return err
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return conn.Close()
}

type serverMessage struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	IsFinal    bool    `json:"is_final"`
	Confidence float64 `json:"confidence"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Error      string  `json:"error"`
}

type wsStream struct {
	conn         *websocket.Conn
	events       chan Utterance
	done         chan struct{}
	quit         chan struct{}
	openedAt     time.Time
	writeTimeout time.Duration
	log          *slog.Logger

	writeMu sync.Mutex
	closed  atomic.Bool

	errMu sync.Mutex
	err   error
}

func (s *wsStream) Events() <-chan Utterance { return s.events }

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

func (s *wsStream) offset(seconds float64) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}
	return s.openedAt.Add(time.Duration(seconds * float64(time.Second)))
}

func (s *wsStream) readLoop() {
	defer func() {
		close(s.events)
		close(s.done)
	}()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.fail(fmt.Errorf("asr connection lost: %w", err))
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Warn("ignoring malformed asr message", "error", err)
			continue
		}

		switch msg.Type {
		case "transcript":
			now := time.Now()
			u := Utterance{
				Text:       msg.Text,
				IsFinal:    msg.IsFinal,
				Confidence: msg.Confidence,
				StartedAt:  s.offset(msg.Start),
				EndedAt:    s.offset(msg.End),
			}
			if u.EndedAt.IsZero() {
				u.EndedAt = now
			}
			if u.StartedAt.IsZero() {
				u.StartedAt = u.EndedAt
			}
			select {
			case s.events <- u:
			case <-s.quit:
				return
			}
		case "error":
			s.fail(fmt.Errorf("asr error: %s", msg.Error))
			return
		case "done":
			if !s.closed.Load() {
				s.fail(fmt.Errorf("asr session ended by server"))
			}
			return
		}
	}
}

func (s *wsStream) SendAudio(pcm []byte) error {
	if s.closed.Load() {
		return ErrStreamClosed
	}
	select {
	case <-s.done:
		if err := s.Err(); err != nil {
			return err
		}
		return ErrStreamClosed
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		return fmt.Errorf("send audio: %w", err)
	}
	return nil
}

func (s *wsStream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.quit)
	s.writeMu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	s.writeMu.Unlock()

	err := s.conn.Close()
	<-s.done
	return err
}
