package dialogue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

const defaultBaseURL = "https://api.openai.com/v1"

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// HTTPStatusError captures non-2xx upstream responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("dialogue: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// KeySource resolves the API key lazily, e.g. from a parameter store.
type KeySource func(ctx context.Context) (string, error)

type HTTPConfig struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature *float64
	MaxTokens   int

	// OAuth client credentials, used instead of an API key when ClientID is set.
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// HTTPGenerator calls an OpenAI-compatible chat completions endpoint.
type HTTPGenerator struct {
	cfg        HTTPConfig
	httpClient *http.Client
	keys       KeySource
}

type HTTPOption func(*HTTPGenerator)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(g *HTTPGenerator) { g.httpClient = c }
}

func WithKeySource(src KeySource) HTTPOption {
	return func(g *HTTPGenerator) { g.keys = src }
}

func NewHTTPGenerator(cfg HTTPConfig, opts ...HTTPOption) (*HTTPGenerator, error) {
	if cfg.Model == "" {
		return nil, errors.New("dialogue: model must not be empty")
	}
	g := &HTTPGenerator{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	if cfg.ClientID != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		g.httpClient = cc.Client(context.Background())
		g.httpClient.Timeout = 30 * time.Second
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func chatURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/v1/chat/completions"
}

func buildMessages(req Request) []chatMessage {
	messages := make([]chatMessage, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.History {
		messages = append(messages, chatMessage{Role: string(m.Role), Content: m.Text})
	}
	return append(messages, chatMessage{Role: "user", Content: req.UserText})
}

func (g *HTTPGenerator) apiKey(ctx context.Context) (string, error) {
	if g.keys != nil {
		return g.keys(ctx)
	}
	return g.cfg.APIKey, nil
}

func (g *HTTPGenerator) Generate(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       g.cfg.Model,
		Messages:    buildMessages(req),
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("dialogue: marshal request: %w", err)
	}

	url := chatURL(g.cfg.BaseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("dialogue: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.cfg.ClientID == "" {
		key, err := g.apiKey(ctx)
		if err != nil {
			return "", fmt.Errorf("dialogue: resolve api key: %w", err)
		}
		if key != "" {
			httpReq.Header.Set("Authorization", "Bearer "+key)
		}
	}

	res, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("dialogue: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", &HTTPStatusError{StatusCode: res.StatusCode, URL: url, Body: string(buf)}
	}

	var payload chatResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&payload); err != nil {
		return "", fmt.Errorf("dialogue: decode response: %w", err)
	}
	if len(payload.Choices) == 0 {
		return "", errors.New("dialogue: no choices in response")
	}
	reply := strings.TrimSpace(payload.Choices[0].Message.Content)
	if reply == "" {
		return "", errors.New("dialogue: empty reply")
	}
	return reply, nil
}
