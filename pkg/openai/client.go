// Package openai provides an OpenAI-compatible HTTP client for the two
// external collaborators the engine depends on: the embedding provider and
// the chat-completion summarizer.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Config configures the client.
type Config struct {
	BaseURL    string
	APIKey     string
	EmbedModel string
	ChatModel  string
	MaxTokens  int
	Timeout    time.Duration
}

// Client talks to an OpenAI-compatible API.
type Client struct {
	cfg        Config
	client     *http.Client
	maxRetries int
}

// New creates a Client. The API key is required; everything else defaults.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: missing API key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = "text-embedding-3-small"
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "gpt-4o-mini"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		maxRetries: 3,
	}, nil
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns one embedding per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out embedResponse
	err := c.post(ctx, "/embeddings", embedRequest{Model: c.cfg.EmbedModel, Input: texts}, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("openai: embeddings: got %d vectors for %d inputs", len(out.Data), len(texts))
	}
	// The API documents index-annotated results; order defensively by it.
	// Stable, so a provider that omits indices keeps response order.
	sort.SliceStable(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })
	vectors := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Chat sends a system+user prompt pair and returns the completion text.
func (c *Client) Chat(ctx context.Context, system, user string) (string, error) {
	req := chatRequest{
		Model: c.cfg.ChatModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens: c.cfg.MaxTokens,
	}
	var out chatResponse
	if err := c.post(ctx, "/chat/completions", req, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("openai: chat: empty response")
	}
	return out.Choices[0].Message.Content, nil
}

// post issues one JSON request, retrying 429 and 5xx responses with the
// server's Retry-After hint when present.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("openai: encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay(attempt, lastErr)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("openai: %s: %w", path, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("openai: %s: %w", path, err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = &retryableError{
				err:        fmt.Errorf("openai: %s: status %d", path, resp.StatusCode),
				retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			}
			resp.Body.Close()
			continue
		}
		if resp.StatusCode >= 300 {
			resp.Body.Close()
			return fmt.Errorf("openai: %s: status %d", path, resp.StatusCode)
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("openai: %s: decode response: %w", path, err)
		}
		return nil
	}
	if re, ok := lastErr.(*retryableError); ok {
		return re.err
	}
	return lastErr
}

type retryableError struct {
	err        error
	retryAfter time.Duration
}

func (e *retryableError) Error() string { return e.err.Error() }

func retryDelay(attempt int, lastErr error) time.Duration {
	if re, ok := lastErr.(*retryableError); ok && re.retryAfter > 0 {
		return re.retryAfter
	}
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
