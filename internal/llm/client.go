package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rezamarzban/llama-client/internal/retry"
)

// Options configures a Client beyond its endpoint identity.
type Options struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
	Timeout     time.Duration
	Retry       retry.Config
}

// Client is the streaming transport for one OpenAI-compatible completion
// endpoint. It is safe for concurrent use; each Stream call is independent.
type Client struct {
	http   *http.Client
	url    string
	apiKey string
	model  string
	opts   Options
}

// NewClient creates a transport for the given endpoint. The URL is expected
// to be fully normalized (ending in /chat/completions).
func NewClient(url, apiKey, model string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = retry.DefaultConfig()
	}
	return &Client{
		http:   &http.Client{Timeout: opts.Timeout},
		url:    url,
		apiKey: apiKey,
		model:  model,
		opts:   opts,
	}
}

// Model returns the model identifier requests are issued for.
func (c *Client) Model() string { return c.model }

// Stream sends one streaming chat completion request carrying the full
// history and tool schemas, retrying with exponential backoff on transport
// failures. It returns the finished assistant message once the stream ends.
//
// On exhausting retries it returns an error; the caller is expected to fold
// that error into an assistant message so the turn still terminates.
func (c *Client) Stream(ctx context.Context, messages []Message, tools []ToolDef, h Handlers) (*Response, error) {
	reqBody := chatRequest{
		Model:       c.model,
		Messages:    encodeMessages(messages),
		Stream:      true,
		Temperature: c.opts.Temperature,
		TopP:        c.opts.TopP,
		MaxTokens:   c.opts.MaxTokens,
	}
	if len(tools) > 0 {
		reqBody.Tools = encodeTools(tools)
		reqBody.ToolChoice = "auto"
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	target := "local server"
	if c.apiKey != "" {
		target = "cloud API"
	}
	h.status("connecting to " + target + "...")

	// The accumulator outlives individual attempts: a retry after a
	// half-delivered stream resumes the same buffers.
	acc := &accumulator{}
	ceiling := c.opts.Retry.MaxAttempts

	var lastErr error
	for attempt := 0; attempt < ceiling; attempt++ {
		lastErr = c.streamOnce(ctx, payload, acc, h, attempt == 0)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("chat stream: %w", ctx.Err())
		}
		if attempt == ceiling-1 {
			return nil, fmt.Errorf("connection failed after %d attempts: %w", ceiling, lastErr)
		}

		wait := c.opts.Retry.Delay(attempt)
		h.status(fmt.Sprintf("retry %d/%d in %.1fs...", attempt+1, ceiling, wait.Seconds()))
		log.Debug().Err(lastErr).Int("attempt", attempt+1).Dur("wait", wait).Msg("stream attempt failed")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, fmt.Errorf("chat stream: %w", ctx.Err())
		}
	}

	msg, rate := acc.finish()
	if rate > 0 {
		h.status(fmt.Sprintf("%.1f tokens/s", rate))
	}
	return &Response{Message: msg, TokensPerSec: rate}, nil
}

// streamOnce performs a single request/stream cycle into the shared
// accumulator.
func (c *Client) streamOnce(ctx context.Context, payload []byte, acc *accumulator, h Handlers, announce bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if announce {
		h.status("connected")
	}

	if err := readFrames(resp.Body, func(d delta) {
		if token, ok := acc.add(d); ok {
			h.token(token)
		}
	}); err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	return nil
}
