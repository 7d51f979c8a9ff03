// Package openaiapi implements a generation provider backed by an
// OpenAI-compatible chat completions API.
package openaiapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"log/slog"

	"github.com/fairyhunter13/talent-match-engine/internal/adapter/observability"
	"github.com/fairyhunter13/talent-match-engine/internal/config"
	"github.com/fairyhunter13/talent-match-engine/internal/domain"
)

const providerName = "openai"

// Client implements domain.Provider against an OpenAI-compatible backend.
// It never caches results; caching belongs to the layer above.
type Client struct {
	cfg config.Config
	hc  *http.Client
}

// New constructs a client with the configured provider timeout.
func New(cfg config.Config) *Client {
	timeout := cfg.ProviderTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{cfg: cfg, hc: &http.Client{Timeout: timeout}}
}

// Name returns the provider name used in logs and metrics.
func (c *Client) Name() string { return providerName }

func (c *Client) backoffConfig(ctx domain.Context) backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	maxElapsed, initial, maxIv, mult := c.cfg.GetAIBackoffConfig()
	expo.MaxElapsedTime = maxElapsed
	expo.InitialInterval = initial
	expo.MaxInterval = maxIv
	expo.Multiplier = mult
	return backoff.WithContext(expo, ctx)
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
	Messages    []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage domain.Usage `json:"usage"`
}

// Generate calls the chat completions endpoint and returns the message text.
func (c *Client) Generate(ctx domain.Context, prompt string, opts domain.GenerateOptions) (domain.Generation, error) {
	if c.cfg.OpenAIAPIKey == "" {
		return domain.Generation{}, fmt.Errorf("%w: OPENAI_API_KEY missing", domain.ErrInvalidArgument)
	}
	body, _ := json.Marshal(chatRequest{
		Model:       c.cfg.OpenAIModel,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
	})

	var out chatResponse
	op := func() error {
		start := time.Now()
		// Recreate request each attempt to avoid reusing consumed bodies
		r, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.OpenAIBaseURL+"/chat/completions", bytes.NewReader(body))
		r.Header.Set("Authorization", "Bearer "+c.cfg.OpenAIAPIKey)
		r.Header.Set("Content-Type", "application/json")
		resp, err := c.hc.Do(r)
		observability.AIRequestsTotal.WithLabelValues(providerName, "generate").Inc()
		observability.AIRequestDuration.WithLabelValues(providerName, "generate").Observe(time.Since(start).Seconds())
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
		}
		defer func() { _ = resp.Body.Close() }()

		if err := classifyStatus(resp.StatusCode, resp.Body); err != nil {
			return err
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("%w: decode: %v", domain.ErrUnavailable, err)
		}
		return nil
	}

	if err := backoff.Retry(op, c.backoffConfig(ctx)); err != nil {
		observability.AIRequestFailures.WithLabelValues(providerName, errClass(err)).Inc()
		slog.Error("openai generate failed after retries", slog.String("provider", providerName), slog.Any("error", err))
		return domain.Generation{}, unwrapPermanent(err)
	}
	if len(out.Choices) == 0 {
		observability.AIRequestFailures.WithLabelValues(providerName, "empty").Inc()
		return domain.Generation{}, fmt.Errorf("%w: empty choices", domain.ErrUnavailable)
	}
	return domain.Generation{Text: out.Choices[0].Message.Content, Usage: out.Usage}, nil
}

// GenerateStream calls the chat completions endpoint with stream=true and
// pushes SSE deltas on the returned channel. The final chunk carries the
// assembled text and usage. A hard deadline derived from the provider timeout
// force-closes the stream.
func (c *Client) GenerateStream(ctx domain.Context, prompt string, opts domain.GenerateOptions) (<-chan domain.StreamChunk, error) {
	if c.cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY missing", domain.ErrInvalidArgument)
	}
	body, _ := json.Marshal(chatRequest{
		Model:       c.cfg.OpenAIModel,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      true,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
	})

	// The stream outlives this call; give it its own deadline rather than
	// the per-request client timeout.
	streamCtx, cancel := withHardDeadline(ctx, c.cfg.ProviderTimeout)

	r, _ := http.NewRequestWithContext(streamCtx, http.MethodPost, c.cfg.OpenAIBaseURL+"/chat/completions", bytes.NewReader(body))
	r.Header.Set("Authorization", "Bearer "+c.cfg.OpenAIAPIKey)
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Accept", "text/event-stream")

	streamHC := &http.Client{} // deadline enforced by streamCtx
	resp, err := streamHC.Do(r)
	observability.AIRequestsTotal.WithLabelValues(providerName, "generate_stream").Inc()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	if err := classifyStatus(resp.StatusCode, resp.Body); err != nil {
		_ = resp.Body.Close()
		cancel()
		observability.AIRequestFailures.WithLabelValues(providerName, errClass(err)).Inc()
		return nil, err
	}

	ch := make(chan domain.StreamChunk)
	go func() {
		defer close(ch)
		defer cancel()
		defer func() { _ = resp.Body.Close() }()

		// Every send races against streamCtx so an abandoned consumer
		// never strands this goroutine on the unbuffered channel.
		send := func(chunk domain.StreamChunk) bool {
			select {
			case ch <- chunk:
				return true
			case <-streamCtx.Done():
				return false
			}
		}

		var assembled strings.Builder
		var usage domain.Usage
		start := time.Now()
		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				break
			}
			var ev chatResponse
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				continue // tolerate malformed keep-alive frames
			}
			if ev.Usage.TotalTokens > 0 {
				usage = ev.Usage
			}
			if len(ev.Choices) == 0 || ev.Choices[0].Delta.Content == "" {
				continue
			}
			delta := ev.Choices[0].Delta.Content
			assembled.WriteString(delta)
			if !send(domain.StreamChunk{Delta: delta}) {
				send(domain.StreamChunk{Err: fmt.Errorf("%w: stream deadline", domain.ErrUnavailable), Done: true})
				return
			}
		}
		observability.AIRequestDuration.WithLabelValues(providerName, "generate_stream").Observe(time.Since(start).Seconds())
		if err := sc.Err(); err != nil && streamCtx.Err() != nil {
			send(domain.StreamChunk{Err: fmt.Errorf("%w: stream deadline", domain.ErrUnavailable), Text: assembled.String(), Done: true})
			return
		}
		send(domain.StreamChunk{Text: assembled.String(), Usage: usage, Done: true})
	}()
	return ch, nil
}

// Healthy probes the models endpoint. The router caches the result.
func (c *Client) Healthy(ctx domain.Context) bool {
	probeCtx, cancel := withHardDeadline(ctx, 5*time.Second)
	defer cancel()
	r, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.cfg.OpenAIBaseURL+"/models", nil)
	if err != nil {
		return false
	}
	r.Header.Set("Authorization", "Bearer "+c.cfg.OpenAIAPIKey)
	resp, err := c.hc.Do(r)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// classifyStatus maps HTTP status codes onto the domain error taxonomy.
// Rejected is permanent so backoff stops immediately.
func classifyStatus(status int, body io.Reader) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status 429", domain.ErrRateLimited)
	case status >= 400 && status < 500:
		return backoff.Permanent(fmt.Errorf("%w: status %d: %s", domain.ErrRejected, status, readSnippet(body, 512)))
	default:
		return fmt.Errorf("%w: status %d: %s", domain.ErrUnavailable, status, readSnippet(body, 512))
	}
}

func errClass(err error) string {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrRejected):
		return "rejected"
	default:
		return "unavailable"
	}
}

// unwrapPermanent surfaces the domain sentinel hidden inside
// backoff.PermanentError wrappers and maps plain context errors to
// Unavailable for breaker accounting.
func unwrapPermanent(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	if errors.Is(err, domain.ErrRateLimited) || errors.Is(err, domain.ErrRejected) || errors.Is(err, domain.ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
}

func readSnippet(r io.Reader, n int) string {
	if r == nil || n <= 0 {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(r, int64(n)))
	return strings.TrimSpace(string(b))
}

func withHardDeadline(ctx domain.Context, d time.Duration) (domain.Context, context.CancelFunc) {
	if d <= 0 {
		d = 120 * time.Second
	}
	return context.WithTimeout(ctx, d)
}
