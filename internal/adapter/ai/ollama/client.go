// Package ollama implements a generation provider backed by a local Ollama
// inference server.
package ollama

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

const providerName = "ollama"

// Client implements domain.Provider against a local Ollama server.
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

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func (c *Client) backoffConfig(ctx domain.Context) backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	maxElapsed, initial, maxIv, mult := c.cfg.GetAIBackoffConfig()
	expo.MaxElapsedTime = maxElapsed
	expo.InitialInterval = initial
	expo.MaxInterval = maxIv
	expo.Multiplier = mult
	return backoff.WithContext(expo, ctx)
}

func (c *Client) requestBody(prompt string, opts domain.GenerateOptions, stream bool) []byte {
	options := map[string]any{"temperature": opts.Temperature}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	b, _ := json.Marshal(generateRequest{
		Model:   c.cfg.OllamaModel,
		Prompt:  prompt,
		Stream:  stream,
		Options: options,
	})
	return b
}

// Generate calls /api/generate without streaming and returns the full reply.
func (c *Client) Generate(ctx domain.Context, prompt string, opts domain.GenerateOptions) (domain.Generation, error) {
	body := c.requestBody(prompt, opts, false)

	var out generateResponse
	op := func() error {
		start := time.Now()
		r, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.OllamaBaseURL+"/api/generate", bytes.NewReader(body))
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
		slog.Error("ollama generate failed after retries", slog.String("provider", providerName), slog.Any("error", err))
		return domain.Generation{}, unwrapPermanent(err)
	}
	return domain.Generation{
		Text: out.Response,
		Usage: domain.Usage{
			PromptTokens:     out.PromptEvalCount,
			CompletionTokens: out.EvalCount,
			TotalTokens:      out.PromptEvalCount + out.EvalCount,
		},
	}, nil
}

// GenerateStream calls /api/generate with streaming enabled and pushes NDJSON
// deltas on the returned channel. A hard deadline derived from the provider
// timeout force-closes the stream.
func (c *Client) GenerateStream(ctx domain.Context, prompt string, opts domain.GenerateOptions) (<-chan domain.StreamChunk, error) {
	body := c.requestBody(prompt, opts, true)

	streamCtx, cancel := context.WithTimeout(ctx, c.streamDeadline())
	r, _ := http.NewRequestWithContext(streamCtx, http.MethodPost, c.cfg.OllamaBaseURL+"/api/generate", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")

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
			var ev generateResponse
			if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
				continue
			}
			if ev.Response != "" {
				assembled.WriteString(ev.Response)
				if !send(domain.StreamChunk{Delta: ev.Response}) {
					send(domain.StreamChunk{Err: fmt.Errorf("%w: stream deadline", domain.ErrUnavailable), Done: true})
					return
				}
			}
			if ev.Done {
				usage = domain.Usage{
					PromptTokens:     ev.PromptEvalCount,
					CompletionTokens: ev.EvalCount,
					TotalTokens:      ev.PromptEvalCount + ev.EvalCount,
				}
				break
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

// Healthy probes /api/tags. The router caches the result.
func (c *Client) Healthy(ctx domain.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	r, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.cfg.OllamaBaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.hc.Do(r)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (c *Client) streamDeadline() time.Duration {
	if c.cfg.ProviderTimeout > 0 {
		return c.cfg.ProviderTimeout
	}
	return 120 * time.Second
}

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
