package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/talent-match-engine/internal/domain"
)

// Router selects one configured provider as active and exposes a uniform
// generate / generate-JSON / availability contract. This is the seam where a
// new backend is added without touching any caller.
type Router struct {
	active       domain.Provider
	health       *healthCache
	extractor    *Extractor
	parseRetries int
}

// RouterOption customizes a Router.
type RouterOption func(*Router)

// WithParseRetries sets how many times GenerateJSON re-asks the model after a
// parse failure. Transport failures are never retried here.
func WithParseRetries(n int) RouterOption {
	return func(r *Router) {
		if n >= 0 {
			r.parseRetries = n
		}
	}
}

// WithHealthCacheTTL sets the health probe window.
func WithHealthCacheTTL(ttl time.Duration) RouterOption {
	return func(r *Router) { r.health = newHealthCache(r.active, ttl) }
}

// NewRouter constructs a Router around the active provider.
func NewRouter(active domain.Provider, opts ...RouterOption) *Router {
	r := &Router{
		active:       active,
		health:       newHealthCache(active, 60*time.Second),
		extractor:    NewExtractor(),
		parseRetries: 1,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Name returns the active provider name.
func (r *Router) Name() string { return r.active.Name() }

// Generate delegates to the active provider.
func (r *Router) Generate(ctx domain.Context, prompt string, opts domain.GenerateOptions) (domain.Generation, error) {
	return r.active.Generate(ctx, prompt, opts)
}

// GenerateStream delegates to the active provider's streaming variant.
func (r *Router) GenerateStream(ctx domain.Context, prompt string, opts domain.GenerateOptions) (<-chan domain.StreamChunk, error) {
	return r.active.GenerateStream(ctx, prompt, opts)
}

// IsAvailable reports whether the active provider passed its last cached
// health probe.
func (r *Router) IsAvailable(ctx domain.Context) bool {
	return r.health.Healthy(ctx)
}

// GenerateJSON calls Generate and extracts the JSON object from the reply.
// Parse failures are retried up to the configured count; transport failures
// surface immediately so the queue's retry policy owns them.
func (r *Router) GenerateJSON(ctx domain.Context, prompt string, opts domain.GenerateOptions) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt <= r.parseRetries; attempt++ {
		gen, err := r.active.Generate(ctx, prompt, opts)
		if err != nil {
			return nil, err
		}
		obj, err := r.extractor.Extract(gen.Text)
		if err == nil {
			return obj, nil
		}
		lastErr = err
		if !errors.Is(err, domain.ErrParseFailure) {
			break
		}
		slog.Warn("model reply failed JSON extraction",
			slog.String("provider", r.active.Name()),
			slog.Int("attempt", attempt+1),
			slog.Int("parse_retries", r.parseRetries),
			slog.Any("error", err))
	}
	return nil, fmt.Errorf("op=router.generate_json: %w", lastErr)
}

// GenerateJSONInto extracts the model reply into v.
func (r *Router) GenerateJSONInto(ctx domain.Context, prompt string, opts domain.GenerateOptions, v any) error {
	obj, err := r.GenerateJSON(ctx, prompt, opts)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(obj, v); err != nil {
		return fmt.Errorf("op=router.generate_json: %w: %v", domain.ErrParseFailure, err)
	}
	return nil
}
