package ai

import (
	"fmt"
	"strings"

	"github.com/fairyhunter13/talent-match-engine/internal/adapter/ai/ollama"
	"github.com/fairyhunter13/talent-match-engine/internal/adapter/ai/openaiapi"
	"github.com/fairyhunter13/talent-match-engine/internal/config"
	"github.com/fairyhunter13/talent-match-engine/internal/domain"
)

// NewRouterFromConfig builds the Router around the provider named in
// configuration. Adding a backend means adding a case here and nothing else.
func NewRouterFromConfig(cfg config.Config) (*Router, error) {
	var active domain.Provider
	switch strings.ToLower(cfg.AIProvider) {
	case "openai":
		active = openaiapi.New(cfg)
	case "ollama":
		active = ollama.New(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown AI_PROVIDER %q", domain.ErrInvalidArgument, cfg.AIProvider)
	}
	return NewRouter(active,
		WithParseRetries(cfg.JSONParseRetries),
		WithHealthCacheTTL(cfg.HealthCacheTTL),
	), nil
}
