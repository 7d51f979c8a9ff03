package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FallbackWeights are the normalized weights combining the deterministic
// skill-overlap components into a final score. They must sum to 1 after
// normalization.
type FallbackWeights struct {
	Required   float64 `yaml:"required"`
	Optional   float64 `yaml:"optional"`
	Experience float64 `yaml:"experience"`
}

// ScoringTuning is the optional YAML-configurable scoring knobs.
type ScoringTuning struct {
	Fallback FallbackWeights `yaml:"fallback_weights"`
	// MaxReasoningChars caps reasoning text carried alongside scores.
	MaxReasoningChars int `yaml:"max_reasoning_chars"`
	// PromptTokenBudget caps prompt size before dispatch.
	PromptTokenBudget int `yaml:"prompt_token_budget"`
}

// DefaultScoringTuning returns the built-in tuning values.
func DefaultScoringTuning() ScoringTuning {
	return ScoringTuning{
		Fallback:          FallbackWeights{Required: 0.4, Optional: 0.3, Experience: 0.3},
		MaxReasoningChars: 200,
		PromptTokenBudget: 6000,
	}
}

// Normalize scales the weights so they sum to 1. Zero or negative totals
// fall back to the defaults.
func (w FallbackWeights) Normalize() FallbackWeights {
	sum := w.Required + w.Optional + w.Experience
	if sum <= 0 {
		return DefaultScoringTuning().Fallback
	}
	return FallbackWeights{
		Required:   w.Required / sum,
		Optional:   w.Optional / sum,
		Experience: w.Experience / sum,
	}
}

// LoadScoringTuning reads tuning overrides from a YAML file. An empty path
// returns the defaults.
func LoadScoringTuning(path string) (ScoringTuning, error) {
	t := DefaultScoringTuning()
	if path == "" {
		return t, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return ScoringTuning{}, fmt.Errorf("op=config.LoadScoringTuning: %w", err)
	}
	if err := yaml.Unmarshal(b, &t); err != nil {
		return ScoringTuning{}, fmt.Errorf("op=config.LoadScoringTuning: %w", err)
	}
	if t.MaxReasoningChars <= 0 {
		t.MaxReasoningChars = DefaultScoringTuning().MaxReasoningChars
	}
	if t.PromptTokenBudget <= 0 {
		t.PromptTokenBudget = DefaultScoringTuning().PromptTokenBudget
	}
	t.Fallback = t.Fallback.Normalize()
	return t, nil
}
