package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, "openai", cfg.AIProvider)
	assert.Equal(t, 2, cfg.QueueConcurrency)
	assert.Equal(t, 3, cfg.QueueMaxRetries)
	assert.Equal(t, 1024, cfg.QueueMaxPending)
	assert.Equal(t, 5, cfg.BreakerThreshold)
	assert.Equal(t, 30*time.Second, cfg.BreakerCooldown)
	assert.Equal(t, 24*time.Hour, cfg.ScoreTTL)
	assert.Equal(t, 12*time.Hour, cfg.RankingTTL)
	assert.Equal(t, 1, cfg.JSONParseRetries)
	assert.Equal(t, 60, cfg.RateLimitPerMin)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("QUEUE_CONCURRENCY", "8")
	t.Setenv("SCORE_TTL", "2h")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProd())
	assert.Equal(t, "redis", cfg.StoreBackend)
	assert.Equal(t, 8, cfg.QueueConcurrency)
	assert.Equal(t, 2*time.Hour, cfg.ScoreTTL)
}

func TestEnvHelpers(t *testing.T) {
	t.Parallel()
	assert.True(t, Config{AppEnv: "dev"}.IsDev())
	assert.True(t, Config{AppEnv: "DEV"}.IsDev())
	assert.True(t, Config{AppEnv: "prod"}.IsProd())
	assert.True(t, Config{AppEnv: "test"}.IsTest())
	assert.False(t, Config{AppEnv: "prod"}.IsTest())
}

func TestGetAIBackoffConfig_TestModeShrinksWindows(t *testing.T) {
	t.Parallel()
	cfg := Config{
		AppEnv:                   "test",
		AIBackoffMaxElapsedTime:  time.Minute,
		AIBackoffInitialInterval: 2 * time.Second,
		AIBackoffMaxInterval:     20 * time.Second,
		AIBackoffMultiplier:      1.5,
	}
	maxElapsed, initial, maxIv, mult := cfg.GetAIBackoffConfig()
	assert.Equal(t, 2*time.Second, maxElapsed)
	assert.Equal(t, 50*time.Millisecond, initial)
	assert.Equal(t, 500*time.Millisecond, maxIv)
	assert.Equal(t, 2.0, mult)

	cfg.AppEnv = "prod"
	maxElapsed, initial, maxIv, mult = cfg.GetAIBackoffConfig()
	assert.Equal(t, time.Minute, maxElapsed)
	assert.Equal(t, 2*time.Second, initial)
	assert.Equal(t, 20*time.Second, maxIv)
	assert.Equal(t, 1.5, mult)
}

func TestTTLFor(t *testing.T) {
	t.Parallel()
	cfg := Config{ScoreTTL: 24 * time.Hour, RankingTTL: 12 * time.Hour}
	assert.Equal(t, 12*time.Hour, cfg.TTLFor("ranking-entry"))
	assert.Equal(t, 24*time.Hour, cfg.TTLFor("proposal-match"))
	assert.Equal(t, 24*time.Hour, cfg.TTLFor("profile-analysis"))
}

func TestFallbackWeights_Normalize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   FallbackWeights
		want FallbackWeights
	}{
		{
			name: "already normal",
			in:   FallbackWeights{Required: 0.4, Optional: 0.3, Experience: 0.3},
			want: FallbackWeights{Required: 0.4, Optional: 0.3, Experience: 0.3},
		},
		{
			name: "scaled",
			in:   FallbackWeights{Required: 4, Optional: 3, Experience: 3},
			want: FallbackWeights{Required: 0.4, Optional: 0.3, Experience: 0.3},
		},
		{
			name: "zero falls back to defaults",
			in:   FallbackWeights{},
			want: FallbackWeights{Required: 0.4, Optional: 0.3, Experience: 0.3},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := tt.in.Normalize()
			assert.InDelta(t, tt.want.Required, got.Required, 1e-9)
			assert.InDelta(t, tt.want.Optional, got.Optional, 1e-9)
			assert.InDelta(t, tt.want.Experience, got.Experience, 1e-9)
		})
	}
}

func TestLoadScoringTuning(t *testing.T) {
	t.Parallel()

	t.Run("empty path returns defaults", func(t *testing.T) {
		t.Parallel()
		tuning, err := LoadScoringTuning("")
		require.NoError(t, err)
		assert.Equal(t, DefaultScoringTuning(), tuning)
	})

	t.Run("file overrides and normalizes", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "weights.yaml")
		data := []byte("fallback_weights:\n  required: 2\n  optional: 1\n  experience: 1\nmax_reasoning_chars: 300\n")
		require.NoError(t, os.WriteFile(path, data, 0o600))

		tuning, err := LoadScoringTuning(path)
		require.NoError(t, err)
		assert.InDelta(t, 0.5, tuning.Fallback.Required, 1e-9)
		assert.InDelta(t, 0.25, tuning.Fallback.Optional, 1e-9)
		assert.Equal(t, 300, tuning.MaxReasoningChars)
		assert.Equal(t, 6000, tuning.PromptTokenBudget)
	})

	t.Run("missing file errors", func(t *testing.T) {
		t.Parallel()
		_, err := LoadScoringTuning(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("bad yaml errors", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("fallback_weights: ["), 0o600))
		_, err := LoadScoringTuning(path)
		require.Error(t, err)
	})
}
