// Command server starts the talent match engine HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	ai "github.com/fairyhunter13/talent-match-engine/internal/adapter/ai"
	httpserver "github.com/fairyhunter13/talent-match-engine/internal/adapter/httpserver"
	"github.com/fairyhunter13/talent-match-engine/internal/adapter/observability"
	"github.com/fairyhunter13/talent-match-engine/internal/adapter/profileapi"
	"github.com/fairyhunter13/talent-match-engine/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/talent-match-engine/internal/adapter/repo/redisstore"
	"github.com/fairyhunter13/talent-match-engine/internal/app"
	"github.com/fairyhunter13/talent-match-engine/internal/config"
	"github.com/fairyhunter13/talent-match-engine/internal/domain"
	"github.com/fairyhunter13/talent-match-engine/internal/scorecache"
	"github.com/fairyhunter13/talent-match-engine/internal/taskqueue"
	"github.com/fairyhunter13/talent-match-engine/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()

	// Score store: postgres (default) or redis.
	var (
		store      domain.ScoreStore
		storeCheck func(ctx context.Context) error
	)
	switch strings.ToLower(cfg.StoreBackend) {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		store = redisstore.New(rdb)
		storeCheck = app.RedisCheck(rdb)
	default:
		pool, perr := postgres.NewPool(ctx, cfg.DBURL)
		if perr != nil {
			slog.Error("db connect failed", slog.Any("error", perr))
			os.Exit(1)
		}
		defer pool.Close()
		repo := postgres.NewScoreRepo(pool)
		if serr := repo.EnsureSchema(ctx); serr != nil {
			slog.Error("schema init failed", slog.Any("error", serr))
			os.Exit(1)
		}
		store = repo
		storeCheck = app.PostgresCheck(pool)
	}

	// AI provider router.
	router, err := ai.NewRouterFromConfig(cfg)
	if err != nil {
		slog.Error("provider init failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Bounded queue with circuit breaker in front of the provider.
	queue := taskqueue.New(taskqueue.Config{
		Concurrency:      cfg.QueueConcurrency,
		MaxRetries:       cfg.QueueMaxRetries,
		InitialDelay:     cfg.QueueInitialDelay,
		MaxPending:       cfg.QueueMaxPending,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerCooldown:  cfg.BreakerCooldown,
		Classify:         taskqueue.Classifier(classifyTaskErr),
	})
	defer queue.Close()

	// Cache layer plus periodic TTL sweep.
	cache := scorecache.New(store, func(kind domain.ScoreKind) time.Duration {
		return cfg.TTLFor(string(kind))
	}, cfg.ComputeTimeout)
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go scorecache.NewSweeper(store, cfg.SweepInterval).RunPeriodic(sweepCtx)

	// Scoring tuning, optionally overridden from a YAML file.
	tuning := config.DefaultScoringTuning()
	if cfg.WeightsFile != "" {
		tuning, err = config.LoadScoringTuning(cfg.WeightsFile)
		if err != nil {
			slog.Error("weights file load failed", slog.String("path", cfg.WeightsFile), slog.Any("error", err))
			os.Exit(1)
		}
	}

	data := profileapi.New(cfg.ProfileAPIBaseURL, cfg.ProfileAPITimeout)
	scores := usecase.NewScoreService(data, router, queue, cache, tuning, cfg.QueueMaxRetries)

	srv := httpserver.NewServer(cfg, scores)
	srv.StoreCheck = storeCheck
	srv.ProviderCheck = app.ProviderCheck(router)

	handler := app.BuildRouter(cfg, srv)
	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}

// classifyTaskErr maps task errors onto retry and breaker decisions.
func classifyTaskErr(err error) (retryable, breakerRelevant bool) {
	return domain.Retryable(err), domain.BreakerRelevant(err)
}
