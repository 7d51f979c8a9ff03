// Package usecase contains application business logic services.
package usecase

import (
	"errors"
	"fmt"

	"github.com/fairyhunter13/talent-match-engine/internal/adapter/ai"
	"github.com/fairyhunter13/talent-match-engine/internal/adapter/observability"
	"github.com/fairyhunter13/talent-match-engine/internal/config"
	"github.com/fairyhunter13/talent-match-engine/internal/domain"
	"github.com/fairyhunter13/talent-match-engine/internal/scorecache"
	"github.com/fairyhunter13/talent-match-engine/internal/scoring"
	"github.com/fairyhunter13/talent-match-engine/internal/taskqueue"
)

// Generation defaults for scoring calls. Low temperature keeps the JSON
// contract stable across retries.
const (
	scoreTemperature = 0.2
	scoreMaxTokens   = 800
)

// ScoreService orchestrates data fetch, queued model calls, normalization,
// aggregation and caching for one score request.
type ScoreService struct {
	Data    domain.DataProvider
	Router  *ai.Router
	Queue   *taskqueue.Queue
	Cache   *scorecache.Cache
	Prompts *scoring.PromptBuilder
	Tuning  config.ScoringTuning

	MaxRetries int
}

// NewScoreService constructs a ScoreService with its dependencies.
func NewScoreService(data domain.DataProvider, router *ai.Router, queue *taskqueue.Queue, cache *scorecache.Cache, tuning config.ScoringTuning, maxRetries int) *ScoreService {
	return &ScoreService{
		Data:       data,
		Router:     router,
		Queue:      queue,
		Cache:      cache,
		Prompts:    scoring.NewPromptBuilder(tuning.PromptTokenBudget),
		Tuning:     tuning,
		MaxRetries: maxRetries,
	}
}

// GetScore returns the score for req, served from cache when possible.
func (s *ScoreService) GetScore(ctx domain.Context, req domain.ScoreRequest) (domain.FinalScore, scorecache.Outcome, error) {
	if err := validateRequest(req); err != nil {
		return domain.FinalScore{}, "", err
	}
	return s.Cache.GetOrCompute(ctx, req, func(cctx domain.Context, staleAvailable bool) (domain.FinalScore, error) {
		return s.compute(cctx, req, staleAvailable)
	})
}

// Invalidate drops the cached score for req.
func (s *ScoreService) Invalidate(ctx domain.Context, req domain.ScoreRequest) error {
	if err := validateRequest(req); err != nil {
		return err
	}
	return s.Cache.Invalidate(ctx, req)
}

// QueueStats exposes queue depth and breaker state for the stats endpoint.
func (s *ScoreService) QueueStats() taskqueue.Stats { return s.Queue.Stats() }

// compute fetches inputs, runs the model through the queue, and falls back
// to the deterministic formula when the model path is unusable. When a stale
// model-derived entry exists the error surfaces instead, so the cache serves
// that entry rather than letting the estimate overwrite it.
func (s *ScoreService) compute(ctx domain.Context, req domain.ScoreRequest, staleAvailable bool) (domain.FinalScore, error) {
	talent, mission, portfolio, err := s.fetchInputs(ctx, req)
	if err != nil {
		return domain.FinalScore{}, err
	}

	score, err := s.modelScore(ctx, req, talent, mission, portfolio)
	if err != nil {
		if staleAvailable || !fallbackEligible(err) {
			return domain.FinalScore{}, err
		}
		observability.LoggerFromContext(ctx).Warn("model path unusable, using deterministic fallback",
			"key", req.Key(),
			"request_id", observability.RequestIDFromContext(ctx),
			"error", err)
		score = scoring.FallbackFinalScore(talent, mission, s.Tuning.Fallback)
	}

	observability.ObserveScore(string(req.Kind), score.Score, score.Fallback)
	return score, nil
}

// modelScore runs one scoring generation through the bounded queue.
func (s *ScoreService) modelScore(ctx domain.Context, req domain.ScoreRequest, talent domain.Talent, mission domain.Mission, portfolio []domain.PortfolioProject) (domain.FinalScore, error) {
	prompt := s.Prompts.Build(req.Kind, talent, mission, portfolio)

	fut := s.Queue.SubmitWithRetries(ctx, s.Queue.NextTaskID(), func(tctx domain.Context) (any, error) {
		raw, err := s.Router.GenerateJSON(tctx, prompt, domain.GenerateOptions{
			Temperature: scoreTemperature,
			MaxTokens:   scoreMaxTokens,
		})
		if err != nil {
			return nil, err
		}
		p, err := scoring.ParseModelPayload(req.Kind, raw, s.Tuning.MaxReasoningChars)
		if err != nil {
			return nil, err
		}
		return domain.FinalScore{
			Score:      scoring.Aggregate(p.Categories.Values()),
			Categories: p.Categories,
			Reasoning:  p.Reasoning,
		}, nil
	}, s.MaxRetries)

	v, err := fut.Wait(ctx)
	if err != nil {
		return domain.FinalScore{}, fmt.Errorf("op=usecase.model_score key=%s: %w", req.Key(), err)
	}
	return v.(domain.FinalScore), nil
}

// fetchInputs loads the talent, the target mission when the request has one,
// and the portfolio. Portfolio failures degrade to an empty portfolio.
func (s *ScoreService) fetchInputs(ctx domain.Context, req domain.ScoreRequest) (domain.Talent, domain.Mission, []domain.PortfolioProject, error) {
	talent, err := s.Data.GetTalent(ctx, req.SubjectID)
	if err != nil {
		return domain.Talent{}, domain.Mission{}, nil, err
	}

	var mission domain.Mission
	if req.TargetID != "" {
		mission, err = s.Data.GetMission(ctx, req.TargetID)
		if err != nil {
			return domain.Talent{}, domain.Mission{}, nil, err
		}
	}

	portfolio, err := s.Data.GetPortfolio(ctx, req.SubjectID)
	if err != nil {
		portfolio = nil
	}
	return talent, mission, portfolio, nil
}

// fallbackEligible reports whether the deterministic formula should answer
// instead of surfacing err. Data and validation errors always surface.
func fallbackEligible(err error) bool {
	switch {
	case errors.Is(err, domain.ErrUnavailable),
		errors.Is(err, domain.ErrRateLimited),
		errors.Is(err, domain.ErrRejected),
		errors.Is(err, domain.ErrParseFailure),
		errors.Is(err, domain.ErrQueueFull),
		errors.Is(err, taskqueue.ErrCircuitOpen),
		errors.Is(err, taskqueue.ErrRetriesExhausted),
		errors.Is(err, taskqueue.ErrQueueClosed):
		return true
	}
	return false
}

func validateRequest(req domain.ScoreRequest) error {
	if !req.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidArgument, req.Kind)
	}
	if req.SubjectID == "" {
		return fmt.Errorf("%w: subject id required", domain.ErrInvalidArgument)
	}
	if req.Kind != domain.KindProfileAnalysis && req.TargetID == "" {
		return fmt.Errorf("%w: target id required for kind %q", domain.ErrInvalidArgument, req.Kind)
	}
	return nil
}
