package usecase

import (
	"fmt"

	"github.com/fairyhunter13/talent-match-engine/internal/domain"
)

// AnalyzeProfileStream streams a free-form profile analysis for one talent.
// Streaming bypasses the queue and the cache; the caller sees deltas as the
// provider emits them, with the final chunk carrying the assembled text.
func (s *ScoreService) AnalyzeProfileStream(ctx domain.Context, talentID string) (<-chan domain.StreamChunk, error) {
	if talentID == "" {
		return nil, fmt.Errorf("%w: talent id required", domain.ErrInvalidArgument)
	}
	talent, err := s.Data.GetTalent(ctx, talentID)
	if err != nil {
		return nil, err
	}
	portfolio, err := s.Data.GetPortfolio(ctx, talentID)
	if err != nil {
		portfolio = nil
	}

	prompt := s.Prompts.BuildNarrative(talent, portfolio)
	ch, err := s.Router.GenerateStream(ctx, prompt, domain.GenerateOptions{
		Temperature: 0.6,
		MaxTokens:   1024,
	})
	if err != nil {
		return nil, fmt.Errorf("op=usecase.analyze_stream talent=%s: %w", talentID, err)
	}
	return ch, nil
}
