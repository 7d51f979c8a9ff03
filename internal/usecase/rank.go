package usecase

import (
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/talent-match-engine/internal/domain"
)

// rankFanout bounds concurrent per-mission scoring during a ranking call.
// The bounded queue still serializes provider calls underneath.
const rankFanout = 4

// RankedMission is one row of a ranking response.
type RankedMission struct {
	MissionID string            `json:"mission_id"`
	Score     int               `json:"score"`
	Fallback  bool              `json:"fallback,omitempty"`
	Details   domain.FinalScore `json:"details"`
}

// RankMissions scores a talent against each mission and returns the missions
// ordered best first. Ties break on mission id so the order is stable.
func (s *ScoreService) RankMissions(ctx domain.Context, talentID string, missionIDs []string, limit int) ([]RankedMission, error) {
	if talentID == "" {
		return nil, fmt.Errorf("%w: talent id required", domain.ErrInvalidArgument)
	}
	if len(missionIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one mission id required", domain.ErrInvalidArgument)
	}

	out := make([]RankedMission, len(missionIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rankFanout)
	for i, missionID := range missionIDs {
		g.Go(func() error {
			req := domain.ScoreRequest{
				Kind:      domain.KindRankingEntry,
				SubjectID: talentID,
				TargetID:  missionID,
			}
			score, _, err := s.GetScore(gctx, req)
			if err != nil {
				return fmt.Errorf("op=usecase.rank mission=%s: %w", missionID, err)
			}
			out[i] = RankedMission{
				MissionID: missionID,
				Score:     score.Score,
				Fallback:  score.Fallback,
				Details:   score,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].MissionID < out[j].MissionID
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
