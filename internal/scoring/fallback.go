package scoring

import (
	"math"
	"strings"

	"github.com/fairyhunter13/talent-match-engine/internal/config"
	"github.com/fairyhunter13/talent-match-engine/internal/domain"
)

// Neutral prior when a mission lists no required skills: absence of
// requirements is not evidence of a mismatch.
const neutralRequiredMatch = 0.5

// Experience heuristic buckets keyed on talent skill count.
const experienceBase = 0.2

// FallbackResult carries the deterministic score components for inspection.
type FallbackResult struct {
	RequiredMatch   float64
	OptionalMatch   float64
	ExperienceMatch float64
	Score           int
}

// FallbackScore computes the deterministic skill-overlap score used when the
// generation provider is unavailable or a model call failed after retries.
// It produces a score for every request, even with zero data.
func FallbackScore(talent domain.Talent, mission domain.Mission, w config.FallbackWeights) FallbackResult {
	w = w.Normalize()
	req := overlapRatio(mission.RequiredSkills, talent.Skills, neutralRequiredMatch)
	opt := overlapRatio(mission.OptionalSkills, talent.Skills, 0)
	exp := experienceMatch(talent)

	score := int(math.Round(100 * (w.Required*req + w.Optional*opt + w.Experience*exp)))
	return FallbackResult{
		RequiredMatch:   req,
		OptionalMatch:   opt,
		ExperienceMatch: exp,
		Score:           clampInt(score, 0, 100),
	}
}

// FallbackFinalScore wraps FallbackScore into the engine's result shape.
// Category sub-scores are projected from the overlap components so callers
// see the same schema on both code paths.
func FallbackFinalScore(talent domain.Talent, mission domain.Mission, w config.FallbackWeights) domain.FinalScore {
	r := FallbackScore(talent, mission, w)
	return domain.FinalScore{
		Score: r.Score,
		Categories: domain.CategoryScores{
			SkillsMatch:      math.Round(100 * r.RequiredMatch),
			ExperienceFit:    math.Round(100 * r.ExperienceMatch),
			ProjectRelevance: math.Round(100 * r.OptionalMatch),
			RequirementsFit:  math.Round(100 * r.RequiredMatch),
			SoftSkillsFit:    math.Round(100 * r.ExperienceMatch),
		},
		Reasoning: "skills-overlap estimate (no model available)",
		Fallback:  true,
	}
}

// overlapRatio returns the fraction of wanted skills matched by any owned
// skill; each wanted skill is counted once. emptyDefault is returned when
// nothing is wanted.
func overlapRatio(wanted, owned []string, emptyDefault float64) float64 {
	wanted = normalizeSkills(wanted)
	if len(wanted) == 0 {
		return emptyDefault
	}
	owned = normalizeSkills(owned)
	matched := 0
	for _, w := range wanted {
		if skillMatches(w, owned) {
			matched++
		}
	}
	return float64(matched) / float64(len(wanted))
}

// skillMatches reports whether want equals, contains, or is contained by any
// owned skill. Comparison happens on normalized names.
func skillMatches(want string, owned []string) bool {
	for _, o := range owned {
		if want == o || strings.Contains(want, o) || strings.Contains(o, want) {
			return true
		}
	}
	return false
}

// experienceMatch buckets talent breadth into [0,1]: base 0.2, plus the
// highest applicable skill-count bonus, plus 0.1 when a CV is present.
func experienceMatch(t domain.Talent) float64 {
	v := experienceBase
	n := len(normalizeSkills(t.Skills))
	switch {
	case n >= 10:
		v += 0.5
	case n >= 5:
		v += 0.35
	case n >= 2:
		v += 0.2
	case n > 0:
		v += 0.1
	}
	if t.HasCV {
		v += 0.1
	}
	return Clamp(v, 0, 1)
}

func normalizeSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
