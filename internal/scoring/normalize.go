package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/fairyhunter13/talent-match-engine/internal/domain"
)

// Raw model output is never trusted past this boundary: every value is
// migrated from legacy field names, default-filled, clamped, and truncated
// before it crosses into the typed CategoryScores/FinalScore shapes.

// neutralCategory fills sub-scores the model omitted. A missing category is
// "no signal", not "zero".
const neutralCategory = 50.0

const maxListItems = 5

// ModelPayload is the union of current and legacy category field names seen
// in model replies. Pointers distinguish absent from zero.
type ModelPayload struct {
	SkillsMatch      *float64 `json:"skills_match"`
	ExperienceFit    *float64 `json:"experience_fit"`
	ProjectRelevance *float64 `json:"project_relevance"`
	RequirementsFit  *float64 `json:"requirements_fit"`
	SoftSkillsFit    *float64 `json:"soft_skills_fit"`

	// v1 prompt contract aliases, migrated once at ingestion.
	LegacySkillMatch   *float64 `json:"skill_match"`
	LegacyExperience   *float64 `json:"experience_match"`
	LegacyRelevance    *float64 `json:"relevance"`
	LegacyRequirements *float64 `json:"requirements_match"`
	LegacySoftSkills   *float64 `json:"soft_skills"`

	Reasoning         string `json:"reasoning"`
	LegacyExplanation string `json:"explanation"`

	// Profile-analysis extras; lengths capped during normalization.
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
}

// NormalizedPayload is the trusted post-migration shape.
type NormalizedPayload struct {
	Categories   domain.CategoryScores
	Reasoning    string
	Strengths    []string
	Improvements []string
}

// ParseModelPayload decodes raw JSON for the given kind and normalizes it.
func ParseModelPayload(kind domain.ScoreKind, raw json.RawMessage, maxReasoningChars int) (NormalizedPayload, error) {
	var p ModelPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return NormalizedPayload{}, fmt.Errorf("op=scoring.parse kind=%s: %w: %v", kind, domain.ErrParseFailure, err)
	}
	return p.Normalize(kind, maxReasoningChars), nil
}

// Normalize migrates legacy aliases, fills defaults, and clamps everything.
func (p ModelPayload) Normalize(kind domain.ScoreKind, maxReasoningChars int) NormalizedPayload {
	p.migrateAliases()
	rescale := p.fractionalScale()

	out := NormalizedPayload{
		Categories: domain.CategoryScores{
			SkillsMatch:      normalizeCategory(p.SkillsMatch, rescale),
			ExperienceFit:    normalizeCategory(p.ExperienceFit, rescale),
			ProjectRelevance: normalizeCategory(p.ProjectRelevance, rescale),
			RequirementsFit:  normalizeCategory(p.RequirementsFit, rescale),
			SoftSkillsFit:    normalizeCategory(p.SoftSkillsFit, rescale),
		},
		Reasoning: truncate(strings.TrimSpace(p.Reasoning), maxReasoningChars),
	}
	if kind == domain.KindProfileAnalysis {
		out.Strengths = capList(p.Strengths)
		out.Improvements = capList(p.Improvements)
	}
	return out
}

// migrateAliases applies the v1→v2 field renames exactly once, preferring
// current names when both are present.
func (p *ModelPayload) migrateAliases() {
	if p.SkillsMatch == nil {
		p.SkillsMatch = p.LegacySkillMatch
	}
	if p.ExperienceFit == nil {
		p.ExperienceFit = p.LegacyExperience
	}
	if p.ProjectRelevance == nil {
		p.ProjectRelevance = p.LegacyRelevance
	}
	if p.RequirementsFit == nil {
		p.RequirementsFit = p.LegacyRequirements
	}
	if p.SoftSkillsFit == nil {
		p.SoftSkillsFit = p.LegacySoftSkills
	}
	if p.Reasoning == "" {
		p.Reasoning = p.LegacyExplanation
	}
}

// fractionalScale reports whether every present sub-score lies in [0,1],
// meaning the model answered on a 0-1 scale. A lone 1 next to 0-100
// values is a legitimate score of one and must not become 100.
func (p ModelPayload) fractionalScale() bool {
	present := false
	for _, v := range []*float64{p.SkillsMatch, p.ExperienceFit, p.ProjectRelevance, p.RequirementsFit, p.SoftSkillsFit} {
		if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
			continue
		}
		present = true
		if *v < 0 || *v > 1 {
			return false
		}
	}
	return present
}

// normalizeCategory clamps a sub-score to [0,100]; NaN/absent becomes the
// neutral 50. rescale is the payload-level 0-1 scale decision.
func normalizeCategory(v *float64, rescale bool) float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return neutralCategory
	}
	val := *v
	if rescale {
		val *= 100
	}
	return Clamp(val, 0, 100)
}

func capList(items []string) []string {
	out := make([]string, 0, maxListItems)
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == maxListItems {
			break
		}
	}
	return out
}

// truncate cuts at most n bytes, backing up to the previous rune boundary
// so a multi-byte character is never split.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
