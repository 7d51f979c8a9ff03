package scoring

import (
	"fmt"
	"strings"

	"github.com/fairyhunter13/talent-match-engine/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/talent-match-engine/internal/domain"
	"github.com/fairyhunter13/talent-match-engine/pkg/textx"
)

// PromptBuilder renders per-kind scoring prompts, keeping them inside the
// configured token budget.
type PromptBuilder struct {
	counter     *tokencount.Counter
	tokenBudget int
}

// NewPromptBuilder constructs a PromptBuilder with the given token budget.
func NewPromptBuilder(tokenBudget int) *PromptBuilder {
	return &PromptBuilder{counter: tokencount.NewCounter(), tokenBudget: tokenBudget}
}

const promptContract = `CRITICAL: Respond with ONLY valid JSON following this structure:
{
  "skills_match": 72,
  "experience_fit": 64,
  "project_relevance": 58,
  "requirements_fit": 70,
  "soft_skills_fit": 61,
  "reasoning": "One or two sentences, max 200 characters"
}

Rules:
- All scores: 0-100 integers (0=no fit, 100=perfect fit)
- reasoning: concise and professional, max 200 characters
- NO markdown, explanations, or chain-of-thought outside the JSON`

// Build renders the prompt for one score request.
func (b *PromptBuilder) Build(kind domain.ScoreKind, talent domain.Talent, mission domain.Mission, portfolio []domain.PortfolioProject) string {
	var sb strings.Builder
	switch kind {
	case domain.KindProfileAnalysis:
		sb.WriteString("You are a senior recruitment expert. Analyze the candidate profile below and rate it per category.\n\n")
	case domain.KindProposalMatch:
		sb.WriteString("You are a senior recruitment expert. Rate how well this candidate's proposal fits the mission below, per category.\n\n")
	case domain.KindMissionFit, domain.KindRankingEntry:
		sb.WriteString("You are a senior recruitment expert. Rate how well this candidate fits the mission below, per category.\n\n")
	}

	sb.WriteString("Candidate:\n")
	fmt.Fprintf(&sb, "Name: %s\nTitle: %s\n", textx.SanitizeText(talent.Name), textx.SanitizeText(talent.Title))
	if talent.Bio != "" {
		fmt.Fprintf(&sb, "Bio: %s\n", textx.SanitizeText(talent.Bio))
	}
	if len(talent.Skills) > 0 {
		fmt.Fprintf(&sb, "Skills: %s\n", strings.Join(talent.Skills, ", "))
	} else {
		sb.WriteString("Skills: (none listed)\n")
	}
	if talent.CVText != "" {
		// CV text dominates the budget; trim it first.
		cv := b.counter.Truncate(textx.SanitizeText(talent.CVText), b.cvBudget(sb.String()))
		fmt.Fprintf(&sb, "CV:\n%s\n", cv)
	}

	if len(portfolio) > 0 {
		sb.WriteString("\nPast projects:\n")
		for i, p := range portfolio {
			if i == maxListItems {
				break
			}
			fmt.Fprintf(&sb, "- %s: %s (%s)\n",
				textx.SanitizeText(p.Title),
				textx.CollapseWhitespace(textx.SanitizeText(p.Description)),
				strings.Join(p.Skills, ", "))
		}
	}

	if kind != domain.KindProfileAnalysis || mission.ID != "" {
		sb.WriteString("\nMission:\n")
		fmt.Fprintf(&sb, "Title: %s\nDescription: %s\n",
			textx.SanitizeText(mission.Title),
			textx.CollapseWhitespace(textx.SanitizeText(mission.Description)))
		if len(mission.RequiredSkills) > 0 {
			fmt.Fprintf(&sb, "Required skills: %s\n", strings.Join(mission.RequiredSkills, ", "))
		}
		if len(mission.OptionalSkills) > 0 {
			fmt.Fprintf(&sb, "Nice-to-have skills: %s\n", strings.Join(mission.OptionalSkills, ", "))
		}
	}

	sb.WriteString("\n")
	sb.WriteString(promptContract)
	return b.counter.Truncate(sb.String(), b.tokenBudget)
}

// BuildNarrative renders the free-form profile analysis prompt used by the
// streaming endpoint. No JSON contract; the reply is prose for the user.
func (b *PromptBuilder) BuildNarrative(talent domain.Talent, portfolio []domain.PortfolioProject) string {
	var sb strings.Builder
	sb.WriteString("You are a senior recruitment expert. Write a short, concrete analysis of the candidate profile below: strengths, gaps, and how to improve the profile. Plain text, no markdown, at most four paragraphs.\n\n")

	sb.WriteString("Candidate:\n")
	fmt.Fprintf(&sb, "Name: %s\nTitle: %s\n", textx.SanitizeText(talent.Name), textx.SanitizeText(talent.Title))
	if talent.Bio != "" {
		fmt.Fprintf(&sb, "Bio: %s\n", textx.SanitizeText(talent.Bio))
	}
	if len(talent.Skills) > 0 {
		fmt.Fprintf(&sb, "Skills: %s\n", strings.Join(talent.Skills, ", "))
	}
	if talent.CVText != "" {
		cv := b.counter.Truncate(textx.SanitizeText(talent.CVText), b.cvBudget(sb.String()))
		fmt.Fprintf(&sb, "CV:\n%s\n", cv)
	}
	if len(portfolio) > 0 {
		sb.WriteString("\nPast projects:\n")
		for i, p := range portfolio {
			if i == maxListItems {
				break
			}
			fmt.Fprintf(&sb, "- %s: %s\n",
				textx.SanitizeText(p.Title),
				textx.CollapseWhitespace(textx.SanitizeText(p.Description)))
		}
	}
	return b.counter.Truncate(sb.String(), b.tokenBudget)
}

// cvBudget leaves room for what has been written so far plus the contract.
func (b *PromptBuilder) cvBudget(written string) int {
	used := b.counter.Count(written) + b.counter.Count(promptContract)
	remaining := b.tokenBudget - used - 200 // headroom for mission section
	if remaining < 256 {
		remaining = 256
	}
	return remaining
}
