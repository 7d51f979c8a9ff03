package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrUnavailable     = errors.New("provider unavailable")
	ErrRateLimited     = errors.New("rate limited")
	ErrRejected        = errors.New("request rejected")
	ErrParseFailure    = errors.New("parse failure")
	ErrQueueFull       = errors.New("queue full")
	ErrInternal        = errors.New("internal error")
)

// ScoreKind enumerates the features that consume the scoring engine.
type ScoreKind string

const (
	KindProfileAnalysis ScoreKind = "profile-analysis"
	KindProposalMatch   ScoreKind = "proposal-match"
	KindMissionFit      ScoreKind = "mission-fit"
	KindRankingEntry    ScoreKind = "ranking-entry"
)

// Valid reports whether k is one of the known score kinds.
func (k ScoreKind) Valid() bool {
	switch k {
	case KindProfileAnalysis, KindProposalMatch, KindMissionFit, KindRankingEntry:
		return true
	}
	return false
}

// ScoreRequest identifies what is being scored. Ephemeral, built per call.
type ScoreRequest struct {
	Kind      ScoreKind
	SubjectID string // talent
	TargetID  string // mission or proposal
}

// Key returns the dedup/cache key for the request tuple.
func (r ScoreRequest) Key() string {
	return string(r.Kind) + "/" + r.SubjectID + "/" + r.TargetID
}

// CategoryScores is the fixed named set of sub-scores in [0,100].
// Immutable once computed; produced by the model or by the fallback formula.
type CategoryScores struct {
	SkillsMatch      float64 `json:"skills_match"`
	ExperienceFit    float64 `json:"experience_fit"`
	ProjectRelevance float64 `json:"project_relevance"`
	RequirementsFit  float64 `json:"requirements_fit"`
	SoftSkillsFit    float64 `json:"soft_skills_fit"`
}

// Values returns the sub-scores in declaration order.
func (c CategoryScores) Values() []float64 {
	return []float64{c.SkillsMatch, c.ExperienceFit, c.ProjectRelevance, c.RequirementsFit, c.SoftSkillsFit}
}

// FinalScore is the single aggregated score in [0,100] with its inputs.
type FinalScore struct {
	Score      int            `json:"score"`
	Categories CategoryScores `json:"categories"`
	Reasoning  string         `json:"reasoning,omitempty"`
	Fallback   bool           `json:"fallback,omitempty"`
}

// CacheSchemaVersion must be bumped whenever the aggregation formula or the
// prompt contract changes; entries with an older version are never served as
// fresh, only as last-resort stale fallback.
const CacheSchemaVersion = 3

// CacheEntry is the persisted scoring result for one request tuple.
// Superseded (not mutated) on recompute.
type CacheEntry struct {
	Key           string     `json:"key"`
	Kind          ScoreKind  `json:"kind"`
	SubjectID     string     `json:"subject_id"`
	TargetID      string     `json:"target_id"`
	Payload       FinalScore `json:"payload"`
	SchemaVersion int        `json:"schema_version"`
	ComputedAt    time.Time  `json:"computed_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
}

// FreshAt reports whether the entry can be served as fresh at now.
func (e CacheEntry) FreshAt(now time.Time) bool {
	return e.SchemaVersion == CacheSchemaVersion && now.Before(e.ExpiresAt)
}

// Talent is the structured record returned by the data provider.
// Empty skills/projects/CV is valid, complete data.
type Talent struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Title  string   `json:"title"`
	Bio    string   `json:"bio"`
	Skills []string `json:"skills"`
	HasCV  bool     `json:"has_cv"`
	CVText string   `json:"cv_text,omitempty"`
}

// Mission is a structured mission/job record.
type Mission struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	RequiredSkills []string `json:"required_skills"`
	OptionalSkills []string `json:"optional_skills"`
}

// PortfolioProject is one past project of a talent.
type PortfolioProject struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Skills      []string `json:"skills"`
}

// Skill is a referenced skill record resolved by id.
type Skill struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ScoreStore (port): persistent key-value document store for cache entries.

type ScoreStore interface {
	Get(ctx Context, key string) (CacheEntry, error)
	Put(ctx Context, e CacheEntry) error
	Delete(ctx Context, key string) error
	// DeleteExpiredBefore removes entries whose expiry is before cutoff and
	// returns how many were removed. Used by the TTL sweeper.
	DeleteExpiredBefore(ctx Context, cutoff time.Time) (int64, error)
}

// DataProvider (port): profile/mission data source.

type DataProvider interface {
	GetTalent(ctx Context, id string) (Talent, error)
	GetMission(ctx Context, id string) (Mission, error)
	GetPortfolio(ctx Context, talentID string) ([]PortfolioProject, error)
	GetSkillsByIDs(ctx Context, ids []string) ([]Skill, error)
}

// Provider (port): one text-generation backend.

// GenerateOptions tunes a single generation call.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}

// Usage reports token consumption when the backend provides it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Generation is the result of one generation call.
type Generation struct {
	Text  string
	Usage Usage
}

// StreamChunk is one element of a streaming generation. The final chunk has
// Done=true and carries the fully assembled text plus usage.
type StreamChunk struct {
	Delta string
	Text  string
	Usage Usage
	Done  bool
	Err   error
}

type Provider interface {
	Name() string
	Generate(ctx Context, prompt string, opts GenerateOptions) (Generation, error)
	GenerateStream(ctx Context, prompt string, opts GenerateOptions) (<-chan StreamChunk, error)
	Healthy(ctx Context) bool
}

// Context is an alias so adapters and usecases pass context.Context through
// without the domain package naming it everywhere.
type Context = context.Context
