package ai

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/talent-match-engine/internal/domain"
)

func TestExtractor_Extract(t *testing.T) {
	t.Parallel()
	e := NewExtractor()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "clean json", raw: `{"score": 80}`, want: `{"score": 80}`},
		{name: "surrounding whitespace", raw: "  \n{\"score\": 80}\n  ", want: `{"score": 80}`},
		{
			name: "json fences",
			raw:  "```json\n{\"score\": 80}\n```",
			want: `{"score": 80}`,
		},
		{
			name: "bare fences",
			raw:  "```\n{\"score\": 80}\n```",
			want: `{"score": 80}`,
		},
		{
			name: "prose around object",
			raw:  `Sure! Here is the result: {"score": 80} Hope that helps.`,
			want: `{"score": 80}`,
		},
		{
			name: "nested object in prose",
			raw:  `Result: {"a": {"b": 1}, "c": 2} done`,
			want: `{"a": {"b": 1}, "c": 2}`,
		},
		{
			name: "braces inside strings",
			raw:  `{"note": "uses {braces} and \"quotes\"", "score": 5}`,
			want: `{"note": "uses {braces} and \"quotes\"", "score": 5}`,
		},
		{
			name: "trailing comma repaired",
			raw:  `{"score": 80,}`,
			want: `{"score": 80}`,
		},
		{
			name: "unquoted keys repaired",
			raw:  `{score: 80, reasoning: "ok"}`,
			want: `{"score": 80, "reasoning": "ok"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := e.Extract(tt.raw)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestExtractor_ExtractFailures(t *testing.T) {
	t.Parallel()
	e := NewExtractor()

	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "plain prose", raw: "I could not produce a score."},
		{name: "array only", raw: `[1, 2, 3]`},
		{name: "hopelessly broken", raw: `{"score": `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := e.Extract(tt.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrParseFailure)
		})
	}
}

func TestExtractor_ErrorSnippetTruncated(t *testing.T) {
	t.Parallel()
	e := NewExtractor()
	long := "no json here "
	for len(long) < 2000 {
		long += long
	}
	_, err := e.Extract(long)
	require.Error(t, err)
	assert.Less(t, len(err.Error()), 600)
}

func TestExtractor_ErrorSnippetKeepsRunesWhole(t *testing.T) {
	t.Parallel()
	// Multi-byte runes straddle the snippet limit; the cut must land on a
	// rune boundary so the error message stays valid UTF-8.
	long := strings.Repeat("日", parseSnippetLimit)
	got := snippet(long)
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len(got), parseSnippetLimit+len("..."))
}

func TestExtractor_Unmarshal(t *testing.T) {
	t.Parallel()
	e := NewExtractor()
	var out struct {
		Score int `json:"score"`
	}
	require.NoError(t, e.Unmarshal("```json\n{\"score\": 42}\n```", &out))
	assert.Equal(t, 42, out.Score)

	err := e.Unmarshal(`{"score": "not a number"}`, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrParseFailure)
}

func TestExtractor_IsValidJSON(t *testing.T) {
	t.Parallel()
	e := NewExtractor()
	assert.True(t, e.IsValidJSON(`{"a":1}`))
	assert.True(t, e.IsValidJSON(`[1,2]`))
	assert.False(t, e.IsValidJSON(`{a:1}`))
}
