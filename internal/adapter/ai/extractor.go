// Package ai provides the provider router and response extraction used to
// turn raw model output into structured data.
package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/fairyhunter13/talent-match-engine/internal/domain"
)

const parseSnippetLimit = 256

// Extractor parses and repairs raw model text into a JSON object.
// It performs no retries; retry policy belongs to the caller.
type Extractor struct{}

// NewExtractor creates a new response extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract returns the JSON object embedded in raw, or ErrParseFailure with a
// truncated snippet of the offending text for logging.
func (e *Extractor) Extract(raw string) (json.RawMessage, error) {
	candidate := e.stripMarkdownFences(raw)
	if obj, ok := tryParse(candidate); ok {
		return obj, nil
	}

	// The whole string failed; try the balanced substring between the first
	// '{' and its matching '}'.
	if sub := e.extractObject(candidate); sub != "" {
		if obj, ok := tryParse(sub); ok {
			return obj, nil
		}
		// Last resort: repair common model formatting mistakes.
		repaired := e.repairJSON(sub)
		if obj, ok := tryParse(repaired); ok {
			return obj, nil
		}
	}

	return nil, fmt.Errorf("op=extract: %w: %s", domain.ErrParseFailure, snippet(raw))
}

// Unmarshal extracts the JSON object in raw and decodes it into v.
func (e *Extractor) Unmarshal(raw string, v any) error {
	obj, err := e.Extract(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(obj, v); err != nil {
		return fmt.Errorf("op=extract.decode: %w: %s", domain.ErrParseFailure, snippet(string(obj)))
	}
	return nil
}

// IsValidJSON checks if a string is valid JSON.
func (e *Extractor) IsValidJSON(s string) bool {
	var temp any
	return json.Unmarshal([]byte(s), &temp) == nil
}

// stripMarkdownFences removes leading/trailing markdown code-fence markers.
func (e *Extractor) stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// extractObject returns the balanced substring from the first '{' to its
// matching '}', or "" when no object boundary exists.
func (e *Extractor) extractObject(s string) string {
	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	// Unbalanced; fall back to first-{ last-} slice.
	end := strings.LastIndex(s, "}")
	if end > start {
		return s[start : end+1]
	}
	return ""
}

var (
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)
	unquotedKeyRe   = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
)

// repairJSON fixes trailing commas and unquoted keys, the two failure modes
// models actually produce.
func (e *Extractor) repairJSON(s string) string {
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	s = unquotedKeyRe.ReplaceAllString(s, `$1"$2":`)
	return s
}

func tryParse(s string) (json.RawMessage, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s[0] != '{' {
		return nil, false
	}
	var probe map[string]any
	if err := json.Unmarshal([]byte(s), &probe); err != nil {
		return nil, false
	}
	return json.RawMessage(s), true
}

// snippet bounds raw model text for error messages, cutting on a rune
// boundary so a multi-byte character is never split.
func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= parseSnippetLimit {
		return s
	}
	cut := parseSnippetLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
