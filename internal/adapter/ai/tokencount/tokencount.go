// Package tokencount provides token counting for prompt budgeting.
//
// It uses tiktoken-go so prompts can be trimmed to a configured budget before
// they are dispatched to a generation backend.
package tokencount

import (
	"log/slog"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

const fallbackCharsPerToken = 4

// Counter provides thread-safe token counting with a cached encoding.
type Counter struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// NewCounter creates a new token counter instance.
func NewCounter() *Counter {
	return &Counter{}
}

func (c *Counter) encoding() *tiktoken.Tiktoken {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enc != nil {
		return c.enc
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		slog.Warn("tiktoken encoding unavailable; using byte heuristic", slog.Any("error", err))
		return nil
	}
	c.enc = enc
	return enc
}

// Count returns the number of tokens in text. When the encoding cannot be
// loaded it falls back to a bytes/4 heuristic rather than failing the call.
func (c *Counter) Count(text string) int {
	if enc := c.encoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return (len(text) + fallbackCharsPerToken - 1) / fallbackCharsPerToken
}

// Truncate trims text so it fits within budget tokens. The cut is made on the
// token boundary when the encoding is available.
func (c *Counter) Truncate(text string, budget int) string {
	if budget <= 0 {
		return text
	}
	if enc := c.encoding(); enc != nil {
		toks := enc.Encode(text, nil, nil)
		if len(toks) <= budget {
			return text
		}
		return enc.Decode(toks[:budget])
	}
	max := budget * fallbackCharsPerToken
	if len(text) <= max {
		return text
	}
	return text[:max]
}
