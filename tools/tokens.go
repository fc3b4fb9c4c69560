// Token counting for output caps.
//
// Information Hiding:
// - BPE encoding (tiktoken cl100k_base) loaded lazily and cached
// - Word-count fallback when the encoding cannot be loaded offline

package tools

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/richinex/inkwell/logging"
)

// TokenCounter counts and truncates text by model tokens.
type TokenCounter interface {
	Count(text string) int
	Truncate(text string, maxTokens int) string
}

type tiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

func (c tiktokenCounter) Count(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

func (c tiktokenCounter) Truncate(text string, maxTokens int) string {
	tokens := c.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return c.encoding.Decode(tokens[:maxTokens])
}

// WordCounter approximates tokens by whitespace-separated words.
type WordCounter struct{}

// Count returns the number of words in text.
func (WordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

// Truncate keeps the first maxTokens words.
func (WordCounter) Truncate(text string, maxTokens int) string {
	words := strings.Fields(text)
	if len(words) <= maxTokens {
		return text
	}
	return strings.Join(words[:maxTokens], " ")
}

var (
	defaultCounterOnce sync.Once
	defaultCounter     TokenCounter
)

// DefaultTokenCounter returns the cl100k_base counter, or WordCounter if the
// encoding is unavailable.
func DefaultTokenCounter() TokenCounter {
	defaultCounterOnce.Do(func() {
		encoding, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			logger := logging.Component("tools")
			logger.Warn().Err(err).Msg("tiktoken encoding unavailable, counting words instead")
			defaultCounter = WordCounter{}
			return
		}
		defaultCounter = tiktokenCounter{encoding: encoding}
	})
	return defaultCounter
}
