package chunk

import (
	"math"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

var (
	tokenizerOnce sync.Once
	tokenizer     *tiktoken.Tiktoken
)

// loadTokenizer initializes the shared tokenizer once. Initialization may
// fail (the encoding is fetched on first use), in which case estimation
// falls back to character-based approximation.
func loadTokenizer() *tiktoken.Tiktoken {
	tokenizerOnce.Do(func() {
		tke, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return
		}
		tokenizer = tke
	})
	return tokenizer
}

// EstimateTokens estimates how many tokens an LLM would use for text.
// It uses a real tokenizer when available and otherwise approximates as
// one token per four characters, or 1.3 tokens per word when the text is
// shorter than a word boundary makes meaningful. It never fails.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	if tke := loadTokenizer(); tke != nil {
		return len(tke.Encode(text, nil, nil))
	}
	if n := utf8.RuneCountInString(text); n >= 4 {
		return int(math.Ceil(float64(n) / 4))
	}
	return int(math.Ceil(float64(len(strings.Fields(text))) * 1.3))
}

// OptimalChunkSize calculates a recommended chunk size in characters for a
// token limit. A sample of at least 100 characters calibrates the
// character-to-token ratio; otherwise 4 characters per token is assumed.
// 90% of the limit is used to leave a margin for estimation error.
func OptimalChunkSize(maxTokensPerChunk int, textSample string) int {
	charPerToken := 4.0
	if len(textSample) > 100 {
		if estimated := EstimateTokens(textSample); estimated > 0 {
			charPerToken = float64(len(textSample)) / float64(estimated)
		}
	}
	return int(float64(maxTokensPerChunk) * charPerToken * 0.9)
}
