package output

import (
	"github.com/pkoukk/tiktoken-go"
	"github.com/ternarybob/arbor"
)

// TokenCounter counts GPT-style tokens for the output token cap
type TokenCounter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

func (c *tiktokenCounter) Count(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

// estimateCounter approximates tokens as bytes/4, the usual rule of thumb
// for English prose. Used when the BPE ranks cannot be loaded (offline).
type estimateCounter struct{}

func (estimateCounter) Count(text string) int {
	n := len(text) / 4
	if n == 0 && len(text) > 0 {
		n = 1
	}
	return n
}

// NewTokenCounter returns a cl100k_base tiktoken counter, falling back to a
// byte-length estimate when the encoding is unavailable
func NewTokenCounter(logger arbor.ILogger) TokenCounter {
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		logger.Warn().Err(err).Msg("cl100k_base encoding unavailable, falling back to byte estimate")
		return estimateCounter{}
	}
	return &tiktokenCounter{encoding: encoding}
}
