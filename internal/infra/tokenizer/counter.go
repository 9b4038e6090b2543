package tokenizer

import (
	"log/slog"
	"math"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/yanqian/cycleroute/internal/domain/planner"
)

const (
	fallbackEncoding = "cl100k_base"
	charsPerToken    = 4.0
)

// Counter counts tokens with the model's BPE encoding. The encoding is
// loaded on first use; when it cannot be loaded (for example offline) a
// character-based estimate is used instead.
type Counter struct {
	model  string
	logger *slog.Logger

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewCounter builds a counter for model.
func NewCounter(model string, logger *slog.Logger) *Counter {
	return &Counter{model: model, logger: logger.With("component", "tokenizer.counter")}
}

// Count returns the token count of text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	c.once.Do(c.load)
	if c.enc == nil {
		return Estimate(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

func (c *Counter) load() {
	enc, err := tiktoken.EncodingForModel(c.model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
	}
	if err != nil {
		c.logger.Warn("tokenizer unavailable, estimating token counts", "model", c.model, "error", err)
		return
	}
	c.enc = enc
}

// Estimate approximates tokens at four characters per token.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len(text)) / charsPerToken))
}

var _ planner.TokenCounter = (*Counter)(nil)
