package chunker

import (
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// CountTokens estimates the token count of text using the cl100k BPE
// encoding. When the encoding is unavailable (offline environments), it falls
// back to the ceil(words * 1.3) approximation.
func CountTokens(text string) int {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err != nil {
			slog.Warn("BPE encoding unavailable, using word-count token estimator", "error", err)
			return
		}
		encoding = enc
	})

	if encoding != nil {
		return len(encoding.Encode(text, nil, nil))
	}
	words := len(strings.Fields(text))
	return int(math.Ceil(float64(words) * 1.3))
}
