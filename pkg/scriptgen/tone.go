package scriptgen

import (
	"sort"
	"strings"

	"github.com/aetherfm/station/pkg/config"
)

// hitPenalty is deducted from the tone score per forbidden-term occurrence.
const hitPenalty = 10

// AnalyzeTone scans a script for the configured forbidden-term sets and
// returns a 0-100 score with the names of the violated categories. A clean
// script scores 100; each keyword hit costs hitPenalty points.
func AnalyzeTone(cfg *config.GenerationConfig, text string) (score int, flags []string) {
	lower := strings.ToLower(text)

	score = 100
	for flag, terms := range cfg.ForbiddenTerms {
		hit := false
		for _, term := range terms {
			n := strings.Count(lower, strings.ToLower(term))
			if n > 0 {
				hit = true
				score -= n * hitPenalty
			}
		}
		if hit {
			flags = append(flags, flag)
		}
	}
	if score < 0 {
		score = 0
	}
	sort.Strings(flags)
	return score, flags
}

// ToneAcceptable reports whether the score clears the configured minimum.
func ToneAcceptable(cfg *config.GenerationConfig, score int) bool {
	return score >= cfg.ToneMinScore
}
