package retrieval

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aetherfm/station/pkg/config"
	"github.com/aetherfm/station/pkg/models"
)

// Keywords feed to_tsquery joined with &, so anything outside letters and
// digits must go before it reaches the lexeme parser.
var keywordSanitizeRe = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// SynthesizeQuery fills the slot's template with the broadcast date taken
// from referenceTime. referenceTime is in-universe time (the station's
// fictional year), never wall-clock, so retrieval relevance tracks the
// programme calendar rather than the real one.
func SynthesizeQuery(gen *config.GenerationConfig, slotType models.SlotType, referenceTime time.Time) string {
	template, ok := gen.SlotTemplates[string(slotType)]
	if !ok {
		template = gen.SlotTemplates["default"]
	}
	r := strings.NewReplacer(
		"{year}", strconv.Itoa(referenceTime.Year()),
		"{month}", referenceTime.Month().String(),
		"{day}", strconv.Itoa(referenceTime.Day()),
	)
	return r.Replace(template)
}

// ExtractKeywords lowercases the query, strips everything but letters and
// digits from each word, drops stop-length words (three characters or fewer),
// and returns up to max distinct keywords in order of first appearance.
func ExtractKeywords(text string, max int) []string {
	seen := make(map[string]struct{})
	var keywords []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = keywordSanitizeRe.ReplaceAllString(w, "")
		if len(w) <= 3 {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		keywords = append(keywords, w)
		if len(keywords) == max {
			break
		}
	}
	return keywords
}
