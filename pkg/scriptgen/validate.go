package scriptgen

import (
	"regexp"
	"strings"

	"github.com/aetherfm/station/pkg/faults"
)

// forbiddenMarkers are structural artifacts that must never appear in spoken
// copy. Matched case-insensitively at line starts and inline for brackets.
var forbiddenMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\[scene:`),
	regexp.MustCompile(`(?i)\[cut to:`),
	regexp.MustCompile(`(?im)^\s*title:`),
	regexp.MustCompile(`(?im)^\s*segment \d+:`),
}

// scriptWordCount counts words in the script body, ignoring citation tags so
// sources don't inflate the spoken length.
func scriptWordCount(text string) int {
	return len(strings.Fields(sourceTagRe.ReplaceAllString(text, "")))
}

// ValidateScript enforces the single-speaker output contract: word count
// within ±20% of the slot target and no structural markers. Violations are
// SCRIPT_INVALID semantic failures.
func ValidateScript(text string, wordTarget int) error {
	words := scriptWordCount(text)
	low := wordTarget * 80 / 100
	high := wordTarget * 120 / 100
	if words < low || words > high {
		return faults.Semanticf(faults.CodeScriptInvalid,
			"script is %d words, target %d (allowed %d-%d)", words, wordTarget, low, high)
	}

	for _, re := range forbiddenMarkers {
		if loc := re.FindStringIndex(text); loc != nil {
			return faults.Semanticf(faults.CodeScriptInvalid,
				"script contains structural marker %q", text[loc[0]:loc[1]])
		}
	}
	return nil
}

// turnRe matches a dialogue line: an all-caps speaker label followed by a
// colon and the utterance.
var turnRe = regexp.MustCompile(`^([A-Z][A-Z0-9 _.'-]*):\s*(.+)$`)

// ParseTurns rebuilds the ordered turn list from SPEAKER: utterance lines.
// Continuation lines without a label are appended to the previous turn;
// non-dialogue lines before the first turn are dropped.
func ParseTurns(text string) []Turn {
	var turns []Turn
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := turnRe.FindStringSubmatch(line); m != nil {
			turns = append(turns, Turn{
				Speaker: strings.TrimSpace(m[1]),
				Text:    strings.TrimSpace(m[2]),
			})
			continue
		}
		if len(turns) > 0 {
			turns[len(turns)-1].Text += " " + line
		}
	}
	return turns
}

// ValidateConversation runs the dialogue quality checks: at least 4 turns,
// at least 2 distinct speakers, fewer than 30% of turns under 20 characters,
// fewer than 20% over 500 characters, and speaker participation balanced so
// no speaker has more than 3x the turns of the quietest.
func ValidateConversation(turns []Turn) error {
	if len(turns) < 4 {
		return faults.Semanticf(faults.CodeScriptInvalid,
			"dialogue has %d turns, need at least 4", len(turns))
	}

	counts := make(map[string]int)
	short, long := 0, 0
	for _, t := range turns {
		counts[t.Speaker]++
		if len(t.Text) < 20 {
			short++
		}
		if len(t.Text) > 500 {
			long++
		}
	}

	if len(counts) < 2 {
		return faults.Semanticf(faults.CodeScriptInvalid,
			"dialogue has %d distinct speakers, need at least 2", len(counts))
	}
	if short*10 >= len(turns)*3 {
		return faults.Semanticf(faults.CodeScriptInvalid,
			"%d of %d turns are under 20 characters", short, len(turns))
	}
	if long*10 >= len(turns)*2 {
		return faults.Semanticf(faults.CodeScriptInvalid,
			"%d of %d turns are over 500 characters", long, len(turns))
	}

	minCount, maxCount := len(turns), 0
	for _, n := range counts {
		minCount = min(minCount, n)
		maxCount = max(maxCount, n)
	}
	if maxCount > 3*minCount {
		return faults.Semanticf(faults.CodeScriptInvalid,
			"unbalanced participation: most active speaker has %d turns, least active %d", maxCount, minCount)
	}
	return nil
}
