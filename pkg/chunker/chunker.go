// Package chunker splits Markdown documents into embedding-ready,
// token-bounded text windows with sentence-aware overlap.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/aetherfm/station/pkg/config"
)

// Chunk is one emitted window. ContentHash is the sha256 of Text and keys the
// embedding cache; Index is the emission order within the source.
type Chunk struct {
	Text        string
	Index       int
	TokenCount  int
	ContentHash string
	Lang        string
}

// Chunker cuts documents using the configured token bounds.
type Chunker struct {
	minTokens     int
	maxTokens     int
	overlapTokens int
}

// New creates a chunker from config.
func New(cfg *config.ChunkerConfig) *Chunker {
	return &Chunker{
		minTokens:     cfg.MinTokens,
		maxTokens:     cfg.MaxTokens,
		overlapTokens: cfg.OverlapTokens,
	}
}

var (
	fencedCodeRe  = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe  = regexp.MustCompile("`[^`\n]+`")
	imageRe       = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	linkRe        = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	blankRunsRe   = regexp.MustCompile(`\n{3,}`)
	sentenceEndRe = regexp.MustCompile(`([.!?])\s+`)
)

// CleanMarkdown reduces a Markdown body to plain prose: code becomes the
// [code] placeholder, images become [image], links keep their anchor text,
// and runs of three or more newlines collapse to two.
func CleanMarkdown(md string) string {
	s := fencedCodeRe.ReplaceAllString(md, "[code]")
	s = imageRe.ReplaceAllString(s, "[image]")
	s = linkRe.ReplaceAllString(s, "$1")
	s = inlineCodeRe.ReplaceAllString(s, "[code]")
	s = blankRunsRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// SplitSentences splits prose on .!? boundaries followed by whitespace,
// keeping the terminal punctuation with each sentence.
func SplitSentences(text string) []string {
	marked := sentenceEndRe.ReplaceAllString(text, "$1\x00")
	parts := strings.Split(marked, "\x00")
	sentences := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			sentences = append(sentences, p)
		}
	}
	return sentences
}

// Split chunks a Markdown body: clean, sentence-split, then greedily fill
// windows up to the max token bound, carrying the trailing sentences within
// the overlap budget into the next window. Sub-minimum windows are dropped
// unless the whole document fits in a single short window, which is emitted
// as-is.
func (c *Chunker) Split(body string) []Chunk {
	lang, _ := DetectLanguage(body)
	text := CleanMarkdown(body)
	if text == "" {
		return nil
	}
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}
	sentences = c.expandOversize(sentences)

	tokenCounts := make([]int, len(sentences))
	for i, s := range sentences {
		tokenCounts[i] = CountTokens(s)
	}

	var windows []window
	var cur window
	for i := range sentences {
		if len(cur.sentences) > 0 && cur.tokens+tokenCounts[i] > c.maxTokens {
			windows = append(windows, cur)
			cur = c.carryOverlap(cur, tokenCounts)
		}
		cur.sentences = append(cur.sentences, i)
		cur.tokens += tokenCounts[i]
	}
	if len(cur.sentences) > 0 {
		windows = append(windows, cur)
	}

	kept := windows[:0]
	for _, w := range windows {
		if w.tokens >= c.minTokens {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		// Document shorter than min_tokens: emit the single window as-is.
		kept = windows[:1]
	}

	chunks := make([]Chunk, 0, len(kept))
	for i, w := range kept {
		parts := make([]string, 0, len(w.sentences))
		for _, si := range w.sentences {
			parts = append(parts, sentences[si])
		}
		text := strings.Join(parts, " ")
		sum := sha256.Sum256([]byte(text))
		chunks = append(chunks, Chunk{
			Text:        text,
			Index:       i,
			TokenCount:  w.tokens,
			ContentHash: hex.EncodeToString(sum[:]),
			Lang:        lang,
		})
	}
	return chunks
}

// expandOversize rewrites any sentence whose token estimate exceeds the max
// bound as word-boundary pieces that fit it, so no single sentence can push a
// window past the bound.
func (c *Chunker) expandOversize(sentences []string) []string {
	out := make([]string, 0, len(sentences))
	for _, s := range sentences {
		if CountTokens(s) <= c.maxTokens {
			out = append(out, s)
			continue
		}
		out = append(out, c.splitWords(s)...)
	}
	return out
}

// splitWords cuts a sentence on word boundaries into pieces within the max
// token bound.
func (c *Chunker) splitWords(sentence string) []string {
	var pieces []string
	var cur []string
	tokens := 0
	for _, w := range strings.Fields(sentence) {
		wt := CountTokens(w)
		if len(cur) > 0 && tokens+wt > c.maxTokens {
			pieces = append(pieces, strings.Join(cur, " "))
			cur = nil
			tokens = 0
		}
		cur = append(cur, w)
		tokens += wt
	}
	if len(cur) > 0 {
		pieces = append(pieces, strings.Join(cur, " "))
	}
	return pieces
}

// window accumulates sentence indices during splitting.
type window struct {
	sentences []int
	tokens    int
}

// carryOverlap starts the next window with the longest suffix of the emitted
// window whose combined token count fits the overlap budget.
func (c *Chunker) carryOverlap(prev window, tokenCounts []int) window {
	var next window
	carry := 0
	start := len(prev.sentences)
	for i := len(prev.sentences) - 1; i >= 0; i-- {
		si := prev.sentences[i]
		if carry+tokenCounts[si] > c.overlapTokens {
			break
		}
		carry += tokenCounts[si]
		start = i
	}
	for _, si := range prev.sentences[start:] {
		next.sentences = append(next.sentences, si)
		next.tokens += tokenCounts[si]
	}
	return next
}
