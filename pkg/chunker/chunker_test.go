package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetherfm/station/pkg/config"
)

func newTestChunker(minTokens, maxTokens, overlapTokens int) *Chunker {
	return New(&config.ChunkerConfig{
		MinTokens:     minTokens,
		MaxTokens:     maxTokens,
		OverlapTokens: overlapTokens,
	})
}

func TestCleanMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "fenced code block replaced",
			input:    "Before.\n```go\nfunc main() {}\n```\nAfter.",
			expected: "Before.\n[code]\nAfter.",
		},
		{
			name:     "inline code replaced",
			input:    "Run `station serve` to start.",
			expected: "Run [code] to start.",
		},
		{
			name:     "image replaced",
			input:    "Look: ![the tower](img/tower.png) impressive.",
			expected: "Look: [image] impressive.",
		},
		{
			name:     "link keeps anchor text",
			input:    "See [the archive](https://example.com/archive) for details.",
			expected: "See the archive for details.",
		},
		{
			name:     "blank runs collapsed",
			input:    "One.\n\n\n\nTwo.",
			expected: "One.\n\nTwo.",
		},
		{
			name:     "surrounding whitespace trimmed",
			input:    "\n\n  Hello.  \n\n",
			expected: "Hello.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanMarkdown(tt.input))
		})
	}
}

func TestSplitSentences(t *testing.T) {
	t.Run("splits on terminal punctuation", func(t *testing.T) {
		got := SplitSentences("First sentence. Second one! Third? Fourth.")
		require.Len(t, got, 4)
		assert.Equal(t, "First sentence.", got[0])
		assert.Equal(t, "Second one!", got[1])
		assert.Equal(t, "Third?", got[2])
		assert.Equal(t, "Fourth.", got[3])
	})

	t.Run("no terminal punctuation yields one sentence", func(t *testing.T) {
		got := SplitSentences("a fragment without an ending")
		require.Len(t, got, 1)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, SplitSentences(""))
		assert.Empty(t, SplitSentences("   \n  "))
	})
}

func TestSplit(t *testing.T) {
	// Sentences of a known word count so window boundaries are predictable
	// regardless of which token estimator is active.
	sentence := func(i, words int) string {
		parts := make([]string, words)
		for w := range parts {
			parts[w] = fmt.Sprintf("word%d", i)
		}
		return strings.Join(parts, " ") + "."
	}

	t.Run("document fitting one window yields one chunk", func(t *testing.T) {
		c := newTestChunker(1, 800, 50)
		doc := sentence(0, 20) + " " + sentence(1, 20)

		chunks := c.Split(doc)
		require.Len(t, chunks, 1)
		assert.Equal(t, 0, chunks[0].Index)
		assert.Contains(t, chunks[0].Text, "word0")
		assert.Contains(t, chunks[0].Text, "word1")
	})

	t.Run("long document produces multiple windows under max", func(t *testing.T) {
		c := newTestChunker(10, 120, 30)
		var sb strings.Builder
		for i := 0; i < 12; i++ {
			sb.WriteString(sentence(i, 30))
			sb.WriteString(" ")
		}

		chunks := c.Split(sb.String())
		require.Greater(t, len(chunks), 1)
		for _, ch := range chunks {
			assert.LessOrEqual(t, ch.TokenCount, 120, "chunk %d over budget", ch.Index)
		}
		for i, ch := range chunks {
			assert.Equal(t, i, ch.Index)
		}
	})

	t.Run("consecutive windows share overlap sentences", func(t *testing.T) {
		c := newTestChunker(10, 120, 60)
		var sb strings.Builder
		for i := 0; i < 12; i++ {
			sb.WriteString(sentence(i, 30))
			sb.WriteString(" ")
		}

		chunks := c.Split(sb.String())
		require.Greater(t, len(chunks), 1)

		// The last sentence of window N reappears at the start of window N+1.
		firstSentences := SplitSentences(chunks[0].Text)
		tail := firstSentences[len(firstSentences)-1]
		assert.True(t, strings.HasPrefix(chunks[1].Text, tail),
			"second window should start with the first window's tail")
	})

	t.Run("run-on sentence split on word boundaries", func(t *testing.T) {
		c := newTestChunker(5, 40, 10)
		// One unterminated 120-word sentence, far past the max bound.
		doc := strings.TrimSpace(strings.Repeat("signal ", 120))

		chunks := c.Split(doc)
		require.Greater(t, len(chunks), 1)
		for _, ch := range chunks {
			assert.LessOrEqual(t, ch.TokenCount, 40, "chunk %d over budget", ch.Index)
		}
	})

	t.Run("sole short window survives the minimum", func(t *testing.T) {
		c := newTestChunker(300, 800, 50)
		chunks := c.Split("Tiny document. Just two sentences.")
		require.Len(t, chunks, 1)
		assert.Less(t, chunks[0].TokenCount, 300)
	})

	t.Run("content hash is sha256 of chunk text", func(t *testing.T) {
		c := newTestChunker(1, 800, 50)
		chunks := c.Split("Stable input produces a stable hash.")
		require.Len(t, chunks, 1)

		sum := sha256.Sum256([]byte(chunks[0].Text))
		assert.Equal(t, hex.EncodeToString(sum[:]), chunks[0].ContentHash)
	})

	t.Run("identical text yields identical hashes", func(t *testing.T) {
		c := newTestChunker(1, 800, 50)
		a := c.Split("The signal repeats every night at nine.")
		b := c.Split("The signal repeats every night at nine.")
		require.Len(t, a, 1)
		require.Len(t, b, 1)
		assert.Equal(t, a[0].ContentHash, b[0].ContentHash)
	})

	t.Run("empty and markdown-only input", func(t *testing.T) {
		c := newTestChunker(300, 800, 50)
		assert.Empty(t, c.Split(""))
		assert.Empty(t, c.Split("   \n\n  "))
	})

	t.Run("language recorded on chunks", func(t *testing.T) {
		c := newTestChunker(1, 800, 50)
		doc := strings.Repeat("The broadcast tower hums over the sleeping city tonight. ", 5)
		chunks := c.Split(doc)
		require.NotEmpty(t, chunks)
		assert.Equal(t, "en", chunks[0].Lang)
	})
}

func TestDetectLanguage(t *testing.T) {
	t.Run("short input defaults to english", func(t *testing.T) {
		lang, conf := DetectLanguage("hola")
		assert.Equal(t, "en", lang)
		assert.Less(t, conf, 0.1)
	})

	t.Run("spanish detected", func(t *testing.T) {
		text := strings.Repeat("La torre de transmisión ilumina la ciudad dormida cada noche. ", 4)
		lang, _ := DetectLanguage(text)
		assert.Equal(t, "es", lang)
	})

	t.Run("confidence capped", func(t *testing.T) {
		_, conf := DetectLanguage(strings.Repeat("The broadcast continues without pause. ", 100))
		assert.Equal(t, 0.95, conf)
	})
}

func TestCountTokens(t *testing.T) {
	t.Run("empty text", func(t *testing.T) {
		assert.Equal(t, 0, CountTokens(""))
	})

	t.Run("monotonic in length", func(t *testing.T) {
		short := CountTokens("one two three")
		long := CountTokens(strings.Repeat("one two three ", 10))
		assert.Greater(t, long, short)
	})
}
