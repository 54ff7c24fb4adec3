package scriptgen

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/aetherfm/station/pkg/models"
)

var sourceTagRe = regexp.MustCompile(`\[SOURCE:\s*([^\]]+)\]`)

// ExtractCitations scans text for [SOURCE: <ref>] tags and resolves each
// reference against the retrieved chunks: exact match on "type:id" first,
// then fallback exact match on source_id alone. Unresolved references are
// logged and skipped. Each chunk is cited at most once.
func ExtractCitations(text string, chunks []models.RAGChunk) []models.Citation {
	matches := sourceTagRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	byFullRef := make(map[string]*models.RAGChunk, len(chunks))
	bySourceID := make(map[string]*models.RAGChunk, len(chunks))
	for i := range chunks {
		ch := &chunks[i]
		byFullRef[ch.SourceType+":"+ch.SourceID] = ch
		// First chunk of a source wins the fallback.
		if _, ok := bySourceID[ch.SourceID]; !ok {
			bySourceID[ch.SourceID] = ch
		}
	}

	seen := make(map[string]struct{})
	var citations []models.Citation
	for _, m := range matches {
		ref := strings.TrimSpace(m[1])

		ch, ok := byFullRef[ref]
		if !ok {
			ch, ok = bySourceID[ref]
		}
		if !ok {
			slog.Warn("Unresolved citation reference", "ref", ref)
			continue
		}
		if _, dup := seen[ch.ChunkID]; dup {
			continue
		}
		seen[ch.ChunkID] = struct{}{}

		citations = append(citations, models.Citation{
			DocID:          ch.SourceID,
			ChunkID:        ch.ChunkID,
			RelevanceScore: ch.FinalScore,
		})
	}
	return citations
}
