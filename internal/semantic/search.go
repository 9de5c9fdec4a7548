package semantic

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/crawlify/crawlify/internal/store"
)

// Result is one ranked search hit.
type Result struct {
	VorgangID string  `json:"vorgang_id"`
	Score     float64 `json:"score"`
	Titel     string  `json:"titel"`
	Datum     string  `json:"datum"`
	Ressort   string  `json:"ressort"`
}

// EmbeddingReader loads stored vectors for scanning.
type EmbeddingReader interface {
	LoadEmbeddings(ctx context.Context, version string) ([]store.EmbeddingRow, error)
}

// Searcher ranks Vorgaenge by cosine similarity against a query vector.
type Searcher struct {
	reader   EmbeddingReader
	embedder Embedder
	version  string
}

// NewSearcher constructs a Searcher restricted to one embedding version.
func NewSearcher(reader EmbeddingReader, embedder Embedder, version string) *Searcher {
	return &Searcher{reader: reader, embedder: embedder, version: version}
}

// Search embeds the query text and returns the top k hits, best first. Ties
// on score go to the more recent Datum, then to the smaller id, so the
// ranking is fully deterministic. Records without a vector for the active
// version never appear.
func (s *Searcher) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if k <= 0 {
		k = 10
	}
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := s.reader.LoadEmbeddings(ctx, s.version)
	if err != nil {
		return nil, fmt.Errorf("load embeddings: %w", err)
	}

	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		score, ok := CosineSimilarity(queryVec, row.Vector)
		if !ok {
			continue
		}
		results = append(results, Result{
			VorgangID: row.VorgangID,
			Score:     score,
			Titel:     row.Titel,
			Datum:     row.Datum,
			Ressort:   row.Ressort,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Datum != results[j].Datum {
			return results[i].Datum > results[j].Datum
		}
		return results[i].VorgangID < results[j].VorgangID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// CosineSimilarity returns the cosine of the angle between a and b. The
// second return is false for mismatched dimensions or zero vectors, which
// are unscorable rather than zero-scored.
func CosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}
