package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/crawlify/crawlify/internal/metrics"
	"github.com/crawlify/crawlify/internal/model"
)

// EmbeddingRow is one stored vector plus the metadata search needs for
// ranking and tie-breaking.
type EmbeddingRow struct {
	VorgangID string
	Vector    []float32
	Version   string
	Titel     string
	Datum     string
	Ressort   string
}

// UpdateEmbedding writes the embedding fields of one Vorgang. This is the
// only code path that touches them.
func (s *Store) UpdateEmbedding(ctx context.Context, vorgangID string, vector []float32, version string) error {
	if vorgangID == "" {
		return fmt.Errorf("vorgang id is required")
	}
	payload, err := marshalJSON(vector)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		"UPDATE vorgang SET embedding_json = $2, embedding_version = $3 WHERE vorgang_id = $1",
		vorgangID, payload, version,
	)
	if err != nil {
		return fmt.Errorf("update embedding %s: %w", vorgangID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	metrics.ObserveEmbedding()
	return nil
}

// LoadEmbeddings returns every stored vector, optionally restricted to one
// embedding schema version. Records without an embedding are excluded.
func (s *Store) LoadEmbeddings(ctx context.Context, version string) ([]EmbeddingRow, error) {
	query := `
SELECT vorgang_id, embedding_json, COALESCE(embedding_version,''),
	COALESCE(titel,''), COALESCE(datum,''), COALESCE(ressort,'')
FROM vorgang
WHERE embedding_json IS NOT NULL AND ($1 = '' OR embedding_version = $1)`
	rows, err := s.pool.Query(ctx, query, version)
	if err != nil {
		return nil, fmt.Errorf("load embeddings: %w", err)
	}
	defer rows.Close()

	var out []EmbeddingRow
	for rows.Next() {
		var (
			row     EmbeddingRow
			payload []byte
		)
		if err := rows.Scan(&row.VorgangID, &payload, &row.Version, &row.Titel, &row.Datum, &row.Ressort); err != nil {
			return nil, fmt.Errorf("scan embedding row: %w", err)
		}
		if err := json.Unmarshal(payload, &row.Vector); err != nil {
			return nil, fmt.Errorf("decode embedding %s: %w", row.VorgangID, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embedding rows: %w", err)
	}
	return out, nil
}

// VorgaengeMissingEmbedding returns up to limit Vorgaenge without a vector
// for the given schema version, oldest first.
func (s *Store) VorgaengeMissingEmbedding(ctx context.Context, version string, limit int) ([]model.Vorgang, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := "SELECT" + selectVorgangColumns + `
FROM vorgang
WHERE embedding_json IS NULL OR COALESCE(embedding_version,'') <> $1
ORDER BY updated_at ASC
LIMIT $2`
	rows, err := s.pool.Query(ctx, query, version, limit)
	if err != nil {
		return nil, fmt.Errorf("list vorgaenge missing embedding: %w", err)
	}
	defer rows.Close()

	var out []model.Vorgang
	for rows.Next() {
		v, err := scanVorgang(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vorgang row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vorgang rows: %w", err)
	}
	return out, nil
}

// BuildEmbeddingText assembles the text fed to the embedder: title, abstract,
// then the full texts of the case's documents, joined by blank lines and
// silently truncated to maxChars.
func (s *Store) BuildEmbeddingText(ctx context.Context, v model.Vorgang, maxChars int) (string, error) {
	if maxChars <= 0 {
		maxChars = 8000
	}
	parts := make([]string, 0, 4)
	if v.Titel != "" {
		parts = append(parts, v.Titel)
	}
	if v.Abstrakt != "" {
		parts = append(parts, v.Abstrakt)
	}

	query := `
SELECT COALESCE(dt.volltext,'')
FROM drucksache_text dt
JOIN drucksache d ON d.drucksache_id = dt.drucksache_id
WHERE d.vorgang_id = $1
ORDER BY d.datum ASC`
	rows, err := s.pool.Query(ctx, query, v.ID)
	if err != nil {
		return "", fmt.Errorf("load document texts: %w", err)
	}
	defer rows.Close()

	total := 0
	for _, p := range parts {
		total += len(p)
	}
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return "", fmt.Errorf("scan document text: %w", err)
		}
		if text == "" {
			continue
		}
		parts = append(parts, text)
		total += len(text)
		if total >= maxChars {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate document texts: %w", err)
	}

	text := strings.Join(parts, "\n\n")
	if len(text) > maxChars {
		text = text[:maxChars]
	}
	return text, nil
}
