package store

import (
	"context"
	"fmt"

	"github.com/crawlify/crawlify/internal/dip"
	"github.com/crawlify/crawlify/internal/metrics"
	"github.com/crawlify/crawlify/internal/model"
)

const upsertDrucksacheSQL = `
INSERT INTO drucksache (
	drucksache_id, vorgang_id, titel, drucksachetyp, drucksache_nummer,
	datum, dok_url, dokument_typ, raw_json, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (drucksache_id) DO UPDATE SET
	vorgang_id = EXCLUDED.vorgang_id,
	titel = EXCLUDED.titel,
	drucksachetyp = EXCLUDED.drucksachetyp,
	drucksache_nummer = EXCLUDED.drucksache_nummer,
	datum = EXCLUDED.datum,
	dok_url = EXCLUDED.dok_url,
	dokument_typ = EXCLUDED.dokument_typ,
	raw_json = EXCLUDED.raw_json,
	updated_at = EXCLUDED.updated_at`

// UpsertDrucksache inserts or updates one Drucksache. The owning Vorgang is
// checked at write time; a dangling reference is a per-record conflict, not a
// run failure.
func (s *Store) UpsertDrucksache(ctx context.Context, d model.Drucksache) error {
	if d.ID == "" {
		return fmt.Errorf("drucksache id is required")
	}
	exists, err := s.exists(ctx, "SELECT EXISTS (SELECT 1 FROM vorgang WHERE vorgang_id = $1)", d.VorgangID)
	if err != nil {
		return fmt.Errorf("check owning vorgang: %w", err)
	}
	if !exists {
		return &dip.ConflictError{
			Entity: "drucksache",
			ID:     d.ID,
			Err:    fmt.Errorf("owning vorgang %s does not exist", d.VorgangID),
		}
	}
	raw, err := marshalJSON(d.Raw)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, upsertDrucksacheSQL,
		d.ID, d.VorgangID, d.Titel, d.Typ, d.Nummer,
		d.Datum, d.DokURL, d.DokTyp, raw, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert drucksache %s: %w", d.ID, err)
	}
	metrics.ObserveUpsert("drucksache")
	return nil
}

const upsertDrucksacheTextSQL = `
INSERT INTO drucksache_text (
	drucksache_id, volltext, text_format, laenge, raw_json, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6
)
ON CONFLICT (drucksache_id) DO UPDATE SET
	volltext = EXCLUDED.volltext,
	text_format = EXCLUDED.text_format,
	laenge = EXCLUDED.laenge,
	raw_json = EXCLUDED.raw_json,
	updated_at = EXCLUDED.updated_at`

// UpsertDrucksacheText inserts or updates the full text of one Drucksache.
func (s *Store) UpsertDrucksacheText(ctx context.Context, t model.DrucksacheText) error {
	if t.DrucksacheID == "" {
		return fmt.Errorf("drucksache id is required")
	}
	exists, err := s.exists(ctx, "SELECT EXISTS (SELECT 1 FROM drucksache WHERE drucksache_id = $1)", t.DrucksacheID)
	if err != nil {
		return fmt.Errorf("check owning drucksache: %w", err)
	}
	if !exists {
		return &dip.ConflictError{
			Entity: "drucksache_text",
			ID:     t.DrucksacheID,
			Err:    fmt.Errorf("owning drucksache %s does not exist", t.DrucksacheID),
		}
	}
	raw, err := marshalJSON(t.Raw)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, upsertDrucksacheTextSQL,
		t.DrucksacheID, t.Volltext, t.Format, t.Laenge, raw, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert drucksache text %s: %w", t.DrucksacheID, err)
	}
	metrics.ObserveUpsert("drucksache_text")
	return nil
}

func (s *Store) exists(ctx context.Context, query, id string) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
