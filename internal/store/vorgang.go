package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/crawlify/crawlify/internal/metrics"
	"github.com/crawlify/crawlify/internal/model"
)

// sortColumns is the closed allow-list of sortable fields. Caller-supplied
// sort keys are resolved through this map and never interpolated directly.
var sortColumns = map[string]string{
	"datum":          "datum",
	"titel":          "titel",
	"updated_at":     "updated_at",
	"beratungsstand": "beratungsstand",
}

// ListOptions control paginated Vorgang listings.
type ListOptions struct {
	Status     string
	SortBy     string
	Descending bool
	Limit      int
	Offset     int
}

const upsertVorgangSQL = `
INSERT INTO vorgang (
	vorgang_id, vorgangstyp, titel, datum, beratungsstand, wahlperiode,
	initiatoren_json, ressort, schlagworte_json, abstrakt, quelle,
	raw_json, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)
ON CONFLICT (vorgang_id) DO UPDATE SET
	vorgangstyp = EXCLUDED.vorgangstyp,
	titel = EXCLUDED.titel,
	datum = EXCLUDED.datum,
	beratungsstand = EXCLUDED.beratungsstand,
	wahlperiode = EXCLUDED.wahlperiode,
	initiatoren_json = EXCLUDED.initiatoren_json,
	ressort = EXCLUDED.ressort,
	schlagworte_json = EXCLUDED.schlagworte_json,
	abstrakt = EXCLUDED.abstrakt,
	quelle = EXCLUDED.quelle,
	raw_json = EXCLUDED.raw_json,
	updated_at = EXCLUDED.updated_at`

// UpsertVorgang inserts or updates one Vorgang. The update covers every
// mutable field except the embedding columns, so a metadata refresh never
// clobbers an already computed embedding.
func (s *Store) UpsertVorgang(ctx context.Context, v model.Vorgang) error {
	if v.ID == "" {
		return fmt.Errorf("vorgang id is required")
	}
	initiatoren, err := jsonOrNil(v.Initiatoren)
	if err != nil {
		return err
	}
	schlagworte, err := jsonOrNil(v.Schlagworte)
	if err != nil {
		return err
	}
	raw, err := marshalJSON(v.Raw)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, upsertVorgangSQL,
		v.ID, v.Typ, v.Titel, v.Datum, v.Beratungsstand, v.Wahlperiode,
		initiatoren, v.Ressort, schlagworte, v.Abstrakt, v.Quelle,
		raw, v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert vorgang %s: %w", v.ID, err)
	}
	metrics.ObserveUpsert("vorgang")
	return nil
}

const selectVorgangColumns = `
	vorgang_id, vorgangstyp, COALESCE(titel,''), COALESCE(datum,''),
	COALESCE(beratungsstand,''), COALESCE(wahlperiode,''),
	COALESCE(initiatoren_json,'[]'::jsonb), COALESCE(ressort,''),
	COALESCE(schlagworte_json,'[]'::jsonb), COALESCE(abstrakt,''), quelle,
	COALESCE(embedding_version,''), updated_at`

// GetVorgang fetches one Vorgang by id. Embedding vectors are not loaded;
// use LoadEmbeddings for search.
func (s *Store) GetVorgang(ctx context.Context, id string) (model.Vorgang, error) {
	query := "SELECT" + selectVorgangColumns + " FROM vorgang WHERE vorgang_id = $1"
	v, err := scanVorgang(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Vorgang{}, ErrNotFound
		}
		return model.Vorgang{}, fmt.Errorf("get vorgang %s: %w", id, err)
	}
	return v, nil
}

// ListVorgaenge returns a page of Vorgaenge, optionally filtered by status
// and sorted by one of the allow-listed fields.
func (s *Store) ListVorgaenge(ctx context.Context, opts ListOptions) ([]model.Vorgang, error) {
	sortBy := opts.SortBy
	if sortBy == "" {
		sortBy = "datum"
	}
	column, ok := sortColumns[sortBy]
	if !ok {
		return nil, fmt.Errorf("unsupported sort field %q", sortBy)
	}
	direction := "ASC"
	if opts.Descending {
		direction = "DESC"
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(
		"SELECT%s FROM vorgang WHERE ($1 = '' OR beratungsstand = $1) ORDER BY %s %s LIMIT $2 OFFSET $3",
		selectVorgangColumns, column, direction,
	)
	rows, err := s.pool.Query(ctx, query, opts.Status, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("list vorgaenge: %w", err)
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

// ListVorgangIDs returns all Vorgang identifiers, used to drive the
// per-parent drucksache fetch fan-out.
func (s *Store) ListVorgangIDs(ctx context.Context) ([]string, error) {
	return s.listIDs(ctx, "SELECT vorgang_id FROM vorgang ORDER BY vorgang_id")
}

// ListDrucksacheIDs returns all Drucksache identifiers.
func (s *Store) ListDrucksacheIDs(ctx context.Context) ([]string, error) {
	return s.listIDs(ctx, "SELECT drucksache_id FROM drucksache ORDER BY drucksache_id")
}

func (s *Store) listIDs(ctx context.Context, query string) ([]string, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate id rows: %w", err)
	}
	return ids, nil
}

func scanVorgang(row pgx.Row) (model.Vorgang, error) {
	var (
		v           model.Vorgang
		initiatoren []byte
		schlagworte []byte
	)
	err := row.Scan(
		&v.ID, &v.Typ, &v.Titel, &v.Datum,
		&v.Beratungsstand, &v.Wahlperiode,
		&initiatoren, &v.Ressort,
		&schlagworte, &v.Abstrakt, &v.Quelle,
		&v.EmbeddingVersion, &v.UpdatedAt,
	)
	if err != nil {
		return model.Vorgang{}, err
	}
	if err := json.Unmarshal(initiatoren, &v.Initiatoren); err != nil {
		return model.Vorgang{}, fmt.Errorf("decode initiatoren: %w", err)
	}
	if err := json.Unmarshal(schlagworte, &v.Schlagworte); err != nil {
		return model.Vorgang{}, fmt.Errorf("decode schlagworte: %w", err)
	}
	return v, nil
}
