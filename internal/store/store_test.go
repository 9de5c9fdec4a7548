package store

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crawlify/crawlify/internal/dip"
	"github.com/crawlify/crawlify/internal/model"
)

var updatedAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	st, err := NewWithPool(mock)
	require.NoError(t, err)
	return st, mock
}

func testVorgang() model.Vorgang {
	return model.Vorgang{
		ID:             "282440",
		Typ:            "Gesetzgebung",
		Titel:          "Testgesetz",
		Datum:          "2024-11-08",
		Beratungsstand: "Überwiesen",
		Wahlperiode:    "20",
		Initiatoren:    []string{"Bundesregierung"},
		Ressort:        "BMI",
		Schlagworte:    []string{"Test"},
		Abstrakt:       "Abstrakt",
		Quelle:         "DIP",
		Raw:            map[string]any{"id": "282440"},
		UpdatedAt:      updatedAt,
	}
}

func TestUpsertVorgang(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)
	v := testVorgang()

	initiatoren, _ := json.Marshal(v.Initiatoren)
	schlagworte, _ := json.Marshal(v.Schlagworte)
	raw, _ := json.Marshal(v.Raw)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO vorgang")).
		WithArgs(v.ID, v.Typ, v.Titel, v.Datum, v.Beratungsstand, v.Wahlperiode,
			initiatoren, v.Ressort, schlagworte, v.Abstrakt, v.Quelle,
			raw, v.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.UpsertVorgang(context.Background(), v))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertVorgangRequiresID(t *testing.T) {
	t.Parallel()
	st, _ := newMockStore(t)
	err := st.UpsertVorgang(context.Background(), model.Vorgang{})
	require.Error(t, err)
}

// A metadata refresh must never touch the embedding columns.
func TestUpsertVorgangPreservesEmbedding(t *testing.T) {
	t.Parallel()
	assert.NotContains(t, upsertVorgangSQL, "embedding_json")
	assert.NotContains(t, upsertVorgangSQL, "embedding_version")
}

func TestGetVorgangNotFound(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := st.GetVorgang(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListVorgaengeRejectsUnknownSortField(t *testing.T) {
	t.Parallel()
	st, _ := newMockStore(t)

	_, err := st.ListVorgaenge(context.Background(), ListOptions{SortBy: "raw_json; DROP TABLE vorgang"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported sort field")
}

func TestListVorgaengeAllowedSortFields(t *testing.T) {
	t.Parallel()
	for field := range sortColumns {
		st, mock := newMockStore(t)
		mock.ExpectQuery("SELECT").
			WithArgs("", 50, 0).
			WillReturnRows(vorgangRows())
		_, err := st.ListVorgaenge(context.Background(), ListOptions{SortBy: field})
		require.NoError(t, err, "sort field %q", field)
	}
}

func vorgangRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"vorgang_id", "vorgangstyp", "titel", "datum",
		"beratungsstand", "wahlperiode", "initiatoren_json", "ressort",
		"schlagworte_json", "abstrakt", "quelle", "embedding_version", "updated_at",
	}).AddRow(
		"282440", "Gesetzgebung", "Testgesetz", "2024-11-08",
		"Überwiesen", "20", []byte(`["Bundesregierung"]`), "BMI",
		[]byte(`["Test"]`), "Abstrakt", "DIP", "", updatedAt,
	)
}

func TestListVorgaengeScansRows(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)
	mock.ExpectQuery("SELECT").
		WithArgs("Überwiesen", 10, 0).
		WillReturnRows(vorgangRows())

	out, err := st.ListVorgaenge(context.Background(), ListOptions{Status: "Überwiesen", Limit: 10})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "282440", out[0].ID)
	assert.Equal(t, []string{"Bundesregierung"}, out[0].Initiatoren)
}

func TestUpsertDrucksacheParentMissingIsConflict(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("v-missing").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	err := st.UpsertDrucksache(context.Background(), model.Drucksache{
		ID:        "D1",
		VorgangID: "v-missing",
		UpdatedAt: updatedAt,
	})
	require.Error(t, err)
	assert.True(t, dip.IsConflictError(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertDrucksacheWithParent(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	d := model.Drucksache{
		ID:        "D1",
		VorgangID: "282440",
		Titel:     "Entwurf",
		Typ:       "Gesetzentwurf",
		Nummer:    "20/1234",
		Datum:     "2024-10-01",
		DokURL:    "https://example.org/d.pdf",
		DokTyp:    "application/pdf",
		Raw:       map[string]any{"id": "D1"},
		UpdatedAt: updatedAt,
	}
	raw, _ := json.Marshal(d.Raw)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("282440").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO drucksache")).
		WithArgs(d.ID, d.VorgangID, d.Titel, d.Typ, d.Nummer,
			d.Datum, d.DokURL, d.DokTyp, raw, d.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.UpsertDrucksache(context.Background(), d))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertDrucksacheTextParentMissingIsConflict(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("D-missing").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	err := st.UpsertDrucksacheText(context.Background(), model.DrucksacheText{
		DrucksacheID: "D-missing",
		UpdatedAt:    updatedAt,
	})
	assert.True(t, dip.IsConflictError(err))
}

func TestUpdateEmbedding(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	vector := []float32{0.1, 0.2}
	payload, _ := json.Marshal(vector)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE vorgang SET embedding_json")).
		WithArgs("282440", payload, "v1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, st.UpdateEmbedding(context.Background(), "282440", vector, "v1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEmbeddingUnknownVorgang(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE vorgang SET embedding_json")).
		WithArgs("missing", pgxmock.AnyArg(), "v1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := st.UpdateEmbedding(context.Background(), "missing", []float32{0.1}, "v1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLoadEmbeddings(t *testing.T) {
	t.Parallel()
	st, mock := newMockStore(t)

	rows := pgxmock.NewRows([]string{
		"vorgang_id", "embedding_json", "embedding_version", "titel", "datum", "ressort",
	}).AddRow("1", []byte(`[0.5,0.5]`), "v1", "T", "2024-01-01", "BMI")
	mock.ExpectQuery("SELECT").WithArgs("v1").WillReturnRows(rows)

	out, err := st.LoadEmbeddings(context.Background(), "v1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []float32{0.5, 0.5}, out[0].Vector)
}
