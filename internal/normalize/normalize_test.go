package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crawlify/crawlify/internal/dip"
)

var seenAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestVorgangCanonicalFields(t *testing.T) {
	t.Parallel()
	rec := dip.RawRecord{
		"id":             "282440",
		"vorgangstyp":    "Gesetzgebung",
		"titel":          "Gesetz zur Stärkung der Digitalisierung",
		"datum":          "2024-11-08",
		"beratungsstand": "Überwiesen",
		"wahlperiode":    "20",
		"initiatoren":    []any{"Bundesregierung"},
		"ressort":        "BMI",
		"schlagworte":    []any{"Digitalisierung", "Verwaltung"},
		"abstrakt":       "Regelt die...",
	}

	v, err := Vorgang(rec, seenAt)
	require.NoError(t, err)
	assert.Equal(t, "282440", v.ID)
	assert.Equal(t, "Gesetzgebung", v.Typ)
	assert.Equal(t, "2024-11-08", v.Datum)
	assert.Equal(t, []string{"Bundesregierung"}, v.Initiatoren)
	assert.Equal(t, []string{"Digitalisierung", "Verwaltung"}, v.Schlagworte)
	assert.Equal(t, Quelle, v.Quelle)
	assert.Equal(t, seenAt, v.UpdatedAt)
}

// Field names drift across API versions; the alias tables absorb the drift.
func TestVorgangFieldAliases(t *testing.T) {
	t.Parallel()
	rec := dip.RawRecord{
		"vorgang_id": "99",
		"type":       "Antrag",
		"title":      "Alias title",
		"status":     "Abgeschlossen",
		"kurztext":   "Alias abstract",
	}

	v, err := Vorgang(rec, seenAt)
	require.NoError(t, err)
	assert.Equal(t, "99", v.ID)
	assert.Equal(t, "Antrag", v.Typ)
	assert.Equal(t, "Alias title", v.Titel)
	assert.Equal(t, "Abgeschlossen", v.Beratungsstand)
	assert.Equal(t, "Alias abstract", v.Abstrakt)
}

func TestVorgangMissingIDIsSchemaViolation(t *testing.T) {
	t.Parallel()
	_, err := Vorgang(dip.RawRecord{"titel": "no id"}, seenAt)
	require.Error(t, err)
	assert.True(t, dip.IsSchemaError(err))

	// Whitespace-only ids count as missing.
	_, err = Vorgang(dip.RawRecord{"id": "   "}, seenAt)
	assert.True(t, dip.IsSchemaError(err))
}

// Identical input plus identical seenAt must produce identical output.
func TestVorgangIsDeterministic(t *testing.T) {
	t.Parallel()
	rec := dip.RawRecord{
		"id":          "1",
		"titel":       "T",
		"initiatoren": []any{"A", "B"},
	}
	first, err := Vorgang(rec, seenAt)
	require.NoError(t, err)
	second, err := Vorgang(rec, seenAt)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDrucksache(t *testing.T) {
	t.Parallel()
	rec := dip.RawRecord{
		"id":            "D7",
		"titel":         "Entwurf eines Gesetzes",
		"drucksachetyp": "Gesetzentwurf",
		"drucksache_nr": "20/1234",
		"datum":         "2024-10-01",
		"dokument": map[string]any{
			"url": "https://dserver.bundestag.de/btd/20/12/2012345.pdf",
			"typ": "application/pdf",
		},
	}

	d, err := Drucksache(rec, "282440", seenAt)
	require.NoError(t, err)
	assert.Equal(t, "D7", d.ID)
	assert.Equal(t, "282440", d.VorgangID)
	assert.Equal(t, "20/1234", d.Nummer)
	assert.Equal(t, "https://dserver.bundestag.de/btd/20/12/2012345.pdf", d.DokURL)
	assert.Equal(t, "application/pdf", d.DokTyp)
}

func TestDrucksacheMissingID(t *testing.T) {
	t.Parallel()
	_, err := Drucksache(dip.RawRecord{"titel": "x"}, "v1", seenAt)
	assert.True(t, dip.IsSchemaError(err))
}

func TestDrucksacheText(t *testing.T) {
	t.Parallel()
	rec := dip.RawRecord{
		"drucksache_id": "D7",
		"text":          "Der Bundestag wolle beschließen...",
		"format":        "text/plain",
	}

	tx, err := DrucksacheText(rec, seenAt)
	require.NoError(t, err)
	assert.Equal(t, "D7", tx.DrucksacheID)
	assert.Equal(t, len("Der Bundestag wolle beschließen..."), tx.Laenge)
	assert.Equal(t, "text/plain", tx.Format)
}

func TestDrucksacheTextVolltextAlias(t *testing.T) {
	t.Parallel()
	tx, err := DrucksacheText(dip.RawRecord{"id": "D8", "volltext": "Inhalt"}, seenAt)
	require.NoError(t, err)
	assert.Equal(t, "Inhalt", tx.Volltext)
}

func TestFirstStringListSkipsNonStrings(t *testing.T) {
	t.Parallel()
	v, err := Vorgang(dip.RawRecord{
		"id":          "1",
		"initiatoren": []any{"A", 42, "", "B"},
	}, seenAt)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, v.Initiatoren)
}
