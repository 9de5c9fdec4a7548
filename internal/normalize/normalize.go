// Package normalize maps heterogeneous raw API records into the canonical
// schema. Field names drift across DIP API versions, so every canonical field
// is backed by an ordered alias list; the first present non-empty value wins.
// New name variants are added to the tables, not to code.
package normalize

import (
	"strings"
	"time"

	"github.com/crawlify/crawlify/internal/dip"
	"github.com/crawlify/crawlify/internal/model"
)

// Quelle is the provenance marker stamped on every canonical record.
const Quelle = "DIP"

var vorgangAliases = map[string][]string{
	"id":             {"id", "vorgang_id", "vorgangId"},
	"typ":            {"vorgangstyp", "vorgangsTyp", "type"},
	"titel":          {"titel", "title", "kurzbezeichnung"},
	"datum":          {"datum", "date", "datum_aktualisierung"},
	"beratungsstand": {"beratungsstand", "status", "stand"},
	"wahlperiode":    {"wahlperiode", "legislature"},
	"ressort":        {"ressort", "zustandigkeit", "federfuehrung"},
	"abstrakt":       {"abstrakt", "abstract", "kurztext"},
}

var drucksacheAliases = map[string][]string{
	"id":     {"id", "drucksache_id", "drucksacheId"},
	"titel":  {"titel", "title"},
	"typ":    {"drucksachetyp", "dokumentart", "typ"},
	"nummer": {"drucksache_nr", "drucksache_nummer", "dokumentnummer"},
	"datum":  {"datum", "date"},
}

var dokumentAliases = map[string][]string{
	"url": {"url", "dok_url", "link"},
	"typ": {"typ", "type", "mime"},
}

var textAliases = map[string][]string{
	"id":     {"drucksache_id", "drucksacheId", "id"},
	"text":   {"text", "volltext", "content"},
	"format": {"format", "text_format", "mime"},
}

var initiatorenKeys = []string{"initiatoren", "initiator"}

var schlagworteKeys = []string{"schlagworte", "keywords"}

// Vorgang maps one raw record into the canonical Vorgang. seenAt is supplied
// by the caller so identical input always yields identical output.
func Vorgang(rec dip.RawRecord, seenAt time.Time) (model.Vorgang, error) {
	id := firstString(rec, vorgangAliases["id"])
	if id == "" {
		return model.Vorgang{}, &dip.SchemaError{Entity: "vorgang", Field: "id"}
	}
	return model.Vorgang{
		ID:             id,
		Typ:            firstString(rec, vorgangAliases["typ"]),
		Titel:          firstString(rec, vorgangAliases["titel"]),
		Datum:          firstString(rec, vorgangAliases["datum"]),
		Beratungsstand: firstString(rec, vorgangAliases["beratungsstand"]),
		Wahlperiode:    firstString(rec, vorgangAliases["wahlperiode"]),
		Initiatoren:    firstStringList(rec, initiatorenKeys),
		Ressort:        firstString(rec, vorgangAliases["ressort"]),
		Schlagworte:    firstStringList(rec, schlagworteKeys),
		Abstrakt:       firstString(rec, vorgangAliases["abstrakt"]),
		Quelle:         Quelle,
		Raw:            rec,
		UpdatedAt:      seenAt,
	}, nil
}

// Drucksache maps one raw document record. vorgangID ties the document to its
// owning case; the caller resolves it from the fetch context.
func Drucksache(rec dip.RawRecord, vorgangID string, seenAt time.Time) (model.Drucksache, error) {
	id := firstString(rec, drucksacheAliases["id"])
	if id == "" {
		return model.Drucksache{}, &dip.SchemaError{Entity: "drucksache", Field: "id"}
	}
	dokument, _ := rec["dokument"].(map[string]any)
	return model.Drucksache{
		ID:        id,
		VorgangID: vorgangID,
		Titel:     firstString(rec, drucksacheAliases["titel"]),
		Typ:       firstString(rec, drucksacheAliases["typ"]),
		Nummer:    firstString(rec, drucksacheAliases["nummer"]),
		Datum:     firstString(rec, drucksacheAliases["datum"]),
		DokURL:    firstString(dokument, dokumentAliases["url"]),
		DokTyp:    firstString(dokument, dokumentAliases["typ"]),
		Raw:       rec,
		UpdatedAt: seenAt,
	}, nil
}

// DrucksacheText maps one raw full-text record.
func DrucksacheText(rec dip.RawRecord, seenAt time.Time) (model.DrucksacheText, error) {
	id := firstString(rec, textAliases["id"])
	if id == "" {
		return model.DrucksacheText{}, &dip.SchemaError{Entity: "drucksache_text", Field: "drucksache_id"}
	}
	text := firstString(rec, textAliases["text"])
	return model.DrucksacheText{
		DrucksacheID: id,
		Volltext:     text,
		Format:       firstString(rec, textAliases["format"]),
		Laenge:       len(text),
		Raw:          rec,
		UpdatedAt:    seenAt,
	}, nil
}

func firstString(rec map[string]any, keys []string) string {
	for _, key := range keys {
		if s, ok := rec[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func firstStringList(rec map[string]any, keys []string) []string {
	for _, key := range keys {
		list, ok := rec[key].([]any)
		if !ok {
			continue
		}
		out := make([]string, 0, len(list))
		for _, entry := range list {
			if s, ok := entry.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}
