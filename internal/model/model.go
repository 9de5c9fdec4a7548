// Package model defines the canonical, storage-ready entity shapes. They are
// independent of the raw API field naming; the normalizer is the only place
// raw payloads are mapped into them.
package model

import "time"

// Vorgang is a top-level parliamentary case (a Kleine Anfrage procedure).
type Vorgang struct {
	ID             string
	Typ            string
	Titel          string
	// Datum is the ISO date (YYYY-MM-DD) as delivered by the API. ISO dates
	// compare correctly as strings, which the search tie-break relies on.
	Datum          string
	Beratungsstand string
	Wahlperiode    string
	Initiatoren    []string
	Ressort        string
	Schlagworte    []string
	Abstrakt       string
	Quelle         string
	// Embedding fields are written only by the embedding pipeline; entity
	// upserts never touch them.
	Embedding        []float32
	EmbeddingVersion string
	Raw              map[string]any
	UpdatedAt        time.Time
}

// Drucksache is an official document belonging to exactly one Vorgang,
// typically the question or the government's answer.
type Drucksache struct {
	ID        string
	VorgangID string
	Titel     string
	Typ       string
	Nummer    string
	Datum     string
	DokURL    string
	DokTyp    string
	Raw       map[string]any
	UpdatedAt time.Time
}

// DrucksacheText is the extracted full text of one Drucksache. At most one
// per document; it may never exist if text extraction was not available.
type DrucksacheText struct {
	DrucksacheID string
	Volltext     string
	Format       string
	Laenge       int
	Raw          map[string]any
	UpdatedAt    time.Time
}
