// Package dip defines the core types and interfaces for talking to the
// Bundestag DIP API: paginated fetching, challenge cookies, cursor state,
// and the error taxonomy shared by the ingestion pipeline.
package dip

import (
	"context"
	"strings"
	"time"
)

// RawRecord is one undecoded item as returned by the API. Field names vary
// across API versions, so records stay generic until normalization.
type RawRecord map[string]any

// PageRequest identifies one page fetch against a DIP endpoint.
type PageRequest struct {
	// Endpoint is the API path, e.g. "/vorgang" or "/drucksache-text".
	Endpoint string
	// Filters are f.* query parameters scoping the result set.
	Filters map[string]string
	// Cursor is the opaque continuation token; empty starts from the beginning.
	Cursor string
}

// Page is the decoded result of a single page fetch.
type Page struct {
	Items []RawRecord
	// Cursor is the continuation token for the next page. Empty means the
	// stream is exhausted.
	Cursor string
	// NumFound is the total result count reported by the API, if present.
	NumFound int
	// Raw is the full response payload, persisted verbatim as the page artifact.
	Raw map[string]any
}

// Cookie is a solved-challenge session cookie set with an absolute expiry.
type Cookie struct {
	Values    map[string]string `json:"cookies"`
	Domain    string            `json:"domain"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// Valid reports whether the cookie exists and has not expired at now.
func (c Cookie) Valid(now time.Time) bool {
	return len(c.Values) > 0 && now.Before(c.ExpiresAt)
}

// Header renders the cookie values as a Cookie request header value.
func (c Cookie) Header() string {
	pairs := make([]string, 0, len(c.Values))
	for name, value := range c.Values {
		pairs = append(pairs, name+"="+value)
	}
	return strings.Join(pairs, "; ")
}

// CursorState is the persisted resume point for one fetch stream.
type CursorState struct {
	Cursor    string    `json:"cursor"`
	LastPage  int       `json:"last_page"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FetchSummary reports the outcome of one orchestrator run.
type FetchSummary struct {
	RunID          string
	Stream         string
	PagesWritten   int
	RecordsWritten int
	Errors         []string
}

// CookieSource supplies challenge cookies to the API client. The implementation
// owns caching and solve deduplication; the client only reads and refreshes.
type CookieSource interface {
	// Cookie returns the cached cookie if one exists and is still valid.
	Cookie(ctx context.Context) (Cookie, bool)
	// Refresh solves the challenge at challengeURL and caches the result.
	Refresh(ctx context.Context, challengeURL string) (Cookie, error)
}

// CursorStore persists per-stream cursor state.
type CursorStore interface {
	Load(stream string) (CursorState, bool, error)
	Save(stream string, state CursorState) error
	Reset(stream string) error
}

// PageSink durably writes one raw page artifact and returns its URI.
// Writes for the same stream and sequence number must be overwrite-safe.
type PageSink interface {
	WritePage(ctx context.Context, stream string, seq int, data []byte) (string, error)
}

// Publisher pushes page-committed events to a message bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (swappable in tests).
type Clock interface {
	Now() time.Time
}
