package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crawlify/crawlify/internal/model"
	"github.com/crawlify/crawlify/internal/semantic"
	"github.com/crawlify/crawlify/internal/store"
)

type fakeReader struct {
	byID map[string]model.Vorgang
	list []model.Vorgang
	err  error
}

func (r *fakeReader) GetVorgang(_ context.Context, id string) (model.Vorgang, error) {
	if r.err != nil {
		return model.Vorgang{}, r.err
	}
	v, ok := r.byID[id]
	if !ok {
		return model.Vorgang{}, store.ErrNotFound
	}
	return v, nil
}

func (r *fakeReader) ListVorgaenge(_ context.Context, opts store.ListOptions) ([]model.Vorgang, error) {
	if r.err != nil {
		return nil, r.err
	}
	if opts.SortBy != "" && opts.SortBy != "datum" && opts.SortBy != "titel" {
		return nil, errors.New("unsupported sort field")
	}
	return r.list, nil
}

type fakeSearcher struct {
	results []semantic.Result
	err     error
}

func (s *fakeSearcher) Search(context.Context, string, int) ([]semantic.Result, error) {
	return s.results, s.err
}

func newTestServer(reader *fakeReader, searcher *fakeSearcher) *httptest.Server {
	return httptest.NewServer(NewServer(reader, searcher, zap.NewNop()).Handler())
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&fakeReader{}, &fakeSearcher{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestReadyzReportsStoreFailure(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&fakeReader{err: errors.New("pool closed")}, &fakeSearcher{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestGetVorgang(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&fakeReader{byID: map[string]model.Vorgang{
		"282440": {ID: "282440", Titel: "Testgesetz"},
	}}, &fakeSearcher{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/vorgaenge/282440")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var v model.Vorgang
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	assert.Equal(t, "Testgesetz", v.Titel)
}

func TestGetVorgangNotFound(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&fakeReader{}, &fakeSearcher{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/vorgaenge/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListVorgaenge(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&fakeReader{list: []model.Vorgang{
		{ID: "1"}, {ID: "2"},
	}}, &fakeSearcher{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/vorgaenge/?status=Überwiesen&sort=datum&order=desc")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, 2, payload.Count)
}

func TestListVorgaengeBadSortField(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&fakeReader{}, &fakeSearcher{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/vorgaenge/?sort=raw_json")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearch(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&fakeReader{}, &fakeSearcher{results: []semantic.Result{
		{VorgangID: "1", Score: 0.9, Titel: "Treffer"},
	}})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/search?q=digitalisierung&k=5")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Query   string            `json:"query"`
		Results []semantic.Result `json:"results"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "digitalisierung", payload.Query)
	require.Len(t, payload.Results, 1)
	assert.Equal(t, "1", payload.Results[0].VorgangID)
}

func TestSearchRequiresQuery(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&fakeReader{}, &fakeSearcher{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/search")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	srv := newTestServer(&fakeReader{}, &fakeSearcher{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
