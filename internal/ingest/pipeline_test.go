package ingest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crawlify/crawlify/internal/dip"
	"github.com/crawlify/crawlify/internal/model"
)

type staticClock struct{ now time.Time }

func (c staticClock) Now() time.Time { return c.now }

type recordingWriter struct {
	vorgaenge   []model.Vorgang
	drucksachen []model.Drucksache
	texte       []model.DrucksacheText
	failWith    error
}

func (w *recordingWriter) UpsertVorgang(_ context.Context, v model.Vorgang) error {
	if w.failWith != nil {
		return w.failWith
	}
	w.vorgaenge = append(w.vorgaenge, v)
	return nil
}

func (w *recordingWriter) UpsertDrucksache(_ context.Context, d model.Drucksache) error {
	if w.failWith != nil {
		return w.failWith
	}
	w.drucksachen = append(w.drucksachen, d)
	return nil
}

func (w *recordingWriter) UpsertDrucksacheText(_ context.Context, t model.DrucksacheText) error {
	if w.failWith != nil {
		return w.failWith
	}
	w.texte = append(w.texte, t)
	return nil
}

func writePageFile(t *testing.T, dir, stream string, seq int, payload map[string]any) {
	t.Helper()
	streamDir := filepath.Join(dir, stream)
	require.NoError(t, os.MkdirAll(streamDir, 0o750))
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	name := filepath.Join(streamDir, stream+"_page_0000"+string(rune('0'+seq))+".json")
	require.NoError(t, os.WriteFile(name, data, 0o600))
}

func TestRunDirIngestsVorgangPages(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writePageFile(t, dir, "vorgang", 0, map[string]any{
		"documents": []any{
			map[string]any{"id": "1", "titel": "Erster"},
			map[string]any{"id": "2", "titel": "Zweiter"},
		},
	})
	writePageFile(t, dir, "vorgang", 1, map[string]any{
		"documents": []any{
			map[string]any{"id": "3", "titel": "Dritter"},
		},
	})

	writer := &recordingWriter{}
	p := New(writer, staticClock{now: time.Now()}, zap.NewNop())

	summary, err := p.RunDir(context.Background(), dir, "vorgang", EntityVorgang)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Pages)
	assert.Equal(t, 3, summary.Records)
	assert.Equal(t, 3, summary.Upserted)
	assert.Equal(t, 0, summary.Skipped)
	require.Len(t, writer.vorgaenge, 3)
	assert.Equal(t, "1", writer.vorgaenge[0].ID)
}

func TestRunDirSkipsMalformedRecords(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writePageFile(t, dir, "vorgang", 0, map[string]any{
		"documents": []any{
			map[string]any{"titel": "kein id"},
			map[string]any{"id": "2"},
		},
	})

	writer := &recordingWriter{}
	p := New(writer, staticClock{now: time.Now()}, zap.NewNop())

	summary, err := p.RunDir(context.Background(), dir, "vorgang", EntityVorgang)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Upserted)
	require.Len(t, writer.vorgaenge, 1)
}

func TestRunDirCountsConflicts(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writePageFile(t, dir, "drucksache", 0, map[string]any{
		"documents": []any{
			map[string]any{"id": "D1", "vorgang_id": "missing"},
		},
	})

	writer := &recordingWriter{failWith: &dip.ConflictError{Entity: "drucksache", ID: "D1"}}
	p := New(writer, staticClock{now: time.Now()}, zap.NewNop())

	summary, err := p.RunDir(context.Background(), dir, "drucksache", EntityDrucksache)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Conflicts)
	assert.Equal(t, 0, summary.Upserted)
}

func TestRunDirStorageFailureAborts(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writePageFile(t, dir, "vorgang", 0, map[string]any{
		"documents": []any{map[string]any{"id": "1"}},
	})

	writer := &recordingWriter{failWith: context.DeadlineExceeded}
	p := New(writer, staticClock{now: time.Now()}, zap.NewNop())

	_, err := p.RunDir(context.Background(), dir, "vorgang", EntityVorgang)
	require.Error(t, err)
}

// Re-running over the same artifacts replays the same upserts; the writer
// sees identical records both times.
func TestRunDirIsRepeatable(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writePageFile(t, dir, "vorgang", 0, map[string]any{
		"documents": []any{map[string]any{"id": "1", "titel": "T"}},
	})

	clock := staticClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	writer := &recordingWriter{}
	p := New(writer, clock, zap.NewNop())

	ctx := context.Background()
	_, err := p.RunDir(ctx, dir, "vorgang", EntityVorgang)
	require.NoError(t, err)
	_, err = p.RunDir(ctx, dir, "vorgang", EntityVorgang)
	require.NoError(t, err)

	require.Len(t, writer.vorgaenge, 2)
	assert.Equal(t, writer.vorgaenge[0], writer.vorgaenge[1])
}

func TestRunDirEmptyDirIsNoop(t *testing.T) {
	t.Parallel()
	p := New(&recordingWriter{}, staticClock{now: time.Now()}, zap.NewNop())
	summary, err := p.RunDir(context.Background(), t.TempDir(), "vorgang", EntityVorgang)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Pages)
}

func TestParentVorgangIDVariants(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "v1", parentVorgangID(dip.RawRecord{"vorgang_id": "v1"}))
	assert.Equal(t, "v2", parentVorgangID(dip.RawRecord{"vorgang": []any{"v2", "v3"}}))
	assert.Equal(t, "", parentVorgangID(dip.RawRecord{}))
}
