package semantic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crawlify/crawlify/internal/model"
)

type fakeVectorStore struct {
	pending []model.Vorgang
	texts   map[string]string
	updates map[string][]float32
}

func (s *fakeVectorStore) VorgaengeMissingEmbedding(_ context.Context, _ string, limit int) ([]model.Vorgang, error) {
	if len(s.pending) > limit {
		return s.pending[:limit], nil
	}
	return s.pending, nil
}

func (s *fakeVectorStore) BuildEmbeddingText(_ context.Context, v model.Vorgang, _ int) (string, error) {
	return s.texts[v.ID], nil
}

func (s *fakeVectorStore) UpdateEmbedding(_ context.Context, id string, vector []float32, _ string) error {
	if s.updates == nil {
		s.updates = make(map[string][]float32)
	}
	s.updates[id] = vector
	return nil
}

func TestPipelineEmbedsPendingVorgaenge(t *testing.T) {
	t.Parallel()
	fs := &fakeVectorStore{
		pending: []model.Vorgang{{ID: "1"}, {ID: "2"}},
		texts:   map[string]string{"1": "erster Text", "2": "zweiter Text"},
	}
	p := NewPipeline(fs, NewLocalEmbedder(32), PipelineConfig{Version: "v1"}, zap.NewNop())

	written, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, written)
	assert.Len(t, fs.updates, 2)
}

// Records whose document texts have not arrived yet stay pending rather than
// getting an empty-text vector.
func TestPipelineSkipsEmptyText(t *testing.T) {
	t.Parallel()
	fs := &fakeVectorStore{
		pending: []model.Vorgang{{ID: "1"}, {ID: "2"}},
		texts:   map[string]string{"2": "nur zweiter"},
	}
	p := NewPipeline(fs, NewLocalEmbedder(32), PipelineConfig{}, zap.NewNop())

	written, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, written)
	_, ok := fs.updates["1"]
	assert.False(t, ok)
}

func TestPipelineHonorsBatchLimit(t *testing.T) {
	t.Parallel()
	fs := &fakeVectorStore{
		pending: []model.Vorgang{{ID: "1"}, {ID: "2"}, {ID: "3"}},
		texts:   map[string]string{"1": "a", "2": "b", "3": "c"},
	}
	p := NewPipeline(fs, NewLocalEmbedder(32), PipelineConfig{BatchLimit: 2}, zap.NewNop())

	written, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, written)
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("service down")
}

func TestPipelineStopsOnEmbedderFailure(t *testing.T) {
	t.Parallel()
	fs := &fakeVectorStore{
		pending: []model.Vorgang{{ID: "1"}},
		texts:   map[string]string{"1": "text"},
	}
	p := NewPipeline(fs, failingEmbedder{}, PipelineConfig{}, zap.NewNop())

	_, err := p.Run(context.Background())
	require.Error(t, err)
}
