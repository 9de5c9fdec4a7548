package semantic

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/crawlify/crawlify/internal/model"
)

// VectorStore is the storage surface the embed pipeline writes through.
type VectorStore interface {
	VorgaengeMissingEmbedding(ctx context.Context, version string, limit int) ([]model.Vorgang, error)
	BuildEmbeddingText(ctx context.Context, v model.Vorgang, maxChars int) (string, error)
	UpdateEmbedding(ctx context.Context, vorgangID string, vector []float32, version string) error
}

// PipelineConfig bounds one embed run.
type PipelineConfig struct {
	// Version tags the vectors; changing it re-embeds the corpus.
	Version string
	// MaxChars caps the assembled input text.
	MaxChars int
	// BatchLimit caps how many Vorgaenge one run processes.
	BatchLimit int
}

// Pipeline embeds Vorgaenge that have no vector for the active version.
type Pipeline struct {
	store    VectorStore
	embedder Embedder
	cfg      PipelineConfig
	logger   *zap.Logger
}

// NewPipeline constructs an embed Pipeline.
func NewPipeline(store VectorStore, embedder Embedder, cfg PipelineConfig, logger *zap.Logger) *Pipeline {
	if cfg.Version == "" {
		cfg.Version = "v1"
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 8000
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 1000
	}
	return &Pipeline{store: store, embedder: embedder, cfg: cfg, logger: logger}
}

// Run embeds one batch and returns how many vectors were written. Records
// whose assembled text is empty are left for a later run once their document
// texts have been ingested.
func (p *Pipeline) Run(ctx context.Context) (int, error) {
	pending, err := p.store.VorgaengeMissingEmbedding(ctx, p.cfg.Version, p.cfg.BatchLimit)
	if err != nil {
		return 0, fmt.Errorf("list pending vorgaenge: %w", err)
	}

	written := 0
	for _, v := range pending {
		text, err := p.store.BuildEmbeddingText(ctx, v, p.cfg.MaxChars)
		if err != nil {
			return written, fmt.Errorf("build embedding text for %s: %w", v.ID, err)
		}
		if text == "" {
			p.logger.Debug("no text to embed yet", zap.String("vorgang_id", v.ID))
			continue
		}
		vector, err := p.embedder.Embed(ctx, text)
		if err != nil {
			return written, fmt.Errorf("embed %s: %w", v.ID, err)
		}
		if err := p.store.UpdateEmbedding(ctx, v.ID, vector, p.cfg.Version); err != nil {
			return written, fmt.Errorf("store embedding for %s: %w", v.ID, err)
		}
		written++
	}

	p.logger.Info("embed run finished",
		zap.String("version", p.cfg.Version),
		zap.Int("pending", len(pending)),
		zap.Int("written", written),
	)
	return written, nil
}
