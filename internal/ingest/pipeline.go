// Package ingest replays committed raw page artifacts through normalization
// and the idempotent upsert layer. Re-running it over the same pages is a
// no-op by construction, so fetch and ingest can overlap or retry freely.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/crawlify/crawlify/internal/dip"
	"github.com/crawlify/crawlify/internal/metrics"
	"github.com/crawlify/crawlify/internal/model"
	"github.com/crawlify/crawlify/internal/normalize"
)

// Entity selects which canonical schema a stream's records map into.
type Entity string

const (
	EntityVorgang        Entity = "vorgang"
	EntityDrucksache     Entity = "drucksache"
	EntityDrucksacheText Entity = "drucksache_text"
)

// Writer is the subset of the storage layer the pipeline needs.
type Writer interface {
	UpsertVorgang(ctx context.Context, v model.Vorgang) error
	UpsertDrucksache(ctx context.Context, d model.Drucksache) error
	UpsertDrucksacheText(ctx context.Context, t model.DrucksacheText) error
}

// Summary reports one ingest run.
type Summary struct {
	Stream    string
	Pages     int
	Records   int
	Upserted  int
	Skipped   int
	Conflicts int
}

// Pipeline normalizes raw records and writes them through a Writer.
type Pipeline struct {
	writer Writer
	clock  dip.Clock
	logger *zap.Logger
}

// New constructs a Pipeline.
func New(writer Writer, clock dip.Clock, logger *zap.Logger) *Pipeline {
	metrics.Init()
	return &Pipeline{writer: writer, clock: clock, logger: logger}
}

// RunDir ingests every committed page artifact of one stream under dir, in
// sequence order. Malformed records are skipped and counted; storage and IO
// failures abort the run.
func (p *Pipeline) RunDir(ctx context.Context, dir, stream string, entity Entity) (Summary, error) {
	summary := Summary{Stream: stream}

	pattern := filepath.Join(dir, stream, stream+"_page_*.json")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return summary, fmt.Errorf("glob page files: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return summary, fmt.Errorf("read page file %s: %w", file, err)
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			return summary, fmt.Errorf("decode page file %s: %w", file, err)
		}
		summary.Pages++
		if err := p.ingestPage(ctx, raw, entity, &summary); err != nil {
			return summary, fmt.Errorf("ingest %s: %w", file, err)
		}
	}

	p.logger.Info("ingest finished",
		zap.String("stream", stream),
		zap.Int("pages", summary.Pages),
		zap.Int("records", summary.Records),
		zap.Int("upserted", summary.Upserted),
		zap.Int("skipped", summary.Skipped),
		zap.Int("conflicts", summary.Conflicts),
	)
	return summary, nil
}

func (p *Pipeline) ingestPage(ctx context.Context, raw map[string]any, entity Entity, summary *Summary) error {
	items := dip.ExtractItems(raw)
	seenAt := p.clock.Now()

	for _, rec := range items {
		summary.Records++
		err := p.ingestRecord(ctx, rec, entity, seenAt)
		switch {
		case err == nil:
			summary.Upserted++
		case dip.IsSchemaError(err):
			summary.Skipped++
			metrics.ObserveSkip("schema")
			p.logger.Warn("skipping malformed record", zap.String("entity", string(entity)), zap.Error(err))
		case dip.IsConflictError(err):
			summary.Conflicts++
			metrics.ObserveSkip("conflict")
			p.logger.Warn("skipping conflicting record", zap.String("entity", string(entity)), zap.Error(err))
		default:
			return err
		}
	}
	return nil
}

func (p *Pipeline) ingestRecord(ctx context.Context, rec dip.RawRecord, entity Entity, seenAt time.Time) error {
	switch entity {
	case EntityVorgang:
		v, err := normalize.Vorgang(rec, seenAt)
		if err != nil {
			return err
		}
		return p.writer.UpsertVorgang(ctx, v)
	case EntityDrucksache:
		d, err := normalize.Drucksache(rec, parentVorgangID(rec), seenAt)
		if err != nil {
			return err
		}
		return p.writer.UpsertDrucksache(ctx, d)
	case EntityDrucksacheText:
		t, err := normalize.DrucksacheText(rec, seenAt)
		if err != nil {
			return err
		}
		return p.writer.UpsertDrucksacheText(ctx, t)
	default:
		return fmt.Errorf("unknown entity %q", entity)
	}
}

// parentVorgangID resolves the owning case id from a drucksache record. The
// API emits it either as a plain string or as a one-or-more element list.
func parentVorgangID(rec dip.RawRecord) string {
	for _, key := range []string{"vorgang_id", "vorgangId", "vorgang"} {
		switch v := rec[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case []any:
			if len(v) > 0 {
				if s, ok := v[0].(string); ok {
					return s
				}
			}
		}
	}
	return ""
}
