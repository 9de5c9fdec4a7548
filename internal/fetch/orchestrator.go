// Package fetch implements the resumable page-fetch orchestrator.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crawlify/crawlify/internal/dip"
	"github.com/crawlify/crawlify/internal/metrics"
)

// PageFetcher is the client contract the orchestrator drives.
type PageFetcher interface {
	FetchPage(ctx context.Context, req dip.PageRequest) (dip.Page, error)
}

// StreamSpec names one fetch stream and the endpoint/filters behind it.
type StreamSpec struct {
	Name     string
	Endpoint string
	Filters  map[string]string
}

// Config bounds a run.
type Config struct {
	// MaxPages and MaxItems stop the run early when positive.
	MaxPages int
	MaxItems int
	// PublishTopic enables page-committed events when non-empty.
	PublishTopic string
}

// Orchestrator drives the sequential fetch loop: page N+1 is never requested
// before page N's raw artifact and cursor state are durably committed.
type Orchestrator struct {
	client    PageFetcher
	cursors   dip.CursorStore
	sink      dip.PageSink
	publisher dip.Publisher
	clock     dip.Clock
	lock      *RunLock
	cfg       Config
	logger    *zap.Logger
}

// New constructs an Orchestrator. publisher may be nil.
func New(
	client PageFetcher,
	cursors dip.CursorStore,
	sink dip.PageSink,
	publisher dip.Publisher,
	clock dip.Clock,
	lock *RunLock,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	metrics.Init()
	return &Orchestrator{
		client:    client,
		cursors:   cursors,
		sink:      sink,
		publisher: publisher,
		clock:     clock,
		lock:      lock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run fetches spec's stream until exhaustion or a configured limit. With
// resume set, the run continues from the persisted cursor; otherwise the
// stream starts fresh. A transient or challenge failure aborts the run but
// leaves the cursor at the last committed page, so the next run loses at most
// one page of re-fetch, which the idempotent upsert layer absorbs.
func (o *Orchestrator) Run(ctx context.Context, spec StreamSpec, resume bool) (dip.FetchSummary, error) {
	release, err := o.lock.Acquire(spec.Name)
	if err != nil {
		return dip.FetchSummary{}, err
	}
	defer release()

	summary := dip.FetchSummary{
		RunID:  uuid.NewString(),
		Stream: spec.Name,
	}

	cursor := ""
	seq := 0
	if resume {
		cs, ok, err := o.cursors.Load(spec.Name)
		if err != nil {
			return summary, fmt.Errorf("load cursor state: %w", err)
		}
		if ok {
			cursor = cs.Cursor
			seq = cs.LastPage
			o.logger.Info("resuming stream",
				zap.String("stream", spec.Name),
				zap.Int("last_page", cs.LastPage),
			)
		}
	} else {
		if err := o.cursors.Reset(spec.Name); err != nil {
			return summary, fmt.Errorf("reset cursor state: %w", err)
		}
	}

	for {
		if o.cfg.MaxPages > 0 && summary.PagesWritten >= o.cfg.MaxPages {
			o.logger.Info("page limit reached", zap.String("stream", spec.Name), zap.Int("pages", summary.PagesWritten))
			break
		}
		if o.cfg.MaxItems > 0 && summary.RecordsWritten >= o.cfg.MaxItems {
			o.logger.Info("item limit reached", zap.String("stream", spec.Name), zap.Int("items", summary.RecordsWritten))
			break
		}

		page, err := o.client.FetchPage(ctx, dip.PageRequest{
			Endpoint: spec.Endpoint,
			Filters:  spec.Filters,
			Cursor:   cursor,
		})
		if err != nil {
			// Cursor state stays at the last committed page.
			summary.Errors = append(summary.Errors, err.Error())
			return summary, err
		}

		if err := o.commitPage(ctx, spec.Name, seq, page, &summary); err != nil {
			summary.Errors = append(summary.Errors, err.Error())
			return summary, err
		}
		seq++

		// End of stream: no cursor, or the API echoes the final cursor back.
		if page.Cursor == "" || page.Cursor == cursor {
			break
		}
		cursor = page.Cursor
	}

	o.logger.Info("fetch run finished",
		zap.String("run_id", summary.RunID),
		zap.String("stream", spec.Name),
		zap.Int("pages_written", summary.PagesWritten),
		zap.Int("records_written", summary.RecordsWritten),
		zap.Int("errors", len(summary.Errors)),
	)
	return summary, nil
}

// RunFanOut fetches one sub-stream per parent id (e.g. drucksache pages per
// vorgang). Sub-streams always start fresh and share one artifact sequence;
// cursor state is not persisted between parents.
func (o *Orchestrator) RunFanOut(ctx context.Context, spec StreamSpec, filterKey string, parentIDs []string) (dip.FetchSummary, error) {
	release, err := o.lock.Acquire(spec.Name)
	if err != nil {
		return dip.FetchSummary{}, err
	}
	defer release()

	summary := dip.FetchSummary{
		RunID:  uuid.NewString(),
		Stream: spec.Name,
	}
	seq := 0

	for _, parentID := range parentIDs {
		cursor := ""
		for {
			filters := make(map[string]string, len(spec.Filters)+1)
			for k, v := range spec.Filters {
				filters[k] = v
			}
			filters[filterKey] = parentID

			page, err := o.client.FetchPage(ctx, dip.PageRequest{
				Endpoint: spec.Endpoint,
				Filters:  filters,
				Cursor:   cursor,
			})
			if err != nil {
				summary.Errors = append(summary.Errors, err.Error())
				return summary, err
			}

			if err := o.commitPage(ctx, spec.Name, seq, page, &summary); err != nil {
				summary.Errors = append(summary.Errors, err.Error())
				return summary, err
			}
			seq++

			if page.Cursor == "" || page.Cursor == cursor {
				break
			}
			cursor = page.Cursor
		}
		if o.cfg.MaxItems > 0 && summary.RecordsWritten >= o.cfg.MaxItems {
			break
		}
	}

	o.logger.Info("fan-out fetch finished",
		zap.String("run_id", summary.RunID),
		zap.String("stream", spec.Name),
		zap.Int("parents", len(parentIDs)),
		zap.Int("pages_written", summary.PagesWritten),
	)
	return summary, nil
}

// commitPage writes the raw artifact, then persists cursor state, in that
// order. A crash between the two re-fetches and overwrites one page, which
// is safe.
func (o *Orchestrator) commitPage(ctx context.Context, stream string, seq int, page dip.Page, summary *dip.FetchSummary) error {
	data, err := json.MarshalIndent(page.Raw, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal raw page: %w", err)
	}
	uri, err := o.sink.WritePage(ctx, stream, seq, data)
	if err != nil {
		return fmt.Errorf("write raw page %d: %w", seq, err)
	}
	if err := o.cursors.Save(stream, dip.CursorState{
		Cursor:    page.Cursor,
		LastPage:  seq + 1,
		UpdatedAt: o.clock.Now(),
	}); err != nil {
		return fmt.Errorf("persist cursor state: %w", err)
	}

	metrics.ObservePageWritten(stream)
	summary.PagesWritten++
	summary.RecordsWritten += len(page.Items)

	o.publishCommitted(ctx, stream, seq, uri, len(page.Items), summary)
	return nil
}

// publishCommitted emits a page-committed event. Publish failures are recorded
// in the summary but never fail the run; the artifact is already durable.
func (o *Orchestrator) publishCommitted(ctx context.Context, stream string, seq int, uri string, records int, summary *dip.FetchSummary) {
	if o.publisher == nil || o.cfg.PublishTopic == "" {
		return
	}
	payload := map[string]any{
		"run_id":    summary.RunID,
		"stream":    stream,
		"page":      seq,
		"uri":       uri,
		"records":   records,
		"timestamp": o.clock.Now().Format("2006-01-02T15:04:05Z07:00"),
	}
	if _, err := o.publisher.Publish(ctx, o.cfg.PublishTopic, payload); err != nil {
		o.logger.Warn("publish page event failed", zap.String("stream", stream), zap.Int("page", seq), zap.Error(err))
		summary.Errors = append(summary.Errors, fmt.Sprintf("publish page %d: %v", seq, err))
	}
}
