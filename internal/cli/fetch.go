package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crawlify/crawlify/internal/dip"
	"github.com/crawlify/crawlify/internal/fetch"
	"github.com/crawlify/crawlify/internal/publish/pubsub"
	"github.com/crawlify/crawlify/internal/state"
)

var (
	fetchResume   bool
	fetchMaxPages int
	fetchMaxItems int
)

// streamSpecs maps CLI stream names to their API endpoints. The drucksache
// and drucksache-text streams fan out per parent id instead of walking a
// single cursor.
var streamSpecs = map[string]fetch.StreamSpec{
	"vorgang": {
		Name:     "vorgang",
		Endpoint: "/vorgang",
		Filters:  map[string]string{"f.vorgangstyp": "Kleine Anfrage"},
	},
	"drucksache":      {Name: "drucksache", Endpoint: "/drucksache"},
	"drucksache-text": {Name: "drucksache_text", Endpoint: "/drucksache-text"},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [stream]",
	Short: "Fetch raw pages from the DIP API",
	Long: `Fetches one stream (vorgang, drucksache, drucksache-text) page by
page, writing each page as a raw artifact before advancing the cursor.
The drucksache and drucksache-text streams fetch per parent record already
present in the database.`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchResume, "resume", false, "continue from the persisted cursor")
	fetchCmd.Flags().IntVar(&fetchMaxPages, "max-pages", 0, "stop after this many pages (0 = unlimited)")
	fetchCmd.Flags().IntVar(&fetchMaxItems, "max-items", 0, "stop after this many records (0 = unlimited)")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	stream := args[0]
	spec, ok := streamSpecs[stream]
	if !ok {
		return fmt.Errorf("unknown stream %q (want vorgang, drucksache or drucksache-text)", stream)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()
	ctx := cmd.Context()

	orch, cleanup, err := a.buildOrchestrator(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	var summary dip.FetchSummary
	switch stream {
	case "vorgang":
		summary, err = orch.Run(ctx, spec, fetchResume)
	case "drucksache":
		summary, err = a.runFanOut(ctx, orch, spec, "f.vorgang", listVorgangIDs)
	case "drucksache-text":
		summary, err = a.runFanOut(ctx, orch, spec, "f.drucksache", listDrucksacheIDs)
	}
	if err != nil {
		return err
	}
	cmd.Printf("run %s: %d pages, %d records\n", summary.RunID, summary.PagesWritten, summary.RecordsWritten)
	return nil
}

type idLister func(ctx context.Context, a *app) ([]string, error)

func listVorgangIDs(ctx context.Context, a *app) ([]string, error) {
	st, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.ListVorgangIDs(ctx)
}

func listDrucksacheIDs(ctx context.Context, a *app) ([]string, error) {
	st, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.ListDrucksacheIDs(ctx)
}

func (a *app) runFanOut(ctx context.Context, orch *fetch.Orchestrator, spec fetch.StreamSpec, filterKey string, list idLister) (dip.FetchSummary, error) {
	ids, err := list(ctx, a)
	if err != nil {
		return dip.FetchSummary{}, fmt.Errorf("list parent ids: %w", err)
	}
	if len(ids) == 0 {
		return dip.FetchSummary{}, fmt.Errorf("no parent records found; fetch and normalize the parent stream first")
	}
	return orch.RunFanOut(ctx, spec, filterKey, ids)
}

// buildOrchestrator assembles the full fetch stack from config. The returned
// cleanup func releases sink and publisher resources.
func (a *app) buildOrchestrator(ctx context.Context) (*fetch.Orchestrator, func(), error) {
	manager, err := a.challengeManager()
	if err != nil {
		return nil, nil, err
	}
	client, err := a.dipClient(manager)
	if err != nil {
		return nil, nil, err
	}
	cursors, err := state.NewFileCursorStore(a.cfg.Fetch.StateDir)
	if err != nil {
		return nil, nil, err
	}
	sink, sinkCleanup, err := a.pageSink(ctx)
	if err != nil {
		return nil, nil, err
	}
	lock, err := fetch.NewRunLock(a.cfg.Fetch.LockDir)
	if err != nil {
		sinkCleanup()
		return nil, nil, err
	}

	var publisher dip.Publisher
	cleanup := sinkCleanup
	topic := ""
	if a.cfg.Publish.Enabled {
		pub, err := pubsub.New(ctx, a.cfg.Publish.ProjectID)
		if err != nil {
			sinkCleanup()
			return nil, nil, err
		}
		publisher = pub
		topic = a.cfg.Publish.TopicName
		cleanup = func() {
			_ = pub.Close()
			sinkCleanup()
		}
	}

	orch := fetch.New(client, cursors, sink, publisher, a.clock, lock, fetch.Config{
		MaxPages:     maxOr(fetchMaxPages, a.cfg.Fetch.MaxPages),
		MaxItems:     maxOr(fetchMaxItems, a.cfg.Fetch.MaxItems),
		PublishTopic: topic,
	}, a.logger)
	return orch, cleanup, nil
}

func maxOr(flag, cfg int) int {
	if flag > 0 {
		return flag
	}
	return cfg
}
