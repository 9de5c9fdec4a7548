package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crawlify/crawlify/internal/ingest"
)

// normalizeEntities maps CLI stream names to the stream directory and the
// canonical entity its records map into.
var normalizeEntities = map[string]struct {
	dir    string
	entity ingest.Entity
}{
	"vorgang":         {"vorgang", ingest.EntityVorgang},
	"drucksache":      {"drucksache", ingest.EntityDrucksache},
	"drucksache-text": {"drucksache_text", ingest.EntityDrucksacheText},
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize [stream]",
	Short: "Normalize fetched raw pages into Postgres",
	Long: `Replays the committed raw page artifacts of one stream through
normalization and upserts the canonical records. Safe to re-run; upserts
are idempotent.`,
	Args: cobra.ExactArgs(1),
	RunE: runNormalize,
}

func init() {
	rootCmd.AddCommand(normalizeCmd)
}

func runNormalize(cmd *cobra.Command, args []string) error {
	target, ok := normalizeEntities[args[0]]
	if !ok {
		return fmt.Errorf("unknown stream %q (want vorgang, drucksache or drucksache-text)", args[0])
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()
	ctx := cmd.Context()

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	pipeline := ingest.New(st, a.clock, a.logger)
	summary, err := pipeline.RunDir(ctx, a.cfg.Storage.LocalDir, target.dir, target.entity)
	if err != nil {
		return err
	}
	cmd.Printf("%s: %d pages, %d records, %d upserted, %d skipped, %d conflicts\n",
		summary.Stream, summary.Pages, summary.Records, summary.Upserted, summary.Skipped, summary.Conflicts)
	return nil
}
