package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crawlify/crawlify/internal/semantic"
)

var (
	searchLimit int
	searchJSON  bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Semantic search over stored Vorgaenge",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
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

	embedder, err := a.embedder()
	if err != nil {
		return err
	}
	searcher := semantic.NewSearcher(st, embedder, a.cfg.Embedding.Version)

	results, err := searcher.Search(ctx, args[0], searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}
	for i, res := range results {
		cmd.Printf("  [%d] %s (%.3f)\n", i+1, res.Titel, res.Score)
		if res.Datum != "" || res.Ressort != "" {
			cmd.Printf("      %s  %s\n", res.Datum, res.Ressort)
		}
		cmd.Printf("      id: %s\n", res.VorgangID)
	}
	return nil
}
