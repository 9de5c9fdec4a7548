package cli

import (
	"github.com/spf13/cobra"

	"github.com/crawlify/crawlify/internal/semantic"
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Compute embeddings for records without one",
	Long: `Assembles the embedding text (title, abstract, document full texts)
for every Vorgang missing a vector under the active embedding version and
stores the computed vectors.`,
	RunE: runEmbed,
}

func init() {
	rootCmd.AddCommand(embedCmd)
}

func runEmbed(cmd *cobra.Command, _ []string) error {
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
	pipeline := semantic.NewPipeline(st, embedder, semantic.PipelineConfig{
		Version:    a.cfg.Embedding.Version,
		MaxChars:   a.cfg.Embedding.MaxChars,
		BatchLimit: a.cfg.Embedding.BatchLimit,
	}, a.logger)

	written, err := pipeline.Run(ctx)
	if err != nil {
		return err
	}
	cmd.Printf("embedded %d vorgaenge\n", written)
	return nil
}
