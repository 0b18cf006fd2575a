package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Re-chunk and re-embed every stored document",
	Long: `Rebuild all chunks and vectors from the stored document text, for example
after changing the chunk size or the embedding model. This also happens
automatically when those settings change.`,
	Args: cobra.NoArgs,
	RunE: runReindex,
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	a, err := openApp(cmd.Context(), cfg, GetRootDir(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.ingest.Reindex(cmd.Context(), newProgress("Reindexing"))
	if err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	if err := a.bolt.Migrate(cfg); err != nil {
		return fmt.Errorf("failed to update schema info: %w", err)
	}

	printReport("Reindex complete", report)
	return nil
}
