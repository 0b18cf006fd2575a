package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"docrag/internal/domain"
)

var docsJSON bool

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "List ingested documents",
	RunE:  runDocs,
}

var rmCmd = &cobra.Command{
	Use:   "rm <document-id>...",
	Short: "Remove documents with their chunks and vectors",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRemove,
}

func init() {
	rootCmd.AddCommand(docsCmd)
	docsCmd.Flags().BoolVar(&docsJSON, "json", false, "output as JSON")

	rootCmd.AddCommand(rmCmd)
}

func runDocs(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), GetConfig(), GetRootDir(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	docs, err := a.docs.ListDocs()
	if err != nil {
		return err
	}

	if docsJSON {
		if docs == nil {
			docs = []domain.Document{}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(docs)
	}

	if len(docs) == 0 {
		fmt.Println("No documents ingested.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tSIZE\tCHUNKS\tINGESTED")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			d.ID, d.Name, d.MimeType, d.Size, d.ChunkCount, d.IngestedAt.Format("2006-01-02 15:04"))
	}
	tw.Flush()

	stats, err := a.docs.GetStats()
	if err == nil {
		fmt.Printf("\n%d documents, %d chunks, %.0f chars per chunk on average\n",
			stats.TotalDocs, stats.TotalChunks, stats.AvgChunkLen)
	}
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), GetConfig(), GetRootDir(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	for _, id := range args {
		if err := a.ingest.Delete(cmd.Context(), id); err != nil {
			return fmt.Errorf("failed to remove %s: %w", id, err)
		}
		fmt.Printf("Removed %s\n", id)
	}
	return nil
}
