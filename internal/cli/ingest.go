package cli

import (
	"fmt"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"docrag/config"
	"docrag/internal/usecase"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [paths...]",
	Short: "Ingest documents for retrieval",
	Long: `Extract, chunk and embed documents. Directories are walked using the
configured include and exclude patterns; files given directly are always ingested.
Unchanged documents are skipped, changed ones replace their previous version.
The index is stored in .docrag/index.db within the data directory.

Examples:
  docrag ingest .                  # Ingest the current directory
  docrag ingest handbook.pdf notes # Ingest a file and a directory`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	a, err := openApp(cmd.Context(), cfg, GetRootDir(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("Ingesting %d path(s)...\n", len(args))
	report, err := a.ingest.IngestPaths(cmd.Context(), args, newProgress("Ingesting"))
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	printReport("Ingestion complete", report)
	fmt.Printf("\nIndex stored at: %s\n", config.IndexDBPath(GetRootDir()))
	return nil
}

// newProgress returns a progress callback that lazily creates a bar once the
// total is known.
func newProgress(label string) usecase.ProgressFunc {
	var bar *progressbar.ProgressBar
	var mu sync.Mutex
	var startTime time.Time

	return func(processed, total int, _ string) {
		mu.Lock()
		defer mu.Unlock()

		if bar == nil {
			startTime = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]"+label+"[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}

		bar.Set(processed)

		if processed > 0 {
			elapsed := time.Since(startTime)
			rate := float64(processed) / elapsed.Seconds()
			remaining := total - processed
			if rate > 0 {
				eta := time.Duration(float64(remaining)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]%s[reset] ETA: %s", label, formatDuration(eta)))
			}
		}
	}
}

func printReport(title string, report *usecase.IngestReport) {
	fmt.Printf("\n%s:\n", title)
	fmt.Printf("  Documents ingested: %d\n", report.FilesIngested)
	fmt.Printf("  Documents skipped:  %d (unchanged)\n", report.FilesSkipped)
	fmt.Printf("  Chunks created:     %d\n", report.ChunksCreated)

	if len(report.Errors) > 0 {
		fmt.Printf("\nWarnings:\n")
		for _, e := range report.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
