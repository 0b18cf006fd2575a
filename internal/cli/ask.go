package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	askQuery  string
	askJSON   bool
	promptOut string
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Answer a question from the ingested documents",
	Long: `Retrieve relevant chunks, pack them into the prompt budget and ask the
configured language model. The answer cites chunk source labels.

Examples:
  docrag ask -q "How long are backups kept?"`,
	RunE: runAsk,
}

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Print the prompt that ask would send",
	Long: `Retrieve and pack context for a query and render it with the configured
template ("answer" or "context") without calling a model.

Examples:
  docrag prompt -q "How long are backups kept?"
  docrag prompt -q "backups" -o prompt.txt`,
	RunE: runPrompt,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askQuery, "query", "q", "", "question (required)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output answer and context as JSON")
	askCmd.MarkFlagRequired("query")

	rootCmd.AddCommand(promptCmd)
	promptCmd.Flags().StringVarP(&askQuery, "query", "q", "", "question (required)")
	promptCmd.Flags().StringVarP(&promptOut, "output", "o", "", "write the prompt to a file instead of stdout")
	promptCmd.MarkFlagRequired("query")
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), GetConfig(), GetRootDir(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	answer, err := a.prompt.Ask(cmd.Context(), askQuery)
	if err != nil {
		return err
	}

	if askJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(answer)
	}

	fmt.Println(answer.Answer)
	if len(answer.Context.Snippets) > 0 {
		fmt.Printf("\nSources (%s):\n", answer.Model)
		for _, s := range answer.Context.Snippets {
			fmt.Printf("  - %s (%.3f)\n", s.Source, s.Score)
		}
	}
	return nil
}

func runPrompt(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), GetConfig(), GetRootDir(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	prompt, packed, err := a.prompt.Build(cmd.Context(), askQuery)
	if err != nil {
		return err
	}

	if promptOut != "" {
		if err := os.WriteFile(promptOut, []byte(prompt), 0644); err != nil {
			return fmt.Errorf("failed to write prompt: %w", err)
		}
		fmt.Printf("Prompt written to %s (%d snippets, %d/%d chars)\n",
			promptOut, len(packed.Snippets), packed.UsedChars, packed.BudgetChars)
		return nil
	}

	fmt.Print(prompt)
	return nil
}
