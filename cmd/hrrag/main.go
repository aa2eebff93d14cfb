package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/hrrag/internal/llm"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "hrrag",
		Short:         "Question answering over an HR policy document",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/hrrag.yaml", "Config file path")

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List available LLM providers",
		Run: func(cmd *cobra.Command, args []string) {
			names := make([]string, 0, len(llm.KnownProviders))
			for name := range llm.KnownProviders {
				names = append(names, name)
			}
			sort.Strings(names)

			fmt.Println("Available LLM providers:")
			fmt.Println()
			for _, name := range names {
				fmt.Printf("  %-14s %s\n", name, llm.KnownProviders[name])
			}
			fmt.Println("  custom         (set base_url to any OpenAI-compatible endpoint)")
			fmt.Println("  none           (no LLM: answers quote the best policy excerpts)")
			fmt.Println()
			fmt.Println("Configure in hrrag.yaml or via environment:")
			fmt.Println("  HRRAG_LLM_PROVIDER=openai")
			fmt.Println("  HRRAG_LLM_API_KEY=sk-...")
			fmt.Println("  HRRAG_LLM_MODEL=gpt-4o-mini")
			fmt.Println("  HRRAG_EMBEDDING_LOCAL=true   (embed on-device when no API key is set)")
		},
	}

	rootCmd.AddCommand(
		newServeCmd(&configPath),
		newQueryCmd(&configPath),
		newExtractCmd(),
		newChunkCmd(),
		newIndexCmd(&configPath),
		newBuildCmd(&configPath),
		newIngestCmd(&configPath),
		newTUICmd(&configPath),
		providersCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle("Error:"), err)
		os.Exit(1)
	}
}
