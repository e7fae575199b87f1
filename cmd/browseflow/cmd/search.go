package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mfenderov/browseflow/pkg/models"
	"github.com/spf13/cobra"
)

var (
	searchLimit  int
	searchFormat string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search stored workflows",
	Long: `Search the workflows stored in Elasticsearch. When embeddings are
enabled, keyword and vector results are combined.

Examples:
  # Basic search
  browseflow search "export orders"

  # Limit results
  browseflow search "expense report" --limit 5

  # JSON output for scripting
  browseflow search "invoice" --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "Maximum number of results")
	searchCmd.Flags().StringVar(&searchFormat, "format", "text", "Output format: text or json")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	query := args[0]
	cfg := GetConfig()

	esClient, err := newESClient(&cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}
	embedClient, err := newEmbedClient(&cfg)
	if err != nil {
		return err
	}

	var workflows []models.Workflow
	if embedClient != nil {
		embedding, embedErr := embedClient.Embed(ctx, query)
		if embedErr != nil {
			slog.Warn("query embedding failed, using keyword search", "error", embedErr)
		}
		workflows, err = esClient.HybridSearch(ctx, query, embedding, searchLimit)
	} else {
		workflows, err = esClient.Search(ctx, query, searchLimit)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(workflows) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	if searchFormat == "json" {
		output, err := json.MarshalIndent(workflows, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Found %d results:\n\n", len(workflows))
	for i, wf := range workflows {
		fmt.Printf("─── Result %d ───\n", i+1)
		fmt.Printf("Summary:    %s\n", wf.Summary)
		fmt.Printf("Domain:     %s\n", wf.Domain)
		fmt.Printf("Pattern:    %s\n", wf.URLPattern)
		fmt.Printf("Confidence: %.2f\n", wf.ConfidenceScore)
		fmt.Printf("ID:         %s\n", wf.ID)
		if names := wf.ToolNames(); len(names) > 0 {
			fmt.Printf("Tools:      %s\n", strings.Join(names, ", "))
		}
		fmt.Printf("Steps:\n")
		for j, step := range wf.Steps {
			fmt.Printf("  %d. [%s] %s\n", j+1, step.StepType, step.Description)
		}
		fmt.Println()
	}

	return nil
}
