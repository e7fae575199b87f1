package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mfenderov/browseflow/internal/eventstore"
	"github.com/mfenderov/browseflow/pkg/models"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import [file...]",
	Short: "Import captured event batches into the event database",
	Long: `Import captured browser events into the local SQLite event database.

Each file holds either a batch object ({"batch_id": ..., "events": [...]})
or a bare JSON array of events. A file with an invalid event is skipped as
a whole.

Examples:
  # Import one capture
  browseflow import capture.json

  # Import into a specific database
  browseflow import --config ./config/dev.yaml captures/*.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

// readEvents decodes a batch file.
func readEvents(path string) (models.Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Batch{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var batch models.Batch
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &batch.Events); err != nil {
			return models.Batch{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return batch, nil
	}
	if err := json.Unmarshal(data, &batch); err != nil {
		return models.Batch{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return batch, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	slog.Debug("import command starting", "db", cfg.EventsDB.Path, "files", len(args))

	store, err := eventstore.Open(cfg.EventsDB.Path)
	if err != nil {
		return fmt.Errorf("failed to open event database: %w", err)
	}
	defer store.Close()

	imported := 0
	var warnings []string
	for _, path := range args {
		batch, err := readEvents(path)
		if err != nil {
			warnings = append(warnings, err.Error())
			continue
		}
		if err := store.InsertEvents(ctx, batch.Events); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			warnings = append(warnings, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		imported += len(batch.Events)
		fmt.Printf("Imported: %s (%d events)\n", path, len(batch.Events))
	}

	total, err := store.Count(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\nImport complete:\n")
	fmt.Printf("  Events imported: %d\n", imported)
	fmt.Printf("  Events stored: %d\n", total)

	if len(warnings) > 0 {
		fmt.Printf("  Warnings: %d\n", len(warnings))
		for _, w := range warnings {
			fmt.Printf("    - %s\n", w)
		}
	}

	return nil
}
