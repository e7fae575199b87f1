package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/mfenderov/browseflow/internal/classifier"
	"github.com/mfenderov/browseflow/internal/config"
	"github.com/mfenderov/browseflow/internal/events"
	"github.com/mfenderov/browseflow/internal/eventstore"
	"github.com/mfenderov/browseflow/internal/export"
	"github.com/mfenderov/browseflow/internal/metrics"
	"github.com/mfenderov/browseflow/internal/pipeline"
	"github.com/mfenderov/browseflow/internal/synth"
	"github.com/mfenderov/browseflow/pkg/models"
	"github.com/spf13/cobra"
)

var (
	generateInputs    []string
	generateFromDB    bool
	generateFrom      int64
	generateTo        int64
	generateExportDir string
	generateNoSave    bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate workflows from captured events",
	Long: `Reduce captured browser events to validated, deduplicated workflows,
save them to Elasticsearch and export them as JSON documents.

Each input file is processed as its own batch. With --db, the events in
the time range are read from the event database as one batch.

Examples:
  # Generate from a capture file
  browseflow generate --input capture.json

  # Generate from the event database, last hour only
  browseflow generate --db --from 1760000000000

  # Export only, without saving to Elasticsearch
  browseflow generate --input capture.json --no-save --export-dir ./out`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringSliceVar(&generateInputs, "input", nil, "event batch file(s) to process")
	generateCmd.Flags().BoolVar(&generateFromDB, "db", false, "read events from the event database")
	generateCmd.Flags().Int64Var(&generateFrom, "from", 0, "with --db, first timestamp (ms) to include")
	generateCmd.Flags().Int64Var(&generateTo, "to", 0, "with --db, timestamp (ms) to stop before (0 = no limit)")
	generateCmd.Flags().StringVar(&generateExportDir, "export-dir", "", "directory for exported workflow files (default from config)")
	generateCmd.Flags().BoolVar(&generateNoSave, "no-save", false, "skip saving workflows to Elasticsearch")
}

// source is one batch of events to process.
type source struct {
	name   string
	events []models.Event
}

func loadSources(ctx context.Context, cfg *config.Config) ([]source, error) {
	if generateFromDB {
		store, err := eventstore.Open(cfg.EventsDB.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open event database: %w", err)
		}
		defer store.Close()

		evts, err := store.LoadRange(ctx, generateFrom, generateTo)
		if err != nil {
			return nil, err
		}
		return []source{{name: cfg.EventsDB.Path, events: evts}}, nil
	}

	if len(generateInputs) == 0 {
		return nil, fmt.Errorf("no --input files and no --db provided")
	}

	var sources []source
	for _, path := range generateInputs {
		batch, err := readEvents(path)
		if err != nil {
			return nil, err
		}
		sources = append(sources, source{name: path, events: batch.Events})
	}
	return sources, nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	slog.Debug("generate command starting", "inputs", generateInputs, "db", generateFromDB, "no_save", generateNoSave)

	sources, err := loadSources(ctx, &cfg)
	if err != nil {
		return err
	}

	p, exporters, err := buildGenerator(ctx, &cfg)
	if err != nil {
		return err
	}

	// Without an index the dedup lookup reads the exports, so each batch
	// must be written before the next one is deduplicated.
	summary := generateAll(ctx, p, exporters, sources, generateNoSave)

	fmt.Printf("\nTotal: %d workflows generated, %d files exported in %v\n",
		summary.workflows, summary.exported, summary.duration)

	return ctx.Err()
}

// batchRunner runs the pipeline over one event batch.
type batchRunner interface {
	Run(ctx context.Context, events []models.Event) (*pipeline.Result, error)
}

type generateSummary struct {
	workflows int
	exported  int
	duration  time.Duration
}

// generateAll runs the pipeline per source (producer) and hands each result
// to an export worker (consumer). With waitExport the producer blocks until
// the previous batch is exported.
func generateAll(ctx context.Context, r batchRunner, exporters []exporter, sources []source, waitExport bool) generateSummary {
	var summary generateSummary

	// Event channel for generated workflows
	generated := make(chan events.WorkflowsGeneratedEvent)
	exported := make(chan struct{}, 1)
	done := make(chan struct{})

	// Start export worker (consumer)
	go func() {
		defer close(done)
		for event := range generated {
			complete := exportBatch(ctx, exporters, event)
			summary.exported += len(complete.Paths)

			fmt.Printf("  Exported: %d files in %v\n", len(complete.Paths), complete.Duration)
			for _, e := range complete.Errors {
				fmt.Printf("  Warning: %s\n", e)
			}
			if waitExport {
				exported <- struct{}{}
			}
		}
	}()

	for _, src := range sources {
		fmt.Printf("Processing: %s (%d events)\n", src.name, len(src.events))

		result, err := r.Run(ctx, src.events)
		if err != nil {
			fmt.Printf("  Error: %v\n", err)
			break
		}

		summary.workflows += len(result.Workflows)
		summary.duration += result.Duration
		printResult(result)

		if len(result.Workflows) == 0 {
			continue
		}
		generated <- events.WorkflowsGeneratedEvent{
			BatchID:   result.BatchID,
			Source:    src.name,
			Workflows: result.Workflows,
			Timestamp: time.Now(),
		}
		if waitExport {
			select {
			case <-exported:
			case <-ctx.Done():
			}
		}
	}

	// Close channel and wait for exports to complete
	close(generated)
	<-done

	return summary
}

func printResult(r *pipeline.Result) {
	fmt.Printf("  Batch: %s\n", r.BatchID)
	fmt.Printf("  Events: %d kept of %d\n", r.EventsKept, r.EventsIn)
	fmt.Printf("  Pages: %d (%d backfilled), Segments: %d, Classified: %d, Scored: %d\n",
		r.Pages, r.PagesFilled, r.Segments, r.Classified, r.Scored)
	fmt.Printf("  Workflows: %d synthesized, %d rejected, %d unique\n",
		r.Synthesized, len(r.Rejections), len(r.Workflows))
	fmt.Printf("  Duplicates: %d in batch, %d already stored\n", r.Dedup.MergedInBatch, r.Dedup.MatchedExisting)
	if len(r.SavedIDs) > 0 {
		fmt.Printf("  Saved: %d\n", len(r.SavedIDs))
	}
	for _, rej := range r.Rejections {
		fmt.Printf("  Rejected: %s\n", rej)
	}
	if len(r.Errors) > 0 {
		fmt.Printf("  Warnings: %d\n", len(r.Errors))
		for _, e := range r.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}
}

// exporter writes workflows somewhere and reports what it wrote.
type exporter interface {
	Export(ctx context.Context, workflows []models.Workflow) ([]string, error)
}

func exportBatch(ctx context.Context, exporters []exporter, event events.WorkflowsGeneratedEvent) events.ExportCompleteEvent {
	start := time.Now()
	complete := events.ExportCompleteEvent{BatchID: event.BatchID}
	for _, ex := range exporters {
		paths, err := ex.Export(ctx, event.Workflows)
		complete.Paths = append(complete.Paths, paths...)
		if err != nil {
			complete.Errors = append(complete.Errors, err.Error())
		}
	}
	complete.Duration = time.Since(start)
	metrics.AddWorkflows(metrics.OutcomeExported, len(complete.Paths))
	return complete
}

// buildGenerator wires the pipeline and the exporters from configuration.
func buildGenerator(ctx context.Context, cfg *config.Config) (*pipeline.Pipeline, []exporter, error) {
	llmClient, err := newLLMClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	if llmClient == nil {
		return nil, nil, fmt.Errorf("workflow generation requires the LLM - set llm.enabled and llm.socket_path")
	}

	embedClient, err := newEmbedClient(cfg)
	if err != nil {
		return nil, nil, err
	}

	tools := loadCatalog(cfg)

	deps := pipeline.Deps{
		Classifier:  classifier.NewLLM(llmClient, tools.Categories()),
		Synthesizer: synth.New(llmClient, synth.DefaultConfig()),
		Catalog:     tools,
		Oracle:      newOracle(cfg, llmClient, embedClient),
	}
	if f := newFetcher(cfg); f != nil {
		deps.Backfiller = f
	}

	var exporters []exporter

	dir := generateExportDir
	if dir == "" {
		dir = cfg.Export.Dir
	}
	if dir != "" {
		w, err := export.NewDirWriter(dir, tools)
		if err != nil {
			return nil, nil, err
		}
		exporters = append(exporters, w)
		deps.Lookup = w
	}

	storageClient, err := newStorageClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	if storageClient != nil {
		if err := storageClient.EnsureBucket(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to ensure bucket: %w", err)
		}
		w := export.NewBucketWriter(storageClient, cfg.Storage.Prefix, tools)
		exporters = append(exporters, w)
		deps.Lookup = w
	}

	if !generateNoSave {
		esClient, err := newESClient(cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := esClient.CreateIndex(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to create index: %w", err)
		}
		deps.Store = esClient
		deps.Lookup = esClient
		if embedClient != nil {
			deps.Embedder = embedClient
		}
	}

	p, err := pipeline.New(pipelineConfig(cfg), deps)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	return p, exporters, nil
}
