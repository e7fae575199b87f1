// Package pipeline reduces a batch of browser events to deduplicated,
// validated workflows and saves them.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mfenderov/browseflow/internal/breakpoint"
	"github.com/mfenderov/browseflow/internal/catalog"
	"github.com/mfenderov/browseflow/internal/classifier"
	"github.com/mfenderov/browseflow/internal/dedup"
	"github.com/mfenderov/browseflow/internal/denoise"
	"github.com/mfenderov/browseflow/internal/metrics"
	"github.com/mfenderov/browseflow/internal/pages"
	"github.com/mfenderov/browseflow/internal/scoring"
	"github.com/mfenderov/browseflow/internal/segment"
	"github.com/mfenderov/browseflow/internal/validator"
	"github.com/mfenderov/browseflow/pkg/models"
)

// Synthesizer generates a workflow for a scored page segment.
type Synthesizer interface {
	Synthesize(ctx context.Context, seg models.PageSegment, confidence float64, tools []models.ToolDefinition) (*models.Workflow, error)
}

// Store persists workflows. The embedding may be nil.
type Store interface {
	SaveWithEmbedding(ctx context.Context, wf models.Workflow, embedding []float32) (string, error)
}

// Embedder produces embedding vectors for stored workflows.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Backfiller fills page sessions captured without content.
type Backfiller interface {
	Backfill(ctx context.Context, sessions []models.PageSession) ([]models.PageSession, int)
}

// Config holds the stage parameters.
type Config struct {
	Denoise    denoise.Config
	Breakpoint breakpoint.Config
	Pages      pages.Config
	Segment    segment.Config
	Scoring    scoring.Config
	Dedup      dedup.Config
}

// DefaultConfig returns the default parameters of every stage.
func DefaultConfig() Config {
	return Config{
		Denoise:    denoise.DefaultConfig(),
		Breakpoint: breakpoint.DefaultConfig(),
		Pages:      pages.DefaultConfig(),
		Segment:    segment.DefaultConfig(),
		Scoring:    scoring.DefaultConfig(),
		Dedup:      dedup.DefaultConfig(),
	}
}

// Deps are the external collaborators. Classifier and Synthesizer are
// required; the rest are optional.
type Deps struct {
	Classifier  classifier.Classifier
	Synthesizer Synthesizer
	Catalog     *catalog.Catalog
	Oracle      dedup.Oracle
	Lookup      dedup.Lookup
	Store       Store
	Embedder    Embedder
	Backfiller  Backfiller
}

// Result holds pipeline execution results.
type Result struct {
	BatchID        string
	EventsIn       int
	EventsKept     int
	Pages          int
	PagesFilled    int
	Segments       int
	Classified     int
	Scored         int
	Synthesized    int
	Rejections     []validator.Rejection
	Workflows      []models.Workflow // deduplicated, in output order
	Dedup          dedup.Stats
	SavedIDs       []string
	Duration       time.Duration
	Errors         []string // non-fatal failures
	DenoiseRemoved map[string]int
}

// Segmenter runs the event-level stages, which need no external collaborators.
type Segmenter struct {
	denoiser *denoise.Denoiser
	detector *breakpoint.Detector
	builder  *segment.Builder
	scorer   *scoring.Scorer
}

// NewSegmenter creates a Segmenter.
func NewSegmenter(config Config) *Segmenter {
	return &Segmenter{
		denoiser: denoise.New(config.Denoise),
		detector: breakpoint.New(config.Breakpoint),
		builder:  segment.New(config.Segment),
		scorer:   scoring.New(config.Scoring),
	}
}

// Pipeline runs the reduction stages in order.
type Pipeline struct {
	*Segmenter
	aggregator *pages.Aggregator
	validator  *validator.Validator
	dedup      *dedup.Deduplicator
	deps       Deps
}

// New creates a Pipeline.
func New(config Config, deps Deps) (*Pipeline, error) {
	if deps.Classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if deps.Synthesizer == nil {
		return nil, fmt.Errorf("synthesizer is required")
	}

	var tools validator.ToolSet
	if deps.Catalog != nil {
		tools = deps.Catalog
	}

	seg := NewSegmenter(config)
	return &Pipeline{
		Segmenter:  seg,
		aggregator: pages.New(config.Pages, seg.denoiser),
		validator:  validator.New(tools),
		dedup:      dedup.New(deps.Oracle, deps.Lookup, config.Dedup),
		deps:       deps,
	}, nil
}

func stage(name string, start time.Time) {
	metrics.ObserveStage(name, time.Since(start))
}

// Run reduces events to workflows. Failures of external collaborators are
// recorded in Result.Errors; only cancellation fails the run.
func (p *Pipeline) Run(ctx context.Context, events []models.Event) (*Result, error) {
	start := time.Now()
	result := &Result{
		BatchID:   uuid.NewString(),
		EventsIn:  len(events),
		Workflows: []models.Workflow{},
	}
	defer func() { result.Duration = time.Since(start) }()

	slog.Info("starting pipeline", "batch", result.BatchID, "events", len(events))
	if len(events) == 0 {
		return result, nil
	}

	t := time.Now()
	denoised, stats := p.denoiser.DenoiseWithStats(events)
	result.EventsKept = len(denoised)
	result.DenoiseRemoved = stats.Removed
	metrics.AddEvents(stats.Input, stats.Output)
	stage(metrics.StageDenoise, t)

	t = time.Now()
	sessions := p.aggregator.Aggregate(denoised)
	if p.deps.Backfiller != nil && len(sessions) > 0 {
		sessions, result.PagesFilled = p.deps.Backfiller.Backfill(ctx, sessions)
	}
	result.Pages = len(sessions)
	stage(metrics.StagePages, t)

	t = time.Now()
	segments := p.builder.Build(sessions)
	result.Segments = len(segments)
	stage(metrics.StageSegments, t)

	t = time.Now()
	classified, err := classifier.ClassifyPageSegments(ctx, p.deps.Classifier, segments)
	if err != nil {
		return result, fmt.Errorf("classification cancelled: %w", err)
	}
	result.Classified = len(classified)
	stage(metrics.StageClassify, t)

	scored, scores := p.scorer.ApplyPages(classified)
	result.Scored = len(scored)
	metrics.AddSegments(len(scored))

	t = time.Now()
	var generated []models.Workflow
	for i, seg := range scored {
		var tools []models.ToolDefinition
		if p.deps.Catalog != nil {
			tools = p.deps.Catalog.ByCategories(seg.ToolCategories)
		}
		wf, err := p.deps.Synthesizer.Synthesize(ctx, seg, scores[i], tools)
		if err != nil {
			if ctx.Err() != nil {
				return result, fmt.Errorf("synthesis cancelled: %w", ctx.Err())
			}
			slog.Warn("workflow synthesis failed", "domain", seg.Domain(), "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("synthesis for %s: %v", seg.Domain(), err))
			continue
		}
		generated = append(generated, *wf)
	}
	result.Synthesized = len(generated)
	metrics.AddWorkflows(metrics.OutcomeGenerated, len(generated))
	stage(metrics.StageSynthesis, t)

	valid, rejections := p.validator.Filter(generated)
	result.Rejections = rejections
	metrics.AddWorkflows(metrics.OutcomeRejected, len(rejections))
	for _, r := range rejections {
		slog.Info("rejected workflow", "id", r.WorkflowID, "summary", r.Summary, "reason", r.Reason())
	}

	t = time.Now()
	unique, dstats := p.dedup.Deduplicate(ctx, valid)
	result.Workflows = unique
	result.Dedup = dstats
	metrics.AddWorkflows(metrics.OutcomeDeduplicated, len(valid)-len(unique))
	metrics.AddOracleFallbacks(dstats.OracleFallbacks)
	stage(metrics.StageDedup, t)
	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("deduplication cancelled: %w", err)
	}

	if p.deps.Store != nil {
		t = time.Now()
		p.save(ctx, result)
		stage(metrics.StagePersist, t)
	}

	slog.Info("pipeline complete",
		"batch", result.BatchID,
		"events", result.EventsIn,
		"pages", result.Pages,
		"segments", result.Segments,
		"workflows", len(result.Workflows),
		"errors", len(result.Errors))
	return result, nil
}

func (p *Pipeline) save(ctx context.Context, result *Result) {
	for _, wf := range result.Workflows {
		var embedding []float32
		if p.deps.Embedder != nil {
			v, err := p.deps.Embedder.Embed(ctx, dedup.FeaturesOf(wf).Text())
			if err != nil {
				slog.Warn("failed to generate embedding", "workflow", wf.ID, "error", err)
			} else {
				embedding = v
			}
		}
		id, err := p.deps.Store.SaveWithEmbedding(ctx, wf, embedding)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("save %s: %v", wf.ID, err))
			continue
		}
		result.SavedIDs = append(result.SavedIDs, id)
	}
	metrics.AddWorkflows(metrics.OutcomeSaved, len(result.SavedIDs))
}

// Segments runs the event-level path: denoise, split at break points, filter
// by size and duration, classify heuristically and score. Segments below the
// confidence threshold are dropped.
func (s *Segmenter) Segments(ctx context.Context, events []models.Event) ([]models.Segment, error) {
	denoised := s.denoiser.Denoise(events)
	segments := s.builder.FromEvents(s.detector.Detect(denoised))
	classified, err := classifier.ClassifySegments(ctx, classifier.Heuristic{}, segments)
	if err != nil {
		return nil, err
	}
	return s.scorer.Apply(classified), nil
}
