package cmd

import (
	"fmt"
	"log/slog"

	"github.com/mfenderov/browseflow/internal/breakpoint"
	"github.com/mfenderov/browseflow/internal/catalog"
	"github.com/mfenderov/browseflow/internal/config"
	"github.com/mfenderov/browseflow/internal/dedup"
	"github.com/mfenderov/browseflow/internal/denoise"
	"github.com/mfenderov/browseflow/internal/elasticsearch"
	"github.com/mfenderov/browseflow/internal/embeddings"
	"github.com/mfenderov/browseflow/internal/fetcher"
	"github.com/mfenderov/browseflow/internal/llm"
	"github.com/mfenderov/browseflow/internal/pages"
	"github.com/mfenderov/browseflow/internal/pipeline"
	"github.com/mfenderov/browseflow/internal/scoring"
	"github.com/mfenderov/browseflow/internal/segment"
	"github.com/mfenderov/browseflow/internal/storage"
)

func pipelineConfig(cfg *config.Config) pipeline.Config {
	bp := breakpoint.DefaultConfig()
	bp.LargeTimeGap = cfg.Breakpoint.LargeTimeGap
	bp.TabSwitchGap = cfg.Breakpoint.TabSwitchGap
	bp.ActivityWindow = cfg.Breakpoint.ActivityWindow
	bp.ActivityThreshold = cfg.Breakpoint.ActivityThreshold
	if len(cfg.Breakpoint.CompletionSignals) > 0 {
		bp.CompletionSignals = cfg.Breakpoint.CompletionSignals
	}
	if len(cfg.Breakpoint.CompletionKeywords) > 0 {
		bp.CompletionKeywords = cfg.Breakpoint.CompletionKeywords
	}

	sc := scoring.DefaultConfig()
	sc.MinConfidence = cfg.Scoring.MinConfidence
	sc.MinutesFactor = cfg.Scoring.MinutesFactor
	sc.Normalizer = cfg.Scoring.Normalizer
	for t, w := range cfg.Scoring.EventWeights {
		sc.EventWeights[t] = w
	}
	for t, b := range cfg.Scoring.TypeBonuses {
		sc.TypeBonuses[t] = b
	}

	dd := dedup.DefaultConfig()
	dd.ExistingWindow = cfg.Dedup.ExistingWindow
	dd.MaxConcurrency = cfg.Dedup.MaxConcurrency

	return pipeline.Config{
		Denoise: denoise.Config{
			RapidClickThreshold:         cfg.Denoise.RapidClickThreshold,
			TransientTabSwitchThreshold: cfg.Denoise.TransientTabSwitchThreshold,
			AccidentalEventThreshold:    cfg.Denoise.AccidentalEventThreshold,
			FocusBlurThreshold:          cfg.Denoise.FocusBlurThreshold,
			MaxConsecutiveClicks:        cfg.Denoise.MaxConsecutiveClicks,
		},
		Breakpoint: bp,
		Pages: pages.Config{
			MinPageDuration:  cfg.Pages.MinPageDuration,
			MaxContentLength: cfg.Pages.MaxContentLength,
		},
		Segment: segment.Config{
			MaxGap:      cfg.Segmentation.MaxGap,
			MinDuration: cfg.Segmentation.MinDuration,
			MaxDuration: cfg.Segmentation.MaxDuration,
			MinEvents:   cfg.Segmentation.MinEvents,
			MaxEvents:   cfg.Segmentation.MaxEvents,
		},
		Scoring: sc,
		Dedup:   dd,
	}
}

// newLLMClient returns nil when the LLM is disabled.
func newLLMClient(cfg *config.Config) (*llm.Client, error) {
	if !cfg.LLM.Enabled {
		return nil, nil
	}
	client, err := llm.New(llm.Config{
		SocketPath: cfg.LLM.SocketPath,
		Model:      cfg.LLM.Model,
		Timeout:    cfg.LLM.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	slog.Info("LLM enabled", "model", cfg.LLM.Model)
	return client, nil
}

// newEmbedClient returns nil when embeddings are disabled.
func newEmbedClient(cfg *config.Config) (*embeddings.Client, error) {
	if !cfg.Embeddings.Enabled {
		return nil, nil
	}
	client, err := embeddings.New(embeddings.Config{
		SocketPath: cfg.Embeddings.SocketPath,
		Model:      cfg.Embeddings.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings client: %w", err)
	}
	slog.Info("embeddings enabled", "model", cfg.Embeddings.Model)
	return client, nil
}

func newESClient(cfg *config.Config) (*elasticsearch.Client, error) {
	dims := 0
	if cfg.Embeddings.Enabled {
		dims = embeddings.Dimensions(cfg.Embeddings.Model)
	}
	client, err := elasticsearch.New(elasticsearch.Config{
		Addresses: cfg.Elasticsearch.Addresses,
		Index:     cfg.Elasticsearch.Index,
		Username:  cfg.Elasticsearch.Username,
		Password:  cfg.Elasticsearch.Password,
		Dims:      dims,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ES client: %w", err)
	}
	return client, nil
}

// newStorageClient returns nil when no storage endpoint is configured.
func newStorageClient(cfg *config.Config) (*storage.Client, error) {
	if cfg.Storage.Endpoint == "" {
		return nil, nil
	}
	client, err := storage.New(storage.Config{
		Endpoint:        cfg.Storage.Endpoint,
		Bucket:          cfg.Storage.Bucket,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		UseSSL:          cfg.Storage.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return client, nil
}

// loadCatalog falls back to an empty catalog when the tools directory is
// missing, so generation still runs without tool steps.
func loadCatalog(cfg *config.Config) *catalog.Catalog {
	c, err := catalog.Load(cfg.Tools.Dir)
	if err != nil {
		slog.Warn("tool catalog unavailable", "dir", cfg.Tools.Dir, "error", err)
		return catalog.New(nil)
	}
	return c
}

// newOracle picks the similarity oracle. A nil oracle treats every workflow
// as unique.
func newOracle(cfg *config.Config, llmClient *llm.Client, embedClient *embeddings.Client) dedup.Oracle {
	switch cfg.Dedup.Oracle {
	case "llm":
		if llmClient != nil {
			return dedup.NewLLMOracle(llmClient, cfg.Dedup.SimilarityThreshold)
		}
	case "embeddings":
		if embedClient != nil {
			return dedup.NewEmbeddingOracle(embedClient, cfg.Dedup.SimilarityThreshold)
		}
	case "none", "":
		return nil
	default:
		slog.Warn("unknown dedup oracle", "oracle", cfg.Dedup.Oracle)
		return nil
	}
	slog.Warn("dedup oracle not available, keeping all workflows", "oracle", cfg.Dedup.Oracle)
	return nil
}

// newFetcher returns nil when page backfill is disabled.
func newFetcher(cfg *config.Config) *fetcher.Fetcher {
	if !cfg.Fetcher.Enabled {
		return nil
	}
	return fetcher.New(fetcher.Config{
		Delay:            cfg.Fetcher.Delay,
		Parallelism:      cfg.Fetcher.Parallelism,
		UserAgent:        cfg.Fetcher.UserAgent,
		Timeout:          cfg.Fetcher.Timeout,
		MaxContentLength: cfg.Pages.MaxContentLength,
	})
}
