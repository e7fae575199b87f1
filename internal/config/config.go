package config

import "time"

// Config holds all application configuration.
type Config struct {
	Denoise       Denoise       `mapstructure:"denoise"`
	Breakpoint    Breakpoint    `mapstructure:"breakpoint"`
	Pages         Pages         `mapstructure:"pages"`
	Segmentation  Segmentation  `mapstructure:"segmentation"`
	Scoring       Scoring       `mapstructure:"scoring"`
	Dedup         Dedup         `mapstructure:"dedup"`
	LLM           LLM           `mapstructure:"llm"`
	Embeddings    Embeddings    `mapstructure:"embeddings"`
	Elasticsearch Elasticsearch `mapstructure:"elasticsearch"`
	Storage       Storage       `mapstructure:"storage"`
	EventsDB      EventsDB      `mapstructure:"events_db"`
	Tools         Tools         `mapstructure:"tools"`
	Fetcher       Fetcher       `mapstructure:"fetcher"`
	Export        Export        `mapstructure:"export"`
	MCP           MCP           `mapstructure:"mcp"`
	Metrics       Metrics       `mapstructure:"metrics"`
}

// Denoise holds event denoising thresholds.
type Denoise struct {
	RapidClickThreshold         time.Duration `mapstructure:"rapid_click_threshold"`
	TransientTabSwitchThreshold time.Duration `mapstructure:"transient_tab_switch_threshold"`
	AccidentalEventThreshold    time.Duration `mapstructure:"accidental_event_threshold"`
	FocusBlurThreshold          time.Duration `mapstructure:"focus_blur_threshold"`
	MaxConsecutiveClicks        int           `mapstructure:"max_consecutive_clicks"`
}

// Breakpoint holds break point detection parameters.
type Breakpoint struct {
	LargeTimeGap       time.Duration `mapstructure:"large_time_gap"`
	TabSwitchGap       time.Duration `mapstructure:"tab_switch_gap"`
	ActivityWindow     time.Duration `mapstructure:"activity_window"`
	ActivityThreshold  int           `mapstructure:"activity_threshold"`
	CompletionSignals  []string      `mapstructure:"completion_signals"`
	CompletionKeywords []string      `mapstructure:"completion_keywords"`
}

// Pages holds page aggregation parameters.
type Pages struct {
	MinPageDuration  time.Duration `mapstructure:"min_page_duration"`
	MaxContentLength int           `mapstructure:"max_content_length"`
}

// Segmentation holds segment grouping parameters.
type Segmentation struct {
	MaxGap      time.Duration `mapstructure:"max_gap"`
	MinDuration time.Duration `mapstructure:"min_duration"`
	MaxDuration time.Duration `mapstructure:"max_duration"`
	MinEvents   int           `mapstructure:"min_events"`
	MaxEvents   int           `mapstructure:"max_events"`
}

// Scoring holds confidence scoring parameters.
type Scoring struct {
	MinConfidence float64            `mapstructure:"min_confidence"`
	EventWeights  map[string]float64 `mapstructure:"event_weights"`
	TypeBonuses   map[string]float64 `mapstructure:"type_bonuses"`
	MinutesFactor float64            `mapstructure:"minutes_factor"`
	Normalizer    float64            `mapstructure:"normalizer"`
}

// Dedup holds workflow deduplication configuration.
type Dedup struct {
	Oracle              string  `mapstructure:"oracle"` // "llm", "embeddings" or "none"
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	ExistingWindow      int     `mapstructure:"existing_window"`
	MaxConcurrency      int     `mapstructure:"max_concurrency"`
}

// LLM holds the language model used for classification, synthesis and
// similarity checks.
type LLM struct {
	Enabled    bool          `mapstructure:"enabled"`
	SocketPath string        `mapstructure:"socket_path"`
	Model      string        `mapstructure:"model"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Embeddings holds embeddings generation configuration.
type Embeddings struct {
	Enabled    bool   `mapstructure:"enabled"`
	SocketPath string `mapstructure:"socket_path"`
	Model      string `mapstructure:"model"`
}

// Elasticsearch holds ES connection configuration.
type Elasticsearch struct {
	Addresses []string `mapstructure:"addresses"`
	Index     string   `mapstructure:"index"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

// Storage holds S3/MinIO storage configuration. An empty endpoint disables
// bucket export.
type Storage struct {
	Endpoint        string `mapstructure:"endpoint"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// EventsDB holds the local event store location.
type EventsDB struct {
	Path string `mapstructure:"path"`
}

// Tools holds the tool catalog location.
type Tools struct {
	Dir string `mapstructure:"dir"`
}

// Fetcher holds page backfill configuration.
type Fetcher struct {
	Enabled     bool          `mapstructure:"enabled"`
	Delay       time.Duration `mapstructure:"delay"`
	Parallelism int           `mapstructure:"parallelism"`
	Timeout     time.Duration `mapstructure:"timeout"`
	UserAgent   string        `mapstructure:"user_agent"`
}

// Export holds local export configuration.
type Export struct {
	Dir string `mapstructure:"dir"`
}

// MCP holds MCP server configuration.
type MCP struct {
	Name         string `mapstructure:"name"`
	Version      string `mapstructure:"version"`
	DefaultLimit int    `mapstructure:"default_limit"`
}

// Metrics holds the Prometheus endpoint configuration. An empty address
// disables it.
type Metrics struct {
	Addr string `mapstructure:"addr"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Denoise: Denoise{
			RapidClickThreshold:         200 * time.Millisecond,
			TransientTabSwitchThreshold: 2 * time.Second,
			AccidentalEventThreshold:    100 * time.Millisecond,
			FocusBlurThreshold:          500 * time.Millisecond,
			MaxConsecutiveClicks:        3,
		},
		Breakpoint: Breakpoint{
			LargeTimeGap:      2 * time.Minute,
			TabSwitchGap:      5 * time.Second,
			ActivityWindow:    30 * time.Second,
			ActivityThreshold: 5,
		},
		Pages: Pages{
			MinPageDuration:  time.Second,
			MaxContentLength: 500,
		},
		Segmentation: Segmentation{
			MaxGap:      2 * time.Minute,
			MinDuration: 2 * time.Second,
			MaxDuration: 10 * time.Minute,
			MinEvents:   3,
			MaxEvents:   100,
		},
		Scoring: Scoring{
			MinConfidence: 0.3,
			MinutesFactor: 0.1,
			Normalizer:    20.0,
		},
		Dedup: Dedup{
			Oracle:              "llm",
			SimilarityThreshold: 0.7,
			ExistingWindow:      100,
			MaxConcurrency:      4,
		},
		LLM: LLM{
			Enabled:    false, // requires Docker Model Runner
			SocketPath: "",
			Model:      "ai/gemma3",
			Timeout:    2 * time.Minute,
		},
		Embeddings: Embeddings{
			Enabled:    false,
			SocketPath: "",
			Model:      "ai/embeddinggemma",
		},
		Elasticsearch: Elasticsearch{
			Addresses: []string{"http://localhost:9200"},
			Index:     "browseflow-workflows",
		},
		Storage: Storage{
			Bucket:          "browseflow",
			Prefix:          "workflows",
			AccessKeyID:     "minioadmin",
			SecretAccessKey: "minioadmin",
		},
		EventsDB: EventsDB{
			Path: "browseflow.db",
		},
		Tools: Tools{
			Dir: "tools",
		},
		Fetcher: Fetcher{
			Delay:       500 * time.Millisecond,
			Parallelism: 2,
			Timeout:     30 * time.Second,
			UserAgent:   "browseflow/1.0",
		},
		Export: Export{
			Dir: "workflows",
		},
		MCP: MCP{
			Name:         "browseflow",
			Version:      "1.0.0",
			DefaultLimit: 10,
		},
	}
}
