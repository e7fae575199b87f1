// Package pages rolls per-page event runs up into page sessions.
package pages

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mfenderov/browseflow/internal/content"
	"github.com/mfenderov/browseflow/internal/denoise"
	"github.com/mfenderov/browseflow/pkg/models"
)

const (
	// NoContent is the summary of a page with no extracted content.
	NoContent = "No content available"
	// UnknownTitle is used when the first retained event has no title.
	UnknownTitle = "Unknown Page"
	// UnknownURL keys events without a URL.
	UnknownURL = "unknown"

	summarySeparator = " | "
)

// Config holds aggregation parameters.
type Config struct {
	MinPageDuration  time.Duration
	MaxContentLength int
}

// DefaultConfig returns the standard aggregation parameters.
func DefaultConfig() Config {
	return Config{
		MinPageDuration:  time.Second,
		MaxContentLength: 500,
	}
}

// Aggregator groups events by page and tab and summarizes each visit.
type Aggregator struct {
	config   Config
	denoiser *denoise.Denoiser
}

// New creates an Aggregator that applies the page-scoped rules of denoiser.
// A nil denoiser uses the default thresholds.
func New(config Config, denoiser *denoise.Denoiser) *Aggregator {
	def := DefaultConfig()
	if config.MinPageDuration == 0 {
		config.MinPageDuration = def.MinPageDuration
	}
	if config.MaxContentLength == 0 {
		config.MaxContentLength = def.MaxContentLength
	}
	if denoiser == nil {
		denoiser = denoise.New(denoise.DefaultConfig())
	}
	return &Aggregator{config: config, denoiser: denoiser}
}

// Group is the events of one page visit, keyed by PageKey.
type Group struct {
	Key    string
	Events []models.Event
}

// Aggregate returns one PageSession per surviving url|tab group, in order of
// first appearance.
func (a *Aggregator) Aggregate(events []models.Event) []models.PageSession {
	sessions := []models.PageSession{}
	if len(events) == 0 {
		return sessions
	}

	groups := GroupByPage(events)
	for _, g := range groups {
		session, ok := a.summarize(g.Events)
		if !ok {
			slog.Debug("dropped page group", "page", g.Key, "events", len(g.Events))
			continue
		}
		sessions = append(sessions, session)
	}

	slog.Info("aggregated page sessions", "groups", len(groups), "sessions", len(sessions))
	return sessions
}

// PageKey is the grouping key of an event: url|tab, with a missing URL as
// "unknown" and a missing tab as 0.
func PageKey(e models.Event) string {
	url := e.URL
	if url == "" {
		url = UnknownURL
	}
	return fmt.Sprintf("%s|%d", url, e.TabKey())
}

// GroupByPage buckets events by PageKey in first-appearance order. Each
// bucket is stably sorted by timestamp.
func GroupByPage(events []models.Event) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, e := range events {
		key := PageKey(e)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key})
		}
		groups[i].Events = append(groups[i].Events, e)
	}
	for i := range groups {
		groups[i].Events = models.SortEvents(groups[i].Events)
	}
	return groups
}

func (a *Aggregator) summarize(events []models.Event) (models.PageSession, bool) {
	kept := a.denoiser.DenoisePage(events)
	if len(kept) == 0 {
		return models.PageSession{}, false
	}

	first, last := kept[0], kept[len(kept)-1]
	duration := last.Timestamp - first.Timestamp
	if duration < a.config.MinPageDuration.Milliseconds() {
		return models.PageSession{}, false
	}

	url := first.URL
	if url == "" {
		url = UnknownURL
	}
	title := first.Title
	if title == "" {
		title = UnknownTitle
	}

	return models.PageSession{
		URL:            url,
		Title:          title,
		StartTime:      first.Timestamp,
		EndTime:        last.Timestamp,
		DurationMS:     duration,
		ContentSummary: a.Summary(kept),
		EventCount:     len(events),
		Domain:         first.Domain(),
		TabID:          first.TabID,
		SegmentType:    models.SegmentTypeUnknown,
		ToolCategories: []string{},
	}, true
}

// Summary joins the truncated content fragments of events in order, or
// returns NoContent when none carry content.
func (a *Aggregator) Summary(events []models.Event) string {
	var parts []string
	for _, e := range events {
		fragment := content.Fragment(e.Payload)
		if fragment == "" {
			continue
		}
		parts = append(parts, content.Truncate(fragment, a.config.MaxContentLength))
	}
	if len(parts) == 0 {
		return NoContent
	}
	return strings.Join(parts, summarySeparator)
}
