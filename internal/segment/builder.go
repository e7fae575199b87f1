// Package segment groups page sessions into candidate workflow spans.
package segment

import (
	"log/slog"
	"time"

	"github.com/mfenderov/browseflow/pkg/models"
)

// Config holds grouping parameters.
type Config struct {
	MaxGap      time.Duration // gap between pages that closes a group
	MinDuration time.Duration
	MaxDuration time.Duration
	MinEvents   int // event-level segments only
	MaxEvents   int // event-level segments only
}

// DefaultConfig returns the standard grouping parameters.
func DefaultConfig() Config {
	return Config{
		MaxGap:      2 * time.Minute,
		MinDuration: 2 * time.Second,
		MaxDuration: 10 * time.Minute,
		MinEvents:   3,
		MaxEvents:   100,
	}
}

// Builder turns page sessions into page segments.
type Builder struct {
	config Config
}

// New creates a Builder. Zero-valued durations and counts fall back to the defaults.
func New(config Config) *Builder {
	def := DefaultConfig()
	if config.MaxGap == 0 {
		config.MaxGap = def.MaxGap
	}
	if config.MinDuration == 0 {
		config.MinDuration = def.MinDuration
	}
	if config.MaxDuration == 0 {
		config.MaxDuration = def.MaxDuration
	}
	if config.MinEvents == 0 {
		config.MinEvents = def.MinEvents
	}
	if config.MaxEvents == 0 {
		config.MaxEvents = def.MaxEvents
	}
	return &Builder{config: config}
}

// Build groups pages in a single greedy pass. A new group starts when the
// incoming page changes domain or tab, or starts more than MaxGap after the
// last page of the current group ends. Groups whose span falls outside
// [MinDuration, MaxDuration] are dropped.
func (b *Builder) Build(pages []models.PageSession) []models.PageSegment {
	segments := []models.PageSegment{}
	if len(pages) == 0 {
		return segments
	}

	groups := b.Group(pages)
	for _, g := range groups {
		seg := models.PageSegment{
			Pages:          g,
			SegmentType:    models.SegmentTypeUnknown,
			ToolCategories: []string{},
		}
		if !b.withinDuration(seg.DurationMS()) {
			slog.Debug("dropped page segment", "pages", len(g), "duration_ms", seg.DurationMS())
			continue
		}
		segments = append(segments, seg)
	}

	slog.Info("built page segments", "pages", len(pages), "groups", len(groups), "segments", len(segments))
	return segments
}

// Group partitions pages without applying the duration bounds. Every page
// lands in exactly one non-empty group.
func (b *Builder) Group(pages []models.PageSession) [][]models.PageSession {
	var groups [][]models.PageSession
	var current []models.PageSession
	for _, page := range pages {
		if len(current) > 0 && b.breaksGroup(current[len(current)-1], page) {
			groups = append(groups, current)
			current = nil
		}
		current = append(current, page)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

func (b *Builder) breaksGroup(last, incoming models.PageSession) bool {
	if incoming.Domain != last.Domain {
		return true
	}
	if incoming.StartTime-last.EndTime > b.config.MaxGap.Milliseconds() {
		return true
	}
	return !models.SameTab(incoming.TabID, last.TabID)
}

func (b *Builder) withinDuration(ms int64) bool {
	return ms >= b.config.MinDuration.Milliseconds() && ms <= b.config.MaxDuration.Milliseconds()
}

// FromEvents filters event-level segments produced by the break point
// detector to those with a usable event count and duration.
func (b *Builder) FromEvents(segments []models.Segment) []models.Segment {
	kept := []models.Segment{}
	for _, s := range segments {
		n := len(s.Events)
		if n < b.config.MinEvents || n > b.config.MaxEvents {
			continue
		}
		if !b.withinDuration(s.DurationMS) {
			continue
		}
		kept = append(kept, s)
	}
	slog.Info("filtered event segments", "segments", len(segments), "kept", len(kept))
	return kept
}
