package breakpoint

import (
	"log/slog"
	"strings"
	"time"

	"github.com/mfenderov/browseflow/pkg/models"
)

// Reason names the signal that produced a break point.
type Reason string

const (
	ReasonDomainChange    Reason = "domain_change"
	ReasonLargeTimeGap    Reason = "large_time_gap"
	ReasonTaskCompletion  Reason = "task_completion"
	ReasonContextSwitch   Reason = "context_switch"
	ReasonSignificantLoad Reason = "significant_page_load"
)

// Config holds break point detection parameters.
type Config struct {
	LargeTimeGap          time.Duration
	TabSwitchGap          time.Duration // a tab switch to another tab after this gap is a context switch
	ActivityWindow        time.Duration // trailing window inspected before a page load
	ActivityLookback      int           // max events inspected before a page load
	ActivityThreshold     int           // substantive events needed for a page load to break
	CompletionSignals     []string
	CompletionKeywords    []string
	ContextSwitchTypes    []string
	SubstantiveEventTypes []string
}

// DefaultConfig returns the standard detection parameters.
func DefaultConfig() Config {
	return Config{
		LargeTimeGap:      2 * time.Minute,
		TabSwitchGap:      5 * time.Second,
		ActivityWindow:    30 * time.Second,
		ActivityLookback:  20,
		ActivityThreshold: 5,
		CompletionSignals: []string{
			"form_submit",
			"purchase_complete",
			"checkout_success",
			"signup_complete",
			"login_success",
			"download_complete",
		},
		CompletionKeywords: []string{
			"success",
			"complete",
			"thank",
			"confirmation",
			"receipt",
			"order-confirmed",
			"payment-success",
			"order-completed",
			"order-shipped",
			"order-delivered",
			"order-received",
			"order-paid",
		},
		ContextSwitchTypes: []string{"tab-switch", "window-focus", "app-switch"},
		SubstantiveEventTypes: []string{
			models.EventClick,
			models.EventType,
			models.EventHighlight,
			models.EventCopy,
			models.EventPaste,
		},
	}
}

// Break is a detected break point: a new segment starts at Index.
type Break struct {
	Index  int
	Reason Reason
}

// Detector partitions time-ordered events at natural break points.
type Detector struct {
	config      Config
	signals     map[string]bool
	switches    map[string]bool
	substantive map[string]bool
}

// New creates a Detector. Zero-valued numeric fields and empty lists fall back
// to the defaults.
func New(config Config) *Detector {
	def := DefaultConfig()
	if config.LargeTimeGap == 0 {
		config.LargeTimeGap = def.LargeTimeGap
	}
	if config.TabSwitchGap == 0 {
		config.TabSwitchGap = def.TabSwitchGap
	}
	if config.ActivityWindow == 0 {
		config.ActivityWindow = def.ActivityWindow
	}
	if config.ActivityLookback == 0 {
		config.ActivityLookback = def.ActivityLookback
	}
	if config.ActivityThreshold == 0 {
		config.ActivityThreshold = def.ActivityThreshold
	}
	if len(config.CompletionSignals) == 0 {
		config.CompletionSignals = def.CompletionSignals
	}
	if len(config.CompletionKeywords) == 0 {
		config.CompletionKeywords = def.CompletionKeywords
	}
	if len(config.ContextSwitchTypes) == 0 {
		config.ContextSwitchTypes = def.ContextSwitchTypes
	}
	if len(config.SubstantiveEventTypes) == 0 {
		config.SubstantiveEventTypes = def.SubstantiveEventTypes
	}

	return &Detector{
		config:      config,
		signals:     toSet(config.CompletionSignals),
		switches:    toSet(config.ContextSwitchTypes),
		substantive: toSet(config.SubstantiveEventTypes),
	}
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

// Detect splits a time-sorted event list into segments. Spans shorter than two
// events are dropped.
func (d *Detector) Detect(events []models.Event) []models.Segment {
	if len(events) == 0 {
		return []models.Segment{}
	}

	breaks := d.Breaks(events)
	slog.Info("identified break points", "events", len(events), "breaks", len(breaks))

	bounds := make([]int, 0, len(breaks)+2)
	bounds = append(bounds, 0)
	for _, b := range breaks {
		bounds = append(bounds, b.Index)
	}
	bounds = append(bounds, len(events))

	segments := make([]models.Segment, 0, len(bounds)-1)
	for i := 0; i < len(bounds)-1; i++ {
		span := events[bounds[i]:bounds[i+1]]
		if len(span) < 2 {
			continue
		}
		segments = append(segments, models.NewSegment(span))
	}

	slog.Info("created event segments", "segments", len(segments))
	return segments
}

// Breaks returns every break point with the first matching reason. Index 0 and
// the end of the sequence are implicit and not included.
func (d *Detector) Breaks(events []models.Event) []Break {
	var breaks []Break
	for i := 1; i < len(events); i++ {
		if reason, ok := d.breakBefore(events, i); ok {
			slog.Debug("break point", "index", i, "reason", reason, "type", events[i].Type)
			breaks = append(breaks, Break{Index: i, Reason: reason})
		}
	}
	return breaks
}

// BreakPoints returns the indices of Breaks.
func (d *Detector) BreakPoints(events []models.Event) []int {
	breaks := d.Breaks(events)
	indices := make([]int, len(breaks))
	for i, b := range breaks {
		indices[i] = b.Index
	}
	return indices
}

func (d *Detector) breakBefore(events []models.Event, i int) (Reason, bool) {
	cur, prev := events[i], events[i-1]
	switch {
	case isDomainChange(cur, prev):
		return ReasonDomainChange, true
	case cur.Timestamp-prev.Timestamp > d.config.LargeTimeGap.Milliseconds():
		return ReasonLargeTimeGap, true
	case d.isTaskCompletion(cur):
		return ReasonTaskCompletion, true
	case d.isContextSwitch(cur, prev):
		return ReasonContextSwitch, true
	case d.isSignificantPageLoad(events, i):
		return ReasonSignificantLoad, true
	}
	return "", false
}

func isDomainChange(cur, prev models.Event) bool {
	a, b := cur.Domain(), prev.Domain()
	return a != "" && b != "" && a != b
}

func (d *Detector) isTaskCompletion(e models.Event) bool {
	if d.signals[e.Type] {
		return true
	}
	return containsAny(strings.ToLower(e.URL), d.config.CompletionKeywords) ||
		containsAny(strings.ToLower(e.Title), d.config.CompletionKeywords)
}

func containsAny(s string, keywords []string) bool {
	if s == "" {
		return false
	}
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func (d *Detector) isContextSwitch(cur, prev models.Event) bool {
	if d.switches[cur.Type] {
		return true
	}
	return cur.Type == models.EventTabSwitch &&
		!models.SameTab(cur.TabID, prev.TabID) &&
		cur.Timestamp-prev.Timestamp > d.config.TabSwitchGap.Milliseconds()
}

func (d *Detector) isSignificantPageLoad(events []models.Event, i int) bool {
	cur := events[i]
	if !cur.IsPageLoad() {
		return false
	}

	windowStart := cur.Timestamp - d.config.ActivityWindow.Milliseconds()
	start := i - d.config.ActivityLookback
	if start < 0 {
		start = 0
	}

	activity := 0
	for _, prev := range events[start:i] {
		if prev.Timestamp >= windowStart && d.substantive[prev.Type] {
			activity++
		}
	}
	return activity >= d.config.ActivityThreshold
}
