package denoise

import (
	"log/slog"
	"time"

	"github.com/mfenderov/browseflow/pkg/models"
)

// Config holds the denoising thresholds.
type Config struct {
	RapidClickThreshold         time.Duration // clicks on the same element closer than this are duplicates
	TransientTabSwitchThreshold time.Duration // tab switches undone within this window are dropped
	AccidentalEventThreshold    time.Duration // events closer than this to the previous one are dropped
	FocusBlurThreshold          time.Duration // focus/blur flips within this window are dropped
	MaxConsecutiveClicks        int           // clicks on one element beyond this count are dropped
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		RapidClickThreshold:         200 * time.Millisecond,
		TransientTabSwitchThreshold: 2 * time.Second,
		AccidentalEventThreshold:    100 * time.Millisecond,
		FocusBlurThreshold:          500 * time.Millisecond,
		MaxConsecutiveClicks:        3,
	}
}

const (
	tabSwitchLookahead = 4
	clickLookback      = 10
)

// Filter is one denoising pass. It must not mutate its input.
type Filter struct {
	Name  string
	Apply func(events []models.Event) []models.Event
}

// Denoiser removes accidental, rapid and transient interactions from an event stream.
type Denoiser struct {
	config  Config
	filters []Filter
}

// New creates a Denoiser. Zero-valued thresholds fall back to the defaults.
func New(config Config) *Denoiser {
	def := DefaultConfig()
	if config.RapidClickThreshold == 0 {
		config.RapidClickThreshold = def.RapidClickThreshold
	}
	if config.TransientTabSwitchThreshold == 0 {
		config.TransientTabSwitchThreshold = def.TransientTabSwitchThreshold
	}
	if config.AccidentalEventThreshold == 0 {
		config.AccidentalEventThreshold = def.AccidentalEventThreshold
	}
	if config.FocusBlurThreshold == 0 {
		config.FocusBlurThreshold = def.FocusBlurThreshold
	}
	if config.MaxConsecutiveClicks == 0 {
		config.MaxConsecutiveClicks = def.MaxConsecutiveClicks
	}

	d := &Denoiser{config: config}
	d.filters = []Filter{
		{Name: "rapid_click", Apply: d.removeRapidClicks},
		{Name: "transient_tab_switch", Apply: d.removeTransientTabSwitches},
		{Name: "accidental_event", Apply: d.removeAccidentalEvents},
		{Name: "excessive_clicks", Apply: d.removeExcessiveClicks},
		{Name: "focus_blur", Apply: d.removeFocusBlurNoise},
	}
	return d
}

// Stats counts the events each filter removed.
type Stats struct {
	Input   int
	Output  int
	Passes  int
	Removed map[string]int
}

// Denoise sorts events by timestamp and runs every filter over the output of
// the previous one. The chain is repeated until a pass removes nothing, since
// a removal can bring two events into range of each other (a tab switch moving
// into another's lookahead). The result is therefore stable under Denoise, a
// subsequence of the sorted input, and may be empty.
func (d *Denoiser) Denoise(events []models.Event) []models.Event {
	out, _ := d.DenoiseWithStats(events)
	return out
}

// DenoiseWithStats is Denoise plus per-filter removal counts.
func (d *Denoiser) DenoiseWithStats(events []models.Event) ([]models.Event, Stats) {
	stats := Stats{Input: len(events), Removed: make(map[string]int, len(d.filters))}
	if len(events) == 0 {
		return []models.Event{}, stats
	}

	slog.Debug("starting denoising", "events", len(events))

	current := models.SortEvents(events)
	for {
		stats.Passes++
		start := len(current)
		for _, f := range d.filters {
			before := len(current)
			current = f.Apply(current)
			if removed := before - len(current); removed > 0 {
				stats.Removed[f.Name] += removed
				slog.Debug("denoise filter applied", "filter", f.Name, "removed", removed, "pass", stats.Passes)
			}
		}
		if len(current) == start || len(current) == 0 {
			break
		}
	}
	stats.Output = len(current)

	slog.Info("denoising complete", "remaining", stats.Output, "total", stats.Input, "passes", stats.Passes)
	return current, stats
}

// DenoisePage runs the page-scoped rules (rapid click, accidental event and
// focus/blur noise) in a single pass over one page's chronological events.
func (d *Denoiser) DenoisePage(events []models.Event) []models.Event {
	return scan(events, func(kept, _ []models.Event, i int, cur models.Event) bool {
		if len(kept) == 0 {
			return false
		}
		prev := kept[len(kept)-1]
		return d.IsRapidClick(prev, cur) || d.IsAccidental(prev, cur) || d.IsFocusBlurNoise(prev, cur)
	})
}

// dropFunc decides whether events[i] is dropped given the events kept so far.
type dropFunc func(kept, events []models.Event, i int, cur models.Event) bool

// scan walks events left to right with fresh state, keeping those drop rejects.
func scan(events []models.Event, drop dropFunc) []models.Event {
	kept := make([]models.Event, 0, len(events))
	for i, e := range events {
		if drop(kept, events, i, e) {
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

func lastKept(kept []models.Event) (models.Event, bool) {
	if len(kept) == 0 {
		return models.Event{}, false
	}
	return kept[len(kept)-1], true
}

func (d *Denoiser) removeRapidClicks(events []models.Event) []models.Event {
	return scan(events, func(kept, _ []models.Event, _ int, cur models.Event) bool {
		prev, ok := lastKept(kept)
		if ok && d.IsRapidClick(prev, cur) {
			slog.Debug("removing rapid click", "id", cur.ID, "timestamp", cur.Timestamp)
			return true
		}
		return false
	})
}

func (d *Denoiser) removeTransientTabSwitches(events []models.Event) []models.Event {
	return scan(events, func(_, all []models.Event, i int, cur models.Event) bool {
		if cur.Type != models.EventTabSwitch {
			return false
		}
		limit := d.config.TransientTabSwitchThreshold.Milliseconds()
		for j := i + 1; j < len(all) && j <= i+tabSwitchLookahead; j++ {
			next := all[j]
			if next.Type == models.EventTabSwitch && next.Timestamp-cur.Timestamp < limit {
				slog.Debug("removing transient tab switch", "id", cur.ID, "timestamp", cur.Timestamp)
				return true
			}
		}
		return false
	})
}

func (d *Denoiser) removeAccidentalEvents(events []models.Event) []models.Event {
	return scan(events, func(kept, _ []models.Event, _ int, cur models.Event) bool {
		prev, ok := lastKept(kept)
		if ok && d.IsAccidental(prev, cur) {
			slog.Debug("removing accidental event", "id", cur.ID, "type", cur.Type, "timestamp", cur.Timestamp)
			return true
		}
		return false
	})
}

func (d *Denoiser) removeExcessiveClicks(events []models.Event) []models.Event {
	return scan(events, func(kept, _ []models.Event, _ int, cur models.Event) bool {
		if !cur.IsClick() {
			return false
		}
		count := 1
		stop := len(kept) - (clickLookback - 1)
		if stop < 0 {
			stop = 0
		}
		for j := len(kept) - 1; j >= stop; j-- {
			if !kept[j].IsClick() || !SameElement(kept[j], cur) {
				break
			}
			count++
		}
		if count > d.config.MaxConsecutiveClicks {
			slog.Debug("removing excessive consecutive click", "id", cur.ID, "count", count)
			return true
		}
		return false
	})
}

func (d *Denoiser) removeFocusBlurNoise(events []models.Event) []models.Event {
	return scan(events, func(kept, _ []models.Event, _ int, cur models.Event) bool {
		prev, ok := lastKept(kept)
		if ok && d.IsFocusBlurNoise(prev, cur) {
			slog.Debug("removing focus/blur noise", "id", cur.ID, "type", cur.Type)
			return true
		}
		return false
	})
}

// IsRapidClick reports whether cur repeats a click on the same element as prev
// within the rapid-click threshold.
func (d *Denoiser) IsRapidClick(prev, cur models.Event) bool {
	if !cur.IsClick() || !prev.IsClick() {
		return false
	}
	if cur.Timestamp-prev.Timestamp > d.config.RapidClickThreshold.Milliseconds() {
		return false
	}
	return SameElement(prev, cur)
}

// IsAccidental reports whether cur follows prev closer than the accidental
// threshold. Element identity is not considered, so fast legitimate input is
// dropped as well.
func (d *Denoiser) IsAccidental(prev, cur models.Event) bool {
	return cur.Timestamp-prev.Timestamp < d.config.AccidentalEventThreshold.Milliseconds()
}

// IsFocusBlurNoise reports whether cur flips the focus state set by prev
// within the focus/blur threshold.
func (d *Denoiser) IsFocusBlurNoise(prev, cur models.Event) bool {
	if !isFocusOrBlur(cur) || !isFocusOrBlur(prev) || cur.Type == prev.Type {
		return false
	}
	return cur.Timestamp-prev.Timestamp < d.config.FocusBlurThreshold.Milliseconds()
}

func isFocusOrBlur(e models.Event) bool {
	return e.Type == models.EventFocus || e.Type == models.EventBlur
}

// SameElement reports whether two events target the same DOM element: the same
// non-empty element id, or the same tag with the same non-empty class name.
func SameElement(a, b models.Event) bool {
	ea, eb := a.Element(), b.Element()
	if ea == nil || eb == nil {
		return false
	}
	if ea.ID != "" && ea.ID == eb.ID {
		return true
	}
	return ea.Tag == eb.Tag && ea.ClassName != "" && ea.ClassName == eb.ClassName
}
