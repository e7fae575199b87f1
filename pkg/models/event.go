package models

import (
	"net/url"
	"sort"
	"strings"
)

// Event types emitted by the browser capture extension.
const (
	EventPageLoad   = "page-load"
	EventClick      = "click"
	EventType       = "type"
	EventHighlight  = "highlight"
	EventCopy       = "copy"
	EventPaste      = "paste"
	EventTabSwitch  = "tab-switch"
	EventTabRemoval = "tab-removal"
	EventFocus      = "focus"
	EventBlur       = "blur"
	EventScroll     = "scroll"
)

// Event is a single timestamped browser interaction. Events are never mutated
// after capture.
type Event struct {
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	Timestamp int64    `json:"timestamp"` // ms since epoch
	TabID     *int     `json:"tab_id,omitempty"`
	WindowID  *int     `json:"window_id,omitempty"`
	URL       string   `json:"url,omitempty"`
	Title     string   `json:"title,omitempty"`
	Payload   *Payload `json:"payload,omitempty"`
}

// Payload carries event-specific data.
type Payload struct {
	Element  *Element       `json:"element,omitempty"`
	Text     string         `json:"text,omitempty"`     // typed or highlighted text
	Markdown string         `json:"markdown,omitempty"` // extracted page content
	HTML     string         `json:"html,omitempty"`     // raw page content when no markdown was extracted
	Scroll   *ScrollMetrics `json:"scroll,omitempty"`
}

// Element describes the DOM element an event targeted.
type Element struct {
	ID        string `json:"id,omitempty"`
	Tag       string `json:"tag,omitempty"`
	ClassName string `json:"class_name,omitempty"`
	Text      string `json:"text,omitempty"`
}

// ScrollMetrics holds scroll position and viewport size.
type ScrollMetrics struct {
	X              int `json:"x"`
	Y              int `json:"y"`
	ViewportWidth  int `json:"viewport_width"`
	ViewportHeight int `json:"viewport_height"`
}

// Batch is a group of events sent together by the extension.
type Batch struct {
	BatchID   string  `json:"batch_id,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"`
	Events    []Event `json:"events"`
}

// Domain returns the lowercased host of the event URL, or "" when the URL is
// missing or cannot be parsed.
func (e Event) Domain() string {
	return DomainOf(e.URL)
}

// DomainOf extracts the lowercased host component of rawURL.
func DomainOf(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// IsPageLoad reports whether the event is a page load.
func (e Event) IsPageLoad() bool { return e.Type == EventPageLoad }

// IsClick reports whether the event is a click.
func (e Event) IsClick() bool { return e.Type == EventClick }

// Element returns the targeted element, or nil.
func (e Event) Element() *Element {
	if e.Payload == nil {
		return nil
	}
	return e.Payload.Element
}

// TabKey returns the tab id, treating a missing tab as 0.
func (e Event) TabKey() int {
	if e.TabID == nil {
		return 0
	}
	return *e.TabID
}

// SameTab reports whether two optional tab ids are equal. Two missing ids are equal.
func SameTab(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// SortEvents returns a copy of events ordered by timestamp. Ties keep their
// arrival order.
func SortEvents(events []Event) []Event {
	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})
	return sorted
}
