package models

// SegmentTypeUnknown is the label of a segment that has not been classified,
// or that the classifier could not place.
const SegmentTypeUnknown = "unknown"

// Segment is a contiguous run of events with no internal break point.
type Segment struct {
	Events          []Event  `json:"events"`
	StartTime       int64    `json:"start_time"`
	EndTime         int64    `json:"end_time"`
	DurationMS      int64    `json:"duration_ms"`
	EventTypes      []string `json:"event_types"`
	Domain          string   `json:"domain,omitempty"`
	TabID           *int     `json:"tab_id,omitempty"`
	SegmentType     string   `json:"segment_type"`
	ConfidenceScore float64  `json:"confidence_score"`
}

// NewSegment builds a segment from a non-empty, time-ordered run of events.
func NewSegment(events []Event) Segment {
	if len(events) == 0 {
		return Segment{SegmentType: SegmentTypeUnknown}
	}
	first, last := events[0], events[len(events)-1]
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return Segment{
		Events:      events,
		StartTime:   first.Timestamp,
		EndTime:     last.Timestamp,
		DurationMS:  last.Timestamp - first.Timestamp,
		EventTypes:  types,
		Domain:      first.Domain(),
		TabID:       first.TabID,
		SegmentType: SegmentTypeUnknown,
	}
}

// PageSession is the rollup of all activity on one page/tab visit.
type PageSession struct {
	URL            string   `json:"url"`
	Title          string   `json:"title"`
	StartTime      int64    `json:"start_time"`
	EndTime        int64    `json:"end_time"`
	DurationMS     int64    `json:"duration_ms"`
	ContentSummary string   `json:"content_summary"`
	EventCount     int      `json:"event_count"`
	Domain         string   `json:"domain,omitempty"`
	TabID          *int     `json:"tab_id,omitempty"`
	SegmentType    string   `json:"segment_type"`
	ToolCategories []string `json:"tool_categories"`
}

// PageSegment is a candidate workflow: an ordered run of page sessions.
type PageSegment struct {
	Pages          []PageSession `json:"pages"`
	SegmentType    string        `json:"segment_type"`
	ToolCategories []string      `json:"tool_categories"`
}

// StartTime is the start of the first page.
func (s PageSegment) StartTime() int64 {
	if len(s.Pages) == 0 {
		return 0
	}
	return s.Pages[0].StartTime
}

// EndTime is the end of the last page.
func (s PageSegment) EndTime() int64 {
	if len(s.Pages) == 0 {
		return 0
	}
	return s.Pages[len(s.Pages)-1].EndTime
}

// DurationMS spans first page start to last page end.
func (s PageSegment) DurationMS() int64 {
	return s.EndTime() - s.StartTime()
}

// Domain is the domain of the first page.
func (s PageSegment) Domain() string {
	if len(s.Pages) == 0 {
		return ""
	}
	return s.Pages[0].Domain
}

// EventCount sums the raw event counts of all pages.
func (s PageSegment) EventCount() int {
	n := 0
	for _, p := range s.Pages {
		n += p.EventCount
	}
	return n
}
