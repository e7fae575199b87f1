// Package classifier labels candidate segments with an intent and the tool
// categories a workflow for them would need.
package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mfenderov/browseflow/internal/content"
	"github.com/mfenderov/browseflow/pkg/models"
)

// Intent labels.
const (
	IntentUnknown            = models.SegmentTypeUnknown
	IntentPageSession        = "page_session"
	IntentFormFilling        = "form_filling"
	IntentNavigation         = "navigation"
	IntentContentInteraction = "content_interaction"
	IntentSearch             = "search"
	IntentSingleAction       = "single_action"
	IntentMixedActivity      = "mixed_activity"
)

const maxFragment = 500

// Features is the compact description of a segment sent to a classifier.
type Features struct {
	Domain      string   `json:"domain"`
	DurationMS  int64    `json:"duration_ms"`
	EventTypes  []string `json:"event_types"`
	URLs        []string `json:"urls,omitempty"`
	PageContent string   `json:"page_content"`
	UserActions string   `json:"user_actions"`
}

// Label is a classification result.
type Label struct {
	Intent         string   `json:"intent"`
	ToolCategories []string `json:"tool_categories"`
}

// Unknown is the label of a segment that could not be placed.
func Unknown() Label {
	return Label{Intent: IntentUnknown, ToolCategories: []string{}}
}

// Classifier assigns a label to segment features.
type Classifier interface {
	Classify(ctx context.Context, f Features) (Label, error)
}

// FeaturesFromSegment describes an event-level segment.
func FeaturesFromSegment(seg models.Segment) Features {
	var contentParts, actions, urls []string
	for _, e := range seg.Events {
		if e.URL != "" {
			urls = append(urls, e.URL)
		}
		if e.Payload != nil {
			if md := content.Fragment(e.Payload); md != "" {
				contentParts = append(contentParts,
					fmt.Sprintf("Page: %s\nContent: %s", e.Title, content.Truncate(md, maxFragment)))
			}
			if e.Payload.Text != "" {
				contentParts = append(contentParts, "User input: "+e.Payload.Text)
			}
		}
		if a := describeAction(e); a != "" {
			actions = append(actions, a)
		}
	}

	return Features{
		Domain:      seg.Domain,
		DurationMS:  seg.DurationMS,
		EventTypes:  seg.EventTypes,
		URLs:        urls,
		PageContent: joinOr(contentParts, "\n\n", "No page content available"),
		UserActions: joinOr(actions, "; ", "No specific actions detected"),
	}
}

func describeAction(e models.Event) string {
	switch e.Type {
	case models.EventClick:
		el := e.Element()
		if el == nil {
			return ""
		}
		desc := "Clicked on " + el.Tag
		switch {
		case el.Text != "":
			desc += fmt.Sprintf(" with text '%s'", el.Text)
		case el.ID != "":
			desc += fmt.Sprintf(" with id '%s'", el.ID)
		}
		return desc
	case models.EventType:
		if e.Payload != nil && e.Payload.Text != "" {
			return fmt.Sprintf("Typed: '%s'", e.Payload.Text)
		}
	case models.EventPageLoad:
		return "Loaded page: " + e.Title
	case models.EventHighlight:
		return "Highlighted text"
	case models.EventCopy:
		return "Copied text"
	case models.EventPaste:
		return "Pasted text"
	}
	return ""
}

// FeaturesFromPageSegment describes a page segment. Each page stands in as a
// page load.
func FeaturesFromPageSegment(seg models.PageSegment) Features {
	types := make([]string, 0, len(seg.Pages))
	urls := make([]string, 0, len(seg.Pages))
	var contentParts, actions []string
	for _, p := range seg.Pages {
		types = append(types, models.EventPageLoad)
		urls = append(urls, p.URL)
		contentParts = append(contentParts,
			fmt.Sprintf("Page: %s\nContent: %s", p.Title, content.Truncate(p.ContentSummary, maxFragment)))
		actions = append(actions,
			fmt.Sprintf("Spent %ds on %s (%d events)", p.DurationMS/1000, p.Title, p.EventCount))
	}

	return Features{
		Domain:      seg.Domain(),
		DurationMS:  seg.DurationMS(),
		EventTypes:  types,
		URLs:        urls,
		PageContent: joinOr(contentParts, "\n\n", "No page content available"),
		UserActions: joinOr(actions, "; ", "No specific actions detected"),
	}
}

func joinOr(parts []string, sep, fallback string) string {
	if len(parts) == 0 {
		return fallback
	}
	return strings.Join(parts, sep)
}

// ClassifyPageSegments labels each segment and its pages, dropping segments
// labeled unknown. A classifier error other than cancellation counts as unknown.
func ClassifyPageSegments(ctx context.Context, c Classifier, segments []models.PageSegment) ([]models.PageSegment, error) {
	kept := []models.PageSegment{}
	for _, seg := range segments {
		label, err := c.Classify(ctx, FeaturesFromPageSegment(seg))
		if err != nil {
			if ctx.Err() != nil {
				return kept, ctx.Err()
			}
			slog.Warn("classification failed", "domain", seg.Domain(), "error", err)
			continue
		}
		if label.Intent == IntentUnknown || label.Intent == "" {
			slog.Debug("dropped unclassified page segment", "domain", seg.Domain(), "pages", len(seg.Pages))
			continue
		}

		seg.SegmentType = label.Intent
		seg.ToolCategories = label.ToolCategories
		pages := make([]models.PageSession, len(seg.Pages))
		for i, p := range seg.Pages {
			p.SegmentType = label.Intent
			p.ToolCategories = label.ToolCategories
			pages[i] = p
		}
		seg.Pages = pages
		kept = append(kept, seg)
	}

	slog.Info("classified page segments", "segments", len(segments), "kept", len(kept))
	return kept, nil
}

// ClassifySegments labels event-level segments, dropping those labeled unknown.
func ClassifySegments(ctx context.Context, c Classifier, segments []models.Segment) ([]models.Segment, error) {
	kept := []models.Segment{}
	for _, seg := range segments {
		label, err := c.Classify(ctx, FeaturesFromSegment(seg))
		if err != nil {
			if ctx.Err() != nil {
				return kept, ctx.Err()
			}
			slog.Warn("classification failed", "domain", seg.Domain, "error", err)
			continue
		}
		if label.Intent == IntentUnknown || label.Intent == "" {
			continue
		}
		seg.SegmentType = label.Intent
		kept = append(kept, seg)
	}

	slog.Info("classified segments", "segments", len(segments), "kept", len(kept))
	return kept, nil
}
