package classifier

import (
	"context"
	"strings"

	"github.com/mfenderov/browseflow/pkg/models"
)

// Heuristic classifies from event-type patterns alone. It never fails and
// assigns no tool categories.
type Heuristic struct{}

// Classify implements Classifier.
func (Heuristic) Classify(_ context.Context, f Features) (Label, error) {
	return Label{Intent: ClassifyTypes(f.EventTypes, f.URLs), ToolCategories: []string{}}, nil
}

// ClassifyTypes applies the rules in order: page session, form filling,
// navigation, content interaction, search, single action, mixed activity.
func ClassifyTypes(types, urls []string) string {
	if len(types) == 0 {
		return IntentUnknown
	}

	counts := make(map[string]int)
	for _, t := range types {
		counts[t]++
	}
	unique := len(counts)

	switch {
	case float64(counts[models.EventPageLoad]) > float64(len(types))*0.5:
		return IntentPageSession
	case counts[models.EventType] > 3:
		return IntentFormFilling
	case counts[models.EventClick] > 0 && counts[models.EventPageLoad] > 0:
		return IntentNavigation
	case counts[models.EventHighlight] > 0 || counts[models.EventCopy] > 0 || counts[models.EventPaste] > 0:
		return IntentContentInteraction
	case counts[models.EventType] > 1 && anySearchURL(urls):
		return IntentSearch
	case unique == 1:
		return IntentSingleAction
	case unique > 3:
		return IntentMixedActivity
	}
	return IntentUnknown
}

func anySearchURL(urls []string) bool {
	for _, u := range urls {
		if strings.Contains(strings.ToLower(u), "search") {
			return true
		}
	}
	return false
}
