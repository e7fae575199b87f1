package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mfenderov/browseflow/internal/llm"
	"github.com/mfenderov/browseflow/pkg/models"
)

// fakeChat answers every request with a fixed JSON body or error.
type fakeChat struct {
	answer  string
	err     error
	prompts []string
}

func (f *fakeChat) ChatJSON(_ context.Context, r llm.Request, out any) error {
	f.prompts = append(f.prompts, r.Prompt)
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.answer), out)
}

func TestClassifyTypes(t *testing.T) {
	tests := []struct {
		name  string
		types []string
		urls  []string
		want  string
	}{
		{"page session", []string{"page-load", "page-load", "click"}, nil, IntentPageSession},
		{"form filling", []string{"page-load", "type", "type", "type", "type"}, nil, IntentFormFilling},
		{"navigation", []string{"page-load", "click", "click"}, nil, IntentNavigation},
		{"content interaction", []string{"click", "highlight", "copy"}, nil, IntentContentInteraction},
		{"search", []string{"type", "type", "click"}, []string{"https://a.com/Search?q=x"}, IntentSearch},
		{"typing without search url", []string{"type", "type", "click"}, []string{"https://a.com/"}, IntentUnknown},
		{"single action", []string{"click", "click", "click"}, nil, IntentSingleAction},
		{"mixed", []string{"click", "type", "scroll", "focus"}, nil, IntentMixedActivity},
		{"empty", nil, nil, IntentUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyTypes(tt.types, tt.urls); got != tt.want {
				t.Errorf("ClassifyTypes(%v) = %q, want %q", tt.types, got, tt.want)
			}
		})
	}
}

func TestLLM_Classify(t *testing.T) {
	chat := &fakeChat{answer: `{"intent": " Form Filling ", "tool_categories": ["crm", "made_up", "crm", "email"]}`}
	c := NewLLM(chat, []string{"crm", "email"})

	label, err := c.Classify(context.Background(), Features{Domain: "a.com", EventTypes: []string{"type"}})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if label.Intent != IntentFormFilling {
		t.Errorf("Intent = %q, want %q", label.Intent, IntentFormFilling)
	}
	if strings.Join(label.ToolCategories, ",") != "crm,email" {
		t.Errorf("ToolCategories = %v, want [crm email]", label.ToolCategories)
	}
	if len(chat.prompts) != 1 || !strings.Contains(chat.prompts[0], "Domain: a.com") {
		t.Errorf("prompt missing domain: %v", chat.prompts)
	}
}

func TestLLM_ClassifyFallsBackToUnknown(t *testing.T) {
	tests := []struct {
		name string
		chat *fakeChat
	}{
		{"transport error", &fakeChat{err: errors.New("connection refused")}},
		{"empty intent", &fakeChat{answer: `{"intent": ""}`}},
		{"malformed", &fakeChat{answer: `{"intent": 42}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, err := NewLLM(tt.chat, nil).Classify(context.Background(), Features{})
			if err != nil {
				t.Fatalf("Classify() error = %v, want nil", err)
			}
			if label.Intent != IntentUnknown {
				t.Errorf("Intent = %q, want unknown", label.Intent)
			}
		})
	}
}

func TestLLM_ClassifyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLLM(&fakeChat{err: context.Canceled}, nil).Classify(ctx, Features{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Classify() error = %v, want context.Canceled", err)
	}
}

func TestFeaturesFromSegment(t *testing.T) {
	seg := models.NewSegment([]models.Event{
		{Type: models.EventPageLoad, Timestamp: 0, URL: "https://a.com/form", Title: "Signup",
			Payload: &models.Payload{Markdown: "# Signup"}},
		{Type: models.EventClick, Timestamp: 1000, URL: "https://a.com/form",
			Payload: &models.Payload{Element: &models.Element{Tag: "button", Text: "Next"}}},
		{Type: models.EventType, Timestamp: 2000, URL: "https://a.com/form",
			Payload: &models.Payload{Text: "alice"}},
	})

	f := FeaturesFromSegment(seg)

	if f.Domain != "a.com" || f.DurationMS != 2000 || len(f.EventTypes) != 3 || len(f.URLs) != 3 {
		t.Errorf("features = %+v", f)
	}
	for _, want := range []string{"Page: Signup", "# Signup", "User input: alice"} {
		if !strings.Contains(f.PageContent, want) {
			t.Errorf("PageContent missing %q: %q", want, f.PageContent)
		}
	}
	want := "Loaded page: Signup; Clicked on button with text 'Next'; Typed: 'alice'"
	if f.UserActions != want {
		t.Errorf("UserActions = %q, want %q", f.UserActions, want)
	}
}

func TestFeaturesFromSegment_NoContent(t *testing.T) {
	f := FeaturesFromSegment(models.NewSegment([]models.Event{{Type: "scroll"}, {Type: "scroll"}}))
	if f.PageContent != "No page content available" || f.UserActions != "No specific actions detected" {
		t.Errorf("features = %+v", f)
	}
}

func pageSegment(domain string, n int) models.PageSegment {
	var pages []models.PageSession
	for i := 0; i < n; i++ {
		pages = append(pages, models.PageSession{
			URL: "https://" + domain + "/p", Title: "Page", Domain: domain,
			StartTime: int64(i) * 10000, EndTime: int64(i)*10000 + 5000, DurationMS: 5000,
			EventCount: 3, ContentSummary: "content", SegmentType: models.SegmentTypeUnknown,
		})
	}
	return models.PageSegment{Pages: pages, SegmentType: models.SegmentTypeUnknown}
}

// labelByDomain labels a.com as navigation and everything else unknown.
type labelByDomain struct{}

func (labelByDomain) Classify(_ context.Context, f Features) (Label, error) {
	if f.Domain == "a.com" {
		return Label{Intent: IntentNavigation, ToolCategories: []string{"browser"}}, nil
	}
	if f.Domain == "err.com" {
		return Label{}, errors.New("boom")
	}
	return Unknown(), nil
}

func TestClassifyPageSegments(t *testing.T) {
	segments := []models.PageSegment{pageSegment("a.com", 2), pageSegment("b.com", 1), pageSegment("err.com", 1)}

	kept, err := ClassifyPageSegments(context.Background(), labelByDomain{}, segments)
	if err != nil {
		t.Fatalf("ClassifyPageSegments() error = %v", err)
	}

	if len(kept) != 1 {
		t.Fatalf("kept %d segments, want 1", len(kept))
	}
	if kept[0].SegmentType != IntentNavigation || kept[0].ToolCategories[0] != "browser" {
		t.Errorf("segment = %+v", kept[0])
	}
	for _, p := range kept[0].Pages {
		if p.SegmentType != IntentNavigation || len(p.ToolCategories) != 1 {
			t.Errorf("page not labeled: %+v", p)
		}
	}
	if segments[0].Pages[0].SegmentType != models.SegmentTypeUnknown {
		t.Errorf("input pages were modified")
	}
}

func TestClassifySegments_Heuristic(t *testing.T) {
	nav := models.NewSegment([]models.Event{
		{Type: models.EventPageLoad, URL: "https://a.com"},
		{Type: models.EventClick, URL: "https://a.com"},
		{Type: models.EventClick, URL: "https://a.com"},
	})
	unknown := models.NewSegment([]models.Event{{Type: models.EventClick}, {Type: models.EventType}})

	kept, err := ClassifySegments(context.Background(), Heuristic{}, []models.Segment{nav, unknown})
	if err != nil {
		t.Fatalf("ClassifySegments() error = %v", err)
	}
	if len(kept) != 1 || kept[0].SegmentType != IntentNavigation {
		t.Errorf("kept = %+v", kept)
	}
}
