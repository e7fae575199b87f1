package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/mfenderov/browseflow/internal/catalog"
	"github.com/mfenderov/browseflow/internal/classifier"
	"github.com/mfenderov/browseflow/internal/dedup"
	"github.com/mfenderov/browseflow/internal/validator"
	"github.com/mfenderov/browseflow/pkg/models"
)

type fixedClassifier struct {
	label classifier.Label
}

func (c fixedClassifier) Classify(ctx context.Context, _ classifier.Features) (classifier.Label, error) {
	if err := ctx.Err(); err != nil {
		return classifier.Label{}, err
	}
	return c.label, nil
}

// fakeSynth builds a workflow per segment. Domains listed in invalid get a
// workflow whose first step is a tool step; domains in failing error out.
type fakeSynth struct {
	mu       sync.Mutex
	summary  func(models.PageSegment) string
	invalid  map[string]bool
	failing  map[string]bool
	gotTools [][]models.ToolDefinition
}

func (s *fakeSynth) Synthesize(_ context.Context, seg models.PageSegment, confidence float64, tools []models.ToolDefinition) (*models.Workflow, error) {
	s.mu.Lock()
	s.gotTools = append(s.gotTools, tools)
	s.mu.Unlock()

	domain := seg.Domain()
	if s.failing[domain] {
		return nil, errors.New("model unavailable")
	}
	summary := "Work on " + domain
	if s.summary != nil {
		summary = s.summary(seg)
	}
	first := models.StepTypeBrowserContext
	if s.invalid[domain] {
		first = models.StepTypeTool
	}
	return &models.Workflow{
		ID:              models.NewWorkflowID(),
		Summary:         summary,
		Domain:          domain,
		URLPattern:      "https://" + domain + "/*",
		ConfidenceScore: confidence,
		SegmentType:     seg.SegmentType,
		IsActive:        true,
		Steps: []models.WorkflowStep{
			{Description: "Read the page", StepType: first},
			{Description: "Append a row", StepType: models.StepTypeTool, Tools: []string{"sheets_append"}},
		},
	}, nil
}

type fakeStore struct {
	saved      []models.Workflow
	embeddings [][]float32
	err        error
}

func (s *fakeStore) SaveWithEmbedding(_ context.Context, wf models.Workflow, embedding []float32) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.saved = append(s.saved, wf)
	s.embeddings = append(s.embeddings, embedding)
	return wf.ID, nil
}

type constEmbedder struct{ calls int }

func (e *constEmbedder) Embed(context.Context, string) ([]float32, error) {
	e.calls++
	return []float32{1, 0, 0}, nil
}

type bySummary struct{}

func (bySummary) Compare(_ context.Context, items []dedup.Features) ([][]int, error) {
	index := map[string]int{}
	var groups [][]int
	for i, f := range items {
		g, ok := index[f.Summary]
		if !ok {
			g = len(groups)
			index[f.Summary] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups, nil
}

func ev(id, typ string, ts int64, url string, payload *models.Payload) models.Event {
	return models.Event{ID: id, Type: typ, Timestamp: ts, TabID: models.IntPtr(1), URL: url, Title: id, Payload: payload}
}

func click(id string, ts int64, url, element string) models.Event {
	return ev(id, models.EventClick, ts, url, &models.Payload{Element: &models.Element{ID: element, Tag: "button"}})
}

// batch has one a.com segment of two pages and one b.com segment.
func batch() []models.Event {
	return []models.Event{
		ev("a1", models.EventPageLoad, 0, "https://a.com/orders", &models.Payload{Markdown: "# Orders"}),
		click("a2", 1500, "https://a.com/orders", "export"),
		ev("a3", models.EventType, 3000, "https://a.com/orders", &models.Payload{Text: "abc", Element: &models.Element{ID: "q"}}),
		ev("a4", models.EventPageLoad, 5000, "https://a.com/orders/1", &models.Payload{Markdown: "# Order 1"}),
		click("a5", 7000, "https://a.com/orders/1", "save"),
		ev("b1", models.EventPageLoad, 200000, "https://b.com/home", nil),
		click("b2", 202000, "https://b.com/home", "x"),
		click("b3", 204500, "https://b.com/home", "y"),
	}
}

func testCatalog() *catalog.Catalog {
	return catalog.New([]models.ToolDefinition{
		{Name: "sheets_append", Category: "sheets", Description: "Append a row"},
		{Name: "mail_send", Category: "mail", Description: "Send mail"},
	})
}

func formFilling() fixedClassifier {
	return fixedClassifier{label: classifier.Label{Intent: classifier.IntentFormFilling, ToolCategories: []string{"sheets"}}}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(DefaultConfig(), Deps{Synthesizer: &fakeSynth{}}); err == nil {
		t.Error("New() without classifier expected error")
	}
	if _, err := New(DefaultConfig(), Deps{Classifier: formFilling()}); err == nil {
		t.Error("New() without synthesizer expected error")
	}
}

func TestRun_EndToEnd(t *testing.T) {
	synth := &fakeSynth{invalid: map[string]bool{"b.com": true}}
	store := &fakeStore{}
	p, err := New(DefaultConfig(), Deps{
		Classifier:  formFilling(),
		Synthesizer: synth,
		Catalog:     testCatalog(),
		Oracle:      bySummary{},
		Store:       store,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result, err := p.Run(context.Background(), batch())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.BatchID == "" || result.Duration <= 0 {
		t.Errorf("batch id %q, duration %v", result.BatchID, result.Duration)
	}
	if result.EventsIn != 8 || result.EventsKept != 8 {
		t.Errorf("events in/kept = %d/%d, want 8/8", result.EventsIn, result.EventsKept)
	}
	if result.Pages != 3 || result.Segments != 2 || result.Classified != 2 || result.Scored != 2 {
		t.Errorf("pages %d, segments %d, classified %d, scored %d", result.Pages, result.Segments, result.Classified, result.Scored)
	}
	if result.Synthesized != 2 {
		t.Errorf("synthesized = %d, want 2", result.Synthesized)
	}
	if len(result.Rejections) != 1 || !errors.Is(result.Rejections[0].Err, validator.ErrFirstStepContext) {
		t.Errorf("rejections = %v", result.Rejections)
	}
	if len(result.Workflows) != 1 || result.Workflows[0].Domain != "a.com" {
		t.Fatalf("workflows = %+v", result.Workflows)
	}
	if wf := result.Workflows[0]; wf.SegmentType != classifier.IntentFormFilling || wf.ConfidenceScore <= 0.3 || wf.ConfidenceScore > 1 {
		t.Errorf("workflow = %+v", wf)
	}
	if len(store.saved) != 1 || len(result.SavedIDs) != 1 || result.SavedIDs[0] != result.Workflows[0].ID {
		t.Errorf("saved %d, ids %v", len(store.saved), result.SavedIDs)
	}
	if store.embeddings[0] != nil {
		t.Error("no embedder configured, embedding should be nil")
	}
	for _, tools := range synth.gotTools {
		if len(tools) != 1 || tools[0].Name != "sheets_append" {
			t.Errorf("synthesizer got tools %+v, want the sheets category only", tools)
		}
	}
	if len(result.Errors) != 0 {
		t.Errorf("errors = %v", result.Errors)
	}
}

func TestRun_DeduplicatesWithinBatch(t *testing.T) {
	events := batch()
	// Move b.com onto a.com so both segments share a domain but stay apart in time.
	for i := range events {
		events[i].URL = strings.Replace(events[i].URL, "b.com", "a.com", 1)
	}
	synth := &fakeSynth{summary: func(models.PageSegment) string { return "Export orders" }}
	p, _ := New(DefaultConfig(), Deps{Classifier: formFilling(), Synthesizer: synth, Oracle: bySummary{}})

	result, err := p.Run(context.Background(), events)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Synthesized != 2 || len(result.Workflows) != 1 || result.Dedup.MergedInBatch != 1 {
		t.Errorf("synthesized %d, workflows %d, dedup %+v", result.Synthesized, len(result.Workflows), result.Dedup)
	}
}

func TestRun_OracleDownKeepsAll(t *testing.T) {
	events := batch()
	for i := range events {
		events[i].URL = strings.Replace(events[i].URL, "b.com", "a.com", 1)
	}
	synth := &fakeSynth{summary: func(models.PageSegment) string { return "Export orders" }}
	p, _ := New(DefaultConfig(), Deps{Classifier: formFilling(), Synthesizer: synth, Oracle: downOracle{}})

	result, err := p.Run(context.Background(), events)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Workflows) != 2 || result.Dedup.OracleFallbacks != 1 {
		t.Errorf("workflows %d, dedup %+v", len(result.Workflows), result.Dedup)
	}
}

type downOracle struct{}

func (downOracle) Compare(context.Context, []dedup.Features) ([][]int, error) {
	return nil, errors.New("connection refused")
}

func TestRun_PartialFailures(t *testing.T) {
	synth := &fakeSynth{failing: map[string]bool{"b.com": true}}
	store := &fakeStore{err: errors.New("index closed")}
	p, _ := New(DefaultConfig(), Deps{Classifier: formFilling(), Synthesizer: synth, Store: store})

	result, err := p.Run(context.Background(), batch())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Synthesized != 1 || len(result.Workflows) != 1 {
		t.Errorf("synthesized %d, workflows %d", result.Synthesized, len(result.Workflows))
	}
	if len(result.Errors) != 2 {
		t.Fatalf("errors = %v, want synthesis and save failures", result.Errors)
	}
	if !strings.Contains(result.Errors[0], "b.com") || !strings.Contains(result.Errors[1], "index closed") {
		t.Errorf("errors = %v", result.Errors)
	}
	if len(result.SavedIDs) != 0 {
		t.Errorf("saved ids = %v", result.SavedIDs)
	}
}

func TestRun_UnknownSegmentsDropped(t *testing.T) {
	synth := &fakeSynth{}
	p, _ := New(DefaultConfig(), Deps{Classifier: fixedClassifier{label: classifier.Unknown()}, Synthesizer: synth})

	result, err := p.Run(context.Background(), batch())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Segments != 2 || result.Classified != 0 || len(synth.gotTools) != 0 || len(result.Workflows) != 0 {
		t.Errorf("segments %d, classified %d, synth calls %d", result.Segments, result.Classified, len(synth.gotTools))
	}
}

func TestRun_WithEmbeddings(t *testing.T) {
	store := &fakeStore{}
	emb := &constEmbedder{}
	p, _ := New(DefaultConfig(), Deps{Classifier: formFilling(), Synthesizer: &fakeSynth{}, Store: store, Embedder: emb})

	if _, err := p.Run(context.Background(), batch()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if emb.calls != 2 || len(store.embeddings) != 2 || store.embeddings[0] == nil {
		t.Errorf("embed calls %d, stored embeddings %v", emb.calls, store.embeddings)
	}
}

type fillAll struct{ called int }

func (f *fillAll) Backfill(_ context.Context, sessions []models.PageSession) ([]models.PageSession, int) {
	f.called++
	out := make([]models.PageSession, len(sessions))
	n := 0
	for i, s := range sessions {
		if s.ContentSummary == "No content available" {
			s.ContentSummary = "# fetched"
			n++
		}
		out[i] = s
	}
	return out, n
}

func TestRun_Backfill(t *testing.T) {
	fill := &fillAll{}
	p, _ := New(DefaultConfig(), Deps{Classifier: formFilling(), Synthesizer: &fakeSynth{}, Backfiller: fill})

	result, err := p.Run(context.Background(), batch())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if fill.called != 1 || result.PagesFilled != 1 {
		t.Errorf("backfill called %d, filled %d; want the b.com page", fill.called, result.PagesFilled)
	}
}

func TestRun_Empty(t *testing.T) {
	p, _ := New(DefaultConfig(), Deps{Classifier: formFilling(), Synthesizer: &fakeSynth{}})

	result, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Workflows == nil || len(result.Workflows) != 0 || result.Pages != 0 {
		t.Errorf("result = %+v", result)
	}
}

func TestRun_Cancelled(t *testing.T) {
	p, _ := New(DefaultConfig(), Deps{Classifier: formFilling(), Synthesizer: &fakeSynth{}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Run(ctx, batch()); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestSegments(t *testing.T) {
	segs, err := NewSegmenter(DefaultConfig()).Segments(context.Background(), batch())
	if err != nil {
		t.Fatalf("Segments() error = %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("Segments() returned %d, want 2", len(segs))
	}
	got := fmt.Sprintf("%s:%d %s:%d", segs[0].Domain, len(segs[0].Events), segs[1].Domain, len(segs[1].Events))
	if got != "a.com:5 b.com:3" {
		t.Errorf("segments = %s", got)
	}
	for _, s := range segs {
		if s.SegmentType != classifier.IntentNavigation {
			t.Errorf("%s segment type = %q, want navigation", s.Domain, s.SegmentType)
		}
		if s.ConfidenceScore < 0.3 || s.ConfidenceScore > 1 {
			t.Errorf("%s confidence = %v", s.Domain, s.ConfidenceScore)
		}
	}
}
