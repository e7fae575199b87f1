package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mfenderov/browseflow/internal/storage"
	"github.com/mfenderov/browseflow/pkg/models"
)

type toolMap map[string]models.ToolDefinition

func (m toolMap) Get(name string) (models.ToolDefinition, bool) {
	d, ok := m[name]
	return d, ok
}

func sampleWorkflow() models.Workflow {
	return models.Workflow{
		ID:          "wf-1",
		Summary:     "Export <orders> to sheet",
		Domain:      "shop.com",
		URLPattern:  "https://shop.com/orders/*",
		SegmentType: "form_filling",
		CreatedAt:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Steps: []models.WorkflowStep{
			{Description: "Read orders", StepType: models.StepTypeBrowserContext, ContextSelector: "table#orders", ContextDescription: "order table"},
			{Description: "Append rows", StepType: models.StepTypeTool, Tools: []string{"sheets_append", "sheets_format"},
				ToolParameters: map[string]any{"sheet": "Orders"}},
			{Description: "Notify", StepType: models.StepTypeTool, Tools: []string{"sheets_append"}},
		},
	}
}

func TestNewDocument(t *testing.T) {
	tools := toolMap{"sheets_append": {Name: "sheets_append", Description: "Append rows to a sheet"}}
	doc := NewDocument(sampleWorkflow(), tools)

	m := doc.Metadata
	if m.ID != "wf-1" || m.StepCount != 3 || !m.HasTools || m.ToolCount != 3 {
		t.Errorf("metadata = %+v", m)
	}
	if !m.CreatedAt.Equal(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("created_at = %v", m.CreatedAt)
	}

	steps := doc.Workflow.Steps
	if len(steps) != 3 || steps[0].StepNumber != 1 || steps[2].StepNumber != 3 {
		t.Fatalf("steps = %+v", steps)
	}
	if steps[0].BrowserContext == nil || steps[0].BrowserContext.ContextSelector != "table#orders" || steps[0].Tools != nil {
		t.Errorf("browser step = %+v", steps[0])
	}
	st := steps[1].Tools
	if st == nil || st.ToolCount != 2 || st.ToolParameters["sheet"] != "Orders" {
		t.Fatalf("tool step = %+v", steps[1])
	}
	if st.ToolDetails[0].Description != "Append rows to a sheet" || st.ToolDetails[1].Description != "Tool: sheets_format" {
		t.Errorf("tool details = %+v", st.ToolDetails)
	}

	a := doc.Analysis
	if a.IntentClassification != "form_filling" || a.ComplexityScore != 6 {
		t.Errorf("analysis = %+v", a)
	}
	if a.ToolUsage.TotalTools != 3 || a.ToolUsage.UniqueTools != 2 || a.ToolUsage.ToolSteps != 2 {
		t.Errorf("tool usage = %+v", a.ToolUsage)
	}
	if a.BrowserContextUsage.BrowserContextSteps != 1 || a.BrowserContextUsage.TotalSteps != 3 {
		t.Errorf("browser usage = %+v", a.BrowserContextUsage)
	}
	if r := a.BrowserContextUsage.BrowserContextRatio; r < 0.333 || r > 0.334 {
		t.Errorf("ratio = %v", r)
	}
}

func TestNewDocument_Empty(t *testing.T) {
	doc := NewDocument(models.Workflow{Summary: "x"}, nil)
	if doc.Analysis.IntentClassification != "unknown" || doc.Metadata.HasTools {
		t.Errorf("analysis = %+v", doc.Analysis)
	}
	if doc.Analysis.BrowserContextUsage.BrowserContextRatio != 0 {
		t.Error("ratio should be 0 without steps")
	}
	if doc.Workflow.Steps == nil || doc.Metadata.CreatedAt.IsZero() {
		t.Errorf("document = %+v", doc)
	}
}

func TestMarshal_Shape(t *testing.T) {
	data, err := Marshal(NewDocument(sampleWorkflow(), nil))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), "Export <orders> to sheet") {
		t.Error("HTML characters should not be escaped")
	}

	var raw map[string]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, section := range []string{"metadata", "workflow", "analysis"} {
		if raw[section] == nil {
			t.Errorf("missing %s section", section)
		}
	}

	doc, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	c := doc.Compact()
	want := sampleWorkflow().Compact()
	if c.ID != want.ID || c.StepCount != want.StepCount || fmt.Sprint(c.ToolNames) != fmt.Sprint(want.ToolNames) {
		t.Errorf("Compact() = %+v, want %+v", c, want)
	}
}

func TestFilename(t *testing.T) {
	tests := []struct {
		index   int
		summary string
		want    string
	}{
		{1, "Export orders", "01_Export_orders.json"},
		{12, "a/b\\c: d", "12_a_b_c_d.json"},
		{3, "__weird__name__", "03_weird_name.json"},
		{4, "", "04_unknown.json"},
		{5, "!!!", "05_unknown.json"},
		{6, "v1.2-beta", "06_v1.2-beta.json"},
		{7, "Заказы экспорт", "07_Заказы_экспорт.json"},
		{100, strings.Repeat("x", 80), "100_" + strings.Repeat("x", 50) + ".json"},
	}
	for _, tt := range tests {
		if got := Filename(tt.index, tt.summary); got != tt.want {
			t.Errorf("Filename(%d, %q) = %q, want %q", tt.index, tt.summary, got, tt.want)
		}
	}
}

func TestDirWriter_ExportAndLoadRecent(t *testing.T) {
	dir := t.TempDir()
	w, err := NewDirWriter(dir, nil)
	if err != nil {
		t.Fatalf("NewDirWriter() error = %v", err)
	}
	ctx := context.Background()

	older := sampleWorkflow()
	older.ID, older.Summary = "old", "Old export"
	newer := sampleWorkflow()
	newer.ID, newer.Summary = "new", "New export"
	other := sampleWorkflow()
	other.ID, other.Summary, other.Domain = "mail", "Send mail", "mail.com"

	paths, err := w.Export(ctx, []models.Workflow{older, newer, other})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if len(paths) != 3 || filepath.Base(paths[0]) != "01_Old_export.json" {
		t.Fatalf("paths = %v", paths)
	}

	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(paths[0], past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644)

	got, err := w.LoadRecent(ctx, "shop.com", 10)
	if err != nil {
		t.Fatalf("LoadRecent() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "new" || got[1].ID != "old" {
		t.Errorf("LoadRecent() = %+v, want new then old", got)
	}

	got, _ = w.LoadRecent(ctx, "shop.com", 1)
	if len(got) != 1 || got[0].ID != "new" {
		t.Errorf("LoadRecent(limit 1) = %+v", got)
	}
}

func TestDirWriter_LoadRecentUnknownDomain(t *testing.T) {
	w, err := NewDirWriter(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewDirWriter() error = %v", err)
	}
	ctx := context.Background()

	nodomain := sampleWorkflow()
	nodomain.ID, nodomain.Domain = "n", ""
	if _, err := w.Export(ctx, []models.Workflow{sampleWorkflow(), nodomain}); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	got, err := w.LoadRecent(ctx, models.UnknownDomain, 10)
	if err != nil {
		t.Fatalf("LoadRecent() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "n" {
		t.Errorf("LoadRecent(unknown) = %+v, want only the workflow without a domain", got)
	}
}

func TestDirWriter_Errors(t *testing.T) {
	if _, err := NewDirWriter("", nil); err == nil {
		t.Error("NewDirWriter(\"\") expected error")
	}

	w, _ := NewDirWriter(t.TempDir(), nil)
	paths, err := w.Export(context.Background(), nil)
	if err != nil || paths != nil {
		t.Errorf("Export(nil) = %v, %v", paths, err)
	}
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	times   map[string]time.Time
	clock   time.Time
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, times: map[string]time.Time{}, clock: time.Unix(1_700_000_000, 0)}
}

func (m *memStore) PutJSON(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = m.clock.Add(time.Second)
	m.objects[key] = data
	m.times[key] = m.clock
	return nil
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such key %s", key)
	}
	return data, nil
}

func (m *memStore) List(_ context.Context, prefix string) ([]storage.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.Object
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, storage.Object{Key: k, Size: int64(len(v)), LastModified: m.times[k]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func TestBucketWriter(t *testing.T) {
	store := newMemStore()
	w := NewBucketWriter(store, "", nil)
	ctx := context.Background()

	first := sampleWorkflow()
	first.ID = "b-first"
	second := sampleWorkflow()
	second.ID = "a-second"
	nodomain := sampleWorkflow()
	nodomain.ID, nodomain.Domain = "n", ""

	keys, err := w.Export(ctx, []models.Workflow{first, second, nodomain})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	want := []string{"workflows/shop.com/b-first.json", "workflows/shop.com/a-second.json", "workflows/unknown/n.json"}
	if fmt.Sprint(keys) != fmt.Sprint(want) {
		t.Errorf("keys = %v, want %v", keys, want)
	}

	got, err := w.LoadRecent(ctx, "shop.com", 100)
	if err != nil {
		t.Fatalf("LoadRecent() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "a-second" || got[1].ID != "b-first" {
		t.Errorf("LoadRecent() = %+v, want newest first", got)
	}
	for _, domain := range []string{"", models.UnknownDomain} {
		got, err := w.LoadRecent(ctx, domain, 100)
		if err != nil || len(got) != 1 || got[0].ID != "n" {
			t.Errorf("LoadRecent(%q) = %+v, %v, want the workflow without a domain", domain, got, err)
		}
	}
}
