package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestEvent_Domain(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"simple URL", "https://example.com/docs", "example.com"},
		{"uppercase host", "https://Mail.Google.COM/inbox", "mail.google.com"},
		{"with port", "http://localhost:8080/a", "localhost:8080"},
		{"empty", "", ""},
		{"unparsable", "://bad url", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Event{URL: tt.url}
			if got := e.Domain(); got != tt.want {
				t.Errorf("Domain() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSortEvents_StableOnTies(t *testing.T) {
	events := []Event{
		{ID: "c", Timestamp: 300},
		{ID: "a1", Timestamp: 100},
		{ID: "b", Timestamp: 200},
		{ID: "a2", Timestamp: 100},
	}

	sorted := SortEvents(events)

	want := []string{"a1", "a2", "b", "c"}
	for i, id := range want {
		if sorted[i].ID != id {
			t.Errorf("sorted[%d].ID = %q, want %q", i, sorted[i].ID, id)
		}
	}
	if events[0].ID != "c" {
		t.Error("SortEvents should not mutate its input")
	}
}

func TestSameTab(t *testing.T) {
	if !SameTab(nil, nil) {
		t.Error("two missing tabs should be equal")
	}
	if SameTab(IntPtr(1), nil) {
		t.Error("missing and present tab should differ")
	}
	if !SameTab(IntPtr(3), IntPtr(3)) {
		t.Error("equal tabs should be equal")
	}
}

func TestNewSegment(t *testing.T) {
	events := []Event{
		{Type: EventPageLoad, Timestamp: 1000, URL: "https://a.com/x", TabID: IntPtr(7)},
		{Type: EventClick, Timestamp: 4000, URL: "https://a.com/x"},
	}

	seg := NewSegment(events)

	if seg.DurationMS != 3000 {
		t.Errorf("DurationMS = %d, want 3000", seg.DurationMS)
	}
	if seg.Domain != "a.com" {
		t.Errorf("Domain = %q, want a.com", seg.Domain)
	}
	if seg.TabID == nil || *seg.TabID != 7 {
		t.Errorf("TabID = %v, want 7", seg.TabID)
	}
	if seg.SegmentType != SegmentTypeUnknown || seg.ConfidenceScore != 0 {
		t.Errorf("new segment should be unknown with zero score, got %q %v", seg.SegmentType, seg.ConfidenceScore)
	}
	if strings.Join(seg.EventTypes, ",") != "page-load,click" {
		t.Errorf("EventTypes = %v", seg.EventTypes)
	}
}

func TestPageSegment_DerivedFields(t *testing.T) {
	seg := PageSegment{Pages: []PageSession{
		{StartTime: 1000, EndTime: 5000, Domain: "a.com", EventCount: 4},
		{StartTime: 6000, EndTime: 9000, Domain: "a.com", EventCount: 2},
	}}

	if seg.DurationMS() != 8000 {
		t.Errorf("DurationMS() = %d, want 8000", seg.DurationMS())
	}
	if seg.Domain() != "a.com" {
		t.Errorf("Domain() = %q", seg.Domain())
	}
	if seg.EventCount() != 6 {
		t.Errorf("EventCount() = %d, want 6", seg.EventCount())
	}

	var empty PageSegment
	if empty.DurationMS() != 0 || empty.Domain() != "" {
		t.Error("empty page segment should have zero derived fields")
	}
}

func TestWorkflow_ToolNamesAndReferences(t *testing.T) {
	wf := Workflow{Steps: []WorkflowStep{
		{StepType: StepTypeBrowserContext},
		{StepType: StepTypeTool, Tools: []string{"slack-send", "gmail-send"}},
		{StepType: StepTypeTool, Tools: []string{"slack-send"}},
	}}

	if got := wf.ToolReferences(); got != 3 {
		t.Errorf("ToolReferences() = %d, want 3", got)
	}
	names := wf.ToolNames()
	if strings.Join(names, ",") != "slack-send,gmail-send" {
		t.Errorf("ToolNames() = %v", names)
	}

	compact := wf.Compact()
	if compact.StepCount != 3 || len(compact.ToolNames) != 2 {
		t.Errorf("Compact() = %+v", compact)
	}
}

func TestWorkflow_JSONFieldNames(t *testing.T) {
	wf := Workflow{ID: "w1", Summary: "s", URLPattern: "https://a.com/*"}

	data, err := json.Marshal(wf)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	for _, field := range []string{`"url_pattern"`, `"confidence_score"`, `"is_active"`, `"execution_count"`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("JSON should contain field %s, got: %s", field, data)
		}
	}
}

func TestGenerateEventID(t *testing.T) {
	e := Event{Type: EventClick, Timestamp: 42, URL: "https://example.com"}

	id := GenerateEventID(e)
	if len(id) != 16 {
		t.Errorf("ID length should be 16, got %d", len(id))
	}
	if id != GenerateEventID(e) {
		t.Error("ID should be deterministic")
	}

	other := e
	other.Timestamp = 43
	if id == GenerateEventID(other) {
		t.Error("different events should get different IDs")
	}
}

func TestNewWorkflowID_Unique(t *testing.T) {
	if NewWorkflowID() == NewWorkflowID() {
		t.Error("workflow IDs should be unique")
	}
}

func TestToolDefinition_RequiredParameters(t *testing.T) {
	var schema map[string]any
	if err := json.Unmarshal([]byte(`{"jsonSchema":{"required":["channel","text"],"properties":{"channel":{},"text":{},"thread":{}}}}`), &schema); err != nil {
		t.Fatal(err)
	}
	tool := ToolDefinition{Name: "slack-send", InputSchema: schema}

	got := tool.RequiredParameters()
	if strings.Join(got, ",") != "channel,text" {
		t.Errorf("RequiredParameters() = %v", got)
	}

	if len((ToolDefinition{}).RequiredParameters()) != 0 {
		t.Error("tool without schema should have no required parameters")
	}
}
