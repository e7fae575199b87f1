package models

import "time"

// Step types.
const (
	StepTypeBrowserContext = "browser_context"
	StepTypeTool           = "tool"
)

// WorkflowStep is one step of a workflow. Browser-context steps read from the
// current page; tool steps call one or more catalog tools.
type WorkflowStep struct {
	Description        string         `json:"description"`
	StepType           string         `json:"step_type"`
	Tools              []string       `json:"tools,omitempty"`
	ToolParameters     map[string]any `json:"tool_parameters,omitempty"`
	ContextSelector    string         `json:"context_selector,omitempty"`
	ContextDescription string         `json:"context_description,omitempty"`
}

// UnknownDomain stands in for an empty workflow domain.
const UnknownDomain = "unknown"

// DomainKey returns domain, or UnknownDomain when it is empty, so workflows
// stored with either form land in the same bucket.
func DomainKey(domain string) string {
	if domain == "" {
		return UnknownDomain
	}
	return domain
}

// Workflow is a generalized, reusable action sequence.
type Workflow struct {
	ID              string         `json:"id"`
	Summary         string         `json:"summary"`
	Steps           []WorkflowStep `json:"steps"`
	Domain          string         `json:"domain,omitempty"`
	URLPattern      string         `json:"url_pattern,omitempty"`
	ConfidenceScore float64        `json:"confidence_score"`
	IsActive        bool           `json:"is_active"`
	ExecutionCount  int            `json:"execution_count"`
	SegmentType     string         `json:"segment_type,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// ToolReferences counts every tool reference across all steps.
func (w Workflow) ToolReferences() int {
	n := 0
	for _, s := range w.Steps {
		n += len(s.Tools)
	}
	return n
}

// ToolNames returns the distinct tool names in first-use order.
func (w Workflow) ToolNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, s := range w.Steps {
		for _, t := range s.Tools {
			if !seen[t] {
				seen[t] = true
				names = append(names, t)
			}
		}
	}
	return names
}

// Compact returns the lookup record used for duplicate checks.
func (w Workflow) Compact() CompactWorkflow {
	return CompactWorkflow{
		ID:         w.ID,
		Summary:    w.Summary,
		Domain:     w.Domain,
		URLPattern: w.URLPattern,
		StepCount:  len(w.Steps),
		ToolNames:  w.ToolNames(),
	}
}

// CompactWorkflow is the reduced form of a persisted workflow.
type CompactWorkflow struct {
	ID         string   `json:"id"`
	Summary    string   `json:"summary"`
	Domain     string   `json:"domain"`
	URLPattern string   `json:"url_pattern"`
	StepCount  int      `json:"step_count"`
	ToolNames  []string `json:"tool_names"`
}
