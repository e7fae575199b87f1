// Package export writes workflows as self-describing JSON documents and reads
// them back for duplicate lookups.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/mfenderov/browseflow/pkg/models"
)

// Metadata is the document header.
type Metadata struct {
	ID         string    `json:"id"`
	Summary    string    `json:"summary"`
	Domain     string    `json:"domain"`
	URLPattern string    `json:"url_pattern"`
	CreatedAt  time.Time `json:"created_at"`
	StepCount  int       `json:"step_count"`
	HasTools   bool      `json:"has_tools"`
	ToolCount  int       `json:"tool_count"`
}

// ToolDetail names and describes one tool used by a step.
type ToolDetail struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// StepTools is the tool section of a tool step.
type StepTools struct {
	ToolNames      []string       `json:"tool_names"`
	ToolCount      int            `json:"tool_count"`
	ToolDetails    []ToolDetail   `json:"tool_details"`
	ToolParameters map[string]any `json:"tool_parameters,omitempty"`
}

// BrowserContext is the context section of a browser-context step.
type BrowserContext struct {
	ContextSelector    string `json:"context_selector"`
	ContextDescription string `json:"context_description"`
}

// Step is one exported workflow step.
type Step struct {
	StepNumber         int             `json:"step_number"`
	Description        string          `json:"description"`
	StepType           string          `json:"step_type"`
	ContextDescription string          `json:"context_description"`
	Tools              *StepTools      `json:"tools,omitempty"`
	BrowserContext     *BrowserContext `json:"browser_context,omitempty"`
}

// Body is the workflow section.
type Body struct {
	Summary    string `json:"summary"`
	Domain     string `json:"domain"`
	URLPattern string `json:"url_pattern"`
	Steps      []Step `json:"steps"`
}

// ToolUsage summarizes tool references.
type ToolUsage struct {
	TotalTools  int      `json:"total_tools"`
	UniqueTools int      `json:"unique_tools"`
	ToolNames   []string `json:"tool_names"`
	ToolSteps   int      `json:"tool_steps"`
}

// BrowserContextUsage summarizes browser-context steps.
type BrowserContextUsage struct {
	BrowserContextSteps int     `json:"browser_context_steps"`
	TotalSteps          int     `json:"total_steps"`
	BrowserContextRatio float64 `json:"browser_context_ratio"`
}

// Analysis holds derived workflow statistics.
type Analysis struct {
	IntentClassification string              `json:"intent_classification"`
	ComplexityScore      int                 `json:"complexity_score"`
	ToolUsage            ToolUsage           `json:"tool_usage"`
	BrowserContextUsage  BrowserContextUsage `json:"browser_context_usage"`
}

// Document is the exported form of a workflow.
type Document struct {
	Metadata Metadata `json:"metadata"`
	Workflow Body     `json:"workflow"`
	Analysis Analysis `json:"analysis"`
}

// ToolDescriber looks up catalog entries for tool details.
type ToolDescriber interface {
	Get(name string) (models.ToolDefinition, bool)
}

// NewDocument builds the export document for wf. tools may be nil.
func NewDocument(wf models.Workflow, tools ToolDescriber) Document {
	created := wf.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	intent := wf.SegmentType
	if intent == "" {
		intent = "unknown"
	}

	names := wf.ToolNames()
	refs := wf.ToolReferences()

	doc := Document{
		Metadata: Metadata{
			ID:         wf.ID,
			Summary:    wf.Summary,
			Domain:     wf.Domain,
			URLPattern: wf.URLPattern,
			CreatedAt:  created,
			StepCount:  len(wf.Steps),
			HasTools:   refs > 0,
			ToolCount:  refs,
		},
		Workflow: Body{
			Summary:    wf.Summary,
			Domain:     wf.Domain,
			URLPattern: wf.URLPattern,
			Steps:      make([]Step, 0, len(wf.Steps)),
		},
		Analysis: Analysis{
			IntentClassification: intent,
			ComplexityScore:      len(wf.Steps) + refs,
			ToolUsage: ToolUsage{
				TotalTools:  refs,
				UniqueTools: len(names),
				ToolNames:   names,
			},
		},
	}

	browserSteps := 0
	for i, s := range wf.Steps {
		step := Step{
			StepNumber:         i + 1,
			Description:        s.Description,
			StepType:           s.StepType,
			ContextDescription: s.ContextDescription,
		}
		if len(s.Tools) > 0 {
			doc.Analysis.ToolUsage.ToolSteps++
		}
		switch s.StepType {
		case models.StepTypeTool:
			if len(s.Tools) > 0 {
				step.Tools = &StepTools{
					ToolNames:      s.Tools,
					ToolCount:      len(s.Tools),
					ToolDetails:    details(s.Tools, tools),
					ToolParameters: s.ToolParameters,
				}
			}
		case models.StepTypeBrowserContext:
			browserSteps++
			step.BrowserContext = &BrowserContext{
				ContextSelector:    s.ContextSelector,
				ContextDescription: s.ContextDescription,
			}
		}
		doc.Workflow.Steps = append(doc.Workflow.Steps, step)
	}

	doc.Analysis.BrowserContextUsage = BrowserContextUsage{
		BrowserContextSteps: browserSteps,
		TotalSteps:          len(wf.Steps),
	}
	if len(wf.Steps) > 0 {
		doc.Analysis.BrowserContextUsage.BrowserContextRatio = float64(browserSteps) / float64(len(wf.Steps))
	}
	return doc
}

func details(names []string, tools ToolDescriber) []ToolDetail {
	out := make([]ToolDetail, len(names))
	for i, name := range names {
		out[i] = ToolDetail{Name: name, Description: "Tool: " + name}
		if tools == nil {
			continue
		}
		if def, ok := tools.Get(name); ok && def.Description != "" {
			out[i].Description = def.Description
		}
	}
	return out
}

// Compact returns the duplicate-lookup record for the document.
func (d Document) Compact() models.CompactWorkflow {
	names := d.Analysis.ToolUsage.ToolNames
	if len(names) == 0 {
		seen := make(map[string]bool)
		for _, s := range d.Workflow.Steps {
			if s.Tools == nil {
				continue
			}
			for _, n := range s.Tools.ToolNames {
				if !seen[n] {
					seen[n] = true
					names = append(names, n)
				}
			}
		}
	}
	return models.CompactWorkflow{
		ID:         d.Metadata.ID,
		Summary:    d.Metadata.Summary,
		Domain:     d.Metadata.Domain,
		URLPattern: d.Metadata.URLPattern,
		StepCount:  len(d.Workflow.Steps),
		ToolNames:  names,
	}
}

// Marshal encodes the document as indented JSON without HTML escaping.
func Marshal(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes an exported document.
func Unmarshal(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}

const maxNameLength = 50

// Sanitize makes s safe as a file or object name: characters other than
// letters, digits, dot, dash and underscore become underscores, and runs of
// underscores collapse. An empty result is "unknown".
func Sanitize(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, s)
	parts := strings.FieldsFunc(mapped, func(r rune) bool { return r == '_' })
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, "_")
}

// Filename returns the export file name for the index-th workflow (1-based).
func Filename(index int, summary string) string {
	name := []rune(Sanitize(summary))
	if len(name) > maxNameLength {
		name = name[:maxNameLength]
	}
	return fmt.Sprintf("%02d_%s.json", index, string(name))
}
