// Package synth asks the language model to turn a classified page segment
// into a generalized workflow.
package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mfenderov/browseflow/internal/content"
	"github.com/mfenderov/browseflow/internal/llm"
	"github.com/mfenderov/browseflow/pkg/models"
)

// ErrNoSteps is returned when the model answers without any steps.
var ErrNoSteps = errors.New("model returned a workflow without steps")

// ChatClient is the part of the LLM client the synthesizer needs.
type ChatClient interface {
	ChatJSON(ctx context.Context, r llm.Request, out any) error
}

// Config controls prompt size.
type Config struct {
	MaxTools        int // tools listed in the prompt
	MaxDescription  int // characters per tool description
	MaxPageSummary  int // characters of content per page
	MaxOutputTokens int
}

// DefaultConfig returns the standard prompt limits.
func DefaultConfig() Config {
	return Config{
		MaxTools:        60,
		MaxDescription:  160,
		MaxPageSummary:  400,
		MaxOutputTokens: 1500,
	}
}

// Synthesizer generates workflows from page segments.
type Synthesizer struct {
	client ChatClient
	config Config
	now    func() time.Time
}

// New creates a Synthesizer. Zero limits fall back to the defaults.
func New(client ChatClient, config Config) *Synthesizer {
	def := DefaultConfig()
	if config.MaxTools == 0 {
		config.MaxTools = def.MaxTools
	}
	if config.MaxDescription == 0 {
		config.MaxDescription = def.MaxDescription
	}
	if config.MaxPageSummary == 0 {
		config.MaxPageSummary = def.MaxPageSummary
	}
	if config.MaxOutputTokens == 0 {
		config.MaxOutputTokens = def.MaxOutputTokens
	}
	return &Synthesizer{client: client, config: config, now: time.Now}
}

const synthSystem = "You turn recorded browser sessions into reusable, generalized automation workflows. " +
	"Remove instance-specific details such as names, ids and search terms."

type answer struct {
	Summary    string                `json:"summary"`
	Domain     string                `json:"domain"`
	URLPattern string                `json:"url_pattern"`
	Steps      []models.WorkflowStep `json:"steps"`
}

// Synthesize generates one workflow for seg. The result carries a fresh ID,
// the segment type and confidence, and is active. It is not validated.
func (s *Synthesizer) Synthesize(ctx context.Context, seg models.PageSegment, confidence float64, tools []models.ToolDefinition) (*models.Workflow, error) {
	var a answer
	err := s.client.ChatJSON(ctx, llm.Request{
		System:      synthSystem,
		Prompt:      s.prompt(seg, tools),
		MaxTokens:   s.config.MaxOutputTokens,
		Temperature: llm.Float(0.2),
	}, &a)
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize workflow: %w", err)
	}
	if len(a.Steps) == 0 {
		return nil, ErrNoSteps
	}

	domain := strings.ToLower(strings.TrimSpace(a.Domain))
	if domain == "" {
		domain = seg.Domain()
	}
	summary := strings.TrimSpace(a.Summary)
	if summary == "" {
		summary = fmt.Sprintf("%s workflow on %s", seg.SegmentType, domain)
	}

	for i := range a.Steps {
		a.Steps[i].StepType = strings.ToLower(strings.TrimSpace(a.Steps[i].StepType))
	}

	now := s.now().UTC()
	wf := &models.Workflow{
		ID:              models.NewWorkflowID(),
		Summary:         summary,
		Steps:           a.Steps,
		Domain:          domain,
		URLPattern:      strings.TrimSpace(a.URLPattern),
		ConfidenceScore: confidence,
		IsActive:        true,
		SegmentType:     seg.SegmentType,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	slog.Debug("synthesized workflow", "summary", wf.Summary, "steps", len(wf.Steps), "domain", wf.Domain)
	return wf, nil
}

func (s *Synthesizer) prompt(seg models.PageSegment, tools []models.ToolDefinition) string {
	var pages strings.Builder
	for i, p := range seg.Pages {
		fmt.Fprintf(&pages, "%d. %s (%s), %d events over %ds\n   %s\n",
			i+1, p.Title, p.URL, p.EventCount, p.DurationMS/1000,
			content.Truncate(p.ContentSummary, s.config.MaxPageSummary))
	}

	var toolList strings.Builder
	for i, t := range tools {
		if i == s.config.MaxTools {
			fmt.Fprintf(&toolList, "... and %d more\n", len(tools)-i)
			break
		}
		fmt.Fprintf(&toolList, "- %s: %s", t.Name, content.Truncate(t.Description, s.config.MaxDescription))
		if req := t.RequiredParameters(); len(req) > 0 {
			fmt.Fprintf(&toolList, " (requires: %s)", strings.Join(req, ", "))
		}
		toolList.WriteString("\n")
	}
	if len(tools) == 0 {
		toolList.WriteString("(none)\n")
	}

	return fmt.Sprintf(`Generate a reusable workflow from this browsing session.

SESSION:
Intent: %s
Domain: %s
Tool categories: %s
Pages:
%s
AVAILABLE TOOLS:
%s
RULES:
1. The first step MUST have step_type "browser_context" and read information from the current page.
2. Every other step is either "browser_context" or "tool".
3. Tool steps may ONLY use tool names from AVAILABLE TOOLS.
4. Use at least 2 steps.
5. url_pattern generalizes the visited URLs, using * for variable parts.

OUTPUT FORMAT: Return ONLY a JSON object:
{"summary": "...", "domain": "...", "url_pattern": "...",
 "steps": [{"description": "...", "step_type": "browser_context", "context_selector": "...", "context_description": "..."},
           {"description": "...", "step_type": "tool", "tools": ["..."], "tool_parameters": {}}]}`,
		seg.SegmentType, seg.Domain(), strings.Join(seg.ToolCategories, ", "),
		pages.String(), toolList.String())
}
