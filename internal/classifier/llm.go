package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mfenderov/browseflow/internal/llm"
)

// ChatClient is the part of the LLM client the classifier needs.
type ChatClient interface {
	ChatJSON(ctx context.Context, r llm.Request, out any) error
}

// Intents lists the labels the model may choose from.
var Intents = []string{
	IntentFormFilling,
	IntentNavigation,
	IntentContentInteraction,
	IntentSearch,
	IntentMixedActivity,
	IntentPageSession,
	IntentSingleAction,
	IntentUnknown,
}

const classifySystem = "You are an expert at analyzing user behavior and classifying their intent. " +
	"Be precise and choose the most specific category that matches the user's primary goal."

// LLM classifies with the language model. Transport failures and unusable
// answers yield the unknown label rather than an error.
type LLM struct {
	client     ChatClient
	categories []string
	allowed    map[string]bool
	maxTokens  int
}

// NewLLM creates an LLM classifier. categories are the tool categories the
// model may request; answers naming others are filtered out.
func NewLLM(client ChatClient, categories []string) *LLM {
	allowed := make(map[string]bool, len(categories))
	for _, c := range categories {
		allowed[c] = true
	}
	return &LLM{client: client, categories: categories, allowed: allowed, maxTokens: 200}
}

type llmAnswer struct {
	Intent         string   `json:"intent"`
	ToolCategories []string `json:"tool_categories"`
}

// Classify implements Classifier.
func (c *LLM) Classify(ctx context.Context, f Features) (Label, error) {
	var answer llmAnswer
	err := c.client.ChatJSON(ctx, llm.Request{
		System:      classifySystem,
		Prompt:      c.prompt(f),
		MaxTokens:   c.maxTokens,
		Temperature: llm.Float(0.1),
	}, &answer)
	if err != nil {
		if ctx.Err() != nil {
			return Unknown(), ctx.Err()
		}
		slog.Warn("LLM classification failed, using unknown", "domain", f.Domain, "error", err)
		return Unknown(), nil
	}

	intent := normalizeIntent(answer.Intent)
	if intent == "" {
		return Unknown(), nil
	}

	categories := []string{}
	seen := make(map[string]bool)
	for _, cat := range answer.ToolCategories {
		cat = strings.TrimSpace(cat)
		if !c.allowed[cat] || seen[cat] {
			continue
		}
		seen[cat] = true
		categories = append(categories, cat)
	}

	slog.Debug("LLM classified segment", "domain", f.Domain, "intent", intent, "categories", categories)
	return Label{Intent: intent, ToolCategories: categories}, nil
}

func normalizeIntent(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, `"'.`)
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}

func (c *LLM) prompt(f Features) string {
	types, _ := json.Marshal(f.EventTypes)
	categories := "none"
	if len(c.categories) > 0 {
		categories = strings.Join(c.categories, ", ")
	}

	return fmt.Sprintf(`Classify the primary intent of this browsing session.

SESSION:
Domain: %s
Duration: %d ms
Event types: %s

Page content:
%s

User actions:
%s

INTENTS: %s
Use "unknown" when the session shows no coherent, repeatable task.

TOOL CATEGORIES available to automate this task: %s
Pick only categories a workflow replaying this session would need.

OUTPUT FORMAT: Return ONLY a JSON object, no explanations:
{"intent": "<one intent>", "tool_categories": ["<category>", ...]}`,
		f.Domain, f.DurationMS, types, f.PageContent, f.UserActions,
		strings.Join(Intents, ", "), categories)
}
