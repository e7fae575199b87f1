// Package validator checks synthesized workflows before they are persisted.
package validator

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/mfenderov/browseflow/pkg/models"
)

// Rejection reasons.
var (
	ErrTooFewSteps      = errors.New("workflow needs at least 2 steps")
	ErrFirstStepContext = errors.New("first step must be browser_context")
	ErrInvalidStepType  = errors.New("invalid step type")
	ErrUnknownTool      = errors.New("tool not available")
	ErrToolStepNoTools  = errors.New("tool step references no tools")
)

// Rejection records why a workflow was dropped.
type Rejection struct {
	WorkflowID string
	Summary    string
	Err        error
}

// Reason is the human-readable rejection reason.
func (r Rejection) Reason() string { return r.Err.Error() }

func (r Rejection) String() string {
	return fmt.Sprintf("workflow %q rejected: %v", r.Summary, r.Err)
}

// ToolSet answers whether a tool name exists.
type ToolSet interface {
	Has(name string) bool
}

// Validator checks workflow structure and tool references.
type Validator struct {
	tools ToolSet
}

// New creates a Validator. A nil tools set skips tool checks.
func New(tools ToolSet) *Validator {
	return &Validator{tools: tools}
}

// Validate returns nil when wf is valid.
func (v *Validator) Validate(wf models.Workflow) *Rejection {
	if err := v.check(wf); err != nil {
		return &Rejection{WorkflowID: wf.ID, Summary: wf.Summary, Err: err}
	}
	return nil
}

func (v *Validator) check(wf models.Workflow) error {
	if len(wf.Steps) < 2 {
		return ErrTooFewSteps
	}
	if wf.Steps[0].StepType != models.StepTypeBrowserContext {
		return ErrFirstStepContext
	}
	for i, step := range wf.Steps {
		switch step.StepType {
		case models.StepTypeBrowserContext:
		case models.StepTypeTool:
			if len(step.Tools) == 0 {
				return fmt.Errorf("step %d: %w", i+1, ErrToolStepNoTools)
			}
			if v.tools == nil {
				continue
			}
			for _, name := range step.Tools {
				if !v.tools.Has(name) {
					return fmt.Errorf("%w: %q", ErrUnknownTool, name)
				}
			}
		default:
			return fmt.Errorf("step %d: %w %q", i+1, ErrInvalidStepType, step.StepType)
		}
	}
	return nil
}

// Filter splits workflows into valid ones and rejections, preserving order.
func (v *Validator) Filter(workflows []models.Workflow) ([]models.Workflow, []Rejection) {
	valid := []models.Workflow{}
	var rejected []Rejection
	for _, wf := range workflows {
		if r := v.Validate(wf); r != nil {
			slog.Debug("workflow rejected", "summary", wf.Summary, "reason", r.Reason())
			rejected = append(rejected, *r)
			continue
		}
		valid = append(valid, wf)
	}
	slog.Info("validated workflows", "valid", len(valid), "rejected", len(rejected))
	return valid, rejected
}
