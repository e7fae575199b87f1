package events

import (
	"time"

	"github.com/mfenderov/browseflow/pkg/models"
)

// WorkflowsGeneratedEvent is sent when a batch has been reduced to workflows.
type WorkflowsGeneratedEvent struct {
	BatchID   string            // Identifies the event batch
	Source    string            // Where the events came from (file path or database)
	Workflows []models.Workflow // Deduplicated workflows ready for export
	Timestamp time.Time         // When generation completed
}

// ExportCompleteEvent is sent when a batch's workflows have been exported.
type ExportCompleteEvent struct {
	BatchID  string        // Batch that was exported
	Paths    []string      // Files or object keys written
	Duration time.Duration // How long the export took
	Errors   []string      // Any errors encountered (non-fatal)
}
