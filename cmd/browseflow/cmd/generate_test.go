package cmd

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mfenderov/browseflow/internal/pipeline"
	"github.com/mfenderov/browseflow/pkg/models"
)

// slowExporter records exported batches after a delay, like a bucket write.
type slowExporter struct {
	mu      sync.Mutex
	batches int
}

func (e *slowExporter) Export(_ context.Context, workflows []models.Workflow) ([]string, error) {
	time.Sleep(20 * time.Millisecond)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.batches++
	paths := make([]string, len(workflows))
	for i, wf := range workflows {
		paths[i] = wf.ID + ".json"
	}
	return paths, nil
}

func (e *slowExporter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.batches
}

// recordingRunner notes how many batches were exported when each run starts.
type recordingRunner struct {
	exporter *slowExporter
	seen     []int
}

func (r *recordingRunner) Run(_ context.Context, events []models.Event) (*pipeline.Result, error) {
	r.seen = append(r.seen, r.exporter.count())
	id := events[0].ID
	return &pipeline.Result{BatchID: id, Workflows: []models.Workflow{{ID: id}}}, nil
}

func testSources() []source {
	return []source{
		{name: "one.json", events: []models.Event{{ID: "one"}}},
		{name: "two.json", events: []models.Event{{ID: "two"}}},
		{name: "three.json", events: []models.Event{{ID: "three"}}},
	}
}

func TestGenerateAll_WaitsForExportBetweenBatches(t *testing.T) {
	exp := &slowExporter{}
	runner := &recordingRunner{exporter: exp}

	summary := generateAll(context.Background(), runner, []exporter{exp}, testSources(), true)

	for i, n := range runner.seen {
		if n != i {
			t.Errorf("run %d started after %d exports, want %d", i, n, i)
		}
	}
	if summary.workflows != 3 || summary.exported != 3 || exp.count() != 3 {
		t.Errorf("summary = %+v, exported batches = %d", summary, exp.count())
	}
}

func TestGenerateAll_ExportsEverythingWithoutWaiting(t *testing.T) {
	exp := &slowExporter{}
	runner := &recordingRunner{exporter: exp}

	summary := generateAll(context.Background(), runner, []exporter{exp}, testSources(), false)

	if len(runner.seen) != 3 || summary.exported != 3 || exp.count() != 3 {
		t.Errorf("runs = %v, summary = %+v", runner.seen, summary)
	}
}
