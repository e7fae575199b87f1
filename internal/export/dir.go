package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mfenderov/browseflow/pkg/models"
)

// DirWriter exports workflows as JSON files in a local directory. It also
// serves as a duplicate lookup over the files it wrote.
type DirWriter struct {
	dir   string
	tools ToolDescriber
}

// NewDirWriter creates the directory if needed. tools may be nil.
func NewDirWriter(dir string, tools ToolDescriber) (*DirWriter, error) {
	if dir == "" {
		return nil, fmt.Errorf("export directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	return &DirWriter{dir: dir, tools: tools}, nil
}

// Dir returns the export directory.
func (w *DirWriter) Dir() string { return w.dir }

// Export writes one file per workflow, numbered from 1, and returns the
// written paths. A failed write stops the export.
func (w *DirWriter) Export(ctx context.Context, workflows []models.Workflow) ([]string, error) {
	if len(workflows) == 0 {
		slog.Warn("no workflows to export")
		return nil, nil
	}

	var paths []string
	for i, wf := range workflows {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		data, err := Marshal(NewDocument(wf, w.tools))
		if err != nil {
			return paths, err
		}
		path := filepath.Join(w.dir, Filename(i+1, wf.Summary))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return paths, fmt.Errorf("failed to write %s: %w", path, err)
		}
		slog.Debug("exported workflow", "path", path)
		paths = append(paths, path)
	}

	slog.Info("exported workflows", "dir", w.dir, "count", len(paths))
	return paths, nil
}

type exportedFile struct {
	path    string
	modTime time.Time
}

// LoadRecent reads exported documents for domain, newest file first.
// Unreadable files are skipped.
func (w *DirWriter) LoadRecent(ctx context.Context, domain string, limit int) ([]models.CompactWorkflow, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read export directory: %w", err)
	}

	var files []exportedFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, exportedFile{path: filepath.Join(w.dir, e.Name()), modTime: info.ModTime()})
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].modTime.After(files[j].modTime) })

	var out []models.CompactWorkflow
	for _, f := range files {
		if len(out) >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		data, err := os.ReadFile(f.path)
		if err != nil {
			slog.Warn("failed to read exported workflow", "path", f.path, "error", err)
			continue
		}
		doc, err := Unmarshal(data)
		if err != nil {
			slog.Warn("skipping malformed exported workflow", "path", f.path, "error", err)
			continue
		}
		if models.DomainKey(doc.Metadata.Domain) != models.DomainKey(domain) {
			continue
		}
		out = append(out, doc.Compact())
	}
	return out, nil
}
