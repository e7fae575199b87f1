package export

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/mfenderov/browseflow/internal/storage"
	"github.com/mfenderov/browseflow/pkg/models"
)

// ObjectStore is the part of the storage client the bucket writer needs.
type ObjectStore interface {
	PutJSON(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]storage.Object, error)
}

// BucketWriter exports workflows to an object store under
// <prefix>/<domain>/<id>.json and reads them back for duplicate lookups.
type BucketWriter struct {
	store  ObjectStore
	prefix string
	tools  ToolDescriber
}

// NewBucketWriter creates a BucketWriter. An empty prefix is "workflows".
func NewBucketWriter(store ObjectStore, prefix string, tools ToolDescriber) *BucketWriter {
	if prefix == "" {
		prefix = "workflows"
	}
	return &BucketWriter{store: store, prefix: strings.Trim(prefix, "/"), tools: tools}
}

func (w *BucketWriter) domainPrefix(domain string) string {
	return path.Join(w.prefix, Sanitize(models.DomainKey(domain))) + "/"
}

// Key returns the object key for wf.
func (w *BucketWriter) Key(wf models.Workflow) string {
	id := wf.ID
	if id == "" {
		id = Sanitize(wf.Summary)
	}
	return w.domainPrefix(wf.Domain) + Sanitize(id) + ".json"
}

// Export writes one object per workflow and returns the keys.
func (w *BucketWriter) Export(ctx context.Context, workflows []models.Workflow) ([]string, error) {
	var keys []string
	for _, wf := range workflows {
		data, err := Marshal(NewDocument(wf, w.tools))
		if err != nil {
			return keys, err
		}
		key := w.Key(wf)
		if err := w.store.PutJSON(ctx, key, data); err != nil {
			return keys, err
		}
		slog.Debug("exported workflow", "key", key)
		keys = append(keys, key)
	}
	if len(keys) > 0 {
		slog.Info("exported workflows to bucket", "prefix", w.prefix, "count", len(keys))
	}
	return keys, nil
}

// LoadRecent reads the newest exported documents for domain.
func (w *BucketWriter) LoadRecent(ctx context.Context, domain string, limit int) ([]models.CompactWorkflow, error) {
	objects, err := w.store.List(ctx, w.domainPrefix(domain))
	if err != nil {
		return nil, fmt.Errorf("failed to list exported workflows: %w", err)
	}
	sort.SliceStable(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})

	var out []models.CompactWorkflow
	for _, obj := range objects {
		if len(out) >= limit {
			break
		}
		if !strings.HasSuffix(obj.Key, ".json") {
			continue
		}
		data, err := w.store.Get(ctx, obj.Key)
		if err != nil {
			slog.Warn("failed to read exported workflow", "key", obj.Key, "error", err)
			continue
		}
		doc, err := Unmarshal(data)
		if err != nil {
			slog.Warn("skipping malformed exported workflow", "key", obj.Key, "error", err)
			continue
		}
		out = append(out, doc.Compact())
	}
	return out, nil
}
