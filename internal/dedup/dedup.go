// Package dedup collapses semantically similar workflows, within a batch and
// against previously stored workflows, keeping one representative per group.
package dedup

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/mfenderov/browseflow/pkg/models"
)

// UnknownDomain is the bucket of workflows without a domain.
const UnknownDomain = models.UnknownDomain

// Oracle groups similar workflows. It returns groups of indices into its
// input; the result may be untrusted and is normalized by the caller.
type Oracle interface {
	Compare(ctx context.Context, items []Features) ([][]int, error)
}

// Lookup loads recently persisted workflows for a domain, newest first.
type Lookup interface {
	LoadRecent(ctx context.Context, domain string, limit int) ([]models.CompactWorkflow, error)
}

// Config holds deduplication parameters.
type Config struct {
	ExistingWindow int // most recent persisted workflows compared per domain
	ExistingBatch  int // persisted workflows per oracle call
	MaxConcurrency int // domain buckets processed at once
}

// DefaultConfig returns the standard parameters.
func DefaultConfig() Config {
	return Config{
		ExistingWindow: 100,
		ExistingBatch:  25,
		MaxConcurrency: 4,
	}
}

// Stats summarizes a deduplication run.
type Stats struct {
	Input           int
	Output          int
	Buckets         int
	MergedInBatch   int // removed as duplicates of another new workflow
	MatchedExisting int // removed as duplicates of a persisted workflow
	OracleCalls     int
	OracleFallbacks int // oracle failures treated as all-unique
	LookupFailures  int
}

func (s *Stats) add(o Stats) {
	s.MergedInBatch += o.MergedInBatch
	s.MatchedExisting += o.MatchedExisting
	s.OracleCalls += o.OracleCalls
	s.OracleFallbacks += o.OracleFallbacks
	s.LookupFailures += o.LookupFailures
}

// Deduplicator removes duplicate workflows.
type Deduplicator struct {
	oracle Oracle
	lookup Lookup
	config Config
}

// New creates a Deduplicator. A nil lookup skips the comparison against
// persisted workflows.
func New(oracle Oracle, lookup Lookup, config Config) *Deduplicator {
	def := DefaultConfig()
	if config.ExistingWindow == 0 {
		config.ExistingWindow = def.ExistingWindow
	}
	if config.ExistingBatch == 0 {
		config.ExistingBatch = def.ExistingBatch
	}
	if config.MaxConcurrency == 0 {
		config.MaxConcurrency = def.MaxConcurrency
	}
	return &Deduplicator{oracle: oracle, lookup: lookup, config: config}
}

// Bucket is the workflows of one domain.
type Bucket struct {
	Domain    string
	Workflows []models.Workflow
}

// Partition splits workflows by domain in first-appearance order. Workflows
// without a domain go to UnknownDomain.
func Partition(workflows []models.Workflow) []Bucket {
	index := make(map[string]int)
	var buckets []Bucket
	for _, wf := range workflows {
		domain := models.DomainKey(wf.Domain)
		i, ok := index[domain]
		if !ok {
			i = len(buckets)
			index[domain] = i
			buckets = append(buckets, Bucket{Domain: domain})
		}
		buckets[i].Workflows = append(buckets[i].Workflows, wf)
	}
	return buckets
}

// Deduplicate returns one representative per similarity group, minus any
// workflow the oracle grouped with a persisted one. Buckets are processed
// concurrently; output is grouped by bucket in first-appearance order.
// Oracle and lookup failures never fail the run.
func (d *Deduplicator) Deduplicate(ctx context.Context, workflows []models.Workflow) ([]models.Workflow, Stats) {
	stats := Stats{Input: len(workflows)}
	if len(workflows) == 0 {
		return []models.Workflow{}, stats
	}

	buckets := Partition(workflows)
	stats.Buckets = len(buckets)

	results := make([][]models.Workflow, len(buckets))
	bucketStats := make([]Stats, len(buckets))

	var g errgroup.Group
	g.SetLimit(d.config.MaxConcurrency)
	for i, b := range buckets {
		g.Go(func() error {
			results[i], bucketStats[i] = d.dedupBucket(ctx, b)
			return nil
		})
	}
	_ = g.Wait()

	out := []models.Workflow{}
	for i := range buckets {
		out = append(out, results[i]...)
		stats.add(bucketStats[i])
	}
	stats.Output = len(out)

	slog.Info("deduplication complete",
		"input", stats.Input, "output", stats.Output, "buckets", stats.Buckets,
		"merged", stats.MergedInBatch, "matched_existing", stats.MatchedExisting,
		"oracle_fallbacks", stats.OracleFallbacks)
	return out, stats
}

func (d *Deduplicator) dedupBucket(ctx context.Context, b Bucket) ([]models.Workflow, Stats) {
	var stats Stats
	slog.Debug("deduplicating bucket", "domain", b.Domain, "workflows", len(b.Workflows))

	unique := d.withinBatch(ctx, b.Workflows, &stats)
	stats.MergedInBatch = len(b.Workflows) - len(unique)

	if d.lookup == nil || len(unique) == 0 {
		return unique, stats
	}

	existing, err := d.lookup.LoadRecent(ctx, b.Domain, d.config.ExistingWindow)
	if err != nil {
		stats.LookupFailures++
		slog.Warn("failed to load existing workflows", "domain", b.Domain, "error", err)
		return unique, stats
	}

	kept := d.againstExisting(ctx, unique, existing, &stats)
	stats.MatchedExisting = len(unique) - len(kept)
	return kept, stats
}

func (d *Deduplicator) withinBatch(ctx context.Context, workflows []models.Workflow, stats *Stats) []models.Workflow {
	if len(workflows) < 2 {
		return workflows
	}

	items := make([]Features, len(workflows))
	for i, wf := range workflows {
		items[i] = FeaturesOf(wf)
	}

	groups := d.compare(ctx, items, stats)

	keep := make([]bool, len(workflows))
	for _, g := range groups {
		rep := Representative(workflows, g)
		keep[rep] = true
		if len(g) > 1 {
			slog.Debug("grouped similar workflows", "size", len(g), "kept", workflows[rep].Summary)
		}
	}

	var out []models.Workflow
	for i, wf := range workflows {
		if keep[i] {
			out = append(out, wf)
		}
	}
	return out
}

func (d *Deduplicator) againstExisting(ctx context.Context, workflows []models.Workflow, existing []models.CompactWorkflow, stats *Stats) []models.Workflow {
	remaining := workflows
	for start := 0; start < len(existing) && len(remaining) > 0; start += d.config.ExistingBatch {
		end := min(start+d.config.ExistingBatch, len(existing))
		batch := existing[start:end]

		n := len(remaining)
		items := make([]Features, 0, n+len(batch))
		for _, wf := range remaining {
			items = append(items, FeaturesOf(wf))
		}
		for _, c := range batch {
			items = append(items, FeaturesOfCompact(c))
		}

		groups := d.compare(ctx, items, stats)

		duplicate := make([]bool, n)
		for _, g := range groups {
			if g[len(g)-1] < n {
				continue // no persisted member
			}
			for _, i := range g {
				if i < n {
					duplicate[i] = true
				}
			}
		}

		var next []models.Workflow
		for i, wf := range remaining {
			if duplicate[i] {
				slog.Debug("dropped workflow matching existing", "summary", wf.Summary)
				continue
			}
			next = append(next, wf)
		}
		remaining = next
	}
	return remaining
}

// compare asks the oracle for a partition, falling back to all-unique when
// the oracle fails or answers with something that is not a partition.
func (d *Deduplicator) compare(ctx context.Context, items []Features, stats *Stats) [][]int {
	if d.oracle == nil {
		return Singletons(len(items))
	}

	stats.OracleCalls++
	raw, err := d.oracle.Compare(ctx, items)
	if err != nil {
		stats.OracleFallbacks++
		slog.Warn("similarity oracle failed, treating workflows as unique", "items", len(items), "error", err)
		return Singletons(len(items))
	}

	groups, err := NormalizePartition(raw, len(items))
	if err != nil {
		stats.OracleFallbacks++
		slog.Warn("similarity oracle returned unusable groups, treating workflows as unique", "error", err)
		return Singletons(len(items))
	}
	return groups
}
