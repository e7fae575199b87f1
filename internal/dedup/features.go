package dedup

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/mfenderov/browseflow/pkg/models"
)

// ErrInvalidPartition is returned by NormalizePartition for oracle output
// that is not a partition of the input indices.
var ErrInvalidPartition = errors.New("invalid partition")

// StepDescriptor is the part of a step an oracle compares.
type StepDescriptor struct {
	Description string   `json:"description"`
	StepType    string   `json:"step_type"`
	Tools       []string `json:"tools,omitempty"`
}

// Features is the compact form of a workflow sent to an oracle.
type Features struct {
	Summary    string           `json:"summary"`
	Domain     string           `json:"domain"`
	URLPattern string           `json:"url_pattern"`
	StepCount  int              `json:"step_count"`
	Steps      []StepDescriptor `json:"steps,omitempty"`
	ToolNames  []string         `json:"tool_names,omitempty"`
}

// FeaturesOf describes a freshly generated workflow.
func FeaturesOf(wf models.Workflow) Features {
	steps := make([]StepDescriptor, len(wf.Steps))
	for i, s := range wf.Steps {
		steps[i] = StepDescriptor{Description: s.Description, StepType: s.StepType, Tools: s.Tools}
	}
	return Features{
		Summary:    wf.Summary,
		Domain:     wf.Domain,
		URLPattern: wf.URLPattern,
		StepCount:  len(wf.Steps),
		Steps:      steps,
		ToolNames:  wf.ToolNames(),
	}
}

// FeaturesOfCompact describes a persisted workflow. Step details are not
// stored, so only the count and tool names are known.
func FeaturesOfCompact(c models.CompactWorkflow) Features {
	return Features{
		Summary:    c.Summary,
		Domain:     c.Domain,
		URLPattern: c.URLPattern,
		StepCount:  c.StepCount,
		ToolNames:  c.ToolNames,
	}
}

// Text renders features as a single string for embedding.
func (f Features) Text() string {
	var b strings.Builder
	b.WriteString(f.Summary)
	if f.URLPattern != "" {
		b.WriteString("\nURL: ")
		b.WriteString(f.URLPattern)
	}
	for _, s := range f.Steps {
		fmt.Fprintf(&b, "\n- %s", s.Description)
		if len(s.Tools) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(s.Tools, ", "))
		}
	}
	if len(f.Steps) == 0 && len(f.ToolNames) > 0 {
		fmt.Fprintf(&b, "\nTools: %s", strings.Join(f.ToolNames, ", "))
	}
	return b.String()
}

// QualityScore ranks members of a similarity group. Richer workflows with a
// concrete URL pattern score higher.
func QualityScore(wf models.Workflow) float64 {
	score := 0.1*float64(len(wf.Steps)) +
		0.2*float64(wf.ToolReferences()) +
		0.01*float64(utf8.RuneCountInString(wf.Summary))
	if !IsWildcard(wf.URLPattern) {
		score += 0.5
	}
	return score
}

// IsWildcard reports whether a URL pattern matches everything: it is empty or
// made only of wildcard and separator characters.
func IsWildcard(pattern string) bool {
	return strings.Trim(strings.TrimSpace(pattern), "*/:.") == ""
}

// Representative returns the index of the highest quality member of group.
// Ties keep the earliest index.
func Representative(workflows []models.Workflow, group []int) int {
	best := group[0]
	bestScore := QualityScore(workflows[best])
	for _, i := range group[1:] {
		if s := QualityScore(workflows[i]); s > bestScore || (s == bestScore && i < best) {
			best, bestScore = i, s
		}
	}
	return best
}

// NormalizePartition checks that groups partitions [0, n). Indices missing
// from every group become singletons. Each group is sorted, and groups are
// ordered by their smallest index. Out of range or repeated indices make the
// partition invalid.
func NormalizePartition(groups [][]int, n int) ([][]int, error) {
	seen := make([]bool, n)
	var out [][]int
	for _, g := range groups {
		if len(g) == 0 {
			continue
		}
		group := make([]int, 0, len(g))
		for _, i := range g {
			if i < 0 || i >= n {
				return nil, fmt.Errorf("%w: index %d out of range [0,%d)", ErrInvalidPartition, i, n)
			}
			if seen[i] {
				return nil, fmt.Errorf("%w: index %d appears twice", ErrInvalidPartition, i)
			}
			seen[i] = true
			group = append(group, i)
		}
		sort.Ints(group)
		out = append(out, group)
	}
	for i, ok := range seen {
		if !ok {
			out = append(out, []int{i})
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a][0] < out[b][0] })
	return out, nil
}

// Singletons is the all-unique partition of n items.
func Singletons(n int) [][]int {
	groups := make([][]int, n)
	for i := range groups {
		groups[i] = []int{i}
	}
	return groups
}
