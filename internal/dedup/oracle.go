package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mfenderov/browseflow/internal/embeddings"
	"github.com/mfenderov/browseflow/internal/llm"
)

// DefaultSimilarityThreshold is the similarity at which two workflows are
// considered the same.
const DefaultSimilarityThreshold = 0.7

// ChatClient is the part of the LLM client the LLM oracle needs.
type ChatClient interface {
	ChatJSON(ctx context.Context, r llm.Request, out any) error
}

// LLMOracle asks the language model to group similar workflows.
type LLMOracle struct {
	client    ChatClient
	threshold float64
}

// NewLLMOracle creates an LLMOracle. A zero threshold uses the default.
func NewLLMOracle(client ChatClient, threshold float64) *LLMOracle {
	if threshold == 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &LLMOracle{client: client, threshold: threshold}
}

type indexedFeatures struct {
	Index int `json:"index"`
	Features
}

// Compare implements Oracle.
func (o *LLMOracle) Compare(ctx context.Context, items []Features) ([][]int, error) {
	indexed := make([]indexedFeatures, len(items))
	for i, f := range items {
		indexed[i] = indexedFeatures{Index: i, Features: f}
	}
	data, err := json.MarshalIndent(indexed, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflows: %w", err)
	}

	prompt := fmt.Sprintf(`Group these workflows by similarity.

Two workflows belong in the same group when they accomplish the same task on
the same site, even if worded differently. Similarity threshold: %.2f
(0 = anything goes, 1 = identical).

WORKFLOWS:
%s

RULES:
1. Every index appears in exactly one group.
2. Unique workflows are groups of one.

OUTPUT FORMAT: Return ONLY a JSON object:
{"groups": [[0, 2], [1], [3]]}`, o.threshold, data)

	var answer struct {
		Groups [][]int `json:"groups"`
	}
	err = o.client.ChatJSON(ctx, llm.Request{
		System: "You are an expert at analyzing workflow similarities and identifying duplicates.",
		Prompt: prompt,
	}, &answer)
	if err != nil {
		return nil, err
	}
	if len(answer.Groups) == 0 && len(items) > 0 {
		return nil, fmt.Errorf("%w: no groups returned", ErrInvalidPartition)
	}
	return answer.Groups, nil
}

// Embedder produces embedding vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingOracle groups workflows whose feature text embeddings have cosine
// similarity at or above the threshold. Grouping is single-linkage. Vectors
// are cached by text, so repeated comparisons against the same persisted
// workflows embed them once.
type EmbeddingOracle struct {
	embedder  Embedder
	threshold float64

	mu    sync.Mutex
	cache map[string][]float32
}

// NewEmbeddingOracle creates an EmbeddingOracle. A zero threshold uses the default.
func NewEmbeddingOracle(embedder Embedder, threshold float64) *EmbeddingOracle {
	if threshold == 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &EmbeddingOracle{embedder: embedder, threshold: threshold, cache: make(map[string][]float32)}
}

// Compare implements Oracle.
func (o *EmbeddingOracle) Compare(ctx context.Context, items []Features) ([][]int, error) {
	vectors := make([][]float32, len(items))
	for i, f := range items {
		v, err := o.vector(ctx, f.Text())
		if err != nil {
			return nil, fmt.Errorf("failed to embed workflow %d: %w", i, err)
		}
		vectors[i] = v
	}

	parent := make([]int, len(items))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}

	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			if embeddings.Cosine(vectors[i], vectors[j]) >= o.threshold {
				if ri, rj := find(i), find(j); ri != rj {
					parent[rj] = ri
				}
			}
		}
	}

	byRoot := make(map[int]int)
	var groups [][]int
	for i := range items {
		root := find(i)
		g, ok := byRoot[root]
		if !ok {
			g = len(groups)
			byRoot[root] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups, nil
}

func (o *EmbeddingOracle) vector(ctx context.Context, text string) ([]float32, error) {
	o.mu.Lock()
	v, ok := o.cache[text]
	o.mu.Unlock()
	if ok {
		return v, nil
	}

	v, err := o.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.cache[text] = v
	o.mu.Unlock()
	return v, nil
}
