package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/mfenderov/browseflow/pkg/models"
)

// Config holds Elasticsearch client configuration.
type Config struct {
	Addresses []string
	Index     string
	Username  string
	Password  string
	// Dims is the embedding vector size. Zero leaves the embedding field
	// out of the mapping.
	Dims int
}

// Client stores and retrieves workflows in an Elasticsearch index.
type Client struct {
	es    *elasticsearch.Client
	index string
	dims  int
}

// New creates a new Elasticsearch client.
func New(config Config) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: config.Addresses,
		Username:  config.Username,
		Password:  config.Password,
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create ES client: %w", err)
	}

	return &Client{
		es:    es,
		index: config.Index,
		dims:  config.Dims,
	}, nil
}

// Index returns the index name.
func (c *Client) Index() string {
	return c.index
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) bool {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return false
	}
	defer res.Body.Close()
	return !res.IsError()
}

// document is the indexed form of a workflow. Step count and tool names are
// denormalized so duplicate lookups can skip the steps.
type document struct {
	models.Workflow
	StepCount int       `json:"step_count"`
	ToolNames []string  `json:"tool_names,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
}

func (d document) compact() models.CompactWorkflow {
	c := d.Workflow.Compact()
	if len(d.Steps) == 0 {
		c.StepCount = d.StepCount
		c.ToolNames = d.ToolNames
	}
	return c
}

// indexMapping returns the index mapping for workflows.
func indexMapping(dims int) map[string]any {
	properties := map[string]any{
		"id":          map[string]any{"type": "keyword"},
		"summary":     map[string]any{"type": "text", "analyzer": "english"},
		"domain":      map[string]any{"type": "keyword"},
		"url_pattern": map[string]any{"type": "keyword"},
		"steps": map[string]any{
			"properties": map[string]any{
				"description":         map[string]any{"type": "text", "analyzer": "english"},
				"step_type":           map[string]any{"type": "keyword"},
				"tools":               map[string]any{"type": "keyword"},
				"tool_parameters":     map[string]any{"type": "object", "enabled": false},
				"context_selector":    map[string]any{"type": "keyword", "index": false},
				"context_description": map[string]any{"type": "text"},
			},
		},
		"step_count":       map[string]any{"type": "integer"},
		"tool_names":       map[string]any{"type": "keyword"},
		"segment_type":     map[string]any{"type": "keyword"},
		"confidence_score": map[string]any{"type": "float"},
		"is_active":        map[string]any{"type": "boolean"},
		"execution_count":  map[string]any{"type": "integer"},
		"created_at":       map[string]any{"type": "date"},
		"updated_at":       map[string]any{"type": "date"},
	}
	if dims > 0 {
		properties["embedding"] = map[string]any{
			"type":       "dense_vector",
			"dims":       dims,
			"index":      true,
			"similarity": "cosine",
		}
	}
	return map[string]any{"mappings": map[string]any{"properties": properties}}
}

// CreateIndex creates the index with proper mapping.
func (c *Client) CreateIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 200 {
		return nil
	}

	mapping, err := json.Marshal(indexMapping(c.dims))
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	res, err = c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(mapping)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error creating index: %s", res.String())
	}

	return nil
}

// DeleteIndex removes the index (for testing/cleanup).
func (c *Client) DeleteIndex(ctx context.Context) error {
	res, err := c.es.Indices.Delete([]string{c.index}, c.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return nil
}

// Save indexes a workflow and returns its ID. A workflow without an ID gets
// a new one.
func (c *Client) Save(ctx context.Context, wf models.Workflow) (string, error) {
	return c.SaveWithEmbedding(ctx, wf, nil)
}

// SaveWithEmbedding indexes a workflow together with its embedding vector.
func (c *Client) SaveWithEmbedding(ctx context.Context, wf models.Workflow, embedding []float32) (string, error) {
	if wf.ID == "" {
		wf.ID = models.NewWorkflowID()
	}
	if c.dims == 0 {
		embedding = nil
	}

	data, err := json.Marshal(document{
		Workflow:  wf,
		StepCount: len(wf.Steps),
		ToolNames: wf.ToolNames(),
		Embedding: embedding,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal workflow: %w", err)
	}

	res, err := c.es.Index(
		c.index,
		bytes.NewReader(data),
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(wf.ID),
	)
	if err != nil {
		return "", fmt.Errorf("failed to index workflow: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return "", fmt.Errorf("error indexing workflow (status %d): %s", res.StatusCode, res.String())
	}

	return wf.ID, nil
}

// Refresh forces an index refresh (useful for testing).
func (c *Client) Refresh(ctx context.Context) error {
	res, err := c.es.Indices.Refresh(
		c.es.Indices.Refresh.WithContext(ctx),
		c.es.Indices.Refresh.WithIndex(c.index),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return nil
}

// searchResponse represents ES search response structure.
type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (c *Client) search(ctx context.Context, query map[string]any) ([]document, error) {
	data, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(data)),
	)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", res.String())
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	docs := make([]document, len(sr.Hits.Hits))
	for i, hit := range sr.Hits.Hits {
		docs[i] = hit.Source
	}
	return docs, nil
}

func workflows(docs []document) []models.Workflow {
	out := make([]models.Workflow, len(docs))
	for i, d := range docs {
		out[i] = d.Workflow
	}
	return out
}

// recentQuery selects the newest workflows, optionally for one domain.
// The unknown domain also matches workflows saved without one.
func recentQuery(domain string, limit int) map[string]any {
	query := map[string]any{"match_all": map[string]any{}}
	switch {
	case domain == "":
	case domain == models.UnknownDomain:
		query = map[string]any{
			"bool": map[string]any{
				"should": []map[string]any{
					{"term": map[string]any{"domain": models.UnknownDomain}},
					{"term": map[string]any{"domain": ""}},
					{"bool": map[string]any{"must_not": map[string]any{"exists": map[string]any{"field": "domain"}}}},
				},
				"minimum_should_match": 1,
			},
		}
	default:
		query = map[string]any{"term": map[string]any{"domain": domain}}
	}
	return map[string]any{
		"query":   query,
		"sort":    []map[string]any{{"created_at": map[string]any{"order": "desc"}}},
		"size":    limit,
		"_source": map[string]any{"excludes": []string{"embedding"}},
	}
}

// Recent returns the newest workflows, newest first. An empty domain
// matches every domain.
func (c *Client) Recent(ctx context.Context, domain string, limit int) ([]models.Workflow, error) {
	docs, err := c.search(ctx, recentQuery(domain, limit))
	if err != nil {
		return nil, err
	}
	return workflows(docs), nil
}

// LoadRecent returns compact records of the newest workflows for a domain,
// newest first.
func (c *Client) LoadRecent(ctx context.Context, domain string, limit int) ([]models.CompactWorkflow, error) {
	docs, err := c.search(ctx, recentQuery(domain, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to load workflows for %s: %w", domain, err)
	}
	out := make([]models.CompactWorkflow, len(docs))
	for i, d := range docs {
		out[i] = d.compact()
	}
	return out, nil
}

var searchFields = []string{"summary^2", "steps.description", "steps.context_description", "tool_names", "domain"}

// Search performs a BM25 text search over workflow summaries and steps.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]models.Workflow, error) {
	docs, err := c.search(ctx, map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  query,
				"fields": searchFields,
			},
		},
		"size":    limit,
		"_source": map[string]any{"excludes": []string{"embedding"}},
	})
	if err != nil {
		return nil, err
	}
	return workflows(docs), nil
}

// HybridSearch performs a combined BM25 + vector search.
// If queryEmbedding is nil, falls back to BM25 only.
func (c *Client) HybridSearch(ctx context.Context, query string, queryEmbedding []float32, limit int) ([]models.Workflow, error) {
	if queryEmbedding == nil || c.dims == 0 {
		return c.Search(ctx, query, limit)
	}

	// Reciprocal rank fusion (RRF) combines the BM25 and vector rankings.
	docs, err := c.search(ctx, map[string]any{
		"retriever": map[string]any{
			"rrf": map[string]any{
				"retrievers": []map[string]any{
					{
						"standard": map[string]any{
							"query": map[string]any{
								"multi_match": map[string]any{
									"query":  query,
									"fields": searchFields,
								},
							},
						},
					},
					{
						"knn": map[string]any{
							"field":          "embedding",
							"query_vector":   queryEmbedding,
							"k":              limit,
							"num_candidates": limit * 2,
						},
					},
				},
			},
		},
		"size":    limit,
		"_source": map[string]any{"excludes": []string{"embedding"}},
	})
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}
	return workflows(docs), nil
}

// getResponse represents ES get response structure.
type getResponse struct {
	Found  bool     `json:"found"`
	Source document `json:"_source"`
}

// Get retrieves a workflow by ID. A missing workflow is (nil, nil).
func (c *Client) Get(ctx context.Context, id string) (*models.Workflow, error) {
	res, err := c.es.Get(
		c.index,
		id,
		c.es.Get.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("get failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return nil, nil
	}

	if res.IsError() {
		return nil, fmt.Errorf("get error: %s", res.String())
	}

	var gr getResponse
	if err := json.NewDecoder(res.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if !gr.Found {
		return nil, nil
	}

	return &gr.Source.Workflow, nil
}
