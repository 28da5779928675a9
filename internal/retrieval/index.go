package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// IndexDescriptor identifies one vector index and the host serving it.
type IndexDescriptor struct {
	Name string `json:"name"`
	Host string `json:"host"`
}

// QueryRequest is a top-k similarity query against one index.
type QueryRequest struct {
	TopK            int       `json:"topK"`
	Vector          []float32 `json:"vector"`
	Namespace       string    `json:"namespace"`
	IncludeMetadata bool      `json:"includeMetadata"`
}

// Match is a single nearest-neighbor hit.
type Match struct {
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// QueryResponse holds the matches for one query.
type QueryResponse struct {
	Matches []Match `json:"matches"`
}

// IndexCatalog is the vector index service: one named index per
// workspace, partitioned into per-branch namespaces.
type IndexCatalog interface {
	// ListIndexes returns all indexes known to the service.
	ListIndexes(ctx context.Context) ([]IndexDescriptor, error)

	// Query runs a top-k similarity query against the index at host.
	Query(ctx context.Context, host string, req QueryRequest) (*QueryResponse, error)
}

// HTTPIndexClient talks to the vector index service over its REST API.
type HTTPIndexClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewHTTPIndexClient creates a catalog client for the given base URL.
func NewHTTPIndexClient(baseURL, apiKey string, timeout time.Duration) *HTTPIndexClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPIndexClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// ListIndexes fetches the index catalog.
func (c *HTTPIndexClient) ListIndexes(ctx context.Context) ([]IndexDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/indexes", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("index listing request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("index service error %d: %s", resp.StatusCode, string(body))
	}

	var data struct {
		Indexes []IndexDescriptor `json:"indexes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to parse index listing: %w", err)
	}

	return data.Indexes, nil
}

// Query runs a similarity query against the index served at host.
func (c *HTTPIndexClient) Query(ctx context.Context, host string, req QueryRequest) (*QueryResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", "https://"+host+"/query", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("vector query request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("vector query error %d: %s", resp.StatusCode, string(body))
	}

	var data QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to parse query response: %w", err)
	}

	return &data, nil
}

func (c *HTTPIndexClient) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Api-Key", c.apiKey)
	}
}
