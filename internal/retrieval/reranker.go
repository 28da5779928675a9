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

// Reranker reorders candidates by relevance to the query. Reranking is
// advisory: callers fall back to the original ordering on any failure.
type Reranker interface {
	// Rerank returns indices into candidates, ordered most relevant first.
	Rerank(ctx context.Context, query string, candidates []string) ([]int, error)
}

// HTTPReranker calls a remote reranking service.
type HTTPReranker struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewHTTPReranker creates a reranker client for the given base URL.
func NewHTTPReranker(baseURL, apiKey string, timeout time.Duration) *HTTPReranker {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPReranker{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// Rerank sends query and candidates to the service and returns the
// relevance-ordered candidate indices.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, candidates []string) ([]int, error) {
	payload, err := json.Marshal(map[string]any{
		"query":     query,
		"documents": candidates,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", r.baseURL+"/rerank", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("rerank service error %d: %s", resp.StatusCode, string(body))
	}

	var data struct {
		Results []struct {
			Index int `json:"index"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to parse rerank response: %w", err)
	}

	indices := make([]int, 0, len(data.Results))
	for _, res := range data.Results {
		if res.Index < 0 || res.Index >= len(candidates) {
			return nil, fmt.Errorf("rerank returned out-of-range index %d", res.Index)
		}
		indices = append(indices, res.Index)
	}

	return indices, nil
}
