package tools

import (
	"context"
	"strings"
	"testing"

	"gofer/internal/config"
	"gofer/internal/retrieval"
)

type stubEmbedder struct{}

func (e *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (e *stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

type stubCatalog struct {
	matches []retrieval.Match
}

func (c *stubCatalog) ListIndexes(ctx context.Context) ([]retrieval.IndexDescriptor, error) {
	return []retrieval.IndexDescriptor{{Name: "ws1", Host: "ws1.example.com"}}, nil
}

func (c *stubCatalog) Query(ctx context.Context, host string, req retrieval.QueryRequest) (*retrieval.QueryResponse, error) {
	return &retrieval.QueryResponse{Matches: c.matches}, nil
}

func newSearchPipeline(matches []retrieval.Match) *retrieval.Pipeline {
	return retrieval.NewPipeline(&stubEmbedder{}, &stubCatalog{matches: matches}, nil, nil, config.RetrievalConfig{TopK: 5})
}

func TestCodeSearchValidate(t *testing.T) {
	tool := NewCodeSearchTool(newSearchPipeline(nil), "ws1")

	if err := tool.Validate(map[string]any{}); err == nil {
		t.Error("missing query should fail validation")
	}
	if err := tool.Validate(map[string]any{"query": "auth middleware"}); err != nil {
		t.Errorf("valid query rejected: %v", err)
	}

	unconfigured := NewCodeSearchTool(nil, "ws1")
	if err := unconfigured.Validate(map[string]any{"query": "x"}); err == nil {
		t.Error("nil pipeline should fail validation")
	}
}

func TestCodeSearchExecuteFormatsMatches(t *testing.T) {
	tool := NewCodeSearchTool(newSearchPipeline([]retrieval.Match{
		{Score: 0.91, Metadata: map[string]any{"obfuscated_path": "internal/auth/jwt.go", "start_line": float64(40), "end_line": float64(88)}},
	}), "ws1")

	result, err := tool.Execute(context.Background(), map[string]any{"query": "token validation"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if !strings.Contains(result.Content, "internal/auth/jwt.go:40-88") {
		t.Errorf("content = %q, want path:start-end", result.Content)
	}
	if !strings.Contains(result.Content, "0.91") {
		t.Errorf("content = %q, want score", result.Content)
	}
}

func TestCodeSearchExecuteNoMatches(t *testing.T) {
	tool := NewCodeSearchTool(newSearchPipeline(nil), "ws1")

	result, err := tool.Execute(context.Background(), map[string]any{"query": "nothing here"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v, degraded search must stay a success", result)
	}
	if !strings.Contains(result.Content, "No matching code") {
		t.Errorf("content = %q", result.Content)
	}
}
