package retrieval

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Task types for asymmetric embedding. Queries and documents are
// encoded differently by the model; a query embedded with the document
// tag still returns vectors, just ones that match poorly. Index writers
// must use TaskTypeDocument, searchers TaskTypeQuery.
const (
	TaskTypeQuery    = "RETRIEVAL_QUERY"
	TaskTypeDocument = "RETRIEVAL_DOCUMENT"
)

// Embedder converts text into fixed-dimension dense vectors.
type Embedder interface {
	// EmbedQuery embeds a search query with the query task type.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedDocuments embeds document chunks with the document task type.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// GeminiEmbedder generates embeddings using the Gemini embedding API.
type GeminiEmbedder struct {
	client    *genai.Client
	model     string
	dimension int32
}

// NewGeminiEmbedder creates an embedder for the given model and output
// dimensionality. The dimension must match what the index was built with.
func NewGeminiEmbedder(client *genai.Client, model string, dimension int32) *GeminiEmbedder {
	if model == "" {
		model = "gemini-embedding-001"
	}
	if dimension == 0 {
		dimension = 768
	}
	return &GeminiEmbedder{
		client:    client,
		model:     model,
		dimension: dimension,
	}
}

// EmbedQuery embeds a single query string.
func (e *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.embed(ctx, []string{text}, TaskTypeQuery)
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

// EmbedDocuments embeds document chunks, batching to stay under API limits.
func (e *GeminiEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	const maxBatchSize = 20

	if len(texts) <= maxBatchSize {
		return e.embed(ctx, texts, TaskTypeDocument)
	}

	allEmbeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		select {
		case <-ctx.Done():
			return allEmbeddings, ctx.Err()
		default:
		}

		embeddings, err := e.embed(ctx, texts[start:end], TaskTypeDocument)
		if err != nil {
			return allEmbeddings, fmt.Errorf("embedding batch %d-%d failed: %w", start, end, err)
		}
		allEmbeddings = append(allEmbeddings, embeddings...)
	}

	return allEmbeddings, nil
}

func (e *GeminiEmbedder) embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = &genai.Content{
			Parts: []*genai.Part{{Text: text}},
		}
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		TaskType:             taskType,
		OutputDimensionality: genai.Ptr(e.dimension),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding API error: %w", err)
	}

	embeddings := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		embeddings[i] = emb.Values
	}

	return embeddings, nil
}

// Model returns the embedding model name.
func (e *GeminiEmbedder) Model() string {
	return e.model
}
