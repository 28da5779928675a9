package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"gofer/internal/config"
	"gofer/internal/logging"

	"google.golang.org/genai"
)

// GeminiClient wraps the Google Gemini API.
type GeminiClient struct {
	client            *genai.Client
	model             string
	config            *genai.GenerateContentConfig
	tools             []*genai.Tool
	maxRetries        int
	retryDelay        time.Duration
	systemInstruction string
}

// NewGeminiClient creates a new Gemini API client (returns Client interface).
func NewGeminiClient(ctx context.Context, cfg *config.Config) (Client, error) {
	apiKey := cfg.API.GeminiKey
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key required: set GEMINI_API_KEY or api.gemini_key in config")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature:     Ptr(cfg.Model.Temperature),
		MaxOutputTokens: cfg.Model.MaxOutputTokens,
	}

	maxRetries := cfg.API.Retry.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	retryDelay := cfg.API.Retry.RetryDelay
	if retryDelay == 0 {
		retryDelay = 1 * time.Second
	}

	return &GeminiClient{
		client:     client,
		model:      cfg.Model.Name,
		config:     genConfig,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}, nil
}

// SetSystemInstruction sets the system-level instruction for the model.
func (c *GeminiClient) SetSystemInstruction(instruction string) {
	c.systemInstruction = instruction
}

// SetTools sets the tools available for function calling.
func (c *GeminiClient) SetTools(tools []*genai.Tool) {
	c.tools = tools
}

// SendMessage sends a user message and returns a streaming response.
func (c *GeminiClient) SendMessage(ctx context.Context, message string) (*StreamingResponse, error) {
	return c.SendMessageWithHistory(ctx, nil, message)
}

// SendMessageWithHistory sends a message with conversation history.
func (c *GeminiClient) SendMessageWithHistory(ctx context.Context, history []*genai.Content, message string) (*StreamingResponse, error) {
	contents := make([]*genai.Content, len(history)+1)
	copy(contents, history)
	contents[len(contents)-1] = genai.NewContentFromText(message, genai.RoleUser)

	return c.generateContentStream(ctx, contents)
}

// SendFunctionResponse sends tool results back to the model.
func (c *GeminiClient) SendFunctionResponse(ctx context.Context, history []*genai.Content, results []*genai.FunctionResponse) (*StreamingResponse, error) {
	var parts []*genai.Part
	for _, result := range results {
		part := genai.NewPartFromFunctionResponse(result.Name, result.Response)
		part.FunctionResponse.ID = result.ID
		parts = append(parts, part)
	}

	if len(parts) == 0 {
		parts = append(parts, genai.NewPartFromText(" "))
	}

	funcContent := &genai.Content{
		Role:  genai.RoleUser,
		Parts: parts,
	}

	contents := make([]*genai.Content, len(history)+1)
	copy(contents, history)
	contents[len(contents)-1] = funcContent

	return c.generateContentStream(ctx, contents)
}

// sanitizeContents validates and fixes all Contents before sending to the API.
// Each Part must carry exactly one of Text, FunctionCall, or FunctionResponse.
func sanitizeContents(contents []*genai.Content) []*genai.Content {
	var result []*genai.Content

	for _, content := range contents {
		if content == nil {
			continue
		}

		var validParts []*genai.Part
		for _, part := range content.Parts {
			if part == nil {
				continue
			}
			if part.FunctionCall != nil || part.FunctionResponse != nil || part.Text != "" {
				validParts = append(validParts, part)
			}
		}

		// Content must have at least one part
		if len(validParts) == 0 {
			validParts = []*genai.Part{genai.NewPartFromText(" ")}
		}

		result = append(result, &genai.Content{
			Role:  content.Role,
			Parts: validParts,
		})
	}

	if len(result) == 0 {
		result = []*genai.Content{{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{genai.NewPartFromText(" ")},
		}}
	}

	return result
}

// isRetryableError returns true if the error should trigger a retry.
func (c *GeminiClient) isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		// Cancellation propagates, never retried
		return false
	}

	errStr := err.Error()

	// 429 = rate limit, 500/502/503/504 = server errors
	for _, code := range []string{"429", "500", "502", "503", "504"} {
		if strings.Contains(errStr, code) {
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	lower := strings.ToLower(errStr)
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"no such host",
		"timeout",
		"temporary failure",
		"unavailable",
		"resource_exhausted",
	} {
		if strings.Contains(lower, pattern) {
			return true
		}
	}

	return false
}

// generateContentStream handles streaming content generation with retry logic.
func (c *GeminiClient) generateContentStream(ctx context.Context, contents []*genai.Content) (*StreamingResponse, error) {
	contents = sanitizeContents(contents)

	var lastErr error
	maxDelay := 30 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := CalculateBackoff(c.retryDelay, attempt-1, maxDelay)
			logging.Info("retrying Gemini request", "attempt", attempt, "delay", delay)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		response, err := c.doGenerateContentStream(ctx, contents)
		if err == nil {
			return response, nil
		}

		lastErr = err
		if !c.isRetryableError(err) {
			return nil, err
		}

		logging.Warn("Gemini request failed, will retry", "attempt", attempt, "error", err)
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

// resetTimer safely resets a timer to a new duration.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// doGenerateContentStream performs a single streaming request attempt.
func (c *GeminiClient) doGenerateContentStream(ctx context.Context, contents []*genai.Content) (*StreamingResponse, error) {
	config := *c.config
	if c.systemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(c.systemInstruction, genai.RoleUser)
	}
	if len(c.tools) > 0 {
		config.Tools = c.tools
	}

	iter := c.client.Models.GenerateContentStream(ctx, c.model, contents, &config)

	chunks := make(chan ResponseChunk, 10)
	done := make(chan struct{})

	// Fail streams that go silent rather than blocking the turn forever
	const streamIdleTimeout = 30 * time.Second

	go func() {
		defer close(chunks)
		defer close(done)

		type iterResult struct {
			resp *genai.GenerateContentResponse
			err  error
		}
		iterCh := make(chan iterResult)

		go func() {
			defer close(iterCh)
			for resp, err := range iter {
				iterCh <- iterResult{resp, err}
			}
		}()

		idleTimer := time.NewTimer(streamIdleTimeout)
		defer idleTimer.Stop()

		for {
			select {
			case <-ctx.Done():
				select {
				case chunks <- ResponseChunk{Error: ctx.Err(), Done: true}:
				default:
				}
				return

			case <-idleTimer.C:
				logging.Warn("stream idle timeout exceeded", "timeout", streamIdleTimeout)
				chunks <- ResponseChunk{
					Error: fmt.Errorf("stream idle timeout: no data received for %v", streamIdleTimeout),
					Done:  true,
				}
				return

			case result, ok := <-iterCh:
				resetTimer(idleTimer, streamIdleTimeout)

				if !ok {
					// Iterator channel closed, stream complete
					return
				}

				if result.err != nil {
					select {
					case chunks <- ResponseChunk{Error: result.err, Done: true}:
					case <-ctx.Done():
					}
					return
				}

				if result.resp == nil {
					return
				}

				chunk := processResponse(result.resp)

				select {
				case chunks <- chunk:
				case <-ctx.Done():
					select {
					case chunks <- ResponseChunk{Error: ctx.Err(), Done: true}:
					default:
					}
					return
				}

				if chunk.Done {
					return
				}
			}
		}
	}()

	return &StreamingResponse{
		Chunks: chunks,
		Done:   done,
	}, nil
}

// processResponse converts a Gemini response to a ResponseChunk.
func processResponse(resp *genai.GenerateContentResponse) ResponseChunk {
	chunk := ResponseChunk{}

	if resp.UsageMetadata != nil {
		chunk.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		chunk.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	if len(resp.Candidates) == 0 {
		chunk.Done = true
		return chunk
	}

	candidate := resp.Candidates[0]
	chunk.FinishReason = candidate.FinishReason

	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				chunk.Text += part.Text
			}
			if part.FunctionCall != nil {
				chunk.FunctionCalls = append(chunk.FunctionCalls, part.FunctionCall)
			}
		}
	}

	if candidate.FinishReason != "" {
		chunk.Done = true
	}

	return chunk
}

// CountTokens counts tokens for the given contents with retry logic.
func (c *GeminiClient) CountTokens(ctx context.Context, contents []*genai.Content) (*genai.CountTokensResponse, error) {
	var lastErr error

	maxDelay := 30 * time.Second
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := CalculateBackoff(c.retryDelay, attempt-1, maxDelay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := c.client.Models.CountTokens(ctx, c.model, contents, nil)
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if !c.isRetryableError(err) {
			return nil, err
		}

		logging.Warn("CountTokens failed, will retry", "attempt", attempt, "error", err)
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

// GetModel returns the model name.
func (c *GeminiClient) GetModel() string {
	return c.model
}

// Close closes the client connection.
func (c *GeminiClient) Close() error {
	// The genai client has no explicit close
	return nil
}
