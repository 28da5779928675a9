package context

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"

	"gofer/internal/client"
	"gofer/internal/config"
	"gofer/internal/logging"

	"google.golang.org/genai"
)

// DefaultModelLimits provides default token limits for known models.
// Keys are used both for exact match and as substrings for fuzzy matching.
var DefaultModelLimits = map[string]TokenLimits{
	"gemini-2.0-flash": {
		MaxInputTokens:  1048576,
		MaxOutputTokens: 8192,
	},
	"gemini-2.5-flash": {
		MaxInputTokens:  1048576,
		MaxOutputTokens: 8192,
	},
	"gemini-2.5-pro": {
		MaxInputTokens:  1048576,
		MaxOutputTokens: 8192,
	},
	"gemini-3-flash": {
		MaxInputTokens:  1048576,
		MaxOutputTokens: 65536,
	},
	"gemini-3-pro": {
		MaxInputTokens:  1048576,
		MaxOutputTokens: 65536,
	},
}

// TokenLimits defines token limits for a model.
type TokenLimits struct {
	MaxInputTokens   int
	MaxOutputTokens  int
	WarningThreshold float64 // 0.8 = 80%
}

// TokenUsage represents current token usage against the model's window.
type TokenUsage struct {
	InputTokens  int
	MaxTokens    int
	PercentUsed  float64
	NearLimit    bool
	ExceedsLimit bool
	IsEstimate   bool // True when the count came from the local heuristic
}

type cacheEntry struct {
	key    string
	tokens int
}

// TokenCounter counts tokens for context-window management. Counts go
// through the provider API and are cached by content hash; when the API
// is unreachable a local estimate keeps the overflow guard working.
type TokenCounter struct {
	client   client.Client
	model    string
	limits   TokenLimits
	mu       sync.Mutex
	cache    map[string]*list.Element // content hash -> list element
	lruList  *list.List               // front = most recently used
	maxCache int
}

// NewTokenCounter creates a new token counter.
func NewTokenCounter(c client.Client, model string, cfg *config.ContextConfig) *TokenCounter {
	limits := getModelLimits(model)

	if cfg != nil {
		if cfg.MaxInputTokens > 0 {
			limits.MaxInputTokens = cfg.MaxInputTokens
		}
		if cfg.WarningThreshold > 0 {
			limits.WarningThreshold = cfg.WarningThreshold
		}
	}
	if limits.WarningThreshold == 0 {
		limits.WarningThreshold = 0.8
	}

	return &TokenCounter{
		client:   c,
		model:    model,
		limits:   limits,
		cache:    make(map[string]*list.Element),
		lruList:  list.New(),
		maxCache: 1000,
	}
}

// getModelLimits returns limits for a model, with fallback defaults.
// Exact match first, then substring match so preview suffixes resolve
// to their base model (e.g. "gemini-3-flash-preview").
func getModelLimits(model string) TokenLimits {
	if limits, ok := DefaultModelLimits[model]; ok {
		return limits
	}
	modelLower := strings.ToLower(model)
	for key, limits := range DefaultModelLimits {
		if strings.Contains(modelLower, key) {
			return limits
		}
	}
	return TokenLimits{
		MaxInputTokens:   128000,
		MaxOutputTokens:  8192,
		WarningThreshold: 0.8,
	}
}

// CountContents counts tokens for contents via the API, consulting the
// cache first. Returns an error only when the API call fails.
func (t *TokenCounter) CountContents(ctx context.Context, contents []*genai.Content) (int, error) {
	hash := t.hashContents(contents)
	if count, ok := t.getFromCache(hash); ok {
		return count, nil
	}

	resp, err := t.client.CountTokens(ctx, contents)
	if err != nil {
		return 0, err
	}

	count := int(resp.TotalTokens)
	t.addToCache(hash, count)

	return count, nil
}

// CountOrEstimate counts via the API, falling back to the local
// heuristic when the API is unavailable. The returned usage marks
// estimates so callers can treat thresholds conservatively.
func (t *TokenCounter) CountOrEstimate(ctx context.Context, contents []*genai.Content) TokenUsage {
	count, err := t.CountContents(ctx, contents)
	isEstimate := false
	if err != nil {
		logging.Debug("token count API failed, using estimate", "error", err)
		count = EstimateContentsTokens(contents)
		isEstimate = true
	}

	usage := t.GetUsage(count)
	usage.IsEstimate = isEstimate
	return usage
}

func (t *TokenCounter) getFromCache(key string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if elem, ok := t.cache[key]; ok {
		t.lruList.MoveToFront(elem)
		return elem.Value.(*cacheEntry).tokens, true
	}
	return 0, false
}

func (t *TokenCounter) addToCache(key string, tokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if elem, ok := t.cache[key]; ok {
		t.lruList.MoveToFront(elem)
		elem.Value.(*cacheEntry).tokens = tokens
		return
	}

	if t.lruList.Len() >= t.maxCache {
		oldest := t.lruList.Back()
		if oldest != nil {
			delete(t.cache, oldest.Value.(*cacheEntry).key)
			t.lruList.Remove(oldest)
		}
	}

	entry := &cacheEntry{key: key, tokens: tokens}
	t.cache[key] = t.lruList.PushFront(entry)
}

// GetUsage returns usage statistics for the given token count.
func (t *TokenCounter) GetUsage(tokenCount int) TokenUsage {
	percentUsed := float64(tokenCount) / float64(t.limits.MaxInputTokens)

	return TokenUsage{
		InputTokens:  tokenCount,
		MaxTokens:    t.limits.MaxInputTokens,
		PercentUsed:  percentUsed,
		NearLimit:    percentUsed >= t.limits.WarningThreshold,
		ExceedsLimit: tokenCount >= t.limits.MaxInputTokens,
	}
}

// GetLimits returns the current token limits.
func (t *TokenCounter) GetLimits() TokenLimits {
	return t.limits
}

// InvalidateCache clears all cached token counts. Called after history
// is rewritten by summarization.
func (t *TokenCounter) InvalidateCache() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cache = make(map[string]*list.Element)
	t.lruList.Init()
}

// hashContents creates a hash of contents for caching.
func (t *TokenCounter) hashContents(contents []*genai.Content) string {
	h := sha256.New()
	for _, content := range contents {
		h.Write([]byte(content.Role))
		for _, part := range content.Parts {
			if part.Text != "" {
				h.Write([]byte(part.Text))
			}
			if part.FunctionCall != nil {
				h.Write([]byte(part.FunctionCall.Name))
				if argsJSON, err := json.Marshal(part.FunctionCall.Args); err == nil {
					h.Write(argsJSON)
				}
			}
			if part.FunctionResponse != nil {
				h.Write([]byte(part.FunctionResponse.Name))
				if respJSON, err := json.Marshal(part.FunctionResponse.Response); err == nil {
					h.Write(respJSON)
				}
			}
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// EstimateTokens provides a rough token estimate without an API call.
// Weighted combination of word-based and character-based estimation,
// which tracks tokenizer behavior better than chars/4 alone for code.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	words := len(strings.Fields(text))
	byWords := int(float64(words) * 1.3)
	byChars := int(float64(len(text)) / 3.5)

	return (byWords + byChars) / 2
}

// EstimateContentsTokens estimates tokens for contents without an API call.
func EstimateContentsTokens(contents []*genai.Content) int {
	total := 0
	for _, content := range contents {
		total += 4 // role overhead
		for _, part := range content.Parts {
			if part.Text != "" {
				total += EstimateTokens(part.Text)
			}
			if part.FunctionCall != nil {
				total += 10 + EstimateTokens(part.FunctionCall.Name)
				for k, v := range part.FunctionCall.Args {
					total += EstimateTokens(k)
					if str, ok := v.(string); ok {
						total += EstimateTokens(str)
					} else {
						total += 10
					}
				}
			}
			if part.FunctionResponse != nil {
				total += 10 + EstimateTokens(part.FunctionResponse.Name)
				for k, v := range part.FunctionResponse.Response {
					total += EstimateTokens(k)
					if str, ok := v.(string); ok {
						total += EstimateTokens(str)
					} else {
						total += 10
					}
				}
			}
		}
	}
	return total
}
