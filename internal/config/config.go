package config

import "time"

// Config represents the main application configuration.
// It is assembled once at startup and treated as immutable afterwards:
// the orchestrator and pipeline receive it at construction time and
// never observe later mutation.
type Config struct {
	API       APIConfig       `yaml:"api"`
	Model     ModelConfig     `yaml:"model"`
	Tools     ToolsConfig     `yaml:"tools"`
	Context   ContextConfig   `yaml:"context"`
	Agent     AgentConfig     `yaml:"agent"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Web       WebConfig       `yaml:"web"`
	Session   SessionConfig   `yaml:"session"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Runtime version information
	Version string `yaml:"-"`
}

// APIConfig holds API-related settings.
type APIConfig struct {
	// Separate keys per provider
	GeminiKey string `yaml:"gemini_key,omitempty"`
	OllamaKey string `yaml:"ollama_key,omitempty"` // Optional, for remote Ollama servers with auth

	// Ollama server URL (default: http://localhost:11434)
	OllamaBaseURL string `yaml:"ollama_base_url,omitempty"`

	// Active provider: gemini, ollama (default: gemini)
	ActiveProvider string `yaml:"active_provider"`

	// Retry configuration for API calls
	Retry RetryConfig `yaml:"retry"`
}

// GetActiveKey returns the API key for the active provider.
func (c *APIConfig) GetActiveKey() string {
	switch c.GetActiveProvider() {
	case "ollama":
		// Ollama key is optional (local server doesn't need it)
		return c.OllamaKey
	default:
		return c.GeminiKey
	}
}

// GetActiveProvider returns the active provider name.
func (c *APIConfig) GetActiveProvider() string {
	if c.ActiveProvider != "" {
		return c.ActiveProvider
	}
	return "gemini"
}

// RetryConfig holds retry settings for API calls.
type RetryConfig struct {
	MaxRetries  int           `yaml:"max_retries"`  // Maximum number of retry attempts (default: 3)
	RetryDelay  time.Duration `yaml:"retry_delay"`  // Initial delay between retries (default: 1s)
	HTTPTimeout time.Duration `yaml:"http_timeout"` // HTTP request timeout (default: 120s)
}

// ModelConfig holds model-related settings.
type ModelConfig struct {
	Name            string  `yaml:"name"`
	Temperature     float32 `yaml:"temperature"`
	MaxOutputTokens int32   `yaml:"max_output_tokens"`
}

// ToolsConfig holds tool-related settings.
type ToolsConfig struct {
	// Timeout is the per-invocation deadline applied by the orchestrator
	// around every tool dispatch.
	Timeout time.Duration `yaml:"timeout"`
	Bash    BashConfig    `yaml:"bash"`
}

// BashConfig holds bash tool settings.
type BashConfig struct {
	BlockedCommands []string `yaml:"blocked_commands"`
}

// ContextConfig holds context-window management settings.
type ContextConfig struct {
	MaxInputTokens     int     `yaml:"max_input_tokens"`      // 0 = use model default
	WarningThreshold   float64 `yaml:"warning_threshold"`     // 0.8 = summarize at 80%
	KeepRecentTurns    int     `yaml:"keep_recent_turns"`     // Raw turns preserved through summarization
	ToolResultMaxChars int     `yaml:"tool_result_max_chars"` // Max chars for tool results
	EnableAutoSummary  bool    `yaml:"enable_auto_summary"`   // Enable auto-summarization
}

// AgentConfig holds orchestrator loop settings.
type AgentConfig struct {
	// MaxToolDepth bounds nested tool invocations within one turn.
	MaxToolDepth int `yaml:"max_tool_depth"`

	// MaxTurns bounds model round-trips within one turn, counting
	// rejected proposals that never reach a tool.
	MaxTurns int `yaml:"max_turns"`
}

// RetrievalConfig holds code-search pipeline settings.
type RetrievalConfig struct {
	Enabled        bool          `yaml:"enabled"`
	EmbedModel     string        `yaml:"embed_model"`      // Embedding model (e.g., gemini-embedding-001)
	EmbedDimension int32         `yaml:"embed_dimension"`  // Output dimensionality, fixed at indexing time
	TopK           int           `yaml:"top_k"`            // Nearest-neighbor candidates per query
	DefaultBranch  string        `yaml:"default_branch"`   // Namespace used when no branch is given
	IndexBaseURL   string        `yaml:"index_base_url"`   // Vector index service endpoint
	RerankBaseURL  string        `yaml:"rerank_base_url"`  // Reranking service endpoint ("" = disabled)
	RerankAPIKey   string        `yaml:"rerank_api_key"`   // API key for the reranking service
	IndexAPIKey    string        `yaml:"index_api_key"`    // API key for the vector index service
	RequestTimeout time.Duration `yaml:"request_timeout"`  // Per-call deadline for pipeline stages
}

// WebConfig holds web tool settings.
type WebConfig struct {
	SearchProvider string `yaml:"search_provider"` // Search provider: "serpapi", "google"
	SearchAPIKey   string `yaml:"search_api_key"`  // API key for search provider
	GoogleCX       string `yaml:"google_cx"`       // Google Custom Search Engine ID
}

// SessionConfig holds in-memory session lifecycle settings.
type SessionConfig struct {
	MaxIdle     time.Duration `yaml:"max_idle"`     // Idle sessions older than this are evicted
	MaxSessions int           `yaml:"max_sessions"` // Upper bound on concurrently tracked sessions
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // Logging level: debug, info, warn, error
}

// TelemetryConfig holds usage/error telemetry settings.
type TelemetryConfig struct {
	Enabled      bool `yaml:"enabled"`        // Enable/disable telemetry recording
	BufferSize   int  `yaml:"buffer_size"`    // Event channel capacity; overflow is dropped
	MaxResultLen int  `yaml:"max_result_len"` // Maximum result length to store
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			ActiveProvider: "gemini",
			Retry: RetryConfig{
				MaxRetries:  3,
				RetryDelay:  1 * time.Second,
				HTTPTimeout: 120 * time.Second,
			},
		},
		Model: ModelConfig{
			Name:            "gemini-3-flash-preview",
			Temperature:     1.0,
			MaxOutputTokens: 8192,
		},
		Tools: ToolsConfig{
			Timeout: 2 * time.Minute,
			Bash: BashConfig{
				BlockedCommands: []string{"rm -rf /", "mkfs"},
			},
		},
		Context: ContextConfig{
			MaxInputTokens:     0,   // Use model default
			WarningThreshold:   0.8, // Summarize at 80%
			KeepRecentTurns:    4,
			ToolResultMaxChars: 10000,
			EnableAutoSummary:  true,
		},
		Agent: AgentConfig{
			MaxToolDepth: 8,
			MaxTurns:     30,
		},
		Retrieval: RetrievalConfig{
			Enabled:        true,
			EmbedModel:     "gemini-embedding-001",
			EmbedDimension: 768,
			TopK:           5,
			DefaultBranch:  "default",
			RequestTimeout: 30 * time.Second,
		},
		Web: WebConfig{
			SearchProvider: "serpapi",
		},
		Session: SessionConfig{
			MaxIdle:     30 * time.Minute,
			MaxSessions: 256,
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
		Telemetry: TelemetryConfig{
			Enabled:      true,
			BufferSize:   1024,
			MaxResultLen: 1000,
		},
	}
}
