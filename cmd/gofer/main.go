package main

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"gofer/internal/client"
	"gofer/internal/config"
	"gofer/internal/logging"
	"gofer/internal/orchestrator"
	"gofer/internal/retrieval"
	"gofer/internal/telemetry"
	"gofer/internal/tools"

	"github.com/spf13/cobra"
	"google.golang.org/genai"
)

var (
	version   = "0.1.0"
	cfgFile   string
	model     string
	workspace string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gofer",
		Short: "AI coding assistant with semantic code search",
		Long: `Gofer is an interactive coding assistant. It drives a tool-calling
loop against Gemini or Ollama models with tools for reading, writing,
and searching code, running commands, and fetching web content.`,
		RunE: runApp,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/gofer/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "model to use (default is gemini-3-flash-preview)")
	rootCmd.PersistentFlags().StringVar(&workspace, "workspace", "", "workspace ID for code search (default derives from the working directory)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("gofer version %s\n", version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runApp(cmd *cobra.Command, args []string) error {
	var cfg *config.Config
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadFrom(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Version = version

	if model != "" {
		cfg.Model.Name = model
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	configDir := filepath.Dir(config.GetConfigPath())
	level := logging.ParseLevel(cfg.Logging.Level)
	if err := logging.EnableFileLogging(configDir, level); err != nil {
		logging.Configure(level, os.Stderr)
	}
	defer logging.Close()

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	ctx := context.Background()

	c, err := client.NewClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer c.Close()

	recorder := buildRecorder(configDir, cfg)
	defer recorder.Close()

	registry, err := buildRegistry(ctx, cfg, workDir, recorder)
	if err != nil {
		return err
	}
	c.SetTools(registry.GeminiTools())
	c.SetSystemInstruction(buildSystemInstruction(workDir, registry))

	orch := orchestrator.New(c, registry, cfg, recorder)
	sessions := orchestrator.NewSessionManager(orch, cfg.Session)
	sessions.StartEvictor(ctx, 0)

	return runREPL(ctx, sessions)
}

func buildRecorder(configDir string, cfg *config.Config) telemetry.Recorder {
	if !cfg.Telemetry.Enabled {
		return telemetry.Nop()
	}
	recorder, err := telemetry.NewFileRecorder(configDir, cfg.Telemetry)
	if err != nil {
		logging.Warn("telemetry disabled", "error", err)
		return telemetry.Nop()
	}
	return recorder
}

func buildRegistry(ctx context.Context, cfg *config.Config, workDir string, recorder telemetry.Recorder) (*tools.Registry, error) {
	registry := tools.NewRegistry()

	bash := tools.NewBashTool(workDir)
	bash.SetTimeout(cfg.Tools.Timeout)
	if len(cfg.Tools.Bash.BlockedCommands) > 0 {
		bash.SetBlockedCommands(cfg.Tools.Bash.BlockedCommands)
	}

	registry.MustRegister(tools.NewReadTool(workDir))
	registry.MustRegister(tools.NewWriteTool(workDir))
	registry.MustRegister(tools.NewDeleteTool(workDir))
	registry.MustRegister(tools.NewGlobTool(workDir))
	registry.MustRegister(bash)
	registry.MustRegister(tools.NewWebFetchTool())

	if cfg.Web.SearchAPIKey != "" {
		webSearch := tools.NewWebSearchTool()
		webSearch.SetAPIKey(cfg.Web.SearchAPIKey)
		webSearch.SetProvider(tools.SearchProvider(cfg.Web.SearchProvider))
		webSearch.SetGoogleCX(cfg.Web.GoogleCX)
		registry.MustRegister(webSearch)
	}

	if searchTool, err := buildCodeSearch(ctx, cfg, workDir, recorder); err != nil {
		logging.Warn("code search unavailable", "error", err)
	} else if searchTool != nil {
		registry.MustRegister(searchTool)
	}

	return registry, nil
}

// buildCodeSearch wires the retrieval pipeline when an index endpoint is
// configured. Returns (nil, nil) when the feature is simply off.
func buildCodeSearch(ctx context.Context, cfg *config.Config, workDir string, recorder telemetry.Recorder) (*tools.CodeSearchTool, error) {
	if !cfg.Retrieval.Enabled || cfg.Retrieval.IndexBaseURL == "" {
		return nil, nil
	}
	if cfg.API.GeminiKey == "" {
		return nil, fmt.Errorf("code search requires a Gemini API key for embeddings")
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  cfg.API.GeminiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	embedder := retrieval.NewGeminiEmbedder(gc, cfg.Retrieval.EmbedModel, cfg.Retrieval.EmbedDimension)
	catalog := retrieval.NewHTTPIndexClient(cfg.Retrieval.IndexBaseURL, cfg.Retrieval.IndexAPIKey, cfg.Retrieval.RequestTimeout)

	var reranker retrieval.Reranker
	if cfg.Retrieval.RerankBaseURL != "" {
		reranker = retrieval.NewHTTPReranker(cfg.Retrieval.RerankBaseURL, cfg.Retrieval.RerankAPIKey, cfg.Retrieval.RequestTimeout)
	}

	pipeline := retrieval.NewPipeline(embedder, catalog, reranker, recorder, cfg.Retrieval)

	workspaceID := workspace
	if workspaceID == "" {
		workspaceID = defaultWorkspaceID(workDir)
	}

	return tools.NewCodeSearchTool(pipeline, workspaceID), nil
}

// defaultWorkspaceID derives a stable opaque identifier from the
// working directory, so index namespaces never carry local path names.
func defaultWorkspaceID(workDir string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(workDir)))
	return hex.EncodeToString(sum[:8])
}

func buildSystemInstruction(workDir string, registry *tools.Registry) string {
	var sb strings.Builder
	sb.WriteString("You are Gofer, a coding assistant working in a terminal.\n\n")
	sb.WriteString(fmt.Sprintf("Working directory: %s\n\n", workDir))
	sb.WriteString("Rules:\n")
	sb.WriteString("- Call exactly one tool per step, then wait for its result before deciding the next step.\n")
	sb.WriteString("- Prefer search_code over shell greps when you know what the code does but not where it lives.\n")
	sb.WriteString("- Read files before editing them.\n")
	sb.WriteString("- When you are done, answer the user in plain text without calling further tools.\n\n")
	sb.WriteString("Available tools: ")
	sb.WriteString(strings.Join(registry.Names(), ", "))
	return sb.String()
}

// runREPL reads user turns from stdin until EOF or /exit. Ctrl-C
// cancels the in-flight turn without leaving the loop.
func runREPL(ctx context.Context, sessions *orchestrator.SessionManager) error {
	session, err := sessions.Create()
	if err != nil {
		return err
	}

	renderer := newRenderer()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			if !sessions.Cancel(session.ID) {
				fmt.Println("\nUse /exit to quit.")
			}
		}
	}()

	fmt.Printf("Gofer %s. Type /exit to quit, /new for a fresh session.\n", version)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	for {
		fmt.Print(renderer.Prompt())
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/exit" || line == "/quit":
			return nil
		case line == "/new":
			sessions.Remove(session.ID)
			session, err = sessions.Create()
			if err != nil {
				return err
			}
			fmt.Println("Started a new session.")
			continue
		}

		result, err := sessions.RunTurn(ctx, session.ID, line)
		if err != nil {
			if ctx.Err() == nil {
				fmt.Println(renderer.Notice("Turn cancelled."))
				continue
			}
			return err
		}

		renderer.PrintTrace(result.Trace)
		fmt.Println(renderer.Markdown(result.Message))
	}
}
