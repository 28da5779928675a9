package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"gofer/internal/client"
	"gofer/internal/config"
	"gofer/internal/telemetry"
	"gofer/internal/tools"

	"google.golang.org/genai"
)

// scriptedClient replays a fixed sequence of model responses. Both
// SendMessageWithHistory and SendFunctionResponse consume from the same
// script; SendMessage serves the summarizer.
type scriptedClient struct {
	mu             sync.Mutex
	script         []scriptStep
	step           int
	summarizeCalls int
	tokenCounts    []int
	tokenStep      int
}

type scriptStep struct {
	resp *client.Response
	err  error
}

func textStep(text string) scriptStep {
	return scriptStep{resp: &client.Response{Text: text, InputTokens: 10, OutputTokens: 5}}
}

func callStep(calls ...*genai.FunctionCall) scriptStep {
	return scriptStep{resp: &client.Response{FunctionCalls: calls}}
}

func makeStream(resp *client.Response) *client.StreamingResponse {
	chunks := make(chan client.ResponseChunk, 2)
	done := make(chan struct{})
	chunks <- client.ResponseChunk{
		Text:          resp.Text,
		FunctionCalls: resp.FunctionCalls,
		InputTokens:   resp.InputTokens,
		OutputTokens:  resp.OutputTokens,
	}
	chunks <- client.ResponseChunk{Done: true, FinishReason: resp.FinishReason}
	close(chunks)
	close(done)
	return &client.StreamingResponse{Chunks: chunks, Done: done}
}

func (c *scriptedClient) next() (*client.StreamingResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step >= len(c.script) {
		return nil, errors.New("script exhausted")
	}
	step := c.script[c.step]
	c.step++

	if step.err != nil {
		return nil, step.err
	}
	return makeStream(step.resp), nil
}

func (c *scriptedClient) SendMessage(ctx context.Context, message string) (*client.StreamingResponse, error) {
	c.mu.Lock()
	c.summarizeCalls++
	c.mu.Unlock()
	return makeStream(&client.Response{Text: "condensed history"}), nil
}

func (c *scriptedClient) SendMessageWithHistory(ctx context.Context, history []*genai.Content, message string) (*client.StreamingResponse, error) {
	return c.next()
}

func (c *scriptedClient) SendFunctionResponse(ctx context.Context, history []*genai.Content, results []*genai.FunctionResponse) (*client.StreamingResponse, error) {
	return c.next()
}

func (c *scriptedClient) SetTools(tools []*genai.Tool)            {}
func (c *scriptedClient) SetSystemInstruction(instruction string) {}
func (c *scriptedClient) GetModel() string                        { return "test-model" }
func (c *scriptedClient) Close() error                            { return nil }

func (c *scriptedClient) CountTokens(ctx context.Context, contents []*genai.Content) (*genai.CountTokensResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.tokenCounts) == 0 {
		return &genai.CountTokensResponse{TotalTokens: 10}, nil
	}
	idx := c.tokenStep
	if idx >= len(c.tokenCounts) {
		idx = len(c.tokenCounts) - 1
	}
	c.tokenStep++
	return &genai.CountTokensResponse{TotalTokens: int32(c.tokenCounts[idx])}, nil
}

// fakeTool records executions and optionally requires a "path" arg.
type fakeTool struct {
	mu          sync.Mutex
	name        string
	requirePath bool
	execute     func(ctx context.Context, args map[string]any) (tools.ToolResult, error)
	executions  int
}

func (t *fakeTool) Name() string        { return t.name }
func (t *fakeTool) Description() string { return "test tool" }

func (t *fakeTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{Name: t.name, Description: "test tool"}
}

func (t *fakeTool) Validate(args map[string]any) error {
	if t.requirePath {
		if _, ok := tools.GetString(args, "path"); !ok {
			return tools.NewValidationError("path", "is required")
		}
	}
	return nil
}

func (t *fakeTool) Execute(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
	t.mu.Lock()
	t.executions++
	t.mu.Unlock()

	if t.execute != nil {
		return t.execute(ctx, args)
	}
	return tools.NewSuccessResult("ok"), nil
}

func (t *fakeTool) executionCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.executions
}

type captureRecorder struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (r *captureRecorder) Record(e telemetry.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *captureRecorder) Close() error { return nil }

func (r *captureRecorder) byType(t telemetry.EventType) []telemetry.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []telemetry.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newTestOrchestrator(t *testing.T, c *scriptedClient, tool *fakeTool, mutate func(*config.Config)) (*Orchestrator, *captureRecorder) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Agent.MaxToolDepth = 8
	if mutate != nil {
		mutate(cfg)
	}

	registry := tools.NewRegistry()
	if tool != nil {
		if err := registry.Register(tool); err != nil {
			t.Fatalf("register tool: %v", err)
		}
	}

	recorder := &captureRecorder{}
	return New(c, registry, cfg, recorder), recorder
}

func TestRunTurnPlainResponse(t *testing.T) {
	c := &scriptedClient{script: []scriptStep{textStep("hello there")}}
	orch, _ := newTestOrchestrator(t, c, nil, nil)

	state := NewConversationState()
	result, err := orch.RunTurn(context.Background(), "s1", state, "hi")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if result.Message != "hello there" {
		t.Errorf("message = %q, want %q", result.Message, "hello there")
	}
	if len(result.Trace) != 0 {
		t.Errorf("trace length = %d, want 0", len(result.Trace))
	}
	if state.Len() != 2 {
		t.Errorf("history length = %d, want 2", state.Len())
	}
}

func TestRunTurnSingleToolCall(t *testing.T) {
	tool := &fakeTool{name: "echo"}
	c := &scriptedClient{script: []scriptStep{
		callStep(&genai.FunctionCall{ID: "c1", Name: "echo", Args: map[string]any{"text": "hi"}}),
		textStep("done"),
	}}
	orch, recorder := newTestOrchestrator(t, c, tool, nil)

	state := NewConversationState()
	result, err := orch.RunTurn(context.Background(), "s1", state, "run echo")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if result.Message != "done" {
		t.Errorf("message = %q, want %q", result.Message, "done")
	}
	if len(result.Trace) != 1 {
		t.Fatalf("trace length = %d, want 1", len(result.Trace))
	}
	entry := result.Trace[0]
	if entry.Invocation.Name != "echo" || entry.Invocation.CallDepth != 1 {
		t.Errorf("invocation = %+v, want echo at depth 1", entry.Invocation)
	}
	if !entry.Outcome.Success || entry.Outcome.Content != "ok" {
		t.Errorf("outcome = %+v, want success with content ok", entry.Outcome)
	}
	if tool.executionCount() != 1 {
		t.Errorf("executions = %d, want 1", tool.executionCount())
	}
	if calls := recorder.byType(telemetry.EventToolCall); len(calls) != 1 {
		t.Errorf("tool_call events = %d, want 1", len(calls))
	}
}

func TestRunTurnDepthGuard(t *testing.T) {
	tool := &fakeTool{name: "echo"}
	c := &scriptedClient{script: []scriptStep{
		callStep(&genai.FunctionCall{ID: "c1", Name: "echo"}),
		callStep(&genai.FunctionCall{ID: "c2", Name: "echo"}),
		callStep(&genai.FunctionCall{ID: "c3", Name: "echo"}),
	}}
	orch, _ := newTestOrchestrator(t, c, tool, func(cfg *config.Config) {
		cfg.Agent.MaxToolDepth = 2
	})

	state := NewConversationState()
	result, err := orch.RunTurn(context.Background(), "s1", state, "go")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	// The call at depth limit-1 still executes and lands exactly on the
	// limit; the next proposal is refused without execution.
	if tool.executionCount() != 2 {
		t.Errorf("executions = %d, want 2", tool.executionCount())
	}
	if len(result.Trace) != 3 {
		t.Fatalf("trace length = %d, want 3", len(result.Trace))
	}
	if result.Trace[1].Invocation.CallDepth != 2 {
		t.Errorf("second call depth = %d, want 2", result.Trace[1].Invocation.CallDepth)
	}
	last := result.Trace[2]
	if !last.Outcome.Skipped || !strings.Contains(last.Outcome.Error, "depth") {
		t.Errorf("last outcome = %+v, want skipped depth error", last.Outcome)
	}
	if !strings.Contains(result.Message, "maximum tool-call depth") {
		t.Errorf("message = %q, want depth explanation", result.Message)
	}
}

func TestRunTurnBoundedAgainstInvalidProposals(t *testing.T) {
	// Every proposal names an unregistered tool, so depth never moves.
	// The step cap must end the turn anyway instead of burning provider
	// calls forever.
	script := make([]scriptStep, 10)
	for i := range script {
		script[i] = callStep(&genai.FunctionCall{ID: fmt.Sprintf("c%d", i), Name: "no_such_tool"})
	}
	c := &scriptedClient{script: script}
	orch, _ := newTestOrchestrator(t, c, nil, func(cfg *config.Config) {
		cfg.Agent.MaxTurns = 3
	})

	state := NewConversationState()
	result, err := orch.RunTurn(context.Background(), "s1", state, "go")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if c.step != 3 {
		t.Errorf("model calls = %d, want 3", c.step)
	}
	if !strings.Contains(result.Message, "maximum number of model steps") {
		t.Errorf("message = %q, want step-limit explanation", result.Message)
	}
	for i, entry := range result.Trace {
		if !entry.Outcome.Skipped {
			t.Errorf("entry %d = %+v, want skipped", i, entry.Outcome)
		}
	}
}

func TestRunTurnValidationFailureDoesNotCountDepth(t *testing.T) {
	tool := &fakeTool{name: "reader", requirePath: true}
	c := &scriptedClient{script: []scriptStep{
		callStep(&genai.FunctionCall{ID: "c1", Name: "reader", Args: map[string]any{}}),
		callStep(&genai.FunctionCall{ID: "c2", Name: "reader", Args: map[string]any{"path": "a.go"}}),
		textStep("read it"),
	}}
	orch, _ := newTestOrchestrator(t, c, tool, nil)

	state := NewConversationState()
	result, err := orch.RunTurn(context.Background(), "s1", state, "read a.go")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if tool.executionCount() != 1 {
		t.Errorf("executions = %d, want 1", tool.executionCount())
	}
	if len(result.Trace) != 2 {
		t.Fatalf("trace length = %d, want 2", len(result.Trace))
	}
	if !result.Trace[0].Outcome.Skipped || result.Trace[0].Invocation.CallDepth != 0 {
		t.Errorf("first entry = %+v, want skipped at depth 0", result.Trace[0])
	}
	if result.Trace[1].Invocation.CallDepth != 1 {
		t.Errorf("second entry depth = %d, want 1", result.Trace[1].Invocation.CallDepth)
	}
}

func TestRunTurnRejectsMultipleToolCalls(t *testing.T) {
	tool := &fakeTool{name: "echo"}
	c := &scriptedClient{script: []scriptStep{
		callStep(
			&genai.FunctionCall{ID: "c1", Name: "echo"},
			&genai.FunctionCall{ID: "c2", Name: "echo"},
		),
		textStep("one at a time"),
	}}
	orch, _ := newTestOrchestrator(t, c, tool, nil)

	state := NewConversationState()
	result, err := orch.RunTurn(context.Background(), "s1", state, "go")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if tool.executionCount() != 0 {
		t.Errorf("executions = %d, want 0", tool.executionCount())
	}
	if len(result.Trace) != 2 {
		t.Fatalf("trace length = %d, want 2", len(result.Trace))
	}
	for i, entry := range result.Trace {
		if !entry.Outcome.Skipped || !strings.Contains(entry.Outcome.Error, "one tool per step") {
			t.Errorf("entry %d = %+v, want skipped protocol violation", i, entry.Outcome)
		}
	}
	if result.Message != "one at a time" {
		t.Errorf("message = %q, want final text", result.Message)
	}
}

func TestRunTurnCancelledMidTool(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tool := &fakeTool{name: "slow"}
	tool.execute = func(execCtx context.Context, args map[string]any) (tools.ToolResult, error) {
		cancel()
		<-execCtx.Done()
		return tools.ToolResult{}, execCtx.Err()
	}

	c := &scriptedClient{script: []scriptStep{
		callStep(&genai.FunctionCall{ID: "c1", Name: "slow"}),
		textStep("never reached"),
	}}
	orch, _ := newTestOrchestrator(t, c, tool, nil)

	state := NewConversationState()
	result, err := orch.RunTurn(ctx, "s1", state, "run slow")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if result != nil {
		t.Errorf("result = %+v, want nil", result)
	}

	// Nothing after the model's proposal may be appended: user turn plus
	// the model content carrying the call.
	if state.Len() != 2 {
		t.Errorf("history length = %d, want 2", state.Len())
	}
}

func TestRunTurnSummarizesBeforeThink(t *testing.T) {
	c := &scriptedClient{
		script:      []scriptStep{textStep("answer")},
		tokenCounts: []int{900, 50},
	}
	orch, _ := newTestOrchestrator(t, c, nil, func(cfg *config.Config) {
		cfg.Context.MaxInputTokens = 1000
		cfg.Context.KeepRecentTurns = 4
	})

	state := NewConversationState()
	for i := 0; i < 8; i++ {
		var role genai.Role = genai.RoleUser
		if i%2 == 1 {
			role = genai.RoleModel
		}
		state.Append(genai.NewContentFromText(fmt.Sprintf("turn %d", i), role))
	}

	result, err := orch.RunTurn(context.Background(), "s1", state, "latest question")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if result.Message != "answer" {
		t.Errorf("message = %q, want %q", result.Message, "answer")
	}
	if c.summarizeCalls != 1 {
		t.Errorf("summarize calls = %d, want exactly 1", c.summarizeCalls)
	}

	// 9 turns collapse to head(1) + summary + tail(4), then the model
	// reply is appended.
	if state.Len() != 7 {
		t.Errorf("history length = %d, want 7", state.Len())
	}
}

func TestRunTurnBelowThresholdDoesNotSummarize(t *testing.T) {
	c := &scriptedClient{
		script:      []scriptStep{textStep("answer")},
		tokenCounts: []int{100},
	}
	orch, _ := newTestOrchestrator(t, c, nil, func(cfg *config.Config) {
		cfg.Context.MaxInputTokens = 1000
	})

	state := NewConversationState()
	if _, err := orch.RunTurn(context.Background(), "s1", state, "hi"); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if c.summarizeCalls != 0 {
		t.Errorf("summarize calls = %d, want 0", c.summarizeCalls)
	}
}

func TestRunTurnProviderFailure(t *testing.T) {
	c := &scriptedClient{script: []scriptStep{
		{err: errors.New("backend exploded")},
	}}
	orch, _ := newTestOrchestrator(t, c, nil, nil)

	state := NewConversationState()
	result, err := orch.RunTurn(context.Background(), "s1", state, "hi")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if !strings.Contains(result.Message, "sorry") {
		t.Errorf("message = %q, want apologetic explanation", result.Message)
	}
}

func TestRunTurnToolFailureNotRetried(t *testing.T) {
	tool := &fakeTool{name: "flaky"}
	tool.execute = func(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
		return tools.NewErrorResult("boom"), nil
	}

	c := &scriptedClient{script: []scriptStep{
		callStep(&genai.FunctionCall{ID: "c1", Name: "flaky"}),
		textStep("it failed"),
	}}
	orch, recorder := newTestOrchestrator(t, c, tool, nil)

	state := NewConversationState()
	result, err := orch.RunTurn(context.Background(), "s1", state, "go")
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if tool.executionCount() != 1 {
		t.Errorf("executions = %d, want 1 (no retries)", tool.executionCount())
	}
	if result.Trace[0].Outcome.Success {
		t.Error("outcome should be a failure")
	}
	if errs := recorder.byType(telemetry.EventToolError); len(errs) != 1 {
		t.Errorf("tool_error events = %d, want 1", len(errs))
	}
}

func TestSessionManagerSequentialTurns(t *testing.T) {
	c := &scriptedClient{script: []scriptStep{
		textStep("first"),
		textStep("second"),
	}}
	orch, _ := newTestOrchestrator(t, c, nil, nil)
	sm := NewSessionManager(orch, config.SessionConfig{MaxIdle: time.Hour, MaxSessions: 4})

	s, err := sm.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	r1, err := sm.RunTurn(context.Background(), s.ID, "one")
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	r2, err := sm.RunTurn(context.Background(), s.ID, "two")
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if r1.Message != "first" || r2.Message != "second" {
		t.Errorf("messages = %q, %q", r1.Message, r2.Message)
	}
	if s.State.Len() != 4 {
		t.Errorf("history length = %d, want 4", s.State.Len())
	}
}

func TestSessionManagerUnknownSession(t *testing.T) {
	orch, _ := newTestOrchestrator(t, &scriptedClient{}, nil, nil)
	sm := NewSessionManager(orch, config.SessionConfig{})

	if _, err := sm.RunTurn(context.Background(), "nope", "hi"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionManagerEvictsIdle(t *testing.T) {
	orch, _ := newTestOrchestrator(t, &scriptedClient{}, nil, nil)
	sm := NewSessionManager(orch, config.SessionConfig{MaxIdle: time.Minute, MaxSessions: 4})

	s1, _ := sm.Create()
	s2, _ := sm.Create()
	s1.lastActive = time.Now().Add(-time.Hour)

	if evicted := sm.EvictIdle(); evicted != 1 {
		t.Errorf("evicted = %d, want 1", evicted)
	}
	if _, ok := sm.Get(s1.ID); ok {
		t.Error("idle session should be gone")
	}
	if _, ok := sm.Get(s2.ID); !ok {
		t.Error("fresh session should remain")
	}
}

func TestSessionManagerCapacity(t *testing.T) {
	orch, _ := newTestOrchestrator(t, &scriptedClient{}, nil, nil)
	sm := NewSessionManager(orch, config.SessionConfig{MaxIdle: time.Hour, MaxSessions: 2})

	if _, err := sm.Create(); err != nil {
		t.Fatalf("Create 1: %v", err)
	}
	if _, err := sm.Create(); err != nil {
		t.Fatalf("Create 2: %v", err)
	}
	if _, err := sm.Create(); !errors.Is(err, ErrTooManySessions) {
		t.Errorf("err = %v, want ErrTooManySessions", err)
	}
}
