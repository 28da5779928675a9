package tools

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestBashValidate(t *testing.T) {
	tool := NewBashTool(t.TempDir())

	if err := tool.Validate(map[string]any{}); err == nil {
		t.Error("empty command should fail validation")
	}
	if err := tool.Validate(map[string]any{"command": "echo hi"}); err != nil {
		t.Errorf("plain command rejected: %v", err)
	}
	if err := tool.Validate(map[string]any{"command": "rm -rf / --no-preserve-root"}); err == nil {
		t.Error("blocked command should fail validation")
	}
}

func TestBashValidateCustomBlocklist(t *testing.T) {
	tool := NewBashTool(t.TempDir())
	tool.SetBlockedCommands([]string{"shutdown"})

	if err := tool.Validate(map[string]any{"command": "shutdown -h now"}); err == nil {
		t.Error("custom blocked command should fail validation")
	}
	if err := tool.Validate(map[string]any{"command": "echo shutdow"}); err != nil {
		t.Errorf("non-matching command rejected: %v", err)
	}
}

func TestBashExecute(t *testing.T) {
	tool := NewBashTool(t.TempDir())

	result, err := tool.Execute(context.Background(), map[string]any{"command": "echo hello"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v, want success", result)
	}
	if !strings.Contains(result.Content, "hello") {
		t.Errorf("content = %q, want echoed output", result.Content)
	}
}

func TestBashExecuteExitCode(t *testing.T) {
	tool := NewBashTool(t.TempDir())

	result, err := tool.Execute(context.Background(), map[string]any{"command": "exit 3"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success {
		t.Fatal("non-zero exit should not be a success")
	}
	if !strings.Contains(result.Error, "3") {
		t.Errorf("error = %q, want exit code", result.Error)
	}
}

func TestBashExecuteStderr(t *testing.T) {
	tool := NewBashTool(t.TempDir())

	result, err := tool.Execute(context.Background(), map[string]any{"command": "echo oops >&2"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(result.Content, "STDERR") || !strings.Contains(result.Content, "oops") {
		t.Errorf("content = %q, want stderr section", result.Content)
	}
}

func TestBashExecuteTimeout(t *testing.T) {
	tool := NewBashTool(t.TempDir())
	tool.SetTimeout(200 * time.Millisecond)

	start := time.Now()
	result, err := tool.Execute(context.Background(), map[string]any{"command": "sleep 30"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success {
		t.Fatal("timed-out command should not be a success")
	}
	if !strings.Contains(result.Error, "timed out") {
		t.Errorf("error = %q, want timeout message", result.Error)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("took %v, kill should end the command promptly", elapsed)
	}
}

func TestBashExecuteCancellation(t *testing.T) {
	tool := NewBashTool(t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := tool.Execute(ctx, map[string]any{"command": "sleep 30"})
	if err == nil {
		t.Fatal("cancelled execution should surface the context error")
	}
}
