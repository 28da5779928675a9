package tools

import (
	"context"
	"testing"

	"google.golang.org/genai"
)

type stubTool struct {
	name string
}

func (t *stubTool) Name() string        { return t.name }
func (t *stubTool) Description() string { return "stub" }

func (t *stubTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{Name: t.name, Description: "stub"}
}

func (t *stubTool) Validate(args map[string]any) error { return nil }

func (t *stubTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	return NewSuccessResult("stub"), nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubTool{name: "alpha"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	tool, ok := r.Get("alpha")
	if !ok {
		t.Fatal("registered tool not found")
	}
	if tool.Name() != "alpha" {
		t.Errorf("name = %q, want alpha", tool.Name())
	}

	if _, ok := r.Get("missing"); ok {
		t.Error("unregistered tool should not be found")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubTool{name: "alpha"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(&stubTool{name: "alpha"}); err == nil {
		t.Error("duplicate registration should fail")
	}
}

func TestRegistryDeclarations(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&stubTool{name: "alpha"})
	r.MustRegister(&stubTool{name: "beta"})

	decls := r.Declarations()
	if len(decls) != 2 {
		t.Fatalf("declarations = %d, want 2", len(decls))
	}

	names := r.Names()
	if len(names) != 2 {
		t.Fatalf("names = %d, want 2", len(names))
	}

	gemTools := r.GeminiTools()
	if len(gemTools) != 1 || len(gemTools[0].FunctionDeclarations) != 2 {
		t.Error("GeminiTools should pack all declarations into one tool")
	}
}
