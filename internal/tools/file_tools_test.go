package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteThenRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "hello.txt")

	writeTool := NewWriteTool(dir)
	readTool := NewReadTool(dir)

	result, err := writeTool.Execute(context.Background(), map[string]any{
		"file_path": path,
		"content":   "line one\nline two\n",
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if !result.Success {
		t.Fatalf("write result = %+v", result)
	}

	readResult, err := readTool.Execute(context.Background(), map[string]any{"file_path": path})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(readResult.Content, "line one") || !strings.Contains(readResult.Content, "line two") {
		t.Errorf("read content = %q", readResult.Content)
	}
	// cat -n numbering
	if !strings.Contains(readResult.Content, "1\t") {
		t.Errorf("read content missing line numbers: %q", readResult.Content)
	}
}

func TestWriteOverwriteReportsDiff(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	writeTool := NewWriteTool(dir)

	if _, err := writeTool.Execute(context.Background(), map[string]any{
		"file_path": path, "content": "old content",
	}); err != nil {
		t.Fatalf("first write: %v", err)
	}

	result, err := writeTool.Execute(context.Background(), map[string]any{
		"file_path": path, "content": "new content",
	})
	if err != nil {
		t.Fatalf("second write: %v", err)
	}
	if !strings.Contains(result.Content, "+") || !strings.Contains(result.Content, "-") {
		t.Errorf("overwrite message = %q, want diff stats", result.Content)
	}
}

func TestReadOffsetAndLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "many.txt")

	var sb strings.Builder
	for i := 1; i <= 50; i++ {
		sb.WriteString("row\n")
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		t.Fatal(err)
	}

	readTool := NewReadTool(dir)
	result, err := readTool.Execute(context.Background(), map[string]any{
		"file_path": path,
		"offset":    10,
		"limit":     5,
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	lines := strings.Split(strings.TrimRight(result.Content, "\n"), "\n")
	if len(lines) != 5 {
		t.Errorf("lines = %d, want 5", len(lines))
	}
	if !strings.Contains(lines[0], "10\t") {
		t.Errorf("first line = %q, want to start at offset 10", lines[0])
	}
}

func TestReadMissingFile(t *testing.T) {
	readTool := NewReadTool(t.TempDir())
	result, err := readTool.Execute(context.Background(), map[string]any{
		"file_path": "/nonexistent/nope.txt",
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if result.Success {
		t.Error("missing file should be an error result")
	}
}

func TestGlobFindsFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.go", "b.go", "c.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, "pkg"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "pkg", "d.go"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	globTool := NewGlobTool(dir)
	result, err := globTool.Execute(context.Background(), map[string]any{"pattern": "**/*.go"})
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	for _, want := range []string{"a.go", "b.go", "d.go"} {
		if !strings.Contains(result.Content, want) {
			t.Errorf("content missing %s: %q", want, result.Content)
		}
	}
	if strings.Contains(result.Content, "c.txt") {
		t.Error("non-matching file listed")
	}
}

func TestDeleteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.txt")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	deleteTool := NewDeleteTool(dir)
	result, err := deleteTool.Execute(context.Background(), map[string]any{"path": path})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("file still exists")
	}
}

func TestDeleteNonEmptyDirRequiresRecursive(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "full")
	if err := os.MkdirAll(target, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(target, "x.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	deleteTool := NewDeleteTool(dir)
	result, err := deleteTool.Execute(context.Background(), map[string]any{"path": target})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if result.Success {
		t.Error("non-empty dir without recursive should fail")
	}

	result, err = deleteTool.Execute(context.Background(), map[string]any{
		"path": target, "recursive": true,
	})
	if err != nil {
		t.Fatalf("recursive delete: %v", err)
	}
	if !result.Success {
		t.Errorf("recursive delete result = %+v", result)
	}
}
