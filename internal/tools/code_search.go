package tools

import (
	"context"
	"fmt"
	"strings"

	"gofer/internal/retrieval"

	"google.golang.org/genai"
)

// CodeSearchTool searches the workspace's semantic code index. Results
// come back best-first; an empty result means no matches or a degraded
// pipeline, never an error.
type CodeSearchTool struct {
	pipeline    *retrieval.Pipeline
	workspaceID string
}

// NewCodeSearchTool creates a code search tool bound to one workspace.
func NewCodeSearchTool(pipeline *retrieval.Pipeline, workspaceID string) *CodeSearchTool {
	return &CodeSearchTool{
		pipeline:    pipeline,
		workspaceID: workspaceID,
	}
}

func (t *CodeSearchTool) Name() string {
	return "search_code"
}

func (t *CodeSearchTool) Description() string {
	return `Searches the codebase semantically using a natural-language query. Returns the most relevant code locations with file paths and line ranges.

PARAMETERS:
- query (required): Natural-language description of the code to find
- branch (optional): Source-control branch to search (defaults to the indexed default branch)

Use this before grepping when you only know what the code does, not what it is called.`
}

func (t *CodeSearchTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"query": {
					Type:        genai.TypeString,
					Description: "Natural-language description of the code to find",
				},
				"branch": {
					Type:        genai.TypeString,
					Description: "Branch to search. Optional.",
				},
			},
			Required: []string{"query"},
		},
	}
}

func (t *CodeSearchTool) Validate(args map[string]any) error {
	query, ok := GetString(args, "query")
	if !ok || query == "" {
		return NewValidationError("query", "is required")
	}
	if t.pipeline == nil {
		return NewValidationError("pipeline", "code search is not configured")
	}
	return nil
}

func (t *CodeSearchTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	query, _ := GetString(args, "query")
	branch, _ := GetString(args, "branch")

	result := t.pipeline.Search(ctx, retrieval.Request{
		Query:       query,
		WorkspaceID: t.workspaceID,
		Branch:      branch,
	})

	if len(result.Snippets) == 0 {
		return NewSuccessResult("No matching code found."), nil
	}

	var output strings.Builder
	output.WriteString(fmt.Sprintf("Found %d matching locations:\n\n", len(result.Snippets)))
	for i, s := range result.Snippets {
		output.WriteString(fmt.Sprintf("%d. %s:%d-%d (score %.2f)\n", i+1, s.Path, s.StartLine, s.EndLine, s.Score))
	}

	return NewSuccessResultWithData(output.String(), map[string]any{
		"count":    len(result.Snippets),
		"snippets": result.Snippets,
	}), nil
}
