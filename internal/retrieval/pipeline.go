package retrieval

import (
	"context"
	"fmt"

	"gofer/internal/config"
	"gofer/internal/logging"
	"gofer/internal/telemetry"
)

// toolName tags degradation events so telemetry can attribute them.
const toolName = "search_code"

// UnknownField is the sentinel for missing match metadata.
const UnknownField = "unknown"

// Request is one code search invocation.
type Request struct {
	Query string

	// WorkspaceID is an opaque hash naming the workspace's index.
	WorkspaceID string

	// Branch selects the index namespace. Empty means the configured
	// default branch.
	Branch string
}

// Snippet is one search hit projected from match metadata.
type Snippet struct {
	Path      string  `json:"path"`
	Score     float64 `json:"score"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
}

// Result is an ordered list of snippets, most relevant first. Empty
// (never nil) means no matches.
type Result struct {
	Snippets []Snippet `json:"snippets"`
}

// Pipeline orchestrates embed, index lookup, vector query and optional
// rerank into one search operation. Search never returns an error:
// every failure degrades to an empty result plus a recorded event.
// Workspace isolation comes entirely from index naming, so a missing
// index fails closed rather than scanning other workspaces.
type Pipeline struct {
	embedder Embedder
	catalog  IndexCatalog
	reranker Reranker // nil = reranking disabled
	recorder telemetry.Recorder
	cfg      config.RetrievalConfig
}

// NewPipeline assembles a search pipeline from its collaborators.
// reranker may be nil.
func NewPipeline(embedder Embedder, catalog IndexCatalog, reranker Reranker, recorder telemetry.Recorder, cfg config.RetrievalConfig) *Pipeline {
	if recorder == nil {
		recorder = telemetry.Nop()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.DefaultBranch == "" {
		cfg.DefaultBranch = "default"
	}
	return &Pipeline{
		embedder: embedder,
		catalog:  catalog,
		reranker: reranker,
		recorder: recorder,
		cfg:      cfg,
	}
}

// Search runs the full pipeline for one request.
func (p *Pipeline) Search(ctx context.Context, req Request) Result {
	empty := Result{Snippets: []Snippet{}}

	branch := req.Branch
	if branch == "" {
		branch = p.cfg.DefaultBranch
	}

	vector, err := p.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		p.degrade(req.WorkspaceID, fmt.Sprintf("query embedding failed: %v", err))
		return empty
	}

	host, ok := p.resolveIndex(ctx, req.WorkspaceID)
	if !ok {
		return empty
	}

	queryResp, err := p.catalog.Query(ctx, host, QueryRequest{
		TopK:            p.cfg.TopK,
		Vector:          vector,
		Namespace:       branch,
		IncludeMetadata: true,
	})
	if err != nil {
		p.degrade(req.WorkspaceID, fmt.Sprintf("vector query failed: %v", err))
		return empty
	}

	// Zero matches is a normal outcome, not a degradation.
	if len(queryResp.Matches) == 0 {
		return empty
	}

	snippets := projectMatches(queryResp.Matches)
	if len(snippets) == 0 {
		p.degrade(req.WorkspaceID, "no usable documents in matches")
		return empty
	}

	snippets = p.maybeRerank(ctx, req.Query, snippets)

	return Result{Snippets: snippets}
}

// resolveIndex finds the index whose name exactly equals workspaceID.
// No match fails closed: searching another workspace's index would be
// worse than returning nothing.
func (p *Pipeline) resolveIndex(ctx context.Context, workspaceID string) (string, bool) {
	indexes, err := p.catalog.ListIndexes(ctx)
	if err != nil {
		p.degrade(workspaceID, fmt.Sprintf("index listing failed: %v", err))
		return "", false
	}

	var host string
	found := 0
	for _, idx := range indexes {
		if idx.Name == workspaceID {
			if found == 0 {
				host = idx.Host
			}
			found++
		}
	}

	if found == 0 {
		p.degrade(workspaceID, "index not found for workspace")
		return "", false
	}

	// Provisioning is supposed to keep index names unique; a duplicate
	// makes first-match-wins non-deterministic, so flag it loudly.
	if found > 1 {
		logging.Warn("duplicate index names for workspace, using first match",
			"workspace", workspaceID,
			"count", found)
	}

	return host, true
}

// projectMatches maps matches to snippets, defaulting missing metadata
// fields instead of failing the match. Matches with no metadata at all
// carry nothing to show the model and are dropped.
func projectMatches(matches []Match) []Snippet {
	snippets := make([]Snippet, 0, len(matches))

	for _, m := range matches {
		if m.Metadata == nil {
			continue
		}

		snippet := Snippet{
			Path:  UnknownField,
			Score: m.Score,
		}
		if path, ok := m.Metadata["obfuscated_path"].(string); ok && path != "" {
			snippet.Path = path
		}
		snippet.StartLine = metadataInt(m.Metadata, "start_line")
		snippet.EndLine = metadataInt(m.Metadata, "end_line")

		snippets = append(snippets, snippet)
	}

	return snippets
}

// metadataInt reads an integer metadata field. JSON decoding yields
// float64 for numbers; 0 stands in for "unknown".
func metadataInt(metadata map[string]any, key string) int {
	switch v := metadata[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// maybeRerank reorders snippets via the reranking service. Reranking is
// advisory: any failure keeps the vector-similarity ordering.
func (p *Pipeline) maybeRerank(ctx context.Context, query string, snippets []Snippet) []Snippet {
	if p.reranker == nil || len(snippets) < 2 {
		return snippets
	}

	candidates := make([]string, len(snippets))
	for i, s := range snippets {
		candidates[i] = fmt.Sprintf("%s:%d-%d", s.Path, s.StartLine, s.EndLine)
	}

	indices, err := p.reranker.Rerank(ctx, query, candidates)
	if err != nil {
		logging.Debug("reranking failed, keeping similarity ordering", "error", err)
		p.degrade("", fmt.Sprintf("reranker unavailable: %v", err))
		return snippets
	}

	reordered := make([]Snippet, 0, len(snippets))
	seen := make(map[int]bool)
	for _, idx := range indices {
		if idx < 0 || idx >= len(snippets) || seen[idx] {
			continue
		}
		seen[idx] = true
		reordered = append(reordered, snippets[idx])
		if len(reordered) >= p.cfg.TopK {
			break
		}
	}

	if len(reordered) == 0 {
		return snippets
	}

	return reordered
}

func (p *Pipeline) degrade(workspaceID, reason string) {
	logging.Warn("code search degraded", "workspace", workspaceID, "reason", reason)

	event := telemetry.Degradation(toolName, reason)
	event.ToolName = toolName
	if workspaceID != "" {
		event.Args = map[string]any{"workspace": workspaceID}
	}
	p.recorder.Record(event)
}
