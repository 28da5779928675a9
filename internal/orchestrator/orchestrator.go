package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gofer/internal/client"
	"gofer/internal/config"
	ctxmgr "gofer/internal/context"
	"gofer/internal/logging"
	"gofer/internal/telemetry"
	"gofer/internal/tools"

	"google.golang.org/genai"
)

const (
	// depthExceededNotice is appended as a synthetic tool result when the
	// depth guard trips, so the model sees why its proposal was refused.
	depthExceededNotice = "maximum tool-call depth exceeded for this turn; respond to the user with what you have so far"

	// protocolViolationNotice is sent back when the model proposes more
	// than one tool in a single step.
	protocolViolationNotice = "protocol violation: call exactly one tool per step, then wait for its result"

	providerFailureMessage = "I'm sorry, I couldn't reach the model after several attempts. Please try again in a moment."

	turnLimitMessage = "[Reached the maximum number of model steps for this turn without a final answer. Ask me to continue if more work is needed.]"

	overflowFailureMessage = "This conversation has grown beyond the model's context window and could not be summarized. Please start a new session."
)

// Orchestrator drives the tool-calling loop for one turn at a time:
// think, execute at most one tool, feed the result back, repeat until
// the model answers in plain text or a guard stops the loop.
type Orchestrator struct {
	client     client.Client
	registry   *tools.Registry
	counter    *ctxmgr.TokenCounter
	summarizer *ctxmgr.Summarizer
	compactor  *ctxmgr.ResultCompactor
	recorder   telemetry.Recorder

	maxDepth    int
	maxTurns    int
	toolTimeout time.Duration
	keepRecent  int
	autoSummary bool
}

// New creates an orchestrator wired to the given client and registry.
// A nil recorder disables telemetry.
func New(c client.Client, registry *tools.Registry, cfg *config.Config, recorder telemetry.Recorder) *Orchestrator {
	if recorder == nil {
		recorder = telemetry.Nop()
	}

	maxDepth := cfg.Agent.MaxToolDepth
	if maxDepth <= 0 {
		maxDepth = 8
	}

	maxTurns := cfg.Agent.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 30
	}

	keepRecent := cfg.Context.KeepRecentTurns
	if keepRecent <= 0 {
		keepRecent = 4
	}

	toolTimeout := cfg.Tools.Timeout
	if toolTimeout <= 0 {
		toolTimeout = 2 * time.Minute
	}

	return &Orchestrator{
		client:      c,
		registry:    registry,
		counter:     ctxmgr.NewTokenCounter(c, c.GetModel(), &cfg.Context),
		summarizer:  ctxmgr.NewSummarizer(c),
		compactor:   ctxmgr.NewResultCompactor(cfg.Context.ToolResultMaxChars),
		recorder:    recorder,
		maxDepth:    maxDepth,
		maxTurns:    maxTurns,
		toolTimeout: toolTimeout,
		keepRecent:  keepRecent,
		autoSummary: cfg.Context.EnableAutoSummary,
	}
}

// RunTurn processes one user message against the session state and
// returns the assistant's reply together with the tool trace. The only
// error it returns is the context's own error on cancellation; provider
// and guard failures are folded into a user-visible message.
func (o *Orchestrator) RunTurn(ctx context.Context, sessionID string, state *ConversationState, userText string) (*TurnResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	state.Append(genai.NewContentFromText(userText, genai.RoleUser))

	var (
		trace     []TraceEntry
		finalText string
		depth     int
	)

	// The iteration cap bounds total model round-trips: depth alone
	// counts executed tools, so a model stuck proposing invalid calls
	// would otherwise bounce back to thinking forever.
	for turn := 0; ; turn++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if turn >= o.maxTurns {
			logging.Warn("turn limit reached without final answer",
				"session_id", sessionID, "turns", turn, "depth", depth)
			if finalText != "" {
				finalText += "\n\n"
			}
			finalText += turnLimitMessage
			return &TurnResult{Message: finalText, Trace: trace}, nil
		}

		// Overflow guard runs before every think so the request that
		// would blow the window never gets sent.
		if err := o.checkAndSummarize(ctx, state); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			logging.Error("context overflow unrecoverable", "session_id", sessionID, "error", err)
			return &TurnResult{Message: overflowFailureMessage, Trace: trace}, nil
		}

		resp, err := o.think(ctx, state)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			fatal := &FatalTurnError{Reason: "provider unavailable after retries", Err: err}
			logging.Error("turn aborted", "session_id", sessionID, "error", fatal)
			return &TurnResult{Message: providerFailureMessage, Trace: trace}, nil
		}

		o.recordUsage(sessionID, resp)

		state.Append(&genai.Content{
			Role:  genai.RoleModel,
			Parts: buildResponseParts(resp),
		})

		if resp.Text != "" {
			finalText += resp.Text
		}

		if len(resp.FunctionCalls) == 0 {
			if finalText == "" {
				finalText = "[The model returned an empty response. Try rephrasing your request.]"
			}
			return &TurnResult{Message: finalText, Trace: trace}, nil
		}

		if len(resp.FunctionCalls) > 1 {
			// One tool per step. Reject the whole proposal; the error
			// goes back as the result of every proposed call so the
			// provider sees a well-formed exchange.
			logging.Warn("multiple tool calls in one step rejected",
				"session_id", sessionID, "count", len(resp.FunctionCalls))
			for _, call := range resp.FunctionCalls {
				trace = append(trace, TraceEntry{
					Invocation: ToolInvocation{Name: call.Name, Args: call.Args, CallDepth: depth},
					Outcome:    ToolOutcome{Error: protocolViolationNotice, Skipped: true},
				})
			}
			state.Append(functionErrorContent(resp.FunctionCalls, protocolViolationNotice))
			continue
		}

		call := resp.FunctionCalls[0]

		if depth >= o.maxDepth {
			logging.Warn("tool-call depth limit reached",
				"session_id", sessionID, "tool", call.Name, "depth", depth)
			trace = append(trace, TraceEntry{
				Invocation: ToolInvocation{Name: call.Name, Args: call.Args, CallDepth: depth},
				Outcome:    ToolOutcome{Error: ErrDepthExceeded.Error(), Skipped: true},
			})
			state.Append(functionErrorContent([]*genai.FunctionCall{call}, depthExceededNotice))
			if finalText != "" {
				finalText += "\n\n"
			}
			finalText += "[Reached the maximum tool-call depth for this turn. Ask me to continue if more work is needed.]"
			return &TurnResult{Message: finalText, Trace: trace}, nil
		}

		if errMsg, ok := o.validateCall(call); !ok {
			// Validation failures bounce straight back to the model and
			// do not count against the depth budget.
			trace = append(trace, TraceEntry{
				Invocation: ToolInvocation{Name: call.Name, Args: call.Args, CallDepth: depth},
				Outcome:    ToolOutcome{Error: errMsg, Skipped: true},
			})
			state.Append(functionErrorContent([]*genai.FunctionCall{call}, errMsg))
			continue
		}

		depth++
		outcome := o.executeCall(ctx, sessionID, call)
		if err := ctx.Err(); err != nil {
			// Cancelled mid-execution: the turn ends here and nothing
			// more is appended to the session.
			return nil, err
		}

		trace = append(trace, TraceEntry{
			Invocation: ToolInvocation{Name: call.Name, Args: call.Args, CallDepth: depth},
			Outcome:    outcome,
		})

		response := map[string]any{}
		if outcome.Success {
			response["content"] = o.compactor.Compact(outcome.Content, false)
		} else {
			response["error"] = outcome.Error
		}
		part := genai.NewPartFromFunctionResponse(call.Name, response)
		part.FunctionResponse.ID = call.ID
		state.Append(&genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{part}})
	}
}

// think requests the next model step. The client retries transient
// failures internally; an error here means retries are exhausted.
func (o *Orchestrator) think(ctx context.Context, state *ConversationState) (*client.Response, error) {
	history := state.Snapshot()
	if len(history) == 0 {
		return nil, fmt.Errorf("empty conversation")
	}

	last := history[len(history)-1]
	rest := history[:len(history)-1]

	// Tool results route through SendFunctionResponse so providers that
	// reject empty user messages still get a well-formed request.
	if last.Role == genai.RoleUser {
		var funcResponses []*genai.FunctionResponse
		for _, part := range last.Parts {
			if part.FunctionResponse != nil {
				funcResponses = append(funcResponses, &genai.FunctionResponse{
					ID:       part.FunctionResponse.ID,
					Name:     part.FunctionResponse.Name,
					Response: part.FunctionResponse.Response,
				})
			}
		}
		if len(funcResponses) > 0 {
			stream, err := o.client.SendFunctionResponse(ctx, rest, funcResponses)
			if err != nil {
				return nil, err
			}
			return stream.Collect()
		}
	}

	var message string
	if last.Role == genai.RoleUser {
		for _, part := range last.Parts {
			if part.Text != "" {
				message = part.Text
				break
			}
		}
	}
	if message == "" {
		message = "Continue."
	}

	stream, err := o.client.SendMessageWithHistory(ctx, rest, message)
	if err != nil {
		return nil, err
	}
	return stream.Collect()
}

// checkAndSummarize compresses older history when usage crosses the
// warning threshold. At most one summarization happens per call; if the
// window is still exceeded afterwards the turn cannot proceed.
func (o *Orchestrator) checkAndSummarize(ctx context.Context, state *ConversationState) error {
	if !o.autoSummary {
		return nil
	}

	usage := o.counter.CountOrEstimate(ctx, state.Snapshot())
	if !usage.NearLimit {
		return nil
	}

	logging.Info("context threshold reached, summarizing history",
		"usage", fmt.Sprintf("%.1f%%", usage.PercentUsed*100),
		"tokens", usage.InputTokens,
		"estimated", usage.IsEstimate)

	middle := state.Middle(1, o.keepRecent)
	if len(middle) == 0 {
		if usage.ExceedsLimit {
			return &ContextOverflowError{Tokens: usage.InputTokens, MaxTokens: usage.MaxTokens}
		}
		return nil
	}

	summary, err := o.summarizer.Summarize(ctx, middle)
	if err != nil {
		return fmt.Errorf("summarization failed: %w", err)
	}

	if state.ReplaceWithSummary(summary, 1, o.keepRecent) {
		o.counter.InvalidateCache()
		logging.Info("history summarized", "new_turn_count", state.Len())
	}

	return nil
}

// validateCall checks that the proposed tool exists and its arguments
// pass the tool's own validation.
func (o *Orchestrator) validateCall(call *genai.FunctionCall) (string, bool) {
	tool, ok := o.registry.Get(call.Name)
	if !ok {
		return fmt.Sprintf("unknown tool: %s", call.Name), false
	}
	if err := tool.Validate(call.Args); err != nil {
		return fmt.Sprintf("validation error: %s", err), false
	}
	return "", true
}

// executeCall runs one validated tool call under the per-tool deadline.
// Tool failures are reported back to the model, never retried here.
func (o *Orchestrator) executeCall(ctx context.Context, sessionID string, call *genai.FunctionCall) ToolOutcome {
	tool, ok := o.registry.Get(call.Name)
	if !ok {
		return ToolOutcome{Error: fmt.Sprintf("unknown tool: %s", call.Name)}
	}

	execCtx, cancel := context.WithTimeout(ctx, o.toolTimeout)
	defer cancel()

	start := time.Now()
	result, err := tool.Execute(execCtx, call.Args)
	duration := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("tool timed out after %s", o.toolTimeout)
		}
		o.recordToolError(sessionID, call, err.Error(), duration)
		return ToolOutcome{Error: err.Error()}
	}

	if !result.Success {
		o.recordToolError(sessionID, call, result.Error, duration)
		return ToolOutcome{Error: result.Error}
	}

	o.recordToolCall(sessionID, call, result.Content, duration)
	return ToolOutcome{Content: result.Content, Success: true}
}

func (o *Orchestrator) recordUsage(sessionID string, resp *client.Response) {
	if resp.InputTokens == 0 && resp.OutputTokens == 0 {
		return
	}
	e := telemetry.NewEvent(telemetry.EventLLMUsage)
	e.SessionID = sessionID
	e.Operation = "run_turn"
	e.Model = o.client.GetModel()
	e.InputTokens = resp.InputTokens
	e.OutputTokens = resp.OutputTokens
	o.recorder.Record(e)
}

func (o *Orchestrator) recordToolCall(sessionID string, call *genai.FunctionCall, result string, duration time.Duration) {
	e := telemetry.NewEvent(telemetry.EventToolCall)
	e.SessionID = sessionID
	e.Operation = "run_turn"
	e.ToolName = call.Name
	e.Args = telemetry.SanitizeArgs(call.Args)
	e.Result = telemetry.TruncateResult(result, 0)
	e.Duration = duration
	o.recorder.Record(e)
}

func (o *Orchestrator) recordToolError(sessionID string, call *genai.FunctionCall, errMsg string, duration time.Duration) {
	e := telemetry.NewEvent(telemetry.EventToolError)
	e.SessionID = sessionID
	e.Operation = "run_turn"
	e.ToolName = call.Name
	e.Args = telemetry.SanitizeArgs(call.Args)
	e.Error = errMsg
	e.Duration = duration
	o.recorder.Record(e)
}

// buildResponseParts renders a model response as history parts. At
// least one part is returned; the API rejects empty content.
func buildResponseParts(resp *client.Response) []*genai.Part {
	var parts []*genai.Part

	if resp.Text != "" {
		parts = append(parts, genai.NewPartFromText(resp.Text))
	}
	for _, fc := range resp.FunctionCalls {
		parts = append(parts, &genai.Part{FunctionCall: fc})
	}
	if len(parts) == 0 {
		parts = append(parts, genai.NewPartFromText(" "))
	}

	return parts
}

// functionErrorContent builds a user-role content answering every given
// call with the same error, keeping the call/response pairing intact.
func functionErrorContent(calls []*genai.FunctionCall, errMsg string) *genai.Content {
	parts := make([]*genai.Part, len(calls))
	for i, call := range calls {
		part := genai.NewPartFromFunctionResponse(call.Name, map[string]any{"error": errMsg})
		part.FunctionResponse.ID = call.ID
		parts[i] = part
	}
	return &genai.Content{Role: genai.RoleUser, Parts: parts}
}
