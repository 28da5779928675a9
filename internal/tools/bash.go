package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"
)

// SafeEnvVars is the whitelist of environment variables passed to bash
// commands. This prevents leaking sensitive variables like API keys.
var SafeEnvVars = []string{
	"PATH",
	"HOME",
	"USER",
	"SHELL",
	"TERM",
	"LANG",
	"LC_ALL",
	"TMPDIR",
	"GOPATH",
	"GOROOT",
	"GOPROXY",
	"GOFLAGS",
	"NODE_PATH",
	"PYTHONPATH",
	"VIRTUAL_ENV",
}

// DefaultBashTimeout is the default timeout for bash commands.
const DefaultBashTimeout = 30 * time.Second

// BashTool executes bash commands.
type BashTool struct {
	workDir         string
	timeout         time.Duration
	blockedCommands []string
}

// NewBashTool creates a new BashTool instance.
func NewBashTool(workDir string) *BashTool {
	return &BashTool{
		workDir: workDir,
		timeout: DefaultBashTimeout,
		blockedCommands: []string{
			"rm -rf /",
			"mkfs",
			":(){ :|:& };:",
		},
	}
}

// SetTimeout sets the timeout for bash commands.
func (t *BashTool) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		t.timeout = timeout
	}
}

// SetBlockedCommands replaces the blocked command substrings.
func (t *BashTool) SetBlockedCommands(blocked []string) {
	if len(blocked) > 0 {
		t.blockedCommands = blocked
	}
}

// buildSafeEnv creates a sanitized environment for command execution.
func buildSafeEnv() []string {
	env := make([]string, 0, len(SafeEnvVars))
	hasPath := false
	for _, key := range SafeEnvVars {
		if val := os.Getenv(key); val != "" {
			env = append(env, key+"="+val)
			if key == "PATH" {
				hasPath = true
			}
		}
	}
	if !hasPath {
		env = append(env, "PATH=/usr/local/bin:/usr/bin:/bin")
	}
	return env
}

func (t *BashTool) Name() string {
	return "bash"
}

func (t *BashTool) Description() string {
	return `Executes a bash command and returns the output. Use for system operations, git commands, running tests, etc.

PARAMETERS:
- command (required): The bash command to execute
- description (optional): Brief description of what the command does

TIMEOUT:
- Default: 30 seconds

OUTPUT:
- stdout and stderr are captured
- Output >30000 chars is truncated
- Exit codes are reported on failure`
}

func (t *BashTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"command": {
					Type:        genai.TypeString,
					Description: "The bash command to execute",
				},
				"description": {
					Type:        genai.TypeString,
					Description: "A brief description of what the command does",
				},
			},
			Required: []string{"command"},
		},
	}
}

func (t *BashTool) Validate(args map[string]any) error {
	command, ok := GetString(args, "command")
	if !ok || command == "" {
		return NewValidationError("command", "is required")
	}

	for _, blocked := range t.blockedCommands {
		if strings.Contains(command, blocked) {
			return NewValidationError("command", fmt.Sprintf("blocked: contains %q", blocked))
		}
	}

	return nil
}

func (t *BashTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	command, _ := GetString(args, "command")

	execCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(execCtx, "bash", "-c", command)
	cmd.Dir = t.workDir
	cmd.Env = buildSafeEnv()

	// Process group so a kill reaches child processes too
	setProcGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return NewErrorResult(fmt.Sprintf("failed to start command: %s", err)), nil
	}

	var wg sync.WaitGroup
	var cmdErr error
	var cmdErrMu sync.Mutex
	cmdDone := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		waitErr := cmd.Wait()
		cmdErrMu.Lock()
		cmdErr = waitErr
		cmdErrMu.Unlock()
		close(cmdDone)
	}()

	timedOut := false

	select {
	case <-cmdDone:
	case <-execCtx.Done():
		timedOut = true
		killProcessGroup(cmd, 5*time.Second)
		wg.Wait()
	}

	cmdErrMu.Lock()
	finalErr := cmdErr
	cmdErrMu.Unlock()

	if timedOut {
		if ctx.Err() != nil {
			return NewErrorResult("command cancelled"), ctx.Err()
		}
		return NewErrorResult(fmt.Sprintf("command timed out after %v", t.timeout)), nil
	}

	if finalErr != nil {
		if exitErr, ok := finalErr.(*exec.ExitError); ok {
			return ToolResult{
				Content: stdout.String(),
				Error:   fmt.Sprintf("command exited with code %d", exitErr.ExitCode()),
				Success: false,
			}, nil
		}
		return NewErrorResult(fmt.Sprintf("command failed: %s", finalErr)), nil
	}

	return t.buildResult(stdout.String(), stderr.String()), nil
}

// buildResult constructs a ToolResult from stdout and stderr output.
func (t *BashTool) buildResult(stdoutStr, stderrStr string) ToolResult {
	var output strings.Builder

	if len(stdoutStr) > 0 {
		output.WriteString(stdoutStr)
	}

	if len(stderrStr) > 0 {
		if output.Len() > 0 {
			output.WriteString("\n")
		}
		output.WriteString("STDERR:\n")
		output.WriteString(stderrStr)
	}

	result := output.String()
	const maxLen = 30000
	if len(result) > maxLen {
		totalLen := len(result)
		result = result[:maxLen] + fmt.Sprintf("\n... (output truncated: showing %d of %d characters)", maxLen, totalLen)
	}

	if result == "" {
		result = "(no output)"
	}

	return NewSuccessResult(result)
}
