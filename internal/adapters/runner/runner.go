// Package runner shells out to agent CLIs. Each runner kind answers
// closed-vocabulary selection queries and executes procedure steps; the
// shared base handles process control, timeouts, stderr streaming, and
// error classification.
package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/switchyard-dev/switchyard/internal/core"
	"github.com/switchyard-dev/switchyard/internal/diagnostics"
	"github.com/switchyard-dev/switchyard/internal/logging"
)

// DefaultStepTimeout bounds a step execution when neither the request nor
// the config sets one.
const DefaultStepTimeout = 30 * time.Minute

// LogCallback receives stderr lines in real time during execution.
type LogCallback func(line string)

// Config holds runner configuration. Name is an alias; the CLI invoked is
// determined by Path and the constructor used, so two entries can share a
// CLI with different models.
type Config struct {
	Name    string
	Path    string
	Model   string
	Timeout time.Duration
	WorkDir string
	// ReasoningEffort tunes CLIs that expose it (codex: minimal through
	// xhigh). Empty keeps the CLI default.
	ReasoningEffort string
}

// Base provides common CLI execution for the concrete runners.
type Base struct {
	config      Config
	log         *logging.Logger
	resolver    core.InstructionResolver
	logCallback LogCallback

	// ExtraEnv is applied on top of the process environment.
	ExtraEnv map[string]string

	safeExec   *diagnostics.SafeExecutor
	dumpWriter *diagnostics.CrashDumpWriter

	mu        sync.Mutex
	activeCmd *exec.Cmd
}

// NewBase creates the shared runner base. resolver turns step instruction
// references into instruction text; nil is allowed for runners used only
// for selection queries.
func NewBase(cfg Config, resolver core.InstructionResolver, log *logging.Logger) *Base {
	if log == nil {
		log = logging.NewNop()
	}
	return &Base{
		config:   cfg,
		log:      log.WithRunner(cfg.Name),
		resolver: resolver,
	}
}

// SetLogCallback installs a callback that receives stderr lines in real
// time.
func (b *Base) SetLogCallback(cb LogCallback) {
	b.logCallback = cb
}

// WithDiagnostics enables preflight resource checks and crash dumps around
// command execution.
func (b *Base) WithDiagnostics(safe *diagnostics.SafeExecutor, dump *diagnostics.CrashDumpWriter) {
	b.safeExec = safe
	b.dumpWriter = dump
}

// noteStep records which session and step the next command runs for, so a
// crash dump names the step it died in.
func (b *Base) noteStep(req core.StepRequest) {
	if b.dumpWriter != nil {
		b.dumpWriter.SetSessionContext(req.SessionID, req.ProcedureName, req.Step.Name)
	}
}

// Config returns the runner configuration.
func (b *Base) Config() Config {
	return b.config
}

// CommandResult holds the outcome of one CLI invocation.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// ExecuteCommand runs the configured CLI. If a LogCallback is set, stderr
// lines are streamed as they arrive. optTimeout overrides the config
// timeout; zero falls through to config, then to DefaultStepTimeout.
func (b *Base) ExecuteCommand(ctx context.Context, args []string, stdin, workDir string, optTimeout time.Duration) (*CommandResult, error) {
	timeout := optTimeout
	if timeout == 0 {
		timeout = b.config.Timeout
	}
	if timeout == 0 {
		timeout = DefaultStepTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if b.safeExec != nil {
		preflight := b.safeExec.RunPreflight()
		if !preflight.OK {
			return nil, core.ErrRunner(core.CodePreflightFailed,
				fmt.Sprintf("preflight check failed: %v", preflight.Errors))
		}
		for _, w := range preflight.Warnings {
			b.log.Warn("preflight warning before command execution", "warning", w)
		}
	}

	cmdPath := b.config.Path
	if cmdPath == "" {
		return nil, core.ErrConfig("runner path not configured")
	}

	// Multi-word paths (e.g. "gh copilot") fold their tail into args.
	cmdParts := strings.Fields(cmdPath)
	if len(cmdParts) > 1 {
		cmdPath = cmdParts[0]
		args = append(cmdParts[1:], args...)
	}

	// #nosec G204 -- command path and args come from validated config
	cmd := exec.CommandContext(ctx, cmdPath, args...)
	configureProcAttr(cmd)
	if workDir != "" {
		cmd.Dir = workDir
	} else if b.config.WorkDir != "" {
		cmd.Dir = b.config.WorkDir
	}

	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	var stderr bytes.Buffer
	var stderrPipe io.ReadCloser
	if b.logCallback != nil {
		pipe, err := cmd.StderrPipe()
		if err == nil {
			stderrPipe = pipe
		} else {
			cmd.Stderr = &stderr
		}
	} else {
		cmd.Stderr = &stderr
	}

	cmd.Env = append(os.Environ(),
		"SWITCHYARD_MANAGED=true",
		fmt.Sprintf("SWITCHYARD_RUNNER=%s", b.config.Name),
	)
	for k, v := range b.ExtraEnv {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	b.log.Info("executing runner command",
		"path", cmdPath,
		"args", args,
		"work_dir", cmd.Dir,
		"stdin_length", len(stdin),
		"timeout", timeout,
	)

	if b.dumpWriter != nil {
		b.dumpWriter.SetCurrentCommand(&diagnostics.CommandContext{
			Path:    cmdPath,
			Args:    args,
			WorkDir: cmd.Dir,
			Started: time.Now(),
		})
		defer b.dumpWriter.ClearCurrentCommand()
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		if stderrPipe != nil {
			_ = stderrPipe.Close()
		}
		return nil, fmt.Errorf("starting command: %w", err)
	}
	b.setActiveProcess(cmd)
	defer b.clearActiveProcess()
	if b.safeExec != nil {
		release := b.safeExec.TrackCommand()
		defer release()
	}

	var wg sync.WaitGroup
	if stderrPipe != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.streamStderr(stderrPipe, &stderr)
		}()
	}

	waitErr := b.wrapWait(cmd)
	wg.Wait()

	result := &CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if ctx.Err() == context.DeadlineExceeded {
		b.log.Error("runner command timed out",
			"duration", result.Duration,
			"timeout", timeout,
			"stderr_preview", truncate(result.Stderr, 1000),
		)
		return result, core.ErrTimeout(fmt.Sprintf("command timed out after %v", timeout))
	}
	if ctx.Err() == context.Canceled {
		b.log.Info("runner command cancelled", "duration", result.Duration)
		return result, core.ErrState("CANCELLED", "execution cancelled")
	}

	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			b.log.Error("runner command failed",
				"exit_code", result.ExitCode,
				"duration", result.Duration,
				"stderr", truncate(result.Stderr, 2000),
			)
			return result, b.classifyError(result)
		}
		return result, fmt.Errorf("executing command: %w", waitErr)
	}

	b.log.Info("runner command completed",
		"duration", result.Duration,
		"stdout_length", len(result.Stdout),
	)
	return result, nil
}

// wrapWait waits for the command, routing panics through the crash dump
// writer when one is configured.
func (b *Base) wrapWait(cmd *exec.Cmd) error {
	if b.safeExec != nil {
		return b.safeExec.WrapExecution(cmd.Wait)
	}
	return cmd.Wait()
}

// streamStderr mirrors stderr into the buffer while feeding the callback
// line by line. Scanner errors are ignored; the pipe closes abruptly on
// timeout.
func (b *Base) streamStderr(pipe io.ReadCloser, buf *bytes.Buffer) {
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteString(line)
		buf.WriteString("\n")
		if b.logCallback != nil {
			b.logCallback(line)
		}
	}
}

// classifyError converts a failed command into a domain error.
func (b *Base) classifyError(result *CommandResult) error {
	msg := strings.TrimSpace(result.Stderr)
	if msg == "" {
		msg = extractErrorFromOutput(result.Stdout)
	}
	if msg == "" {
		msg = "(no error message captured)"
	}

	lower := strings.ToLower(msg)
	switch {
	case containsAny(lower, []string{"rate limit", "too many requests", "429", "quota"}):
		return core.ErrRunner(core.CodeRateLimited, msg)
	case containsAny(lower, []string{"unauthorized", "authentication", "api key", "not logged in"}):
		err := core.ErrRunner(core.CodeAuthFailed, msg)
		err.Retryable = false
		return err
	case containsAny(lower, []string{"connection", "network", "unreachable"}):
		return core.ErrRunner(core.CodeNetworkFailure, msg)
	}
	return core.ErrRunner(core.CodeRunnerFailed,
		fmt.Sprintf("command failed with exit code %d: %s", result.ExitCode, msg))
}

// extractErrorFromOutput pulls an error message out of stdout. Agent CLIs
// report errors as JSON objects on stdout more often than on stderr.
func extractErrorFromOutput(stdout string) string {
	lines := strings.Split(stdout, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}

		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			continue
		}

		if errMsg, ok := obj["error"].(string); ok && errMsg != "" {
			return errMsg
		}
		if errObj, ok := obj["error"].(map[string]interface{}); ok {
			if m, ok := errObj["message"].(string); ok && m != "" {
				return m
			}
		}
		// claude CLI shapes: {"type":"result","subtype":"error",...} and
		// {"type":"error","error":"..."}
		if t, ok := obj["type"].(string); ok && (t == "error" || t == "result") {
			if errMsg, ok := obj["error"].(string); ok && errMsg != "" {
				return errMsg
			}
		}
	}

	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" && !strings.HasPrefix(line, "{") {
			return truncate(line, 200)
		}
	}
	return ""
}

// CheckAvailability verifies the CLI is installed.
func (b *Base) CheckAvailability(_ context.Context) error {
	cmdPath := b.config.Path
	if cmdPath == "" {
		return core.ErrConfig("runner path not configured")
	}
	cmdPath = strings.Fields(cmdPath)[0]
	if _, err := exec.LookPath(cmdPath); err != nil {
		return core.ErrNotFound("runner CLI", cmdPath).WithCause(err)
	}
	return nil
}

// Version runs the CLI's version flag and returns trimmed output.
func (b *Base) Version(ctx context.Context, versionArg string) (string, error) {
	result, err := b.ExecuteCommand(ctx, []string{versionArg}, "", "", 30*time.Second)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Stdout + result.Stderr), nil
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "... [truncated]"
}
