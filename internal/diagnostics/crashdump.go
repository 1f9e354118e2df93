package diagnostics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/switchyard-dev/switchyard/internal/logging"
)

// CrashDump is the JSON document written when a panic escapes execution.
type CrashDump struct {
	Timestamp time.Time `json:"timestamp"`
	ProcessID int       `json:"process_id"`
	GoVersion string    `json:"go_version"`
	GOOS      string    `json:"goos"`
	GOARCH    string    `json:"goarch"`

	PanicValue string `json:"panic_value"`
	StackTrace string `json:"stack_trace,omitempty"`

	ResourceState   ResourceSnapshot   `json:"resource_state"`
	ResourceHistory []ResourceSnapshot `json:"resource_history,omitempty"`

	// Session context at the time of the crash.
	SessionID string   `json:"session_id,omitempty"`
	Procedure string   `json:"procedure,omitempty"`
	Step      string   `json:"step,omitempty"`
	CmdPath   string   `json:"cmd_path,omitempty"`
	CmdArgs   []string `json:"cmd_args,omitempty"`
	WorkDir   string   `json:"work_dir,omitempty"`

	RedactedEnv map[string]string `json:"redacted_env,omitempty"`
}

// CommandContext describes the runner subprocess in flight.
type CommandContext struct {
	Path    string
	Args    []string
	WorkDir string
	Started time.Time
}

// DumpConfig configures crash dump persistence.
type DumpConfig struct {
	// Dir receives dump files. Defaults to .switchyard/crashdumps.
	Dir string
	// MaxFiles bounds retained dumps; oldest are removed first.
	MaxFiles int
	// IncludeStack adds the full goroutine stack to the dump.
	IncludeStack bool
	// IncludeEnv adds the process environment with secrets redacted.
	IncludeEnv bool
}

// CrashDumpWriter persists crash dumps with current session context.
type CrashDumpWriter struct {
	cfg     DumpConfig
	log     *logging.Logger
	monitor *ResourceMonitor

	sessionID atomic.Value // string
	procedure atomic.Value // string
	step      atomic.Value // string
	cmd       atomic.Value // *CommandContext

	mu sync.Mutex
}

// NewCrashDumpWriter builds a writer. monitor may be nil; dumps then carry
// only a point-in-time snapshot taken at crash time.
func NewCrashDumpWriter(cfg DumpConfig, log *logging.Logger, monitor *ResourceMonitor) *CrashDumpWriter {
	if cfg.Dir == "" {
		cfg.Dir = filepath.Join(".switchyard", "crashdumps")
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 10
	}
	if log == nil {
		log = logging.NewNop()
	}
	w := &CrashDumpWriter{
		cfg:     cfg,
		log:     log.WithComponent("crashdump"),
		monitor: monitor,
	}
	w.sessionID.Store("")
	w.procedure.Store("")
	w.step.Store("")
	w.cmd.Store((*CommandContext)(nil))
	return w
}

// SetSessionContext records which session, procedure, and step are active,
// so a crash dump names the step it died in.
func (w *CrashDumpWriter) SetSessionContext(sessionID, procedure, step string) {
	w.sessionID.Store(sessionID)
	w.procedure.Store(procedure)
	w.step.Store(step)
}

// SetCurrentCommand records the runner subprocess about to run.
func (w *CrashDumpWriter) SetCurrentCommand(ctx *CommandContext) {
	w.cmd.Store(ctx)
}

// ClearCurrentCommand clears the subprocess context after it exits.
func (w *CrashDumpWriter) ClearCurrentCommand() {
	w.cmd.Store((*CommandContext)(nil))
}

// WriteCrashDump persists a dump for the given panic value and returns the
// file path.
func (w *CrashDumpWriter) WriteCrashDump(panicValue any) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	dump := CrashDump{
		Timestamp:  time.Now().UTC(),
		ProcessID:  os.Getpid(),
		GoVersion:  runtime.Version(),
		GOOS:       runtime.GOOS,
		GOARCH:     runtime.GOARCH,
		PanicValue: fmt.Sprintf("%v", panicValue),
	}

	if w.cfg.IncludeStack {
		dump.StackTrace = string(debug.Stack())
	}

	if w.monitor != nil {
		dump.ResourceState = w.monitor.TakeSnapshot()
		dump.ResourceHistory = w.monitor.History()
	}

	dump.SessionID, _ = w.sessionID.Load().(string)
	dump.Procedure, _ = w.procedure.Load().(string)
	dump.Step, _ = w.step.Load().(string)
	if cmd, ok := w.cmd.Load().(*CommandContext); ok && cmd != nil {
		dump.CmdPath = cmd.Path
		dump.CmdArgs = cmd.Args
		dump.WorkDir = cmd.WorkDir
	}

	if w.cfg.IncludeEnv {
		dump.RedactedEnv = redactEnvironment(os.Environ())
	}

	if err := os.MkdirAll(w.cfg.Dir, 0o750); err != nil {
		return "", fmt.Errorf("creating crash dump dir: %w", err)
	}

	path := filepath.Join(w.cfg.Dir,
		fmt.Sprintf("crash-%s.json", dump.Timestamp.Format("2006-01-02T15-04-05")))

	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling crash dump: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("writing crash dump: %w", err)
	}

	w.pruneOldDumps()
	return path, nil
}

// RecoverAndDump writes a dump and re-panics. Deferred at process top level
// so the crash still reaches the OS after being recorded.
func (w *CrashDumpWriter) RecoverAndDump() {
	r := recover()
	if r == nil {
		return
	}
	path, err := w.WriteCrashDump(r)
	if err != nil {
		w.log.Error("failed to write crash dump", "error", err, "panic", r)
	} else {
		w.log.Error("crash dump written", "path", path, "panic", r)
	}
	panic(r)
}

// RecoverAndReturn writes a dump and converts the panic into an error on
// errPtr, letting the caller fail one step instead of the whole process.
func (w *CrashDumpWriter) RecoverAndReturn(errPtr *error) {
	r := recover()
	if r == nil {
		return
	}
	path, err := w.WriteCrashDump(r)
	if err != nil {
		w.log.Error("failed to write crash dump", "error", err, "panic", r)
		*errPtr = fmt.Errorf("execution panicked: %v", r)
		return
	}
	w.log.Error("crash dump written after panic", "path", path, "panic", r)
	*errPtr = fmt.Errorf("execution panicked: %v (dump: %s)", r, path)
}

func (w *CrashDumpWriter) pruneOldDumps() {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return
	}

	var dumps []os.DirEntry
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "crash-") && strings.HasSuffix(e.Name(), ".json") {
			dumps = append(dumps, e)
		}
	}

	sort.Slice(dumps, func(i, j int) bool {
		ii, errI := dumps[i].Info()
		ij, errJ := dumps[j].Info()
		if errI != nil || errJ != nil {
			return false
		}
		return ii.ModTime().Before(ij.ModTime())
	})

	for len(dumps) > w.cfg.MaxFiles {
		path := filepath.Join(w.cfg.Dir, dumps[0].Name())
		if err := os.Remove(path); err != nil {
			w.log.Warn("failed to remove old crash dump", "path", path, "error", err)
		}
		dumps = dumps[1:]
	}
}

var sensitiveEnvSubstrings = []string{
	"TOKEN", "KEY", "SECRET", "PASSWORD", "CREDENTIAL", "AUTH", "PRIVATE",
}

// redactEnvironment masks values of variables whose names suggest secrets.
func redactEnvironment(environ []string) map[string]string {
	out := make(map[string]string, len(environ))
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		upper := strings.ToUpper(key)
		redacted := false
		for _, s := range sensitiveEnvSubstrings {
			if strings.Contains(upper, s) {
				redacted = true
				break
			}
		}
		if redacted {
			out[key] = "[REDACTED]"
		} else {
			out[key] = value
		}
	}
	return out
}

// LoadLatestCrashDump reads the newest dump in dir. Doctor uses it to
// surface the last crash, if any.
func LoadLatestCrashDump(dir string) (*CrashDump, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading crash dump dir: %w", err)
	}

	var newest os.DirEntry
	var newestTime time.Time
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "crash-") || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == nil || info.ModTime().After(newestTime) {
			newest = e
			newestTime = info.ModTime()
		}
	}
	if newest == nil {
		return nil, fmt.Errorf("no crash dumps found")
	}

	data, err := os.ReadFile(filepath.Join(dir, newest.Name()))
	if err != nil {
		return nil, fmt.Errorf("reading crash dump: %w", err)
	}

	var dump CrashDump
	if err := json.Unmarshal(data, &dump); err != nil {
		return nil, fmt.Errorf("parsing crash dump: %w", err)
	}
	return &dump, nil
}
