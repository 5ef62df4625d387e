package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/clovis-agent/clovis/internal/procmgr"
	"github.com/clovis-agent/clovis/internal/router"
)

// MinRunnerVersion is the lowest cli-runner version this agent supports;
// checked once before the first launch.
var MinRunnerVersion = semver.MustParse("1.0.0")

// checkRunnerVersion runs `<nodeBin> <runnerPath> --version` and rejects
// anything older than MinRunnerVersion.
func checkRunnerVersion(nodeBin, runnerPath string) error {
	out, err := exec.Command(nodeBin, runnerPath, "--version").Output()
	if err != nil {
		return fmt.Errorf("cli agent: runner version check failed: %w", err)
	}
	raw := strings.TrimSpace(string(out))
	if raw == "" {
		return fmt.Errorf("cli agent: runner reported no version")
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return fmt.Errorf("cli agent: runner reported unparseable version %q: %w", raw, err)
	}
	if v.LessThan(MinRunnerVersion) {
		return fmt.Errorf("cli agent: runner version %s is older than minimum supported %s", v, MinRunnerVersion)
	}
	return nil
}

// Source is the ChainStep/logging tag for this agent.
const Source = "cua_cli"

// Config configures the CLI Agent's external runner invocation.
type Config struct {
	// RunnerPath is the path to the bundled cli-runner entrypoint.
	RunnerPath string
	// NodeBin is the interpreter used to run RunnerPath. Defaults to "node".
	NodeBin string
	// APIKeyEnv names the environment variable holding the provider API
	// key; checked at construction.
	APIKeyEnv string
	// Model optionally overrides the runner's default model.
	Model string
	// OutputFormat defaults to "stream-json".
	OutputFormat string
	// ApprovalMode defaults to "yolo".
	ApprovalMode string
	// DefaultTimeout bounds one foreground run; defaults to 300s.
	DefaultTimeout time.Duration
	// WorkspaceDirs are passed as --include-directories. Defaults to
	// cwd, home, home/Desktop, /tmp (whichever exist).
	WorkspaceDirs []string
	// HomeDir is a writable CLI home directory.
	HomeDir string

	// PromotionPortTimeout bounds the health-check poll after promoting a
	// server-like command to background. Defaults to
	// 20s.
	PromotionPortTimeout time.Duration
	// ClaimValidationTimeout bounds the reachability check when the CLI's
	// own output claims a local server is running.
	// Defaults to 15s.
	ClaimValidationTimeout time.Duration
	// ReachableFastPathTimeout bounds the short poll used to treat an
	// already-reachable server as success after a timed-out run.
	// Defaults to 1.2s.
	ReachableFastPathTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.NodeBin == "" {
		c.NodeBin = "node"
	}
	if c.OutputFormat == "" {
		c.OutputFormat = "stream-json"
	}
	if c.ApprovalMode == "" {
		c.ApprovalMode = "yolo"
	}
	if c.DefaultTimeout == 0 {
		c.DefaultTimeout = 300 * time.Second
	}
	if len(c.WorkspaceDirs) == 0 {
		c.WorkspaceDirs = computeWorkspaceDirs()
	}
	if c.PromotionPortTimeout == 0 {
		c.PromotionPortTimeout = 20 * time.Second
	}
	if c.ClaimValidationTimeout == 0 {
		c.ClaimValidationTimeout = 15 * time.Second
	}
	if c.ReachableFastPathTimeout == 0 {
		c.ReachableFastPathTimeout = 1200 * time.Millisecond
	}
	return c
}

func computeWorkspaceDirs() []string {
	var candidates []string
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, cwd)
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, home, filepath.Join(home, "Desktop"))
	}
	candidates = append(candidates, "/tmp")

	seen := map[string]struct{}{}
	dirs := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c]; ok {
			continue
		}
		if _, err := os.Stat(c); err != nil {
			continue
		}
		seen[c] = struct{}{}
		dirs = append(dirs, c)
	}
	return dirs
}

// Agent implements router.Agent for the CLI capability.
type Agent struct {
	cfg    Config
	runner Runner
	procs  *procmgr.Manager
}

// New constructs a CLI Agent, failing fast if the runner bundle is
// missing or the API key environment variable is unset.
func New(cfg Config, procs *procmgr.Manager) (*Agent, error) {
	cfg = cfg.withDefaults()

	if cfg.RunnerPath == "" {
		return nil, fmt.Errorf("cli agent: RunnerPath is required")
	}
	if _, err := os.Stat(cfg.RunnerPath); err != nil {
		return nil, fmt.Errorf("cli agent: runner not found at %s: %w", cfg.RunnerPath, err)
	}
	if cfg.APIKeyEnv == "" {
		return nil, fmt.Errorf("cli agent: APIKeyEnv is required")
	}
	if os.Getenv(cfg.APIKeyEnv) == "" {
		return nil, fmt.Errorf("cli agent: %s not found in environment", cfg.APIKeyEnv)
	}
	if err := checkRunnerVersion(cfg.NodeBin, cfg.RunnerPath); err != nil {
		return nil, err
	}

	a := &Agent{cfg: cfg, procs: procs}
	a.runner = &processRunner{
		nodeBin:      cfg.NodeBin,
		outputFormat: cfg.OutputFormat,
		buildArgs:    a.buildArgs,
		buildEnv:     a.buildEnv,
	}
	return a, nil
}

// newAgent is the test-only constructor: it injects a Runner stub and
// skips the binary/API-key existence checks New performs.
func newAgent(cfg Config, procs *procmgr.Manager, runner Runner) *Agent {
	return &Agent{cfg: cfg.withDefaults(), procs: procs, runner: runner}
}

func (a *Agent) buildArgs(task string) []string {
	args := []string{
		a.cfg.RunnerPath,
		"--prompt", task,
		"--output-format", a.cfg.OutputFormat,
		"--approval-mode", a.cfg.ApprovalMode,
	}
	for _, dir := range a.cfg.WorkspaceDirs {
		args = append(args, "--include-directories", dir)
	}
	if a.cfg.Model != "" {
		args = append(args, "--model", a.cfg.Model)
	}
	return args
}

// buildEnv mirrors _build_cli_env: require the API key, then set the
// permissive-policy flag, trusted-folders config path, and writable CLI
// home directory so the subprocess does not downgrade its approval mode.
func (a *Agent) buildEnv() ([]string, error) {
	if os.Getenv(a.cfg.APIKeyEnv) == "" {
		return nil, fmt.Errorf("%s not found in environment", a.cfg.APIKeyEnv)
	}

	trustedPath, err := a.ensureTrustedFoldersConfig()
	if err != nil {
		return nil, err
	}
	homeDir, err := a.ensureCLIHome()
	if err != nil {
		return nil, err
	}

	return []string{
		"CLOVIS_CLI_PERMISSIVE_POLICY=1",
		"CLOVIS_CLI_TRUSTED_FOLDERS_PATH=" + trustedPath,
		"CLOVIS_CLI_HOME=" + homeDir,
	}, nil
}

// ensureTrustedFoldersConfig writes a trustedFolders.json marking the
// workspace dirs as trusted, so a non-interactive run doesn't get
// downgraded out of yolo approval mode (_ensure_trusted_folders_config).
func (a *Agent) ensureTrustedFoldersConfig() (string, error) {
	path := filepath.Join(os.TempDir(), "clovis_cli_trusted_folders.json")
	entries := map[string]string{}
	for _, dir := range a.cfg.WorkspaceDirs {
		entries[dir] = "TRUST_FOLDER"
	}
	if cwd, err := os.Getwd(); err == nil {
		entries[cwd] = "TRUST_FOLDER"
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write trusted folders config: %w", err)
	}
	return path, nil
}

func (a *Agent) ensureCLIHome() (string, error) {
	home := a.cfg.HomeDir
	if home == "" {
		home = filepath.Join(os.TempDir(), "clovis_cli_home")
	}
	if err := os.MkdirAll(home, 0o755); err != nil {
		return "", fmt.Errorf("create cli home: %w", err)
	}
	return home, nil
}

// Execute implements router.Agent.
func (a *Agent) Execute(ctx context.Context, task string) (router.AgentResult, error) {
	return a.ExecuteWithStatus(ctx, task, nil)
}

// ExecuteWithStatus runs the CLI task, forwarding incremental status lines
// through onStatus as the subprocess emits stream-json events. Wiring code
// type-asserts for this method to surface status bubbles for the CLI
// Agent; the status stream is optional.
func (a *Agent) ExecuteWithStatus(ctx context.Context, task string, onStatus func(string)) (router.AgentResult, error) {
	if result, handled := a.maybeHandleBackgroundManagement(task); handled {
		return result, nil
	}

	if cmd, ok := extractExplicitShellCommand(task); ok && isBackgroundIntentTask(task, cmd) {
		summary, err := a.startBackground(ctx, task, cmd, currentDir())
		if err != nil {
			return router.AgentResult{Success: false, Message: err.Error(), Source: Source}, nil
		}
		return router.AgentResult{Success: true, Message: summary, Source: Source}, nil
	}

	runTimeout := a.cfg.DefaultTimeout
	shortTimeoutApplied := false
	if isQuickServerLaunchTask(task) {
		const quick = 3 * time.Second
		if quick < runTimeout {
			runTimeout = quick
			shortTimeoutApplied = true
		}
	}

	preparedTask := prepareCLITask(task)
	result, err := a.runner.Run(ctx, preparedTask, runTimeout, onStatus)
	if err != nil {
		return router.AgentResult{Success: false, Message: err.Error(), Source: Source}, nil
	}

	if shortTimeoutApplied && isTimeoutErrorText(result.Error) && len(result.ToolCalls) == 0 {
		result, err = a.runner.Run(ctx, preparedTask, a.cfg.DefaultTimeout, onStatus)
		if err != nil {
			return router.AgentResult{Success: false, Message: err.Error(), Source: Source}, nil
		}
	}

	if result.Success && len(result.ToolCalls) == 0 && looksLikeExecutionRefusal(result.Output) {
		retryTask := prepareRetryTask(task)
		result, err = a.runner.Run(ctx, retryTask, runTimeout, onStatus)
		if err != nil {
			return router.AgentResult{Success: false, Message: err.Error(), Source: Source}, nil
		}
	}

	if len(result.ToolCalls) > 0 {
		if promoted, ok := a.maybePromoteFromToolCalls(ctx, task, result); ok {
			return promoted, nil
		}
	}

	if claimErr := a.validateLocalServerClaim(ctx, result.Output); claimErr != "" {
		if len(result.ToolCalls) > 0 {
			if promoted, ok := a.maybePromoteFromToolCalls(ctx, task, result); ok {
				return promoted, nil
			}
		}
		return router.AgentResult{Success: false, Message: claimErr, Source: Source}, nil
	}

	msg := result.Output
	if !result.Success {
		msg = joinNonEmpty(result.Output, result.Error)
	}
	return router.AgentResult{Success: result.Success, Message: msg, Source: Source}, nil
}

// maybeHandleBackgroundManagement recognizes the three textual management
// shortcuts before any model call.
func (a *Agent) maybeHandleBackgroundManagement(task string) (router.AgentResult, bool) {
	lower := strings.ToLower(strings.TrimSpace(task))

	if strings.Contains(lower, "list background process") || strings.Contains(lower, "show background process") {
		rows := a.procs.List()
		if len(rows) == 0 {
			return router.AgentResult{Success: true, Message: "No managed background processes.", Source: Source}, true
		}
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			port := "-"
			if row.ActivePort != 0 {
				port = strconv.Itoa(row.ActivePort)
			}
			lines = append(lines, fmt.Sprintf("%s pid=%d port=%s uptime=%s cmd=%s", row.ID, row.PID, port, row.Uptime(), row.Command))
		}
		return router.AgentResult{Success: true, Message: "Managed background processes:\n" + strings.Join(lines, "\n"), Source: Source}, true
	}

	if strings.Contains(lower, "stop all background process") || strings.Contains(lower, "kill all background process") {
		count := a.procs.StopAll()
		return router.AgentResult{Success: true, Message: fmt.Sprintf("Stopped %d background process(es).", count), Source: Source}, true
	}

	if m := stopByIDRe.FindStringSubmatch(task); m != nil {
		id := m[1]
		if err := a.procs.Stop(id); err != nil {
			return router.AgentResult{Success: false, Message: fmt.Sprintf("No background process found: %s", id), Source: Source}, true
		}
		return router.AgentResult{Success: true, Message: fmt.Sprintf("Stopped background process %s.", id), Source: Source}, true
	}

	return router.AgentResult{}, false
}

// maybePromoteFromToolCalls mirrors
// _maybe_promote_server_launch_from_tool_calls: if the CLI's tool calls
// reveal a server-like launch, either confirm it is already reachable
// (turning a timed-out run into success) or promote it to a tracked
// background process.
func (a *Agent) maybePromoteFromToolCalls(ctx context.Context, task string, result RunResult) (router.AgentResult, bool) {
	found, ok := inferServerLaunchFromToolCalls(result.ToolCalls)
	if !ok {
		return router.AgentResult{}, false
	}

	combined := strings.Join([]string{task, result.Output, found.Command}, "\n")
	if ports := extractPortCandidates(combined); len(ports) > 0 {
		if opened, reachable := procmgr.WaitForPort(ctx, ports, a.cfg.ReachableFastPathTimeout); reachable {
			if isTimeoutErrorText(result.Error) {
				return router.AgentResult{
					Success: true,
					Message: joinNonEmpty(result.Output, fmt.Sprintf("Local server is reachable on http://127.0.0.1:%d.", opened)),
					Source:  Source,
				}, true
			}
			return router.AgentResult{}, false
		}
	}

	summary, err := a.startBackground(ctx, task, found.Command, found.Cwd)
	if err != nil {
		return router.AgentResult{}, false
	}
	return router.AgentResult{
		Success: true,
		Message: joinNonEmpty(result.Output, summary),
		Source:  Source,
	}, true
}

// startBackground promotes a server-like command to a tracked background
// process, health-checking any ports the task/command mentioned for up to
// 20s.
func (a *Agent) startBackground(ctx context.Context, task, command, cwd string) (string, error) {
	env, err := a.buildEnv()
	if err != nil {
		return "", err
	}

	proc, err := a.procs.Start(command, cwd, env)
	if err != nil {
		return "", err
	}

	parts := []string{
		fmt.Sprintf("Started background process %s", proc.ID),
		fmt.Sprintf("(pid %d)", proc.PID),
		fmt.Sprintf("command: %s", command),
		fmt.Sprintf("log: %s", proc.LogPath),
	}

	ports := extractPortCandidates(task + "\n" + command)
	if len(ports) > 0 {
		a.procs.SetPorts(proc.ID, ports)
		if opened, ok := procmgr.WaitForPort(ctx, ports, a.cfg.PromotionPortTimeout); ok {
			a.procs.SetActivePort(proc.ID, opened)
			parts = append(parts, fmt.Sprintf("verified on http://127.0.0.1:%d", opened))
		} else {
			parts = append(parts, fmt.Sprintf("expected ports: %v", ports))
			parts = append(parts, "health-check did not confirm readiness yet")
		}
	}

	return strings.Join(parts, " | "), nil
}

// validateLocalServerClaim mirrors _validate_local_server_claim: if the
// CLI's textual output claims a local server is running, confirm at least
// one claimed port is reachable within 15s.
func (a *Agent) validateLocalServerClaim(ctx context.Context, output string) string {
	if output == "" {
		return ""
	}
	lower := strings.ToLower(output)
	hasLocalhostHint := strings.Contains(lower, "localhost") || strings.Contains(lower, "127.0.0.1") || strings.Contains(lower, "port ")
	hasRunningHint := false
	for _, word := range []string{"running", "started", "listening", "serving", "available at"} {
		if strings.Contains(lower, word) {
			hasRunningHint = true
			break
		}
	}
	if !hasLocalhostHint || !hasRunningHint {
		return ""
	}

	ports := extractPortCandidates(output)
	if len(ports) == 0 {
		return ""
	}
	if _, ok := procmgr.WaitForPort(ctx, ports, a.cfg.ClaimValidationTimeout); ok {
		return ""
	}
	return fmt.Sprintf(
		"Task reported a local server as running, but none of the claimed ports are reachable: %v. The process likely exited or never started successfully.",
		ports,
	)
}

func currentDir() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}
