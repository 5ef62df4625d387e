// Package cli implements the CLI Agent: it drives an
// external CLI runner subprocess that emits newline-delimited JSON events,
// and supervises long-running server launches by promoting them to tracked
// background processes (internal/procmgr).
//
// This file holds the pure command-text analysis: explicit shell-command
// extraction, server-like/background-intent detection, port-candidate
// extraction, and cd-chain resolution.
package cli

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// launch is a resolved server-like command plus the working directory it
// should run from, as produced by inferServerLaunchFromToolCalls.
type launch struct {
	Command string
	Cwd     string
}

var (
	backtickRe = regexp.MustCompile("(?s)`([^`]+)`")
	prefixedRe = regexp.MustCompile(`(?im)(?:^|\n)\s*command\s*:\s*(.+)$`)
	runLineRe  = regexp.MustCompile(`(?is)^\s*(?:run|start|launch)\s+(.+)$`)

	stopByIDRe = regexp.MustCompile(`(?i)(?:stop|kill)\s+background\s+process\s+([a-zA-Z0-9_-]+)`)

	cdChainRe = regexp.MustCompile(`(?is)^\s*cd\s+([^;&|]+?)\s*&&\s*(.+)$`)
	cdOnlyRe  = regexp.MustCompile(`(?is)^\s*cd\s+(.+?)\s*$`)

	ampAmpRe = regexp.MustCompile(`\s*&&\s*`)

	hostPortRe = regexp.MustCompile(`(?i)(?:localhost|127\.0\.0\.1)\s*:\s*(\d{2,5})`)
	barePortRe = regexp.MustCompile(`(?i)\bport\s+(\d{2,5})\b`)
	flagPortRe = regexp.MustCompile(`(?i)--port(?:=|\s+)(\d{2,5})`)

	serverLikePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bnpm\s+run\s+(dev|start|serve)\b`),
		regexp.MustCompile(`(?i)\bnpm\s+(start|serve)\b`),
		regexp.MustCompile(`(?i)\bpnpm\s+(dev|start|serve)\b`),
		regexp.MustCompile(`(?i)\byarn\s+(dev|start|serve)\b`),
		regexp.MustCompile(`(?i)\bnext\s+dev\b`),
		regexp.MustCompile(`(?i)\bvite\b`),
		regexp.MustCompile(`(?i)\bwebpack-dev-server\b`),
		regexp.MustCompile(`(?i)\buvicorn\b`),
		regexp.MustCompile(`(?i)\bflask\s+run\b`),
		regexp.MustCompile(`(?i)\bpython(?:3)?\s+-m\s+http\.server\b`),
		regexp.MustCompile(`(?i)\bnode\s+.*\b(server|dev)\b`),
		regexp.MustCompile(`(?i)\bgunicorn\b`),
	}

	backgroundIntentMarkers = []string{
		"localhost", "port ", "dev server", "web server", "api server",
		"keep running", "background", "until i stop",
	}

	serverIntentMarkers = []string{
		"localhost", "127.0.0.1", "local server", "dev server", "web server",
		"api server", "npm start", "npm run dev", "pnpm dev", "yarn dev",
		"uvicorn", "flask run",
	}

	setupMarkers = []string{
		"clone", "git ", "install", "dependency", "dependencies", "setup",
		"set up", "bootstrap", "scaffold", "build", "compile", "create",
		"download", "npm ci", "pip install", "pnpm install", "yarn install",
	}

	refusalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bi (?:am|do not have|don't have).{0,30}\b(?:ability|access|permission)\b`),
		regexp.MustCompile(`(?i)\bi cannot\b.{0,40}\b(?:run|execute|create|move|delete|modify)\b`),
		regexp.MustCompile(`(?i)\bi can (?:however )?provide (?:you )?with (?:the )?commands\b`),
		regexp.MustCompile(`(?i)\brun (?:the|this) command in your terminal\b`),
		regexp.MustCompile(`(?i)\bi(?:'m| am) unable to execute shell commands\b`),
	}
)

// extractExplicitShellCommand mirrors _extract_explicit_shell_command:
// a backticked command, then a `command:`-prefixed line, then a leading
// `run|start|launch <...>` whose remainder names a known runtime token.
func extractExplicitShellCommand(task string) (string, bool) {
	if task == "" {
		return "", false
	}
	if m := backtickRe.FindStringSubmatch(task); m != nil {
		if c := strings.TrimSpace(m[1]); c != "" {
			return c, true
		}
	}
	if m := prefixedRe.FindStringSubmatch(task); m != nil {
		if c := strings.TrimSpace(m[1]); c != "" {
			return c, true
		}
	}
	if m := runLineRe.FindStringSubmatch(strings.TrimSpace(task)); m != nil {
		candidate := strings.TrimSpace(m[1])
		for _, token := range []string{"npm ", "pnpm ", "yarn ", "python", "uvicorn", "node ", "flask"} {
			if strings.Contains(candidate, token) {
				return candidate, true
			}
		}
	}
	return "", false
}

func isServerLikeCommand(command string) bool {
	lower := strings.ToLower(command)
	for _, p := range serverLikePatterns {
		if p.MatchString(lower) {
			return true
		}
	}
	return false
}

func isBackgroundIntentTask(task, command string) bool {
	if isServerLikeCommand(command) {
		return true
	}
	lower := strings.ToLower(task)
	for _, m := range backgroundIntentMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func isServerIntentText(text string) bool {
	lower := strings.ToLower(text)
	if lower == "" {
		return false
	}
	for _, m := range serverIntentMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return isServerLikeCommand(lower)
}

// isQuickServerLaunchTask mirrors _is_quick_server_launch_task: true only
// for "start/run an existing local server" requests, not multi-step setup.
func isQuickServerLaunchTask(text string) bool {
	lower := strings.ToLower(text)
	if lower == "" {
		return false
	}
	for _, m := range setupMarkers {
		if strings.Contains(lower, m) {
			return false
		}
	}
	return isServerIntentText(lower)
}

func extractPortCandidates(text string) []int {
	seen := map[int]struct{}{}
	add := func(re *regexp.Regexp) {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			if n >= 1 && n <= 65535 {
				seen[n] = struct{}{}
			}
		}
	}
	add(hostPortRe)
	add(barePortRe)
	add(flagPortRe)

	ports := make([]int, 0, len(seen))
	for p := range seen {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	return ports
}

// resolveShellPath mirrors _resolve_shell_path: expand ~/env vars, then
// resolve relative to baseDir.
func resolveShellPath(pathExpr, baseDir string) string {
	trimmed := strings.Trim(strings.TrimSpace(pathExpr), `'"`)
	expanded := os.ExpandEnv(expandHome(trimmed))
	if filepath.IsAbs(expanded) {
		if abs, err := filepath.Abs(expanded); err == nil {
			return abs
		}
		return expanded
	}
	joined := filepath.Join(baseDir, expanded)
	if abs, err := filepath.Abs(joined); err == nil {
		return abs
	}
	return joined
}

func expandHome(p string) string {
	if p == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return p
	}
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}

// extractServerSubcommand mirrors _extract_server_subcommand: split on
// `&&`, return the last server-like segment.
func extractServerSubcommand(command string) string {
	parts := ampAmpRe.Split(command, -1)
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			segments = append(segments, t)
		}
	}
	for i := len(segments) - 1; i >= 0; i-- {
		if isServerLikeCommand(segments[i]) {
			return segments[i]
		}
	}
	return strings.TrimSpace(command)
}

func extractShellCommandFromToolCall(tc ToolCall) string {
	name := strings.ToLower(strings.TrimSpace(tc.ToolName))
	switch name {
	case "run_shell_command", "shell", "bash":
	default:
		return ""
	}
	for _, key := range []string{"command", "cmd", "script"} {
		if v, ok := tc.Params[key]; ok {
			if s, ok := v.(string); ok {
				if trimmed := strings.TrimSpace(s); trimmed != "" {
					return trimmed
				}
			}
		}
	}
	return ""
}

// inferServerLaunchFromToolCalls mirrors _infer_server_launch_from_tool_calls:
// walk the tool calls in order, tracking a rolling cwd across `cd` segments,
// and keep the last server-like command seen plus its resolved cwd.
func inferServerLaunchFromToolCalls(calls []ToolCall) (launch, bool) {
	currentDir, err := os.Getwd()
	if err != nil {
		currentDir = "."
	}

	var candidate *launch
	for _, tc := range calls {
		if tc.Status == "error" {
			continue
		}
		command := extractShellCommandFromToolCall(tc)
		if command == "" {
			continue
		}

		if m := cdChainRe.FindStringSubmatch(command); m != nil {
			cdTarget := strings.TrimSpace(m[1])
			remaining := strings.TrimSpace(m[2])
			currentDir = resolveShellPath(cdTarget, currentDir)
			if isServerLikeCommand(remaining) {
				candidate = &launch{Command: extractServerSubcommand(remaining), Cwd: currentDir}
			}
			continue
		}

		if m := cdOnlyRe.FindStringSubmatch(command); m != nil {
			currentDir = resolveShellPath(strings.TrimSpace(m[1]), currentDir)
			continue
		}

		if isServerLikeCommand(command) {
			candidate = &launch{Command: extractServerSubcommand(command), Cwd: currentDir}
		}
	}

	if candidate == nil {
		return launch{}, false
	}
	return *candidate, true
}

func isTimeoutErrorText(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "timed out") || strings.Contains(lower, "timeout")
}

func looksLikeExecutionRefusal(text string) bool {
	if text == "" {
		return false
	}
	for _, p := range refusalPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// prepareCLITask adds execution guidance so the underlying model performs
// actions rather than only describing commands (_prepare_cli_task).
func prepareCLITask(task string) string {
	instruction := "You are running inside Clovis with tool access enabled. " +
		"Execute the request directly using tools/shell commands instead of giving manual instructions. " +
		"Do not claim you cannot access the system. " +
		"If a command is blocked by policy or fails, report the exact command and exact error. " +
		"For long-running local servers, never run foreground. " +
		"Launch detached with nohup/background so it stays alive after this turn, " +
		"then verify localhost/port reachability before claiming success."
	return instruction + "\n\nTask:\n" + task
}

// prepareRetryTask mirrors _prepare_retry_task, used for the one
// execution-refusal retry.
func prepareRetryTask(task string) string {
	instruction := "Your previous response incorrectly refused execution. " +
		"You MUST execute the task now using tools (run_shell_command, file tools, etc.). " +
		"Do not provide a 'run this in terminal' suggestion. " +
		"Return what you executed and outcome."
	return instruction + "\n\nTask:\n" + task
}

func joinNonEmpty(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	return strings.Join(cleaned, " | ")
}
