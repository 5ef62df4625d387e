package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// ToolCall is one tool invocation surfaced by the CLI runner's event
// stream, matched to its eventual result by tool_id.
type ToolCall struct {
	ToolID   string
	ToolName string
	Params   map[string]any
	Status   string
	Result   string
	Err      string
}

// RunResult is the structured outcome of one CLI runner invocation.
type RunResult struct {
	Success   bool
	Output    string
	Error     string
	ToolCalls []ToolCall
}

// Runner executes one CLI-runner invocation and returns its structured
// result, reporting incremental status text through onStatus as stream
// events arrive. Concrete implementations spawn the external subprocess;
// tests substitute a deterministic stub.
type Runner interface {
	Run(ctx context.Context, task string, timeout time.Duration, onStatus func(string)) (RunResult, error)
}

// processRunner is the real Runner: it spawns the external cli-runner
// subprocess and parses its
// newline-delimited JSON event stream.
type processRunner struct {
	nodeBin      string
	outputFormat string
	buildArgs    func(task string) []string
	buildEnv     func() ([]string, error)
}

func (r *processRunner) Run(ctx context.Context, task string, timeout time.Duration, onStatus func(string)) (RunResult, error) {
	env, err := r.buildEnv()
	if err != nil {
		return RunResult{}, err
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.nodeBin, r.buildArgs(task)...)
	cmd.Env = append(os.Environ(), env...)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return RunResult{}, err
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return RunResult{}, err
	}

	if err := cmd.Start(); err != nil {
		return RunResult{}, fmt.Errorf("start cli runner: %w", err)
	}

	var (
		outLines []string
		errLines []string
		wg       sync.WaitGroup
	)
	toolByID := map[string]string{}

	wg.Add(2)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdoutPipe)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			outLines = append(outLines, line)
			if onStatus == nil {
				continue
			}
			var event map[string]any
			if err := json.Unmarshal([]byte(line), &event); err != nil {
				continue
			}
			if status := statusFromStreamEvent(event, toolByID); status != "" {
				onStatus(status)
			}
		}
	}()
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderrPipe)
		for scanner.Scan() {
			errLines = append(errLines, scanner.Text())
		}
	}()
	wg.Wait()

	waitErr := cmd.Wait()
	timedOut := runCtx.Err() == context.DeadlineExceeded

	stdout := strings.Join(outLines, "\n")
	stderr := strings.Join(errLines, "\n")

	var result RunResult
	switch r.outputFormat {
	case "stream-json":
		result = parseStreamJSON(stdout, stderr, waitErr)
	case "json":
		result = parseJSONOutput(stdout, stderr, waitErr)
	default:
		result = RunResult{Success: waitErr == nil, Output: stdout}
		if waitErr != nil {
			result.Error = stderr
		}
	}

	if timedOut {
		result.Success = false
		result.Error = joinNonEmpty(result.Error, fmt.Sprintf("CLI task timed out after %d seconds", int(timeout.Seconds())))
	}
	return result, nil
}

// parseStreamJSON parses stream-json format output: newline-delimited JSON
// events.
func parseStreamJSON(stdout, stderr string, waitErr error) RunResult {
	var (
		outputParts []string
		toolCalls   []ToolCall
		errMsg      string
	)
	byID := map[string]int{}

	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		if line == "" {
			continue
		}
		var event map[string]any
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}

		switch event["type"] {
		case "message":
			if event["role"] == "assistant" {
				if content, ok := event["content"].(string); ok && content != "" {
					outputParts = append(outputParts, content)
				}
			}
		case "tool_use":
			tc := ToolCall{
				ToolID:   stringField(event, "tool_id"),
				ToolName: stringField(event, "tool_name"),
			}
			if params, ok := event["parameters"].(map[string]any); ok {
				tc.Params = params
			}
			toolCalls = append(toolCalls, tc)
			byID[tc.ToolID] = len(toolCalls) - 1
		case "tool_result":
			toolID := stringField(event, "tool_id")
			if idx, ok := byID[toolID]; ok {
				toolCalls[idx].Result = stringField(event, "output")
				toolCalls[idx].Status = stringField(event, "status")
				toolCalls[idx].Err = errorField(event)
			}
		case "error":
			errMsg = stringField(event, "message")
			if errMsg == "" {
				errMsg = "Unknown error"
			}
		case "result":
			if event["status"] != "success" {
				errMsg = errorField(event)
				if errMsg == "" {
					errMsg = "Task failed"
				}
			}
		}
	}

	output := strings.Join(outputParts, "")
	success := waitErr == nil && errMsg == ""
	if errMsg == "" && waitErr != nil {
		errMsg = stderr
	}
	return RunResult{Success: success, Output: output, Error: errMsg, ToolCalls: toolCalls}
}

// parseJSONOutput parses the non-streaming single-JSON-object format.
func parseJSONOutput(stdout, stderr string, waitErr error) RunResult {
	var data map[string]any
	if err := json.Unmarshal([]byte(stdout), &data); err != nil {
		result := RunResult{Success: waitErr == nil, Output: stdout}
		if waitErr != nil {
			result.Error = stderr
		}
		return result
	}
	output := stdout
	if resp, ok := data["response"].(string); ok {
		output = resp
	}
	return RunResult{
		Success: waitErr == nil,
		Output:  output,
		Error:   stringField(data, "error"),
	}
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func errorField(m map[string]any) string {
	v, ok := m["error"]
	if !ok {
		return ""
	}
	switch e := v.(type) {
	case string:
		return e
	case map[string]any:
		return stringField(e, "message")
	default:
		return ""
	}
}

// safePreview mirrors _safe_preview: collapse whitespace, clip to max_len.
func safePreview(value any, maxLen int) string {
	if value == nil {
		return ""
	}
	text := strings.Join(strings.Fields(fmt.Sprint(value)), " ")
	if len(text) > maxLen {
		if maxLen > 3 {
			return text[:maxLen-3] + "..."
		}
		return text[:maxLen]
	}
	return text
}

// formatToolStatus mirrors _format_tool_status.
func formatToolStatus(toolName string, params map[string]any) string {
	name := strings.TrimSpace(toolName)
	if name == "" {
		name = "tool"
	}
	friendly := strings.ReplaceAll(name, "_", " ")

	switch name {
	case "run_shell_command", "shell", "bash":
		cmd := safePreview(firstNonNil(params, "command", "cmd", "script"), 72)
		if cmd != "" {
			return "Running command: " + cmd
		}
		return "Running shell command..."
	case "read_file", "read_many_files":
		path := safePreview(firstNonNil(params, "file_path", "path"), 80)
		if path != "" {
			return "Reading file: " + path
		}
		return "Reading files..."
	case "write_file", "edit":
		path := safePreview(firstNonNil(params, "file_path", "path"), 80)
		if path != "" {
			return "Updating file: " + path
		}
		return "Updating files..."
	case "ls", "glob", "grep", "ripgrep":
		path := safePreview(firstNonNil(params, "path", "query"), 80)
		if path != "" {
			return titleCase(friendly) + ": " + path
		}
		return titleCase(friendly) + "..."
	default:
		return "Using " + friendly + "..."
	}
}

func firstNonNil(params map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := params[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// statusFromStreamEvent mirrors _status_from_stream_event: turns one raw
// stream-json event into a human-readable status line, or "" if the event
// type carries no user-facing status.
func statusFromStreamEvent(event map[string]any, toolByID map[string]string) string {
	eventType, _ := event["type"].(string)
	if eventType == "" {
		return ""
	}

	switch eventType {
	case "init":
		return "CLI session started..."
	case "tool_use":
		toolName := stringField(event, "tool_name")
		if toolName == "" {
			toolName = "tool"
		}
		if toolID := stringField(event, "tool_id"); toolID != "" {
			toolByID[toolID] = toolName
		}
		params, _ := event["parameters"].(map[string]any)
		return formatToolStatus(toolName, params)
	case "tool_result":
		toolID := stringField(event, "tool_id")
		toolName := toolByID[toolID]
		if toolName == "" {
			toolName = "tool"
		}
		title := titleCase(strings.ReplaceAll(toolName, "_", " "))
		if event["status"] == "error" {
			errMsg := safePreview(errorFieldAny(event), 72)
			if errMsg != "" {
				return title + " failed: " + errMsg
			}
			return title + " failed."
		}
		return "Finished " + strings.ReplaceAll(toolName, "_", " ") + "."
	case "error":
		msg := safePreview(stringField(event, "message"), 96)
		if msg != "" {
			return "CLI error: " + msg
		}
		return "CLI error."
	case "result":
		if event["status"] == "success" {
			return "Finalizing CLI response..."
		}
		errMsg := safePreview(errorFieldAny(event), 80)
		if errMsg != "" {
			return "CLI task failed: " + errMsg
		}
		return "CLI task failed."
	default:
		return ""
	}
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if w == "" {
			continue
		}
		r := []rune(w)
		r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func errorFieldAny(event map[string]any) any {
	v, ok := event["error"]
	if !ok {
		return nil
	}
	if m, ok := v.(map[string]any); ok {
		return m["message"]
	}
	return v
}
