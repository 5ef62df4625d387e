package cli

import "testing"

func TestExtractExplicitShellCommand(t *testing.T) {
	cases := []struct {
		name string
		task string
		want string
		ok   bool
	}{
		{"backtick", "please run `npm run dev` now", "npm run dev", true},
		{"command prefix", "do this:\ncommand: python -m http.server 8000", "python -m http.server 8000", true},
		{"run line with runtime token", "run npm run dev in the repo", "npm run dev in the repo", true},
		{"run line without runtime token", "run to the store", "", false},
		{"no match", "summarize this page", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := extractExplicitShellCommand(tc.task)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestIsServerLikeCommand(t *testing.T) {
	yes := []string{
		"npm run dev", "npm start", "pnpm dev", "yarn serve",
		"next dev", "vite", "webpack-dev-server", "uvicorn main:app",
		"flask run", "python -m http.server", "python3 -m http.server",
		"node server.js", "node app-dev.js", "gunicorn app:app",
	}
	for _, c := range yes {
		if !isServerLikeCommand(c) {
			t.Errorf("expected %q to be server-like", c)
		}
	}

	no := []string{"ls -la", "git clone repo", "npm install", "cat file.txt"}
	for _, c := range no {
		if isServerLikeCommand(c) {
			t.Errorf("expected %q not to be server-like", c)
		}
	}
}

func TestIsQuickServerLaunchTask(t *testing.T) {
	if !isQuickServerLaunchTask("start the dev server on localhost") {
		t.Error("expected quick launch for plain start request")
	}
	if isQuickServerLaunchTask("clone the repo and npm install then start the dev server") {
		t.Error("setup markers should disqualify quick launch")
	}
	if isQuickServerLaunchTask("summarize this document") {
		t.Error("unrelated task should not be a quick launch")
	}
}

func TestExtractPortCandidates(t *testing.T) {
	got := extractPortCandidates("visit localhost:3000 or 127.0.0.1:8080, port 9000, --port=4000")
	want := []int{3000, 4000, 8080, 9000}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestExtractPortCandidates_OutOfRangeIgnored(t *testing.T) {
	got := extractPortCandidates("port 99999 and port 0")
	if len(got) != 0 {
		t.Fatalf("expected no ports, got %v", got)
	}
}

func TestInferServerLaunchFromToolCalls_CdChain(t *testing.T) {
	calls := []ToolCall{
		{
			ToolName: "run_shell_command",
			Params:   map[string]any{"command": "cd demo && npm run dev"},
		},
	}
	launch, ok := inferServerLaunchFromToolCalls(calls)
	if !ok {
		t.Fatal("expected a launch candidate")
	}
	if launch.Command != "npm run dev" {
		t.Fatalf("got command %q", launch.Command)
	}
	if launch.Cwd == "" {
		t.Fatal("expected resolved cwd")
	}
}

func TestInferServerLaunchFromToolCalls_IgnoresErrorCalls(t *testing.T) {
	calls := []ToolCall{
		{ToolName: "run_shell_command", Status: "error", Params: map[string]any{"command": "npm run dev"}},
	}
	_, ok := inferServerLaunchFromToolCalls(calls)
	if ok {
		t.Fatal("expected no launch candidate from an errored tool call")
	}
}

func TestInferServerLaunchFromToolCalls_NonShellToolIgnored(t *testing.T) {
	calls := []ToolCall{
		{ToolName: "read_file", Params: map[string]any{"path": "npm run dev"}},
	}
	_, ok := inferServerLaunchFromToolCalls(calls)
	if ok {
		t.Fatal("expected non-shell tool calls to be ignored")
	}
}

func TestLooksLikeExecutionRefusal(t *testing.T) {
	if !looksLikeExecutionRefusal("I cannot run that command for you.") {
		t.Error("expected refusal pattern to match")
	}
	if !looksLikeExecutionRefusal("Please run this command in your terminal.") {
		t.Error("expected refusal pattern to match")
	}
	if looksLikeExecutionRefusal("Command executed successfully.") {
		t.Error("expected success text not to match refusal pattern")
	}
}

func TestIsTimeoutErrorText(t *testing.T) {
	if !isTimeoutErrorText("CLI task timed out after 3 seconds") {
		t.Error("expected timeout text to match")
	}
	if isTimeoutErrorText("permission denied") {
		t.Error("expected non-timeout text not to match")
	}
}
