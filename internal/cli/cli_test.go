package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"videobatch.dev/internal/process"
)

// resetGlobals resets package-level state between tests to avoid cross-test contamination.
func resetGlobals(t *testing.T) {
	t.Helper()
	oldConfig := globalConfig
	oldWorkingDir := globalWorkingDir
	oldRemote := globalRemote
	oldLogLevel := globalLogLevel
	t.Cleanup(func() {
		globalConfig = oldConfig
		globalWorkingDir = oldWorkingDir
		globalRemote = oldRemote
		globalLogLevel = oldLogLevel
	})
	globalConfig = ""
	globalWorkingDir = ""
	globalRemote = ""
	globalLogLevel = "error"
}

// runCLI executes the root command with args and returns stdout, stderr and
// the exit code Execute would report.
func runCLI(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	cmd := newRootCmd("test-version")
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	code := exitCode(cmd.Execute(), &stderr)
	return stdout.String(), stderr.String(), code
}

// workspace chdirs into a temp dir holding a settings file whose state
// lives inside it.
func workspace(t *testing.T, jobs string) string {
	t.Helper()
	dir := t.TempDir()
	content := "version: \"1.0\"\nstate_dir: state\nlog_level: error\n" +
		"runner:\n  temp_dir: " + filepath.ToSlash(t.TempDir()) + "\n"
	if jobs != "" {
		content += "jobs:\n" + jobs
	}
	if err := os.WriteFile(filepath.Join(dir, "videobatch.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
	return dir
}

func TestRootHelp(t *testing.T) {
	resetGlobals(t)
	out, _, code := runCLI(t, "--help")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}

	for _, sub := range []string{"tasks", "run", "exec", "batch", "history", "logs", "init", "serve"} {
		if !strings.Contains(out, sub) {
			t.Errorf("root --help output should mention %q subcommand", sub)
		}
	}
}

func TestSubcommandHelp(t *testing.T) {
	for _, sub := range []string{"tasks", "run", "exec", "batch", "history", "logs", "init", "serve"} {
		t.Run(sub, func(t *testing.T) {
			resetGlobals(t)
			if _, _, code := runCLI(t, sub, "--help"); code != 0 {
				t.Errorf("%s --help should exit 0, got %d", sub, code)
			}
		})
	}
}

func TestUnknownSubcommand(t *testing.T) {
	resetGlobals(t)
	_, stderr, code := runCLI(t, "transcode")
	if code == 0 {
		t.Error("unknown subcommand should fail")
	}
	if !strings.Contains(stderr, "unknown command") {
		t.Errorf("unexpected stderr %q", stderr)
	}
}

func TestPersistentFlags(t *testing.T) {
	cmd := newRootCmd("test-version")
	for _, name := range []string{"config", "working-dir", "remote", "log-level"} {
		if cmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("--%s should be a persistent flag on root", name)
		}
	}
	if f := cmd.PersistentFlags().ShorthandLookup("C"); f == nil || f.Name != "working-dir" {
		t.Error("-C should be shorthand for --working-dir")
	}
}

func TestConfigFlagBeforeSubcommandExecute(t *testing.T) {
	resetGlobals(t)
	t.Chdir(t.TempDir())

	_, stderr, code := runCLI(t, "--config=nonexistent.yaml", "tasks")
	if code == 0 {
		t.Error("expected failure for missing config file")
	}
	if globalConfig != "nonexistent.yaml" {
		t.Errorf("globalConfig = %q, want %q", globalConfig, "nonexistent.yaml")
	}
	if !strings.Contains(stderr, "nonexistent.yaml") {
		t.Errorf("error should name the missing file, got %q", stderr)
	}
}

func TestServeAddrDefault(t *testing.T) {
	cmd := newRootCmd("test-version")
	serve, _, err := cmd.Find([]string{"serve"})
	if err != nil {
		t.Fatal(err)
	}
	f := serve.Flags().Lookup("addr")
	if f == nil {
		t.Fatal("serve should have an --addr flag")
	}
	if f.DefValue != ":8080" {
		t.Errorf("--addr default = %q, want :8080", f.DefValue)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		want      int
		wantPrint bool
	}{
		{"nil", nil, 0, false},
		{"exit error", &exitError{code: 3}, 3, false},
		{"wrapped exit error", errors.Join(errors.New("ctx"), &exitError{code: 4}), 4, false},
		{"plain error", errors.New("boom"), 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if got := exitCode(tt.err, &buf); got != tt.want {
				t.Errorf("exitCode = %d, want %d", got, tt.want)
			}
			if printed := buf.Len() > 0; printed != tt.wantPrint {
				t.Errorf("printed = %v, want %v (%q)", printed, tt.wantPrint, buf.String())
			}
		})
	}
}

func TestTasksCommand(t *testing.T) {
	resetGlobals(t)
	workspace(t, "")

	out, _, code := runCLI(t, "tasks")
	if code != 0 {
		t.Fatalf("tasks exited %d", code)
	}
	for _, slug := range []string{"extract-audio-ffmpeg", "probe-media-ffprobe", "run-command", "sample-log-task"} {
		if !strings.Contains(out, slug) {
			t.Errorf("tasks output missing %q", slug)
		}
	}

	out, _, code = runCLI(t, "tasks", "--json")
	if code != 0 {
		t.Fatalf("tasks --json exited %d", code)
	}
	var listings []taskListing
	if err := json.Unmarshal([]byte(out), &listings); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(listings) != 4 {
		t.Errorf("expected 4 tasks, got %d", len(listings))
	}
}

func TestRunHistoryAndLogs(t *testing.T) {
	resetGlobals(t)
	workspace(t, "")

	out, _, code := runCLI(t, "run", "sample-log-task", "--input", "clip.mp4", "--set", "Message=from the cli", "--json")
	if code != 0 {
		t.Fatalf("run exited %d: %s", code, out)
	}

	var outcome struct {
		Input     string `json:"input"`
		RunID     string `json:"run_id"`
		SessionID string `json:"session_id"`
		Result    struct {
			Success bool `json:"success"`
		} `json:"result"`
	}
	if err := json.Unmarshal([]byte(out), &outcome); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if !outcome.Result.Success || outcome.RunID == "" || outcome.SessionID == "" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}

	out, _, code = runCLI(t, "history", "--json")
	if code != 0 {
		t.Fatalf("history exited %d", code)
	}
	var runs []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if len(runs) != 1 || runs[0].ID != outcome.RunID || runs[0].Name != "Sample Log Task" {
		t.Errorf("unexpected history %+v", runs)
	}

	out, _, code = runCLI(t, "logs", outcome.SessionID, "--filter", "from the cli")
	if code != 0 {
		t.Fatalf("logs exited %d", code)
	}
	if !strings.Contains(out, "from the cli") {
		t.Errorf("session log should contain the message, got %q", out)
	}

	out, _, code = runCLI(t, "logs", "Sample Log Task", "--lines", "1")
	if code != 0 {
		t.Fatalf("logs by name exited %d", code)
	}
	if strings.Count(strings.TrimSpace(out), "\n") != 0 {
		t.Errorf("expected a single line, got %q", out)
	}

	out, _, code = runCLI(t, "logs")
	if code != 0 || !strings.Contains(out, outcome.SessionID) {
		t.Errorf("session listing should include %s, got %q (exit %d)", outcome.SessionID, out, code)
	}
}

func TestRunUnknownTask(t *testing.T) {
	resetGlobals(t)
	workspace(t, "")

	_, stderr, code := runCLI(t, "run", "transcode")
	if code != 1 {
		t.Errorf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr, "not found") {
		t.Errorf("unexpected stderr %q", stderr)
	}
}

func TestRunInvalidAssignment(t *testing.T) {
	resetGlobals(t)
	workspace(t, "")

	if _, _, code := runCLI(t, "run", "sample-log-task", "--set", "novalue"); code != 1 {
		t.Errorf("expected exit 1 for malformed --set, got %d", code)
	}
}

func TestBatchCommand(t *testing.T) {
	resetGlobals(t)
	dir := workspace(t, `  log-clips:
    description: "log every clip"
    inputs: ["clips/*.mp4"]
    steps:
      - task: sample-log-task
  retired:
    description: "old job"
    disabled: true
    steps:
      - task: sample-log-task
`)
	if err := os.MkdirAll(filepath.Join(dir, "clips"), 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a.mp4", "b.mp4", "c.mp4"} {
		if err := os.WriteFile(filepath.Join(dir, "clips", name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	out, _, code := runCLI(t, "batch")
	if code != 0 {
		t.Fatalf("batch listing exited %d", code)
	}
	if !strings.Contains(out, "log-clips") || strings.Contains(out, "retired") {
		t.Errorf("unexpected job listing %q", out)
	}

	out, _, code = runCLI(t, "batch", "log-clips", "--json", "-p", "2")
	if code != 0 {
		t.Fatalf("batch exited %d", code)
	}
	var report struct {
		Succeeded int `json:"succeeded"`
		Failed    int `json:"failed"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if report.Succeeded != 3 || report.Failed != 0 {
		t.Errorf("unexpected report %+v", report)
	}

	if _, _, code := runCLI(t, "batch", "retired"); code != 1 {
		t.Errorf("disabled job should not run, got exit %d", code)
	}
}

func TestExecCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	resetGlobals(t)
	workspace(t, "")

	out, stderr, code := runCLI(t, "exec", "--", "/bin/sh", "-c", "echo hello; echo oops >&2; exit 3")
	if code != 3 {
		t.Errorf("expected exit 3, got %d", code)
	}
	if strings.TrimSpace(out) != "hello" {
		t.Errorf("stdout = %q", out)
	}
	if !strings.Contains(stderr, "oops") || !strings.Contains(stderr, "exit code 3") {
		t.Errorf("stderr = %q", stderr)
	}

	_, stderr, code = runCLI(t, "exec", "--timeout", "200ms", "--", "/bin/sh", "-c", "sleep 5")
	if code != 124 {
		t.Errorf("expected timeout exit code 124, got %d", code)
	}
	if !strings.Contains(stderr, "[TIMEOUT]") {
		t.Errorf("stderr should report the timeout, got %q", stderr)
	}

	if _, _, code := runCLI(t, "exec", "--", "definitely-not-a-real-binary"); code != 1 {
		t.Errorf("missing executable should exit 1, got %d", code)
	}
}

func TestShellExitCode(t *testing.T) {
	tests := []struct {
		name string
		res  process.Result
		want int
	}{
		{"natural failure", process.Result{ExitCode: 3}, 3},
		{"timed out", process.Result{ExitCode: process.ExitCodeKilled, TimedOut: true}, 124},
		{"timed out kill failed", process.Result{ExitCode: process.ExitCodeUnknown, TimedOut: true}, 124},
		{"cancelled", process.Result{ExitCode: process.ExitCodeKilled, Cancelled: true}, 130},
		{"launch failed", process.Result{ExitCode: process.ExitCodeLaunchFailed}, 1},
		{"unknown status", process.Result{ExitCode: process.ExitCodeUnknown}, 1},
		{"zero with error", process.Result{ExitCode: 0, Err: process.ErrStreamDrainTimeout}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shellExitCode(&tt.res); got != tt.want {
				t.Errorf("shellExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestInitCommand(t *testing.T) {
	resetGlobals(t)
	dir := t.TempDir()
	t.Chdir(dir)

	if _, _, code := runCLI(t, "init"); code != 0 {
		t.Fatalf("init exited %d", code)
	}
	if _, err := os.Stat(filepath.Join(dir, "videobatch.yaml")); err != nil {
		t.Fatalf("settings file not created: %v", err)
	}

	if _, stderr, code := runCLI(t, "init"); code != 1 || !strings.Contains(stderr, "already exists") {
		t.Errorf("second init should refuse to overwrite, got %d %q", code, stderr)
	}
	if _, _, code := runCLI(t, "init", "--force"); code != 0 {
		t.Errorf("init --force exited %d", code)
	}

	// the generated file must load
	if _, _, code := runCLI(t, "batch"); code != 0 {
		t.Errorf("batch listing with generated settings exited %d", code)
	}
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	printTable(&buf, []string{"A", "LONGER"}, [][]string{{"wide-cell", "x"}, {"b", "y"}})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", buf.String())
	}
	col := strings.Index(lines[1], "x")
	if col != len("wide-cell")+colGap || strings.Index(lines[2], "y") != col {
		t.Errorf("columns not aligned:\n%s", buf.String())
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name string
		ms   int
		want string
	}{
		{"milliseconds", 50, "50ms"},
		{"seconds", 2500, "2.5s"},
		{"minutes", 125000, "2m5s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := toDuration(tt.ms)
			got := formatDuration(d)
			if got != tt.want {
				t.Errorf("formatDuration(%v) = %q, want %q", d, got, tt.want)
			}
		})
	}
}

func toDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
