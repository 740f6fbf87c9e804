package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const helperEnv = "VIDEOBATCH_HELPER_PROCESS"

// TestMain lets the test binary double as the child process under test.
func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "1" {
		os.Exit(helperMain(os.Args[1:]))
	}
	os.Exit(m.Run())
}

func helperMain(args []string) int {
	if len(args) == 0 {
		return 2
	}
	switch args[0] {
	case "echo":
		time.Sleep(50 * time.Millisecond)
		for _, a := range args[1:] {
			fmt.Println(a)
		}
		return 0
	case "stderr":
		for _, a := range args[1:] {
			fmt.Fprintln(os.Stderr, a)
		}
		return 0
	case "exit":
		code, _ := strconv.Atoi(args[1])
		fmt.Println("exiting")
		return code
	case "sleep":
		d, _ := time.ParseDuration(args[1])
		fmt.Println("sleeping")
		time.Sleep(d)
		return 0
	case "flood":
		n, _ := strconv.Atoi(args[1])
		for i := 0; i < n; i++ {
			fmt.Fprintf(os.Stdout, "out %d\n", i)
			fmt.Fprintf(os.Stderr, "err %d\n", i)
		}
		return 0
	case "env":
		wd, _ := os.Getwd()
		fmt.Println(wd)
		fmt.Println(os.Getenv(args[1]))
		return 0
	case "spawn":
		// spawn <pidfile> detach|hold starts a sleeping grandchild. With
		// hold it inherits stdout and this process exits right away.
		exe, err := os.Executable()
		if err != nil {
			return 3
		}
		child := exec.Command(exe, "sleep", "30s")
		child.Env = os.Environ()
		if args[2] == "hold" {
			child.Stdout = os.Stdout
		}
		if err := child.Start(); err != nil {
			return 3
		}
		if err := os.WriteFile(args[1], []byte(strconv.Itoa(child.Process.Pid)), 0644); err != nil {
			return 3
		}
		fmt.Println("spawned")
		if args[2] == "hold" {
			return 0
		}
		time.Sleep(30 * time.Second)
		return 0
	case "crlf":
		os.Stdout.WriteString("\xef\xbb\xbfwindows\r\nno newline")
		return 0
	}
	return 2
}

func helperSpec(t *testing.T, args ...string) Spec {
	t.Helper()
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("failed to locate test binary: %v", err)
	}
	return Spec{
		Path: exe,
		Args: args,
		Env:  map[string]string{helperEnv: "1"},
	}
}

func newTestRunner(t *testing.T, opts ...Option) *Runner {
	t.Helper()
	base := []Option{WithTempDir(t.TempDir()), WithLogger(zerolog.Nop())}
	return NewRunner(append(base, opts...)...)
}

type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (l *lineRecorder) add(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, line)
}

func (l *lineRecorder) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

func TestRunEchoSuccess(t *testing.T) {
	runner := newTestRunner(t)
	var out, errOut lineRecorder

	spec := helperSpec(t, "echo", "alpha", "beta", "gamma")
	spec.Stdout = out.add
	spec.Stderr = errOut.add

	start := time.Now()
	res, err := runner.Run(context.Background(), spec)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("run took %s, expected under 2s", elapsed)
	}

	if res.ExitCode != 0 || !res.Success() || res.TimedOut || res.Cancelled {
		t.Fatalf("unexpected result: %+v (err=%v)", res, res.Err)
	}
	if res.PID == 0 {
		t.Error("expected PID to be recorded")
	}

	want := []string{"alpha", "beta", "gamma"}
	got := out.get()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("stdout lines = %v, want %v", got, want)
	}
	if len(errOut.get()) != 0 {
		t.Errorf("expected no stderr lines, got %v", errOut.get())
	}

	if content := readFile(t, res.StdoutPath); content != "alpha\nbeta\ngamma\n" {
		t.Errorf("stdout tee = %q", content)
	}
	if content := readFile(t, res.StderrPath); content != "" {
		t.Errorf("stderr tee = %q, want empty", content)
	}
}

func TestRunStderrTee(t *testing.T) {
	runner := newTestRunner(t)
	var errOut lineRecorder

	spec := helperSpec(t, "stderr", "warn one", "warn two")
	spec.Stderr = errOut.add

	res, err := runner.Run(context.Background(), spec)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !res.Success() {
		t.Fatalf("expected success, got %+v", res)
	}
	if got := strings.Join(errOut.get(), "\n") + "\n"; got != readFile(t, res.StderrPath) {
		t.Errorf("stderr tee %q does not match callback lines %q", readFile(t, res.StderrPath), got)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	runner := newTestRunner(t)

	res, err := runner.Run(context.Background(), helperSpec(t, "exit", "3"))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
	if res.Err != nil {
		t.Errorf("expected no error for a plain non-zero exit, got %v", res.Err)
	}
	if res.Success() {
		t.Error("expected Success() to be false")
	}
}

func TestRunTimeout(t *testing.T) {
	runner := newTestRunner(t)

	spec := helperSpec(t, "sleep", "30s")
	spec.Timeout = 100 * time.Millisecond

	start := time.Now()
	res, err := runner.Run(context.Background(), spec)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout run took %s", elapsed)
	}

	if !res.TimedOut {
		t.Error("expected TimedOut")
	}
	if res.Cancelled {
		t.Error("timeout must not be reported as cancellation")
	}
	if res.Success() {
		t.Error("expected Success() to be false")
	}
	if res.ExitCode != ExitCodeKilled {
		t.Errorf("exit code = %d, want %d (err=%v)", res.ExitCode, ExitCodeKilled, res.Err)
	}
	if isProcessAlive(res.PID) {
		t.Errorf("process %d still alive after timeout", res.PID)
	}
}

func TestRunCancel(t *testing.T) {
	runner := newTestRunner(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(100*time.Millisecond, cancel)

	res, err := runner.Run(ctx, helperSpec(t, "sleep", "30s"))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !res.Cancelled {
		t.Error("expected Cancelled")
	}
	if res.TimedOut {
		t.Error("cancellation must not be reported as timeout")
	}
	if res.Err != nil {
		t.Errorf("expected no error after a successful kill, got %v", res.Err)
	}
	if res.ExitCode != ExitCodeKilled {
		t.Errorf("exit code = %d, want %d", res.ExitCode, ExitCodeKilled)
	}
	if isProcessAlive(res.PID) {
		t.Errorf("process %d still alive after cancel", res.PID)
	}
}

func TestRunCancelBeatsLongTimeout(t *testing.T) {
	runner := newTestRunner(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	spec := helperSpec(t, "sleep", "30s")
	spec.Timeout = time.Minute

	res, err := runner.Run(ctx, spec)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	// A deadline on the caller's context is still the caller cancelling.
	if !res.Cancelled || res.TimedOut {
		t.Errorf("got Cancelled=%v TimedOut=%v, want true/false", res.Cancelled, res.TimedOut)
	}
}

func TestRunAlreadyCancelled(t *testing.T) {
	tempDir := t.TempDir()
	runner := NewRunner(WithTempDir(tempDir), WithLogger(zerolog.Nop()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := runner.Run(ctx, helperSpec(t, "echo", "never"))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !res.Cancelled || res.PID != 0 || res.ExitCode != ExitCodeLaunchFailed {
		t.Errorf("unexpected result for cancelled context: %+v", res)
	}

	entries, _ := os.ReadDir(tempDir)
	if len(entries) != 0 {
		t.Errorf("expected no tee files, found %d", len(entries))
	}
}

func TestRunPreconditions(t *testing.T) {
	tmpDir := t.TempDir()
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("failed to locate test binary: %v", err)
	}

	tests := []struct {
		name    string
		spec    Spec
		wantErr error
	}{
		{
			name:    "empty path",
			spec:    Spec{},
			wantErr: ErrExecutableNotFound,
		},
		{
			name:    "missing executable",
			spec:    Spec{Path: filepath.Join(tmpDir, "no-such-tool")},
			wantErr: ErrExecutableNotFound,
		},
		{
			name:    "directory as executable",
			spec:    Spec{Path: tmpDir},
			wantErr: ErrExecutableNotFound,
		},
		{
			name:    "bare name not on path",
			spec:    Spec{Path: "videobatch-no-such-tool"},
			wantErr: ErrExecutableNotFound,
		},
		{
			name:    "missing working directory",
			spec:    Spec{Path: exe, Dir: filepath.Join(tmpDir, "missing")},
			wantErr: ErrWorkingDirNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			teeDir := t.TempDir()
			runner := NewRunner(WithTempDir(teeDir), WithLogger(zerolog.Nop()))

			res, err := runner.Run(context.Background(), tt.spec)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if res != nil {
				t.Errorf("expected nil result, got %+v", res)
			}
			entries, _ := os.ReadDir(teeDir)
			if len(entries) != 0 {
				t.Errorf("expected no tee files, found %d", len(entries))
			}
		})
	}
}

func TestRunIdempotent(t *testing.T) {
	runner := newTestRunner(t)
	spec := helperSpec(t, "echo", "same")

	first, err := runner.Run(context.Background(), spec)
	if err != nil {
		t.Fatalf("first Run returned error: %v", err)
	}
	second, err := runner.Run(context.Background(), spec)
	if err != nil {
		t.Fatalf("second Run returned error: %v", err)
	}

	if first.ExitCode != second.ExitCode || first.Success() != second.Success() {
		t.Errorf("runs differ: %+v vs %+v", first, second)
	}
	if first.StdoutPath == second.StdoutPath {
		t.Error("expected distinct temp tee paths per run")
	}
}

func TestRunCallerTeePaths(t *testing.T) {
	runner := newTestRunner(t)
	dir := filepath.Join(t.TempDir(), "nested", "logs")

	spec := helperSpec(t, "echo", "kept")
	spec.StdoutPath = filepath.Join(dir, "out.log")
	spec.StderrPath = filepath.Join(dir, "err.log")

	res, err := runner.Run(context.Background(), spec)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.StdoutPath != spec.StdoutPath || res.StderrPath != spec.StderrPath {
		t.Errorf("result paths = %q, %q", res.StdoutPath, res.StderrPath)
	}
	if content := readFile(t, spec.StdoutPath); content != "kept\n" {
		t.Errorf("stdout tee = %q", content)
	}
}

func TestRunTempPolicy(t *testing.T) {
	t.Run("retain", func(t *testing.T) {
		runner := newTestRunner(t)
		res, err := runner.Run(context.Background(), helperSpec(t, "echo", "x"))
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
		if _, err := os.Stat(res.StdoutPath); err != nil {
			t.Errorf("expected temp stdout file to remain: %v", err)
		}
	})

	t.Run("remove", func(t *testing.T) {
		tempDir := t.TempDir()
		runner := NewRunner(WithTempDir(tempDir), WithTempPolicy(RemoveTempFiles), WithLogger(zerolog.Nop()))

		callerPath := filepath.Join(t.TempDir(), "err.log")
		spec := helperSpec(t, "echo", "x")
		spec.StderrPath = callerPath

		res, err := runner.Run(context.Background(), spec)
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
		if res.StdoutPath != "" {
			t.Errorf("expected blank stdout path, got %q", res.StdoutPath)
		}
		if res.StderrPath != callerPath {
			t.Errorf("caller path must be kept, got %q", res.StderrPath)
		}
		if _, err := os.Stat(callerPath); err != nil {
			t.Errorf("caller tee file removed: %v", err)
		}
		entries, _ := os.ReadDir(tempDir)
		if len(entries) != 0 {
			t.Errorf("expected temp dir to be empty, found %d entries", len(entries))
		}
	})
}

func TestRunFloodBothStreams(t *testing.T) {
	runner := newTestRunner(t)
	var out, errOut lineRecorder

	const n = 5000
	spec := helperSpec(t, "flood", strconv.Itoa(n))
	spec.Stdout = out.add
	spec.Stderr = errOut.add
	spec.Timeout = 30 * time.Second

	res, err := runner.Run(context.Background(), spec)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !res.Success() {
		t.Fatalf("expected success, got %+v (err=%v)", res, res.Err)
	}

	for name, lines := range map[string][]string{"out": out.get(), "err": errOut.get()} {
		if len(lines) != n {
			t.Fatalf("%s: got %d lines, want %d", name, len(lines), n)
		}
		for i, line := range lines {
			if want := fmt.Sprintf("%s %d", name, i); line != want {
				t.Fatalf("%s line %d = %q, want %q", name, i, line, want)
			}
		}
	}

	if got := strings.Count(readFile(t, res.StdoutPath), "\n"); got != n {
		t.Errorf("stdout tee has %d lines, want %d", got, n)
	}
}

func TestRunCallbacksNeverOverlap(t *testing.T) {
	runner := newTestRunner(t)

	var active, maxActive int
	var mu sync.Mutex
	track := func(string) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()
		time.Sleep(time.Microsecond)
		mu.Lock()
		active--
		mu.Unlock()
	}

	spec := helperSpec(t, "flood", "200")
	spec.Stdout = track
	spec.Stderr = track

	if _, err := runner.Run(context.Background(), spec); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if maxActive != 1 {
		t.Errorf("callbacks overlapped: max concurrent = %d", maxActive)
	}
}

func TestRunCallbackPanic(t *testing.T) {
	runner := newTestRunner(t)

	spec := helperSpec(t, "echo", "boom", "after")
	spec.Stdout = func(line string) {
		if line == "boom" {
			panic("bad sink")
		}
	}

	res, err := runner.Run(context.Background(), spec)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", res.ExitCode)
	}
	if res.Err == nil || !strings.Contains(res.Err.Error(), "panicked") {
		t.Errorf("expected callback panic to be recorded, got %v", res.Err)
	}
	if content := readFile(t, res.StdoutPath); content != "boom\nafter\n" {
		t.Errorf("stdout tee = %q", content)
	}
}

func TestRunNoCallbacksAfterReturn(t *testing.T) {
	runner := newTestRunner(t, WithDrainGrace(200*time.Millisecond), WithKillGrace(100*time.Millisecond))

	var calls atomic.Int32
	var active atomic.Bool
	spec := helperSpec(t, "flood", "50")
	spec.Stdout = func(string) {
		active.Store(true)
		time.Sleep(100 * time.Millisecond)
		calls.Add(1)
		active.Store(false)
	}

	res, err := runner.Run(context.Background(), spec)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !errors.Is(res.Err, ErrStreamDrainTimeout) {
		t.Errorf("expected drain timeout with a slow callback, got %v", res.Err)
	}
	if active.Load() {
		t.Fatal("callback still running after Run returned")
	}

	n := calls.Load()
	if n >= 50 {
		t.Fatalf("all %d lines were delivered, the callback was not slow enough", n)
	}
	time.Sleep(500 * time.Millisecond)
	if got := calls.Load(); got != n {
		t.Errorf("callback ran %d more times after Run returned", got-n)
	}
}

func TestRunEnvAndDir(t *testing.T) {
	runner := newTestRunner(t)
	dir := t.TempDir()

	var out lineRecorder
	spec := helperSpec(t, "env", "VIDEOBATCH_TEST_VALUE")
	spec.Dir = dir
	spec.Env["VIDEOBATCH_TEST_VALUE"] = "from-spec"
	spec.Stdout = out.add

	res, err := runner.Run(context.Background(), spec)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !res.Success() {
		t.Fatalf("expected success, got %+v", res)
	}

	lines := out.get()
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %v", lines)
	}
	gotDir, _ := filepath.EvalSymlinks(lines[0])
	wantDir, _ := filepath.EvalSymlinks(dir)
	if gotDir != wantDir {
		t.Errorf("working dir = %q, want %q", gotDir, wantDir)
	}
	if lines[1] != "from-spec" {
		t.Errorf("env value = %q", lines[1])
	}
}

func TestRunDecodesLines(t *testing.T) {
	runner := newTestRunner(t)
	var out lineRecorder

	spec := helperSpec(t, "crlf")
	spec.Stdout = out.add

	if _, err := runner.Run(context.Background(), spec); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	want := []string{"windows", "no newline"}
	got := out.get()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", got, want)
	}
}

func TestResultSuccess(t *testing.T) {
	tests := []struct {
		name string
		res  Result
		want bool
	}{
		{"clean exit", Result{ExitCode: 0}, true},
		{"non-zero", Result{ExitCode: 1}, false},
		{"error", Result{ExitCode: 0, Err: ErrStreamDrainTimeout}, false},
		{"timed out", Result{ExitCode: 0, TimedOut: true}, false},
		{"cancelled", Result{ExitCode: 0, Cancelled: true}, false},
		{"killed", Result{ExitCode: ExitCodeKilled, TimedOut: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.res.Success(); got != tt.want {
				t.Errorf("Success() = %v, want %v", got, tt.want)
			}
		})
	}
}
