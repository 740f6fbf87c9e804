package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultDrainGrace bounds the wait for trailing output after a natural exit.
	DefaultDrainGrace = 5 * time.Second
	// DefaultKillGrace bounds the wait for reaping and draining after a kill.
	DefaultKillGrace = 2 * time.Second
)

// TempPolicy decides what happens to runner-allocated tee files after a run.
type TempPolicy int

const (
	// RetainTempFiles leaves temporary tee files on disk and reports their paths.
	RetainTempFiles TempPolicy = iota
	// RemoveTempFiles deletes temporary tee files once the run is over. The
	// result paths are blanked. Caller-supplied paths are never removed.
	RemoveTempFiles
)

// Spec describes one process invocation.
type Spec struct {
	Path string   // executable; bare names are resolved through PATH
	Args []string // passed verbatim, no shell
	Dir  string   // working directory; empty inherits the caller's
	Env  map[string]string

	Stdout LineFunc
	Stderr LineFunc

	// Timeout of zero means no timeout; only ctx can stop the process.
	Timeout time.Duration

	// StdoutPath and StderrPath receive a copy of every line. Empty paths get
	// temporary files.
	StdoutPath string
	StderrPath string
}

// Runner launches external processes and streams their output.
// A Runner holds no per-run state and is safe for concurrent use.
type Runner struct {
	tempDir    string
	tempPolicy TempPolicy
	drainGrace time.Duration
	killGrace  time.Duration
	logger     zerolog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithTempDir sets where temporary tee files are created.
func WithTempDir(dir string) Option {
	return func(r *Runner) { r.tempDir = dir }
}

// WithTempPolicy sets the retention policy for temporary tee files.
func WithTempPolicy(p TempPolicy) Option {
	return func(r *Runner) { r.tempPolicy = p }
}

// WithDrainGrace overrides DefaultDrainGrace.
func WithDrainGrace(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.drainGrace = d
		}
	}
}

// WithKillGrace overrides DefaultKillGrace.
func WithKillGrace(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.killGrace = d
		}
	}
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a Runner with the given options applied over the defaults.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		tempPolicy: RetainTempFiles,
		drainGrace: DefaultDrainGrace,
		killGrace:  DefaultKillGrace,
		logger:     log.Logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes spec once and reports the outcome.
//
// Only precondition failures are returned as errors: a missing executable
// (ErrExecutableNotFound), a missing working directory
// (ErrWorkingDirNotFound), or a tee file that cannot be created. Nothing is
// spawned and no tee file is left behind in those cases. Every other outcome,
// including launch failures, is reported through the Result.
func (r *Runner) Run(ctx context.Context, spec Spec) (*Result, error) {
	path, err := resolveExecutable(spec.Path)
	if err != nil {
		return nil, err
	}
	if err := checkDir(spec.Dir); err != nil {
		return nil, err
	}

	if ctx.Err() != nil {
		r.logger.Debug().Str("path", path).Msg("context done before start, not spawning")
		return &Result{ExitCode: ExitCodeLaunchFailed, Cancelled: true}, nil
	}

	outTee, err := r.openTee(spec.StdoutPath, "stdout")
	if err != nil {
		return nil, err
	}
	errTee, err := r.openTee(spec.StderrPath, "stderr")
	if err != nil {
		r.discard(outTee)
		return nil, err
	}

	res := &Result{
		ExitCode:   ExitCodeLaunchFailed,
		StdoutPath: outTee.path,
		StderrPath: errTee.path,
	}
	defer r.finish(res, outTee, errTee)

	r.execute(ctx, path, spec, res, outTee, errTee)
	return res, nil
}

func (r *Runner) execute(ctx context.Context, path string, spec Spec, res *Result, outTee, errTee *teeFile) {
	started := time.Now()
	defer func() { res.Duration = time.Since(started) }()

	outR, outW, err := os.Pipe()
	if err != nil {
		res.Err = fmt.Errorf("create stdout pipe: %w", err)
		return
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		res.Err = fmt.Errorf("create stderr pipe: %w", err)
		return
	}

	cmd := exec.Command(path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = buildEnv(spec.Env)
	cmd.Stdout = outW
	cmd.Stderr = errW
	cmd.SysProcAttr = sysProcAttr()

	if err := cmd.Start(); err != nil {
		for _, f := range []*os.File{outR, outW, errR, errW} {
			f.Close()
		}
		res.Err = fmt.Errorf("start %s: %w", path, err)
		r.logger.Warn().Err(err).Str("path", path).Msg("process failed to start")
		return
	}

	// The child holds its own copies of the write ends. Ours must go or the
	// readers would never see end-of-stream.
	outW.Close()
	errW.Close()

	pid := cmd.Process.Pid
	res.PID = pid
	r.logger.Debug().Str("path", path).Strs("args", spec.Args).Int("pid", pid).Msg("process started")

	p := startPump(
		newStream("stdout", outR, spec.Stdout, outTee),
		newStream("stderr", errR, spec.Stderr, errTee),
	)
	defer p.shutdown(r.killGrace)

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	var timeout <-chan time.Time
	if spec.Timeout > 0 {
		timer := time.NewTimer(spec.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case werr := <-exited:
		r.exited(cmd, werr, res, p)
	case <-timeout:
		if werr, ok := exitedAlready(exited); ok {
			r.exited(cmd, werr, res, p)
			return
		}
		res.TimedOut = true
		r.logger.Warn().Int("pid", pid).Dur("timeout", spec.Timeout).Msg("process timed out, killing tree")
		r.terminate(cmd, exited, res, p)
	case <-ctx.Done():
		if werr, ok := exitedAlready(exited); ok {
			r.exited(cmd, werr, res, p)
			return
		}
		res.Cancelled = true
		r.logger.Warn().Int("pid", pid).Msg("process cancelled, killing tree")
		r.terminate(cmd, exited, res, p)
	}
}

func exitedAlready(exited <-chan error) (error, bool) {
	select {
	case werr := <-exited:
		return werr, true
	default:
		return nil, false
	}
}

// exited handles a natural exit: record the status, then let trailing
// output drain.
func (r *Runner) exited(cmd *exec.Cmd, werr error, res *Result, p *pump) {
	res.ExitCode, res.Err = exitStatus(cmd, werr)
	r.logger.Debug().Int("pid", res.PID).Int("exit_code", res.ExitCode).Msg("process exited")

	err := p.wait(r.drainGrace)
	if err == nil {
		return
	}
	if errors.Is(err, ErrStreamDrainTimeout) {
		// A descendant still holds a pipe open.
		r.logger.Warn().Int("pid", res.PID).Err(err).Msg("output did not drain, killing process group")
		if kerr := killTree(res.PID); kerr != nil {
			r.logger.Warn().Int("pid", res.PID).Err(kerr).Msg("kill after drain timeout failed")
		}
	}
	if res.Err == nil {
		res.Err = err
	}
}

// terminate kills the process tree after a timeout or cancellation and waits,
// bounded by the kill grace, for the process to be reaped and the streams to
// close.
func (r *Runner) terminate(cmd *exec.Cmd, exited <-chan error, res *Result, p *pump) {
	pid := res.PID
	if err := killTree(pid); err != nil {
		res.ExitCode = ExitCodeUnknown
		res.Err = fmt.Errorf("kill process tree %d: %w", pid, err)
		r.logger.Error().Int("pid", pid).Err(err).Msg("failed to kill process tree")
		_ = cmd.Process.Kill()
	} else {
		res.ExitCode = ExitCodeKilled
	}

	grace := time.NewTimer(r.killGrace)
	defer grace.Stop()
	select {
	case <-exited:
	case <-grace.C:
		res.ExitCode = ExitCodeUnknown
		if res.Err == nil {
			res.Err = fmt.Errorf("process %d still running %s after kill", pid, r.killGrace)
		}
		return
	}

	if err := p.wait(r.killGrace); err != nil {
		r.logger.Debug().Int("pid", pid).Err(err).Msg("streams after kill")
	}
}

// exitStatus converts the outcome of cmd.Wait into an exit code.
func exitStatus(cmd *exec.Cmd, werr error) (int, error) {
	state := cmd.ProcessState
	if state == nil {
		return ExitCodeUnknown, fmt.Errorf("%w: %v", ErrExitCodeUnavailable, werr)
	}
	code := state.ExitCode()
	if code == -1 {
		// Terminated by a signal nobody here sent.
		return ExitCodeUnknown, fmt.Errorf("%w: %s", ErrExitCodeUnavailable, state)
	}
	var exitErr *exec.ExitError
	if werr != nil && !errors.As(werr, &exitErr) {
		return code, fmt.Errorf("wait: %w", werr)
	}
	return code, nil
}

// finish closes both tee files exactly once and applies the temp policy.
func (r *Runner) finish(res *Result, outTee, errTee *teeFile) {
	for _, t := range []*teeFile{outTee, errTee} {
		if err := t.Close(); err != nil && res.Err == nil {
			res.Err = fmt.Errorf("write %s: %w", t.path, err)
		}
	}
	if r.tempPolicy != RemoveTempFiles {
		return
	}
	if outTee.temp {
		r.remove(outTee.path)
		res.StdoutPath = ""
	}
	if errTee.temp {
		r.remove(errTee.path)
		res.StderrPath = ""
	}
}

func (r *Runner) openTee(path, name string) (*teeFile, error) {
	if path == "" {
		f, err := os.CreateTemp(r.tempDir, "videobatch-"+name+"-*.log")
		if err != nil {
			return nil, fmt.Errorf("create temp %s file: %w", name, err)
		}
		return newTeeFile(f, true), nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create %s directory: %w", name, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s file: %w", name, err)
	}
	return newTeeFile(f, false), nil
}

// discard closes a tee that will never be used. A temp file is always
// removed since its path was never reported.
func (r *Runner) discard(t *teeFile) {
	_ = t.Close()
	if t.temp {
		r.remove(t.path)
	}
}

func (r *Runner) remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		r.logger.Warn().Err(err).Str("path", path).Msg("failed to remove temp file")
	}
}

// resolveExecutable returns an absolute path to an existing regular file.
// Names without a separator are looked up on PATH first, then relative to the
// working directory.
func resolveExecutable(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: empty path", ErrExecutableNotFound)
	}

	candidate := path
	if !strings.ContainsAny(path, `/\`) {
		if found, err := exec.LookPath(path); err == nil || errors.Is(err, exec.ErrDot) {
			candidate = found
		}
	}

	info, err := os.Stat(candidate)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrExecutableNotFound, path)
	}

	abs, err := filepath.Abs(candidate)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return abs, nil
}

func checkDir(dir string) error {
	if dir == "" {
		return nil
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrWorkingDirNotFound, dir)
	}
	return nil
}

// buildEnv returns nil (inherit) when there is nothing to add.
func buildEnv(extra map[string]string) []string {
	if len(extra) == 0 {
		return nil
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := os.Environ()
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, extra[k]))
	}
	return env
}
