package subprocess

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/wagiedev/stdio-gateway/internal/errors"
	"github.com/wagiedev/stdio-gateway/internal/shell"
)

// ExitStatus describes how the child terminated.
type ExitStatus struct {
	// Code is the numeric exit code. Only meaningful when HasCode is true.
	Code int
	// HasCode is false when the child was terminated by a signal.
	HasCode bool
	// Signal is the name of the terminating signal (e.g. "SIGKILL"), if any.
	Signal string
}

// ExitCode returns the numeric exit code, or 1 when none is available.
func (s ExitStatus) ExitCode() int {
	if s.HasCode {
		return s.Code
	}

	return 1
}

func (s ExitStatus) String() string {
	if s.HasCode {
		return fmt.Sprintf("code=%d", s.Code)
	}

	if s.Signal != "" {
		return "signal=" + s.Signal
	}

	return "code=unknown"
}

// Option configures a Process.
type Option func(*Process)

// WithEnv adds environment variables on top of the inherited environment.
func WithEnv(env map[string]string) Option {
	return func(p *Process) {
		p.env = env
	}
}

// WithDir sets the working directory of the child.
// Defaults to the working directory of the gateway.
func WithDir(dir string) Option {
	return func(p *Process) {
		p.dir = dir
	}
}

// WithShell sets an explicit shell used to interpret the command.
func WithShell(path string) Option {
	return func(p *Process) {
		p.shellPath = path
	}
}

// Process supervises a stdio server spawned through the shell.
type Process struct {
	log       *slog.Logger
	command   string
	shellPath string
	env       map[string]string
	dir       string

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *os.File
	stderr *os.File

	writeMu  sync.Mutex // Serializes stdin writes
	mu       sync.Mutex // Protects lifecycle state below
	started  bool
	stopping bool // Set once the gateway asked the child to stop
	killed   bool
	status   ExitStatus

	exited chan struct{}
}

// New creates a Process for command. The child is not started until Start.
func New(log *slog.Logger, command string, opts ...Option) *Process {
	p := &Process{
		log:     log.With("component", "subprocess"),
		command: command,
		exited:  make(chan struct{}),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Start spawns the child through the shell and begins observing its exit.
//
// Returns SpawnError if the shell cannot be found or the process fails to
// start. A command the shell cannot find is not a spawn failure: the shell
// starts and exits with its own status (127 for POSIX shells).
func (p *Process) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return errors.ErrProcessAlreadyStarted
	}

	if err := ctx.Err(); err != nil {
		return &errors.SpawnError{Command: p.command, Err: err}
	}

	p.log.Info("Starting stdio server", "command", p.command)

	shellPath, err := shell.Discover(&shell.Config{Path: p.shellPath, Logger: p.log})
	if err != nil {
		return &errors.SpawnError{Command: p.command, Err: err}
	}

	args := shell.Args(shellPath, p.command)

	//nolint:gosec // G204: the command is operator-supplied and interpreted by the shell on purpose
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = shell.BuildEnvironment(p.env)
	cmd.Dir = p.dir
	configureCommand(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &errors.SpawnError{Command: p.command, Err: fmt.Errorf("stdin pipe: %w", err)}
	}

	// Hand the child real pipe files so Wait does not own the copy loops and
	// can run as soon as the child exits.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()

		return &errors.SpawnError{Command: p.command, Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		closeAll(stdoutR, stdoutW)

		return &errors.SpawnError{Command: p.command, Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		p.log.Error("Failed to start stdio server", "error", err)

		_ = stdin.Close()
		closeAll(stdoutR, stdoutW, stderrR, stderrW)

		return &errors.SpawnError{Command: p.command, Err: fmt.Errorf("start process: %w", err)}
	}

	// The child holds its own copies of the write ends.
	closeAll(stdoutW, stderrW)

	p.cmd = cmd
	p.stdin = stdin
	p.stdout = stdoutR
	p.stderr = stderrR
	p.started = true

	p.log.Info("Stdio server started", "pid", cmd.Process.Pid)

	go p.wait()

	return nil
}

// wait observes the child exit and records its status.
func (p *Process) wait() {
	err := p.cmd.Wait()

	status := exitStatusFrom(p.cmd.ProcessState)

	p.mu.Lock()
	p.status = status
	stopping := p.stopping
	p.mu.Unlock()

	switch {
	case stopping:
		p.log.Debug("Child terminated by gateway", "exit", status.String())
	case status.HasCode && status.Code == 0:
		p.log.Info("Child exited", "code", status.Code)
	default:
		p.log.Error("Child exited", "code", exitCodeAttr(status), "signal", status.Signal, "error", err)
	}

	close(p.exited)
}

func exitStatusFrom(state *os.ProcessState) ExitStatus {
	if state == nil {
		return ExitStatus{}
	}

	status := ExitStatus{Signal: signalName(state)}

	if code := state.ExitCode(); code >= 0 {
		status.Code = code
		status.HasCode = true
	}

	return status
}

func exitCodeAttr(status ExitStatus) any {
	if status.HasCode {
		return status.Code
	}

	return nil
}

// Pid returns the process id of the child, or 0 if not started.
func (p *Process) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}

	return p.cmd.Process.Pid
}

// Stdout returns the child's standard output stream.
func (p *Process) Stdout() io.Reader {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stdout == nil {
		return bytes.NewReader(nil)
	}

	return p.stdout
}

// Stderr returns the child's standard error stream.
func (p *Process) Stderr() io.Reader {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stderr == nil {
		return bytes.NewReader(nil)
	}

	return p.stderr
}

// Write writes one line to the child's stdin, appending '\n' if missing.
// It is safe for concurrent use; lines are never interleaved.
func (p *Process) Write(line []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	p.mu.Lock()
	started := p.started
	stdin := p.stdin
	p.mu.Unlock()

	if !started {
		return errors.ErrProcessNotStarted
	}

	if p.hasExited() {
		return errors.ErrStdinClosed
	}

	// Use explicit copy to avoid mutating caller's backing array if slice has spare capacity
	if len(line) == 0 || line[len(line)-1] != '\n' {
		data := make([]byte, len(line)+1)
		copy(data, line)
		data[len(line)] = '\n'
		line = data
	}

	if _, err := stdin.Write(line); err != nil {
		if stderrors.Is(err, os.ErrClosed) {
			return errors.ErrStdinClosed
		}

		return fmt.Errorf("write to stdin: %w", err)
	}

	return nil
}

// Exited returns a channel closed once the child has exited.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

func (p *Process) hasExited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

// ExitStatus returns how the child terminated. Only meaningful after Exited is
// closed.
func (p *Process) ExitStatus() ExitStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.status
}

// Kill forcefully terminates the child if it is still running.
// It is safe to call Kill multiple times, before Start, or after exit.
func (p *Process) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started || p.killed || p.hasExited() {
		return nil
	}

	p.killed = true
	p.stopping = true

	pid := p.cmd.Process.Pid
	p.log.Debug("Killing stdio server", "pid", pid)

	if err := terminate(p.cmd); err != nil {
		if stderrors.Is(err, os.ErrProcessDone) {
			return nil
		}

		return fmt.Errorf("kill stdio server (pid %d): %w", pid, err)
	}

	return nil
}

// Terminate asks the child to stop with SIGTERM and kills it if it is still
// running once grace has elapsed. It does not wait for the child to exit.
// Like Kill it is a no-op before Start, after exit, or when already called.
func (p *Process) Terminate(grace time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started || p.stopping || p.hasExited() {
		return nil
	}

	p.stopping = true

	pid := p.cmd.Process.Pid
	p.log.Debug("Terminating stdio server", "pid", pid, "grace", grace)

	if err := interrupt(p.cmd); err != nil {
		if stderrors.Is(err, os.ErrProcessDone) {
			return nil
		}

		return fmt.Errorf("terminate stdio server (pid %d): %w", pid, err)
	}

	go p.killAfter(grace)

	return nil
}

func (p *Process) killAfter(grace time.Duration) {
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-p.exited:
	case <-timer.C:
		p.log.Warn("Stdio server did not stop in time, killing it", "grace", grace)

		if err := p.Kill(); err != nil {
			p.log.Error("Failed to kill stdio server", "error", err)
		}
	}
}

// CloseStdin closes the gateway's end of the child's stdin. The child reads
// EOF and a Write blocked on a full pipe returns ErrStdinClosed.
func (p *Process) CloseStdin() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stdin != nil {
		_ = p.stdin.Close()
	}
}

// ClosePipes closes the gateway's ends of the stdout and stderr pipes,
// unblocking any reader. Used at teardown when a descendant of the child
// still holds the pipes open.
func (p *Process) ClosePipes() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stdout != nil {
		_ = p.stdout.Close()
	}

	if p.stderr != nil {
		_ = p.stderr.Close()
	}
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
