package helper

import (
	"context"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// CommandRunner runs a shell command and reports its exit code. A command
// killed by a signal reports 128 plus the signal number, like a shell does.
type CommandRunner interface {
	Run(ctx context.Context, command string) (int, error)
}

type CommandRunnerFunc func(ctx context.Context, command string) (int, error)

func (f CommandRunnerFunc) Run(ctx context.Context, command string) (int, error) {
	return f(ctx, command)
}

// waitDelay bounds how long output copying may outlive a killed command.
const waitDelay = 5 * time.Second

type shellRunner struct {
	shell  string
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

type ShellOption func(r *shellRunner)

func WithShell(shell string) ShellOption {
	return func(r *shellRunner) {
		r.shell = shell
	}
}

func WithOutput(stdout, stderr io.Writer) ShellOption {
	return func(r *shellRunner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

func NewShellRunner(options ...ShellOption) CommandRunner {
	result := &shellRunner{
		shell:  "/bin/sh",
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	for _, option := range options {
		option(result)
	}

	return result
}

// Run returns ctx's error if the command was killed because ctx ended.
func (r *shellRunner) Run(ctx context.Context, command string) (int, error) {
	cmd := exec.CommandContext(ctx, r.shell, "-c", command)
	cmd.Stdin = r.stdin
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr
	cmd.WaitDelay = waitDelay

	// The command gets its own process group so that cancellation also kills
	// whatever the shell started, not only the shell.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, ctxErr
	}
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return -1, errors.Wrap(err, "failed to start command")
	}

	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal()), nil
	}

	return exitErr.ExitCode(), nil
}
