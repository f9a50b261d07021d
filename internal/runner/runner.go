package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/go-faster/errors"
)

// ErrToolNotFound is returned when a required vendor CLI is not on PATH.
var ErrToolNotFound = errors.New("tool not found")

// Cmd describes a single invocation of an external tool.
type Cmd struct {
	Name string
	Args []string
	Dir  string
	Env  []string

	// Stdout and Stderr receive a copy of the output when set.
	Stdout io.Writer
	Stderr io.Writer
}

func (c Cmd) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the captured output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ExitError carries the exit code of a vendor CLI that failed.
type ExitError struct {
	Cmd  string
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Cmd, e.Code)
}

// Runner runs external tools. Every vendor CLI call goes through it.
type Runner interface {
	Run(ctx context.Context, c Cmd) (Result, error)
	Start(ctx context.Context, c Cmd, logPath string) (int, error)
	LookPath(name string) (string, error)
}

// Exec runs commands with os/exec.
type Exec struct{}

func New() *Exec {
	return &Exec{}
}

func (Exec) Run(ctx context.Context, c Cmd) (Result, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if c.Stdout != nil {
		cmd.Stdout = io.MultiWriter(&stdout, c.Stdout)
	}
	if c.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, c.Stderr)
	}

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, &ExitError{Cmd: c.String(), Code: res.ExitCode}
		}
		if errors.Is(err, exec.ErrNotFound) {
			return res, errors.Wrap(ErrToolNotFound, c.Name)
		}
		return res, errors.Wrapf(err, "run %s", c.String())
	}

	return res, nil
}

// Start launches c in its own process group with output appended to logPath
// and returns the pid without waiting for it to finish.
func (Exec) Start(_ context.Context, c Cmd, logPath string) (int, error) {
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, errors.Wrap(err, "open log file")
	}
	defer logFile.Close()

	// not bound to ctx: the process must outlive this invocation
	cmd := exec.Command(c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return 0, errors.Wrap(ErrToolNotFound, c.Name)
		}
		return 0, errors.Wrapf(err, "start %s", c.String())
	}

	// reap the child if it exits while we are still around, so kill -0 on
	// its pid stops succeeding
	go func() { _ = cmd.Wait() }()

	return cmd.Process.Pid, nil
}

func (Exec) LookPath(name string) (string, error) {
	p, err := exec.LookPath(name)
	if err != nil {
		return "", errors.Wrap(ErrToolNotFound, name)
	}
	return p, nil
}

// Require checks that every named tool is available.
func Require(r Runner, names ...string) error {
	for _, name := range names {
		if _, err := r.LookPath(name); err != nil {
			return err
		}
	}
	return nil
}

// ExitCode extracts the vendor exit code from err, or 1 for any other error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Code > 0 {
		return exitErr.Code
	}
	return 1
}
