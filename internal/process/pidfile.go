package process

import (
	"context"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotRunning is returned when a pid file is missing or its process is gone.
var ErrNotRunning = errors.New("process not running")

func WritePID(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

func ReadPID(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotRunning
		}
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return 0, errors.Errorf("invalid pid file %s", path)
	}

	return pid, nil
}

// Alive reports whether pid exists, the kill -0 way.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// Running reads the pid file and checks the process is still alive.
func Running(path string) (int, bool) {
	pid, err := ReadPID(path)
	if err != nil {
		return 0, false
	}
	return pid, Alive(pid)
}

// Terminate sends SIGTERM to the process group of pid, waits up to grace for
// it to exit and then sends SIGKILL.
func Terminate(ctx context.Context, pid int, grace time.Duration) error {
	if !Alive(pid) {
		return ErrNotRunning
	}

	signalGroup(pid, syscall.SIGTERM)

	deadline := time.NewTimer(grace)
	defer deadline.Stop()
	tick := time.NewTicker(250 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			if !Alive(pid) {
				return nil
			}
		case <-deadline.C:
			signalGroup(pid, syscall.SIGKILL)
			return nil
		}
	}
}

// Stop terminates the process recorded in path and removes the file.
func Stop(ctx context.Context, path string, grace time.Duration) error {
	pid, err := ReadPID(path)
	if err != nil {
		return err
	}

	err = Terminate(ctx, pid, grace)
	if err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}

	if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
		return rmErr
	}

	return err
}

func signalGroup(pid int, sig syscall.Signal) {
	// children were started with Setpgid, so the group id equals pid
	if err := syscall.Kill(-pid, sig); err != nil {
		_ = syscall.Kill(pid, sig)
	}
}
