package process_test

import (
	"os"
	"path/filepath"
	"testing"

	"fbdevops/internal/process"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPID_Missing(t *testing.T) {
	_, err := process.ReadPID(filepath.Join(t.TempDir(), "nope.pid"))
	assert.ErrorIs(t, err, process.ErrNotRunning)
}

func TestWriteReadPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.pid")
	require.NoError(t, process.WritePID(path, 4242))

	pid, err := process.ReadPID(path)
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)
}

func TestReadPID_Garbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.pid")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	_, err := process.ReadPID(path)
	assert.Error(t, err)
}

func TestRunning_CurrentProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "self.pid")
	require.NoError(t, process.WritePID(path, os.Getpid()))

	pid, ok := process.Running(path)
	assert.True(t, ok)
	assert.Equal(t, os.Getpid(), pid)
}

func TestAlive_InvalidPID(t *testing.T) {
	assert.False(t, process.Alive(0))
	assert.False(t, process.Alive(-3))
}
