package tunnel_test

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"fbdevops/internal/config"
	"fbdevops/internal/logger"
	"fbdevops/internal/process"
	"fbdevops/internal/runner"
	"fbdevops/internal/testutil"
	"fbdevops/internal/tunnel"
	"fbdevops/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const startedLog = `{"addr":"http://localhost:5001","lvl":"info","msg":"started tunnel","name":"command_line","obj":"tunnels","t":"2024-05-01T12:00:00Z","url":"https://a1b2-203-0-113-7.ngrok-free.app"}
`

const unusedPID = 1 << 30

func newManager(t *testing.T, r runner.Runner) *tunnel.Manager {
	t.Helper()
	m := tunnel.New(config.Config{ProjectRoot: t.TempDir()}, r, logger.Nop())
	m.URLTimeout = 200 * time.Millisecond
	m.PollInterval = 5 * time.Millisecond
	m.StopGrace = 10 * time.Millisecond
	return m
}

func TestParseURL(t *testing.T) {
	logData := []byte(`t=2024 lvl=info msg="plain text"
{"lvl":"info","msg":"client session established","obj":"tunnels.session"}
` + startedLog)

	url, ok := tunnel.ParseURL(logData)
	require.True(t, ok)
	assert.Equal(t, "https://a1b2-203-0-113-7.ngrok-free.app", url)

	_, ok = tunnel.ParseURL([]byte(`{"lvl":"info","msg":"starting web service"}`))
	assert.False(t, ok)
}

func TestSaveToken(t *testing.T) {
	m := newManager(t, mocks.NewRunner(t))

	_, err := m.AuthToken()
	require.ErrorIs(t, err, tunnel.ErrNoToken)

	require.NoError(t, m.SaveToken(" secret \n"))
	st, err := os.Stat(filepath.Join(m.Dir, "ngrok-authtoken"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())

	token, err := m.AuthToken()
	require.NoError(t, err)
	assert.Equal(t, "secret", token)

	m.Token = "from-env"
	token, err = m.AuthToken()
	require.NoError(t, err)
	assert.Equal(t, "from-env", token)
}

func TestStart(t *testing.T) {
	r := mocks.NewRunner(t)
	m := newManager(t, r)
	require.NoError(t, m.SaveToken("secret"))

	r.On("LookPath", "ngrok").Return("/usr/bin/ngrok", nil)
	r.On("Start", mock.Anything, mock.MatchedBy(func(c runner.Cmd) bool {
		return c.Name == "ngrok" &&
			slices.Equal(c.Args, []string{"http", "5001", "--log", "stdout", "--log-format", "json"}) &&
			slices.Contains(c.Env, "NGROK_AUTHTOKEN=secret")
	}), filepath.Join(m.Dir, "functions.log")).Run(func(args mock.Arguments) {
		testutil.WriteFile(t, args.String(2), startedLog)
	}).Return(unusedPID, nil).Once()

	tun, err := m.Start(context.Background(), "functions", 5001)
	require.NoError(t, err)
	assert.Equal(t, "https://a1b2-203-0-113-7.ngrok-free.app", tun.URL)

	list, err := m.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "functions", list[0].Name)
	assert.Equal(t, 5001, list[0].Port)
	assert.Equal(t, tun.URL, list[0].URL)
	assert.False(t, list[0].Running)
}

func TestStart_NoURL(t *testing.T) {
	r := mocks.NewRunner(t)
	m := newManager(t, r)
	m.Token = "secret"

	r.On("LookPath", "ngrok").Return("/usr/bin/ngrok", nil)
	r.On("Start", mock.Anything, mock.Anything, mock.Anything).Return(unusedPID, nil).Once()

	_, err := m.Start(context.Background(), "functions", 5001)
	require.ErrorIs(t, err, tunnel.ErrNoURL)
	assert.False(t, testutil.Exists(filepath.Join(m.Dir, "functions.pid")))
}

func TestStart_NgrokError(t *testing.T) {
	r := mocks.NewRunner(t)
	m := newManager(t, r)
	m.Token = "bad"

	r.On("LookPath", "ngrok").Return("/usr/bin/ngrok", nil)
	r.On("Start", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		testutil.WriteFile(t, args.String(2), `{"lvl":"crit","msg":"command failed","err":"authentication failed"}`+"\n")
	}).Return(unusedPID, nil).Once()

	_, err := m.Start(context.Background(), "functions", 5001)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authentication failed")
}

func TestStart_InvalidName(t *testing.T) {
	m := newManager(t, mocks.NewRunner(t))
	_, err := m.Start(context.Background(), "../etc", 80)
	assert.ErrorIs(t, err, tunnel.ErrInvalidName)
}

func TestStart_AlreadyRunning(t *testing.T) {
	m := newManager(t, mocks.NewRunner(t))
	require.NoError(t, os.MkdirAll(m.Dir, 0o700))
	require.NoError(t, process.WritePID(filepath.Join(m.Dir, "ui.pid"), os.Getpid()))

	_, err := m.Start(context.Background(), "ui", 4000)
	assert.ErrorIs(t, err, tunnel.ErrAlreadyRunning)
}

func TestStopAll(t *testing.T) {
	m := newManager(t, mocks.NewRunner(t))
	require.NoError(t, os.MkdirAll(m.Dir, 0o700))
	for _, name := range []string{"a", "b"} {
		require.NoError(t, process.WritePID(filepath.Join(m.Dir, name+".pid"), unusedPID))
		testutil.WriteFile(t, filepath.Join(m.Dir, name+".url"), "https://x")
	}

	require.NoError(t, m.StopAll(context.Background()))

	list, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.False(t, testutil.Exists(filepath.Join(m.Dir, "a.url")))
}
