package tunnel

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"fbdevops/internal/config"
	"fbdevops/internal/process"
	"fbdevops/internal/runner"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/rs/zerolog"
)

const (
	DirName       = ".emulator-sharing"
	tokenFileName = "ngrok-authtoken"
)

var (
	ErrAlreadyRunning = errors.New("tunnel already running")
	ErrNoURL          = errors.New("tunnel did not report a public url")
	ErrInvalidName    = errors.New("invalid tunnel name")
	ErrNoToken        = errors.New("no ngrok auth token, run `share auth <token>` or set NGROK_AUTHTOKEN")
)

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

type Tunnel struct {
	Name    string
	Port    int
	PID     int
	URL     string
	Running bool
}

// Manager runs ngrok tunnels tracked by files in Dir:
// <name>.pid, <name>.log, <name>.url and <name>.port.
type Manager struct {
	Runner runner.Runner
	Log    zerolog.Logger
	Dir    string
	Token  string

	URLTimeout   time.Duration
	PollInterval time.Duration
	StopGrace    time.Duration
}

func New(cfg config.Config, r runner.Runner, log zerolog.Logger) *Manager {
	return &Manager{
		Runner:       r,
		Log:          log,
		Dir:          filepath.Join(cfg.ProjectRoot, DirName),
		Token:        cfg.NgrokAuthToken,
		URLTimeout:   30 * time.Second,
		PollInterval: 500 * time.Millisecond,
		StopGrace:    5 * time.Second,
	}
}

func (m *Manager) path(name, ext string) string {
	return filepath.Join(m.Dir, name+"."+ext)
}

// SaveToken stores the ngrok auth token readable only by the owner.
func (m *Manager) SaveToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrNoToken
	}
	if err := os.MkdirAll(m.Dir, 0o700); err != nil {
		return err
	}
	p := filepath.Join(m.Dir, tokenFileName)
	if err := os.WriteFile(p, []byte(token+"\n"), 0o600); err != nil {
		return err
	}
	// WriteFile keeps the mode of an existing file
	return os.Chmod(p, 0o600)
}

// AuthToken returns the configured token, falling back to the stored one.
func (m *Manager) AuthToken() (string, error) {
	if m.Token != "" {
		return m.Token, nil
	}
	b, err := os.ReadFile(filepath.Join(m.Dir, tokenFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoToken
		}
		return "", err
	}
	if t := strings.TrimSpace(string(b)); t != "" {
		return t, nil
	}
	return "", ErrNoToken
}

// Start exposes localhost:port through ngrok and waits for the public url.
func (m *Manager) Start(ctx context.Context, name string, port int) (Tunnel, error) {
	if !validName.MatchString(name) {
		return Tunnel{}, errors.Wrapf(ErrInvalidName, "%q", name)
	}
	if pid, ok := process.Running(m.path(name, "pid")); ok {
		return Tunnel{Name: name, PID: pid, Running: true}, errors.Wrap(ErrAlreadyRunning, name)
	}
	if err := runner.Require(m.Runner, "ngrok"); err != nil {
		return Tunnel{}, err
	}
	token, err := m.AuthToken()
	if err != nil {
		return Tunnel{}, err
	}
	if err := os.MkdirAll(m.Dir, 0o700); err != nil {
		return Tunnel{}, err
	}

	logPath := m.path(name, "log")
	_ = os.Remove(logPath)
	_ = os.Remove(m.path(name, "url"))

	pid, err := m.Runner.Start(ctx, runner.Cmd{
		Name: "ngrok",
		Args: []string{"http", strconv.Itoa(port), "--log", "stdout", "--log-format", "json"},
		Env:  []string{"NGROK_AUTHTOKEN=" + token},
	}, logPath)
	if err != nil {
		return Tunnel{}, err
	}
	if err := process.WritePID(m.path(name, "pid"), pid); err != nil {
		return Tunnel{}, err
	}
	if err := os.WriteFile(m.path(name, "port"), []byte(strconv.Itoa(port)+"\n"), 0o644); err != nil {
		return Tunnel{}, err
	}

	url, err := m.waitURL(ctx, logPath)
	if err != nil {
		m.Log.Error().Err(err).Str("log", logPath).Msg("❌ Tunnel failed")
		_ = m.Stop(context.WithoutCancel(ctx), name)
		return Tunnel{}, err
	}
	if err := os.WriteFile(m.path(name, "url"), []byte(url+"\n"), 0o644); err != nil {
		return Tunnel{}, err
	}

	m.Log.Info().Str("name", name).Int("port", port).Str("url", url).Msg("🌍 Tunnel started")
	return Tunnel{Name: name, Port: port, PID: pid, URL: url, Running: true}, nil
}

func (m *Manager) waitURL(ctx context.Context, logPath string) (string, error) {
	deadline := time.NewTimer(m.URLTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(m.PollInterval)
	defer tick.Stop()

	for {
		if b, err := os.ReadFile(logPath); err == nil {
			if url, ok := ParseURL(b); ok {
				return url, nil
			}
			if msg, ok := parseFailure(b); ok {
				return "", errors.Errorf("ngrok: %s", msg)
			}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", errors.Wrapf(ErrNoURL, "within %s", m.URLTimeout)
		case <-tick.C:
		}
	}
}

// ParseURL returns the public url from ngrok's json log output.
func ParseURL(logData []byte) (string, bool) {
	var found string
	eachLine(logData, func(fields map[string]string) bool {
		if fields["msg"] == "started tunnel" && strings.HasPrefix(fields["url"], "https://") {
			found = fields["url"]
			return false
		}
		if fields["msg"] == "started tunnel" && found == "" {
			found = fields["url"]
		}
		return true
	})
	return found, found != ""
}

func parseFailure(logData []byte) (string, bool) {
	var msg string
	eachLine(logData, func(fields map[string]string) bool {
		if fields["lvl"] == "crit" || (fields["lvl"] == "eror" && fields["err"] != "") {
			msg = fields["err"]
			if msg == "" {
				msg = fields["msg"]
			}
			return false
		}
		return true
	})
	return msg, msg != ""
}

// eachLine decodes the string fields of every json log line; fn returns false to stop.
func eachLine(logData []byte, fn func(map[string]string) bool) {
	sc := bufio.NewScanner(bytes.NewReader(logData))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		fields := map[string]string{}
		err := jx.DecodeBytes(line).ObjBytes(func(d *jx.Decoder, key []byte) error {
			if d.Next() != jx.String {
				return d.Skip()
			}
			v, err := d.Str()
			fields[string(key)] = v
			return err
		})
		if err != nil {
			continue
		}
		if !fn(fields) {
			return
		}
	}
}

// Stop terminates the named tunnel and removes its state files.
func (m *Manager) Stop(ctx context.Context, name string) error {
	if !validName.MatchString(name) {
		return errors.Wrapf(ErrInvalidName, "%q", name)
	}
	err := process.Stop(ctx, m.path(name, "pid"), m.StopGrace)
	for _, ext := range []string{"url", "port"} {
		_ = os.Remove(m.path(name, ext))
	}
	if err != nil && !errors.Is(err, process.ErrNotRunning) {
		return err
	}
	if err == nil {
		m.Log.Info().Str("name", name).Msg("🛑 Tunnel stopped")
	}
	return err
}

// StopAll stops every tracked tunnel.
func (m *Manager) StopAll(ctx context.Context) error {
	tunnels, err := m.List()
	if err != nil {
		return err
	}
	for _, t := range tunnels {
		if err := m.Stop(ctx, t.Name); err != nil && !errors.Is(err, process.ErrNotRunning) {
			return err
		}
	}
	return nil
}

// List returns every tunnel with a pid file, running or not.
func (m *Manager) List() ([]Tunnel, error) {
	matches, err := filepath.Glob(filepath.Join(m.Dir, "*.pid"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	out := make([]Tunnel, 0, len(matches))
	for _, p := range matches {
		name := strings.TrimSuffix(filepath.Base(p), ".pid")
		t := Tunnel{Name: name}
		t.PID, t.Running = process.Running(p)
		t.URL = readTrimmed(m.path(name, "url"))
		t.Port, _ = strconv.Atoi(readTrimmed(m.path(name, "port")))
		out = append(out, t)
	}
	return out, nil
}

func readTrimmed(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
