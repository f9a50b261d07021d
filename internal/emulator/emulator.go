package emulator

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
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
	StateDirName = ".emulators"
	pidFileName  = "emulators.pid"
	logFileName  = "emulators.log"
)

var (
	ErrAlreadyRunning = errors.New("emulators already running")
	ErrNotReady       = errors.New("emulators did not become ready")
)

// Info is one entry of the emulator hub listing.
type Info struct {
	Name string
	Host string
	Port int
}

type Status struct {
	PID       int
	Running   bool
	LogPath   string
	Emulators []Info
}

type StartOptions struct {
	// ConfigPath is passed as --config when set.
	ConfigPath string
	ImportDir  string
	// ExportOnExit makes the emulators write their data to ImportDir (or
	// the default data dir) on shutdown.
	ExportOnExit bool
	Only         []string
}

// Manager controls the background emulator suite of one project.
type Manager struct {
	Runner runner.Runner
	Log    zerolog.Logger
	HC     *http.Client

	Project       string
	Root          string
	Hub           string
	Only          []string
	ReadyAttempts int
	ReadyInterval time.Duration
	StopGrace     time.Duration
}

func New(cfg config.Config, r runner.Runner, log zerolog.Logger) *Manager {
	return &Manager{
		Runner:        r,
		Log:           log,
		HC:            &http.Client{Timeout: 3 * time.Second},
		Project:       cfg.ProjectID,
		Root:          cfg.ProjectRoot,
		Hub:           cfg.Emulator.HubHost,
		Only:          cfg.Emulator.Only,
		ReadyAttempts: cfg.Emulator.ReadyAttempts,
		ReadyInterval: cfg.Emulator.ReadyInterval,
		StopGrace:     10 * time.Second,
	}
}

func (m *Manager) StateDir() string { return filepath.Join(m.Root, StateDirName) }
func (m *Manager) PIDFile() string  { return filepath.Join(m.StateDir(), pidFileName) }
func (m *Manager) LogFile() string  { return filepath.Join(m.StateDir(), logFileName) }
func (m *Manager) DataDir() string  { return filepath.Join(m.StateDir(), "data") }

// Start launches `firebase emulators:start` in the background and waits for
// the hub to answer.
func (m *Manager) Start(ctx context.Context, opts StartOptions) (Status, error) {
	if pid, ok := process.Running(m.PIDFile()); ok {
		return Status{PID: pid, Running: true, LogPath: m.LogFile()}, errors.Wrapf(ErrAlreadyRunning, "pid %d", pid)
	}
	if err := runner.Require(m.Runner, "firebase"); err != nil {
		return Status{}, err
	}
	if err := os.MkdirAll(m.StateDir(), 0o755); err != nil {
		return Status{}, err
	}

	args := m.startArgs(opts)
	m.Log.Info().Str("project", m.Project).Strs("args", args).Msg("🔥 Starting emulators")

	pid, err := m.Runner.Start(ctx, runner.Cmd{Name: "firebase", Args: args, Dir: m.Root}, m.LogFile())
	if err != nil {
		return Status{}, err
	}
	if err := process.WritePID(m.PIDFile(), pid); err != nil {
		return Status{}, errors.Wrap(err, "write pid file")
	}

	emulators, err := m.WaitReady(ctx)
	if err != nil {
		m.Log.Error().Err(err).Str("log", m.LogFile()).Msg("❌ Emulators failed to start")
		_ = process.Stop(context.WithoutCancel(ctx), m.PIDFile(), m.StopGrace)
		return Status{PID: pid, LogPath: m.LogFile()}, err
	}

	m.Log.Info().Int("pid", pid).Int("emulators", len(emulators)).Msg("✅ Emulators ready")
	return Status{PID: pid, Running: true, LogPath: m.LogFile(), Emulators: emulators}, nil
}

func (m *Manager) startArgs(opts StartOptions) []string {
	args := []string{"emulators:start"}
	if m.Project != "" {
		args = append(args, "--project", m.Project)
	}
	if opts.ConfigPath != "" {
		args = append(args, "--config", opts.ConfigPath)
	}
	only := opts.Only
	if len(only) == 0 {
		only = m.Only
	}
	if len(only) > 0 {
		args = append(args, "--only", strings.Join(only, ","))
	}
	if opts.ImportDir != "" {
		args = append(args, "--import", opts.ImportDir)
	}
	if opts.ExportOnExit {
		dir := opts.ImportDir
		if dir == "" {
			dir = m.DataDir()
		}
		args = append(args, "--export-on-exit", dir)
	}
	return args
}

// WaitReady polls the hub until it lists the running emulators.
func (m *Manager) WaitReady(ctx context.Context) ([]Info, error) {
	attempts := max(m.ReadyAttempts, 1)

	var lastErr error
	for i := 1; i <= attempts; i++ {
		emulators, err := m.Emulators(ctx)
		if err == nil {
			return emulators, nil
		}
		lastErr = err
		m.Log.Debug().Err(err).Int("attempt", i).Msg("waiting for emulator hub")

		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.ReadyInterval):
		}
	}

	return nil, errors.Wrapf(ErrNotReady, "after %d attempts: %v", attempts, lastErr)
}

// Emulators asks the hub which emulators are running.
func (m *Manager) Emulators(ctx context.Context) ([]Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+m.Hub+"/emulators", nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.HC.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("hub returned %s", resp.Status)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return ParseHub(b)
}

// ParseHub decodes the hub's /emulators response, keyed by emulator name.
func ParseHub(b []byte) ([]Info, error) {
	var out []Info
	err := jx.DecodeBytes(b).ObjBytes(func(d *jx.Decoder, key []byte) error {
		info := Info{Name: string(key)}
		if d.Next() != jx.Object {
			return d.Skip()
		}
		if err := d.ObjBytes(func(d *jx.Decoder, k []byte) error {
			switch string(k) {
			case "host":
				v, err := d.Str()
				info.Host = v
				return err
			case "port":
				v, err := d.Int()
				info.Port = v
				return err
			default:
				return d.Skip()
			}
		}); err != nil {
			return err
		}
		out = append(out, info)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode hub response")
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Stop terminates the emulators started by Start.
func (m *Manager) Stop(ctx context.Context) error {
	err := process.Stop(ctx, m.PIDFile(), m.StopGrace)
	if errors.Is(err, process.ErrNotRunning) {
		m.Log.Info().Msg("ℹ️  Emulators are not running")
		return err
	}
	if err != nil {
		return err
	}
	m.Log.Info().Msg("🛑 Emulators stopped")
	return nil
}

// Status reports pid liveness and, when running, the hub listing.
func (m *Manager) Status(ctx context.Context) Status {
	st := Status{LogPath: m.LogFile()}
	st.PID, st.Running = process.Running(m.PIDFile())
	if !st.Running {
		return st
	}

	emulators, err := m.Emulators(ctx)
	if err != nil {
		m.Log.Warn().Err(err).Msg("⚠️  Emulator hub not reachable")
		return st
	}
	st.Emulators = emulators
	return st
}

// Restart stops running emulators (if any) and starts them again.
func (m *Manager) Restart(ctx context.Context, opts StartOptions) (Status, error) {
	if err := m.Stop(ctx); err != nil && !errors.Is(err, process.ErrNotRunning) {
		return Status{}, err
	}
	return m.Start(ctx, opts)
}
