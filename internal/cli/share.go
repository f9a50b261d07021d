package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"fbdevops/internal"
	"fbdevops/internal/client"
	"fbdevops/internal/monitor"
	"fbdevops/internal/process"
	"fbdevops/internal/pubsub"
	"fbdevops/internal/server"
	"fbdevops/internal/store"
	"fbdevops/internal/tunnel"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
)

// hub-internal emulators that are never worth sharing
var unshared = map[string]bool{"hub": true, "logging": true}

func (a *App) tunnels() *tunnel.Manager {
	return tunnel.New(a.Config, a.Runner, a.Log)
}

func (a *App) shareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Expose the local emulators through ngrok tunnels",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "start [name:port...]",
			Short: "Start tunnels, by default one per running emulator",
			RunE: func(cmd *cobra.Command, args []string) error {
				targets, err := a.shareTargets(cmd.Context(), args)
				if err != nil {
					return err
				}
				m := a.tunnels()
				for _, t := range targets {
					tun, err := m.Start(cmd.Context(), t.name, t.port)
					if errors.Is(err, tunnel.ErrAlreadyRunning) {
						a.Log.Info().Str("name", t.name).Msg("ℹ️  Tunnel already running")
						continue
					}
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "🌍 %-12s %s\n", tun.Name, tun.URL)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "stop [name]",
			Short: "Stop one tunnel, or all of them",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				m := a.tunnels()
				if len(args) == 0 {
					return m.StopAll(cmd.Context())
				}
				err := m.Stop(cmd.Context(), args[0])
				if errors.Is(err, process.ErrNotRunning) {
					a.Log.Info().Str("name", args[0]).Msg("ℹ️  Tunnel not running")
					return nil
				}
				return err
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List tunnels",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				list, err := a.tunnels().List()
				if err != nil {
					return err
				}
				printTunnels(cmd.OutOrStdout(), list)
				return nil
			},
		},
		&cobra.Command{
			Use:   "auth TOKEN",
			Short: "Store the ngrok auth token",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.tunnels().SaveToken(args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "🔑 ngrok auth token saved")
				return nil
			},
		},
		a.dashboardCmd(),
	)
	return cmd
}

type shareTarget struct {
	name string
	port int
}

func (a *App) shareTargets(ctx context.Context, args []string) ([]shareTarget, error) {
	var out []shareTarget
	for _, arg := range args {
		name, rawPort, ok := strings.Cut(arg, ":")
		port, err := strconv.Atoi(rawPort)
		if !ok || err != nil || port <= 0 {
			return nil, errors.Errorf("invalid tunnel %q, want name:port", arg)
		}
		out = append(out, shareTarget{name: name, port: port})
	}
	if len(out) > 0 {
		return out, nil
	}

	emulators, err := a.emulators().Emulators(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "emulators are not running")
	}
	for _, e := range emulators {
		if !unshared[e.Name] {
			out = append(out, shareTarget{name: e.Name, port: e.Port})
		}
	}
	return out, nil
}

func printTunnels(w io.Writer, list []tunnel.Tunnel) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No tunnels")
	}
	for _, t := range list {
		state := "stopped"
		if t.Running {
			state = "running"
		}
		fmt.Fprintf(w, "%-12s %-6d %-8s %s\n", t.Name, t.Port, state, t.URL)
	}
}

type monitorFlags struct {
	firestore bool
	topics    bool
	countsTTL time.Duration
}

func (f *monitorFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.firestore, "firestore", true, "Count Firestore documents per collection")
	cmd.Flags().BoolVar(&f.topics, "topics", true, "List Pub/Sub topics")
	cmd.Flags().DurationVar(&f.countsTTL, "counts-ttl", 30*time.Second, "How long document counts are reused")
}

// monitor wires the configured sources. The returned func closes the Cloud
// clients it opened.
func (a *App) monitor(ctx context.Context, f monitorFlags) (*monitor.Monitor, func()) {
	src := monitor.Sources{
		Emulators: a.emulators(),
		Tunnels:   a.tunnels(),
	}
	var closers []func() error

	if f.firestore {
		fs, err := client.Firestore(ctx, a.Config)
		if err != nil {
			a.Log.Warn().Err(err).Msg("⚠️  Firestore unavailable")
		} else {
			st := store.New(fs)
			src.Collections = &st
			closers = append(closers, fs.Close)
		}
	}
	if f.topics {
		ps, err := client.PubSub(ctx, a.Config)
		if err != nil {
			a.Log.Warn().Err(err).Msg("⚠️  Pub/Sub unavailable")
		} else {
			src.Topics = pubsub.New(ps, a.Log)
			closers = append(closers, ps.Close)
		}
	}

	return monitor.New(a.Config.ProjectID, src, f.countsTTL), func() {
		for _, c := range closers {
			_ = c()
		}
	}
}

func (a *App) monitorCmd() *cobra.Command {
	var (
		mf       monitorFlags
		watch    bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "monitor-resources",
		Short: "Show emulators, tunnels, Firestore collections and Pub/Sub topics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, closeAll := a.monitor(cmd.Context(), mf)
			defer closeAll()

			w := cmd.OutOrStdout()
			if !watch {
				monitor.Render(w, m.Snapshot(cmd.Context()))
				return nil
			}

			err := m.Watch(cmd.Context(), interval, func(s monitor.Snapshot) {
				monitor.Render(w, s)
				fmt.Fprintln(w)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	mf.register(cmd)
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Refresh until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "Refresh interval with --watch")
	return cmd
}

func (a *App) dashboardCmd() *cobra.Command {
	var (
		mf   monitorFlags
		addr string
		push time.Duration
	)
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Serve a status page for the shared emulators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, closeAll := a.monitor(cmd.Context(), mf)
			defer closeAll()

			return internal.Serve(cmd.Context(), server.New(addr, m, a.Log, push), a.Log)
		},
	}
	mf.register(cmd)
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8089", "Listen address")
	cmd.Flags().DurationVar(&push, "push-interval", 2*time.Second, "How often browsers are checked for changes")
	return cmd
}
