package cli

import (
	"fmt"
	"io"
	"time"

	"fbdevops/internal/client"
	"fbdevops/internal/emulator"
	"fbdevops/internal/process"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
)

func (a *App) emulators() *emulator.Manager {
	return emulator.New(a.Config, a.Runner, a.Log)
}

func (a *App) startLocalCmd() *cobra.Command {
	var (
		only         []string
		importDir    string
		exportOnExit bool
	)
	cmd := &cobra.Command{
		Use:   "start-local",
		Short: "Start the Firebase emulators in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m := a.emulators()
			if importDir == "" {
				importDir = existingDir(m.DataDir())
			}
			st, err := m.Start(cmd.Context(), emulator.StartOptions{
				ImportDir:    importDir,
				ExportOnExit: exportOnExit,
				Only:         only,
			})
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&only, "only", nil, "Emulators to start (default $EMULATORS_ONLY or all)")
	cmd.Flags().StringVar(&importDir, "import", "", "Seed data directory (default .emulators/data when present)")
	cmd.Flags().BoolVar(&exportOnExit, "export-on-exit", true, "Export data back on shutdown")
	return cmd
}

func (a *App) stopLocalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop-local",
		Short: "Stop the background emulators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := a.emulators().Stop(cmd.Context())
			if errors.Is(err, process.ErrNotRunning) {
				return nil
			}
			return err
		},
	}
}

func (a *App) statusLocalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status-local",
		Short: "Show emulator status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printStatus(cmd.OutOrStdout(), a.emulators().Status(cmd.Context()))
			return nil
		},
	}
}

func printStatus(w io.Writer, st emulator.Status) {
	if !st.Running {
		fmt.Fprintln(w, "💤 Emulators not running")
		return
	}
	fmt.Fprintf(w, "🔥 Emulators running (pid %d, log %s)\n", st.PID, st.LogPath)
	for _, e := range st.Emulators {
		fmt.Fprintf(w, "   %-12s http://%s:%d\n", e.Name, e.Host, e.Port)
	}
}

func (a *App) preserveDataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preserve-data",
		Short: "Export, import, back up and restore emulator data",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "export [dir]",
			Short: "Export the running emulators' data",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				dir, err := a.emulators().Export(cmd.Context(), firstArg(args))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), dir)
				return nil
			},
		},
		&cobra.Command{
			Use:   "import [dir]",
			Short: "Restart the emulators seeded from exported data",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				st, err := a.emulators().Import(cmd.Context(), firstArg(args))
				if err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), st)
				return nil
			},
		},
		a.backupCmd(),
		&cobra.Command{
			Use:   "restore NAME",
			Short: "Replace the emulator data with a backup",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.emulators().Restore(args[0])
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List backups",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				backups, err := a.emulators().Backups()
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if len(backups) == 0 {
					fmt.Fprintln(w, "No backups")
				}
				for _, b := range backups {
					archived := ""
					if b.Archive != "" {
						archived = "  (archived)"
					}
					fmt.Fprintf(w, "%s%s\n", b.Name, archived)
				}
				return nil
			},
		},
	)
	return cmd
}

func (a *App) backupCmd() *cobra.Command {
	var (
		upload bool
		prefix string
	)
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export into a new timestamped backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var up emulator.Uploader
			if upload {
				bucket, err := client.Bucket(cmd.Context(), a.Config)
				if err != nil {
					return err
				}
				up = emulator.BucketUploader{Bucket: bucket, Prefix: prefix}
			}

			b, err := a.emulators().Backup(cmd.Context(), time.Now(), up)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), b.Name)
			return nil
		},
	}
	cmd.Flags().BoolVar(&upload, "upload", false, "Also upload a tar.gz to $FIREBASE_STORAGE_BUCKET")
	cmd.Flags().StringVar(&prefix, "prefix", "emulator-backups", "Object prefix for uploads")
	return cmd
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
