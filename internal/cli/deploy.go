package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"fbdevops/internal/config"
	"fbdevops/internal/deploy"
	"fbdevops/internal/emulator"
	"fbdevops/internal/manifest"
	"fbdevops/internal/selector"
	"fbdevops/internal/services"

	"github.com/spf13/cobra"
)

const localDeployDir = ".firebase-local"

type prepareFlags struct {
	servicesDir   string
	servicesFile  string
	publicAPIOnly bool
	copyAll       bool
}

func (f *prepareFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.servicesDir, "services-dir", "", "Services directory (default $SERVICES_DIR or <project-dir>/services)")
	cmd.Flags().StringVar(&f.servicesFile, "services-file", "", "File listing the services to include")
	cmd.Flags().BoolVar(&f.publicAPIOnly, "public-api-only", false, "Export only the public API functions")
	cmd.Flags().BoolVar(&f.copyAll, "copy-all", false, "Copy whole service trees instead of the allow-list")
}

// options resolves the flags against cfg, returning the adjusted config.
func (f *prepareFlags) options(cfg config.Config) (config.Config, deploy.PrepareOptions, error) {
	opts := deploy.PrepareOptions{
		Services:      cfg.FunctionsFilter,
		PublicAPIOnly: f.publicAPIOnly,
		Mode:          selector.ModeAllowList,
	}
	if f.copyAll {
		opts.Mode = selector.ModeCopyAll
	}
	if f.servicesDir != "" {
		dir, err := filepath.Abs(f.servicesDir)
		if err != nil {
			return cfg, opts, err
		}
		cfg.ServicesDir = dir
	}
	if f.servicesFile != "" {
		names, err := services.ReadServicesFile(f.servicesFile)
		if err != nil {
			return cfg, opts, err
		}
		opts.Services = names
	}
	return cfg, opts, nil
}

func (a *App) pipeline(cmd *cobra.Command, cfg config.Config) *deploy.Pipeline {
	return deploy.NewPipeline(cfg, a.exporter(), a.decider(cmd),
		deploy.WithReport(cmd.OutOrStdout()),
		deploy.WithLogger(a.Log),
	)
}

func (a *App) prepareDeployCmd() *cobra.Command {
	var (
		pf     prepareFlags
		output string
	)
	cmd := &cobra.Command{
		Use:   "prepare-deploy",
		Short: "Assemble and validate a deployment directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, opts, err := pf.options(a.Config)
			if err != nil {
				return err
			}
			opts.OutputDir = output

			res, err := a.pipeline(cmd, cfg).Prepare(cmd.Context(), opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Dir)
			return nil
		},
	}
	pf.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this directory instead of a temp dir")
	return cmd
}

func (a *App) deployFromCmd() *cobra.Command {
	var (
		dir     string
		force   bool
		retries int
	)
	cmd := &cobra.Command{
		Use:   "deploy-from",
		Short: "Deploy a prepared directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireProject(); err != nil {
				return err
			}
			if _, err := a.pipeline(cmd, a.Config).Check(cmd.Context(), dir); err != nil {
				return err
			}

			d := a.deployer(cmd, retries)
			if err := d.Preflight(cmd.Context()); err != nil {
				return err
			}
			_, err := d.Deploy(cmd.Context(), dir, a.Config.ProjectID, force)
			return err
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Prepared deployment directory")
	cmd.Flags().BoolVar(&force, "force", false, "Pass --force to firebase deploy")
	cmd.Flags().IntVar(&retries, "retries", 1, "Deploy attempts")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

func (a *App) deployRemoteCmd() *cobra.Command {
	var (
		pf      prepareFlags
		force   bool
		retries int
	)
	cmd := &cobra.Command{
		Use:   "deploy-remote",
		Short: "Prepare, validate and deploy the functions to Firebase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireProject(); err != nil {
				return err
			}
			cfg, opts, err := pf.options(a.Config)
			if err != nil {
				return err
			}

			d := a.deployer(cmd, retries)
			if err := d.Preflight(cmd.Context()); err != nil {
				return err
			}

			res, err := a.pipeline(cmd, cfg).Prepare(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer func() {
				if err := res.Cleanup(); err != nil {
					a.Log.Warn().Err(err).Str("dir", res.Dir).Msg("⚠️  Failed to remove workspace")
				}
			}()

			_, err = d.Deploy(cmd.Context(), res.Dir, cfg.ProjectID, force)
			return err
		},
	}
	pf.register(cmd)
	cmd.Flags().BoolVar(&force, "force", false, "Pass --force to firebase deploy")
	cmd.Flags().IntVar(&retries, "retries", 3, "Deploy attempts")
	return cmd
}

func (a *App) deployLocalCmd() *cobra.Command {
	var pf prepareFlags
	cmd := &cobra.Command{
		Use:   "deploy-local",
		Short: "Assemble the functions into .firebase-local and restart the emulators on it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, opts, err := pf.options(a.Config)
			if err != nil {
				return err
			}
			opts.OutputDir = filepath.Join(cfg.ProjectRoot, localDeployDir)

			res, err := a.pipeline(cmd, cfg).Prepare(cmd.Context(), opts)
			if err != nil {
				return err
			}

			m := a.emulators()
			st, err := m.Restart(cmd.Context(), emulator.StartOptions{
				ConfigPath: manifest.Layout{Root: res.Dir}.FirebaseJSON(),
				ImportDir:  existingDir(m.DataDir()),
				Only:       m.Only,
			})
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
	pf.register(cmd)
	return cmd
}

func (a *App) deployFunctionCmd() *cobra.Command {
	var name, dir string
	cmd := &cobra.Command{
		Use:   "deploy-function",
		Short: "Deploy a single function",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireProject(); err != nil {
				return err
			}
			if dir == "" {
				dir = a.Config.ProjectRoot
			}
			return a.deployer(cmd, 1).DeployFunction(cmd.Context(), dir, a.Config.ProjectID, name)
		},
	}
	cmd.Flags().StringVarP(&name, "function", "f", "", "Function name")
	cmd.Flags().StringVar(&dir, "dir", "", "Directory holding firebase.json (default project dir)")
	_ = cmd.MarkFlagRequired("function")
	return cmd
}

func (a *App) removeFunctionCmd() *cobra.Command {
	var name, region string
	cmd := &cobra.Command{
		Use:   "remove-function",
		Short: "Delete a deployed function",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireProject(); err != nil {
				return err
			}
			if region == "" {
				region = a.Config.Region
			}
			return a.deployer(cmd, 1).RemoveFunction(cmd.Context(), name, region, a.Config.ProjectID)
		},
	}
	cmd.Flags().StringVarP(&name, "function", "f", "", "Function name")
	cmd.Flags().StringVar(&region, "region", "", "Function region (default $FIREBASE_REGION)")
	_ = cmd.MarkFlagRequired("function")
	return cmd
}

func (a *App) deployer(cmd *cobra.Command, attempts int) *deploy.Deployer {
	d := deploy.NewDeployer(a.Runner, a.Log, attempts)
	d.Stdout = cmd.OutOrStdout()
	d.Stderr = cmd.ErrOrStderr()
	return d
}

func existingDir(dir string) string {
	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		return ""
	}
	return dir
}
