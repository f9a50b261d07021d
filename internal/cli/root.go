package cli

import (
	"path/filepath"

	"fbdevops/internal/config"
	"fbdevops/internal/logger"
	"fbdevops/internal/policy"
	"fbdevops/internal/runner"
	"fbdevops/internal/services"

	"github.com/go-faster/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var errNoProject = errors.New("project id required, pass --project or set FIREBASE_PROJECT_ID")

// App carries what every subcommand needs. Config is final once the
// persistent flags are applied in PersistentPreRunE.
type App struct {
	Config config.Config
	Runner runner.Runner
	Log    zerolog.Logger

	verbose    bool
	logFormat  string
	project    string
	projectDir string
	policy     string
}

// New builds the command tree.
func New(cfg config.Config, r runner.Runner) *cobra.Command {
	a := &App{Config: cfg, Runner: r, Log: zerolog.Nop()}

	root := &cobra.Command{
		Use:           "fbdevops",
		Short:         "Firebase emulator, deployment and sharing toolkit",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Debug logging")
	pf.StringVar(&a.logFormat, "log-format", string(logger.FormatConsole), "Log format: console or json")
	pf.StringVarP(&a.project, "project", "p", "", "Firebase project id (default $FIREBASE_PROJECT_ID)")
	pf.StringVar(&a.projectDir, "project-dir", "", "Project root (default $PROJECT_ROOT or cwd)")
	pf.StringVar(&a.policy, "policy", "", "Validation policy: prompt, approve or reject (default $VALIDATION_POLICY)")

	root.AddCommand(
		a.startLocalCmd(),
		a.stopLocalCmd(),
		a.statusLocalCmd(),
		a.deployLocalCmd(),
		a.deployRemoteCmd(),
		a.prepareDeployCmd(),
		a.deployFromCmd(),
		a.deployFunctionCmd(),
		a.removeFunctionCmd(),
		a.checkTopicsCmd(),
		a.createTopicCmd(),
		a.createTopicsCmd(),
		a.ensureTopicsCmd(),
		a.testPubSubCmd(),
		a.monitorCmd(),
		a.preserveDataCmd(),
		a.shareCmd(),
	)
	return root
}

func (a *App) setup(cmd *cobra.Command) error {
	switch f := logger.Format(a.logFormat); f {
	case logger.FormatConsole, logger.FormatJSON:
		a.Log = logger.New(cmd.ErrOrStderr(), f, a.verbose)
	default:
		return errors.Errorf("unknown log format %q", a.logFormat)
	}

	if a.project != "" {
		a.Config.ProjectID = a.project
	}
	if a.projectDir != "" {
		root, err := filepath.Abs(a.projectDir)
		if err != nil {
			return err
		}
		// a services dir that followed the old root follows the new one
		if a.Config.ServicesDir == filepath.Join(a.Config.ProjectRoot, "services") {
			a.Config.ServicesDir = filepath.Join(root, "services")
		}
		a.Config.ProjectRoot = root
	}
	if a.policy != "" {
		a.Config.ValidationPolicy = a.policy
	}
	if _, err := policy.Parse(a.Config.ValidationPolicy); err != nil {
		return err
	}
	return nil
}

func (a *App) requireProject() error {
	if a.Config.ProjectID == "" {
		return errNoProject
	}
	return nil
}

func (a *App) decider(cmd *cobra.Command) *policy.Decider {
	// validated in setup
	p, _ := policy.Parse(a.Config.ValidationPolicy)
	return policy.New(p, cmd.InOrStdin(), cmd.OutOrStdout())
}

func (a *App) exporter() services.Exporter {
	return services.AutoExporter{Runner: a.Runner}
}
