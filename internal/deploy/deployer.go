package deploy

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"fbdevops/internal/manifest"
	"fbdevops/internal/runner"

	"github.com/go-faster/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var ErrNotAuthenticated = errors.New("firebase CLI is not authenticated, run `firebase login`")

const DefaultBackoff = 10 * time.Second

// Deployer drives the Firebase CLI against a prepared directory.
type Deployer struct {
	Runner   runner.Runner
	Log      zerolog.Logger
	Attempts int
	Backoff  time.Duration
	// Sleep waits between attempts; it returns early with ctx.Err().
	Sleep  func(ctx context.Context, d time.Duration) error
	Stdout io.Writer
	Stderr io.Writer

	tracer   trace.Tracer
	attempts metric.Int64Counter
}

func NewDeployer(r runner.Runner, log zerolog.Logger, attempts int) *Deployer {
	if attempts < 1 {
		attempts = 1
	}
	counter, err := otel.Meter(tracerName).Int64Counter("fbdevops.deploy.attempts",
		metric.WithDescription("Number of firebase deploy invocations"),
	)
	if err != nil {
		log.Debug().Err(err).Msg("deploy attempts counter unavailable")
	}

	return &Deployer{
		Runner:   r,
		Log:      log,
		Attempts: attempts,
		Backoff:  DefaultBackoff,
		Sleep:    sleep,
		tracer:   otel.Tracer(tracerName),
		attempts: counter,
	}
}

// Preflight checks that the CLI tools exist and the session is authenticated.
func (d *Deployer) Preflight(ctx context.Context) error {
	if err := runner.Require(d.Runner, "firebase", "npm"); err != nil {
		return err
	}
	if _, err := d.Runner.Run(ctx, runner.Cmd{Name: "firebase", Args: []string{"projects:list"}}); err != nil {
		var exitErr *runner.ExitError
		if errors.As(err, &exitErr) {
			return ErrNotAuthenticated
		}
		return err
	}
	return nil
}

// Deploy installs the functions dependencies and runs firebase deploy,
// retrying failed attempts with a fixed backoff.
func (d *Deployer) Deploy(ctx context.Context, dir, project string, force bool) (state State, err error) {
	ctx, span := d.tracer.Start(ctx, "deploy", trace.WithAttributes(
		attribute.String("project", project),
		attribute.Int("max_attempts", d.Attempts),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("state", state.String()))
		span.End()
	}()

	m := &machine{state: StateValidated}
	if project == "" {
		return m.state, errors.New("project id is required")
	}
	l := manifest.Layout{Root: dir}
	if _, err := os.Stat(l.FirebaseJSON()); err != nil {
		return m.state, errors.Wrap(err, "not a deployment directory")
	}

	m.to(StateDeploying)
	d.Log.Info().Str("project", project).Str("dir", dir).Msg("🚀 Deploying functions")

	if _, err := d.run(ctx, runner.Cmd{
		Name: "npm",
		Args: []string{"install", "--no-audit", "--no-fund", "firebase-functions", "firebase-admin"},
		Dir:  l.FunctionsDir(),
	}); err != nil {
		m.to(StateFailed)
		return m.state, errors.Wrap(err, "npm install")
	}

	args := []string{"deploy", "--only", "functions", "--project", project}
	if force {
		args = append(args, "--force")
	}

	err = d.retry(ctx, project, runner.Cmd{Name: "firebase", Args: args, Dir: dir})
	if err != nil {
		m.to(StateFailed)
		return m.state, err
	}

	m.to(StateDeployed)
	d.Log.Info().Str("project", project).Msg("✅ Deployment complete")
	return m.state, nil
}

// DeployFunction deploys a single function from an existing project dir.
func (d *Deployer) DeployFunction(ctx context.Context, dir, project, name string) error {
	if name == "" {
		return errors.New("function name is required")
	}
	args := []string{"deploy", "--only", "functions:" + name}
	if project != "" {
		args = append(args, "--project", project)
	}
	d.Log.Info().Str("function", name).Msg("🚀 Deploying function")
	return d.retry(ctx, project, runner.Cmd{Name: "firebase", Args: args, Dir: dir})
}

// RemoveFunction deletes a deployed function without prompting.
func (d *Deployer) RemoveFunction(ctx context.Context, name, region, project string) error {
	if name == "" {
		return errors.New("function name is required")
	}
	args := []string{"functions:delete", name}
	if region != "" {
		args = append(args, "--region", region)
	}
	if project != "" {
		args = append(args, "--project", project)
	}
	args = append(args, "--force")

	d.Log.Info().Str("function", name).Msg("🗑️  Removing function")
	_, err := d.run(ctx, runner.Cmd{Name: "firebase", Args: args})
	return err
}

func (d *Deployer) retry(ctx context.Context, project string, c runner.Cmd) error {
	var err error
	for attempt := 1; attempt <= d.Attempts; attempt++ {
		_, err = d.run(ctx, c)
		d.count(ctx, project, err == nil)
		if err == nil {
			return nil
		}
		if attempt == d.Attempts {
			break
		}

		d.Log.Warn().Err(err).Int("attempt", attempt).Int("of", d.Attempts).
			Dur("backoff", d.Backoff).Msg("⚠️  Deploy failed, retrying")
		if serr := d.Sleep(ctx, d.Backoff); serr != nil {
			return serr
		}
	}
	return errors.Wrapf(err, "%s failed after %d attempts", c.String(), d.Attempts)
}

func (d *Deployer) run(ctx context.Context, c runner.Cmd) (runner.Result, error) {
	c.Stdout = d.Stdout
	c.Stderr = d.Stderr
	d.Log.Debug().Str("cmd", c.String()).Str("dir", c.Dir).Msg("exec")
	res, err := d.Runner.Run(ctx, c)
	if err != nil && strings.TrimSpace(res.Stderr) != "" {
		d.Log.Debug().Str("stderr", res.Stderr).Msg("command output")
	}
	return res, err
}

func (d *Deployer) count(ctx context.Context, project string, ok bool) {
	if d.attempts == nil {
		return
	}
	d.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("project", project),
		attribute.Bool("success", ok),
	))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
