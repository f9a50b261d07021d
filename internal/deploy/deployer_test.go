package deploy_test

import (
	"context"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"fbdevops/internal/deploy"
	"fbdevops/internal/logger"
	"fbdevops/internal/runner"
	"fbdevops/internal/testutil"
	"fbdevops/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func command(name string, args ...string) interface{} {
	return mock.MatchedBy(func(c runner.Cmd) bool {
		return c.Name == name && slices.Equal(c.Args, args)
	})
}

func deployDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(dir, "firebase.json"), "{}")
	testutil.WriteFile(t, filepath.Join(dir, "functions", "package.json"), "{}")
	return dir
}

func newDeployer(t *testing.T, r runner.Runner, attempts int) (*deploy.Deployer, *[]time.Duration) {
	d := deploy.NewDeployer(r, logger.Nop(), attempts)
	var slept []time.Duration
	d.Sleep = func(_ context.Context, dur time.Duration) error {
		slept = append(slept, dur)
		return nil
	}
	return d, &slept
}

var npmInstall = []string{"install", "--no-audit", "--no-fund", "firebase-functions", "firebase-admin"}

func TestDeploy(t *testing.T) {
	dir := deployDir(t)
	r := mocks.NewRunner(t)
	r.On("Run", mock.Anything, mock.MatchedBy(func(c runner.Cmd) bool {
		return c.Name == "npm" && slices.Equal(c.Args, npmInstall) && c.Dir == filepath.Join(dir, "functions")
	})).Return(runner.Result{}, nil).Once()
	r.On("Run", mock.Anything, command("firebase", "deploy", "--only", "functions", "--project", "demo", "--force")).
		Return(runner.Result{}, nil).Once()

	d, slept := newDeployer(t, r, 1)
	state, err := d.Deploy(context.Background(), dir, "demo", true)
	require.NoError(t, err)

	assert.Equal(t, deploy.StateDeployed, state)
	assert.Empty(t, *slept)
}

func TestDeploy_RetriesWithFixedBackoff(t *testing.T) {
	dir := deployDir(t)
	r := mocks.NewRunner(t)
	r.On("Run", mock.Anything, command("npm", npmInstall...)).Return(runner.Result{}, nil).Once()
	deployCmd := command("firebase", "deploy", "--only", "functions", "--project", "demo")
	r.On("Run", mock.Anything, deployCmd).Return(runner.Result{}, &runner.ExitError{Cmd: "firebase deploy", Code: 2}).Twice()
	r.On("Run", mock.Anything, deployCmd).Return(runner.Result{}, nil).Once()

	d, slept := newDeployer(t, r, 3)
	state, err := d.Deploy(context.Background(), dir, "demo", false)
	require.NoError(t, err)

	assert.Equal(t, deploy.StateDeployed, state)
	assert.Equal(t, []time.Duration{deploy.DefaultBackoff, deploy.DefaultBackoff}, *slept)
}

func TestDeploy_ExhaustedPropagatesExitCode(t *testing.T) {
	dir := deployDir(t)
	r := mocks.NewRunner(t)
	r.On("Run", mock.Anything, command("npm", npmInstall...)).Return(runner.Result{}, nil).Once()
	r.On("Run", mock.Anything, command("firebase", "deploy", "--only", "functions", "--project", "demo")).
		Return(runner.Result{Stderr: "quota"}, &runner.ExitError{Cmd: "firebase deploy", Code: 7}).Times(3)

	d, slept := newDeployer(t, r, 3)
	state, err := d.Deploy(context.Background(), dir, "demo", false)
	require.Error(t, err)

	assert.Equal(t, deploy.StateFailed, state)
	assert.Equal(t, 7, runner.ExitCode(err))
	assert.Len(t, *slept, 2)
}

func TestDeploy_NpmFailure(t *testing.T) {
	dir := deployDir(t)
	r := mocks.NewRunner(t)
	r.On("Run", mock.Anything, command("npm", npmInstall...)).
		Return(runner.Result{}, &runner.ExitError{Cmd: "npm install", Code: 1}).Once()

	d, _ := newDeployer(t, r, 3)
	state, err := d.Deploy(context.Background(), dir, "demo", false)
	require.Error(t, err)
	assert.Equal(t, deploy.StateFailed, state)
}

func TestDeploy_NotADeploymentDir(t *testing.T) {
	r := mocks.NewRunner(t)

	d, _ := newDeployer(t, r, 1)
	state, err := d.Deploy(context.Background(), t.TempDir(), "demo", false)
	require.Error(t, err)
	assert.Equal(t, deploy.StateValidated, state)
}

func TestDeploy_CancelledDuringBackoff(t *testing.T) {
	dir := deployDir(t)
	r := mocks.NewRunner(t)
	r.On("Run", mock.Anything, command("npm", npmInstall...)).Return(runner.Result{}, nil).Once()
	r.On("Run", mock.Anything, command("firebase", "deploy", "--only", "functions", "--project", "demo")).
		Return(runner.Result{}, &runner.ExitError{Code: 1}).Once()

	d := deploy.NewDeployer(r, logger.Nop(), 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state, err := d.Deploy(ctx, dir, "demo", false)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, deploy.StateFailed, state)
}

func TestDeployFunction(t *testing.T) {
	r := mocks.NewRunner(t)
	r.On("Run", mock.Anything, command("firebase", "deploy", "--only", "functions:searchScores", "--project", "demo")).
		Return(runner.Result{}, nil).Once()

	d, _ := newDeployer(t, r, 1)
	require.NoError(t, d.DeployFunction(context.Background(), t.TempDir(), "demo", "searchScores"))
	assert.Error(t, d.DeployFunction(context.Background(), t.TempDir(), "demo", ""))
}

func TestRemoveFunction(t *testing.T) {
	r := mocks.NewRunner(t)
	r.On("Run", mock.Anything, command("firebase", "functions:delete", "searchScores", "--region", "us-central1", "--project", "demo", "--force")).
		Return(runner.Result{}, nil).Once()

	d, _ := newDeployer(t, r, 1)
	require.NoError(t, d.RemoveFunction(context.Background(), "searchScores", "us-central1", "demo"))
}

func TestPreflight(t *testing.T) {
	r := mocks.NewRunner(t)
	r.On("LookPath", "firebase").Return("/usr/bin/firebase", nil)
	r.On("LookPath", "npm").Return("/usr/bin/npm", nil)
	r.On("Run", mock.Anything, command("firebase", "projects:list")).
		Return(runner.Result{}, &runner.ExitError{Code: 1}).Once()

	d, _ := newDeployer(t, r, 1)
	assert.ErrorIs(t, d.Preflight(context.Background()), deploy.ErrNotAuthenticated)
}

func TestPreflight_MissingTool(t *testing.T) {
	r := mocks.NewRunner(t)
	r.On("LookPath", "firebase").Return("", runner.ErrToolNotFound)

	d, _ := newDeployer(t, r, 1)
	assert.ErrorIs(t, d.Preflight(context.Background()), runner.ErrToolNotFound)
}

func TestStateTransitions(t *testing.T) {
	assert.True(t, deploy.StatePreparing.CanTransition(deploy.StateValidating))
	assert.True(t, deploy.StateValidating.CanTransition(deploy.StateAborted))
	assert.True(t, deploy.StateDeploying.CanTransition(deploy.StateDeployed))
	assert.False(t, deploy.StateAborted.CanTransition(deploy.StateDeploying))
	assert.False(t, deploy.StateValidating.CanTransition(deploy.StateDeploying))
	assert.True(t, deploy.StateDeployed.Terminal())
	assert.True(t, deploy.StateAborted.Terminal())
	assert.True(t, deploy.StateFailed.Terminal())
	assert.False(t, deploy.StateValidated.Terminal())
	assert.Equal(t, "VALIDATED", deploy.StateValidated.String())
}
