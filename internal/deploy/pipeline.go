package deploy

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fbdevops/internal/config"
	"fbdevops/internal/manifest"
	"fbdevops/internal/policy"
	"fbdevops/internal/selector"
	"fbdevops/internal/services"
	"fbdevops/internal/validate"

	"github.com/go-faster/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrAborted is returned when the validation policy declines to continue.
	ErrAborted = errors.New("deployment aborted")
	// ErrInvalid is returned when the assembled directory is structurally broken.
	ErrInvalid = errors.New("deployment directory is invalid")
	// ErrUnsafeOutput is returned when clearing the output directory would
	// touch the project or its services.
	ErrUnsafeOutput = errors.New("output directory overlaps the project sources")
)

const tracerName = "fbdevops/internal/deploy"

// WorkspacePrefix names the scratch directories created by Prepare.
const WorkspacePrefix = "firebase-deployment-"

type PrepareOptions struct {
	// Services restricts the run to these service names. Empty means all.
	Services      []string
	PublicAPIOnly bool
	Mode          selector.Mode
	// OutputDir is recreated from scratch when set; otherwise a temp dir is used.
	OutputDir string
}

// Prepared is a validated deployment directory.
type Prepared struct {
	Dir      string
	State    State
	Manifest manifest.Result
	Report   validate.Report
}

// Cleanup removes the deployment directory.
func (p Prepared) Cleanup() error {
	if p.Dir == "" {
		return nil
	}
	return os.RemoveAll(p.Dir)
}

type Pipeline struct {
	cfg        config.Config
	exporter   services.Exporter
	decider    *policy.Decider
	thresholds validate.Thresholds
	log        zerolog.Logger
	out        io.Writer
	tempDir    string
	now        func() time.Time
	tracer     trace.Tracer
}

type PipelineOption func(*Pipeline)

func WithThresholds(t validate.Thresholds) PipelineOption {
	return func(p *Pipeline) { p.thresholds = t }
}

// WithReport sets where the validation report is printed.
func WithReport(w io.Writer) PipelineOption {
	return func(p *Pipeline) { p.out = w }
}

// WithTempDir sets the parent of scratch workspaces.
func WithTempDir(dir string) PipelineOption {
	return func(p *Pipeline) { p.tempDir = dir }
}

func WithLogger(l zerolog.Logger) PipelineOption {
	return func(p *Pipeline) { p.log = l }
}

func NewPipeline(cfg config.Config, ex services.Exporter, d *policy.Decider, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		cfg:        cfg,
		exporter:   ex,
		decider:    d,
		thresholds: validate.DefaultThresholds(),
		log:        zerolog.Nop(),
		out:        io.Discard,
		now:        time.Now,
		tracer:     otel.Tracer(tracerName),
	}
	for _, o := range opts {
		o(p)
	}
	if p.decider == nil {
		p.decider = policy.New(policy.Reject, nil, nil)
	}
	return p
}

// Prepare assembles and validates a deployment directory. On any error the
// directory is removed before returning.
func (p *Pipeline) Prepare(ctx context.Context, opts PrepareOptions) (res Prepared, err error) {
	ctx, span := p.tracer.Start(ctx, "prepare", trace.WithAttributes(
		attribute.String("project", p.cfg.ProjectID),
		attribute.Bool("public_api_only", opts.PublicAPIOnly),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	m := &machine{state: StatePreparing, observe: func(from, to State) {
		res.State = to
		p.log.Debug().Stringer("from", from).Stringer("to", to).Msg("state")
	}}
	res.State = StatePreparing

	descs, err := services.Load(ctx, p.cfg.ServicesDir, p.exporter)
	if err != nil {
		m.to(StateAborted)
		return res, err
	}
	if len(opts.Services) > 0 {
		if descs, err = services.Filter(descs, opts.Services); err != nil {
			m.to(StateAborted)
			return res, err
		}
	}
	if len(descs) == 0 {
		m.to(StateAborted)
		return res, errors.Errorf("no services found in %s", p.cfg.ServicesDir)
	}

	dir, err := p.workspace(opts.OutputDir)
	if err != nil {
		m.to(StateAborted)
		return res, err
	}
	res.Dir = dir
	defer func() {
		if err != nil {
			if rmErr := os.RemoveAll(dir); rmErr != nil {
				p.log.Warn().Err(rmErr).Str("dir", dir).Msg("⚠️  Failed to remove workspace")
			}
			res.Dir = ""
		}
	}()
	p.log.Info().Str("dir", dir).Int("services", len(descs)).Msg("📦 Preparing deployment")

	l := manifest.Layout{Root: dir}
	mf := manifest.Manifest{
		ProjectID:    p.cfg.ProjectID,
		Region:       p.cfg.Region,
		Runtime:      p.cfg.Runtime,
		Memory:       p.cfg.Memory,
		Timeout:      p.cfg.Timeout,
		Services:     descs,
		EnvOverrides: p.cfg.ProductionEnv(),
	}
	mopts := manifest.Options{SourceEnv: filepath.Join(p.cfg.ProjectRoot, ".env")}
	if opts.PublicAPIOnly {
		mopts.PublicAPI = p.cfg.PublicAPIFunctions
	}

	res.Manifest, err = manifest.Write(l, mf, mopts)
	if err != nil {
		m.to(StateAborted)
		return res, errors.Wrap(err, "synthesize manifest")
	}
	for _, w := range res.Manifest.Warnings {
		p.log.Warn().Msg("⚠️  " + w)
	}
	for _, k := range res.Manifest.DroppedEnv {
		p.log.Debug().Str("key", k).Msg("dropped local-only env entry")
	}

	// only the services referenced by the generated index are shipped
	copied, err := services.Filter(descs, res.Manifest.Services)
	if err != nil {
		m.to(StateAborted)
		return res, err
	}
	n, err := selector.CopyAll(copied, p.cfg.ServicesDir, l.ServicesDir(), opts.Mode)
	if err != nil {
		m.to(StateAborted)
		return res, errors.Wrap(err, "copy services")
	}
	p.log.Info().Int("files", n).Int("exports", len(res.Manifest.Exports)).Msg("📁 Services copied")

	m.to(StateValidating)
	res.Report, err = p.validate(ctx, l)
	if err != nil {
		m.to(StateAborted)
		return res, err
	}

	m.to(StateValidated)
	p.log.Info().Str("dir", dir).Msg("✅ Deployment directory ready")
	return res, nil
}

// Check validates an existing deployment directory under the same policy as
// Prepare. The directory is never removed.
func (p *Pipeline) Check(ctx context.Context, dir string) (validate.Report, error) {
	return p.validate(ctx, manifest.Layout{Root: dir})
}

func (p *Pipeline) validate(ctx context.Context, l manifest.Layout) (validate.Report, error) {
	ctx, span := p.tracer.Start(ctx, "validate")
	defer span.End()

	r, err := validate.Validate(l, p.thresholds)
	if err != nil {
		return r, err
	}
	validate.Render(p.out, r)
	span.SetAttributes(
		attribute.Int64("total_bytes", r.TotalBytes),
		attribute.Int("critical_services", len(r.CriticalServices)),
	)

	if len(r.StructuralIssues) > 0 {
		return r, errors.Wrapf(ErrInvalid, "%d structural issues", len(r.StructuralIssues))
	}

	if len(r.NodeModules) > 0 {
		d, err := p.decider.Confirm(ctx, fmt.Sprintf("Found %d node_modules directories. Remove them and continue?", len(r.NodeModules)))
		if err != nil {
			return r, err
		}
		if !d.Proceed {
			return r, errors.Wrap(ErrAborted, "node_modules present: "+d.Reason)
		}
		if err := validate.RemoveNodeModules(r); err != nil {
			return r, err
		}
		p.log.Info().Int("count", len(r.NodeModules)).Msg("🧹 Removed node_modules")
		r.NodeModules = nil
	}

	if len(r.CriticalServices) > 0 {
		d, err := p.decider.Confirm(ctx, fmt.Sprintf("%d services exceed %dMB. Continue anyway?", len(r.CriticalServices), p.thresholds.ServiceCritical/validate.MB))
		if err != nil {
			return r, err
		}
		if !d.Proceed {
			return r, errors.Wrap(ErrAborted, "critical service size: "+d.Reason)
		}
	}

	switch r.TotalClass {
	case validate.ClassCritical:
		p.log.Error().Int64("bytes", r.TotalBytes).Msg("❌ Deployment exceeds the total size error threshold")
	case validate.ClassLarge:
		p.log.Warn().Int64("bytes", r.TotalBytes).Msg("⚠️  Deployment exceeds the total size warning threshold")
	}

	return r, nil
}

func (p *Pipeline) workspace(out string) (string, error) {
	if out == "" {
		prefix := fmt.Sprintf("%s%d-", WorkspacePrefix, p.now().Unix())
		dir, err := os.MkdirTemp(p.tempDir, prefix)
		if err != nil {
			return "", errors.Wrap(err, "create workspace")
		}
		return dir, nil
	}

	abs, err := filepath.Abs(out)
	if err != nil {
		return "", err
	}
	if err := p.checkOutput(abs); err != nil {
		return "", err
	}
	if err := os.RemoveAll(abs); err != nil {
		return "", errors.Wrapf(err, "clear %s", abs)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", errors.Wrap(err, "create output dir")
	}
	return abs, nil
}

// checkOutput refuses an output dir that would swallow the project root or
// overlap the services dir. Symlinks are resolved first.
func (p *Pipeline) checkOutput(out string) error {
	o, err := resolve(out)
	if err != nil {
		return err
	}
	if p.cfg.ProjectRoot != "" {
		root, err := resolve(p.cfg.ProjectRoot)
		if err != nil {
			return err
		}
		if within(root, o) {
			return errors.Wrapf(ErrUnsafeOutput, "%s contains the project root", out)
		}
	}
	if p.cfg.ServicesDir != "" {
		svc, err := resolve(p.cfg.ServicesDir)
		if err != nil {
			return err
		}
		if within(svc, o) || within(o, svc) {
			return errors.Wrapf(ErrUnsafeOutput, "%s overlaps the services dir", out)
		}
	}
	return nil
}

// resolve evaluates symlinks in the longest existing prefix of path.
func resolve(path string) (string, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	r, err := filepath.EvalSymlinks(path)
	if err == nil {
		return r, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}
	parent := filepath.Dir(path)
	if parent == path {
		return path, nil
	}
	dir, err := resolve(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.Base(path)), nil
}

// within reports whether path equals dir or lies below it.
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
