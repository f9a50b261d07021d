package manifest

import (
	"os"
	"strings"

	"fbdevops/internal/services"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Manifest describes one deployment. It is built once per prepare run.
type Manifest struct {
	ProjectID    string
	Region       string
	Runtime      string
	Memory       string
	Timeout      string
	Services     []services.Descriptor
	EnvOverrides map[string]string
	// EnvironmentVariables are embedded into firebase.json.
	EnvironmentVariables map[string]string
}

// Options control how the aggregate services/index.js is generated.
type Options struct {
	// PublicAPI, when non-empty, restricts exports to exactly these names.
	PublicAPI []string
	// SourceEnv is the project .env copied (filtered) into functions/.env.
	SourceEnv string
}

// Result reports what was written.
type Result struct {
	Services   []string
	Exports    []string
	DroppedEnv []string
	Warnings   []string
}

var defaultIgnore = []string{"node_modules", ".git", "firebase-debug.log", "firebase-debug.*.log", "*.local"}

// FirebaseJSON renders firebase.json with a stable key order.
func FirebaseJSON(m Manifest) []byte {
	var e jx.Encoder
	e.SetIdent(2)

	e.ObjStart()
	e.FieldStart("functions")
	e.ObjStart()

	e.FieldStart("source")
	e.Str(FunctionsDirName)
	e.FieldStart("runtime")
	e.Str(m.Runtime)
	if m.Region != "" {
		e.FieldStart("region")
		e.Str(m.Region)
	}
	if m.Memory != "" {
		e.FieldStart("memory")
		e.Str(m.Memory)
	}
	if m.Timeout != "" {
		e.FieldStart("timeout")
		e.Str(m.Timeout)
	}
	if len(m.EnvironmentVariables) > 0 {
		e.FieldStart("environmentVariables")
		e.ObjStart()
		for _, k := range sortedKeys(m.EnvironmentVariables) {
			e.FieldStart(k)
			e.Str(m.EnvironmentVariables[k])
		}
		e.ObjEnd()
	}
	e.FieldStart("ignore")
	e.ArrStart()
	for _, v := range defaultIgnore {
		e.Str(v)
	}
	e.ArrEnd()

	e.ObjEnd()
	e.ObjEnd()

	return append(e.Bytes(), '\n')
}

// PackageJSON renders functions/package.json with the minimal dependency set.
func PackageJSON(m Manifest) []byte {
	var e jx.Encoder
	e.SetIdent(2)

	e.ObjStart()
	e.FieldStart("name")
	e.Str(packageName(m.ProjectID))
	e.FieldStart("private")
	e.Bool(true)
	e.FieldStart("main")
	e.Str("index.js")
	e.FieldStart("engines")
	e.ObjStart()
	e.FieldStart("node")
	e.Str(nodeVersion(m.Runtime))
	e.ObjEnd()
	e.FieldStart("dependencies")
	e.ObjStart()
	e.FieldStart("firebase-admin")
	e.Str("^12.0.0")
	e.FieldStart("firebase-functions")
	e.Str("^5.0.0")
	e.ObjEnd()
	e.ObjEnd()

	return append(e.Bytes(), '\n')
}

// Write renders every artifact into l. Service sources must already be copied
// into l.ServicesDir().
func Write(l Layout, m Manifest, opts Options) (Result, error) {
	index, res, err := ServicesIndex(m.Services, opts.PublicAPI)
	if err != nil {
		return res, err
	}

	env, dropped, err := EnvFile(opts.SourceEnv, m.EnvOverrides)
	if err != nil {
		return res, err
	}
	res.DroppedEnv = dropped

	if err := os.MkdirAll(l.ServicesDir(), 0o755); err != nil {
		return res, err
	}

	files := []struct {
		path string
		data []byte
	}{
		{l.FirebaseJSON(), FirebaseJSON(m)},
		{l.PackageJSON(), PackageJSON(m)},
		{l.EnvFile(), env},
		{l.EntryPoint(), []byte(entryPoint)},
		{l.ServicesIndex(), index},
	}
	for _, f := range files {
		if err := os.WriteFile(f.path, f.data, 0o644); err != nil {
			return res, errors.Wrapf(err, "write %s", f.path)
		}
	}

	return res, nil
}

const entryPoint = `// Generated by fbdevops. Do not edit.
module.exports = require('./services');
`

func packageName(projectID string) string {
	id := strings.ToLower(strings.TrimSpace(projectID))
	if id == "" {
		return "firebase-functions-deployment"
	}
	return id + "-functions"
}

func nodeVersion(runtime string) string {
	v := strings.TrimPrefix(runtime, "nodejs")
	if v == "" || v == runtime {
		return "20"
	}
	return v
}
