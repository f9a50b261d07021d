package manifest_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"fbdevops/internal/config"
	"fbdevops/internal/manifest"
	"fbdevops/internal/services"
	"fbdevops/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var requireLine = regexp.MustCompile(`(?m)^const \w+ = require\('\./([^']+)'\);$`)
var exportLine = regexp.MustCompile(`(?m)^exports\.(\w+) = \w+\.\w+;$`)

func sampleServices() []services.Descriptor {
	return []services.Descriptor{
		{Name: "brand-scores", Exports: []string{"queryBrandScores", "recomputeBrands"}},
		{Name: "health", Exports: []string{"publicApiHealth"}},
		{Name: "product-scores", Exports: []string{"queryProductScores"}},
		{Name: "search", Exports: []string{"indexDocument", "searchScores"}},
		{Name: "users", Exports: []string{"createUser", "deleteUser"}},
	}
}

func TestServicesIndex_AllServices(t *testing.T) {
	b, res, err := manifest.ServicesIndex(sampleServices(), nil)
	require.NoError(t, err)

	src := string(b)
	assert.Len(t, requireLine.FindAllStringSubmatch(src, -1), 5)
	assert.Len(t, exportLine.FindAllStringSubmatch(src, -1), 8)
	assert.Contains(t, src, "const svc_brand_scores = require('./brand-scores');")
	assert.Contains(t, src, "exports.queryBrandScores = svc_brand_scores.queryBrandScores;")
	assert.Equal(t, []string{"brand-scores", "health", "product-scores", "search", "users"}, res.Services)
}

func TestServicesIndex_FilteredServicesRequiredOnce(t *testing.T) {
	descs, err := services.Filter(sampleServices(), []string{"users", "search"})
	require.NoError(t, err)

	b, _, err := manifest.ServicesIndex(descs, nil)
	require.NoError(t, err)

	var required []string
	for _, m := range requireLine.FindAllStringSubmatch(string(b), -1) {
		required = append(required, m[1])
	}
	assert.Equal(t, []string{"search", "users"}, required)
}

func TestServicesIndex_PublicAPIOnly(t *testing.T) {
	b, res, err := manifest.ServicesIndex(sampleServices(), config.DefaultPublicAPIFunctions)
	require.NoError(t, err)

	var exported []string
	for _, m := range exportLine.FindAllStringSubmatch(string(b), -1) {
		exported = append(exported, m[1])
	}
	assert.ElementsMatch(t, config.DefaultPublicAPIFunctions, exported)
	assert.Len(t, exported, 4)
	assert.NotContains(t, string(b), "require('./users')")
	assert.Equal(t, []string{"brand-scores", "health", "product-scores", "search"}, res.Services)
}

func TestServicesIndex_PublicAPIMissing(t *testing.T) {
	descs := sampleServices()[:2]

	_, _, err := manifest.ServicesIndex(descs, config.DefaultPublicAPIFunctions)
	require.ErrorIs(t, err, manifest.ErrMissingExports)
	assert.Contains(t, err.Error(), "queryProductScores")
	assert.Contains(t, err.Error(), "searchScores")
}

func TestServicesIndex_ServiceWithoutExports(t *testing.T) {
	descs := append(sampleServices(), services.Descriptor{Name: "broken"})

	_, _, err := manifest.ServicesIndex(descs, nil)
	require.ErrorIs(t, err, manifest.ErrMissingExports)
	assert.Contains(t, err.Error(), "broken")
}

func TestServicesIndex_DuplicateExport(t *testing.T) {
	descs := []services.Descriptor{
		{Name: "a", Exports: []string{"handler"}},
		{Name: "b", Exports: []string{"handler"}},
	}

	_, _, err := manifest.ServicesIndex(descs, nil)
	assert.ErrorIs(t, err, manifest.ErrDuplicateExport)
}

func TestServicesIndex_AliasCollision(t *testing.T) {
	descs := []services.Descriptor{
		{Name: "a-b", Exports: []string{"one"}},
		{Name: "a_b", Exports: []string{"two"}},
	}

	b, _, err := manifest.ServicesIndex(descs, nil)
	require.NoError(t, err)
	assert.Contains(t, string(b), "const svc_a_b = require('./a-b');")
	assert.Contains(t, string(b), "const svc_a_b_2 = require('./a_b');")
	assert.Contains(t, string(b), "exports.two = svc_a_b_2.two;")
}

func TestServicesIndex_UnresolvedBecomesWarning(t *testing.T) {
	descs := []services.Descriptor{{Name: "a", Exports: []string{"x"}, Unresolved: []string{"module.exports.y = 1;"}}}

	_, res, err := manifest.ServicesIndex(descs, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a: unresolved export: module.exports.y = 1;"}, res.Warnings)
}

func testManifest() manifest.Manifest {
	return manifest.Manifest{
		ProjectID: "Demo-Project",
		Region:    "europe-west1",
		Runtime:   "nodejs20",
		Memory:    "512MB",
		EnvironmentVariables: map[string]string{
			"B": "2",
			"A": "1",
		},
	}
}

func TestFirebaseJSON(t *testing.T) {
	var got struct {
		Functions struct {
			Source               string            `json:"source"`
			Runtime              string            `json:"runtime"`
			Region               string            `json:"region"`
			Memory               string            `json:"memory"`
			Timeout              string            `json:"timeout"`
			EnvironmentVariables map[string]string `json:"environmentVariables"`
			Ignore               []string          `json:"ignore"`
		} `json:"functions"`
	}
	require.NoError(t, json.Unmarshal(manifest.FirebaseJSON(testManifest()), &got))

	assert.Equal(t, "functions", got.Functions.Source)
	assert.Equal(t, "nodejs20", got.Functions.Runtime)
	assert.Equal(t, "europe-west1", got.Functions.Region)
	assert.Equal(t, "512MB", got.Functions.Memory)
	assert.Empty(t, got.Functions.Timeout)
	assert.Equal(t, map[string]string{"A": "1", "B": "2"}, got.Functions.EnvironmentVariables)
	assert.Contains(t, got.Functions.Ignore, "node_modules")
}

func TestFirebaseJSON_Deterministic(t *testing.T) {
	a := manifest.FirebaseJSON(testManifest())
	b := manifest.FirebaseJSON(testManifest())
	assert.Equal(t, a, b)
	assert.Less(t, strings.Index(string(a), `"A"`), strings.Index(string(a), `"B"`))
}

func TestPackageJSON(t *testing.T) {
	var got struct {
		Name         string            `json:"name"`
		Main         string            `json:"main"`
		Engines      map[string]string `json:"engines"`
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(manifest.PackageJSON(testManifest()), &got))

	assert.Equal(t, "demo-project-functions", got.Name)
	assert.Equal(t, "index.js", got.Main)
	assert.Equal(t, "20", got.Engines["node"])
	assert.Contains(t, got.Dependencies, "firebase-functions")
	assert.Contains(t, got.Dependencies, "firebase-admin")
	assert.Len(t, got.Dependencies, 2)
}

func TestEnvFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), ".env")
	testutil.WriteFile(t, src, strings.Join([]string{
		"API_URL=https://api.example.com",
		"FIRESTORE_EMULATOR_HOST=127.0.0.1:8080",
		"CALLBACK=http://localhost:5001/cb",
		"FIREBASE_CONFIG=xyz",
		"GEMINI_API_KEY=dev-key",
		"",
	}, "\n"))

	b, dropped, err := manifest.EnvFile(src, map[string]string{"GEMINI_API_KEY": "prod-key", "NODE_ENV": "production"})
	require.NoError(t, err)

	out := string(b)
	assert.Contains(t, out, `API_URL="https://api.example.com"`)
	assert.Contains(t, out, `GEMINI_API_KEY="prod-key"`)
	assert.Contains(t, out, `NODE_ENV="production"`)
	assert.NotContains(t, out, "EMULATOR")
	assert.NotContains(t, out, "localhost")
	assert.Equal(t, []string{"CALLBACK", "FIREBASE_CONFIG", "FIRESTORE_EMULATOR_HOST"}, dropped)
}

func TestEnvFile_MissingSource(t *testing.T) {
	b, dropped, err := manifest.EnvFile(filepath.Join(t.TempDir(), ".env"), nil)
	require.NoError(t, err)
	assert.Empty(t, b)
	assert.Empty(t, dropped)
}

func TestWrite(t *testing.T) {
	l := manifest.Layout{Root: t.TempDir()}
	m := testManifest()
	m.Services = sampleServices()
	m.EnvOverrides = map[string]string{"NODE_ENV": "production"}

	res, err := manifest.Write(l, m, manifest.Options{})
	require.NoError(t, err)

	for _, p := range []string{l.FirebaseJSON(), l.PackageJSON(), l.EnvFile(), l.EntryPoint(), l.ServicesIndex()} {
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}
	assert.Len(t, res.Exports, 8)

	entry, err := os.ReadFile(l.EntryPoint())
	require.NoError(t, err)
	assert.Contains(t, string(entry), "require('./services')")
}
