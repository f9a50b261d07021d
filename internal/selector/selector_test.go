package selector_test

import (
	"path/filepath"
	"testing"

	"fbdevops/internal/selector"
	"fbdevops/internal/services"
	"fbdevops/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture(t *testing.T) (string, services.Descriptor) {
	t.Helper()
	root := t.TempDir()
	dir := testutil.Service(t, root, "orders", "createOrder")
	testutil.WriteFile(t, filepath.Join(dir, "orchestrator.js"), "module.exports = {};")
	testutil.WriteFile(t, filepath.Join(dir, "lib", "db.js"), "// db")
	testutil.WriteFile(t, filepath.Join(dir, "node_modules", "dep", "index.js"), "// dep")
	testutil.WriteFile(t, filepath.Join(dir, "index.test.js"), "// test")
	testutil.WriteFile(t, filepath.Join(dir, "__tests__", "a.js"), "// test")
	testutil.WriteFile(t, filepath.Join(dir, ".env.local"), "SECRET=1")
	return root, services.Descriptor{Name: "orders", SourcePath: dir}
}

func TestCopyService_AllowList(t *testing.T) {
	_, d := fixture(t)
	dst := t.TempDir()

	n, err := selector.CopyService(d, dst, selector.ModeAllowList)
	require.NoError(t, err)

	assert.Equal(t, 3, n)
	assert.True(t, testutil.Exists(filepath.Join(dst, "orders", "index.js")))
	assert.True(t, testutil.Exists(filepath.Join(dst, "orders", "package.json")))
	assert.True(t, testutil.Exists(filepath.Join(dst, "orders", "orchestrator.js")))
	assert.False(t, testutil.Exists(filepath.Join(dst, "orders", "lib")))
}

func TestCopyService_CopyAllExcludesArtifacts(t *testing.T) {
	_, d := fixture(t)
	dst := t.TempDir()

	n, err := selector.CopyService(d, dst, selector.ModeCopyAll)
	require.NoError(t, err)

	assert.Equal(t, 4, n)
	assert.True(t, testutil.Exists(filepath.Join(dst, "orders", "lib", "db.js")))
	assert.False(t, testutil.Exists(filepath.Join(dst, "orders", "node_modules")))
	assert.False(t, testutil.Exists(filepath.Join(dst, "orders", "index.test.js")))
	assert.False(t, testutil.Exists(filepath.Join(dst, "orders", "__tests__")))
	assert.False(t, testutil.Exists(filepath.Join(dst, "orders", ".env.local")))

	// source untouched
	assert.True(t, testutil.Exists(filepath.Join(d.SourcePath, "node_modules", "dep", "index.js")))
}

func TestCopyAll_IncludesLibs(t *testing.T) {
	root, d := fixture(t)
	testutil.WriteFile(t, filepath.Join(root, "libs", "shared.js"), "// shared")
	testutil.WriteFile(t, filepath.Join(root, "libs", "node_modules", "x.js"), "// nope")
	dst := t.TempDir()

	_, err := selector.CopyAll([]services.Descriptor{d}, root, dst, selector.ModeAllowList)
	require.NoError(t, err)

	assert.True(t, testutil.Exists(filepath.Join(dst, "libs", "shared.js")))
	assert.False(t, testutil.Exists(filepath.Join(dst, "libs", "node_modules")))
}

func TestCopyService_RefusesDestInsideSource(t *testing.T) {
	_, d := fixture(t)

	_, err := selector.CopyService(d, d.SourcePath, selector.ModeCopyAll)
	assert.ErrorIs(t, err, selector.ErrDestInsideSource)
}

func TestExcluded(t *testing.T) {
	cases := map[string]bool{
		"index.js":          false,
		"src/handler.js":    false,
		"a.spec.js":         true,
		".env":              true,
		".env.production":   true,
		"debug.log":         true,
		"node_modules":      true,
		"deep/node_modules": true,
	}
	for rel, want := range cases {
		assert.Equal(t, want, selector.Excluded(rel, false), rel)
	}
	assert.True(t, selector.Excluded("test", true))
	assert.False(t, selector.Excluded("src", true))
}
