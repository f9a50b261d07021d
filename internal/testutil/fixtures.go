package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const MB = 1024 * 1024

// WriteFile creates path (and its parents) with content.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// SparseFile creates a file of the given apparent size without writing data.
func SparseFile(t testing.TB, path string, size int64) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := f.Truncate(size); err != nil {
		t.Fatal(err)
	}
}

// Service writes a minimal Functions service exporting the given names.
func Service(t testing.TB, servicesDir, name string, exports ...string) string {
	t.Helper()
	dir := filepath.Join(servicesDir, name)

	var b strings.Builder
	b.WriteString("const functions = require('firebase-functions');\n\n")
	for _, e := range exports {
		fmt.Fprintf(&b, "exports.%s = functions.https.onRequest((req, res) => res.send('%s'));\n", e, e)
	}

	WriteFile(t, filepath.Join(dir, "index.js"), b.String())
	WriteFile(t, filepath.Join(dir, "package.json"), fmt.Sprintf(`{"name": %q, "main": "index.js", "dependencies": {"firebase-functions": "^5.0.0"}}`, name))
	return dir
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
