package services

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-faster/errors"
)

// SharedDir holds code shared between services. It is never a service itself.
const SharedDir = "libs"

var (
	ErrNoServicesDir  = errors.New("services directory does not exist")
	ErrUnknownService = errors.New("unknown service")
)

// Descriptor is one deployable Firebase Functions module.
type Descriptor struct {
	Name       string
	SourcePath string
	// Exports is sorted and deduplicated.
	Exports []string
	// Unresolved holds lines that look like exports but could not be parsed.
	Unresolved []string
}

func (d Descriptor) HasExport(name string) bool {
	i := sort.SearchStrings(d.Exports, name)
	return i < len(d.Exports) && d.Exports[i] == name
}

// Scan lists the immediate service directories under dir in lexical order.
func Scan(dir string) ([]Descriptor, error) {
	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		return nil, errors.Wrap(ErrNoServicesDir, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", dir)
	}

	var out []Descriptor
	for _, e := range entries {
		if !e.IsDir() || skipDir(e.Name()) {
			continue
		}
		out = append(out, Descriptor{
			Name:       e.Name(),
			SourcePath: filepath.Join(dir, e.Name()),
		})
	}

	return out, nil
}

// Load scans dir and fills in exports for every service using ex.
func Load(ctx context.Context, dir string, ex Exporter) ([]Descriptor, error) {
	descs, err := Scan(dir)
	if err != nil {
		return nil, err
	}

	for i := range descs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		names, unresolved, err := ex.Exports(ctx, descs[i].SourcePath)
		if err != nil {
			return nil, errors.Wrapf(err, "service %s", descs[i].Name)
		}
		descs[i].Exports = names
		descs[i].Unresolved = unresolved
	}

	return descs, nil
}

// Filter keeps only the named services, in the order of descs.
func Filter(descs []Descriptor, names []string) ([]Descriptor, error) {
	if len(names) == 0 {
		return descs, nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	var out []Descriptor
	for _, d := range descs {
		if want[d.Name] {
			out = append(out, d)
			delete(want, d.Name)
		}
	}

	if len(want) > 0 {
		missing := make([]string, 0, len(want))
		for n := range want {
			missing = append(missing, n)
		}
		sort.Strings(missing)
		return nil, errors.Wrap(ErrUnknownService, strings.Join(missing, ", "))
	}

	return out, nil
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules" || name == SharedDir
}
