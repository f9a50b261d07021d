package validate

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"fbdevops/internal/manifest"
	"fbdevops/internal/services"

	"github.com/go-faster/errors"
)

const MB = 1024 * 1024

// Class is the size classification of a service or a whole deployment.
type Class int

const (
	ClassOK Class = iota
	ClassLarge
	ClassCritical
)

func (c Class) String() string {
	switch c {
	case ClassLarge:
		return "large"
	case ClassCritical:
		return "critical"
	default:
		return "ok"
	}
}

// Thresholds are inclusive lower bounds in bytes.
type Thresholds struct {
	ServiceLarge    int64
	ServiceCritical int64
	TotalWarning    int64
	TotalError      int64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		ServiceLarge:    10 * MB,
		ServiceCritical: 50 * MB,
		TotalWarning:    100 * MB,
		TotalError:      200 * MB,
	}
}

// Classify returns the class of a single service of the given size.
func (t Thresholds) Classify(size int64) Class {
	switch {
	case size >= t.ServiceCritical:
		return ClassCritical
	case size >= t.ServiceLarge:
		return ClassLarge
	default:
		return ClassOK
	}
}

// ClassifyTotal returns the class of the whole deployment.
func (t Thresholds) ClassifyTotal(size int64) Class {
	switch {
	case size >= t.TotalError:
		return ClassCritical
	case size >= t.TotalWarning:
		return ClassLarge
	default:
		return ClassOK
	}
}

type ServiceSize struct {
	Name  string
	Bytes int64
	Class Class
}

// Report is the outcome of validating an assembled deployment directory.
type Report struct {
	Root             string
	Services         []ServiceSize
	StructuralIssues []string
	SizeWarnings     []ServiceSize
	CriticalServices []ServiceSize
	NodeModules      []string
	TotalBytes       int64
	TotalClass       Class
}

// Passed is true when nothing needs a decision: no structural issue, no
// node_modules and no critical service.
func (r Report) Passed() bool {
	return len(r.StructuralIssues) == 0 && len(r.NodeModules) == 0 && len(r.CriticalServices) == 0
}

// NeedsConfirmation is true when the deployment is structurally sound but
// contains node_modules or critical services.
func (r Report) NeedsConfirmation() bool {
	return len(r.StructuralIssues) == 0 && !r.Passed()
}

// Validate inspects the deployment directory described by l.
func Validate(l manifest.Layout, t Thresholds) (Report, error) {
	r := Report{Root: l.Root}

	if _, err := os.Stat(l.Root); err != nil {
		return r, errors.Wrap(err, "deployment directory")
	}

	for _, p := range []string{l.FirebaseJSON(), l.PackageJSON(), l.ServicesIndex()} {
		if !isFile(p) {
			r.StructuralIssues = append(r.StructuralIssues, "missing "+rel(l.Root, p))
		}
	}

	entries, err := os.ReadDir(l.ServicesDir())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return r, errors.Wrap(err, "read services dir")
	}
	for _, e := range entries {
		if !e.IsDir() || e.Name() == services.SharedDir || e.Name() == "node_modules" {
			continue
		}
		dir := filepath.Join(l.ServicesDir(), e.Name())
		for _, f := range []string{"index.js", "package.json"} {
			if !isFile(filepath.Join(dir, f)) {
				r.StructuralIssues = append(r.StructuralIssues, "missing "+rel(l.Root, filepath.Join(dir, f)))
			}
		}
		r.StructuralIssues = append(r.StructuralIssues, packageIssues(l.Root, dir)...)

		size, err := DirSize(dir)
		if err != nil {
			return r, err
		}
		s := ServiceSize{Name: e.Name(), Bytes: size, Class: t.Classify(size)}
		r.Services = append(r.Services, s)
		switch s.Class {
		case ClassCritical:
			r.CriticalServices = append(r.CriticalServices, s)
		case ClassLarge:
			r.SizeWarnings = append(r.SizeWarnings, s)
		}
	}

	r.NodeModules, err = FindNodeModules(l.Root)
	if err != nil {
		return r, err
	}

	r.TotalBytes, err = DirSize(l.Root)
	if err != nil {
		return r, err
	}
	r.TotalClass = t.ClassifyTotal(r.TotalBytes)

	return r, nil
}

// packageIssues checks that a service package.json parses and that its main
// entry was shipped.
func packageIssues(root, dir string) []string {
	if !isFile(filepath.Join(dir, "package.json")) {
		return nil
	}
	pkg, err := services.ReadPackage(dir)
	if err != nil {
		return []string{"invalid " + rel(root, filepath.Join(dir, "package.json")) + ": " + err.Error()}
	}
	if pkg.Main != "" && !isFile(filepath.Join(dir, pkg.Main)) {
		return []string{rel(root, filepath.Join(dir, "package.json")) + " main " + pkg.Main + " is missing"}
	}
	return nil
}

// DirSize is the recursive sum of regular file sizes under dir.
func DirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, errors.Wrapf(err, "size of %s", dir)
	}
	return total, nil
}

// FindNodeModules lists every node_modules directory under root. Nested
// node_modules inside a match are not reported separately.
func FindNodeModules(root string) ([]string, error) {
	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == "node_modules" {
			found = append(found, path)
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan for node_modules")
	}
	sort.Strings(found)
	return found, nil
}

// RemoveNodeModules deletes the directories listed in r.NodeModules.
func RemoveNodeModules(r Report) error {
	for _, p := range r.NodeModules {
		if err := os.RemoveAll(p); err != nil {
			return errors.Wrapf(err, "remove %s", p)
		}
	}
	return nil
}

func isFile(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}

func rel(root, path string) string {
	if r, err := filepath.Rel(root, path); err == nil {
		return r
	}
	return path
}
