package selector

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"fbdevops/internal/services"

	"github.com/go-faster/errors"
)

type Mode int

const (
	// ModeAllowList copies only AllowList files found at the service root.
	ModeAllowList Mode = iota
	// ModeCopyAll copies the whole service tree minus excluded paths.
	ModeCopyAll
)

// AllowList is the set of files copied in ModeAllowList.
var AllowList = []string{
	"index.js",
	"package.json",
	"orchestrator.js",
	"workflow.js",
	"config.js",
	"constants.js",
}

var ErrDestInsideSource = errors.New("destination is inside the source tree")

// Excluded reports whether a path (relative to the service root) must never
// reach a deployment directory.
func Excluded(rel string, isDir bool) bool {
	base := filepath.Base(rel)

	if base == "node_modules" || base == ".git" {
		return true
	}
	if isDir {
		return base == "__tests__" || base == "test" || base == "tests" || base == "coverage"
	}
	if base == ".env" || strings.HasPrefix(base, ".env.") || base == ".runtimeconfig.json" {
		return true
	}
	for _, suffix := range []string{".test.js", ".spec.js", ".test.ts", ".spec.ts"} {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return base == ".DS_Store" || strings.HasSuffix(base, ".log")
}

// CopyService copies one service into dstRoot/<name> and returns the number
// of files written.
func CopyService(d services.Descriptor, dstRoot string, mode Mode) (int, error) {
	dst := filepath.Join(dstRoot, d.Name)
	if err := guard(d.SourcePath, dst); err != nil {
		return 0, err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return 0, err
	}

	if mode == ModeAllowList {
		n := 0
		for _, name := range AllowList {
			src := filepath.Join(d.SourcePath, name)
			st, err := os.Stat(src)
			if err != nil || !st.Mode().IsRegular() {
				continue
			}
			if err := copyFile(src, filepath.Join(dst, name), st.Mode().Perm()); err != nil {
				return n, err
			}
			n++
		}
		return n, nil
	}

	return CopyTree(d.SourcePath, dst)
}

// CopyTree recursively copies src to dst, skipping Excluded paths.
func CopyTree(src, dst string) (int, error) {
	if err := guard(src, dst); err != nil {
		return 0, err
	}

	n := 0
	err := filepath.WalkDir(src, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return os.MkdirAll(dst, 0o755)
		}
		if Excluded(rel, e.IsDir()) {
			if e.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target := filepath.Join(dst, rel)
		if e.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !e.Type().IsRegular() {
			// symlinks and devices are not deployable
			return nil
		}

		info, err := e.Info()
		if err != nil {
			return err
		}
		if err := copyFile(path, target, info.Mode().Perm()); err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		return n, errors.Wrapf(err, "copy %s", src)
	}

	return n, nil
}

// CopyAll copies every descriptor plus the shared libs dir (when present)
// into dstRoot.
func CopyAll(descs []services.Descriptor, servicesDir, dstRoot string, mode Mode) (int, error) {
	total := 0
	for _, d := range descs {
		n, err := CopyService(d, dstRoot, mode)
		total += n
		if err != nil {
			return total, errors.Wrapf(err, "copy service %s", d.Name)
		}
	}

	libs := filepath.Join(servicesDir, services.SharedDir)
	if st, err := os.Stat(libs); err == nil && st.IsDir() {
		n, err := CopyTree(libs, filepath.Join(dstRoot, services.SharedDir))
		total += n
		if err != nil {
			return total, err
		}
	}

	return total, nil
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0o200)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func guard(src, dst string) error {
	s, err := filepath.Abs(src)
	if err != nil {
		return err
	}
	d, err := filepath.Abs(dst)
	if err != nil {
		return err
	}
	if d == s || strings.HasPrefix(d, s+string(filepath.Separator)) {
		return errors.Wrap(ErrDestInsideSource, d)
	}
	return nil
}
