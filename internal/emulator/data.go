package emulator

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"fbdevops/internal/runner"

	"github.com/go-faster/errors"
)

const backupTimeFormat = "20060102-150405"

var ErrBackupNotFound = errors.New("backup not found")

// Uploader stores a backup archive off-host.
type Uploader interface {
	Upload(ctx context.Context, name string, r io.Reader) error
}

type Backup struct {
	Name    string
	Path    string
	Created time.Time
	Archive string
}

func (m *Manager) BackupsDir() string { return filepath.Join(m.StateDir(), "backups") }

// Export writes the running emulators' data to dir (default DataDir).
func (m *Manager) Export(ctx context.Context, dir string) (string, error) {
	if dir == "" {
		dir = m.DataDir()
	}
	args := []string{"emulators:export", dir, "--force"}
	if m.Project != "" {
		args = append(args, "--project", m.Project)
	}

	if _, err := m.Runner.Run(ctx, runner.Cmd{Name: "firebase", Args: args, Dir: m.Root}); err != nil {
		return "", errors.Wrap(err, "export emulator data")
	}
	m.Log.Info().Str("dir", dir).Msg("💾 Emulator data exported")
	return dir, nil
}

// Import restarts the emulators seeded from dir, exporting back on exit.
func (m *Manager) Import(ctx context.Context, dir string) (Status, error) {
	if dir == "" {
		dir = m.DataDir()
	}
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return Status{}, errors.Errorf("no exported data in %s", dir)
	}
	return m.Restart(ctx, StartOptions{ImportDir: dir, ExportOnExit: true})
}

// Backup exports into a new timestamped directory under BackupsDir. With up
// set the backup is also archived and uploaded.
func (m *Manager) Backup(ctx context.Context, now time.Time, up Uploader) (Backup, error) {
	name := now.UTC().Format(backupTimeFormat)
	b := Backup{Name: name, Path: filepath.Join(m.BackupsDir(), name), Created: now}

	if err := os.MkdirAll(m.BackupsDir(), 0o755); err != nil {
		return b, err
	}
	if _, err := m.Export(ctx, b.Path); err != nil {
		return b, err
	}

	if up == nil {
		return b, nil
	}

	b.Archive = b.Path + ".tar.gz"
	if err := Archive(b.Path, b.Archive); err != nil {
		return b, err
	}
	f, err := os.Open(b.Archive)
	if err != nil {
		return b, err
	}
	defer f.Close()

	if err := up.Upload(ctx, filepath.Base(b.Archive), f); err != nil {
		return b, errors.Wrap(err, "upload backup")
	}
	m.Log.Info().Str("backup", name).Msg("☁️  Backup uploaded")
	return b, nil
}

// Restore replaces DataDir with the named backup.
func (m *Manager) Restore(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return errors.Wrapf(ErrBackupNotFound, "%q", name)
	}
	src := filepath.Join(m.BackupsDir(), name)
	if st, err := os.Stat(src); err != nil || !st.IsDir() {
		return errors.Wrap(ErrBackupNotFound, name)
	}

	if err := os.RemoveAll(m.DataDir()); err != nil {
		return err
	}
	if err := copyDir(src, m.DataDir()); err != nil {
		return errors.Wrapf(err, "restore %s", name)
	}
	m.Log.Info().Str("backup", name).Str("dir", m.DataDir()).Msg("♻️  Backup restored")
	return nil
}

// Backups lists backups oldest first.
func (m *Manager) Backups() ([]Backup, error) {
	entries, err := os.ReadDir(m.BackupsDir())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []Backup
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		b := Backup{Name: e.Name(), Path: filepath.Join(m.BackupsDir(), e.Name())}
		if t, err := time.Parse(backupTimeFormat, e.Name()); err == nil {
			b.Created = t
		}
		if _, err := os.Stat(b.Path + ".tar.gz"); err == nil {
			b.Archive = b.Path + ".tar.gz"
		}
		out = append(out, b)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Archive writes src as a gzipped tarball to dst. Paths inside the archive
// are relative to src.
func Archive(src, dst string) (err error) {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil || rel == "." {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.IsDir() && !info.Mode().IsRegular() {
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "archive %s", src)
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}

		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()

		out, err := os.Create(target)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, in); err != nil {
			_ = out.Close()
			return err
		}
		return out.Close()
	})
}
