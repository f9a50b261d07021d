package services

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"fbdevops/internal/runner"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

const entryFile = "index.js"

// Exporter enumerates the public functions of a service directory.
type Exporter interface {
	Exports(ctx context.Context, dir string) (names []string, unresolved []string, err error)
}

var (
	exportLine     = regexp.MustCompile(`^\s*exports\.([A-Za-z_$][\w$]*)\s*=`)
	suspiciousLine = regexp.MustCompile(`\bmodule\.exports\b|\bexports\s*\[|^\s*exports\.[A-Za-z_$][\w$]*\s*$`)
)

// RegexExporter scans index.js for `exports.<name> =` lines.
type RegexExporter struct{}

func (RegexExporter) Exports(_ context.Context, dir string) ([]string, []string, error) {
	f, err := os.Open(filepath.Join(dir, entryFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	defer f.Close()

	set := map[string]struct{}{}
	var unresolved []string

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if m := exportLine.FindStringSubmatch(line); m != nil {
			set[m[1]] = struct{}{}
			continue
		}
		if suspiciousLine.MatchString(line) {
			unresolved = append(unresolved, strings.TrimSpace(line))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}

	return sortedKeys(set), unresolved, nil
}

const introspectScript = `process.stdout.write(JSON.stringify(Object.keys(require(process.argv[1]))))`

// NodeExporter loads index.js in node and lists the keys of module.exports.
type NodeExporter struct {
	Runner runner.Runner
}

func (e NodeExporter) Exports(ctx context.Context, dir string) ([]string, []string, error) {
	abs, err := filepath.Abs(filepath.Join(dir, entryFile))
	if err != nil {
		return nil, nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	res, err := e.Runner.Run(ctx, runner.Cmd{
		Name: "node",
		Args: []string{"-e", introspectScript, abs},
		Dir:  dir,
	})
	if err != nil {
		return nil, nil, errors.Wrapf(err, "introspect %s: %s", abs, strings.TrimSpace(res.Stderr))
	}

	names, err := parseNameList([]byte(res.Stdout))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "parse exports of %s", abs)
	}

	return names, nil, nil
}

// AutoExporter prefers node introspection and falls back to the regex scan
// when node is missing or the module cannot be loaded.
type AutoExporter struct {
	Runner runner.Runner
}

func (e AutoExporter) Exports(ctx context.Context, dir string) ([]string, []string, error) {
	if _, err := e.Runner.LookPath("node"); err == nil {
		names, unresolved, err := NodeExporter{Runner: e.Runner}.Exports(ctx, dir)
		if err == nil {
			return names, unresolved, nil
		}
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		names, unresolved, rerr := RegexExporter{}.Exports(ctx, dir)
		if rerr != nil {
			return nil, nil, rerr
		}
		return names, append(unresolved, "node introspection failed: "+err.Error()), nil
	}

	return RegexExporter{}.Exports(ctx, dir)
}

func parseNameList(b []byte) ([]string, error) {
	set := map[string]struct{}{}
	d := jx.DecodeBytes(b)
	if err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		set[s] = struct{}{}
		return nil
	}); err != nil {
		return nil, err
	}
	return sortedKeys(set), nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
