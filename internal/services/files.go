package services

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"gopkg.in/yaml.v3"
)

type servicesFile struct {
	Services []string `yaml:"services"`
}

// ReadServicesFile reads the list of services to deploy. Plain files hold one
// name per line with # comments; .yaml/.yml files use a `services:` list.
func ReadServicesFile(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read services file")
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var sf servicesFile
		if err := yaml.Unmarshal(b, &sf); err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
		return dedupe(sf.Services), nil
	}

	var names []string
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		line := sc.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return dedupe(names), sc.Err()
}

// Package is the subset of a service package.json the toolkit cares about.
type Package struct {
	Name         string
	Main         string
	Dependencies map[string]string
}

func ReadPackage(dir string) (Package, error) {
	b, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return Package{}, err
	}

	pkg := Package{Dependencies: map[string]string{}}
	d := jx.DecodeBytes(b)
	err = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "name":
			v, err := d.Str()
			pkg.Name = v
			return err
		case "main":
			v, err := d.Str()
			pkg.Main = v
			return err
		case "dependencies":
			return d.ObjBytes(func(d *jx.Decoder, dep []byte) error {
				v, err := d.Str()
				if err != nil {
					return err
				}
				pkg.Dependencies[string(dep)] = v
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return Package{}, errors.Wrapf(err, "parse %s/package.json", dir)
	}

	return pkg, nil
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
