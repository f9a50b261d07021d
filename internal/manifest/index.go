package manifest

import (
	"bytes"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"fbdevops/internal/services"

	"github.com/go-faster/errors"
)

var (
	// ErrMissingExports means a service or a requested public function has
	// no export that can be re-exported.
	ErrMissingExports  = errors.New("missing exports")
	ErrDuplicateExport = errors.New("function exported by more than one service")
)

var indexTemplate = template.Must(template.New("index").Parse(`// Generated by fbdevops. Do not edit.
{{range .}}const {{.Alias}} = require('./{{.Name}}');
{{end}}{{range $s := .}}
// {{$s.Name}}
{{range $s.Exports}}exports.{{.}} = {{$s.Alias}}.{{.}};
{{end}}{{end}}`))

type indexEntry struct {
	Name    string
	Alias   string
	Exports []string
}

var nonIdent = regexp.MustCompile(`[^A-Za-z0-9_$]`)

// ServicesIndex renders functions/services/index.js. With publicAPI set only
// those functions are exported and only services providing them are required.
func ServicesIndex(descs []services.Descriptor, publicAPI []string) ([]byte, Result, error) {
	var (
		entries []indexEntry
		res     Result
		err     error
	)

	if len(publicAPI) > 0 {
		entries, err = publicEntries(descs, publicAPI)
	} else {
		entries, err = allEntries(descs)
	}
	if err != nil {
		return nil, res, err
	}

	aliases := map[string]bool{}
	for i := range entries {
		entries[i].Alias = alias(entries[i].Name, aliases)
		res.Services = append(res.Services, entries[i].Name)
		res.Exports = append(res.Exports, entries[i].Exports...)
	}
	for _, d := range descs {
		for _, u := range d.Unresolved {
			res.Warnings = append(res.Warnings, d.Name+": unresolved export: "+u)
		}
	}

	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, entries); err != nil {
		return nil, res, errors.Wrap(err, "render services index")
	}

	return buf.Bytes(), res, nil
}

func allEntries(descs []services.Descriptor) ([]indexEntry, error) {
	var (
		entries []indexEntry
		empty   []string
	)
	owner := map[string]string{}

	for _, d := range descs {
		if len(d.Exports) == 0 {
			empty = append(empty, d.Name)
			continue
		}
		for _, name := range d.Exports {
			if prev, ok := owner[name]; ok {
				return nil, errors.Wrapf(ErrDuplicateExport, "%s (%s, %s)", name, prev, d.Name)
			}
			owner[name] = d.Name
		}
		entries = append(entries, indexEntry{Name: d.Name, Exports: d.Exports})
	}

	if len(empty) > 0 {
		return nil, errors.Wrapf(ErrMissingExports, "no exports detected in: %s", strings.Join(empty, ", "))
	}

	return entries, nil
}

func publicEntries(descs []services.Descriptor, publicAPI []string) ([]indexEntry, error) {
	picked := map[string][]string{}
	var missing []string

	for _, name := range publicAPI {
		var providers []string
		for _, d := range descs {
			if d.HasExport(name) {
				providers = append(providers, d.Name)
			}
		}
		switch len(providers) {
		case 0:
			missing = append(missing, name)
		case 1:
			picked[providers[0]] = append(picked[providers[0]], name)
		default:
			return nil, errors.Wrapf(ErrDuplicateExport, "%s (%s)", name, strings.Join(providers, ", "))
		}
	}

	if len(missing) > 0 {
		return nil, errors.Wrapf(ErrMissingExports, "public functions not found: %s", strings.Join(missing, ", "))
	}

	var entries []indexEntry
	for _, d := range descs {
		if names, ok := picked[d.Name]; ok {
			sort.Strings(names)
			entries = append(entries, indexEntry{Name: d.Name, Exports: names})
		}
	}

	return entries, nil
}

func alias(name string, used map[string]bool) string {
	base := "svc_" + nonIdent.ReplaceAllString(name, "_")
	a := base
	for i := 2; used[a]; i++ {
		a = base + "_" + strconv.Itoa(i)
	}
	used[a] = true
	return a
}
