package validate

import (
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Render writes the human readable report.
func Render(w io.Writer, r Report) {
	p := printer

	p.Fprintf(w, "📋 Deployment validation: %s\n", r.Root)

	if len(r.StructuralIssues) == 0 {
		p.Fprintf(w, "  ✅ structure ok\n")
	}
	for _, issue := range r.StructuralIssues {
		p.Fprintf(w, "  ❌ %s\n", issue)
	}

	for _, s := range r.Services {
		mark := "✅"
		switch s.Class {
		case ClassLarge:
			mark = "⚠️ "
		case ClassCritical:
			mark = "🚨"
		}
		p.Fprintf(w, "  %s %-30s %s (%s)\n", mark, s.Name, humanSize(s.Bytes), s.Class)
	}

	for _, nm := range r.NodeModules {
		p.Fprintf(w, "  🚨 node_modules present: %s\n", nm)
	}

	switch r.TotalClass {
	case ClassCritical:
		p.Fprintf(w, "  ❌ total size %s exceeds the error threshold\n", humanSize(r.TotalBytes))
	case ClassLarge:
		p.Fprintf(w, "  ⚠️  total size %s exceeds the warning threshold\n", humanSize(r.TotalBytes))
	default:
		p.Fprintf(w, "  ✅ total size %s\n", humanSize(r.TotalBytes))
	}

	p.Fprintf(w, "  %d bytes in %d services\n", r.TotalBytes, len(r.Services))

	if r.Passed() {
		p.Fprintf(w, "✅ validation passed\n")
	} else if r.NeedsConfirmation() {
		p.Fprintf(w, "⚠️  validation needs confirmation\n")
	} else {
		p.Fprintf(w, "❌ validation failed\n")
	}
}

func humanSize(b int64) string {
	switch {
	case b >= MB:
		return printer.Sprintf("%.1fMB", float64(b)/MB)
	case b >= 1024:
		return printer.Sprintf("%.1fKB", float64(b)/1024)
	default:
		return printer.Sprintf("%dB", b)
	}
}
