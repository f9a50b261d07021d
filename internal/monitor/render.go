package monitor

import (
	"io"
	"time"

	"github.com/go-faster/jx"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Render prints the snapshot as a console report.
func Render(w io.Writer, s Snapshot) {
	p := printer
	p.Fprintf(w, "📊 %s  project=%s\n", s.Time.Format(time.DateTime), s.Project)

	if s.Emulators.Running {
		p.Fprintf(w, "🔥 Emulators running (pid %d)\n", s.Emulators.PID)
		for _, e := range s.Emulators.Emulators {
			p.Fprintf(w, "   %-12s %s:%d\n", e.Name, e.Host, e.Port)
		}
	} else {
		p.Fprintf(w, "💤 Emulators not running\n")
	}

	if len(s.Tunnels) == 0 {
		p.Fprintf(w, "🌍 No tunnels\n")
	}
	for _, t := range s.Tunnels {
		state := "stopped"
		if t.Running {
			state = "running"
		}
		p.Fprintf(w, "🌍 %-12s %-8s %s\n", t.Name, state, t.URL)
	}

	for _, c := range s.Collections {
		more := ""
		if c.Truncated {
			more = "+"
		}
		p.Fprintf(w, "🗂️  %-20s %d%s docs\n", c.Name, c.Documents, more)
	}

	if s.Topics != nil {
		p.Fprintf(w, "📨 %d topics\n", len(s.Topics))
	}

	for _, e := range s.Errors {
		p.Fprintf(w, "⚠️  %s\n", e)
	}
}

// Encode renders the snapshot as JSON. A zero Time is omitted.
func Encode(s Snapshot) []byte {
	var e jx.Encoder

	e.ObjStart()
	if !s.Time.IsZero() {
		e.FieldStart("time")
		e.Str(s.Time.UTC().Format(time.RFC3339))
	}
	e.FieldStart("project")
	e.Str(s.Project)

	e.FieldStart("emulators")
	e.ObjStart()
	e.FieldStart("running")
	e.Bool(s.Emulators.Running)
	e.FieldStart("pid")
	e.Int(s.Emulators.PID)
	e.FieldStart("services")
	e.ArrStart()
	for _, em := range s.Emulators.Emulators {
		e.ObjStart()
		e.FieldStart("name")
		e.Str(em.Name)
		e.FieldStart("host")
		e.Str(em.Host)
		e.FieldStart("port")
		e.Int(em.Port)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()

	e.FieldStart("tunnels")
	e.ArrStart()
	for _, t := range s.Tunnels {
		e.ObjStart()
		e.FieldStart("name")
		e.Str(t.Name)
		e.FieldStart("running")
		e.Bool(t.Running)
		e.FieldStart("port")
		e.Int(t.Port)
		e.FieldStart("url")
		e.Str(t.URL)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("collections")
	e.ArrStart()
	for _, c := range s.Collections {
		e.ObjStart()
		e.FieldStart("name")
		e.Str(c.Name)
		e.FieldStart("documents")
		e.Int(c.Documents)
		e.FieldStart("truncated")
		e.Bool(c.Truncated)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("topics")
	e.ArrStart()
	for _, t := range s.Topics {
		e.Str(t)
	}
	e.ArrEnd()

	e.FieldStart("errors")
	e.ArrStart()
	for _, msg := range s.Errors {
		e.Str(msg)
	}
	e.ArrEnd()

	e.ObjEnd()
	return e.Bytes()
}
