package view

import (
	"embed"
	"html/template"
)

//go:embed *.gohtml
var templatesFS embed.FS

var (
	Dashboard *template.Template
)

func init() {
	Dashboard = template.Must(template.New("base.gohtml").Funcs(funcs).ParseFS(templatesFS, "base.gohtml", "dashboard.gohtml"))
}

var funcs = template.FuncMap{
	"state": func(running bool) string {
		if running {
			return "running"
		}
		return "stopped"
	},
}
