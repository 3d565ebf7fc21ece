// Package assets embeds the web UI templates and static files.
package assets

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"time"
)

//go:embed templates/*.html static
var files embed.FS

var funcs = template.FuncMap{
	"datetime": func(t time.Time) string {
		return t.UTC().Format("2006-01-02 15:04 MST")
	},
	"seconds": func(d float64) string {
		if d <= 0 {
			return ""
		}
		total := int(d + 0.5)
		return fmt.Sprintf("%d:%02d", total/60, total%60)
	},
}

// Templates parses the page templates
func Templates() (*template.Template, error) {
	return template.New("").Funcs(funcs).ParseFS(files, "templates/*.html")
}

// Static returns the static file tree rooted at static/
func Static() (fs.FS, error) {
	return fs.Sub(files, "static")
}
