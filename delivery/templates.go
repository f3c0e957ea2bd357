package delivery

import (
	"embed"
	"html/template"
	"io/fs"
	"sync"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Page templates, each parsed together with the shared layout.
var (
	authTemplate  *template.Template
	homeTemplate  *template.Template
	errorTemplate *template.Template

	parseOnce sync.Once
)

// ParseAllTemplates pre-parses all HTML templates. It is safe to call more
// than once.
func ParseAllTemplates() {
	parseOnce.Do(func() {
		authTemplate = parsePage("auth.html")
		homeTemplate = parsePage("home.html")
		errorTemplate = parsePage("error.html")
	})
}

func parsePage(name string) *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/"+name))
}

func staticFiles() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
