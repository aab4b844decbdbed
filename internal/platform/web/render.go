// Package web adapts echo to the server-rendered pages: template rendering,
// one-shot notices carried across redirects, and the error page.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
)

//go:embed templates/*.html
var templateFS embed.FS

const layoutFile = "templates/layout.html"

// Page is the value every template is executed with.
type Page struct {
	Title   string
	Notices []Notice
	Data    any
}

// Renderer implements echo.Renderer over the embedded templates. Each page
// is parsed together with the shared layout.
type Renderer struct {
	pages map[string]*template.Template
}

func NewRenderer() (*Renderer, error) {
	files, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}

	pages := make(map[string]*template.Template, len(files))
	for _, f := range files {
		if f == layoutFile {
			continue
		}
		t, err := template.ParseFS(templateFS, layoutFile, f)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", f, err)
		}
		pages[strings.TrimSuffix(path.Base(f), ".html")] = t
	}
	return &Renderer{pages: pages}, nil
}

func (r *Renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("web: unknown page %q", name)
	}
	return t.ExecuteTemplate(w, path.Base(layoutFile), data)
}

// Render executes the named page with any notices pending for this request.
func Render(c echo.Context, status int, name, title string, data any) error {
	return c.Render(status, name, Page{
		Title:   title,
		Notices: consumeNotices(c),
		Data:    data,
	})
}

// WantsJSON reports whether the client asked for JSON instead of HTML.
func WantsJSON(c echo.Context) bool {
	return strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON)
}

// Redirect sends a 303 to the named route. Notices added during this request
// are carried to the next one in a cookie.
func Redirect(c echo.Context, route string, params ...interface{}) error {
	persistNotices(c)
	return c.Redirect(http.StatusSeeOther, c.Echo().Reverse(route, params...))
}
