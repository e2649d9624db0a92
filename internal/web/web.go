package web

import (
	"context"
	"embed"
	"html"
	"html/template"
	"log"
	"net/http"
	"regexp"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/exttrust/exttrust/internal/analysis"
	"github.com/exttrust/exttrust/internal/policy"
)

//go:embed templates/*.html
var templateFS embed.FS

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// Scanner runs one trust analysis scan
type Scanner interface {
	Scan(ctx context.Context) (*analysis.Result, error)
}

// Web handles web UI requests
type Web struct {
	scanner   Scanner
	templates *template.Template
}

// New creates a new web handler
func New(scanner Scanner) (*Web, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"linkify":  linkify,
		"unlisted": hasUnlistedReason,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &Web{
		scanner:   scanner,
		templates: tmpl,
	}, nil
}

// Router creates the web router
func (w *Web) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", w.home)
	r.Post("/scan", w.scan)

	return r
}

type page struct {
	Scanned bool
	Failed  bool
	Items   []analysis.Item
	Summary analysis.Summary
}

// home renders the scan button
func (w *Web) home(wr http.ResponseWriter, r *http.Request) {
	w.render(wr, page{})
}

// scan runs a scan and renders the results
func (w *Web) scan(wr http.ResponseWriter, r *http.Request) {
	result, err := w.scanner.Scan(r.Context())
	if err != nil {
		log.Printf("Scan failed: %v", err)
		w.render(wr, page{Scanned: true, Failed: true})
		return
	}

	w.render(wr, page{
		Scanned: true,
		Items:   result.Items,
		Summary: result.Summary,
	})
}

func (w *Web) render(wr http.ResponseWriter, data page) {
	wr.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := w.templates.ExecuteTemplate(wr, "report.html", data); err != nil {
		log.Printf("Render report: %v", err)
	}
}

// linkify escapes a reason and turns embedded http(s) URLs into links
func linkify(s string) template.HTML {
	var b strings.Builder
	last := 0
	for _, loc := range urlPattern.FindAllStringIndex(s, -1) {
		b.WriteString(html.EscapeString(s[last:loc[0]]))
		u := html.EscapeString(s[loc[0]:loc[1]])
		b.WriteString(`<a class="reason-link" href="` + u + `" target="_blank" rel="noopener noreferrer">` + u + `</a>`)
		last = loc[1]
	}
	b.WriteString(html.EscapeString(s[last:]))
	return template.HTML(b.String())
}

func hasUnlistedReason(reasons []string) bool {
	return slices.Contains(reasons, policy.ReasonUnlisted)
}
