// Package pages renders the handful of HTML pages docgate serves itself:
// the placeholder shown while a session is being confirmed and the
// informational pages of the login flow.
package pages

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"net/http"

	"github.com/tenup/docgate/internal/log"
)

//go:embed templates/pages.html
var pagesTemplateHTML string

var baseTemplate = template.Must(template.New("pages").Parse(pagesTemplateHTML))

var compiled = map[Page]*template.Template{}

// Page names a renderable page
type Page string

const (
	// Placeholder is shown whenever protected content may not be rendered yet
	Placeholder        Page = "placeholder"
	LoginDirect        Page = "login-direct"
	VerificationFailed Page = "verification-failed"
	DomainNotAllowed   Page = "domain-not-allowed"
)

// PlaceholderText is the visible text of the placeholder page
const PlaceholderText = "Authenticating..."

// Data is the template data shared by all pages
type Data struct {
	SiteName string
	Title    string
	Message  string
	LinkURL  string
	LinkText string
}

func init() {
	for _, page := range []Page{Placeholder, LoginDirect, VerificationFailed, DomainNotAllowed} {
		tmpl, err := pageTemplate(page)
		if err != nil {
			panic(err)
		}
		compiled[page] = tmpl
	}
}

// Render writes the page to w
func Render(w io.Writer, page Page, data Data) error {
	tmpl, ok := compiled[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}
	return tmpl.ExecuteTemplate(w, "layout", data)
}

// Write renders the page as an uncacheable HTTP response
func Write(w http.ResponseWriter, status int, page Page, data Data) {
	var buf bytes.Buffer
	if err := Render(&buf, page, data); err != nil {
		log.LogErrorWithFields("pages", "Failed to render page", map[string]any{
			"page":  string(page),
			"error": err.Error(),
		})
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// pageTemplate binds the layout's body slot to the page's body
func pageTemplate(page Page) (*template.Template, error) {
	body := baseTemplate.Lookup(string(page) + "-body")
	if body == nil {
		return nil, fmt.Errorf("unknown page %q", page)
	}
	tmpl, err := baseTemplate.Clone()
	if err != nil {
		return nil, fmt.Errorf("cloning templates: %w", err)
	}
	if _, err := tmpl.AddParseTree("body", body.Tree); err != nil {
		return nil, fmt.Errorf("binding page %q: %w", page, err)
	}
	return tmpl, nil
}
