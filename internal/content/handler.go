package content

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/tenup/docgate/internal/log"
)

// Handler serves a Source the way a static host serves a generated site:
// "/guides/" maps to guides/index.html and "/guides/setup" may be backed by
// guides/setup.html or guides/setup/index.html.
type Handler struct {
	source Source
}

// NewHandler creates a handler for src
func NewHandler(src Source) *Handler {
	return &Handler{source: src}
}

// candidates lists the object names that may back a request path
func candidates(urlPath string) []string {
	clean := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if clean == "" {
		return []string{"index.html"}
	}
	if strings.HasSuffix(urlPath, "/") {
		return []string{clean + "/index.html"}
	}
	if path.Ext(clean) != "" {
		return []string{clean}
	}
	return []string{clean, clean + ".html", clean + "/index.html"}
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	for _, name := range candidates(r.URL.Path) {
		obj, err := h.source.Open(r.Context(), name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			log.LogErrorWithFields("content", "Failed to open content", map[string]any{
				"name":  name,
				"error": err.Error(),
			})
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
			return
		}
		h.write(w, r, name, obj, http.StatusOK)
		return
	}

	h.notFound(w, r)
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	obj, err := h.source.Open(r.Context(), "404.html")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	h.write(w, r, "404.html", obj, http.StatusNotFound)
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, name string, obj *Object, status int) {
	defer obj.Body.Close()

	contentType := obj.ContentType
	if contentType == "" || contentType == "binary/octet-stream" {
		contentType = mime.TypeByExtension(path.Ext(name))
	}
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	if !obj.ModTime.IsZero() {
		w.Header().Set("Last-Modified", obj.ModTime.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, obj.Body); err != nil {
		log.LogDebug("Copying %s to client: %v", name, err)
	}
}

// HTMLRoutes returns the request path of every HTML page in src, sorted.
// index.html files map to their directory ("guides/index.html" is
// "/guides/").
func HTMLRoutes(ctx context.Context, src Source) ([]string, error) {
	names, err := src.List(ctx)
	if err != nil {
		return nil, err
	}
	var routes []string
	for _, name := range names {
		if path.Ext(name) != ".html" {
			continue
		}
		switch {
		case name == "index.html":
			routes = append(routes, "/")
		case path.Base(name) == "index.html":
			routes = append(routes, "/"+path.Dir(name)+"/")
		default:
			routes = append(routes, "/"+name)
		}
	}
	sort.Strings(routes)
	return routes, nil
}
