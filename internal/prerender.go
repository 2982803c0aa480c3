package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tenup/docgate/internal/browser"
	"github.com/tenup/docgate/internal/config"
	"github.com/tenup/docgate/internal/content"
	"github.com/tenup/docgate/internal/gate"
	"github.com/tenup/docgate/internal/log"
	"github.com/tenup/docgate/internal/pages"
	"github.com/tenup/docgate/internal/sso"
)

// Prerender writes the build-time rendering of every HTML page of src into
// outDir. No browser exists at build time, so each page is the inert
// placeholder. It returns the number of pages written.
func Prerender(ctx context.Context, cfg config.Config, src content.Source, outDir string) (int, error) {
	auth, err := sso.NewAuthURLBuilder(cfg.SSO, cfg.Site.URL)
	if err != nil {
		return 0, fmt.Errorf("failed to build login URL builder: %w", err)
	}
	g, err := gate.New(&cfg, sso.NewVerifier(cfg.SSO), auth, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create gate: %w", err)
	}

	routes, err := content.HTMLRoutes(ctx, src)
	if err != nil {
		return 0, fmt.Errorf("listing pages: %w", err)
	}

	for _, route := range routes {
		d := g.Evaluate(ctx, browser.NewPrerender(route))
		if !d.Placeholder {
			return 0, fmt.Errorf("prerender of %s left the placeholder", route)
		}
		if err := writePlaceholder(filepath.Join(outDir, routeFile(route)), cfg.Site.Name); err != nil {
			return 0, err
		}
		log.LogDebug("Prerendered %s", route)
	}

	log.LogInfoWithFields("prerender", "Prerendered site", map[string]any{
		"pages":  len(routes),
		"outDir": outDir,
	})
	return len(routes), nil
}

// routeFile maps a request path to the file that serves it
func routeFile(route string) string {
	name := strings.TrimPrefix(route, "/")
	if name == "" || strings.HasSuffix(name, "/") {
		name += "index.html"
	}
	return filepath.FromSlash(name)
}

func writePlaceholder(path, siteName string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := pages.Render(f, pages.Placeholder, pages.Data{SiteName: siteName}); err != nil {
		f.Close()
		return fmt.Errorf("rendering %s: %w", path, err)
	}
	return f.Close()
}
