package internal

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tenup/docgate/internal/config"
	"github.com/tenup/docgate/internal/content"
	"github.com/tenup/docgate/internal/gate"
	"github.com/tenup/docgate/internal/log"
	"github.com/tenup/docgate/internal/metrics"
	"github.com/tenup/docgate/internal/server"
	"github.com/tenup/docgate/internal/sso"
	"github.com/tenup/docgate/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Docgate is the complete gate application: the auth gate, the login flow
// and the static site behind it
type Docgate struct {
	config     config.Config
	httpServer *server.HTTPServer
	storage    storage.Storage
	cleanup    *storage.CleanupManager
}

// NewDocgate creates the application with all dependencies built
func NewDocgate(ctx context.Context, cfg config.Config) (*Docgate, error) {
	log.LogInfoWithFields("docgate", "Building docgate application", map[string]any{
		"site":    cfg.Site.URL,
		"content": string(cfg.Content.Source),
		"storage": string(cfg.Storage.Kind),
	})

	store, err := SetupStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	src, err := SetupContent(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to setup content: %w", err)
	}

	m := metrics.New()
	handler, err := BuildHTTPHandler(cfg, store, src, m, sso.NewVerifier(cfg.SSO, sso.WithMetrics(m)))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to build HTTP handler: %w", err)
	}

	var cleanup *storage.CleanupManager
	if cfg.Storage.MemberRetention > 0 {
		cleanup = storage.NewCleanupManager(store, cfg.Storage.CleanupInterval, cfg.Storage.MemberRetention)
	}

	return &Docgate{
		config:     cfg,
		httpServer: server.NewHTTPServer(handler, cfg.Site.Addr),
		storage:    store,
		cleanup:    cleanup,
	}, nil
}

// Run serves until ctx is cancelled, a termination signal arrives or the
// server fails, then shuts down gracefully
func (d *Docgate) Run(ctx context.Context) error {
	log.LogInfoWithFields("docgate", "Starting docgate", map[string]any{
		"addr": d.config.Site.Addr,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		if err := d.httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if d.cleanup != nil {
		d.cleanup.Start(ctx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var shutdownReason string
	var runErr error
	select {
	case sig := <-sigChan:
		shutdownReason = fmt.Sprintf("signal %v", sig)
		log.LogInfoWithFields("docgate", "Received shutdown signal", map[string]any{
			"signal": sig.String(),
		})
	case err := <-errChan:
		shutdownReason = fmt.Sprintf("error: %v", err)
		runErr = err
		log.LogErrorWithFields("docgate", "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
	case <-ctx.Done():
		shutdownReason = "context cancelled"
		log.LogInfoWithFields("docgate", "Context cancelled, shutting down", nil)
	}

	log.LogInfoWithFields("docgate", "Starting graceful shutdown", map[string]any{
		"reason":  shutdownReason,
		"timeout": "30s",
	})
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := d.shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}

	log.LogInfoWithFields("docgate", "Application shutdown complete", map[string]any{
		"reason": shutdownReason,
	})
	return runErr
}

// shutdown stops the HTTP server, the cleanup loop and storage. A failed
// server shutdown does not skip the rest.
func (d *Docgate) shutdown(ctx context.Context) error {
	err := d.httpServer.Stop(ctx)
	if err != nil {
		log.LogErrorWithFields("docgate", "HTTP server shutdown error", map[string]any{
			"error": err.Error(),
		})
	}

	if d.cleanup != nil {
		d.cleanup.Stop()
	}
	if closeErr := d.storage.Close(); closeErr != nil {
		log.LogWarnWithFields("docgate", "Failed to close storage", map[string]any{
			"error": closeErr.Error(),
		})
	}
	return err
}

// SetupStorage creates the member store selected by the configuration
func SetupStorage(ctx context.Context, cfg config.Config) (storage.Storage, error) {
	if cfg.Storage.Kind == config.StorageFirestore {
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":    cfg.Storage.GCPProject,
			"database":   cfg.Storage.Database,
			"collection": cfg.Storage.Collection,
		})
		firestoreStorage, err := storage.NewFirestoreStorage(
			ctx,
			cfg.Storage.GCPProject,
			cfg.Storage.Database,
			cfg.Storage.Collection,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Firestore storage: %w", err)
		}
		return firestoreStorage, nil
	}

	log.LogInfoWithFields("storage", "Using in-memory storage", map[string]any{})
	return storage.NewMemoryStorage(), nil
}

// SetupContent opens the generated site selected by the configuration
func SetupContent(ctx context.Context, cfg config.Config) (content.Source, error) {
	switch cfg.Content.Source {
	case config.ContentSourceS3:
		log.LogInfoWithFields("content", "Serving site from S3", map[string]any{
			"bucket": cfg.Content.S3.Bucket,
			"prefix": cfg.Content.S3.Prefix,
		})
		src, err := content.NewS3Source(ctx, cfg.Content.S3)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		log.LogInfoWithFields("content", "Serving site from directory", map[string]any{
			"dir": cfg.Content.Dir,
		})
		src, err := content.NewDirSource(cfg.Content.Dir)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
}

// BuildHTTPHandler wires the routes. Everything except the login flow,
// health and metrics endpoints goes through the auth gate.
func BuildHTTPHandler(
	cfg config.Config,
	store storage.Storage,
	src content.Source,
	m *metrics.Metrics,
	verifier server.SessionVerifier,
) (http.Handler, error) {
	auth, err := sso.NewAuthURLBuilder(cfg.SSO, cfg.Site.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to build login URL builder: %w", err)
	}
	g, err := gate.New(&cfg, verifier, auth, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create gate: %w", err)
	}
	authHandlers, err := server.NewAuthHandlers(&cfg, verifier, auth, store, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth handlers: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", server.NewHealthHandler())
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("GET /login", authHandlers.LoginHandler)
	mux.HandleFunc("GET /logout", authHandlers.LogoutHandler)
	mux.Handle("GET /_docgate/session", g.Middleware(http.HandlerFunc(authHandlers.SessionHandler)))
	mux.Handle("/", g.Middleware(content.NewHandler(src)))

	handler := server.ChainMiddleware(mux,
		server.NewRecoverMiddleware("docgate"),
		server.NewLoggerMiddleware("http", m),
		server.NewRequestIDMiddleware(),
	)
	return otelhttp.NewHandler(handler, "docgate"), nil
}
