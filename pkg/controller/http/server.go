package http

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/delthas/giteart/pkg/domain/interfaces"
	"github.com/delthas/giteart/pkg/domain/types"
)

//go:embed static
var staticFiles embed.FS

// config holds internal HTTP server configuration
type config struct {
	addr string
}

// Option is a functional option for Server configuration
type Option func(*config)

// WithAddr sets the server address
func WithAddr(addr string) Option {
	return func(c *config) {
		c.addr = addr
	}
}

// Server represents the HTTP server
type Server struct {
	*http.Server
}

// NewServer creates a new HTTP server
func NewServer(
	ctx context.Context,
	webhookUC interfaces.WebhookUseCase,
	opts ...Option,
) (*Server, error) {
	// Default configuration
	cfg := &config{
		addr: "localhost:8080",
	}

	// Apply options
	for _, opt := range opts {
		opt(cfg)
	}

	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open static files")
	}
	index, err := renderIndex(static)
	if err != nil {
		return nil, err
	}

	webhookHandler, err := NewWebhookHandler(ctx, webhookUC)
	if err != nil {
		return nil, err
	}

	router := chi.NewRouter()

	// Global middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggingMiddleware(ctx))
	router.Use(middleware.Recoverer)

	router.Get("/health", handleHealth)
	router.Post("/hook", webhookHandler.Handle)

	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := w.Write(index); err != nil {
			ctxlog.From(r.Context()).Error("Failed to write landing page", "error", err)
		}
	})
	router.Get("/*", http.FileServer(http.FS(static)).ServeHTTP)

	server := &Server{
		Server: &http.Server{
			Addr:              cfg.addr,
			Handler:           router,
			ReadHeaderTimeout: 15 * time.Second,
		},
	}

	return server, nil
}

// renderIndex substitutes the running version into the landing page
func renderIndex(static fs.FS) ([]byte, error) {
	tmpl, err := template.ParseFS(static, "index.html")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse landing page")
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct{ Version string }{Version: types.Version}); err != nil {
		return nil, goerr.Wrap(err, "failed to render landing page")
	}
	return buf.Bytes(), nil
}
