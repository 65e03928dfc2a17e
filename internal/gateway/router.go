// Package gateway exposes the validation service over HTTP: a small
// REST surface (health, license, validate, proxy) and an MCP
// JSON-RPC endpoint, fronted by the same middleware stack.
package gateway

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/javelinlabs/mcp-validation-gateway/internal/forwarder"
	"github.com/javelinlabs/mcp-validation-gateway/internal/validation"
)

// Options configures the router.
type Options struct {
	ServiceName    string
	Version        string
	GuardAPIKey    string
	MaxRequestSize int64
}

// NewRouter builds the full HTTP handler tree for the gateway.
func NewRouter(svc *validation.Service, fwd *forwarder.Forwarder, opts Options) http.Handler {
	h := &Handlers{
		Validation:  svc,
		Forwarder:   fwd,
		ServiceName: opts.ServiceName,
		Version:     opts.Version,
		GuardAPIKey: opts.GuardAPIKey,
	}
	mcp := &mcpHandler{validation: svc, forwarder: fwd}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(requestLogger)
	r.Use(maxBodyBytes(opts.MaxRequestSize))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization", "X-*"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/", h.Health)
	r.Get("/health", h.Health)
	r.Get("/license", h.License)
	r.Post("/validate", h.Validate)
	r.Post("/proxy/{target}", h.Proxy)
	r.Handle("/mcp", mcp)

	return r
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
