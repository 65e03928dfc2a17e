// Package server wires the gateway's components — cache, coalescer,
// Guard client, validation service, forwarder, and HTTP router — into
// a single ready-to-serve Server.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/javelinlabs/mcp-validation-gateway/internal/cache"
	"github.com/javelinlabs/mcp-validation-gateway/internal/config"
	"github.com/javelinlabs/mcp-validation-gateway/internal/forwarder"
	"github.com/javelinlabs/mcp-validation-gateway/internal/gateway"
	"github.com/javelinlabs/mcp-validation-gateway/internal/guard"
	"github.com/javelinlabs/mcp-validation-gateway/internal/telemetry"
	"github.com/javelinlabs/mcp-validation-gateway/internal/validation"
)

// Server holds the fully wired gateway, ready to be handed to an
// http.Server.
type Server struct {
	Handler      http.Handler
	Config       *config.Config
	Validation   *validation.Service
	ShutdownFunc func(context.Context) error
}

// New loads configuration from the environment and builds a Server.
func New(ctx context.Context) (*Server, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig builds a Server from an explicit, already-validated
// configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry, cfg.ServiceName, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	validationCache := cache.New(cfg.MaxCacheEntries, cfg.CacheTTL())
	coalescer := cache.NewCoalescer()
	guardClient := guard.New(cfg.GuardAPIKey, cfg.GuardBaseURL, cfg.GuardTimeout())

	svc := validation.New(validationCache, coalescer, guardClient, validation.Config{
		FailOpen:      cfg.FailOpen,
		CacheEnabled:  cfg.CacheEnabled,
		DedupEnabled:  cfg.DedupEnabled,
		HashSensitive: cfg.HashSensitive,
	})

	fwd := forwarder.New()

	router := gateway.NewRouter(svc, fwd, gateway.Options{
		ServiceName:    cfg.ServiceName,
		Version:        cfg.Version,
		GuardAPIKey:    cfg.GuardAPIKey,
		MaxRequestSize: cfg.MaxRequestSize,
	})

	log.Info().
		Str("guard_base_url", cfg.GuardBaseURL).
		Bool("fail_open", cfg.FailOpen).
		Bool("cache_enabled", cfg.CacheEnabled).
		Bool("dedup_enabled", cfg.DedupEnabled).
		Msg("validation gateway initialized")

	return &Server{
		Handler:      router,
		Config:       cfg,
		Validation:   svc,
		ShutdownFunc: shutdown,
	}, nil
}
