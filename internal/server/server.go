package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/vtupay/wallet-engine/internal/config"
	"github.com/vtupay/wallet-engine/internal/handlers"
	"github.com/vtupay/wallet-engine/internal/middleware"
)

// Server wraps the HTTP server
type Server struct {
	router  *chi.Mux
	handler *handlers.Handler
	config  *config.Config
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, h *handlers.Handler) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		handler: h,
		config:  cfg,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all routes and middleware
func (s *Server) setupRoutes() {
	r := s.router

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Get("/health", s.handler.HealthCheck)

	// User-facing endpoints. The session layer in front of this service
	// authenticates the user and forwards the identity headers; the shared
	// secret ensures only that layer can reach us.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireInternalSecret(s.config.InternalSecret))
		r.Post("/v1/purchase", s.handler.Purchase)
		r.Post("/v1/pin", s.handler.SetPin)
		r.Get("/v1/wallet", s.handler.Wallet)
		r.Get("/v1/contacts/{kind}", s.handler.RecentContact)
	})

	// Inbound payment webhook (signature-checked in the handler, IP filtered
	// and size limited here).
	r.Group(func(r chi.Router) {
		r.Use(middleware.IPFilter(s.config.WebhookAllowedIPs))
		r.Use(middleware.RequestSizeLimit(s.config.MaxRequestSize))
		r.Post("/webhooks/funding", s.handler.FundingWebhook)
	})

	// Admin correction paths.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireInternalSecret(s.config.InternalSecret))
		r.Post("/admin/refund", s.handler.Refund)
		r.Post("/admin/resolve", s.handler.Resolve)
	})

	log.Info().Msg("routes configured")
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := ":" + s.config.ServerPort
	log.Info().Str("addr", addr).Msg("starting HTTP server")

	return http.ListenAndServe(addr, s.router)
}
