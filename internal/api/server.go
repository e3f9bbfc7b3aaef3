package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"goldbroker/internal/config"
	"goldbroker/internal/engine"
	"goldbroker/internal/marketdata"
	"goldbroker/internal/storage"
	"goldbroker/internal/webhook"
)

// Server runs the admin REST API, the WhatsApp webhook endpoint, and the
// dashboard WebSocket feed behind one http.Server.
type Server struct {
	cfg      config.Config
	hub      *Hub
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer builds the mux and wires every route: the read-only
// health/snapshot/websocket endpoints, the API-key-gated admin endpoints,
// and the conversational channel's webhook.
func NewServer(db *storage.DB, eng *engine.Engine, market *marketdata.Service, dispatcher *webhook.Dispatcher, cfg config.Config, logger *slog.Logger) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(db, eng, market, dispatcher, cfg, hub, logger)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handlers.HandleHealth)
	mux.HandleFunc("GET /api/snapshot", handlers.HandleSnapshot)
	mux.HandleFunc("GET /ws", handlers.HandleWebSocket)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/chat/whatsapp", handlers.HandleWhatsApp)

	mux.HandleFunc("POST /api/admin/create-order/{adminId}", RequireAdminKey(cfg.Admin.APIKey, handlers.HandleCreateOrder))
	mux.HandleFunc("GET /api/admin/order/{adminId}", RequireAdminKey(cfg.Admin.APIKey, handlers.HandleListOrders))
	mux.HandleFunc("PATCH /api/admin/order/{adminId}/{orderId}", RequireAdminKey(cfg.Admin.APIKey, handlers.HandleUpdateOrder))
	mux.HandleFunc("POST /api/admin/transaction", RequireAdminKey(cfg.Admin.APIKey, handlers.HandleTransaction))
	mux.HandleFunc("GET /api/admin/ledger/{adminId}/reconcile", RequireAdminKey(cfg.Admin.APIKey, handlers.HandleLedgerReconcile))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:      cfg,
		hub:      hub,
		handlers: handlers,
		server:   server,
		logger:   logger.With("component", "api-server"),
	}
}

// Start starts the hub and the HTTP server, blocking until the server stops.
func (s *Server) Start() error {
	go s.hub.Run()

	s.logger.Info("admin server starting", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.logger.Info("stopping admin server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// Hub exposes the broadcast hub to callers outside this package. Within
// this package, the admin order handlers are what publish order events.
func (s *Server) Hub() *Hub {
	return s.hub
}
