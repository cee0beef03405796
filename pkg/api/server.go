// Package api is the HTTP intake surface (C1): signed-order submission
// with the matching engine invoked inline on the request path, the
// operator match override, and the status/nonce lookups, generalized
// from the teacher's pkg/api/server.go mux-based router.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/Munoverse/Catallaxyz-sub002/pkg/market"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/matching"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/obstore"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/onchain"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/realtime"
	"github.com/Munoverse/Catallaxyz-sub002/pkg/settlement"
)

// Oracle is the subset of *onchain.Oracle the intake path needs: a
// nonce check ahead of insert and an on-chain status read for the
// fallback path of the status endpoint.
type Oracle interface {
	NonceOf(ctx context.Context, maker [32]byte) (uint64, error)
	StatusOf(ctx context.Context, orderHash [32]byte) (*onchain.Status, error)
}

// Appender is the subset of *streams.Stream the intake path publishes
// onto, for both stream:orders and stream:fills.
type Appender interface {
	Append(ctx context.Context, fields map[string]interface{}) (string, error)
}

// Server wires the order-intake HTTP handlers to the matching engine,
// on-chain oracle, settlement queue, market registry, and the
// real-time fanout hub.
type Server struct {
	router   *mux.Router
	store    obstore.Store
	engine   *matching.Engine
	oracle   Oracle
	queue    settlement.Queue
	orders   Appender
	fills    Appender
	registry *market.Registry
	hub      *realtime.Hub
	log      *zap.Logger
	now      func() time.Time

	httpServer *http.Server
}

// New constructs a Server and wires its routes.
func New(store obstore.Store, engine *matching.Engine, oracle Oracle, queue settlement.Queue, orders, fills Appender, registry *market.Registry, hub *realtime.Hub, log *zap.Logger) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		store:    store,
		engine:   engine,
		oracle:   oracle,
		queue:    queue,
		orders:   orders,
		fills:    fills,
		registry: registry,
		hub:      hub,
		log:      log,
		now:      time.Now,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/orders", s.handleSubmitOrder).Methods(http.MethodPost)
	v1.HandleFunc("/orders/match", s.handleOperatorMatch).Methods(http.MethodPost)
	v1.HandleFunc("/orders/{hash}/status", s.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{wallet}/nonce", s.handleNonce).Methods(http.MethodGet)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		realtime.ServeWS(s.hub, w, r)
	})
}

// Start runs the hub's fanout loop and the HTTP server until ctx is
// cancelled, mirroring the teacher's cors.Handler wrapping of the mux
// router.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"connections": s.hub.Connections(),
	})
}
