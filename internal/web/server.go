// Package web exposes the HTTP surface: the synchronous query endpoint,
// the SMS webhook, conversation history, turn audit, live events and
// metrics.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mtzanidakis/counterman/internal/chat"
	"github.com/mtzanidakis/counterman/internal/config"
	"github.com/mtzanidakis/counterman/internal/metrics"
	"github.com/mtzanidakis/counterman/internal/natsbus"
	"github.com/mtzanidakis/counterman/internal/store"
)

type Server struct {
	chat      *chat.Service
	store     *store.Store
	bus       *natsbus.Bus
	nats      *natsbus.Client
	metrics   *metrics.Collector
	hub       *Hub
	cfg       config.WebConfig
	sms       config.SMSConfig
	profile   string
	version   string
	startedAt time.Time
}

func NewServer(svc *chat.Service, s *store.Store, bus *natsbus.Bus, m *metrics.Collector, cfg config.WebConfig, smsCfg config.SMSConfig, profile, version string) *Server {
	return &Server{
		chat:      svc,
		store:     s,
		bus:       bus,
		metrics:   m,
		hub:       NewHub(),
		cfg:       cfg,
		sms:       smsCfg,
		profile:   profile,
		version:   version,
		startedAt: time.Now(),
	}
}

// Handler returns the routed handler with CORS and auth applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerAPI(mux)
	mux.HandleFunc("/api/ws", s.handleWebSocket)
	mux.Handle("GET /metrics", s.metrics.Handler())
	return s.withMiddleware(mux)
}

func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	// Subscribe to NATS events and broadcast to WebSocket
	s.subscribeEvents()

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		server.Close()
	}()

	slog.Info("web server listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close releases the event subscription.
func (s *Server) Close() {
	s.nats.Close()
}

func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		// The SMS webhook authenticates with its signature instead.
		if strings.HasPrefix(r.URL.Path, "/api/") && s.cfg.Auth != "" && r.URL.Path != "/api/webhook/sms" {
			if !s.checkAuth(w, r) {
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// checkAuth accepts a bearer token, Basic Auth (for programmatic API
// access) or a token query parameter (for browser websockets).
func (s *Server) checkAuth(w http.ResponseWriter, r *http.Request) bool {
	var given string
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		given = strings.TrimPrefix(h, "Bearer ")
	} else if _, pass, ok := r.BasicAuth(); ok {
		given = pass
	} else if r.URL.Path == "/api/ws" {
		given = r.URL.Query().Get("token")
	}

	if given != "" && subtle.ConstantTimeCompare([]byte(given), []byte(s.cfg.Auth)) == 1 {
		return true
	}

	w.Header().Set("WWW-Authenticate", `Bearer realm="counterman"`)
	jsonError(w, "unauthorized", http.StatusUnauthorized)
	return false
}

func (s *Server) subscribeEvents() {
	if s.bus == nil {
		return
	}
	client, err := natsbus.NewClient(s.bus)
	if err != nil {
		slog.Error("web server nats client failed", "error", err)
		return
	}
	s.nats = client

	forward := func(msg *nats.Msg) {
		if !json.Valid(msg.Data) {
			slog.Warn("invalid NATS event payload", "subject", msg.Subject)
			return
		}
		s.hub.Broadcast(Event{Type: msg.Subject, Payload: json.RawMessage(msg.Data)})
	}
	for _, topic := range []string{natsbus.TopicEventsAll, natsbus.TopicTurnSteps} {
		if _, err := client.Subscribe(topic, forward); err != nil {
			slog.Error("subscribe to events failed", "topic", topic, "error", err)
		}
	}
}
