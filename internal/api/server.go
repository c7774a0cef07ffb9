package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"crypto-price-alerts/internal/auth"
	"crypto-price-alerts/internal/realtime"
	"crypto-price-alerts/internal/types"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// Prices is the read side of the price service
type Prices interface {
	Latest(ctx context.Context) (types.PriceSnapshot, error)
	Cached(ctx context.Context) (types.PriceSnapshot, bool)
}

type Server struct {
	prices   Prices
	hub      *realtime.Hub
	verifier *auth.Verifier
	origin   string
	router   *mux.Router
	upgrader websocket.Upgrader
}

// NewServer wires the public routes. origin restricts CORS and websocket
// origins; empty allows any.
func NewServer(prices Prices, hub *realtime.Hub, verifier *auth.Verifier, origin string) *Server {
	server := &Server{
		prices:   prices,
		hub:      hub,
		verifier: verifier,
		origin:   strings.TrimRight(origin, "/"),
	}
	server.upgrader = websocket.Upgrader{CheckOrigin: server.checkOrigin}

	r := mux.NewRouter()
	r.Use(server.corsMiddleware)

	r.HandleFunc("/health", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/crypto/prices", server.handlePrices).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/ws", server.handleWebSocket).Methods(http.MethodGet)

	server.router = r
	return server
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.prices.Latest(r.Context())
	if err != nil {
		log.Errorf("❌ Failed to serve prices: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "upstream unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, snapshot.Quotes())
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	principal, err := s.verifier.FromRequest(r)
	if err != nil {
		log.Debugf("Rejected websocket client: %v", err)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Token is not valid"})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	var greeting *realtime.Envelope
	if snapshot, ok := s.prices.Cached(r.Context()); ok {
		greeting = &realtime.Envelope{Event: realtime.TopicPrices, Data: snapshot.Quotes()}
	}

	s.hub.Serve(conn, principal, greeting)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return s.origin == "" || origin == "" || origin == s.origin
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed := s.origin
		if allowed == "" {
			allowed = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", allowed)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,OPTIONS")
		if allowed != "*" {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
