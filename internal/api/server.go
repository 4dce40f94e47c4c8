// Package api serves a read-only HTTP view of a running window server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bryanchriswhite/wscommon/internal/config"
	"github.com/bryanchriswhite/wscommon/internal/logger"
	"github.com/bryanchriswhite/wscommon/internal/server"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const version = "0.1.0"

// Message is one frame on the /api/events stream.
type Message struct {
	Type   string           `json:"type"`
	Server *server.Snapshot `json:"server,omitempty"`
	Notice *server.Notice   `json:"notice,omitempty"`
}

// Server represents the HTTP API server
type Server struct {
	router    *mux.Router
	srv       *server.WindowServer
	configMgr *config.Manager
	upgrader  websocket.Upgrader
	http      *http.Server
	log       *zerolog.Logger
}

// NewServer creates a new API server. configMgr may be nil.
func NewServer(srv *server.WindowServer, configMgr *config.Manager) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		srv:       srv,
		configMgr: configMgr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: logger.WithComponent("api"),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/server", s.handleServer).Methods("GET")
	api.HandleFunc("/windows", s.handleWindows).Methods("GET")
	api.HandleFunc("/windows/{id:[0-9]+}", s.handleWindow).Methods("GET")
	api.HandleFunc("/config", s.handleConfig).Methods("GET")
	api.HandleFunc("/events", s.handleEvents)
}

// Handler returns the router wrapped in CORS headers.
func (s *Server) Handler() http.Handler {
	return enableCORS(s.router)
}

// Start listens on port until Stop is called.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.http = &http.Server{Addr: addr, Handler: s.Handler()}
	s.log.Info().Str("addr", "http://localhost"+addr).Msg("Starting inspect API")

	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the listener down, waiting up to timeout for open requests.
func (s *Server) Stop(timeout time.Duration) error {
	if s.http == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"status":  "healthy",
		"version": version,
		"state":   s.srv.State().String(),
	})
}

func (s *Server) handleServer(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.srv.Snapshot())
}

func (s *Server) handleWindows(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.srv.Windows())
}

func (s *Server) handleWindow(w http.ResponseWriter, r *http.Request) {
	var id uint32
	fmt.Sscan(mux.Vars(r)["id"], &id)

	for _, info := range s.srv.Windows() {
		if info.ID == id {
			writeJSON(w, info)
			return
		}
	}
	http.Error(w, "Window not found", http.StatusNotFound)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if s.configMgr == nil {
		http.Error(w, "No configuration loaded", http.StatusNotFound)
		return
	}
	writeJSON(w, s.configMgr.Get())
}

// handleEvents sends a snapshot, then every notice until the client leaves
// or the server shuts down.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	notices := s.srv.Subscribe()

	// The read loop only exists to notice the client going away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.srv.Unsubscribe(notices)
				return
			}
		}
	}()

	snap := s.srv.Snapshot()
	if err := conn.WriteJSON(Message{Type: "snapshot", Server: &snap}); err != nil {
		s.log.Debug().Err(err).Msg("WebSocket write failed")
		s.srv.Unsubscribe(notices)
		return
	}

	for n := range notices {
		if err := conn.WriteJSON(Message{Type: "notice", Notice: &n}); err != nil {
			s.log.Debug().Err(err).Msg("WebSocket write failed")
			s.srv.Unsubscribe(notices)
			return
		}
	}

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "window server shut down"),
		time.Now().Add(time.Second))
}
