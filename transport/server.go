package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"collab-hub/auth"
	"collab-hub/observability"
	"collab-hub/runtime"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/samber/lo"
)

type ServerOptions struct {
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxFrameBytes  int64
	AllowedOrigins []string
}

// StatsResponse is the body served on /stats.
type StatsResponse struct {
	Hub        runtime.Stats                 `json:"hub"`
	Monitoring observability.MonitoringStats `json:"monitoring"`
}

// Server exposes the hub over HTTP: the websocket upgrade plus the
// monitoring endpoints.
type Server struct {
	log      *slog.Logger
	hub      *runtime.Hub
	monitor  *observability.MonitoringManager
	opts     ServerOptions
	router   *httprouter.Router
	upgrader websocket.Upgrader
}

func NewServer(log *slog.Logger, hub *runtime.Hub, monitor *observability.MonitoringManager, opts ServerOptions) *Server {
	s := &Server{
		log:     log,
		hub:     hub,
		monitor: monitor,
		opts:    opts,
		router:  httprouter.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	if len(opts.AllowedOrigins) > 0 {
		s.upgrader.CheckOrigin = s.checkOrigin
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/ws", s.handleWebSocket)
	s.router.GET("/stats", s.handleStats)
	s.router.GET("/up", s.handleUp)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// checkOrigin accepts requests without an Origin header (non-browser clients)
// and browser requests from a listed origin. "*" accepts any origin.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return lo.Contains(s.opts.AllowedOrigins, "*") || lo.Contains(s.opts.AllowedOrigins, origin)
}

func (s *Server) pongWait() time.Duration {
	if s.opts.PingInterval <= 0 {
		return 0
	}
	return 2 * s.opts.PingInterval
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	credential := auth.CredentialFromRequest(r)
	if credential == "" {
		s.monitor.IncrAuthFailures()
		s.log.Debug("WebSocket connection rejected: missing credential", "remote", r.RemoteAddr)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("Failed to upgrade WebSocket", "remote", r.RemoteAddr, "error", err)
		return
	}

	var connectionID string
	conn := NewConn(ws, ConnOptions{
		WriteTimeout:  s.opts.WriteTimeout,
		PongWait:      s.pongWait(),
		MaxFrameBytes: s.opts.MaxFrameBytes,
		OnPong: func() {
			if err := s.hub.Heartbeat(connectionID); err != nil {
				s.log.Debug("Heartbeat ignored", "connection_id", connectionID, "error", err)
			}
		},
	})

	c, err := s.hub.Accept(r.Context(), conn, credential)
	if err != nil {
		s.log.Info("WebSocket connection rejected", "remote", r.RemoteAddr, "error", err)
		_ = conn.Close(err)
		return
	}
	connectionID = c.ID
	s.hub.Serve(r.Context(), c)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, StatsResponse{
		Hub:        s.hub.Stats(),
		Monitoring: s.monitor.GetLatest(),
	})
}

func (s *Server) handleUp(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "up"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
