package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"sigclaw/internal/constants"
	"sigclaw/internal/metrics"
	"sigclaw/internal/models"
	"sigclaw/internal/router"
	"sigclaw/internal/session"
	"sigclaw/internal/transport"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Server exposes operational status over HTTP: health, transport and
// conversation state, and the in-memory metrics dump.
type Server struct {
	cfg        *models.Config
	router     *mux.Router
	logger     *logrus.Logger
	msgRouter  *router.Router
	supervisor *transport.Supervisor
	sessions   *session.Store
	server     *http.Server
	startTime  time.Time
}

func NewServer(cfg *models.Config, msgRouter *router.Router, supervisor *transport.Supervisor, sessions *session.Store, logger *logrus.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		router:     mux.NewRouter(),
		logger:     logger,
		msgRouter:  msgRouter,
		supervisor: supervisor,
		sessions:   sessions,
		startTime:  time.Now(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(constants.DefaultServerReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(constants.DefaultServerWriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(constants.DefaultServerIdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting status server on %s", addr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}

type statusResponse struct {
	Version          string `json:"version"`
	UptimeSec        int64  `json:"uptime_sec"`
	TransportRunning bool   `json:"transport_running"`
	TransportRestart int64  `json:"transport_restarts"`
	MessagesReceived int64  `json:"messages_received"`
	Conversations    int    `json:"conversations"`
	PersistedThreads int    `json:"persisted_sessions"`
}

func (s *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, statusResponse{
			Version:          Version,
			UptimeSec:        int64(time.Since(s.startTime).Seconds()),
			TransportRunning: s.supervisor.IsRunning(),
			TransportRestart: s.supervisor.Restarts(),
			MessagesReceived: s.supervisor.Received(),
			Conversations:    s.msgRouter.ConversationCount(),
			PersistedThreads: s.sessions.Count(),
		})
	}
}

func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, metrics.GetAllMetrics())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}
