// Package api implements the REST/RPC surface (component M) and the OCPP WebSocket
// upgrade handler that accepts new station connections into the session layer.
// Routing is grounded on the gorilla/mux + gorilla/websocket pairing seen across the
// examples pack's other Go backend services (e.g. Generativebots-ocx-backend-go-svc),
// the same family gorilla/websocket itself (already used for the dashboard hub and the
// channel adapter) belongs to.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"csms-gateway/internal/command"
	"csms-gateway/internal/dashboard"
	"csms-gateway/internal/eventbus"
	"csms-gateway/internal/metrics"
	"csms-gateway/internal/registry"
	"csms-gateway/internal/session"
	"csms-gateway/internal/settings"
)

// Server wires the registry, command façade, event bus, settings repository, metrics,
// and dashboard hub into one HTTP surface.
type Server struct {
	mount        string
	registry     *registry.Registry[*session.Session]
	commands     *command.Service
	bus          *eventbus.Bus
	settingsRepo settings.Repository
	metrics      *metrics.Metrics
	dashboard    *dashboard.Hub
	logger       *slog.Logger
	upgrader     websocket.Upgrader
}

// New constructs the API server.
func New(
	mount string,
	reg *registry.Registry[*session.Session],
	commands *command.Service,
	bus *eventbus.Bus,
	settingsRepo settings.Repository,
	m *metrics.Metrics,
	hub *dashboard.Hub,
	logger *slog.Logger,
) *Server {
	return &Server{
		mount:        mount,
		registry:     reg,
		commands:     commands,
		bus:          bus,
		settingsRepo: settingsRepo,
		metrics:      m,
		dashboard:    hub,
		logger:       logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Routes builds the full HTTP handler tree (SPEC_FULL.md §6).
func (s *Server) Routes() http.Handler {
	router := mux.NewRouter()
	r := router
	if s.mount != "" {
		r = router.PathPrefix(s.mount).Subrouter()
	}

	r.HandleFunc("/ocpp/{identity}", s.handleOCPP)
	r.HandleFunc("/ocpp/", s.handleOCPP)
	r.HandleFunc("/frontend", s.dashboard.Handler())

	r.HandleFunc("/charge-points/{id}/commands", s.handleCommand).Methods(http.MethodPost)
	r.HandleFunc("/charge-points/{id}/enable", s.handleEnable(true)).Methods(http.MethodPost)
	r.HandleFunc("/charge-points/{id}/disable", s.handleEnable(false)).Methods(http.MethodPost)
	r.HandleFunc("/charge-points/{id}/start", s.handleStart).Methods(http.MethodPost)
	r.HandleFunc("/charge-points/{id}/stop", s.handleStop).Methods(http.MethodPost)
	r.HandleFunc("/charge-points/{id}/charging-current", s.handleChargingCurrent).Methods(http.MethodPost)
	r.HandleFunc("/charge-points/{id}/configuration", s.handleConfiguration).Methods(http.MethodGet)
	r.HandleFunc("/charge-points/{id}/set-alias", s.handleSetAlias).Methods(http.MethodPut)
	r.HandleFunc("/charge-points/{id}/settings", s.handleSettings).Methods(http.MethodGet)
	r.HandleFunc("/get-all-charge-points", s.handleGetAll).Methods(http.MethodGet)

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	return s.metricsMiddleware(router)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rt := mux.CurrentRoute(r); rt != nil {
			if tmpl, err := rt.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		s.metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		s.metrics.HTTPRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var cmdErr *command.Error
	if as, ok := err.(*command.Error); ok {
		cmdErr = as
		writeJSON(w, cmdErr.Kind.HTTPStatus(), map[string]any{"error": cmdErr.Message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
}
