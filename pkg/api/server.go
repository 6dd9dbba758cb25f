// Package api serves the control plane: settings, status and metrics over
// HTTP plus a WebSocket push channel for live metering. Handlers absorb all
// failures; the audio path is never affected by a control-plane request.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/carpi-audio/duckd/pkg/ducker"
	"github.com/carpi-audio/duckd/pkg/host"
)

// StatusSource is the read-only view of the running ducker.
type StatusSource interface {
	Status() ducker.Status
	Metrics() ducker.Snapshot
}

// Reconnector triggers a port-routing pass on demand.
type Reconnector interface {
	Reconnect() host.Report
}

// Server is the HTTP control plane.
type Server struct {
	store  *ducker.Store
	source StatusSource
	router Reconnector
	hub    *Hub
	log    *logrus.Entry
	mux    *http.ServeMux
}

// NewServer wires the endpoints. The hub may be nil when no push channel is
// wanted; the reconnector may be nil when routing is not configured.
func NewServer(store *ducker.Store, source StatusSource, router Reconnector, hub *Hub, log *logrus.Logger) *Server {
	s := &Server{
		store:  store,
		source: source,
		router: router,
		hub:    hub,
		log:    log.WithField("component", "api"),
		mux:    http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	s.mux.HandleFunc("POST /api/settings", s.handlePatchSettings)
	s.mux.HandleFunc("POST /api/reset-settings", s.handleResetSettings)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	s.mux.HandleFunc("POST /api/autoconnect", s.handleAutoconnect)
	if hub != nil {
		s.mux.HandleFunc("GET /ws", hub.ServeWS)
	}

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.Get())
}

// handlePatchSettings merges a partial JSON document into the current
// settings. Unknown keys are ignored; out-of-range values revert to their
// defaults inside the store. The response is the full merged document.
func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	var patch ducker.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid settings document: "+err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, s.store.Update(patch))
}

func (s *Server) handleResetSettings(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.Reset())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.source.Status())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.source.Metrics())
}

type autoconnectResponse struct {
	Status    string           `json:"status"`
	Connected []host.Link      `json:"connected"`
	Failed    []host.LinkError `json:"failed"`
}

func (s *Server) handleAutoconnect(w http.ResponseWriter, r *http.Request) {
	if s.router == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no routing configured")
		return
	}

	report := s.router.Reconnect()
	s.writeJSON(w, http.StatusOK, autoconnectResponse{
		Status:    "ok",
		Connected: report.Connected,
		Failed:    report.Failed,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Warn("Could not write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}
