package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"csms-gateway/internal/session"
)

// handleCommand implements POST /charge-points/{id}/commands (SPEC_FULL.md §6).
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var body struct {
		Action     string         `json:"action"`
		Parameters map[string]any `json:"parameters"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
		return
	}

	resp, err := s.commands.Send(r.Context(), id, body.Action, body.Parameters)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": json.RawMessage(resp)})
}

// handleEnable implements POST /charge-points/{id}/enable and /disable.
func (s *Server) handleEnable(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		sess, ok := s.registry.Get(id)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": fmt.Sprintf("no active session for %q", id)})
			return
		}
		sess.UpdateSettings(func(st *session.Settings) { st.Enabled = active })
		if err := s.settingsRepo.SetEnabled(r.Context(), id, active); err != nil {
			s.logger.Warn("settings: persist enabled failed", "id", id, "error", err)
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": active})
	}
}

// handleStart implements POST /charge-points/{id}/start.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	resp, err := s.commands.Start(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": json.RawMessage(resp)})
}

// handleStop implements POST /charge-points/{id}/stop.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	resp, err := s.commands.Stop(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": json.RawMessage(resp)})
}

// handleChargingCurrent implements POST /charge-points/{id}/charging-current, whose body
// is a bare JSON integer (amps), per SPEC_FULL.md §6.
func (s *Server) handleChargingCurrent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var amps int
	if err := json.NewDecoder(r.Body).Decode(&amps); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "body must be an integer amp value"})
		return
	}
	resp, err := s.commands.SetChargingCurrent(r.Context(), id, amps)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": json.RawMessage(resp)})
}

// handleConfiguration implements GET /charge-points/{id}/configuration.
func (s *Server) handleConfiguration(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	cfg, err := s.commands.GetConfiguration(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handleSetAlias implements PUT /charge-points/{id}/set-alias. The alias is persisted via
// the registry's cache-then-repository path so it survives the station disconnecting and
// reconnecting under a different OCPP version (SPEC_FULL.md §8 scenario 7).
func (s *Server) handleSetAlias(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		Alias string `json:"alias"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
		return
	}
	if err := s.registry.RememberAlias(r.Context(), id, body.Alias); err != nil {
		s.logger.Warn("set-alias: settings persist failed", "id", id, "error", err)
	}
	if sess, ok := s.registry.Get(id); ok {
		alias := body.Alias
		sess.UpdateSettings(func(st *session.Settings) { st.Alias = &alias })
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "alias": body.Alias})
}

// handleSettings implements GET /charge-points/{id}/settings.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, ok := s.registry.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": fmt.Sprintf("no active session for %q", id)})
		return
	}
	st := sess.Settings()
	writeJSON(w, http.StatusOK, map[string]any{
		"id":           id,
		"ocpp_version": st.OCPPVersion,
		"active":       st.Enabled,
		"alias":        st.Alias,
	})
}

// handleGetAll implements GET /get-all-charge-points?active=bool (SPEC_FULL.md §6).
func (s *Server) handleGetAll(w http.ResponseWriter, r *http.Request) {
	var wantActive *bool
	if raw := r.URL.Query().Get("active"); raw != "" {
		v := raw == "true"
		wantActive = &v
	}

	connected := make([]map[string]any, 0)
	for _, sess := range s.registry.List() {
		st := sess.Settings()
		if wantActive != nil && st.Enabled != *wantActive {
			continue
		}
		connected = append(connected, map[string]any{
			"id":           sess.ID(),
			"ocpp_version": st.OCPPVersion,
			"active":       st.Enabled,
			"alias":        st.Alias,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"connected": connected})
}

// handleHealthz implements GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.registry.Count()})
}
