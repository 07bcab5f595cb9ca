package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"csms-gateway/internal/eventbus"
	"csms-gateway/internal/ocpp16"
	"csms-gateway/internal/ocpp201"
	"csms-gateway/internal/session"
	"csms-gateway/internal/wsconn"
)

// handleOCPP upgrades a charging station's WebSocket connection and runs its session to
// completion (SPEC_FULL.md §6 "OCPP WebSocket (inbound)"). It blocks for the lifetime of
// the station's connection.
func (s *Server) handleOCPP(w http.ResponseWriter, r *http.Request) {
	identity := mux.Vars(r)["identity"]
	if identity == "" {
		identity = uuid.NewString()
		s.logger.Warn("ocpp upgrade: no identity in path, generated one", "id", identity)
	}

	version, subprotocol := negotiateVersion(r.Header.Get("Sec-WebSocket-Protocol"))
	if subprotocol == "" {
		s.logger.Warn("ocpp upgrade: unrecognized subprotocol, defaulting to 1.6", "id", identity,
			"requested", r.Header.Get("Sec-WebSocket-Protocol"))
	}

	var responseHeader http.Header
	if subprotocol != "" {
		responseHeader = http.Header{"Sec-WebSocket-Protocol": []string{subprotocol}}
	}

	ws, err := s.upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		s.logger.Warn("ocpp upgrade failed", "id", identity, "error", err)
		return
	}
	conn := wsconn.New(ws)

	var handler session.Handler
	switch version {
	case "2.0.1":
		handler = ocpp201.New(identity, s.bus, s.logger)
	default:
		handler = ocpp16.New(identity, s.bus, s.logger)
	}

	var aliasPtr *string
	if alias, ok := s.registry.Alias(identity); ok {
		aliasPtr = &alias
	}

	// A freshly-connected station starts disabled (SPEC_FULL.md §3 default), not enabled,
	// unless a prior settings record for this identity says otherwise.
	var enabled bool
	if rec, ok, err := s.settingsRepo.Get(r.Context(), identity); err == nil && ok {
		enabled = rec.Enabled
	}

	sess := session.New(identity, conn, handler, session.Settings{
		Alias:       aliasPtr,
		Enabled:     enabled,
		OCPPVersion: version,
	}, s.logger)

	s.registry.Register(sess)
	s.metrics.SessionsActive.Inc()
	s.metrics.SessionsTotal.WithLabelValues(version).Inc()

	s.bus.Publish(r.Context(), eventbus.Event{
		Topic:         eventbus.TopicChargePointConnected,
		ChargePointID: identity,
		OCPPVersion:   version,
	})

	sess.Listen(r.Context())

	s.metrics.SessionsActive.Dec()
	if s.registry.Deregister(sess) {
		s.bus.Publish(r.Context(), eventbus.Event{
			Topic:         eventbus.TopicChargePointDisconnected,
			ChargePointID: identity,
			OCPPVersion:   version,
		})
	}
}

// negotiateVersion picks an OCPP version from the client's requested subprotocol list
// (SPEC_FULL.md §6): "ocpp2.0.1" selects v2.0.1; "ocpp1.6" or anything containing "1.6"
// selects v1.6; anything else defaults to v1.6 with a warning and echoes no subprotocol.
func negotiateVersion(header string) (version, subprotocol string) {
	for _, p := range strings.Split(header, ",") {
		p = strings.TrimSpace(p)
		switch {
		case p == "ocpp2.0.1":
			return "2.0.1", p
		case p == "ocpp1.6" || strings.Contains(p, "1.6"):
			return "1.6", p
		}
	}
	return "1.6", ""
}
