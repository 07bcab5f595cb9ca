package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"csms-gateway/internal/eventbus"
	"csms-gateway/internal/registry"
	"csms-gateway/internal/session"
)

// Service is the command façade (component J): look up a session, pick its strategy,
// send, and map internal RPC signals to user-visible error kinds.
type Service struct {
	registry *registry.Registry[*session.Session]
	bus      *eventbus.Bus
	logger   *slog.Logger
}

// NewService constructs the façade over a registry and event bus.
func NewService(reg *registry.Registry[*session.Session], bus *eventbus.Bus, logger *slog.Logger) *Service {
	return &Service{registry: reg, bus: bus, logger: logger}
}

func (s *Service) strategyFor(sess *session.Session) Strategy {
	if sess.Settings().OCPPVersion == "2.0.1" {
		return V201Strategy{}
	}
	return V16Strategy{}
}

// Send implements the generic dispatch behind POST /charge-points/{id}/commands
// (SPEC_FULL.md §4.J).
func (s *Service) Send(ctx context.Context, cpID, action string, params map[string]any) (json.RawMessage, error) {
	sess, ok := s.registry.Get(cpID)
	if !ok {
		return nil, notConnected(cpID)
	}
	if !sess.Running() {
		sess.Close()
		s.registry.Deregister(sess)
		return nil, notConnected(cpID)
	}

	call, err := s.strategyFor(sess).Build(action, params)
	if err != nil {
		return nil, err
	}

	resp, err := sess.SendCall(ctx, call.Action, call.Payload)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrTimeout):
			return nil, gatewayTimeout(action)
		case errors.Is(err, session.ErrDisconnected), errors.Is(err, session.ErrSessionClosed):
			s.registry.Deregister(sess)
			return nil, serviceUnavailable(action)
		default:
			return nil, err
		}
	}

	if call.Action == "ChangeConfiguration" || call.Action == "SetVariables" {
		s.publishConfigurationChanged(ctx, cpID, sess, params, resp)
	}

	return resp, nil
}

// publishConfigurationChanged never affects the command's own return value — a bus
// subscriber failure is logged internally by eventbus.Bus.Publish and never propagates
// here (SPEC_FULL.md §4.J step 4).
func (s *Service) publishConfigurationChanged(ctx context.Context, cpID string, sess *session.Session, params map[string]any, resp json.RawMessage) {
	s.bus.Publish(ctx, eventbus.Event{
		Topic:         eventbus.TopicConfigurationChanged,
		ChargePointID: cpID,
		OCPPVersion:   sess.Settings().OCPPVersion,
		Payload: map[string]any{
			"parameters": params,
			"result":     string(resp),
		},
	})
}

// Start issues the version-appropriate remote-start call with defaulted parameters
// (SPEC_FULL.md §6, scenario 2).
func (s *Service) Start(ctx context.Context, cpID string) (json.RawMessage, error) {
	sess, ok := s.registry.Get(cpID)
	if !ok {
		return nil, notConnected(cpID)
	}
	if sess.Settings().OCPPVersion == "2.0.1" {
		return s.Send(ctx, cpID, "RequestStartTransaction", map[string]any{})
	}
	return s.Send(ctx, cpID, "RemoteStartTransaction", map[string]any{"idTag": "DEFAULT_TAG"})
}

// Stop issues the version-appropriate remote-stop call.
func (s *Service) Stop(ctx context.Context, cpID string) (json.RawMessage, error) {
	sess, ok := s.registry.Get(cpID)
	if !ok {
		return nil, notConnected(cpID)
	}
	if sess.Settings().OCPPVersion == "2.0.1" {
		return s.Send(ctx, cpID, "RequestStopTransaction", map[string]any{"transactionId": "1"})
	}
	return s.Send(ctx, cpID, "RemoteStopTransaction", map[string]any{"transactionId": 1})
}

// SetChargingCurrent implements POST /charge-points/{id}/charging-current.
func (s *Service) SetChargingCurrent(ctx context.Context, cpID string, amps int) (json.RawMessage, error) {
	if amps < 1 {
		return nil, badRequest("charging current must be >= 1")
	}
	sess, ok := s.registry.Get(cpID)
	if !ok {
		return nil, notConnected(cpID)
	}
	if sess.Settings().OCPPVersion == "2.0.1" {
		return s.Send(ctx, cpID, "SetVariables", map[string]any{
			"key": map[string]any{
				"component":     map[string]any{"name": "SmartChargingCtrlr"},
				"variable_name": "ChargingCurrent",
			},
			"value": amps,
		})
	}
	return s.Send(ctx, cpID, "ChangeConfiguration", map[string]any{
		"key":   "MaxChargingCurrent",
		"value": fmt.Sprint(amps),
	})
}
