// Package session implements the OCPP RPC engine (component C): one Session per
// connected charging station, owning inbound dispatch, outbound call correlation, and
// disconnect/timeout semantics.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"csms-gateway/internal/ocppwire"
)

// DefaultCallTimeout is the implementation-wide default deadline for SendCall
// (SPEC_FULL.md §4.C); callers may override by passing a context with its own deadline.
const DefaultCallTimeout = 30 * time.Second

// Internal RPC signals, mapped to user-facing HTTP-style errors at the command façade
// (SPEC_FULL.md §7).
var (
	ErrSessionClosed = errors.New("session: not running")
	ErrDisconnected  = errors.New("session: disconnected")
	ErrTimeout       = errors.New("session: call timed out")
)

// State is the session lifecycle state machine: Starting -> Running -> Closing -> Closed.
type State int

const (
	StateStarting State = iota
	StateRunning
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Channel is the minimal transport surface a Session needs (component A's contract).
type Channel interface {
	Recv() (string, error)
	Send(text string) error
	Close(code int) error
}

// Handler decodes and services one inbound CALL action, returning the payload for the
// CALLRESULT (or an error, which becomes a CALLERROR). Handlers also own event emission
// onto the bus (component D) — the session itself is protocol-version agnostic.
type Handler interface {
	HandleCall(ctx context.Context, action string, payload json.RawMessage) (json.RawMessage, error)
}

// Settings is the per-station configuration carried on the session (SPEC_FULL.md §3).
type Settings struct {
	Alias       *string
	Enabled     bool
	OCPPVersion string // "1.6" or "2.0.1"
}

type pendingCall struct {
	resultCh chan callResult
}

type callResult struct {
	payload json.RawMessage
	err     error
}

// Session is a live OCPP session with one charging station.
type Session struct {
	id      string
	channel Channel
	handler Handler
	logger  *slog.Logger

	mu       sync.Mutex
	state    State
	settings Settings
	pending  map[string]*pendingCall
}

// New constructs a Session in the Starting state. Call Listen to enter Running and begin
// the inbound pump; it blocks until the channel closes.
func New(id string, channel Channel, handler Handler, settings Settings, logger *slog.Logger) *Session {
	return &Session{
		id:       id,
		channel:  channel,
		handler:  handler,
		settings: settings,
		logger:   logger,
		pending:  make(map[string]*pendingCall),
		state:    StateStarting,
	}
}

// ID returns the station identity this session belongs to.
func (s *Session) ID() string { return s.id }

// Handler returns the session's handler, for callers (the configuration aggregator)
// that need to type-assert down to a version-specific handler's extra surface (e.g.
// ocpp201's NotifyReportBuffer accessors).
func (s *Session) Handler() Handler { return s.handler }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Running reports whether the session's inbound pump is actively reading.
func (s *Session) Running() bool {
	return s.State() == StateRunning
}

// Settings returns a snapshot of the session's current settings.
func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// UpdateSettings mutates the session's settings under lock.
func (s *Session) UpdateSettings(fn func(*Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.settings)
}

// InjectAlias sets the session's alias in isolation, leaving other settings fields
// untouched. Used by the registry to restore a cached alias on Register.
func (s *Session) InjectAlias(alias string) {
	s.UpdateSettings(func(st *Settings) { st.Alias = &alias })
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Listen runs the inbound pump until the channel's Recv fails or ctx is found canceled.
// ctx is checked only after each routed frame, so canceling it does not interrupt a
// blocked Recv. It always returns with the session in the Closed state (SPEC_FULL.md §4.C).
func (s *Session) Listen(ctx context.Context) {
	s.setState(StateRunning)
	s.logger.Info("session started", "id", s.id)

	for {
		raw, err := s.channel.Recv()
		if err != nil {
			s.logger.Info("session inbound pump exiting", "id", s.id, "error", err)
			break
		}
		s.routeMessage(ctx, raw)

		select {
		case <-ctx.Done():
			goto closed
		default:
		}
	}

closed:
	s.setState(StateClosing)
	s.drainPending()
	_ = s.channel.Close(0)
	s.setState(StateClosed)
	s.logger.Info("session closed", "id", s.id)
}

// Close forces the session closed (duplicate-id eviction or explicit shutdown). It closes
// the channel, which unblocks the inbound pump's Recv and lets Listen finish the
// Closing -> Closed transition and pending-call drain itself.
func (s *Session) Close() {
	_ = s.channel.Close(0)
}

func (s *Session) routeMessage(ctx context.Context, raw string) {
	frame, err := ocppwire.Decode(raw)
	if err != nil {
		s.logger.Warn("session dropped unparseable frame", "id", s.id, "error", err)
		return
	}

	switch {
	case frame.Call != nil:
		s.handleInboundCall(ctx, frame.Call)
	case frame.CallResult != nil:
		s.resolvePending(frame.CallResult.ID, frame.CallResult.Payload, nil)
	case frame.CallError != nil:
		s.resolvePending(frame.CallError.ID, nil,
			fmt.Errorf("callerror %s: %s", frame.CallError.Code, frame.CallError.Description))
	}
}

func (s *Session) handleInboundCall(ctx context.Context, call *ocppwire.Call) {
	start := time.Now()
	resp, err := s.handler.HandleCall(ctx, call.Action, call.Payload)

	var frame string
	var encErr error
	if err != nil {
		s.logger.Warn("ocpp inbound call handler error", "id", s.id, "action", call.Action, "error", err)
		frame, encErr = ocppwire.EncodeCallError(call.ID, "InternalError", err.Error(), nil)
	} else {
		s.logger.Info("ocpp inbound call", "id", s.id, "action", call.Action, "call_id", call.ID, "elapsed", time.Since(start))
		frame, encErr = ocppwire.EncodeCallResult(call.ID, resp)
	}
	if encErr != nil {
		s.logger.Error("ocpp response encode failed", "id", s.id, "action", call.Action, "error", encErr)
		return
	}
	if sendErr := s.channel.Send(frame); sendErr != nil {
		s.logger.Warn("ocpp response send failed", "id", s.id, "action", call.Action, "error", sendErr)
	}
}

// SendCall issues an outbound CALL and awaits the matching CALLRESULT/CALLERROR, strictly
// correlated by call id (not arrival order). If ctx carries no deadline, DefaultCallTimeout
// is applied. Returns ErrSessionClosed, ErrTimeout, or ErrDisconnected per SPEC_FULL.md §4.C.
func (s *Session) SendCall(ctx context.Context, action string, payload any) (json.RawMessage, error) {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	id := uuid.NewString()
	resultCh := make(chan callResult, 1)
	s.pending[id] = &pendingCall{resultCh: resultCh}
	s.mu.Unlock()

	frame, err := ocppwire.EncodeCall(id, action, payload)
	if err != nil {
		s.removePending(id)
		return nil, fmt.Errorf("session: encode call: %w", err)
	}

	if err := s.channel.Send(frame); err != nil {
		s.removePending(id)
		return nil, ErrDisconnected
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultCallTimeout)
		defer cancel()
	}

	start := time.Now()
	s.logger.Info("ocpp outbound call", "id", s.id, "action", action, "call_id", id)

	select {
	case res := <-resultCh:
		s.logger.Info("ocpp outbound call result", "id", s.id, "action", action, "call_id", id,
			"elapsed", time.Since(start), "error", res.err)
		return res.payload, res.err

	case <-ctx.Done():
		s.removePending(id)
		s.logger.Warn("ocpp outbound call timed out", "id", s.id, "action", action, "call_id", id)
		return nil, ErrTimeout
	}
}

func (s *Session) resolvePending(id string, payload json.RawMessage, err error) {
	s.mu.Lock()
	pc, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()

	if !ok {
		s.logger.Warn("session received response for unknown call id", "id", s.id, "call_id", id)
		return
	}
	pc.resultCh <- callResult{payload: payload, err: err}
}

func (s *Session) removePending(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *Session) drainPending() {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[string]*pendingCall)
	s.mu.Unlock()

	for _, pc := range pending {
		pc.resultCh <- callResult{err: ErrDisconnected}
	}
}
