// Package session is the per-device protocol engine. A Session wraps one
// authenticated duplex channel and speaks the call/notification protocol
// over it: server-initiated calls are correlated to responses by id and
// bounded by a timeout, device notifications are dispatched to a Handler
// in arrival order.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/openvelo/openvelo/internal/common"
	"github.com/openvelo/openvelo/internal/logging"
)

// Conn is the transport beneath a session. Implemented by the websocket
// adapter in production and by in-process fakes in tests.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

type State int

const (
	// StateAuthenticating: signature verified, waiting for the mandatory
	// current-status message.
	StateAuthenticating State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Handler receives the device notifications carried by a session. All
// methods are invoked from the session's read loop, one at a time. An
// error return terminates the session.
type Handler interface {
	HandleCurrentStatus(ctx context.Context, deviceID string, st CurrentStatus) error
	HandleLocationUpdate(ctx context.Context, deviceID string, u LocationUpdate) error
	HandleLockStateUpdate(ctx context.Context, deviceID string, u LockStateUpdate) error
}

type callResult struct {
	result json.RawMessage
	err    error
}

type Session struct {
	deviceID      string
	conn          Conn
	establishedAt time.Time
	callTimeout   time.Duration
	logger        logging.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	state   State
	nextID  uint64
	pending map[uint64]chan callResult
}

func New(deviceID string, conn Conn, callTimeout time.Duration, logger logging.Logger) *Session {
	return &Session{
		deviceID:      deviceID,
		conn:          conn,
		establishedAt: time.Now(),
		callTimeout:   callTimeout,
		logger:        logger.With("module", "session", "device_id", deviceID),
		state:         StateAuthenticating,
		pending:       make(map[uint64]chan callResult),
	}
}

func (s *Session) DeviceID() string { return s.deviceID }

func (s *Session) EstablishedAt() time.Time { return s.establishedAt }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Call sends a call to the device and blocks until the matching response
// arrives, the per-call timeout elapses (common.ErrCallTimeout), or ctx is
// cancelled. A response with an error member surfaces as
// common.ErrCommandFailed.
func (s *Session) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return nil, common.ErrNotConnected
	}
	s.nextID++
	id := s.nextID
	ch := make(chan callResult, 1)
	s.pending[id] = ch
	s.mu.Unlock()

	data, err := marshalCall(id, method, params)
	if err != nil {
		s.discard(id)
		return nil, err
	}
	if err := s.write(data); err != nil {
		s.discard(id)
		return nil, fmt.Errorf("%w: %v", common.ErrNotConnected, err)
	}

	timer := time.NewTimer(s.callTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		return res.result, nil
	case <-timer.C:
		// the correlation id is dropped here, so a late response is
		// discarded instead of waking a vanished caller
		s.discard(id)
		return nil, common.ErrCallTimeout
	case <-ctx.Done():
		s.discard(id)
		return nil, ctx.Err()
	}
}

// Close transitions the session to Closed, fails all outstanding calls
// with ErrNotConnected and closes the transport. Safe to call repeatedly.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	for id, ch := range s.pending {
		ch <- callResult{err: common.ErrNotConnected}
		delete(s.pending, id)
	}
	s.mu.Unlock()

	return s.conn.Close()
}

// Run drives the read loop until the transport closes, a protocol
// violation occurs, or the handler rejects a message. The first message
// must be current-status; until it arrives nothing else is accepted. The
// session is always Closed by the time Run returns.
func (s *Session) Run(ctx context.Context, h Handler) error {
	for {
		data, err := s.conn.ReadMessage()
		if err != nil {
			if s.State() == StateClosed {
				return nil
			}
			_ = s.Close()
			return err
		}

		if err := s.dispatch(ctx, h, data); err != nil {
			_ = s.Close()
			return err
		}
	}
}

func (s *Session) dispatch(ctx context.Context, h Handler, data []byte) error {
	if s.State() == StateAuthenticating {
		return s.handleFirst(ctx, h, data)
	}

	msg, err := parseMessage(data)
	if err != nil {
		return err
	}

	switch {
	case msg.IsResponse():
		s.resolve(msg)
		return nil
	case msg.IsNotification():
		return s.handleNotification(ctx, h, msg)
	default:
		// the server exposes no callable methods to devices
		resp, err := marshalErrorResponse(*msg.ID, codeMethodNotFound, "method not found")
		if err != nil {
			return err
		}
		return s.write(resp)
	}
}

// handleFirst enforces the mandatory current-status message. Older
// firmware sends the status as a bare {"locked": ...} object, which is
// accepted as equivalent.
func (s *Session) handleFirst(ctx context.Context, h Handler, data []byte) error {
	msg, err := parseMessage(data)
	if err != nil {
		if st, ok := parseBareStatus(data); ok {
			return s.acceptStatus(ctx, h, st)
		}
		return err
	}

	if !msg.IsNotification() || msg.Method != MethodCurrentStatus {
		return fmt.Errorf("%w: expected %s before any other traffic", common.ErrProtocolViolation, MethodCurrentStatus)
	}

	var st CurrentStatus
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &st); err != nil {
			return fmt.Errorf("%w: bad %s params: %v", common.ErrProtocolViolation, MethodCurrentStatus, err)
		}
	}
	return s.acceptStatus(ctx, h, st)
}

func (s *Session) acceptStatus(ctx context.Context, h Handler, st CurrentStatus) error {
	if err := h.HandleCurrentStatus(ctx, s.deviceID, st); err != nil {
		return err
	}

	s.mu.Lock()
	if s.state == StateAuthenticating {
		s.state = StateActive
	}
	s.mu.Unlock()

	s.logger.Info(ctx, "session active", "locked", st.Locked)
	return nil
}

func (s *Session) handleNotification(ctx context.Context, h Handler, msg *Message) error {
	switch msg.Method {
	case MethodCurrentStatus:
		// devices may re-send their status at any time to re-sync
		var st CurrentStatus
		if len(msg.Params) > 0 {
			if err := json.Unmarshal(msg.Params, &st); err != nil {
				return fmt.Errorf("%w: bad %s params: %v", common.ErrProtocolViolation, msg.Method, err)
			}
		}
		return h.HandleCurrentStatus(ctx, s.deviceID, st)
	case MethodLocationUpdate:
		var u LocationUpdate
		if err := json.Unmarshal(msg.Params, &u); err != nil {
			return fmt.Errorf("%w: bad %s params: %v", common.ErrProtocolViolation, msg.Method, err)
		}
		return h.HandleLocationUpdate(ctx, s.deviceID, u)
	case MethodLockStateUpdate:
		var u LockStateUpdate
		if err := json.Unmarshal(msg.Params, &u); err != nil {
			return fmt.Errorf("%w: bad %s params: %v", common.ErrProtocolViolation, msg.Method, err)
		}
		return h.HandleLockStateUpdate(ctx, s.deviceID, u)
	default:
		s.logger.Debug(ctx, "ignoring unknown notification", "method", msg.Method)
		return nil
	}
}

func (s *Session) resolve(msg *Message) {
	s.mu.Lock()
	ch, ok := s.pending[*msg.ID]
	if ok {
		delete(s.pending, *msg.ID)
	}
	s.mu.Unlock()

	if !ok {
		// late response to a call that already timed out
		s.logger.Debug(context.Background(), "discarding stale response", "id", *msg.ID)
		return
	}

	if msg.Error != nil {
		ch <- callResult{err: fmt.Errorf("%w: %s", common.ErrCommandFailed, msg.Error.Message)}
		return
	}
	ch <- callResult{result: msg.Result}
}

func (s *Session) discard(id uint64) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *Session) write(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(data)
}

func parseBareStatus(data []byte) (CurrentStatus, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return CurrentStatus{}, false
	}
	if _, ok := fields["locked"]; !ok {
		return CurrentStatus{}, false
	}
	var st CurrentStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return CurrentStatus{}, false
	}
	return st, true
}
