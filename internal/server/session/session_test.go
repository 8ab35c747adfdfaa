package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvelo/openvelo/internal/common"
	"github.com/openvelo/openvelo/internal/logging"
)

// fakeConn is an in-process transport. in carries device-to-server
// messages, out carries server-to-device messages.
type fakeConn struct {
	in        chan []byte
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	select {
	case c.out <- data:
		return nil
	case <-c.closed:
		return errors.New("connection closed")
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

type recordingHandler struct {
	mu        sync.Mutex
	statuses  []CurrentStatus
	locations []LocationUpdate
	locks     []LockStateUpdate
	err       error
}

func (h *recordingHandler) HandleCurrentStatus(_ context.Context, _ string, st CurrentStatus) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses = append(h.statuses, st)
	return h.err
}

func (h *recordingHandler) HandleLocationUpdate(_ context.Context, _ string, u LocationUpdate) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.locations = append(h.locations, u)
	return h.err
}

func (h *recordingHandler) HandleLockStateUpdate(_ context.Context, _ string, u LockStateUpdate) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.locks = append(h.locks, u)
	return h.err
}

func (h *recordingHandler) snapshot() (int, int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.statuses), len(h.locations), len(h.locks)
}

func newTestSession(timeout time.Duration) (*Session, *fakeConn) {
	conn := newFakeConn()
	return New("bike-1", conn, timeout, logging.Discard()), conn
}

func waitState(t *testing.T, sess *Session, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return sess.State() == want }, time.Second, 5*time.Millisecond)
}

// start runs the session and feeds the opening current-status so it
// reaches the active state.
func start(t *testing.T, sess *Session, conn *fakeConn, h Handler) chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- sess.Run(context.Background(), h) }()
	conn.in <- []byte(`{"jsonrpc":"2.0","method":"current-status","params":{"locked":true}}`)
	waitState(t, sess, StateActive)
	return done
}

// answer plays the device side for one call: reads it from the wire and
// replies with the given result.
func answer(conn *fakeConn, result string) {
	go func() {
		data := <-conn.out
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.ID == nil {
			return
		}
		resp, _ := json.Marshal(Message{JSONRPC: Version, ID: msg.ID, Result: json.RawMessage(result)})
		conn.in <- resp
	}()
}

func TestSessionFirstMessageMustBeCurrentStatus(t *testing.T) {
	sess, conn := newTestSession(time.Second)
	done := make(chan error, 1)
	go func() { done <- sess.Run(context.Background(), &recordingHandler{}) }()

	conn.in <- []byte(`{"jsonrpc":"2.0","method":"locationUpdate","params":{"lat":1,"lng":2}}`)

	err := <-done
	assert.ErrorIs(t, err, common.ErrProtocolViolation)
	assert.Equal(t, StateClosed, sess.State())
}

func TestSessionAcceptsEnvelopeStatus(t *testing.T) {
	sess, conn := newTestSession(time.Second)
	h := &recordingHandler{}
	start(t, sess, conn, h)

	statuses, _, _ := h.snapshot()
	require.Equal(t, 1, statuses)
	assert.True(t, h.statuses[0].Locked)

	require.NoError(t, sess.Close())
}

func TestSessionAcceptsBareStatus(t *testing.T) {
	sess, conn := newTestSession(time.Second)
	h := &recordingHandler{}
	done := make(chan error, 1)
	go func() { done <- sess.Run(context.Background(), h) }()

	conn.in <- []byte(`{"locked": false, "lat": 57.15, "lng": -2.1}`)
	waitState(t, sess, StateActive)

	require.Len(t, h.statuses, 1)
	assert.False(t, h.statuses[0].Locked)
	require.NotNil(t, h.statuses[0].Lat)
	assert.InDelta(t, 57.15, *h.statuses[0].Lat, 1e-9)

	require.NoError(t, sess.Close())
	assert.NoError(t, <-done)
}

func TestSessionDispatchesNotifications(t *testing.T) {
	sess, conn := newTestSession(time.Second)
	h := &recordingHandler{}
	start(t, sess, conn, h)

	conn.in <- []byte(`{"jsonrpc":"2.0","method":"locationUpdate","params":{"lat":57.2,"lng":-2.1,"time":1700000000000}}`)
	conn.in <- []byte(`{"jsonrpc":"2.0","method":"lockStateUpdate","params":{"locked":false}}`)
	conn.in <- []byte(`{"jsonrpc":"2.0","method":"current-status","params":{"locked":false}}`)

	require.Eventually(t, func() bool {
		s, l, k := h.snapshot()
		return s == 2 && l == 1 && k == 1
	}, time.Second, 5*time.Millisecond)

	assert.InDelta(t, 57.2, h.locations[0].Lat, 1e-9)
	assert.Equal(t, int64(1700000000000), h.locations[0].Time)
	assert.False(t, h.locks[0].Locked)

	require.NoError(t, sess.Close())
}

func TestSessionIgnoresUnknownNotification(t *testing.T) {
	sess, conn := newTestSession(time.Second)
	h := &recordingHandler{}
	done := start(t, sess, conn, h)

	conn.in <- []byte(`{"jsonrpc":"2.0","method":"batteryUpdate","params":{"percent":80}}`)
	conn.in <- []byte(`{"jsonrpc":"2.0","method":"lockStateUpdate","params":{"locked":true}}`)

	require.Eventually(t, func() bool {
		_, _, k := h.snapshot()
		return k == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, sess.Close())
	assert.NoError(t, <-done)
}

func TestSessionCallCorrelation(t *testing.T) {
	sess, conn := newTestSession(time.Second)
	start(t, sess, conn, &recordingHandler{})
	defer sess.Close()

	answer(conn, `{"locked": false}`)

	result, err := sess.Call(context.Background(), MethodUnlock, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"locked": false}`, string(result))
}

func TestSessionCallErrorResponse(t *testing.T) {
	sess, conn := newTestSession(time.Second)
	start(t, sess, conn, &recordingHandler{})
	defer sess.Close()

	go func() {
		data := <-conn.out
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		resp, _ := json.Marshal(Message{
			JSONRPC: Version,
			ID:      msg.ID,
			Error:   &ErrorObject{Code: 1, Message: "lock jammed"},
		})
		conn.in <- resp
	}()

	_, err := sess.Call(context.Background(), MethodLock, nil)
	assert.ErrorIs(t, err, common.ErrCommandFailed)
	assert.Contains(t, err.Error(), "lock jammed")
}

func TestSessionCallTimeoutLeavesSessionUsable(t *testing.T) {
	sess, conn := newTestSession(50 * time.Millisecond)
	start(t, sess, conn, &recordingHandler{})
	defer sess.Close()

	// device stays silent, first call times out
	_, err := sess.Call(context.Background(), MethodLock, nil)
	require.ErrorIs(t, err, common.ErrCallTimeout)

	// the late response to the timed-out call must be discarded
	stale := <-conn.out
	var msg Message
	require.NoError(t, json.Unmarshal(stale, &msg))
	late, _ := json.Marshal(Message{JSONRPC: Version, ID: msg.ID, Result: json.RawMessage(`{"locked":true}`)})
	conn.in <- late

	assert.Equal(t, StateActive, sess.State())

	answer(conn, `{"locked": true}`)
	result, err := sess.Call(context.Background(), MethodLock, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"locked": true}`, string(result))
}

func TestSessionCallBeforeActive(t *testing.T) {
	sess, _ := newTestSession(time.Second)
	_, err := sess.Call(context.Background(), MethodLock, nil)
	assert.ErrorIs(t, err, common.ErrNotConnected)
}

func TestSessionCloseFailsPendingCalls(t *testing.T) {
	sess, conn := newTestSession(5 * time.Second)
	done := start(t, sess, conn, &recordingHandler{})

	callErr := make(chan error, 1)
	go func() {
		_, err := sess.Call(context.Background(), MethodUnlock, nil)
		callErr <- err
	}()

	// wait until the call is on the wire, then tear the session down
	<-conn.out
	require.NoError(t, sess.Close())

	assert.ErrorIs(t, <-callErr, common.ErrNotConnected)
	assert.NoError(t, <-done)
	assert.Equal(t, StateClosed, sess.State())

	// closing again is a no-op
	assert.NoError(t, sess.Close())
}

func TestSessionRejectsDeviceInitiatedCalls(t *testing.T) {
	sess, conn := newTestSession(time.Second)
	done := start(t, sess, conn, &recordingHandler{})

	conn.in <- []byte(`{"jsonrpc":"2.0","id":7,"method":"rentals.list"}`)

	resp := <-conn.out
	var msg Message
	require.NoError(t, json.Unmarshal(resp, &msg))
	require.NotNil(t, msg.ID)
	assert.Equal(t, uint64(7), *msg.ID)
	require.NotNil(t, msg.Error)
	assert.Equal(t, -32601, msg.Error.Code)

	require.NoError(t, sess.Close())
	assert.NoError(t, <-done)
}

func TestSessionHandlerErrorTerminates(t *testing.T) {
	sess, conn := newTestSession(time.Second)
	h := &recordingHandler{err: errors.New("storage down")}
	done := make(chan error, 1)
	go func() { done <- sess.Run(context.Background(), h) }()

	conn.in <- []byte(`{"jsonrpc":"2.0","method":"current-status","params":{"locked":true}}`)

	err := <-done
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage down")
	assert.Equal(t, StateClosed, sess.State())
}

func TestSessionMalformedMessage(t *testing.T) {
	sess, conn := newTestSession(time.Second)
	done := start(t, sess, conn, &recordingHandler{})

	conn.in <- []byte(`{]`)

	err := <-done
	assert.ErrorIs(t, err, common.ErrProtocolViolation)
}
