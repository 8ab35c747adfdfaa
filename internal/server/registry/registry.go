// Package registry is the single source of truth for which devices are
// currently reachable. It owns the live sessions, enforces one session
// per device, and routes outbound calls.
package registry

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/openvelo/openvelo/internal/common"
	"github.com/openvelo/openvelo/internal/logging"
	"github.com/openvelo/openvelo/internal/server/metrics"
	"github.com/openvelo/openvelo/internal/server/session"
)

type Registry struct {
	logger  logging.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]*session.Session
}

func New(logger logging.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		logger:   logger.With("module", "registry"),
		metrics:  m,
		sessions: make(map[string]*session.Session),
	}
}

// Register admits a session. If the device already has one, the prior
// session is forcibly closed and replaced: the newest connection wins, and
// at no point are two sessions observable for one device.
func (r *Registry) Register(s *session.Session) {
	r.mu.Lock()
	prev, existed := r.sessions[s.DeviceID()]
	r.sessions[s.DeviceID()] = s
	r.mu.Unlock()

	if existed {
		r.logger.Info(context.Background(), "replacing existing session", "device_id", s.DeviceID())
		_ = prev.Close()
	} else if r.metrics != nil {
		r.metrics.ConnectedDevices.Inc()
	}
}

// Unregister removes the session if it is still the registered one.
// Idempotent: a second call, or a call racing a replacement, is a no-op.
func (r *Registry) Unregister(s *session.Session) {
	r.mu.Lock()
	current, ok := r.sessions[s.DeviceID()]
	if ok && current == s {
		delete(r.sessions, s.DeviceID())
	} else {
		ok = false
	}
	r.mu.Unlock()

	if ok {
		_ = s.Close()
		if r.metrics != nil {
			r.metrics.ConnectedDevices.Dec()
		}
		r.logger.Info(context.Background(), "session unregistered", "device_id", s.DeviceID())
	}
}

// Lookup returns the live session for a device, if any.
func (r *Registry) Lookup(deviceID string) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[deviceID]
	return s, ok
}

// Connected reports whether the device has a live session.
func (r *Registry) Connected(deviceID string) bool {
	_, ok := r.Lookup(deviceID)
	return ok
}

// Send routes a call to the device. Returns common.ErrNotConnected when no
// session is registered; this is the documented commands-fail-offline
// behavior, a typed result rather than a fault.
func (r *Registry) Send(ctx context.Context, deviceID string, method string, params any) (json.RawMessage, error) {
	s, ok := r.Lookup(deviceID)
	if !ok {
		return nil, common.ErrNotConnected
	}
	return s.Call(ctx, method, params)
}

// CloseAll tears down every live session. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	open := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		open = append(open, s)
	}
	r.mu.Unlock()

	if len(open) > 0 {
		r.logger.Info(context.Background(), "closing all open device sessions", "count", len(open))
	}
	for _, s := range open {
		r.Unregister(s)
	}
}
