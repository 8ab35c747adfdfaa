// Package projector folds the event log into the current observable state
// of each device. Conflicts from out-of-order delivery are resolved per
// field with last-writer-wins by event timestamp: an event older than one
// already folded in never regresses the projection, though it still lands
// in the log. Incrementally applying events and replaying the full log
// from empty state produce the same projection.
package projector

import (
	"context"
	"sync"
	"time"

	"github.com/openvelo/openvelo/internal/logging"
	"github.com/openvelo/openvelo/internal/server/models"
	"github.com/openvelo/openvelo/internal/server/repositories/events"
)

// Presence answers whether a device currently has a live session. The
// connection registry implements it; tests use fakes. A nil Presence
// reports every device as disconnected.
type Presence interface {
	Connected(deviceID string) bool
}

type deviceState struct {
	locked     bool
	lockedAt   time.Time
	location   *models.Point
	locationAt time.Time
	lastEvent  time.Time
}

type Projector struct {
	presence Presence
	logger   logging.Logger

	mu     sync.RWMutex
	states map[string]*deviceState
}

func New(presence Presence, logger logging.Logger) *Projector {
	return &Projector{
		presence: presence,
		logger:   logger.With("module", "projector"),
		states:   make(map[string]*deviceState),
	}
}

// Apply folds one event into the device's projected state. Safe for
// concurrent use from independent session workers.
func (p *Projector) Apply(event *models.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.states[event.DeviceID]
	if !ok {
		st = &deviceState{}
		p.states[event.DeviceID] = st
	}

	switch event.Kind {
	case models.EventLockStateUpdate:
		if event.Locked != nil && !event.At.Before(st.lockedAt) {
			st.locked = *event.Locked
			st.lockedAt = event.At
		}
	case models.EventLocationUpdate:
		if event.Location != nil && !event.At.Before(st.locationAt) {
			loc := *event.Location
			st.location = &loc
			st.locationAt = event.At
		}
	}

	if event.At.After(st.lastEvent) {
		st.lastEvent = event.At
	}
}

// CurrentState returns the projection for a device. A device with no
// folded events yields the zero state: unlocked, no location, and a
// connected flag taken from the registry.
func (p *Projector) CurrentState(deviceID string) models.ProjectedState {
	p.mu.RLock()
	st, ok := p.states[deviceID]
	var out models.ProjectedState
	if ok {
		out.Locked = st.locked
		out.LastEventAt = st.lastEvent
		if st.location != nil {
			loc := *st.location
			out.Location = &loc
		}
	}
	p.mu.RUnlock()

	if p.presence != nil {
		out.Connected = p.presence.Connected(deviceID)
	}
	return out
}

// Rebuild discards all projections and folds the entire event log from
// empty state. Called once at startup so reads are warm before the first
// device reconnects.
func (p *Projector) Rebuild(ctx context.Context, repo events.Repository) error {
	log, err := repo.All(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.states = make(map[string]*deviceState)
	p.mu.Unlock()

	for _, event := range log {
		p.Apply(event)
	}

	p.logger.Info(ctx, "projection rebuilt", "events", len(log))
	return nil
}
