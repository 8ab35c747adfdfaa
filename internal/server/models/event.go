package models

import "time"

// EventKind discriminates the two device update events.
type EventKind string

const (
	EventLocationUpdate  EventKind = "location_update"
	EventLockStateUpdate EventKind = "lock_state_update"
)

// Event is one immutable entry in the append-only device history.
// Exactly one of Location or Locked is set, depending on Kind.
// Events are never mutated or deleted; the projector derives the current
// device state by folding them in timestamp order.
type Event struct {
	ID       int64
	DeviceID string
	Kind     EventKind
	At       time.Time
	Location *Point
	Locked   *bool
}

// NewLocationUpdate builds a location event for a device.
func NewLocationUpdate(deviceID string, p Point, at time.Time) *Event {
	return &Event{DeviceID: deviceID, Kind: EventLocationUpdate, At: at, Location: &p}
}

// NewLockStateUpdate builds a lock-state event for a device.
func NewLockStateUpdate(deviceID string, locked bool, at time.Time) *Event {
	return &Event{DeviceID: deviceID, Kind: EventLockStateUpdate, At: at, Locked: &locked}
}
