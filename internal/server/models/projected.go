package models

import "time"

// ProjectedState is the derived, non-authoritative view of a device,
// recomputed from the event log. It never reflects an event older (by
// timestamp) than one already folded in for the same field.
type ProjectedState struct {
	Locked      bool
	Location    *Point
	Connected   bool
	LastEventAt time.Time
}
