// Package events is the append-only event log. Append is the only write
// path; events are never mutated or deleted, so projections can always be
// rebuilt by replaying the log.
package events

import (
	"context"

	"github.com/openvelo/openvelo/internal/server/models"
)

type Repository interface {
	// Append persists one event. Durability failures are wrapped in
	// common.ErrPersistence.
	Append(ctx context.Context, event *models.Event) error

	// ByDevice returns the full history for one device in timestamp order.
	ByDevice(ctx context.Context, deviceID string) ([]*models.Event, error)

	// All returns every stored event in timestamp order. Used to rebuild
	// projections at startup.
	All(ctx context.Context) ([]*models.Event, error)
}
