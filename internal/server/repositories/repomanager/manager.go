// Package repomanager wires the concrete repository set behind a single
// construction point, so the application can switch between Postgres and
// in-memory storage from configuration alone.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/openvelo/openvelo/internal/server/repositories/devices"
	"github.com/openvelo/openvelo/internal/server/repositories/events"
)

type RepositoryManager interface {
	Conn() *sql.DB
	Devices() devices.Repository
	Events() events.Repository
	RunMigrations(ctx context.Context) error
	Close() error
}
