package repomanager

import (
	"context"
	"database/sql"

	"github.com/openvelo/openvelo/internal/server/repositories/devices"
	"github.com/openvelo/openvelo/internal/server/repositories/events"
)

type InMemoryRepositoryManager struct {
	devices devices.Repository
	events  events.Repository
}

func NewInMemoryRepositoryManager() RepositoryManager {
	return &InMemoryRepositoryManager{
		devices: devices.NewInMemoryRepository(),
		events:  events.NewInMemoryRepository(),
	}
}

func (m *InMemoryRepositoryManager) Conn() *sql.DB {
	return nil
}

func (m *InMemoryRepositoryManager) Devices() devices.Repository {
	return m.devices
}

func (m *InMemoryRepositoryManager) Events() events.Repository {
	return m.events
}

func (m *InMemoryRepositoryManager) RunMigrations(ctx context.Context) error {
	return nil
}

func (m *InMemoryRepositoryManager) Close() error {
	return nil
}
