package challenge

import (
	"context"
	"sync"

	"github.com/openvelo/openvelo/internal/common"
	"github.com/openvelo/openvelo/internal/server/models"
)

// MemoryStore keeps pending challenges in a mutex-guarded map. A single
// server process only; use the Redis store when the handshake endpoint is
// replicated.
type MemoryStore struct {
	mu      sync.Mutex
	pending map[string]*models.Challenge
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pending: make(map[string]*models.Challenge)}
}

func (s *MemoryStore) Put(ctx context.Context, ch *models.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *ch
	s.pending[ch.DeviceID] = &copied
	return nil
}

func (s *MemoryStore) Consume(ctx context.Context, deviceID string) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.pending[deviceID]
	if !ok {
		return nil, common.ErrChallengeExpiredOrUnknown
	}
	delete(s.pending, deviceID)
	return ch, nil
}
