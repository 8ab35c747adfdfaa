package devices

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/openvelo/openvelo/internal/common"
	"github.com/openvelo/openvelo/internal/server/models"
)

// InMemoryRepository keeps devices in a map. Used when no database DSN is
// configured and in tests.
type InMemoryRepository struct {
	mu      sync.RWMutex
	devices map[string]*models.Device
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{devices: make(map[string]*models.Device)}
}

func (r *InMemoryRepository) Create(ctx context.Context, device *models.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.devices {
		if bytes.Equal(d.PublicKey, device.PublicKey) {
			return common.ErrAlreadyExists
		}
	}
	copied := *device
	r.devices[device.ID] = &copied
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*models.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	copied := *d
	return &copied, nil
}

func (r *InMemoryRepository) GetByPublicKey(ctx context.Context, publicKey []byte) (*models.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.devices {
		if bytes.Equal(d.PublicKey, publicKey) {
			copied := *d
			return &copied, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *InMemoryRepository) List(ctx context.Context) ([]*models.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*models.Device, 0, len(r.devices))
	for _, d := range r.devices {
		copied := *d
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}
