package events

import (
	"context"
	"sort"
	"sync"

	"github.com/openvelo/openvelo/internal/server/models"
)

// InMemoryRepository keeps the event log in a slice. Appends preserve
// arrival order; reads return copies sorted by timestamp.
type InMemoryRepository struct {
	mu     sync.RWMutex
	nextID int64
	events []*models.Event
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

func (r *InMemoryRepository) Append(ctx context.Context, event *models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	copied := *event
	copied.ID = r.nextID
	r.events = append(r.events, &copied)
	return nil
}

func (r *InMemoryRepository) ByDevice(ctx context.Context, deviceID string) ([]*models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*models.Event
	for _, e := range r.events {
		if e.DeviceID == deviceID {
			copied := *e
			result = append(result, &copied)
		}
	}
	sortByTime(result)
	return result, nil
}

func (r *InMemoryRepository) All(ctx context.Context) ([]*models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*models.Event, 0, len(r.events))
	for _, e := range r.events {
		copied := *e
		result = append(result, &copied)
	}
	sortByTime(result)
	return result, nil
}

func sortByTime(events []*models.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].At.Equal(events[j].At) {
			return events[i].ID < events[j].ID
		}
		return events[i].At.Before(events[j].At)
	})
}
