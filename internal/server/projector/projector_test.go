package projector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvelo/openvelo/internal/logging"
	"github.com/openvelo/openvelo/internal/server/models"
	"github.com/openvelo/openvelo/internal/server/repositories/events"
)

type fakePresence map[string]bool

func (p fakePresence) Connected(deviceID string) bool { return p[deviceID] }

func testLogger() logging.Logger {
	return logging.Discard()
}

func at(sec int) time.Time {
	return time.Date(2026, 3, 1, 12, 0, sec, 0, time.UTC)
}

func TestProjectorEmptyState(t *testing.T) {
	p := New(fakePresence{"bike-1": true}, testLogger())

	st := p.CurrentState("bike-1")
	assert.False(t, st.Locked)
	assert.Nil(t, st.Location)
	assert.True(t, st.Connected)
	assert.True(t, st.LastEventAt.IsZero())

	st = p.CurrentState("bike-2")
	assert.False(t, st.Connected)
}

func TestProjectorFoldsEvents(t *testing.T) {
	p := New(nil, testLogger())

	p.Apply(models.NewLockStateUpdate("bike-1", true, at(1)))
	p.Apply(models.NewLocationUpdate("bike-1", models.Point{Lat: 57.15, Lng: -2.1}, at(2)))

	st := p.CurrentState("bike-1")
	assert.True(t, st.Locked)
	require.NotNil(t, st.Location)
	assert.InDelta(t, 57.15, st.Location.Lat, 1e-9)
	assert.Equal(t, at(2), st.LastEventAt)
	assert.False(t, st.Connected)
}

func TestProjectorOutOfOrderLastWriterWins(t *testing.T) {
	p := New(nil, testLogger())

	p.Apply(models.NewLockStateUpdate("bike-1", false, at(10)))
	// an older event arriving late must not regress the projection
	p.Apply(models.NewLockStateUpdate("bike-1", true, at(5)))

	st := p.CurrentState("bike-1")
	assert.False(t, st.Locked)
	assert.Equal(t, at(10), st.LastEventAt)
}

func TestProjectorFieldsResolveIndependently(t *testing.T) {
	p := New(nil, testLogger())

	p.Apply(models.NewLocationUpdate("bike-1", models.Point{Lat: 1, Lng: 1}, at(20)))
	p.Apply(models.NewLockStateUpdate("bike-1", true, at(5)))
	// stale location, fresh lock state
	p.Apply(models.NewLocationUpdate("bike-1", models.Point{Lat: 2, Lng: 2}, at(15)))
	p.Apply(models.NewLockStateUpdate("bike-1", false, at(25)))

	st := p.CurrentState("bike-1")
	assert.False(t, st.Locked)
	require.NotNil(t, st.Location)
	assert.InDelta(t, 1.0, st.Location.Lat, 1e-9)
	assert.Equal(t, at(25), st.LastEventAt)
}

func TestProjectorEqualTimestampsLastApplyWins(t *testing.T) {
	p := New(nil, testLogger())

	p.Apply(models.NewLockStateUpdate("bike-1", true, at(7)))
	p.Apply(models.NewLockStateUpdate("bike-1", false, at(7)))

	assert.False(t, p.CurrentState("bike-1").Locked)
}

func TestProjectorDevicesAreIndependent(t *testing.T) {
	p := New(nil, testLogger())

	p.Apply(models.NewLockStateUpdate("bike-1", true, at(1)))
	p.Apply(models.NewLockStateUpdate("bike-2", false, at(2)))

	assert.True(t, p.CurrentState("bike-1").Locked)
	assert.False(t, p.CurrentState("bike-2").Locked)
}

func TestProjectorRebuildMatchesIncremental(t *testing.T) {
	repo := events.NewInMemoryRepository()
	ctx := context.Background()

	log := []*models.Event{
		models.NewLockStateUpdate("bike-1", true, at(1)),
		models.NewLocationUpdate("bike-1", models.Point{Lat: 57.1, Lng: -2.1}, at(2)),
		models.NewLockStateUpdate("bike-1", false, at(8)),
		models.NewLockStateUpdate("bike-1", true, at(4)), // delivered late
		models.NewLocationUpdate("bike-2", models.Point{Lat: 48.8, Lng: 2.35}, at(3)),
	}

	incremental := New(nil, testLogger())
	for _, e := range log {
		require.NoError(t, repo.Append(ctx, e))
		incremental.Apply(e)
	}

	replayed := New(nil, testLogger())
	require.NoError(t, replayed.Rebuild(ctx, repo))

	for _, id := range []string{"bike-1", "bike-2"} {
		assert.Equal(t, incremental.CurrentState(id), replayed.CurrentState(id), "device %s", id)
	}
	assert.False(t, replayed.CurrentState("bike-1").Locked)
}

func TestProjectorRebuildResetsPriorState(t *testing.T) {
	repo := events.NewInMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.Append(ctx, models.NewLockStateUpdate("bike-1", false, at(2))))

	p := New(nil, testLogger())
	p.Apply(models.NewLockStateUpdate("bike-9", true, at(1)))

	require.NoError(t, p.Rebuild(ctx, repo))

	assert.False(t, p.CurrentState("bike-1").Locked)
	assert.Equal(t, at(2), p.CurrentState("bike-1").LastEventAt)
	// bike-9 never hit the log, so the rebuild forgets it
	assert.True(t, p.CurrentState("bike-9").LastEventAt.IsZero())
}
