package devices

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvelo/openvelo/internal/common"
	"github.com/openvelo/openvelo/internal/server/models"
)

func TestInMemoryCreateAndGet(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	device := &models.Device{ID: "bike-1", PublicKey: []byte("key-1"), CreatedAt: time.Now()}
	require.NoError(t, repo.Create(ctx, device))

	byID, err := repo.GetByID(ctx, "bike-1")
	require.NoError(t, err)
	assert.Equal(t, device.ID, byID.ID)
	assert.Equal(t, []byte(device.PublicKey), []byte(byID.PublicKey))

	byKey, err := repo.GetByPublicKey(ctx, []byte("key-1"))
	require.NoError(t, err)
	assert.Equal(t, "bike-1", byKey.ID)
}

func TestInMemoryCreateDuplicateKey(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Device{ID: "bike-1", PublicKey: []byte("key-1")}))

	err := repo.Create(ctx, &models.Device{ID: "bike-2", PublicKey: []byte("key-1")})
	assert.ErrorIs(t, err, common.ErrAlreadyExists)
}

func TestInMemoryGetMissing(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	_, err := repo.GetByID(ctx, "bike-404")
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = repo.GetByPublicKey(ctx, []byte("nope"))
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestInMemoryListOrderedByCreation(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	base := time.Now()
	require.NoError(t, repo.Create(ctx, &models.Device{ID: "bike-2", PublicKey: []byte("k2"), CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, repo.Create(ctx, &models.Device{ID: "bike-1", PublicKey: []byte("k1"), CreatedAt: base}))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "bike-1", list[0].ID)
	assert.Equal(t, "bike-2", list[1].ID)
}

func TestInMemoryReturnsCopies(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &models.Device{ID: "bike-1", PublicKey: []byte("k1")}))

	got, err := repo.GetByID(ctx, "bike-1")
	require.NoError(t, err)
	got.ID = "mutated"

	again, err := repo.GetByID(ctx, "bike-1")
	require.NoError(t, err)
	assert.Equal(t, "bike-1", again.ID)
}
