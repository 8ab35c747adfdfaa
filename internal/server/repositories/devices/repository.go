// Package devices stores registered device identities and their Ed25519
// public keys. The rest of the core only reads from it.
package devices

import (
	"context"

	"github.com/openvelo/openvelo/internal/server/models"
)

type Repository interface {
	// Create persists a new device. Returns common.ErrAlreadyExists when
	// the public key is already registered.
	Create(ctx context.Context, device *models.Device) error

	// GetByID returns the device or common.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.Device, error)

	// GetByPublicKey returns the device owning the key or common.ErrNotFound.
	GetByPublicKey(ctx context.Context, publicKey []byte) (*models.Device, error)

	// List returns all registered devices.
	List(ctx context.Context) ([]*models.Device, error)
}
