// Package challenge implements the one-shot authentication handshake:
// a device asks for a random nonce, signs it with its Ed25519 key, and
// presents the signature when opening its socket. A challenge is usable
// for at most one verification attempt, success or failure, which removes
// any replay window.
package challenge

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/openvelo/openvelo/internal/common"
	"github.com/openvelo/openvelo/internal/logging"
	"github.com/openvelo/openvelo/internal/server/models"
	"github.com/openvelo/openvelo/internal/server/repositories/devices"
)

// NonceSize matches the 64-byte challenges the bikes have always signed.
const NonceSize = 64

type Service struct {
	devices devices.Repository
	store   Store
	ttl     time.Duration
	logger  logging.Logger

	// now is swappable in tests.
	now func() time.Time
}

func NewService(devices devices.Repository, store Store, ttl time.Duration, logger logging.Logger) *Service {
	return &Service{
		devices: devices,
		store:   store,
		ttl:     ttl,
		logger:  logger.With("module", "challenge"),
		now:     time.Now,
	}
}

// Issue creates a pending challenge for the device. The presented public
// key must match the registered one; a mismatch is indistinguishable from
// an unknown device on purpose.
func (s *Service) Issue(ctx context.Context, deviceID string, publicKey []byte, remote string) (*models.Challenge, error) {
	device, err := s.devices.GetByID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrUnknownDevice, deviceID)
	}
	if !bytes.Equal(device.PublicKey, publicKey) {
		return nil, fmt.Errorf("%w: %s", common.ErrUnknownDevice, deviceID)
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	now := s.now()
	ch := &models.Challenge{
		DeviceID:  deviceID,
		Nonce:     nonce,
		Remote:    remote,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.Put(ctx, ch); err != nil {
		return nil, err
	}

	s.logger.Debug(ctx, "challenge issued", "device_id", deviceID, "remote", remote)
	return ch, nil
}

// Verify consumes the pending challenge for the device and checks the
// Ed25519 signature over the raw nonce. The challenge is gone after this
// call whatever the outcome.
func (s *Service) Verify(ctx context.Context, deviceID string, signature []byte) error {
	ch, err := s.store.Consume(ctx, deviceID)
	if err != nil {
		return err
	}
	if ch.Expired(s.now()) {
		s.logger.Warn(ctx, "expired challenge presented", "device_id", deviceID)
		return common.ErrChallengeExpiredOrUnknown
	}

	device, err := s.devices.GetByID(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("%w: %s", common.ErrUnknownDevice, deviceID)
	}

	if len(device.PublicKey) != ed25519.PublicKeySize ||
		!ed25519.Verify(device.PublicKey, ch.Nonce, signature) {
		s.logger.Warn(ctx, "invalid signature", "device_id", deviceID, "remote", ch.Remote)
		return common.ErrSignatureInvalid
	}

	return nil
}
