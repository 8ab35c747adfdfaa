package challenge

import (
	"context"

	"github.com/openvelo/openvelo/internal/server/models"
)

// Store holds pending challenges between issuance and verification.
// Consume must atomically remove and return the pending challenge so that
// no two verifications can ever race on the same nonce.
type Store interface {
	// Put records the pending challenge for a device, replacing any
	// earlier one still outstanding.
	Put(ctx context.Context, ch *models.Challenge) error

	// Consume removes and returns the pending challenge for deviceID.
	// Returns common.ErrChallengeExpiredOrUnknown when none is pending.
	Consume(ctx context.Context, deviceID string) (*models.Challenge, error)
}
