// Package models contains the persistence-level types shared by the
// repositories and services.
package models

import (
	"crypto/ed25519"
	"time"
)

// Device is a registered bike identity. The public key is the sole
// credential: possession of the matching private key is proven during the
// challenge handshake. Devices are immutable once registered.
type Device struct {
	ID        string
	PublicKey ed25519.PublicKey
	CreatedAt time.Time
}
