// Package common defines shared sentinel errors used across the server
// components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Authentication handshake errors. These are terminal for the
	// connection attempt and are never retried server-side.
	ErrUnknownDevice             = errors.New("unknown device")
	ErrChallengeExpiredOrUnknown = errors.New("challenge expired or unknown")
	ErrSignatureInvalid          = errors.New("signature invalid")

	// Command path errors. Recoverable at the caller's discretion.
	ErrNotConnected  = errors.New("device not connected")
	ErrCallTimeout   = errors.New("call timed out")
	ErrCommandFailed = errors.New("command failed")

	// Session errors.
	ErrProtocolViolation = errors.New("protocol violation")

	// Event log errors. Fatal for the write in question; the caller
	// retries with backoff and must never drop the event silently.
	ErrPersistence = errors.New("persistence error")

	// Operator API errors.
	ErrInvalidToken = errors.New("invalid token")
)
