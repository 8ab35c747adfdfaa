package models

import "time"

// Challenge is a single-use random value a device must sign to prove key
// possession. It is consumed on the first verification attempt, successful
// or not, and is invalid past ExpiresAt even if never consumed.
type Challenge struct {
	DeviceID  string    `json:"device_id"`
	Nonce     []byte    `json:"nonce"`
	Remote    string    `json:"remote"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the challenge is past its validity window.
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
