// Package cryptox holds the key-derivation helpers used by the device
// registration path. The fleet master key is never compared directly;
// an argon2id verifier is derived once at startup and candidates are
// checked in constant time.
package cryptox

import (
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

// MakeVerifier derives an argon2id verifier for the given key and salt.
func MakeVerifier(key []byte, salt []byte) []byte {
	return argon2.IDKey(key, salt, 1, 64*1024, 4, 32)
}

// VerifyKey reports whether candidate matches the verifier derived with
// MakeVerifier under the same salt. The comparison is constant-time.
func VerifyKey(candidate []byte, salt []byte, verifier []byte) bool {
	derived := MakeVerifier(candidate, salt)
	return subtle.ConstantTimeCompare(derived, verifier) == 1
}
