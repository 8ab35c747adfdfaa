package cryptox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyKey(t *testing.T) {
	salt := []byte("test-salt")
	verifier := MakeVerifier([]byte("master"), salt)

	assert.True(t, VerifyKey([]byte("master"), salt, verifier))
	assert.False(t, VerifyKey([]byte("wrong"), salt, verifier))
	assert.False(t, VerifyKey([]byte("master"), []byte("other-salt"), verifier))
}

func TestMakeVerifier_Deterministic(t *testing.T) {
	salt := []byte("test-salt")
	a := MakeVerifier([]byte("master"), salt)
	b := MakeVerifier([]byte("master"), salt)
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}
