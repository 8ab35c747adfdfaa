package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvelo/openvelo/internal/common"
)

func TestGenerateAndParseToken(t *testing.T) {
	secret := []byte("test-secret")

	token, err := GenerateToken("operator-1", secret, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	subject, err := SubjectFromToken(token, secret)
	require.NoError(t, err)
	assert.Equal(t, "operator-1", subject)
}

func TestSubjectFromToken_WrongSecret(t *testing.T) {
	token, err := GenerateToken("operator-1", []byte("right"), time.Hour)
	require.NoError(t, err)

	_, err = SubjectFromToken(token, []byte("wrong"))
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestSubjectFromToken_Expired(t *testing.T) {
	token, err := GenerateToken("operator-1", []byte("secret"), -time.Minute)
	require.NoError(t, err)

	_, err = SubjectFromToken(token, []byte("secret"))
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestSubjectFromToken_Garbage(t *testing.T) {
	_, err := SubjectFromToken("not-a-token", []byte("secret"))
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}
