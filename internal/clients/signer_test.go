package clients

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignerRoundTrip(t *testing.T) {
	t.Parallel()

	s := NewSigner("top-secret")
	token, err := s.Sign("u1", time.Minute)
	require.NoError(t, err)

	subject, err := s.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", subject)
}

func TestSignerRejectsBadTokens(t *testing.T) {
	t.Parallel()

	s := NewSigner("top-secret")

	_, err := s.Validate("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Signed with a different secret.
	other := NewSigner("different-secret")
	token, err := other.Sign("u1", time.Minute)
	require.NoError(t, err)
	_, err = s.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSignerRejectsExpiredToken(t *testing.T) {
	t.Parallel()

	s := NewSigner("top-secret")
	token, err := s.Sign("u1", -time.Minute)
	require.NoError(t, err)

	_, err = s.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
