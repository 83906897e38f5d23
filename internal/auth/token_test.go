package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestStore_UserIDFromSubject(t *testing.T) {
	s := NewStore(signed(t, jwt.MapClaims{"sub": "42"}))

	id, err := s.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.NotEmpty(t, s.Token())
}

func TestStore_UserIDClaimFallback(t *testing.T) {
	s := NewStore(signed(t, jwt.MapClaims{"userId": 9}))

	id, err := s.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
}

func TestStore_OpaqueTokenKeptWithoutUser(t *testing.T) {
	s := NewStore("")
	err := s.Set("not-a-jwt")
	assert.Error(t, err)
	assert.Equal(t, "not-a-jwt", s.Token())

	_, err = s.UserID()
	assert.ErrorIs(t, err, ErrNoUser)
}

func TestStore_Clear(t *testing.T) {
	s := NewStore(signed(t, jwt.MapClaims{"sub": "1"}))
	s.Clear()

	assert.Empty(t, s.Token())
	_, err := s.UserID()
	assert.ErrorIs(t, err, ErrNoUser)
}
