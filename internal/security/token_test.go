package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestTokenManager(t *testing.T) {
	t.Run("Access token round trip", func(t *testing.T) {
		m := NewTokenManager(secret, 0, 0)
		tok, err := m.GenerateAccessToken(42, "a@b.c", []string{"rider"})
		require.NoError(t, err)

		claims, err := m.ValidateToken(tok)
		require.NoError(t, err)
		assert.Equal(t, int64(42), claims.UserID)
		assert.Equal(t, TokenTypeAccess, claims.Type)
		assert.Equal(t, "42", claims.Subject)
		assert.Equal(t, []string{"rider"}, claims.Roles)
	})

	t.Run("Kiosk token carries the serial", func(t *testing.T) {
		m := NewTokenManager(secret, 0, 0)
		tok, err := m.GenerateKioskToken("KIOSK-0001")
		require.NoError(t, err)

		claims, err := m.ValidateToken(tok)
		require.NoError(t, err)
		assert.Equal(t, TokenTypeKiosk, claims.Type)
		assert.Equal(t, "KIOSK-0001", claims.KioskSerial)
		assert.Zero(t, claims.UserID)
	})

	t.Run("Expired", func(t *testing.T) {
		m := NewTokenManager(secret, time.Minute, 0).(*tokenManager)
		issued := time.Now()
		m.now = func() time.Time { return issued }
		tok, err := m.GenerateAccessToken(1, "", nil)
		require.NoError(t, err)

		m.now = func() time.Time { return issued.Add(2 * time.Minute) }
		_, err = m.ValidateToken(tok)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("Wrong secret", func(t *testing.T) {
		tok, err := NewTokenManager(secret, 0, 0).GenerateAccessToken(1, "", nil)
		require.NoError(t, err)
		_, err = NewTokenManager("another-secret-another-secret-xx", 0, 0).ValidateToken(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := NewTokenManager(secret, 0, 0).ValidateToken("not.a.jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
