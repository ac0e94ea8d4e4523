package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "0123456789abcdef0123456789abcdef"
	testKey    = "abcdefghijklmnopqrstuvwxyz012345"
)

func newService(t *testing.T) *Service {
	t.Helper()
	s, err := NewService(testSecret, testKey, "admin", "s3cret", time.Hour)
	require.NoError(t, err)
	return s
}

func TestNewServiceRejectsWeakKeys(t *testing.T) {
	_, err := NewService("short", testKey, "admin", "pw", time.Hour)
	assert.ErrorContains(t, err, "jwt secret")
	_, err = NewService(testSecret, "short", "admin", "pw", time.Hour)
	assert.ErrorContains(t, err, "encryption key")
}

func TestLoginAndValidate(t *testing.T) {
	s := newService(t)

	_, err := s.Login("admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	resp, err := s.Login("admin", "s3cret")
	require.NoError(t, err)

	claims, err := s.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)

	_, err = s.ValidateToken(resp.Token + "x")
	assert.Error(t, err)

	other, err := NewService(strings.Repeat("z", 32), testKey, "admin", "s3cret", time.Hour)
	require.NoError(t, err)
	_, err = other.ValidateToken(resp.Token)
	assert.Error(t, err)
}

func TestExpiredToken(t *testing.T) {
	s := newService(t)
	s.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	resp, err := s.IssueToken("operator")
	require.NoError(t, err)
	_, err = s.ValidateToken(resp.Token)
	assert.ErrorContains(t, err, "expired")
}

func TestEncryptValueRoundTrip(t *testing.T) {
	s := newService(t)

	enc, err := s.EncryptValue("community-string")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(enc, EncryptedPrefix))

	plain, err := s.DecryptValue(enc)
	require.NoError(t, err)
	assert.Equal(t, "community-string", plain)

	plain, err = s.DecryptValue("not encrypted")
	require.NoError(t, err)
	assert.Equal(t, "not encrypted", plain)

	_, err = s.DecryptValue(EncryptedPrefix + "AAAA")
	assert.Error(t, err)
}
