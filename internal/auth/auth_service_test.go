package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeys(t *testing.T) (privatePEM, publicPEM []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	privatePEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	publicPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pub})
	return privatePEM, publicPEM
}

func TestIssueAndValidate(t *testing.T) {
	priv, pub := testKeys(t)
	svc, err := NewAuthService(priv, pub, "cvlm", time.Hour)
	require.NoError(t, err)

	token, expires, err := svc.IssueAccessToken("user-1", "a@example.com")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "a@example.com", claims.Email)
	assert.Equal(t, "cvlm", claims.Issuer)
}

func TestValidateRejects(t *testing.T) {
	priv, pub := testKeys(t)
	svc, err := NewAuthService(priv, pub, "cvlm", time.Hour)
	require.NoError(t, err)

	_, err = svc.ValidateToken("")
	assert.Error(t, err)
	_, err = svc.ValidateToken("not.a.jwt")
	assert.Error(t, err)

	t.Run("expired", func(t *testing.T) {
		token, _, err := svc.IssueAccessToken("user-1", "")
		require.NoError(t, err)
		later := *svc
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err = later.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("other issuer", func(t *testing.T) {
		other, err := NewAuthService(priv, pub, "someone-else", time.Hour)
		require.NoError(t, err)
		token, _, err := other.IssueAccessToken("user-1", "")
		require.NoError(t, err)
		_, err = svc.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("foreign key", func(t *testing.T) {
		otherPriv, otherPub := testKeys(t)
		other, err := NewAuthService(otherPriv, otherPub, "cvlm", time.Hour)
		require.NoError(t, err)
		token, _, err := other.IssueAccessToken("user-1", "")
		require.NoError(t, err)
		_, err = svc.ValidateToken(token)
		assert.Error(t, err)
	})
}

func TestVerifyOnly(t *testing.T) {
	_, pub := testKeys(t)
	svc, err := NewAuthService(nil, pub, "cvlm", time.Hour)
	require.NoError(t, err)

	_, _, err = svc.IssueAccessToken("user-1", "")
	assert.True(t, errors.Is(err, ErrSigningDisabled))

	_, err = NewAuthService(nil, nil, "cvlm", time.Hour)
	assert.Error(t, err)
}
