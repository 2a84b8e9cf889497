package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func newTestIssuer(enabled bool) *Issuer {
	return NewIssuer(Config{
		Enabled:    enabled,
		Secret:     testSecret,
		Expiration: time.Hour,
		Username:   "admin",
		Password:   "hunter2",
	})
}

func TestIssueAndVerify(t *testing.T) {
	issuer := newTestIssuer(true)

	token, err := issuer.Issue("admin")
	require.NoError(t, err)

	claims, err := Verify(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)
	require.NotNil(t, claims.ExpiresAt)
	require.NotNil(t, claims.IssuedAt)
	assert.Equal(t, time.Hour, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := newTestIssuer(true).Issue("admin")
	require.NoError(t, err)

	_, err = Verify(token, "other-secret")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpired(t *testing.T) {
	issuer := newTestIssuer(true)
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, err := issuer.Issue("admin")
	require.NoError(t, err)

	_, err = Verify(token, testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	_, err := Verify("not-a-token", testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLogin(t *testing.T) {
	issuer := newTestIssuer(true)

	token, err := issuer.Login("admin", "hunter2")
	require.NoError(t, err)
	claims, err := Verify(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)

	_, err = issuer.Login("admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = issuer.Login("root", "hunter2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginRejectsEmptyPassword(t *testing.T) {
	issuer := NewIssuer(Config{Enabled: true, Secret: testSecret, Username: "admin"})

	_, err := issuer.Login("admin", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginDisabled(t *testing.T) {
	issuer := newTestIssuer(false)
	assert.False(t, issuer.Enabled())

	token, err := issuer.Login("anyone", "anything")
	require.NoError(t, err)
	assert.Equal(t, DisabledToken, token)
}
