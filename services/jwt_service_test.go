package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)

	token, err := svc.Issue(42, "ada@example.com")
	require.NoError(t, err)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, 42, claims.UserID)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, "42", claims.Subject)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewJWTService("secret-a", time.Hour).Issue(1, "ada@example.com")
	require.NoError(t, err)

	_, err = NewJWTService("secret-b", time.Hour).Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)
	token, err := svc.Issue(1, "ada@example.com")
	require.NoError(t, err)

	_, err = svc.Verify(token[:len(token)-2] + "xx")
	assert.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	// Claim timestamps carry second precision, so the sleep must clear a
	// full second boundary for the token to be reliably past its expiry.
	svc := NewJWTService("test-secret", time.Millisecond)
	token, err := svc.Issue(1, "ada@example.com")
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)
	_, err = svc.Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc := NewJWTService("test-secret", 0)

	_, err := svc.Verify("not-a-token")
	assert.Error(t, err)
}
