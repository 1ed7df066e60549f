package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService_IssueAndValidate(t *testing.T) {
	svc := NewTokenService("secret", "travel-planner", time.Hour)

	clientID, token, err := svc.Issue()
	require.NoError(t, err)
	require.NotEmpty(t, clientID)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, clientID, claims.ClientID)
	assert.Equal(t, clientID, claims.Subject)
}

func TestTokenService_RejectsWrongSecret(t *testing.T) {
	issuer := NewTokenService("secret", "travel-planner", time.Hour)
	other := NewTokenService("other", "travel-planner", time.Hour)

	_, token, err := issuer.Issue()
	require.NoError(t, err)

	_, err = other.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_Expired(t *testing.T) {
	svc := NewTokenService("secret", "travel-planner", time.Minute)
	base := time.Now()
	svc.now = func() time.Time { return base }

	token, err := svc.IssueFor("client-1")
	require.NoError(t, err)

	svc.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestExtractTokenFromBearer(t *testing.T) {
	assert.Equal(t, "abc", ExtractTokenFromBearer("Bearer abc"))
	assert.Equal(t, "", ExtractTokenFromBearer("Basic abc"))
	assert.Equal(t, "", ExtractTokenFromBearer(""))
}
