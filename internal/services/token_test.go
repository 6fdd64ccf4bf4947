package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	clock := newFakeClock()
	svc := NewTokenService("secret", time.Hour, clock.Now)

	tok, err := svc.Generate("alice")
	require.NoError(t, err)

	id, err := svc.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", id)
}

func TestTokenRejected(t *testing.T) {
	clock := newFakeClock()
	svc := NewTokenService("secret", time.Hour, clock.Now)
	tok, err := svc.Generate("alice")
	require.NoError(t, err)

	_, err = NewTokenService("other", time.Hour, clock.Now).Validate(tok)
	assert.Error(t, err)

	_, err = svc.Validate("not-a-token")
	assert.Error(t, err)

	clock.Advance(2 * time.Hour)
	_, err = svc.Validate(tok)
	assert.Error(t, err)
}
