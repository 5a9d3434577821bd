package app

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
)

func TestTokenRoundtrip(t *testing.T) {
	sc := NewSecurityContext("room-1", "secret", time.Hour)
	tok := sc.Generate()
	assert.NoError(t, sc.Validate(tok))
}

func TestTokenRoomMismatch(t *testing.T) {
	issuer := NewSecurityContext("room-1", "secret", time.Hour)
	other := NewSecurityContext("room-2", "secret", time.Hour)
	assert.ErrorIs(t, other.Validate(issuer.Generate()), core.ErrTokenRoomMismatch)
}

func TestTokenExpired(t *testing.T) {
	sc := NewSecurityContext("room-1", "secret", -time.Minute)
	assert.ErrorIs(t, sc.Validate(sc.Generate()), core.ErrTokenExpired)
}

func TestTokenTampered(t *testing.T) {
	sc := NewSecurityContext("room-1", "secret", time.Hour)
	tok := sc.Generate()

	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)

	// Push the expiry out without re-signing.
	forged := parts[0] + ".9999999999." + parts[2]
	assert.ErrorIs(t, sc.Validate(forged), core.ErrTokenInvalid)

	// Wrong secret fails the signature check, not the room check.
	wrongKey := NewSecurityContext("room-1", "other-secret", time.Hour)
	assert.ErrorIs(t, wrongKey.Validate(tok), core.ErrTokenInvalid)

	assert.ErrorIs(t, sc.Validate("garbage"), core.ErrTokenInvalid)
	assert.ErrorIs(t, sc.Validate("a.b.c"), core.ErrTokenInvalid)
}

func TestDomainAllowList(t *testing.T) {
	sc := NewSecurityContext("room-1", "secret", time.Hour)
	assert.True(t, sc.DomainAllowed("anything.example")) // empty list allows all

	sc.SetOptions(domain.SecurityOptions{AllowedDomains: []string{"app.example.com"}})
	assert.True(t, sc.DomainAllowed("APP.example.COM"))
	assert.False(t, sc.DomainAllowed("evil.example.com"))
}
