package app

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
)

// SecurityContext issues and validates call tokens for one room. Tokens
// are HMAC-SHA256 signed over room id and expiry, so validation proves
// both room binding and integrity, not just string equality.
type SecurityContext struct {
	room    domain.RoomID
	secret  []byte
	ttl     time.Duration
	options domain.SecurityOptions
}

func NewSecurityContext(room domain.RoomID, secret string, ttl time.Duration) *SecurityContext {
	return &SecurityContext{room: room, secret: []byte(secret), ttl: ttl}
}

func (s *SecurityContext) SetOptions(opts domain.SecurityOptions) {
	s.options = opts
}

func (s *SecurityContext) Options() domain.SecurityOptions { return s.options }

// DomainAllowed checks an origin against the allow list. An empty list
// allows everything.
func (s *SecurityContext) DomainAllowed(origin string) bool {
	if len(s.options.AllowedDomains) == 0 {
		return true
	}
	for _, d := range s.options.AllowedDomains {
		if strings.EqualFold(d, origin) {
			return true
		}
	}
	return false
}

// Generate issues a token bound to this room with the configured TTL.
// Format: base64url(room).expiryUnix.base64url(sig).
func (s *SecurityContext) Generate() string {
	exp := time.Now().Add(s.ttl).Unix()
	room := base64.RawURLEncoding.EncodeToString([]byte(s.room))
	sig := s.sign(string(s.room), exp)
	return fmt.Sprintf("%s.%d.%s", room, exp, sig)
}

// Validate checks room binding, expiry and signature. It returns the
// specific failure so callers can distinguish an expired token from a
// token for another room.
func (s *SecurityContext) Validate(token string) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return core.ErrTokenInvalid
	}
	roomRaw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return core.ErrTokenInvalid
	}
	exp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return core.ErrTokenInvalid
	}
	if !hmac.Equal([]byte(s.sign(string(roomRaw), exp)), []byte(parts[2])) {
		return core.ErrTokenInvalid
	}
	if domain.RoomID(roomRaw) != s.room {
		return core.ErrTokenRoomMismatch
	}
	if time.Now().Unix() >= exp {
		return core.ErrTokenExpired
	}
	return nil
}

func (s *SecurityContext) sign(room string, exp int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s|%d", room, exp)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
