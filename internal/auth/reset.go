package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// resetTokenTTL is how long a password reset link stays valid.
const resetTokenTTL = 10 * time.Minute

// ResetTokenService issues the opaque bearer tokens used for password reset.
//
// The raw token is returned exactly once, to be embedded in the reset email.
// Only its SHA-256 hex digest is ever persisted; redeeming a token means
// hashing the candidate and looking the digest up in the store with the
// expiry filter applied. A wrong token and an expired token are therefore
// indistinguishable, which is intentional.
type ResetTokenService struct {
	now func() time.Time
}

// NewResetTokenService creates a ResetTokenService using the wall clock.
func NewResetTokenService() *ResetTokenService {
	return &ResetTokenService{now: time.Now}
}

// NewResetTokenServiceAtTime creates a ResetTokenService with an injected
// clock for expiry tests.
func NewResetTokenServiceAtTime(now func() time.Time) *ResetTokenService {
	return &ResetTokenService{now: now}
}

// Generate returns a fresh raw token (64 hex chars from 32 random bytes), the
// digest to persist, and the absolute expiry (now + 10 minutes).
func (s *ResetTokenService) Generate() (raw, digest string, expires time.Time, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", time.Time{}, fmt.Errorf("auth: generating reset token: %w", err)
	}

	raw = hex.EncodeToString(buf)
	return raw, HashResetToken(raw), s.now().Add(resetTokenTTL), nil
}

// HashResetToken returns the SHA-256 hex digest of a raw reset token. Used
// both when persisting a new token and when redeeming a candidate.
func HashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Now exposes the service clock so callers share the same notion of "not yet
// expired" when querying the store.
func (s *ResetTokenService) Now() time.Time {
	return s.now()
}
