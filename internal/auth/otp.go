package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// otpTTL is how long an email verification code stays valid.
const otpTTL = 10 * time.Minute

// otpRange covers the 6-digit codes [100000, 999999].
const (
	otpMin   = 100000
	otpSpan  = 900000
	otpDigit = 6
)

// OTPService issues and checks the short-lived numeric codes used for email
// verification. The code itself is bound to a user record by the caller; this
// service only deals with generation and comparison.
type OTPService struct {
	now func() time.Time
}

// NewOTPService creates an OTPService using the wall clock.
func NewOTPService() *OTPService {
	return &OTPService{now: time.Now}
}

// NewOTPServiceAtTime creates an OTPService with an injected clock, for tests
// that need to cross the expiry boundary without sleeping.
func NewOTPServiceAtTime(now func() time.Time) *OTPService {
	return &OTPService{now: now}
}

// Generate returns a 6-digit code, uniformly distributed over
// [100000, 999999], together with its absolute expiry (now + 10 minutes).
//
// crypto/rand.Int is uniform over [0, otpSpan), so there is no modulo bias.
func (s *OTPService) Generate() (otp string, expires time.Time, err error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpSpan))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: generating OTP: %w", err)
	}

	otp = fmt.Sprintf("%0*d", otpDigit, n.Int64()+otpMin)
	return otp, s.now().Add(otpTTL), nil
}

// Verify reports whether candidate matches the stored code and the expiry has
// not passed. A missing code, a mismatch, and an expired code are all the
// same false; callers surface one generic invalid-or-expired outcome.
//
// On success the caller must clear the stored pair; codes are single-use.
func (s *OTPService) Verify(stored string, expires *time.Time, candidate string) bool {
	if stored == "" || expires == nil || candidate == "" {
		return false
	}
	if s.now().After(*expires) {
		return false
	}
	return stored == candidate
}
