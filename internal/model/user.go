// Package model defines the data structures used throughout the application.
package model

import (
	"strings"
	"time"
)

// Provider identifies a federated login method.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderGitHub Provider = "github"
)

// Valid reports whether p is one of the supported providers.
func (p Provider) Valid() bool {
	return p == ProviderGoogle || p == ProviderGitHub
}

// User represents a registered user account.
//
// An account is usable for local login when PasswordHash is set, for OAuth
// login when OAuthProvider/OAuthID are set, and for both once a local account
// has been linked to a provider. Email is the primary natural key; the pair
// (OAuthProvider, OAuthID) is a secondary unique key when present.
//
// The OTP pair and the reset-token pair are transient: each is populated only
// while the corresponding verification or reset is pending, and cleared after
// one successful use. PasswordResetToken stores the SHA-256 hex digest of the
// raw token, never the raw value. Credential fields are excluded from JSON so
// they can never leak through an API response.
type User struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Profession string `json:"profession,omitempty"`

	PasswordHash string `json:"-"`

	OAuthProvider Provider `json:"oauthProvider,omitempty"`
	OAuthID       string   `json:"-"`
	Avatar        string   `json:"avatar,omitempty"`

	IsEmailVerified bool `json:"isEmailVerified"`

	EmailVerificationOTP        string     `json:"-"`
	EmailVerificationOTPExpires *time.Time `json:"-"`

	PasswordResetToken   string     `json:"-"`
	PasswordResetExpires *time.Time `json:"-"`

	LastLogin *time.Time `json:"lastLogin,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// HasPassword reports whether the account can be used for local login.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// IsOAuthOnly reports whether the account was created through a provider and
// has never set a local password.
func (u *User) IsOAuthOnly() bool {
	return u.OAuthProvider != "" && !u.HasPassword()
}

// ClearEmailVerificationOTP removes the pending OTP pair after a successful
// verification (single-use).
func (u *User) ClearEmailVerificationOTP() {
	u.EmailVerificationOTP = ""
	u.EmailVerificationOTPExpires = nil
}

// ClearPasswordReset removes the pending reset-token pair after a successful
// redemption (single-use).
func (u *User) ClearPasswordReset() {
	u.PasswordResetToken = ""
	u.PasswordResetExpires = nil
}

// Clone returns a deep copy of the user. The identity resolver works on
// copies so that a conflict leaves the original snapshot untouched.
func (u *User) Clone() *User {
	c := *u
	c.EmailVerificationOTPExpires = copyTime(u.EmailVerificationOTPExpires)
	c.PasswordResetExpires = copyTime(u.PasswordResetExpires)
	c.LastLogin = copyTime(u.LastLogin)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// NormalizeEmail lowercases and trims an email address. All store lookups and
// writes go through this so that "  A@X.com " and "a@x.com" are one identity.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
