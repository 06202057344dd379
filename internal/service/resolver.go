package service

import (
	"fmt"

	"github.com/justanagent/auth-service/internal/apperror"
	"github.com/justanagent/auth-service/internal/auth"
	"github.com/justanagent/auth-service/internal/model"
)

// Resolution is the outcome of resolving an OAuth login attempt: the record
// to persist and whether it is a newly created identity. IsNewUser drives the
// post-login redirect (onboarding vs. home).
type Resolution struct {
	User      *model.User
	IsNewUser bool
}

// resolveOAuth is the account-linking state machine, run once per OAuth login
// attempt.
//
// It is a pure function over immutable snapshots: byOAuth is the record found
// by (provider, subject), byEmail the record found by the profile email (each
// may be nil), and the returned Resolution holds a fresh copy; the store
// stays the sole mutator and conflicts leave the inputs untouched.
//
//  1. Found by (provider, subject): returning OAuth user, reuse as-is.
//  2. Found by email: link, unless the record already belongs to a
//     different provider, which is a conflict naming that provider so the
//     user can be told which method to use. The conflict check runs before
//     any field is touched.
//  3. Otherwise: create. Google always supplies an email; a GitHub account
//     with no visible email gets a non-routable placeholder derived from the
//     username and stays unverified.
func resolveOAuth(byOAuth, byEmail *model.User, p *auth.Profile) (*Resolution, error) {
	if p == nil || p.Subject == "" {
		return nil, fmt.Errorf("service/auth: OAuth profile must carry a subject")
	}

	if byOAuth != nil {
		return &Resolution{User: byOAuth.Clone(), IsNewUser: false}, nil
	}

	if byEmail != nil {
		if byEmail.OAuthProvider != "" && byEmail.OAuthProvider != p.Provider {
			return nil, apperror.RequiresOAuth(string(byEmail.OAuthProvider),
				fmt.Sprintf("An account with this email already exists using %s. Please sign in with %s instead.",
					byEmail.OAuthProvider, byEmail.OAuthProvider))
		}

		linked := byEmail.Clone()
		linked.OAuthProvider = p.Provider
		linked.OAuthID = p.Subject
		linked.IsEmailVerified = true
		if linked.Avatar == "" {
			linked.Avatar = p.AvatarURL
		}
		return &Resolution{User: linked, IsNewUser: false}, nil
	}

	email := model.NormalizeEmail(p.Email)
	verified := email != ""
	if email == "" {
		if p.Provider != model.ProviderGitHub {
			return nil, fmt.Errorf("service/auth: %s profile has no email", p.Provider)
		}
		if p.Username == "" {
			return nil, fmt.Errorf("service/auth: GitHub profile has neither email nor username")
		}
		email = model.NormalizeEmail(p.Username + "@github.local")
	}

	name := p.Name
	if name == "" {
		name = p.Username
	}

	return &Resolution{
		User: &model.User{
			Email:           email,
			Name:            name,
			OAuthProvider:   p.Provider,
			OAuthID:         p.Subject,
			Avatar:          p.AvatarURL,
			IsEmailVerified: verified,
		},
		IsNewUser: true,
	}, nil
}
