// Package service holds the authentication business logic. AuthService sits
// between the HTTP handlers and the store/credential primitives:
//
//	handler (HTTP) → AuthService (flows) → repository.UserRepository (DB)
//	                          ↘ auth.{Password,OTP,Reset,Token}Service
//	                          ↘ mailer.Sender
//
// Each method is one flow from the outside contract: register, verify-otp,
// resend-otp, login, OAuth login, and the password-reset trio. Within a flow
// the steps are strictly sequential, and every write is a single-record save;
// races on the same email resolve at the store's uniqueness constraints.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/justanagent/auth-service/internal/apperror"
	"github.com/justanagent/auth-service/internal/auth"
	"github.com/justanagent/auth-service/internal/mailer"
	"github.com/justanagent/auth-service/internal/model"
	"github.com/justanagent/auth-service/internal/repository"
)

// minPasswordLen is the weakest password accepted on register and reset.
const minPasswordLen = 6

// Options carries the environment-dependent behavior of the service.
type Options struct {
	// FrontendURL is the base URL embedded in password reset links.
	FrontendURL string
	// Production makes email delivery failures fatal. Outside production the
	// OTP/reset link is logged instead and the flow continues.
	Production bool
}

// AuthService composes the credential primitives into the authentication
// flows.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	otps      *auth.OTPService
	resets    *auth.ResetTokenService
	mail      mailer.Sender
	opts      Options
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	mail mailer.Sender,
	opts Options,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		otps:      auth.NewOTPService(),
		resets:    auth.NewResetTokenService(),
		mail:      mail,
		opts:      opts,
		logger:    logger,
	}
}

// AuthResult bundles a user record and an issued session token so the handler
// can set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// OAuthResult extends AuthResult with the new-user flag driving the
// post-login redirect.
type OAuthResult struct {
	AuthResult
	IsNewUser bool
}

// RegisterInput is the payload of a local registration attempt.
type RegisterInput struct {
	Email      string
	Name       string
	Password   string
	Profession string
}

// Register starts a local registration: it stores an unverified record with a
// pending OTP and triggers the verification email.
//
// An email already verified under an OAuth provider gets a conflict naming
// that provider; a verified local account gets a plain conflict. An
// unverified record for the same email is reused and overwritten rather than
// duplicated, so re-registration before verification never creates a second
// row. A concurrent duplicate insert loses at the store's unique constraint
// and surfaces as the same conflict.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	if err := validateRegister(in); err != nil {
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, in.Email)
	switch {
	case err == nil:
		if user.IsEmailVerified {
			if user.OAuthProvider != "" {
				return nil, apperror.RequiresOAuth(string(user.OAuthProvider),
					fmt.Sprintf("An account with this email already exists using %s. Please sign in with %s instead.",
						user.OAuthProvider, user.OAuthProvider))
			}
			return nil, apperror.Conflict("User with this email already exists")
		}
		// Pending verification: reuse the record, overwrite the profile
		user.Name = in.Name
		user.Profession = in.Profession
	case errors.Is(err, apperror.ErrNotFound):
		user = &model.User{
			Email:      model.NormalizeEmail(in.Email),
			Name:       in.Name,
			Profession: in.Profession,
		}
	default:
		return nil, fmt.Errorf("service/auth: looking up email: %w", err)
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}
	user.PasswordHash = hash

	otp, expires, err := s.otps.Generate()
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}
	user.EmailVerificationOTP = otp
	user.EmailVerificationOTPExpires = &expires

	if err := s.users.Save(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: saving registration: %w", err)
	}

	s.logger.Info("registration pending verification", slog.String("userID", user.ID))

	if err := s.deliverOTP(ctx, user, otp); err != nil {
		return nil, err
	}
	return user, nil
}

// VerifyOTP completes a registration: on a correct, unexpired code the record
// becomes verified, the OTP pair is cleared (single-use), and a session is
// issued.
func (s *AuthService) VerifyOTP(ctx context.Context, email, otp string) (*AuthResult, error) {
	if email == "" || otp == "" {
		return nil, apperror.ValidationFailed("otp", "Email and OTP are required")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound("user")
		}
		return nil, fmt.Errorf("service/auth: looking up email: %w", err)
	}

	if !s.otps.Verify(user.EmailVerificationOTP, user.EmailVerificationOTPExpires, otp) {
		return nil, apperror.Unauthorized("Invalid or expired OTP")
	}

	user.IsEmailVerified = true
	user.ClearEmailVerificationOTP()
	if err := s.users.Save(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: saving verification: %w", err)
	}

	s.logger.Info("email verified", slog.String("userID", user.ID))
	return s.issueSession(user)
}

// ResendOTP regenerates the verification code for a still-unverified account
// and re-triggers the email.
func (s *AuthService) ResendOTP(ctx context.Context, email string) error {
	if email == "" {
		return apperror.ValidationFailed("email", "Email is required")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.NotFound("user")
		}
		return fmt.Errorf("service/auth: looking up email: %w", err)
	}

	if user.IsEmailVerified {
		return apperror.ValidationFailed("email", "Email is already verified")
	}

	otp, expires, err := s.otps.Generate()
	if err != nil {
		return fmt.Errorf("service/auth: %w", err)
	}
	user.EmailVerificationOTP = otp
	user.EmailVerificationOTPExpires = &expires

	if err := s.users.Save(ctx, user); err != nil {
		return fmt.Errorf("service/auth: saving new OTP: %w", err)
	}

	return s.deliverOTP(ctx, user, otp)
}

// Login authenticates a local email/password attempt.
//
// Unknown email and wrong password are the same generic Unauthorized, so the
// endpoint can't be used to enumerate accounts. An OAuth-only account gets a
// conflict naming its provider instead, since it has no password to check.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	if email == "" || password == "" {
		return nil, apperror.ValidationFailed("email", "Email and password are required")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("Invalid email or password")
		}
		return nil, fmt.Errorf("service/auth: looking up email: %w", err)
	}

	if user.IsOAuthOnly() {
		return nil, apperror.RequiresOAuth(string(user.OAuthProvider),
			fmt.Sprintf("This account was created using %s. Please sign in with %s instead.",
				user.OAuthProvider, user.OAuthProvider))
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, apperror.Unauthorized("Invalid email or password")
	}

	now := time.Now().UTC()
	user.LastLogin = &now
	if err := s.users.Save(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: saving last login: %w", err)
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return s.issueSession(user)
}

// LoginOAuth completes an OAuth callback: it resolves the profile against the
// store (reuse, link, or create, see resolveOAuth), persists the resolution,
// and issues a session.
func (s *AuthService) LoginOAuth(ctx context.Context, profile *auth.Profile) (*OAuthResult, error) {
	if profile == nil {
		return nil, fmt.Errorf("service/auth: OAuth profile must not be nil")
	}

	byOAuth, err := s.users.FindByOAuth(ctx, profile.Provider, profile.Subject)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: looking up oauth pair: %w", err)
	}

	var byEmail *model.User
	if byOAuth == nil && profile.Email != "" {
		byEmail, err = s.users.FindByEmail(ctx, profile.Email)
		if err != nil && !errors.Is(err, apperror.ErrNotFound) {
			return nil, fmt.Errorf("service/auth: looking up profile email: %w", err)
		}
	}

	res, err := resolveOAuth(byOAuth, byEmail, profile)
	if err != nil {
		return nil, err
	}

	if err := s.users.Save(ctx, res.User); err != nil {
		return nil, fmt.Errorf("service/auth: saving resolved identity: %w", err)
	}

	s.logger.Info("user authenticated via OAuth",
		slog.String("userID", res.User.ID),
		slog.String("provider", string(profile.Provider)),
		slog.Bool("isNewUser", res.IsNewUser),
	)

	session, err := s.issueSession(res.User)
	if err != nil {
		return nil, err
	}
	return &OAuthResult{AuthResult: *session, IsNewUser: res.IsNewUser}, nil
}

// RequestPasswordReset issues a reset token and emails the reset link.
//
// An unknown email is NOT an error: the caller responds with the same generic
// success either way, so the endpoint can't be probed for registered
// addresses. An OAuth-only account has no password to reset and gets a
// conflict naming its provider.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	if email == "" {
		return apperror.ValidationFailed("email", "Email is required")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("service/auth: looking up email: %w", err)
	}

	if !user.HasPassword() {
		return apperror.RequiresOAuth(string(user.OAuthProvider),
			fmt.Sprintf("This account uses social login. Please sign in with %s instead.", user.OAuthProvider))
	}

	raw, digest, expires, err := s.resets.Generate()
	if err != nil {
		return fmt.Errorf("service/auth: %w", err)
	}
	user.PasswordResetToken = digest
	user.PasswordResetExpires = &expires

	if err := s.users.Save(ctx, user); err != nil {
		return fmt.Errorf("service/auth: saving reset token: %w", err)
	}

	resetURL := fmt.Sprintf("%s/reset-password?token=%s", s.opts.FrontendURL, url.QueryEscape(raw))
	if err := s.mail.SendPasswordResetEmail(ctx, user.Email, user.Name, resetURL); err != nil {
		if s.opts.Production {
			return apperror.Upstream(err, "Failed to send password reset email")
		}
		s.logger.Warn("reset email failed, logging link for out-of-band delivery",
			slog.String("email", user.Email),
			slog.String("resetURL", resetURL),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// ResetPassword redeems a reset token and sets the new password. The stored
// digest and expiry are cleared on success, so a token redeems at most once.
func (s *AuthService) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if rawToken == "" {
		return apperror.ValidationFailed("token", "Reset token is required")
	}
	if len(newPassword) < minPasswordLen {
		return apperror.ValidationFailed("password", "Password must be at least 6 characters long")
	}

	user, err := s.lookupResetToken(ctx, rawToken)
	if err != nil {
		return err
	}

	hash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("service/auth: %w", err)
	}
	user.PasswordHash = hash
	user.ClearPasswordReset()

	if err := s.users.Save(ctx, user); err != nil {
		return fmt.Errorf("service/auth: saving new password: %w", err)
	}

	s.logger.Info("password reset completed", slog.String("userID", user.ID))
	return nil
}

// VerifyResetToken is the read-only probe behind the reset form: it reports
// whether a token is redeemable and for whom, without consuming it.
func (s *AuthService) VerifyResetToken(ctx context.Context, rawToken string) (*model.User, error) {
	if rawToken == "" {
		return nil, apperror.ValidationFailed("token", "Reset token is required")
	}
	return s.lookupResetToken(ctx, rawToken)
}

// GetUserByID returns the user for the given internal ID. Used by the
// profile handler after the middleware has validated the session.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: user ID must not be empty")
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// ValidateToken validates a session token string and returns the userID it
// encodes. Thin delegation so callers only import the service package.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return userID, nil
}

func (s *AuthService) lookupResetToken(ctx context.Context, rawToken string) (*model.User, error) {
	digest := auth.HashResetToken(rawToken)
	user, err := s.users.FindByResetTokenHash(ctx, digest, s.resets.Now())
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("Invalid or expired password reset token")
		}
		return nil, fmt.Errorf("service/auth: looking up reset token: %w", err)
	}
	return user, nil
}

// issueSession mints the session token for an authenticated user.
func (s *AuthService) issueSession(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// deliverOTP triggers the verification email. Outside production a delivery
// failure is recoverable: the OTP is logged so it remains usable out-of-band,
// and the flow continues. In production the failure is surfaced.
func (s *AuthService) deliverOTP(ctx context.Context, user *model.User, otp string) error {
	if err := s.mail.SendVerificationOTP(ctx, user.Email, user.Name, otp); err != nil {
		if s.opts.Production {
			return apperror.Upstream(err, "Failed to send verification email")
		}
		s.logger.Warn("verification email failed, logging OTP for out-of-band delivery",
			slog.String("email", user.Email),
			slog.String("otp", otp),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func validateRegister(in RegisterInput) error {
	if model.NormalizeEmail(in.Email) == "" {
		return apperror.ValidationFailed("email", "Email is required")
	}
	if in.Name == "" {
		return apperror.ValidationFailed("name", "Name is required")
	}
	if len(in.Password) < minPasswordLen {
		return apperror.ValidationFailed("password", "Password must be at least 6 characters long")
	}
	return nil
}
