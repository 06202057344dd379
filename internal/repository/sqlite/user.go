package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/justanagent/auth-service/internal/apperror"
	"github.com/justanagent/auth-service/internal/model"
	"github.com/justanagent/auth-service/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, email, name, profession, password_hash,
	oauth_provider, oauth_id, avatar, is_email_verified,
	email_verification_otp, otp_expires,
	password_reset_token, reset_expires,
	last_login, created_at, updated_at`

// Save upserts a user record.
//
// A user with an empty ID is inserted: the store assigns an xid and the
// created/updated timestamps, reflected back into the caller's struct. An
// existing user is updated wholesale; flows always work on a freshly loaded
// record, so a full-row update is a single-record save, never a merge.
//
// The UNIQUE constraints on email and (oauth_provider, oauth_id) are the
// serialization point for concurrent registrations: the second writer gets a
// Conflict instead of a duplicate row.
func (db *DB) Save(ctx context.Context, user *model.User) error {
	user.Email = model.NormalizeEmail(user.Email)
	now := time.Now().UTC()

	if user.ID == "" {
		user.ID = xid.New().String()
		user.CreatedAt = now
		user.UpdatedAt = now

		_, err := db.conn.ExecContext(ctx,
			`INSERT INTO users (`+userColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			user.ID, user.Email, user.Name, user.Profession, user.PasswordHash,
			string(user.OAuthProvider), user.OAuthID, user.Avatar, boolToInt(user.IsEmailVerified),
			user.EmailVerificationOTP, nullTime(user.EmailVerificationOTPExpires),
			user.PasswordResetToken, nullTime(user.PasswordResetExpires),
			nullTime(user.LastLogin), user.CreatedAt, user.UpdatedAt,
		)
		if err != nil {
			user.ID = ""
			if isUniqueViolation(err) {
				return fmt.Errorf("sqlite: inserting user: %w", uniqueConflict(err))
			}
			return fmt.Errorf("sqlite: inserting user: %w", err)
		}
		return nil
	}

	user.UpdatedAt = now
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET
			email = ?, name = ?, profession = ?, password_hash = ?,
			oauth_provider = ?, oauth_id = ?, avatar = ?, is_email_verified = ?,
			email_verification_otp = ?, otp_expires = ?,
			password_reset_token = ?, reset_expires = ?,
			last_login = ?, updated_at = ?
		 WHERE id = ?`,
		user.Email, user.Name, user.Profession, user.PasswordHash,
		string(user.OAuthProvider), user.OAuthID, user.Avatar, boolToInt(user.IsEmailVerified),
		user.EmailVerificationOTP, nullTime(user.EmailVerificationOTPExpires),
		user.PasswordResetToken, nullTime(user.PasswordResetExpires),
		nullTime(user.LastLogin), user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sqlite: updating user %s: %w", user.ID, uniqueConflict(err))
		}
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, apperror.NotFound("user"))
	}
	return nil
}

// GetByID retrieves a user by internal ID.
func (db *DB) GetByID(ctx context.Context, id string) (*model.User, error) {
	return db.scanOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// FindByEmail retrieves a user by normalized email.
func (db *DB) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.scanOne(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`,
		model.NormalizeEmail(email))
}

// FindByOAuth retrieves a user by the (provider, subject) pair.
func (db *DB) FindByOAuth(ctx context.Context, provider model.Provider, oauthID string) (*model.User, error) {
	return db.scanOne(ctx,
		`SELECT `+userColumns+` FROM users WHERE oauth_provider = ? AND oauth_id = ?`,
		string(provider), oauthID)
}

// FindByResetTokenHash retrieves the user holding the given reset-token
// digest, filtered to expiries still in the future. An unknown digest and an
// expired one both come back as ErrNotFound, indistinguishable to callers.
func (db *DB) FindByResetTokenHash(ctx context.Context, digest string, now time.Time) (*model.User, error) {
	if digest == "" {
		return nil, apperror.NotFound("user")
	}
	return db.scanOne(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE password_reset_token = ? AND reset_expires > ?`,
		digest, now.UTC())
}

func (db *DB) scanOne(ctx context.Context, query string, args ...any) (*model.User, error) {
	var (
		u          model.User
		provider   string
		verified   int
		otpExpires, resetExpires, lastLogin sql.NullTime
	)

	err := db.conn.QueryRowContext(ctx, query, args...).Scan(
		&u.ID, &u.Email, &u.Name, &u.Profession, &u.PasswordHash,
		&provider, &u.OAuthID, &u.Avatar, &verified,
		&u.EmailVerificationOTP, &otpExpires,
		&u.PasswordResetToken, &resetExpires,
		&lastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user")
		}
		return nil, fmt.Errorf("sqlite: querying user: %w", err)
	}

	u.OAuthProvider = model.Provider(provider)
	u.IsEmailVerified = verified != 0
	u.EmailVerificationOTPExpires = fromNullTime(otpExpires)
	u.PasswordResetExpires = fromNullTime(resetExpires)
	u.LastLogin = fromNullTime(lastLogin)
	return &u, nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint
// failure. The modernc driver exposes no typed error for this, so we match
// the stable constraint message.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// uniqueConflict maps a UNIQUE violation to a Conflict naming the colliding
// identity. The (oauth_provider, oauth_id) pair is guarded by the named
// partial index idx_users_oauth; everything else is the email column.
func uniqueConflict(err error) *apperror.AppError {
	if strings.Contains(err.Error(), "idx_users_oauth") ||
		strings.Contains(err.Error(), "users.oauth") {
		return apperror.Conflict("user with this login provider identity already exists")
	}
	return apperror.Conflict("user with this email already exists")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func fromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
