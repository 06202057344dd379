package sqlite

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/justanagent/auth-service/internal/apperror"
	"github.com/justanagent/auth-service/internal/model"
)

// newTestDB returns a DB backed by an in-memory SQLite database.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("New(:memory:) error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// saveTestUser inserts a minimal local user and fails the test on error.
func saveTestUser(t *testing.T, db *DB, email string) *model.User {
	t.Helper()
	u := &model.User{
		Email:        email,
		Name:         "Test User",
		PasswordHash: "$2a$04$fakehashfakehashfakehash",
	}
	if err := db.Save(context.Background(), u); err != nil {
		t.Fatalf("saving test user: %v", err)
	}
	return u
}

// =========================================================================
// SAVE TESTS
// =========================================================================

func TestSave_InsertAssignsIDAndTimestamps(t *testing.T) {
	db := newTestDB(t)

	u := saveTestUser(t, db, "a@x.com")

	if u.ID == "" {
		t.Error("Save() did not assign an ID on insert")
	}
	if u.CreatedAt.IsZero() || u.UpdatedAt.IsZero() {
		t.Error("Save() did not set timestamps on insert")
	}
}

func TestSave_DuplicateEmailIsConflict(t *testing.T) {
	db := newTestDB(t)

	saveTestUser(t, db, "dup@x.com")

	second := &model.User{Email: "dup@x.com", Name: "Other", PasswordHash: "h"}
	err := db.Save(context.Background(), second)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("Save() with duplicate email = %v, want ErrConflict", err)
	}
	if second.ID != "" {
		t.Error("failed insert should not leave an ID on the record")
	}
}

func TestSave_DuplicateOAuthPairIsConflict(t *testing.T) {
	db := newTestDB(t)

	first := &model.User{
		Email:           "one@x.com",
		Name:            "One",
		OAuthProvider:   model.ProviderGoogle,
		OAuthID:         "sub-123",
		IsEmailVerified: true,
	}
	if err := db.Save(context.Background(), first); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	second := &model.User{
		Email:         "two@x.com",
		Name:          "Two",
		OAuthProvider: model.ProviderGoogle,
		OAuthID:       "sub-123",
	}
	err := db.Save(context.Background(), second)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("Save() with duplicate oauth pair = %v, want ErrConflict", err)
	}

	// The message must name the colliding identity: the emails differ here,
	// only the (provider, id) pair collides.
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("Save() error %v does not carry an AppError", err)
	}
	if !strings.Contains(appErr.Message, "provider") {
		t.Errorf("conflict message = %q, want it to name the provider identity", appErr.Message)
	}
	if strings.Contains(appErr.Message, "email") {
		t.Errorf("conflict message = %q, must not blame the email", appErr.Message)
	}
}

func TestSave_TwoLocalUsersWithoutOAuthCoexist(t *testing.T) {
	db := newTestDB(t)

	// The oauth uniqueness is a partial index: rows with no provider must
	// not collide with each other.
	saveTestUser(t, db, "first@x.com")
	saveTestUser(t, db, "second@x.com")
}

func TestSave_UpdatePersistsMutations(t *testing.T) {
	db := newTestDB(t)

	u := saveTestUser(t, db, "mut@x.com")

	now := time.Now().UTC().Truncate(time.Second)
	u.IsEmailVerified = true
	u.Profession = "engineer"
	u.LastLogin = &now
	if err := db.Save(context.Background(), u); err != nil {
		t.Fatalf("Save() update error = %v", err)
	}

	got, err := db.GetByID(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !got.IsEmailVerified {
		t.Error("update did not persist IsEmailVerified")
	}
	if got.Profession != "engineer" {
		t.Errorf("Profession = %q, want %q", got.Profession, "engineer")
	}
	if got.LastLogin == nil || !got.LastLogin.Equal(now) {
		t.Errorf("LastLogin = %v, want %v", got.LastLogin, now)
	}
}

func TestSave_UpdateUnknownIDIsNotFound(t *testing.T) {
	db := newTestDB(t)

	u := &model.User{ID: "no-such-id", Email: "x@x.com", Name: "X"}
	if err := db.Save(context.Background(), u); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Save() with unknown ID = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// LOOKUP TESTS
// =========================================================================

func TestFindByEmail_NormalizesLookup(t *testing.T) {
	db := newTestDB(t)

	saveTestUser(t, db, "Case@X.com")

	got, err := db.FindByEmail(context.Background(), "  CASE@x.COM ")
	if err != nil {
		t.Fatalf("FindByEmail() error = %v", err)
	}
	if got.Email != "case@x.com" {
		t.Errorf("stored email = %q, want normalized %q", got.Email, "case@x.com")
	}
}

func TestFindByEmail_Missing(t *testing.T) {
	db := newTestDB(t)

	_, err := db.FindByEmail(context.Background(), "ghost@x.com")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("FindByEmail() = %v, want ErrNotFound", err)
	}
}

func TestFindByOAuth(t *testing.T) {
	db := newTestDB(t)

	u := &model.User{
		Email:           "oauth@x.com",
		Name:            "OAuth User",
		OAuthProvider:   model.ProviderGitHub,
		OAuthID:         "999",
		IsEmailVerified: true,
	}
	if err := db.Save(context.Background(), u); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := db.FindByOAuth(context.Background(), model.ProviderGitHub, "999")
	if err != nil {
		t.Fatalf("FindByOAuth() error = %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("FindByOAuth() returned user %q, want %q", got.ID, u.ID)
	}

	// Same subject under the other provider is a different identity
	if _, err := db.FindByOAuth(context.Background(), model.ProviderGoogle, "999"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("FindByOAuth() with wrong provider = %v, want ErrNotFound", err)
	}
}

func TestFindByResetTokenHash(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u := saveTestUser(t, db, "reset@x.com")
	future := time.Now().Add(10 * time.Minute)
	u.PasswordResetToken = "digest-abc"
	u.PasswordResetExpires = &future
	if err := db.Save(ctx, u); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := db.FindByResetTokenHash(ctx, "digest-abc", time.Now())
	if err != nil {
		t.Fatalf("FindByResetTokenHash() error = %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("returned user %q, want %q", got.ID, u.ID)
	}
}

func TestFindByResetTokenHash_ExpiredOrUnknownAreIdentical(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u := saveTestUser(t, db, "expired@x.com")
	past := time.Now().Add(-time.Minute)
	u.PasswordResetToken = "digest-expired"
	u.PasswordResetExpires = &past
	if err := db.Save(ctx, u); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	_, errExpired := db.FindByResetTokenHash(ctx, "digest-expired", time.Now())
	_, errUnknown := db.FindByResetTokenHash(ctx, "digest-never-issued", time.Now())

	if !errors.Is(errExpired, apperror.ErrNotFound) {
		t.Errorf("expired digest = %v, want ErrNotFound", errExpired)
	}
	if !errors.Is(errUnknown, apperror.ErrNotFound) {
		t.Errorf("unknown digest = %v, want ErrNotFound", errUnknown)
	}
}

func TestFindByResetTokenHash_EmptyDigest(t *testing.T) {
	db := newTestDB(t)

	// A record with no pending reset has an empty digest column; an empty
	// candidate must never match it.
	saveTestUser(t, db, "nopending@x.com")

	_, err := db.FindByResetTokenHash(context.Background(), "", time.Now())
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("FindByResetTokenHash(\"\") = %v, want ErrNotFound", err)
	}
}

func TestGetByID_Missing(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetByID(context.Background(), "nope")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("GetByID() = %v, want ErrNotFound", err)
	}
}

func TestSave_RoundTripsTransientFields(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	expires := time.Now().UTC().Add(10 * time.Minute).Truncate(time.Second)
	u := &model.User{
		Email:                       "otp@x.com",
		Name:                        "OTP User",
		PasswordHash:                "h",
		EmailVerificationOTP:        "123456",
		EmailVerificationOTPExpires: &expires,
	}
	if err := db.Save(ctx, u); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := db.FindByEmail(ctx, "otp@x.com")
	if err != nil {
		t.Fatalf("FindByEmail() error = %v", err)
	}
	if got.EmailVerificationOTP != "123456" {
		t.Errorf("OTP = %q, want %q", got.EmailVerificationOTP, "123456")
	}
	if got.EmailVerificationOTPExpires == nil || !got.EmailVerificationOTPExpires.Equal(expires) {
		t.Errorf("OTP expiry = %v, want %v", got.EmailVerificationOTPExpires, expires)
	}

	// Clearing the pair persists as empty/null
	got.ClearEmailVerificationOTP()
	if err := db.Save(ctx, got); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	again, _ := db.FindByEmail(ctx, "otp@x.com")
	if again.EmailVerificationOTP != "" || again.EmailVerificationOTPExpires != nil {
		t.Error("cleared OTP pair did not persist")
	}
}
