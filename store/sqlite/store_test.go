package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kimlik-auth/kimlik"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedUser(t *testing.T, db *DB, email string) *kimlik.User {
	t.Helper()
	now := time.Now().UTC()
	u := &kimlik.User{
		ID:                  uuid.NewString(),
		Email:               email,
		PasswordHash:        "$argon2id$stub",
		FirstName:           "Ayşe",
		LastName:            "Yılmaz",
		Status:              kimlik.StatusActive,
		VerificationHash:    "vh-" + uuid.NewString(),
		VerificationExpires: now.Add(24 * time.Hour),
		TermsAccepted:       true,
		KVKKConsentAccepted: true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := db.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("Create user: %v", err)
	}
	return u
}

func TestUserStoreRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "ayse@example.com")

	got, err := db.Users().GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Email != u.Email || got.FirstName != u.FirstName || got.Status != kimlik.StatusActive {
		t.Errorf("GetByID mismatch: %+v", got)
	}
	if got.EmailVerified {
		t.Error("new user should not be verified")
	}
	if got.VerificationExpires.Unix() != u.VerificationExpires.Unix() {
		t.Errorf("VerificationExpires = %v, want %v", got.VerificationExpires, u.VerificationExpires)
	}

	byEmail, err := db.Users().GetByEmail(ctx, u.Email)
	if err != nil || byEmail.ID != u.ID {
		t.Fatalf("GetByEmail = %v, %v", byEmail, err)
	}
	byHash, err := db.Users().GetByVerificationHash(ctx, u.VerificationHash)
	if err != nil || byHash.ID != u.ID {
		t.Fatalf("GetByVerificationHash = %v, %v", byHash, err)
	}
}

func TestUserStoreDuplicateEmail(t *testing.T) {
	db := openTestDB(t)
	seedUser(t, db, "dup@example.com")

	dup := seedUserValue("dup@example.com")
	err := db.Users().Create(context.Background(), dup)
	if !errors.Is(err, kimlik.ErrEmailExists) {
		t.Fatalf("Create duplicate = %v, want ErrEmailExists", err)
	}
}

func seedUserValue(email string) *kimlik.User {
	now := time.Now().UTC()
	return &kimlik.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: "$argon2id$stub",
		Status:       kimlik.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestUserStoreMissingRows(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.Users().GetByID(ctx, "nope"); !errors.Is(err, kimlik.ErrNotFound) {
		t.Errorf("GetByID missing = %v", err)
	}
	if _, err := db.Users().GetByEmail(ctx, "nope@example.com"); !errors.Is(err, kimlik.ErrNotFound) {
		t.Errorf("GetByEmail missing = %v", err)
	}
	if _, err := db.Users().GetByVerificationHash(ctx, ""); !errors.Is(err, kimlik.ErrNotFound) {
		t.Errorf("GetByVerificationHash empty = %v", err)
	}
	if err := db.Users().MarkEmailVerified(ctx, "nope"); !errors.Is(err, kimlik.ErrNotFound) {
		t.Errorf("MarkEmailVerified missing = %v", err)
	}
	if _, _, err := db.Users().RecordLoginFailure(ctx, "nope", 5, time.Minute); !errors.Is(err, kimlik.ErrNotFound) {
		t.Errorf("RecordLoginFailure missing = %v", err)
	}
}

func TestUserStoreUpdates(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "update@example.com")

	newExpiry := time.Now().Add(48 * time.Hour).UTC()
	if err := db.Users().SetVerificationToken(ctx, u.ID, "fresh-hash", newExpiry); err != nil {
		t.Fatalf("SetVerificationToken: %v", err)
	}
	if err := db.Users().MarkEmailVerified(ctx, u.ID); err != nil {
		t.Fatalf("MarkEmailVerified: %v", err)
	}
	if err := db.Users().UpdatePasswordHash(ctx, u.ID, "$argon2id$new"); err != nil {
		t.Fatalf("UpdatePasswordHash: %v", err)
	}
	loginAt := time.Now().UTC()
	if err := db.Users().UpdateLastLogin(ctx, u.ID, loginAt); err != nil {
		t.Fatalf("UpdateLastLogin: %v", err)
	}

	got, err := db.Users().GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.VerificationHash != "fresh-hash" || got.VerificationExpires.Unix() != newExpiry.Unix() {
		t.Errorf("verification token not updated: %+v", got)
	}
	if !got.EmailVerified {
		t.Error("EmailVerified not set")
	}
	if got.PasswordHash != "$argon2id$new" {
		t.Errorf("PasswordHash = %q", got.PasswordHash)
	}
	if got.LastLoginAt == nil || got.LastLoginAt.Unix() != loginAt.Unix() {
		t.Errorf("LastLoginAt = %v, want %v", got.LastLoginAt, loginAt)
	}
}

func TestRecordLoginFailureLocksAtThreshold(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "lockout@example.com")

	const maxAttempts = 5
	for i := 1; i < maxAttempts; i++ {
		attempts, lockedUntil, err := db.Users().RecordLoginFailure(ctx, u.ID, maxAttempts, 30*time.Minute)
		if err != nil {
			t.Fatalf("RecordLoginFailure %d: %v", i, err)
		}
		if attempts != i {
			t.Fatalf("attempts = %d, want %d", attempts, i)
		}
		if lockedUntil != nil {
			t.Fatalf("locked after %d attempts", i)
		}
	}

	attempts, lockedUntil, err := db.Users().RecordLoginFailure(ctx, u.ID, maxAttempts, 30*time.Minute)
	if err != nil {
		t.Fatalf("RecordLoginFailure final: %v", err)
	}
	if attempts != maxAttempts {
		t.Errorf("attempts = %d, want %d", attempts, maxAttempts)
	}
	if lockedUntil == nil {
		t.Fatal("expected lock deadline at threshold")
	}
	if remaining := time.Until(*lockedUntil); remaining < 29*time.Minute || remaining > 31*time.Minute {
		t.Errorf("lock deadline %v away, want about 30m", remaining)
	}

	if err := db.Users().ResetLoginFailures(ctx, u.ID); err != nil {
		t.Fatalf("ResetLoginFailures: %v", err)
	}
	got, err := db.Users().GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.FailedLoginAttempts != 0 || got.LockedUntil != nil {
		t.Errorf("lockout not cleared: attempts=%d locked=%v", got.FailedLoginAttempts, got.LockedUntil)
	}
}

func TestSessionStoreRevokeAllForUser(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "sessions@example.com")

	now := time.Now().UTC()
	for i := 0; i < 2; i++ {
		s := &kimlik.Session{
			ID:               uuid.NewString(),
			UserID:           u.ID,
			RefreshTokenHash: "rth-" + uuid.NewString(),
			AccessJTI:        uuid.NewString(),
			IP:               "203.0.113.7",
			UserAgent:        "test-agent",
			ExpiresAt:        now.Add(30 * 24 * time.Hour),
			CreatedAt:        now,
		}
		if err := db.Sessions().Create(ctx, s); err != nil {
			t.Fatalf("Create session: %v", err)
		}
		if i == 0 {
			got, err := db.Sessions().GetByTokenHash(ctx, s.RefreshTokenHash)
			if err != nil || got.ID != s.ID || got.Revoked {
				t.Fatalf("GetByTokenHash = %+v, %v", got, err)
			}
		}
	}

	revoked, err := db.Sessions().RevokeAllForUser(ctx, u.ID, now)
	if err != nil {
		t.Fatalf("RevokeAllForUser: %v", err)
	}
	if len(revoked) != 2 {
		t.Fatalf("revoked %d sessions, want 2", len(revoked))
	}
	for _, s := range revoked {
		if !s.Revoked || s.RevokedAt == nil || s.AccessJTI == "" {
			t.Errorf("revoked row incomplete: %+v", s)
		}
		got, err := db.Sessions().GetByTokenHash(ctx, s.RefreshTokenHash)
		if err != nil {
			t.Fatalf("GetByTokenHash after revoke: %v", err)
		}
		if !got.Revoked {
			t.Error("session not marked revoked")
		}
	}

	again, err := db.Sessions().RevokeAllForUser(ctx, u.ID, now)
	if err != nil {
		t.Fatalf("second RevokeAllForUser: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second sweep revoked %d sessions, want 0", len(again))
	}

	if _, err := db.Sessions().GetByTokenHash(ctx, "missing"); !errors.Is(err, kimlik.ErrNotFound) {
		t.Errorf("GetByTokenHash missing = %v", err)
	}
}

func TestResetTokenStoreLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "reset@example.com")

	now := time.Now().UTC()
	tok := &kimlik.ResetToken{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		TokenHash: "th-" + uuid.NewString(),
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}
	if err := db.ResetTokens().Create(ctx, tok); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := db.ResetTokens().GetByTokenHash(ctx, tok.TokenHash)
	if err != nil || got.ID != tok.ID || got.Used {
		t.Fatalf("GetByTokenHash = %+v, %v", got, err)
	}

	if err := db.ResetTokens().MarkUsed(ctx, tok.ID, now); err != nil {
		t.Fatalf("MarkUsed: %v", err)
	}
	got, err = db.ResetTokens().GetByTokenHash(ctx, tok.TokenHash)
	if err != nil {
		t.Fatalf("GetByTokenHash after MarkUsed: %v", err)
	}
	if !got.Used || got.UsedAt == nil {
		t.Errorf("token not marked used: %+v", got)
	}
	if err := db.ResetTokens().MarkUsed(ctx, tok.ID, now); !errors.Is(err, kimlik.ErrNotFound) {
		t.Errorf("second MarkUsed = %v, want ErrNotFound", err)
	}
}

func TestResetTokenStoreDeleteUnusedForUser(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "replace@example.com")

	now := time.Now().UTC()
	unused := &kimlik.ResetToken{
		ID: uuid.NewString(), UserID: u.ID, TokenHash: "th-unused",
		ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	}
	used := &kimlik.ResetToken{
		ID: uuid.NewString(), UserID: u.ID, TokenHash: "th-used",
		ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	}
	for _, tok := range []*kimlik.ResetToken{unused, used} {
		if err := db.ResetTokens().Create(ctx, tok); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if err := db.ResetTokens().MarkUsed(ctx, used.ID, now); err != nil {
		t.Fatalf("MarkUsed: %v", err)
	}

	if err := db.ResetTokens().DeleteUnusedForUser(ctx, u.ID); err != nil {
		t.Fatalf("DeleteUnusedForUser: %v", err)
	}
	if _, err := db.ResetTokens().GetByTokenHash(ctx, "th-unused"); !errors.Is(err, kimlik.ErrNotFound) {
		t.Errorf("unused token survived: %v", err)
	}
	if _, err := db.ResetTokens().GetByTokenHash(ctx, "th-used"); err != nil {
		t.Errorf("used token should stay for the audit trail: %v", err)
	}
}

func TestResetTokenStoreDeleteExpired(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "expired@example.com")

	now := time.Now().UTC()
	stale := &kimlik.ResetToken{
		ID: uuid.NewString(), UserID: u.ID, TokenHash: "th-stale",
		ExpiresAt: now.Add(-time.Hour), CreatedAt: now.Add(-2 * time.Hour),
	}
	live := &kimlik.ResetToken{
		ID: uuid.NewString(), UserID: u.ID, TokenHash: "th-live",
		ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	}
	for _, tok := range []*kimlik.ResetToken{stale, live} {
		if err := db.ResetTokens().Create(ctx, tok); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	n, err := db.ResetTokens().DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteExpired removed %d rows, want 1", n)
	}
	if _, err := db.ResetTokens().GetByTokenHash(ctx, "th-live"); err != nil {
		t.Errorf("live token removed: %v", err)
	}
}
