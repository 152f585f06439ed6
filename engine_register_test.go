package kimlik

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRegisterHappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pub, err := env.engine.Register(ctx, RegisterInput{
		Email:               "Ayse@Example.com",
		Password:            "correct-horse",
		FirstName:           "Ayşe",
		LastName:            "Yılmaz",
		TermsAccepted:       true,
		KVKKConsentAccepted: true,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if pub.Email != "ayse@example.com" {
		t.Errorf("email not normalized: %q", pub.Email)
	}
	if pub.EmailVerified {
		t.Error("new account must start unverified")
	}

	stored, err := env.users.GetByID(ctx, pub.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.PasswordHash == "correct-horse" || !strings.HasPrefix(stored.PasswordHash, "$argon2id$") {
		t.Errorf("password not hashed: %q", stored.PasswordHash)
	}
	if stored.VerificationHash == "" {
		t.Error("verification hash missing")
	}

	mails := env.notifier.waitFor(t, "verification", 1)
	if !strings.Contains(mails[0].link, "/verify-email?token=") {
		t.Errorf("bad verification link: %q", mails[0].link)
	}
	if strings.Contains(mails[0].link, stored.VerificationHash) {
		t.Error("mail link carries the stored digest instead of the raw token")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "dup@example.com", "correct-horse")

	_, err := env.engine.Register(context.Background(), RegisterInput{
		Email:               "DUP@example.com",
		Password:            "another-pass",
		TermsAccepted:       true,
		KVKKConsentAccepted: true,
	})
	if !errors.Is(err, ErrEmailExists) {
		t.Fatalf("duplicate Register = %v, want ErrEmailExists", err)
	}
	if !strings.Contains(err.Error(), "zaten kayıtlı") {
		t.Errorf("duplicate message = %q", err.Error())
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   RegisterInput
		want error
	}{
		{
			name: "bad email",
			in:   RegisterInput{Email: "not-an-email", Password: "correct-horse", TermsAccepted: true, KVKKConsentAccepted: true},
			want: ErrValidation,
		},
		{
			name: "short password",
			in:   RegisterInput{Email: "a@example.com", Password: "short", TermsAccepted: true, KVKKConsentAccepted: true},
			want: ErrPasswordPolicy,
		},
		{
			name: "terms not accepted",
			in:   RegisterInput{Email: "a@example.com", Password: "correct-horse", KVKKConsentAccepted: true},
			want: ErrValidation,
		},
		{
			name: "kvkk not accepted",
			in:   RegisterInput{Email: "a@example.com", Password: "correct-horse", TermsAccepted: true},
			want: ErrValidation,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.engine.Register(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Errorf("Register = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestVerifyEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pub, err := env.engine.Register(ctx, RegisterInput{
		Email: "verify@example.com", Password: "correct-horse",
		TermsAccepted: true, KVKKConsentAccepted: true,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	rawToken := env.notifier.waitFor(t, "verification", 1)[0].token

	verified, err := env.engine.VerifyEmail(ctx, rawToken)
	if err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	if verified.Email != "verify@example.com" || !verified.EmailVerified {
		t.Errorf("verified projection = %+v", verified)
	}
	stored, _ := env.users.GetByID(ctx, pub.ID)
	if !stored.EmailVerified {
		t.Error("account not verified")
	}

	// Double-clicked link: second verification is a no-op success.
	if _, err := env.engine.VerifyEmail(ctx, rawToken); err != nil {
		t.Errorf("second VerifyEmail = %v, want nil", err)
	}

	if _, err := env.engine.VerifyEmail(ctx, "bogus-token"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("bogus VerifyEmail = %v, want ErrTokenInvalid", err)
	}
	if _, err := env.engine.VerifyEmail(ctx, ""); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("empty VerifyEmail = %v, want ErrTokenInvalid", err)
	}
}

func TestVerifyEmailExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pub, err := env.engine.Register(ctx, RegisterInput{
		Email: "expired@example.com", Password: "correct-horse",
		TermsAccepted: true, KVKKConsentAccepted: true,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	rawToken := env.notifier.waitFor(t, "verification", 1)[0].token

	env.users.mutate(pub.ID, func(u *User) {
		u.VerificationExpires = time.Now().Add(-time.Minute)
	})

	if _, err := env.engine.VerifyEmail(ctx, rawToken); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expired VerifyEmail = %v, want ErrTokenExpired", err)
	}
}

func TestResendVerification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pub, err := env.engine.Register(ctx, RegisterInput{
		Email: "resend@example.com", Password: "correct-horse",
		TermsAccepted: true, KVKKConsentAccepted: true,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	before, _ := env.users.GetByID(ctx, pub.ID)

	if err := env.engine.ResendVerification(ctx, "resend@example.com"); err != nil {
		t.Fatalf("ResendVerification: %v", err)
	}
	after, _ := env.users.GetByID(ctx, pub.ID)
	if after.VerificationHash == before.VerificationHash {
		t.Error("resend must rotate the verification token")
	}

	if err := env.engine.ResendVerification(ctx, "unknown@example.com"); !errors.Is(err, ErrEmailNotFound) {
		t.Errorf("unknown email = %v, want ErrEmailNotFound", err)
	}

	env.users.mutate(pub.ID, func(u *User) { u.EmailVerified = true })
	if err := env.engine.ResendVerification(ctx, "resend@example.com"); !errors.Is(err, ErrAlreadyVerified) {
		t.Errorf("verified account = %v, want ErrAlreadyVerified", err)
	}

	env.notifier.waitFor(t, "verification", 2)
}

func TestEngineRejectsAfterClose(t *testing.T) {
	env := newTestEnv(t)
	env.engine.Close()

	if _, err := env.engine.Register(context.Background(), RegisterInput{}); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("Register after Close = %v, want ErrEngineClosed", err)
	}
	if _, err := env.engine.Login(context.Background(), "a@b.c", "pass"); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("Login after Close = %v, want ErrEngineClosed", err)
	}
}
