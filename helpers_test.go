package kimlik

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

/*
====================================
MOCK STORES
====================================
*/

type mockUserStore struct {
	mu    sync.Mutex
	users map[string]*User // keyed by ID
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{users: make(map[string]*User)}
}

func (m *mockUserStore) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return ErrEmailExists
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockUserStore) GetByID(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserStore) GetByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockUserStore) GetByVerificationHash(_ context.Context, hash string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hash == "" {
		return nil, ErrNotFound
	}
	for _, u := range m.users {
		if u.VerificationHash == hash {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockUserStore) SetVerificationToken(_ context.Context, id, hash string, expires time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.VerificationHash = hash
	u.VerificationExpires = expires
	return nil
}

func (m *mockUserStore) MarkEmailVerified(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.EmailVerified = true
	return nil
}

func (m *mockUserStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *mockUserStore) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.LastLoginAt = &at
	return nil
}

func (m *mockUserStore) RecordLoginFailure(_ context.Context, id string, maxAttempts int, lockFor time.Duration) (int, *time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return 0, nil, ErrNotFound
	}
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= maxAttempts {
		deadline := time.Now().Add(lockFor)
		u.LockedUntil = &deadline
	}
	if u.LockedUntil == nil {
		return u.FailedLoginAttempts, nil, nil
	}
	cp := *u.LockedUntil
	return u.FailedLoginAttempts, &cp, nil
}

func (m *mockUserStore) ResetLoginFailures(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	return nil
}

// mutate edits a stored user in place, for test setup.
func (m *mockUserStore) mutate(id string, fn func(*User)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		fn(u)
	}
}

type mockSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session // keyed by refresh token hash
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{sessions: make(map[string]*Session)}
}

func (m *mockSessionStore) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.RefreshTokenHash] = &cp
	return nil
}

func (m *mockSessionStore) GetByTokenHash(_ context.Context, hash string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[hash]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockSessionStore) RevokeAllForUser(_ context.Context, userID string, at time.Time) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var revoked []Session
	for _, s := range m.sessions {
		if s.UserID == userID && !s.Revoked {
			s.Revoked = true
			revokedAt := at
			s.RevokedAt = &revokedAt
			revoked = append(revoked, *s)
		}
	}
	return revoked, nil
}

func (m *mockSessionStore) liveCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.UserID == userID && !s.Revoked {
			n++
		}
	}
	return n
}

type mockResetStore struct {
	mu     sync.Mutex
	tokens map[string]*ResetToken // keyed by ID
}

func newMockResetStore() *mockResetStore {
	return &mockResetStore{tokens: make(map[string]*ResetToken)}
}

func (m *mockResetStore) Create(_ context.Context, t *ResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tokens[t.ID] = &cp
	return nil
}

func (m *mockResetStore) GetByTokenHash(_ context.Context, hash string) (*ResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.TokenHash == hash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockResetStore) MarkUsed(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok || t.Used {
		return ErrNotFound
	}
	t.Used = true
	usedAt := at
	t.UsedAt = &usedAt
	return nil
}

func (m *mockResetStore) DeleteUnusedForUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.tokens {
		if t.UserID == userID && !t.Used {
			delete(m.tokens, id)
		}
	}
	return nil
}

func (m *mockResetStore) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, t := range m.tokens {
		if t.ExpiresAt.Before(before) {
			delete(m.tokens, id)
			n++
		}
	}
	return n, nil
}

func (m *mockResetStore) mutate(id string, fn func(*ResetToken)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[id]; ok {
		fn(t)
	}
}

func (m *mockResetStore) all() []ResetToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ResetToken, 0, len(m.tokens))
	for _, t := range m.tokens {
		out = append(out, *t)
	}
	return out
}

/*
====================================
MOCK NOTIFIER / VERIFIER
====================================
*/

type mailRecord struct {
	kind        string // "verification", "reset", "reset_success"
	email       string
	displayName string
	token       string
	link        string
}

// mockNotifier records outbound mail. Engine.Close waits for in-flight
// sends, so tests call Close before asserting.
type mockNotifier struct {
	mu   sync.Mutex
	sent []mailRecord
	fail error
}

func (m *mockNotifier) SendVerificationEmail(_ context.Context, email, displayName, code, link string) error {
	return m.record(mailRecord{kind: "verification", email: email, displayName: displayName, token: code, link: link})
}

func (m *mockNotifier) SendPasswordResetEmail(_ context.Context, email, displayName, link string) error {
	return m.record(mailRecord{kind: "reset", email: email, displayName: displayName, link: link})
}

func (m *mockNotifier) SendPasswordResetSuccessEmail(_ context.Context, email, displayName string) error {
	return m.record(mailRecord{kind: "reset_success", email: email, displayName: displayName})
}

func (m *mockNotifier) record(r mailRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, r)
	return nil
}

// waitFor polls until n mails of the kind arrived. Sends run on engine
// goroutines, so assertions poll instead of closing the engine.
func (m *mockNotifier) waitFor(t *testing.T, kind string, n int) []mailRecord {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if records := m.byKind(kind); len(records) >= n {
			return records
		}
		time.Sleep(5 * time.Millisecond)
	}
	records := m.byKind(kind)
	t.Fatalf("%s mails = %d, want %d", kind, len(records), n)
	return nil
}

func (m *mockNotifier) byKind(kind string) []mailRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mailRecord
	for _, r := range m.sent {
		if r.kind == kind {
			out = append(out, r)
		}
	}
	return out
}

// mockVerifier accepts one code per user.
type mockVerifier struct {
	codes map[string]string // userID -> accepted code
}

func (m *mockVerifier) Verify(_ context.Context, userID, code string) (bool, error) {
	return m.codes[userID] == code, nil
}

/*
====================================
TEST ENGINE
====================================
*/

type testEnv struct {
	engine   *Engine
	users    *mockUserStore
	sessions *mockSessionStore
	resets   *mockResetStore
	notifier *mockNotifier
	verifier *mockVerifier
	redis    *miniredis.Miniredis
}

func testConfig(t *testing.T) Config {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	cfg := defaultConfig()
	cfg.JWT.PrivateKey = priv
	// Low Argon2 cost keeps the suite fast; parameters stay above the
	// hasher's floor.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.KeyLength = 16
	cfg.Links.BaseURL = "https://app.example.com"
	return cfg
}

func newTestEnv(t *testing.T, mutators ...func(*Config)) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testConfig(t)
	for _, fn := range mutators {
		fn(&cfg)
	}

	env := &testEnv{
		users:    newMockUserStore(),
		sessions: newMockSessionStore(),
		resets:   newMockResetStore(),
		notifier: &mockNotifier{},
		verifier: &mockVerifier{codes: make(map[string]string)},
		redis:    mr,
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithStores(env.users, env.sessions, env.resets).
		WithNotifier(env.notifier).
		WithTwoFactorVerifier(env.verifier).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	env.engine = engine
	return env
}

// register creates a verified account ready to log in.
func (env *testEnv) register(t *testing.T, email, pass string) *PublicUser {
	t.Helper()
	pub, err := env.engine.Register(context.Background(), RegisterInput{
		Email:               email,
		Password:            pass,
		FirstName:           "Test",
		LastName:            "User",
		TermsAccepted:       true,
		KVKKConsentAccepted: true,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	env.users.mutate(pub.ID, func(u *User) { u.EmailVerified = true })
	return pub
}

func (env *testEnv) login(t *testing.T, email, pass string) *LoginResult {
	t.Helper()
	res, err := env.engine.Login(context.Background(), email, pass)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return res
}
