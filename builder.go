package kimlik

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/kimlik-auth/kimlik/internal/blacklist"
	"github.com/kimlik-auth/kimlik/internal/rate"
	"github.com/kimlik-auth/kimlik/password"
	"github.com/kimlik-auth/kimlik/token"
)

// Builder assembles an [Engine]. One Builder builds one Engine.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users    UserStore
	sessions SessionStore
	resets   ResetTokenStore

	notifier  Notifier
	twoFactor TwoFactorVerifier
	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with production defaults. Callers must still
// supply signing keys, a Redis client and the three stores.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the default configuration wholesale.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the Redis client backing rate limits, the token
// blacklist and 2FA challenges.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStores supplies the durable ledgers.
func (b *Builder) WithStores(users UserStore, sessions SessionStore, resets ResetTokenStore) *Builder {
	b.users = users
	b.sessions = sessions
	b.resets = resets
	return b
}

// WithNotifier supplies the transactional mail sender. A nil notifier is
// allowed; verification and reset mails are then silently skipped, which
// suits tests and air-gapped deployments.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithTwoFactorVerifier enables the 2FA login challenge for users with a
// second factor enrolled.
func (b *Builder) WithTwoFactorVerifier(v TwoFactorVerifier) *Builder {
	b.twoFactor = v
	return b
}

// WithAuditSink supplies the audit event consumer.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.users == nil || b.sessions == nil || b.resets == nil {
		return nil, errors.New("user, session and reset token stores required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engine := &Engine{
		config:    cfg,
		users:     b.users,
		sessions:  b.sessions,
		resets:    b.resets,
		notifier:  b.notifier,
		twoFactor: b.twoFactor,
	}

	engine.rateLimiter = rate.New(b.redis, cfg.RateLimit.RedisPrefix, cfg.RateLimit.TrustedIPs)
	engine.blacklist = blacklist.New(b.redis, "")
	engine.challenges = newChallengeStore(b.redis, cfg.TwoFactor.RedisPrefix)
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	decoy, err := ph.Hash("kimlik-decoy-credential")
	if err != nil {
		return nil, err
	}
	engine.decoyHash = decoy

	tm, err := token.NewManager(token.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: token.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}
	engine.tokens = tm

	b.built = true

	return engine, nil
}
