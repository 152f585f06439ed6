package kimlik

import "sync/atomic"

// MetricID indexes one engine counter.
type MetricID uint16

const (
	MetricRegisterSuccess MetricID = iota
	MetricRegisterDuplicate
	MetricVerifySuccess
	MetricVerifyFailure
	MetricLoginSuccess
	MetricLoginFailure
	MetricLoginLocked
	MetricLoginChallenge
	MetricTwoFactorSuccess
	MetricTwoFactorFailure
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricLogout
	MetricPasswordResetRequest
	MetricPasswordResetConfirmSuccess
	MetricPasswordResetConfirmFailure
	MetricRateLimitHit
	MetricSessionCreated
	MetricSessionRevoked
	metricIDCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters. A disabled Metrics is a nil
// receiver; every method tolerates that.
type Metrics struct {
	counters [metricIDCount]paddedCounter
}

// NewMetrics returns nil when disabled so call sites stay branch-free.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return nil
	}
	return &Metrics{}
}

// Inc bumps one counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	RegisterSuccess             uint64 `json:"register_success"`
	RegisterDuplicate           uint64 `json:"register_duplicate"`
	VerifySuccess               uint64 `json:"verify_success"`
	VerifyFailure               uint64 `json:"verify_failure"`
	LoginSuccess                uint64 `json:"login_success"`
	LoginFailure                uint64 `json:"login_failure"`
	LoginLocked                 uint64 `json:"login_locked"`
	LoginChallenge              uint64 `json:"login_challenge"`
	TwoFactorSuccess            uint64 `json:"two_factor_success"`
	TwoFactorFailure            uint64 `json:"two_factor_failure"`
	RefreshSuccess              uint64 `json:"refresh_success"`
	RefreshFailure              uint64 `json:"refresh_failure"`
	Logout                      uint64 `json:"logout"`
	PasswordResetRequest        uint64 `json:"password_reset_request"`
	PasswordResetConfirmSuccess uint64 `json:"password_reset_confirm_success"`
	PasswordResetConfirmFailure uint64 `json:"password_reset_confirm_failure"`
	RateLimitHit                uint64 `json:"rate_limit_hit"`
	SessionCreated              uint64 `json:"session_created"`
	SessionRevoked              uint64 `json:"session_revoked"`
	AuditDropped                uint64 `json:"audit_dropped"`
}

func (m *Metrics) load(id MetricID) uint64 {
	if m == nil {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters. Safe to call concurrently with Inc.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		RegisterSuccess:             m.load(MetricRegisterSuccess),
		RegisterDuplicate:           m.load(MetricRegisterDuplicate),
		VerifySuccess:               m.load(MetricVerifySuccess),
		VerifyFailure:               m.load(MetricVerifyFailure),
		LoginSuccess:                m.load(MetricLoginSuccess),
		LoginFailure:                m.load(MetricLoginFailure),
		LoginLocked:                 m.load(MetricLoginLocked),
		LoginChallenge:              m.load(MetricLoginChallenge),
		TwoFactorSuccess:            m.load(MetricTwoFactorSuccess),
		TwoFactorFailure:            m.load(MetricTwoFactorFailure),
		RefreshSuccess:              m.load(MetricRefreshSuccess),
		RefreshFailure:              m.load(MetricRefreshFailure),
		Logout:                      m.load(MetricLogout),
		PasswordResetRequest:        m.load(MetricPasswordResetRequest),
		PasswordResetConfirmSuccess: m.load(MetricPasswordResetConfirmSuccess),
		PasswordResetConfirmFailure: m.load(MetricPasswordResetConfirmFailure),
		RateLimitHit:                m.load(MetricRateLimitHit),
		SessionCreated:              m.load(MetricSessionCreated),
		SessionRevoked:              m.load(MetricSessionRevoked),
	}
}
