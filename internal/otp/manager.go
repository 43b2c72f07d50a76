// Package otp owns phone verification: the provider client, the per-conversation
// lifecycle manager and an HTTP proxy for widgets that call the provider directly.
package otp

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/listing-lead-assistant/internal/observability/metrics"
	"github.com/wolfman30/listing-lead-assistant/pkg/logging"
)

// BypassCode is the code recorded when verification is bypassed.
const BypassCode = "1234"

// State of a verification session.
type State int

const (
	StateIdle State = iota
	StateSent
	StateVerified
)

func (s State) String() string {
	switch s {
	case StateSent:
		return "sent"
	case StateVerified:
		return "verified"
	default:
		return "idle"
	}
}

// Settings bound a verification session.
type Settings struct {
	MaxAttempts int
	Validity    time.Duration
	Cooldown    time.Duration
	// Bypass skips the provider entirely. Test and demo deployments only.
	Bypass bool
}

// DefaultSettings mirrors the provider's limits.
func DefaultSettings() Settings {
	return Settings{MaxAttempts: 3, Validity: 5 * time.Minute, Cooldown: 30 * time.Second}
}

// Status is a point-in-time view of the session for the presentation layer.
type Status struct {
	State             State
	Phone             string
	AttemptsUsed      int
	AttemptsRemaining int
	ExpiresAt         time.Time
	ResendAvailableAt time.Time
}

// Manager tracks one in-flight phone verification. It is safe for concurrent
// use; the lock is never held across provider calls.
type Manager struct {
	provider Provider
	settings Settings
	now      func() time.Time
	logger   *logging.Logger
	metrics  *metrics.FunnelMetrics

	mu             sync.Mutex
	generation     uint64
	state          State
	phone          string
	sentAt         time.Time
	lastSentAt     time.Time
	attempts       int
	verifiedUserID string
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics records OTP outcomes.
func WithMetrics(fm *metrics.FunnelMetrics) ManagerOption {
	return func(m *Manager) { m.metrics = fm }
}

// NewManager creates an idle manager.
func NewManager(provider Provider, settings Settings, opts ...ManagerOption) *Manager {
	defaults := DefaultSettings()
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = defaults.MaxAttempts
	}
	if settings.Validity <= 0 {
		settings.Validity = defaults.Validity
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = defaults.Cooldown
	}
	m := &Manager{provider: provider, settings: settings, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.OrDefault(m.logger)
	return m
}

// Bypass reports whether verification is short-circuited.
func (m *Manager) Bypass() bool { return m.settings.Bypass }

// Send delivers a code to phone and opens a new session. On failure the
// manager is left as it was.
func (m *Manager) Send(ctx context.Context, phone string) error {
	return m.send(ctx, phone, "send")
}

// Resend sends a fresh code once the cooldown since the last send has
// elapsed. Validity and cooldown windows restart on success; a failed resend
// keeps the previous session usable.
func (m *Manager) Resend(ctx context.Context, phone string) error {
	m.mu.Lock()
	if !m.lastSentAt.IsZero() {
		if wait := m.settings.Cooldown - m.now().Sub(m.lastSentAt); wait > 0 {
			m.mu.Unlock()
			m.metrics.ObserveOTP("resend", "cooldown")
			return cooldown(wait)
		}
	}
	m.mu.Unlock()
	return m.send(ctx, phone, "resend")
}

func (m *Manager) send(ctx context.Context, phone, action string) error {
	m.mu.Lock()
	gen := m.generation
	m.mu.Unlock()

	var err error
	if !m.settings.Bypass {
		err = m.provider.Send(ctx, phone)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen {
		return ErrStale
	}
	if err != nil {
		m.logger.Warn("otp send failed", "action", action, "error", err)
		m.metrics.ObserveOTP(action, "failed")
		return sendFailed(err)
	}
	now := m.now()
	m.generation++
	m.state = StateSent
	m.phone = phone
	m.sentAt = now
	m.lastSentAt = now
	m.attempts = 0
	m.verifiedUserID = ""
	m.metrics.ObserveOTP(action, "sent")
	return nil
}

// Verify checks code for phone. Limits are enforced locally before the
// provider is contacted; each call that reaches the provider consumes an
// attempt. Calling Verify after success returns the verified user id again.
func (m *Manager) Verify(ctx context.Context, phone, code string) (string, error) {
	m.mu.Lock()
	if m.state == StateVerified {
		id := m.verifiedUserID
		m.mu.Unlock()
		return id, nil
	}
	if m.settings.Bypass {
		m.state = StateVerified
		m.phone = phone
		m.verifiedUserID = phone
		m.mu.Unlock()
		m.metrics.ObserveOTP("verify", "bypassed")
		return phone, nil
	}
	if m.state != StateSent || m.phone != phone {
		m.mu.Unlock()
		return "", notSent()
	}
	if m.attempts >= m.settings.MaxAttempts {
		m.mu.Unlock()
		m.metrics.ObserveOTP("verify", "attempts_exceeded")
		return "", attemptsExceeded()
	}
	if m.now().Sub(m.sentAt) > m.settings.Validity {
		m.mu.Unlock()
		m.metrics.ObserveOTP("verify", "expired")
		return "", expired()
	}
	m.attempts++
	remaining := m.settings.MaxAttempts - m.attempts
	gen := m.generation
	m.mu.Unlock()

	result, err := m.provider.Verify(ctx, phone, code)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen {
		return "", ErrStale
	}
	if err != nil {
		m.logger.Warn("otp verify failed", "error", err)
		m.metrics.ObserveOTP("verify", "error")
		return "", invalidCode(remaining, err)
	}
	switch result.Status {
	case VerifyConfirmed:
		m.state = StateVerified
		m.verifiedUserID = result.UserID
		if m.verifiedUserID == "" {
			m.verifiedUserID = phone
		}
		m.metrics.ObserveOTP("verify", "verified")
		return m.verifiedUserID, nil
	case VerifyInvalid:
		m.metrics.ObserveOTP("verify", "invalid")
		return "", invalidCode(remaining, nil)
	default:
		m.logger.Warn("otp verify unexpected response", "status", result.StatusCode, "message", result.Message)
		m.metrics.ObserveOTP("verify", "unexpected")
		return "", invalidCode(remaining, errors.New("unexpected provider response"))
	}
}

// Reset abandons the session. Results of calls still in flight are discarded.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	m.state = StateIdle
	m.phone = ""
	m.sentAt = time.Time{}
	m.lastSentAt = time.Time{}
	m.attempts = 0
	m.verifiedUserID = ""
}

// Status returns a snapshot of the session.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{
		State:             m.state,
		Phone:             m.phone,
		AttemptsUsed:      m.attempts,
		AttemptsRemaining: max(m.settings.MaxAttempts-m.attempts, 0),
	}
	if !m.sentAt.IsZero() {
		st.ExpiresAt = m.sentAt.Add(m.settings.Validity)
	}
	if !m.lastSentAt.IsZero() {
		st.ResendAvailableAt = m.lastSentAt.Add(m.settings.Cooldown)
	}
	return st
}
