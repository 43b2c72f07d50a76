package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/listing-lead-assistant/internal/observability/metrics"
	"github.com/wolfman30/listing-lead-assistant/pkg/logging"
)

const defaultSessionTTL = 30 * time.Minute

// Components build sessions that share a directory, gateway and assistant.
// NewVerifier is called once per session because OTP state is per conversation.
type Components struct {
	Directory   Directory
	NewVerifier func() Verifier
	Gateway     Submitter
	Assistant   Assistant
	Settings    Settings
	Logger      *logging.Logger
	Metrics     *metrics.FunnelMetrics
}

// NewSession builds an unstarted session bound to shell.
func (c Components) NewSession(id string, shell Shell) *Session {
	return NewSession(id, Deps{
		Shell:     shell,
		Directory: c.Directory,
		OTP:       c.NewVerifier(),
		Gateway:   c.Gateway,
		Assistant: c.Assistant,
		Logger:    c.Logger,
		Metrics:   c.Metrics,
	}, c.Settings)
}

// Factory builds a session for id.
type Factory func(id string, shell Shell) *Session

// Registry tracks live sessions by id and expires idle ones.
type Registry struct {
	newSession Factory
	ttl        time.Duration
	logger     *logging.Logger
	metrics    *metrics.FunnelMetrics
	now        func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry builds sessions with factory. Sessions idle longer than ttl
// are closed by Sweep. A non-positive ttl uses the default.
func NewRegistry(factory Factory, ttl time.Duration, logger *logging.Logger, m *metrics.FunnelMetrics) *Registry {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Registry{
		newSession: factory,
		ttl:        ttl,
		logger:     logging.OrDefault(logger),
		metrics:    m,
		now:        time.Now,
		sessions:   make(map[string]*Session),
	}
}

// Create registers a new session. The caller starts it.
func (r *Registry) Create(shell Shell) *Session {
	s := r.newSession(uuid.NewString(), shell)
	r.mu.Lock()
	r.sessions[s.ID()] = s
	n := len(r.sessions)
	r.mu.Unlock()
	r.metrics.SetActiveSessions(n)
	return s
}

// Get returns ErrSessionNotFound for unknown or swept ids.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Remove closes and forgets the session.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()
	if ok {
		s.Close()
	}
	r.metrics.SetActiveSessions(n)
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep closes sessions idle for longer than the TTL and returns how many.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)
	var expired []*Session

	r.mu.Lock()
	for id, s := range r.sessions {
		if s.LastActive().Before(cutoff) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	r.metrics.SetActiveSessions(n)
	if len(expired) > 0 {
		r.logger.Debug("expired idle sessions", "count", len(expired), "active", n)
	}
	return len(expired)
}

// Run sweeps on every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep()
		}
	}
}
