package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kpanalytix/kpa-assistant/internal"
	"github.com/kpanalytix/kpa-assistant/internal/config"
	"github.com/kpanalytix/kpa-assistant/internal/faq"
	"github.com/kpanalytix/kpa-assistant/internal/i18n"
)

const DefaultSessionTTL = 30 * time.Minute

// Manager keeps the live sessions of the process, in memory only.
type Manager struct {
	opts Options
	ttl  time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(opts Options, ttl time.Duration) (*Manager, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Manager{opts: opts, ttl: ttl, sessions: make(map[string]*Session)}, nil
}

func (m *Manager) Mode() config.Mode { return m.opts.Mode }

// Model names the hosted model, or "faq" in local mode.
func (m *Manager) Model() string {
	if m.opts.Mode == config.ModeRemote && m.opts.Remote != nil {
		return m.opts.Remote.Model()
	}
	return "faq"
}

// Local exposes the shared FAQ resolver for stateless lookups.
func (m *Manager) Local() *faq.Resolver { return m.opts.Local }

func (m *Manager) Translator() i18n.Translator { return m.opts.Translator }

// Create starts a new session in lang.
func (m *Manager) Create(lang internal.Lang) (*Session, error) {
	opts := m.opts
	if lang != "" {
		opts.Lang = lang
	}
	s, err := NewSession(uuid.NewString(), opts)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	m.opts.Logger.Debug("session created", zap.String("session", s.ID()), zap.String("lang", string(opts.Lang)))
	return s, nil
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	return ok
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep drops sessions idle for longer than the TTL. Sessions with a reply
// in flight are kept.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.State() == StateAwaitingReply {
			continue
		}
		if now.Sub(s.LastActive()) > m.ttl {
			delete(m.sessions, id)
			n++
		}
	}
	if n > 0 {
		m.opts.Logger.Info("expired sessions", zap.Int("count", n), zap.Int("live", len(m.sessions)))
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			m.Sweep(now)
		}
	}
}
