package challenge

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/crawlify/crawlify/internal/dip"
	"github.com/crawlify/crawlify/internal/metrics"
)

// State is the lifecycle state of the challenge cookie.
type State string

// Cookie lifecycle states.
const (
	StateNoCookie      State = "no_cookie"
	StateCookieValid   State = "cookie_valid"
	StateCookieExpired State = "cookie_expired"
	StateSolving       State = "solving"
	StateSolveFailed   State = "solve_failed"
)

// Solver drives one challenge round-trip and returns a fresh cookie set.
// Implementations may run a headless browser or hand control to an operator.
type Solver interface {
	Solve(ctx context.Context, challengeURL string) (dip.Cookie, error)
}

// Manager owns the shared cookie cache and deduplicates solves. It holds the
// cache lock for the whole solve, so a second caller arriving mid-solve waits
// for the in-flight result instead of starting its own browser session.
//
// Manager implements dip.CookieSource.
type Manager struct {
	solver Solver
	cache  *Cache
	clock  dip.Clock
	ttl    time.Duration
	logger *zap.Logger

	mu      sync.Mutex
	state   State
	current dip.Cookie
}

// NewManager builds a Manager. ttl <= 0 falls back to the one-hour window the
// Enodia challenge grants per solve.
func NewManager(solver Solver, cache *Cache, clock dip.Clock, ttl time.Duration, logger *zap.Logger) *Manager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	metrics.Init()
	m := &Manager{
		solver: solver,
		cache:  cache,
		clock:  clock,
		ttl:    ttl,
		logger: logger,
		state:  StateNoCookie,
	}
	if cache != nil {
		if cookie, ok := cache.Load(); ok {
			m.current = cookie
			m.state = StateCookieValid
			logger.Info("loaded cached challenge cookie",
				zap.Int("cookies", len(cookie.Values)),
				zap.Time("expires_at", cookie.ExpiresAt),
			)
		}
	}
	return m
}

// State returns the current lifecycle state. Expiry is a pure wall-clock
// comparison; no background polling runs.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Manager) stateLocked() State {
	if m.state == StateCookieValid && !m.current.Valid(m.clock.Now()) {
		return StateCookieExpired
	}
	return m.state
}

// Cookie returns the cached cookie if it is still valid.
func (m *Manager) Cookie(_ context.Context) (dip.Cookie, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.Valid(m.clock.Now()) {
		return m.current, true
	}
	return dip.Cookie{}, false
}

// Refresh solves the challenge and caches the resulting cookie. If another
// caller finished a solve while this one waited on the lock, the fresh cookie
// is returned without a redundant solve.
func (m *Manager) Refresh(ctx context.Context, challengeURL string) (dip.Cookie, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Valid(m.clock.Now()) && m.state == StateCookieValid {
		return m.current, nil
	}
	if m.solver == nil {
		return dip.Cookie{}, errors.New("no challenge solver configured")
	}

	m.state = StateSolving
	m.logger.Info("solving challenge", zap.String("challenge_url", challengeURL))

	cookie, err := m.solver.Solve(ctx, challengeURL)
	if err != nil {
		m.state = StateSolveFailed
		switch {
		case errors.Is(err, dip.ErrSolveTimeout):
			metrics.ObserveSolve("timeout")
		case errors.Is(err, dip.ErrSolveRejected):
			metrics.ObserveSolve("rejected")
		default:
			metrics.ObserveSolve("error")
		}
		return dip.Cookie{}, err
	}

	cookie.ExpiresAt = m.clock.Now().Add(m.ttl)
	m.current = cookie
	m.state = StateCookieValid
	metrics.ObserveSolve("success")

	if m.cache != nil {
		if err := m.cache.Save(cookie); err != nil {
			// The in-memory cookie still works for this process.
			m.logger.Warn("persist challenge cookie failed", zap.Error(err))
		}
	}
	m.logger.Info("challenge solved",
		zap.Int("cookies", len(cookie.Values)),
		zap.Time("expires_at", cookie.ExpiresAt),
	)
	return cookie, nil
}

// Invalidate drops the current cookie and clears the cache. Used by the
// clear-cookies operator command.
func (m *Manager) Invalidate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = dip.Cookie{}
	m.state = StateNoCookie
	if m.cache != nil {
		return m.cache.Clear()
	}
	return nil
}
