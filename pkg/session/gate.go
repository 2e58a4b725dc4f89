package session

import (
	"sync"
	"time"

	"msgsync/pkg/logger"
	"msgsync/pkg/models"
)

// Gate owns the authentication state for the sync engine. It is injected
// into the scheduler and pipelines; nothing reads ambient globals.
//
// A 401 observed within the grace window of the last login is treated as
// a stale response from a request that was in flight when the token was
// issued, and is ignored instead of forcing a logout.
type Gate struct {
	mu        sync.Mutex
	sess      models.Session
	grace     time.Duration
	listeners []func(active bool)

	// now is swappable for tests.
	now func() time.Time
}

// NewGate builds a Gate with the given 401 grace window.
func NewGate(grace time.Duration) *Gate {
	if grace <= 0 {
		grace = 5 * time.Second
	}
	return &Gate{grace: grace, now: time.Now}
}

// IsActive reports whether a credential is present.
func (g *Gate) IsActive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sess.Active()
}

// Credential returns the bearer credential, if any.
func (g *Gate) Credential() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sess.Token, g.sess.Active()
}

// Session returns a copy of the current session.
func (g *Gate) Session() models.Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sess
}

// OnChange registers a listener invoked after every activity transition.
// Listeners run synchronously on the goroutine that triggered the
// transition, so a logout listener can stop the scheduler and clear the
// stores before SetToken/Clear returns.
func (g *Gate) OnChange(fn func(active bool)) {
	g.mu.Lock()
	g.listeners = append(g.listeners, fn)
	g.mu.Unlock()
}

// SetToken installs a credential. On a false→true transition LastAuthAt
// is stamped; replacing an existing token restamps it too, since a token
// refresh has the same stale-401 race as a login.
func (g *Gate) SetToken(tok string) {
	if tok == "" {
		g.Clear()
		return
	}
	g.mu.Lock()
	wasActive := g.sess.Active()
	g.sess = models.Session{Token: tok, LastAuthAt: g.now()}
	fns := g.snapshotListeners()
	g.mu.Unlock()

	if !wasActive {
		logger.Info("session_started")
		for _, fn := range fns {
			fn(true)
		}
	}
}

// Clear drops the credential. Listeners (scheduler stop, store reset)
// run synchronously before Clear returns so no poll can merge another
// user's data afterward.
func (g *Gate) Clear() {
	g.mu.Lock()
	wasActive := g.sess.Active()
	g.sess = models.Session{}
	fns := g.snapshotListeners()
	g.mu.Unlock()

	if wasActive {
		logger.Info("session_ended")
		for _, fn := range fns {
			fn(false)
		}
	}
}

// Unauthorized records an inbound 401. Inside the grace window it is
// ignored as transient; outside it the session ends.
func (g *Gate) Unauthorized() {
	g.mu.Lock()
	if !g.sess.Active() {
		g.mu.Unlock()
		return
	}
	if g.now().Sub(g.sess.LastAuthAt) < g.grace {
		g.mu.Unlock()
		logger.Debug("stale_401_ignored", "grace", g.grace)
		return
	}
	g.mu.Unlock()
	logger.Warn("session_expired")
	g.Clear()
}

func (g *Gate) snapshotListeners() []func(active bool) {
	fns := make([]func(active bool), len(g.listeners))
	copy(fns, g.listeners)
	return fns
}
