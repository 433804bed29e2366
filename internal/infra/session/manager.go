// Package session tracks idle time of authenticated sessions.
package session

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"trulyinvoice/internal/domain"
)

type Options struct {
	// Idle is how long a session may go without a request.
	Idle time.Duration
	// Retain bounds how long a last-seen time is kept. A session unseen for
	// longer than Retain is forgotten and the next request starts a new one.
	Retain      time.Duration
	MaxSessions int
}

// Manager maps a session id to its last activity in a size-bounded LRU whose
// entries expire after Retain. A session idle for longer than Idle is
// rejected once and forgotten; the next request with the same id starts a
// new session.
type Manager struct {
	seen *lru.LRU[string, time.Time]
	idle time.Duration
	now  func() time.Time
	log  *zerolog.Logger
}

func NewManager(opts Options, logger *zerolog.Logger) *Manager {
	if opts.Idle <= 0 {
		opts.Idle = 30 * time.Minute
	}
	if opts.Retain < opts.Idle {
		opts.Retain = 2 * opts.Idle
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 100000
	}
	l := logger.With().Str("component", "SessionManager").Logger()
	return &Manager{
		seen: lru.NewLRU[string, time.Time](opts.MaxSessions, nil, opts.Retain),
		idle: opts.Idle,
		now:  time.Now,
		log:  &l,
	}
}

// Touch records activity on id. It returns domain.ErrSessionExpired when the
// session was idle for longer than the timeout.
func (m *Manager) Touch(id string) error {
	now := m.now()
	if prev, ok := m.seen.Get(id); ok && now.Sub(prev) > m.idle {
		m.seen.Remove(id)
		m.log.Debug().Dur("idle", now.Sub(prev)).Msg("session expired")
		return domain.ErrSessionExpired
	}
	m.seen.Add(id, now)
	return nil
}

// End forgets id, e.g. on logout.
func (m *Manager) End(id string) {
	m.seen.Remove(id)
}

func (m *Manager) Len() int { return m.seen.Len() }
