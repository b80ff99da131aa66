package sessions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/errors"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// Origin carries the context fields copied onto a new session.
type Origin struct {
	Platform string
	Source   string
}

// Touch describes how one event resolved to a session.
type Touch struct {
	Session *Session
	Created bool
	// Expired is the stale session closed because the gap elapsed, if any.
	Expired *Session
}

// Manager resolves events to sessions. Calls are serialized so two events of
// the same user never open two sessions inside one process.
type Manager struct {
	store Store
	gap   time.Duration
	logg  *logger.Logger
	now   func() time.Time
	mu    sync.Mutex
}

func NewManager(store Store, gap time.Duration, logg *logger.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session store required")
	}
	if gap <= 0 {
		return nil, errors.New("session inactivity gap must be positive")
	}
	return &Manager{store: store, gap: gap, logg: logg, now: time.Now}, nil
}

// Gap returns the configured inactivity gap.
func (m *Manager) Gap() time.Duration {
	return m.gap
}

// Touch records one event occurring at at against the user's open session,
// opening a new one when none exists or the open one has been idle longer than
// the gap. A zero at means now.
func (m *Manager) Touch(ctx context.Context, userID string, origin Origin, eventName string, at time.Time, conversion bool) (Touch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := at.UTC()
	if at.IsZero() {
		now = m.now().UTC()
	}
	var res Touch

	open, err := m.store.OpenForUser(ctx, userID)
	if err != nil {
		return res, fmt.Errorf("resolve open session: %w", err)
	}
	if open != nil && open.Idle(now, m.gap) {
		open.Close(open.LastActivity)
		if err := m.store.Delete(ctx, open.ID); err != nil {
			return res, fmt.Errorf("close idle session: %w", err)
		}
		res.Expired = open
		open = nil
	}
	if open == nil {
		open = newSession(userID, origin, now)
		res.Created = true
	}

	open.Record(eventName, now, conversion)
	if err := m.store.Put(ctx, open); err != nil {
		return res, fmt.Errorf("store session: %w", err)
	}
	res.Session = open
	return res, nil
}

// Start opens a fresh session for the user, closing any session already open.
func (m *Manager) Start(ctx context.Context, userID string, origin Origin) (*Session, *Session, error) {
	if userID == "" {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "user_id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	var closed *Session
	open, err := m.store.OpenForUser(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve open session: %w", err)
	}
	if open != nil {
		open.Close(now)
		if err := m.store.Delete(ctx, open.ID); err != nil {
			return nil, nil, fmt.Errorf("close previous session: %w", err)
		}
		closed = open
	}

	s := newSession(userID, origin, now)
	if err := m.store.Put(ctx, s); err != nil {
		return nil, nil, fmt.Errorf("store session: %w", err)
	}
	return s, closed, nil
}

// End finalizes the session and removes it from the active store. Unknown ids
// return a NOT_FOUND error.
func (m *Manager) End(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.Close(m.now().UTC())
	if err := m.store.Delete(ctx, s.ID); err != nil {
		return nil, fmt.Errorf("delete session: %w", err)
	}
	return s, nil
}

// Current returns the user's open session, or nil.
func (m *Manager) Current(ctx context.Context, userID string) (*Session, error) {
	return m.store.OpenForUser(ctx, userID)
}

// ExpireIdle closes every session idle past the gap. Sessions that fail to close
// are skipped and their errors combined.
func (m *Manager) ExpireIdle(ctx context.Context) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	open, err := m.store.ListOpen(ctx)
	if err != nil {
		return nil, err
	}
	now := m.now().UTC()
	var (
		closed []*Session
		errs   error
	)
	for _, s := range open {
		if err := ctx.Err(); err != nil {
			return closed, multierr.Append(errs, err)
		}
		if !s.Idle(now, m.gap) {
			continue
		}
		s.Close(s.LastActivity)
		if err := m.store.Delete(ctx, s.ID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire session %s: %w", s.ID, err))
			continue
		}
		closed = append(closed, s)
	}
	if m.logg != nil && len(closed) > 0 {
		m.logg.Info(m.logg.WithField(ctx, "expired", len(closed)), "idle sessions expired")
	}
	return closed, errs
}

func newSession(userID string, origin Origin, now time.Time) *Session {
	return &Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		Start:        now,
		Platform:     origin.Platform,
		Source:       origin.Source,
		LastActivity: now,
	}
}

func isNotFound(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeNotFound)
}
