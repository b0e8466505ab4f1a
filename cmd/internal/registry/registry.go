// Package registry owns the authoritative mapping of user -> active sessions.
//
// Concurrency model:
//   - One exclusive critical section per user covers "mutate, then notify".
//     Mutations for different users proceed fully in parallel.
//   - The global maps (user entries, session -> user reverse index) are guarded
//     by a short read-write lock that is never held across a notification.
//   - Lock ordering is always userEntry.mu before Registry.mu; Registry.mu
//     never acquires an entry lock, so the pair cannot deadlock.
package registry

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"
)

// Notifier observes session-set changes. It is invoked synchronously inside
// the owning user's critical section, after the mutation is applied:
// sessions is the post-mutation snapshot ordered by creation time (oldest
// first) and destroyed lists the session IDs the mutation removed.
//
// Implementations must not block and must never return an error upward;
// failures are absorbed locally.
type Notifier interface {
	SessionsChanged(userID string, sessions []Session, destroyed []string)
}

// MultiNotifier fans a change out to several notifiers in order.
func MultiNotifier(ns ...Notifier) Notifier { return multiNotifier(ns) }

type multiNotifier []Notifier

func (m multiNotifier) SessionsChanged(userID string, sessions []Session, destroyed []string) {
	for _, n := range m {
		if n == nil {
			continue
		}
		n.SessionsChanged(userID, sessions, destroyed)
	}
}

const (
	defaultMaxSessionsPerUser = 64
	defaultMaxSessionsTotal   = 100_000
)

// Registry is the in-memory session store. Construct it fresh per test or per
// logical shard; it is an owned, injected component, not a process singleton.
type Registry struct {
	log      *slog.Logger
	clock    clockwork.Clock
	notifier Notifier

	maxPerUser int
	maxTotal   int

	mu     sync.RWMutex // guards users, owners, total
	users  map[string]*userEntry
	owners map[string]string // sessionID -> userID
	total  int
}

// userEntry holds one user's ordered session set plus the per-user mutex.
// Entries are retained after DestroyAllSessions so a handle obtained before
// the destruction stays valid; the set is simply empty afterwards.
type userEntry struct {
	mu       sync.Mutex
	sessions []*Session // append order == CreatedAt ascending
}

// Option configures a Registry.
type Option func(*Registry)

// WithNotifier sets the change notifier (e.g. the broadcaster).
func WithNotifier(n Notifier) Option {
	return func(r *Registry) { r.notifier = n }
}

// WithClock injects the clock, used by tests for deterministic timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(r *Registry) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithLimits overrides capacity limits. Zero keeps the default; negative
// disables the corresponding limit.
func WithLimits(perUser, total int) Option {
	return func(r *Registry) {
		if perUser != 0 {
			r.maxPerUser = perUser
		}
		if total != 0 {
			r.maxTotal = total
		}
	}
}

// New constructs an empty Registry.
func New(log *slog.Logger, opts ...Option) *Registry {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{
		log:        log,
		clock:      clockwork.NewRealClock(),
		maxPerUser: defaultMaxSessionsPerUser,
		maxTotal:   defaultMaxSessionsTotal,
		users:      make(map[string]*userEntry),
		owners:     make(map[string]string),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Registry) entry(userID string) *userEntry {
	r.mu.RLock()
	e := r.users[userID]
	r.mu.RUnlock()
	if e != nil {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e = r.users[userID]; e == nil {
		e = &userEntry{}
		r.users[userID] = e
	}
	return e
}

// CreateSession allocates a new unique session for userID and notifies.
// It fails only on capacity exhaustion or a broken entropy source.
func (r *Registry) CreateSession(userID string) (Session, error) {
	if userID == "" {
		return Session{}, ErrInvalidInput
	}

	e := r.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := r.clock.Now().UTC()

	id, err := r.allocateID(len(e.sessions))
	if err != nil {
		return Session{}, err
	}

	s := &Session{ID: id, UserID: userID, CreatedAt: now, LastSeenAt: now}
	e.sessions = append(e.sessions, s)

	r.mu.Lock()
	r.owners[id] = userID
	r.mu.Unlock()

	r.log.Info("registry.session.create", "user_id", userID, "sessions", len(e.sessions))
	r.notify(userID, e, nil)
	return *s, nil
}

// allocateID reserves a fresh session ID, enforcing capacity limits.
// Collisions across 256-bit random tokens are not expected; the loop exists
// so the uniqueness invariant holds even if they occur.
func (r *Registry) allocateID(userSessions int) (string, error) {
	if r.maxPerUser > 0 && userSessions >= r.maxPerUser {
		r.log.Error("registry.user_limit", "sessions", userSessions)
		return "", ErrRegistryFull
	}

	for {
		id, err := newSessionID()
		if err != nil {
			return "", err
		}
		r.mu.Lock()
		if r.maxTotal > 0 && r.total >= r.maxTotal {
			r.mu.Unlock()
			r.log.Error("registry.full", "total", r.maxTotal)
			return "", ErrRegistryFull
		}
		if _, taken := r.owners[id]; !taken {
			r.total++
			r.mu.Unlock()
			return id, nil
		}
		r.mu.Unlock()
	}
}

// DestroySession removes the session if present and returns the owning user.
// A second destroy of the same ID reports ErrSessionNotFound, never a
// duplicate removal.
func (r *Registry) DestroySession(sessionID string) (string, error) {
	if sessionID == "" {
		return "", ErrSessionNotFound
	}

	r.mu.RLock()
	userID, ok := r.owners[sessionID]
	e := r.users[userID]
	r.mu.RUnlock()
	if !ok || e == nil {
		return "", ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	idx := -1
	for i, s := range e.sessions {
		if s.ID == sessionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		// Lost a race with a concurrent destroy for the same user.
		return "", ErrSessionNotFound
	}
	e.sessions = append(e.sessions[:idx], e.sessions[idx+1:]...)

	r.mu.Lock()
	delete(r.owners, sessionID)
	r.total--
	r.mu.Unlock()

	r.log.Info("registry.session.destroy", "user_id", userID, "sessions", len(e.sessions))
	r.notify(userID, e, []string{sessionID})
	return userID, nil
}

// DestroyAllSessions atomically removes every session owned by userID and
// returns the removed IDs. An empty result is not an error.
func (r *Registry) DestroyAllSessions(userID string) []string {
	if userID == "" {
		return nil
	}

	e := r.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.sessions) == 0 {
		return nil
	}

	destroyed := make([]string, 0, len(e.sessions))
	for _, s := range e.sessions {
		destroyed = append(destroyed, s.ID)
	}
	e.sessions = e.sessions[:0]

	r.mu.Lock()
	for _, id := range destroyed {
		delete(r.owners, id)
	}
	r.total -= len(destroyed)
	r.mu.Unlock()

	r.log.Info("registry.session.destroy_all", "user_id", userID, "destroyed", len(destroyed))
	r.notify(userID, e, destroyed)
	return destroyed
}

// ListSessions returns a point-in-time snapshot ordered by creation time,
// oldest first.
func (r *Registry) ListSessions(userID string) []Session {
	r.mu.RLock()
	e := r.users[userID]
	r.mu.RUnlock()
	if e == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e)
}

// ViewSessions runs fn with a snapshot of the user's session set while
// holding the user's critical section. No mutation or notification for that
// user can interleave with fn; callers use this to subscribe a watch at a
// consistent point in the mutation sequence. fn must not call back into the
// registry for the same user.
func (r *Registry) ViewSessions(userID string, fn func(sessions []Session)) {
	if fn == nil {
		return
	}
	e := r.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(snapshot(e))
}

// Validate resolves a session ID to its owning user. A missing or destroyed
// ID reports ok=false and callers treat the request as unauthenticated.
func (r *Registry) Validate(sessionID string) (userID string, ok bool) {
	if sessionID == "" {
		return "", false
	}
	r.mu.RLock()
	userID, ok = r.owners[sessionID]
	r.mu.RUnlock()
	return userID, ok
}

// Touch updates LastSeenAt for a session. Best effort: a destroyed session
// is ignored.
func (r *Registry) Touch(sessionID string) {
	r.mu.RLock()
	userID, ok := r.owners[sessionID]
	e := r.users[userID]
	r.mu.RUnlock()
	if !ok || e == nil {
		return
	}

	now := r.clock.Now().UTC()
	e.mu.Lock()
	for _, s := range e.sessions {
		if s.ID == sessionID {
			s.LastSeenAt = now
			break
		}
	}
	e.mu.Unlock()
}

// Restore preloads sessions (e.g. rehydrated from a mirror) before the
// registry starts serving. It does not notify. Duplicate IDs are skipped.
func (r *Registry) Restore(sessions []Session) {
	byUser := make(map[string][]Session)
	for _, s := range sessions {
		if s.ID == "" || s.UserID == "" {
			continue
		}
		byUser[s.UserID] = append(byUser[s.UserID], s)
	}

	for userID, list := range byUser {
		sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })

		e := r.entry(userID)
		e.mu.Lock()
		for _, s := range list {
			s := s
			r.mu.Lock()
			if _, taken := r.owners[s.ID]; taken {
				r.mu.Unlock()
				continue
			}
			r.owners[s.ID] = userID
			r.total++
			r.mu.Unlock()
			e.sessions = append(e.sessions, &s)
		}
		e.mu.Unlock()
	}

	if len(sessions) > 0 {
		r.log.Info("registry.restore", "sessions", len(sessions), "users", len(byUser))
	}
}

// Stats reports the number of tracked users and active sessions.
func (r *Registry) Stats() (users, sessions int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users), r.total
}

// notify is called with the user's entry lock held.
func (r *Registry) notify(userID string, e *userEntry, destroyed []string) {
	if r.notifier == nil {
		return
	}
	r.notifier.SessionsChanged(userID, snapshot(e), destroyed)
}

func snapshot(e *userEntry) []Session {
	out := make([]Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, *s)
	}
	return out
}
