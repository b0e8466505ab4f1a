package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"vigil/cmd/identity"
	"vigil/cmd/internal/audit"
	"vigil/cmd/internal/realtime"
	"vigil/cmd/internal/registry"
)

// Service implements the session lifecycle operations. All mutations funnel
// through the registry, which serializes them per user and notifies the
// broadcaster inside the same critical section; the service never touches
// watch state directly except through OpenWatch.
type Service struct {
	log     *slog.Logger
	users   identity.Verifier
	reg     *registry.Registry
	watches *realtime.Broadcaster
	trail   audit.Recorder
	clock   clockwork.Clock

	// decoyHash absorbs a bcrypt comparison for unknown usernames so Login
	// latency does not reveal whether the account exists.
	decoyHash string
}

// NewService wires the facade. The broadcaster must be the same instance
// registered as the registry's notifier, or watches will miss updates.
func NewService(log *slog.Logger, users identity.Verifier, reg *registry.Registry, watches *realtime.Broadcaster, trail audit.Recorder) (*Service, error) {
	if users == nil || reg == nil || watches == nil {
		return nil, errors.New("session: nil dependency")
	}
	if log == nil {
		log = slog.Default()
	}
	if trail == nil {
		trail = audit.NewSlogRecorder(log)
	}
	decoy, err := identity.HashPassword("vigil-decoy-credential")
	if err != nil {
		return nil, err
	}
	return &Service{
		log:       log,
		users:     users,
		reg:       reg,
		watches:   watches,
		trail:     trail,
		clock:     clockwork.NewRealClock(),
		decoyHash: decoy,
	}, nil
}

// WithClock injects a clock for tests. Returns the service for chaining.
func (s *Service) WithClock(c clockwork.Clock) *Service {
	if c != nil {
		s.clock = c
	}
	return s
}

// Login authenticates the credentials and creates a fresh session. Unknown
// usernames and wrong passwords both surface as ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (identity.User, registry.Session, error) {
	if err := identity.ValidateCredentials(username, password); err != nil {
		return identity.User{}, registry.Session{}, ErrInvalidInput
	}

	u, err := s.users.Verify(ctx, username, password)
	if err != nil {
		if identity.IsNoSuchUser(err) {
			// Burn the same bcrypt work a real lookup would.
			_ = identity.VerifyPassword(password, s.decoyHash)
			return identity.User{}, registry.Session{}, ErrInvalidCredentials
		}
		if identity.IsBadPassword(err) {
			return identity.User{}, registry.Session{}, ErrInvalidCredentials
		}
		if identity.IsInvalidInput(err) {
			return identity.User{}, registry.Session{}, ErrInvalidInput
		}
		return identity.User{}, registry.Session{}, err
	}

	sess, err := s.reg.CreateSession(u.ID)
	if err != nil {
		return identity.User{}, registry.Session{}, err
	}

	s.trail.Record(ctx, audit.Event{Type: audit.LoggedIn, UserID: u.ID, SessionID: sess.ID, At: s.clock.Now().UTC()})
	s.log.Info("session.login", "user_id", u.ID)
	return u, sess, nil
}

// Register creates the account and logs it in, returning the first session.
func (s *Service) Register(ctx context.Context, username, password string) (identity.User, registry.Session, error) {
	u, err := s.users.Create(ctx, username, password)
	if err != nil {
		if identity.IsConflict(err) {
			return identity.User{}, registry.Session{}, ErrUsernameTaken
		}
		if identity.IsInvalidInput(err) {
			return identity.User{}, registry.Session{}, ErrInvalidInput
		}
		return identity.User{}, registry.Session{}, err
	}

	sess, err := s.reg.CreateSession(u.ID)
	if err != nil {
		return identity.User{}, registry.Session{}, err
	}

	now := s.clock.Now().UTC()
	s.trail.Record(ctx, audit.Event{Type: audit.AccountCreated, UserID: u.ID, At: now})
	s.trail.Record(ctx, audit.Event{Type: audit.LoggedIn, UserID: u.ID, SessionID: sess.ID, At: now})
	s.log.Info("session.register", "user_id", u.ID)
	return u, sess, nil
}

// Logout destroys the presented session. The registry publishes the shrunken
// session set and terminates any watch bound to it before Logout returns.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	userID, err := s.reg.DestroySession(sessionID)
	if err != nil {
		return err
	}
	s.trail.Record(ctx, audit.Event{Type: audit.LoggedOut, UserID: userID, SessionID: sessionID, At: s.clock.Now().UTC()})
	s.log.Info("session.logout", "user_id", userID)
	return nil
}

// LogoutAll destroys every session of the presenting user, including the one
// that authorized the call, and reports how many were destroyed.
func (s *Service) LogoutAll(ctx context.Context, sessionID string) (int, error) {
	userID, ok := s.reg.Validate(sessionID)
	if !ok {
		return 0, ErrSessionNotFound
	}
	destroyed := s.reg.DestroyAllSessions(userID)
	s.trail.Record(ctx, audit.Event{Type: audit.LoggedOutAll, UserID: userID, SessionID: sessionID, At: s.clock.Now().UTC()})
	s.log.Info("session.logout_all", "user_id", userID, "destroyed", len(destroyed))
	return len(destroyed), nil
}

// Sessions lists the presenting user's active sessions, oldest first.
func (s *Service) Sessions(sessionID string) ([]registry.Session, error) {
	userID, ok := s.reg.Validate(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.reg.ListSessions(userID), nil
}

// Whoami resolves the presenting session to its user and refreshes the
// session's last-seen timestamp.
func (s *Service) Whoami(ctx context.Context, sessionID string) (identity.User, error) {
	userID, ok := s.reg.Validate(sessionID)
	if !ok {
		return identity.User{}, ErrSessionNotFound
	}
	u, err := s.users.Lookup(ctx, userID)
	if err != nil {
		if identity.IsNotFound(err) {
			// The account vanished under a live session; treat as logged out.
			return identity.User{}, ErrSessionNotFound
		}
		return identity.User{}, err
	}
	s.reg.Touch(sessionID)
	return u, nil
}

// OpenWatch subscribes a watch bound to the presenting session. The subscribe
// happens inside the user's registry critical section, so the watch's first
// update is exactly the session set at subscribe time and every later
// mutation is observed in order. Implements realtime.WatchOpener.
func (s *Service) OpenWatch(sessionID string) (*realtime.Watch, error) {
	userID, ok := s.reg.Validate(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	var w *realtime.Watch
	s.reg.ViewSessions(userID, func(sessions []registry.Session) {
		for _, sess := range sessions {
			if sess.ID == sessionID {
				w = s.watches.Subscribe(userID, sessionID, sessions)
				return
			}
		}
		// Session destroyed between Validate and the critical section.
	})
	if w == nil {
		return nil, ErrSessionNotFound
	}
	s.log.Info("session.watch.open", "user_id", userID, "watch_id", w.ID)
	return w, nil
}
