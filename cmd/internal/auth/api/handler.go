// Package authapi exposes the session lifecycle over HTTP+JSON.
//
// Browser clients authenticate with an HttpOnly session cookie; non-browser
// clients present the same token as an Authorization bearer header. Both
// carry the opaque session ID, never a derived token.
package authapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"vigil/cmd/identity"
	"vigil/cmd/internal/auth/session"
	"vigil/cmd/internal/registry"
)

// Handler wires the HTTP auth endpoints to the session facade.
type Handler struct {
	log *slog.Logger
	cfg Config

	svc      *session.Service
	throttle *loginThrottle
}

// NewHandler constructs the auth Handler.
func NewHandler(log *slog.Logger, cfg Config, svc *session.Service) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("authapi: nil session service")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		log:      log,
		cfg:      cfg,
		svc:      svc,
		throttle: newLoginThrottle(cfg.LoginIPMax, cfg.LoginIPWindow),
	}, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /auth/register", h.handleRegister)
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("POST /auth/logout", h.handleLogout)
	mux.HandleFunc("POST /auth/logout_all", h.handleLogoutAll)
	mux.HandleFunc("GET /auth/sessions", h.handleSessions)
	mux.HandleFunc("GET /auth/user", h.handleUser)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	u, sess, err := h.svc.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrUsernameTaken):
			writeError(w, http.StatusConflict, "username_taken", "username is already taken")
		case errors.Is(err, session.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid username or password")
		case errors.Is(err, session.ErrRegistryFull):
			writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		default:
			h.log.Error("auth.register.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "internal", "internal error")
		}
		return
	}

	h.setSessionCookie(w, sess.ID)
	writeJSON(w, http.StatusCreated, loginResponse{
		User:    toUserResponse(u),
		Session: toSessionResponse(sess, true),
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r, h.cfg.TrustProxy)
	now := time.Now().UTC()
	if blocked, retryAfter := h.throttle.blocked(ip, now); blocked {
		writeRateLimited(w, retryAfter)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	u, sess, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrInvalidCredentials):
			h.throttle.recordFailure(ip, now)
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		case errors.Is(err, session.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		case errors.Is(err, session.ErrRegistryFull):
			writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		default:
			h.log.Error("auth.login.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "internal", "internal error")
		}
		return
	}

	h.setSessionCookie(w, sess.ID)
	writeJSON(w, http.StatusOK, loginResponse{
		User:    toUserResponse(u),
		Session: toSessionResponse(sess, true),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := SessionToken(r, h.cfg.CookieName)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "no session")
		return
	}

	err := h.svc.Logout(r.Context(), token)
	// A stale or already-destroyed session still clears the cookie and
	// reports success: the caller's goal state is "logged out".
	if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		h.log.Error("auth.logout.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	token, ok := SessionToken(r, h.cfg.CookieName)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "no session")
		return
	}

	destroyed, err := h.svc.LogoutAll(r.Context(), token)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			h.clearSessionCookie(w)
			writeError(w, http.StatusUnauthorized, "unauthenticated", "session expired")
			return
		}
		h.log.Error("auth.logout_all.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, logoutAllResponse{Destroyed: destroyed})
}

func (h *Handler) handleSessions(w http.ResponseWriter, r *http.Request) {
	token, ok := SessionToken(r, h.cfg.CookieName)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "no session")
		return
	}

	sessions, err := h.svc.Sessions(token)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "session expired")
			return
		}
		h.log.Error("auth.sessions.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSessionResponse(s, s.ID == token))
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: out})
}

func (h *Handler) handleUser(w http.ResponseWriter, r *http.Request) {
	token, ok := SessionToken(r, h.cfg.CookieName)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "no session")
		return
	}

	u, err := h.svc.Whoami(r.Context(), token)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "session expired")
			return
		}
		h.log.Error("auth.user.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, whoamiResponse{User: toUserResponse(u)})
}

// ---- response mapping ----

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
	}
}

func toSessionResponse(s registry.Session, current bool) sessionResponse {
	return sessionResponse{
		ID:         s.ID,
		CreatedAt:  s.CreatedAt,
		LastSeenAt: s.LastSeenAt,
		Current:    current,
	}
}
