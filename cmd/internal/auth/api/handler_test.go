package authapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vigil/cmd/identity"
	"vigil/cmd/internal/auth/session"
	"vigil/cmd/internal/realtime"
	"vigil/cmd/internal/registry"
)

func testConfig() Config {
	return Config{
		CookieName:     "vigil_session",
		CookiePath:     "/",
		CookieSecure:   false,
		CookieSameSite: http.SameSiteLaxMode,
		CookieMaxAge:   time.Hour,
		MaxBodyBytes:   1 << 20,
		LoginIPMax:     20,
		LoginIPWindow:  5 * time.Minute,
	}
}

func newTestMux(t *testing.T, cfg Config) *http.ServeMux {
	t.Helper()
	bc := realtime.NewBroadcaster(nil, 0)
	reg := registry.New(nil, registry.WithNotifier(bc))
	svc, err := session.NewService(nil, identity.NewMemoryStore(), reg, bc, nil)
	require.NoError(t, err)

	h, err := NewHandler(nil, cfg, svc)
	require.NoError(t, err)

	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func doJSON(mux *http.ServeMux, method, path, body, cookie string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != "" {
		req.Header.Set("Cookie", "vigil_session="+cookie)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "vigil_session" {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func TestRegisterLoginFlow(t *testing.T) {
	mux := newTestMux(t, testConfig())

	rec := doJSON(mux, http.MethodPost, "/auth/register", `{"username":"alice","password":"hunter2"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	var reg loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
	require.Equal(t, "alice", reg.User.Username)
	require.NotEmpty(t, reg.Session.ID)

	c := sessionCookie(t, rec)
	require.True(t, c.HttpOnly)
	require.Equal(t, reg.Session.ID, c.Value)

	// Duplicate username.
	rec = doJSON(mux, http.MethodPost, "/auth/register", `{"username":"alice","password":"x"}`, "")
	require.Equal(t, http.StatusConflict, rec.Code)

	// Wrong password.
	rec = doJSON(mux, http.MethodPost, "/auth/login", `{"username":"alice","password":"wrong"}`, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Unknown user looks identical.
	rec = doJSON(mux, http.MethodPost, "/auth/login", `{"username":"nobody","password":"x"}`, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(mux, http.MethodPost, "/auth/login", `{"username":"alice","password":"hunter2"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var login loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	require.NotEqual(t, reg.Session.ID, login.Session.ID)
}

func TestSessionsAndUser(t *testing.T) {
	mux := newTestMux(t, testConfig())

	rec := doJSON(mux, http.MethodPost, "/auth/register", `{"username":"alice","password":"hunter2"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	first := sessionCookie(t, rec).Value

	rec = doJSON(mux, http.MethodPost, "/auth/login", `{"username":"alice","password":"hunter2"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	second := sessionCookie(t, rec).Value

	rec = doJSON(mux, http.MethodGet, "/auth/sessions", "", first)
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions sessionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions.Sessions, 2)
	require.Equal(t, first, sessions.Sessions[0].ID)
	require.True(t, sessions.Sessions[0].Current)
	require.Equal(t, second, sessions.Sessions[1].ID)
	require.False(t, sessions.Sessions[1].Current)

	// Bearer transport works the same.
	req := httptest.NewRequest(http.MethodGet, "/auth/user", nil)
	req.Header.Set("Authorization", "Bearer "+second)
	brec := httptest.NewRecorder()
	mux.ServeHTTP(brec, req)
	require.Equal(t, http.StatusOK, brec.Code)
	var who whoamiResponse
	require.NoError(t, json.Unmarshal(brec.Body.Bytes(), &who))
	require.Equal(t, "alice", who.User.Username)

	// No credentials at all.
	rec = doJSON(mux, http.MethodGet, "/auth/sessions", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutFlow(t *testing.T) {
	mux := newTestMux(t, testConfig())

	rec := doJSON(mux, http.MethodPost, "/auth/register", `{"username":"alice","password":"hunter2"}`, "")
	token := sessionCookie(t, rec).Value

	rec = doJSON(mux, http.MethodPost, "/auth/logout", "", token)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Less(t, sessionCookie(t, rec).MaxAge, 0, "cookie must be cleared")

	// Logging out an already-dead session is benign.
	rec = doJSON(mux, http.MethodPost, "/auth/logout", "", token)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// But authenticated reads fail.
	rec = doJSON(mux, http.MethodGet, "/auth/sessions", "", token)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutAllFlow(t *testing.T) {
	mux := newTestMux(t, testConfig())

	rec := doJSON(mux, http.MethodPost, "/auth/register", `{"username":"alice","password":"hunter2"}`, "")
	token := sessionCookie(t, rec).Value
	for i := 0; i < 2; i++ {
		rec = doJSON(mux, http.MethodPost, "/auth/login", `{"username":"alice","password":"hunter2"}`, "")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec = doJSON(mux, http.MethodPost, "/auth/logout_all", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var out logoutAllResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, 3, out.Destroyed)

	rec = doJSON(mux, http.MethodPost, "/auth/logout_all", "", token)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.LoginIPMax = 2
	mux := newTestMux(t, cfg)

	for i := 0; i < 2; i++ {
		rec := doJSON(mux, http.MethodPost, "/auth/login", `{"username":"alice","password":"wrong"}`, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := doJSON(mux, http.MethodPost, "/auth/login", `{"username":"alice","password":"wrong"}`, "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestBadRequests(t *testing.T) {
	mux := newTestMux(t, testConfig())

	rec := doJSON(mux, http.MethodPost, "/auth/register", `{"username":`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(mux, http.MethodPost, "/auth/register", `{"username":"bad name!","password":"pw"}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(mux, http.MethodPost, "/auth/register", `{"username":"alice","password":"pw","extra":1}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code, "unknown fields rejected")
}
