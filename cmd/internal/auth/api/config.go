package authapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls the auth API's transport and security defaults.
type Config struct {
	CookieName     string
	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite
	CookieMaxAge   time.Duration

	TrustProxy   bool
	MaxBodyBytes int64

	LoginIPMax    int
	LoginIPWindow time.Duration
}

// LoadConfigFromEnv loads auth API config from environment variables with
// safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		CookieName:     envString("VIGIL_AUTH_COOKIE_NAME", "vigil_session"),
		CookiePath:     envString("VIGIL_AUTH_COOKIE_PATH", "/"),
		CookieDomain:   envString("VIGIL_AUTH_COOKIE_DOMAIN", ""),
		CookieSecure:   envBool("VIGIL_AUTH_COOKIE_SECURE", true),
		CookieSameSite: parseSameSite(envString("VIGIL_AUTH_COOKIE_SAMESITE", "lax")),
		CookieMaxAge:   envDuration("VIGIL_AUTH_COOKIE_MAX_AGE", 30*24*time.Hour),
		TrustProxy:     envBool("VIGIL_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:   envInt64("VIGIL_AUTH_MAX_BODY_BYTES", 1<<20), // 1 MiB
		LoginIPMax:     envInt("VIGIL_AUTH_LOGIN_IP_MAX", 20),
		LoginIPWindow:  envDuration("VIGIL_AUTH_LOGIN_IP_WINDOW", 5*time.Minute),
	}

	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "vigil_session"
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	return cfg
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
