package authapi

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// loginThrottle is a sliding-window counter of failed logins per source IP.
// Session state is in-process already, so the throttle keeps its counters
// in-process too rather than round-tripping a store.
type loginThrottle struct {
	max    int
	window time.Duration

	mu       sync.Mutex
	failures map[string][]time.Time
	sweepAt  time.Time
}

func newLoginThrottle(max int, window time.Duration) *loginThrottle {
	return &loginThrottle{
		max:      max,
		window:   window,
		failures: make(map[string][]time.Time),
	}
}

// blocked reports whether the IP has exhausted its failure budget and how
// long the caller should wait before retrying.
func (t *loginThrottle) blocked(ip net.IP, now time.Time) (bool, time.Duration) {
	if t == nil || t.max <= 0 || ip == nil {
		return false, 0
	}
	key := ip.String()
	cut := now.Add(-t.window)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.maybeSweep(now, cut)

	recent := trimBefore(t.failures[key], cut)
	t.failures[key] = recent
	if len(recent) >= t.max {
		return true, recent[0].Add(t.window).Sub(now)
	}
	return false, 0
}

// recordFailure notes a failed login attempt from the IP.
func (t *loginThrottle) recordFailure(ip net.IP, now time.Time) {
	if t == nil || t.max <= 0 || ip == nil {
		return
	}
	key := ip.String()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[key] = append(trimBefore(t.failures[key], now.Add(-t.window)), now)
}

// maybeSweep drops fully expired entries at most once per window so idle IPs
// do not accumulate. Called with the lock held.
func (t *loginThrottle) maybeSweep(now, cut time.Time) {
	if now.Before(t.sweepAt) {
		return
	}
	t.sweepAt = now.Add(t.window)
	for key, ts := range t.failures {
		if len(ts) == 0 || !ts[len(ts)-1].After(cut) {
			delete(t.failures, key)
		}
	}
}

func trimBefore(ts []time.Time, cut time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cut) {
		i++
	}
	return ts[i:]
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()+0.999), 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}
