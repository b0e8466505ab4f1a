package realtime

import (
	"sync"

	v1 "vigil/contracts/watch/v1"
)

// Watch represents one open notification connection mirroring a user's
// active-session set.
//
// Design notes:
// - Send is intentionally NOT closed by the server to avoid panics from concurrent publishers.
// - Termination is a terminal state transition: done closes exactly once with a reason.
// - terminate is idempotent; the first reason wins.
type Watch struct {
	ID             string
	UserID         string
	BoundSessionID string

	Send chan v1.Envelope

	done      chan struct{}
	closeOnce sync.Once
	reason    string
}

// newWatch constructs a Watch with a bounded send queue.
func newWatch(id, userID, boundSessionID string, sendQueueSize int) *Watch {
	if sendQueueSize <= 0 {
		sendQueueSize = defaultSendQueueSize
	}
	return &Watch{
		ID:             id,
		UserID:         userID,
		BoundSessionID: boundSessionID,
		Send:           make(chan v1.Envelope, sendQueueSize),
		done:           make(chan struct{}),
	}
}

// Done returns a channel that is closed when the watch reaches its terminal state.
func (w *Watch) Done() <-chan struct{} {
	if w == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return w.done
}

// Reason reports why the watch was terminated. It is only meaningful after
// Done() is closed.
func (w *Watch) Reason() string {
	if w == nil {
		return ""
	}
	select {
	case <-w.done:
		return w.reason
	default:
		return ""
	}
}

// terminate signals the terminal state (idempotent).
// It does NOT close Send to keep publishing safe under concurrency.
func (w *Watch) terminate(reason string) {
	if w == nil {
		return
	}
	w.closeOnce.Do(func() {
		w.reason = reason
		close(w.done)
	})
}
