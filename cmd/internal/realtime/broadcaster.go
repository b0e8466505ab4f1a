package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	v1 "vigil/contracts/watch/v1"
	"vigil/cmd/internal/registry"
)

// Broadcaster maintains the userID -> watches index and pushes session-list
// updates and forced terminations to watches.
//
// Concurrency guarantees:
//   - Subscribe/Unsubscribe/Terminate are safe under concurrent publishing.
//   - Publishing never blocks: each watch has a bounded queue with a
//     drop-oldest hand-off, so a slow consumer cannot stall the mutating
//     caller or its peers. Every update carries the full session list, so the
//     newest snapshot supersedes anything dropped.
//   - Publish failures for a dead watch are absorbed locally; the broadcaster
//     never raises an error back to the registry.
type Broadcaster struct {
	log *slog.Logger

	queueSize int

	mu        sync.RWMutex
	watches   map[string]*Watch
	byUser    map[string]map[string]*Watch // userID -> watchID -> watch
	bySession map[string]map[string]*Watch // boundSessionID -> watchID -> watch

	dropped atomic.Int64
}

// NewBroadcaster constructs an empty Broadcaster.
func NewBroadcaster(log *slog.Logger, queueSize int) *Broadcaster {
	if log == nil {
		log = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = defaultSendQueueSize
	}
	if queueSize < minSendQueueSize {
		queueSize = minSendQueueSize
	}
	return &Broadcaster{
		log:       log,
		queueSize: queueSize,
		watches:   make(map[string]*Watch),
		byUser:    make(map[string]map[string]*Watch),
		bySession: make(map[string]map[string]*Watch),
	}
}

// Subscribe registers a new watch for userID, bound to the session that
// authorized it, and immediately enqueues one update reflecting initial.
//
// Callers invoke Subscribe inside the user's registry critical section
// (registry.ViewSessions) so the first delivered update equals the session
// set at subscribe time and no later mutation can be observed out of order.
func (b *Broadcaster) Subscribe(userID, boundSessionID string, initial []registry.Session) *Watch {
	w := newWatch(NewWatchID(), userID, boundSessionID, b.queueSize)

	b.mu.Lock()
	b.watches[w.ID] = w
	if b.byUser[userID] == nil {
		b.byUser[userID] = make(map[string]*Watch)
	}
	b.byUser[userID][w.ID] = w
	if b.bySession[boundSessionID] == nil {
		b.bySession[boundSessionID] = make(map[string]*Watch)
	}
	b.bySession[boundSessionID][w.ID] = w
	b.mu.Unlock()

	b.offer(w, newSessionListEnvelope(userID, initial))
	b.log.Info("broadcast.watch.subscribe", "watch_id", w.ID, "user_id", userID)
	return w
}

// SessionsChanged implements registry.Notifier: it fans the post-mutation
// snapshot out to every open watch for the user, then force-terminates the
// watches whose bound session was destroyed. The snapshot is offered to
// doomed watches first so the final list precedes the close, matching the
// publish-then-terminate contract.
func (b *Broadcaster) SessionsChanged(userID string, sessions []registry.Session, destroyed []string) {
	env := newSessionListEnvelope(userID, sessions)

	b.mu.RLock()
	targets := make([]*Watch, 0, len(b.byUser[userID]))
	for _, w := range b.byUser[userID] {
		targets = append(targets, w)
	}
	var doomed []*Watch
	for _, sessionID := range destroyed {
		for _, w := range b.bySession[sessionID] {
			doomed = append(doomed, w)
		}
	}
	b.mu.RUnlock()

	for _, w := range targets {
		b.offer(w, env)
	}

	if len(doomed) == 0 {
		return
	}
	reason := v1.CloseReasonLogout
	if len(destroyed) > 1 {
		reason = v1.CloseReasonLogoutAll
	}
	for _, w := range doomed {
		b.remove(w.ID)
		w.terminate(reason)
		b.log.Info("broadcast.watch.terminate", "watch_id", w.ID, "user_id", w.UserID, "reason", reason)
	}
}

// Publish fans the given snapshot out to every open watch for userID without
// terminating anything. Registry mutations reach watches via SessionsChanged;
// Publish exists for explicit re-syncs.
func (b *Broadcaster) Publish(userID string, sessions []registry.Session) {
	b.SessionsChanged(userID, sessions, nil)
}

// Terminate force-closes a specific watch with the given reason.
func (b *Broadcaster) Terminate(watchID, reason string) {
	b.mu.RLock()
	w := b.watches[watchID]
	b.mu.RUnlock()
	if w == nil {
		return
	}
	if reason == "" {
		reason = v1.CloseReasonAdmin
	}
	b.remove(watchID)
	w.terminate(reason)
	b.log.Info("broadcast.watch.terminate", "watch_id", watchID, "user_id", w.UserID, "reason", reason)
}

// Unsubscribe removes bookkeeping for a watch whose connection closed for any
// reason (client disconnect, transport failure). Idempotent.
func (b *Broadcaster) Unsubscribe(watchID string) {
	b.mu.RLock()
	w := b.watches[watchID]
	b.mu.RUnlock()
	if w == nil {
		return
	}
	b.remove(watchID)
	w.terminate("")
	b.log.Info("broadcast.watch.unsubscribe", "watch_id", watchID, "user_id", w.UserID)
}

// WatchCount reports the number of open watches.
func (b *Broadcaster) WatchCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.watches)
}

// Dropped reports the number of updates dropped under backpressure.
func (b *Broadcaster) Dropped() int64 { return b.dropped.Load() }

func (b *Broadcaster) remove(watchID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	w := b.watches[watchID]
	if w == nil {
		return
	}
	delete(b.watches, watchID)
	if m := b.byUser[w.UserID]; m != nil {
		delete(m, watchID)
		if len(m) == 0 {
			delete(b.byUser, w.UserID)
		}
	}
	if m := b.bySession[w.BoundSessionID]; m != nil {
		delete(m, watchID)
		if len(m) == 0 {
			delete(b.bySession, w.BoundSessionID)
		}
	}
}

// offer enqueues without blocking. When the queue is full the oldest queued
// update is discarded to make room; if the queue is still full the update is
// dropped and counted.
func (b *Broadcaster) offer(w *Watch, env v1.Envelope) {
	select {
	case <-w.Done():
		return
	default:
	}

	select {
	case w.Send <- env:
		return
	default:
	}

	select {
	case <-w.Send:
	default:
	}

	select {
	case w.Send <- env:
	default:
		b.dropped.Add(1)
		b.log.Warn("broadcast.watch.drop", "watch_id", w.ID, "user_id", w.UserID)
	}
}

func newSessionListEnvelope(userID string, sessions []registry.Session) v1.Envelope {
	infos := make([]v1.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, v1.SessionInfo{
			ID:         s.ID,
			CreatedAt:  s.CreatedAt,
			LastSeenAt: s.LastSeenAt,
		})
	}
	payload, _ := json.Marshal(v1.SessionListPayload{UserID: userID, Sessions: infos})
	return v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeSessionList,
		ID:      NewRandomHex(10),
		TS:      time.Now().UTC(),
		Payload: payload,
	}
}
