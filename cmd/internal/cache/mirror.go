// Package cache mirrors the session registry into Redis.
//
// The mirror is a warm-start aid, not a source of truth: the in-process
// registry stays authoritative, and every mirror failure is absorbed after
// logging. On boot the mirror's contents seed the registry so sessions
// survive a restart.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"vigil/cmd/internal/registry"
)

const (
	keyPrefix = "vigil:sessions:"

	// updateQueueSize bounds the async hand-off from registry critical
	// sections to the Redis writer. Full queue drops the update; the next
	// change for the user rewrites the whole set, so drops self-heal.
	updateQueueSize = 1024

	writeTimeout = 2 * time.Second
)

// userUpdate is one queued write: the full post-mutation session set for a
// user. An empty set deletes the key.
type userUpdate struct {
	userID   string
	sessions []registry.Session
}

// Mirror implements registry.Notifier by writing each user's session set to
// Redis as a single JSON value under vigil:sessions:<userID>.
type Mirror struct {
	log *slog.Logger
	rdb *redis.Client

	queue chan userUpdate

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewMirror constructs the mirror and starts its writer.
func NewMirror(log *slog.Logger, rdb *redis.Client) *Mirror {
	if log == nil {
		log = slog.Default()
	}
	m := &Mirror{
		log:   log,
		rdb:   rdb,
		queue: make(chan userUpdate, updateQueueSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go m.writer()
	return m
}

// SessionsChanged implements registry.Notifier. It is called inside the
// user's registry critical section, so it only enqueues.
func (m *Mirror) SessionsChanged(userID string, sessions []registry.Session, _ []string) {
	select {
	case m.queue <- userUpdate{userID: userID, sessions: sessions}:
	default:
		m.log.Warn("cache.mirror.queue_full", "user_id", userID)
	}
}

func (m *Mirror) writer() {
	defer close(m.done)
	for {
		select {
		case u := <-m.queue:
			m.apply(u)
		case <-m.stop:
			// Drain what is already queued before exiting.
			for {
				select {
				case u := <-m.queue:
					m.apply(u)
				default:
					return
				}
			}
		}
	}
}

func (m *Mirror) apply(u userUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	key := keyPrefix + u.userID
	if len(u.sessions) == 0 {
		if err := m.rdb.Del(ctx, key).Err(); err != nil {
			m.log.Warn("cache.mirror.del.fail", "user_id", u.userID, "err", err)
		}
		return
	}

	payload, err := json.Marshal(u.sessions)
	if err != nil {
		m.log.Error("cache.mirror.marshal.fail", "user_id", u.userID, "err", err)
		return
	}
	if err := m.rdb.Set(ctx, key, payload, 0).Err(); err != nil {
		m.log.Warn("cache.mirror.set.fail", "user_id", u.userID, "err", err)
	}
}

// Rehydrate loads every mirrored session set, for seeding the registry via
// Restore before the server starts accepting requests.
func (m *Mirror) Rehydrate(ctx context.Context) ([]registry.Session, error) {
	var out []registry.Session

	iter := m.rdb.Scan(ctx, 0, keyPrefix+"*", 256).Iterator()
	for iter.Next(ctx) {
		raw, err := m.rdb.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, err
		}
		var sessions []registry.Session
		if err := json.Unmarshal(raw, &sessions); err != nil {
			m.log.Warn("cache.mirror.rehydrate.skip", "key", iter.Val(), "err", err)
			continue
		}
		out = append(out, sessions...)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close stops the writer after draining queued updates.
func (m *Mirror) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}
