package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vigil/cmd/identity"
	"vigil/cmd/internal/realtime"
	"vigil/cmd/internal/registry"
	v1 "vigil/contracts/watch/v1"
)

func newTestService(t *testing.T) (*Service, *realtime.Broadcaster) {
	t.Helper()
	bc := realtime.NewBroadcaster(nil, 0)
	reg := registry.New(nil, registry.WithNotifier(bc))
	svc, err := NewService(nil, identity.NewMemoryStore(), reg, bc, nil)
	require.NoError(t, err)
	return svc, bc
}

func recvList(t *testing.T, w *realtime.Watch) v1.SessionListPayload {
	t.Helper()
	select {
	case env := <-w.Send:
		require.Equal(t, v1.TypeSessionList, env.Type)
		var p v1.SessionListPayload
		require.NoError(t, json.Unmarshal(env.Payload, &p))
		return p
	case <-time.After(time.Second):
		t.Fatal("no update received")
		return v1.SessionListPayload{}
	}
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, sess, err := svc.Register(ctx, "alice", "hunter2")
	require.NoError(t, err)
	require.Equal(t, "alice", u.Username)
	require.NotEmpty(t, sess.ID)

	_, _, err = svc.Register(ctx, "Alice", "other")
	require.ErrorIs(t, err, ErrUsernameTaken, "usernames are case-insensitive")

	u2, sess2, err := svc.Login(ctx, "alice", "hunter2")
	require.NoError(t, err)
	require.Equal(t, u.ID, u2.ID)
	require.NotEqual(t, sess.ID, sess2.ID)

	sessions, err := svc.Sessions(sess.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
}

func TestLogin_InvalidCredentialsCollapse(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "alice", "hunter2")
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "alice", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "nobody", "whatever")
	require.ErrorIs(t, err, ErrInvalidCredentials, "unknown user must look like a bad password")

	_, _, err = svc.Login(ctx, "bad name!", "pw")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestLogout(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, sess, err := svc.Register(ctx, "alice", "hunter2")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, sess.ID))
	require.ErrorIs(t, svc.Logout(ctx, sess.ID), ErrSessionNotFound)

	_, err = svc.Sessions(sess.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestWatch_ObservesLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, s1, err := svc.Register(ctx, "alice", "hunter2")
	require.NoError(t, err)
	_, s2, err := svc.Login(ctx, "alice", "hunter2")
	require.NoError(t, err)

	w, err := svc.OpenWatch(s1.ID)
	require.NoError(t, err)

	initial := recvList(t, w)
	require.Len(t, initial.Sessions, 2, "first update mirrors the set at subscribe time")

	// A third login is pushed.
	_, s3, err := svc.Login(ctx, "alice", "hunter2")
	require.NoError(t, err)
	require.Len(t, recvList(t, w).Sessions, 3)

	// Logging out another session is pushed; this watch survives.
	require.NoError(t, svc.Logout(ctx, s3.ID))
	require.Len(t, recvList(t, w).Sessions, 2)
	select {
	case <-w.Done():
		t.Fatal("watch terminated by a sibling logout")
	default:
	}

	// Logging out the bound session delivers the final list, then terminates.
	require.NoError(t, svc.Logout(ctx, s1.ID))
	final := recvList(t, w)
	require.Len(t, final.Sessions, 1)
	require.Equal(t, s2.ID, final.Sessions[0].ID)
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("watch not terminated")
	}
	require.Equal(t, v1.CloseReasonLogout, w.Reason())
}

func TestLogoutAll_TerminatesCallersOwnWatch(t *testing.T) {
	svc, bc := newTestService(t)
	ctx := context.Background()

	_, s1, err := svc.Register(ctx, "alice", "hunter2")
	require.NoError(t, err)
	_, _, err = svc.Login(ctx, "alice", "hunter2")
	require.NoError(t, err)

	w, err := svc.OpenWatch(s1.ID)
	require.NoError(t, err)
	recvList(t, w)

	n, err := svc.LogoutAll(ctx, s1.ID)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.Empty(t, recvList(t, w).Sessions)
	<-w.Done()
	require.Equal(t, v1.CloseReasonLogoutAll, w.Reason())
	require.Equal(t, 0, bc.WatchCount())

	_, err = svc.LogoutAll(ctx, s1.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestOpenWatch_RequiresLiveSession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, sess, err := svc.Register(ctx, "alice", "hunter2")
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, sess.ID))

	_, err = svc.OpenWatch(sess.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)

	_, err = svc.OpenWatch("garbage")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestWhoami(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, sess, err := svc.Register(ctx, "alice", "hunter2")
	require.NoError(t, err)

	got, err := svc.Whoami(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	_, err = svc.Whoami(ctx, "garbage")
	require.ErrorIs(t, err, ErrSessionNotFound)
}
