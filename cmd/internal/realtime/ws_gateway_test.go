package realtime_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"vigil/cmd/internal/realtime"
	"vigil/cmd/internal/registry"
	v1 "vigil/contracts/watch/v1"
)

// stubOpener authorizes fixed session tokens against the broadcaster.
type stubOpener struct {
	bc       *realtime.Broadcaster
	sessions map[string][]registry.Session // token -> current set
	owner    map[string]string             // token -> userID
}

func (o *stubOpener) OpenWatch(sessionID string) (*realtime.Watch, error) {
	userID, ok := o.owner[sessionID]
	if !ok {
		return nil, errors.New("session not found")
	}
	return o.bc.Subscribe(userID, sessionID, o.sessions[sessionID]), nil
}

func wsSessions(ids ...string) []registry.Session {
	now := time.Now().UTC()
	out := make([]registry.Session, 0, len(ids))
	for i, id := range ids {
		out = append(out, registry.Session{ID: id, UserID: "alice", CreatedAt: now.Add(time.Duration(i) * time.Second)})
	}
	return out
}

func newGatewayServer(t *testing.T) (*httptest.Server, *realtime.Broadcaster) {
	t.Helper()
	t.Setenv("VIGIL_WS_ORIGIN_REQUIRED", "false")

	bc := realtime.NewBroadcaster(nil, 0)
	opener := &stubOpener{
		bc:       bc,
		sessions: map[string][]registry.Session{"tok1": wsSessions("tok1")},
		owner:    map[string]string{"tok1": "alice"},
	}
	g := realtime.NewWSGateway(nil, opener, bc, "vigil_session")

	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)
	return srv, bc
}

func dialWatch(t *testing.T, ctx context.Context, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	hdr := http.Header{}
	hdr.Set("Cookie", "vigil_session="+token)

	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{"vigil.watch.v1"},
		HTTPHeader:   hdr,
	})
	require.NoError(t, err)
	require.Equal(t, "vigil.watch.v1", conn.Subprotocol())
	return conn
}

func readList(t *testing.T, ctx context.Context, conn *websocket.Conn) v1.SessionListPayload {
	t.Helper()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var env v1.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	require.NoError(t, env.Validate())
	require.Equal(t, v1.TypeSessionList, env.Type)

	var p v1.SessionListPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	return p
}

func TestHandleWS_RejectsMissingAndUnknownTokens(t *testing.T) {
	srv, _ := newGatewayServer(t)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	hdr := http.Header{}
	hdr.Set("Cookie", "vigil_session=unknown")
	_, resp2, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: hdr})
	require.Error(t, err)
	if resp2 != nil {
		require.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
	}
}

func TestHandleWS_StreamsUpdatesAndClosesOnInvalidation(t *testing.T) {
	srv, bc := newGatewayServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn := dialWatch(t, ctx, srv, "tok1")
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	// First frame mirrors the set at subscribe time.
	initial := readList(t, ctx, conn)
	require.Equal(t, "alice", initial.UserID)
	require.Len(t, initial.Sessions, 1)

	// A second login elsewhere is pushed.
	bc.SessionsChanged("alice", wsSessions("tok1", "tok2"), nil)
	require.Len(t, readList(t, ctx, conn).Sessions, 2)

	// The bound session is destroyed: final list, then a close frame whose
	// reason names the logout.
	bc.SessionsChanged("alice", wsSessions("tok2"), []string{"tok1"})
	final := readList(t, ctx, conn)
	require.Len(t, final.Sessions, 1)
	require.Equal(t, "tok2", final.Sessions[0].ID)

	_, _, err := conn.Read(ctx)
	require.Error(t, err)
	require.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
	var ce websocket.CloseError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, v1.CloseReasonLogout, ce.Reason)

	require.Equal(t, 0, bc.WatchCount())
}

func TestHandleWS_BearerFallback(t *testing.T) {
	srv, _ := newGatewayServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer tok1")
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		Subprotocols: []string{"vigil.watch.v1"},
		HTTPHeader:   hdr,
	})
	require.NoError(t, err)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	require.Len(t, readList(t, ctx, conn).Sessions, 1)
}
