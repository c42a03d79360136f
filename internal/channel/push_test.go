package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/consite-erp/notify-agent/internal/diag"
	"github.com/consite-erp/notify-agent/internal/domain/notification"
)

// pushServer accepts websocket connections, records join frames, and lets
// the test script each connection.
type pushServer struct {
	t        *testing.T
	srv      *httptest.Server
	conns    chan *websocket.Conn
	rooms    chan []string
	tokens   chan string
	accepted atomic.Int64
}

func newPushServer(t *testing.T) *pushServer {
	t.Helper()
	ps := &pushServer{
		t:      t,
		conns:  make(chan *websocket.Conn, 4),
		rooms:  make(chan []string, 4),
		tokens: make(chan string, 4),
	}
	ps.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ps.tokens <- r.URL.Query().Get("token")
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ps.accepted.Add(1)

		var joined []string
		for i := 0; i < 2; i++ {
			var frame joinFrame
			if err := wsjson.Read(r.Context(), conn, &frame); err != nil {
				return
			}
			joined = append(joined, frame.Room)
		}
		ps.rooms <- joined
		ps.conns <- conn

		// Hold the connection open until the client or test closes it.
		ctx := conn.CloseRead(context.Background())
		<-ctx.Done()
	}))
	t.Cleanup(ps.srv.Close)
	return ps
}

func (ps *pushServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ps.srv.URL, "http")
}

func newTestPush(t *testing.T, ps *pushServer, deliver DeliverFunc, onConnect, onDisconnect func()) *Push {
	t.Helper()
	return NewPush(PushConfig{
		URL:    ps.wsURL(),
		Token:  "push-token",
		UserID: "42",
		Role:   "project_manager",
	}, deliver, diag.NewRecorder(nil), onConnect, onDisconnect)
}

func TestPush_JoinsRoomsAndDelivers(t *testing.T) {
	ps := newPushServer(t)
	delivered := make(chan notification.Notification, 8)
	connected := make(chan struct{}, 4)

	p := newTestPush(t, ps, func(n notification.Notification) { delivered <- n }, func() { connected <- struct{}{} }, nil)
	p.Start()
	p.Start() // idempotent
	defer p.Stop()

	assert.Equal(t, "push-token", <-ps.tokens)
	rooms := <-ps.rooms
	assert.Equal(t, []string{"user:42", "role:project_manager"}, rooms)

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("expected connect callback")
	}

	conn := <-ps.conns
	err := wsjson.Write(context.Background(), conn, map[string]any{
		"event": "notification",
		"data":  map[string]any{"id": 7, "title": "PO Approved", "userId": "42"},
	})
	require.NoError(t, err)

	select {
	case n := <-delivered:
		assert.Equal(t, "7", n.ID)
		assert.Equal(t, notification.ChannelPush, n.Channel)
	case <-time.After(2 * time.Second):
		t.Fatal("expected delivery")
	}

	// Unknown events and unparseable payloads are dropped silently.
	require.NoError(t, wsjson.Write(context.Background(), conn, map[string]any{"event": "ping"}))
	require.NoError(t, wsjson.Write(context.Background(), conn, map[string]any{
		"event": "notification",
		"data":  map[string]any{"title": "no id"},
	}))
	select {
	case n := <-delivered:
		t.Fatalf("unexpected delivery: %+v", n)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPush_WorkflowEventKind(t *testing.T) {
	ps := newPushServer(t)
	delivered := make(chan notification.Notification, 8)

	p := newTestPush(t, ps, func(n notification.Notification) { delivered <- n }, nil, nil)
	p.Start()
	defer p.Stop()

	conn := <-ps.conns
	require.NoError(t, wsjson.Write(context.Background(), conn, map[string]any{
		"event": "purchase_submitted",
		"data":  map[string]any{"id": "31", "title": "PR submitted", "senderId": "9"},
	}))

	n := <-delivered
	assert.Equal(t, notification.KindPurchaseSubmitted, n.Kind)
	assert.Equal(t, "9", n.SenderID)
}

func TestPush_ReconnectsAfterDrop(t *testing.T) {
	ps := newPushServer(t)
	connected := make(chan struct{}, 4)
	disconnected := make(chan struct{}, 4)

	p := newTestPush(t, ps, func(notification.Notification) {},
		func() { connected <- struct{}{} },
		func() { disconnected <- struct{}{} },
	)
	p.Start()
	defer p.Stop()

	<-connected
	conn := <-ps.conns
	require.NoError(t, conn.Close(websocket.StatusGoingAway, "server restart"))

	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("expected disconnect callback")
	}
	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("expected reconnect")
	}
	assert.GreaterOrEqual(t, ps.accepted.Load(), int64(2))
}

func TestPush_StopIdempotent(t *testing.T) {
	ps := newPushServer(t)
	p := newTestPush(t, ps, func(notification.Notification) {}, nil, nil)

	p.Stop() // never started
	p.Start()
	p.Stop()
	p.Stop()
	p.Rejoin(context.Background()) // no connection, no-op
}

// rejoinServer keeps reading join frames for the lifetime of each
// connection, unlike pushServer which hands the connection to the test
// after the initial joins.
func rejoinServer(t *testing.T) (string, chan joinFrame, *atomic.Int64) {
	t.Helper()
	joins := make(chan joinFrame, 16)
	var accepted atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		accepted.Add(1)
		for {
			var frame joinFrame
			if err := wsjson.Read(r.Context(), conn, &frame); err != nil {
				return
			}
			joins <- frame
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), joins, &accepted
}

func readJoin(t *testing.T, joins chan joinFrame) joinFrame {
	t.Helper()
	select {
	case frame := <-joins:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("expected join frame")
		return joinFrame{}
	}
}

func TestPush_RejoinReassertsRooms(t *testing.T) {
	url, joins, _ := rejoinServer(t)
	connected := make(chan struct{}, 4)

	p := NewPush(PushConfig{URL: url, Token: "t", UserID: "42", Role: "buyer"},
		func(notification.Notification) {}, diag.NewRecorder(nil), func() { connected <- struct{}{} }, nil)
	p.Start()
	defer p.Stop()

	<-connected
	assert.Equal(t, "user:42", readJoin(t, joins).Room)
	assert.Equal(t, "role:buyer", readJoin(t, joins).Room)

	p.Rejoin(context.Background())
	assert.Equal(t, "user:42", readJoin(t, joins).Room)
	assert.Equal(t, "role:buyer", readJoin(t, joins).Room)
}

func TestPush_RejoinFailureDropsConnection(t *testing.T) {
	url, _, accepted := rejoinServer(t)
	connected := make(chan struct{}, 4)
	disconnected := make(chan struct{}, 4)

	p := NewPush(PushConfig{URL: url, Token: "t", UserID: "42"},
		func(notification.Notification) {}, diag.NewRecorder(nil),
		func() { connected <- struct{}{} },
		func() { disconnected <- struct{}{} },
	)
	p.Start()
	defer p.Stop()

	<-connected

	// A rejoin that cannot write must drop the connection so the
	// reconnect loop replaces it; otherwise a wedged socket stays
	// "connected" forever.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Rejoin(ctx)

	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("expected disconnect after failed rejoin")
	}
	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		t.Fatal("expected reconnect after failed rejoin")
	}
	assert.GreaterOrEqual(t, accepted.Load(), int64(2))
}
