package channel

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/consite-erp/notify-agent/internal/diag"
	"github.com/consite-erp/notify-agent/internal/domain/notification"
)

// pushFrame is the wire envelope on the websocket channel.
type pushFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// joinFrame subscribes the connection to a room. Every connect re-joins the
// per-user and per-role rooms; the server keeps no subscription state across
// connections.
type joinFrame struct {
	Action string `json:"action"`
	Room   string `json:"room"`
}

// PushConfig configures the websocket push adapter for one session.
type PushConfig struct {
	URL    string // ws(s) endpoint
	Token  string // session token, sent as query parameter
	UserID string
	Role   string
}

// Push maintains the persistent websocket channel to the backend and
// translates named events into canonical notifications. Connection failures
// are retried forever with capped backoff; the adapter never reports an
// error to its caller.
type Push struct {
	cfg          PushConfig
	deliver      DeliverFunc
	diag         *diag.Recorder
	onConnect    func()
	onDisconnect func()

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	conn   *websocket.Conn
}

// NewPush creates the push adapter. onConnect fires after every successful
// handshake once the rooms are joined; onDisconnect fires when an
// established connection is lost. Either may be nil.
func NewPush(cfg PushConfig, deliver DeliverFunc, recorder *diag.Recorder, onConnect, onDisconnect func()) *Push {
	return &Push{
		cfg:          cfg,
		deliver:      deliver,
		diag:         recorder,
		onConnect:    onConnect,
		onDisconnect: onDisconnect,
	}
}

func (p *Push) Name() string { return "push" }

// Start launches the connect/read loop. Idempotent.
func (p *Push) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
}

// Stop closes the connection and halts reconnection. Idempotent.
func (p *Push) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Push) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return
		}

		conn, err := p.connect(ctx)
		if err != nil {
			p.diag.Record("push", "connect failed", err)
			if !sleepCtx(ctx, backoffDelay(attempt, time.Second, 30*time.Second)) {
				return
			}
			continue
		}

		attempt = 0
		p.setConn(conn)
		if p.onConnect != nil {
			p.onConnect()
		}

		err = p.readLoop(ctx, conn)
		p.setConn(nil)
		_ = conn.Close(websocket.StatusNormalClosure, "")
		if ctx.Err() != nil {
			return
		}
		p.diag.Record("push", "connection lost", err)
		if p.onDisconnect != nil {
			p.onDisconnect()
		}
	}
}

// connect dials the endpoint and joins the user and role rooms.
func (p *Push) connect(ctx context.Context) (*websocket.Conn, error) {
	endpoint, err := url.Parse(p.cfg.URL)
	if err != nil {
		return nil, err
	}
	q := endpoint.Query()
	q.Set("token", p.cfg.Token)
	endpoint.RawQuery = q.Encode()

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}

	if err := p.join(ctx, conn); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "join failed")
		return nil, err
	}
	return conn, nil
}

// join subscribes the connection to the user and role rooms.
func (p *Push) join(ctx context.Context, conn *websocket.Conn) error {
	rooms := []string{"user:" + p.cfg.UserID}
	if p.cfg.Role != "" {
		rooms = append(rooms, "role:"+p.cfg.Role)
	}
	for _, room := range rooms {
		if err := wsjson.Write(ctx, conn, joinFrame{Action: "join", Room: room}); err != nil {
			return err
		}
	}
	return nil
}

func (p *Push) setConn(conn *websocket.Conn) {
	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()
}

// Rejoin re-sends the join frames on the live connection. Membership is
// re-asserted and the write doubles as a liveness probe: the server keeps no
// subscription state the client can query, and a half-open socket never
// errors the read loop on its own. A connection that cannot take the frames
// is closed so the reconnect loop replaces it. No-op while disconnected.
func (p *Push) Rejoin(ctx context.Context) {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return
	}
	if err := p.join(ctx, conn); err != nil {
		p.diag.Record("push", "rejoin failed, dropping connection", err)
		_ = conn.Close(websocket.StatusAbnormalClosure, "rejoin failed")
	}
}

func (p *Push) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var frame pushFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return err
		}
		p.handleFrame(frame)
	}
}

func (p *Push) handleFrame(frame pushFrame) {
	known := false
	for _, name := range notification.PushEventNames() {
		if frame.Event == name {
			known = true
			break
		}
	}
	if !known {
		return
	}

	n, err := notification.NormalizePush(frame.Event, frame.Data)
	if err != nil {
		p.diag.Record("push", "dropped unparseable event "+frame.Event, err)
		return
	}
	p.deliver(n)
}

// sleepCtx waits for the delay and reports false when the context ended
// first.
func sleepCtx(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
