package channel

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/consite-erp/notify-agent/internal/diag"
	"github.com/consite-erp/notify-agent/internal/domain/notification"
)

// feedConn is the surface of *pgx.Conn the change feed uses; it exists so
// tests can run the loop against a fake connection.
type feedConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

type connectFunc func(ctx context.Context, dsn string) (feedConn, error)

func pgxConnect(ctx context.Context, dsn string) (feedConn, error) {
	return pgx.Connect(ctx, dsn)
}

// ChangeFeed subscribes to insert events on the backend's notifications
// table over a dedicated Postgres connection. The subscription channel is
// scoped to one user id so filtering happens server-side; a session never
// receives another user's traffic on this channel. It exists alongside the
// push socket on purpose: either channel alone can silently drop an event,
// and the sink deduplicates whatever arrives twice.
type ChangeFeed struct {
	dsn     string
	userID  string
	deliver DeliverFunc
	diag    *diag.Recorder
	connect connectFunc

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewChangeFeed creates a change-feed adapter scoped to userID.
func NewChangeFeed(dsn, userID string, deliver DeliverFunc, recorder *diag.Recorder) *ChangeFeed {
	return &ChangeFeed{
		dsn:     dsn,
		userID:  userID,
		deliver: deliver,
		diag:    recorder,
		connect: pgxConnect,
	}
}

func (f *ChangeFeed) Name() string { return "changefeed" }

// channelName returns the per-user LISTEN channel, quoted as an identifier
// since user ids come from token claims.
func (f *ChangeFeed) channelName() string {
	return pgx.Identifier{"erp_notifications_user_" + f.userID}.Sanitize()
}

// Start launches the subscribe/listen loop. Idempotent.
func (f *ChangeFeed) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.done = make(chan struct{})
	go f.run(ctx, f.done)
}

// Stop closes the subscription. Idempotent.
func (f *ChangeFeed) Stop() {
	f.mu.Lock()
	cancel, done := f.cancel, f.done
	f.cancel = nil
	f.done = nil
	f.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (f *ChangeFeed) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return
		}

		conn, err := f.connect(ctx, f.dsn)
		if err != nil {
			f.diag.Record("changefeed", "connect failed", err)
			if !sleepCtx(ctx, backoffDelay(attempt, time.Second, 30*time.Second)) {
				return
			}
			continue
		}

		if _, err := conn.Exec(ctx, "LISTEN "+f.channelName()); err != nil {
			f.diag.Record("changefeed", "listen failed", err)
			_ = conn.Close(ctx)
			if !sleepCtx(ctx, backoffDelay(attempt, time.Second, 30*time.Second)) {
				return
			}
			continue
		}

		attempt = 0
		err = f.listenLoop(ctx, conn)
		_ = conn.Close(context.Background())
		if ctx.Err() != nil {
			return
		}
		f.diag.Record("changefeed", "subscription lost", err)
	}
}

func (f *ChangeFeed) listenLoop(ctx context.Context, conn feedConn) error {
	for {
		msg, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		n, err := notification.NormalizeChangeRow([]byte(msg.Payload))
		if err != nil {
			f.diag.Record("changefeed", "dropped unparseable row", err)
			continue
		}
		f.deliver(n)
	}
}
