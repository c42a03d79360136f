package channel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consite-erp/notify-agent/internal/diag"
	"github.com/consite-erp/notify-agent/internal/domain/notification"
)

// fakeFeedConn replays queued payloads, then blocks until the context ends.
type fakeFeedConn struct {
	mu       sync.Mutex
	listens  []string
	payloads []string
}

func (c *fakeFeedConn) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listens = append(c.listens, sql)
	return pgconn.CommandTag{}, nil
}

func (c *fakeFeedConn) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	c.mu.Lock()
	if len(c.payloads) > 0 {
		payload := c.payloads[0]
		c.payloads = c.payloads[1:]
		c.mu.Unlock()
		return &pgconn.Notification{Payload: payload}, nil
	}
	c.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *fakeFeedConn) Close(ctx context.Context) error { return nil }

func TestChangeFeed_DeliversRows(t *testing.T) {
	conn := &fakeFeedConn{payloads: []string{
		`{"id": 7, "recipient_id": 42, "type": "purchase_approved", "title": "PO Approved", "created_at": "2026-03-01 10:00:00"}`,
		`{broken`,
		`{"id": 8, "recipient_id": 42, "title": "Second"}`,
	}}

	delivered := make(chan notification.Notification, 8)
	f := NewChangeFeed("postgres://ignored", "42", func(n notification.Notification) { delivered <- n }, diag.NewRecorder(nil))
	f.connect = func(ctx context.Context, dsn string) (feedConn, error) { return conn, nil }

	f.Start()
	f.Start() // idempotent
	defer f.Stop()

	first := <-delivered
	assert.Equal(t, "7", first.ID)
	assert.Equal(t, "42", first.TargetUserID)
	assert.Equal(t, notification.ChannelChangeFeed, first.Channel)

	// The malformed row is dropped, the next valid one still arrives.
	second := <-delivered
	assert.Equal(t, "8", second.ID)

	conn.mu.Lock()
	defer conn.mu.Unlock()
	require.Len(t, conn.listens, 1)
	assert.Equal(t, `LISTEN "erp_notifications_user_42"`, conn.listens[0])
}

func TestChangeFeed_ReconnectsAfterFailure(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	delivered := make(chan notification.Notification, 1)
	f := NewChangeFeed("postgres://ignored", "42", func(n notification.Notification) { delivered <- n }, diag.NewRecorder(nil))
	f.connect = func(ctx context.Context, dsn string) (feedConn, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return nil, errors.New("connection refused")
		}
		return &fakeFeedConn{payloads: []string{`{"id": 1, "recipient_id": 42, "title": "after retry"}`}}, nil
	}

	f.Start()
	defer f.Stop()

	select {
	case n := <-delivered:
		assert.Equal(t, "1", n.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("expected delivery after reconnect")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, attempts, 2)
}

func TestChangeFeed_StopIdempotent(t *testing.T) {
	f := NewChangeFeed("postgres://ignored", "42", func(notification.Notification) {}, diag.NewRecorder(nil))
	f.connect = func(ctx context.Context, dsn string) (feedConn, error) { return &fakeFeedConn{}, nil }

	f.Stop() // never started
	f.Start()
	f.Stop()
	f.Stop()
}
