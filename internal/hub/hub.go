// Package hub is the lifecycle controller. It owns the channel adapters,
// reacts to login/logout, and converges the delivery pipeline onto the
// current session: push and change feed while credentials allow it, the
// HTTP poll always, reconciliation fetches around every transition.
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/consite-erp/notify-agent/internal/channel"
	"github.com/consite-erp/notify-agent/internal/diag"
	"github.com/consite-erp/notify-agent/internal/domain/notification"
	"github.com/consite-erp/notify-agent/internal/pkg/sse"
	"github.com/consite-erp/notify-agent/internal/session"
)

// State is the connection state exposed to the UI.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Config configures the endpoints and cadence of the delivery pipeline.
type Config struct {
	PushURL        string        // websocket endpoint; empty disables the push channel
	APIBaseURL     string        // REST base for the poll channel
	FeedDSN        string        // postgres DSN; empty disables the change feed
	PollInterval   time.Duration // poll cadence while connected
	PollLimit      int
	ReconcileDelay time.Duration // delay before the post-disconnect reconciliation fetch
}

// Status is a snapshot of the pipeline for the status endpoint and the UI
// status events.
type Status struct {
	State      State  `json:"state"`
	UserID     string `json:"user_id,omitempty"`
	Role       string `json:"role,omitempty"`
	Push       bool   `json:"push"`
	ChangeFeed bool   `json:"change_feed"`
	Poll       bool   `json:"poll"`
}

// Hub converges the adapters onto the session credentials. All transitions
// are serialized under one mutex; adapter callbacks carry a generation
// number so a callback from a torn-down connection cannot disturb the
// current one.
type Hub struct {
	cfg      Config
	sessions *session.Store
	sink     notification.Sink
	ui       *sse.Hub
	diag     *diag.Recorder

	mu          sync.Mutex
	gen         uint64
	state       State
	creds       session.Credentials
	push        *channel.Push
	feed        *channel.ChangeFeed
	poll        *channel.Poll
	reconcile   *time.Timer
	unsubscribe func()
	done        chan struct{}
}

// New creates the hub. ReconcileDelay defaults to 2s.
func New(cfg Config, sessions *session.Store, sink notification.Sink, ui *sse.Hub, recorder *diag.Recorder) *Hub {
	if cfg.ReconcileDelay <= 0 {
		cfg.ReconcileDelay = 2 * time.Second
	}
	return &Hub{
		cfg:      cfg,
		sessions: sessions,
		sink:     sink,
		ui:       ui,
		diag:     recorder,
		state:    StateDisconnected,
	}
}

// Start wires the credential watch and brings the pipeline up for the
// current session. Idempotent.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.done != nil {
		h.mu.Unlock()
		return
	}
	h.done = make(chan struct{})
	done := h.done
	h.mu.Unlock()

	if err := h.sessions.Watch(); err != nil {
		h.diag.Record("hub", "session watch unavailable, relying on the credential check", err)
	}
	ch, cleanup := h.sessions.Subscribe()
	h.mu.Lock()
	h.unsubscribe = cleanup
	h.mu.Unlock()
	go h.credentialLoop(ch, done)

	h.apply(h.sessions.Current())
}

// Stop tears the pipeline down. Idempotent.
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.done == nil {
		h.mu.Unlock()
		return
	}
	close(h.done)
	h.done = nil
	unsubscribe := h.unsubscribe
	h.unsubscribe = nil
	stopped := h.teardownLocked()
	h.state = StateDisconnected
	h.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	stopAll(stopped)
}

// Status returns a snapshot of the pipeline.
func (h *Hub) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Status{
		State:      h.state,
		UserID:     h.creds.UserID,
		Role:       h.creds.Role,
		Push:       h.push != nil,
		ChangeFeed: h.feed != nil,
		Poll:       h.poll != nil,
	}
}

// CheckCredentials re-reads the session file and converges the pipeline.
// Scheduled as a maintenance job: the filesystem watch is the primary
// signal, this catches anything an atomic replace slips past it.
func (h *Hub) CheckCredentials(context.Context) error {
	h.apply(h.sessions.Refresh())
	return nil
}

// HealthCheck re-asserts the pipeline on every tick regardless of reported
// state: the push adapter re-sends its join frames (which also surfaces a
// half-open socket the read loop cannot detect) and a reconciliation fetch
// closes any delivery gap. Scheduled as a maintenance job.
func (h *Hub) HealthCheck(ctx context.Context) error {
	h.mu.Lock()
	present := h.creds.Present()
	push, poll := h.push, h.poll
	h.mu.Unlock()

	if !present || poll == nil {
		return nil
	}
	if push != nil {
		rejoinCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		push.Rejoin(rejoinCtx)
		cancel()
	}
	poll.Reconcile()
	return nil
}

// Reconnect forces a full teardown and rebuild with the current session.
func (h *Hub) Reconnect() {
	h.mu.Lock()
	if h.done == nil {
		h.mu.Unlock()
		return
	}
	creds := h.creds
	stopped := h.teardownLocked()
	h.mu.Unlock()
	stopAll(stopped)

	h.apply(creds)
}

func (h *Hub) credentialLoop(ch <-chan session.Credentials, done chan struct{}) {
	for {
		select {
		case creds, ok := <-ch:
			if !ok {
				return
			}
			h.apply(creds)
		case <-done:
			return
		}
	}
}

// apply converges the pipeline onto creds. Calling it again with unchanged
// credentials is a no-op, so the watch, the credential check, and the
// subscription can all fire for the same event without duplicating
// connections.
func (h *Hub) apply(creds session.Credentials) {
	h.mu.Lock()
	if h.done == nil {
		h.mu.Unlock()
		return
	}
	if creds == h.creds {
		if creds.Present() && h.poll != nil {
			h.mu.Unlock()
			return
		}
		if !creds.Present() && h.poll == nil {
			h.mu.Unlock()
			return
		}
	}

	stopped := h.teardownLocked()
	h.creds = creds

	if !creds.Present() {
		h.state = StateDisconnected
		h.mu.Unlock()
		stopAll(stopped)
		h.diag.Record("hub", "session ended, pipeline down", nil)
		h.publishStatus()
		return
	}

	h.state = StateConnecting
	h.buildLocked(creds)
	if h.push == nil {
		// Poll-only mode still delivers; report it as connected.
		h.state = StateConnected
	}
	// Start while still holding the lock (Start only spawns a goroutine):
	// a concurrent teardown must never observe built-but-unstarted adapters,
	// or it would collect them before their Stop can mean anything.
	h.poll.Start()
	if h.feed != nil {
		h.feed.Start()
	}
	if h.push != nil {
		h.push.Start()
	}
	h.mu.Unlock()
	stopAll(stopped)

	h.diag.Record("hub", "pipeline up for user "+creds.UserID, nil)
	h.publishStatus()
}

// buildLocked constructs the adapters for creds. Caller holds the lock.
func (h *Hub) buildLocked(creds session.Credentials) {
	h.gen++
	gen := h.gen

	h.poll = channel.NewPoll(channel.PollConfig{
		BaseURL:  h.cfg.APIBaseURL,
		Token:    creds.Token,
		Interval: h.cfg.PollInterval,
		Limit:    h.cfg.PollLimit,
	}, nil, h.sink.DeliverBatch, h.diag)

	if h.cfg.PushURL != "" {
		h.push = channel.NewPush(channel.PushConfig{
			URL:    h.cfg.PushURL,
			Token:  creds.Token,
			UserID: creds.UserID,
			Role:   creds.Role,
		}, h.sink.Deliver, h.diag,
			func() { h.onPushConnect(gen) },
			func() { h.onPushDisconnect(gen) },
		)
	}

	if h.cfg.FeedDSN != "" && creds.UserID != "" {
		h.feed = channel.NewChangeFeed(h.cfg.FeedDSN, creds.UserID, h.sink.Deliver, h.diag)
	}
}

// teardownLocked detaches the current adapters and invalidates their
// callbacks. The actual Stop calls happen outside the lock because a
// stopping adapter may be mid-callback. Caller holds the lock.
func (h *Hub) teardownLocked() []channel.Adapter {
	h.gen++
	if h.reconcile != nil {
		h.reconcile.Stop()
		h.reconcile = nil
	}
	var stopped []channel.Adapter
	if h.push != nil {
		stopped = append(stopped, h.push)
		h.push = nil
	}
	if h.feed != nil {
		stopped = append(stopped, h.feed)
		h.feed = nil
	}
	if h.poll != nil {
		stopped = append(stopped, h.poll)
		h.poll = nil
	}
	return stopped
}

// onPushConnect runs after every successful push handshake: the socket may
// have been down for a while, so a reconciliation fetch closes the gap.
func (h *Hub) onPushConnect(gen uint64) {
	h.mu.Lock()
	if gen != h.gen {
		h.mu.Unlock()
		return
	}
	h.state = StateConnected
	poll := h.poll
	h.mu.Unlock()

	if poll != nil {
		poll.Reconcile()
	}
	h.publishStatus()
}

// onPushDisconnect marks the pipeline degraded and schedules a delayed
// reconciliation fetch; the push adapter keeps reconnecting on its own.
func (h *Hub) onPushDisconnect(gen uint64) {
	h.mu.Lock()
	if gen != h.gen {
		h.mu.Unlock()
		return
	}
	h.state = StateReconnecting
	poll := h.poll
	if h.reconcile != nil {
		h.reconcile.Stop()
	}
	h.reconcile = time.AfterFunc(h.cfg.ReconcileDelay, func() {
		if poll != nil {
			poll.Reconcile()
		}
	})
	h.mu.Unlock()

	h.publishStatus()
}

func (h *Hub) publishStatus() {
	h.ui.Publish(sse.Event{Event: sse.EventStatus, Data: h.Status()})
}

func stopAll(adapters []channel.Adapter) {
	for _, a := range adapters {
		a.Stop()
	}
}
