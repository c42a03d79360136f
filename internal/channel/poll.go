package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/consite-erp/notify-agent/internal/diag"
	"github.com/consite-erp/notify-agent/internal/domain/notification"
)

// PollConfig configures the HTTP poll adapter.
type PollConfig struct {
	BaseURL  string
	Token    string
	Interval time.Duration // default 30s
	Limit    int           // default 50
}

// Poll is the pull safety net. It runs unconditionally, even while the push
// socket is healthy, because a silent server-side drop is undetectable from
// the client; it also serves the on-demand reconciliation fetches the hub
// schedules around connects and disconnects. Every fetched page flows
// through the same normalize/filter/dedupe pipeline as push events, so
// re-fetching already-delivered notifications is harmless.
type Poll struct {
	cfg          PollConfig
	client       *http.Client
	deliverBatch BatchFunc
	diag         *diag.Recorder

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	trigger chan struct{}
}

// NewPoll creates the poll adapter.
func NewPoll(cfg PollConfig, client *http.Client, deliverBatch BatchFunc, recorder *diag.Recorder) *Poll {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 50
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Poll{
		cfg:          cfg,
		client:       client,
		deliverBatch: deliverBatch,
		diag:         recorder,
	}
}

func (p *Poll) Name() string { return "poll" }

// Start launches the polling loop. Calling it while already polling is a
// no-op: there is never more than one timer.
func (p *Poll) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.trigger = make(chan struct{}, 1)
	go p.run(ctx, p.done, p.trigger)
}

// Stop halts polling. Idempotent.
func (p *Poll) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.done = nil
	p.trigger = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Reconcile requests an immediate fetch outside the regular interval. If
// the poller is stopped or a fetch is already queued the signal is dropped.
func (p *Poll) Reconcile() {
	p.mu.Lock()
	trigger := p.trigger
	p.mu.Unlock()
	if trigger == nil {
		return
	}
	select {
	case trigger <- struct{}{}:
	default:
	}
}

func (p *Poll) run(ctx context.Context, done chan struct{}, trigger chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Initial fetch covers whatever accumulated before this session
	// connected.
	p.fetch(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.fetch(ctx)
		case <-trigger:
			p.fetch(ctx)
		}
	}
}

// fetch pulls the recent notification list and hands it to the pipeline.
// Failures are recorded and retried on the next tick; they never surface.
func (p *Poll) fetch(ctx context.Context) {
	items, err := p.FetchOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.diag.Record("poll", "fetch failed", err)
		}
		return
	}
	if len(items) > 0 {
		p.deliverBatch(items)
	}
}

// FetchOnce performs a single GET /notifications call and returns the
// normalized batch. Unparseable entries are dropped individually.
func (p *Poll) FetchOnce(ctx context.Context) ([]notification.Notification, error) {
	endpoint, err := url.Parse(p.cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	endpoint = endpoint.JoinPath("notifications")
	q := endpoint.Query()
	q.Set("unread_only", "false")
	q.Set("limit", strconv.Itoa(p.cfg.Limit))
	endpoint.RawQuery = q.Encode()

	reqCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.Token)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("notifications fetch: http %d", resp.StatusCode)
	}

	var payload notification.PollResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("notifications fetch: %w", err)
	}
	if !payload.Success {
		return nil, fmt.Errorf("notifications fetch: backend reported failure")
	}

	items := make([]notification.Notification, 0, len(payload.Notifications))
	for _, raw := range payload.Notifications {
		n, err := notification.NormalizePollItem(raw)
		if err != nil {
			p.diag.Record("poll", "dropped unparseable item", err)
			continue
		}
		items = append(items, n)
	}
	return items, nil
}
