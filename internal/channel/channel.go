// Package channel implements the delivery channels: the websocket push
// adapter, the database change-feed adapter, and the HTTP poll adapter. Each
// channel is an independent transport for the same logical notifications;
// redundancy is deliberate and duplicates are resolved downstream by the
// delivery sink, never here.
package channel

import (
	"time"

	"github.com/consite-erp/notify-agent/internal/domain/notification"
)

// Adapter is one transport capable of delivering notifications. Start is
// non-blocking and idempotent; Stop tears the transport down and is safe to
// call repeatedly.
type Adapter interface {
	Name() string
	Start()
	Stop()
}

// DeliverFunc hands a canonical notification to the delivery pipeline.
type DeliverFunc func(notification.Notification)

// BatchFunc hands a reconciliation batch to the delivery pipeline in one
// call so the store applies it as a single mutation.
type BatchFunc func([]notification.Notification)

// backoffDelay returns the capped exponential delay before reconnect
// attempt n (1-based). Retries are unbounded; only the delay is capped.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if max <= 0 {
		max = 30 * time.Second
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
