package queue

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Event names published on the notification channel.
const (
	EventEnqueued = "enqueued"
	EventCompleted = "completed"
	EventFailed    = "failed"
	EventRetried   = "retried"
)

const channelName = "spatelier:jobs"

// NotificationBus is a pub/sub side channel over Redis, adapted from the
// connection pattern in the teacher's internal/state.NewStateManager.
// It carries no authoritative state: losing every subscriber is a
// latency regression (workers fall back to polling ClaimNext), never a
// correctness one.
type NotificationBus struct {
	client *redis.Client
}

// NewNotificationBus connects to addr/db and verifies reachability.
func NewNotificationBus(ctx context.Context, addr string, db int) (*NotificationBus, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return &NotificationBus{client: client}, nil
}

// Publish announces event for jobID to every subscriber.
func (b *NotificationBus) Publish(ctx context.Context, event string, jobID int64) error {
	payload := event + ":" + strconv.FormatInt(jobID, 10)
	return b.client.Publish(ctx, channelName, payload).Err()
}

// Subscribe returns a channel of (event, jobID) notifications. The
// caller must drain it and call Close when done.
func (b *NotificationBus) Subscribe(ctx context.Context) *Subscription {
	pubsub := b.client.Subscribe(ctx, channelName)
	return &Subscription{pubsub: pubsub}
}

// Close releases the underlying Redis connection.
func (b *NotificationBus) Close() error { return b.client.Close() }

// Subscription wraps a redis.PubSub, decoding its raw payloads into
// (event, jobID) pairs so callers never parse the wire format themselves.
type Subscription struct {
	pubsub *redis.PubSub
}

// Notification is one decoded pub/sub message.
type Notification struct {
	Event string
	JobID int64
}

// Next blocks until a notification arrives or ctx is cancelled.
func (s *Subscription) Next(ctx context.Context) (Notification, error) {
	msg, err := s.pubsub.ReceiveMessage(ctx)
	if err != nil {
		return Notification{}, err
	}
	event, idStr, found := strings.Cut(msg.Payload, ":")
	if !found {
		return Notification{}, fmt.Errorf("malformed notification payload %q", msg.Payload)
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return Notification{}, fmt.Errorf("malformed notification job id %q: %w", idStr, err)
	}
	return Notification{Event: event, JobID: id}, nil
}

// Close unsubscribes and releases resources.
func (s *Subscription) Close() error { return s.pubsub.Close() }
