package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// relayMessage is the JSON envelope carried on the Redis channel.
type relayMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// RedisRelay bridges hubs of several server instances over Redis pub/sub.
// Broadcast publishes to Redis; every instance, this one included, receives
// the message in Run and fans it out to its local hub. While this instance
// is not subscribed, Broadcast delivers to the local hub directly.
type RedisRelay struct {
	client  *redis.Client
	channel string
	hub     *Hub
	log     *zap.Logger
	timeout time.Duration

	subscribed    atomic.Bool
	subscriptions atomic.Int64
	minBackoff    time.Duration
	maxBackoff    time.Duration
}

// NewRedisRelay creates a relay feeding hub from the given Redis channel.
func NewRedisRelay(client *redis.Client, channel string, hub *Hub, log *zap.Logger) *RedisRelay {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisRelay{
		client:  client,
		channel: channel,
		hub:     hub,
		log:     log,
		timeout: 2 * time.Second,

		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
	}
}

// Subscribed reports whether Run currently holds a confirmed subscription.
func (r *RedisRelay) Subscribed() bool {
	return r.subscribed.Load()
}

// Broadcast publishes the event on Redis. Local subscribers are served
// directly when Redis rejects the publish, when this relay is not
// subscribed, or when Redis reports no receivers. A Redis error is returned
// after the local delivery.
func (r *RedisRelay) Broadcast(ctx context.Context, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("relay: encode payload: %w", err)
	}
	msg, err := json.Marshal(relayMessage{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("relay: encode message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	receivers, err := r.client.Publish(ctx, r.channel, msg).Result()
	if err != nil {
		r.hub.Publish(event, json.RawMessage(data))
		return fmt.Errorf("relay: publish to %s: %w", r.channel, err)
	}
	if receivers == 0 || !r.subscribed.Load() {
		n := r.hub.Publish(event, json.RawMessage(data))
		r.log.Debug("relay not subscribed, delivered locally",
			zap.String("event", event), zap.Int64("receivers", receivers), zap.Int("queued", n))
	}
	return nil
}

// Run subscribes to the Redis channel and forwards messages to the local hub until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("relay: subscribe to %s: %w", r.channel, err)
	}
	r.subscribed.Store(true)
	r.subscriptions.Add(1)
	defer r.subscribed.Store(false)
	r.log.Info("relay subscribed", zap.String("channel", r.channel))

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-msgs:
			if !ok {
				return fmt.Errorf("relay: subscription to %s closed", r.channel)
			}
			r.deliver(m.Payload)
		}
	}
}

// Serve keeps Run alive until ctx is done, restarting it with exponential
// backoff. The backoff resets once a subscription has been confirmed.
func (r *RedisRelay) Serve(ctx context.Context) {
	backoff := r.minBackoff
	for {
		before := r.subscriptions.Load()
		err := r.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if r.subscriptions.Load() != before {
			backoff = r.minBackoff
		}
		r.log.Warn("relay stopped, restarting",
			zap.String("channel", r.channel), zap.Duration("backoff", backoff), zap.Error(err))

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		backoff = min(backoff*2, r.maxBackoff)
	}
}

func (r *RedisRelay) deliver(raw string) {
	var msg relayMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		r.log.Warn("relay: dropping malformed message", zap.Error(err))
		return
	}
	n := r.hub.Publish(msg.Event, msg.Data)
	r.log.Debug("relay delivered", zap.String("event", msg.Event), zap.Int("queued", n))
}
