package notify

import (
	"context"
	"sync"

	"trustcompute/pkg/interfaces"
	"trustcompute/pkg/logger"

	"github.com/go-redis/redis/v8"
)

// DefaultChannelPrefix Pub/Sub channel prefix for completion messages
const DefaultChannelPrefix = "tcs:wo-done:"

// RedisNotifier completion notifier over Redis Pub/Sub, so the replica that
// accepted a work order hears about completion on any other replica
type RedisNotifier struct {
	client *redis.Client
	prefix string
}

var _ interfaces.CompletionNotifier = (*RedisNotifier)(nil)

// NewRedisNotifier creates a new Redis notifier
func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client, prefix: DefaultChannelPrefix}
}

func (n *RedisNotifier) channel(workOrderID string) string {
	return n.prefix + workOrderID
}

// Publish sends the completion message for workOrderID
func (n *RedisNotifier) Publish(ctx context.Context, workOrderID string) error {
	return n.client.Publish(ctx, n.channel(workOrderID), workOrderID).Err()
}

// Subscribe waits for the subscription to be confirmed before returning, so a
// Publish issued afterwards is never missed
func (n *RedisNotifier) Subscribe(ctx context.Context, workOrderID string) (<-chan struct{}, func()) {
	done := make(chan struct{})
	pubsub := n.client.Subscribe(ctx, n.channel(workOrderID))

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			if err := pubsub.Close(); err != nil {
				logger.DebugCtx(ctx, "close subscription for %s: %v", workOrderID, err)
			}
		})
	}

	if _, err := pubsub.Receive(ctx); err != nil {
		logger.WarnCtx(ctx, "subscribe to completion of %s failed: %v", workOrderID, err)
		cancel()
		return done, cancel
	}

	messages := pubsub.Channel()
	go func() {
		select {
		case _, ok := <-messages:
			if ok {
				close(done)
			}
		case <-ctx.Done():
		}
		cancel()
	}()
	return done, cancel
}
