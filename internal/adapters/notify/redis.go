package notify

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jsamuelsen11/numbers-core/internal/domain/event"
	"github.com/jsamuelsen11/numbers-core/internal/ports"
)

// Compile-time interface check.
var _ ports.Channel = (*RedisChannel)(nil)

// RedisChannel publishes events on a pub/sub topic for push gateways. A
// publish with no subscribers still counts as delivered.
type RedisChannel struct {
	rdb   goredis.UniversalClient
	topic string
}

// NewRedisChannel returns a channel publishing to topic.
func NewRedisChannel(rdb goredis.UniversalClient, topic string) *RedisChannel {
	return &RedisChannel{rdb: rdb, topic: topic}
}

// Name implements [ports.Channel].
func (c *RedisChannel) Name() string {
	return "redis"
}

// Deliver implements [ports.Channel].
func (c *RedisChannel) Deliver(ctx context.Context, ev event.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event %s: %w", ev.ID, err)
	}
	if err := c.rdb.Publish(ctx, c.topic, payload).Err(); err != nil {
		return fmt.Errorf("publishing event %s to %s: %w", ev.ID, c.topic, err)
	}
	return nil
}
