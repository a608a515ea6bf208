package notify

import (
	"context"
	"encoding/json"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

// Publisher is the subset of a Redis client used for notifications.
// *redis.Client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisNotifier publishes each notification once per push channel on
// "<prefix>:<channel>".
type RedisNotifier struct {
	client Publisher
	prefix string
}

// NewRedisClient connects to the Redis server at addr.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

// NewRedisNotifier creates a notifier publishing through client.
func NewRedisNotifier(client Publisher, prefix string) *RedisNotifier {
	if prefix == "" {
		prefix = "geosync"
	}
	return &RedisNotifier{client: client, prefix: prefix}
}

// Channel returns the Redis channel of a push channel
func (r *RedisNotifier) Channel(push string) string {
	return r.prefix + ":" + push
}

// Notify implements Notifier
func (r *RedisNotifier) Notify(ctx context.Context, n Notification) error {
	if r == nil {
		return nil
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	for _, ch := range n.PushChannels {
		if err := r.client.Publish(ctx, r.Channel(ch), data).Err(); err != nil {
			return fmt.Errorf("redis publish channel=%s id=%s: %w", ch, n.ID, err)
		}
	}
	return nil
}
