package health

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisPinger adapts a redis client, whose Ping returns a *StatusCmd.
func RedisPinger(client *redis.Client) Pinger {
	return PingFunc(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}
