package resultlog

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ruslano69/geoimport/pkg/settings"
)

// RedisPublisher stores and announces results in Redis:
//
//	SET  geoimport:run:<name>:state  <JSON>  EX <ttl>  — для GET-запросов оркестратора
//	PUB  geoimport:run:<name>                          — для event-driven маршрутизации
type RedisPublisher struct {
	client *redis.Client
	config settings.ResultLogConfig
}

// NewRedisPublisher creates a publisher from the result log settings.
func NewRedisPublisher(config settings.ResultLogConfig) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
	})
	return &RedisPublisher{client: client, config: config}
}

// StateKey is the key holding the last result of name.
func StateKey(name string) string {
	return fmt.Sprintf("geoimport:run:%s:state", name)
}

// EventChannel is the channel results of name are published on.
func EventChannel(name string) string {
	return fmt.Sprintf("geoimport:run:%s", name)
}

// Publish sets the state key with a TTL, then publishes the same payload.
func (p *RedisPublisher) Publish(ctx context.Context, result RunResult) error {
	payload, err := result.marshal()
	if err != nil {
		return err
	}

	ttl := time.Duration(p.config.TTL) * time.Second

	if err := p.client.Set(ctx, StateKey(p.config.Name), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}

	if err := p.client.Publish(ctx, EventChannel(p.config.Name), payload).Err(); err != nil {
		return fmt.Errorf("redis PUBLISH failed: %w", err)
	}

	return nil
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
