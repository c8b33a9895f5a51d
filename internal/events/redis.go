package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel stage-changed events are published to
// when none is configured.
const DefaultChannel = "journey:stage-changed"

// RedisPublisher publishes stage-changed events as JSON on a Redis pub/sub
// channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher creates a publisher on the given channel. An empty
// channel selects DefaultChannel.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// NotifyStageChanged implements Notifier.
func (p *RedisPublisher) NotifyStageChanged(ctx context.Context, ev StageChanged) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal stage-changed event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish stage-changed event: %w", err)
	}
	return nil
}
