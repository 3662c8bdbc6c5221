package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"cvlm/internal/ports"
)

// ChannelPrefix 是用户通知频道前缀，WebSocket 端按同样规则订阅。
const ChannelPrefix = "user_notify:"

func Channel(userID string) string { return ChannelPrefix + userID }

type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisNotifier 通过 Redis Pub/Sub 推送生成结果。
type RedisNotifier struct {
	client publisher
}

var _ ports.Notifier = (*RedisNotifier)(nil)

func NewRedisNotifier(client publisher) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func (n *RedisNotifier) NotifyGeneration(ctx context.Context, userID string, event ports.GenerationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := Channel(userID)
	if err := n.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}
