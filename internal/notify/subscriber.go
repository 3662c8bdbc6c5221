package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"cvlm/internal/domain"
	"cvlm/internal/ports"
)

// Subscriber 订阅用户频道，把消息解码成 GenerationEvent。
type Subscriber struct {
	client *redis.Client
	logger *slog.Logger
}

func NewSubscriber(client *redis.Client, logger *slog.Logger) *Subscriber {
	return &Subscriber{client: client, logger: logger}
}

// Subscribe 在订阅确认后返回事件流。ctx 结束或 Redis 断开时事件流关闭。
func (s *Subscriber) Subscribe(ctx context.Context, userID string) (<-chan ports.GenerationEvent, error) {
	channel := Channel(userID)
	pubsub := s.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %q: %w", channel, err)
	}

	out := make(chan ports.GenerationEvent)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				event, err := DecodeEvent([]byte(msg.Payload))
				if err != nil {
					s.logger.Warn("drop malformed generation event",
						slog.String("channel", channel),
						slog.Any("error", err),
					)
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// DecodeEvent 解析并校验频道消息。
func DecodeEvent(data []byte) (ports.GenerationEvent, error) {
	var event ports.GenerationEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return event, fmt.Errorf("decode generation event: %w", err)
	}
	if !event.Type.Valid() {
		return event, fmt.Errorf("unknown generation type %q", event.Type)
	}
	switch event.Status {
	case domain.StatusSuccess, domain.StatusFailed:
	default:
		return event, fmt.Errorf("unknown generation status %q", event.Status)
	}
	return event, nil
}
