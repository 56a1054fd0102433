package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ayo6706/token-ledger/internal/domain"
	"github.com/ayo6706/token-ledger/internal/observability"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "ledger:notify"

// RedisPublisher publishes each event as JSON on the account's channel.
type RedisPublisher struct {
	redis redis.Cmdable
}

func NewRedisPublisher(client redis.Cmdable) *RedisPublisher {
	return &RedisPublisher{redis: client}
}

func (p *RedisPublisher) Notify(ctx context.Context, events ...Event) {
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			zap.L().Warn("marshal notification", zap.Error(err))
			observability.IncrementNotification("redis", "failed")
			continue
		}
		if err := p.redis.Publish(ctx, Channel(e.Account), payload).Err(); err != nil {
			zap.L().Warn("redis notification publish failed", zap.String("account", e.Account.String()), zap.Error(err))
			observability.IncrementNotification("redis", "failed")
			continue
		}
		observability.IncrementNotification("redis", "delivered")
	}
}

// Channel is the pub/sub channel carrying events for account.
func Channel(account domain.Name) string {
	return fmt.Sprintf("%s:%s", channelPrefix, account)
}
