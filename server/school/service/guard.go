package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const messageIdempotencyTTL = 24 * time.Hour

// MessageGuard rejects a message id that was already accepted for a
// conversation, so client retries do not append twice.
type MessageGuard interface {
	Claim(ctx context.Context, conversationID, messageID string) (bool, error)
	Release(ctx context.Context, conversationID, messageID string)
}

type RedisMessageGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisMessageGuard(client *redis.Client) *RedisMessageGuard {
	return &RedisMessageGuard{client: client, ttl: messageIdempotencyTTL}
}

func messageIdempotencyKey(conversationID, messageID string) string {
	return fmt.Sprintf("school:message:idempotency:%s:%s", conversationID, messageID)
}

func (g *RedisMessageGuard) Claim(ctx context.Context, conversationID, messageID string) (bool, error) {
	return g.client.SetNX(ctx, messageIdempotencyKey(conversationID, messageID), "1", g.ttl).Result()
}

func (g *RedisMessageGuard) Release(ctx context.Context, conversationID, messageID string) {
	_, _ = g.client.Del(ctx, messageIdempotencyKey(conversationID, messageID)).Result()
}
