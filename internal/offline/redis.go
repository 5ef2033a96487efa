package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chess-vn/slduel/internal/domains/entities"
	"github.com/chess-vn/slduel/pkg/logging"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "slduel:offline:"

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// NewRedisClient connects and pings the server before returning.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

// RedisQueue keeps one list per user. Every write refreshes the list TTL so a
// backlog disappears an hour after its last message.
type RedisQueue struct {
	rdb  redis.UniversalClient
	opts Options
}

func NewRedisQueue(rdb redis.UniversalClient, opts Options) *RedisQueue {
	return &RedisQueue{rdb: rdb, opts: opts.withDefaults()}
}

func messagesKey(userId string) string {
	return keyPrefix + userId
}

func deliveredKey(userId string) string {
	return keyPrefix + userId + ":delivered"
}

func (q *RedisQueue) Enqueue(ctx context.Context, userId string, payload []byte) (entities.QueuedMessage, error) {
	msg := entities.QueuedMessage{
		Id:        uuid.NewString(),
		UserId:    userId,
		Payload:   payload,
		Timestamp: q.opts.Now(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return entities.QueuedMessage{}, fmt.Errorf("failed to marshal queued message: %w", err)
	}
	key := messagesKey(userId)
	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, int64(-q.opts.MaxBacklog), -1)
		pipe.Expire(ctx, key, q.opts.TTL)
		return nil
	})
	if err != nil {
		return entities.QueuedMessage{}, fmt.Errorf("failed to enqueue message: %w", err)
	}
	return msg, nil
}

func (q *RedisQueue) Drain(ctx context.Context, userId string) ([]entities.QueuedMessage, error) {
	key := messagesKey(userId)
	var entries *redis.StringSliceCmd
	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		entries = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to drain queue: %w", err)
	}
	raw, err := entries.Result()
	if err != nil {
		return nil, fmt.Errorf("failed to drain queue: %w", err)
	}

	messages := make([]entities.QueuedMessage, 0, len(raw))
	for _, entry := range raw {
		var msg entities.QueuedMessage
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			logging.Warn("dropping malformed queued message",
				zap.String("userId", userId),
				zap.Error(err),
			)
			continue
		}
		if q.opts.expired(msg) {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (q *RedisQueue) MarkDelivered(ctx context.Context, userId, messageId string) error {
	key := deliveredKey(userId)
	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, key, messageId)
		pipe.Expire(ctx, key, q.opts.TTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to mark message delivered: %w", err)
	}
	return nil
}
