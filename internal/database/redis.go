package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/ruralpay/ledger/internal/config"
	"github.com/ruralpay/ledger/internal/models"
)

// InitRedis connects to redis; callers decide whether a failure is fatal
func InitRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Host + ":" + cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("error connecting to redis: %w", err)
	}
	return rdb, nil
}

// RedisPublisher appends every posted transfer to a redis list so downstream
// consumers can follow the log without polling postgres.
type RedisPublisher struct {
	client *redis.Client
	key    string
}

func NewRedisPublisher(client *redis.Client, key string) *RedisPublisher {
	return &RedisPublisher{client: client, key: key}
}

func (p *RedisPublisher) PublishTransfer(ctx context.Context, transfer models.Transfer) error {
	data, err := json.Marshal(transfer)
	if err != nil {
		return err
	}
	return p.client.RPush(ctx, p.key, data).Err()
}
