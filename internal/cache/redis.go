package cache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RedisClient struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisClient(addr, password string, db int, log *zap.Logger) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Error("failed to connect to redis", zap.String("addr", addr), zap.Error(err))
		return nil, errors.Wrap(err, "ping redis")
	}

	log.Info("connected to redis", zap.String("addr", addr))
	return &RedisClient{client: client, log: log}, nil
}

// NewFromClient wraps an existing go-redis client.
func NewFromClient(client *redis.Client, log *zap.Logger) *RedisClient {
	return &RedisClient{client: client, log: log}
}

// AllowPoll reports whether the provider may be queried for key now. The
// first caller in every interval takes the slot, the rest are told to wait.
func (r *RedisClient) AllowPoll(ctx context.Context, key string, interval time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, "mpesa:poll:"+key, 1, interval).Result()
	if err != nil {
		return false, errors.Wrap(err, "setnx poll slot")
	}
	return ok, nil
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}
