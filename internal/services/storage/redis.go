package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shafeequrrehman007/wagpt/internal/config"
	"github.com/shafeequrrehman007/wagpt/internal/models"
	"github.com/sirupsen/logrus"
)

// RedisStorage keeps each user's log as one JSON value.
type RedisStorage struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisStorage(cfg *config.RedisConfig, logger *logrus.Logger) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStorage{
		client: client,
		logger: logger,
	}, nil
}

func (r *RedisStorage) GetHistory(ctx context.Context, userID string) ([]models.Turn, error) {
	data, err := r.client.Get(ctx, historyKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var turns []models.Turn
	if err := json.Unmarshal([]byte(data), &turns); err != nil {
		r.logger.WithError(err).WithField("user", userID).Warn("Discarding malformed history")
		return nil, nil
	}

	return turns, nil
}

func (r *RedisStorage) SaveHistory(ctx context.Context, userID string, turns []models.Turn) error {
	data, err := json.Marshal(turns)
	if err != nil {
		return err
	}

	return r.client.Set(ctx, historyKey(userID), data, 0).Err()
}

func (r *RedisStorage) DeleteHistory(ctx context.Context, userID string) (bool, error) {
	n, err := r.client.Del(ctx, historyKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}
