package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis инициализирует клиент Redis и проверяет соединение
func ConnectRedis(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора REDIS_URL: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ошибка подключения к Redis: %w", err)
	}

	return rdb, nil
}

// DisconnectRedis закрывает соединение с Redis
func DisconnectRedis(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
