// Package cache — JSON-кеш поверх redis. Используется для снимков доступа,
// которые шлюз читает на каждый защищённый запрос.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/magabrotheeeer/billing-gate/internal/config"
)

// Cache хранит значения в redis в виде JSON.
type Cache struct {
	Db *redis.Client
}

// InitServer подключается к redis и проверяет соединение.
func InitServer(ctx context.Context, cfg config.RedisConnection) (*Cache, error) {
	const op = "cache.InitServer"

	db := redis.NewClient(&redis.Options{
		Addr:         cfg.AddressRedis,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Username:     cfg.User,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.TimeoutRedis,
		WriteTimeout: cfg.TimeoutRedis,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Cache{Db: db}, nil
}

// Get читает значение по ключу в result. Возвращает false, если ключа нет.
func (c *Cache) Get(ctx context.Context, key string, result any) (bool, error) {
	const op = "cache.Get"

	val, err := c.Db.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if err = json.Unmarshal(val, result); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// Generation возвращает поколение genKey. Отсутствующий ключ — поколение 0.
func (c *Cache) Generation(ctx context.Context, genKey string) (int64, error) {
	const op = "cache.Generation"

	gen, err := c.Db.Get(ctx, genKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return gen, nil
}

// SetIfGeneration сохраняет значение на время expiration, только если
// поколение genKey всё ещё равно gen. Если поколение сменилось, запись
// пропускается и возвращается false.
func (c *Cache) SetIfGeneration(ctx context.Context, genKey string, gen int64, key string, value any, expiration time.Duration) (bool, error) {
	const op = "cache.SetIfGeneration"

	jsonData, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	stored := false
	err = c.Db.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return nil
		}
		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, jsonData, expiration)
			return nil
		}); err != nil {
			return err
		}
		stored = true
		return nil
	}, genKey)
	switch {
	case errors.Is(err, redis.TxFailedErr):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return stored, nil
}

// Bump одной транзакцией сменяет поколения genKeys и удаляет keys.
// Новое поколение никогда не совпадает с прежним, даже если ключ поколения
// успел истечь. Поколения живут genExpiration.
func (c *Cache) Bump(ctx context.Context, genExpiration time.Duration, genKeys []string, keys ...string) error {
	const op = "cache.Bump"

	if len(genKeys) == 0 && len(keys) == 0 {
		return nil
	}
	gen := time.Now().UnixNano()
	_, err := c.Db.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range genKeys {
			pipe.Set(ctx, k, gen, genExpiration)
		}
		if len(keys) > 0 {
			pipe.Del(ctx, keys...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Close закрывает соединение с redis.
func (c *Cache) Close() error {
	return c.Db.Close()
}
