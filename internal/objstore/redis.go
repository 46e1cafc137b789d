package objstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the redis driver. An empty Addr is rejected at
// Configure time so misconfiguration fails during bootstrap, not first use.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type redisDriver struct {
	client *redis.Client
}

func (d *redisDriver) Configure(c any) error {
	cfg, ok := c.(RedisConfig)
	if !ok {
		return fmt.Errorf("redis-store: want RedisConfig")
	}
	if cfg.Addr == "" {
		return fmt.Errorf("redis-store: addr is required")
	}
	d.client = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := d.client.Ping(context.Background()).Err(); err != nil {
		d.client.Close()
		return fmt.Errorf("redis-store: ping: %w", err)
	}
	return nil
}

func (d *redisDriver) Put(ctx context.Context, key string, value []byte) error {
	if err := d.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis-store: put %s: %w", key, err)
	}
	return nil
}

func (d *redisDriver) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := d.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis-store: get %s: %w", key, err)
	}
	return value, nil
}

func (d *redisDriver) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := d.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis-store: scan %s: %w", prefix, err)
	}
	return keys, nil
}

func (d *redisDriver) Delete(ctx context.Context, key string) (bool, error) {
	n, err := d.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis-store: delete %s: %w", key, err)
	}
	return n > 0, nil
}

func (d *redisDriver) Close() error {
	if d.client == nil {
		return nil
	}
	return d.client.Close()
}

func init() { Register("redis", func() Driver { return &redisDriver{} }) }
