package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "proxy-share:"

// RedisStore keeps state in Redis, using native key expiry.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// redisOptions accepts either host:port or a redis:// URI.
func redisOptions(rawURL, password string) *redis.Options {
	db := 0
	addr := rawURL

	// Check if REDIS_URL is a full URI like redis://...
	if u, err := url.Parse(rawURL); err == nil && u.Scheme != "" && u.Host != "" {
		addr = u.Host

		if u.User != nil {
			pw, _ := u.User.Password()
			if pw != "" {
				password = pw
			}
		}

		if u.Path != "" && u.Path != "/" {
			if dbNum, err := strconv.Atoi(u.Path[1:]); err == nil {
				db = dbNum
			}
		}
	}

	return &redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}
}

func OpenRedis(ctx context.Context, rawURL, password string) (*RedisStore, error) {
	opts := redisOptions(rawURL, password)
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("unable to connect to redis: %w", err)
	}

	log.Println("Connected to Redis at", opts.Addr)
	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, redisKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (r *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, redisKeyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = redisKeyPrefix + key
	}
	if err := r.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
