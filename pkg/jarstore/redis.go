package jarstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/milan604/sessionhttp/pkg/config"
	"github.com/milan604/sessionhttp/pkg/cookie"
	"github.com/milan604/sessionhttp/pkg/errors"
)

// DefaultPrefix namespaces jar keys in Redis.
const DefaultPrefix = "sessionhttp:jar"

// RedisStore keeps jars as JSON strings in Redis.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a RedisStore. An empty prefix uses DefaultPrefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// NewRedisClient builds a client from jarstore.redis.* keys.
func NewRedisClient(cfg *config.Config) (*redis.Client, error) {
	if err := cfg.ValidateRequired("jarstore.redis.addr"); err != nil {
		return nil, err
	}
	return redis.NewClient(&redis.Options{
		Addr:        cfg.GetString("jarstore.redis.addr"),
		Password:    cfg.GetString("jarstore.redis.password"),
		DB:          cfg.GetIntD("jarstore.redis.db", 0),
		DialTimeout: cfg.GetDurationD("jarstore.redis.dial_timeout", 5*time.Second),
	}), nil
}

func (s *RedisStore) key(key string) string {
	return s.prefix + ":" + key
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, key string, jar cookie.Jar, ttl time.Duration) error {
	data, err := json.Marshal(jar)
	if err != nil {
		return errors.Wrapf(err, "jarstore: marshal %q", key)
	}
	if err := s.client.Set(ctx, s.key(key), data, ttl).Err(); err != nil {
		return errors.Wrapf(err, "jarstore: save %q", key)
	}
	return nil
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, key string) (cookie.Jar, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return cookie.Jar{}, ErrNotFound
	}
	if err != nil {
		return cookie.Jar{}, errors.Wrapf(err, "jarstore: load %q", key)
	}
	var jar cookie.Jar
	if err := json.Unmarshal(data, &jar); err != nil {
		return cookie.Jar{}, errors.Wrapf(err, "jarstore: unmarshal %q", key)
	}
	return jar, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return errors.Wrapf(err, "jarstore: delete %q", key)
	}
	return nil
}
