package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wikimedia/wikimedia-ocr/engine"
)

// Redis is a shared store backed by a redis instance, for deployments with
// more than one service process.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "wikimedia_ocr:"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Get(ctx context.Context, key string) (engine.Result, bool, error) {
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return engine.Result{}, false, nil
	}
	if err != nil {
		return engine.Result{}, false, errors.Join(errors.New("failed to read cached result from redis"), err)
	}

	var result engine.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return engine.Result{}, false, errors.Join(errors.New("malformed cached result"), err)
	}
	return result, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, result engine.Result, ttl time.Duration) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return errors.Join(errors.New("failed to marshal result for caching"), err)
	}
	if err := r.client.Set(ctx, r.prefix+key, raw, ttl).Err(); err != nil {
		return errors.Join(errors.New("failed to write cached result to redis"), err)
	}
	return nil
}

var _ Store = (*Redis)(nil)
