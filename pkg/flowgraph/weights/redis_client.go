package weights

import (
	"context"

	"github.com/flyteorg/flytestdlib/logger"
	"github.com/go-redis/redis"
)

//go:generate mockery -name RedisClient -output=mocks -case=underscore

// RedisClient is the subset of redis commands the load source needs.
type RedisClient interface {
	// HGetAll returns the fields and values of the hash at key, an empty map when the key does not exist.
	HGetAll(key string) (map[string]string, error)
	Ping() (string, error)
}

type Redis struct {
	c redis.UniversalClient
}

func (r *Redis) HGetAll(key string) (map[string]string, error) {
	return r.c.HGetAll(key).Result()
}

func (r *Redis) Ping() (string, error) {
	return r.c.Ping().Result()
}

func NewRedisClient(ctx context.Context, cfg RedisConfig) (RedisClient, error) {
	client := &Redis{
		c: redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:      cfg.HostPaths,
			MasterName: cfg.PrimaryName,
			Password:   cfg.HostKey,
			MaxRetries: cfg.MaxRetries,
		}),
	}

	if _, err := client.Ping(); err != nil {
		logger.Errorf(ctx, "edge load redis at %v is unreachable: %v", cfg.HostPaths, err)
		return nil, err
	}

	logger.Infof(ctx, "reading edge load from redis at %v", cfg.HostPaths)
	return client, nil
}
