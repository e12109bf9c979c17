package weights

import (
	"context"
	"fmt"
	"strconv"

	"github.com/flyteorg/flytestdlib/logger"
)

// LoadSource reports the current load of flow edges, keyed by edge id.
type LoadSource interface {
	Load(ctx context.Context) (map[string]float64, error)
}

type staticSource struct {
	loads map[string]float64
}

func (s staticSource) Load(_ context.Context) (map[string]float64, error) {
	res := make(map[string]float64, len(s.loads))
	for k, v := range s.loads {
		res[k] = v
	}

	return res, nil
}

func NewStaticSource(loads map[string]float64) LoadSource {
	return staticSource{loads: loads}
}

type redisSource struct {
	client RedisClient
	key    string
}

// Load reads the load hash. Fields that do not hold a number are skipped.
func (r redisSource) Load(ctx context.Context) (map[string]float64, error) {
	fields, err := r.client.HGetAll(r.key)
	if err != nil {
		return nil, err
	}

	res := make(map[string]float64, len(fields))
	for edgeID, raw := range fields {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			logger.Warnf(ctx, "ignoring load [%s] of flow edge [%s] in [%s]: %v", raw, edgeID, r.key, err)
			continue
		}

		res[edgeID] = v
	}

	return res, nil
}

func NewRedisSource(client RedisClient, key string) LoadSource {
	return redisSource{
		client: client,
		key:    key,
	}
}

// NewLoadSource initializes the configured source. A noop config yields a nil source.
func NewLoadSource(ctx context.Context, cfg *Config) (LoadSource, error) {
	switch cfg.Type {
	case TypeNoop, "":
		return nil, nil
	case TypeStatic:
		return NewStaticSource(cfg.Static), nil
	case TypeRedis:
		client, err := NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}

		return NewRedisSource(client, cfg.Redis.Key), nil
	}

	return nil, fmt.Errorf("no such edge load source type available: %s", cfg.Type)
}
