package volume

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/seisvol/seisvol/internal/metrics"
	"github.com/seisvol/seisvol/pkg/circuitbreaker"
	"github.com/seisvol/seisvol/pkg/config"
	"github.com/seisvol/seisvol/pkg/logger"
)

// OpenOptionsFromConfig maps the cache config section onto open options:
// local LRU capacity, plus the remote tier when enabled. The caller owns
// the returned remote cache and closes it after the last volume using it.
func OpenOptionsFromConfig(cfg *config.CacheConfig) (OpenOptions, error) {
	opts := OpenOptions{CacheChunks: cfg.CapacityChunks}
	if !cfg.RedisEnabled {
		return opts, nil
	}
	remote, err := NewRemoteCache(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword, cfg.RedisDB,
		time.Duration(cfg.RedisTTLSec)*time.Second)
	if err != nil {
		return OpenOptions{}, err
	}
	opts.Remote = remote
	return opts, nil
}

// RemoteCache is the optional second chunk cache tier, shared between
// processes reading the same volume. Consulted on local miss, populated on
// disk read. A circuit breaker keeps a dead redis from stalling reads.
type RemoteCache struct {
	client  *redis.Client
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
}

func NewRemoteCache(host string, port int, password string, db int, ttl time.Duration) (*RemoteCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Remote chunk cache initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))
	return &RemoteCache{
		client:  client,
		ttl:     ttl,
		breaker: circuitbreaker.New("chunk-cache", circuitbreaker.Config{Logger: logger.Log}),
	}, nil
}

func (rc *RemoteCache) Close() error {
	return rc.client.Close()
}

func (rc *RemoteCache) get(ctx context.Context, volumeID string, chunk int) ([]float32, bool) {
	var data []byte
	err := rc.breaker.Execute(func() error {
		var err error
		data, err = rc.client.Get(ctx, chunkKey(volumeID, chunk)).Bytes()
		if err == redis.Nil {
			data = nil
			return nil
		}
		return err
	})
	if err != nil || data == nil {
		metrics.CacheMisses.WithLabelValues("remote").Inc()
		return nil, false
	}

	values := make([]float32, len(data)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	metrics.CacheHits.WithLabelValues("remote").Inc()
	return values, true
}

func (rc *RemoteCache) put(ctx context.Context, volumeID string, chunk int, values []float32) {
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(v))
	}
	err := rc.breaker.Execute(func() error {
		return rc.client.Set(ctx, chunkKey(volumeID, chunk), data, rc.ttl).Err()
	})
	if err != nil {
		logger.Debug("Failed to populate remote chunk cache", zap.Error(err), zap.Int("chunk", chunk))
	}
}

func chunkKey(volumeID string, chunk int) string {
	return fmt.Sprintf("svol:%s:chunk:%d", volumeID, chunk)
}
