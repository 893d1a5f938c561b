package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amoylab/castwall/internal/common/config"
	"github.com/amoylab/castwall/internal/registry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisNotifier appends events to a Redis stream
type RedisNotifier struct {
	logger     *zap.Logger
	client     redis.UniversalClient
	streamName string
	maxLen     int64
}

// NewRedisNotifier creates a new Redis-based notifier
func NewRedisNotifier(logger *zap.Logger, cfg config.RedisConfig) (*RedisNotifier, error) {
	addrs := strings.FieldsFunc(cfg.Addr, func(r rune) bool { return r == ',' || r == ';' })
	redisOptions := &redis.UniversalOptions{
		Addrs:    addrs,
		Username: cfg.Username,
		Password: cfg.Password,
	}
	if cfg.ClusterType == config.RedisClusterTypeSentinel {
		redisOptions.MasterName = cfg.MasterName
	}
	if cfg.ClusterType != config.RedisClusterTypeCluster {
		// can not set db in cluster mode
		redisOptions.DB = cfg.DB
	}
	client := redis.NewUniversalClient(redisOptions)

	// Test connection
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisNotifier{
		logger:     logger.Named("notifier.redis"),
		client:     client,
		streamName: cfg.Stream,
		maxLen:     cfg.MaxLen,
	}, nil
}

// Notify implements Notifier.Notify
func (r *RedisNotifier) Notify(ctx context.Context, ev registry.Event) error {
	ev.SessionID = registry.AbbreviateSession(ev.SessionID)
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.streamName,
		MaxLen: r.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":      string(ev.Type),
			"client_id": ev.ClientID,
			"event":     string(data),
			"timestamp": ev.At.Unix(),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to add message to stream: %w", err)
	}
	return nil
}

// Watch follows the stream from its current end and yields new events
// until ctx is done.
func (r *RedisNotifier) Watch(ctx context.Context) (<-chan registry.Event, error) {
	ch := make(chan registry.Event, 10)

	go func() {
		defer close(ch)

		// $ means read only new messages
		lastID := "$"

		for {
			if ctx.Err() != nil {
				return
			}
			streams, err := r.client.XRead(ctx, &redis.XReadArgs{
				Streams: []string{r.streamName, lastID},
				Count:   10,
				Block:   time.Second,
			}).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					r.logger.Error("failed to read from stream", zap.Error(err))
					time.Sleep(100 * time.Millisecond)
				}
				continue
			}

			for _, stream := range streams {
				for _, message := range stream.Messages {
					lastID = message.ID

					raw, ok := message.Values["event"].(string)
					if !ok {
						continue
					}
					var ev registry.Event
					if err := json.Unmarshal([]byte(raw), &ev); err != nil {
						r.logger.Error("failed to unmarshal event", zap.Error(err))
						continue
					}
					select {
					case ch <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch, nil
}

// Close releases the redis client
func (r *RedisNotifier) Close() error {
	return r.client.Close()
}
