package redisq

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vnykmshr/gostream/pkg/common/validation"
	"github.com/vnykmshr/gostream/pkg/streams"
)

const moduleName = "redisq"

// Config holds configuration for Redis-list-backed stream adapters.
type Config struct {
	// Redis client used for queue operations.
	Redis redis.UniversalClient

	// Key is the Redis list the adapter produces to or consumes from.
	Key string

	// BlockTimeout bounds each blocking pop. Shorter values make the
	// consumer react faster to stream cancellation; the pop simply retries
	// while the stream stays open.
	BlockTimeout time.Duration

	// KeyTTL is refreshed on every push so abandoned queues expire.
	// Zero disables expiry.
	KeyTTL time.Duration

	// Logger receives adapter lifecycle events. Defaults to a no-op logger.
	Logger zerolog.Logger
}

// DefaultConfig returns a default adapter configuration.
func DefaultConfig() Config {
	return Config{
		BlockTimeout: time.Second,
		KeyTTL:       time.Hour,
		Logger:       zerolog.Nop(),
	}
}

func (c *Config) validate() error {
	if err := validation.ValidateNotNil(moduleName, "redis", c.Redis); err != nil {
		return err
	}
	if err := validation.ValidateNotEmpty(moduleName, "key", c.Key); err != nil {
		return err
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = time.Second
	}
	return nil
}

// NewSource creates a readable stream source that consumes a Redis list.
// Each pull performs one blocking pop; pop timeouts are not errors, the pull
// returns empty and the stream pulls again while it wants data. The source
// delivers chunks in list order, matching the order sinks push them.
func NewSource(config Config) (streams.Source[[]byte], error) {
	if err := config.validate(); err != nil {
		return streams.Source[[]byte]{}, err
	}
	logger := config.Logger.With().Str("adapter", "redisq.source").Str("key", config.Key).Logger()

	return streams.Source[[]byte]{
		Pull: func(ctx context.Context, c *streams.ReadableController[[]byte]) error {
			res, err := config.Redis.BLPop(ctx, config.BlockTimeout, config.Key).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					// Timed out with nothing queued; the stream retries.
					return nil
				}
				if ctx.Err() != nil {
					// The stream went terminal while the pop was blocked.
					return nil
				}
				logger.Error().Err(err).Msg("blocking pop failed")
				return errors.Wrap(err, "redisq: blocking pop")
			}
			// BLPop returns [key, value].
			if len(res) != 2 {
				return errors.Errorf("redisq: unexpected BLPOP reply of %d elements", len(res))
			}
			return c.Enqueue([]byte(res[1]))
		},
		Cancel: func(ctx context.Context, reason error) error {
			logger.Debug().AnErr("reason", reason).Msg("source cancelled")
			return nil
		},
	}, nil
}

// NewSink creates a writable stream sink that produces to a Redis list. Each
// chunk is pushed to the tail so sources popping the head observe FIFO
// order. Close and abort only log; the queue's remaining entries stay
// consumable by other readers.
func NewSink(config Config) (streams.Sink[[]byte], error) {
	if err := config.validate(); err != nil {
		return streams.Sink[[]byte]{}, err
	}
	logger := config.Logger.With().Str("adapter", "redisq.sink").Str("key", config.Key).Logger()

	return streams.Sink[[]byte]{
		Write: func(ctx context.Context, chunk []byte, _ *streams.WritableController[[]byte]) error {
			pipe := config.Redis.TxPipeline()
			pipe.RPush(ctx, config.Key, chunk)
			if config.KeyTTL > 0 {
				pipe.Expire(ctx, config.Key, config.KeyTTL)
			}
			if _, err := pipe.Exec(ctx); err != nil {
				logger.Error().Err(err).Msg("push failed")
				return errors.Wrap(err, "redisq: push")
			}
			return nil
		},
		Close: func(ctx context.Context) error {
			logger.Debug().Msg("sink closed")
			return nil
		},
		Abort: func(ctx context.Context, reason error) error {
			logger.Warn().AnErr("reason", reason).Msg("sink aborted")
			return nil
		},
	}, nil
}
