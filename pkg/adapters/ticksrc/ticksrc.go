package ticksrc

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	gserrors "github.com/vnykmshr/gostream/pkg/common/errors"
	"github.com/vnykmshr/gostream/pkg/streams"
)

const moduleName = "ticksrc"

// Config holds configuration for a cron-driven tick source.
type Config struct {
	// Spec is a cron expression. Both the five-field standard form and the
	// optional leading seconds field are accepted, as are descriptors like
	// "@hourly" and "@every 30s".
	Spec string

	// MaxTicks closes the stream after this many ticks. Zero ticks forever.
	MaxTicks int

	// Location evaluates the schedule in a specific timezone. Defaults to
	// the local timezone.
	Location *time.Location

	// Logger receives adapter lifecycle events. Defaults to a no-op logger.
	Logger zerolog.Logger
}

// DefaultConfig returns a default tick source configuration.
func DefaultConfig() Config {
	return Config{
		Location: time.Local,
		Logger:   zerolog.Nop(),
	}
}

// specParser accepts an optional seconds field on top of the standard form.
var specParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSpec reports whether spec is a parseable cron expression.
func ValidateSpec(spec string) error {
	if _, err := specParser.Parse(spec); err != nil {
		return gserrors.NewValidationError(moduleName, "spec", spec, err.Error()).
			WithHint("use a cron expression like \"*/5 * * * *\" or \"@every 30s\"")
	}
	return nil
}

// New creates a readable stream source that emits one chunk per cron firing,
// carrying the scheduled fire time. Each pull sleeps until the schedule's
// next firing; stream cancellation interrupts the sleep.
//
// Backpressure applies naturally: while the stream's queue is full no pull
// is issued, so firings that pass unobserved are skipped rather than queued.
func New(config Config) (streams.Source[time.Time], error) {
	schedule, err := specParser.Parse(config.Spec)
	if err != nil {
		return streams.Source[time.Time]{}, gserrors.NewValidationError(moduleName, "spec", config.Spec, err.Error()).
			WithHint("use a cron expression like \"*/5 * * * *\" or \"@every 30s\"")
	}
	loc := config.Location
	if loc == nil {
		loc = time.Local
	}
	logger := config.Logger.With().Str("adapter", "ticksrc").Str("spec", config.Spec).Logger()

	ticks := 0
	return streams.Source[time.Time]{
		// Pull invocations are serialized by the stream, so the tick counter
		// needs no locking.
		Pull: func(ctx context.Context, c *streams.ReadableController[time.Time]) error {
			if config.MaxTicks > 0 && ticks >= config.MaxTicks {
				logger.Debug().Int("ticks", ticks).Msg("tick budget exhausted")
				return c.Close()
			}

			next := schedule.Next(time.Now().In(loc))
			if next.IsZero() {
				// The schedule has no future firing.
				return c.Close()
			}

			timer := time.NewTimer(time.Until(next))
			defer timer.Stop()
			select {
			case <-timer.C:
				ticks++
				return c.Enqueue(next)
			case <-ctx.Done():
				return nil
			}
		},
		Cancel: func(ctx context.Context, reason error) error {
			logger.Debug().AnErr("reason", reason).Msg("tick source cancelled")
			return nil
		},
	}, nil
}
