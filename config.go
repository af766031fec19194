package boatload

import (
	"fmt"
	"log/slog"
	"time"
)

// DefaultMaxQueueSize is the queue bound used by DefaultConfig.
const DefaultMaxQueueSize = 1000

// Config holds processor parameters. It is copied by New and never modified
// afterwards.
type Config struct {
	DeliveryInterval time.Duration // periodic flush interval (0 = disabled)
	MaxBacklogSize   int           // backlog length that triggers a flush (0 = disabled)
	MaxQueueSize     int           // pending messages before Push fails; must be > 0
	Logger           *slog.Logger  // nil = slog.Default()
	UserContext      any           // opaque value handed to every ProcessFunc call
}

// DefaultConfig returns a config with both automatic triggers disabled and
// a queue bound of DefaultMaxQueueSize.
func DefaultConfig() Config {
	return Config{
		MaxQueueSize: DefaultMaxQueueSize,
		Logger:       slog.Default(),
	}
}

// Validate checks the config for contract violations.
func (c Config) Validate() error {
	if c.DeliveryInterval < 0 {
		return fmt.Errorf("%w: delivery interval must not be negative", ErrInvalidConfig)
	}
	if c.MaxBacklogSize < 0 {
		return fmt.Errorf("%w: max backlog size must not be negative", ErrInvalidConfig)
	}
	if c.MaxQueueSize <= 0 {
		return fmt.Errorf("%w: max queue size must be positive", ErrInvalidConfig)
	}
	return nil
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
