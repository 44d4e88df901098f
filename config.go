package playkit

import (
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Option configures a Manager.
type Option func(*managerConfig) error

type managerConfig struct {
	workerPoolSize int
	queueSize      int
	rateLimiter    *rate.Limiter

	catalog Catalog
	backoff BackoffConfig
	logger  zerolog.Logger
	store   ProductDetailsStore
	metrics Metrics
	dlq     DeadLetterQueue
}

func defaultManagerConfig() *managerConfig {
	return &managerConfig{
		workerPoolSize: 4,
		queueSize:      64,
		rateLimiter:    rate.NewLimiter(rate.Inf, 0),
		catalog:        DefaultCatalog(),
		backoff:        DefaultBackoffConfig(),
		logger:         zerolog.Nop(),
		metrics:        &NoOpMetrics{},
	}
}

// WithWorkerPool sets the number of concurrent billing calls and the size of the call queue.
func WithWorkerPool(size, queueSize int) Option {
	return func(c *managerConfig) error {
		if size <= 0 {
			return fmt.Errorf("worker pool size must be greater than 0")
		}
		if queueSize <= 0 {
			return fmt.Errorf("queue size must be greater than 0")
		}
		c.workerPoolSize = size
		c.queueSize = queueSize
		return nil
	}
}

// WithRateLimit caps the rate of outgoing billing calls.
func WithRateLimit(limit rate.Limit) Option {
	return func(c *managerConfig) error {
		if limit <= 0 {
			return fmt.Errorf("rate limit must be greater than 0")
		}
		burst := int(limit)
		if burst < 1 {
			burst = 1
		}
		c.rateLimiter = rate.NewLimiter(limit, burst)
		return nil
	}
}

// WithCatalog replaces the default product catalog.
func WithCatalog(catalog Catalog) Option {
	return func(c *managerConfig) error {
		if len(catalog.Products()) == 0 {
			return fmt.Errorf("catalog must contain at least one product")
		}
		c.catalog = catalog
		return nil
	}
}

// WithBackoff sets the reconnection backoff.
func WithBackoff(cfg BackoffConfig) Option {
	return func(c *managerConfig) error {
		if err := cfg.validate(); err != nil {
			return err
		}
		c.backoff = cfg
		return nil
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *managerConfig) error {
		c.logger = logger
		return nil
	}
}

// WithStore sets the product-details cache. Defaults to an InMemoryStore.
func WithStore(store ProductDetailsStore) Option {
	return func(c *managerConfig) error {
		if store == nil {
			return fmt.Errorf("store cannot be nil")
		}
		c.store = store
		return nil
	}
}

// WithMetrics configures metrics collection.
func WithMetrics(metrics Metrics) Option {
	return func(c *managerConfig) error {
		if metrics == nil {
			return fmt.Errorf("metrics cannot be nil")
		}
		c.metrics = metrics
		return nil
	}
}

// WithDeadLetterQueue records consume and acknowledge calls that failed.
func WithDeadLetterQueue(dlq DeadLetterQueue) Option {
	return func(c *managerConfig) error {
		c.dlq = dlq
		return nil
	}
}
