package fetcher

import (
	"log/slog"
	"time"
)

type config[V, E any] struct {
	initial    V
	hasInitial bool
	logger     *slog.Logger
	observer   Observer
	timeout    time.Duration
}

func defaultConfig[V, E any]() config[V, E] {
	return config[V, E]{
		logger: slog.Default(),
	}
}

// Option configures a Fetcher or a Keyed fetcher.
type Option[V, E any] func(*config[V, E])

// WithInitialValue seeds a Fetcher with a value before the first fetch.
// Keyed fetchers ignore it.
func WithInitialValue[V, E any](v V) Option[V, E] {
	return func(c *config[V, E]) {
		c.initial = v
		c.hasInitial = true
	}
}

// WithLogger sets the logger used for stale discards, failures and panics.
// A nil logger disables logging.
func WithLogger[V, E any](l *slog.Logger) Option[V, E] {
	return func(c *config[V, E]) {
		c.logger = l
	}
}

// WithObserver attaches an Observer that receives hit, miss, dedup, stale
// and error events for the lifetime of the fetcher.
func WithObserver[V, E any](o Observer) Option[V, E] {
	return func(c *config[V, E]) {
		c.observer = o
	}
}

// WithTimeout bounds every invocation of the wrapped operation. Zero or a
// negative duration leaves invocations unbounded.
func WithTimeout[V, E any](d time.Duration) Option[V, E] {
	return func(c *config[V, E]) {
		if d > 0 {
			c.timeout = d
		}
	}
}
