// Package fetchotel reports fetcher events as OpenTelemetry metrics.
package fetchotel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	fetcher "github.com/probablyarth/fetcher-go"
)

const (
	defaultInstrumentationName = "github.com/probablyarth/fetcher-go/fetchotel"

	// MetricEvents is the counter incremented once per fetcher event.
	MetricEvents = "fetcher.events"

	// AttrName labels the fetcher an event came from.
	AttrName = "fetcher.name"
	// AttrEvent holds Event.String().
	AttrEvent = "fetcher.event"
)

type config struct {
	instrumentationName string
	meterProvider       metric.MeterProvider
	name                string
}

// Option configures an Observer.
type Option func(*config)

// WithInstrumentationName sets the OTel instrumentation name.
func WithInstrumentationName(name string) Option {
	return func(cfg *config) {
		if name != "" {
			cfg.instrumentationName = name
		}
	}
}

// WithMeterProvider sets the MeterProvider. Defaults to the global one.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(cfg *config) {
		if provider != nil {
			cfg.meterProvider = provider
		}
	}
}

// WithName sets the fetcher.name attribute recorded with every event.
func WithName(name string) Option {
	return func(cfg *config) {
		cfg.name = name
	}
}

// Observer implements fetcher.Observer on top of an Int64Counter.
type Observer struct {
	events metric.Int64Counter
	name   attribute.KeyValue
}

var _ fetcher.Observer = (*Observer)(nil)

// NewObserver creates an Observer. Pass it to a fetcher with
// fetcher.WithObserver.
func NewObserver(opts ...Option) (*Observer, error) {
	cfg := &config{
		instrumentationName: defaultInstrumentationName,
		meterProvider:       otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	meter := cfg.meterProvider.Meter(cfg.instrumentationName)
	events, err := meter.Int64Counter(
		MetricEvents,
		metric.WithDescription("fetcher hits, misses, joins, stale discards and failures"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("fetchotel: create counter failed: %w", err)
	}

	return &Observer{
		events: events,
		name:   attribute.String(AttrName, cfg.name),
	}, nil
}

// On records one event.
func (o *Observer) On(e fetcher.EventData) {
	o.events.Add(context.Background(), 1, metric.WithAttributes(
		o.name,
		attribute.String(AttrEvent, e.Event.String()),
	))
}
