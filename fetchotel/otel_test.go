package fetchotel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	fetcher "github.com/probablyarth/fetcher-go"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestMeterProvider() (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return mp, reader
}

// eventCounts collects the fetcher.events data points by event name.
func eventCounts(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != MetricEvents {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				ev, _ := dp.Attributes.Value(attribute.Key(AttrEvent))
				counts[ev.AsString()] += dp.Value
			}
		}
	}
	return counts
}

func TestNewObserver_Default(t *testing.T) {
	obs, err := NewObserver()
	require.NoError(t, err)
	require.NotNil(t, obs)
}

func TestNewObserver_NilProviderFallsBackToGlobal(t *testing.T) {
	obs, err := NewObserver(WithMeterProvider(nil), WithInstrumentationName(""))
	require.NoError(t, err)
	require.NotNil(t, obs)
}

func TestObserver_CountsFetcherEvents(t *testing.T) {
	mp, reader := newTestMeterProvider()
	defer func() { _ = mp.Shutdown(context.Background()) }()

	obs, err := NewObserver(WithMeterProvider(mp), WithName("users"))
	require.NoError(t, err)

	users := fetcher.NewKeyed(func(_ context.Context, id int) (string, error) {
		if id < 0 {
			return "", assert.AnError
		}
		return "u", nil
	}, func(id int) int { return id }, fetcher.WithObserver[string, error](obs))
	ctx := context.Background()

	users.Fetch(ctx, fetcher.DefaultParams(), 1)
	users.Fetch(ctx, fetcher.Params{}, 1)
	users.Fetch(ctx, fetcher.DefaultParams(), -1)

	counts := eventCounts(t, reader)
	assert.Equal(t, int64(2), counts["miss"])
	assert.Equal(t, int64(1), counts["hit"])
	assert.Equal(t, int64(1), counts["error"])
}

func TestObserver_RecordsName(t *testing.T) {
	mp, reader := newTestMeterProvider()
	defer func() { _ = mp.Shutdown(context.Background()) }()

	obs, err := NewObserver(WithMeterProvider(mp), WithName("profile"))
	require.NoError(t, err)

	obs.On(fetcher.EventData{Event: fetcher.EventStale})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)
	sum := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Sum[int64])
	require.Len(t, sum.DataPoints, 1)
	name, ok := sum.DataPoints[0].Attributes.Value(attribute.Key(AttrName))
	require.True(t, ok)
	assert.Equal(t, "profile", name.AsString())
}
