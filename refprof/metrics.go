package refprof

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meters mirrors recorder events to OpenTelemetry. Recording happens outside
// the recorder's mutex; the exporter is whatever meter provider the host
// application installed.
type meters struct {
	cfg   Config
	meter metric.Meter

	hCallMs metric.Float64Histogram

	cSlow    metric.Int64Counter
	cCreated metric.Int64Counter
	gActive  metric.Int64UpDownCounter

	// bounded cache of RecordOptions (avoid per-call attribute allocations)
	cache callOptCache
}

type callAttrKey struct {
	method string
	kind   CallKind
}

type callOptCache struct {
	mu  sync.Mutex
	m   map[callAttrKey]metric.RecordOption
	max int
}

const maxAttrCacheSize = 4096

func newMeters(cfg Config) *meters {
	m := &meters{cfg: cfg}
	mp := otel.GetMeterProvider()
	m.meter = mp.Meter(cfg.MetricPrefix)

	m.hCallMs, _ = m.meter.Float64Histogram(cfg.MetricPrefix + ".call_duration_ms")
	m.cSlow, _ = m.meter.Int64Counter(cfg.MetricPrefix + ".slow_calls_total")
	m.cCreated, _ = m.meter.Int64Counter(cfg.MetricPrefix + ".proxies_created_total")
	m.gActive, _ = m.meter.Int64UpDownCounter(cfg.MetricPrefix + ".proxies_active")

	m.cache.m = make(map[callAttrKey]metric.RecordOption)
	m.cache.max = maxAttrCacheSize

	return m
}

func (m *meters) recordCall(method string, kind CallKind, dur time.Duration, slow bool) {
	ctx := context.Background()
	opt := m.callRecordOption(method, kind)

	m.hCallMs.Record(ctx, durMs(dur), opt)
	if slow {
		m.cSlow.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
	}
}

func (m *meters) recordProxyCreated() {
	ctx := context.Background()
	m.cCreated.Add(ctx, 1)
	m.gActive.Add(ctx, 1)
}

func (m *meters) recordProxyReleased() {
	m.gActive.Add(context.Background(), -1)
}

func (m *meters) callRecordOption(method string, kind CallKind) metric.RecordOption {
	key := callAttrKey{method: method, kind: kind}

	m.cache.mu.Lock()
	defer m.cache.mu.Unlock()

	if opt, ok := m.cache.m[key]; ok {
		return opt
	}

	// bound cache size (simple strategy: clear when too big)
	if len(m.cache.m) >= m.cache.max {
		m.cache.m = make(map[callAttrKey]metric.RecordOption)
	}

	opt := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("kind", string(kind)),
	)
	m.cache.m[key] = opt
	return opt
}

func durMs(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
