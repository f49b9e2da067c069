package telemetry

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricDefinition declares one metric's shape so the Simple API layer can
// dispatch Emit calls to the right instrument kind without every call site
// having to know it.
type MetricDefinition struct {
	Name    string
	Type    string // "counter", "gauge", "histogram"
	Help    string
	Labels  []string
	Unit    string
	Buckets []float64
}

// ModuleConfig groups one module's metric declarations for DeclareMetrics.
type ModuleConfig struct {
	Metrics []MetricDefinition
}

// Registry is the process-wide telemetry backend. It holds the lazily
// created MetricInstruments plus every module's declared metric shapes.
type Registry struct {
	instruments *MetricInstruments
	definitions sync.Map // name -> MetricDefinition
	gauges      sync.Map // name -> *gaugeState
}

var (
	globalRegistry atomic.Value // holds *Registry
	declared       sync.Map     // name -> MetricDefinition, populated before Initialize runs
	initOnce       sync.Once
)

// DeclareMetrics registers a module's metric shapes. Safe to call from an
// init() before Initialize runs — declarations are replayed onto the
// registry once it exists.
func DeclareMetrics(module string, cfg ModuleConfig) {
	for _, m := range cfg.Metrics {
		declared.Store(m.Name, m)
	}
}

// Initialize wires up the process-wide registry against an OTel meter named
// meterName. Only the first call takes effect.
func Initialize(meterName string) *Registry {
	initOnce.Do(func() {
		r := &Registry{instruments: NewMetricInstruments(meterName)}
		declared.Range(func(k, v interface{}) bool {
			r.definitions.Store(k, v)
			return true
		})
		globalRegistry.Store(r)
	})
	return GetRegistry()
}

// GetRegistry returns the process-wide registry, or nil if Initialize has
// not been called. Callers use a nil result to detect "telemetry not wired
// up" and skip emission rather than erroring.
func GetRegistry() *Registry {
	if v := globalRegistry.Load(); v != nil {
		return v.(*Registry)
	}
	return nil
}

func labelsToAttributes(labelPairs []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labelPairs)/2)
	for i := 0; i+1 < len(labelPairs); i += 2 {
		attrs = append(attrs, attribute.String(labelPairs[i], labelPairs[i+1]))
	}
	return attrs
}

func labelKey(labelPairs []string) string {
	return strings.Join(labelPairs, "\x1f")
}

// Counter increments a counter metric by 1. A no-op until Initialize runs.
func Counter(name string, labelPairs ...string) {
	r := GetRegistry()
	if r == nil {
		return
	}
	_ = r.instruments.RecordCounter(context.Background(), name, 1,
		metric.WithAttributes(labelsToAttributes(labelPairs)...))
}

// Histogram records a value distribution sample. A no-op until Initialize
// runs.
func Histogram(name string, value float64, labelPairs ...string) {
	r := GetRegistry()
	if r == nil {
		return
	}
	_ = r.instruments.RecordHistogram(context.Background(), name, value,
		metric.WithAttributes(labelsToAttributes(labelPairs)...))
}

// gaugeState tracks the last-observed value per label combination for one
// gauge name, read back by its ObservableGauge callback.
type gaugeState struct {
	mu     sync.Mutex
	values map[string]float64
	attrs  map[string][]attribute.KeyValue
}

// Gauge records the current value of a point-in-time measurement. OTel
// gauges are pull-based, so the first call for a given name lazily registers
// an ObservableGauge whose callback reports whatever Gauge last stored;
// subsequent calls just update the stored value.
func Gauge(name string, value float64, labelPairs ...string) {
	r := GetRegistry()
	if r == nil {
		return
	}

	stateAny, loaded := r.gauges.LoadOrStore(name, &gaugeState{
		values: map[string]float64{},
		attrs:  map[string][]attribute.KeyValue{},
	})
	state := stateAny.(*gaugeState)

	key := labelKey(labelPairs)
	state.mu.Lock()
	state.values[key] = value
	state.attrs[key] = labelsToAttributes(labelPairs)
	state.mu.Unlock()

	if !loaded {
		_ = r.instruments.RegisterGauge(name, func(_ context.Context, observer metric.Observer) error {
			fo, ok := observer.(metric.Float64Observer)
			if !ok {
				return nil
			}
			state.mu.Lock()
			defer state.mu.Unlock()
			for k, v := range state.values {
				fo.Observe(v, metric.WithAttributes(state.attrs[k]...))
			}
			return nil
		})
	}
}

// Emit records value against name's declared type, falling back to a
// histogram sample for metrics that were never declared with DeclareMetrics.
func Emit(name string, value float64, labelPairs ...string) {
	r := GetRegistry()
	if r == nil {
		return
	}

	metricType := "histogram"
	if def, ok := r.definitions.Load(name); ok {
		metricType = def.(MetricDefinition).Type
	}

	switch metricType {
	case "counter":
		_ = r.instruments.RecordCounter(context.Background(), name, int64(value),
			metric.WithAttributes(labelsToAttributes(labelPairs)...))
	case "gauge":
		Gauge(name, value, labelPairs...)
	default:
		Histogram(name, value, labelPairs...)
	}
}
