// Package otel publishes host telemetry as OpenTelemetry observable gauges.
package otel

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/nmslite/hwmon/internal/exporter"
)

// Exporter registers one observable gauge per metric name. Values are read
// from the telemetry snapshot when the meter provider collects.
type Exporter struct {
	meter  metric.Meter
	source exporter.Source
	logger *slog.Logger

	mu     sync.Mutex
	gauges map[string]metric.Float64ObservableGauge
	regs   []metric.Registration
}

// New creates an exporter over a meter.
func New(meter metric.Meter, source exporter.Source, logger *slog.Logger) *Exporter {
	return &Exporter{
		meter:  meter,
		source: source,
		logger: logger.With("component", "otel_exporter"),
		gauges: make(map[string]metric.Float64ObservableGauge),
	}
}

// Sync registers a gauge for every metric name not seen before.
func (e *Exporter) Sync() error {
	names := make(map[string]bool)
	for _, p := range exporter.Collect(e.source) {
		names[p.Name] = true
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var pending []string
	for name := range names {
		if _, ok := e.gauges[name]; !ok {
			pending = append(pending, name)
		}
	}
	sort.Strings(pending)

	for _, name := range pending {
		gauge, err := e.meter.Float64ObservableGauge(name,
			metric.WithDescription(fmt.Sprintf("Hardware metric %s", name)),
		)
		if err != nil {
			return fmt.Errorf("failed to create gauge %s: %w", name, err)
		}
		reg, err := e.meter.RegisterCallback(e.observe(name, gauge), gauge)
		if err != nil {
			return fmt.Errorf("failed to register callback for %s: %w", name, err)
		}
		e.gauges[name] = gauge
		e.regs = append(e.regs, reg)
		e.logger.Debug("gauge registered", "metric", name)
	}
	return nil
}

func (e *Exporter) observe(name string, gauge metric.Float64ObservableGauge) metric.Callback {
	return func(_ context.Context, o metric.Observer) error {
		for _, p := range exporter.Collect(e.source) {
			if p.Name != name {
				continue
			}
			o.ObserveFloat64(gauge, p.Value, metric.WithAttributes(attributes(p.Attributes)...))
		}
		return nil
	}
}

// Close unregisters every callback.
func (e *Exporter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var firstErr error
	for _, reg := range e.regs {
		if err := reg.Unregister(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	e.regs = nil
	e.gauges = make(map[string]metric.Float64ObservableGauge)
	return firstErr
}

func attributes(attrs map[string]string) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kvs = append(kvs, attribute.String(k, v))
	}
	return kvs
}
