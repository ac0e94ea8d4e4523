// Package exporter flattens the telemetry of every host into points for the
// OpenTelemetry and Prometheus exporters.
package exporter

import (
	"maps"
	"sort"
	"time"

	"github.com/nmslite/hwmon/internal/telemetry"
)

// Attribute keys added to every point.
const (
	AttrHostID      = "host.id"
	AttrMonitorID   = "monitor.id"
	AttrMonitorType = "monitor.type"
)

// Source lists the telemetry managers to export.
type Source interface {
	Managers() []*telemetry.Manager
}

// SourceFunc adapts a function to Source.
type SourceFunc func() []*telemetry.Manager

func (f SourceFunc) Managers() []*telemetry.Manager { return f() }

// Point is one exported metric value.
type Point struct {
	Name       string
	Value      float64
	Attributes map[string]string
	Time       time.Time
	// Reset is set when a counter went backwards this cycle.
	Reset bool
}

// Collect returns the current value of every metric, ordered by name. Metric
// attributes take precedence over monitor attributes; the host and monitor
// identity attributes override both.
func Collect(src Source) []Point {
	var points []Point
	for _, tm := range src.Managers() {
		hostID := tm.Host().ID
		for _, mon := range tm.Snapshot() {
			for _, metric := range mon.Metrics {
				if metric.CollectTime.IsZero() {
					continue
				}
				attrs := make(map[string]string, len(mon.Attributes)+len(metric.Attributes)+3)
				maps.Copy(attrs, mon.Attributes)
				maps.Copy(attrs, metric.Attributes)
				attrs[AttrHostID] = hostID
				attrs[AttrMonitorID] = mon.ID
				attrs[AttrMonitorType] = mon.Type

				points = append(points, Point{
					Name:       metric.Name,
					Value:      metric.Value,
					Attributes: attrs,
					Time:       metric.CollectTime,
					Reset:      metric.ResetMetricTime,
				})
			}
		}
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Name < points[j].Name })
	return points
}
