// Package strategy runs the per-host pipeline: detection selects the
// connectors matching a host, discovery creates the monitors, collect
// refreshes their metrics and the post-strategies derive host-level values.
package strategy

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nmslite/hwmon/internal/connector"
	"github.com/nmslite/hwmon/internal/table"
	"github.com/nmslite/hwmon/internal/telemetry"
)

// Strategy names, used in logs.
const (
	DetectionStrategy = "detection"
	DiscoveryStrategy = "discovery"
	CollectStrategy   = "collect"
)

// Cycle is the state shared by the strategies of one pipeline run.
type Cycle struct {
	ID        string
	Time      time.Time
	Telemetry *telemetry.Manager

	// Collected counts the metric values written by collect this cycle.
	Collected int
}

// PostStrategy derives values after collect.
type PostStrategy interface {
	Name() string
	Run(ctx context.Context, c *Cycle)
}

var columnRef = regexp.MustCompile(`^\$(\d+)$`)

// mappingValue evaluates a mapping value against a row: "$N" reads column N,
// anything else is a constant.
func mappingValue(row []string, expr string) (string, bool) {
	m := columnRef.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		return expr, true
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 || n > len(row) {
		return "", false
	}
	return row[n-1], true
}

// mapAttributes evaluates an attribute mapping against a row. Attributes
// referring to missing columns are left out.
func mapAttributes(row []string, mapping map[string]string) map[string]string {
	out := make(map[string]string, len(mapping))
	for k, expr := range mapping {
		if v, ok := mappingValue(row, expr); ok {
			out[k] = strings.TrimSpace(v)
		}
	}
	return out
}

// mapMetrics writes the metrics of a mapping for one row and returns how
// many values were recorded. Values that do not parse are skipped.
func mapMetrics(tm *telemetry.Manager, mon *telemetry.Monitor, row []string, metrics map[string]string, defs map[string]connector.MetricDefinition) int {
	count := 0
	for name, expr := range metrics {
		raw, ok := mappingValue(row, expr)
		if !ok {
			continue
		}
		raw = strings.TrimSpace(raw)
		base, attrs := telemetry.ParseMetricName(name)
		def := defs[base]

		if len(def.States) > 0 {
			for _, state := range def.States {
				stateAttrs := map[string]string{"state": state}
				for k, v := range attrs {
					stateAttrs[k] = v
				}
				value := 0.0
				if strings.EqualFold(raw, state) {
					value = 1
				}
				tm.CollectMetric(mon, telemetry.MetricName(base, stateAttrs), value, false)
				count++
			}
			continue
		}

		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		tm.CollectMetric(mon, name, value, def.IsCounter())
		count++
	}
	return count
}

// rows returns the grid of a table, splitting raw text when no compute
// produced one.
func rows(t table.SourceTable) [][]string {
	if t.Table != nil {
		return t.Table
	}
	if strings.TrimSpace(t.RawData) == "" {
		return nil
	}
	return table.FromRaw(t.RawData).Table
}
