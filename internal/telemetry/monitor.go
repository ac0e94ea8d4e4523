package telemetry

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/nmslite/hwmon/internal/connector"
)

// Monitor types created by the engine itself.
const (
	HostMonitorType      = "host"
	ConnectorMonitorType = "connector"
)

// Monitor is one discovered entity of a host: a disk, a fan, the host itself.
type Monitor struct {
	ID          string                `json:"id"`
	Type        string                `json:"type"`
	ConnectorID string                `json:"connector_id,omitempty"`
	Attributes  map[string]string     `json:"attributes"`
	Resource    map[string]string     `json:"resource,omitempty"`
	Metrics     map[string]*Metric    `json:"metrics"`
	AlertRules  []connector.AlertRule `json:"alert_rules,omitempty"`

	// DiscoveryTime is the cycle that first discovered the monitor;
	// LastDiscoveryTime the last cycle that reported it.
	DiscoveryTime     time.Time `json:"discovery_time"`
	LastDiscoveryTime time.Time `json:"last_discovery_time"`

	// Missing is set when a discovery no longer reports the monitor. A
	// missing monitor is removed by the next discovery.
	Missing bool `json:"missing,omitempty"`
}

// Metric returns a metric by name.
func (m *Monitor) Metric(name string) (*Metric, bool) {
	metric, ok := m.Metrics[name]
	return metric, ok
}

// Copy returns a deep copy of the monitor.
func (m *Monitor) Copy() *Monitor {
	cp := *m
	cp.Attributes = maps.Clone(m.Attributes)
	cp.Resource = maps.Clone(m.Resource)
	cp.AlertRules = append([]connector.AlertRule(nil), m.AlertRules...)
	cp.Metrics = make(map[string]*Metric, len(m.Metrics))
	for name, metric := range m.Metrics {
		cp.Metrics[name] = metric.Copy()
	}
	return &cp
}

// MonitorID builds the identifier of a monitor discovered by a connector.
func MonitorID(connectorID, monitorType, id string) string {
	return fmt.Sprintf("%s_%s_%s", connectorID, monitorType, id)
}

// Metric is one named value of a monitor. PreviousCollectTime is nil until
// the metric has been collected in two different cycles.
type Metric struct {
	Name                string            `json:"name"`
	Attributes          map[string]string `json:"attributes,omitempty"`
	Value               float64           `json:"value"`
	CollectTime         time.Time         `json:"collect_time"`
	PreviousValue       float64           `json:"previous_value"`
	PreviousCollectTime *time.Time        `json:"previous_collect_time,omitempty"`
	// ResetMetricTime tells the exporter a counter went backwards.
	ResetMetricTime bool `json:"reset_metric_time,omitempty"`
}

// NewMetric creates a metric, parsing the attributes out of a
// `name{key="value",...}` metric name.
func NewMetric(name string) *Metric {
	base, attrs := ParseMetricName(name)
	return &Metric{Name: base, Attributes: attrs}
}

// update records a value. The current value becomes the previous one only
// when collectTime belongs to a new cycle.
func (m *Metric) update(value float64, collectTime time.Time, counter bool) {
	if !m.CollectTime.IsZero() && !collectTime.Equal(m.CollectTime) {
		prev := m.CollectTime
		m.PreviousCollectTime = &prev
		m.PreviousValue = m.Value
	}
	m.ResetMetricTime = counter && m.PreviousCollectTime != nil && value < m.PreviousValue
	m.Value = value
	m.CollectTime = collectTime
}

// Copy returns a deep copy of the metric.
func (m *Metric) Copy() *Metric {
	cp := *m
	cp.Attributes = maps.Clone(m.Attributes)
	if m.PreviousCollectTime != nil {
		prev := *m.PreviousCollectTime
		cp.PreviousCollectTime = &prev
	}
	return &cp
}

// ParseMetricName splits `hw.status{hw.type="fan",state="ok"}` into its base
// name and attributes. A name without braces has no attributes.
func ParseMetricName(name string) (string, map[string]string) {
	open := strings.IndexByte(name, '{')
	if open < 0 || !strings.HasSuffix(name, "}") {
		return strings.TrimSpace(name), nil
	}

	base := strings.TrimSpace(name[:open])
	body := name[open+1 : len(name)-1]
	attrs := make(map[string]string)
	for _, pair := range splitAttributes(body) {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.Trim(strings.TrimSpace(v), `"`)
		if k != "" {
			attrs[k] = v
		}
	}
	return base, attrs
}

// splitAttributes splits on commas outside double quotes.
func splitAttributes(body string) []string {
	var parts []string
	quoted := false
	start := 0
	for i, r := range body {
		switch r {
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				parts = append(parts, body[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, body[start:])
}

// MetricName renders a base name and attributes back into a metric key, with
// attributes sorted by key.
func MetricName(base string, attrs map[string]string) string {
	if len(attrs) == 0 {
		return base
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	b.WriteString(base)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%q", k, attrs[k])
	}
	b.WriteByte('}')
	return b.String()
}
