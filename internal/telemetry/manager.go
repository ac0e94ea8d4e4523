package telemetry

import (
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/nmslite/hwmon/internal/connector"
)

// ConnectorDetection is the detection outcome of one connector on a host.
type ConnectorDetection struct {
	ConnectorID string                      `json:"connector_id"`
	Success     bool                        `json:"success"`
	Forced      bool                        `json:"forced,omitempty"`
	Superseded  bool                        `json:"superseded,omitempty"`
	Criteria    []connector.CriterionResult `json:"criteria,omitempty"`
}

// Manager owns the monitors of one host. The strategy pipeline of the host is
// its only writer; exporters and the API read through Snapshot.
type Manager struct {
	host   *HostConfiguration
	logger *slog.Logger

	mu       sync.RWMutex
	monitors map[string]map[string]*Monitor // type -> id -> monitor

	strategyTime  time.Time
	detection     []ConnectorDetection
	detectionTime time.Time
}

// NewManager creates the telemetry manager of a host.
func NewManager(host *HostConfiguration, logger *slog.Logger) *Manager {
	return &Manager{
		host:     host,
		logger:   logger.With("component", "telemetry", "host_id", host.ID),
		monitors: make(map[string]map[string]*Monitor),
	}
}

// Host returns the host configuration.
func (m *Manager) Host() *HostConfiguration {
	return m.host
}

// StrategyTime is the timestamp of the current cycle, stamped on every
// metric written during the cycle.
func (m *Manager) StrategyTime() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.strategyTime
}

// SetStrategyTime starts a new cycle.
func (m *Manager) SetStrategyTime(t time.Time) {
	m.mu.Lock()
	m.strategyTime = t
	m.mu.Unlock()
}

// FindMonitor looks a monitor up by type and id.
func (m *Manager) FindMonitor(monitorType, id string) (*Monitor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mon, ok := m.monitors[monitorType][id]
	return mon, ok
}

// Monitors returns the monitors of a type ordered by id.
func (m *Manager) Monitors(monitorType string) []*Monitor {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return sortedMonitors(m.monitors[monitorType])
}

// ConnectorMonitors returns the monitors of a type discovered by a connector.
func (m *Manager) ConnectorMonitors(connectorID, monitorType string) []*Monitor {
	var out []*Monitor
	for _, mon := range m.Monitors(monitorType) {
		if mon.ConnectorID == connectorID {
			out = append(out, mon)
		}
	}
	return out
}

// MonitorUpdate carries what a discovery knows about a monitor.
type MonitorUpdate struct {
	ID          string
	Type        string
	ConnectorID string
	Attributes  map[string]string
	Resource    map[string]string
	AlertRules  []connector.AlertRule
}

// AddOrUpdateMonitor creates the monitor on first discovery and refreshes
// it afterwards. Identity never changes; attributes are replaced.
func (m *Manager) AddOrUpdateMonitor(u MonitorUpdate) *Monitor {
	m.mu.Lock()
	defer m.mu.Unlock()

	byID, ok := m.monitors[u.Type]
	if !ok {
		byID = make(map[string]*Monitor)
		m.monitors[u.Type] = byID
	}

	mon, ok := byID[u.ID]
	if !ok {
		mon = &Monitor{
			ID:            u.ID,
			Type:          u.Type,
			ConnectorID:   u.ConnectorID,
			Metrics:       make(map[string]*Metric),
			DiscoveryTime: m.strategyTime,
		}
		byID[u.ID] = mon
		m.logger.Debug("monitor created", "monitor_type", u.Type, "monitor_id", u.ID)
	}

	mon.Attributes = maps.Clone(u.Attributes)
	if mon.Attributes == nil {
		mon.Attributes = make(map[string]string)
	}
	mon.Resource = maps.Clone(u.Resource)
	mon.AlertRules = append([]connector.AlertRule(nil), u.AlertRules...)
	mon.LastDiscoveryTime = m.strategyTime
	mon.Missing = false
	return mon
}

// CollectMetric records a metric value on a monitor at the current strategy
// time. The metric is created on first use.
func (m *Manager) CollectMetric(mon *Monitor, name string, value float64, counter bool) *Metric {
	m.mu.Lock()
	defer m.mu.Unlock()

	metric, ok := mon.Metrics[name]
	if !ok {
		metric = NewMetric(name)
		mon.Metrics[name] = metric
	}
	metric.update(value, m.strategyTime, counter)
	return metric
}

// MarkMissing flags the monitors of a connector and type that the discovery
// of the current cycle did not report. It returns how many were flagged.
func (m *Manager) MarkMissing(connectorID, monitorType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, mon := range m.monitors[monitorType] {
		if mon.ConnectorID != connectorID || mon.Missing {
			continue
		}
		if mon.LastDiscoveryTime.Before(m.strategyTime) {
			mon.Missing = true
			count++
		}
	}
	return count
}

// RemoveMissing deletes the monitors of a connector flagged missing by a
// previous discovery.
func (m *Manager) RemoveMissing(connectorID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for monitorType, byID := range m.monitors {
		for id, mon := range byID {
			if mon.ConnectorID == connectorID && mon.Missing {
				delete(byID, id)
				count++
				m.logger.Info("monitor removed", "monitor_type", monitorType, "monitor_id", id)
			}
		}
		if len(byID) == 0 {
			delete(m.monitors, monitorType)
		}
	}
	return count
}

// RemoveConnector deletes every monitor of a connector, used when a
// connector is no longer detected.
func (m *Manager) RemoveConnector(connectorID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for monitorType, byID := range m.monitors {
		for id, mon := range byID {
			if mon.ConnectorID == connectorID {
				delete(byID, id)
			}
		}
		if len(byID) == 0 {
			delete(m.monitors, monitorType)
		}
	}
}

// SetDetection stores the detection outcome of the current cycle.
func (m *Manager) SetDetection(results []ConnectorDetection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.detection = results
	m.detectionTime = m.strategyTime
}

// Detection returns the last detection outcome and when it ran.
func (m *Manager) Detection() ([]ConnectorDetection, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ConnectorDetection, len(m.detection))
	copy(out, m.detection)
	return out, m.detectionTime
}

// DetectedConnectors returns the ids of the connectors that matched.
func (m *Manager) DetectedConnectors() []string {
	results, _ := m.Detection()

	var ids []string
	for _, r := range results {
		if r.Success && !r.Superseded {
			ids = append(ids, r.ConnectorID)
		}
	}
	return ids
}

// Snapshot returns deep copies of every monitor, ordered by type then id.
func (m *Manager) Snapshot() []*Monitor {
	m.mu.RLock()
	defer m.mu.RUnlock()

	types := make([]string, 0, len(m.monitors))
	for t := range m.monitors {
		types = append(types, t)
	}
	sort.Strings(types)

	var out []*Monitor
	for _, t := range types {
		for _, mon := range sortedMonitors(m.monitors[t]) {
			out = append(out, mon.Copy())
		}
	}
	return out
}

func sortedMonitors(byID map[string]*Monitor) []*Monitor {
	out := make([]*Monitor, 0, len(byID))
	for _, mon := range byID {
		out = append(out, mon)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
