package strategy

import (
	"context"
	"log/slog"

	"github.com/nmslite/hwmon/internal/telemetry"
)

// Host-level metric names.
const (
	PowerMetric      = "hw.power"
	HostPowerMetric  = "hw.host.power"
	HostEnergyMetric = "hw.host.energy"
	StatusMetric     = "hw.status"
)

// hostStatusMetric is the availability metric of the host monitor.
var hostStatusMetric = telemetry.MetricName(StatusMetric, map[string]string{"hw.type": telemetry.HostMonitorType})

// HostMonitor returns the endpoint monitor of a host, creating it on first
// use.
func HostMonitor(tm *telemetry.Manager) *telemetry.Monitor {
	host := tm.Host()
	if mon, ok := tm.FindMonitor(telemetry.HostMonitorType, host.ID); ok {
		return mon
	}
	return tm.AddOrUpdateMonitor(telemetry.MonitorUpdate{
		ID:   host.ID,
		Type: telemetry.HostMonitorType,
		Attributes: map[string]string{
			"id":        host.ID,
			"host.name": host.Hostname,
			"host.type": host.Type,
		},
	})
}

// HardwarePostCollect sums the power drawn by the monitors of a host and
// integrates it into an energy counter.
type HardwarePostCollect struct {
	logger *slog.Logger
}

// NewHardwarePostCollect creates the hardware post-strategy.
func NewHardwarePostCollect(logger *slog.Logger) *HardwarePostCollect {
	return &HardwarePostCollect{logger: logger.With("component", "strategy", "strategy", "hardware_post_collect")}
}

func (s *HardwarePostCollect) Name() string { return "hardware_post_collect" }

// Run sets hw.host.power to the sum of the hw.power values collected this
// cycle. hw.host.energy grows by that power times the seconds elapsed since
// the previous cycle. Nothing is written when no monitor reported power.
func (s *HardwarePostCollect) Run(_ context.Context, c *Cycle) {
	total := 0.0
	reported := false
	for _, mon := range c.Telemetry.Snapshot() {
		if mon.Type == telemetry.HostMonitorType {
			continue
		}
		for _, metric := range mon.Metrics {
			if metric.Name == PowerMetric && metric.CollectTime.Equal(c.Time) {
				total += metric.Value
				reported = true
			}
		}
	}
	if !reported {
		return
	}

	host := HostMonitor(c.Telemetry)

	energy := 0.0
	if prev, ok := host.Metric(HostEnergyMetric); ok {
		energy = prev.Value
		if power, ok := host.Metric(HostPowerMetric); ok && power.CollectTime.Before(c.Time) {
			energy += total * c.Time.Sub(power.CollectTime).Seconds()
		}
	}

	c.Telemetry.CollectMetric(host, HostPowerMetric, total, false)
	c.Telemetry.CollectMetric(host, HostEnergyMetric, energy, true)

	s.logger.Debug("host power computed",
		"host_id", c.Telemetry.Host().ID,
		"cycle_id", c.ID,
		"power_watts", total,
		"energy_joules", energy,
	)
}

// HostAvailability reports whether any connector collected data this cycle.
type HostAvailability struct{}

func (HostAvailability) Name() string { return "host_availability" }

// Run sets hw.status{hw.type="host"} to 1 when collect wrote at least one
// value and 0 otherwise.
func (HostAvailability) Run(_ context.Context, c *Cycle) {
	value := 0.0
	if c.Collected > 0 {
		value = 1
	}
	c.Telemetry.CollectMetric(HostMonitor(c.Telemetry), hostStatusMetric, value, false)
}
