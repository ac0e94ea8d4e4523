package strategy

import (
	"context"
	"log/slog"

	"github.com/nmslite/hwmon/internal/connector"
	"github.com/nmslite/hwmon/internal/source"
	"github.com/nmslite/hwmon/internal/telemetry"
)

// Discovery creates and refreshes the monitors of the detected connectors.
type Discovery struct {
	connectors *connector.Store
	resolver   *source.Resolver
	logger     *slog.Logger
}

// NewDiscovery creates the discovery strategy.
func NewDiscovery(connectors *connector.Store, resolver *source.Resolver, logger *slog.Logger) *Discovery {
	return &Discovery{
		connectors: connectors,
		resolver:   resolver,
		logger:     logger.With("component", "strategy", "strategy", DiscoveryStrategy),
	}
}

// Run discovers the monitors of every detected connector and returns how
// many monitors were reported. Monitors flagged missing by the previous
// discovery are removed first; monitors a successful discovery no longer
// reports are flagged missing.
func (d *Discovery) Run(ctx context.Context, c *Cycle, detected []string) int {
	host := c.Telemetry.Host()
	total := 0

	for _, id := range detected {
		conn, ok := d.connectors.Get(id)
		if !ok {
			continue
		}
		logger := d.logger.With("host_id", host.ID, "connector_id", conn.ID, "cycle_id", c.ID)

		if removed := c.Telemetry.RemoveMissing(conn.ID); removed > 0 {
			logger.Info("missing monitors removed", "count", removed)
		}

		for _, mj := range conn.Monitors {
			if ctx.Err() != nil {
				return total
			}
			if mj.Discovery == nil {
				continue
			}
			total += d.discover(ctx, c, conn, mj, logger)
		}
	}
	return total
}

func (d *Discovery) discover(ctx context.Context, c *Cycle, conn *connector.Connector, mj *connector.MonitorJob, logger *slog.Logger) int {
	host := c.Telemetry.Host()
	logger = logger.With("monitor_type", mj.Type)

	job := mj.Discovery.Copy()
	job.Update(source.Rewriter(host, nil))

	rc := source.NewContext(host, conn, c.ID)
	result := rows(d.resolver.RunJob(ctx, rc, job))
	if len(result) == 0 {
		logger.Debug("discovery returned no rows, keeping existing monitors")
		return 0
	}

	count := 0
	for _, row := range result {
		attrs := mapAttributes(row, job.Mapping.Attributes)
		id := attrs["id"]
		if id == "" {
			logger.Debug("discovery row without id skipped", "row", row)
			continue
		}

		mon := c.Telemetry.AddOrUpdateMonitor(telemetry.MonitorUpdate{
			ID:          telemetry.MonitorID(conn.ID, mj.Type, id),
			Type:        mj.Type,
			ConnectorID: conn.ID,
			Attributes:  attrs,
			Resource:    mapAttributes(row, job.Mapping.Resource),
			AlertRules:  mj.AlertRules,
		})
		mapMetrics(c.Telemetry, mon, row, job.Mapping.Metrics, conn.Metrics)
		count++
	}

	if missing := c.Telemetry.MarkMissing(conn.ID, mj.Type); missing > 0 {
		logger.Info("monitors not reported by discovery flagged missing", "count", missing)
	}
	logger.Debug("discovery completed", "monitors", count)
	return count
}
