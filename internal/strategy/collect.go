package strategy

import (
	"context"
	"log/slog"

	"github.com/nmslite/hwmon/internal/connector"
	"github.com/nmslite/hwmon/internal/source"
	"github.com/nmslite/hwmon/internal/telemetry"
)

// Collect refreshes the metrics of discovered monitors.
type Collect struct {
	connectors *connector.Store
	resolver   *source.Resolver
	logger     *slog.Logger
}

// NewCollect creates the collect strategy.
func NewCollect(connectors *connector.Store, resolver *source.Resolver, logger *slog.Logger) *Collect {
	return &Collect{
		connectors: connectors,
		resolver:   resolver,
		logger:     logger.With("component", "strategy", "strategy", CollectStrategy),
	}
}

// Run collects every detected connector and records the number of metric
// values written in c.Collected.
func (s *Collect) Run(ctx context.Context, c *Cycle, detected []string) {
	host := c.Telemetry.Host()

	for _, id := range detected {
		conn, ok := s.connectors.Get(id)
		if !ok {
			continue
		}
		logger := s.logger.With("host_id", host.ID, "connector_id", conn.ID, "cycle_id", c.ID)

		for _, mj := range conn.Monitors {
			if ctx.Err() != nil {
				return
			}
			if mj.Collect == nil {
				continue
			}
			var n int
			if mj.Collect.IsMonoInstance() {
				n = s.collectMono(ctx, c, conn, mj, logger)
			} else {
				n = s.collectMulti(ctx, c, conn, mj, logger)
			}
			c.Collected += n
			logger.Debug("collect completed", "monitor_type", mj.Type, "values", n)
		}
	}
}

// collectMulti runs the job once; each row updates the monitor whose id it
// carries. Rows of monitors discovery never created are ignored.
func (s *Collect) collectMulti(ctx context.Context, c *Cycle, conn *connector.Connector, mj *connector.MonitorJob, logger *slog.Logger) int {
	host := c.Telemetry.Host()

	job := mj.Collect.Copy()
	job.Update(source.Rewriter(host, nil))

	rc := source.NewContext(host, conn, c.ID)
	count := 0
	for _, row := range rows(s.resolver.RunJob(ctx, rc, job)) {
		attrs := mapAttributes(row, job.Mapping.Attributes)
		id := attrs["id"]
		if id == "" {
			continue
		}
		mon, ok := c.Telemetry.FindMonitor(mj.Type, telemetry.MonitorID(conn.ID, mj.Type, id))
		if !ok {
			logger.Debug("collected row has no discovered monitor", "monitor_type", mj.Type, "id", id)
			continue
		}
		count += mapMetrics(c.Telemetry, mon, row, job.Mapping.Metrics, conn.Metrics)
	}
	return count
}

// collectMono runs the job once per monitor, with the monitor macros set, and
// maps the first row onto that monitor.
func (s *Collect) collectMono(ctx context.Context, c *Cycle, conn *connector.Connector, mj *connector.MonitorJob, logger *slog.Logger) int {
	host := c.Telemetry.Host()
	count := 0

	for _, mon := range c.Telemetry.ConnectorMonitors(conn.ID, mj.Type) {
		if ctx.Err() != nil {
			break
		}
		job := mj.Collect.Copy()
		job.Update(source.Rewriter(host, mon))

		rc := source.NewContext(host, conn, c.ID)
		result := rows(s.resolver.RunJob(ctx, rc, job))
		if len(result) == 0 {
			logger.Debug("mono-instance collect returned no rows", "monitor_id", mon.ID)
			continue
		}
		count += mapMetrics(c.Telemetry, mon, result[0], job.Mapping.Metrics, conn.Metrics)
	}
	return count
}
