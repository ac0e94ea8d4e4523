package strategy

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/nmslite/hwmon/internal/connector"
	"github.com/nmslite/hwmon/internal/criterion"
	"github.com/nmslite/hwmon/internal/telemetry"
)

// Detection selects the connectors applying to a host.
type Detection struct {
	connectors *connector.Store
	evaluator  *criterion.Evaluator
	workers    int
	// Diagnostic evaluates every criterion of every connector instead of
	// stopping at the first failure.
	Diagnostic bool
	logger     *slog.Logger
}

// NewDetection creates the detection strategy. workers bounds how many
// connectors are evaluated at once.
func NewDetection(connectors *connector.Store, evaluator *criterion.Evaluator, workers int, logger *slog.Logger) *Detection {
	if workers < 1 {
		workers = 1
	}
	return &Detection{
		connectors: connectors,
		evaluator:  evaluator,
		workers:    workers,
		logger:     logger.With("component", "strategy", "strategy", DetectionStrategy),
	}
}

// Run evaluates the candidate connectors, stores the outcome in the
// telemetry manager and drops the monitors of connectors no longer
// detected. It returns the ids of the detected connectors.
func (d *Detection) Run(ctx context.Context, c *Cycle) []string {
	host := c.Telemetry.Host()
	logger := d.logger.With("host_id", host.ID, "cycle_id", c.ID)
	previous := c.Telemetry.DetectedConnectors()

	var results []telemetry.ConnectorDetection
	if len(host.Connectors) > 0 {
		results = d.forced(host, logger)
	} else {
		results = d.evaluate(ctx, host)
		resolveSupersedes(results, d.connectors)
	}

	c.Telemetry.SetDetection(results)
	detected := c.Telemetry.DetectedConnectors()

	for _, id := range previous {
		if !slices.Contains(detected, id) {
			logger.Info("connector no longer detected, removing its monitors", "connector_id", id)
			c.Telemetry.RemoveConnector(id)
		}
	}

	logger.Info("detection completed",
		"candidates", len(results),
		"detected", detected,
	)
	return detected
}

// forced returns the host's forced connectors as matches without evaluating
// their criteria.
func (d *Detection) forced(host *telemetry.HostConfiguration, logger *slog.Logger) []telemetry.ConnectorDetection {
	results := make([]telemetry.ConnectorDetection, 0, len(host.Connectors))
	for _, id := range host.Connectors {
		conn, ok := d.connectors.Get(id)
		if !ok {
			logger.Warn("forced connector not found", "connector_id", id)
			continue
		}
		results = append(results, telemetry.ConnectorDetection{
			ConnectorID: conn.ID,
			Success:     true,
			Forced:      true,
		})
	}
	return results
}

// evaluate runs the criteria of every connector targeting the host type, in
// parallel. Results keep the store order.
func (d *Detection) evaluate(ctx context.Context, host *telemetry.HostConfiguration) []telemetry.ConnectorDetection {
	var candidates []*connector.Connector
	for _, conn := range d.connectors.List() {
		if conn.AppliesToType(host.Type) {
			candidates = append(candidates, conn)
		}
	}

	results := make([]telemetry.ConnectorDetection, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i, conn := range candidates {
		g.Go(func() error {
			ok, details := d.evaluator.Evaluate(gctx, host, conn.Criteria, d.Diagnostic)
			results[i] = telemetry.ConnectorDetection{
				ConnectorID: conn.ID,
				Success:     ok,
				Criteria:    details,
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// resolveSupersedes flags matching connectors made redundant by other
// matches: those listed in a match's supersedes, and last-resort connectors
// whose monitor type another match already discovers.
func resolveSupersedes(results []telemetry.ConnectorDetection, store *connector.Store) {
	matched := make(map[string]*connector.Connector)
	for _, r := range results {
		if !r.Success {
			continue
		}
		if conn, ok := store.Get(r.ConnectorID); ok {
			matched[strings.ToLower(conn.ID)] = conn
		}
	}

	superseded := make(map[string]bool)
	for _, conn := range matched {
		for _, id := range conn.Supersedes {
			if _, ok := matched[strings.ToLower(id)]; ok {
				superseded[strings.ToLower(id)] = true
			}
		}
	}

	for id, conn := range matched {
		if conn.OnLastResort == "" || superseded[id] {
			continue
		}
		for otherID, other := range matched {
			if otherID == id || superseded[otherID] || other.OnLastResort != "" {
				continue
			}
			if _, ok := other.Monitor(conn.OnLastResort); ok {
				superseded[id] = true
				break
			}
		}
	}

	for i := range results {
		if superseded[strings.ToLower(results[i].ConnectorID)] {
			results[i].Superseded = true
		}
	}
}
