// Package source resolves the sources of a connector job into tables: it
// fetches protocol sources through the extensions, applies the generic line
// filters, resolves references between sources and runs the compute chain.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nmslite/hwmon/internal/compute"
	"github.com/nmslite/hwmon/internal/connector"
	"github.com/nmslite/hwmon/internal/extension"
	"github.com/nmslite/hwmon/internal/table"
	"github.com/nmslite/hwmon/internal/telemetry"
)

// ErrUnknownSourceReference is returned when a source references a key no
// earlier source of the run produced.
var ErrUnknownSourceReference = errors.New("unknown source reference")

// Context is the state shared by the sources of one strategy run against one
// host and connector. Results is keyed by normalized source key.
type Context struct {
	Host      *telemetry.HostConfiguration
	Connector *connector.Connector
	Results   map[string]table.SourceTable
	CycleID   string
}

// NewContext creates an empty run context.
func NewContext(host *telemetry.HostConfiguration, conn *connector.Connector, cycleID string) *Context {
	return &Context{
		Host:      host,
		Connector: conn,
		Results:   make(map[string]table.SourceTable),
		CycleID:   cycleID,
	}
}

// Store records the table produced by the source with the given key.
func (c *Context) Store(key string, t table.SourceTable) {
	c.Results[connector.NormalizeReference(key)] = t
}

// Lookup returns the table of a referenced source. Any accepted reference
// spelling works.
func (c *Context) Lookup(ref string) (table.SourceTable, bool) {
	t, ok := c.Results[connector.NormalizeReference(ref)]
	return t, ok
}

// Resolver turns sources into tables.
type Resolver struct {
	extensions *extension.Registry
	timeout    time.Duration
	logger     *slog.Logger
}

// NewResolver creates a resolver. timeout bounds fetches of sources that do
// not carry their own.
func NewResolver(extensions *extension.Registry, timeout time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{
		extensions: extensions,
		timeout:    timeout,
		logger:     logger.With("component", "source_resolver"),
	}
}

// Resolve produces the final table of one source. It never fails: fetch
// errors, unresolvable references and compute errors are logged and yield an
// empty or partial table. s is not modified.
func (r *Resolver) Resolve(ctx context.Context, rc *Context, s connector.Source) table.SourceTable {
	logger := r.logger.With(
		"host_id", rc.Host.ID,
		"connector_id", connectorID(rc.Connector),
		"source_key", s.Base().Key,
		"cycle_id", rc.CycleID,
	)

	v := &visitor{ctx: ctx, rc: rc, r: r, logger: logger}
	raw, err := s.Accept(v)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownSourceReference):
			logger.Error("source reference cannot be resolved", "error", err)
		default:
			logger.Warn("source fetch failed", "type", s.Type(), "error", err)
		}
		return table.Empty()
	}

	if lf, ok := s.(connector.LineFiltered); ok {
		if f := lf.Filters(); !f.IsZero() {
			raw, err = f.Apply(raw.Text())
			if err != nil {
				logger.Error("invalid source filter", "error", err)
				return table.Empty()
			}
		}
	}

	var translations compute.TranslationSource
	if rc.Connector != nil {
		translations = rc.Connector
	}
	out, err := compute.NewRunner(translations, logger).Run(raw, s.Base().Computes)
	if err != nil {
		logger.Error("compute chain stopped", "error", err)
	}
	return out
}

// RunJob resolves every source of a job in declaration order, storing each
// result in rc, and returns the table named by the job mapping. The job must
// already be a per-run copy.
func (r *Resolver) RunJob(ctx context.Context, rc *Context, job *connector.Job) table.SourceTable {
	for _, s := range job.Sources {
		if s == nil {
			continue
		}
		if ctx.Err() != nil {
			return table.Empty()
		}
		rc.Store(s.Base().Key, r.Resolve(ctx, rc, s))
	}

	t, ok := rc.Lookup(job.Mapping.Source)
	if !ok {
		r.logger.Error("mapping source cannot be resolved",
			"host_id", rc.Host.ID,
			"connector_id", connectorID(rc.Connector),
			"source", job.Mapping.Source,
		)
		return table.Empty()
	}
	return t
}

// fetch delegates a protocol source to the extension handling it.
func (r *Resolver) fetch(ctx context.Context, rc *Context, s connector.Source) (table.SourceTable, error) {
	ext, err := r.extensions.ForSource(rc.Host, s)
	if err != nil {
		return table.Empty(), err
	}

	timeout := r.timeout
	if tb, ok := s.(connector.TimeoutBound); ok && tb.FetchTimeout() > 0 {
		timeout = tb.FetchTimeout()
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	unlock := rc.Host.Serialize(s.Base().ForceSerialization)
	defer unlock()

	t, err := ext.Fetch(fetchCtx, rc.Host, s)
	if err != nil {
		if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
			return table.Empty(), fmt.Errorf("%s fetch timed out after %v: %w", ext.Name(), timeout, err)
		}
		return table.Empty(), fmt.Errorf("%s: %w", ext.Name(), err)
	}
	return t, nil
}

// Rewriter returns the macro substitution applied to per-run copies of
// sources and mappings. Monitor macros are only set for mono-instance runs.
func Rewriter(host *telemetry.HostConfiguration, monitor *telemetry.Monitor) func(string) string {
	pairs := []string{
		"%{HOSTNAME}", host.Hostname,
		"%{HOST_ID}", host.ID,
		"%{HOST_TYPE}", host.Type,
	}
	if monitor != nil {
		pairs = append(pairs, "%{MONITOR_ID}", monitor.Attributes["id"])
		for k, v := range monitor.Attributes {
			pairs = append(pairs, "%{MONITOR_ATTRIBUTE:"+k+"}", v)
		}
	}
	replacer := strings.NewReplacer(pairs...)
	return replacer.Replace
}

func connectorID(c *connector.Connector) string {
	if c == nil {
		return ""
	}
	return c.ID
}
