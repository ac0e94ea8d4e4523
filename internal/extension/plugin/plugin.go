// Package plugin delegates sources and criteria to external binaries that
// speak JSON over stdin/stdout, such as IPMI or vendor tool wrappers.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nmslite/hwmon/internal/connector"
	"github.com/nmslite/hwmon/internal/extension"
	"github.com/nmslite/hwmon/internal/table"
	"github.com/nmslite/hwmon/internal/telemetry"
)

// Name is the extension name and host configuration key.
const Name = "plugin"

// Config maps plugin IDs to the settings passed to that plugin. Only the
// plugins listed for a host are used for it.
type Config map[string]map[string]any

// Extension is the external plugin extension.
type Extension struct {
	registry *Registry
	executor *Executor
	logger   *slog.Logger
}

var _ extension.Extension = (*Extension)(nil)

// New scans dir and creates the plugin extension.
func New(dir string, timeout time.Duration, logger *slog.Logger) (*Extension, error) {
	registry := NewRegistry(dir, logger)
	if err := registry.Scan(); err != nil {
		return nil, err
	}
	return &Extension{
		registry: registry,
		executor: NewExecutor(timeout, logger),
		logger:   logger.With("component", "plugin"),
	}, nil
}

// Registry exposes the scanned plugins.
func (e *Extension) Registry() *Registry { return e.registry }

func (e *Extension) Name() string { return Name }

func (e *Extension) hostConfig(host *telemetry.HostConfiguration) Config {
	cfg, err := extension.Configuration[Config](host, Name)
	if err != nil {
		return nil
	}
	return *cfg
}

// pick returns the first candidate the host is configured for.
func (e *Extension) pick(host *telemetry.HostConfiguration, candidates []*Info) (*Info, bool) {
	cfg := e.hostConfig(host)
	for _, p := range candidates {
		if _, ok := cfg[p.Manifest.ID]; ok {
			return p, true
		}
	}
	return nil, false
}

func (e *Extension) SupportsSource(host *telemetry.HostConfiguration, s connector.Source) bool {
	_, ok := e.pick(host, e.registry.ForSource(s.Type()))
	return ok
}

func (e *Extension) SupportsCriterion(host *telemetry.HostConfiguration, c connector.Criterion) bool {
	_, ok := e.pick(host, e.registry.ForCriterion(c.Type()))
	return ok
}

func (e *Extension) IsConfigured(host *telemetry.HostConfiguration) bool {
	return len(e.hostConfig(host)) > 0
}

func (e *Extension) BuildConfiguration(node *yaml.Node) (any, error) {
	cfg := Config{}
	if err := extension.Decode(node, &cfg); err != nil {
		return nil, err
	}
	for id := range cfg {
		if _, ok := e.registry.GetByID(id); !ok {
			return nil, fmt.Errorf("unknown plugin %q", id)
		}
		if cfg[id] == nil {
			cfg[id] = map[string]any{}
		}
	}
	return &cfg, nil
}

func (e *Extension) request(host *telemetry.HostConfiguration, p *Info, operation string) Request {
	return Request{
		Operation: operation,
		Host: HostInfo{
			ID:       host.ID,
			Hostname: host.Hostname,
			Type:     host.Type,
			Config:   e.hostConfig(host)[p.Manifest.ID],
		},
	}
}

func (e *Extension) Fetch(ctx context.Context, host *telemetry.HostConfiguration, s connector.Source) (table.SourceTable, error) {
	p, ok := e.pick(host, e.registry.ForSource(s.Type()))
	if !ok {
		return table.Empty(), fmt.Errorf("%w: %s", extension.ErrUnsupportedSource, s.Type())
	}

	req := e.request(host, p, OperationFetch)
	req.Source = &Payload{Type: s.Type(), Spec: s}
	resp, err := e.executor.Run(ctx, p, req)
	if err != nil {
		return table.Empty(), err
	}
	if len(resp.Table) > 0 {
		return table.FromRows(resp.Table), nil
	}
	return table.FromRaw(resp.RawData), nil
}

func (e *Extension) TestCriterion(ctx context.Context, host *telemetry.HostConfiguration, c connector.Criterion) (connector.CriterionResult, error) {
	p, ok := e.pick(host, e.registry.ForCriterion(c.Type()))
	if !ok {
		return connector.CriterionResult{}, fmt.Errorf("plugin: unsupported criterion %s", c.Type())
	}

	req := e.request(host, p, OperationCriterion)
	req.Criterion = &Payload{Type: c.Type(), Spec: c}
	resp, err := e.executor.Run(ctx, p, req)
	if err != nil {
		return connector.CriterionResult{Message: err.Error()}, nil
	}
	return connector.CriterionResult{Success: resp.Success, Message: resp.Message, Result: resp.RawData}, nil
}

// CheckHealth asks the host's plugins that declare a health operation. The
// host is up as soon as one of them answers.
func (e *Extension) CheckHealth(ctx context.Context, host *telemetry.HostConfiguration) (bool, error) {
	cfg := e.hostConfig(host)
	probed := false
	var errs []error
	for _, p := range e.registry.List() {
		if _, ok := cfg[p.Manifest.ID]; !ok || !p.Manifest.Health {
			continue
		}
		probed = true
		resp, err := e.executor.Run(ctx, p, e.request(host, p, OperationHealth))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if resp.Success {
			return true, nil
		}
	}
	if !probed {
		return false, extension.ErrNoProbe
	}
	return false, errors.Join(errs...)
}
