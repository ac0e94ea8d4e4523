// Package extension defines the protocol extensions the engine delegates I/O
// to, and the registry that picks one for a given source or criterion.
package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/nmslite/hwmon/internal/connector"
	"github.com/nmslite/hwmon/internal/table"
	"github.com/nmslite/hwmon/internal/telemetry"
)

var (
	// ErrNoExtension is returned when no configured extension handles a
	// source or criterion for the host.
	ErrNoExtension = errors.New("no extension available")

	// ErrUnsupportedSource is returned by an extension asked to fetch a
	// source type it does not handle.
	ErrUnsupportedSource = errors.New("unsupported source")

	// ErrNotConfigured is returned when the host has no configuration for the
	// extension.
	ErrNotConfigured = errors.New("extension not configured for host")

	// ErrNoProbe is returned by CheckHealth when the extension has no way to
	// reach the host. It does not count as a failed probe.
	ErrNoProbe = errors.New("extension cannot probe host")
)

// Extension implements one protocol family.
type Extension interface {
	// Name is the key of the extension's section in host configurations.
	Name() string
	SupportsSource(host *telemetry.HostConfiguration, s connector.Source) bool
	SupportsCriterion(host *telemetry.HostConfiguration, c connector.Criterion) bool
	IsConfigured(host *telemetry.HostConfiguration) bool
	// BuildConfiguration decodes and validates the extension's section of a
	// host configuration.
	BuildConfiguration(node *yaml.Node) (any, error)
	Fetch(ctx context.Context, host *telemetry.HostConfiguration, s connector.Source) (table.SourceTable, error)
	TestCriterion(ctx context.Context, host *telemetry.HostConfiguration, c connector.Criterion) (connector.CriterionResult, error)
	CheckHealth(ctx context.Context, host *telemetry.HostConfiguration) (bool, error)
}

// Registry holds the extensions in priority order.
type Registry struct {
	mu         sync.RWMutex
	extensions []Extension
	logger     *slog.Logger
}

// NewRegistry creates a registry. Earlier extensions win when several
// handle the same request.
func NewRegistry(logger *slog.Logger, extensions ...Extension) *Registry {
	return &Registry{
		extensions: extensions,
		logger:     logger.With("component", "extensions"),
	}
}

// Register appends an extension.
func (r *Registry) Register(e Extension) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extensions = append(r.extensions, e)
}

// Get returns an extension by name.
func (r *Registry) Get(name string) (Extension, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.extensions {
		if strings.EqualFold(e.Name(), name) {
			return e, true
		}
	}
	return nil, false
}

// Names lists the registered extensions in priority order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.extensions))
	for i, e := range r.extensions {
		names[i] = e.Name()
	}
	return names
}

// ForSource returns the first configured extension handling the source.
func (r *Registry) ForSource(host *telemetry.HostConfiguration, s connector.Source) (Extension, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.extensions {
		if e.IsConfigured(host) && e.SupportsSource(host, s) {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %s source on host %s", ErrNoExtension, s.Type(), host.ID)
}

// ForCriterion returns the first configured extension handling the criterion.
func (r *Registry) ForCriterion(host *telemetry.HostConfiguration, c connector.Criterion) (Extension, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.extensions {
		if e.IsConfigured(host) && e.SupportsCriterion(host, c) {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %s criterion on host %s", ErrNoExtension, c.Type(), host.ID)
}

// CheckHealth asks every configured extension whether the host answers. The
// host is up as soon as one extension reaches it.
func (r *Registry) CheckHealth(ctx context.Context, host *telemetry.HostConfiguration) bool {
	r.mu.RLock()
	extensions := append([]Extension(nil), r.extensions...)
	r.mu.RUnlock()

	checked := false
	for _, e := range extensions {
		if !e.IsConfigured(host) {
			continue
		}
		up, err := e.CheckHealth(ctx, host)
		if errors.Is(err, ErrNoProbe) {
			continue
		}
		checked = true
		if err != nil {
			r.logger.Debug("health check failed",
				"host_id", host.ID,
				"extension", e.Name(),
				"error", err,
			)
			continue
		}
		if up {
			return true
		}
	}
	// nothing to probe with: consider the host reachable
	return !checked
}

// BuildHost creates a host configuration, letting each extension decode its
// own section of protocols.
func (r *Registry) BuildHost(id, hostname, hostType string, connectors []string, protocols map[string]yaml.Node) (*telemetry.HostConfiguration, error) {
	host := telemetry.NewHostConfiguration(id, hostname, hostType)
	host.Connectors = connectors

	for name, node := range protocols {
		e, ok := r.Get(name)
		if !ok {
			return nil, fmt.Errorf("host %s: unknown protocol %q", id, name)
		}
		cfg, err := e.BuildConfiguration(&node)
		if err != nil {
			return nil, fmt.Errorf("host %s: %s: %w", id, name, err)
		}
		host.SetConfiguration(e.Name(), cfg)
	}
	return host, nil
}

// Configuration returns the typed configuration an extension stored on the
// host.
func Configuration[T any](host *telemetry.HostConfiguration, name string) (*T, error) {
	raw, ok := host.Configuration(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrNotConfigured, name, host.ID)
	}
	cfg, ok := raw.(*T)
	if !ok {
		return nil, fmt.Errorf("%s configuration of host %s has type %T", name, host.ID, raw)
	}
	return cfg, nil
}

// Decode decodes a configuration node into cfg. A nil or empty node leaves
// cfg untouched.
func Decode(node *yaml.Node, cfg any) error {
	if node == nil || node.Kind == 0 {
		return nil
	}
	if err := node.Decode(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ReplaceCredentials substitutes the %{USERNAME} and %{PASSWORD} macros of a
// command line.
func ReplaceCredentials(command, username, password string) string {
	return strings.NewReplacer(
		"%{USERNAME}", username,
		"%{PASSWORD}", password,
	).Replace(command)
}
