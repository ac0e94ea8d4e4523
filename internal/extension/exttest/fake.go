// Package exttest provides a scriptable in-memory extension for tests.
package exttest

import (
	"context"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nmslite/hwmon/internal/connector"
	"github.com/nmslite/hwmon/internal/extension"
	"github.com/nmslite/hwmon/internal/table"
	"github.com/nmslite/hwmon/internal/telemetry"
)

// Fake answers every protocol source and criterion from its callbacks.
type Fake struct {
	ExtensionName string

	// FetchFunc answers Fetch; nil yields an empty table.
	FetchFunc func(ctx context.Context, s connector.Source) (table.SourceTable, error)
	// CriterionFunc answers TestCriterion; nil succeeds.
	CriterionFunc func(ctx context.Context, c connector.Criterion) (connector.CriterionResult, error)
	// Healthy and HealthErr are the CheckHealth answer.
	Healthy   bool
	HealthErr error
	// Delay is slept before each fetch and criterion test.
	Delay time.Duration

	mu      sync.Mutex
	fetched []string
	tested  []string
}

var _ extension.Extension = (*Fake)(nil)

// New creates a healthy fake named "fake".
func New() *Fake {
	return &Fake{ExtensionName: "fake", Healthy: true}
}

func (f *Fake) Name() string {
	return f.ExtensionName
}

func (f *Fake) SupportsSource(_ *telemetry.HostConfiguration, s connector.Source) bool {
	switch s.(type) {
	case *connector.StaticSource, *connector.CopySource, *connector.TableJoinSource, *connector.TableUnionSource:
		return false
	}
	return true
}

func (f *Fake) SupportsCriterion(*telemetry.HostConfiguration, connector.Criterion) bool {
	return true
}

func (f *Fake) IsConfigured(*telemetry.HostConfiguration) bool {
	return true
}

func (f *Fake) BuildConfiguration(*yaml.Node) (any, error) {
	return struct{}{}, nil
}

func (f *Fake) Fetch(ctx context.Context, _ *telemetry.HostConfiguration, s connector.Source) (table.SourceTable, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, s.Base().Key)
	f.mu.Unlock()

	if err := f.wait(ctx); err != nil {
		return table.Empty(), err
	}
	if f.FetchFunc == nil {
		return table.Empty(), nil
	}
	return f.FetchFunc(ctx, s)
}

func (f *Fake) TestCriterion(ctx context.Context, _ *telemetry.HostConfiguration, c connector.Criterion) (connector.CriterionResult, error) {
	f.mu.Lock()
	f.tested = append(f.tested, c.Type())
	f.mu.Unlock()

	if err := f.wait(ctx); err != nil {
		return connector.CriterionResult{}, err
	}
	if f.CriterionFunc == nil {
		return connector.CriterionResult{Success: true, Message: "ok"}, nil
	}
	return f.CriterionFunc(ctx, c)
}

func (f *Fake) CheckHealth(context.Context, *telemetry.HostConfiguration) (bool, error) {
	return f.Healthy, f.HealthErr
}

// Fetched returns the keys of the fetched sources, in call order.
func (f *Fake) Fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

// Tested returns the types of the tested criteria, in call order.
func (f *Fake) Tested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tested...)
}

func (f *Fake) wait(ctx context.Context) error {
	if f.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(f.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
