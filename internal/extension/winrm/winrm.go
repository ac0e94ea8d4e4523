// Package winrm runs WMI/WBEM queries, remote commands and process checks on
// Windows hosts over WinRM.
package winrm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nmslite/hwmon/internal/connector"
	"github.com/nmslite/hwmon/internal/extension"
	"github.com/nmslite/hwmon/internal/table"
	"github.com/nmslite/hwmon/internal/telemetry"
	"github.com/nmslite/hwmon/internal/validation"
)

// Name is the extension name and host configuration key.
const Name = "winrm"

const healthQuery = "SELECT Caption FROM Win32_OperatingSystem"

// Config is the winrm section of a host.
type Config struct {
	Username  string `yaml:"username" validate:"required"`
	Password  string `yaml:"password" validate:"required"`
	Domain    string `yaml:"domain"`
	Port      int    `yaml:"port" validate:"omitempty,min=1,max=65535"`
	UseHTTPS  bool   `yaml:"use_https"`
	Insecure  bool   `yaml:"insecure"`
	TimeoutMs int    `yaml:"timeout_ms" validate:"omitempty,min=1"`
}

// ApplyDefaults fills the port from the transport and the timeout.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 5985
		if c.UseHTTPS {
			c.Port = 5986
		}
	}
	if c.TimeoutMs == 0 {
		c.TimeoutMs = 30000
	}
}

// Timeout returns the WinRM operation timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Extension is the WinRM protocol extension.
type Extension struct {
	connect func(hostname string, cfg *Config) (runner, error)
	logger  *slog.Logger
}

var _ extension.Extension = (*Extension)(nil)

// New creates the WinRM extension.
func New(logger *slog.Logger) *Extension {
	return &Extension{
		connect: newClient,
		logger:  logger.With("component", "winrm"),
	}
}

func (e *Extension) Name() string { return Name }

func (e *Extension) SupportsSource(host *telemetry.HostConfiguration, s connector.Source) bool {
	switch s.(type) {
	case *connector.WMISource, *connector.WBEMSource:
		return true
	case *connector.CommandLineSource:
		return host.Type == telemetry.HostTypeWindows
	}
	return false
}

func (e *Extension) SupportsCriterion(host *telemetry.HostConfiguration, c connector.Criterion) bool {
	switch c.(type) {
	case *connector.WMICriterion, *connector.WBEMCriterion:
		return true
	case *connector.CommandLineCriterion, *connector.ProcessCriterion:
		return host.Type == telemetry.HostTypeWindows
	}
	return false
}

func (e *Extension) IsConfigured(host *telemetry.HostConfiguration) bool {
	_, ok := host.Configuration(Name)
	return ok
}

func (e *Extension) BuildConfiguration(node *yaml.Node) (any, error) {
	cfg := &Config{}
	if err := extension.Decode(node, cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := validation.Struct(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (e *Extension) open(host *telemetry.HostConfiguration) (runner, *Config, error) {
	cfg, err := extension.Configuration[Config](host, Name)
	if err != nil {
		return nil, nil, err
	}
	r, err := e.connect(host.Hostname, cfg)
	if err != nil {
		return nil, nil, err
	}
	return r, cfg, nil
}

func (e *Extension) Fetch(ctx context.Context, host *telemetry.HostConfiguration, s connector.Source) (table.SourceTable, error) {
	r, cfg, err := e.open(host)
	if err != nil {
		return table.Empty(), err
	}

	switch src := s.(type) {
	case *connector.WMISource:
		rows, err := query(ctx, r, src.Namespace, src.Query)
		if err != nil {
			return table.Empty(), err
		}
		return table.FromRows(rows), nil

	case *connector.WBEMSource:
		rows, err := query(ctx, r, src.Namespace, src.Query)
		if err != nil {
			return table.Empty(), err
		}
		return table.FromRows(rows), nil

	case *connector.CommandLineSource:
		out, err := r.Run(ctx, extension.ReplaceCredentials(src.CommandLine, cfg.Username, cfg.Password))
		if err != nil {
			return table.Empty(), err
		}
		return table.FromRaw(out), nil
	}
	return table.Empty(), fmt.Errorf("%w: %s", extension.ErrUnsupportedSource, s.Type())
}

func (e *Extension) TestCriterion(ctx context.Context, host *telemetry.HostConfiguration, c connector.Criterion) (connector.CriterionResult, error) {
	r, cfg, err := e.open(host)
	if err != nil {
		return connector.CriterionResult{}, err
	}

	switch crit := c.(type) {
	case *connector.WMICriterion:
		return queryCriterion(ctx, r, crit.Namespace, crit.Query, crit.ExpectedResult)

	case *connector.WBEMCriterion:
		return queryCriterion(ctx, r, crit.Namespace, crit.Query, crit.ExpectedResult)

	case *connector.CommandLineCriterion:
		out, err := r.Run(ctx, extension.ReplaceCredentials(crit.CommandLine, cfg.Username, cfg.Password))
		if err != nil {
			return connector.CriterionResult{Message: err.Error()}, nil
		}
		return extension.ExpectedResult(crit.ExpectedResult, out, crit.ErrorMessage), nil

	case *connector.ProcessCriterion:
		rows, err := query(ctx, r, "", "SELECT CommandLine FROM Win32_Process")
		if err != nil {
			return connector.CriterionResult{Message: err.Error()}, nil
		}
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			lines = append(lines, row[0])
		}
		return extension.ProcessResult(crit.CommandLine, strings.Join(lines, "\n")), nil
	}
	return connector.CriterionResult{}, fmt.Errorf("winrm: unsupported criterion %s", c.Type())
}

// CheckHealth queries Win32_OperatingSystem.
func (e *Extension) CheckHealth(ctx context.Context, host *telemetry.HostConfiguration) (bool, error) {
	r, _, err := e.open(host)
	if err != nil {
		return false, err
	}
	rows, err := query(ctx, r, "", healthQuery)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func query(ctx context.Context, r runner, namespace, wql string) ([][]string, error) {
	props, err := queryProperties(wql)
	if err != nil {
		return nil, err
	}
	out, err := r.Run(ctx, powershell(cimScript(namespace, wql, props)))
	if err != nil {
		return nil, err
	}
	return parseRows(out, props)
}

func queryCriterion(ctx context.Context, r runner, namespace, wql, expected string) (connector.CriterionResult, error) {
	rows, err := query(ctx, r, namespace, wql)
	if errors.Is(err, ErrSelectAll) {
		return connector.CriterionResult{}, err
	}
	if err != nil {
		return connector.CriterionResult{Message: err.Error()}, nil
	}
	if len(rows) == 0 {
		return connector.CriterionResult{Message: fmt.Sprintf("query returned no result: %s", wql)}, nil
	}
	return extension.ExpectedResult(expected, table.FromRows(rows).Text(), ""), nil
}
