// Package oscommand runs command lines on the machine hosting the agent.
package oscommand

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
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
const Name = "oscommand"

// Config is the optional oscommand section of a host. The credentials only
// feed the %{USERNAME} and %{PASSWORD} macros of local command lines.
type Config struct {
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	TimeoutMs int    `yaml:"timeout_ms" validate:"omitempty,min=1"`
}

// ApplyDefaults fills the timeout.
func (c *Config) ApplyDefaults() {
	if c.TimeoutMs == 0 {
		c.TimeoutMs = 30000
	}
}

// Timeout returns the default command timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Extension executes commands locally. It is always configured: OSCommand
// sources run on the agent whatever the host, and CommandLine sources run
// here when the host is the agent itself.
type Extension struct {
	logger *slog.Logger
}

var _ extension.Extension = (*Extension)(nil)

// New creates the local command extension.
func New(logger *slog.Logger) *Extension {
	return &Extension{logger: logger.With("component", "oscommand")}
}

func (e *Extension) Name() string { return Name }

func (e *Extension) SupportsSource(host *telemetry.HostConfiguration, s connector.Source) bool {
	switch s.(type) {
	case *connector.OSCommandSource:
		return true
	case *connector.CommandLineSource:
		return host.IsLocalhost()
	}
	return false
}

func (e *Extension) SupportsCriterion(host *telemetry.HostConfiguration, c connector.Criterion) bool {
	switch c.(type) {
	case *connector.OSCommandCriterion:
		return true
	case *connector.CommandLineCriterion, *connector.ProcessCriterion:
		return host.IsLocalhost()
	}
	return false
}

func (e *Extension) IsConfigured(*telemetry.HostConfiguration) bool {
	return true
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

func (e *Extension) config(host *telemetry.HostConfiguration) *Config {
	cfg, err := extension.Configuration[Config](host, Name)
	if err != nil {
		cfg = &Config{}
		cfg.ApplyDefaults()
	}
	return cfg
}

// run executes command through the platform shell. A zero timeout uses the
// host default.
func (e *Extension) run(ctx context.Context, host *telemetry.HostConfiguration, command string, timeout time.Duration) (string, error) {
	cfg := e.config(host)
	if timeout <= 0 {
		timeout = cfg.Timeout()
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	command = extension.ReplaceCredentials(command, cfg.Username, cfg.Password)
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(execCtx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(execCtx, "/bin/sh", "-c", command)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.Debug("running local command", "host_id", host.ID, "timeout", timeout)
	err := cmd.Run()
	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("command timed out after %v", timeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("command failed (exit status %d): %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return "", fmt.Errorf("command failed: %w", err)
	}
	return stdout.String(), nil
}

func (e *Extension) Fetch(ctx context.Context, host *telemetry.HostConfiguration, s connector.Source) (table.SourceTable, error) {
	var (
		command string
		timeout time.Duration
	)
	switch src := s.(type) {
	case *connector.OSCommandSource:
		command, timeout = src.CommandLine, src.FetchTimeout()
	case *connector.CommandLineSource:
		command, timeout = src.CommandLine, src.FetchTimeout()
	default:
		return table.Empty(), fmt.Errorf("%w: %s", extension.ErrUnsupportedSource, s.Type())
	}

	out, err := e.run(ctx, host, command, timeout)
	if err != nil {
		return table.Empty(), err
	}
	return table.FromRaw(out), nil
}

func (e *Extension) TestCriterion(ctx context.Context, host *telemetry.HostConfiguration, c connector.Criterion) (connector.CriterionResult, error) {
	switch crit := c.(type) {
	case *connector.OSCommandCriterion:
		return e.commandCriterion(ctx, host, crit.CommandLine, crit.ExpectedResult, crit.ErrorMessage, time.Duration(crit.TimeoutSeconds)*time.Second), nil
	case *connector.CommandLineCriterion:
		return e.commandCriterion(ctx, host, crit.CommandLine, crit.ExpectedResult, crit.ErrorMessage, time.Duration(crit.TimeoutSeconds)*time.Second), nil
	case *connector.ProcessCriterion:
		out, err := e.run(ctx, host, processListCommand(), 0)
		if err != nil {
			return connector.CriterionResult{Message: err.Error()}, nil
		}
		return extension.ProcessResult(crit.CommandLine, out), nil
	}
	return connector.CriterionResult{}, fmt.Errorf("oscommand: unsupported criterion %s", c.Type())
}

func (e *Extension) commandCriterion(ctx context.Context, host *telemetry.HostConfiguration, command, expected, errorMessage string, timeout time.Duration) connector.CriterionResult {
	out, err := e.run(ctx, host, command, timeout)
	if err != nil {
		return connector.CriterionResult{Message: err.Error()}
	}
	return extension.ExpectedResult(expected, out, errorMessage)
}

// CheckHealth only answers for the local host, which is always up.
func (e *Extension) CheckHealth(_ context.Context, host *telemetry.HostConfiguration) (bool, error) {
	if !host.IsLocalhost() {
		return false, extension.ErrNoProbe
	}
	return true, nil
}

func processListCommand() string {
	if runtime.GOOS == "windows" {
		return `powershell.exe -NoProfile -Command "Get-CimInstance Win32_Process | ForEach-Object { $_.CommandLine }"`
	}
	return "ps -A -o args"
}
