// Package ssh runs command lines and process checks on Unix hosts over SSH.
package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"gopkg.in/yaml.v3"

	"github.com/nmslite/hwmon/internal/connector"
	"github.com/nmslite/hwmon/internal/extension"
	"github.com/nmslite/hwmon/internal/table"
	"github.com/nmslite/hwmon/internal/telemetry"
	"github.com/nmslite/hwmon/internal/validation"
)

// Name is the extension name and host configuration key.
const Name = "ssh"

const (
	healthCommand = "echo SSH_UP_TEST"
	psCommand     = "ps -A -o args"
)

// Config is the ssh section of a host.
type Config struct {
	Username   string `yaml:"username" validate:"required"`
	Password   string `yaml:"password"`
	PrivateKey string `yaml:"private_key"`
	Passphrase string `yaml:"passphrase"`
	Port       int    `yaml:"port" validate:"omitempty,min=1,max=65535"`
	TimeoutMs  int    `yaml:"timeout_ms" validate:"omitempty,min=1"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 22
	}
	if c.TimeoutMs == 0 {
		c.TimeoutMs = 10000
	}
}

// Validate requires at least one authentication method.
func (c *Config) Validate() error {
	if c.Password == "" && c.PrivateKey == "" {
		return errors.New("either password or private_key is required")
	}
	return nil
}

// Timeout returns the connection timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c *Config) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if c.Password != "" {
		methods = append(methods, ssh.Password(c.Password))
	}
	if c.PrivateKey != "" {
		var (
			key ssh.Signer
			err error
		)
		if c.Passphrase != "" {
			key, err = ssh.ParsePrivateKeyWithPassphrase([]byte(c.PrivateKey), []byte(c.Passphrase))
		} else {
			key, err = ssh.ParsePrivateKey([]byte(c.PrivateKey))
		}
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(key))
	}
	return methods, nil
}

// conn is an open connection able to run commands.
type conn interface {
	Run(ctx context.Context, command string) (string, error)
	Close() error
}

type sshConn struct {
	c *ssh.Client
}

func dial(ctx context.Context, hostname string, cfg *Config) (conn, error) {
	auth, err := cfg.authMethods()
	if err != nil {
		return nil, err
	}
	clientConfig := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         cfg.Timeout(),
	}

	address := net.JoinHostPort(hostname, strconv.Itoa(cfg.Port))
	d := net.Dialer{Timeout: cfg.Timeout()}
	nc, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("SSH connection failed: %w", err)
	}
	c, chans, reqs, err := ssh.NewClientConn(nc, address, clientConfig)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("SSH handshake failed: %w", err)
	}
	return &sshConn{c: ssh.NewClient(c, chans, reqs)}, nil
}

func (s *sshConn) Run(ctx context.Context, command string) (string, error) {
	sess, err := s.c.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to open SSH session: %w", err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- sess.Run(command) }()

	select {
	case err := <-done:
		if err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				return "", fmt.Errorf("command failed (exit status %d): %s", exitErr.ExitStatus(), strings.TrimSpace(stderr.String()))
			}
			return "", fmt.Errorf("SSH execution failed: %w", err)
		}
		return stdout.String(), nil
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		return "", ctx.Err()
	}
}

func (s *sshConn) Close() error {
	return s.c.Close()
}

// Extension is the SSH protocol extension.
type Extension struct {
	dial   func(ctx context.Context, hostname string, cfg *Config) (conn, error)
	logger *slog.Logger
}

var _ extension.Extension = (*Extension)(nil)

// New creates the SSH extension.
func New(logger *slog.Logger) *Extension {
	return &Extension{
		dial:   dial,
		logger: logger.With("component", "ssh"),
	}
}

func (e *Extension) Name() string { return Name }

func (e *Extension) SupportsSource(host *telemetry.HostConfiguration, s connector.Source) bool {
	_, ok := s.(*connector.CommandLineSource)
	return ok && host.Type != telemetry.HostTypeWindows
}

func (e *Extension) SupportsCriterion(host *telemetry.HostConfiguration, c connector.Criterion) bool {
	if host.Type == telemetry.HostTypeWindows {
		return false
	}
	switch c.(type) {
	case *connector.CommandLineCriterion, *connector.ProcessCriterion:
		return true
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

// run opens a connection, runs one command and closes the connection.
func (e *Extension) run(ctx context.Context, host *telemetry.HostConfiguration, command string) (string, error) {
	cfg, err := extension.Configuration[Config](host, Name)
	if err != nil {
		return "", err
	}
	c, err := e.dial(ctx, host.Hostname, cfg)
	if err != nil {
		return "", err
	}
	defer c.Close()

	e.logger.Debug("running command", "host", host.ID, "command", command)
	return c.Run(ctx, extension.ReplaceCredentials(command, cfg.Username, cfg.Password))
}

func (e *Extension) Fetch(ctx context.Context, host *telemetry.HostConfiguration, s connector.Source) (table.SourceTable, error) {
	src, ok := s.(*connector.CommandLineSource)
	if !ok {
		return table.Empty(), fmt.Errorf("%w: %s", extension.ErrUnsupportedSource, s.Type())
	}
	out, err := e.run(ctx, host, src.CommandLine)
	if err != nil {
		return table.Empty(), err
	}
	return table.FromRaw(out), nil
}

func (e *Extension) TestCriterion(ctx context.Context, host *telemetry.HostConfiguration, c connector.Criterion) (connector.CriterionResult, error) {
	switch crit := c.(type) {
	case *connector.CommandLineCriterion:
		out, err := e.run(ctx, host, crit.CommandLine)
		if errors.Is(err, extension.ErrNotConfigured) {
			return connector.CriterionResult{}, err
		}
		if err != nil {
			return connector.CriterionResult{Message: err.Error()}, nil
		}
		return extension.ExpectedResult(crit.ExpectedResult, out, crit.ErrorMessage), nil

	case *connector.ProcessCriterion:
		out, err := e.run(ctx, host, psCommand)
		if errors.Is(err, extension.ErrNotConfigured) {
			return connector.CriterionResult{}, err
		}
		if err != nil {
			return connector.CriterionResult{Message: err.Error()}, nil
		}
		return extension.ProcessResult(crit.CommandLine, out), nil
	}
	return connector.CriterionResult{}, fmt.Errorf("ssh: unsupported criterion %s", c.Type())
}

// CheckHealth runs a trivial echo.
func (e *Extension) CheckHealth(ctx context.Context, host *telemetry.HostConfiguration) (bool, error) {
	out, err := e.run(ctx, host, healthCommand)
	if err != nil {
		return false, err
	}
	return strings.Contains(out, "SSH_UP_TEST"), nil
}
