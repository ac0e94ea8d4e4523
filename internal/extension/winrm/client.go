package winrm

import (
	"context"
	"fmt"
	"strings"

	"github.com/masterzen/winrm"
)

// runner executes one command on the remote host and returns its stdout.
type runner interface {
	Run(ctx context.Context, command string) (string, error)
}

type client struct {
	c *winrm.Client
}

// newClient creates a WinRM client. A domain selects NTLM, Basic is used
// otherwise.
func newClient(hostname string, cfg *Config) (runner, error) {
	endpoint := winrm.NewEndpoint(
		hostname,
		cfg.Port,
		cfg.UseHTTPS,
		cfg.Insecure,
		nil, // CA certificate
		nil, // client certificate
		nil, // client key
		cfg.Timeout(),
	)

	var (
		c   *winrm.Client
		err error
	)
	if cfg.Domain != "" {
		params := winrm.DefaultParameters
		params.TransportDecorator = func() winrm.Transporter {
			return &winrm.ClientNTLM{}
		}
		c, err = winrm.NewClientWithParameters(endpoint, fmt.Sprintf("%s\\%s", cfg.Domain, cfg.Username), cfg.Password, params)
	} else {
		c, err = winrm.NewClient(endpoint, cfg.Username, cfg.Password)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create WinRM client: %w", err)
	}
	return &client{c: c}, nil
}

func (c *client) Run(ctx context.Context, command string) (string, error) {
	stdout, stderr, exitCode, err := c.c.RunWithContextWithString(ctx, command, "")
	if err != nil {
		return "", fmt.Errorf("WinRM execution failed: %w", err)
	}
	if exitCode != 0 {
		return "", fmt.Errorf("command failed (exit code %d): %s", exitCode, strings.TrimSpace(stderr))
	}
	return stdout, nil
}

// powershell wraps a script so it survives cmd.exe quoting.
func powershell(script string) string {
	return winrm.Powershell(script)
}
