// Package http issues HTTP requests against a host's management endpoint.
package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	nethttp "net/http"
	"sort"
	"strconv"
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
const Name = "http"

const maxBodySize = 16 << 20

// Config is the http section of a host.
type Config struct {
	HTTPS     bool   `yaml:"https"`
	Port      int    `yaml:"port" validate:"omitempty,min=1,max=65535"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Insecure  bool   `yaml:"insecure"`
	TimeoutMs int    `yaml:"timeout_ms" validate:"omitempty,min=1"`
}

// ApplyDefaults fills the port from the scheme and the timeout.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 80
		if c.HTTPS {
			c.Port = 443
		}
	}
	if c.TimeoutMs == 0 {
		c.TimeoutMs = 30000
	}
}

// BaseURL returns scheme://hostname:port.
func (c *Config) BaseURL(hostname string) string {
	scheme := "http"
	if c.HTTPS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(hostname, strconv.Itoa(c.Port)))
}

// Extension is the HTTP protocol extension.
type Extension struct {
	logger *slog.Logger
}

var _ extension.Extension = (*Extension)(nil)

// New creates the HTTP extension.
func New(logger *slog.Logger) *Extension {
	return &Extension{logger: logger.With("component", "http")}
}

func (e *Extension) Name() string { return Name }

func (e *Extension) SupportsSource(_ *telemetry.HostConfiguration, s connector.Source) bool {
	_, ok := s.(*connector.HTTPSource)
	return ok
}

func (e *Extension) SupportsCriterion(_ *telemetry.HostConfiguration, c connector.Criterion) bool {
	_, ok := c.(*connector.HTTPCriterion)
	return ok
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

type request struct {
	method string
	path   string
	header map[string]string
	body   string
}

type response struct {
	status int
	proto  string
	header nethttp.Header
	body   string
}

func (e *Extension) do(ctx context.Context, host *telemetry.HostConfiguration, r request) (*response, error) {
	cfg, err := extension.Configuration[Config](host, Name)
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(r.method)
	if method == "" {
		method = nethttp.MethodGet
	}
	path := r.path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var body io.Reader
	if r.body != "" {
		body = strings.NewReader(extension.ReplaceCredentials(r.body, cfg.Username, cfg.Password))
	}
	req, err := nethttp.NewRequestWithContext(ctx, method, cfg.BaseURL(host.Hostname)+path, body)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP request: %w", err)
	}
	for k, v := range r.header {
		req.Header.Set(k, extension.ReplaceCredentials(v, cfg.Username, cfg.Password))
	}
	if cfg.Username != "" && req.Header.Get("Authorization") == "" {
		req.SetBasicAuth(cfg.Username, cfg.Password)
	}

	client := &nethttp.Client{
		Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond,
		Transport: &nethttp.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.Insecure}, //nolint:gosec // management endpoints use self-signed certificates
		},
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read HTTP response: %w", err)
	}
	return &response{status: resp.StatusCode, proto: resp.Proto, header: resp.Header, body: string(data)}, nil
}

func (e *Extension) Fetch(ctx context.Context, host *telemetry.HostConfiguration, s connector.Source) (table.SourceTable, error) {
	src, ok := s.(*connector.HTTPSource)
	if !ok {
		return table.Empty(), fmt.Errorf("%w: %s", extension.ErrUnsupportedSource, s.Type())
	}

	resp, err := e.do(ctx, host, request{method: src.Method, path: src.Path, header: src.Header, body: src.Body})
	if err != nil {
		return table.Empty(), err
	}

	content := src.ResultContent
	if content == "" {
		content = connector.ResultContentBody
	}
	if resp.status >= 400 && content != connector.ResultContentHTTPStatus && content != connector.ResultContentAll {
		return table.Empty(), fmt.Errorf("HTTP %s %s returned status %d", strings.ToUpper(src.Method), src.Path, resp.status)
	}

	switch content {
	case connector.ResultContentHeader:
		return table.FromRaw(formatHeader(resp.header)), nil
	case connector.ResultContentHTTPStatus:
		return table.FromRaw(strconv.Itoa(resp.status)), nil
	case connector.ResultContentAll:
		all := fmt.Sprintf("%s %d\n%s\n%s", resp.proto, resp.status, formatHeader(resp.header), resp.body)
		return table.FromRaw(all), nil
	default:
		return table.FromRaw(resp.body), nil
	}
}

func (e *Extension) TestCriterion(ctx context.Context, host *telemetry.HostConfiguration, c connector.Criterion) (connector.CriterionResult, error) {
	crit, ok := c.(*connector.HTTPCriterion)
	if !ok {
		return connector.CriterionResult{}, fmt.Errorf("http: unsupported criterion %s", c.Type())
	}

	resp, err := e.do(ctx, host, request{method: crit.Method, path: crit.Path, header: crit.Header, body: crit.Body})
	if err != nil {
		return connector.CriterionResult{Message: err.Error()}, nil
	}
	if resp.status >= 400 {
		return connector.CriterionResult{Message: fmt.Sprintf("HTTP status %d", resp.status), Result: resp.body}, nil
	}
	return extension.ExpectedResult(crit.ExpectedResult, resp.body, crit.ErrorMessage), nil
}

// CheckHealth requests the root path. Any HTTP answer means the endpoint is
// reachable.
func (e *Extension) CheckHealth(ctx context.Context, host *telemetry.HostConfiguration) (bool, error) {
	if _, err := e.do(ctx, host, request{method: nethttp.MethodGet, path: "/"}); err != nil {
		return false, err
	}
	return true, nil
}

// formatHeader renders headers as sorted "Name: value" lines.
func formatHeader(h nethttp.Header) string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range h[k] {
			fmt.Fprintf(&b, "%s: %s\n", k, v)
		}
	}
	return b.String()
}
