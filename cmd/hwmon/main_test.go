package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const testConfig = `
auth:
  admin_password: secret
  jwt_secret: 12345678901234567890123456789012
  encryption_key: 12345678901234567890123456789012
hosts:
  - id: rack
    targets: [10.0.0.1-10.0.0.3]
    type: linux
`

func TestVersion(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "hwmon version "))
}

func TestConfigExample(t *testing.T) {
	out, err := execute(t, "config", "example")
	require.NoError(t, err)
	assert.Contains(t, out, "hwmon Example Configuration")
	assert.Contains(t, out, "otlp_endpoint: localhost:4317")
}

func TestConfigValidate(t *testing.T) {
	out, err := execute(t, "config", "validate", "--config", writeConfig(t, testConfig))
	require.NoError(t, err)
	assert.Contains(t, out, "rack-10.0.0.2")
	assert.Contains(t, out, "configuration valid: 3 hosts")

	_, err = execute(t, "config", "validate", "--config", writeConfig(t, "logging:\n  level: loud\n"))
	assert.Error(t, err)
}

func TestEncrypt(t *testing.T) {
	out, err := execute(t, "encrypt", "s3cret", "-c", writeConfig(t, testConfig))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "enc:"))

	_, err = execute(t, "encrypt", "-c", writeConfig(t, testConfig))
	assert.Error(t, err, "value is required")
}

func TestToken(t *testing.T) {
	out, err := execute(t, "token", "-c", writeConfig(t, testConfig))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "."), 3)
}

func TestConnectors(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig + "connectors:\n  directory: " + dir + "\n"

	out, err := execute(t, "connectors", "-c", writeConfig(t, cfg))
	require.NoError(t, err)
	assert.Contains(t, out, "APPLIES TO")
}
