package plugin

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/nmslite/hwmon/internal/connector"
	"github.com/nmslite/hwmon/internal/extension"
	"github.com/nmslite/hwmon/internal/telemetry"
)

const ipmiScript = `#!/bin/sh
req=$(cat)
id=$(printf '%s' "$req" | sed -n 's/.*"request_id":"\([^"]*\)".*/\1/p')
case "$req" in
  *'"operation":"fetch"'*)
    printf '{"request_id":"%s","status":"success","table":[["PS1","OK"],["PS2","FAILED"]]}' "$id" ;;
  *'"operation":"criterion"'*)
    printf '{"request_id":"%s","status":"success","success":true,"message":"BMC answered"}' "$id" ;;
  *'"operation":"health"'*)
    printf '{"request_id":"%s","status":"success","success":true}' "$id" ;;
esac
`

const brokenScript = `#!/bin/sh
cat > /dev/null
printf '{"status":"error","error":"ipmitool not found"}'
`

const slowScript = `#!/bin/sh
sleep 5
`

func writePlugin(t *testing.T, dir, name, script string, manifest Manifest) {
	t.Helper()
	pluginDir := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(pluginDir, 0o755))
	data, err := json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "manifest.json"), data, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, name), []byte(script), 0o755))
}

func newTestExtension(t *testing.T) *Extension {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("plugins are shell scripts")
	}

	dir := t.TempDir()
	writePlugin(t, dir, "ipmitool", ipmiScript, Manifest{
		ID: "ipmitool", Name: "IPMI", Version: "1.0.0",
		Sources: []string{"ipmi"}, Criteria: []string{"ipmi"}, Health: true,
	})
	writePlugin(t, dir, "broken", brokenScript, Manifest{
		ID: "broken", Sources: []string{"ipmi", "wbem"}, Health: true,
	})
	writePlugin(t, dir, "slow", slowScript, Manifest{
		ID: "slow", Sources: []string{"snmpGet"}, TimeoutMs: 200,
	})
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "no-manifest"), 0o755))

	e, err := New(dir, 5*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return e
}

func hostWith(t *testing.T, e *Extension, cfgYAML string) *telemetry.HostConfiguration {
	t.Helper()
	var node yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(cfgYAML), &node))
	cfg, err := e.BuildConfiguration(&node)
	require.NoError(t, err)

	host := telemetry.NewHostConfiguration("bmc1", "10.0.0.50", telemetry.HostTypeOOB)
	host.SetConfiguration(Name, cfg)
	return host
}

func TestRegistryScan(t *testing.T) {
	e := newTestExtension(t)

	ids := []string{}
	for _, p := range e.Registry().List() {
		ids = append(ids, p.Manifest.ID)
	}
	assert.Equal(t, []string{"broken", "ipmitool", "slow"}, ids)
	assert.Len(t, e.Registry().ForSource("ipmi"), 2)
	assert.Empty(t, e.Registry().ForCriterion("wbem"))
}

func TestBuildConfigurationUnknownPlugin(t *testing.T) {
	e := newTestExtension(t)
	var node yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte("racadm: {}"), &node))
	_, err := e.BuildConfiguration(&node)
	assert.ErrorContains(t, err, `unknown plugin "racadm"`)
}

func TestFetch(t *testing.T) {
	e := newTestExtension(t)
	host := hostWith(t, e, "ipmitool:\n  username: admin\n  password: pw")

	assert.True(t, e.IsConfigured(host))
	assert.True(t, e.SupportsSource(host, &connector.IPMISource{}))
	assert.False(t, e.SupportsSource(host, &connector.WBEMSource{}))

	got, err := e.Fetch(context.Background(), host, &connector.IPMISource{})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"PS1", "OK"}, {"PS2", "FAILED"}}, got.Table)
}

func TestFetchPluginError(t *testing.T) {
	e := newTestExtension(t)
	host := hostWith(t, e, "broken: {}")

	_, err := e.Fetch(context.Background(), host, &connector.IPMISource{})
	assert.ErrorContains(t, err, "ipmitool not found")
}

func TestFetchTimeout(t *testing.T) {
	e := newTestExtension(t)
	host := hostWith(t, e, "slow: {}")

	_, err := e.Fetch(context.Background(), host, &connector.SNMPGetSource{OID: "1.3.6.1"})
	assert.ErrorContains(t, err, "timed out")
}

func TestCriterion(t *testing.T) {
	e := newTestExtension(t)
	host := hostWith(t, e, "ipmitool: {}")

	res, err := e.TestCriterion(context.Background(), host, &connector.IPMICriterion{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "BMC answered", res.Message)
}

func TestCheckHealth(t *testing.T) {
	e := newTestExtension(t)

	up, err := e.CheckHealth(context.Background(), hostWith(t, e, "ipmitool: {}"))
	require.NoError(t, err)
	assert.True(t, up)

	up, err = e.CheckHealth(context.Background(), hostWith(t, e, "broken: {}"))
	assert.False(t, up)
	assert.ErrorContains(t, err, "ipmitool not found")

	_, err = e.CheckHealth(context.Background(), hostWith(t, e, "slow: {}"))
	assert.ErrorIs(t, err, extension.ErrNoProbe)
}
