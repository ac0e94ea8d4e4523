package config

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

const exampleProtocols = `
ssh:
  username: monitor
  password: enc:REPLACE_WITH_OUTPUT_OF_hwmon_encrypt
  port: 22
snmp:
  version: 2c
  community: public
  port: 161
`

// DumpExampleConfig writes an example configuration to the provided writer
func DumpExampleConfig(w io.Writer) error {
	var protocols map[string]yaml.Node
	if err := yaml.Unmarshal([]byte(exampleProtocols), &protocols); err != nil {
		return fmt.Errorf("failed to build example protocols: %w", err)
	}

	example := &Config{
		Server: ServerConfig{
			Enabled:        true,
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeoutMS:  30000,
			WriteTimeoutMS: 30000,
		},
		Auth: AuthConfig{
			AdminUsername:  "admin",
			AdminPassword:  "changeme",
			JWTSecret:      "your-secret-key-minimum-32-chars-required",
			JWTExpiryHours: 24,
			EncryptionKey:  "32-character-encryption-key!!!!!",
		},
		Scheduler: SchedulerConfig{
			TickIntervalMS:      1000,
			Workers:             20,
			CollectIntervalMS:   120000,
			DiscoveryIntervalMS: 3600000,
			DetectionValidityMS: 86400000,
			DetectionWorkers:    4,
			FetchTimeoutMS:      30000,
			HealthTimeoutMS:     10000,
			DownThreshold:       3,
		},
		Connectors: ConnectorsConfig{
			Directory: "./connectors",
			Watch:     true,
		},
		Plugins: PluginsConfig{
			Directory: "./plugins",
			TimeoutMS: 60000,
		},
		Export: ExportConfig{
			OTel:         true,
			OTLPEndpoint: "localhost:4317",
			OTLPInsecure: true,
			IntervalMS:   60000,
			Prometheus:   true,
			MeterName:    "github.com/nmslite/hwmon",
		},
		Channel: ChannelConfig{
			CycleChannelSize:     100,
			HostStateChannelSize: 50,
			ConnectorChannelSize: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Hosts: []HostConfig{
			{
				ID:        "rack1",
				Targets:   []string{"10.0.1.10-10.0.1.20"},
				Type:      "linux",
				Protocols: protocols,
			},
			{
				Hostname:   "switch01.example.com",
				Type:       "network",
				Connectors: []string{"GenericSwitch"},
				Protocols:  map[string]yaml.Node{"snmp": protocols["snmp"]},
			},
		},
	}

	var node yaml.Node
	if err := node.Encode(example); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	header := `# =============================================================================
# hwmon Example Configuration
# =============================================================================
# Copy this file to config.yaml and modify it according to your needs.
#
# Environment variable overrides follow the pattern: HWMON_<SECTION>_<KEY>
# Example: HWMON_AUTH_JWT_SECRET, HWMON_SCHEDULER_WORKERS
#
# Protocol secrets may be stored encrypted: run "hwmon encrypt <value>" and
# paste the enc:... output in place of the plaintext.
# =============================================================================

`
	if _, err := fmt.Fprint(w, header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(&node); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to close encoder: %w", err)
	}
	return nil
}
