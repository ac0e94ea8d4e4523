// Package telemetry holds the per-host state built by the strategy pipeline:
// the host configuration, the monitors discovered on the host and their
// metrics.
package telemetry

import (
	"strings"
	"sync"
)

// Host types.
const (
	HostTypeLinux   = "linux"
	HostTypeWindows = "windows"
	HostTypeNetwork = "network"
	HostTypeStorage = "storage"
	HostTypeOOB     = "oob"
)

// HostConfiguration describes one monitored host. Protocol configurations are
// built by the extensions from the raw config and keyed by extension name.
type HostConfiguration struct {
	ID       string
	Hostname string
	Type     string
	// Connectors forces the listed connectors; detection criteria are then
	// skipped.
	Connectors []string

	configurations map[string]any

	// serial orders probes against the host. Ordinary probes share it,
	// forceSerialization probes hold it exclusively.
	serial sync.RWMutex
}

// NewHostConfiguration creates a host configuration.
func NewHostConfiguration(id, hostname, hostType string) *HostConfiguration {
	return &HostConfiguration{
		ID:             id,
		Hostname:       hostname,
		Type:           strings.ToLower(hostType),
		configurations: make(map[string]any),
	}
}

// SetConfiguration stores the typed configuration of an extension.
func (h *HostConfiguration) SetConfiguration(extension string, cfg any) {
	h.configurations[extension] = cfg
}

// Configuration returns the typed configuration of an extension.
func (h *HostConfiguration) Configuration(extension string) (any, bool) {
	cfg, ok := h.configurations[extension]
	return cfg, ok
}

// IsLocalhost reports whether the host is the machine the agent runs on.
func (h *HostConfiguration) IsLocalhost() bool {
	switch strings.ToLower(h.Hostname) {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// Serialize acquires the host's probe lock and returns its release function.
// With force set the caller runs alone against the host; otherwise it only
// excludes forced callers.
func (h *HostConfiguration) Serialize(force bool) (unlock func()) {
	if force {
		h.serial.Lock()
		return h.serial.Unlock
	}
	h.serial.RLock()
	return h.serial.RUnlock
}
