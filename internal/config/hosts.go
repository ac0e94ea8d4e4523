package config

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// HostConfig is one entry of the hosts list. Either Hostname or Targets is
// set; Targets expands into one host per address.
type HostConfig struct {
	ID         string   `yaml:"id"`
	Hostname   string   `yaml:"hostname"`
	Targets    []string `yaml:"targets"`
	Type       string   `yaml:"type" validate:"required,oneof=linux windows network storage oob"`
	Connectors []string `yaml:"connectors,omitempty"`
	// Protocols holds one raw section per extension, decoded by the
	// extension itself.
	Protocols map[string]yaml.Node `yaml:"protocols"`
}

// Key returns the id of the entry, defaulting to its hostname.
func (h HostConfig) Key() string {
	if h.ID != "" {
		return h.ID
	}
	if h.Hostname != "" {
		return h.Hostname
	}
	return strings.Join(h.Targets, ",")
}

func (h HostConfig) validate() error {
	switch {
	case h.Hostname == "" && len(h.Targets) == 0:
		return errors.New("hostname or targets is required")
	case h.Hostname != "" && len(h.Targets) > 0:
		return errors.New("hostname and targets are mutually exclusive")
	}
	for _, t := range h.Targets {
		if err := ValidateTarget(t); err != nil {
			return err
		}
	}
	return nil
}

// Host is one monitored host after target expansion.
type Host struct {
	ID         string
	Hostname   string
	Type       string
	Connectors []string
	Protocols  map[string]yaml.Node
}

// ExpandHosts turns the hosts list into individual hosts. Hosts expanded from
// targets are named "<id>-<address>".
func (c *Config) ExpandHosts() ([]Host, error) {
	var out []Host
	seen := make(map[string]bool)
	add := func(h Host) error {
		if seen[h.ID] {
			return fmt.Errorf("duplicate host id %q", h.ID)
		}
		seen[h.ID] = true
		out = append(out, h)
		return nil
	}

	for _, hc := range c.Hosts {
		if len(hc.Targets) == 0 {
			if err := add(Host{
				ID:         hc.Key(),
				Hostname:   hc.Hostname,
				Type:       hc.Type,
				Connectors: hc.Connectors,
				Protocols:  hc.Protocols,
			}); err != nil {
				return nil, err
			}
			continue
		}

		for _, target := range hc.Targets {
			addrs, err := ExpandTarget(target)
			if err != nil {
				return nil, fmt.Errorf("host %s: %w", hc.Key(), err)
			}
			for _, addr := range addrs {
				id := addr
				if hc.ID != "" {
					id = hc.ID + "-" + addr
				}
				if err := add(Host{
					ID:         id,
					Hostname:   addr,
					Type:       hc.Type,
					Connectors: hc.Connectors,
					Protocols:  hc.Protocols,
				}); err != nil {
					return nil, err
				}
			}
		}
	}
	return out, nil
}

// Decrypter decrypts values written as "enc:<base64>".
type Decrypter interface {
	DecryptValue(value string) (string, error)
}

// DecryptSecrets replaces every encrypted scalar of the hosts' protocol
// sections with its plaintext.
func (c *Config) DecryptSecrets(d Decrypter) error {
	for i := range c.Hosts {
		for name, node := range c.Hosts[i].Protocols {
			if err := decryptNode(&node, d); err != nil {
				return fmt.Errorf("host %s: %s: %w", c.Hosts[i].Key(), name, err)
			}
			c.Hosts[i].Protocols[name] = node
		}
	}
	return nil
}

func decryptNode(n *yaml.Node, d Decrypter) error {
	if n.Kind == yaml.ScalarNode {
		plain, err := d.DecryptValue(n.Value)
		if err != nil {
			return err
		}
		n.Value = plain
		return nil
	}
	for _, child := range n.Content {
		if err := decryptNode(child, d); err != nil {
			return err
		}
	}
	return nil
}
