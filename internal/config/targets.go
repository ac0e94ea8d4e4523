package config

import (
	"fmt"
	"net/netip"
	"strings"
)

// MaxTargetHosts bounds the hosts a single target may expand into.
const MaxTargetHosts = 4096

// TargetType represents the type of a host target
type TargetType string

const (
	TargetTypeCIDR    TargetType = "cidr"
	TargetTypeRange   TargetType = "range"
	TargetTypeSingle  TargetType = "ip"
	TargetTypeUnknown TargetType = "unknown"
)

// DetectTargetType detects the type of a target from its value.
//
// Examples:
//   - "192.168.1.0/24" -> "cidr"
//   - "192.168.1.1-192.168.1.50" -> "range"
//   - "192.168.1.100" -> "ip"
//   - "invalid" -> "unknown"
func DetectTargetType(value string) TargetType {
	value = strings.TrimSpace(value)

	if strings.Contains(value, "/") {
		if _, err := netip.ParsePrefix(value); err == nil {
			return TargetTypeCIDR
		}
	}

	if start, end, ok := strings.Cut(value, "-"); ok {
		if _, err := netip.ParseAddr(strings.TrimSpace(start)); err == nil {
			if _, err := netip.ParseAddr(strings.TrimSpace(end)); err == nil {
				return TargetTypeRange
			}
		}
	}

	if _, err := netip.ParseAddr(value); err == nil {
		return TargetTypeSingle
	}

	return TargetTypeUnknown
}

// ExpandTarget expands a target into individual addresses. IPv4 CIDR blocks
// larger than /31 exclude their network and broadcast addresses; ranges are
// inclusive.
func ExpandTarget(value string) ([]string, error) {
	switch DetectTargetType(value) {
	case TargetTypeCIDR:
		return expandCIDR(strings.TrimSpace(value))
	case TargetTypeRange:
		return expandRange(value)
	case TargetTypeSingle:
		return []string{strings.TrimSpace(value)}, nil
	default:
		return nil, fmt.Errorf("invalid target format: %s", value)
	}
}

// ValidateTarget checks that a target parses and is not too large.
func ValidateTarget(value string) error {
	_, err := ExpandTarget(value)
	return err
}

func expandCIDR(cidr string) ([]string, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid CIDR notation: %w", err)
	}

	bits := prefix.Bits()
	maxBits := 32
	if prefix.Addr().Is6() {
		maxBits = 128
	}
	if maxBits-bits > 12 {
		return nil, fmt.Errorf("CIDR block too large (>%d hosts): %s", MaxTargetHosts, cidr)
	}

	// network and broadcast addresses are skipped for IPv4 below /31
	skipEdges := prefix.Addr().Is4() && bits < 31

	addr := prefix.Masked().Addr()
	if skipEdges {
		addr = addr.Next()
	}

	var ips []string
	for addr.IsValid() && prefix.Contains(addr) {
		ips = append(ips, addr.String())
		addr = addr.Next()
	}

	if skipEdges && len(ips) > 0 {
		ips = ips[:len(ips)-1]
	}
	return ips, nil
}

func expandRange(rangeStr string) ([]string, error) {
	start, end, _ := strings.Cut(rangeStr, "-")

	startIP, err := netip.ParseAddr(strings.TrimSpace(start))
	if err != nil {
		return nil, fmt.Errorf("invalid start IP in range: %w", err)
	}
	endIP, err := netip.ParseAddr(strings.TrimSpace(end))
	if err != nil {
		return nil, fmt.Errorf("invalid end IP in range: %w", err)
	}

	if startIP.Is4() != endIP.Is4() {
		return nil, fmt.Errorf("IP version mismatch: %s and %s", startIP, endIP)
	}
	if startIP.Compare(endIP) > 0 {
		return nil, fmt.Errorf("start IP must be <= end IP: %s > %s", startIP, endIP)
	}

	var ips []string
	for current := startIP; ; current = current.Next() {
		if !current.IsValid() {
			return nil, fmt.Errorf("IP overflow while expanding range: %s", rangeStr)
		}
		ips = append(ips, current.String())
		if len(ips) > MaxTargetHosts {
			return nil, fmt.Errorf("IP range too large (>%d hosts): %s", MaxTargetHosts, rangeStr)
		}
		if current == endIP {
			break
		}
	}
	return ips, nil
}
