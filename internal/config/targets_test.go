package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectTargetType(t *testing.T) {
	tests := []struct {
		input    string
		expected TargetType
	}{
		{"192.168.1.0/24", TargetTypeCIDR},
		{"10.0.0.0/8", TargetTypeCIDR},
		{"2001:db8::/64", TargetTypeCIDR},
		{"192.168.1.1-192.168.1.50", TargetTypeRange},
		{" 10.0.0.1 - 10.0.0.9 ", TargetTypeRange},
		{"192.168.1.100", TargetTypeSingle},
		{"2001:db8::1", TargetTypeSingle},
		{"server.example.com", TargetTypeUnknown},
		{"192.168.1.0/33", TargetTypeUnknown},
		{"", TargetTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectTargetType(tt.input))
		})
	}
}

func TestExpandTarget_CIDR(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantCount int
		wantErr   bool
	}{
		{"CIDR /30", "192.168.1.0/30", 2, false},
		{"CIDR /29", "192.168.1.0/29", 6, false},
		{"CIDR /24", "192.168.1.0/24", 254, false},
		{"CIDR /31", "192.168.1.0/31", 2, false},
		{"CIDR /32", "192.168.1.100/32", 1, false},
		{"CIDR /20", "10.0.0.0/20", 4094, false},
		{"CIDR /19 too large", "10.0.0.0/19", 0, true},
		{"IPv6 /126", "2001:db8::/126", 4, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ips, err := ExpandTarget(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, ips, tt.wantCount)
		})
	}
}

func TestExpandTarget_CIDR_Details(t *testing.T) {
	ips, err := ExpandTarget("192.168.1.0/30")
	require.NoError(t, err)
	assert.Equal(t, []string{"192.168.1.1", "192.168.1.2"}, ips)

	ips, err = ExpandTarget("192.168.1.7/30")
	require.NoError(t, err)
	assert.Equal(t, []string{"192.168.1.5", "192.168.1.6"}, ips, "host bits are masked")
}

func TestExpandTarget_Range(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantCount int
		wantErr   bool
	}{
		{"Range 10 IPs", "192.168.1.1-192.168.1.10", 10, false},
		{"Range 1 IP", "192.168.1.100-192.168.1.100", 1, false},
		{"Range cross subnet", "192.168.1.250-192.168.2.5", 12, false},
		{"Range at limit", "10.0.0.0-10.0.15.255", 4096, false},
		{"Range too large", "10.0.0.0-10.0.16.0", 0, true},
		{"Range inverted", "192.168.1.10-192.168.1.1", 0, true},
		{"Range mixed versions", "192.168.1.1-2001:db8::1", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ips, err := ExpandTarget(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, ips, tt.wantCount)
		})
	}
}

func TestExpandTarget_Range_Details(t *testing.T) {
	ips, err := ExpandTarget("192.168.1.254-192.168.2.1")
	require.NoError(t, err)
	assert.Equal(t, []string{"192.168.1.254", "192.168.1.255", "192.168.2.0", "192.168.2.1"}, ips)
}

func TestExpandTarget_Single(t *testing.T) {
	ips, err := ExpandTarget(" 192.168.1.100 ")
	require.NoError(t, err)
	assert.Equal(t, []string{"192.168.1.100"}, ips)
}

func TestValidateTarget(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"Valid IP", "192.168.1.100", false},
		{"Valid CIDR", "192.168.1.0/24", false},
		{"Valid range", "192.168.1.1-192.168.1.10", false},
		{"Invalid IP", "999.999.999.999", true},
		{"Invalid range", "192.168.1.1-invalid", true},
		{"Hostname", "example.com", true},
		{"Empty", "", true},
		{"CIDR too large", "10.0.0.0/8", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTarget(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
