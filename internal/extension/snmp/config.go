package snmp

import (
	"errors"
	"time"

	"github.com/gosnmp/gosnmp"
)

// SNMP versions.
const (
	Version1  = "v1"
	Version2c = "v2c"
	Version3  = "v3"
)

// Config is the snmp section of a host.
type Config struct {
	Version   string `yaml:"version" validate:"omitempty,oneof=v1 v2c v3"`
	Community string `yaml:"community"`
	Port      int    `yaml:"port" validate:"omitempty,min=1,max=65535"`
	TimeoutMs int    `yaml:"timeout_ms" validate:"omitempty,min=1"`
	Retries   int    `yaml:"retries" validate:"omitempty,min=0,max=10"`

	// v3 (USM)
	Username      string `yaml:"username"`
	SecurityLevel string `yaml:"security_level" validate:"omitempty,oneof=noAuthNoPriv authNoPriv authPriv"`
	AuthProtocol  string `yaml:"auth_protocol" validate:"omitempty,oneof=MD5 SHA SHA224 SHA256 SHA384 SHA512"`
	AuthPassword  string `yaml:"auth_password"`
	PrivProtocol  string `yaml:"priv_protocol" validate:"omitempty,oneof=DES AES AES192 AES256"`
	PrivPassword  string `yaml:"priv_password"`
	ContextName   string `yaml:"context_name"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Version == "" {
		c.Version = Version2c
	}
	if c.Port == 0 {
		c.Port = 161
	}
	if c.TimeoutMs == 0 {
		c.TimeoutMs = 5000
	}
	if c.Version == Version3 && c.SecurityLevel == "" {
		c.SecurityLevel = "noAuthNoPriv"
	}
}

// Validate checks the fields required by the selected version.
func (c *Config) Validate() error {
	switch c.Version {
	case Version3:
		if c.Username == "" {
			return errors.New("username is required for SNMP v3")
		}
		if c.SecurityLevel != "noAuthNoPriv" && c.AuthPassword == "" {
			return errors.New("auth_password is required for authenticated SNMP v3")
		}
		if c.SecurityLevel == "authPriv" && c.PrivPassword == "" {
			return errors.New("priv_password is required for SNMP v3 authPriv")
		}
	default:
		if c.Community == "" {
			return errors.New("community is required for SNMP v1/v2c")
		}
	}
	return nil
}

// Timeout returns the per-request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// apply copies the version and security settings onto a gosnmp client.
func (c *Config) apply(g *gosnmp.GoSNMP) {
	switch c.Version {
	case Version1:
		g.Version = gosnmp.Version1
		g.Community = c.Community
		return
	case Version2c:
		g.Version = gosnmp.Version2c
		g.Community = c.Community
		return
	}

	g.Version = gosnmp.Version3
	g.SecurityModel = gosnmp.UserSecurityModel
	g.ContextName = c.ContextName

	usm := &gosnmp.UsmSecurityParameters{UserName: c.Username}
	switch c.SecurityLevel {
	case "authNoPriv":
		g.MsgFlags = gosnmp.AuthNoPriv
		usm.AuthenticationProtocol = authProtocol(c.AuthProtocol)
		usm.AuthenticationPassphrase = c.AuthPassword
	case "authPriv":
		g.MsgFlags = gosnmp.AuthPriv
		usm.AuthenticationProtocol = authProtocol(c.AuthProtocol)
		usm.AuthenticationPassphrase = c.AuthPassword
		usm.PrivacyProtocol = privProtocol(c.PrivProtocol)
		usm.PrivacyPassphrase = c.PrivPassword
	default:
		g.MsgFlags = gosnmp.NoAuthNoPriv
	}
	g.SecurityParameters = usm
}

func authProtocol(name string) gosnmp.SnmpV3AuthProtocol {
	switch name {
	case "SHA":
		return gosnmp.SHA
	case "SHA224":
		return gosnmp.SHA224
	case "SHA256":
		return gosnmp.SHA256
	case "SHA384":
		return gosnmp.SHA384
	case "SHA512":
		return gosnmp.SHA512
	default:
		return gosnmp.MD5
	}
}

func privProtocol(name string) gosnmp.SnmpV3PrivProtocol {
	switch name {
	case "AES":
		return gosnmp.AES
	case "AES192":
		return gosnmp.AES192
	case "AES256":
		return gosnmp.AES256
	default:
		return gosnmp.DES
	}
}
