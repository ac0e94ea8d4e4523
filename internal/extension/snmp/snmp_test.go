package snmp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/gosnmp/gosnmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/nmslite/hwmon/internal/connector"
	"github.com/nmslite/hwmon/internal/telemetry"
)

type fakeSession struct {
	values map[string]gosnmp.SnmpPDU
	next   map[string]gosnmp.SnmpPDU
	walk   []gosnmp.SnmpPDU
	err    error
	closed bool
}

func (f *fakeSession) Get(oids []string) (*gosnmp.SnmpPacket, error) {
	if f.err != nil {
		return nil, f.err
	}
	pdu, ok := f.values[oids[0]]
	if !ok {
		pdu = gosnmp.SnmpPDU{Name: "." + oids[0], Type: gosnmp.NoSuchObject}
	}
	return &gosnmp.SnmpPacket{Variables: []gosnmp.SnmpPDU{pdu}}, nil
}

func (f *fakeSession) GetNext(oids []string) (*gosnmp.SnmpPacket, error) {
	if f.err != nil {
		return nil, f.err
	}
	pdu, ok := f.next[oids[0]]
	if !ok {
		pdu = gosnmp.SnmpPDU{Name: ".1.3.6.1.9.9", Type: gosnmp.Integer, Value: 1}
	}
	return &gosnmp.SnmpPacket{Variables: []gosnmp.SnmpPDU{pdu}}, nil
}

func (f *fakeSession) Walk(string) ([]gosnmp.SnmpPDU, error) {
	return f.walk, f.err
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func newTestExtension(t *testing.T, sess *fakeSession) (*Extension, *telemetry.HostConfiguration) {
	t.Helper()
	e := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.dial = func(context.Context, string, *Config) (session, error) { return sess, nil }

	cfg, err := e.BuildConfiguration(yamlNode(t, "community: public"))
	require.NoError(t, err)

	host := telemetry.NewHostConfiguration("sw1", "10.0.0.2", telemetry.HostTypeNetwork)
	host.SetConfiguration(Name, cfg)
	return e, host
}

func yamlNode(t *testing.T, src string) *yaml.Node {
	t.Helper()
	var node yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(src), &node))
	return &node
}

func TestBuildConfiguration(t *testing.T) {
	e := New(slog.New(slog.NewTextHandler(io.Discard, nil)))

	cfg, err := e.BuildConfiguration(yamlNode(t, "community: public"))
	require.NoError(t, err)
	c := cfg.(*Config)
	assert.Equal(t, Version2c, c.Version)
	assert.Equal(t, 161, c.Port)
	assert.Equal(t, 5000, c.TimeoutMs)

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing community", "version: v2c", "community is required"},
		{"bad version", "version: v4\ncommunity: x", "version"},
		{"v3 without user", "version: v3", "username is required"},
		{"v3 auth without password", "version: v3\nusername: u\nsecurity_level: authNoPriv", "auth_password"},
		{"v3 priv without password", "version: v3\nusername: u\nsecurity_level: authPriv\nauth_password: a", "priv_password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.BuildConfiguration(yamlNode(t, tt.yaml))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestConfigApplyV3(t *testing.T) {
	c := &Config{Version: Version3, Username: "mon", SecurityLevel: "authPriv",
		AuthProtocol: "SHA256", AuthPassword: "a", PrivProtocol: "AES", PrivPassword: "p"}
	g := &gosnmp.GoSNMP{}
	c.apply(g)

	assert.Equal(t, gosnmp.Version3, g.Version)
	assert.Equal(t, gosnmp.AuthPriv, g.MsgFlags)
	usm, ok := g.SecurityParameters.(*gosnmp.UsmSecurityParameters)
	require.True(t, ok)
	assert.Equal(t, gosnmp.SHA256, usm.AuthenticationProtocol)
	assert.Equal(t, gosnmp.AES, usm.PrivacyProtocol)
}

func TestFetchGet(t *testing.T) {
	sess := &fakeSession{values: map[string]gosnmp.SnmpPDU{
		"1.3.6.1.4.1.674.1": {Name: ".1.3.6.1.4.1.674.1", Type: gosnmp.OctetString, Value: []byte("PowerEdge R740\x00")},
	}}
	e, host := newTestExtension(t, sess)

	got, err := e.Fetch(context.Background(), host, &connector.SNMPGetSource{OID: "1.3.6.1.4.1.674.1"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"PowerEdge R740"}}, got.Table)
	assert.True(t, sess.closed)

	got, err = e.Fetch(context.Background(), host, &connector.SNMPGetSource{OID: "1.3.6.1.4.1.674.2"})
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())
}

func TestFetchTable(t *testing.T) {
	root := "1.3.6.1.4.1.674.10892.5.4.700.20.1"
	sess := &fakeSession{walk: []gosnmp.SnmpPDU{
		{Name: "." + root + ".2.1.1", Type: gosnmp.Integer, Value: 3},
		{Name: "." + root + ".2.1.2", Type: gosnmp.Integer, Value: 4},
		{Name: "." + root + ".8.1.1", Type: gosnmp.OctetString, Value: []byte("CPU1 Temp")},
		{Name: "." + root + ".8.1.2", Type: gosnmp.OctetString, Value: []byte("CPU2 Temp")},
		{Name: "." + root + ".6.1.1", Type: gosnmp.Gauge32, Value: uint(410)},
	}}
	e, host := newTestExtension(t, sess)

	got, err := e.Fetch(context.Background(), host, &connector.SNMPTableSource{OID: root, SelectColumns: "ID,8,2,6"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"1.1", "CPU1 Temp", "3", "410"},
		{"1.2", "CPU2 Temp", "4", ""},
	}, got.Table)

	_, err = e.Fetch(context.Background(), host, &connector.SNMPTableSource{OID: root})
	assert.ErrorContains(t, err, "selectColumns is empty")
}

func TestFetchError(t *testing.T) {
	e, host := newTestExtension(t, &fakeSession{err: errors.New("request timeout")})
	_, err := e.Fetch(context.Background(), host, &connector.SNMPGetSource{OID: "1.3.6.1.2.1.1.1.0"})
	assert.ErrorContains(t, err, "request timeout")
}

func TestCriteria(t *testing.T) {
	sess := &fakeSession{
		values: map[string]gosnmp.SnmpPDU{
			"1.3.6.1.2.1.1.2.0": {Name: ".1.3.6.1.2.1.1.2.0", Type: gosnmp.ObjectIdentifier, Value: ".1.3.6.1.4.1.674.10892"},
		},
		next: map[string]gosnmp.SnmpPDU{
			"1.3.6.1.4.1.674.10892.5": {Name: ".1.3.6.1.4.1.674.10892.5.1.1.1.0", Type: gosnmp.OctetString, Value: []byte("iDRAC9")},
		},
	}
	e, host := newTestExtension(t, sess)
	ctx := context.Background()

	r, err := e.TestCriterion(ctx, host, &connector.SNMPGetCriterion{OID: "1.3.6.1.2.1.1.2.0", ExpectedResult: `^1\.3\.6\.1\.4\.1\.674`})
	require.NoError(t, err)
	assert.True(t, r.Success, r.Message)

	r, err = e.TestCriterion(ctx, host, &connector.SNMPGetCriterion{OID: "1.3.6.1.2.1.1.5.0"})
	require.NoError(t, err)
	assert.False(t, r.Success)

	r, err = e.TestCriterion(ctx, host, &connector.SNMPGetNextCriterion{OID: "1.3.6.1.4.1.674.10892.5", ExpectedResult: "idrac"})
	require.NoError(t, err)
	assert.True(t, r.Success, r.Message)
	assert.Equal(t, "iDRAC9", r.Result)

	r, err = e.TestCriterion(ctx, host, &connector.SNMPGetNextCriterion{OID: "1.3.6.1.4.1.232"})
	require.NoError(t, err)
	assert.False(t, r.Success)
	assert.Contains(t, r.Message, "nothing found")
}

func TestCheckHealth(t *testing.T) {
	e, host := newTestExtension(t, &fakeSession{})
	up, err := e.CheckHealth(context.Background(), host)
	require.NoError(t, err)
	assert.True(t, up)

	e, host = newTestExtension(t, &fakeSession{err: errors.New("timeout")})
	up, _ = e.CheckHealth(context.Background(), host)
	assert.False(t, up)
}

func TestFormatOctets(t *testing.T) {
	assert.Equal(t, "Fan 1", formatOctets([]byte("Fan 1")))
	assert.Equal(t, "00:1a:2b:3c:4d:5e", formatOctets([]byte{0x00, 0x1a, 0x2b, 0x3c, 0x4d, 0x5e}))
}
