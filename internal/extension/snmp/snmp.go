// Package snmp implements SNMP get, get-next and table sources and criteria
// with gosnmp.
package snmp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gosnmp/gosnmp"
	"gopkg.in/yaml.v3"

	"github.com/nmslite/hwmon/internal/connector"
	"github.com/nmslite/hwmon/internal/extension"
	"github.com/nmslite/hwmon/internal/table"
	"github.com/nmslite/hwmon/internal/telemetry"
	"github.com/nmslite/hwmon/internal/validation"
)

// Name is the extension name and host configuration key.
const Name = "snmp"

const oidSysDescr = "1.3.6.1.2.1.1.1.0"

// session is the subset of a gosnmp client the extension uses.
type session interface {
	Get(oids []string) (*gosnmp.SnmpPacket, error)
	GetNext(oids []string) (*gosnmp.SnmpPacket, error)
	Walk(rootOID string) ([]gosnmp.SnmpPDU, error)
	Close() error
}

type goSession struct {
	g *gosnmp.GoSNMP
}

func (s goSession) Get(oids []string) (*gosnmp.SnmpPacket, error)     { return s.g.Get(oids) }
func (s goSession) GetNext(oids []string) (*gosnmp.SnmpPacket, error) { return s.g.GetNext(oids) }
func (s goSession) Close() error                                      { return s.g.Conn.Close() }

func (s goSession) Walk(rootOID string) ([]gosnmp.SnmpPDU, error) {
	if s.g.Version == gosnmp.Version1 {
		return s.g.WalkAll(rootOID)
	}
	return s.g.BulkWalkAll(rootOID)
}

// Extension is the SNMP protocol extension.
type Extension struct {
	dial   func(ctx context.Context, hostname string, cfg *Config) (session, error)
	logger *slog.Logger
}

var _ extension.Extension = (*Extension)(nil)

// New creates the SNMP extension.
func New(logger *slog.Logger) *Extension {
	return &Extension{
		dial:   dial,
		logger: logger.With("component", "snmp"),
	}
}

func dial(ctx context.Context, hostname string, cfg *Config) (session, error) {
	g := &gosnmp.GoSNMP{
		Target:         hostname,
		Port:           uint16(cfg.Port),
		Timeout:        cfg.Timeout(),
		Retries:        cfg.Retries,
		Context:        ctx,
		MaxRepetitions: 20,
	}
	cfg.apply(g)

	if err := g.Connect(); err != nil {
		return nil, fmt.Errorf("SNMP connection failed: %w", err)
	}
	return goSession{g: g}, nil
}

func (e *Extension) Name() string { return Name }

func (e *Extension) SupportsSource(_ *telemetry.HostConfiguration, s connector.Source) bool {
	switch s.(type) {
	case *connector.SNMPGetSource, *connector.SNMPTableSource:
		return true
	}
	return false
}

func (e *Extension) SupportsCriterion(_ *telemetry.HostConfiguration, c connector.Criterion) bool {
	switch c.(type) {
	case *connector.SNMPGetCriterion, *connector.SNMPGetNextCriterion:
		return true
	}
	return false
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

func (e *Extension) open(ctx context.Context, host *telemetry.HostConfiguration) (session, error) {
	cfg, err := extension.Configuration[Config](host, Name)
	if err != nil {
		return nil, err
	}
	return e.dial(ctx, host.Hostname, cfg)
}

func (e *Extension) Fetch(ctx context.Context, host *telemetry.HostConfiguration, s connector.Source) (table.SourceTable, error) {
	sess, err := e.open(ctx, host)
	if err != nil {
		return table.Empty(), err
	}
	defer sess.Close()

	switch src := s.(type) {
	case *connector.SNMPGetSource:
		value, ok, err := get(sess, src.OID)
		if err != nil {
			return table.Empty(), err
		}
		if !ok {
			return table.Empty(), nil
		}
		return table.FromRows([][]string{{value}}), nil

	case *connector.SNMPTableSource:
		pdus, err := sess.Walk(src.OID)
		if err != nil {
			return table.Empty(), fmt.Errorf("SNMP walk of %s failed: %w", src.OID, err)
		}
		rows, err := buildTable(src.OID, src.SelectColumns, pdus)
		if err != nil {
			return table.Empty(), err
		}
		return table.FromRows(rows), nil
	}
	return table.Empty(), fmt.Errorf("%w: %s", extension.ErrUnsupportedSource, s.Type())
}

func (e *Extension) TestCriterion(ctx context.Context, host *telemetry.HostConfiguration, c connector.Criterion) (connector.CriterionResult, error) {
	sess, err := e.open(ctx, host)
	if err != nil {
		return connector.CriterionResult{}, err
	}
	defer sess.Close()

	switch crit := c.(type) {
	case *connector.SNMPGetCriterion:
		value, ok, err := get(sess, crit.OID)
		if err != nil {
			return connector.CriterionResult{Message: err.Error()}, nil
		}
		if !ok {
			return connector.CriterionResult{Message: fmt.Sprintf("no value for OID %s", crit.OID)}, nil
		}
		return extension.ExpectedResult(crit.ExpectedResult, value, ""), nil

	case *connector.SNMPGetNextCriterion:
		pkt, err := sess.GetNext([]string{crit.OID})
		if err != nil {
			return connector.CriterionResult{Message: fmt.Sprintf("SNMP GetNext failed: %v", err)}, nil
		}
		if len(pkt.Variables) == 0 || !underOID(pkt.Variables[0].Name, crit.OID) {
			return connector.CriterionResult{Message: fmt.Sprintf("nothing found under OID %s", crit.OID)}, nil
		}
		value, _ := formatValue(pkt.Variables[0])
		return extension.ExpectedResult(crit.ExpectedResult, value, ""), nil
	}
	return connector.CriterionResult{}, fmt.Errorf("snmp: unsupported criterion %s", c.Type())
}

// CheckHealth reads sysDescr, the same probe used to validate credentials.
func (e *Extension) CheckHealth(ctx context.Context, host *telemetry.HostConfiguration) (bool, error) {
	sess, err := e.open(ctx, host)
	if err != nil {
		return false, err
	}
	defer sess.Close()

	if _, err := sess.Get([]string{oidSysDescr}); err != nil {
		return false, err
	}
	return true, nil
}

// get reads one OID. ok is false when the agent has no such object.
func get(sess session, oid string) (string, bool, error) {
	pkt, err := sess.Get([]string{oid})
	if err != nil {
		return "", false, fmt.Errorf("SNMP Get of %s failed: %w", oid, err)
	}
	if len(pkt.Variables) == 0 {
		return "", false, nil
	}
	value, ok := formatValue(pkt.Variables[0])
	return value, ok, nil
}

// buildTable turns the PDUs of a table walk into rows. selectColumns lists
// entry column numbers; "ID" selects the row index.
func buildTable(rootOID, selectColumns string, pdus []gosnmp.SnmpPDU) ([][]string, error) {
	columns := splitColumns(selectColumns)
	if len(columns) == 0 {
		return nil, fmt.Errorf("SNMP table %s: selectColumns is empty", rootOID)
	}

	prefix := trimDot(rootOID) + "."
	var order []string
	cells := make(map[string]map[string]string)

	for _, pdu := range pdus {
		name := trimDot(pdu.Name)
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		column, index, ok := strings.Cut(strings.TrimPrefix(name, prefix), ".")
		if !ok {
			continue
		}
		row, seen := cells[index]
		if !seen {
			row = make(map[string]string)
			cells[index] = row
			order = append(order, index)
		}
		value, _ := formatValue(pdu)
		row[column] = value
	}

	rows := make([][]string, 0, len(order))
	for _, index := range order {
		row := make([]string, len(columns))
		for i, col := range columns {
			if strings.EqualFold(col, "ID") {
				row[i] = index
			} else {
				row[i] = cells[index][col]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func splitColumns(list string) []string {
	var out []string
	for _, c := range strings.Split(list, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func trimDot(oid string) string {
	return strings.TrimPrefix(strings.TrimSpace(oid), ".")
}

func underOID(name, root string) bool {
	return strings.HasPrefix(trimDot(name), trimDot(root)+".")
}

// formatValue renders a PDU value as text. ok is false for the
// no-such-object family of exceptions.
func formatValue(pdu gosnmp.SnmpPDU) (string, bool) {
	switch pdu.Type {
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView, gosnmp.Null:
		return "", false
	case gosnmp.OctetString:
		b, ok := pdu.Value.([]byte)
		if !ok {
			return fmt.Sprint(pdu.Value), true
		}
		return formatOctets(b), true
	case gosnmp.ObjectIdentifier:
		return trimDot(fmt.Sprint(pdu.Value)), true
	case gosnmp.IPAddress:
		return fmt.Sprint(pdu.Value), true
	case gosnmp.Integer, gosnmp.Counter32, gosnmp.Counter64, gosnmp.Gauge32, gosnmp.TimeTicks, gosnmp.Uinteger32:
		return gosnmp.ToBigInt(pdu.Value).String(), true
	}
	return fmt.Sprint(pdu.Value), true
}

// formatOctets returns printable strings as is and binary values as
// colon-separated hex.
func formatOctets(b []byte) string {
	s := strings.TrimRight(string(b), "\x00")
	if utf8.ValidString(s) && strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsPrint(r) && !unicode.IsSpace(r)
	}) < 0 {
		return s
	}

	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = fmt.Sprintf("%02x", c)
	}
	return strings.Join(parts, ":")
}
