package connector

import (
	"time"

	"github.com/nmslite/hwmon/internal/table"
)

// Source is a fetch directive plus its compute chain. Protocol variants are
// fetched by an extension; internal variants (static, copy, join, union) are
// resolved from tables already produced in the same job.
type Source interface {
	Type() string
	// Base exposes the fields every variant shares.
	Base() *SourceBase
	Copy() Source
	Update(rewrite func(string) string)
	Accept(v SourceVisitor) (table.SourceTable, error)
}

// SourceVisitor has one method per Source variant.
type SourceVisitor interface {
	VisitHTTP(s *HTTPSource) (table.SourceTable, error)
	VisitSNMPGet(s *SNMPGetSource) (table.SourceTable, error)
	VisitSNMPTable(s *SNMPTableSource) (table.SourceTable, error)
	VisitWMI(s *WMISource) (table.SourceTable, error)
	VisitWBEM(s *WBEMSource) (table.SourceTable, error)
	VisitOSCommand(s *OSCommandSource) (table.SourceTable, error)
	VisitCommandLine(s *CommandLineSource) (table.SourceTable, error)
	VisitIPMI(s *IPMISource) (table.SourceTable, error)
	VisitStatic(s *StaticSource) (table.SourceTable, error)
	VisitCopy(s *CopySource) (table.SourceTable, error)
	VisitTableJoin(s *TableJoinSource) (table.SourceTable, error)
	VisitTableUnion(s *TableUnionSource) (table.SourceTable, error)
}

// LineFiltered is implemented by the text-producing variants that accept the
// generic post-fetch line filters.
type LineFiltered interface {
	Filters() table.LineFilter
}

// TimeoutBound is implemented by variants carrying their own fetch timeout.
type TimeoutBound interface {
	FetchTimeout() time.Duration
}

// SourceBase holds the fields shared by every Source variant.
type SourceBase struct {
	Key                string   `yaml:"key" json:"key"`
	Index              int      `yaml:"-" json:"index"`
	Computes           Computes `yaml:"computes" json:"-"`
	ForceSerialization bool     `yaml:"forceSerialization" json:"force_serialization,omitempty"`
}

func (b *SourceBase) Base() *SourceBase { return b }

func (b SourceBase) copyBase() SourceBase {
	b.Computes = CopyComputes(b.Computes)
	return b
}

func (b *SourceBase) updateBase(rewrite func(string) string) {
	UpdateComputes(b.Computes, rewrite)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// HTTP result content selectors.
const (
	ResultContentBody       = "body"
	ResultContentHeader     = "header"
	ResultContentHTTPStatus = "httpStatus"
	ResultContentAll        = "all"
)

// HTTPSource issues an HTTP request against the host.
type HTTPSource struct {
	SourceBase       `yaml:",inline"`
	table.LineFilter `yaml:",inline"`
	Method           string            `yaml:"method" json:"method"`
	Path             string            `yaml:"path" json:"path"`
	Header           map[string]string `yaml:"header" json:"header,omitempty"`
	Body             string            `yaml:"body" json:"body,omitempty"`
	ResultContent    string            `yaml:"resultContent" json:"result_content,omitempty"`
	TimeoutSeconds   int               `yaml:"timeout" json:"timeout,omitempty"`
}

func (s *HTTPSource) Type() string                { return "http" }
func (s *HTTPSource) Filters() table.LineFilter   { return s.LineFilter }
func (s *HTTPSource) FetchTimeout() time.Duration { return seconds(s.TimeoutSeconds) }
func (s *HTTPSource) Accept(v SourceVisitor) (table.SourceTable, error) {
	return v.VisitHTTP(s)
}
func (s *HTTPSource) Copy() Source {
	cp := *s
	cp.SourceBase = s.copyBase()
	cp.Header = copyStringMap(s.Header)
	return &cp
}
func (s *HTTPSource) Update(rewrite func(string) string) {
	s.updateBase(rewrite)
	s.Path = rewrite(s.Path)
	s.Body = rewrite(s.Body)
	s.LineFilter = updateFilter(s.LineFilter, rewrite)
	for k, v := range s.Header {
		s.Header[k] = rewrite(v)
	}
}

// SNMPGetSource reads a single OID.
type SNMPGetSource struct {
	SourceBase `yaml:",inline"`
	OID        string `yaml:"oid" json:"oid"`
}

func (s *SNMPGetSource) Type() string { return "snmpGet" }
func (s *SNMPGetSource) Accept(v SourceVisitor) (table.SourceTable, error) {
	return v.VisitSNMPGet(s)
}
func (s *SNMPGetSource) Copy() Source {
	cp := *s
	cp.SourceBase = s.copyBase()
	return &cp
}
func (s *SNMPGetSource) Update(rewrite func(string) string) {
	s.updateBase(rewrite)
	s.OID = rewrite(s.OID)
}

// SNMPTableSource walks an SNMP table. SelectColumns lists column numbers of
// the table entry; "ID" selects the row index.
type SNMPTableSource struct {
	SourceBase    `yaml:",inline"`
	OID           string `yaml:"oid" json:"oid"`
	SelectColumns string `yaml:"selectColumns" json:"select_columns"`
}

func (s *SNMPTableSource) Type() string { return "snmpTable" }
func (s *SNMPTableSource) Accept(v SourceVisitor) (table.SourceTable, error) {
	return v.VisitSNMPTable(s)
}
func (s *SNMPTableSource) Copy() Source {
	cp := *s
	cp.SourceBase = s.copyBase()
	return &cp
}
func (s *SNMPTableSource) Update(rewrite func(string) string) {
	s.updateBase(rewrite)
	s.OID = rewrite(s.OID)
	s.SelectColumns = rewrite(s.SelectColumns)
}

// WMISource runs a WQL query through WMI.
type WMISource struct {
	SourceBase `yaml:",inline"`
	Query      string `yaml:"query" json:"query"`
	Namespace  string `yaml:"namespace" json:"namespace,omitempty"`
}

func (s *WMISource) Type() string { return "wmi" }
func (s *WMISource) Accept(v SourceVisitor) (table.SourceTable, error) {
	return v.VisitWMI(s)
}
func (s *WMISource) Copy() Source {
	cp := *s
	cp.SourceBase = s.copyBase()
	return &cp
}
func (s *WMISource) Update(rewrite func(string) string) {
	s.updateBase(rewrite)
	s.Query = rewrite(s.Query)
	s.Namespace = rewrite(s.Namespace)
}

// WBEMSource runs a CIM query.
type WBEMSource struct {
	SourceBase `yaml:",inline"`
	Query      string `yaml:"query" json:"query"`
	Namespace  string `yaml:"namespace" json:"namespace,omitempty"`
}

func (s *WBEMSource) Type() string { return "wbem" }
func (s *WBEMSource) Accept(v SourceVisitor) (table.SourceTable, error) {
	return v.VisitWBEM(s)
}
func (s *WBEMSource) Copy() Source {
	cp := *s
	cp.SourceBase = s.copyBase()
	return &cp
}
func (s *WBEMSource) Update(rewrite func(string) string) {
	s.updateBase(rewrite)
	s.Query = rewrite(s.Query)
	s.Namespace = rewrite(s.Namespace)
}

// OSCommandSource runs a command on the agent's own machine.
type OSCommandSource struct {
	SourceBase       `yaml:",inline"`
	table.LineFilter `yaml:",inline"`
	CommandLine      string `yaml:"commandLine" json:"command_line"`
	TimeoutSeconds   int    `yaml:"timeout" json:"timeout,omitempty"`
}

func (s *OSCommandSource) Type() string                { return "osCommand" }
func (s *OSCommandSource) Filters() table.LineFilter   { return s.LineFilter }
func (s *OSCommandSource) FetchTimeout() time.Duration { return seconds(s.TimeoutSeconds) }
func (s *OSCommandSource) Accept(v SourceVisitor) (table.SourceTable, error) {
	return v.VisitOSCommand(s)
}
func (s *OSCommandSource) Copy() Source {
	cp := *s
	cp.SourceBase = s.copyBase()
	return &cp
}
func (s *OSCommandSource) Update(rewrite func(string) string) {
	s.updateBase(rewrite)
	s.CommandLine = rewrite(s.CommandLine)
	s.LineFilter = updateFilter(s.LineFilter, rewrite)
}

// CommandLineSource runs a command on the monitored host through whichever
// remote command transport the host is configured for.
type CommandLineSource struct {
	SourceBase       `yaml:",inline"`
	table.LineFilter `yaml:",inline"`
	CommandLine      string `yaml:"commandLine" json:"command_line"`
	TimeoutSeconds   int    `yaml:"timeout" json:"timeout,omitempty"`
}

func (s *CommandLineSource) Type() string                { return "commandLine" }
func (s *CommandLineSource) Filters() table.LineFilter   { return s.LineFilter }
func (s *CommandLineSource) FetchTimeout() time.Duration { return seconds(s.TimeoutSeconds) }
func (s *CommandLineSource) Accept(v SourceVisitor) (table.SourceTable, error) {
	return v.VisitCommandLine(s)
}
func (s *CommandLineSource) Copy() Source {
	cp := *s
	cp.SourceBase = s.copyBase()
	return &cp
}
func (s *CommandLineSource) Update(rewrite func(string) string) {
	s.updateBase(rewrite)
	s.CommandLine = rewrite(s.CommandLine)
	s.LineFilter = updateFilter(s.LineFilter, rewrite)
}

// IPMISource reads the sensor and FRU inventory of a baseboard controller.
type IPMISource struct {
	SourceBase `yaml:",inline"`
}

func (s *IPMISource) Type() string { return "ipmi" }
func (s *IPMISource) Accept(v SourceVisitor) (table.SourceTable, error) {
	return v.VisitIPMI(s)
}
func (s *IPMISource) Copy() Source {
	cp := *s
	cp.SourceBase = s.copyBase()
	return &cp
}
func (s *IPMISource) Update(rewrite func(string) string) { s.updateBase(rewrite) }

// StaticSource yields a literal table (";" columns, newline rows).
type StaticSource struct {
	SourceBase `yaml:",inline"`
	Value      string `yaml:"value" json:"value"`
}

func (s *StaticSource) Type() string { return "static" }
func (s *StaticSource) Accept(v SourceVisitor) (table.SourceTable, error) {
	return v.VisitStatic(s)
}
func (s *StaticSource) Copy() Source {
	cp := *s
	cp.SourceBase = s.copyBase()
	return &cp
}
func (s *StaticSource) Update(rewrite func(string) string) {
	s.updateBase(rewrite)
	s.Value = rewrite(s.Value)
}

// CopySource duplicates the table of another source of the same job.
type CopySource struct {
	SourceBase `yaml:",inline"`
	From       string `yaml:"from" json:"from"`
}

func (s *CopySource) Type() string { return "copy" }
func (s *CopySource) Accept(v SourceVisitor) (table.SourceTable, error) {
	return v.VisitCopy(s)
}
func (s *CopySource) Copy() Source {
	cp := *s
	cp.SourceBase = s.copyBase()
	return &cp
}
func (s *CopySource) Update(rewrite func(string) string) {
	s.updateBase(rewrite)
	s.From = rewrite(s.From)
}

// Join key types.
const (
	KeyTypeGeneric = ""
	KeyTypeWbem    = "wbem"
	KeyTypeWmi     = "wmi"
	KeyTypeSnmp    = "snmp"
)

// TableJoinSource joins two tables on a key column pair.
type TableJoinSource struct {
	SourceBase       `yaml:",inline"`
	LeftTable        string `yaml:"leftTable" json:"left_table"`
	RightTable       string `yaml:"rightTable" json:"right_table"`
	LeftKeyColumn    int    `yaml:"leftKeyColumn" json:"left_key_column"`
	RightKeyColumn   int    `yaml:"rightKeyColumn" json:"right_key_column"`
	DefaultRightLine string `yaml:"defaultRightLine" json:"default_right_line,omitempty"`
	KeyType          string `yaml:"keyType" json:"key_type,omitempty"`
}

func (s *TableJoinSource) Type() string { return "tableJoin" }
func (s *TableJoinSource) Accept(v SourceVisitor) (table.SourceTable, error) {
	return v.VisitTableJoin(s)
}
func (s *TableJoinSource) Copy() Source {
	cp := *s
	cp.SourceBase = s.copyBase()
	return &cp
}
func (s *TableJoinSource) Update(rewrite func(string) string) {
	s.updateBase(rewrite)
	s.LeftTable = rewrite(s.LeftTable)
	s.RightTable = rewrite(s.RightTable)
	s.DefaultRightLine = rewrite(s.DefaultRightLine)
}

// TableUnionSource concatenates several tables.
type TableUnionSource struct {
	SourceBase `yaml:",inline"`
	Tables     []string `yaml:"tables" json:"tables"`
}

func (s *TableUnionSource) Type() string { return "tableUnion" }
func (s *TableUnionSource) Accept(v SourceVisitor) (table.SourceTable, error) {
	return v.VisitTableUnion(s)
}
func (s *TableUnionSource) Copy() Source {
	cp := *s
	cp.SourceBase = s.copyBase()
	cp.Tables = append([]string(nil), s.Tables...)
	return &cp
}
func (s *TableUnionSource) Update(rewrite func(string) string) {
	s.updateBase(rewrite)
	for i, t := range s.Tables {
		s.Tables[i] = rewrite(t)
	}
}

func updateFilter(f table.LineFilter, rewrite func(string) string) table.LineFilter {
	f.ExcludeRegExp = rewrite(f.ExcludeRegExp)
	f.KeepOnlyRegExp = rewrite(f.KeepOnlyRegExp)
	f.Separators = rewrite(f.Separators)
	f.SelectColumns = rewrite(f.SelectColumns)
	return f
}

func copyStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// CopySources deep-copies a source list.
func CopySources(in []Source) []Source {
	if in == nil {
		return nil
	}
	out := make([]Source, len(in))
	for i, s := range in {
		if s != nil {
			out[i] = s.Copy()
		}
	}
	return out
}
