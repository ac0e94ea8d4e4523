package connector

import (
	"time"
)

// CriterionResult is the outcome of one detection test. A failing criterion
// is a normal negative result, not an error.
type CriterionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	// Result is the raw value the probe returned, kept for diagnostics.
	Result string `json:"result,omitempty"`
}

// Criterion is one detection test of a connector.
type Criterion interface {
	Type() string
	// ForceSerialization reports whether the test must never run
	// concurrently with another criterion against the same host.
	ForceSerialization() bool
	Copy() Criterion
	Update(rewrite func(string) string)
	Accept(v CriterionVisitor) (CriterionResult, error)
}

// CriterionVisitor has one method per Criterion variant.
type CriterionVisitor interface {
	VisitSNMPGet(c *SNMPGetCriterion) (CriterionResult, error)
	VisitSNMPGetNext(c *SNMPGetNextCriterion) (CriterionResult, error)
	VisitWMI(c *WMICriterion) (CriterionResult, error)
	VisitWBEM(c *WBEMCriterion) (CriterionResult, error)
	VisitCommandLine(c *CommandLineCriterion) (CriterionResult, error)
	VisitOSCommand(c *OSCommandCriterion) (CriterionResult, error)
	VisitProcess(c *ProcessCriterion) (CriterionResult, error)
	VisitIPMI(c *IPMICriterion) (CriterionResult, error)
	VisitHTTP(c *HTTPCriterion) (CriterionResult, error)
	VisitDeviceType(c *DeviceTypeCriterion) (CriterionResult, error)
	VisitProductRequirements(c *ProductRequirementsCriterion) (CriterionResult, error)
}

// CriterionBase holds the fields shared by every Criterion variant.
type CriterionBase struct {
	Serialized bool `yaml:"forceSerialization" json:"force_serialization,omitempty"`
}

func (b CriterionBase) ForceSerialization() bool { return b.Serialized }

// SNMPGetCriterion reads an OID; the value must match ExpectedResult when set,
// and must exist otherwise.
type SNMPGetCriterion struct {
	CriterionBase  `yaml:",inline"`
	OID            string `yaml:"oid" json:"oid"`
	ExpectedResult string `yaml:"expectedResult" json:"expected_result,omitempty"`
}

func (c *SNMPGetCriterion) Type() string    { return "snmpGet" }
func (c *SNMPGetCriterion) Copy() Criterion { cp := *c; return &cp }
func (c *SNMPGetCriterion) Update(rewrite func(string) string) {
	c.OID = rewrite(c.OID)
	c.ExpectedResult = rewrite(c.ExpectedResult)
}
func (c *SNMPGetCriterion) Accept(v CriterionVisitor) (CriterionResult, error) {
	return v.VisitSNMPGet(c)
}

// SNMPGetNextCriterion succeeds when the OID following OID lives under OID.
type SNMPGetNextCriterion struct {
	CriterionBase  `yaml:",inline"`
	OID            string `yaml:"oid" json:"oid"`
	ExpectedResult string `yaml:"expectedResult" json:"expected_result,omitempty"`
}

func (c *SNMPGetNextCriterion) Type() string    { return "snmpGetNext" }
func (c *SNMPGetNextCriterion) Copy() Criterion { cp := *c; return &cp }
func (c *SNMPGetNextCriterion) Update(rewrite func(string) string) {
	c.OID = rewrite(c.OID)
	c.ExpectedResult = rewrite(c.ExpectedResult)
}
func (c *SNMPGetNextCriterion) Accept(v CriterionVisitor) (CriterionResult, error) {
	return v.VisitSNMPGetNext(c)
}

// WMICriterion runs a WQL query that must return rows.
type WMICriterion struct {
	CriterionBase  `yaml:",inline"`
	Query          string `yaml:"query" json:"query"`
	Namespace      string `yaml:"namespace" json:"namespace,omitempty"`
	ExpectedResult string `yaml:"expectedResult" json:"expected_result,omitempty"`
}

func (c *WMICriterion) Type() string    { return "wmi" }
func (c *WMICriterion) Copy() Criterion { cp := *c; return &cp }
func (c *WMICriterion) Update(rewrite func(string) string) {
	c.Query = rewrite(c.Query)
	c.Namespace = rewrite(c.Namespace)
	c.ExpectedResult = rewrite(c.ExpectedResult)
}
func (c *WMICriterion) Accept(v CriterionVisitor) (CriterionResult, error) {
	return v.VisitWMI(c)
}

// WBEMCriterion runs a CIM query that must return rows.
type WBEMCriterion struct {
	CriterionBase  `yaml:",inline"`
	Query          string `yaml:"query" json:"query"`
	Namespace      string `yaml:"namespace" json:"namespace,omitempty"`
	ExpectedResult string `yaml:"expectedResult" json:"expected_result,omitempty"`
}

func (c *WBEMCriterion) Type() string    { return "wbem" }
func (c *WBEMCriterion) Copy() Criterion { cp := *c; return &cp }
func (c *WBEMCriterion) Update(rewrite func(string) string) {
	c.Query = rewrite(c.Query)
	c.Namespace = rewrite(c.Namespace)
	c.ExpectedResult = rewrite(c.ExpectedResult)
}
func (c *WBEMCriterion) Accept(v CriterionVisitor) (CriterionResult, error) {
	return v.VisitWBEM(c)
}

// CommandLineCriterion runs a command on the monitored host and matches its
// output against ExpectedResult.
type CommandLineCriterion struct {
	CriterionBase  `yaml:",inline"`
	CommandLine    string `yaml:"commandLine" json:"command_line"`
	ExpectedResult string `yaml:"expectedResult" json:"expected_result,omitempty"`
	ErrorMessage   string `yaml:"errorMessage" json:"error_message,omitempty"`
	TimeoutSeconds int    `yaml:"timeout" json:"timeout,omitempty"`
}

func (c *CommandLineCriterion) Type() string                { return "commandLine" }
func (c *CommandLineCriterion) Copy() Criterion             { cp := *c; return &cp }
func (c *CommandLineCriterion) FetchTimeout() time.Duration { return seconds(c.TimeoutSeconds) }
func (c *CommandLineCriterion) Update(rewrite func(string) string) {
	c.CommandLine = rewrite(c.CommandLine)
	c.ExpectedResult = rewrite(c.ExpectedResult)
}
func (c *CommandLineCriterion) Accept(v CriterionVisitor) (CriterionResult, error) {
	return v.VisitCommandLine(c)
}

// OSCommandCriterion runs a command on the agent's own machine.
type OSCommandCriterion struct {
	CriterionBase  `yaml:",inline"`
	CommandLine    string `yaml:"commandLine" json:"command_line"`
	ExpectedResult string `yaml:"expectedResult" json:"expected_result,omitempty"`
	ErrorMessage   string `yaml:"errorMessage" json:"error_message,omitempty"`
	TimeoutSeconds int    `yaml:"timeout" json:"timeout,omitempty"`
}

func (c *OSCommandCriterion) Type() string                { return "osCommand" }
func (c *OSCommandCriterion) Copy() Criterion             { cp := *c; return &cp }
func (c *OSCommandCriterion) FetchTimeout() time.Duration { return seconds(c.TimeoutSeconds) }
func (c *OSCommandCriterion) Update(rewrite func(string) string) {
	c.CommandLine = rewrite(c.CommandLine)
	c.ExpectedResult = rewrite(c.ExpectedResult)
}
func (c *OSCommandCriterion) Accept(v CriterionVisitor) (CriterionResult, error) {
	return v.VisitOSCommand(c)
}

// ProcessCriterion succeeds when a process whose command line matches
// CommandLine runs on the host.
type ProcessCriterion struct {
	CriterionBase `yaml:",inline"`
	CommandLine   string `yaml:"commandLine" json:"command_line"`
}

func (c *ProcessCriterion) Type() string                       { return "process" }
func (c *ProcessCriterion) Copy() Criterion                    { cp := *c; return &cp }
func (c *ProcessCriterion) Update(rewrite func(string) string) { c.CommandLine = rewrite(c.CommandLine) }
func (c *ProcessCriterion) Accept(v CriterionVisitor) (CriterionResult, error) {
	return v.VisitProcess(c)
}

// IPMICriterion succeeds when the host answers IPMI requests.
type IPMICriterion struct {
	CriterionBase `yaml:",inline"`
}

func (c *IPMICriterion) Type() string                { return "ipmi" }
func (c *IPMICriterion) Copy() Criterion             { cp := *c; return &cp }
func (c *IPMICriterion) Update(func(string) string) {}
func (c *IPMICriterion) Accept(v CriterionVisitor) (CriterionResult, error) {
	return v.VisitIPMI(c)
}

// HTTPCriterion issues a request whose response must match ExpectedResult.
type HTTPCriterion struct {
	CriterionBase  `yaml:",inline"`
	Method         string            `yaml:"method" json:"method"`
	Path           string            `yaml:"path" json:"path"`
	Header         map[string]string `yaml:"header" json:"header,omitempty"`
	Body           string            `yaml:"body" json:"body,omitempty"`
	ExpectedResult string            `yaml:"expectedResult" json:"expected_result,omitempty"`
	ErrorMessage   string            `yaml:"errorMessage" json:"error_message,omitempty"`
}

func (c *HTTPCriterion) Type() string { return "http" }
func (c *HTTPCriterion) Copy() Criterion {
	cp := *c
	cp.Header = copyStringMap(c.Header)
	return &cp
}
func (c *HTTPCriterion) Update(rewrite func(string) string) {
	c.Path = rewrite(c.Path)
	c.Body = rewrite(c.Body)
	c.ExpectedResult = rewrite(c.ExpectedResult)
	for k, v := range c.Header {
		c.Header[k] = rewrite(v)
	}
}
func (c *HTTPCriterion) Accept(v CriterionVisitor) (CriterionResult, error) {
	return v.VisitHTTP(c)
}

// DeviceTypeCriterion matches the configured host type.
type DeviceTypeCriterion struct {
	CriterionBase `yaml:",inline"`
	Keep          []string `yaml:"keep" json:"keep,omitempty"`
	Exclude       []string `yaml:"exclude" json:"exclude,omitempty"`
}

func (c *DeviceTypeCriterion) Type() string { return "deviceType" }
func (c *DeviceTypeCriterion) Copy() Criterion {
	cp := *c
	cp.Keep = append([]string(nil), c.Keep...)
	cp.Exclude = append([]string(nil), c.Exclude...)
	return &cp
}
func (c *DeviceTypeCriterion) Update(func(string) string) {}
func (c *DeviceTypeCriterion) Accept(v CriterionVisitor) (CriterionResult, error) {
	return v.VisitDeviceType(c)
}

// ProductRequirementsCriterion requires a minimum engine version.
type ProductRequirementsCriterion struct {
	CriterionBase `yaml:",inline"`
	EngineVersion string `yaml:"engineVersion" json:"engine_version"`
}

func (c *ProductRequirementsCriterion) Type() string               { return "productRequirements" }
func (c *ProductRequirementsCriterion) Copy() Criterion            { cp := *c; return &cp }
func (c *ProductRequirementsCriterion) Update(func(string) string) {}
func (c *ProductRequirementsCriterion) Accept(v CriterionVisitor) (CriterionResult, error) {
	return v.VisitProductRequirements(c)
}

// CopyCriteria deep-copies a criteria list.
func CopyCriteria(in []Criterion) []Criterion {
	if in == nil {
		return nil
	}
	out := make([]Criterion, len(in))
	for i, c := range in {
		if c != nil {
			out[i] = c.Copy()
		}
	}
	return out
}
