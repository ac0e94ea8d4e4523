package connector

import (
	"github.com/nmslite/hwmon/internal/table"
)

// Compute is one tabular transformation step of a source. Variants form a
// closed set; a processor handles them through ComputeVisitor.
type Compute interface {
	// Type is the variant tag used in connector files and logs.
	Type() string
	// Copy returns a deep copy. Connector templates are shared between hosts
	// and must never be mutated in place.
	Copy() Compute
	// Update rewrites every embedded string with rewrite.
	Update(rewrite func(string) string)
	// Accept dispatches to the matching visitor method.
	Accept(v ComputeVisitor) error
}

// ComputeVisitor has one method per Compute variant.
type ComputeVisitor interface {
	VisitAdd(c *Add) error
	VisitSubtract(c *Subtract) error
	VisitMultiply(c *Multiply) error
	VisitDivide(c *Divide) error
	VisitLeftConcat(c *LeftConcat) error
	VisitRightConcat(c *RightConcat) error
	VisitTranslate(c *Translate) error
	VisitArrayTranslate(c *ArrayTranslate) error
	VisitPerBitTranslation(c *PerBitTranslation) error
	VisitKeepOnlyMatchingLines(c *KeepOnlyMatchingLines) error
	VisitExcludeMatchingLines(c *ExcludeMatchingLines) error
	VisitDuplicateColumn(c *DuplicateColumn) error
	VisitExtract(c *Extract) error
	VisitJson2Csv(c *Json2Csv) error
	VisitXml2Csv(c *Xml2Csv) error
	VisitAwk(c *Awk) error
	VisitReplace(c *Replace) error
	VisitSubstring(c *Substring) error
	VisitKeepColumns(c *KeepColumns) error
	VisitConvert(c *Convert) error
	VisitAnd(c *And) error
}

// Add adds Value to the cell at Column.
type Add struct {
	Column int    `yaml:"column" json:"column"`
	Value  string `yaml:"value" json:"value"`
}

func (c *Add) Type() string                       { return "add" }
func (c *Add) Copy() Compute                      { cp := *c; return &cp }
func (c *Add) Update(rewrite func(string) string) { c.Value = rewrite(c.Value) }
func (c *Add) Accept(v ComputeVisitor) error      { return v.VisitAdd(c) }

// Subtract subtracts Value from the cell at Column.
type Subtract struct {
	Column int    `yaml:"column" json:"column"`
	Value  string `yaml:"value" json:"value"`
}

func (c *Subtract) Type() string                       { return "subtract" }
func (c *Subtract) Copy() Compute                      { cp := *c; return &cp }
func (c *Subtract) Update(rewrite func(string) string) { c.Value = rewrite(c.Value) }
func (c *Subtract) Accept(v ComputeVisitor) error      { return v.VisitSubtract(c) }

// Multiply multiplies the cell at Column by Value.
type Multiply struct {
	Column int    `yaml:"column" json:"column"`
	Value  string `yaml:"value" json:"value"`
}

func (c *Multiply) Type() string                       { return "multiply" }
func (c *Multiply) Copy() Compute                      { cp := *c; return &cp }
func (c *Multiply) Update(rewrite func(string) string) { c.Value = rewrite(c.Value) }
func (c *Multiply) Accept(v ComputeVisitor) error      { return v.VisitMultiply(c) }

// Divide divides the cell at Column by Value. Rows whose divisor is zero are
// left unchanged.
type Divide struct {
	Column int    `yaml:"column" json:"column"`
	Value  string `yaml:"value" json:"value"`
}

func (c *Divide) Type() string                       { return "divide" }
func (c *Divide) Copy() Compute                      { cp := *c; return &cp }
func (c *Divide) Update(rewrite func(string) string) { c.Value = rewrite(c.Value) }
func (c *Divide) Accept(v ComputeVisitor) error      { return v.VisitDivide(c) }

// LeftConcat prepends Value to the cell at Column.
type LeftConcat struct {
	Column int    `yaml:"column" json:"column"`
	Value  string `yaml:"value" json:"value"`
}

func (c *LeftConcat) Type() string                       { return "leftConcat" }
func (c *LeftConcat) Copy() Compute                      { cp := *c; return &cp }
func (c *LeftConcat) Update(rewrite func(string) string) { c.Value = rewrite(c.Value) }
func (c *LeftConcat) Accept(v ComputeVisitor) error      { return v.VisitLeftConcat(c) }

// RightConcat appends Value to the cell at Column.
type RightConcat struct {
	Column int    `yaml:"column" json:"column"`
	Value  string `yaml:"value" json:"value"`
}

func (c *RightConcat) Type() string                       { return "rightConcat" }
func (c *RightConcat) Copy() Compute                      { cp := *c; return &cp }
func (c *RightConcat) Update(rewrite func(string) string) { c.Value = rewrite(c.Value) }
func (c *RightConcat) Accept(v ComputeVisitor) error      { return v.VisitRightConcat(c) }

// Translate replaces the cell at Column with its entry in TranslationTable.
type Translate struct {
	Column           int    `yaml:"column" json:"column"`
	TranslationTable string `yaml:"translationTable" json:"translation_table"`
}

func (c *Translate) Type() string  { return "translate" }
func (c *Translate) Copy() Compute { cp := *c; return &cp }
func (c *Translate) Update(rewrite func(string) string) {
	c.TranslationTable = rewrite(c.TranslationTable)
}
func (c *Translate) Accept(v ComputeVisitor) error { return v.VisitTranslate(c) }

// ArrayTranslate translates each element of a delimited cell.
type ArrayTranslate struct {
	Column           int    `yaml:"column" json:"column"`
	TranslationTable string `yaml:"translationTable" json:"translation_table"`
	ArraySeparator   string `yaml:"arraySeparator" json:"array_separator,omitempty"`
	ResultSeparator  string `yaml:"resultSeparator" json:"result_separator,omitempty"`
}

func (c *ArrayTranslate) Type() string  { return "arrayTranslate" }
func (c *ArrayTranslate) Copy() Compute { cp := *c; return &cp }
func (c *ArrayTranslate) Update(rewrite func(string) string) {
	c.TranslationTable = rewrite(c.TranslationTable)
	c.ArraySeparator = rewrite(c.ArraySeparator)
	c.ResultSeparator = rewrite(c.ResultSeparator)
}
func (c *ArrayTranslate) Accept(v ComputeVisitor) error { return v.VisitArrayTranslate(c) }

// PerBitTranslation decodes an integer bitmask cell through TranslationTable,
// whose keys are "<bit>,<0|1>".
type PerBitTranslation struct {
	Column           int    `yaml:"column" json:"column"`
	BitList          string `yaml:"bitList" json:"bit_list"`
	TranslationTable string `yaml:"translationTable" json:"translation_table"`
}

func (c *PerBitTranslation) Type() string  { return "perBitTranslation" }
func (c *PerBitTranslation) Copy() Compute { cp := *c; return &cp }
func (c *PerBitTranslation) Update(rewrite func(string) string) {
	c.BitList = rewrite(c.BitList)
	c.TranslationTable = rewrite(c.TranslationTable)
}
func (c *PerBitTranslation) Accept(v ComputeVisitor) error { return v.VisitPerBitTranslation(c) }

// KeepOnlyMatchingLines keeps the rows whose cell at Column matches RegExp and
// belongs to ValueList (comma separated). An empty predicate is ignored.
type KeepOnlyMatchingLines struct {
	Column    int    `yaml:"column" json:"column"`
	RegExp    string `yaml:"regExp" json:"regexp,omitempty"`
	ValueList string `yaml:"valueList" json:"value_list,omitempty"`
}

func (c *KeepOnlyMatchingLines) Type() string  { return "keepOnlyMatchingLines" }
func (c *KeepOnlyMatchingLines) Copy() Compute { cp := *c; return &cp }
func (c *KeepOnlyMatchingLines) Update(rewrite func(string) string) {
	c.RegExp = rewrite(c.RegExp)
	c.ValueList = rewrite(c.ValueList)
}
func (c *KeepOnlyMatchingLines) Accept(v ComputeVisitor) error {
	return v.VisitKeepOnlyMatchingLines(c)
}

// ExcludeMatchingLines removes the rows whose cell at Column matches RegExp or
// belongs to ValueList.
type ExcludeMatchingLines struct {
	Column    int    `yaml:"column" json:"column"`
	RegExp    string `yaml:"regExp" json:"regexp,omitempty"`
	ValueList string `yaml:"valueList" json:"value_list,omitempty"`
}

func (c *ExcludeMatchingLines) Type() string  { return "excludeMatchingLines" }
func (c *ExcludeMatchingLines) Copy() Compute { cp := *c; return &cp }
func (c *ExcludeMatchingLines) Update(rewrite func(string) string) {
	c.RegExp = rewrite(c.RegExp)
	c.ValueList = rewrite(c.ValueList)
}
func (c *ExcludeMatchingLines) Accept(v ComputeVisitor) error {
	return v.VisitExcludeMatchingLines(c)
}

// DuplicateColumn appends a copy of the cell at Column to the row.
type DuplicateColumn struct {
	Column int `yaml:"column" json:"column"`
}

func (c *DuplicateColumn) Type() string                  { return "duplicateColumn" }
func (c *DuplicateColumn) Copy() Compute                 { cp := *c; return &cp }
func (c *DuplicateColumn) Update(func(string) string)    {}
func (c *DuplicateColumn) Accept(v ComputeVisitor) error { return v.VisitDuplicateColumn(c) }

// Extract replaces the cell at Column with its SubColumn-th part.
type Extract struct {
	Column        int    `yaml:"column" json:"column"`
	SubColumn     int    `yaml:"subColumn" json:"sub_column"`
	SubSeparators string `yaml:"subSeparators" json:"sub_separators"`
}

func (c *Extract) Type() string                       { return "extract" }
func (c *Extract) Copy() Compute                      { cp := *c; return &cp }
func (c *Extract) Update(rewrite func(string) string) { c.SubSeparators = rewrite(c.SubSeparators) }
func (c *Extract) Accept(v ComputeVisitor) error      { return v.VisitExtract(c) }

// Json2Csv projects records of a JSON document into a grid.
type Json2Csv struct {
	EntryKey   string `yaml:"entryKey" json:"entry_key"`
	Properties string `yaml:"properties" json:"properties"`
	Separator  string `yaml:"separator" json:"separator,omitempty"`
}

func (c *Json2Csv) Type() string  { return "json2Csv" }
func (c *Json2Csv) Copy() Compute { cp := *c; return &cp }
func (c *Json2Csv) Update(rewrite func(string) string) {
	c.EntryKey = rewrite(c.EntryKey)
	c.Properties = rewrite(c.Properties)
	c.Separator = rewrite(c.Separator)
}
func (c *Json2Csv) Accept(v ComputeVisitor) error { return v.VisitJson2Csv(c) }

// Xml2Csv projects elements of an XML document into a grid.
type Xml2Csv struct {
	RecordTag  string `yaml:"recordTag" json:"record_tag"`
	Properties string `yaml:"properties" json:"properties"`
}

func (c *Xml2Csv) Type() string  { return "xml2Csv" }
func (c *Xml2Csv) Copy() Compute { cp := *c; return &cp }
func (c *Xml2Csv) Update(rewrite func(string) string) {
	c.RecordTag = rewrite(c.RecordTag)
	c.Properties = rewrite(c.Properties)
}
func (c *Xml2Csv) Accept(v ComputeVisitor) error { return v.VisitXml2Csv(c) }

// Awk runs an awk script over the table text and re-filters its output.
type Awk struct {
	Script           string `yaml:"script" json:"script"`
	table.LineFilter `yaml:",inline" json:",inline"`
}

func (c *Awk) Type() string  { return "awk" }
func (c *Awk) Copy() Compute { cp := *c; return &cp }
func (c *Awk) Update(rewrite func(string) string) {
	c.Script = rewrite(c.Script)
	c.ExcludeRegExp = rewrite(c.ExcludeRegExp)
	c.KeepOnlyRegExp = rewrite(c.KeepOnlyRegExp)
	c.Separators = rewrite(c.Separators)
	c.SelectColumns = rewrite(c.SelectColumns)
}
func (c *Awk) Accept(v ComputeVisitor) error { return v.VisitAwk(c) }

// Replace substitutes ExistingValue with NewValue inside the cell at Column.
type Replace struct {
	Column        int    `yaml:"column" json:"column"`
	ExistingValue string `yaml:"existingValue" json:"existing_value"`
	NewValue      string `yaml:"newValue" json:"new_value"`
}

func (c *Replace) Type() string  { return "replace" }
func (c *Replace) Copy() Compute { cp := *c; return &cp }
func (c *Replace) Update(rewrite func(string) string) {
	c.ExistingValue = rewrite(c.ExistingValue)
	c.NewValue = rewrite(c.NewValue)
}
func (c *Replace) Accept(v ComputeVisitor) error { return v.VisitReplace(c) }

// Substring keeps Length characters of the cell starting at the 1-based Start.
type Substring struct {
	Column int    `yaml:"column" json:"column"`
	Start  string `yaml:"start" json:"start"`
	Length string `yaml:"length" json:"length"`
}

func (c *Substring) Type() string  { return "substring" }
func (c *Substring) Copy() Compute { cp := *c; return &cp }
func (c *Substring) Update(rewrite func(string) string) {
	c.Start = rewrite(c.Start)
	c.Length = rewrite(c.Length)
}
func (c *Substring) Accept(v ComputeVisitor) error { return v.VisitSubstring(c) }

// KeepColumns keeps the listed 1-based columns, in order.
type KeepColumns struct {
	ColumnNumbers string `yaml:"columnNumbers" json:"column_numbers"`
}

func (c *KeepColumns) Type() string                       { return "keepColumns" }
func (c *KeepColumns) Copy() Compute                      { cp := *c; return &cp }
func (c *KeepColumns) Update(rewrite func(string) string) { c.ColumnNumbers = rewrite(c.ColumnNumbers) }
func (c *KeepColumns) Accept(v ComputeVisitor) error      { return v.VisitKeepColumns(c) }

// Conversion kinds accepted by Convert.
const (
	ConversionHex2Decimal        = "hex2decimal"
	ConversionArray2SimpleStatus = "array2simplestatus"
)

// Convert applies a named conversion to the cell at Column.
type Convert struct {
	Column     int    `yaml:"column" json:"column"`
	Conversion string `yaml:"conversion" json:"conversion"`
}

func (c *Convert) Type() string                       { return "convert" }
func (c *Convert) Copy() Compute                      { cp := *c; return &cp }
func (c *Convert) Update(rewrite func(string) string) { c.Conversion = rewrite(c.Conversion) }
func (c *Convert) Accept(v ComputeVisitor) error      { return v.VisitConvert(c) }

// And computes the bitwise AND of the integer cell at Column with Value.
type And struct {
	Column int    `yaml:"column" json:"column"`
	Value  string `yaml:"value" json:"value"`
}

func (c *And) Type() string                       { return "and" }
func (c *And) Copy() Compute                      { cp := *c; return &cp }
func (c *And) Update(rewrite func(string) string) { c.Value = rewrite(c.Value) }
func (c *And) Accept(v ComputeVisitor) error      { return v.VisitAnd(c) }

// CopyComputes deep-copies a compute chain, keeping nil slots.
func CopyComputes(in []Compute) []Compute {
	if in == nil {
		return nil
	}
	out := make([]Compute, len(in))
	for i, c := range in {
		if c != nil {
			out[i] = c.Copy()
		}
	}
	return out
}

// UpdateComputes applies rewrite to every compute of a chain.
func UpdateComputes(chain []Compute, rewrite func(string) string) {
	for _, c := range chain {
		if c != nil {
			c.Update(rewrite)
		}
	}
}
