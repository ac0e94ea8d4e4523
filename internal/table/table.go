// Package table holds SourceTable, the value flowing through a source's
// compute chain, and the generic line filters applied to raw protocol output.
package table

import (
	"strings"
)

// Separator is the canonical column separator of tabular text.
const Separator = ";"

// SourceTable is either raw unstructured text or an ordered grid of cells.
// Rows are independent and may have different lengths.
type SourceTable struct {
	RawData string     `json:"raw_data,omitempty"`
	Table   [][]string `json:"table,omitempty"`
}

// Empty returns a table with neither text nor rows.
func Empty() SourceTable {
	return SourceTable{}
}

// FromRaw builds a table from raw text, splitting it into rows on newlines and
// into columns on Separator.
func FromRaw(raw string) SourceTable {
	return SourceTable{RawData: raw, Table: FromCSV(raw, Separator)}
}

// FromRows builds a table from a grid; RawData is the grid rendered as text.
func FromRows(rows [][]string) SourceTable {
	return SourceTable{RawData: ToCSV(rows, Separator), Table: rows}
}

// IsEmpty reports whether the table carries no data at all.
func (t SourceTable) IsEmpty() bool {
	return t.RawData == "" && len(t.Table) == 0
}

// Copy returns a deep copy of the table.
func (t SourceTable) Copy() SourceTable {
	out := SourceTable{RawData: t.RawData}
	if t.Table != nil {
		out.Table = make([][]string, len(t.Table))
		for i, row := range t.Table {
			out.Table[i] = CopyRow(row)
		}
	}
	return out
}

// Text returns the textual form of the table: RawData when present, otherwise
// the grid joined with Separator.
func (t SourceTable) Text() string {
	if t.RawData != "" {
		return t.RawData
	}
	return ToCSV(t.Table, Separator)
}

// Index maps the normalized value of the given 1-based column to the
// positions of the rows holding it. A nil normalize lower-cases the value.
// Rows too short for the column are skipped.
func (t SourceTable) Index(column int, normalize func(string) string) map[string][]int {
	if normalize == nil {
		normalize = strings.ToLower
	}
	idx := make(map[string][]int)
	for i, row := range t.Table {
		if column < 1 || column > len(row) {
			continue
		}
		key := normalize(row[column-1])
		idx[key] = append(idx[key], i)
	}
	return idx
}

// CopyRow returns a copy of a row.
func CopyRow(row []string) []string {
	out := make([]string, len(row))
	copy(out, row)
	return out
}

// FromCSV splits text into rows on newlines and each row into cells on sep.
// Blank lines are dropped. A trailing separator does not produce an extra
// empty cell.
func FromCSV(text, sep string) [][]string {
	if text == "" {
		return nil
	}
	if sep == "" {
		sep = Separator
	}

	var rows [][]string
	for _, line := range SplitLines(text) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		line = strings.TrimSuffix(line, sep)
		rows = append(rows, strings.Split(line, sep))
	}
	return rows
}

// ToCSV joins a grid into text, one row per line.
func ToCSV(rows [][]string, sep string) string {
	if len(rows) == 0 {
		return ""
	}
	if sep == "" {
		sep = Separator
	}

	var b strings.Builder
	for i, row := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.Join(row, sep))
	}
	return b.String()
}

// SplitLines splits text on \n, dropping a trailing \r from each line.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
