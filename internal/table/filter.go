package table

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nmslite/hwmon/internal/regex"
)

// LineFilter is the set of generic post-fetch filters a text-producing source
// can declare.
type LineFilter struct {
	RemoveHeader   int    `yaml:"removeHeader" json:"remove_header,omitempty"`
	RemoveFooter   int    `yaml:"removeFooter" json:"remove_footer,omitempty"`
	ExcludeRegExp  string `yaml:"excludeRegExp" json:"exclude_regexp,omitempty"`
	KeepOnlyRegExp string `yaml:"keepOnlyRegExp" json:"keep_only_regexp,omitempty"`
	Separators     string `yaml:"separators" json:"separators,omitempty"`
	SelectColumns  string `yaml:"selectColumns" json:"select_columns,omitempty"`
}

// IsZero reports whether no filter is configured.
func (f LineFilter) IsZero() bool {
	return f == LineFilter{}
}

// Apply runs FilterLines then SelectColumns over text and returns the result
// as a table whose RawData is the filtered text.
func (f LineFilter) Apply(text string) (SourceTable, error) {
	lines, err := FilterLines(SplitLines(text), f.RemoveHeader, f.RemoveFooter, f.ExcludeRegExp, f.KeepOnlyRegExp)
	if err != nil {
		return Empty(), err
	}

	lines, err = SelectColumns(lines, f.Separators, f.SelectColumns)
	if err != nil {
		return Empty(), err
	}

	return FromRaw(strings.Join(lines, "\n")), nil
}

// FilterLines removes the first removeHeader and last removeFooter lines, then
// drops lines matching excludeRegExp and lines not matching keepOnlyRegExp.
// Empty patterns disable the corresponding filter.
func FilterLines(lines []string, removeHeader, removeFooter int, excludeRegExp, keepOnlyRegExp string) ([]string, error) {
	if removeHeader < 0 {
		removeHeader = 0
	}
	if removeFooter < 0 {
		removeFooter = 0
	}
	if removeHeader+removeFooter >= len(lines) {
		if removeHeader+removeFooter > 0 {
			return []string{}, nil
		}
	} else {
		lines = lines[removeHeader : len(lines)-removeFooter]
	}

	if excludeRegExp == "" && keepOnlyRegExp == "" {
		out := make([]string, len(lines))
		copy(out, lines)
		return out, nil
	}

	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if excludeRegExp != "" {
			matched, err := regex.Find(excludeRegExp, line)
			if err != nil {
				return nil, fmt.Errorf("excludeRegExp: %w", err)
			}
			if matched {
				continue
			}
		}
		if keepOnlyRegExp != "" {
			matched, err := regex.Find(keepOnlyRegExp, line)
			if err != nil {
				return nil, fmt.Errorf("keepOnlyRegExp: %w", err)
			}
			if !matched {
				continue
			}
		}
		out = append(out, line)
	}
	return out, nil
}

// SelectColumns splits each line on any character of separators, keeps the
// requested 1-based columns in the requested order and rejoins them with
// Separator. Columns absent from a line are emitted empty. An empty separators
// or selectColumns returns the lines unchanged.
func SelectColumns(lines []string, separators, selectColumns string) ([]string, error) {
	if separators == "" || strings.TrimSpace(selectColumns) == "" {
		return lines, nil
	}

	columns, err := ParseColumnList(selectColumns)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(lines))
	for _, line := range lines {
		fields := SplitAny(line, separators)
		selected := make([]string, len(columns))
		for i, c := range columns {
			if c <= len(fields) {
				selected[i] = fields[c-1]
			}
		}
		out = append(out, strings.Join(selected, Separator))
	}
	return out, nil
}

// ParseColumnList parses "1,3,5-7" into 1-based column numbers.
func ParseColumnList(list string) ([]int, error) {
	var columns []int
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if lo, hi, isRange := strings.Cut(part, "-"); isRange {
			from, err := strconv.Atoi(strings.TrimSpace(lo))
			if err != nil {
				return nil, fmt.Errorf("invalid column range %q: %w", part, err)
			}
			to, err := strconv.Atoi(strings.TrimSpace(hi))
			if err != nil {
				return nil, fmt.Errorf("invalid column range %q: %w", part, err)
			}
			if from < 1 || to < from {
				return nil, fmt.Errorf("invalid column range %q", part)
			}
			for c := from; c <= to; c++ {
				columns = append(columns, c)
			}
			continue
		}

		c, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid column %q: %w", part, err)
		}
		if c < 1 {
			return nil, fmt.Errorf("invalid column %d: columns are 1-based", c)
		}
		columns = append(columns, c)
	}
	return columns, nil
}

// SplitAny splits s on every occurrence of any character of seps. When seps
// holds only whitespace, runs of separators count as one and leading or
// trailing separators are ignored, which is how aligned command output reads.
func SplitAny(s, seps string) []string {
	if seps == "" {
		return []string{s}
	}
	isSep := func(r rune) bool { return strings.ContainsRune(seps, r) }

	if strings.TrimSpace(seps) == "" {
		return strings.FieldsFunc(s, isSep)
	}

	var fields []string
	start := 0
	for i, r := range s {
		if isSep(r) {
			fields = append(fields, s[start:i])
			start = i + len(string(r))
		}
	}
	return append(fields, s[start:])
}
