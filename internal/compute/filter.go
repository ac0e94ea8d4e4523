package compute

import (
	"strings"

	"github.com/nmslite/hwmon/internal/connector"
	"github.com/nmslite/hwmon/internal/regex"
)

// VisitKeepOnlyMatchingLines keeps the rows whose cell matches RegExp and
// belongs to ValueList. Rows too short for the column are dropped.
func (p *processor) VisitKeepOnlyMatchingLines(c *connector.KeepOnlyMatchingLines) error {
	return p.matchLines(c.Column, c.RegExp, c.ValueList, true)
}

// VisitExcludeMatchingLines removes the rows whose cell matches RegExp or
// belongs to ValueList. Rows too short for the column are kept.
func (p *processor) VisitExcludeMatchingLines(c *connector.ExcludeMatchingLines) error {
	return p.matchLines(c.Column, c.RegExp, c.ValueList, false)
}

func (p *processor) matchLines(column int, pattern, valueList string, keep bool) error {
	if pattern != "" {
		re, err := regex.Compile(pattern)
		if err != nil {
			return err
		}
		p.filterRows(func(row []string) bool {
			cell, ok := cellAt(row, column)
			if !ok {
				return !keep
			}
			// a match timeout counts as no match
			matched, _ := re.MatchString(cell)
			return matched == keep
		})
	}

	if values := parseValueList(valueList); len(values) > 0 {
		p.filterRows(func(row []string) bool {
			cell, ok := cellAt(row, column)
			if !ok {
				return !keep
			}
			_, listed := values[strings.TrimSpace(cell)]
			return listed == keep
		})
	}
	return nil
}

func parseValueList(list string) map[string]struct{} {
	values := make(map[string]struct{})
	for _, v := range strings.Split(list, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			values[v] = struct{}{}
		}
	}
	return values
}
