package compute

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nmslite/hwmon/internal/connector"
	"github.com/nmslite/hwmon/internal/table"
)

func (p *processor) VisitLeftConcat(c *connector.LeftConcat) error {
	p.concat(c.Column, c.Value, func(cell, v string) string { return v + cell })
	return nil
}

func (p *processor) VisitRightConcat(c *connector.RightConcat) error {
	p.concat(c.Column, c.Value, func(cell, v string) string { return cell + v })
	return nil
}

func (p *processor) concat(column int, value string, join func(cell, v string) string) {
	p.mapRows(func(row []string) ([]string, bool) {
		return updateCell(row, column, func(cell string) (string, bool) {
			v, ok := operand(row, value)
			if !ok {
				return "", false
			}
			return join(cell, v), true
		})
	})
}

// VisitReplace substitutes every occurrence of ExistingValue in the cell.
func (p *processor) VisitReplace(c *connector.Replace) error {
	p.mapRows(func(row []string) ([]string, bool) {
		return updateCell(row, c.Column, func(cell string) (string, bool) {
			old, ok := operand(row, c.ExistingValue)
			if !ok || old == "" {
				return "", false
			}
			repl, ok := operand(row, c.NewValue)
			if !ok {
				return "", false
			}
			return strings.ReplaceAll(cell, old, repl), true
		})
	})
	return nil
}

func (p *processor) VisitSubstring(c *connector.Substring) error {
	p.mapRows(func(row []string) ([]string, bool) {
		return updateCell(row, c.Column, func(cell string) (string, bool) {
			start, ok := intOperand(row, c.Start)
			if !ok {
				return "", false
			}
			length, ok := intOperand(row, c.Length)
			if !ok {
				return "", false
			}

			runes := []rune(cell)
			begin := start - 1
			end := begin + length
			if begin < 0 || length < 0 || end > len(runes) {
				return "", false
			}
			return string(runes[begin:end]), true
		})
	})
	return nil
}

func intOperand(row []string, value string) (int, bool) {
	s, ok := operand(row, value)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return n, true
}

func (p *processor) VisitExtract(c *connector.Extract) error {
	if c.SubSeparators == "" {
		return nil
	}
	p.mapRows(func(row []string) ([]string, bool) {
		return updateCell(row, c.Column, func(cell string) (string, bool) {
			parts := table.SplitAny(cell, c.SubSeparators)
			if c.SubColumn < 1 || c.SubColumn > len(parts) {
				return "", false
			}
			return parts[c.SubColumn-1], true
		})
	})
	return nil
}

func (p *processor) VisitDuplicateColumn(c *connector.DuplicateColumn) error {
	p.mapRows(func(row []string) ([]string, bool) {
		cell, ok := cellAt(row, c.Column)
		if !ok {
			return nil, false
		}
		return append(table.CopyRow(row), cell), true
	})
	return nil
}

// VisitKeepColumns keeps the listed columns. Rows shorter than the highest
// listed column go through unchanged.
func (p *processor) VisitKeepColumns(c *connector.KeepColumns) error {
	columns, err := table.ParseColumnList(c.ColumnNumbers)
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		return nil
	}

	highest := 0
	for _, col := range columns {
		highest = max(highest, col)
	}

	p.mapRows(func(row []string) ([]string, bool) {
		if len(row) < highest {
			return nil, false
		}
		out := make([]string, len(columns))
		for i, col := range columns {
			out[i] = row[col-1]
		}
		return out, true
	})
	return nil
}

// Simple status levels, from best to worst.
var simpleStatus = []string{"OK", "WARN", "ALARM"}

func (p *processor) VisitConvert(c *connector.Convert) error {
	var convert func(cell string) (string, bool)
	switch strings.ToLower(c.Conversion) {
	case connector.ConversionHex2Decimal:
		convert = hexToDecimal
	case connector.ConversionArray2SimpleStatus:
		convert = worstStatus
	default:
		return fmt.Errorf("%w: %q", ErrUnknownConversion, c.Conversion)
	}

	p.mapRows(func(row []string) ([]string, bool) {
		return updateCell(row, c.Column, convert)
	})
	return nil
}

func hexToDecimal(cell string) (string, bool) {
	s := strings.TrimSpace(cell)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.NewReplacer(":", "", " ", "").Replace(s)
	if s == "" {
		return "", false
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return "", false
	}
	return strconv.FormatUint(v, 10), true
}

// worstStatus reduces a "|" separated list of OK/WARN/ALARM to its worst
// element. Unrecognized elements are ignored.
func worstStatus(cell string) (string, bool) {
	worst := -1
	for _, part := range strings.Split(cell, "|") {
		part = strings.TrimSpace(part)
		for level, name := range simpleStatus {
			if strings.EqualFold(part, name) {
				worst = max(worst, level)
			}
		}
	}
	if worst < 0 {
		return "", false
	}
	return simpleStatus[worst], true
}
