package compute

import (
	"math"
	"strconv"
	"strings"

	"github.com/nmslite/hwmon/internal/connector"
)

func (p *processor) VisitAdd(c *connector.Add) error {
	p.arithmetic(c.Column, c.Value, func(a, b float64) (float64, bool) { return a + b, true })
	return nil
}

func (p *processor) VisitSubtract(c *connector.Subtract) error {
	p.arithmetic(c.Column, c.Value, func(a, b float64) (float64, bool) { return a - b, true })
	return nil
}

func (p *processor) VisitMultiply(c *connector.Multiply) error {
	p.arithmetic(c.Column, c.Value, func(a, b float64) (float64, bool) { return a * b, true })
	return nil
}

func (p *processor) VisitDivide(c *connector.Divide) error {
	p.arithmetic(c.Column, c.Value, func(a, b float64) (float64, bool) {
		if b == 0 {
			return 0, false
		}
		return a / b, true
	})
	return nil
}

// VisitAnd computes a bitwise AND on integer cells.
func (p *processor) VisitAnd(c *connector.And) error {
	p.mapRows(func(row []string) ([]string, bool) {
		return updateCell(row, c.Column, func(cell string) (string, bool) {
			a, err := strconv.ParseInt(strings.TrimSpace(cell), 10, 64)
			if err != nil {
				return "", false
			}
			s, ok := operand(row, c.Value)
			if !ok {
				return "", false
			}
			b, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				return "", false
			}
			return strconv.FormatInt(a&b, 10), true
		})
	})
	return nil
}

func (p *processor) arithmetic(column int, value string, op func(a, b float64) (float64, bool)) {
	p.mapRows(func(row []string) ([]string, bool) {
		return updateCell(row, column, func(cell string) (string, bool) {
			a, ok := parseNumber(cell)
			if !ok {
				return "", false
			}
			s, ok := operand(row, value)
			if !ok {
				return "", false
			}
			b, ok := parseNumber(s)
			if !ok {
				return "", false
			}
			r, ok := op(a, b)
			if !ok {
				return "", false
			}
			return FormatDouble(r), true
		})
	})
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// FormatDouble renders a float64 the way connector authors expect numeric
// cells to read: always with a decimal part ("502.0"), plain notation between
// 1e-3 and 1e7, and "1.0E7" style scientific notation outside that range.
func FormatDouble(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	case v == 0:
		if math.Signbit(v) {
			return "-0.0"
		}
		return "0.0"
	}

	abs := math.Abs(v)
	if abs >= 1e-3 && abs < 1e7 {
		s := strconv.FormatFloat(v, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	}

	s := strconv.FormatFloat(v, 'E', -1, 64)
	mantissa, exp, _ := strings.Cut(s, "E")
	if !strings.Contains(mantissa, ".") {
		mantissa += ".0"
	}
	e, err := strconv.Atoi(exp)
	if err != nil {
		return s
	}
	return mantissa + "E" + strconv.Itoa(e)
}
