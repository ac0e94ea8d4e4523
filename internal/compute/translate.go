package compute

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nmslite/hwmon/internal/connector"
)

const (
	defaultArraySeparator  = ","
	defaultResultSeparator = "|"
	bitSeparator           = " - "
)

// VisitTranslate replaces a cell with its translation. Cells with neither an
// entry nor a default entry are left unchanged.
func (p *processor) VisitTranslate(c *connector.Translate) error {
	tt, err := p.translation(c.TranslationTable)
	if err != nil {
		return err
	}

	p.mapRows(func(row []string) ([]string, bool) {
		return updateCell(row, c.Column, func(cell string) (string, bool) {
			return tt.Lookup(strings.TrimSpace(cell))
		})
	})
	return nil
}

func (p *processor) VisitArrayTranslate(c *connector.ArrayTranslate) error {
	tt, err := p.translation(c.TranslationTable)
	if err != nil {
		return err
	}

	arraySep := c.ArraySeparator
	if arraySep == "" {
		arraySep = defaultArraySeparator
	}
	resultSep := c.ResultSeparator
	if resultSep == "" {
		resultSep = defaultResultSeparator
	}

	p.mapRows(func(row []string) ([]string, bool) {
		return updateCell(row, c.Column, func(cell string) (string, bool) {
			if cell == "" {
				return "", false
			}
			parts := strings.Split(cell, arraySep)
			for i, part := range parts {
				if v, ok := tt.Lookup(strings.TrimSpace(part)); ok {
					parts[i] = v
				}
			}
			return strings.Join(parts, resultSep), true
		})
	})
	return nil
}

// VisitPerBitTranslation decodes a bitmask. For every listed bit the entry
// "<bit>,<0|1>" is looked up; a set bit without such an entry falls back on
// the plain "<bit>" entry. Matches are joined with " - ".
func (p *processor) VisitPerBitTranslation(c *connector.PerBitTranslation) error {
	tt, err := p.translation(c.TranslationTable)
	if err != nil {
		return err
	}

	bits, err := parseBitList(c.BitList)
	if err != nil {
		return err
	}

	p.mapRows(func(row []string) ([]string, bool) {
		return updateCell(row, c.Column, func(cell string) (string, bool) {
			mask, err := strconv.ParseInt(strings.TrimSpace(cell), 10, 64)
			if err != nil {
				return "", false
			}

			var matches []string
			for _, bit := range bits {
				set := (mask >> bit) & 1
				v, ok := tt.LookupStrict(fmt.Sprintf("%d,%d", bit, set))
				if !ok && set == 1 {
					v, ok = tt.LookupStrict(strconv.Itoa(bit))
				}
				if ok && v != "" {
					matches = append(matches, v)
				}
			}
			return strings.Join(matches, bitSeparator), true
		})
	})
	return nil
}

func parseBitList(list string) ([]int, error) {
	var bits []int
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		bit, err := strconv.Atoi(part)
		if err != nil || bit < 0 || bit > 62 {
			return nil, fmt.Errorf("invalid bit %q in bit list", part)
		}
		bits = append(bits, bit)
	}
	return bits, nil
}
