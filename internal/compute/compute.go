// Package compute runs the compute chain of a source over its SourceTable.
//
// Every step works row by row. A row the step cannot transform (column out of
// range, operand missing or not numeric) goes through unchanged while the
// other rows are still transformed. Only static configuration problems, such
// as a translation table the connector does not define, stop the chain.
package compute

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/nmslite/hwmon/internal/connector"
	"github.com/nmslite/hwmon/internal/table"
)

var (
	// ErrUnknownTranslationTable is returned when a compute names a
	// translation table the connector does not define.
	ErrUnknownTranslationTable = errors.New("unknown translation table")

	// ErrUnknownConversion is returned by Convert for an unsupported conversion.
	ErrUnknownConversion = errors.New("unknown conversion")
)

// TranslationSource resolves translation tables by name. *connector.Connector
// implements it.
type TranslationSource interface {
	Translation(name string) (connector.TranslationTable, bool)
}

// Runner applies compute chains.
type Runner struct {
	translations TranslationSource
	logger       *slog.Logger
}

// NewRunner creates a runner resolving translation tables from translations,
// which may be nil when the connector defines none.
func NewRunner(translations TranslationSource, logger *slog.Logger) *Runner {
	return &Runner{
		translations: translations,
		logger:       logger.With("component", "compute"),
	}
}

// Run applies computes in order. The input table is never modified. Nil
// computes are skipped. On a hard error the table produced so far is returned
// together with the error.
func (r *Runner) Run(src table.SourceTable, computes []connector.Compute) (table.SourceTable, error) {
	p := &processor{
		table:        src.Copy(),
		translations: r.translations,
		logger:       r.logger,
	}

	for i, c := range computes {
		if c == nil {
			continue
		}
		if err := c.Accept(p); err != nil {
			return p.table, fmt.Errorf("compute %d (%s): %w", i+1, c.Type(), err)
		}
		r.logger.Debug("compute applied", "step", i+1, "type", c.Type(), "rows", len(p.table.Table))
	}
	return p.table, nil
}

// processor holds the table being transformed and implements
// connector.ComputeVisitor.
type processor struct {
	table        table.SourceTable
	translations TranslationSource
	logger       *slog.Logger
}

var _ connector.ComputeVisitor = (*processor)(nil)

// rowFunc transforms one row. It returns false when the row must go through
// unchanged; it never modifies its argument.
type rowFunc func(row []string) ([]string, bool)

func (p *processor) setRows(rows [][]string) {
	p.table = table.FromRows(rows)
}

// mapRows applies fn to every row, keeping the original of rows fn skips.
func (p *processor) mapRows(fn rowFunc) {
	if len(p.table.Table) == 0 {
		return
	}
	rows := make([][]string, len(p.table.Table))
	for i, row := range p.table.Table {
		if out, ok := fn(row); ok {
			rows[i] = out
		} else {
			rows[i] = row
		}
	}
	p.setRows(rows)
}

// filterRows keeps the rows for which keep returns true.
func (p *processor) filterRows(keep func(row []string) bool) {
	rows := make([][]string, 0, len(p.table.Table))
	for _, row := range p.table.Table {
		if keep(row) {
			rows = append(rows, row)
		}
	}
	p.setRows(rows)
}

func (p *processor) translation(name string) (connector.TranslationTable, error) {
	if p.translations != nil {
		if t, ok := p.translations.Translation(name); ok {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTranslationTable, name)
}

// updateCell replaces the cell at the 1-based column with fn's result.
func updateCell(row []string, column int, fn func(cell string) (string, bool)) ([]string, bool) {
	cell, ok := cellAt(row, column)
	if !ok {
		return nil, false
	}
	v, ok := fn(cell)
	if !ok {
		return nil, false
	}
	out := table.CopyRow(row)
	out[column-1] = v
	return out, true
}

func cellAt(row []string, column int) (string, bool) {
	if column < 1 || column > len(row) {
		return "", false
	}
	return row[column-1], true
}

// operand resolves a compute value: "$N" reads column N of the same row,
// anything else is a literal.
func operand(row []string, value string) (string, bool) {
	if n, ok := columnRef(value); ok {
		return cellAt(row, n)
	}
	return value, true
}

func columnRef(value string) (int, bool) {
	if !strings.HasPrefix(value, "$") {
		return 0, false
	}
	n, err := strconv.Atoi(value[1:])
	if err != nil {
		return 0, false
	}
	return n, true
}
