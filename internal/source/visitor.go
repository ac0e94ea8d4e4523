package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nmslite/hwmon/internal/connector"
	"github.com/nmslite/hwmon/internal/table"
)

// visitor produces the unfiltered table of one source.
type visitor struct {
	ctx    context.Context
	rc     *Context
	r      *Resolver
	logger *slog.Logger
}

var _ connector.SourceVisitor = (*visitor)(nil)

func (v *visitor) VisitHTTP(s *connector.HTTPSource) (table.SourceTable, error) {
	return v.r.fetch(v.ctx, v.rc, s)
}

func (v *visitor) VisitSNMPGet(s *connector.SNMPGetSource) (table.SourceTable, error) {
	return v.r.fetch(v.ctx, v.rc, s)
}

func (v *visitor) VisitSNMPTable(s *connector.SNMPTableSource) (table.SourceTable, error) {
	return v.r.fetch(v.ctx, v.rc, s)
}

func (v *visitor) VisitWMI(s *connector.WMISource) (table.SourceTable, error) {
	return v.r.fetch(v.ctx, v.rc, s)
}

func (v *visitor) VisitWBEM(s *connector.WBEMSource) (table.SourceTable, error) {
	return v.r.fetch(v.ctx, v.rc, s)
}

func (v *visitor) VisitOSCommand(s *connector.OSCommandSource) (table.SourceTable, error) {
	return v.r.fetch(v.ctx, v.rc, s)
}

func (v *visitor) VisitCommandLine(s *connector.CommandLineSource) (table.SourceTable, error) {
	return v.r.fetch(v.ctx, v.rc, s)
}

func (v *visitor) VisitIPMI(s *connector.IPMISource) (table.SourceTable, error) {
	return v.r.fetch(v.ctx, v.rc, s)
}

func (v *visitor) VisitStatic(s *connector.StaticSource) (table.SourceTable, error) {
	return table.FromRaw(s.Value), nil
}

func (v *visitor) VisitCopy(s *connector.CopySource) (table.SourceTable, error) {
	t, ok := v.rc.Lookup(s.From)
	if !ok {
		return table.Empty(), fmt.Errorf("%w: %s", ErrUnknownSourceReference, s.From)
	}
	return t.Copy(), nil
}

func (v *visitor) VisitTableUnion(s *connector.TableUnionSource) (table.SourceTable, error) {
	var rows [][]string
	for _, ref := range s.Tables {
		t, ok := v.rc.Lookup(ref)
		if !ok {
			v.logger.Warn("union table not found, skipped", "reference", ref)
			continue
		}
		for _, row := range t.Table {
			rows = append(rows, table.CopyRow(row))
		}
	}
	return table.FromRows(rows), nil
}

func (v *visitor) VisitTableJoin(s *connector.TableJoinSource) (table.SourceTable, error) {
	left, ok := v.rc.Lookup(s.LeftTable)
	if !ok {
		return table.Empty(), fmt.Errorf("%w: %s", ErrUnknownSourceReference, s.LeftTable)
	}
	right, ok := v.rc.Lookup(s.RightTable)
	if !ok {
		v.logger.Warn("right table of join not found, using an empty table", "reference", s.RightTable)
		right = table.Empty()
	}
	return table.FromRows(Join(left.Table, right.Table, s.LeftKeyColumn, s.RightKeyColumn, s.DefaultRightLine, s.KeyType)), nil
}

// Join appends to each left row every right row whose key matches, comparing
// keys case-insensitively. A left row without a match gets defaultRightLine
// (split on the canonical separator) when set and is dropped otherwise. Left
// rows too short for the key column are dropped.
func Join(left, right [][]string, leftKey, rightKey int, defaultRightLine, keyType string) [][]string {
	normalize := joinKey(keyType)

	index := table.SourceTable{Table: right}.Index(rightKey, normalize)

	var defaultRow []string
	if defaultRightLine != "" {
		defaultRow = strings.Split(strings.TrimSuffix(defaultRightLine, table.Separator), table.Separator)
	}

	var out [][]string
	for _, l := range left {
		if leftKey < 1 || leftKey > len(l) {
			continue
		}
		matches := index[normalize(l[leftKey-1])]
		if len(matches) == 0 {
			if defaultRow != nil {
				out = append(out, concatRows(l, defaultRow))
			}
			continue
		}
		for _, i := range matches {
			out = append(out, concatRows(l, right[i]))
		}
	}
	return out
}

func concatRows(a, b []string) []string {
	row := make([]string, 0, len(a)+len(b))
	row = append(row, a...)
	return append(row, b...)
}

// joinKey returns the key normalization of a join key type. WBEM and WMI
// object paths are compared on their part after the namespace.
func joinKey(keyType string) func(string) string {
	switch strings.ToLower(keyType) {
	case connector.KeyTypeWbem, connector.KeyTypeWmi:
		return func(v string) string {
			v = strings.TrimSpace(v)
			if i := strings.LastIndex(v, ":"); i >= 0 {
				v = v[i+1:]
			}
			return strings.ToLower(v)
		}
	}
	return func(v string) string {
		return strings.ToLower(strings.TrimSpace(v))
	}
}
