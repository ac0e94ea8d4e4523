package compute

import (
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmslite/hwmon/internal/connector"
	"github.com/nmslite/hwmon/internal/table"
)

func newRunner(tables map[string]connector.TranslationTable) *Runner {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRunner(&connector.Connector{ID: "test", TranslationTables: tables}, logger)
}

func run(t *testing.T, rows [][]string, computes ...connector.Compute) [][]string {
	t.Helper()
	out, err := newRunner(nil).Run(table.FromRows(rows), computes)
	require.NoError(t, err)
	return out.Table
}

func sampleRows() [][]string {
	return [][]string{
		{"ID1", "500", "2", "A"},
		{"ID2", "1500", "5", "B"},
		{"ID1", "200", "2", "C"},
	}
}

func TestAddColumnReference(t *testing.T) {
	got := run(t, sampleRows(), &connector.Add{Column: 2, Value: "$3"})

	assert.Equal(t, [][]string{
		{"ID1", "502.0", "2", "A"},
		{"ID2", "1505.0", "5", "B"},
		{"ID1", "202.0", "2", "C"},
	}, got)
}

func TestMultiplyByZero(t *testing.T) {
	got := run(t, sampleRows(), &connector.Multiply{Column: 2, Value: "0"})

	for _, row := range got {
		assert.Equal(t, "0.0", row[1])
	}
}

func TestDivideBlankThenNumeric(t *testing.T) {
	div := &connector.Divide{Column: 1, Value: "$3"}

	got := run(t, [][]string{{" ", "FOO", "4.0"}}, div)
	assert.Equal(t, [][]string{{" ", "FOO", "4.0"}}, got)

	got = run(t, [][]string{{"8.0", "FOO", "4.0"}}, div)
	assert.Equal(t, [][]string{{"2.0", "FOO", "4.0"}}, got)
}

func TestDivideByZeroNeverMutates(t *testing.T) {
	rows := [][]string{{"a", "10"}, {"b", "0"}, {"c", "-3.5"}, {"d", "x"}}

	got := run(t, rows, &connector.Divide{Column: 2, Value: "0"})
	assert.Equal(t, rows, got)

	got = run(t, [][]string{{"10", "0"}, {"10", "5"}}, &connector.Divide{Column: 1, Value: "$2"})
	assert.Equal(t, [][]string{{"10", "0"}, {"2.0", "5"}}, got)
}

func TestArithmeticRejectsNonFiniteOperands(t *testing.T) {
	rows := [][]string{{"10", "inf"}, {"10", "NaN"}, {"10", "-Infinity"}, {"10", "4"}}

	got := run(t, rows, &connector.Divide{Column: 1, Value: "$2"})
	assert.Equal(t, [][]string{{"10", "inf"}, {"10", "NaN"}, {"10", "-Infinity"}, {"2.5", "4"}}, got)

	got = run(t, [][]string{{"1"}}, &connector.Add{Column: 1, Value: "inf"})
	assert.Equal(t, [][]string{{"1"}}, got)
}

func TestArithmeticSkipsNonNumericRows(t *testing.T) {
	computes := map[string]connector.Compute{
		"add":      &connector.Add{Column: 2, Value: "1"},
		"subtract": &connector.Subtract{Column: 2, Value: "1"},
		"multiply": &connector.Multiply{Column: 2, Value: "2"},
		"divide":   &connector.Divide{Column: 2, Value: "2"},
	}

	for name, c := range computes {
		t.Run(name, func(t *testing.T) {
			rows := [][]string{{"a", "N/A"}, {"b", ""}, {"c", "10"}, {"d"}, {"e", "nan"}, {"f", "inf"}, {"g", "+Inf"}, {"h", "Infinity"}}
			got := run(t, rows, c)

			assert.Equal(t, []string{"a", "N/A"}, got[0])
			assert.Equal(t, []string{"b", ""}, got[1])
			assert.NotEqual(t, "10", got[2][1])
			assert.Equal(t, []string{"d"}, got[3])
			assert.Equal(t, rows[4:], got[4:])
		})
	}
}

func TestArithmeticOperandOutOfRange(t *testing.T) {
	rows := [][]string{{"10", "1", "2"}, {"10"}, {"10", "x", "y"}}

	got := run(t, rows, &connector.Add{Column: 1, Value: "$3"})
	assert.Equal(t, [][]string{{"12.0", "1", "2"}, {"10"}, {"10", "x", "y"}}, got)

	got = run(t, rows, &connector.Add{Column: 1, Value: "cpuCount"})
	assert.Equal(t, rows, got)
}

func TestRunDoesNotMutateInput(t *testing.T) {
	src := table.FromRows(sampleRows())
	computes := []connector.Compute{
		nil,
		&connector.Add{Column: 2, Value: "1"},
		&connector.DuplicateColumn{Column: 1},
	}

	out, err := newRunner(nil).Run(src, computes)
	require.NoError(t, err)

	assert.Equal(t, sampleRows(), src.Table)
	assert.Equal(t, []string{"ID1", "501.0", "2", "A", "ID1"}, out.Table[0])
	assert.Equal(t, "ID1;501.0;2;A;ID1", table.SplitLines(out.RawData)[0])
}

func TestComplementaryLineFilters(t *testing.T) {
	rows := [][]string{{"sda", "ok"}, {"sdb", "failed"}, {"sdc", "ok"}}

	got := run(t, rows,
		&connector.KeepOnlyMatchingLines{Column: 2, ValueList: "ok"},
		&connector.ExcludeMatchingLines{Column: 2, ValueList: "ok"},
	)
	assert.Empty(t, got)
}

func TestMatchingLines(t *testing.T) {
	rows := [][]string{{"sda", "ok"}, {"sdb", "failed"}, {"loop0", "ok"}, {"short"}}

	t.Run("keep regex", func(t *testing.T) {
		got := run(t, rows, &connector.KeepOnlyMatchingLines{Column: 1, RegExp: "^sd"})
		assert.Equal(t, [][]string{{"sda", "ok"}, {"sdb", "failed"}}, got)
	})

	t.Run("keep regex and list", func(t *testing.T) {
		got := run(t, rows, &connector.KeepOnlyMatchingLines{Column: 1, RegExp: "^sd", ValueList: "sdb, sdc"})
		assert.Equal(t, [][]string{{"sdb", "failed"}}, got)
	})

	t.Run("exclude keeps short rows", func(t *testing.T) {
		got := run(t, rows, &connector.ExcludeMatchingLines{Column: 2, RegExp: "fail"})
		assert.Equal(t, [][]string{{"sda", "ok"}, {"loop0", "ok"}, {"short"}}, got)
	})

	t.Run("no predicate", func(t *testing.T) {
		got := run(t, rows, &connector.KeepOnlyMatchingLines{Column: 1})
		assert.Equal(t, rows, got)
	})

	t.Run("invalid regex", func(t *testing.T) {
		_, err := newRunner(nil).Run(table.FromRows(rows), []connector.Compute{
			&connector.KeepOnlyMatchingLines{Column: 1, RegExp: "[bad"},
		})
		assert.Error(t, err)
	})
}

func TestTranslate(t *testing.T) {
	r := newRunner(map[string]connector.TranslationTable{
		"Status":  {"0": "ok", "1": "degraded", "default": "failed"},
		"NoDflt":  {"0": "ok"},
		"Alarms":  {"a": "fan", "b": "psu"},
		"BitMask": {"0,1": "Power supply failed", "1,1": "Fan failed", "1,0": "Fan ok", "2": "Overheat"},
	})

	t.Run("default entry", func(t *testing.T) {
		out, err := r.Run(table.FromRows([][]string{{"0"}, {"1"}, {"9"}}), []connector.Compute{
			&connector.Translate{Column: 1, TranslationTable: "status"},
		})
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"ok"}, {"degraded"}, {"failed"}}, out.Table)
	})

	t.Run("missing key without default", func(t *testing.T) {
		out, err := r.Run(table.FromRows([][]string{{"0"}, {"9"}}), []connector.Compute{
			&connector.Translate{Column: 1, TranslationTable: "NoDflt"},
		})
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"ok"}, {"9"}}, out.Table)
	})

	t.Run("array", func(t *testing.T) {
		out, err := r.Run(table.FromRows([][]string{{"a,b,c"}}), []connector.Compute{
			&connector.ArrayTranslate{Column: 1, TranslationTable: "Alarms"},
		})
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"fan|psu|c"}}, out.Table)
	})

	t.Run("per bit", func(t *testing.T) {
		out, err := r.Run(table.FromRows([][]string{{"5"}, {"abc"}}), []connector.Compute{
			&connector.PerBitTranslation{Column: 1, BitList: "0,1,2", TranslationTable: "BitMask"},
		})
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"Power supply failed - Fan ok - Overheat"}, {"abc"}}, out.Table)
	})

	t.Run("unknown table stops the chain", func(t *testing.T) {
		out, err := r.Run(table.FromRows([][]string{{"1", "x"}}), []connector.Compute{
			&connector.Add{Column: 1, Value: "1"},
			&connector.Translate{Column: 2, TranslationTable: "missing"},
			&connector.Add{Column: 1, Value: "1"},
		})
		require.ErrorIs(t, err, ErrUnknownTranslationTable)
		assert.Equal(t, [][]string{{"2.0", "x"}}, out.Table)
	})
}

func TestCellComputes(t *testing.T) {
	tests := []struct {
		name    string
		rows    [][]string
		compute connector.Compute
		want    [][]string
	}{
		{"left concat", [][]string{{"sda"}}, &connector.LeftConcat{Column: 1, Value: "/dev/"}, [][]string{{"/dev/sda"}}},
		{"right concat reference", [][]string{{"a", "b"}}, &connector.RightConcat{Column: 1, Value: "$2"}, [][]string{{"ab", "b"}}},
		{"concat out of range", [][]string{{"a"}}, &connector.RightConcat{Column: 2, Value: "x"}, [][]string{{"a"}}},
		{"replace", [][]string{{"a-b-c"}}, &connector.Replace{Column: 1, ExistingValue: "-", NewValue: "_"}, [][]string{{"a_b_c"}}},
		{"substring", [][]string{{"abcdef"}, {"ab"}}, &connector.Substring{Column: 1, Start: "2", Length: "3"}, [][]string{{"bcd"}, {"ab"}}},
		{"extract", [][]string{{"cpu:3:hot"}}, &connector.Extract{Column: 1, SubColumn: 2, SubSeparators: ":"}, [][]string{{"3"}}},
		{"extract whitespace", [][]string{{"  a   b "}}, &connector.Extract{Column: 1, SubColumn: 2, SubSeparators: " "}, [][]string{{"b"}}},
		{"extract out of range", [][]string{{"a:b"}}, &connector.Extract{Column: 1, SubColumn: 5, SubSeparators: ":"}, [][]string{{"a:b"}}},
		{"duplicate", [][]string{{"a", "b"}, {"c"}}, &connector.DuplicateColumn{Column: 2}, [][]string{{"a", "b", "b"}, {"c"}}},
		{"keep columns", [][]string{{"a", "b", "c"}, {"x"}}, &connector.KeepColumns{ColumnNumbers: "3,1"}, [][]string{{"c", "a"}, {"x"}}},
		{"hex2decimal", [][]string{{"0x1F"}, {"zz"}}, &connector.Convert{Column: 1, Conversion: "hex2decimal"}, [][]string{{"31"}, {"zz"}}},
		{"array2simplestatus", [][]string{{"OK|ALARM|WARN"}, {"ok|warn"}}, &connector.Convert{Column: 1, Conversion: "array2SimpleStatus"}, [][]string{{"ALARM"}, {"WARN"}}},
		{"and", [][]string{{"12", "10"}, {"x", "1"}}, &connector.And{Column: 1, Value: "$2"}, [][]string{{"8", "10"}, {"x", "1"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, run(t, tt.rows, tt.compute))
		})
	}
}

func TestConvertUnknown(t *testing.T) {
	_, err := newRunner(nil).Run(table.FromRows([][]string{{"1"}}), []connector.Compute{
		&connector.Convert{Column: 1, Conversion: "rot13"},
	})
	assert.ErrorIs(t, err, ErrUnknownConversion)
}

func TestJson2Csv(t *testing.T) {
	doc := `{"data":{"disks":[
		{"name":"sda","size":100,"health":{"status":"ok"}},
		{"name":"sdb","size":200}
	]}}`

	out, err := newRunner(nil).Run(table.SourceTable{RawData: doc}, []connector.Compute{
		&connector.Json2Csv{EntryKey: "/data/disks", Properties: "name;size;health/status"},
	})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"sda", "100", "ok"}, {"sdb", "200", ""}}, out.Table)

	out, err = newRunner(nil).Run(table.SourceTable{RawData: "not json"}, []connector.Compute{
		&connector.Json2Csv{EntryKey: "/", Properties: "name"},
	})
	require.NoError(t, err)
	assert.True(t, out.IsEmpty())
}

func TestXml2Csv(t *testing.T) {
	doc := `<root><disk id="1"><name>sda</name></disk><disk id="2"><name> sdb </name></disk></root>`

	out, err := newRunner(nil).Run(table.SourceTable{RawData: doc}, []connector.Compute{
		&connector.Xml2Csv{RecordTag: "/root/disk", Properties: "@id;name"},
	})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "sda"}, {"2", "sdb"}}, out.Table)
}

func TestAwk(t *testing.T) {
	awk := &connector.Awk{Script: `{ print "DISK;" $1 ";" $2 * 2 }`}
	awk.KeepOnlyRegExp = "^DISK;"
	awk.Separators = ";"
	awk.SelectColumns = "2,3"

	out, err := newRunner(nil).Run(table.FromRaw("sda 100\nsdb 200\n"), []connector.Compute{awk})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"sda", "200"}, {"sdb", "400"}}, out.Table)

	_, err = newRunner(nil).Run(table.FromRaw("x"), []connector.Compute{
		&connector.Awk{Script: `BEGIN { system("true") }`},
	})
	assert.Error(t, err)
}

func TestFormatDouble(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{502, "502.0"},
		{-3, "-3.0"},
		{0.5, "0.5"},
		{0.001, "0.001"},
		{0, "0.0"},
		{1e7, "1.0E7"},
		{12345678.9, "1.23456789E7"},
		{1.5e-4, "1.5E-4"},
		{math.NaN(), "NaN"},
		{math.Inf(1), "Infinity"},
		{math.Inf(-1), "-Infinity"},
	}

	for _, tt := range tests {
		if got := FormatDouble(tt.in); got != tt.want {
			t.Errorf("FormatDouble(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
