package table

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromCSV(t *testing.T) {
	rows := FromCSV("a;b;c;\r\n\nd;;f\n", ";")
	assert.Equal(t, [][]string{{"a", "b", "c"}, {"d", "", "f"}}, rows)
	assert.Nil(t, FromCSV("", ";"))
}

func TestToCSV(t *testing.T) {
	assert.Equal(t, "a;b\nc", ToCSV([][]string{{"a", "b"}, {"c"}}, ""))
	assert.Equal(t, "", ToCSV(nil, ";"))
}

func TestSourceTableCopy(t *testing.T) {
	orig := FromRows([][]string{{"1", "2"}, {"3"}})
	cp := orig.Copy()
	cp.Table[0][0] = "changed"

	assert.Equal(t, "1", orig.Table[0][0])
	assert.Equal(t, "1;2\n3", orig.RawData)
}

func TestSourceTableIndex(t *testing.T) {
	st := FromRows([][]string{{"Disk1", "a"}, {"disk1", "b"}, {"Disk2"}, {}})
	idx := st.Index(1, nil)

	assert.Equal(t, []int{0, 1}, idx["disk1"])
	assert.Equal(t, []int{2}, idx["disk2"])
	assert.Len(t, idx, 2)

	idx = st.Index(2, strings.ToUpper)
	assert.Equal(t, map[string][]int{"A": {0}, "B": {1}}, idx)
}

func TestFilterLines(t *testing.T) {
	lines := []string{"header", "disk;ok", "fan;failed", "disk;degraded", "footer"}

	tests := []struct {
		name           string
		removeHeader   int
		removeFooter   int
		excludeRegExp  string
		keepOnlyRegExp string
		want           []string
	}{
		{"no filters", 0, 0, "", "", lines},
		{"header and footer", 1, 1, "", "", []string{"disk;ok", "fan;failed", "disk;degraded"}},
		{"header larger than input", 10, 0, "", "", []string{}},
		{"exclude", 1, 1, "^fan", "", []string{"disk;ok", "disk;degraded"}},
		{"keep only", 1, 1, "", "^disk", []string{"disk;ok", "disk;degraded"}},
		{"both", 1, 1, "ok$", "^disk", []string{"disk;degraded"}},
		{"header and footer are positional", 1, 1, "", "header\\|footer", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FilterLines(lines, tt.removeHeader, tt.removeFooter, tt.excludeRegExp, tt.keepOnlyRegExp)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterLinesInvalidRegExp(t *testing.T) {
	_, err := FilterLines([]string{"a"}, 0, 0, "[", "")
	assert.Error(t, err)
}

func TestSelectColumns(t *testing.T) {
	lines := []string{"sda 100 ok", "sdb  200 failed", "sdc"}

	t.Run("empty separators is a no-op", func(t *testing.T) {
		got, err := SelectColumns(lines, "", "1,2")
		require.NoError(t, err)
		assert.Equal(t, lines, got)
	})

	t.Run("empty selection is a no-op", func(t *testing.T) {
		got, err := SelectColumns(lines, " ", "")
		require.NoError(t, err)
		assert.Equal(t, lines, got)
	})

	t.Run("reorders columns", func(t *testing.T) {
		got, err := SelectColumns(lines, " ", "3,1")
		require.NoError(t, err)
		assert.Equal(t, []string{"ok;sda", "failed;sdb", ";sdc"}, got)
	})

	t.Run("ranges", func(t *testing.T) {
		got, err := SelectColumns([]string{"a,b,c,d"}, ",", "2-4")
		require.NoError(t, err)
		assert.Equal(t, []string{"b;c;d"}, got)
	})

	t.Run("invalid list", func(t *testing.T) {
		_, err := SelectColumns(lines, " ", "x")
		assert.Error(t, err)
	})
}

func TestSplitAny(t *testing.T) {
	assert.Equal(t, []string{"a", "", "b"}, SplitAny("a,,b", ","))
	assert.Equal(t, []string{"a", "b", "c"}, SplitAny("a;b,c", ";,"))
	assert.Equal(t, []string{"a", "b"}, SplitAny("  a \t b ", " \t"))
	assert.Equal(t, []string{"abc"}, SplitAny("abc", ""))
}

func TestLineFilterApply(t *testing.T) {
	f := LineFilter{RemoveHeader: 1, KeepOnlyRegExp: "^/dev", Separators: " ", SelectColumns: "1,5"}
	out, err := f.Apply("Filesystem Size Used Avail Use%\n/dev/sda1 50G 20G 30G 40%\ntmpfs 1G 0 1G 0%\n")
	require.NoError(t, err)

	assert.Equal(t, "/dev/sda1;40%", out.RawData)
	assert.Equal(t, [][]string{{"/dev/sda1", "40%"}}, out.Table)
}
