package source

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmslite/hwmon/internal/connector"
	"github.com/nmslite/hwmon/internal/extension"
	"github.com/nmslite/hwmon/internal/extension/exttest"
	"github.com/nmslite/hwmon/internal/table"
	"github.com/nmslite/hwmon/internal/telemetry"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newResolver(exts ...extension.Extension) *Resolver {
	return NewResolver(extension.NewRegistry(discard(), exts...), time.Second, discard())
}

func newContext() *Context {
	host := telemetry.NewHostConfiguration("h1", "srv01", telemetry.HostTypeLinux)
	conn := &connector.Connector{
		ID:                "LinuxDisk",
		TranslationTables: map[string]connector.TranslationTable{"status": {"0": "ok", "default": "failed"}},
	}
	return NewContext(host, conn, "cycle-1")
}

func TestResolveFiltersThenComputes(t *testing.T) {
	fake := exttest.New()
	fake.FetchFunc = func(context.Context, connector.Source) (table.SourceTable, error) {
		return table.FromRaw("NAME SIZE\nsda 100\nsdb 200\nloop0 0\n"), nil
	}
	r := newResolver(fake)

	src := &connector.CommandLineSource{
		SourceBase: connector.SourceBase{
			Key: "disks",
			Computes: connector.Computes{
				&connector.Add{Column: 2, Value: "1"},
			},
		},
		LineFilter: table.LineFilter{
			RemoveHeader:  1,
			ExcludeRegExp: "^loop",
			Separators:    " ",
			SelectColumns: "1,2",
		},
	}

	got := r.Resolve(context.Background(), newContext(), src)
	assert.Equal(t, [][]string{{"sda", "101.0"}, {"sdb", "201.0"}}, got.Table)
	assert.Equal(t, []string{"disks"}, fake.Fetched())
}

func TestResolveFetchFailures(t *testing.T) {
	ctx := context.Background()

	failing := exttest.New()
	failing.FetchFunc = func(context.Context, connector.Source) (table.SourceTable, error) {
		return table.Empty(), errors.New("connection refused")
	}
	got := newResolver(failing).Resolve(ctx, newContext(), &connector.SNMPGetSource{OID: "1.3.6.1"})
	assert.True(t, got.IsEmpty())

	slow := exttest.New()
	slow.Delay = time.Second
	r := NewResolver(extension.NewRegistry(discard(), slow), 20*time.Millisecond, discard())
	start := time.Now()
	got = r.Resolve(ctx, newContext(), &connector.SNMPGetSource{OID: "1.3.6.1"})
	assert.True(t, got.IsEmpty())
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	got = newResolver().Resolve(ctx, newContext(), &connector.SNMPGetSource{OID: "1.3.6.1"})
	assert.True(t, got.IsEmpty())
}

func TestResolveUnknownTranslationTableKeepsPartialTable(t *testing.T) {
	r := newResolver()
	src := &connector.StaticSource{
		SourceBase: connector.SourceBase{
			Key: "s",
			Computes: connector.Computes{
				&connector.Translate{Column: 1, TranslationTable: "status"},
				&connector.Translate{Column: 1, TranslationTable: "missing"},
				&connector.DuplicateColumn{Column: 1},
			},
		},
		Value: "0\n7",
	}

	got := r.Resolve(context.Background(), newContext(), src)
	assert.Equal(t, [][]string{{"ok"}, {"failed"}}, got.Table)
}

func TestResolveDoesNotModifyTemplate(t *testing.T) {
	r := newResolver()
	src := &connector.StaticSource{
		SourceBase: connector.SourceBase{Key: "s", Computes: connector.Computes{&connector.RightConcat{Column: 1, Value: "x"}}},
		Value:      "a;b",
	}
	first := r.Resolve(context.Background(), newContext(), src)
	second := r.Resolve(context.Background(), newContext(), src)
	assert.Equal(t, first, second)
	assert.Equal(t, "a;b", src.Value)
}

func TestInternalSources(t *testing.T) {
	r := newResolver()
	rc := newContext()
	ctx := context.Background()

	rc.Store("disk.discovery.source(1)", table.FromRows([][]string{{"1", "sda"}, {"2", "sdb"}, {"3", "sdc"}}))
	rc.Store("disk.discovery.source(2)", table.FromRows([][]string{{"1", "OK"}, {"3", "FAILED"}}))

	t.Run("copy", func(t *testing.T) {
		got := r.Resolve(ctx, rc, &connector.CopySource{From: "%disk.discovery.source(1)%"})
		assert.Len(t, got.Table, 3)

		got.Table[0][1] = "changed"
		orig, _ := rc.Lookup("disk.discovery.source(1)")
		assert.Equal(t, "sda", orig.Table[0][1])
	})

	t.Run("join with default line", func(t *testing.T) {
		got := r.Resolve(ctx, rc, &connector.TableJoinSource{
			LeftTable:        "${source::disk.discovery.source(1)}",
			RightTable:       "%disk.discovery.source(2)%",
			LeftKeyColumn:    1,
			RightKeyColumn:   1,
			DefaultRightLine: ";UNKNOWN;",
		})
		assert.Equal(t, [][]string{
			{"1", "sda", "1", "OK"},
			{"2", "sdb", "", "UNKNOWN"},
			{"3", "sdc", "3", "FAILED"},
		}, got.Table)
	})

	t.Run("join with missing right table", func(t *testing.T) {
		got := r.Resolve(ctx, rc, &connector.TableJoinSource{
			LeftTable: "disk.discovery.source(1)", RightTable: "nowhere", LeftKeyColumn: 1, RightKeyColumn: 1,
		})
		assert.True(t, got.IsEmpty())
	})

	t.Run("unknown reference", func(t *testing.T) {
		got := r.Resolve(ctx, rc, &connector.TableJoinSource{LeftTable: "nowhere", RightTable: "disk.discovery.source(2)"})
		assert.True(t, got.IsEmpty())
		got = r.Resolve(ctx, rc, &connector.CopySource{From: "nowhere"})
		assert.True(t, got.IsEmpty())
	})

	t.Run("union", func(t *testing.T) {
		got := r.Resolve(ctx, rc, &connector.TableUnionSource{Tables: []string{
			"disk.discovery.source(2)", "nowhere", "disk.discovery.source(2)",
		}})
		assert.Len(t, got.Table, 4)
	})
}

func TestJoin(t *testing.T) {
	left := [][]string{{"A", "l1"}, {"b", "l2"}, {}}
	right := [][]string{{"a", "r1"}, {"A", "r2"}, {"c", "r3"}}

	assert.Equal(t, [][]string{
		{"A", "l1", "a", "r1"},
		{"A", "l1", "A", "r2"},
	}, Join(left, right, 1, 1, "", ""))

	wbemLeft := [][]string{{`//srv/root/cimv2:CIM_Fan.DeviceID="1"`, "fan"}}
	wbemRight := [][]string{{`cim_fan.deviceid="1"`, "3000"}}
	assert.Equal(t, [][]string{{`//srv/root/cimv2:CIM_Fan.DeviceID="1"`, "fan", `cim_fan.deviceid="1"`, "3000"}},
		Join(wbemLeft, wbemRight, 1, 1, "", connector.KeyTypeWbem))
}

func TestRunJob(t *testing.T) {
	fake := exttest.New()
	fake.FetchFunc = func(_ context.Context, s connector.Source) (table.SourceTable, error) {
		return table.FromRaw(s.(*connector.CommandLineSource).CommandLine), nil
	}
	r := newResolver(fake)
	rc := newContext()

	job := (&connector.Job{
		Sources: connector.Sources{
			&connector.CommandLineSource{SourceBase: connector.SourceBase{Key: "disk.collect.source(1)"}, CommandLine: "%{HOSTNAME};%{MONITOR_ID}"},
			&connector.CopySource{SourceBase: connector.SourceBase{Key: "disk.collect.source(2)"}, From: "disk.collect.source(1)"},
		},
		Mapping: connector.Mapping{Source: "%disk.collect.source(2)%"},
	}).Copy()

	mon := &telemetry.Monitor{Attributes: map[string]string{"id": "sda"}}
	job.Update(Rewriter(rc.Host, mon))

	got := r.RunJob(context.Background(), rc, job)
	assert.Equal(t, [][]string{{"srv01", "sda"}}, got.Table)
	_, ok := rc.Lookup("disk.collect.source(1)")
	require.True(t, ok)

	job.Mapping.Source = "missing"
	assert.True(t, r.RunJob(context.Background(), rc, job).IsEmpty())
}
