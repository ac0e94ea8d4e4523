// Package prom renders host telemetry in the Prometheus text exposition
// format.
package prom

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/nmslite/hwmon/internal/exporter"
)

// ContentType is the media type of the exposition.
var ContentType = string(expfmt.NewFormat(expfmt.TypeTextPlain))

// Families converts the points of a source into metric families, one per
// metric name, sorted by name.
func Families(src exporter.Source) []*dto.MetricFamily {
	byName := make(map[string]*dto.MetricFamily)
	for _, p := range exporter.Collect(src) {
		name := SanitizeName(p.Name)
		mf, ok := byName[name]
		if !ok {
			mf = &dto.MetricFamily{
				Name: stringPtr(name),
				Help: stringPtr(fmt.Sprintf("Hardware metric %s", p.Name)),
				Type: dto.MetricType_GAUGE.Enum(),
			}
			byName[name] = mf
		}

		value := p.Value
		ts := p.Time.UnixMilli()
		mf.Metric = append(mf.Metric, &dto.Metric{
			Label:       labels(p.Attributes),
			Gauge:       &dto.Gauge{Value: &value},
			TimestampMs: &ts,
		})
	}

	out := make([]*dto.MetricFamily, 0, len(byName))
	for _, mf := range byName {
		out = append(out, mf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out
}

// Write renders the exposition of a source.
func Write(w io.Writer, src exporter.Source) error {
	for _, mf := range Families(src) {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// Handler serves the exposition of a source.
func Handler(src exporter.Source) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", ContentType)
		if err := Write(w, src); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

// SanitizeName maps a name onto [a-zA-Z_:][a-zA-Z0-9_:]*, replacing every
// other character with an underscore. A leading digit is kept behind an
// underscore prefix.
func SanitizeName(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == ':':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func labels(attrs map[string]string) []*dto.LabelPair {
	pairs := make([]*dto.LabelPair, 0, len(attrs))
	for k, v := range attrs {
		name := strings.ReplaceAll(SanitizeName(k), ":", "_")
		pairs = append(pairs, &dto.LabelPair{Name: stringPtr(name), Value: stringPtr(v)})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].GetName() < pairs[j].GetName() })
	return pairs
}

func stringPtr(s string) *string { return &s }
