// Package connector is the typed object model executed by the engine:
// connectors, their detection criteria, monitor jobs, sources and computes.
//
// Connectors are immutable templates shared by every host. Anything that
// needs per-host or per-cycle values works on a Copy.
package connector

import (
	"fmt"
	"strings"
)

// Connector describes how to detect, discover and collect one class of
// devices.
type Connector struct {
	ID          string   `yaml:"id" json:"id"`
	DisplayName string   `yaml:"displayName" json:"display_name"`
	Information string   `yaml:"information" json:"information,omitempty"`
	AppliesTo   []string `yaml:"appliesTo" json:"applies_to,omitempty"`
	// Supersedes lists connectors made redundant when this one matches.
	Supersedes []string `yaml:"supersedes" json:"supersedes,omitempty"`
	// OnLastResort names a monitor type; the connector is only kept when no
	// other matching connector discovers that type.
	OnLastResort      string                      `yaml:"onLastResort" json:"on_last_resort,omitempty"`
	Criteria          Criteria                    `yaml:"criteria" json:"-"`
	Monitors          []*MonitorJob               `yaml:"monitors" json:"-"`
	TranslationTables map[string]TranslationTable `yaml:"translations" json:"-"`
	Metrics           map[string]MetricDefinition `yaml:"metrics" json:"-"`

	// SourceFile is the file the connector was loaded from.
	SourceFile string `yaml:"-" json:"source_file,omitempty"`
}

// Monitor returns the job for a monitor type.
func (c *Connector) Monitor(monitorType string) (*MonitorJob, bool) {
	for _, m := range c.Monitors {
		if m.Type == monitorType {
			return m, true
		}
	}
	return nil, false
}

// Translation returns a translation table by name. Names are case-insensitive.
func (c *Connector) Translation(name string) (TranslationTable, bool) {
	if t, ok := c.TranslationTables[name]; ok {
		return t, true
	}
	for k, t := range c.TranslationTables {
		if strings.EqualFold(k, name) {
			return t, true
		}
	}
	return nil, false
}

// AppliesToType reports whether the connector targets a host type. An empty
// AppliesTo matches every host.
func (c *Connector) AppliesToType(hostType string) bool {
	if len(c.AppliesTo) == 0 {
		return true
	}
	for _, t := range c.AppliesTo {
		if strings.EqualFold(t, hostType) {
			return true
		}
	}
	return false
}

// Collect types.
const (
	MultiInstance = "multiInstance"
	MonoInstance  = "monoInstance"
)

// MonitorJob holds the discovery and collect jobs of one monitor type.
type MonitorJob struct {
	Type       string      `yaml:"type" json:"type"`
	Discovery  *Job        `yaml:"discovery" json:"discovery,omitempty"`
	Collect    *Job        `yaml:"collect" json:"collect,omitempty"`
	AlertRules []AlertRule `yaml:"alertRules" json:"alert_rules,omitempty"`
}

// AlertRule is a threshold attached to the monitors of a type. The agent only
// carries rules to the exporter; it does not evaluate them.
type AlertRule struct {
	Metric    string `yaml:"metric" json:"metric"`
	Condition string `yaml:"condition" json:"condition"`
	Severity  string `yaml:"severity" json:"severity"`
}

// Job is an ordered list of sources plus the mapping of the final table.
type Job struct {
	// Type is MultiInstance or MonoInstance; only meaningful for collect jobs.
	Type    string  `yaml:"type" json:"type,omitempty"`
	Sources Sources `yaml:"sources" json:"-"`
	Mapping Mapping `yaml:"mapping" json:"mapping"`
}

// IsMonoInstance reports whether the job runs once per existing monitor.
func (j *Job) IsMonoInstance() bool {
	return strings.EqualFold(j.Type, MonoInstance)
}

// Copy returns a deep copy of the job.
func (j *Job) Copy() *Job {
	if j == nil {
		return nil
	}
	return &Job{
		Type:    j.Type,
		Sources: CopySources(j.Sources),
		Mapping: j.Mapping.Copy(),
	}
}

// Update rewrites every string of the job's sources and mapping.
func (j *Job) Update(rewrite func(string) string) {
	for _, s := range j.Sources {
		if s != nil {
			s.Update(rewrite)
		}
	}
	j.Mapping.Update(rewrite)
}

// Mapping maps the columns of a source table onto monitor attributes and
// metrics. Values are "$N" column references or literal constants.
type Mapping struct {
	Source     string            `yaml:"source" json:"source"`
	Attributes map[string]string `yaml:"attributes" json:"attributes,omitempty"`
	Resource   map[string]string `yaml:"resource" json:"resource,omitempty"`
	Metrics    map[string]string `yaml:"metrics" json:"metrics,omitempty"`
}

// Copy returns a deep copy of the mapping.
func (m Mapping) Copy() Mapping {
	return Mapping{
		Source:     m.Source,
		Attributes: copyStringMap(m.Attributes),
		Resource:   copyStringMap(m.Resource),
		Metrics:    copyStringMap(m.Metrics),
	}
}

// Update rewrites the mapping values.
func (m *Mapping) Update(rewrite func(string) string) {
	m.Source = rewrite(m.Source)
	for _, values := range []map[string]string{m.Attributes, m.Resource, m.Metrics} {
		for k, v := range values {
			values[k] = rewrite(v)
		}
	}
}

// Metric kinds.
const (
	Gauge         = "gauge"
	Counter       = "counter"
	UpDownCounter = "updowncounter"
)

// MetricDefinition declares a metric the connector reports.
type MetricDefinition struct {
	Unit        string `yaml:"unit" json:"unit,omitempty"`
	Description string `yaml:"description" json:"description,omitempty"`
	Kind        string `yaml:"kind" json:"kind,omitempty"`
	// States turns the metric into a state set: a reported value equal to
	// one of the states yields one sample per state, 1 for the match and 0
	// for the others.
	States []string `yaml:"states" json:"states,omitempty"`
}

// IsCounter reports whether the metric is a monotonic counter.
func (d MetricDefinition) IsCounter() bool {
	return strings.EqualFold(d.Kind, Counter)
}

// TranslationTable maps raw values to translated values. Lookups are
// case-insensitive; the "default" entry answers unknown keys.
type TranslationTable map[string]string

// DefaultKey is the translation entry used when a key is missing.
const DefaultKey = "default"

// Lookup returns the translation of key, falling back on the default entry.
func (t TranslationTable) Lookup(key string) (string, bool) {
	if v, ok := t.lookupExact(key); ok {
		return v, true
	}
	return t.lookupExact(DefaultKey)
}

// LookupStrict returns the translation of key without the default fallback.
func (t TranslationTable) LookupStrict(key string) (string, bool) {
	return t.lookupExact(key)
}

func (t TranslationTable) lookupExact(key string) (string, bool) {
	if v, ok := t[key]; ok {
		return v, true
	}
	for k, v := range t {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// NormalizeReference turns any accepted spelling of a source reference into
// the key used to store resolved tables: lower case, without the "%...%" or
// "${source::...}" wrapper, and with the "monitors." prefix and ".sources."
// segment folded away.
func NormalizeReference(ref string) string {
	ref = strings.TrimSpace(ref)
	switch {
	case strings.HasPrefix(ref, "${source::") && strings.HasSuffix(ref, "}"):
		ref = ref[len("${source::") : len(ref)-1]
	case len(ref) > 2 && strings.HasPrefix(ref, "%") && strings.HasSuffix(ref, "%"):
		ref = ref[1 : len(ref)-1]
	}
	ref = strings.ToLower(ref)
	ref = strings.TrimPrefix(ref, "monitors.")
	ref = strings.Replace(ref, ".sources.", ".", 1)
	return ref
}

// DefaultSourceKey is the key given to a source declared without one.
func DefaultSourceKey(monitorType, job string, index int) string {
	return strings.ToLower(fmt.Sprintf("%s.%s.source(%d)", monitorType, job, index+1))
}
