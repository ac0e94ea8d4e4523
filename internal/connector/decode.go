package connector

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Computes is a compute chain decoded from a list of type-tagged mappings.
type Computes []Compute

// UnmarshalYAML decodes each element according to its "type" key.
func (cs *Computes) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: computes must be a list", node.Line)
	}

	out := make(Computes, 0, len(node.Content))
	for _, n := range node.Content {
		c, err := decodeCompute(n)
		if err != nil {
			return err
		}
		out = append(out, c)
	}
	*cs = out
	return nil
}

// Sources is a source list decoded from type-tagged mappings.
type Sources []Source

// UnmarshalYAML decodes each element according to its "type" key.
func (ss *Sources) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: sources must be a list", node.Line)
	}

	out := make(Sources, 0, len(node.Content))
	for _, n := range node.Content {
		s, err := decodeSource(n)
		if err != nil {
			return err
		}
		out = append(out, s)
	}
	*ss = out
	return nil
}

// Criteria is a criteria list decoded from type-tagged mappings.
type Criteria []Criterion

// UnmarshalYAML decodes each element according to its "type" key.
func (cs *Criteria) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: criteria must be a list", node.Line)
	}

	out := make(Criteria, 0, len(node.Content))
	for _, n := range node.Content {
		c, err := decodeCriterion(n)
		if err != nil {
			return err
		}
		out = append(out, c)
	}
	*cs = out
	return nil
}

func typeTag(n *yaml.Node) (string, error) {
	if n.Kind != yaml.MappingNode {
		return "", fmt.Errorf("line %d: expected a mapping", n.Line)
	}
	var tag struct {
		Type string `yaml:"type"`
	}
	if err := n.Decode(&tag); err != nil {
		return "", fmt.Errorf("line %d: %w", n.Line, err)
	}
	if tag.Type == "" {
		return "", fmt.Errorf("line %d: missing type", n.Line)
	}
	return strings.ToLower(tag.Type), nil
}

func decodeCompute(n *yaml.Node) (Compute, error) {
	kind, err := typeTag(n)
	if err != nil {
		return nil, err
	}

	var c Compute
	switch kind {
	case "add":
		c = &Add{}
	case "subtract":
		c = &Subtract{}
	case "multiply":
		c = &Multiply{}
	case "divide":
		c = &Divide{}
	case "leftconcat", "prepend":
		c = &LeftConcat{}
	case "rightconcat", "append":
		c = &RightConcat{}
	case "translate":
		c = &Translate{}
	case "arraytranslate":
		c = &ArrayTranslate{}
	case "perbittranslation":
		c = &PerBitTranslation{}
	case "keeponlymatchinglines":
		c = &KeepOnlyMatchingLines{}
	case "excludematchinglines":
		c = &ExcludeMatchingLines{}
	case "duplicatecolumn":
		c = &DuplicateColumn{}
	case "extract":
		c = &Extract{}
	case "json2csv":
		c = &Json2Csv{}
	case "xml2csv":
		c = &Xml2Csv{}
	case "awk":
		c = &Awk{}
	case "replace":
		c = &Replace{}
	case "substring":
		c = &Substring{}
	case "keepcolumns":
		c = &KeepColumns{}
	case "convert":
		c = &Convert{}
	case "and":
		c = &And{}
	default:
		return nil, fmt.Errorf("line %d: unknown compute type %q", n.Line, kind)
	}

	if err := n.Decode(c); err != nil {
		return nil, fmt.Errorf("line %d: %s compute: %w", n.Line, kind, err)
	}
	return c, nil
}

func decodeSource(n *yaml.Node) (Source, error) {
	kind, err := typeTag(n)
	if err != nil {
		return nil, err
	}

	var s Source
	switch kind {
	case "http":
		s = &HTTPSource{}
	case "snmpget":
		s = &SNMPGetSource{}
	case "snmptable":
		s = &SNMPTableSource{}
	case "wmi":
		s = &WMISource{}
	case "wbem":
		s = &WBEMSource{}
	case "oscommand":
		s = &OSCommandSource{}
	case "commandline":
		s = &CommandLineSource{}
	case "ipmi":
		s = &IPMISource{}
	case "static":
		s = &StaticSource{}
	case "copy":
		s = &CopySource{}
	case "tablejoin":
		s = &TableJoinSource{}
	case "tableunion":
		s = &TableUnionSource{}
	default:
		return nil, fmt.Errorf("line %d: unknown source type %q", n.Line, kind)
	}

	if err := n.Decode(s); err != nil {
		return nil, fmt.Errorf("line %d: %s source: %w", n.Line, kind, err)
	}
	return s, nil
}

func decodeCriterion(n *yaml.Node) (Criterion, error) {
	kind, err := typeTag(n)
	if err != nil {
		return nil, err
	}

	var c Criterion
	switch kind {
	case "snmpget":
		c = &SNMPGetCriterion{}
	case "snmpgetnext":
		c = &SNMPGetNextCriterion{}
	case "wmi":
		c = &WMICriterion{}
	case "wbem":
		c = &WBEMCriterion{}
	case "commandline":
		c = &CommandLineCriterion{}
	case "oscommand":
		c = &OSCommandCriterion{}
	case "process":
		c = &ProcessCriterion{}
	case "ipmi":
		c = &IPMICriterion{}
	case "http":
		c = &HTTPCriterion{}
	case "devicetype":
		c = &DeviceTypeCriterion{}
	case "productrequirements":
		c = &ProductRequirementsCriterion{}
	default:
		return nil, fmt.Errorf("line %d: unknown criterion type %q", n.Line, kind)
	}

	if err := n.Decode(c); err != nil {
		return nil, fmt.Errorf("line %d: %s criterion: %w", n.Line, kind, err)
	}
	return c, nil
}

// Parse decodes one connector document and normalizes it.
func Parse(data []byte) (*Connector, error) {
	var c Connector
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse connector: %w", err)
	}

	c.normalize()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// normalize assigns default keys and indexes to sources and points mappings
// at the last source of their job when they name none.
func (c *Connector) normalize() {
	for _, m := range c.Monitors {
		if m == nil {
			continue
		}
		for name, job := range map[string]*Job{"discovery": m.Discovery, "collect": m.Collect} {
			if job == nil {
				continue
			}
			for i, s := range job.Sources {
				if s == nil {
					continue
				}
				base := s.Base()
				base.Index = i
				if base.Key == "" {
					base.Key = DefaultSourceKey(m.Type, name, i)
				}
			}
			if job.Mapping.Source == "" && len(job.Sources) > 0 {
				if last := job.Sources[len(job.Sources)-1]; last != nil {
					job.Mapping.Source = last.Base().Key
				}
			}
		}
	}
}

// Validate checks the structural invariants the engine relies on.
func (c *Connector) Validate() error {
	var errs []error

	if strings.TrimSpace(c.ID) == "" {
		errs = append(errs, errors.New("connector id is required"))
	}

	seen := make(map[string]bool)
	for i, m := range c.Monitors {
		if m == nil || m.Type == "" {
			errs = append(errs, fmt.Errorf("monitors[%d]: type is required", i))
			continue
		}
		if seen[m.Type] {
			errs = append(errs, fmt.Errorf("monitors[%d]: duplicate monitor type %q", i, m.Type))
		}
		seen[m.Type] = true

		if m.Discovery != nil {
			if _, ok := m.Discovery.Mapping.Attributes["id"]; !ok {
				errs = append(errs, fmt.Errorf("monitor %q: discovery mapping requires an id attribute", m.Type))
			}
		}
		if m.Collect != nil && !m.Collect.IsMonoInstance() {
			if _, ok := m.Collect.Mapping.Attributes["id"]; !ok {
				errs = append(errs, fmt.Errorf("monitor %q: multi-instance collect mapping requires an id attribute", m.Type))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid connector %q: %w", c.ID, errors.Join(errs...))
	}
	return nil
}
