package compute

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/benhoyt/goawk/interp"
	"github.com/benhoyt/goawk/parser"
	"github.com/tidwall/gjson"

	"github.com/nmslite/hwmon/internal/connector"
	"github.com/nmslite/hwmon/internal/table"
)

// VisitJson2Csv turns the records found at EntryKey into rows holding the
// listed properties. EntryKey and properties are "/" separated paths; the
// property list is split on Separator (";" by default). A record path that
// points at an object yields a single row.
func (p *processor) VisitJson2Csv(c *connector.Json2Csv) error {
	text := p.table.Text()
	if !gjson.Valid(text) {
		p.logger.Debug("json2Csv input is not valid JSON", "length", len(text))
		p.table = table.Empty()
		return nil
	}

	sep := c.Separator
	if sep == "" {
		sep = table.Separator
	}
	properties := splitProperties(c.Properties, sep)

	var entries gjson.Result
	if path := jsonPath(c.EntryKey); path == "" {
		entries = gjson.Parse(text)
	} else {
		entries = gjson.Get(text, path)
	}

	var records []gjson.Result
	switch {
	case entries.IsArray():
		records = entries.Array()
	case entries.Exists():
		records = []gjson.Result{entries}
	}

	rows := make([][]string, 0, len(records))
	for _, record := range records {
		row := make([]string, len(properties))
		for i, prop := range properties {
			if path := jsonPath(prop); path == "" {
				row[i] = record.String()
			} else {
				row[i] = record.Get(path).String()
			}
		}
		rows = append(rows, row)
	}
	p.setRows(rows)
	return nil
}

// jsonPath converts "/a/b" into the gjson path "a.b", escaping characters
// gjson gives a meaning to.
func jsonPath(path string) string {
	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s == "" {
			continue
		}
		segments = append(segments, gjsonEscaper.Replace(s))
	}
	return strings.Join(segments, ".")
}

var gjsonEscaper = strings.NewReplacer(
	`\`, `\\`,
	".", `\.`,
	"*", `\*`,
	"?", `\?`,
	"|", `\|`,
	"#", `\#`,
	"@", `\@`,
)

// VisitXml2Csv turns the elements selected by the RecordTag XPath into rows.
// Properties are XPath expressions relative to each record ("name",
// "@id", "status/health"); the inner text of the first match is used.
func (p *processor) VisitXml2Csv(c *connector.Xml2Csv) error {
	doc, err := xmlquery.Parse(strings.NewReader(p.table.Text()))
	if err != nil {
		p.logger.Debug("xml2Csv input is not valid XML", "error", err)
		p.table = table.Empty()
		return nil
	}

	records, err := xmlquery.QueryAll(doc, c.RecordTag)
	if err != nil {
		return fmt.Errorf("invalid record tag %q: %w", c.RecordTag, err)
	}

	properties := splitProperties(c.Properties, table.Separator)
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		row := make([]string, len(properties))
		for i, prop := range properties {
			node, err := xmlquery.Query(record, prop)
			if err != nil {
				return fmt.Errorf("invalid property %q: %w", prop, err)
			}
			if node != nil {
				row[i] = strings.TrimSpace(node.InnerText())
			}
		}
		rows = append(rows, row)
	}
	p.setRows(rows)
	return nil
}

func splitProperties(list, sep string) []string {
	var out []string
	for _, prop := range strings.Split(list, sep) {
		if prop = strings.TrimSpace(prop); prop != "" {
			out = append(out, prop)
		}
	}
	return out
}

// VisitAwk feeds the table text to the script and rebuilds the table from
// its output through the compute's own line filters. The script cannot run
// commands or touch files.
func (p *processor) VisitAwk(c *connector.Awk) error {
	prog, err := parser.ParseProgram([]byte(c.Script), nil)
	if err != nil {
		return fmt.Errorf("invalid awk script: %w", err)
	}

	var out bytes.Buffer
	config := &interp.Config{
		Stdin:        strings.NewReader(p.table.Text()),
		Output:       &out,
		Environ:      []string{},
		NoExec:       true,
		NoFileWrites: true,
		NoFileReads:  true,
	}
	if _, err := interp.ExecProgram(prog, config); err != nil {
		return fmt.Errorf("awk script failed: %w", err)
	}

	filtered, err := c.LineFilter.Apply(out.String())
	if err != nil {
		return err
	}
	p.table = filtered
	return nil
}
