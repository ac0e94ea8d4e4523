package winrm

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrSelectAll is returned for queries that do not name their columns.
	ErrSelectAll = errors.New("SELECT * queries are not supported, list the properties")

	selectPattern = regexp.MustCompile(`(?is)^\s*select\s+(.+?)\s+from\s+(\S+)`)
)

const defaultNamespace = `root\cimv2`

// queryProperties returns the property list of a WQL SELECT, in order.
func queryProperties(wql string) ([]string, error) {
	m := selectPattern.FindStringSubmatch(wql)
	if m == nil {
		return nil, fmt.Errorf("invalid WQL query %q", wql)
	}
	var props []string
	for _, p := range strings.Split(m[1], ",") {
		p = strings.TrimSpace(p)
		if p == "*" {
			return nil, ErrSelectAll
		}
		if p != "" {
			props = append(props, p)
		}
	}
	if len(props) == 0 {
		return nil, fmt.Errorf("invalid WQL query %q", wql)
	}
	return props, nil
}

// cimScript builds the PowerShell pipeline running a WQL query and
// serializing the selected properties as compressed JSON.
func cimScript(namespace, wql string, props []string) string {
	if namespace == "" {
		namespace = defaultNamespace
	}
	return fmt.Sprintf("Get-CimInstance -Namespace %s -Query %s | Select-Object %s | ConvertTo-Json -Compress -Depth 2",
		quote(namespace), quote(wql), strings.Join(props, ","))
}

// quote returns a single-quoted PowerShell literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// parseRows reads the ConvertTo-Json output: one object for a single
// instance, an array otherwise.
func parseRows(out string, props []string) ([][]string, error) {
	out = strings.TrimSpace(out)
	if out == "" {
		return nil, nil
	}
	if !gjson.Valid(out) {
		return nil, fmt.Errorf("unexpected WinRM query output: %.80s", out)
	}

	doc := gjson.Parse(out)
	var records []gjson.Result
	if doc.IsArray() {
		records = doc.Array()
	} else {
		records = []gjson.Result{doc}
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, recordRow(rec, props))
	}
	return rows, nil
}

// recordRow picks the properties of one instance. WMI property names are
// case-insensitive.
func recordRow(rec gjson.Result, props []string) []string {
	fields := make(map[string]gjson.Result)
	rec.ForEach(func(key, value gjson.Result) bool {
		fields[strings.ToLower(key.String())] = value
		return true
	})

	row := make([]string, len(props))
	for i, p := range props {
		row[i] = cellValue(fields[strings.ToLower(p)])
	}
	return row
}

func cellValue(v gjson.Result) string {
	switch {
	case !v.Exists(), v.Type == gjson.Null:
		return ""
	case v.IsArray():
		items := v.Array()
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = item.String()
		}
		return strings.Join(parts, "|")
	}
	return v.String()
}
