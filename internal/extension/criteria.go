package extension

import (
	"fmt"
	"strings"

	"github.com/nmslite/hwmon/internal/connector"
	"github.com/nmslite/hwmon/internal/regex"
	"github.com/nmslite/hwmon/internal/table"
)

// ExpectedResult turns a probe output into a criterion result. An empty
// expected pattern only requires the probe to have run.
func ExpectedResult(expected, output, errorMessage string) connector.CriterionResult {
	if expected == "" {
		return connector.CriterionResult{
			Success: true,
			Message: "probe succeeded",
			Result:  output,
		}
	}

	matched, err := regex.FindCaseInsensitive(expected, output)
	if err != nil {
		return connector.CriterionResult{
			Message: fmt.Sprintf("invalid expected result: %v", err),
			Result:  output,
		}
	}
	if !matched {
		msg := errorMessage
		if msg == "" {
			msg = fmt.Sprintf("result does not match %q", expected)
		}
		return connector.CriterionResult{Message: msg, Result: output}
	}

	return connector.CriterionResult{
		Success: true,
		Message: fmt.Sprintf("result matches %q", expected),
		Result:  output,
	}
}

// ProcessResult checks a process listing, one command line per line, for a
// process matching pattern.
func ProcessResult(pattern, listing string) connector.CriterionResult {
	for _, line := range table.SplitLines(listing) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		matched, err := regex.FindCaseInsensitive(pattern, line)
		if err != nil {
			return connector.CriterionResult{Message: fmt.Sprintf("invalid process pattern: %v", err)}
		}
		if matched {
			return connector.CriterionResult{
				Success: true,
				Message: "matching process found",
				Result:  line,
			}
		}
	}
	return connector.CriterionResult{Message: fmt.Sprintf("no process matches %q", pattern)}
}
