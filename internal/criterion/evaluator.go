// Package criterion evaluates the detection criteria of connectors against a
// host.
package criterion

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nmslite/hwmon/internal/connector"
	"github.com/nmslite/hwmon/internal/extension"
	"github.com/nmslite/hwmon/internal/source"
	"github.com/nmslite/hwmon/internal/telemetry"
)

// Evaluator runs criteria. Device type and product requirement criteria are
// answered locally; every other kind goes to the extension handling it.
type Evaluator struct {
	extensions    *extension.Registry
	timeout       time.Duration
	engineVersion string
	logger        *slog.Logger
}

// NewEvaluator creates an evaluator. timeout bounds each remote test and
// engineVersion answers product requirement criteria.
func NewEvaluator(extensions *extension.Registry, timeout time.Duration, engineVersion string, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		extensions:    extensions,
		timeout:       timeout,
		engineVersion: engineVersion,
		logger:        logger.With("component", "criterion_evaluator"),
	}
}

// Evaluate tests criteria in declared order and reports whether all passed,
// with the result of every criterion that ran. Evaluation stops at the first
// failure unless diagnostic is set, in which case every criterion runs.
func (e *Evaluator) Evaluate(ctx context.Context, host *telemetry.HostConfiguration, criteria []connector.Criterion, diagnostic bool) (bool, []connector.CriterionResult) {
	rewrite := source.Rewriter(host, nil)
	passed := true
	results := make([]connector.CriterionResult, 0, len(criteria))

	for _, c := range criteria {
		if c == nil {
			continue
		}
		if ctx.Err() != nil {
			results = append(results, connector.CriterionResult{Message: "evaluation cancelled"})
			return false, results
		}

		cp := c.Copy()
		cp.Update(rewrite)

		res := e.evaluateOne(ctx, host, cp)
		results = append(results, res)
		if !res.Success {
			passed = false
			if !diagnostic {
				break
			}
		}
	}
	return passed, results
}

// evaluateOne runs one criterion under the host's probe lock.
func (e *Evaluator) evaluateOne(ctx context.Context, host *telemetry.HostConfiguration, c connector.Criterion) connector.CriterionResult {
	unlock := host.Serialize(c.ForceSerialization())
	defer unlock()

	res, err := c.Accept(&visitor{ctx: ctx, host: host, e: e})
	if err != nil {
		e.logger.Warn("criterion evaluation failed",
			"host_id", host.ID,
			"type", c.Type(),
			"error", err,
		)
		return connector.CriterionResult{Message: err.Error()}
	}
	return res
}

func (e *Evaluator) remote(ctx context.Context, host *telemetry.HostConfiguration, c connector.Criterion) (connector.CriterionResult, error) {
	ext, err := e.extensions.ForCriterion(host, c)
	if err != nil {
		return connector.CriterionResult{}, err
	}

	timeout := e.timeout
	if tb, ok := c.(connector.TimeoutBound); ok && tb.FetchTimeout() > 0 {
		timeout = tb.FetchTimeout()
	}
	testCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := ext.TestCriterion(testCtx, host, c)
	if err != nil {
		return connector.CriterionResult{}, fmt.Errorf("%s: %w", ext.Name(), err)
	}
	return res, nil
}

// visitor dispatches one criterion.
type visitor struct {
	ctx  context.Context
	host *telemetry.HostConfiguration
	e    *Evaluator
}

var _ connector.CriterionVisitor = (*visitor)(nil)

func (v *visitor) VisitSNMPGet(c *connector.SNMPGetCriterion) (connector.CriterionResult, error) {
	return v.e.remote(v.ctx, v.host, c)
}

func (v *visitor) VisitSNMPGetNext(c *connector.SNMPGetNextCriterion) (connector.CriterionResult, error) {
	return v.e.remote(v.ctx, v.host, c)
}

func (v *visitor) VisitWMI(c *connector.WMICriterion) (connector.CriterionResult, error) {
	return v.e.remote(v.ctx, v.host, c)
}

func (v *visitor) VisitWBEM(c *connector.WBEMCriterion) (connector.CriterionResult, error) {
	return v.e.remote(v.ctx, v.host, c)
}

func (v *visitor) VisitCommandLine(c *connector.CommandLineCriterion) (connector.CriterionResult, error) {
	return v.e.remote(v.ctx, v.host, c)
}

func (v *visitor) VisitOSCommand(c *connector.OSCommandCriterion) (connector.CriterionResult, error) {
	return v.e.remote(v.ctx, v.host, c)
}

func (v *visitor) VisitProcess(c *connector.ProcessCriterion) (connector.CriterionResult, error) {
	return v.e.remote(v.ctx, v.host, c)
}

func (v *visitor) VisitIPMI(c *connector.IPMICriterion) (connector.CriterionResult, error) {
	return v.e.remote(v.ctx, v.host, c)
}

func (v *visitor) VisitHTTP(c *connector.HTTPCriterion) (connector.CriterionResult, error) {
	return v.e.remote(v.ctx, v.host, c)
}

func (v *visitor) VisitDeviceType(c *connector.DeviceTypeCriterion) (connector.CriterionResult, error) {
	hostType := v.host.Type
	if len(c.Keep) > 0 && !containsFold(c.Keep, hostType) {
		return connector.CriterionResult{Message: fmt.Sprintf("host type %s is not in %v", hostType, c.Keep), Result: hostType}, nil
	}
	if containsFold(c.Exclude, hostType) {
		return connector.CriterionResult{Message: fmt.Sprintf("host type %s is excluded", hostType), Result: hostType}, nil
	}
	return connector.CriterionResult{Success: true, Message: "host type matches", Result: hostType}, nil
}

func (v *visitor) VisitProductRequirements(c *connector.ProductRequirementsCriterion) (connector.CriterionResult, error) {
	if c.EngineVersion == "" {
		return connector.CriterionResult{Success: true, Message: "no engine version required"}, nil
	}
	cmp, err := CompareVersions(v.e.engineVersion, c.EngineVersion)
	if err != nil {
		return connector.CriterionResult{}, err
	}
	if cmp < 0 {
		return connector.CriterionResult{
			Message: fmt.Sprintf("engine version %s is older than required %s", v.e.engineVersion, c.EngineVersion),
			Result:  v.e.engineVersion,
		}, nil
	}
	return connector.CriterionResult{Success: true, Message: "engine version satisfied", Result: v.e.engineVersion}, nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// CompareVersions compares dotted numeric versions such as "1.2.10". Missing
// components count as zero and a leading "v" is ignored.
func CompareVersions(a, b string) (int, error) {
	pa, err := versionParts(a)
	if err != nil {
		return 0, err
	}
	pb, err := versionParts(b)
	if err != nil {
		return 0, err
	}
	for i := 0; i < max(len(pa), len(pb)); i++ {
		var x, y int
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		}
	}
	return 0, nil
}

func versionParts(v string) ([]int, error) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	fields := strings.Split(v, ".")
	parts := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid version %q", v)
		}
		parts[i] = n
	}
	return parts, nil
}
