package strategy

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nmslite/hwmon/internal/connector"
	"github.com/nmslite/hwmon/internal/criterion"
	"github.com/nmslite/hwmon/internal/extension"
	"github.com/nmslite/hwmon/internal/source"
	"github.com/nmslite/hwmon/internal/telemetry"
)

// EngineConfig holds the pipeline settings shared by every host.
type EngineConfig struct {
	// FetchTimeout bounds each source fetch and criterion test.
	FetchTimeout time.Duration
	// DetectionValidity is how long a detection result is reused.
	DetectionValidity time.Duration
	// DetectionWorkers bounds the connectors evaluated at once per host.
	DetectionWorkers int
	// DiagnosticDetection evaluates every criterion of every connector.
	DiagnosticDetection bool
	// EngineVersion answers product requirement criteria.
	EngineVersion string
}

// Engine builds the strategies once and hands out per-host runners.
type Engine struct {
	detection *Detection
	discovery *Discovery
	collect   *Collect
	post      []PostStrategy
	cfg       EngineConfig
	now       func() time.Time
	logger    *slog.Logger
}

// NewEngine wires the strategies over a connector store and extension
// registry.
func NewEngine(connectors *connector.Store, extensions *extension.Registry, cfg EngineConfig, logger *slog.Logger) *Engine {
	resolver := source.NewResolver(extensions, cfg.FetchTimeout, logger)
	evaluator := criterion.NewEvaluator(extensions, cfg.FetchTimeout, cfg.EngineVersion, logger)

	detection := NewDetection(connectors, evaluator, cfg.DetectionWorkers, logger)
	detection.Diagnostic = cfg.DiagnosticDetection

	return &Engine{
		detection: detection,
		discovery: NewDiscovery(connectors, resolver, logger),
		collect:   NewCollect(connectors, resolver, logger),
		post:      []PostStrategy{NewHardwarePostCollect(logger), HostAvailability{}},
		cfg:       cfg,
		now:       time.Now,
		logger:    logger.With("component", "engine"),
	}
}

// SetClock replaces the clock stamping cycles.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// NewHostRunner creates the pipeline runner of one host.
func (e *Engine) NewHostRunner(host *telemetry.HostConfiguration) *HostRunner {
	return &HostRunner{
		engine:    e,
		telemetry: telemetry.NewManager(host, e.logger),
		logger:    e.logger.With("host_id", host.ID),
	}
}

// CycleResult summarizes one pipeline run.
type CycleResult struct {
	ID         string        `json:"cycle_id"`
	Time       time.Time     `json:"time"`
	Detected   []string      `json:"detected"`
	Detection  bool          `json:"detection"`
	Discovery  bool          `json:"discovery"`
	Discovered int           `json:"discovered"`
	Collected  int           `json:"collected"`
	Duration   time.Duration `json:"duration"`
}

// HostRunner runs the pipeline of one host. Runs of the same host never
// overlap.
type HostRunner struct {
	engine    *Engine
	telemetry *telemetry.Manager
	logger    *slog.Logger

	mu              sync.Mutex
	redetect        bool
	discovered      bool
	lastDiscovery   time.Time
	lastDetectedIDs []string
}

// Telemetry returns the host's telemetry manager.
func (r *HostRunner) Telemetry() *telemetry.Manager {
	return r.telemetry
}

// Redetect forces detection on the next cycle, e.g. after a connector
// reload.
func (r *HostRunner) Redetect() {
	r.mu.Lock()
	r.redetect = true
	r.mu.Unlock()
}

// LastDiscovery returns when discovery last ran.
func (r *HostRunner) LastDiscovery() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastDiscovery
}

// RunCycle runs one pipeline cycle. Detection runs when its result expired
// or was invalidated; discovery runs when discover is set, on the first
// cycle, and whenever the detected connectors changed; collect and the
// post-strategies run every cycle.
func (r *HostRunner) RunCycle(ctx context.Context, discover bool) CycleResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.engine
	start := time.Now()
	now := e.now()
	r.telemetry.SetStrategyTime(now)

	c := &Cycle{ID: uuid.NewString(), Time: now, Telemetry: r.telemetry}
	res := CycleResult{ID: c.ID, Time: now}
	logger := r.logger.With("cycle_id", c.ID)

	_, detectedAt := r.telemetry.Detection()
	if r.redetect || detectedAt.IsZero() || now.Sub(detectedAt) >= e.cfg.DetectionValidity {
		res.Detection = true
		res.Detected = e.detection.Run(ctx, c)
		r.redetect = false
		if !slices.Equal(res.Detected, r.lastDetectedIDs) {
			discover = true
		}
		r.lastDetectedIDs = res.Detected
	} else {
		res.Detected = r.telemetry.DetectedConnectors()
	}

	if discover || !r.discovered {
		res.Discovery = true
		res.Discovered = e.discovery.Run(ctx, c, res.Detected)
		r.discovered = true
		r.lastDiscovery = now
	}

	e.collect.Run(ctx, c, res.Detected)
	res.Collected = c.Collected

	for _, p := range e.post {
		if ctx.Err() != nil {
			break
		}
		p.Run(ctx, c)
	}

	res.Duration = time.Since(start)
	logger.Debug("cycle completed",
		"detection", res.Detection,
		"discovery", res.Discovery,
		"detected", len(res.Detected),
		"collected", res.Collected,
		"duration", res.Duration,
	)
	return res
}
