// Package scheduler runs the strategy cycle of every host on its collect
// period, gated by a health check.
package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nmslite/hwmon/internal/channels"
	"github.com/nmslite/hwmon/internal/config"
	"github.com/nmslite/hwmon/internal/extension"
	"github.com/nmslite/hwmon/internal/strategy"
	"github.com/nmslite/hwmon/internal/telemetry"
)

// ScheduledHost is one host in the scheduler queue.
type ScheduledHost struct {
	Host   *telemetry.HostConfiguration
	Runner *strategy.HostRunner

	// NextCollect orders the queue and is only touched under heapMu.
	NextCollect time.Time
	heapIndex   int

	// running is set while a cycle of the host is in flight.
	running atomic.Bool

	mu                  sync.Mutex
	nextDiscovery       time.Time
	consecutiveFailures int
	lastCycle           *strategy.CycleResult
	lastCheckAt         time.Time
}

// HostStatus is a point-in-time view of a scheduled host.
type HostStatus struct {
	ID                  string    `json:"id"`
	Hostname            string    `json:"hostname"`
	Type                string    `json:"type"`
	Up                  bool      `json:"up"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastCheckAt         time.Time `json:"last_check_at"`
	NextDiscovery       time.Time `json:"next_discovery"`
	Running             bool      `json:"running"`
	// LastCycle is nil until the first cycle completed.
	LastCycle *strategy.CycleResult `json:"last_cycle,omitempty"`
}

// PriorityQueue implements heap.Interface for *ScheduledHost
type PriorityQueue []*ScheduledHost

func (pq PriorityQueue) Len() int {
	return len(pq)
}

func (pq PriorityQueue) Less(i, j int) bool {
	// Earlier deadlines have higher priority
	return pq[i].NextCollect.Before(pq[j].NextCollect)
}

func (pq PriorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].heapIndex = i
	pq[j].heapIndex = j
}

func (pq *PriorityQueue) Push(x any) {
	n := len(*pq)
	item := x.(*ScheduledHost)
	item.heapIndex = n
	*pq = append(*pq, item)
}

func (pq *PriorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.heapIndex = -1
	*pq = old[0 : n-1]
	return item
}

// Scheduler manages the cycles of all hosts.
type Scheduler struct {
	extensions *extension.Registry
	events     *channels.EventChannels
	logger     *slog.Logger

	tickInterval      time.Duration
	collectInterval   time.Duration
	discoveryInterval time.Duration
	healthTimeout     time.Duration
	downThreshold     int

	heap   PriorityQueue
	hosts  map[string]*ScheduledHost
	heapMu sync.Mutex

	workerSem chan struct{}

	running bool
	runMu   sync.Mutex
	wg      sync.WaitGroup
}

// New creates a scheduler.
func New(extensions *extension.Registry, events *channels.EventChannels, cfg config.SchedulerConfig, logger *slog.Logger) *Scheduler {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Scheduler{
		extensions:        extensions,
		events:            events,
		logger:            logger.With("component", "scheduler"),
		tickInterval:      cfg.TickInterval(),
		collectInterval:   cfg.CollectInterval(),
		discoveryInterval: cfg.DiscoveryInterval(),
		healthTimeout:     cfg.HealthTimeout(),
		downThreshold:     cfg.DownThreshold,
		heap:              make(PriorityQueue, 0),
		hosts:             make(map[string]*ScheduledHost),
		workerSem:         make(chan struct{}, workers),
	}
}

// AddHost schedules a host. Its first cycle is due immediately and runs
// discovery.
func (s *Scheduler) AddHost(host *telemetry.HostConfiguration, runner *strategy.HostRunner) error {
	s.heapMu.Lock()
	defer s.heapMu.Unlock()

	if _, ok := s.hosts[host.ID]; ok {
		return fmt.Errorf("host %s already scheduled", host.ID)
	}

	sh := &ScheduledHost{
		Host:        host,
		Runner:      runner,
		NextCollect: time.Now(),
	}
	s.hosts[host.ID] = sh
	heap.Push(&s.heap, sh)

	s.logger.Debug("host added to scheduler", "host_id", host.ID, "hostname", host.Hostname)
	return nil
}

// Host returns a scheduled host by id.
func (s *Scheduler) Host(id string) (*ScheduledHost, bool) {
	s.heapMu.Lock()
	defer s.heapMu.Unlock()
	sh, ok := s.hosts[id]
	return sh, ok
}

// Hosts returns the status of every host, sorted by id.
func (s *Scheduler) Hosts() []HostStatus {
	s.heapMu.Lock()
	hosts := make([]*ScheduledHost, 0, len(s.hosts))
	for _, sh := range s.hosts {
		hosts = append(hosts, sh)
	}
	s.heapMu.Unlock()

	out := make([]HostStatus, 0, len(hosts))
	for _, sh := range hosts {
		out = append(out, s.status(sh))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Managers returns the telemetry of every host, sorted by host id.
func (s *Scheduler) Managers() []*telemetry.Manager {
	s.heapMu.Lock()
	defer s.heapMu.Unlock()

	ids := make([]string, 0, len(s.hosts))
	for id := range s.hosts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]*telemetry.Manager, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.hosts[id].Runner.Telemetry())
	}
	return out
}

// Status returns the status of one host.
func (s *Scheduler) Status(id string) (HostStatus, bool) {
	sh, ok := s.Host(id)
	if !ok {
		return HostStatus{}, false
	}
	return s.status(sh), true
}

func (s *Scheduler) status(sh *ScheduledHost) HostStatus {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return HostStatus{
		ID:                  sh.Host.ID,
		Hostname:            sh.Host.Hostname,
		Type:                sh.Host.Type,
		Up:                  sh.consecutiveFailures < s.downThreshold,
		ConsecutiveFailures: sh.consecutiveFailures,
		LastCheckAt:         sh.lastCheckAt,
		NextDiscovery:       sh.nextDiscovery,
		Running:             sh.running.Load(),
		LastCycle:           sh.lastCycle,
	}
}

// Trigger makes a host due on the next tick, optionally with discovery.
func (s *Scheduler) Trigger(id string, discover bool) bool {
	s.heapMu.Lock()
	defer s.heapMu.Unlock()

	sh, ok := s.hosts[id]
	if !ok {
		return false
	}
	if discover {
		sh.mu.Lock()
		sh.nextDiscovery = time.Time{}
		sh.mu.Unlock()
	}
	sh.NextCollect = time.Now()
	if sh.heapIndex >= 0 {
		heap.Fix(&s.heap, sh.heapIndex)
	}
	return true
}

// RedetectAll invalidates the detection of every host, e.g. after the
// connectors were reloaded.
func (s *Scheduler) RedetectAll() {
	s.heapMu.Lock()
	defer s.heapMu.Unlock()
	for _, sh := range s.hosts {
		sh.Runner.Redetect()
	}
	s.logger.Info("detection invalidated", "host_count", len(s.hosts))
}

// Run starts the scheduler and blocks until context is cancelled
func (s *Scheduler) Run(ctx context.Context) error {
	s.runMu.Lock()
	if s.running {
		s.runMu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.runMu.Unlock()

	s.logger.Info("starting scheduler",
		"tick_interval", s.tickInterval,
		"collect_interval", s.collectInterval,
		"discovery_interval", s.discoveryInterval,
		"health_timeout", s.healthTimeout,
		"down_threshold", s.downThreshold,
	)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler context cancelled, shutting down")
			s.shutdown()
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.running
}

// tick starts a cycle for every host whose deadline passed. A host whose
// previous cycle is still running is skipped until its next deadline.
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()

	s.heapMu.Lock()
	var due []*ScheduledHost
	for len(s.heap) > 0 {
		sh := s.heap[0]
		if sh.NextCollect.After(now) {
			break
		}
		heap.Pop(&s.heap)

		sh.NextCollect = now.Add(s.collectInterval)
		heap.Push(&s.heap, sh)

		if !sh.running.CompareAndSwap(false, true) {
			s.logger.Debug("previous cycle still running, skipping", "host_id", sh.Host.ID)
			continue
		}
		due = append(due, sh)
	}
	s.heapMu.Unlock()

	for _, sh := range due {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer sh.running.Store(false)
			s.processHost(ctx, sh)
		}()
	}

	if len(due) > 0 {
		s.logger.Debug("tick processed due hosts", "count", len(due))
	}
}

// processHost checks the host health and runs its cycle.
func (s *Scheduler) processHost(ctx context.Context, sh *ScheduledHost) {
	logger := s.logger.With("host_id", sh.Host.ID)

	select {
	case s.workerSem <- struct{}{}:
		defer func() { <-s.workerSem }()
	case <-ctx.Done():
		logger.Warn("context cancelled while waiting for worker semaphore")
		return
	}

	healthCtx, cancel := context.WithTimeout(ctx, s.healthTimeout)
	up := s.extensions.CheckHealth(healthCtx, sh.Host)
	cancel()

	if !up {
		s.handleFailure(sh, "health check failed")
		return
	}

	now := time.Now()
	sh.mu.Lock()
	discover := !now.Before(sh.nextDiscovery)
	if discover {
		sh.nextDiscovery = now.Add(s.discoveryInterval)
	}
	sh.mu.Unlock()

	res := sh.Runner.RunCycle(ctx, discover)
	if ctx.Err() != nil {
		return
	}
	s.handleSuccess(sh, res)
}

// handleSuccess records a completed cycle
func (s *Scheduler) handleSuccess(sh *ScheduledHost, res strategy.CycleResult) {
	sh.mu.Lock()
	wasDown := sh.consecutiveFailures >= s.downThreshold
	sh.consecutiveFailures = 0
	sh.lastCheckAt = time.Now()
	sh.lastCycle = &res
	sh.mu.Unlock()

	s.logger.Info("host cycle completed",
		"host_id", sh.Host.ID,
		"cycle_id", res.ID,
		"detected", len(res.Detected),
		"collected", res.Collected,
		"duration", res.Duration,
	)

	if !s.events.PublishCycleCompleted(channels.CycleCompletedEvent{
		HostID:     sh.Host.ID,
		CycleID:    res.ID,
		Detection:  res.Detection,
		Discovery:  res.Discovery,
		Detected:   res.Detected,
		Discovered: res.Discovered,
		Collected:  res.Collected,
		Duration:   res.Duration,
		Timestamp:  res.Time,
	}) {
		s.logger.Warn("failed to emit cycle completed event: channel full", "host_id", sh.Host.ID)
	}

	if wasDown {
		if s.events.PublishHostRecovered(channels.HostRecoveredEvent{
			HostID:    sh.Host.ID,
			Hostname:  sh.Host.Hostname,
			Timestamp: time.Now(),
		}) {
			s.logger.Info("host recovered", "host_id", sh.Host.ID, "hostname", sh.Host.Hostname)
		} else {
			s.logger.Warn("failed to emit host recovered event: channel full", "host_id", sh.Host.ID)
		}
	}
}

// handleFailure records a failed health check
func (s *Scheduler) handleFailure(sh *ScheduledHost, reason string) {
	sh.mu.Lock()
	wasUp := sh.consecutiveFailures < s.downThreshold
	sh.consecutiveFailures++
	failures := sh.consecutiveFailures
	sh.lastCheckAt = time.Now()
	sh.mu.Unlock()

	s.logger.Warn("host check failed",
		"host_id", sh.Host.ID,
		"consecutive_failures", failures,
		"reason", reason,
	)

	if wasUp && failures >= s.downThreshold {
		if s.events.PublishHostDown(channels.HostDownEvent{
			HostID:    sh.Host.ID,
			Hostname:  sh.Host.Hostname,
			Failures:  failures,
			Timestamp: time.Now(),
		}) {
			s.logger.Warn("host is down",
				"host_id", sh.Host.ID,
				"hostname", sh.Host.Hostname,
				"threshold", s.downThreshold,
			)
		} else {
			s.logger.Warn("failed to emit host down event: channel full", "host_id", sh.Host.ID)
		}
	}
}

// shutdown waits for in-flight cycles
func (s *Scheduler) shutdown() {
	s.logger.Info("shutting down scheduler, waiting for workers to complete")
	s.wg.Wait()

	s.runMu.Lock()
	s.running = false
	s.runMu.Unlock()

	s.logger.Info("scheduler shutdown complete")
}
