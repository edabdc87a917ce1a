package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/inboxsync/internal/model"
)

// scanInterval is how often the dispatcher re-reads connections to
// find streams due for a sync.
const scanInterval = 30 * time.Second

// cycleTimeout is the maximum time allowed for a single sync cycle.
const cycleTimeout = 5 * time.Minute

// Job identifies one unit of sync work: one stream of one connection.
type Job struct {
	ConnectionID uuid.UUID
	Stream       model.SyncStream
}

// Scheduler drives sync cycles: a dispatcher scans connections on a
// ticker and hands eligible jobs to a fixed pool of workers. A
// (connection, stream) pair is never in flight twice at once.
type Scheduler struct {
	engine *Engine
	logger *slog.Logger
	cfg    model.SyncConfig

	jobCh     chan Job
	triggerCh chan Job
	stopCh    chan struct{}
	wg        sync.WaitGroup

	mu       sync.Mutex
	running  bool
	inflight map[Job]bool
}

// NewScheduler creates a scheduler over the given engine.
func NewScheduler(e *Engine) *Scheduler {
	return &Scheduler{
		engine:    e,
		logger:    e.Logger,
		cfg:       e.Config,
		jobCh:     make(chan Job, 32),
		triggerCh: make(chan Job, 16),
		stopCh:    make(chan struct{}),
		inflight:  make(map[Job]bool),
	}
}

// Start launches the worker pool and the dispatch loop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	s.wg.Add(1)
	go s.dispatch()
}

// Stop halts the dispatcher and workers and waits for in-flight
// cycles to drain.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
}

// TriggerNow requests an immediate sync of one connection stream,
// bypassing the minimum interval. The in-flight guard still applies.
func (s *Scheduler) TriggerNow(connectionID uuid.UUID, stream model.SyncStream) {
	select {
	case s.triggerCh <- Job{ConnectionID: connectionID, Stream: stream}:
	default:
		// Channel full; the pending trigger already covers it.
	}
}

// dispatch runs the scheduling loop: an immediate scan on start, then
// one per tick, plus on-demand triggers in between.
func (s *Scheduler) dispatch() {
	defer s.wg.Done()

	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()

	s.scan()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.scan()
		case job := <-s.triggerCh:
			s.schedule(job)
		}
	}
}

// scan enqueues every connection stream whose next eligible time has
// passed. Eligibility combines the per-stream minimum interval with
// the failure-streak backoff.
func (s *Scheduler) scan() {
	ctx, cancel := context.WithTimeout(context.Background(), scanInterval)
	defer cancel()

	conns, err := s.engine.Store.ListConnections(ctx)
	if err != nil {
		s.logger.Error("listing connections for sync scan", "err", err)
		return
	}

	now := s.engine.now()
	for i := range conns {
		conn := &conns[i]
		connector, err := s.engine.Registry.Get(conn.Provider)
		if err != nil {
			continue
		}
		for _, stream := range connector.Streams() {
			eligible := nextEligibleAt(conn, stream,
				s.minInterval(stream), s.backoffBase(), s.backoffMax())
			if now.Before(eligible) {
				continue
			}
			s.schedule(Job{ConnectionID: conn.ID, Stream: stream})
		}
	}
}

// schedule hands a job to the worker pool unless the same job is
// already queued or running.
func (s *Scheduler) schedule(job Job) {
	s.mu.Lock()
	if s.inflight[job] {
		s.mu.Unlock()
		return
	}
	s.inflight[job] = true
	s.mu.Unlock()

	// The stamp must be persisted before the worker can read the
	// connection row, or the cycle's writeback would not carry it and
	// the stream would look eligible again on the very next scan.
	s.markScheduled(job)

	select {
	case s.jobCh <- job:
	default:
		// Pool saturated; release the guard. The stamp stays, so the
		// stream waits out its interval before the next attempt.
		s.release(job)
	}
}

// markScheduled stamps the stream's LastSyncScheduledAt so eligibility
// advances as soon as the job is queued, not when it finishes.
func (s *Scheduler) markScheduled(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := s.engine.Store.GetConnection(ctx, job.ConnectionID)
	if err != nil || conn == nil {
		return
	}
	now := s.engine.now()
	conn.StreamState(job.Stream).LastSyncScheduledAt = &now
	conn.UpdatedAt = now
	if err := s.engine.Store.UpdateConnectionStream(ctx, conn, job.Stream); err != nil {
		s.logger.Error("recording sync schedule", "connection", job.ConnectionID, "err", err)
	}
}

func (s *Scheduler) release(job Job) {
	s.mu.Lock()
	delete(s.inflight, job)
	s.mu.Unlock()
}

// worker consumes jobs until the scheduler stops.
func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case job := <-s.jobCh:
			s.run(job)
		}
	}
}

func (s *Scheduler) run(job Job) {
	defer s.release(job)

	ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
	defer cancel()

	outcome, err := s.engine.RunCycle(ctx, job.ConnectionID, job.Stream)
	if err != nil {
		s.logger.Error("sync cycle aborted",
			"connection", job.ConnectionID, "stream", job.Stream, "err", err)
		return
	}

	s.logger.Info("sync cycle finished",
		"connection", outcome.ConnectionID,
		"stream", outcome.Stream,
		"created", outcome.Created,
		"updated", outcome.Updated,
		"untouched", outcome.Untouched,
		"closed", outcome.Closed,
		"skipped", outcome.Skipped,
		"partial", outcome.Partial,
		"status", outcome.Status,
		"took", outcome.FinishedAt.Sub(outcome.StartedAt))
}

func (s *Scheduler) minInterval(stream model.SyncStream) time.Duration {
	minutes := s.cfg.MinNotificationsIntervalMinutes
	if stream == model.StreamTasks {
		minutes = s.cfg.MinTasksIntervalMinutes
	}
	return time.Duration(minutes) * time.Minute
}

func (s *Scheduler) backoffBase() time.Duration {
	return time.Duration(s.cfg.BackoffBaseMinutes) * time.Minute
}

func (s *Scheduler) backoffMax() time.Duration {
	return time.Duration(s.cfg.BackoffMaxMinutes) * time.Minute
}
