package payment

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/frahmantamala/payment-reconciler/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-reconciler/pkg/logger"
)

const defaultVerifyTimeout = 30 * time.Second

// ReconcileJob asks the gateway for the authoritative status of one payment.
type ReconcileJob struct {
	Reference  string
	MerchantID string
}

type Worker struct {
	ID         int
	WorkerPool chan chan ReconcileJob
	JobChannel chan ReconcileJob
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan ReconcileJob, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan ReconcileJob),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(ReconcileJob)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case w.WorkerPool <- w.JobChannel:
			case <-ctx.Done():
				return
			}

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker reconciling payment", "worker_id", w.ID, "payment_reference", job.Reference)
				processFunc(job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

// StaleVerifier is the part of Service the sweeper drives.
type StaleVerifier interface {
	StalePayments(ctx context.Context, olderThan time.Time, limit int) ([]*payment.Payment, error)
	ForceVerify(ctx context.Context, reference, merchantID string) (*payment.Payment, error)
}

type SweeperConfig struct {
	Interval      time.Duration
	StaleAfter    time.Duration
	BatchSize     int
	MaxWorkers    int
	JobQueueSize  int
	VerifyTimeout time.Duration
}

// Sweeper periodically force-verifies payments that have been pending or
// processing for longer than StaleAfter, covering lost callbacks and
// webhooks.
type Sweeper struct {
	verifier StaleVerifier
	config   SweeperConfig
	logger   *slog.Logger

	jobQueue   chan ReconcileJob
	workerPool chan chan ReconcileJob

	mu       sync.Mutex
	inflight map[string]struct{}

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	once        sync.Once
	workersOnce sync.Once
	now         func() time.Time
}

func NewSweeper(verifier StaleVerifier, config SweeperConfig, lg *slog.Logger) *Sweeper {
	if lg == nil {
		lg = logger.LoggerWrapper()
	}
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = 15 * time.Minute
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = 4
	}
	if config.JobQueueSize <= 0 {
		config.JobQueueSize = 100
	}
	if config.VerifyTimeout <= 0 {
		config.VerifyTimeout = defaultVerifyTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		verifier:   verifier,
		config:     config,
		logger:     lg,
		jobQueue:   make(chan ReconcileJob, config.JobQueueSize),
		workerPool: make(chan chan ReconcileJob, config.MaxWorkers),
		inflight:   make(map[string]struct{}),
		ctx:        ctx,
		cancel:     cancel,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the workers, the dispatcher and the sweep loop. The first
// sweep runs immediately.
func (s *Sweeper) Start() {
	s.once.Do(func() {
		s.StartWorkers()

		s.wg.Add(1)
		go s.loop()

		s.logger.Info("reconcile sweeper started",
			"interval", s.config.Interval.String(),
			"stale_after", s.config.StaleAfter.String())
	})
}

// StartWorkers launches only the workers and the dispatcher; jobs arrive
// through SweepOnce.
func (s *Sweeper) StartWorkers() {
	s.workersOnce.Do(func() {
		for i := 0; i < s.config.MaxWorkers; i++ {
			NewWorker(i, s.workerPool, s.logger).Start(s.ctx, &s.wg, s.process)
		}

		s.wg.Add(1)
		go s.dispatch()

		s.logger.Info("reconcile workers started",
			"max_workers", s.config.MaxWorkers,
			"queue_size", cap(s.jobQueue))
	})
}

// Drain blocks until every enqueued job has been processed or the sweeper
// is shut down.
func (s *Sweeper) Drain() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		s.mu.Lock()
		pending := len(s.inflight)
		s.mu.Unlock()
		if pending == 0 {
			return
		}

		select {
		case <-ticker.C:
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(s.ctx); err != nil && s.ctx.Err() == nil {
			s.logger.Error("stale payment sweep failed", "error", err)
		}

		select {
		case <-ticker.C:
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Sweeper) dispatch() {
	defer s.wg.Done()
	for {
		select {
		case job := <-s.jobQueue:
			select {
			case jobChannel := <-s.workerPool:
				select {
				case jobChannel <- job:
				case <-s.ctx.Done():
					return
				}
			case <-s.ctx.Done():
				return
			}
		case <-s.ctx.Done():
			s.logger.Info("reconcile dispatcher shutting down")
			return
		}
	}
}

// SweepOnce enqueues stale payments that are not already being verified and
// returns how many were enqueued.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	stale, err := s.verifier.StalePayments(ctx, s.now().Add(-s.config.StaleAfter), s.config.BatchSize)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, p := range stale {
		if s.enqueue(ReconcileJob{Reference: p.PaymentReference, MerchantID: p.MerchantID}) {
			enqueued++
		}
	}

	if enqueued > 0 {
		s.logger.Info("stale payments enqueued for verification", "count", enqueued)
	}
	return enqueued, nil
}

func (s *Sweeper) enqueue(job ReconcileJob) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.inflight[job.Reference]; busy {
		return false
	}

	select {
	case s.jobQueue <- job:
		s.inflight[job.Reference] = struct{}{}
		return true
	default:
		s.logger.Warn("reconcile queue full, job will be retried next sweep",
			"payment_reference", job.Reference,
			"queue_length", len(s.jobQueue))
		return false
	}
}

func (s *Sweeper) process(job ReconcileJob) {
	defer func() {
		s.mu.Lock()
		delete(s.inflight, job.Reference)
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(s.ctx, s.config.VerifyTimeout)
	defer cancel()
	ctx = logger.With(ctx, "payment_reference", job.Reference)

	p, err := s.verifier.ForceVerify(ctx, job.Reference, job.MerchantID)
	if err != nil {
		s.logger.Warn("stale payment verification failed",
			"error", err,
			"payment_reference", job.Reference)
		return
	}

	s.logger.Info("stale payment verified",
		"payment_reference", job.Reference,
		"status", p.Status)
}

func (s *Sweeper) Shutdown() {
	s.logger.Info("shutting down reconcile sweeper")
	s.cancel()
	s.wg.Wait()
	s.logger.Info("reconcile sweeper shutdown complete")
}
