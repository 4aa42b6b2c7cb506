package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-pkgz/pool"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
	"triage_server/pkg/metrics"
)

// ErrPoolUnavailable is returned by Enqueue when a job is not accepted.
var ErrPoolUnavailable = errors.New("worker pool unavailable")

// PoolConfig holds worker pool configuration.
type PoolConfig struct {
	Workers          int
	BatchSize        int
	WorkerChanSize   int
	JobTimeout       time.Duration
	JobTimeoutByType map[JobType]time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration // base delay, doubled per attempt
	RateLimit        float64       // jobs per second, 0 disables admission limiting
	RateBurst        int
	DLQSize          int
}

// DefaultPoolConfig returns default pool configuration.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		Workers:        8,
		BatchSize:      1,
		WorkerChanSize: 100,
		JobTimeout:     60 * time.Second,
		JobTimeoutByType: map[JobType]time.Duration{
			JobTriageIngest: 60 * time.Second,
		},
		MaxRetries:   3,
		RetryBackoff: time.Second,
		DLQSize:      100,
	}
}

// Pool runs jobs on a go-pkgz/pool worker group with timeout, panic
// recovery and retry.
type Pool struct {
	handler *Handler
	config  *PoolConfig

	pool *pool.WorkerGroup[*Message]

	ctx    context.Context
	cancel context.CancelFunc

	metrics *PoolMetrics
	latency *metrics.LatencyRegistry
	log     zerolog.Logger

	limiter *rate.Limiter

	dlq   chan *Message
	dlqWg sync.WaitGroup

	started bool
	mu      sync.RWMutex
}

var _ out.IngestQueue = (*Pool)(nil)

// PoolMetrics holds pool metrics.
type PoolMetrics struct {
	JobsProcessed  int64
	JobsFailed     int64
	JobsDropped    int64
	JobsRetried    int64
	JobsPanicked   int64
	AvgProcessTime int64 // milliseconds
	QueueSize      int32
}

// messageWorker implements pool.Worker for Message processing.
type messageWorker struct {
	pool *Pool
}

func (w *messageWorker) Do(ctx context.Context, msg *Message) error {
	return w.pool.processJob(ctx, msg)
}

func NewPool(handler *Handler, config *PoolConfig, log zerolog.Logger) *Pool {
	def := DefaultPoolConfig()
	if config == nil {
		config = def
	}
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.WorkerChanSize <= 0 {
		config.WorkerChanSize = def.WorkerChanSize
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = def.JobTimeout
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = def.RetryBackoff
	}
	if config.DLQSize <= 0 {
		config.DLQSize = def.DLQSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		handler: handler,
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		metrics: &PoolMetrics{},
		latency: metrics.NewLatencyRegistry(metrics.DefaultWindow),
		log:     log.With().Str("component", "worker_pool").Logger(),
		dlq:     make(chan *Message, config.DLQSize),
	}
	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst <= 0 {
			burst = int(config.RateLimit) + 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}
	return p
}

// Start starts the worker pool.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}

	worker := &messageWorker{pool: p}
	p.pool = pool.New[*Message](p.config.Workers, worker).
		WithBatchSize(p.config.BatchSize).
		WithWorkerChanSize(p.config.WorkerChanSize).
		WithContinueOnError()

	if err := p.pool.Go(p.ctx); err != nil {
		p.log.Error().Err(err).Msg("failed to start pool")
		return
	}
	p.started = true

	p.dlqWg.Add(2)
	go p.dlqProcessor()
	go p.metricsReporter()

	p.log.Info().
		Int("workers", p.config.Workers).
		Int("batch_size", p.config.BatchSize).
		Int("max_retries", p.config.MaxRetries).
		Msg("worker pool started")
}

// Stop drains submitted jobs and stops the pool. Retries scheduled after
// Stop are dropped.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()

	p.log.Info().Msg("stopping worker pool...")

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer closeCancel()

	if err := p.pool.Close(closeCtx); err != nil {
		p.log.Warn().Err(err).Msg("error closing pool")
	}

	p.cancel()
	close(p.dlq)
	p.dlqWg.Wait()

	p.log.Info().
		Int64("processed", atomic.LoadInt64(&p.metrics.JobsProcessed)).
		Int64("failed", atomic.LoadInt64(&p.metrics.JobsFailed)).
		Msg("worker pool stopped")
}

// Submit submits a job to the pool. It returns false when the pool is not
// running or the admission limiter rejects the job.
func (p *Pool) Submit(msg *Message) bool {
	if p.limiter != nil && !p.limiter.Allow() {
		atomic.AddInt64(&p.metrics.JobsDropped, 1)
		p.log.Warn().
			Str("job_id", msg.ID).
			Str("job_type", msg.Type).
			Msg("job dropped due to rate limiting")
		return false
	}
	return p.submit(msg)
}

func (p *Pool) submit(msg *Message) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.started || p.pool == nil {
		return false
	}
	atomic.AddInt32(&p.metrics.QueueSize, 1)
	p.pool.Send(msg)
	return true
}

// Enqueue submits an ingest job for in.
func (p *Pool) Enqueue(_ context.Context, in *domain.InboundMessage) error {
	msg, err := NewIngestMessage(in)
	if err != nil {
		return fmt.Errorf("failed to build ingest job: %w", err)
	}
	if !p.Submit(msg) {
		return ErrPoolUnavailable
	}
	return nil
}

func (p *Pool) getJobTimeout(jobType JobType) time.Duration {
	if timeout, ok := p.config.JobTimeoutByType[jobType]; ok {
		return timeout
	}
	return p.config.JobTimeout
}

// run executes the handler and converts a panic into an error.
func (p *Pool) run(ctx context.Context, msg *Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&p.metrics.JobsPanicked, 1)
			p.log.Error().
				Str("job_id", msg.ID).
				Str("job_type", msg.Type).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("job panicked")
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return p.handler.Process(ctx, msg)
}

// processJob processes a single job with timeout.
func (p *Pool) processJob(ctx context.Context, msg *Message) error {
	start := time.Now()
	defer atomic.AddInt32(&p.metrics.QueueSize, -1)

	timeout := p.getJobTimeout(msg.Type)
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.run(jobCtx, msg)
	}()

	var err error
	select {
	case err = <-errCh:
	case <-jobCtx.Done():
		err = jobCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			p.log.Warn().
				Str("job_id", msg.ID).
				Str("job_type", msg.Type).
				Dur("timeout", timeout).
				Msg("job timed out")
		}
	}

	elapsed := time.Since(start)
	p.updateAvgProcessTime(elapsed.Milliseconds())
	p.latency.Record(msg.Type, elapsed)

	if err == nil {
		atomic.AddInt64(&p.metrics.JobsProcessed, 1)
		return nil
	}

	p.log.Error().
		Err(err).
		Str("job_id", msg.ID).
		Str("job_type", msg.Type).
		Int("retries", msg.Retries).
		Msg("job processing failed")

	if apperr.Retryable(err) && msg.Retries < p.config.MaxRetries {
		msg.Retries++
		atomic.AddInt64(&p.metrics.JobsRetried, 1)

		backoff := p.backoff(msg.Retries)
		time.AfterFunc(backoff, func() {
			if !p.submit(msg) {
				p.deadLetter(msg)
			}
		})
		return err
	}

	p.deadLetter(msg)
	return err
}

// backoff is base * 2^(attempt-1) plus up to 25% jitter.
func (p *Pool) backoff(attempt int) time.Duration {
	base := p.config.RetryBackoff << (attempt - 1)
	return base + time.Duration(rand.Int63n(int64(base)/4+1))
}

func (p *Pool) deadLetter(msg *Message) {
	atomic.AddInt64(&p.metrics.JobsFailed, 1)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.started {
		p.log.Error().
			Str("job_id", msg.ID).
			Str("job_type", msg.Type).
			RawJSON("payload", msg.Payload).
			Msg("DLQ: job lost during shutdown")
		return
	}

	select {
	case p.dlq <- msg:
	default:
		p.log.Error().Str("job_id", msg.ID).Msg("DLQ full, job lost")
	}
}

func (p *Pool) updateAvgProcessTime(elapsed int64) {
	current := atomic.LoadInt64(&p.metrics.AvgProcessTime)
	if current == 0 {
		atomic.StoreInt64(&p.metrics.AvgProcessTime, elapsed)
		return
	}
	atomic.StoreInt64(&p.metrics.AvgProcessTime, (current*9+elapsed)/10)
}

// dlqProcessor logs permanently failed jobs with their payload.
func (p *Pool) dlqProcessor() {
	defer p.dlqWg.Done()

	for msg := range p.dlq {
		p.log.Error().
			Str("job_id", msg.ID).
			Str("job_type", msg.Type).
			Int("retries", msg.Retries).
			RawJSON("payload", msg.Payload).
			Msg("DLQ: job permanently failed")
	}
}

func (p *Pool) metricsReporter() {
	defer p.dlqWg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			m := p.GetMetrics()
			p.log.Info().
				Int64("processed", m.JobsProcessed).
				Int64("failed", m.JobsFailed).
				Int64("dropped", m.JobsDropped).
				Int64("retried", m.JobsRetried).
				Int64("panicked", m.JobsPanicked).
				Int64("avg_process_ms", m.AvgProcessTime).
				Int32("queue_size", m.QueueSize).
				Msg("worker pool metrics")
		}
	}
}

// Latency returns per-job-type processing latency.
func (p *Pool) Latency() map[string]metrics.LatencyStats {
	return p.latency.AllStats()
}

// GetMetrics returns a snapshot of pool metrics.
func (p *Pool) GetMetrics() PoolMetrics {
	return PoolMetrics{
		JobsProcessed:  atomic.LoadInt64(&p.metrics.JobsProcessed),
		JobsFailed:     atomic.LoadInt64(&p.metrics.JobsFailed),
		JobsDropped:    atomic.LoadInt64(&p.metrics.JobsDropped),
		JobsRetried:    atomic.LoadInt64(&p.metrics.JobsRetried),
		JobsPanicked:   atomic.LoadInt64(&p.metrics.JobsPanicked),
		AvgProcessTime: atomic.LoadInt64(&p.metrics.AvgProcessTime),
		QueueSize:      atomic.LoadInt32(&p.metrics.QueueSize),
	}
}
