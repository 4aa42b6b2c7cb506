package bootstrap

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"triage_server/adapter/in/worker"
	"triage_server/adapter/out/messaging"
	"triage_server/core/port/out"
	"triage_server/pkg/logger"
)

type Worker struct {
	pool     *worker.Pool
	consumer *messaging.Consumer
	deps     *Dependencies
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	zlog     zerolog.Logger
}

func NewWorker(deps *Dependencies) *Worker {
	cfg := deps.Config
	zlog := logger.Component("worker")

	handler := worker.NewHandler(worker.NewIngestProcessor(deps.Pipeline))

	poolConfig := worker.DefaultPoolConfig()
	poolConfig.Workers = cfg.WorkerCount
	poolConfig.BatchSize = cfg.WorkerBatchSize
	poolConfig.WorkerChanSize = cfg.WorkerQueueSize
	poolConfig.MaxRetries = cfg.WorkerMaxRetries
	poolConfig.RateLimit = cfg.WorkerRateLimit
	if timeout := cfg.JobTimeout(); timeout > 0 {
		poolConfig.JobTimeout = timeout
		poolConfig.JobTimeoutByType[worker.JobTriageIngest] = timeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		pool:   worker.NewPool(handler, poolConfig, zlog),
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
		zlog:   zlog,
	}

	if deps.Redis != nil {
		w.consumer = messaging.NewConsumer(deps.Redis, &messaging.ConsumerConfig{
			Group:                messaging.ConsumerGroup,
			Consumer:             cfg.WorkerID,
			Streams:              []string{messaging.StreamIngest},
			Handler:              &streamHandler{pool: w.pool},
			Logger:               zlog,
			BatchSize:            cfg.ConsumerBatchSize,
			Block:                time.Duration(cfg.ConsumerBlockMS) * time.Millisecond,
			PendingCheckInterval: time.Duration(cfg.ConsumerPendingCheckSec) * time.Second,
			MaxRetries:           cfg.ConsumerMaxRetries,
		})
		logger.Info("Redis Stream Consumer configured for %s", messaging.StreamIngest)
	} else {
		logger.Warn("Redis not available, worker will only process direct submissions")
	}

	return w
}

// streamHandler adapts stream deliveries to the worker pool. An entry is
// acknowledged once the pool accepts it.
type streamHandler struct {
	pool *worker.Pool
}

func (h *streamHandler) Handle(ctx context.Context, d *messaging.Delivery) error {
	msg := worker.NewMessage(worker.JobTriageIngest, d.Data)
	msg.Redelivered = d.Redelivered

	if !h.pool.Submit(msg) {
		logger.Error("[StreamHandler] Failed to submit %s/%s to pool", d.Stream, d.ID)
		return worker.ErrPoolUnavailable
	}
	logger.Debug("[StreamHandler] Job submitted to pool: %s", d.ID)
	return nil
}

// Queue is the in-process ingest queue used when no stream is configured.
func (w *Worker) Queue() out.IngestQueue {
	return w.pool
}

// Start launches the pool and the stream consumer.
func (w *Worker) Start() {
	w.pool.Start()

	if w.consumer != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.zlog.Info().Msg("Starting Redis Stream Consumer...")
			if err := w.consumer.Run(w.ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.zlog.Error().Err(err).Msg("Redis Stream Consumer error")
			}
		}()
	}
}

func (w *Worker) Stop() {
	w.cancel()
	// the consumer stops feeding the pool before the pool drains
	w.wg.Wait()
	w.pool.Stop()
}

func (w *Worker) GetMetrics() worker.PoolMetrics {
	return w.pool.GetMetrics()
}
