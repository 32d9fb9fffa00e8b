// Package worker provides async transaction scoring off the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/kavach/internal/domain"
)

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("worker already started")

// Processor scores one transaction. *pipeline.Processor satisfies it.
type Processor interface {
	Process(ctx context.Context, tx *domain.Transaction) (*domain.Assessment, error)
}

// Worker consumes ingested transactions from the EventBus and runs them
// through the pipeline on a fixed pool of goroutines.
type Worker struct {
	bus       domain.EventBus
	processor Processor

	mu            sync.Mutex
	subscriptions []domain.Subscription
	jobs          chan *domain.Message
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	failed    atomic.Int64
}

// Config holds worker configuration.
type Config struct {
	// WorkerCount is the number of goroutines scoring transactions
	WorkerCount int

	// QueueSize bounds the jobs waiting for a free goroutine
	QueueSize int
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, processor Processor) *Worker {
	return &Worker{
		bus:       bus,
		processor: processor,
	}
}

// Start subscribes to the ingestion topic and launches the pool.
func (w *Worker) Start(cfg Config) error {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.WorkerCount * 16
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return ErrAlreadyStarted
	}

	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.jobs = make(chan *domain.Message, cfg.QueueSize)

	sub, err := w.bus.Subscribe(w.ctx, domain.TopicTransactionIngested, w.enqueue)
	if err != nil {
		w.cancel()
		w.cancel = nil
		return fmt.Errorf("failed to subscribe to %s: %w", domain.TopicTransactionIngested, err)
	}
	w.subscriptions = append(w.subscriptions, sub)

	for i := 0; i < cfg.WorkerCount; i++ {
		w.wg.Add(1)
		go w.run(i)
	}

	slog.Info("workers started",
		"worker_count", cfg.WorkerCount,
		"topic", domain.TopicTransactionIngested,
	)

	return nil
}

// enqueue hands a message to the pool, waiting while the queue is full.
func (w *Worker) enqueue(ctx context.Context, msg *domain.Message) error {
	select {
	case w.jobs <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) run(id int) {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case msg := <-w.jobs:
			if err := w.processTransaction(w.ctx, msg); err != nil {
				w.failed.Add(1)
				slog.Error("transaction processing failed",
					"worker_id", id,
					"message_id", msg.ID,
					"error", err,
				)
				continue
			}
			w.processed.Add(1)
		}
	}
}

// processTransaction decodes and scores one ingested transaction.
func (w *Worker) processTransaction(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var tx domain.Transaction
	if err := json.Unmarshal(msg.Payload, &tx); err != nil {
		return fmt.Errorf("failed to parse transaction message: %w", err)
	}
	if tx.UserID == "" {
		tx.UserID = msg.Key
	}

	slog.Debug("processing transaction",
		"tx_id", tx.ID,
		"user_id", tx.UserID,
		"message_id", msg.ID,
	)

	assessment, err := w.processor.Process(ctx, &tx)
	if err != nil {
		return err
	}

	slog.Info("transaction processed",
		"tx_id", assessment.TransactionID,
		"user_id", assessment.UserID,
		"risk_score", assessment.Report.Analysis.RiskScore,
		"risk_level", assessment.Report.Analysis.RiskLevel,
		"anomalous", assessment.Anomaly.IsAnomalous,
		"alert", assessment.Alert,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel == nil {
		return nil
	}

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.cancel()
	w.wg.Wait()
	w.cancel = nil

	slog.Info("workers stopped",
		"processed", w.processed.Load(),
		"failed", w.failed.Load(),
	)
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
	}
}
