package scoring

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/chainguard-ml/chainguard/internal/metrics"
	"github.com/chainguard-ml/chainguard/internal/wallets"
)

// writeTask is one deferred ledger write.
type writeTask struct {
	from      string
	to        string
	valueWei  string
	riskScore int
	isFraud   bool
}

// Writer applies ledger writes after the scoring response has been sent.
//
// Delivery is at-most-once with no retry: a full queue drops the task, a
// failed store write drops the task. Both paths log a warning and count a
// metric; neither ever reaches the caller, whose response is long gone.
type Writer struct {
	ledger  *wallets.Service
	queue   chan writeTask
	timeout time.Duration
	logger  *slog.Logger
	quit    chan struct{}
	done    chan struct{}
	stopped atomic.Bool
}

// NewWriter creates a deferred-write worker with a bounded queue.
func NewWriter(ledger *wallets.Service, queueSize int, timeout time.Duration, logger *slog.Logger) *Writer {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Writer{
		ledger:  ledger,
		queue:   make(chan writeTask, queueSize),
		timeout: timeout,
		logger:  logger,
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the background worker goroutine.
func (w *Writer) Start() {
	go w.run()
}

// Enqueue hands off one ledger write without blocking. Returns false when
// the task was dropped (queue full or writer stopped).
func (w *Writer) Enqueue(from, to, valueWei string, riskScore int, isFraud bool) bool {
	if w.stopped.Load() {
		return false
	}

	task := writeTask{from: from, to: to, valueWei: valueWei, riskScore: riskScore, isFraud: isFraud}
	select {
	case w.queue <- task:
		metrics.WriterQueueDepth.Set(float64(len(w.queue)))
		return true
	default:
		metrics.WriterDroppedTotal.Inc()
		w.logger.Warn("ledger write dropped, queue full",
			"from", from, "to", to, "risk_score", riskScore)
		return false
	}
}

// Stop prevents further enqueues and waits for the queue to drain, up to
// the context deadline. Tasks still queued at the deadline are lost.
func (w *Writer) Stop(ctx context.Context) {
	if w.stopped.Swap(true) {
		return
	}
	close(w.quit)

	select {
	case <-w.done:
	case <-ctx.Done():
		w.logger.Warn("writer stopped before queue drained",
			"remaining", len(w.queue))
	}
}

func (w *Writer) run() {
	defer close(w.done)

	for {
		select {
		case task := <-w.queue:
			w.apply(task)
		case <-w.quit:
			// Best-effort drain of whatever was queued before shutdown.
			for {
				select {
				case task := <-w.queue:
					w.apply(task)
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) apply(task writeTask) {
	metrics.WriterQueueDepth.Set(float64(len(w.queue)))

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	err := w.ledger.RecordTransaction(ctx, task.from, task.to, task.valueWei, task.riskScore, task.isFraud)
	cancel()

	if err != nil {
		// No retry. The counters tolerate a missed increment far better
		// than the queue tolerates head-of-line blocking.
		metrics.WriterFailuresTotal.Inc()
		w.logger.Warn("deferred ledger write failed",
			"from", task.from, "to", task.to, "error", err)
	}
}
