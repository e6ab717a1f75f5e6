package vanityssh

import (
	"log/slog"
	"sync/atomic"
)

// ProgressInterval is the number of accumulated attempts after which a worker
// reports progress.
const ProgressInterval = 10_000

// BatchGenerator produces n keypairs per call.
type BatchGenerator func(n int) []KeyPair

// WorkerState is the lifecycle state of a worker loop.
type WorkerState int

const (
	WorkerRunning WorkerState = iota
	WorkerStopped
)

func (s WorkerState) String() string {
	if s == WorkerRunning {
		return "running"
	}
	return "stopped"
}

// Worker repeatedly generates a batch of keys and tests it against patterns.
type Worker struct {
	ID        int
	Patterns  []Pattern
	Generate  BatchGenerator
	BatchSize int
	// FlushEvery is the progress threshold; zero means ProgressInterval.
	FlushEvery uint64

	out    chan<- WorkerMessage
	done   <-chan struct{}
	stop   *StopSignal
	logger *slog.Logger

	state    atomic.Int32
	attempts uint64
}

// NewWorker wires a worker to the aggregator channel. done is closed once the
// aggregator no longer receives; a worker that cannot deliver a message after
// that terminates.
func NewWorker(id int, patterns []Pattern, out chan<- WorkerMessage, done <-chan struct{}, stop *StopSignal) *Worker {
	w := &Worker{
		ID:         id,
		Patterns:   patterns,
		Generate:   GenerateBatch,
		BatchSize:  BatchSize,
		FlushEvery: ProgressInterval,
		out:        out,
		done:       done,
		stop:       stop,
		logger:     slog.Default(),
	}
	w.state.Store(int32(WorkerRunning))
	return w
}

// WithLogger sets the logger used for lifecycle events.
func (w *Worker) WithLogger(logger *slog.Logger) *Worker {
	if logger != nil {
		w.logger = logger
	}
	return w
}

// State returns the current lifecycle state.
func (w *Worker) State() WorkerState { return WorkerState(w.state.Load()) }

// Run executes the worker loop until the stop signal is observed, a match is
// found and reported, or the aggregator is gone. On a stop signal the
// unreported attempts are sent before returning.
func (w *Worker) Run() {
	w.state.Store(int32(WorkerRunning))
	defer w.state.Store(int32(WorkerStopped))

	flushEvery := w.FlushEvery
	if flushEvery == 0 {
		flushEvery = ProgressInterval
	}
	batchSize := w.BatchSize
	if batchSize <= 0 {
		batchSize = BatchSize
	}

	w.logger.Debug("worker started", "worker", w.ID, "batch_size", batchSize)

	for !w.stop.Stopped() {
		hit, tested := w.scanBatch(batchSize)
		w.attempts += tested

		if hit != nil {
			w.send(WorkerMessage{WorkerID: w.ID, Attempts: w.attempts, Hit: hit})
			w.attempts = 0
			w.logger.Debug("worker found match", "worker", w.ID, "pattern", hit.Pattern.String())
			return
		}

		if w.attempts >= flushEvery {
			if !w.send(WorkerMessage{WorkerID: w.ID, Attempts: w.attempts}) {
				return
			}
			w.attempts = 0
		}
	}

	// Attempts below the threshold still count toward the final total.
	if w.attempts > 0 && w.send(WorkerMessage{WorkerID: w.ID, Attempts: w.attempts}) {
		w.attempts = 0
	}
	w.logger.Debug("worker stopped", "worker", w.ID)
}

// scanBatch generates one batch and returns the first keypair matching any
// pattern, in pattern order. tested counts the keys examined, which is the
// whole batch when nothing matched.
func (w *Worker) scanBatch(n int) (hit *SearchHit, tested uint64) {
	batch := w.Generate(n)
	for i, kp := range batch {
		if p, ok := FirstMatch(w.Patterns, kp); ok {
			return &SearchHit{KeyPair: kp, Pattern: p}, uint64(i + 1)
		}
	}
	return nil, uint64(len(batch))
}

func (w *Worker) send(msg WorkerMessage) bool {
	select {
	case w.out <- msg:
		return true
	case <-w.done:
		w.logger.Debug("aggregator gone, worker exiting", "worker", w.ID)
		return false
	}
}
