package vanityssh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrInvalidThreadCount is returned when a search is started with fewer than one worker.
	ErrInvalidThreadCount = errors.New("thread count must be at least 1")
	// ErrNoPatterns is returned when a search is started without patterns.
	ErrNoPatterns = errors.New("at least one pattern is required")
)

// messagesPerWorker sizes the shared channel buffer.
const messagesPerWorker = 16

// Dispatcher starts a pool of workers and the aggregator that consumes their
// messages.
type Dispatcher struct {
	stopOnMatch bool
	generate    BatchGenerator
	batchSize   int
	flushEvery  uint64
	saver       KeySaver
	notifier    Notifier
	endpoint    string
	display     ProgressDisplay
	logger      *slog.Logger
	clock       func() time.Time
	runID       string
}

// NewDispatcher creates a dispatcher with default settings: continue after
// matches, no persistence, no notifications, no progress display.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		generate:   GenerateBatch,
		batchSize:  BatchSize,
		flushEvery: ProgressInterval,
		logger:     slog.Default(),
		clock:      time.Now,
	}
}

// WithStopOnMatch ends the search after the first hit.
func (d *Dispatcher) WithStopOnMatch(stop bool) *Dispatcher {
	d.stopOnMatch = stop
	return d
}

// WithSaver sets where matched keys are persisted.
func (d *Dispatcher) WithSaver(saver KeySaver) *Dispatcher {
	d.saver = saver
	return d
}

// WithNotifier enables match notifications to endpoint.
func (d *Dispatcher) WithNotifier(notifier Notifier, endpoint string) *Dispatcher {
	d.notifier = notifier
	d.endpoint = endpoint
	return d
}

// WithDisplay sets the progress display.
func (d *Dispatcher) WithDisplay(display ProgressDisplay) *Dispatcher {
	d.display = display
	return d
}

// WithLogger sets the logger passed to workers and the aggregator.
func (d *Dispatcher) WithLogger(logger *slog.Logger) *Dispatcher {
	if logger != nil {
		d.logger = logger
	}
	return d
}

// WithGenerator replaces the key source. Tests use it to feed fixed seeds.
func (d *Dispatcher) WithGenerator(generate BatchGenerator) *Dispatcher {
	if generate != nil {
		d.generate = generate
	}
	return d
}

// WithBatchSize sets the number of keys generated per worker round.
func (d *Dispatcher) WithBatchSize(n int) *Dispatcher {
	if n > 0 {
		d.batchSize = n
	}
	return d
}

// WithFlushEvery sets the worker progress threshold.
func (d *Dispatcher) WithFlushEvery(n uint64) *Dispatcher {
	if n > 0 {
		d.flushEvery = n
	}
	return d
}

// WithRunID tags the search with id instead of a fresh random one.
func (d *Dispatcher) WithRunID(id string) *Dispatcher {
	d.runID = id
	return d
}

// WithClock replaces time.Now in the aggregator.
func (d *Dispatcher) WithClock(clock func() time.Time) *Dispatcher {
	if clock != nil {
		d.clock = clock
	}
	return d
}

// Handle controls a running search.
type Handle struct {
	// RunID identifies this search in logs.
	RunID string

	stop   *StopSignal
	cancel context.CancelFunc
	done   chan struct{}
	result Result
}

// Stop requests cancellation. Workers finish their current batch first.
func (h *Handle) Stop() {
	h.stop.Set()
	h.cancel()
}

// Done is closed once the search has ended and every worker has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the search ends and returns the aggregator's final state.
func (h *Handle) Wait() *Result {
	<-h.done
	return &h.result
}

// Start validates its arguments, spawns threads workers over patterns and
// runs the aggregator in the background. Cancelling ctx has the same effect
// as Handle.Stop.
func (d *Dispatcher) Start(ctx context.Context, threads int, patterns []Pattern) (*Handle, error) {
	if threads < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidThreadCount, threads)
	}
	if len(patterns) == 0 {
		return nil, ErrNoPatterns
	}

	ctx, cancel := context.WithCancel(ctx)
	runID := d.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := d.logger.With("run", runID)

	stop := NewStopSignal()
	msgs := make(chan WorkerMessage, threads*messagesPerWorker)
	aggDone := make(chan struct{})

	h := &Handle{
		RunID:  runID,
		stop:   stop,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	agg := NewAggregator(patterns, stop).
		WithStopOnMatch(d.stopOnMatch).
		WithSaver(d.saver).
		WithNotifier(d.notifier, d.endpoint).
		WithDisplay(d.display).
		WithLogger(logger).
		WithClock(d.clock)
	agg.Start(d.clock())

	logger.Info("starting search",
		"threads", threads,
		"patterns", len(patterns),
		"stop_after_match", d.stopOnMatch,
	)

	var g errgroup.Group
	for i := 0; i < threads; i++ {
		w := NewWorker(i, patterns, msgs, aggDone, stop).WithLogger(logger)
		w.Generate = d.generate
		w.BatchSize = d.batchSize
		w.FlushEvery = d.flushEvery
		g.Go(func() error {
			w.Run()
			return nil
		})
	}

	workersDone := make(chan struct{})
	go func() {
		_ = g.Wait()
		// Every worker has exited, so nothing sends on msgs any more.
		close(msgs)
		close(workersDone)
	}()

	go func() {
		defer close(h.done)
		defer cancel()

		h.result = agg.Run(ctx, msgs)
		stop.Set()
		close(aggDone)
		<-workersDone

		logger.Info("search finished",
			"attempts", h.result.TotalAttempts,
			"hits", len(h.result.Hits),
			"elapsed", h.result.Elapsed.Round(time.Millisecond).String(),
		)
	}()

	return h, nil
}

// Search runs a search to completion. It returns when the first hit is found
// in stop-on-match mode, when every worker has found a match, or when ctx is
// cancelled.
func (d *Dispatcher) Search(ctx context.Context, threads int, patterns []Pattern) (*Result, error) {
	h, err := d.Start(ctx, threads, patterns)
	if err != nil {
		return nil, err
	}
	return h.Wait(), nil
}
