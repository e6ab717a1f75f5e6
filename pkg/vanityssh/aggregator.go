package vanityssh

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// RenderInterval throttles progress redraws between hits.
	RenderInterval = 100 * time.Millisecond
	// DrainTimeout bounds how long Run keeps receiving after the stop signal
	// is raised, while workers finish their batch and report what they have.
	DrainTimeout = 2 * time.Second

	// notifyGrace is the deadline for alerts about keys found after cancellation.
	notifyGrace = 10 * time.Second
)

const meterName = "github.com/mahdiidarabi/vanity-ssh"

// KeySaver persists a matched keypair under a base name and returns where it went.
type KeySaver interface {
	Save(kp KeyPair, name string) (string, error)
}

// Notifier delivers a one-line alert to an endpoint.
type Notifier interface {
	Notify(ctx context.Context, endpoint, message string) error
}

// ProgressDisplay shows the live progress block. Println writes a permanent
// line above it.
type ProgressDisplay interface {
	Update(message string)
	Println(line string)
	Finish()
}

// Result is the state accumulated by the aggregator when a run ends.
type Result struct {
	TotalAttempts uint64
	Elapsed       time.Duration
	Hits          []SearchHit
}

// HitsFor returns the keypairs found for p, in arrival order.
func (r Result) HitsFor(p Pattern) []KeyPair {
	var out []KeyPair
	for _, h := range r.Hits {
		if h.Pattern.Equal(p) {
			out = append(out, h.KeyPair)
		}
	}
	return out
}

type aggregatorMetrics struct {
	attempts       metric.Int64Counter
	hits           metric.Int64Counter
	saveFailures   metric.Int64Counter
	notifyFailures metric.Int64Counter
}

func newAggregatorMetrics() aggregatorMetrics {
	meter := otel.Meter(meterName)
	attempts, _ := meter.Int64Counter("vanity_attempts_total", metric.WithDescription("Keys generated and tested"))
	hits, _ := meter.Int64Counter("vanity_hits_total", metric.WithDescription("Keys matching a pattern"))
	saveFailures, _ := meter.Int64Counter("vanity_save_failures_total")
	notifyFailures, _ := meter.Int64Counter("vanity_notify_failures_total")
	return aggregatorMetrics{
		attempts:       attempts,
		hits:           hits,
		saveFailures:   saveFailures,
		notifyFailures: notifyFailures,
	}
}

// Aggregator is the single consumer of worker messages. All of its state is
// owned by the goroutine calling Run (or Handle); it is not safe for
// concurrent use.
type Aggregator struct {
	patterns    []Pattern
	stop        *StopSignal
	stopOnMatch bool
	saver       KeySaver
	notifier    Notifier
	endpoint    string
	display     ProgressDisplay
	logger      *slog.Logger
	clock       func() time.Time
	drain       time.Duration
	metrics     aggregatorMetrics

	start         time.Time
	lastRender    time.Time
	totalAttempts uint64
	hits          map[string][]KeyPair
	hitOrder      []SearchHit
	window        *RollingWindow
	pending       sync.WaitGroup
}

// NewAggregator creates an aggregator reporting on patterns. stop is raised
// when the aggregator ends the run.
func NewAggregator(patterns []Pattern, stop *StopSignal) *Aggregator {
	return &Aggregator{
		patterns: patterns,
		stop:     stop,
		logger:   slog.Default(),
		clock:    time.Now,
		drain:    DrainTimeout,
		metrics:  newAggregatorMetrics(),
		hits:     make(map[string][]KeyPair),
		window:   NewRollingWindow(RateWindow),
	}
}

// WithStopOnMatch ends the run after the first hit.
func (a *Aggregator) WithStopOnMatch(stop bool) *Aggregator {
	a.stopOnMatch = stop
	return a
}

// WithSaver sets the persistence collaborator.
func (a *Aggregator) WithSaver(saver KeySaver) *Aggregator {
	a.saver = saver
	return a
}

// WithNotifier sets the notification collaborator and its endpoint.
// Notifications are skipped while endpoint is empty.
func (a *Aggregator) WithNotifier(notifier Notifier, endpoint string) *Aggregator {
	a.notifier = notifier
	a.endpoint = endpoint
	return a
}

// WithDisplay sets where progress is rendered.
func (a *Aggregator) WithDisplay(display ProgressDisplay) *Aggregator {
	a.display = display
	return a
}

// WithLogger sets the logger.
func (a *Aggregator) WithLogger(logger *slog.Logger) *Aggregator {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// WithClock replaces time.Now, mainly for tests.
func (a *Aggregator) WithClock(clock func() time.Time) *Aggregator {
	if clock != nil {
		a.clock = clock
	}
	return a
}

// WithDrainTimeout sets how long Run waits for workers after the stop signal.
func (a *Aggregator) WithDrainTimeout(d time.Duration) *Aggregator {
	if d > 0 {
		a.drain = d
	}
	return a
}

// Start marks the beginning of the run used for the lifetime average rate.
// Run and Handle call it implicitly when it was not called before.
func (a *Aggregator) Start(at time.Time) {
	a.start = at
}

// Run receives messages until a hit ends the run, ctx is cancelled, or in is
// closed. Once the run ends it raises the stop signal and keeps receiving
// until in is closed or the drain timeout passes, so that hits and attempts
// already reported by workers are not lost.
func (a *Aggregator) Run(ctx context.Context, in <-chan WorkerMessage) Result {
	if a.start.IsZero() {
		a.Start(a.clock())
	}
	defer a.finish()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("search cancelled", "attempts", a.totalAttempts)
			a.drainMessages(ctx, in)
			return a.Result()
		case msg, ok := <-in:
			if !ok {
				a.logger.Info("all workers finished", "attempts", a.totalAttempts)
				a.stop.Set()
				return a.Result()
			}
			if a.Handle(ctx, msg) {
				a.drainMessages(ctx, in)
				return a.Result()
			}
		}
	}
}

// drainMessages applies what is left in in after the stop signal. In
// stop-on-match mode only the attempts of late hits are counted once a key
// has been found.
func (a *Aggregator) drainMessages(ctx context.Context, in <-chan WorkerMessage) {
	a.stop.Set()
	timer := time.NewTimer(a.drain)
	defer timer.Stop()

	for {
		select {
		case msg, ok := <-in:
			if !ok {
				return
			}
			if msg.Hit != nil && a.stopOnMatch && len(a.hitOrder) > 0 {
				a.logger.Debug("ignoring match after stop", "worker", msg.WorkerID, "pattern", msg.Hit.Pattern.String())
				msg.Hit = nil
			}
			a.Handle(ctx, msg)
		case <-timer.C:
			a.logger.Warn("workers still running after stop", "timeout", a.drain.String())
			return
		}
	}
}

// Handle applies one worker message. It reports whether the run is over.
func (a *Aggregator) Handle(ctx context.Context, msg WorkerMessage) bool {
	now := a.clock()
	if a.start.IsZero() {
		a.Start(now)
	}

	a.totalAttempts += msg.Attempts
	a.window.Add(now, msg.Attempts)
	a.metrics.attempts.Add(ctx, int64(msg.Attempts))

	if msg.Hit == nil {
		a.render(now, false)
		return false
	}

	a.recordHit(ctx, msg.WorkerID, *msg.Hit, now)
	a.render(now, true)

	if a.stopOnMatch {
		a.stop.Set()
		return true
	}
	return false
}

func (a *Aggregator) recordHit(ctx context.Context, workerID int, hit SearchHit, now time.Time) {
	key := hit.Pattern.Key()
	a.hits[key] = append(a.hits[key], hit.KeyPair)
	a.hitOrder = append(a.hitOrder, hit)
	a.metrics.hits.Add(ctx, 1, metric.WithAttributes(attribute.String("pattern", hit.Pattern.String())))

	a.println(fmt.Sprintf("Found matching key for pattern '%s'", hit.Pattern))
	a.logger.Info("found matching key",
		"pattern", hit.Pattern.String(),
		"worker", workerID,
		"public_key", hit.KeyPair.AuthorizedKey(),
		"attempts", a.totalAttempts,
	)

	if a.saver != nil {
		path, err := a.saver.Save(hit.KeyPair, hit.Pattern.Filename(now))
		if err != nil {
			a.metrics.saveFailures.Add(ctx, 1)
			a.logger.Error("failed to save key", "pattern", hit.Pattern.String(), "error", err)
		} else {
			a.println(fmt.Sprintf("Key saved to '%s'", path))
		}
	}

	if a.notifier != nil && a.endpoint != "" {
		message := fmt.Sprintf("Found key matching pattern '%s'", hit.Pattern)
		notifyCtx, cancel := ctx, context.CancelFunc(func() {})
		if ctx.Err() != nil {
			notifyCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), notifyGrace)
		}
		a.pending.Add(1)
		go func() {
			defer a.pending.Done()
			defer cancel()
			if err := a.notifier.Notify(notifyCtx, a.endpoint, message); err != nil {
				a.metrics.notifyFailures.Add(ctx, 1)
				a.logger.Error("failed to send notification", "endpoint", a.endpoint, "error", err)
			}
		}()
	}
}

func (a *Aggregator) println(line string) {
	if a.display != nil {
		a.display.Println(line)
	}
}

func (a *Aggregator) render(now time.Time, force bool) {
	if a.display == nil {
		return
	}
	if !force && !a.lastRender.IsZero() && now.Sub(a.lastRender) < RenderInterval {
		return
	}
	a.lastRender = now
	a.display.Update(a.ProgressMessage(now))
}

func (a *Aggregator) finish() {
	a.pending.Wait()
	if a.display != nil {
		a.display.Update(a.ProgressMessage(a.clock()))
		a.display.Finish()
	}
}

// Wait blocks until in-flight notifications have completed.
func (a *Aggregator) Wait() {
	a.pending.Wait()
}

// TotalAttempts is the number of keys tested by all workers so far.
func (a *Aggregator) TotalAttempts() uint64 { return a.totalAttempts }

// Hits returns the keypairs stored for p, in arrival order.
func (a *Aggregator) Hits(p Pattern) []KeyPair {
	return a.hits[p.Key()]
}

// RollingRate is the throughput over the last RateWindow as seen from now.
func (a *Aggregator) RollingRate(now time.Time) float64 {
	a.window.Prune(now)
	return a.window.Rate()
}

// AverageRate is total attempts over wall time since the run started, or 0
// when no time has elapsed.
func (a *Aggregator) AverageRate(now time.Time) float64 {
	elapsed := now.Sub(a.start).Seconds()
	if a.start.IsZero() || elapsed <= 0 {
		return 0
	}
	return float64(a.totalAttempts) / elapsed
}

// Result snapshots the accumulated state.
func (a *Aggregator) Result() Result {
	hits := make([]SearchHit, len(a.hitOrder))
	copy(hits, a.hitOrder)
	var elapsed time.Duration
	if !a.start.IsZero() {
		elapsed = a.clock().Sub(a.start)
	}
	return Result{
		TotalAttempts: a.totalAttempts,
		Elapsed:       elapsed,
		Hits:          hits,
	}
}

// ProgressMessage renders the progress block as of now.
func (a *Aggregator) ProgressMessage(now time.Time) string {
	avg := math.Round(a.AverageRate(now))
	rolling := math.Round(a.RollingRate(now))

	var b strings.Builder
	fmt.Fprintf(&b, "Attempts: %s | %s keys/sec (1s) | %s keys/sec (avg)",
		humanize.Comma(int64(a.totalAttempts)),
		humanize.Comma(int64(rolling)),
		humanize.Comma(int64(avg)),
	)

	for _, p := range a.patterns {
		b.WriteString("\n")
		b.WriteString(formatPatternStats(p, avg))
		if n := len(a.hits[p.Key()]); n > 0 {
			b.WriteString(" | ")
			b.WriteString(formatHits(n))
		}
	}
	return b.String()
}

func formatPatternStats(p Pattern, rate float64) string {
	expected, ok := p.ExpectedAttempts()
	if !ok {
		return fmt.Sprintf("Pattern '%s': regex pattern (no estimate)", p.Source())
	}
	est, _ := p.EstimateTime(rate)
	return fmt.Sprintf("Pattern '%s': 1 in %s (est. %s)", p.Source(), humanize.Commaf(expected), shortDuration(est))
}

func formatHits(n int) string {
	if n == 1 {
		return "1 key found"
	}
	return fmt.Sprintf("%s keys found", humanize.Comma(int64(n)))
}
