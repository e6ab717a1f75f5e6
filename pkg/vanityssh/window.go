package vanityssh

import "time"

// RateWindow is the span the rolling throughput rate is computed over.
const RateWindow = time.Second

type windowEntry struct {
	at       time.Time
	attempts uint64
}

// RollingWindow keeps (timestamp, attempts) samples no older than its span
// and a running sum of their attempts. Samples must be added in
// non-decreasing time order; eviction pops from the front only.
type RollingWindow struct {
	span    time.Duration
	entries []windowEntry
	head    int
	sum     uint64
}

// NewRollingWindow returns an empty window covering span.
func NewRollingWindow(span time.Duration) *RollingWindow {
	return &RollingWindow{span: span}
}

// Add records attempts at time at and evicts samples that fell out of the window.
func (w *RollingWindow) Add(at time.Time, attempts uint64) {
	w.entries = append(w.entries, windowEntry{at: at, attempts: attempts})
	w.sum += attempts
	w.Prune(at)
}

// Prune evicts samples older than the span as seen from now.
func (w *RollingWindow) Prune(now time.Time) {
	for w.head < len(w.entries) && now.Sub(w.entries[w.head].at) > w.span {
		w.sum -= w.entries[w.head].attempts
		w.entries[w.head] = windowEntry{}
		w.head++
	}

	// Reclaim the evicted prefix once it dominates the slice.
	if w.head > 0 && w.head*2 >= len(w.entries) {
		n := copy(w.entries, w.entries[w.head:])
		w.entries = w.entries[:n]
		w.head = 0
	}
}

// Sum is the total attempts currently inside the window.
func (w *RollingWindow) Sum() uint64 { return w.sum }

// Len is the number of samples currently inside the window.
func (w *RollingWindow) Len() int { return len(w.entries) - w.head }

// Rate is the windowed throughput in attempts per second.
func (w *RollingWindow) Rate() float64 {
	if w.Len() == 0 {
		return 0
	}
	return float64(w.sum) / w.span.Seconds()
}
