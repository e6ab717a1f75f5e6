package vanityssh

import "sync/atomic"

// SearchHit is a keypair together with the pattern it matched.
type SearchHit struct {
	KeyPair KeyPair
	Pattern Pattern
}

// WorkerMessage is what a worker sends to the aggregator: either a progress
// heartbeat (Hit == nil) or a match. Attempts counts the keys tested since the
// worker's previous message.
type WorkerMessage struct {
	WorkerID int
	Attempts uint64
	Hit      *SearchHit
}

// StopSignal is a write-once flag polled by workers between batches.
// Setting it is advisory: a worker may finish the batch it is on before it
// notices, so shutdown takes up to one batch generation time.
type StopSignal struct {
	stopped atomic.Bool
}

// NewStopSignal returns an unset signal.
func NewStopSignal() *StopSignal {
	return &StopSignal{}
}

// Set raises the signal. It reports whether this call was the one that set it;
// repeated calls are no-ops.
func (s *StopSignal) Set() bool {
	return s.stopped.CompareAndSwap(false, true)
}

// Stopped reports whether the signal has been raised.
func (s *StopSignal) Stopped() bool {
	return s.stopped.Load()
}
