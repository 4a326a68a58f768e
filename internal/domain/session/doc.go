// Package session provides the per-page request/response correlator and
// outbound batcher.
//
// A Session bridges two independently scheduled contexts: the network
// goroutines reading client frames, and the single-threaded UI host
// producing outbound requests. It solves two problems:
//
//   - Correlation: every outbound request gets the next RequestID; a
//     supplied callback is held in a pending map until the matching
//     response arrives or the session tears down, whichever happens first.
//     A pending entry is removed exactly once and never fires twice.
//   - Batching: outbound requests accumulate in a FIFO queue; the first
//     enqueue arms a one-shot flush timer. When it fires, the whole queue
//     leaves as one wire frame, order preserved. The throttle coalesces,
//     it never drops.
//
// State machine: IDLE (no timer) -> enqueue -> ARMED (timer running,
// batch accumulating) -> fire -> emit -> IDLE. Close is reachable from
// either state and emits nothing; it clears the queue and the pending map
// and delivers one disconnect notice to the UI host.
//
// Locking: the session mutex guards counters, maps and the queue only.
// Sink writes and UI hand-offs always happen outside it.
//
// Example Usage:
//
//	s := session.New("View#1", time.Second/30, ui, sink, logger, metrics)
//	s.SendRequest(payload, func(result json.RawMessage) { ... })
//	s.HandleFrame(frame) // network goroutine
//	s.Close()            // page unregistered
package session
