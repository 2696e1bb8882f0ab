package iec104

import "time"

// AckTrigger identifies which rule fired an acknowledgement.
type AckTrigger byte

const (
	AckNone AckTrigger = iota
	// AckEmergency fires when the estimate of the remote sender's
	// outstanding frames approaches its send window k. Without it a
	// quiet receiver stalls the sender permanently once k is reached.
	AckEmergency
	// AckCount fires after w information frames without an ack.
	AckCount
	// AckTimer fires when the oldest unacknowledged frame has waited
	// longer than t2.
	AckTimer
)

func (t AckTrigger) String() string {
	switch t {
	case AckEmergency:
		return "emergency"
	case AckCount:
		return "w"
	case AckTimer:
		return "t2"
	}
	return "none"
}

// AckStats counts fired acknowledgements per trigger.
type AckStats struct {
	Count     uint64
	Timer     uint64
	Emergency uint64
}

func (s *AckStats) inc(t AckTrigger) {
	switch t {
	case AckCount:
		s.Count++
	case AckTimer:
		s.Timer++
	case AckEmergency:
		s.Emergency++
	}
}

// AckDecision is the outcome of evaluating one inbound I-frame.
type AckDecision struct {
	// NextNR is the N(R) value an acknowledgement should carry.
	NextNR uint16
	// WindowUsed estimates how many frames the remote sender
	// currently considers unacknowledged.
	WindowUsed uint16
	Trigger    AckTrigger
}

// Fire reports whether an acknowledgement must be transmitted now.
func (d AckDecision) Fire() bool { return d.Trigger != AckNone }

/*
AckEngine coalesces acknowledgements for inbound information frames.

Rather than acknowledging every I-frame, it holds back until one of
three triggers fires: the count threshold w, the coalescing timeout t2,
or the emergency rule guarding the remote send window k. This trades
acknowledgement latency, bounded by w and t2, against transmission
volume on the link.

The engine is owned by a single session goroutine; it is not safe for
concurrent use and is reset whenever a connection is (re)established.
*/
type AckEngine struct {
	k  uint16
	w  int
	t2 time.Duration

	lastAckNR    uint16
	pendingNR    uint16
	sinceLastAck int
	t2Started    time.Time // zero while no ack is pending

	Stats AckStats
}

func NewAckEngine(cfg *Config) *AckEngine {
	return &AckEngine{
		k:  cfg.SendWindowK,
		w:  cfg.AckThresholdW,
		t2: cfg.AckTimeoutT2.std(),
	}
}

// OnInformation records one received I-frame carrying send sequence
// number ns and decides whether to acknowledge now. The counter and the
// t2 timer advance regardless of the decision; the caller commits the
// decision with Confirm only once the acknowledgement actually went out,
// so a blocked transmit leaves the triggers armed for the next frame.
//
// WindowUsed is derived from the locally tracked last acknowledged N(R),
// which approximates but cannot exactly observe the sender's own view of
// its window. It is a heuristic, not a bound.
func (e *AckEngine) OnInformation(ns uint16, now time.Time) AckDecision {
	d := AckDecision{NextNR: seqInc(ns)}

	e.pendingNR = d.NextNR
	e.sinceLastAck++
	if e.t2Started.IsZero() {
		e.t2Started = now
	}
	d.WindowUsed = seqDistance(d.NextNR, e.lastAckNR)

	switch {
	case e.k >= 2 && d.WindowUsed >= e.k-2:
		d.Trigger = AckEmergency
	case e.sinceLastAck >= e.w:
		d.Trigger = AckCount
	case now.Sub(e.t2Started) >= e.t2:
		d.Trigger = AckTimer
	}
	return d
}

// OnIdle re-evaluates the t2 trigger while the link is quiet. Without
// it an acknowledgement owed for the last frame of a burst would wait
// for the next burst instead of the t2 deadline. It reports false when
// nothing is pending or the deadline has not passed.
func (e *AckEngine) OnIdle(now time.Time) (AckDecision, bool) {
	if e.sinceLastAck == 0 || e.t2Started.IsZero() || now.Sub(e.t2Started) < e.t2 {
		return AckDecision{}, false
	}
	return AckDecision{
		NextNR:     e.pendingNR,
		WindowUsed: seqDistance(e.pendingNR, e.lastAckNR),
		Trigger:    AckTimer,
	}, true
}

// Confirm commits a fired decision after its acknowledgement was
// transmitted: the trigger state rewinds to empty and the stats counter
// for the trigger advances.
func (e *AckEngine) Confirm(d AckDecision) {
	e.lastAckNR = d.NextNR
	e.sinceLastAck = 0
	e.t2Started = time.Time{}
	e.Stats.inc(d.Trigger)
}

// Reset returns the engine to its connection-start state. Acknowledgement
// state never survives a reconnect.
func (e *AckEngine) Reset() {
	e.lastAckNR = 0
	e.pendingNR = 0
	e.sinceLastAck = 0
	e.t2Started = time.Time{}
}
