package iec104

import (
	"testing"
	"time"
)

func testAckEngine() *AckEngine {
	cfg := DefaultConfig()
	cfg.RemoteAddress = "127.0.0.1:2404"
	if err := cfg.Valid(); err != nil {
		panic(err)
	}
	return NewAckEngine(&cfg) // k=12, w=8, t2=10s
}

func TestAckCountTrigger(t *testing.T) {
	e := testAckEngine()
	now := time.Now()

	// Frames 1..7 coalesce, the 8th reaches w.
	for ns := uint16(0); ns < 7; ns++ {
		d := e.OnInformation(ns, now)
		if d.Fire() {
			t.Fatalf("frame N(S)=%d fired %s, want none", ns, d.Trigger)
		}
	}
	d := e.OnInformation(7, now)
	if d.Trigger != AckCount {
		t.Fatalf("8th frame trigger = %s, want w", d.Trigger)
	}
	if d.NextNR != 8 {
		t.Errorf("NextNR = %d, want 8", d.NextNR)
	}
	e.Confirm(d)
	if e.Stats.Count != 1 || e.Stats.Timer != 0 || e.Stats.Emergency != 0 {
		t.Errorf("stats = %+v, want exactly one count ack", e.Stats)
	}

	// The counter restarted: the next frame does not fire.
	if d := e.OnInformation(8, now); d.Fire() {
		t.Errorf("frame after confirm fired %s, want none", d.Trigger)
	}
}

func TestAckEmergencyTrigger(t *testing.T) {
	e := testAckEngine()
	now := time.Now()

	// The remote sender is ahead of the last acknowledged number, so
	// the window estimate reaches k-2 before w frames arrive locally.
	d := e.OnInformation(9, now) // used = distance(10, 0) = 10 >= 12-2
	if d.Trigger != AckEmergency {
		t.Fatalf("trigger = %s, want emergency", d.Trigger)
	}
	if d.WindowUsed != 10 {
		t.Errorf("WindowUsed = %d, want 10", d.WindowUsed)
	}
	e.Confirm(d)
	if e.Stats.Emergency != 1 {
		t.Errorf("emergency count = %d, want 1", e.Stats.Emergency)
	}
}

func TestAckEmergencyAcrossWraparound(t *testing.T) {
	e := testAckEngine()
	now := time.Now()

	// Walk the ack state near the top of the sequence space.
	d := e.OnInformation(32765, now)
	if d.Trigger != AckEmergency {
		t.Fatalf("trigger = %s, want emergency", d.Trigger)
	}
	e.Confirm(d) // lastAckNR = 32766

	// Nine frames later the stream has wrapped; distance must too.
	d = e.OnInformation(6, now) // used = distance(7, 32766) = 9
	if d.WindowUsed != 9 {
		t.Errorf("WindowUsed = %d, want 9", d.WindowUsed)
	}
	if d.Fire() {
		t.Errorf("trigger = %s, want none", d.Trigger)
	}
}

func TestAckTimerTriggerOnArrival(t *testing.T) {
	e := testAckEngine()
	start := time.Now()

	if d := e.OnInformation(0, start); d.Fire() {
		t.Fatalf("first frame fired %s, want none", d.Trigger)
	}
	// The next frame lands after t2 expired.
	d := e.OnInformation(1, start.Add(11*time.Second))
	if d.Trigger != AckTimer {
		t.Fatalf("trigger = %s, want t2", d.Trigger)
	}
	if d.NextNR != 2 {
		t.Errorf("NextNR = %d, want 2", d.NextNR)
	}
}

func TestAckTimerTriggerOnIdle(t *testing.T) {
	e := testAckEngine()
	start := time.Now()

	if d := e.OnInformation(0, start); d.Fire() {
		t.Fatalf("first frame fired %s, want none", d.Trigger)
	}
	if _, ok := e.OnIdle(start.Add(5 * time.Second)); ok {
		t.Fatal("idle ack fired before t2 expired")
	}
	d, ok := e.OnIdle(start.Add(11 * time.Second))
	if !ok {
		t.Fatal("idle ack did not fire after t2 expired")
	}
	if d.Trigger != AckTimer {
		t.Fatalf("trigger = %s, want t2", d.Trigger)
	}
	if d.NextNR != 1 {
		t.Errorf("NextNR = %d, want 1", d.NextNR)
	}
	e.Confirm(d)

	// Exactly one: nothing is pending anymore.
	if _, ok := e.OnIdle(start.Add(30 * time.Second)); ok {
		t.Error("second idle ack fired with nothing pending")
	}
	if e.Stats.Timer != 1 {
		t.Errorf("timer count = %d, want 1", e.Stats.Timer)
	}
}

func TestAckRejectedSendLeavesStateArmed(t *testing.T) {
	e := testAckEngine()
	now := time.Now()

	for ns := uint16(0); ns < 8; ns++ {
		e.OnInformation(ns, now)
	}
	// The 8th decision fired but was never confirmed (e.g. the
	// gatekeeper rejected it); the very next frame must fire again.
	d := e.OnInformation(8, now)
	if !d.Fire() {
		t.Fatal("trigger did not re-fire after an unconfirmed decision")
	}
	if d.NextNR != 9 {
		t.Errorf("NextNR = %d, want 9", d.NextNR)
	}
	if e.Stats != (AckStats{}) {
		t.Errorf("stats advanced without a confirmed send: %+v", e.Stats)
	}
}

func TestAckReset(t *testing.T) {
	e := testAckEngine()
	now := time.Now()
	d := e.OnInformation(100, now)
	e.Confirm(d)
	e.Reset()

	// After a reset the window estimate is measured from zero again.
	d = e.OnInformation(0, now)
	if d.WindowUsed != 1 {
		t.Errorf("WindowUsed after reset = %d, want 1", d.WindowUsed)
	}
	if d.Fire() {
		t.Errorf("trigger = %s after reset, want none", d.Trigger)
	}
}
