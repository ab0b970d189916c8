package rtp

import "sync"

// LossTracker follows RTP sequence numbers for one stream and accounts for
// loss across 16-bit wraparound. It also feeds the receiver-report fields
// (extended highest sequence, cumulative and interval loss).
type LossTracker struct {
	mu sync.Mutex

	initialized bool
	baseSeq     uint16
	highestSeq  uint16
	cycles      uint32

	expectedPackets uint64
	receivedPackets uint64
	lostPackets     uint64

	// Interval state for fraction-lost since the previous report.
	lastExpected uint64
	lastReceived uint64
}

// ReportSnapshot holds the loss fields of one RTCP receiver report.
type ReportSnapshot struct {
	ExtendedHighestSeq uint32
	CumulativeLost     uint32
	FractionLost       uint8
	PacketsReceived    uint64
	PacketsLost        uint64
}

// NewLossTracker creates an empty tracker.
func NewLossTracker() *LossTracker {
	return &LossTracker{}
}

// Process records one arriving sequence number and returns the number of
// packets newly detected as lost (the gap before this packet, if any).
func (t *LossTracker) Process(seq uint16) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.initialized {
		t.initialized = true
		t.baseSeq = seq
		t.highestSeq = seq
		t.expectedPackets = 1
		t.receivedPackets = 1
		return 0
	}

	distance := int16(seq - t.highestSeq)
	switch {
	case distance == 0:
		// Duplicate, nothing to account.
		return 0

	case distance > 0:
		var lost uint64
		if distance > 1 {
			lost = uint64(distance - 1)
			t.lostPackets += lost
		}
		if seq < t.highestSeq {
			t.cycles++
		}
		t.highestSeq = seq
		t.expectedPackets += uint64(distance)
		t.receivedPackets++
		return lost

	default:
		// Late arrival of a packet previously counted as lost.
		t.receivedPackets++
		if t.lostPackets > 0 {
			t.lostPackets--
		}
		return 0
	}
}

// Snapshot returns receiver-report fields and starts a new report interval.
func (t *LossTracker) Snapshot() ReportSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := ReportSnapshot{
		ExtendedHighestSeq: t.cycles<<16 | uint32(t.highestSeq),
		PacketsReceived:    t.receivedPackets,
		PacketsLost:        t.lostPackets,
	}
	if t.lostPackets > 0xFFFFFF {
		snap.CumulativeLost = 0xFFFFFF
	} else {
		snap.CumulativeLost = uint32(t.lostPackets)
	}

	intervalExpected := t.expectedPackets - t.lastExpected
	intervalReceived := t.receivedPackets - t.lastReceived
	if intervalExpected > 0 && intervalExpected > intervalReceived {
		snap.FractionLost = uint8((intervalExpected - intervalReceived) * 256 / intervalExpected)
	}
	t.lastExpected = t.expectedPackets
	t.lastReceived = t.receivedPackets

	return snap
}
