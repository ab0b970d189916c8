package rtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLossTrackerSequential(t *testing.T) {
	tr := NewLossTracker()

	for seq := uint16(100); seq < 110; seq++ {
		assert.Zero(t, tr.Process(seq))
	}

	snap := tr.Snapshot()
	assert.Equal(t, uint64(10), snap.PacketsReceived)
	assert.Equal(t, uint64(0), snap.PacketsLost)
	assert.Equal(t, uint8(0), snap.FractionLost)
	assert.Equal(t, uint32(109), snap.ExtendedHighestSeq)
}

func TestLossTrackerGap(t *testing.T) {
	tr := NewLossTracker()

	tr.Process(10)
	lost := tr.Process(14) // 11, 12, 13 missing
	assert.Equal(t, uint64(3), lost)

	snap := tr.Snapshot()
	assert.Equal(t, uint64(3), snap.PacketsLost)
	assert.Equal(t, uint32(3), snap.CumulativeLost)
	// 3 of 5 expected in the interval.
	assert.Equal(t, uint8(3*256/5), snap.FractionLost)
}

func TestLossTrackerLateArrival(t *testing.T) {
	tr := NewLossTracker()

	tr.Process(10)
	assert.Equal(t, uint64(1), tr.Process(12))
	assert.Zero(t, tr.Process(11), "late packet is not new loss")

	snap := tr.Snapshot()
	assert.Equal(t, uint64(0), snap.PacketsLost, "late arrival cancels the loss")
}

func TestLossTrackerDuplicate(t *testing.T) {
	tr := NewLossTracker()

	tr.Process(42)
	assert.Zero(t, tr.Process(42))

	snap := tr.Snapshot()
	assert.Equal(t, uint64(1), snap.PacketsReceived)
}

func TestLossTrackerWraparound(t *testing.T) {
	tr := NewLossTracker()

	tr.Process(65534)
	assert.Zero(t, tr.Process(65535))
	assert.Zero(t, tr.Process(0))
	assert.Zero(t, tr.Process(1))

	snap := tr.Snapshot()
	assert.Equal(t, uint64(0), snap.PacketsLost)
	assert.Equal(t, uint32(1<<16|1), snap.ExtendedHighestSeq, "cycle counted across wrap")
}

func TestLossTrackerFractionResetsPerInterval(t *testing.T) {
	tr := NewLossTracker()

	tr.Process(0)
	tr.Process(4) // 3 lost
	assert.NotZero(t, tr.Snapshot().FractionLost)

	tr.Process(5)
	tr.Process(6)
	assert.Zero(t, tr.Snapshot().FractionLost, "clean interval after a lossy one")
}
