package rtp

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/av1rtp/internal/av1"
	"github.com/zsiec/av1rtp/internal/logger"
)

// newTestReceiver builds a receiver without binding a socket so handlePacket
// can be driven directly.
func newTestReceiver(handler TemporalUnitHandler) *Receiver {
	return &Receiver{
		streamID:     "test-stream",
		depacketizer: av1.NewDepacketizer(nil),
		tracker:      NewLossTracker(),
		handler:      handler,
		logger:       logger.NewNullLogger(),
	}
}

func rtpPacket(seq uint16, ts uint32, marker bool, payload []byte) *rtp.Packet {
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    98,
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           0x1234,
			Marker:         marker,
		},
		Payload: payload,
	}
}

func TestReceiverReassemblesAcrossPackets(t *testing.T) {
	var units [][]byte
	var timestamps []uint32
	r := newTestReceiver(func(payload []byte, ts uint32) error {
		units = append(units, payload)
		timestamps = append(timestamps, ts)
		return nil
	})

	p, err := av1.NewPacketizer(50, nil)
	require.NoError(t, err)

	obus := [][]byte{testOBU(av1.OBUSequenceHeader, 8), testOBU(av1.OBUFrame, 90)}
	datagrams, err := p.Packetize(obus)
	require.NoError(t, err)
	require.Greater(t, len(datagrams), 1)

	seq := uint16(500)
	for _, d := range datagrams {
		r.handlePacket(rtpPacket(seq, 81000, d.Marker, d.Payload))
		seq++
	}

	var want []byte
	for _, obu := range obus {
		want = append(want, obu...)
	}
	require.Len(t, units, 1)
	assert.Equal(t, want, units[0])
	assert.Equal(t, uint32(81000), timestamps[0])
}

func TestReceiverDiscardsPartialOnLoss(t *testing.T) {
	var units [][]byte
	r := newTestReceiver(func(payload []byte, ts uint32) error {
		units = append(units, payload)
		return nil
	})

	p, err := av1.NewPacketizer(50, nil)
	require.NoError(t, err)

	// First unit fragments across several packets; drop the tail.
	datagrams, err := p.Packetize([][]byte{testOBU(av1.OBUFrame, 120)})
	require.NoError(t, err)
	require.Greater(t, len(datagrams), 2)

	seq := uint16(0)
	for _, d := range datagrams[:len(datagrams)-1] {
		r.handlePacket(rtpPacket(seq, 3000, d.Marker, d.Payload))
		seq++
	}
	seq++ // the lost tail

	// Second unit arrives intact.
	small := testOBU(av1.OBUMetadata, 5)
	datagrams, err = p.Packetize([][]byte{small})
	require.NoError(t, err)
	for _, d := range datagrams {
		r.handlePacket(rtpPacket(seq, 6000, d.Marker, d.Payload))
		seq++
	}

	require.Len(t, units, 1, "only the intact unit is delivered")
	assert.Equal(t, small, units[0])
	assert.Equal(t, uint64(1), r.depacketizer.Stats().PartialsDiscarded)
}

func TestReceiverSurvivesMalformedPacket(t *testing.T) {
	var units [][]byte
	r := newTestReceiver(func(payload []byte, ts uint32) error {
		units = append(units, payload)
		return nil
	})

	r.handlePacket(rtpPacket(0, 3000, false, []byte{0x00}))
	assert.Empty(t, units)

	// A well-formed datagram still goes through afterwards.
	p, err := av1.NewPacketizer(1200, nil)
	require.NoError(t, err)
	datagrams, err := p.Packetize([][]byte{testOBU(av1.OBUFrame, 10)})
	require.NoError(t, err)
	r.handlePacket(rtpPacket(1, 3000, true, datagrams[0].Payload))
	assert.Len(t, units, 1)
}
