package rtp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/av1rtp/internal/av1"
	"github.com/zsiec/av1rtp/internal/config"
)

func testOBU(obuType av1.OBUType, payloadLen int) []byte {
	obu := []byte{byte(obuType)<<3 | 0x02, byte(payloadLen)}
	for i := 0; i < payloadLen; i++ {
		obu = append(obu, byte(i))
	}
	return obu
}

func TestSenderTransmitsTemporalUnit(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer listener.Close()

	rtpCfg := &config.RTPConfig{
		TargetAddr:  listener.LocalAddr().String(),
		PayloadType: 98,
		ClockRate:   90000,
	}
	pktCfg := &config.PacketizerConfig{MaxPayloadSize: 100}

	sender, err := NewSender(rtpCfg, pktCfg, nil)
	require.NoError(t, err)
	defer sender.Close()

	obus := [][]byte{testOBU(av1.OBUSequenceHeader, 10), testOBU(av1.OBUFrame, 120)}
	require.NoError(t, sender.SendTemporalUnit(context.Background(), obus, 3000))

	// The 120-byte frame cannot fit a 100-byte budget, so at least two
	// packets are on the wire; the last carries the marker.
	var pkts []rtp.Packet
	buf := make([]byte, 1500)
	listener.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		n, _, err := listener.ReadFromUDP(buf)
		require.NoError(t, err)

		var pkt rtp.Packet
		require.NoError(t, pkt.Unmarshal(append([]byte(nil), buf[:n]...)))
		pkts = append(pkts, pkt)
		if pkt.Marker {
			break
		}
	}
	require.GreaterOrEqual(t, len(pkts), 2)

	// Feeding the payloads back through a depacketizer restores the unit.
	d := av1.NewDepacketizer(nil)
	var got []byte
	for i, pkt := range pkts {
		assert.Equal(t, uint8(98), pkt.PayloadType)
		assert.Equal(t, uint32(3000), pkt.Timestamp)
		assert.Equal(t, pkts[0].SequenceNumber+uint16(i), pkt.SequenceNumber)
		assert.Equal(t, i == len(pkts)-1, pkt.Marker)

		out, err := d.Feed(&av1.Packet{
			Timestamp:      pkt.Timestamp,
			SequenceNumber: pkt.SequenceNumber,
			Payload:        pkt.Payload,
		})
		require.NoError(t, err)
		got = append(got, out...)
	}

	var want []byte
	for _, obu := range obus {
		want = append(want, obu...)
	}
	assert.Equal(t, want, got)
}

func TestSenderRejectsBadPayloadBudget(t *testing.T) {
	rtpCfg := &config.RTPConfig{TargetAddr: "127.0.0.1:5004", PayloadType: 98}
	pktCfg := &config.PacketizerConfig{MaxPayloadSize: 1}

	_, err := NewSender(rtpCfg, pktCfg, nil)
	require.Error(t, err)
	assert.Equal(t, av1.KindConfig, av1.KindOf(err))
}
