package av1

import (
	"fmt"

	"github.com/zsiec/av1rtp/internal/logger"
)

// Packet is one arriving datagram, tagged by the transport layer.
type Packet struct {
	Timestamp      uint32
	SequenceNumber uint16
	Payload        []byte
}

// DepacketizerStats counts what the reassembly state machine has seen.
type DepacketizerStats struct {
	TemporalUnitsEmitted uint64
	PartialsDiscarded    uint64
	OrphansDropped       uint64
	MalformedDatagrams   uint64
}

// Depacketizer reassembles OBU streams from a possibly lossy sequence of
// datagrams. One instance serves one transport session; instances share
// nothing.
//
// Loss shows up as a timestamp change while a fragment buffer is open; the
// partial buffer is then discarded silently. That is recovery, not failure,
// so it never surfaces as an error.
type Depacketizer struct {
	buffer    []byte
	buffering bool
	timestamp uint32

	logger logger.Logger
	stats  DepacketizerStats
}

// NewDepacketizer returns a depacketizer in the idle state.
func NewDepacketizer(log logger.Logger) *Depacketizer {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Depacketizer{logger: log}
}

// Feed consumes one datagram. It returns a fully reassembled payload (the
// raw concatenated OBU bytes, length prefixes stripped), or (nil, nil) when
// more input is needed, or an error for datagrams that do not parse.
// Rejected datagrams never corrupt the open buffer: too-short datagrams are
// refused before any state changes, and a garbled element structure leaves
// the buffer exactly as it was.
func (d *Depacketizer) Feed(pkt *Packet) ([]byte, error) {
	if len(pkt.Payload) < aggregationHeaderSize+1 {
		d.stats.MalformedDatagrams++
		return nil, newError(KindMalformedDatagram,
			fmt.Sprintf("datagram too short: %d bytes", len(pkt.Payload)), nil)
	}

	hdr := pkt.Payload[0]
	zBit := hdr&flagZ != 0
	yBit := hdr&flagY != 0
	wField := int(hdr&wMask) >> wShift
	nBit := hdr&flagN != 0

	if nBit && zBit {
		d.stats.MalformedDatagrams++
		return nil, newError(KindProtocolViolation,
			"sequence start flagged on a continuation fragment", nil)
	}

	// A timestamp change while a buffer is open is the loss signal: drop
	// the partial unit and evaluate this datagram from idle.
	if d.buffering && pkt.Timestamp != d.timestamp {
		d.logger.WithFields(logger.Fields{
			"buffered_ts": d.timestamp,
			"packet_ts":   pkt.Timestamp,
			"dropped":     len(d.buffer),
		}).Debug("Discontinuity while buffering, discarding partial temporal unit")
		d.discard()
	}

	stripped, err := stripElements(pkt.Payload[aggregationHeaderSize:], wField)
	if err != nil {
		d.stats.MalformedDatagrams++
		return nil, err
	}

	if zBit && !d.buffering {
		// Continuation whose start was lost upstream.
		d.stats.OrphansDropped++
		d.logger.WithField("sequence", pkt.SequenceNumber).
			Debug("Dropping orphan continuation fragment")
		return nil, nil
	}

	if d.buffering {
		d.buffer = append(d.buffer, stripped...)
		if yBit {
			return nil, nil
		}
		return d.finalize(), nil
	}

	if yBit {
		// Fragment start: open a buffer keyed by this timestamp.
		d.buffering = true
		d.timestamp = pkt.Timestamp
		d.buffer = append(d.buffer[:0], stripped...)
		return nil, nil
	}

	// Self-contained datagram.
	d.stats.TemporalUnitsEmitted++
	return stripped, nil
}

// Reset discards any partial state, as when a session ends mid-sequence.
func (d *Depacketizer) Reset() {
	if d.buffering {
		d.discard()
	}
}

// Stats returns a copy of the running counters.
func (d *Depacketizer) Stats() DepacketizerStats {
	return d.stats
}

func (d *Depacketizer) discard() {
	d.stats.PartialsDiscarded++
	d.buffer = d.buffer[:0]
	d.buffering = false
}

func (d *Depacketizer) finalize() []byte {
	out := make([]byte, len(d.buffer))
	copy(out, d.buffer)
	d.buffer = d.buffer[:0]
	d.buffering = false
	d.stats.TemporalUnitsEmitted++
	return out
}

// stripElements walks the OBU elements of one datagram body and returns
// their bytes with the LEB128 length prefixes removed. With w == 0 every
// element is prefixed; with w >= 1 the first w-1 are prefixed and the last
// runs to the end of the payload.
func stripElements(body []byte, w int) ([]byte, error) {
	out := make([]byte, 0, len(body))
	offset := 0

	readPrefixed := func() error {
		length, n, err := DecodeLEB128(body[offset:])
		if err != nil {
			return err
		}
		offset += n
		if length > uint64(len(body)-offset) {
			return newError(KindMalformedDatagram,
				fmt.Sprintf("element length %d exceeds remaining %d bytes", length, len(body)-offset), nil)
		}
		out = append(out, body[offset:offset+int(length)]...)
		offset += int(length)
		return nil
	}

	if w == 0 {
		for offset < len(body) {
			if err := readPrefixed(); err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	for i := 0; i < w-1; i++ {
		if offset >= len(body) {
			return nil, newError(KindMalformedDatagram, "element count exceeds payload", nil)
		}
		if err := readPrefixed(); err != nil {
			return nil, err
		}
	}
	out = append(out, body[offset:]...)
	return out, nil
}
