package av1

import (
	"fmt"

	"github.com/zsiec/av1rtp/internal/logger"
)

// Aggregation header bit layout (one byte per datagram):
//
//	 0 1 2 3 4 5 6 7
//	+-+-+-+-+-+-+-+-+
//	|Z|Y| W |N|-|-|-|
//	+-+-+-+-+-+-+-+-+
//
// Z: the first OBU element continues a fragment from the previous datagram.
// Y: the last OBU element is a fragment that continues in the next datagram.
// W: number of OBU elements (0 = determined by consuming the payload; for
//    1-3 the last element carries no length prefix).
// N: first datagram of the coded sequence. N=1 implies Z=0.
const (
	aggregationHeaderSize = 1

	flagZ = 0x80
	flagY = 0x40
	flagN = 0x08

	wShift = 4
	wMask  = 0x30

	// maxCountedElements is the largest element count W can express exactly.
	maxCountedElements = 3
)

// MinPayloadSize is the smallest usable payload budget: the aggregation
// header, one length-prefix byte and one byte of OBU data.
const MinPayloadSize = aggregationHeaderSize + 2

// Datagram is one packetized payload ready for transport.
type Datagram struct {
	Payload []byte
	// Marker is set on the final datagram of a temporal unit, for the
	// transport layer's access-unit marker.
	Marker bool
}

// ContinuesPrevious reports the Z flag: the datagram starts with the
// continuation of a fragmented OBU.
func (d Datagram) ContinuesPrevious() bool {
	return len(d.Payload) > 0 && d.Payload[0]&flagZ != 0
}

// ContinuesInNext reports the Y flag: the datagram ends with a fragment
// that continues in the next datagram.
func (d Datagram) ContinuesInNext() bool {
	return len(d.Payload) > 0 && d.Payload[0]&flagY != 0
}

// Packetizer turns temporal units of OBUs into datagrams bounded by a
// maximum payload size. One instance serves one coded sequence; the
// sequence-start flag is per instance, never shared.
type Packetizer struct {
	maxPayloadSize int
	logger         logger.Logger

	// Datagram under construction: whole elements collected so far, plus
	// whether the first of them is the tail of a fragmented OBU.
	elements     [][]byte
	continuation bool

	sequenceStarted bool
	scratch         [MaxLEB128Bytes]byte
}

// NewPacketizer validates the payload budget and returns a ready packetizer.
func NewPacketizer(maxPayloadSize int, log logger.Logger) (*Packetizer, error) {
	if maxPayloadSize < MinPayloadSize {
		return nil, newError(KindConfig,
			fmt.Sprintf("max payload size %d below minimum %d", maxPayloadSize, MinPayloadSize), nil)
	}
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Packetizer{
		maxPayloadSize: maxPayloadSize,
		logger:         log,
	}, nil
}

// Packetize consumes one temporal unit (ordered OBUs, each a full OBU
// including its header) and returns the datagrams carrying it. A leading
// temporal delimiter is dropped. The final datagram has Marker set.
//
// An OBU whose length exceeds the LEB128 ceiling is skipped; the remaining
// OBUs are still packetized and the skip is reported through the returned
// error alongside the valid datagrams.
func (p *Packetizer) Packetize(obus [][]byte) ([]Datagram, error) {
	if len(obus) > 0 {
		if h, err := ParseOBUHeader(obus[0]); err == nil && h.Type == OBUTemporalDelimiter {
			obus = obus[1:]
		}
	}

	var out []Datagram
	var firstErr error

	for _, obu := range obus {
		if len(obu) == 0 {
			continue
		}
		if uint64(len(obu)) > MaxLEB128Value {
			err := newError(KindEncodingOverflow,
				fmt.Sprintf("OBU length %d exceeds LEB128 ceiling", len(obu)), nil)
			p.logger.WithError(err).Error("Skipping oversized OBU")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out = p.appendOBU(out, obu)
	}

	// The temporal unit's tail becomes its final datagram.
	if len(p.elements) > 0 {
		out = append(out, p.flush(false))
	}
	if len(out) > 0 {
		out[len(out)-1].Marker = true
	}

	return out, firstErr
}

// appendOBU adds one OBU to the datagram under construction, splitting it
// across datagrams when it cannot fit whole.
func (p *Packetizer) appendOBU(out []Datagram, obu []byte) []Datagram {
	// An OBU that fits (with the element count still tracked exactly, the
	// last element needs no length prefix) is never split.
	if p.sizeWith(obu) <= p.maxPayloadSize {
		p.elements = append(p.elements, obu)
		return out
	}

	p.logger.WithFields(logger.Fields{
		"obu_size":    len(obu),
		"max_payload": p.maxPayloadSize,
	}).Debug("Fragmenting OBU across datagrams")

	// Fill the trailing slot of the current datagram when there is room for
	// a fragment of at least one byte after its own length prefix.
	if len(p.elements) > 0 {
		room := p.maxPayloadSize - p.sizeAllPrefixed()
		// Reserve space for the fragment's own length prefix; shrinking the
		// fragment can shrink the prefix, so size it against the room itself.
		fragLen := 0
		if room > 0 {
			fragLen = room - LEB128Size(uint64(room))
		}
		if fragLen >= 1 {
			p.elements = append(p.elements, obu[:fragLen])
			obu = obu[fragLen:]
			out = append(out, p.flush(true))
			p.continuation = true
		} else {
			out = append(out, p.flush(false))
		}
	}

	// Middle fragments occupy a full datagram each: a single bare element,
	// W=1, no inner length prefix.
	bare := p.maxPayloadSize - aggregationHeaderSize
	for len(obu) > bare {
		hdr := byte(1 << wShift)
		hdr |= flagY
		if p.continuation {
			hdr |= flagZ
		}
		p.stampSequenceStart(&hdr)

		payload := make([]byte, 0, p.maxPayloadSize)
		payload = append(payload, hdr)
		payload = append(payload, obu[:bare]...)
		out = append(out, Datagram{Payload: payload})

		obu = obu[bare:]
		p.continuation = true
	}

	// The tail opens the next datagram as a continuation; later OBUs of the
	// same temporal unit may still aggregate behind it.
	p.elements = append(p.elements, obu)
	return out
}

// sizeWith returns the serialized datagram size if obu joined the pending
// elements as the new last element.
func (p *Packetizer) sizeWith(obu []byte) int {
	size := aggregationHeaderSize
	for _, e := range p.elements {
		size += LEB128Size(uint64(len(e))) + len(e)
	}
	if len(p.elements)+1 > maxCountedElements {
		size += LEB128Size(uint64(len(obu)))
	}
	return size + len(obu)
}

// sizeAllPrefixed returns the serialized size with every pending element
// length-prefixed, the layout used when the datagram ends in a fragment.
func (p *Packetizer) sizeAllPrefixed() int {
	size := aggregationHeaderSize
	for _, e := range p.elements {
		size += LEB128Size(uint64(len(e))) + len(e)
	}
	return size
}

// flush serializes the pending elements into one datagram. fragmented marks
// the last element as a fragment continuing in the next datagram (Y=1); in
// that layout every element carries a length prefix and W is elided.
func (p *Packetizer) flush(fragmented bool) Datagram {
	n := len(p.elements)
	counted := !fragmented && n <= maxCountedElements

	hdr := byte(0)
	if p.continuation {
		hdr |= flagZ
	}
	if fragmented {
		hdr |= flagY
	}
	if counted {
		hdr |= byte(n) << wShift
	}
	p.stampSequenceStart(&hdr)

	payload := make([]byte, 0, p.maxPayloadSize)
	payload = append(payload, hdr)
	for i, e := range p.elements {
		if !(counted && i == n-1) {
			size, _ := EncodeLEB128(uint64(len(e)), p.scratch[:])
			payload = append(payload, p.scratch[:size]...)
		}
		payload = append(payload, e...)
	}

	p.elements = nil
	p.continuation = false
	return Datagram{Payload: payload}
}

// stampSequenceStart sets N on the first datagram this instance ever emits.
// Z is never set on that datagram, so N=1 implies Z=0 holds.
func (p *Packetizer) stampSequenceStart(hdr *byte) {
	if !p.sequenceStarted {
		*hdr |= flagN
		p.sequenceStarted = true
	}
}
