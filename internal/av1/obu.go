package av1

import "fmt"

// OBUType identifies an OBU per the AV1 bitstream specification.
type OBUType uint8

const (
	OBUSequenceHeader       OBUType = 1
	OBUTemporalDelimiter    OBUType = 2
	OBUFrameHeader          OBUType = 3
	OBUTileGroup            OBUType = 4
	OBUMetadata             OBUType = 5
	OBUFrame                OBUType = 6
	OBURedundantFrameHeader OBUType = 7
	OBUTileList             OBUType = 8
	OBUPadding              OBUType = 15
)

// String returns a human-readable name for the OBU type.
func (t OBUType) String() string {
	switch t {
	case OBUSequenceHeader:
		return "SequenceHeader"
	case OBUTemporalDelimiter:
		return "TemporalDelimiter"
	case OBUFrameHeader:
		return "FrameHeader"
	case OBUTileGroup:
		return "TileGroup"
	case OBUMetadata:
		return "Metadata"
	case OBUFrame:
		return "Frame"
	case OBURedundantFrameHeader:
		return "RedundantFrameHeader"
	case OBUTileList:
		return "TileList"
	case OBUPadding:
		return "Padding"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// OBUHeader is the parsed fixed header of an OBU.
//
// Header byte layout:
//
//	bit 7: forbidden (must be 0)
//	bits 6-3: OBU type
//	bit 2: extension flag
//	bit 1: has_size_field
//	bit 0: reserved
type OBUHeader struct {
	Type       OBUType
	HasExt     bool
	HasSize    bool
	TemporalID uint8
	SpatialID  uint8

	// HeaderLen is the number of bytes covered by the fixed header and the
	// optional extension byte, not counting any size field.
	HeaderLen int
}

// ParseOBUHeader parses the OBU header (and extension byte if present)
// at the start of data.
func ParseOBUHeader(data []byte) (OBUHeader, error) {
	var h OBUHeader
	if len(data) < 1 {
		return h, newError(KindMalformedDatagram, "insufficient data for OBU header", nil)
	}

	b := data[0]
	if b&0x80 != 0 {
		return h, newError(KindMalformedDatagram, "forbidden bit set in OBU header", nil)
	}

	h.Type = OBUType((b >> 3) & 0x0F)
	h.HasExt = b&0x04 != 0
	h.HasSize = b&0x02 != 0
	h.HeaderLen = 1

	if h.HasExt {
		if len(data) < 2 {
			return h, newError(KindMalformedDatagram, "insufficient data for OBU extension header", nil)
		}
		ext := data[1]
		h.TemporalID = (ext >> 5) & 0x07
		h.SpatialID = (ext >> 3) & 0x03
		h.HeaderLen = 2
	}

	return h, nil
}

// SplitTemporalUnit cuts one temporal unit of a low-overhead bitstream
// (every OBU carrying a size field) into per-OBU byte ranges. Each returned
// slice aliases data and spans the full OBU including its header and size
// field.
func SplitTemporalUnit(data []byte) ([][]byte, error) {
	var obus [][]byte

	for len(data) > 0 {
		h, err := ParseOBUHeader(data)
		if err != nil {
			return nil, err
		}
		if !h.HasSize {
			return nil, newError(KindMalformedDatagram,
				fmt.Sprintf("%s OBU without size field in low-overhead stream", h.Type), nil)
		}

		size, n, err := DecodeLEB128(data[h.HeaderLen:])
		if err != nil {
			return nil, err
		}
		total := h.HeaderLen + n + int(size)
		if size > uint64(len(data)-h.HeaderLen-n) {
			return nil, newError(KindMalformedDatagram,
				fmt.Sprintf("OBU size %d exceeds remaining %d bytes", size, len(data)-h.HeaderLen-n), nil)
		}

		obus = append(obus, data[:total])
		data = data[total:]
	}

	return obus, nil
}
