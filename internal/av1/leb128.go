package av1

// LEB128 limits shared by the packetizer and depacketizer. The RTP payload
// format caps element lengths at 2^56-1, which is an 8-byte encoding.
const (
	MaxLEB128Bytes = 8
	MaxLEB128Value = uint64(1)<<56 - 1
)

// LEB128Size returns the number of bytes needed to encode value.
func LEB128Size(value uint64) int {
	size := 1
	for value >>= 7; value != 0; value >>= 7 {
		size++
	}
	return size
}

// EncodeLEB128 writes value into dst as an unsigned LEB128 varint and
// returns the number of bytes written. Values above MaxLEB128Value, or
// encodings that do not fit in dst, fail with an EncodingOverflow error.
func EncodeLEB128(value uint64, dst []byte) (int, error) {
	size := LEB128Size(value)
	if value > MaxLEB128Value || size > MaxLEB128Bytes {
		return 0, newError(KindEncodingOverflow, "value exceeds LEB128 ceiling", nil)
	}
	if size > len(dst) {
		return 0, newError(KindEncodingOverflow, "encode buffer too small", nil)
	}

	for i := 0; i < size; i++ {
		b := byte(value & 0x7F)
		value >>= 7
		if value != 0 {
			b |= 0x80 // more bytes follow
		}
		dst[i] = b
	}
	return size, nil
}

// DecodeLEB128 reads an unsigned LEB128 value from data and returns the
// value and the number of bytes consumed. Truncated encodings and
// encodings longer than MaxLEB128Bytes are malformed.
func DecodeLEB128(data []byte) (uint64, int, error) {
	var value uint64
	var shift uint
	var bytesRead int

	for bytesRead < len(data) && bytesRead < MaxLEB128Bytes {
		b := data[bytesRead]
		bytesRead++

		value |= uint64(b&0x7F) << shift
		shift += 7

		if b&0x80 == 0 {
			return value, bytesRead, nil
		}
	}

	if bytesRead >= MaxLEB128Bytes {
		return 0, bytesRead, newError(KindMalformedDatagram, "LEB128 encoding exceeds maximum length", nil)
	}
	return 0, bytesRead, newError(KindMalformedDatagram, "truncated LEB128 encoding", nil)
}
