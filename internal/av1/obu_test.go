package av1

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeOBU builds a valid low-overhead OBU: header byte (with has_size set),
// LEB128 size field, then payloadLen bytes of deterministic data.
func makeOBU(t *testing.T, obuType OBUType, payloadLen int) []byte {
	t.Helper()

	obu := []byte{byte(obuType)<<3 | 0x02}
	var scratch [MaxLEB128Bytes]byte
	n, err := EncodeLEB128(uint64(payloadLen), scratch[:])
	require.NoError(t, err)
	obu = append(obu, scratch[:n]...)
	for i := 0; i < payloadLen; i++ {
		obu = append(obu, byte(i*7+int(obuType)))
	}
	return obu
}

func TestParseOBUHeader(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    OBUHeader
		wantErr bool
	}{
		{
			name: "frame with size field",
			data: []byte{0x32}, // type 6, has_size
			want: OBUHeader{Type: OBUFrame, HasSize: true, HeaderLen: 1},
		},
		{
			name: "temporal delimiter",
			data: []byte{0x12},
			want: OBUHeader{Type: OBUTemporalDelimiter, HasSize: true, HeaderLen: 1},
		},
		{
			name: "extension header",
			data: []byte{0x36, 0x68}, // frame, ext+size, tid=3 sid=1
			want: OBUHeader{Type: OBUFrame, HasExt: true, HasSize: true, TemporalID: 3, SpatialID: 1, HeaderLen: 2},
		},
		{name: "empty", data: nil, wantErr: true},
		{name: "forbidden bit", data: []byte{0x80}, wantErr: true},
		{name: "truncated extension", data: []byte{0x36}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOBUHeader(tt.data)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, KindMalformedDatagram, KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOBUTypeString(t *testing.T) {
	assert.Equal(t, "SequenceHeader", OBUSequenceHeader.String())
	assert.Equal(t, "TemporalDelimiter", OBUTemporalDelimiter.String())
	assert.Equal(t, "Frame", OBUFrame.String())
	assert.Equal(t, "Unknown(12)", OBUType(12).String())
}

func TestSplitTemporalUnit(t *testing.T) {
	td := makeOBU(t, OBUTemporalDelimiter, 0)
	seq := makeOBU(t, OBUSequenceHeader, 10)
	frame := makeOBU(t, OBUFrame, 100)

	var stream []byte
	stream = append(stream, td...)
	stream = append(stream, seq...)
	stream = append(stream, frame...)

	obus, err := SplitTemporalUnit(stream)
	require.NoError(t, err)
	require.Len(t, obus, 3)
	assert.True(t, bytes.Equal(td, obus[0]))
	assert.True(t, bytes.Equal(seq, obus[1]))
	assert.True(t, bytes.Equal(frame, obus[2]))
}

func TestSplitTemporalUnitErrors(t *testing.T) {
	t.Run("missing size field", func(t *testing.T) {
		_, err := SplitTemporalUnit([]byte{0x30, 0x01, 0x02})
		require.Error(t, err)
		assert.Equal(t, KindMalformedDatagram, KindOf(err))
	})

	t.Run("size exceeds data", func(t *testing.T) {
		_, err := SplitTemporalUnit([]byte{0x32, 0x20, 0x01})
		require.Error(t, err)
		assert.Equal(t, KindMalformedDatagram, KindOf(err))
	})

	t.Run("truncated size field", func(t *testing.T) {
		_, err := SplitTemporalUnit([]byte{0x32, 0x80})
		require.Error(t, err)
	})
}
