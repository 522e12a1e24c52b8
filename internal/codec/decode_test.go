package codec

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildFrame assembles a valid Codec 8/8E frame from a pre-built payload
// (everything from codecId through numberOfData2 inclusive), computing
// dataFieldLength and appending a CRC. It mirrors the wire frame layout,
// used here only to produce fixtures — the test-side encoder half of the
// decode round trip.
func buildFrame(payload []byte) []byte {
	frame := make([]byte, 0, 12+len(payload))
	frame = binary.BigEndian.AppendUint32(frame, 0) // preamble
	frame = binary.BigEndian.AppendUint32(frame, uint32(len(payload)))
	frame = append(frame, payload...)
	frame = binary.BigEndian.AppendUint32(frame, uint32(CRC16IBM(payload)))
	return frame
}

func appendU16(b []byte, v uint16) []byte { return binary.BigEndian.AppendUint16(b, v) }
func appendU32(b []byte, v uint32) []byte { return binary.BigEndian.AppendUint32(b, v) }
func appendU64(b []byte, v uint64) []byte { return binary.BigEndian.AppendUint64(b, v) }

// codec8EIgnitionOdometerFrame builds a Codec 8E fixture: one record, ignition on,
// odometer 123456.
func codec8EIgnitionOdometerFrame() []byte {
	var p []byte
	p = append(p, Extended)
	p = append(p, 1) // numberOfData1

	// record
	p = appendU64(p, 1704067200000)
	p = append(p, 1) // priority
	p = appendU32(p, uint32(int32(260000000)))
	p = appendU32(p, uint32(int32(440000000)))
	p = appendU16(p, 100) // altitude
	p = appendU16(p, 90)  // angle
	p = append(p, 9)      // satellites
	p = appendU16(p, 50)  // speed

	p = appendU16(p, 1) // event io id
	p = appendU16(p, 2) // total element count

	p = appendU16(p, 1)  // 1-byte group count
	p = appendU16(p, 239) // ignition id
	p = append(p, 1)      // ignition value

	p = appendU16(p, 0) // 2-byte group count

	p = appendU16(p, 1)    // 4-byte group count
	p = appendU16(p, 16)   // odometer id
	p = appendU32(p, 123456)

	p = appendU16(p, 0) // 8-byte group count
	p = appendU16(p, 0) // NX count

	p = append(p, 1) // numberOfData2
	return buildFrame(p)
}

func TestDecode_Codec8EFullRecordProjection(t *testing.T) {
	frame := codec8EIgnitionOdometerFrame()
	pkt, err := Decode(frame)
	require.NoError(t, err)
	require.Equal(t, Extended, pkt.CodecID)
	require.Len(t, pkt.Records, 1)

	rec := pkt.Records[0]
	require.Equal(t, uint64(1704067200000), rec.Timestamp)
	require.Equal(t, uint8(1), rec.Priority)
	require.Equal(t, int32(440000000), rec.GPS.Latitude)
	require.Equal(t, int32(260000000), rec.GPS.Longitude)
	require.Equal(t, uint8(9), rec.GPS.Satellites)
	require.Len(t, rec.IOElements, 2)
	require.Equal(t, uint16(239), rec.IOElements[0].ID)
	require.Equal(t, uint64(1), rec.IOElements[0].Value)
	require.Equal(t, uint16(16), rec.IOElements[1].ID)
	require.Equal(t, uint64(123456), rec.IOElements[1].Value)
}

func TestDecode_AckCountMatchesNumberOfData1(t *testing.T) {
	frame := codec8EIgnitionOdometerFrame()
	pkt, err := Decode(frame)
	require.NoError(t, err)
	require.EqualValues(t, 1, pkt.NumberOfData1)
}

// Any byte slice shorter than a valid frame must error, never panic out
// of the package and never read past the slice.
func TestDecode_BoundedRead(t *testing.T) {
	frame := codec8EIgnitionOdometerFrame()
	for n := 0; n < len(frame); n++ {
		_, err := Decode(frame[:n])
		require.Error(t, err, "truncated to %d bytes should fail to decode", n)
		var de *DecodeError
		require.ErrorAs(t, err, &de)
	}
}

// numberOfData1 != numberOfData2 always yields DecodeError.
func TestDecode_CountMismatch(t *testing.T) {
	frame := codec8EIgnitionOdometerFrame()
	mismatched := make([]byte, len(frame))
	copy(mismatched, frame)

	// numberOfData2 is the byte immediately before the trailing 4-byte
	// CRC.
	idx := len(mismatched) - 4 - 1
	mismatched[idx] = 2
	// Recompute nothing: CRC is not validated, so a standalone count
	// corruption alone must still surface as a DecodeError.

	_, err := Decode(mismatched)
	require.Error(t, err)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
}

func TestDecode_UnknownCodecID(t *testing.T) {
	var p []byte
	p = append(p, 0x07, 1)
	p = appendU64(p, 0)
	frame := buildFrame(p)
	_, err := Decode(frame)
	require.Error(t, err)
}

func TestDecode_BadPreamble(t *testing.T) {
	frame := codec8EIgnitionOdometerFrame()
	frame[0] = 0xFF
	_, err := Decode(frame)
	require.Error(t, err)
}

func TestFrameLength(t *testing.T) {
	frame := codec8EIgnitionOdometerFrame()
	n, ok := FrameLength(frame[:8])
	require.True(t, ok)
	require.Equal(t, len(frame), n)
}

func TestFrameLength_NeedsMoreBytes(t *testing.T) {
	_, ok := FrameLength(make([]byte, 4))
	require.False(t, ok)
}

func TestCRC16IBM_Deterministic(t *testing.T) {
	a := CRC16IBM([]byte("teltonika"))
	b := CRC16IBM([]byte("teltonika"))
	require.Equal(t, a, b)
	require.NotEqual(t, a, CRC16IBM([]byte("teltonikb")))
}

func TestDecode_Codec8_NoNXSection(t *testing.T) {
	var p []byte
	p = append(p, Standard)
	p = append(p, 1)
	p = appendU64(p, 1704067200000)
	p = append(p, 0) // priority
	p = appendU32(p, 0)
	p = appendU32(p, 0)
	p = appendU16(p, 0)
	p = appendU16(p, 0)
	p = append(p, 0)
	p = appendU16(p, 0)

	p = append(p, 1) // event io id (1 byte width for codec 8)
	p = append(p, 1) // total count

	p = append(p, 1)       // 1-byte group count
	p = append(p, 239, 1) // ignition id + value

	p = append(p, 0) // 2-byte group count
	p = append(p, 0) // 4-byte group count
	p = append(p, 0) // 8-byte group count
	// no NX section for Codec 8

	p = append(p, 1) // numberOfData2
	frame := buildFrame(p)

	pkt, err := Decode(frame)
	require.NoError(t, err)
	require.Equal(t, Standard, pkt.CodecID)
	require.Len(t, pkt.Records[0].IOElements, 1)
}
