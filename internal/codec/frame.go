// Package codec implements a zero-copy, single-pass, big-endian decoder
// for Teltonika Codec 8 and Codec 8 Extended AVL frames. It is pure and
// stateless: Decode takes a byte slice and returns a decoded packet or
// a *DecodeError, never partial state.
package codec

import "encoding/binary"

// Codec ids.
const (
	Standard uint8 = 0x08
	Extended uint8 = 0x8E
)

// Envelope overhead outside dataFieldLength: 4B preamble + 4B length
// field + 4B CRC = 12 bytes.
const envelopeOverhead = 12

// NX element ids whose payload is ASCII text with trailing NULs
// stripped, rather than hex-encoded bytes.
var asciiNXIDs = map[uint16]bool{
	256: true, // VIN
	281: true,
	385: true, // Beacon
}

// FrameLength returns the total byte length of the frame whose header
// starts at data (which must be at least 8 bytes), derived from the
// dataFieldLength field at bytes [4:8]. ok is false if data is too short
// to read the length field yet; the caller should keep buffering.
func FrameLength(data []byte) (length int, ok bool) {
	if len(data) < 8 {
		return 0, false
	}
	dataFieldLength := binary.BigEndian.Uint32(data[4:8])
	return int(dataFieldLength) + envelopeOverhead, true
}

// DecodedPacket is the transient container produced by Decode.
type DecodedPacket struct {
	Preamble        uint32
	DataFieldLength uint32
	CodecID         uint8
	NumberOfData1   uint8
	Records         []AVLRecord
	NumberOfData2   uint8
	CRC             uint32
}

// GPSElement is the fixed-width position block every AVL record carries.
type GPSElement struct {
	Longitude  int32 // signed, ×10^7
	Latitude   int32 // signed, ×10^7
	Altitude   int16
	Angle      uint16
	Satellites uint8
	Speed      uint16
}

// IOElement is one decoded IO element, in the order it appeared on the
// wire. Value is uint64 for fixed-width {1,2,4,8}-byte groups (signed
// interpretation is applied at normalization time) or a string for NX
// items (ASCII for the documented ids, hex otherwise).
type IOElement struct {
	ID    uint16
	Value any
	Size  uint8
}

// AVLRecord is one decoded AVL sample, prior to semantic normalization.
type AVLRecord struct {
	Timestamp  uint64 // unsigned ms since epoch
	Priority   uint8
	GPS        GPSElement
	EventIOID  uint32
	IOElements []IOElement
}
