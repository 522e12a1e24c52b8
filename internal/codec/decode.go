package codec

import "encoding/binary"

// boundsFault is the internal panic value used to unwind out of a
// record/IO-element parse the instant a read runs past the slice;
// Decode recovers it and turns it into a *DecodeError. It never escapes
// this package.
type boundsFault struct {
	offset int
	reason string
}

// cursor reads big-endian fixed-width fields off data, advancing pos,
// and panics with boundsFault on any out-of-bounds read so Decode can
// fail the whole frame without threading an error return through every
// helper in the IO-element tree.
type cursor struct {
	data []byte
	pos  int
}

func (c *cursor) need(n int) {
	if c.pos+n > len(c.data) {
		panic(boundsFault{offset: c.pos, reason: "short read"})
	}
}

func (c *cursor) u8() uint8 {
	c.need(1)
	v := c.data[c.pos]
	c.pos++
	return v
}

func (c *cursor) u16() uint16 {
	c.need(2)
	v := binary.BigEndian.Uint16(c.data[c.pos : c.pos+2])
	c.pos += 2
	return v
}

func (c *cursor) u32() uint32 {
	c.need(4)
	v := binary.BigEndian.Uint32(c.data[c.pos : c.pos+4])
	c.pos += 4
	return v
}

func (c *cursor) u64() uint64 {
	c.need(8)
	v := binary.BigEndian.Uint64(c.data[c.pos : c.pos+8])
	c.pos += 8
	return v
}

func (c *cursor) bytes(n int) []byte {
	c.need(n)
	v := c.data[c.pos : c.pos+n]
	c.pos += n
	return v
}

// idCountWidth returns the byte width used for IO element ids and group
// counts: 1 byte for Codec 8, 2 bytes for Codec 8 Extended.
func idCountWidth(codecID uint8) int {
	if codecID == Extended {
		return 2
	}
	return 1
}

func (c *cursor) idOrCount(width int) uint32 {
	if width == 2 {
		return uint32(c.u16())
	}
	return uint32(c.u8())
}

// Decode decodes a single whole frame. It never reads past data and
// never returns partial records: on any violation it returns a
// *DecodeError and a nil packet.
func Decode(data []byte) (packet *DecodedPacket, err error) {
	defer func() {
		if r := recover(); r != nil {
			if bf, ok := r.(boundsFault); ok {
				packet, err = nil, errAt(bf.offset, "%s", bf.reason)
				return
			}
			panic(r)
		}
	}()

	c := &cursor{data: data}

	preamble := c.u32()
	if preamble != 0 {
		return nil, errAt(0, "preamble must be zero, got 0x%08x", preamble)
	}
	dataFieldLength := c.u32()

	total := int(dataFieldLength) + envelopeOverhead
	if len(data) < total {
		return nil, errAt(len(data), "frame shorter than declared dataFieldLength: need %d bytes, have %d", total, len(data))
	}
	// Never read past the declared frame even if the caller handed us a
	// longer buffer with a subsequent frame appended.
	c.data = data[:total]

	codecID := c.u8()
	if codecID != Standard && codecID != Extended {
		return nil, errAt(c.pos-1, "unknown codec id 0x%02x", codecID)
	}
	numberOfData1 := c.u8()

	records := make([]AVLRecord, 0, numberOfData1)
	for i := 0; i < int(numberOfData1); i++ {
		records = append(records, decodeRecord(c, codecID))
	}

	numberOfData2 := c.u8()
	if numberOfData2 != numberOfData1 {
		return nil, errAt(c.pos-1, "numberOfData1 (%d) != numberOfData2 (%d)", numberOfData1, numberOfData2)
	}

	crc := c.u32()

	if c.pos != total {
		return nil, errAt(c.pos, "trailing %d unparsed bytes before end of frame", total-c.pos)
	}

	return &DecodedPacket{
		Preamble:        preamble,
		DataFieldLength: dataFieldLength,
		CodecID:         codecID,
		NumberOfData1:   numberOfData1,
		Records:         records,
		NumberOfData2:   numberOfData2,
		CRC:             crc,
	}, nil
}

func decodeRecord(c *cursor, codecID uint8) AVLRecord {
	rec := AVLRecord{
		Timestamp: c.u64(),
		Priority:  c.u8(),
		GPS: GPSElement{
			Longitude:  int32(c.u32()),
			Latitude:   int32(c.u32()),
			Altitude:   int16(c.u16()),
			Angle:      c.u16(),
			Satellites: c.u8(),
			Speed:      c.u16(),
		},
	}

	idw := idCountWidth(codecID)
	rec.EventIOID = c.idOrCount(idw)
	_ = c.idOrCount(idw) // total element count; not checked, the per-group counts below drive the parse

	widths := []struct {
		size int
	}{{1}, {2}, {4}, {8}}

	for _, g := range widths {
		count := c.idOrCount(idw)
		for i := uint32(0); i < count; i++ {
			id := uint32(c.idOrCount(idw))
			var value uint64
			switch g.size {
			case 1:
				value = uint64(c.u8())
			case 2:
				value = uint64(c.u16())
			case 4:
				value = uint64(c.u32())
			case 8:
				value = c.u64()
			}
			rec.IOElements = append(rec.IOElements, IOElement{ID: uint16(id), Value: value, Size: uint8(g.size)})
		}
	}

	if codecID == Extended {
		nxCount := c.idOrCount(idw)
		for i := uint32(0); i < nxCount; i++ {
			id := uint32(c.u16())
			length := int(c.u16())
			payload := c.bytes(length)
			rec.IOElements = append(rec.IOElements, IOElement{ID: uint16(id), Value: decodeNXValue(uint16(id), payload), Size: uint8(length)})
		}
	}

	return rec
}

func decodeNXValue(id uint16, payload []byte) string {
	if asciiNXIDs[id] {
		end := len(payload)
		for end > 0 && payload[end-1] == 0 {
			end--
		}
		return string(payload[:end])
	}
	return hexEncode(payload)
}

const hexDigits = "0123456789abcdef"

func hexEncode(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexDigits[v>>4]
		out[i*2+1] = hexDigits[v&0x0f]
	}
	return string(out)
}
