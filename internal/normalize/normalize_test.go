package normalize

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/serebryakov7/telematics-gateway/internal/codec"
)

func TestRecord_ProjectsIgnitionAndOdometerFields(t *testing.T) {
	avl := codec.AVLRecord{
		Timestamp: 1704067200000,
		Priority:  1,
		GPS: codec.GPSElement{
			Longitude:  260000000,
			Latitude:   440000000,
			Altitude:   100,
			Angle:      90,
			Satellites: 9,
			Speed:      50,
		},
		IOElements: []codec.IOElement{
			{ID: 239, Value: uint64(1), Size: 1},
			{ID: 16, Value: uint64(123456), Size: 4},
		},
	}

	rec := Record("864275079658715", avl, "")

	require.Equal(t, "2024-01-01T00:00:00.000Z", CanonicalTime(rec.Timestamp))
	require.NotNil(t, rec.Ignition)
	require.EqualValues(t, 1, *rec.Ignition)
	require.NotNil(t, rec.TotalOdometer)
	require.EqualValues(t, 123456, *rec.TotalOdometer)
	require.Equal(t, 44.0, rec.GPS.Latitude)
	require.Equal(t, 26.0, rec.GPS.Longitude)
}

func TestFieldName_UnknownIDIsSynthetic(t *testing.T) {
	require.Equal(t, "IO_9001", FieldName(9001))
	require.Equal(t, "totalOdometer", FieldName(16))
}

func TestSigned16(t *testing.T) {
	require.EqualValues(t, 0, Signed16(0))
	require.EqualValues(t, 32767, Signed16(32767))
	require.EqualValues(t, -32768, Signed16(32768))
	require.EqualValues(t, -1, Signed16(65535))
}
