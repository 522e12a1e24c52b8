// Package normalize maps decoded codec IO element ids to stable
// semantic field names and typed projections, and builds a storable
// model.Record from a codec.AVLRecord.
package normalize

// Kind describes how a raw IO element value should be reinterpreted
// when projected onto a named Record field.
type Kind int

const (
	KindUnsigned Kind = iota
	KindSigned16
)

// fieldDef is one entry of the canonical FMC003 IO id table. The table
// itself is data, not code — naming a new IO id is a map literal edit.
// Projecting it onto a typed model.Record field also takes a case in
// projectField.
type fieldDef struct {
	name string
	kind Kind
}

// Table is the canonical, non-exhaustive FMC003 IO id → field mapping.
// IDs absent from this table are still retained in Record.IOElements
// verbatim, with a synthetic name IO_<id> (see Normalize).
var Table = map[uint16]fieldDef{
	16: {"totalOdometer", KindUnsigned},
	17: {"accelerometerX", KindSigned16},
	18: {"accelerometerY", KindSigned16},
	19: {"accelerometerZ", KindSigned16},
	21: {"gsmSignal", KindUnsigned},
	24: {"speedIO", KindUnsigned},
	30: {"obdEngineLoad", KindUnsigned},
	32: {"obdCoolantTemp", KindSigned16},
	36: {"obdEngineRpm", KindUnsigned},
	37: {"obdVehicleSpeed", KindUnsigned},
	39: {"obdFuelRate", KindUnsigned},
	389: {"obdTotalMileage", KindUnsigned},
	390: {"obdFuelLevelInput", KindUnsigned},
	66:  {"externalVoltage", KindUnsigned},
	67:  {"batteryVoltage", KindUnsigned},
	113: {"batteryLevel", KindUnsigned},
	181: {"gnssPdop", KindUnsigned},
	182: {"gnssHdop", KindUnsigned},
	199: {"tripOdometer", KindUnsigned},
	239: {"ignition", KindUnsigned},
	240: {"movement", KindUnsigned},
	256: {"vin", KindUnsigned}, // ASCII string, handled separately as an NX item
	12:  {"fuelGps", KindUnsigned},
}

// FieldName returns the stable semantic name for an IO id, falling back
// to the synthetic IO_<id> form for unknown ids.
func FieldName(id uint16) string {
	if def, ok := Table[id]; ok {
		return def.name
	}
	return syntheticName(id)
}

func syntheticName(id uint16) string {
	return "IO_" + uitoa(uint64(id))
}

func uitoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// Signed16 applies the accelerometer signed-16-bit conversion:
// value > 32767 ? value - 65536 : value.
func Signed16(v uint64) int16 {
	u := uint16(v)
	if u > 32767 {
		return int16(int32(u) - 65536)
	}
	return int16(u)
}
