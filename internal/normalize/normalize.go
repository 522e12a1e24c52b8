package normalize

import (
	"time"

	"github.com/serebryakov7/telematics-gateway/internal/codec"
	"github.com/serebryakov7/telematics-gateway/internal/model"
)

// CanonicalTime renders t as the ISO-8601 UTC canonical form so that
// lexicographic order equals chronological order.
func CanonicalTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// Record converts one decoded AVL record into its persisted, normalized
// form for a given device. VIN, if previously discovered for this
// session, is attached; it may be overwritten later if IO 256 appears
// in this same record's NX elements.
func Record(imei string, avl codec.AVLRecord, sessionVIN string) model.Record {
	rec := model.Record{
		IMEI:      imei,
		VIN:       sessionVIN,
		Timestamp: time.UnixMilli(int64(avl.Timestamp)).UTC(),
		Priority:  avl.Priority,
		GPS: model.GPS{
			Latitude:   float64(avl.GPS.Latitude) / 1e7,
			Longitude:  float64(avl.GPS.Longitude) / 1e7,
			Altitude:   avl.GPS.Altitude,
			Angle:      avl.GPS.Angle,
			Satellites: avl.GPS.Satellites,
			Speed:      avl.GPS.Speed,
		},
	}

	rec.IOElements = make([]model.IOElement, 0, len(avl.IOElements))
	for _, io := range avl.IOElements {
		name := FieldName(io.ID)
		rec.IOElements = append(rec.IOElements, model.IOElement{
			ID:    io.ID,
			Name:  name,
			Value: io.Value,
			Size:  io.Size,
		})
		projectField(&rec, io)
	}

	return rec
}

// projectField fills the named, typed projection on rec for a single
// raw IO element, per the table in fields.go. VIN (id 256) arrives as a
// decoded NX string already, not a fixed-width integer.
func projectField(rec *model.Record, io codec.IOElement) {
	if io.ID == 256 {
		if s, ok := io.Value.(string); ok && s != "" {
			rec.VIN = s
		}
		return
	}

	raw, isUint := io.Value.(uint64)
	if !isUint {
		return
	}

	switch io.ID {
	case 16:
		v := raw
		rec.TotalOdometer = &v
	case 199:
		v := raw
		rec.TripOdometer = &v
	case 17:
		v := Signed16(raw)
		rec.AccelerometerX = &v
	case 18:
		v := Signed16(raw)
		rec.AccelerometerY = &v
	case 19:
		v := Signed16(raw)
		rec.AccelerometerZ = &v
	case 21:
		v := uint8(raw)
		rec.GSMSignal = &v
	case 24:
		v := uint16(raw)
		rec.SpeedIO = &v
	case 66:
		v := uint32(raw)
		rec.ExternalVoltage = &v
	case 67:
		v := uint32(raw)
		rec.BatteryVoltage = &v
	case 113:
		v := uint8(raw)
		rec.BatteryLevel = &v
	case 181:
		v := uint16(raw)
		rec.GNSSPdop = &v
	case 182:
		v := uint16(raw)
		rec.GNSSHdop = &v
	case 239:
		v := uint8(raw)
		rec.Ignition = &v
	case 240:
		v := uint8(raw)
		rec.Movement = &v
	case 30:
		v := uint8(raw)
		rec.OBDEngineLoad = &v
	case 32:
		v := Signed16(raw)
		rec.OBDCoolantTemp = &v
	case 36:
		v := uint32(raw)
		rec.OBDEngineRpm = &v
	case 37:
		v := uint16(raw)
		rec.OBDVehicleSpeed = &v
	case 39:
		v := uint32(raw)
		rec.OBDFuelRate = &v
	case 389:
		v := raw
		rec.OBDTotalMileage = &v
	case 390:
		v := uint8(raw)
		rec.OBDFuelLevelInput = &v
	case 12:
		v := raw
		rec.FuelGPS = &v
	}
}
