// Package store defines the persistence adapter as an opaque interface
// (insert/findRange/findLatest/upsertDevice/getDevice), and gives it
// three concrete shapes: a MongoDB-backed Store, an in-memory Store, and
// a bbolt-backed durable write-behind Queue that sits in front of any
// Store.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/serebryakov7/telematics-gateway/internal/model"
)

// ErrNotFound is returned by Get/Find operations that found nothing.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned by CreateDevice when the IMEI already exists.
var ErrConflict = errors.New("store: already exists")

// Store is the document-store interface the rest of the gateway
// consumes: insert/findRange/findLatest/upsertDevice/getDevice plus a
// handful more that exist to serve the HTTP read surface's /stats,
// /raw, and admin routes without leaking a MongoDB-specific query
// shape into internal/httpapi.
type Store interface {
	// Devices
	GetDevice(ctx context.Context, imei string) (*model.Device, error)
	UpsertDevice(ctx context.Context, d *model.Device) error
	CreateDevice(ctx context.Context, d model.Device) error
	UpdateDevice(ctx context.Context, imei string, patch DevicePatch) (*model.Device, error)
	DeleteDevice(ctx context.Context, imei string) error
	ListDevices(ctx context.Context) ([]model.Device, error)

	// Records. modemType selects the records_<type>/raw_<type>
	// collection pair; callers already know it from the device record
	// they just authenticated against.
	Insert(ctx context.Context, rec model.Record, modemType string) error
	InsertRaw(ctx context.Context, raw model.RawFrame) error
	FindRange(ctx context.Context, imei string, from, to time.Time) ([]model.Record, error)
	FindLatest(ctx context.Context, imei string) (*model.Record, error)
	FindRecords(ctx context.Context, imei string, limit, skip int) ([]model.Record, error)
	FindRaw(ctx context.Context, imei string, limit int) ([]model.RawFrame, error)
	CountRange(ctx context.Context, imei string, from, to time.Time) (int64, error)
}

// DevicePatch carries the partial-update fields PUT /devices/:imei and
// PATCH /devices/:imei/approve accept. Pointers distinguish "field
// omitted" from "field cleared".
type DevicePatch struct {
	CarBrand    *string
	CarModel    *string
	PlateNumber *string
	Notes       *string
	Approved    *bool
}

// collectionSuffix lower-cases modemType and strips everything outside
// [a-z0-9], so "FMC003", "fmc-003", and "FMC 003" all land in the same
// raw_fmc003/records_fmc003 pair.
func collectionSuffix(modemType string) string {
	lower := strings.ToLower(modemType)
	b := make([]byte, 0, len(lower))
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b = append(b, c)
		}
	}
	if len(b) == 0 {
		return "unknown"
	}
	return string(b)
}

// RecordsCollection returns the records_<type> collection name for a
// device's modem type.
func RecordsCollection(modemType string) string {
	return "records_" + collectionSuffix(modemType)
}

// RawCollection returns the raw_<type> collection name for a device's
// modem type.
func RawCollection(modemType string) string {
	return "raw_" + collectionSuffix(modemType)
}

const DevicesCollection = "devices"
