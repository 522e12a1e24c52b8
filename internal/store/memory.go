package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/serebryakov7/telematics-gateway/internal/model"
)

// MemoryStore is a Store backed by plain maps, used by this module's own
// tests and by main as the fallback when MongoDB is unreachable at
// startup. It implements exactly the same
// idempotence and sort-order semantics as MongoStore so tests exercising
// one exercise the contract both share.
type MemoryStore struct {
	mu      sync.Mutex
	devices map[string]model.Device
	records map[string][]model.Record // keyed by imei
	raw     map[string][]model.RawFrame
	seen    map[string]bool // imei|timestamp dedupe key
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices: make(map[string]model.Device),
		records: make(map[string][]model.Record),
		raw:     make(map[string][]model.RawFrame),
		seen:    make(map[string]bool),
	}
}

func (m *MemoryStore) GetDevice(_ context.Context, imei string) (*model.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[imei]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (m *MemoryStore) UpsertDevice(_ context.Context, d *model.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.devices[d.IMEI]
	if ok {
		d.CreatedAt = existing.CreatedAt
	} else {
		d.CreatedAt = time.Now().UTC()
	}
	d.UpdatedAt = time.Now().UTC()
	m.devices[d.IMEI] = *d
	return nil
}

func (m *MemoryStore) CreateDevice(_ context.Context, d model.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[d.IMEI]; ok {
		return ErrConflict
	}
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now
	m.devices[d.IMEI] = d
	return nil
}

func (m *MemoryStore) UpdateDevice(_ context.Context, imei string, patch DevicePatch) (*model.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[imei]
	if !ok {
		return nil, ErrNotFound
	}
	if patch.CarBrand != nil {
		d.CarBrand = *patch.CarBrand
	}
	if patch.CarModel != nil {
		d.CarModel = *patch.CarModel
	}
	if patch.PlateNumber != nil {
		d.PlateNumber = *patch.PlateNumber
	}
	if patch.Notes != nil {
		d.Notes = *patch.Notes
	}
	if patch.Approved != nil {
		d.Approved = *patch.Approved
	}
	d.UpdatedAt = time.Now().UTC()
	m.devices[imei] = d
	return &d, nil
}

func (m *MemoryStore) DeleteDevice(_ context.Context, imei string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[imei]; !ok {
		return ErrNotFound
	}
	delete(m.devices, imei)
	return nil
}

func (m *MemoryStore) ListDevices(_ context.Context) ([]model.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out, nil
}

func (m *MemoryStore) Insert(_ context.Context, rec model.Record, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := rec.IMEI + "|" + rec.Timestamp.UTC().Format(time.RFC3339Nano)
	if m.seen[key] {
		return nil // duplicate (imei, timestamp): treated as success, not an error
	}
	m.seen[key] = true
	m.records[rec.IMEI] = append(m.records[rec.IMEI], rec)
	return nil
}

func (m *MemoryStore) InsertRaw(_ context.Context, raw model.RawFrame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw[raw.IMEI] = append(m.raw[raw.IMEI], raw)
	return nil
}

func (m *MemoryStore) FindRange(_ context.Context, imei string, from, to time.Time) ([]model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Record
	for _, r := range m.records[imei] {
		if !r.Timestamp.Before(from) && !r.Timestamp.After(to) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *MemoryStore) FindLatest(_ context.Context, imei string) (*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.records[imei]
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	latest := recs[0]
	for _, r := range recs[1:] {
		if r.Timestamp.After(latest.Timestamp) {
			latest = r
		}
	}
	return &latest, nil
}

func (m *MemoryStore) FindRecords(_ context.Context, imei string, limit, skip int) ([]model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := append([]model.Record(nil), m.records[imei]...)
	sort.Slice(recs, func(i, j int) bool { return recs[i].Timestamp.After(recs[j].Timestamp) })
	if skip >= len(recs) {
		return nil, nil
	}
	recs = recs[skip:]
	if limit < len(recs) {
		recs = recs[:limit]
	}
	return recs, nil
}

func (m *MemoryStore) FindRaw(_ context.Context, imei string, limit int) ([]model.RawFrame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raws := append([]model.RawFrame(nil), m.raw[imei]...)
	sort.Slice(raws, func(i, j int) bool { return raws[i].Timestamp.After(raws[j].Timestamp) })
	if limit < len(raws) {
		raws = raws[:limit]
	}
	return raws, nil
}

func (m *MemoryStore) CountRange(_ context.Context, imei string, from, to time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.records[imei] {
		if !r.Timestamp.Before(from) && !r.Timestamp.After(to) {
			n++
		}
	}
	return n, nil
}
