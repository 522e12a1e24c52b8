package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/serebryakov7/telematics-gateway/internal/model"
)

func TestCollectionNaming(t *testing.T) {
	require.Equal(t, "records_fmc003", RecordsCollection("FMC003"))
	require.Equal(t, "raw_fmc003", RawCollection("FMC003"))
	require.Equal(t, "records_fmc003", RecordsCollection("fmc-003!!"))
	require.Equal(t, "records_unknown", RecordsCollection("***"))
}

func TestMemoryStore_DuplicateRecordIsSilentlySkipped(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := model.Record{IMEI: "864275079658715", Timestamp: ts}

	require.NoError(t, s.Insert(ctx, rec, "FMC003"))
	require.NoError(t, s.Insert(ctx, rec, "FMC003"))

	recs, err := s.FindRange(ctx, rec.IMEI, ts.Add(-time.Minute), ts.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestMemoryStore_DeviceLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreateDevice(ctx, model.Device{IMEI: "864275079658715", Approved: true}))
	require.ErrorIs(t, s.CreateDevice(ctx, model.Device{IMEI: "864275079658715"}), ErrConflict)

	d, err := s.GetDevice(ctx, "864275079658715")
	require.NoError(t, err)
	require.True(t, d.Approved)

	approved := false
	_, err = s.UpdateDevice(ctx, "864275079658715", DevicePatch{Approved: &approved})
	require.NoError(t, err)

	d, err = s.GetDevice(ctx, "864275079658715")
	require.NoError(t, err)
	require.False(t, d.Approved)

	require.NoError(t, s.DeleteDevice(ctx, "864275079658715"))
	_, err = s.GetDevice(ctx, "864275079658715")
	require.ErrorIs(t, err, ErrNotFound)
}
