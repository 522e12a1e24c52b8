package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/serebryakov7/telematics-gateway/internal/model"
)

// pendingBucket holds records that failed (or timed out) their
// synchronous write to the underlying Store and are waiting for the
// drain loop to retry them. Uses the same OpenDB/bucket-per-concern
// shape as a DTC-deduplication store, generalized from "bucket
// deduplicates DTC codes" to "bucket holds records pending durable
// write".
const pendingBucket = "pending_records"

// Queue wraps a Store with a bbolt-backed write-behind buffer: the
// durable write may queue internally rather than block. It never sits
// on the ack path: callers send
// the AVL ack the instant the frame decodes, then call Queue.Insert,
// which waits at most writeBudget on the underlying store — it tries
// once and falls back to the on-disk queue on any error or timeout.
type Queue struct {
	db         *bolt.DB
	inner      Store
	writeBudget time.Duration
	log        *log.Logger
}

type pendingEntry struct {
	Record    model.Record `json:"record"`
	ModemType string       `json:"modemType"`
}

// OpenQueue opens (or creates) the bbolt file at path and returns a
// Queue fronting inner. writeBudget bounds how long a synchronous
// Insert attempt may take before falling back to the disk queue; pass 0
// for a sensible default (2s).
func OpenQueue(path string, inner Store, writeBudget time.Duration, logger *log.Logger) (*Queue, error) {
	if writeBudget <= 0 {
		writeBudget = 2 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(pendingBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &Queue{db: db, inner: inner, writeBudget: writeBudget, log: logger}, nil
}

func (q *Queue) Close() error {
	return q.db.Close()
}

func pendingKey(imei string, ts time.Time) []byte {
	return []byte(fmt.Sprintf("%s|%s", imei, ts.UTC().Format(time.RFC3339Nano)))
}

// Insert attempts a bounded synchronous write to the underlying Store;
// on error or timeout it persists the record to the local queue instead
// of propagating the failure — store write failures are logged, and
// the session continues; the device will retransmit.
func (q *Queue) Insert(ctx context.Context, rec model.Record, modemType string) error {
	wctx, cancel := context.WithTimeout(ctx, q.writeBudget)
	defer cancel()

	if err := q.inner.Insert(wctx, rec, modemType); err != nil {
		q.log.Printf("store: synchronous insert failed for imei=%s ts=%s, queueing: %v", rec.IMEI, rec.Timestamp, err)
		return q.enqueue(rec, modemType)
	}
	return nil
}

func (q *Queue) enqueue(rec model.Record, modemType string) error {
	entry := pendingEntry{Record: rec, ModemType: modemType}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(pendingBucket))
		return b.Put(pendingKey(rec.IMEI, rec.Timestamp), data)
	})
}

// Depth reports how many records are currently buffered on disk. It is
// not exported as a Prometheus metric.
func (q *Queue) Depth() int {
	n := 0
	_ = q.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(pendingBucket)).Stats().KeyN
		return nil
	})
	return n
}

// Drain retries every queued record once against the underlying Store,
// removing each on success. It is meant to be called from a single
// long-running goroutine on a ticker (bbolt requires a single writer
// per file) and never from the per-connection ack path.
func (q *Queue) Drain(ctx context.Context) (drained int, err error) {
	var keys [][]byte
	var entries []pendingEntry

	err = q.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(pendingBucket))
		return b.ForEach(func(k, v []byte) error {
			var e pendingEntry
			if jerr := json.Unmarshal(v, &e); jerr != nil {
				return jerr
			}
			keys = append(keys, append([]byte(nil), k...))
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return 0, err
	}

	var succeeded [][]byte
	for i, e := range entries {
		if ctx.Err() != nil {
			break
		}
		if werr := q.inner.Insert(ctx, e.Record, e.ModemType); werr != nil {
			q.log.Printf("store: drain retry failed for imei=%s ts=%s: %v", e.Record.IMEI, e.Record.Timestamp, werr)
			continue
		}
		succeeded = append(succeeded, keys[i])
	}

	if len(succeeded) == 0 {
		return 0, nil
	}
	err = q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(pendingBucket))
		for _, k := range succeeded {
			if derr := b.Delete(k); derr != nil {
				return derr
			}
		}
		return nil
	})
	if err != nil {
		return len(succeeded), err
	}
	return len(succeeded), nil
}

// RunDrainLoop runs Drain on interval until ctx is canceled. Intended to
// be started once from main as its own goroutine.
func (q *Queue) RunDrainLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := q.Drain(ctx); err != nil {
				q.log.Printf("store: drain loop error: %v", err)
			} else if n > 0 {
				q.log.Printf("store: drained %d queued records", n)
			}
		}
	}
}

// The remaining Store methods pass straight through to the underlying
// store; only writes that can be safely deferred (Insert) are queued.

func (q *Queue) GetDevice(ctx context.Context, imei string) (*model.Device, error) {
	return q.inner.GetDevice(ctx, imei)
}
func (q *Queue) UpsertDevice(ctx context.Context, d *model.Device) error { return q.inner.UpsertDevice(ctx, d) }
func (q *Queue) CreateDevice(ctx context.Context, d model.Device) error { return q.inner.CreateDevice(ctx, d) }
func (q *Queue) UpdateDevice(ctx context.Context, imei string, patch DevicePatch) (*model.Device, error) {
	return q.inner.UpdateDevice(ctx, imei, patch)
}
func (q *Queue) DeleteDevice(ctx context.Context, imei string) error { return q.inner.DeleteDevice(ctx, imei) }
func (q *Queue) ListDevices(ctx context.Context) ([]model.Device, error) { return q.inner.ListDevices(ctx) }
func (q *Queue) InsertRaw(ctx context.Context, raw model.RawFrame) error { return q.inner.InsertRaw(ctx, raw) }
func (q *Queue) FindRange(ctx context.Context, imei string, from, to time.Time) ([]model.Record, error) {
	return q.inner.FindRange(ctx, imei, from, to)
}
func (q *Queue) FindLatest(ctx context.Context, imei string) (*model.Record, error) {
	return q.inner.FindLatest(ctx, imei)
}
func (q *Queue) FindRecords(ctx context.Context, imei string, limit, skip int) ([]model.Record, error) {
	return q.inner.FindRecords(ctx, imei, limit, skip)
}
func (q *Queue) FindRaw(ctx context.Context, imei string, limit int) ([]model.RawFrame, error) {
	return q.inner.FindRaw(ctx, imei, limit)
}
func (q *Queue) CountRange(ctx context.Context, imei string, from, to time.Time) (int64, error) {
	return q.inner.CountRange(ctx, imei, from, to)
}
