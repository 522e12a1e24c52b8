// Package rawlog writes append-only hourly raw-frame capture logs: one
// text file per hour (YYYY-MM-DD_HH.txt), operator-facing, never read
// back by the gateway itself.
package rawlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/gzip"
)

// Writer appends raw frame captures to hourly log files under a
// directory, rotating files as the wall-clock hour changes and
// gzip-compressing the previous hour's file once it rolls over.
type Writer struct {
	dir string

	mu       sync.Mutex
	curHour  string
	curFile  *os.File
	seenHash map[uint64]struct{}
}

// New opens (creating if needed) the capture log directory.
func New(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("rawlog: create dir: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// Capture appends one frame's hex encoding to the current hour's log,
// tagged with an xxhash fingerprint so an operator can grep for
// duplicate retransmissions independent of the store's own
// (timestamp, imei) uniqueness. Nil-safe: a nil *Writer is a no-op so
// raw capture can be disabled without special-casing call sites.
func (w *Writer) Capture(modemType, imei, vin string, frame []byte, at time.Time) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := at.UTC().Format("2006-01-02_15")
	if hour != w.curHour {
		w.rotate(hour)
	}
	if w.curFile == nil {
		return
	}

	sum := xxhash.Sum64(frame)
	if w.seenHash == nil {
		w.seenHash = make(map[uint64]struct{})
	}
	_, dup := w.seenHash[sum]
	w.seenHash[sum] = struct{}{}

	fmt.Fprintf(w.curFile, "%s\t%s\t%s\t%s\t%016x\tdup=%t\t%x\n",
		at.UTC().Format(time.RFC3339Nano), modemType, imei, vin, sum, dup, frame)
}

// rotate closes the previous hour's file (compressing it) and opens a
// fresh file for the new hour. Caller must hold w.mu.
func (w *Writer) rotate(hour string) {
	if w.curFile != nil {
		name := w.curFile.Name()
		w.curFile.Close()
		go compressAndRemove(name)
	}

	path := filepath.Join(w.dir, hour+".txt")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		w.curFile = nil
		w.curHour = ""
		return
	}
	w.curFile = f
	w.curHour = hour
	w.seenHash = make(map[uint64]struct{})
}

// Close flushes and closes the current hour's file without compressing
// it — an in-progress hour is left as plain text so a crash mid-hour
// never loses the tail of a gzip stream.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.curFile == nil {
		return nil
	}
	return w.curFile.Close()
}

// compressAndRemove gzips a completed hour's log and removes the plain
// text original, run from a detached goroutine so rotation never blocks
// the capturing connection.
func compressAndRemove(path string) {
	src, err := os.Open(path)
	if err != nil {
		return
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return
	}
	defer dst.Close()

	gw := gzip.NewWriter(dst)
	if _, err := io.Copy(gw, src); err != nil {
		gw.Close()
		return
	}
	if err := gw.Close(); err != nil {
		return
	}
	os.Remove(path)
}
