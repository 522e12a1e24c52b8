package rawlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriter_CapturesAndRotates(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir)
	require.NoError(t, err)
	defer w.Close()

	at := time.Date(2026, 1, 1, 10, 30, 0, 0, time.UTC)
	w.Capture("FMC003", "123456789012345", "", []byte{0x01, 0x02}, at)
	w.Capture("FMC003", "123456789012345", "", []byte{0x01, 0x02}, at.Add(time.Minute))

	path := filepath.Join(dir, "2026-01-01_10.txt")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "dup=false")
	require.Contains(t, string(data), "dup=true")
}

func TestWriter_NilIsNoOp(t *testing.T) {
	var w *Writer
	require.NotPanics(t, func() {
		w.Capture("FMC003", "123456789012345", "", []byte{0x01}, time.Now())
		require.NoError(t, w.Close())
	})
}
