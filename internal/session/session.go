// Package session implements the per-connection state machine, framing,
// and admission control: AwaitingLogin → AwaitingAuth → Streaming →
// Closed.
package session

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/serebryakov7/telematics-gateway/internal/codec"
	"github.com/serebryakov7/telematics-gateway/internal/model"
	"github.com/serebryakov7/telematics-gateway/internal/normalize"
	"github.com/serebryakov7/telematics-gateway/internal/store"
	"github.com/serebryakov7/telematics-gateway/internal/telemetry"
)

// State is one of the four connection life-cycle states.
type State int

const (
	AwaitingLogin State = iota
	AwaitingAuth
	Streaming
	Closed
)

func (s State) String() string {
	switch s {
	case AwaitingLogin:
		return "AwaitingLogin"
	case AwaitingAuth:
		return "AwaitingAuth"
	case Streaming:
		return "Streaming"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// SessionState is the per-connection record exposed to the acceptor's
// session registry for status reporting.
type SessionState struct {
	RemoteAddr string
	IMEI       string
	VIN        string
	DeviceType string
	State      State
	LastByteAt time.Time
}

// LoginTimeout is the absolute deadline, counted from the start of the
// login phase, for an unauthenticated session to send a valid login frame.
const LoginTimeout = 15 * time.Second

// LivenessInterval is the observability-only liveness poll period.
const LivenessInterval = 5 * time.Second

// RawSink receives captured frame bytes for forensic logging,
// independent of the document store's raw_<type> collection.
type RawSink interface {
	Capture(modemType, imei, vin string, frame []byte, at time.Time)
}

// StateNotifier receives a normalized record whenever the session wants
// to fan a state change out to operators (internal/livefeed). Optional:
// a nil StateNotifier is a no-op.
type StateNotifier interface {
	Notify(rec model.Record)
}

// Handler holds the collaborators every connection needs and drives one
// connection's life cycle end to end. It carries no per-connection
// state itself — safe to share across goroutines, one per accepted
// net.Conn, with no shared mutable state between connections beyond
// the store.
type Handler struct {
	Store    store.Store
	Raw      RawSink  // nil-safe
	Notifier StateNotifier // nil-safe
	Log      *telemetry.Logger
	Metrics  *telemetry.Metrics
}

// Serve drives conn through its full life cycle and returns once the
// connection is closed, by either peer or the inactivity timer. It
// never panics out: codec and store errors are logged and converted
// into metrics rather than propagated. st is owned by the caller (the
// Acceptor's session registry) so that IMEI/VIN/State become visible
// there as the connection progresses.
func (h *Handler) Serve(ctx context.Context, conn net.Conn, st *SessionState) {
	tc := wrapConn(conn)
	defer tc.Close()

	st.State = AwaitingLogin
	h.Metrics.SessionOpened()
	defer h.Metrics.SessionClosed()

	livenessCtx, cancelLiveness := context.WithCancel(ctx)
	defer cancelLiveness()
	go h.runLiveness(livenessCtx, tc, st)

	// A single bufio.Reader spans both phases: the OS may coalesce the
	// login frame and the first AVL frame into one Read(), and a fresh
	// reader in streamLoop would discard whatever awaitLogin's reader
	// had already buffered but not consumed.
	r := bufio.NewReader(tc)

	imei, err := h.awaitLogin(tc, r)
	if err != nil {
		h.Log.Debugf("session %s: login phase ended without a valid IMEI: %v", st.RemoteAddr, err)
		return
	}
	st.IMEI = imei
	st.State = AwaitingAuth

	device, err := h.Store.GetDevice(ctx, imei)
	if err != nil || !device.Approved {
		_, _ = tc.Write([]byte{0x00})
		h.Log.Warnf("session %s: rejected imei=%s (admission denied)", st.RemoteAddr, imei)
		h.Metrics.AdmissionRejected()
		return
	}

	if _, err := tc.Write([]byte{0x01}); err != nil {
		return
	}
	st.State = Streaming
	st.VIN = device.VIN
	st.DeviceType = device.ModemType
	h.Metrics.AdmissionAccepted()
	h.Log.Infof("session %s: imei=%s authorized, streaming", st.RemoteAddr, imei)

	h.streamLoop(ctx, r, tc, st, device)
	st.State = Closed
}

// awaitLogin blocks, with a single absolute 15s deadline, accumulating
// login frames until a syntactically valid one (2-byte length == 15,
// followed by 15 ASCII digits) arrives. A malformed frame does not
// close the connection — it simply does not satisfy the loop's exit
// condition, so the connection is closed only once the deadline trips
// or the peer disconnects. r must be the same reader streamLoop will
// go on to use, so bytes buffered past the login frame aren't lost.
func (h *Handler) awaitLogin(tc *trackedConn, r *bufio.Reader) (string, error) {
	if err := tc.SetReadDeadline(time.Now().Add(LoginTimeout)); err != nil {
		return "", err
	}

	for {
		var lenBuf [2]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return "", err
		}
		n := binary.BigEndian.Uint16(lenBuf[:])

		body := make([]byte, n)
		if _, err := io.ReadFull(r, body); err != nil {
			return "", err
		}

		if n != 15 || !allDigits(body) {
			continue
		}
		return string(body), nil
	}
}

func allDigits(b []byte) bool {
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// streamLoop reads and acks AVL frames until the connection closes.
func (h *Handler) streamLoop(ctx context.Context, r *bufio.Reader, tc *trackedConn, st *SessionState, device *model.Device) {
	_ = tc.SetReadDeadline(time.Time{}) // no inactivity bound once streaming

	for {
		frame, err := readFrame(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				h.Log.Debugf("session %s: read error, closing: %v", st.RemoteAddr, err)
			}
			return
		}

		pkt, derr := codec.Decode(frame)
		if derr != nil {
			h.Metrics.DecodeError()
			h.Log.Warnf("session %s: decode error (frame dropped): %v", st.RemoteAddr, derr)
			continue // decode error stays in Streaming, no reply sent
		}

		// CRC covers codecId..numberOfData2; a mismatch is logged, never fatal.
		if crc := codec.CRC16IBM(frame[8 : len(frame)-4]); uint32(crc) != pkt.CRC {
			h.Log.Warnf("session %s: CRC mismatch (frame kept): frame=0x%08x computed=0x%04x", st.RemoteAddr, pkt.CRC, crc)
		}

		ack := make([]byte, 4)
		binary.BigEndian.PutUint32(ack, uint32(pkt.NumberOfData1))
		if _, werr := tc.Write(ack); werr != nil {
			return
		}
		h.Metrics.FramesDecoded(1)

		h.persist(ctx, st, device, pkt, frame)
	}
}

// persist normalizes and stores every record in a decoded packet. It
// runs after this frame's ack has already been written — the ack only
// needs to follow decode success, not durable storage. It runs on the
// connection's own goroutine, so the next frame is not read (or acked)
// until it returns; store latency here delays later acks, and store
// failures are logged without closing the session.
func (h *Handler) persist(ctx context.Context, st *SessionState, device *model.Device, pkt *codec.DecodedPacket, rawFrame []byte) {
	modemType := device.ModemType
	if modemType == "" {
		modemType = model.DefaultModemType
	}

	var lastTS time.Time
	for _, avl := range pkt.Records {
		rec := normalize.Record(st.IMEI, avl, st.VIN)
		if rec.VIN != "" && rec.VIN != st.VIN {
			st.VIN = rec.VIN
		}
		if err := h.Store.Insert(ctx, rec, modemType); err != nil {
			h.Log.Errorf("session %s: store insert failed for imei=%s: %v", st.RemoteAddr, st.IMEI, err)
			h.Metrics.StoreError()
		} else {
			h.Metrics.RecordsWritten(1)
		}
		if rec.Timestamp.After(lastTS) {
			lastTS = rec.Timestamp
		}
		if h.Notifier != nil {
			h.Notifier.Notify(rec)
		}
	}

	if h.Raw != nil {
		h.Raw.Capture(modemType, st.IMEI, st.VIN, rawFrame, time.Now().UTC())
	}
	if err := h.Store.InsertRaw(ctx, model.RawFrame{
		IMEI:      st.IMEI,
		VIN:       st.VIN,
		ModemType: modemType,
		RawHex:    hex.EncodeToString(rawFrame),
		Timestamp: time.Now().UTC(),
	}); err != nil {
		h.Log.Errorf("session %s: raw frame insert failed: %v", st.RemoteAddr, err)
		h.Metrics.StoreError()
	}

	device.LastSeen = lastTS
	if st.VIN != "" {
		device.VIN = st.VIN
	}
	if err := h.Store.UpsertDevice(ctx, device); err != nil {
		h.Log.Errorf("session %s: device lastSeen update failed: %v", st.RemoteAddr, err)
		h.Metrics.StoreError()
	}
}

// runLiveness is the observability-only liveness poll: it samples byte
// counters and (on Linux) TCP_INFO every LivenessInterval and
// logs/records metrics, never writing to the wire.
func (h *Handler) runLiveness(ctx context.Context, tc *trackedConn, st *SessionState) {
	ticker := time.NewTicker(LivenessInterval)
	defer ticker.Stop()
	var prevRx, prevTx int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := tc.sample()
			h.Metrics.ConnectionBytes(stats.RxBytes-prevRx, stats.TxBytes-prevTx)
			prevRx, prevTx = stats.RxBytes, stats.TxBytes
			if stats.HasTCPInfo && stats.Retransmits > 0 {
				h.Log.Debugf("session %s: imei=%s retransmits=%d rttMicros=%d", st.RemoteAddr, st.IMEI, stats.Retransmits, stats.RTTMicros)
			}
			st.LastByteAt = tc.lastByte()
		}
	}
}

// readFrame blocks until a complete AVL frame is buffered, returning
// its raw bytes. It peeks the 8-byte preamble+length header without
// consuming the reader's buffer further than that header until the
// full declared length is known: frame size is recoverable from bytes
// [4..8].
func readFrame(r *bufio.Reader) ([]byte, error) {
	header, err := r.Peek(8)
	if err != nil {
		return nil, err
	}
	total, ok := codec.FrameLength(header)
	if !ok {
		return nil, fmt.Errorf("session: could not determine frame length")
	}

	frame := make([]byte, total)
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, err
	}
	return frame, nil
}
