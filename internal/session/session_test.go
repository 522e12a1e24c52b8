package session

import (
	"bufio"
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/serebryakov7/telematics-gateway/internal/model"
	"github.com/serebryakov7/telematics-gateway/internal/store"
	"github.com/serebryakov7/telematics-gateway/internal/telemetry"
)

func testHandler(s store.Store) *Handler {
	return &Handler{
		Store:   s,
		Log:     telemetry.NewLogger(nil, "test ", telemetry.LevelError),
		Metrics: telemetry.NewMetrics(),
	}
}

func loginFrame(imei string) []byte {
	buf := make([]byte, 2+len(imei))
	binary.BigEndian.PutUint16(buf, uint16(len(imei)))
	copy(buf[2:], imei)
	return buf
}

// singleRecordFrame builds a minimal, well-formed Standard (Codec 8) AVL
// frame carrying one record with a single 1-byte IO element (ignition,
// id 239 = 1), for exercising the streaming ack/persist path end to end.
func singleRecordFrame() []byte {
	var payload []byte
	payload = append(payload, 0x08) // codec id
	payload = append(payload, 1)    // numberOfData1

	payload = binary.BigEndian.AppendUint64(payload, 1704067200000) // timestamp
	payload = append(payload, 1)                                    // priority
	payload = binary.BigEndian.AppendUint32(payload, 260000000)     // longitude
	payload = binary.BigEndian.AppendUint32(payload, 440000000)     // latitude
	payload = binary.BigEndian.AppendUint16(payload, 100)           // altitude
	payload = binary.BigEndian.AppendUint16(payload, 90)            // angle
	payload = append(payload, 9)                                    // satellites
	payload = binary.BigEndian.AppendUint16(payload, 50)            // speed
	payload = append(payload, 0)                                    // event io id
	payload = append(payload, 1)                                    // total element count

	payload = append(payload, 1, 239, 1) // 1-byte group: count=1, {id:239, val:1}
	payload = append(payload, 0)         // 2-byte group: count=0
	payload = append(payload, 0)         // 4-byte group: count=0
	payload = append(payload, 0)         // 8-byte group: count=0

	payload = append(payload, 1) // numberOfData2

	frame := make([]byte, 0, 12+len(payload))
	frame = append(frame, 0, 0, 0, 0) // preamble
	frame = binary.BigEndian.AppendUint32(frame, uint32(len(payload)))
	frame = append(frame, payload...)
	frame = append(frame, 0, 0, 0, 0) // CRC left zero; a mismatch is only logged
	return frame
}

func TestAwaitLogin_ValidFrameReturnsIMEI(t *testing.T) {
	client, srv := net.Pipe()
	defer client.Close()
	defer srv.Close()

	h := testHandler(store.NewMemoryStore())
	go func() { _, _ = client.Write(loginFrame("864275079658715")) }()

	tc := wrapConn(srv)
	imei, err := h.awaitLogin(tc, bufio.NewReader(tc))
	require.NoError(t, err)
	require.Equal(t, "864275079658715", imei)
}

func TestAwaitLogin_MalformedFrameDoesNotCloseSession(t *testing.T) {
	client, srv := net.Pipe()
	defer client.Close()
	defer srv.Close()

	h := testHandler(store.NewMemoryStore())
	go func() {
		_, _ = client.Write(loginFrame("short")) // length != 15, ignored by the loop
		_, _ = client.Write(loginFrame("864275079658715"))
	}()

	tc := wrapConn(srv)
	imei, err := h.awaitLogin(tc, bufio.NewReader(tc))
	require.NoError(t, err)
	require.Equal(t, "864275079658715", imei)
}

// TestAwaitLogin_PipelinedAVLFrameSurvivesIntoStreaming reproduces a
// device that doesn't wait for the login ack before sending its first
// AVL frame: both arrive in a single Write, which a real socket may
// also coalesce into one Read regardless of how the device paced its
// writes. The bytes awaitLogin doesn't consume must still be visible
// to the reader streamLoop goes on to use.
func TestAwaitLogin_PipelinedAVLFrameSurvivesIntoStreaming(t *testing.T) {
	client, srv := net.Pipe()
	defer client.Close()
	defer srv.Close()

	h := testHandler(store.NewMemoryStore())
	pipelined := append(loginFrame("864275079658715"), singleRecordFrame()...)
	go func() { _, _ = client.Write(pipelined) }()

	tc := wrapConn(srv)
	r := bufio.NewReader(tc)
	imei, err := h.awaitLogin(tc, r)
	require.NoError(t, err)
	require.Equal(t, "864275079658715", imei)

	frame, err := readFrame(r)
	require.NoError(t, err)
	require.Equal(t, singleRecordFrame(), frame)
}

func TestServe_UnapprovedDeviceIsRejected(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateDevice(ctx, model.Device{IMEI: "864275079658715", Approved: false}))

	client, srv := net.Pipe()
	defer client.Close()

	h := testHandler(s)
	done := make(chan struct{})
	go func() {
		h.Serve(ctx, srv, &SessionState{RemoteAddr: "test"})
		close(done)
	}()

	_, err := client.Write(loginFrame("864275079658715"))
	require.NoError(t, err)

	resp := make([]byte, 1)
	_, err = client.Read(resp)
	require.NoError(t, err)
	require.Equal(t, byte(0x00), resp[0])

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after rejecting an unapproved device")
	}
}

func TestServe_ApprovedDeviceStreamsAndAcks(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateDevice(ctx, model.Device{IMEI: "864275079658715", Approved: true, ModemType: "FMC003"}))

	client, srv := net.Pipe()
	h := testHandler(s)
	done := make(chan struct{})
	go func() {
		h.Serve(ctx, srv, &SessionState{RemoteAddr: "test"})
		close(done)
	}()

	_, err := client.Write(loginFrame("864275079658715"))
	require.NoError(t, err)

	resp := make([]byte, 1)
	_, err = client.Read(resp)
	require.NoError(t, err)
	require.Equal(t, byte(0x01), resp[0])

	go func() { _, _ = client.Write(singleRecordFrame()) }()

	ack := make([]byte, 4)
	_, err = client.Read(ack)
	require.NoError(t, err)
	require.Equal(t, uint32(1), binary.BigEndian.Uint32(ack))

	client.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after the connection closed")
	}

	recs, err := s.FindRange(ctx, "864275079658715", time.Unix(0, 0), time.Now().Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.NotNil(t, recs[0].Ignition)
	require.EqualValues(t, 1, *recs[0].Ignition)
}
