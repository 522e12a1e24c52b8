package session

import (
	"net"
	"sync/atomic"
	"time"
)

// trackedConn wraps a net.Conn, counting bytes in each direction and
// timestamping the last byte seen, so the liveness poll has something
// to sample without touching the wire itself.
type trackedConn struct {
	net.Conn

	openedAt time.Time
	rxBytes  atomic.Int64
	txBytes  atomic.Int64

	lastByteAt atomic.Int64 // unix nano
}

func wrapConn(c net.Conn) *trackedConn {
	tc := &trackedConn{Conn: c, openedAt: time.Now()}
	tc.lastByteAt.Store(time.Now().UnixNano())
	return tc
}

func (c *trackedConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	if n > 0 {
		c.rxBytes.Add(int64(n))
		c.lastByteAt.Store(time.Now().UnixNano())
	}
	return n, err
}

func (c *trackedConn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	if n > 0 {
		c.txBytes.Add(int64(n))
	}
	return n, err
}

func (c *trackedConn) lastByte() time.Time {
	return time.Unix(0, c.lastByteAt.Load())
}

// sample reports current byte counters and, where supported (Linux),
// the socket's retransmit count and smoothed RTT via TCP_INFO. The
// liveness poll ticker (default 5s) that drives this is an
// observability artifact only — it is read-only and never writes to
// the wire.
type connStats struct {
	RxBytes     int64
	TxBytes     int64
	Retransmits uint32
	RTTMicros   uint32
	HasTCPInfo  bool
}

func (c *trackedConn) sample() connStats {
	stats := connStats{RxBytes: c.rxBytes.Load(), TxBytes: c.txBytes.Load()}
	tcpConn, ok := c.Conn.(*net.TCPConn)
	if !ok {
		return stats
	}
	info, err := readTCPInfo(tcpConn)
	if err != nil || info == nil {
		return stats
	}
	stats.HasTCPInfo = true
	stats.Retransmits = info.Retransmits
	stats.RTTMicros = info.RTTMicros
	return stats
}
