//go:build linux

package session

import (
	"net"

	"golang.org/x/sys/unix"
)

type tcpInfoResult struct {
	Retransmits uint32
	RTTMicros   uint32
}

// readTCPInfo samples TCP_INFO off tc's underlying file descriptor via
// golang.org/x/sys/unix, whose TCPInfo struct already covers the two
// fields this gateway's liveness sampling needs (retransmits, smoothed
// RTT), so there's no need to hand-roll a raw memory-layout struct for
// it.
func readTCPInfo(tc *net.TCPConn) (*tcpInfoResult, error) {
	raw, err := tc.SyscallConn()
	if err != nil {
		return nil, err
	}

	var info *unix.TCPInfo
	var sysErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		info, sysErr = unix.GetsockoptTCPInfo(int(fd), unix.IPPROTO_TCP, unix.TCP_INFO)
	})
	if ctrlErr != nil {
		return nil, ctrlErr
	}
	if sysErr != nil {
		return nil, sysErr
	}
	return &tcpInfoResult{
		Retransmits: uint32(info.Retransmits),
		RTTMicros:   info.Rtt,
	}, nil
}
