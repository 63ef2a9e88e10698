//go:build linux

package netio

import (
	"net"
	"syscall"
)

// defaultMTU is returned whenever the platform can't report a real
// path MTU for conn.
const defaultMTU = 1400

// getMTU reads IP_MTU for conn on Linux, adapted from the teacher
// library's transport.getMTU (Linux build). It is used only to warn
// operators that their path may fragment a frame below the IP layer;
// the protocol itself never fragments.
func getMTU(conn *net.UDPConn) (uint, error) {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return defaultMTU, nil
	}

	var mtu int
	var getErr error
	err = rawConn.Control(func(fd uintptr) {
		mtu, getErr = syscall.GetsockoptInt(int(fd), syscall.IPPROTO_IP, syscall.IP_MTU)
	})
	if err != nil || getErr != nil || mtu <= 0 {
		return defaultMTU, nil
	}

	return uint(mtu), nil
}
