// Package netio wraps the UDP datagram endpoint used by the sender,
// receiver and handshake. It exists so the reliable-transport engines
// never touch net.UDPConn directly, and so tests can swap in an
// in-memory fake (see fake.go). Binding and connecting is adapted from
// the teacher library's transport.UDPBind / transport.UDPConnect.
package netio

import (
	"context"
	"errors"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nickolajgrishuk/srftp/internal/proto"
)

// PacketConn is the minimal datagram-socket surface the protocol
// engines need.
type PacketConn interface {
	ReadFrom(buf []byte) (n int, addr net.Addr, err error)
	WriteTo(buf []byte, addr net.Addr) (int, error)
	SetReadDeadline(t time.Time) error
	LocalAddr() net.Addr
	Close() error
}

// Bind opens a UDP socket on the given port (0 for an OS-assigned
// ephemeral port), with SO_REUSEADDR set so a restarted server can
// rebind its well-known port immediately.
func Bind(port uint16) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var ctlErr error
			err := c.Control(func(fd uintptr) {
				ctlErr = setReuseAddr(fd)
			})
			if err != nil {
				return err
			}
			return ctlErr
		},
	}

	addr := &net.UDPAddr{IP: net.IPv4zero, Port: int(port)}
	conn, err := lc.ListenPacket(context.Background(), "udp", addr.String())
	if err != nil {
		return nil, err
	}

	udpConn, ok := conn.(*net.UDPConn)
	if !ok {
		conn.Close()
		return nil, errors.New("netio: listen did not return a UDPConn")
	}

	if mtu, err := getMTU(udpConn); err == nil && mtu > 0 && mtu < uint(proto.FrameSize) {
		logrus.WithField("mtu", mtu).WithField("frame_size", proto.FrameSize).
			Warn("path MTU is smaller than one srftp frame; expect IP-level fragmentation")
	}

	return udpConn, nil
}

// ResolveAddr resolves a host:port pair for use with WriteTo.
func ResolveAddr(host string, port uint16) (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(int(port))))
}
