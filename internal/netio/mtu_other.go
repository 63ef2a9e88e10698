//go:build !linux

package netio

import "net"

// defaultMTU is returned on platforms where IP_MTU isn't queryable.
const defaultMTU = 1400

// getMTU always returns defaultMTU outside Linux (macOS and Windows
// don't expose IP_MTU), adapted from the teacher library's
// transport.getMTU (non-Linux build).
func getMTU(conn *net.UDPConn) (uint, error) {
	return defaultMTU, nil
}
