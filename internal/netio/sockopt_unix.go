//go:build !windows

package netio

import "syscall"

// setReuseAddr sets SO_REUSEADDR on fd so a restarted server can
// rebind its well-known port immediately, adapted from the teacher
// library's transport.setSockoptInt (Unix build).
func setReuseAddr(fd uintptr) error {
	return syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
}
