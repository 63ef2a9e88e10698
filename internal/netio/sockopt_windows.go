//go:build windows

package netio

import "syscall"

// setReuseAddr sets SO_REUSEADDR on fd, adapted from the teacher
// library's transport.setSockoptInt (Windows build, which takes a
// syscall.Handle rather than a raw int fd).
func setReuseAddr(fd uintptr) error {
	return syscall.SetsockoptInt(syscall.Handle(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
}
