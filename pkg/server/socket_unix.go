// ABOUTME: Unix socket options applied to the relay listener
// ABOUTME: SO_REUSEADDR lets a restarted relay rebind its port immediately
//go:build unix || linux || darwin

package server

import (
	"syscall"
)

// setSocketOptions is applied to the listener socket before bind.
func setSocketOptions(fd uintptr) error {
	return syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
}
