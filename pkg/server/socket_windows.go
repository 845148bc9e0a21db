// ABOUTME: Windows socket options applied to the relay listener
// ABOUTME: SO_REUSEADDR lets a restarted relay rebind its port immediately
//go:build windows

package server

import (
	"syscall"
)

// setSocketOptions is applied to the listener socket before bind.
// Windows wants the descriptor as a syscall.Handle.
func setSocketOptions(fd uintptr) error {
	return syscall.SetsockoptInt(syscall.Handle(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
}
