package server

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// isTransportError reports whether err is one of the expected connection
// lifecycle failures (EOF, peer reset, abort, broken pipe, closed socket)
// rather than a recoverable read error.
func isTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE)
}
