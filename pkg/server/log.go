package server

import (
	"io"
	"log"
	"os"
)

// Package-level loggers. errorLog always writes; debugLog stays discarded
// until debug logging is enabled.
var (
	errorLog = log.New(os.Stderr, "ERROR: ", log.LstdFlags)
	debugLog = log.New(io.Discard, "DEBUG: ", log.LstdFlags)
)

// EnableDebugLogging turns on verbose per-frame logging.
func (s *Server) EnableDebugLogging() {
	debugLog = log.New(os.Stderr, "DEBUG: ", log.LstdFlags|log.Lmicroseconds)
}
