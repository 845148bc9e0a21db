package protocol

import (
	"bytes"
	"strings"
	"testing"
)

// FuzzDecodeFrame throws arbitrary byte streams at the decoder. It must
// never panic, and anything it accepts must satisfy the frame invariants.
func FuzzDecodeFrame(f *testing.F) {
	// Seed with well-formed frames.
	seed, err := EncodeMessage(CmdMessage, "alice:bob:hello", false)
	if err != nil {
		f.Fatalf("Failed to encode seed frame: %v", err)
	}
	f.Add(seed)

	notice, err := EncodeMessage(CmdConnNb, "3", true)
	if err != nil {
		f.Fatalf("Failed to encode seed frame: %v", err)
	}
	f.Add(notice)

	// And with the interesting edges.
	f.Add([]byte{})
	f.Add([]byte{'\n'})
	f.Add([]byte{0x00})
	f.Add([]byte{0xFF, 'x', '\n'})
	f.Add([]byte{0x05, 'a', ':', 'b', ':', '4', '2', ';', '3', '\n'})
	f.Add([]byte("\x01alice:home:hello\n\x03alice:home:bye\n"))

	f.Fuzz(func(t *testing.T, data []byte) {
		frame, err := DecodeFrame(bytes.NewReader(data))
		if err != nil {
			return
		}

		if !frame.Command.Valid() {
			t.Fatalf("Decoded frame carries invalid command %d", frame.Command)
		}
		if strings.ContainsRune(frame.Payload, Terminator) {
			t.Fatalf("Decoded payload contains the terminator: %q", frame.Payload)
		}
	})
}
