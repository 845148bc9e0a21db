package protocol

import (
	"bytes"
	"errors"
	"io"
)

const (
	// Terminator ends every frame on the wire.
	Terminator = '\n'

	// ServerPrefix marks payloads the relay generated itself (connection
	// count notices and the like) so clients can tell them apart from
	// peer traffic. It is applied on encode only; decoding never strips it.
	ServerPrefix = "server:"
)

var (
	ErrUnknownCommand = errors.New("unknown command byte")
	ErrEmptyFrame     = errors.New("empty frame")
)

// Frame represents a single protocol frame.
// Format: [Command (1 byte)][UTF-8 payload (N bytes)][\n]
type Frame struct {
	Command Command
	Payload string
}

// EncodeFrame writes a frame to the writer. When fromServer is set the
// payload is prefixed with ServerPrefix.
//
// The framing is line-delimited, so a payload must not contain the
// terminator byte. That is a contract with the sender, not enforced here:
// a payload carrying '\n' would simply decode as two frames on the far end.
func EncodeFrame(w io.Writer, f *Frame, fromServer bool) error {
	payload := f.Payload
	if fromServer {
		payload = ServerPrefix + payload
	}

	// Single Write call so frames from concurrent encoders never interleave.
	buf := make([]byte, 0, len(payload)+2)
	buf = append(buf, byte(f.Command))
	buf = append(buf, payload...)
	buf = append(buf, Terminator)

	_, err := w.Write(buf)
	return err
}

// DecodeFrame reads one frame from the reader, accumulating bytes until the
// terminator or the end of the stream. Bytes already read when the stream
// ends still form a deliverable frame. Returns ErrEmptyFrame when the stream
// yielded no bytes at all (a clean disconnect), and ErrUnknownCommand when
// the command byte is not one of the defined codes.
func DecodeFrame(r io.Reader) (*Frame, error) {
	var raw []byte
	one := make([]byte, 1)

	for {
		n, err := r.Read(one)
		if n > 0 {
			if one[0] == Terminator {
				break
			}
			raw = append(raw, one[0])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
	}

	if len(raw) == 0 {
		return nil, ErrEmptyFrame
	}

	cmd := Command(raw[0])
	if !cmd.Valid() {
		return nil, ErrUnknownCommand
	}

	return &Frame{Command: cmd, Payload: string(raw[1:])}, nil
}

// EncodeMessage is a helper that encodes a single frame to a byte slice.
func EncodeMessage(cmd Command, payload string, fromServer bool) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := EncodeFrame(buf, &Frame{Command: cmd, Payload: payload}, fromServer); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeMessage is a helper that decodes a single frame from a byte slice.
func DecodeMessage(data []byte) (*Frame, error) {
	return DecodeFrame(bytes.NewReader(data))
}

// StripServerPrefix removes the server-notice marker from a decoded payload,
// reporting whether it was present.
func StripServerPrefix(payload string) (string, bool) {
	if len(payload) >= len(ServerPrefix) && payload[:len(ServerPrefix)] == ServerPrefix {
		return payload[len(ServerPrefix):], true
	}
	return payload, false
}
