package server

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/clementraoulastek/tcp-server/pkg/protocol"
)

// messageEnvelope is the parsed form of a MESSAGE payload
// (sender:receiver:text[:response_id]).
type messageEnvelope struct {
	Sender     string
	Receiver   string
	Text       string
	ResponseID int64
}

// parseMessageEnvelope extracts the envelope from the colon-split fields of
// a MESSAGE payload. The receiver is stripped of spaces before persisting;
// the sender travels as written. The text is exactly the third field, and a
// response id is only honored when the payload has exactly four fields.
func parseMessageEnvelope(fields []string) (messageEnvelope, error) {
	if len(fields) < 3 {
		return messageEnvelope{}, fmt.Errorf("expected sender:receiver:text, got %d fields", len(fields))
	}

	env := messageEnvelope{
		Sender:   fields[0],
		Receiver: strings.ReplaceAll(fields[1], " ", ""),
		Text:     fields[2],
	}

	if len(fields) == 4 {
		id, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil {
			return messageEnvelope{}, fmt.Errorf("invalid response id %q", fields[3])
		}
		env.ResponseID = id
	}
	return env, nil
}

// reactionUpdate is the parsed form of an ADD_REACT or RM_REACT payload
// (sender:receiver:message_id;reaction_count).
type reactionUpdate struct {
	MessageID     int64
	ReactionCount int64
}

// parseReactionUpdate extracts the update from the colon-split fields of a
// reaction payload. The third field carries "message_id;reaction_count".
func parseReactionUpdate(fields []string) (reactionUpdate, error) {
	if len(fields) < 3 {
		return reactionUpdate{}, fmt.Errorf("expected sender:receiver:reaction, got %d fields", len(fields))
	}

	parts := strings.Split(fields[2], ";")
	if len(parts) < 2 {
		return reactionUpdate{}, fmt.Errorf("expected message_id;reaction_count, got %q", fields[2])
	}

	messageID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return reactionUpdate{}, fmt.Errorf("invalid message id %q", parts[0])
	}
	count, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return reactionUpdate{}, fmt.Errorf("invalid reaction count %q", parts[1])
	}

	return reactionUpdate{MessageID: messageID, ReactionCount: count}, nil
}

// routeFrame dispatches one inbound frame: record who the sender is, mirror
// what must be mirrored into the store, then relay to the destination
// connections. Persistence is best effort; a store failure never stops the
// frame from flowing.
func (s *Server) routeFrame(sc *SafeConn, frame *protocol.Frame) {
	fields := strings.Split(frame.Payload, ":")
	if len(fields) < 2 {
		errorLog.Printf("Connection %s: malformed %s payload, missing receiver field", sc.Addr(), frame.Command)
		if s.metrics != nil {
			s.metrics.RecordFrameDropped("malformed_payload")
		}
		return
	}

	sender := strings.ReplaceAll(fields[0], " ", "")
	receiver := strings.ReplaceAll(fields[1], " ", "")

	// Every frame re-announces its sender, so a reconnecting client is
	// reachable again as soon as it says anything.
	s.registry.Identify(sc.Addr(), sender)

	payload := frame.Payload
	switch frame.Command {
	case protocol.CmdMessage:
		env, err := parseMessageEnvelope(fields)
		if err != nil {
			errorLog.Printf("Connection %s: malformed %s payload: %v", sc.Addr(), frame.Command, err)
			if s.metrics != nil {
				s.metrics.RecordFrameDropped("malformed_payload")
			}
			return
		}
		messageID, err := s.store.SendMessage(env.Sender, env.Receiver, env.Text, env.ResponseID)
		if err != nil {
			// The frame still flows, just without a stored id for
			// clients to reference.
			errorLog.Printf("Connection %s: message not persisted: %v", sc.Addr(), err)
			if s.metrics != nil {
				s.metrics.RecordPersistenceFailure("create_message")
			}
		} else {
			payload = strconv.FormatInt(messageID, 10) + ":" + payload
		}

	case protocol.CmdAddReact, protocol.CmdRmReact:
		update, err := parseReactionUpdate(fields)
		if err != nil {
			errorLog.Printf("Connection %s: malformed %s payload: %v", sc.Addr(), frame.Command, err)
			if s.metrics != nil {
				s.metrics.RecordFrameDropped("malformed_payload")
			}
			return
		}
		if err := s.store.UpdateReactionCount(update.MessageID, update.ReactionCount); err != nil {
			errorLog.Printf("Connection %s: reaction not persisted: %v", sc.Addr(), err)
			if s.metrics != nil {
				s.metrics.RecordPersistenceFailure("update_reaction")
			}
		}
	}

	outgoing := &protocol.Frame{Command: frame.Command, Payload: payload}

	if receiver == home {
		s.broadcast(outgoing, false)
		return
	}

	// Direct frame: deliver to the receiver, then echo to the sender. An
	// unknown receiver silently gets nothing; the sender still sees the echo.
	if addr, ok := s.registry.Resolve(receiver); ok {
		if target, ok := s.registry.Get(addr); ok {
			s.relay(target, outgoing)
		} else {
			debugLog.Printf("Connection %s: receiver %q points at a gone connection %s", sc.Addr(), receiver, addr)
		}
	}

	if senderConn, ok := s.registry.Get(sc.Addr()); ok {
		s.relay(senderConn, outgoing)
	} else {
		debugLog.Printf("Connection %s vanished before its echo", sc.Addr())
	}

	debugLog.Printf("Connection %s: >> command: %s payload: %s", sc.Addr(), outgoing.Command, outgoing.Payload)
}

// relay writes one frame to one peer, dropping the peer when the write
// fails.
func (s *Server) relay(target *SafeConn, frame *protocol.Frame) {
	if err := target.EncodeFrame(frame, false); err != nil {
		debugLog.Printf("Connection %s: relay write failed (%s): %v", target.Addr(), frame.Command, err)
		s.dropConnection(target)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordFrameRelayed(frame.Command.String())
	}
}

// broadcast fans a frame out to every live connection, dropping any peer
// whose write fails.
func (s *Server) broadcast(frame *protocol.Frame, fromServer bool) {
	targets := s.registry.BroadcastTargets()

	var dead []*SafeConn
	for _, target := range targets {
		if err := target.EncodeFrame(frame, fromServer); err != nil {
			debugLog.Printf("Connection %s: broadcast write failed (%s): %v", target.Addr(), frame.Command, err)
			dead = append(dead, target)
			continue
		}
		if s.metrics != nil {
			s.metrics.RecordFrameRelayed(frame.Command.String())
		}
	}

	if s.metrics != nil {
		s.metrics.RecordBroadcastFanout(len(targets) - len(dead))
	}

	for _, conn := range dead {
		s.dropConnection(conn)
	}
}
