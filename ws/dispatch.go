package ws

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"devgateway/engine"
)

// Dispatcher is the WS dispatcher (C14): turns decoded frames into control
// handling, validation, fragment reassembly, and response-rule/onMessage
// invocation for one handler's connections.
type Dispatcher struct {
	handler *Handler
	manager *Manager
}

func NewDispatcher(h *Handler, m *Manager) *Dispatcher {
	return &Dispatcher{handler: h, manager: m}
}

// ProcessFrame implements §4.14's per-frame processing order: control
// frames, then validation, then data-frame accumulation.
func (d *Dispatcher) ProcessFrame(conn *Connection, frame Frame) {
	conn.ResetInactivity(d.handler.InactivityTimeout)

	switch frame.Opcode {
	case OpClose:
		d.handleClose(conn, frame)
		return
	case OpPing:
		conn.ResetMissedPong()
		if d.handler.OnPing != nil {
			d.handler.OnPing(conn, frame.Payload)
		} else {
			_ = conn.Pong(frame.Payload)
		}
		return
	case OpPong:
		conn.ResetMissedPong()
		if d.handler.OnPong != nil {
			d.handler.OnPong(conn, frame.Payload)
		}
		return
	}

	if !d.validFrame(conn, frame) {
		_ = conn.Close(CloseProtocolError, "Protocol error", false)
		return
	}

	d.handleData(conn, frame)
}

func (d *Dispatcher) validFrame(conn *Connection, frame Frame) bool {
	if frame.Opcode > 0x0A {
		return false
	}
	if frame.Opcode >= 0x03 && frame.Opcode <= 0x07 {
		return false
	}
	if frame.Rsv2 || frame.Rsv3 {
		return false
	}
	if frame.Rsv1 && conn.deflate == nil {
		return false
	}
	return true
}

func (d *Dispatcher) handleClose(conn *Connection, frame Frame) {
	payload := frame.Payload
	switch {
	case len(payload) == 0:
		_ = conn.Close(CloseNormal, "", true)
	case len(payload) == 1 || len(payload) > 125:
		_ = conn.Close(CloseProtocolError, "Protocol error: invalid close payload", true)
	default:
		code := int(binary.BigEndian.Uint16(payload[:2]))
		reason := payload[2:]
		if !ValidCloseCode(code) {
			_ = conn.Close(CloseProtocolError, "Protocol error: invalid close code", true)
			return
		}
		if !utf8.Valid(reason) {
			_ = conn.Close(CloseProtocolError, "Protocol error: invalid close payload", true)
			return
		}
		_ = conn.Close(CloseCode(code), string(reason), true)
	}
}

func (d *Dispatcher) handleData(conn *Connection, frame Frame) {
	if frame.Opcode == OpContinuation {
		if !conn.fragActive {
			_ = conn.Close(CloseProtocolError, "Continuation frame without initial frame", false)
			return
		}
		conn.appendFragment(frame.Payload)
		if !frame.Fin {
			return
		}
		opcode, payload := conn.finishFragment()
		d.deliverMessage(conn, opcode, payload, conn.fragCompressed)
		return
	}

	if !frame.Fin {
		conn.fragCompressed = frame.Rsv1
		conn.beginFragment(frame.Opcode, frame.Payload)
		return
	}

	d.deliverMessage(conn, frame.Opcode, frame.Payload, frame.Rsv1)
}

func (d *Dispatcher) deliverMessage(conn *Connection, opcode byte, payload []byte, compressed bool) {
	if compressed && conn.deflate != nil {
		plain, err := conn.deflate.Decompress(payload)
		if err != nil {
			d.reportError(conn, fmt.Errorf("deflate: %w", err))
			return
		}
		payload = plain
	}

	if d.handler.Delay > 0 {
		time.Sleep(d.handler.Delay)
	}

	var msg Message
	if d.handler.TransformRawData != nil {
		msg = d.handler.TransformRawData(payload, opcode)
		if msg.Opcode == OpContinuation {
			msg.Opcode = opcode // custom transform left the zero value; recover the real opcode
		}
	} else {
		msg = deriveMessage(opcode, payload)
	}

	for _, rule := range d.handler.Responses {
		matched, err := safeMatch(rule, conn, msg)
		if err != nil {
			d.reportError(conn, err)
			return
		}
		if !matched {
			continue
		}
		value, rerr := rule.Response(conn, msg)
		if rerr != nil {
			d.reportError(conn, rerr)
			return
		}
		if value == nil {
			return
		}
		out, merr := json.Marshal(value)
		if merr != nil {
			d.reportError(conn, merr)
			return
		}
		if rule.Broadcast {
			d.manager.Broadcast(out, BroadcastOptions{Room: rule.Room}, nil)
		} else {
			_ = conn.Send(out)
		}
		return
	}

	if d.handler.OnMessage != nil {
		d.handler.OnMessage(conn, msg)
	}
}

func deriveMessage(opcode byte, payload []byte) Message {
	msg := Message{Opcode: opcode}
	switch opcode {
	case OpText:
		msg.Text = string(payload)
		var v interface{}
		if json.Unmarshal(payload, &v) == nil {
			msg.JSON = v
		}
	default:
		msg.Binary = payload
	}
	return msg
}

func safeMatch(rule ResponseRule, conn *Connection, msg Message) (matched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("response rule match panicked: %v", r)
		}
	}()
	if rule.Match == nil {
		return false, nil
	}
	return rule.Match(conn, msg), nil
}

func (d *Dispatcher) reportError(conn *Connection, err error) {
	if d.handler.OnError != nil {
		d.handler.OnError(conn, err)
		return
	}
	env := engine.NewEnvelope(500, err.Error(), conn.Path)
	out, merr := json.Marshal(env)
	if merr == nil {
		_ = conn.Send(out)
	}
}

// OnSocketClosed implements the socket-close lifecycle from §4.14: hadError
// maps to code 1006 "Connection closed abnormally", otherwise 1000.
func (d *Dispatcher) OnSocketClosed(conn *Connection, hadError bool) {
	code := CloseNormal
	reason := ""
	if hadError {
		code = CloseAbnormal
		reason = "Connection closed abnormally"
	}
	if d.handler.OnClose != nil {
		d.handler.OnClose(conn, code, reason)
	}
	d.manager.Remove(conn.ID)
	conn.ForceClose()
}

// OnSocketError calls the handler's onError hook, then force-closes.
func (d *Dispatcher) OnSocketError(conn *Connection, err error) {
	if d.handler.OnError != nil {
		d.handler.OnError(conn, err)
	}
	conn.ForceClose()
}
