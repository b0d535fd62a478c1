package socketio

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Engine.IO v4 packet types (first byte of a text frame).
const (
	engineOpen    = '0'
	engineClose   = '1'
	enginePing    = '2'
	enginePong    = '3'
	engineMessage = '4'
	engineUpgrade = '5'
	engineNoop    = '6'
)

// Socket.IO v4 packet types (byte after an Engine.IO message type).
const (
	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioAck          = '3'
	sioConnectError = '4'
)

// handshake is the Engine.IO open payload.
type handshake struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
	MaxPayload   int    `json:"maxPayload"`
}

// packet is a decoded Socket.IO packet on the default namespace.
type packet struct {
	typ   byte
	ackID int64 // -1 when absent
	data  json.RawMessage
}

var errShortPacket = errors.New("socketio: short packet")

// decodePacket parses the part of a "4..." frame after the Engine.IO type.
// Packets addressed to a non-default namespace are reported as errors.
func decodePacket(s string) (packet, error) {
	if s == "" {
		return packet{}, errShortPacket
	}
	p := packet{typ: s[0], ackID: -1}
	rest := s[1:]
	if strings.HasPrefix(rest, "/") {
		nsp, tail, _ := strings.Cut(rest, ",")
		if nsp != "/" {
			return packet{}, fmt.Errorf("socketio: unexpected namespace %q", nsp)
		}
		rest = tail
	}
	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	if i > 0 {
		id, err := strconv.ParseInt(rest[:i], 10, 64)
		if err != nil {
			return packet{}, fmt.Errorf("socketio: bad ack id: %w", err)
		}
		p.ackID = id
		rest = rest[i:]
	}
	if rest != "" {
		p.data = json.RawMessage(rest)
	}
	return p, nil
}

// encodeEvent builds "42[<id>]["event",payload]".
func encodeEvent(ackID int64, event string, payload any) ([]byte, error) {
	args := []any{event}
	if payload != nil {
		args = append(args, payload)
	}
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("socketio: encode %s: %w", event, err)
	}
	var b strings.Builder
	b.Grow(len(body) + 8)
	b.WriteByte(engineMessage)
	b.WriteByte(sioEvent)
	if ackID >= 0 {
		b.WriteString(strconv.FormatInt(ackID, 10))
	}
	b.Write(body)
	return []byte(b.String()), nil
}

// encodeAck builds "43<id>[]".
func encodeAck(ackID int64) []byte {
	return []byte(string([]byte{engineMessage, sioAck}) + strconv.FormatInt(ackID, 10) + "[]")
}

// splitEvent returns the event name and arguments of an event packet.
func splitEvent(data json.RawMessage) (string, []json.RawMessage, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return "", nil, fmt.Errorf("socketio: decode event: %w", err)
	}
	if len(arr) == 0 {
		return "", nil, errShortPacket
	}
	var name string
	if err := json.Unmarshal(arr[0], &name); err != nil {
		return "", nil, fmt.Errorf("socketio: event name: %w", err)
	}
	return name, arr[1:], nil
}
