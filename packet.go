package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/bt-bridge/socketio-chat/shared"
	"github.com/bytedance/sonic"
)

// Engine.IO v4 packet types, sent as the first byte of every frame.
type enginePacketType byte

const (
	enginePacketOpen    enginePacketType = '0'
	enginePacketClose   enginePacketType = '1'
	enginePacketPing    enginePacketType = '2'
	enginePacketPong    enginePacketType = '3'
	enginePacketMessage enginePacketType = '4'
	enginePacketUpgrade enginePacketType = '5'
	enginePacketNoop    enginePacketType = '6'
)

// Socket.IO v5 packet types, carried inside Engine.IO message packets.
type socketPacketType byte

const (
	socketPacketConnect      socketPacketType = '0'
	socketPacketDisconnect   socketPacketType = '1'
	socketPacketEvent        socketPacketType = '2'
	socketPacketAck          socketPacketType = '3'
	socketPacketConnectError socketPacketType = '4'
	socketPacketBinaryEvent  socketPacketType = '5'
	socketPacketBinaryAck    socketPacketType = '6'
)

// recordSeparator splits packets in a polling payload.
const recordSeparator = '\x1e'

type openPacket struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload"`
}

type socketPacket struct {
	typ       socketPacketType
	namespace string
	ackID     int
	hasAck    bool
	data      []byte
}

func encodeEngine(typ enginePacketType, data []byte) []byte {
	frame := make([]byte, 0, len(data)+1)
	frame = append(frame, byte(typ))
	return append(frame, data...)
}

func decodeEngine(frame []byte) (enginePacketType, []byte, error) {
	if len(frame) == 0 {
		return 0, nil, errors.New("empty engine packet")
	}
	typ := enginePacketType(frame[0])
	if typ < enginePacketOpen || typ > enginePacketNoop {
		return 0, nil, fmt.Errorf("%w: engine %q", shared.ErrUnknownPacket, frame[0])
	}
	return typ, frame[1:], nil
}

func decodeOpen(data []byte) (*openPacket, error) {
	open := new(openPacket)
	if err := sonic.Unmarshal(data, open); err != nil {
		return nil, fmt.Errorf("decoding open packet: %w", err)
	}
	if open.SID == "" {
		return nil, errors.New("open packet without sid")
	}
	return open, nil
}

// splitPayload returns the packets of a polling response body.
func splitPayload(body []byte) [][]byte {
	var frames [][]byte
	for frame := range bytes.SplitSeq(body, []byte{recordSeparator}) {
		if len(frame) > 0 {
			frames = append(frames, frame)
		}
	}
	return frames
}

func (p socketPacket) encode() []byte {
	var b bytes.Buffer
	b.WriteByte(byte(p.typ))
	if p.namespace != "" && p.namespace != "/" {
		b.WriteString(p.namespace)
		b.WriteByte(',')
	}
	if p.hasAck {
		b.WriteString(strconv.Itoa(p.ackID))
	}
	b.Write(p.data)
	return b.Bytes()
}

// frame wraps the packet in an Engine.IO message.
func (p socketPacket) frame() []byte {
	return encodeEngine(enginePacketMessage, p.encode())
}

func decodeSocket(data []byte) (socketPacket, error) {
	var p socketPacket
	if len(data) == 0 {
		return p, errors.New("empty socket packet")
	}
	p.typ = socketPacketType(data[0])
	switch p.typ {
	case socketPacketConnect, socketPacketDisconnect, socketPacketEvent, socketPacketAck, socketPacketConnectError:
	case socketPacketBinaryEvent, socketPacketBinaryAck:
		return p, shared.ErrBinaryUnsupported
	default:
		return p, fmt.Errorf("%w: socket %q", shared.ErrUnknownPacket, data[0])
	}
	i := 1
	p.namespace = "/"
	if i < len(data) && data[i] == '/' {
		end := bytes.IndexByte(data[i:], ',')
		if end < 0 {
			p.namespace = string(data[i:])
			return p, nil
		}
		p.namespace = string(data[i : i+end])
		i += end + 1
	}
	start := i
	for i < len(data) && data[i] >= '0' && data[i] <= '9' {
		i++
	}
	if i > start {
		id, err := strconv.Atoi(string(data[start:i]))
		if err != nil {
			return p, fmt.Errorf("parsing ack id: %w", err)
		}
		p.ackID = id
		p.hasAck = true
	}
	if i < len(data) {
		p.data = data[i:]
	}
	return p, nil
}

func encodeEvent(event string, payload any) ([]byte, error) {
	args := []any{event}
	if payload != nil {
		args = append(args, payload)
	}
	data, err := sonic.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s event: %w", event, err)
	}
	return data, nil
}

// decodeEvent splits an event array into its name and first argument.
// Extra arguments are dropped.
func decodeEvent(data []byte) (string, []byte, error) {
	var raw []json.RawMessage
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return "", nil, fmt.Errorf("decoding event: %w", err)
	}
	if len(raw) == 0 {
		return "", nil, errors.New("event without name")
	}
	var name string
	if err := sonic.Unmarshal(raw[0], &name); err != nil {
		return "", nil, fmt.Errorf("decoding event name: %w", err)
	}
	if len(raw) < 2 {
		return name, nil, nil
	}
	return name, raw[1], nil
}
