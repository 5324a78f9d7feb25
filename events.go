package chat

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

type EventType string

type ServerEventType EventType

type ClientEventType EventType

// Events raised locally by the transport rather than sent by the server.
const (
	EventConnect      EventType = "connect"
	EventConnectError EventType = "connect_error"
	EventDisconnect   EventType = "disconnect"
)

// Server event types
const (
	ServerEventTypeStatus  ServerEventType = "status"
	ServerEventTypeMessage ServerEventType = "message"
)

// Client event types
const (
	ClientEventTypeJoined ClientEventType = "joined"
	ClientEventTypeText   ClientEventType = "text"
	ClientEventTypeLeft   ClientEventType = "left"
)

// Disconnect reasons carried as the payload of EventDisconnect.
const (
	ReasonServerDisconnect = "io server disconnect"
	ReasonPingTimeout      = "ping timeout"
	ReasonTransportClose   = "transport close"
	ReasonTransportError   = "transport error"
)

var reservedEvents = map[string]struct{}{
	string(EventConnect):      {},
	string(EventConnectError): {},
	string(EventDisconnect):   {},
	"disconnecting":           {},
	"newListener":             {},
	"removeListener":          {},
}

// IsReserved reports whether name is owned by the transport and cannot be
// emitted by callers.
func IsReserved(name string) bool {
	_, ok := reservedEvents[name]
	return ok
}

// MessagePayload is the {msg} body shared by status, message and text.
type MessagePayload struct {
	Msg string `json:"msg" yaml:"msg"`
}

// EmptyPayload marshals to {} for joined and left.
type EmptyPayload struct{}

func DecodeMessage(data []byte) (MessagePayload, error) {
	var p MessagePayload
	if len(data) == 0 {
		return p, errors.New("missing payload")
	}
	if err := sonic.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decoding message payload: %w", err)
	}
	return p, nil
}

// ConnectError is the body of a namespace CONNECT_ERROR packet.
type ConnectError struct {
	Message string `json:"message" yaml:"message"`
	Data    any    `json:"data,omitempty" yaml:"data,omitempty"`
}

// DecodeReason extracts a human readable reason from a connect_error or
// disconnect payload, which is either a JSON string or a ConnectError.
func DecodeReason(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var s string
	if err := sonic.Unmarshal(data, &s); err == nil {
		return s
	}
	var ce ConnectError
	if err := sonic.Unmarshal(data, &ce); err == nil && ce.Message != "" {
		return ce.Message
	}
	return string(data)
}
