package shared

import "errors"

var (
	ErrNoLogger          = errors.New("no logger provided")
	ErrNoConfig          = errors.New("no config provided")
	ErrNoSocketFactory   = errors.New("no socket factory provided")
	ErrNoEndpoint        = errors.New("no endpoint provided")
	ErrAlreadyMounted    = errors.New("session already mounted")
	ErrNotJoined         = errors.New("session is not joined")
	ErrSessionClosed     = errors.New("session closed")
	ErrClientClosed      = errors.New("client closed")
	ErrAlreadyConnecting = errors.New("client already connecting")
	ErrUnknownPacket     = errors.New("unknown packet type")
	ErrBinaryUnsupported = errors.New("binary packets are not supported")
	ErrLoginRejected     = errors.New("login rejected")
)
