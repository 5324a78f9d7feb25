package chat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/bt-bridge/socketio-chat/shared"
	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Listener receives the first argument of an inbound event as raw JSON,
// or nil when the event carried none.
type Listener func(data []byte)

// AckFunc receives the arguments of a server acknowledgement as a raw
// JSON array.
type AckFunc func(args []byte)

// Socket is the capability set a Session needs from one connection.
type Socket interface {
	Connect() error
	Subscribe(event string, listener Listener)
	Emit(event string, payload any, ack AckFunc) error
	Close() error
}

// SocketFactory creates the connection handle for one channel URL.
type SocketFactory func(channel *url.URL) (Socket, error)

type ClientState int

const (
	ClientStateNew ClientState = iota
	ClientStateConnecting
	ClientStateConnected
	ClientStateDisconnected
	ClientStateClosed
)

func (s ClientState) String() string {
	switch s {
	case ClientStateNew:
		return "new"
	case ClientStateConnecting:
		return "connecting"
	case ClientStateConnected:
		return "connected"
	case ClientStateDisconnected:
		return "disconnected"
	case ClientStateClosed:
		return "closed"
	}
	return fmt.Sprintf("ClientState(%d)", int(s))
}

const writeWait = 10 * time.Second

type ClientConfig struct {
	EnginePath       string
	HandshakeTimeout time.Duration
	Polling          bool
	// Auth is sent with the namespace CONNECT packet when set.
	Auth    any
	Cookies []*http.Cookie
}

// Client is a Socket.IO client bound to a single namespace over one
// websocket. Listeners run on the client's read goroutine.
type Client struct {
	logger    shared.LoggerAdapter
	base      *url.URL
	namespace string
	cfg       ClientConfig
	dialer    *websocket.Dialer
	http      *fasthttp.Client

	mu        sync.Mutex
	state     ClientState
	conn      *websocket.Conn
	sid       string
	listeners map[string][]Listener
	acks      map[int]AckFunc
	nextAck   int
	buffer    [][]byte

	// writeMu serialises frames on conn; it is taken after mu when both
	// are needed.
	writeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelCauseFunc
}

var _ Socket = (*Client)(nil)

func NewClient(ctx context.Context, logger shared.LoggerAdapter, channel *url.URL, cfg *ClientConfig) (*Client, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if channel == nil || channel.Host == "" {
		return nil, shared.ErrNoEndpoint
	}
	if cfg == nil {
		return nil, shared.ErrNoConfig
	}
	if ctx == nil {
		ctx = context.Background()
	}
	c := &Client{
		base:      &url.URL{Scheme: channel.Scheme, Host: channel.Host},
		namespace: channel.Path,
		cfg:       *cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		http:      &fasthttp.Client{Name: "socketio-chat/" + shared.Version},
		listeners: make(map[string][]Listener),
		acks:      make(map[int]AckFunc),
	}
	if c.namespace == "" {
		c.namespace = "/"
	}
	if c.cfg.EnginePath == "" {
		c.cfg.EnginePath = shared.DefaultEnginePath
	}
	if c.cfg.HandshakeTimeout <= 0 {
		c.cfg.HandshakeTimeout = shared.DefaultHandshakeTimeout
		c.dialer.HandshakeTimeout = c.cfg.HandshakeTimeout
	}
	c.logger = logger.With(zap.String("namespace", c.namespace), zap.String("host", c.base.Host))
	c.ctx, c.cancel = context.WithCancelCause(ctx)
	return c, nil
}

// NewSocketFactory returns a factory producing Clients that share cfg.
func NewSocketFactory(ctx context.Context, logger shared.LoggerAdapter, cfg *ClientConfig) SocketFactory {
	return func(channel *url.URL) (Socket, error) {
		return NewClient(ctx, logger, channel, cfg)
	}
}

func (c *Client) State() ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SID is the namespace session id assigned by the server.
func (c *Client) SID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sid
}

func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Err reports why the client stopped, nil while it is running.
func (c *Client) Err() error {
	if c.ctx.Err() == nil {
		return nil
	}
	return context.Cause(c.ctx)
}

func (c *Client) respectCtx() error {
	select {
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
	}
	return nil
}

func (c *Client) Subscribe(event string, listener Listener) {
	if listener == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners[event] = append(c.listeners[event], listener)
}

// Connect starts dialing in the background and returns immediately.
// The outcome is reported through the connect or connect_error events.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case ClientStateNew:
	case ClientStateClosed:
		return shared.ErrClientClosed
	default:
		return shared.ErrAlreadyConnecting
	}
	if err := c.respectCtx(); err != nil {
		return fmt.Errorf("respecting client context: %w", err)
	}
	c.state = ClientStateConnecting
	go c.run()
	return nil
}

// Emit sends an event. Events emitted before the namespace is connected
// are buffered and flushed in order once it is. ack, when set, fires at
// most once and never after the connection is gone.
func (c *Client) Emit(event string, payload any, ack AckFunc) error {
	if IsReserved(event) {
		return fmt.Errorf("%q is a reserved event name", event)
	}
	data, err := encodeEvent(event, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	switch c.state {
	case ClientStateDisconnected, ClientStateClosed:
		c.mu.Unlock()
		return shared.ErrClientClosed
	}
	p := socketPacket{typ: socketPacketEvent, namespace: c.namespace, data: data}
	if ack != nil {
		p.ackID = c.nextAck
		p.hasAck = true
		c.acks[p.ackID] = ack
		c.nextAck++
	}
	frame := p.frame()
	if c.state != ClientStateConnected {
		c.buffer = append(c.buffer, frame)
		c.mu.Unlock()
		c.logger.Trace("buffered event until connected", zap.String("event", event))
		return nil
	}
	conn := c.conn
	c.writeMu.Lock()
	c.mu.Unlock()
	defer c.writeMu.Unlock()
	if err := c.write(conn, frame); err != nil {
		return fmt.Errorf("emitting %s: %w", event, err)
	}
	c.logger.Trace("emitted event", zap.String("event", event), zap.Bool("ack", ack != nil))
	return nil
}

// Close terminates the connection. It is safe to call more than once and
// before Connect; pending acks are dropped.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == ClientStateClosed {
		c.mu.Unlock()
		return nil
	}
	prev := c.state
	c.state = ClientStateClosed
	conn := c.conn
	c.acks = make(map[int]AckFunc)
	c.buffer = nil
	c.mu.Unlock()

	if conn != nil {
		if prev == ClientStateConnected {
			c.writeMu.Lock()
			disconnect := socketPacket{typ: socketPacketDisconnect, namespace: c.namespace}
			if err := c.write(conn, disconnect.frame()); err != nil {
				c.logger.Debug("sending namespace disconnect failed", zap.Error(err))
			}
			if err := c.write(conn, encodeEngine(enginePacketClose, nil)); err != nil {
				c.logger.Debug("sending engine close failed", zap.Error(err))
			}
			c.writeMu.Unlock()
		}
		// a dropped connection was already closed by terminate
		if prev != ClientStateDisconnected {
			if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				c.logger.Error("closing websocket failed", err)
			}
		}
	}
	c.cancel(shared.ErrClientClosed)
	c.logger.Info("client closed", zap.String("prev", prev.String()))
	return nil
}

// write must be called with writeMu held.
func (c *Client) write(conn *websocket.Conn, frame []byte) error {
	if conn == nil {
		return errors.New("no connection")
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Client) run() {
	conn, open, err := c.dial()
	if err != nil {
		c.logger.Error("connecting failed", err)
		c.terminate(ReasonTransportError, err)
		return
	}
	c.mu.Lock()
	if c.state == ClientStateClosed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()
	c.logger.Debug(
		"engine session opened",
		zap.String("sid", open.SID),
		zap.Int("ping_interval_ms", open.PingInterval),
		zap.Int("ping_timeout_ms", open.PingTimeout),
	)

	connect := socketPacket{typ: socketPacketConnect, namespace: c.namespace}
	if c.cfg.Auth != nil {
		auth, err := sonic.Marshal(c.cfg.Auth)
		if err != nil {
			c.terminate(ReasonTransportError, fmt.Errorf("marshaling auth: %w", err))
			return
		}
		connect.data = auth
	}
	c.writeMu.Lock()
	err = c.write(conn, connect.frame())
	c.writeMu.Unlock()
	if err != nil {
		c.terminate(ReasonTransportError, fmt.Errorf("sending namespace connect: %w", err))
		return
	}
	c.readLoop(conn, open)
}

func (c *Client) readLoop(conn *websocket.Conn, open *openPacket) {
	wait := time.Duration(open.PingInterval+open.PingTimeout) * time.Millisecond
	for {
		if wait > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(wait))
		} else {
			_ = conn.SetReadDeadline(time.Time{})
		}
		_, frame, err := conn.ReadMessage()
		if err != nil {
			reason := ReasonTransportClose
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				reason = ReasonPingTimeout
			}
			c.terminate(reason, err)
			return
		}
		if stop := c.handleEngine(conn, frame); stop {
			return
		}
	}
}

// handleEngine processes one Engine.IO frame and reports whether the
// read loop should stop.
func (c *Client) handleEngine(conn *websocket.Conn, frame []byte) bool {
	typ, data, err := decodeEngine(frame)
	if err != nil {
		c.logger.Warn("dropping malformed frame", zap.Error(err), zap.ByteString("frame", frame))
		return false
	}
	switch typ {
	case enginePacketPing:
		c.writeMu.Lock()
		err := c.write(conn, encodeEngine(enginePacketPong, data))
		c.writeMu.Unlock()
		if err != nil {
			c.terminate(ReasonTransportError, fmt.Errorf("answering ping: %w", err))
			return true
		}
	case enginePacketClose:
		c.terminate(ReasonTransportClose, errors.New("server closed engine session"))
		return true
	case enginePacketMessage:
		p, err := decodeSocket(data)
		if err != nil {
			c.logger.Warn("dropping malformed packet", zap.Error(err), zap.ByteString("data", data))
			return false
		}
		return c.handleSocket(conn, p)
	case enginePacketNoop, enginePacketPong, enginePacketOpen, enginePacketUpgrade:
	}
	return false
}

func (c *Client) handleSocket(conn *websocket.Conn, p socketPacket) bool {
	if p.namespace != c.namespace {
		c.logger.Debug("ignoring packet for other namespace", zap.String("packet_namespace", p.namespace))
		return false
	}
	switch p.typ {
	case socketPacketConnect:
		c.onConnect(conn, p)
	case socketPacketEvent:
		name, arg, err := decodeEvent(p.data)
		if err != nil {
			c.logger.Warn("dropping malformed event", zap.Error(err), zap.ByteString("data", p.data))
			return false
		}
		if p.hasAck {
			ack := socketPacket{typ: socketPacketAck, namespace: c.namespace, ackID: p.ackID, hasAck: true, data: []byte("[]")}
			c.writeMu.Lock()
			if err := c.write(conn, ack.frame()); err != nil {
				c.logger.Debug("acknowledging server event failed", zap.Error(err))
			}
			c.writeMu.Unlock()
		}
		c.logger.Trace("received event", zap.String("event", name), zap.ByteString("data", arg))
		c.dispatch(name, arg)
	case socketPacketAck:
		c.mu.Lock()
		ack, ok := c.acks[p.ackID]
		delete(c.acks, p.ackID)
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("ack without pending callback", zap.Int("ack_id", p.ackID))
			return false
		}
		ack(p.data)
	case socketPacketDisconnect:
		c.terminate(ReasonServerDisconnect, errors.New("server disconnected namespace"))
		return true
	case socketPacketConnectError:
		reason := DecodeReason(p.data)
		c.terminate(reason, fmt.Errorf("namespace connect refused: %s", reason))
		return true
	}
	return false
}

func (c *Client) onConnect(conn *websocket.Conn, p socketPacket) {
	var body struct {
		SID string `json:"sid"`
	}
	if len(p.data) > 0 {
		if err := sonic.Unmarshal(p.data, &body); err != nil {
			c.logger.Warn("decoding connect packet", zap.Error(err))
		}
	}
	c.mu.Lock()
	if c.state != ClientStateConnecting {
		c.mu.Unlock()
		return
	}
	c.state = ClientStateConnected
	c.sid = body.SID
	pending := c.buffer
	c.buffer = nil
	c.writeMu.Lock()
	c.mu.Unlock()
	for _, frame := range pending {
		if err := c.write(conn, frame); err != nil {
			c.logger.Error("flushing buffered event failed", err)
			break
		}
	}
	c.writeMu.Unlock()
	c.logger.Info("namespace connected", zap.String("sid", body.SID), zap.Int("flushed", len(pending)))
	c.dispatch(string(EventConnect), nil)
}

// terminate moves the client to Disconnected after a failure, closes the
// websocket and tells subscribers. It does nothing after Close.
func (c *Client) terminate(reason string, cause error) {
	c.mu.Lock()
	if c.state == ClientStateClosed || c.state == ClientStateDisconnected {
		c.mu.Unlock()
		return
	}
	event := EventDisconnect
	if c.state != ClientStateConnected {
		event = EventConnectError
	}
	c.state = ClientStateDisconnected
	conn := c.conn
	c.acks = make(map[int]AckFunc)
	c.buffer = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.cancel(cause)
	c.logger.Warn("connection lost", zap.String("event", string(event)), zap.String("reason", reason), zap.Error(cause))
	data, err := sonic.Marshal(reason)
	if err != nil {
		data = nil
	}
	c.dispatch(string(event), data)
}

func (c *Client) dispatch(event string, data []byte) {
	c.mu.Lock()
	listeners := append([]Listener(nil), c.listeners[event]...)
	c.mu.Unlock()
	for _, l := range listeners {
		l(data)
	}
}
