package chat

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/bt-bridge/socketio-chat/shared"
	"github.com/bt-bridge/socketio-chat/tools"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SessionState int

const (
	SessionStateIdle SessionState = iota
	SessionStateConnecting
	SessionStateJoined
	SessionStateLeaving
	SessionStateDisconnected
)

func (s SessionState) String() string {
	switch s {
	case SessionStateIdle:
		return "idle"
	case SessionStateConnecting:
		return "connecting"
	case SessionStateJoined:
		return "joined"
	case SessionStateLeaving:
		return "leaving"
	case SessionStateDisconnected:
		return "disconnected"
	}
	return fmt.Sprintf("SessionState(%d)", int(s))
}

// Reason tags why a session reached SessionStateDisconnected.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonLeft           Reason = "left"
	ReasonLeaveTimeout   Reason = "leave_timeout"
	ReasonUnmounted      Reason = "unmounted"
	ReasonConnectFailed  Reason = "connect_failed"
	ReasonConnectionLost Reason = "connection_lost"
)

// IsFailure reports whether the session ended because the connection
// could not be established or was lost.
func (r Reason) IsFailure() bool {
	return r == ReasonConnectFailed || r == ReasonConnectionLost
}

type SessionConfig struct {
	RoomID       string
	Endpoint     *url.URL
	Namespace    string
	LeaveTimeout time.Duration
	// Now stamps log entries; time.Now when nil.
	Now func() time.Time
}

// NewSessionConfig derives the session settings from the loaded config.
func NewSessionConfig(cfg *shared.Config) (*SessionConfig, error) {
	if cfg == nil {
		return nil, shared.ErrNoConfig
	}
	endpoint, err := cfg.EndpointURL()
	if err != nil {
		return nil, err
	}
	return &SessionConfig{
		RoomID:       cfg.Room,
		Endpoint:     endpoint,
		Namespace:    cfg.Namespace,
		LeaveTimeout: cfg.LeaveTimeout,
	}, nil
}

// Session is one widget's participation in a room. Every transition runs
// on the session's own loop goroutine; the exported methods are safe for
// concurrent use but must not be called from a Socket listener.
type Session struct {
	logger  shared.LoggerAdapter
	cfg     SessionConfig
	factory SocketFactory
	id      string

	qmu   sync.Mutex
	queue []func()
	wake  chan struct{}
	quit  chan struct{}

	mu     sync.RWMutex
	state  SessionState
	reason Reason
	log    []LogEntry
	input  string

	// owned by the loop
	sock       Socket
	sockClosed bool
	leaveTimer *time.Timer

	changes chan struct{}
	done    chan struct{}
	ctx     context.Context
}

// NewSession creates an Idle session and starts its loop. Cancelling ctx
// has the same effect as Unmount.
func NewSession(ctx context.Context, logger shared.LoggerAdapter, cfg *SessionConfig, factory SocketFactory) (*Session, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if cfg == nil {
		return nil, shared.ErrNoConfig
	}
	if cfg.Endpoint == nil {
		return nil, shared.ErrNoEndpoint
	}
	if factory == nil {
		return nil, shared.ErrNoSocketFactory
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s := &Session{
		cfg:     *cfg,
		factory: factory,
		id:      uuid.NewString(),
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
		ctx:     ctx,
	}
	if s.cfg.Namespace == "" {
		s.cfg.Namespace = shared.DefaultNamespace
	}
	if s.cfg.LeaveTimeout <= 0 {
		s.cfg.LeaveTimeout = shared.DefaultLeaveTimeout
	}
	if s.cfg.Now == nil {
		s.cfg.Now = time.Now
	}
	s.logger = logger.With(zap.String("room", s.cfg.RoomID), zap.String("session_id", s.id))
	go s.run()
	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) RoomID() string { return s.cfg.RoomID }

func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Reason() Reason {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reason
}

// Log returns a copy of the message log in display order.
func (s *Session) Log() []LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]LogEntry(nil), s.log...)
}

// Lines returns the formatted message log.
func (s *Session) Lines() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lines := make([]string, len(s.log))
	for i, e := range s.log {
		lines[i] = e.String()
	}
	return lines
}

func (s *Session) Input() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.input
}

// Changes signals after any observable change. Signals coalesce, so
// readers should re-read the whole state.
func (s *Session) Changes() <-chan struct{} {
	return s.changes
}

// Done is closed once the session is Disconnected.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Mount opens the connection to the room's channel.
func (s *Session) Mount() error {
	return s.do(s.mount)
}

// SetInput records the text currently typed by the user.
func (s *Session) SetInput(text string) error {
	return s.do(func() error {
		s.setInput(text)
		return nil
	})
}

// Submit sends the pending input as chat text and clears it. Blank input
// is dropped without touching the wire.
func (s *Session) Submit() error {
	return s.do(s.submit)
}

func (s *Session) SubmitText(text string) error {
	return s.do(func() error {
		s.setInput(text)
		return s.submit()
	})
}

// Leave announces departure and closes the connection once the server
// acknowledges it, or after the leave timeout.
func (s *Session) Leave() error {
	return s.do(s.leave)
}

// Unmount closes the connection without the leave handshake. It is safe
// to call in any state and more than once.
func (s *Session) Unmount() error {
	err := s.do(func() error {
		s.finish(ReasonUnmounted)
		return nil
	})
	if errors.Is(err, shared.ErrSessionClosed) {
		return nil
	}
	return err
}

func (s *Session) run() {
	for {
		select {
		case <-s.wake:
			for _, fn := range s.drain() {
				fn()
				if s.State() == SessionStateDisconnected {
					close(s.quit)
					return
				}
			}
		case <-s.ctx.Done():
			s.finish(ReasonUnmounted)
			close(s.quit)
			return
		}
	}
}

func (s *Session) drain() []func() {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	fns := s.queue
	s.queue = nil
	return fns
}

// post queues fn on the loop without waiting. It reports false once the
// loop has stopped.
func (s *Session) post(fn func()) bool {
	select {
	case <-s.quit:
		return false
	default:
	}
	s.qmu.Lock()
	s.queue = append(s.queue, fn)
	s.qmu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

// do runs fn on the loop and waits for its result.
func (s *Session) do(fn func() error) error {
	res := make(chan error, 1)
	if !s.post(func() { res <- fn() }) {
		return shared.ErrSessionClosed
	}
	select {
	case err := <-res:
		return err
	case <-s.quit:
		select {
		case err := <-res:
			return err
		default:
			return shared.ErrSessionClosed
		}
	}
}

func (s *Session) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()
	s.logger.Trace(
		"session state changed",
		zap.String("prev", prev.String()),
		zap.String("new", state.String()),
	)
	s.notify()
}

func (s *Session) setInput(text string) {
	s.mu.Lock()
	changed := s.input != text
	s.input = text
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

func (s *Session) appendEntry(e LogEntry) {
	s.mu.Lock()
	s.log = append(s.log, e)
	s.mu.Unlock()
	s.notify()
}

func (s *Session) mount() error {
	if s.state != SessionStateIdle {
		return shared.ErrAlreadyMounted
	}
	channel := tools.ChannelURL(s.cfg.Endpoint, s.cfg.Namespace)
	s.setState(SessionStateConnecting)
	s.logger.Info("mounting session", zap.String("channel", channel.String()))

	sock, err := s.factory(channel)
	if err != nil {
		s.logger.Error("creating socket failed", err)
		s.finish(ReasonConnectFailed)
		return nil
	}
	s.sock = sock
	sock.Subscribe(string(EventConnect), func([]byte) {
		s.post(s.onConnect)
	})
	sock.Subscribe(string(EventConnectError), func(data []byte) {
		s.post(func() { s.onFailure(EventConnectError, data) })
	})
	sock.Subscribe(string(EventDisconnect), func(data []byte) {
		s.post(func() { s.onFailure(EventDisconnect, data) })
	})
	sock.Subscribe(string(ServerEventTypeStatus), func(data []byte) {
		at := s.cfg.Now()
		s.post(func() { s.onEntry(EntryKindStatus, at, data) })
	})
	sock.Subscribe(string(ServerEventTypeMessage), func(data []byte) {
		at := s.cfg.Now()
		s.post(func() { s.onEntry(EntryKindChat, at, data) })
	})
	if err := sock.Connect(); err != nil {
		s.logger.Error("starting connection failed", err)
		s.finish(ReasonConnectFailed)
	}
	return nil
}

func (s *Session) onConnect() {
	if s.state != SessionStateConnecting {
		s.logger.Debug("ignoring connect", zap.String("state", s.state.String()))
		return
	}
	s.setState(SessionStateJoined)
	if err := s.sock.Emit(string(ClientEventTypeJoined), EmptyPayload{}, nil); err != nil {
		s.logger.Error("announcing join failed", err)
		return
	}
	s.logger.Info("joined room")
}

func (s *Session) onEntry(kind EntryKind, at time.Time, data []byte) {
	if s.state != SessionStateJoined {
		s.logger.Debug("dropping entry outside joined state", zap.String("state", s.state.String()))
		return
	}
	p, err := DecodeMessage(data)
	if err != nil {
		s.logger.Warn("dropping undecodable entry", zap.Error(err), zap.ByteString("data", data))
		return
	}
	entry := LogEntry{Timestamp: at, Kind: kind, Text: p.Msg}
	s.appendEntry(entry)
	s.logger.Debug("appended entry", zap.Stringer("kind", kind), zap.String("msg", p.Msg))
}

func (s *Session) onFailure(event EventType, data []byte) {
	reason := DecodeReason(data)
	switch s.state {
	case SessionStateConnecting:
		s.logger.Warn("connection failed", zap.String("event", string(event)), zap.String("reason", reason))
		s.finish(ReasonConnectFailed)
	case SessionStateJoined, SessionStateLeaving:
		s.logger.Warn("connection lost", zap.String("event", string(event)), zap.String("reason", reason))
		s.finish(ReasonConnectionLost)
	}
}

func (s *Session) submit() error {
	if s.state != SessionStateJoined {
		return shared.ErrNotJoined
	}
	text := s.input
	s.setInput("")
	if tools.IsBlank(text) {
		return nil
	}
	if err := s.sock.Emit(string(ClientEventTypeText), MessagePayload{Msg: text}, nil); err != nil {
		s.logger.Error("sending text failed", err)
	}
	return nil
}

func (s *Session) leave() error {
	if s.state != SessionStateJoined {
		return shared.ErrNotJoined
	}
	s.setState(SessionStateLeaving)
	err := s.sock.Emit(string(ClientEventTypeLeft), EmptyPayload{}, func([]byte) {
		s.post(s.onLeaveAck)
	})
	if err != nil {
		s.logger.Error("announcing departure failed", err)
		s.finish(ReasonConnectionLost)
		return nil
	}
	s.leaveTimer = time.AfterFunc(s.cfg.LeaveTimeout, func() {
		s.post(s.onLeaveTimeout)
	})
	return nil
}

func (s *Session) onLeaveAck() {
	if s.state != SessionStateLeaving {
		return
	}
	s.finish(ReasonLeft)
}

func (s *Session) onLeaveTimeout() {
	if s.state != SessionStateLeaving {
		return
	}
	s.logger.Warn("leave was not acknowledged, closing", zap.Duration("timeout", s.cfg.LeaveTimeout))
	s.finish(ReasonLeaveTimeout)
}

// finish closes the socket at most once and enters the terminal state.
func (s *Session) finish(reason Reason) {
	if s.state == SessionStateDisconnected {
		return
	}
	if s.leaveTimer != nil {
		s.leaveTimer.Stop()
		s.leaveTimer = nil
	}
	if s.sock != nil && !s.sockClosed {
		s.sockClosed = true
		if err := s.sock.Close(); err != nil {
			s.logger.Error("closing socket failed", err)
		}
	}
	s.mu.Lock()
	s.reason = reason
	s.mu.Unlock()
	s.setState(SessionStateDisconnected)
	close(s.done)
	s.logger.Info("session disconnected", zap.String("reason", string(reason)))
}
