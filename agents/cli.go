package agents

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	pkg "github.com/bt-bridge/socketio-chat"
	"github.com/bt-bridge/socketio-chat/shared"
	"github.com/goccy/go-yaml"
	"go.uber.org/zap"
)

// CommandLeave typed on its own line leaves the room gracefully.
const CommandLeave = "/leave"

type CLIState struct {
	printed   int
	lastState pkg.SessionState
}

func NewCLIState() *CLIState {
	return &CLIState{lastState: pkg.SessionStateIdle}
}

// CLIAgent drives one chat session from a line-oriented reader and echoes
// the room log through a printer.
type CLIAgent struct {
	logger  shared.LoggerAdapter
	printer *shared.Printer
	session *pkg.Session
	state   *CLIState
	done    chan struct{}

	mu sync.Mutex
}

func (a *CLIAgent) Spawn(
	ctx context.Context,
	logger shared.LoggerAdapter,
	cfg *shared.Config,
	printer *shared.Printer,
	factory pkg.SocketFactory,
	input io.Reader,
) (<-chan struct{}, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if cfg == nil {
		return nil, shared.ErrNoConfig
	}
	if printer == nil {
		return nil, errors.New("no printer provided")
	}
	if factory == nil {
		return nil, shared.ErrNoSocketFactory
	}
	if input == nil {
		return nil, errors.New("no input provided")
	}
	a.logger = logger
	a.printer = printer
	a.state = NewCLIState()
	a.done = make(chan struct{})
	a.logger.Info("spawning CLI agent")
	if err := a.printer.Writeln("🤖 Spawning CLI agent...\n", 0); err != nil {
		a.logger.Error("printing spawning message", err)
	}

	// Printing the effective config
	if err := a.printer.Writeln("📋 Chat Config\n", 0); err != nil {
		a.logger.Error("printing chat config message", err)
	}
	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		a.logger.Error("marshaling chat config to yaml", err)
		return nil, err
	}
	if err := a.printer.Write(string(yamlBytes), 1); err != nil {
		a.logger.Error("printing chat config", err)
		return nil, err
	}

	// Creating session
	sessionCfg, err := pkg.NewSessionConfig(cfg)
	if err != nil {
		a.logger.Error("creating session config", err)
		return nil, err
	}
	a.session, err = pkg.NewSession(ctx, a.logger, sessionCfg, factory)
	if err != nil {
		a.logger.Error("creating session", err)
		return nil, err
	}
	a.logger.Info("session created successfully", zap.String("session_id", a.session.ID()))

	go a.render()

	if err := a.printer.Writeln("\n\n🔌 Connecting to room "+cfg.Room+"...", 0); err != nil {
		a.logger.Error("printing connecting message", err)
	}
	if err := a.session.Mount(); err != nil {
		a.logger.Error("mounting session", err)
		_ = a.session.Unmount()
		return nil, err
	}

	go a.readInput(input)
	return a.done, nil
}

// Done is closed once the session has disconnected and its final state
// has been printed.
func (a *CLIAgent) Done() <-chan struct{} {
	return a.done
}

// Session exposes the underlying chat session.
func (a *CLIAgent) Session() *pkg.Session {
	return a.session
}

// Close drops the connection without the leave handshake.
func (a *CLIAgent) Close() error {
	if a.session == nil {
		return nil
	}
	return a.session.Unmount()
}

func (a *CLIAgent) render() {
	for {
		select {
		case <-a.session.Changes():
			a.flush()
		case <-a.session.Done():
			a.flush()
			close(a.done)
			return
		}
	}
}

// flush prints log lines and state transitions not printed yet.
func (a *CLIAgent) flush() {
	a.mu.Lock()
	defer a.mu.Unlock()

	lines := a.session.Lines()
	if len(lines) > a.state.printed {
		if err := a.printer.WriteLines(lines[a.state.printed:], 1); err != nil {
			a.logger.Error("printing log lines", err)
		}
		a.state.printed = len(lines)
	}

	state := a.session.State()
	if state == a.state.lastState {
		return
	}
	a.state.lastState = state
	var msg string
	switch state {
	case pkg.SessionStateJoined:
		msg = "✅ Joined room " + a.session.RoomID() + ". Type " + CommandLeave + " to leave.\n"
	case pkg.SessionStateLeaving:
		msg = "👋 Leaving room..."
	case pkg.SessionStateDisconnected:
		reason := a.session.Reason()
		if reason.IsFailure() {
			msg = "❌ Disconnected: " + string(reason)
		} else {
			msg = "🔒 Disconnected: " + string(reason)
		}
	default:
		return
	}
	if err := a.printer.Writeln(msg, 0); err != nil {
		a.logger.Error("printing state message", err)
	}
}

func (a *CLIAgent) readInput(input io.Reader) {
	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		line := scanner.Text()
		var err error
		if strings.TrimSpace(line) == CommandLeave {
			err = a.session.Leave()
		} else {
			err = a.session.SubmitText(line)
		}
		switch {
		case err == nil:
		case errors.Is(err, shared.ErrSessionClosed):
			return
		case errors.Is(err, shared.ErrNotJoined):
			if err := a.printer.Writeln("⏳ Not in the room yet, message dropped.", 0); err != nil {
				a.logger.Error("printing not joined message", err)
			}
		default:
			a.logger.Error("handling input line", err)
		}
	}
	if err := scanner.Err(); err != nil {
		a.logger.Error("reading input", err)
	}
	// end of input counts as leaving
	a.logger.Info("input closed, leaving room")
	if err := a.session.Leave(); err != nil {
		if err := a.session.Unmount(); err != nil {
			a.logger.Error("unmounting session", err)
		}
	}
}
