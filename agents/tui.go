package agents

import (
	"context"
	"errors"
	"strings"

	pkg "github.com/bt-bridge/socketio-chat"
	"github.com/bt-bridge/socketio-chat/shared"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

const (
	tuiDefaultWidth  = 80
	tuiDefaultHeight = 20
	// header, input and help rows around the viewport
	tuiChromeHeight = 4
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	stateStyles = map[pkg.SessionState]lipgloss.Style{
		pkg.SessionStateConnecting:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		pkg.SessionStateJoined:       lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		pkg.SessionStateLeaving:      lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		pkg.SessionStateDisconnected: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helpStyle  = lipgloss.NewStyle().Faint(true)
)

type sessionChangedMsg struct{}

type sessionDoneMsg struct{}

func waitForSession(s *pkg.Session) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-s.Changes():
			return sessionChangedMsg{}
		case <-s.Done():
			return sessionDoneMsg{}
		}
	}
}

// chatModel renders a session as a scrolling log above an input line.
type chatModel struct {
	logger   shared.LoggerAdapter
	session  *pkg.Session
	viewport viewport.Model
	input    textinput.Model

	state  pkg.SessionState
	reason pkg.Reason
	lines  int
	err    error
}

func newChatModel(logger shared.LoggerAdapter, session *pkg.Session) *chatModel {
	input := textinput.New()
	input.Placeholder = "Say something..."
	input.Prompt = "> "
	input.Focus()
	input.Width = tuiDefaultWidth - len(input.Prompt)

	m := &chatModel{
		logger:   logger,
		session:  session,
		viewport: viewport.New(tuiDefaultWidth, tuiDefaultHeight-tuiChromeHeight),
		input:    input,
	}
	m.refresh()
	return m
}

func (m *chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForSession(m.session))
}

func (m *chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-tuiChromeHeight, 1)
		m.input.Width = max(msg.Width-len(m.input.Prompt)-1, 1)
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.handle(m.session.Unmount())
			return m, tea.Quit
		case tea.KeyEnter:
			text := m.input.Value()
			m.input.Reset()
			m.handle(m.session.SubmitText(text))
			return m, nil
		case tea.KeyCtrlL:
			m.handle(m.session.Leave())
			return m, nil
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		m.handle(m.session.SetInput(m.input.Value()))
		return m, cmd

	case sessionChangedMsg:
		m.refresh()
		return m, waitForSession(m.session)

	case sessionDoneMsg:
		m.refresh()
		m.input.Blur()
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *chatModel) View() string {
	header := headerStyle.Render("# "+m.session.RoomID()) + "  " + m.stateLabel()
	status := helpStyle.Render("enter: send • ctrl+l: leave • esc: quit")
	if m.err != nil {
		status = errorStyle.Render(m.err.Error())
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		m.input.View(),
		status,
	)
}

func (m *chatModel) stateLabel() string {
	label := m.state.String()
	if m.state == pkg.SessionStateDisconnected && m.reason != pkg.ReasonNone {
		label += " (" + string(m.reason) + ")"
	}
	if style, ok := stateStyles[m.state]; ok {
		return style.Render(label)
	}
	return label
}

// refresh pulls the session snapshot into the view.
func (m *chatModel) refresh() {
	m.state = m.session.State()
	m.reason = m.session.Reason()
	lines := m.session.Lines()
	if len(lines) == m.lines {
		return
	}
	m.lines = len(lines)
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(strings.Join(lines, "\n"))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *chatModel) handle(err error) {
	switch {
	case err == nil:
		m.err = nil
	case errors.Is(err, shared.ErrNotJoined):
		m.err = errors.New("not in the room")
	case errors.Is(err, shared.ErrSessionClosed):
		m.err = errors.New("disconnected")
	default:
		m.logger.Error("handling key", err)
		m.err = err
	}
}

// TUIAgent hosts a chat session in a full screen terminal UI.
type TUIAgent struct {
	logger  shared.LoggerAdapter
	session *pkg.Session
	program *tea.Program
	done    chan struct{}
}

func (a *TUIAgent) Spawn(
	ctx context.Context,
	logger shared.LoggerAdapter,
	cfg *shared.Config,
	factory pkg.SocketFactory,
	opts ...tea.ProgramOption,
) (<-chan struct{}, error) {
	if logger == nil {
		return nil, shared.ErrNoLogger
	}
	if cfg == nil {
		return nil, shared.ErrNoConfig
	}
	if factory == nil {
		return nil, shared.ErrNoSocketFactory
	}
	a.logger = logger
	a.done = make(chan struct{})
	a.logger.Info("spawning TUI agent")

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

	model := newChatModel(a.logger, a.session)
	a.program = tea.NewProgram(model, append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)...)

	if err := a.session.Mount(); err != nil {
		a.logger.Error("mounting session", err)
		_ = a.session.Unmount()
		return nil, err
	}

	go func() {
		defer close(a.done)
		if _, err := a.program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			a.logger.Error("running TUI program", err)
		}
		// leaving the UI always tears the session down
		if err := a.session.Unmount(); err != nil {
			a.logger.Error("unmounting session", err)
		}
		<-a.session.Done()
	}()
	return a.done, nil
}

// Done is closed once the UI has exited and the session is disconnected.
func (a *TUIAgent) Done() <-chan struct{} {
	return a.done
}

func (a *TUIAgent) Session() *pkg.Session {
	return a.session
}

func (a *TUIAgent) Close() error {
	if a.session == nil {
		return nil
	}
	err := a.session.Unmount()
	a.program.Quit()
	return err
}
