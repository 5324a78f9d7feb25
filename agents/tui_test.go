package agents

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	pkg "github.com/bt-bridge/socketio-chat"
	"github.com/bt-bridge/socketio-chat/shared"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJoinedModel(t *testing.T) (*chatModel, *roomSocket) {
	t.Helper()
	sock := newRoomSocket()
	cfg, err := pkg.NewSessionConfig(testConfig())
	require.NoError(t, err)
	session, err := pkg.NewSession(context.Background(), shared.NewNopLogger(), cfg, sock.factory())
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Unmount() })

	require.NoError(t, session.Mount())
	sock.fire("connect", "")
	require.Eventually(t, func() bool {
		return session.State() == pkg.SessionStateJoined
	}, time.Second, 5*time.Millisecond)

	m := newChatModel(shared.NewNopLogger(), session)
	m.Update(tea.WindowSizeMsg{Width: 60, Height: 12})
	m.Update(sessionChangedMsg{})
	return m, sock
}

func typeText(m *chatModel, text string) {
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

func TestChatModelTypingAndSubmit(t *testing.T) {
	m, sock := newJoinedModel(t)
	assert.Contains(t, m.View(), "# lobby")
	assert.Contains(t, m.View(), "joined")

	typeText(m, "hi all")
	assert.Equal(t, "hi all", m.session.Input())

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Empty(t, m.input.Value())
	assert.Empty(t, m.session.Input())
	events, texts := sock.emitted()
	assert.Equal(t, []string{"joined", "text"}, events)
	assert.Equal(t, []string{"hi all"}, texts)

	// blank input never reaches the wire
	typeText(m, "   ")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	events, _ = sock.emitted()
	assert.Len(t, events, 2)
}

func TestChatModelShowsLog(t *testing.T) {
	m, sock := newJoinedModel(t)

	sock.fire("status", "bob has entered the room.")
	sock.fire("message", "bob: hey")
	require.Eventually(t, func() bool {
		return len(m.session.Lines()) == 2
	}, time.Second, 5*time.Millisecond)

	m.Update(sessionChangedMsg{})
	view := m.View()
	assert.Contains(t, view, "<bob has entered the room.>")
	assert.Contains(t, view, "bob: hey")
}

func TestChatModelLeave(t *testing.T) {
	m, sock := newJoinedModel(t)

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	assert.Equal(t, pkg.SessionStateLeaving, m.session.State())
	sock.ackAll()
	select {
	case <-m.session.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not disconnect")
	}

	_, cmd := m.Update(sessionDoneMsg{})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Contains(t, m.View(), "disconnected (left)")

	// keys still in flight after the end are reported, not fatal
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Contains(t, m.View(), "disconnected")
}

func TestChatModelSubmitBeforeJoin(t *testing.T) {
	sock := newRoomSocket()
	cfg, err := pkg.NewSessionConfig(testConfig())
	require.NoError(t, err)
	session, err := pkg.NewSession(context.Background(), shared.NewNopLogger(), cfg, sock.factory())
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Unmount() })
	require.NoError(t, session.Mount())

	m := newChatModel(shared.NewNopLogger(), session)
	typeText(m, "early")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Contains(t, m.View(), "not in the room")
	events, _ := sock.emitted()
	assert.Empty(t, events)
}

func TestChatModelQuit(t *testing.T) {
	m, sock := newJoinedModel(t)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Equal(t, pkg.SessionStateDisconnected, m.session.State())
	assert.Equal(t, pkg.ReasonUnmounted, m.session.Reason())
	events, _ := sock.emitted()
	assert.NotContains(t, events, "left")
}

func TestTUIAgentClose(t *testing.T) {
	sock := newRoomSocket()
	agent := new(TUIAgent)
	done, err := agent.Spawn(
		context.Background(),
		shared.NewNopLogger(),
		testConfig(),
		sock.factory(),
		tea.WithInput(strings.NewReader("")),
		tea.WithOutput(io.Discard),
		tea.WithoutRenderer(),
	)
	require.NoError(t, err)
	assert.Equal(t, pkg.SessionStateConnecting, agent.Session().State())

	require.NoError(t, agent.Close())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not finish")
	}
	assert.Equal(t, pkg.ReasonUnmounted, agent.Session().Reason())
}
