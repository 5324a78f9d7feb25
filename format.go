package chat

import (
	"fmt"
	"time"

	"github.com/bt-bridge/socketio-chat/tools"
)

type EntryKind int

const (
	EntryKindStatus EntryKind = iota
	EntryKindChat
)

func (k EntryKind) String() string {
	switch k {
	case EntryKindStatus:
		return "status"
	case EntryKindChat:
		return "chat"
	}
	return fmt.Sprintf("EntryKind(%d)", int(k))
}

// LogEntry is one displayed line, stamped when the session received it.
type LogEntry struct {
	Timestamp time.Time
	Kind      EntryKind
	Text      string
}

// String renders "[15:04:05] <text>" for status notices and
// "[15:04:05] text" for chat lines, in local time.
func (e LogEntry) String() string {
	if e.Kind == EntryKindStatus {
		return "[" + tools.ClockString(e.Timestamp) + "] <" + e.Text + ">"
	}
	return "[" + tools.ClockString(e.Timestamp) + "] " + e.Text
}
