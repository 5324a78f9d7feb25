package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLogEntryString(t *testing.T) {
	ts := time.Date(2024, 5, 4, 13, 7, 9, 0, time.Local)
	tests := []struct {
		name     string
		entry    LogEntry
		expected string
	}{
		{
			name:     "Status is wrapped",
			entry:    LogEntry{Timestamp: ts, Kind: EntryKindStatus, Text: "Alice has entered the room."},
			expected: "[13:07:09] <Alice has entered the room.>",
		},
		{
			name:     "Chat is not wrapped",
			entry:    LogEntry{Timestamp: ts, Kind: EntryKindChat, Text: "alice: hello"},
			expected: "[13:07:09] alice: hello",
		},
		{
			name:     "Empty chat text",
			entry:    LogEntry{Timestamp: ts, Kind: EntryKindChat},
			expected: "[13:07:09] ",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.entry.String())
		})
	}
}

func TestEntryKindString(t *testing.T) {
	assert.Equal(t, "status", EntryKindStatus.String())
	assert.Equal(t, "chat", EntryKindChat.String())
	assert.Equal(t, "EntryKind(9)", EntryKind(9).String())
}
