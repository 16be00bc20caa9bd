package session

import "sync"

// Role identifies the speaker of a transcript entry.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Entry is one utterance in conversational order.
type Entry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Transcript is an append-only utterance log. Appends and snapshots are
// linearized so a handoff never observes a partially-appended entry.
type Transcript struct {
	mu      sync.Mutex
	entries []Entry
}

// NewTranscript returns an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{}
}

// Append records an utterance.
func (t *Transcript) Append(role Role, content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, Entry{Role: role, Content: content})
}

// Snapshot returns a copy of the entries in insertion order.
func (t *Transcript) Snapshot() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
