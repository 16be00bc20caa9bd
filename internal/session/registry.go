package session

import (
	"context"
	"sync"

	parleyerrors "parley/internal/errors"
)

// Handle is the live controller owning one session. Close must be idempotent:
// the idle escalation, the max-duration timer, the close_call tool, and a
// handoff may all race to retire the same session.
type Handle interface {
	Session() *Session
	Close(ctx context.Context, reason string) error
}

// Registry is the process-wide table of live sessions. Inserts and removes
// for different sessions never block each other beyond the map lock; within
// one session, Insert happens-before any tool invocation that looks it up.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Handle
}

// NewRegistry returns an empty session table.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]Handle)}
}

// Insert registers a live session handle.
func (r *Registry) Insert(handle Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[handle.Session().ID] = handle
}

// Get returns the handle for a session id.
func (r *Registry) Get(sessionID string) (Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handle, ok := r.sessions[sessionID]
	if !ok {
		return nil, &parleyerrors.SessionNotFoundError{SessionID: sessionID}
	}
	return handle, nil
}

// Remove evicts a session id. Removing an absent id is a no-op.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

// RemoveHandle evicts handle only while it still owns its session id. An
// outgoing controller must use this during shutdown: on handoff the
// replacement controller reuses the same room id and may already be
// registered before the old controller finishes closing, and the old
// controller must not evict it.
func (r *Registry) RemoveHandle(handle Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := handle.Session().ID
	if r.sessions[id] == handle {
		delete(r.sessions, id)
	}
}

// IDs lists the live session ids.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
