package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	parleyerrors "parley/internal/errors"
)

func TestTranscriptAppendAndSnapshot(t *testing.T) {
	tr := NewTranscript()
	tr.Append(RoleUser, "hi")
	tr.Append(RoleAgent, "hello")

	snap := tr.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, Entry{Role: RoleUser, Content: "hi"}, snap[0])
	assert.Equal(t, Entry{Role: RoleAgent, Content: "hello"}, snap[1])

	// Snapshot is a copy, later appends do not leak into it.
	tr.Append(RoleUser, "bye")
	assert.Len(t, snap, 2)
	assert.Equal(t, 3, tr.Len())
}

func TestTranscriptConcurrentAppends(t *testing.T) {
	tr := NewTranscript()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Append(RoleUser, "x")
			tr.Snapshot()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, tr.Len())
}

type fakeHandle struct {
	sess   *Session
	closed int
}

func (f *fakeHandle) Session() *Session { return f.sess }
func (f *fakeHandle) Close(context.Context, string) error {
	f.closed++
	return nil
}

func TestRegistryLifecycle(t *testing.T) {
	reg := NewRegistry()
	handle := &fakeHandle{sess: &Session{ID: "room-1", Transcript: NewTranscript()}}

	_, err := reg.Get("room-1")
	assert.True(t, parleyerrors.IsSessionNotFound(err))

	reg.Insert(handle)
	got, err := reg.Get("room-1")
	require.NoError(t, err)
	assert.Same(t, handle, got)
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, []string{"room-1"}, reg.IDs())

	reg.Remove("room-1")
	assert.Equal(t, 0, reg.Len())

	// Removing twice is a no-op.
	reg.Remove("room-1")
}

func TestRegistryRemoveHandleOnlyEvictsOwner(t *testing.T) {
	reg := NewRegistry()
	old := &fakeHandle{sess: &Session{ID: "room-1", Transcript: NewTranscript()}}
	replacement := &fakeHandle{sess: &Session{ID: "room-1", Transcript: NewTranscript()}}

	reg.Insert(old)
	reg.Insert(replacement)

	// The old handle lost the id to the replacement; removing it must not
	// evict the replacement.
	reg.RemoveHandle(old)
	got, err := reg.Get("room-1")
	require.NoError(t, err)
	assert.Same(t, replacement, got)

	reg.RemoveHandle(replacement)
	assert.Equal(t, 0, reg.Len())

	// Removing an unregistered handle is a no-op.
	reg.RemoveHandle(old)
}
