package handoff

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/config"
	"parley/internal/orchestrator"
	"parley/internal/pipeline"
	"parley/internal/session"
)

type fakeDispatcher struct {
	requests []pipeline.DispatchRequest
	err      error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, req pipeline.DispatchRequest) error {
	d.requests = append(d.requests, req)
	return d.err
}

func testSession() *session.Session {
	sess := &session.Session{
		ID:         "room-7",
		RoomID:     "room-7",
		Transcript: session.NewTranscript(),
		SupportAgents: []config.SupportAgent{
			{AssistantID: "billing-bot", Trigger: "billing"},
		},
	}
	sess.Transcript.Append(session.RoleAgent, "Hello, how can I help?")
	sess.Transcript.Append(session.RoleUser, "I have a billing question.")
	return sess
}

func TestTransferDispatchesThenShutsDown(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	var shutdownReasons []string
	coord := NewCoordinator(Config{
		Dispatcher: dispatcher,
		AgentName:  "voice_widget",
		Shutdown: func(_ context.Context, reason string) {
			// The dispatch must already be on the wire by the time we retire.
			require.Len(t, dispatcher.requests, 1)
			shutdownReasons = append(shutdownReasons, reason)
		},
		Metrics: orchestrator.MustNewMetrics(prometheus.NewRegistry()),
	})

	sess := testSession()
	err := coord.Transfer(context.Background(), sess, "billing-bot")
	require.NoError(t, err)
	assert.Equal(t, []string{ReasonAgentTransferred}, shutdownReasons)

	require.Len(t, dispatcher.requests, 1)
	req := dispatcher.requests[0]
	assert.Equal(t, "voice_widget", req.AgentName)
	assert.Equal(t, "room-7", req.Room)

	meta, err := ParseMetadata(req.Metadata)
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.True(t, meta.ChangeAssistant)
	assert.Equal(t, "billing-bot", meta.AssistantID)
	assert.Equal(t, "room-7", meta.SessionID)

	entries, err := meta.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, session.RoleUser, entries[1].Role)
	assert.Equal(t, "I have a billing question.", entries[1].Content)
}

func TestTransferDispatchFailureKeepsSessionRunning(t *testing.T) {
	dispatcher := &fakeDispatcher{err: fmt.Errorf("host unavailable")}
	shutdowns := 0
	coord := NewCoordinator(Config{
		Dispatcher: dispatcher,
		AgentName:  "voice_widget",
		Shutdown:   func(context.Context, string) { shutdowns++ },
	})

	err := coord.Transfer(context.Background(), testSession(), "billing-bot")
	require.Error(t, err)
	assert.Zero(t, shutdowns)
}

func TestTransferRejectsUnknownTarget(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	coord := NewCoordinator(Config{
		Dispatcher: dispatcher,
		AgentName:  "voice_widget",
		Shutdown:   func(context.Context, string) { t.Fatal("must not shut down") },
	})

	err := coord.Transfer(context.Background(), testSession(), "sales-bot")
	require.Error(t, err)
	assert.Empty(t, dispatcher.requests)
}

func TestParseMetadataPassThrough(t *testing.T) {
	meta, err := ParseMetadata("")
	require.NoError(t, err)
	assert.Nil(t, meta)

	// Metadata that is not a handoff envelope is ignored.
	raw, _ := json.Marshal(map[string]any{"assistant_id": "x"})
	meta, err = ParseMetadata(string(raw))
	require.NoError(t, err)
	assert.Nil(t, meta)

	_, err = ParseMetadata("{not json")
	require.Error(t, err)
}
