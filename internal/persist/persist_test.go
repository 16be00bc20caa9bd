package persist

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/logging"
	"parley/internal/pipeline"
	"parley/internal/session"
)

func TestUsageCollectorAccumulates(t *testing.T) {
	c := NewUsageCollector()
	c.Add(&pipeline.UsageDelta{LLMPromptTokens: 100, LLMCompletionTokens: 20, TTSCharacters: 80, STTAudioSeconds: 1.5})
	c.Add(&pipeline.UsageDelta{LLMPromptTokens: 50, STTAudioSeconds: 0.5})
	c.Add(nil)

	sum := c.Summary()
	assert.Equal(t, 150, sum.LLMPromptTokens)
	assert.Equal(t, 20, sum.LLMCompletionTokens)
	assert.Equal(t, 80, sum.TTSCharacters)
	assert.InDelta(t, 2.0, sum.STTAudioSeconds, 1e-9)
}

func TestUsageCollectorConcurrent(t *testing.T) {
	c := NewUsageCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Add(&pipeline.UsageDelta{LLMPromptTokens: 1})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, c.Summary().LLMPromptTokens)
}

func TestSaverPostsTranscript(t *testing.T) {
	var got saveRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/save/conversations", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sess := &session.Session{ID: "room-3", AuthKey: "secret-key", Transcript: session.NewTranscript()}
	sess.Transcript.Append(session.RoleAgent, "Hi there.")
	sess.Transcript.Append(session.RoleUser, "Hello.")

	saver := NewSaver(srv.URL, logging.Nop())
	err := saver.Save(context.Background(), sess, UsageSummary{LLMPromptTokens: 42})
	require.NoError(t, err)

	assert.Equal(t, "secret-key", auth)
	assert.Equal(t, "room-3", got.SessionID)
	assert.Equal(t, 42, got.UsageSummary.LLMPromptTokens)
	require.Len(t, got.Conversations, 2)
	assert.Equal(t, session.RoleUser, got.Conversations[1].Role)
}

func TestSaverEmptyTranscriptSendsEmptyList(t *testing.T) {
	var raw map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
	}))
	defer srv.Close()

	sess := &session.Session{ID: "room-3", Transcript: session.NewTranscript()}
	require.NoError(t, NewSaver(srv.URL, logging.Nop()).Save(context.Background(), sess, UsageSummary{}))
	assert.JSONEq(t, "[]", string(raw["conversations"]))
}

func TestSaverErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	sess := &session.Session{ID: "room-3", Transcript: session.NewTranscript()}
	err := NewSaver(srv.URL, logging.Nop()).Save(context.Background(), sess, UsageSummary{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}
