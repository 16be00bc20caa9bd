package invoker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/action"
	parleyerrors "parley/internal/errors"
	"parley/internal/logging"
	"parley/internal/session"
)

func testSession(actions ...action.Descriptor) *session.Session {
	return &session.Session{
		ID:          "room-1",
		AssistantID: "11",
		AuthKey:     "auth-123",
		Actions:     actions,
		Transcript:  session.NewTranscript(),
	}
}

func TestExecuteEmailForwardsToBackend(t *testing.T) {
	var gotPath, gotAuth string
	var gotQuery map[string][]string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"status":"sent"}`))
	}))
	defer server.Close()

	inv := New(server.URL, logging.Nop())
	result, err := inv.Execute(context.Background(), testSession(), Request{
		ActionType: action.TypeSendEmail,
		ActionID:   "act-1",
		SessionID:  "room-1",
		Fields: map[string]any{
			"to_email": "jo@example.com",
			"subject":  "Order update",
			"body":     "Shipped.",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "/send-grid/send-email", gotPath)
	assert.Equal(t, "auth-123", gotAuth)
	assert.Equal(t, []string{"11"}, gotQuery["assistant_id"])
	assert.Equal(t, []string{"act-1"}, gotQuery["action_id"])
	assert.Equal(t, "jo@example.com", gotBody["to_email"])
	assert.Equal(t, "SEND_EMAIL", gotBody["action_type"])
	assert.Equal(t, "11", gotBody["assistant_id"])
	assert.JSONEq(t, `{"status":"sent"}`, result)
}

func TestExecuteWebhookGetAppendsQueryParams(t *testing.T) {
	var gotURL string
	var gotLen int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.String()
		gotLen = r.ContentLength
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	sess := testSession(action.Descriptor{
		ID:   "hook-1",
		Type: action.TypeWebhook,
		Webhook: &action.WebhookSpec{
			URL:         server.URL + "/lookup",
			Method:      "GET",
			QueryParams: "x=1",
		},
	})

	inv := New(server.URL, logging.Nop())
	result, err := inv.Execute(context.Background(), sess, Request{
		ActionType: action.TypeWebhook,
		ActionID:   "hook-1",
		SessionID:  "room-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "/lookup?x=1", gotURL)
	assert.LessOrEqual(t, gotLen, int64(0))
	assert.Equal(t, "ok", result)
}

func TestExecuteWebhookPostSendsAugmentedBody(t *testing.T) {
	var gotBody map[string]any
	var gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Api-Token")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"accepted":true}`))
	}))
	defer server.Close()

	sess := testSession(action.Descriptor{
		ID:   "hook-2",
		Type: action.TypeWebhook,
		Webhook: &action.WebhookSpec{
			URL:     server.URL + "/ingest",
			Method:  "POST",
			Headers: map[string]string{"X-Api-Token": "tok"},
			Body:    json.RawMessage(`{"type":"dynamic","values":{"note":{"description":"note"}}}`),
		},
	})

	inv := New(server.URL, logging.Nop())
	_, err := inv.Execute(context.Background(), sess, Request{
		ActionType: action.TypeWebhook,
		ActionID:   "hook-2",
		SessionID:  "room-1",
		Payload:    map[string]any{"note": "call me back"},
	})
	require.NoError(t, err)

	assert.Equal(t, "tok", gotHeader)
	assert.Equal(t, "WEBHOOK", gotBody["action_type"])
	assert.Equal(t, "hook-2", gotBody["action_id"])
	assert.Equal(t, "room-1", gotBody["session_id"])
	assert.Equal(t, map[string]any{"note": "call me back"}, gotBody["payload"])
}

func TestExecuteWebhookUnknownActionID(t *testing.T) {
	inv := New("http://backend.invalid", logging.Nop())
	_, err := inv.Execute(context.Background(), testSession(), Request{
		ActionType: action.TypeWebhook,
		ActionID:   "missing",
		SessionID:  "room-1",
	})
	require.Error(t, err)
	assert.True(t, parleyerrors.IsActionNotFound(err))
}

func TestExecuteBackendErrorIsExecutionFailure(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "smtp down", http.StatusInternalServerError)
	}))
	defer server.Close()

	inv := New(server.URL, logging.Nop())
	_, err := inv.Execute(context.Background(), testSession(), Request{
		ActionType: action.TypeSendEmail,
		ActionID:   "act-1",
		SessionID:  "room-1",
	})
	require.Error(t, err)
	assert.True(t, parleyerrors.IsExecutionFailure(err))
	assert.Contains(t, err.Error(), "smtp down")
	// Exactly one network attempt, never retried.
	assert.Equal(t, 1, attempts)
}
