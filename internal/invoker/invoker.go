// Package invoker executes invoked tools against the external
// action-execution backend. One network attempt per invocation; failures are
// returned to the calling tool, never retried here.
package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"parley/internal/action"
	parleyerrors "parley/internal/errors"
	"parley/internal/httpclient"
	"parley/internal/logging"
	"parley/internal/session"
)

// Backend endpoint per action type. Each is parameterized by assistant_id and
// action_id query parameters plus the session auth key.
var endpointByType = map[action.Type]string{
	action.TypeSendEmail:   "/send-grid/send-email",
	action.TypeSendSMS:     "/external/send/sms",
	action.TypeAppointment: "/integration/calendar_natural_language/block",
	action.TypeShopify:     "/shopify/handle",
}

// Request describes one tool invocation to execute.
type Request struct {
	ActionType action.Type
	ActionID   string
	SessionID  string

	// Fields carries the type-specific arguments forwarded verbatim for
	// non-webhook actions (to_email, subject, order_id, ...).
	Fields map[string]any

	// Payload carries the dynamic field values of a generic webhook call.
	Payload map[string]any
}

// Invoker resolves and performs the outbound call for an invocation.
type Invoker struct {
	backendURL string
	client     *http.Client
	logger     logging.Logger
}

// New builds an invoker for the configured action backend.
func New(backendURL string, logger logging.Logger) *Invoker {
	logger = logging.OrNop(logger)
	return &Invoker{
		backendURL: strings.TrimRight(backendURL, "/"),
		client:     httpclient.NewWithCircuitBreaker(30*time.Second, logger, "action-backend"),
		logger:     logger,
	}
}

// Execute performs the invocation and returns the backend's response body.
func (i *Invoker) Execute(ctx context.Context, sess *session.Session, req Request) (string, error) {
	if req.ActionType == action.TypeWebhook {
		return i.executeWebhook(ctx, sess, req)
	}
	return i.executeBackend(ctx, sess, req)
}

func (i *Invoker) executeBackend(ctx context.Context, sess *session.Session, req Request) (string, error) {
	endpoint, ok := endpointByType[req.ActionType]
	if !ok {
		return "", &parleyerrors.ExecutionFailure{
			ActionType: string(req.ActionType),
			Err:        fmt.Errorf("no backend endpoint for action type"),
		}
	}

	target := fmt.Sprintf("%s%s?assistant_id=%s&action_id=%s",
		i.backendURL, endpoint,
		url.QueryEscape(sess.AssistantID), url.QueryEscape(req.ActionID))

	body := make(map[string]any, len(req.Fields)+4)
	for k, v := range req.Fields {
		body[k] = v
	}
	body["action_type"] = string(req.ActionType)
	body["action_id"] = req.ActionID
	body["session_id"] = req.SessionID
	body["assistant_id"] = sess.AssistantID

	headers := map[string]string{
		"Authorization": sess.AuthKey,
		"Content-Type":  "application/json",
	}
	return i.send(ctx, req.ActionType, http.MethodPost, target, headers, body)
}

func (i *Invoker) executeWebhook(ctx context.Context, sess *session.Session, req Request) (string, error) {
	desc := action.FindByID(sess.Actions, req.ActionID)
	if desc == nil || desc.Webhook == nil {
		return "", &parleyerrors.ActionNotFoundError{ActionID: req.ActionID, SessionID: sess.ID}
	}
	spec := desc.Webhook

	method := strings.ToUpper(spec.Method)
	switch method {
	case http.MethodGet:
		target := spec.URL
		if spec.QueryParams != "" {
			sep := "?"
			if strings.Contains(target, "?") {
				sep = "&"
			}
			target += sep + spec.QueryParams
		}
		return i.send(ctx, req.ActionType, http.MethodGet, target, spec.Headers, nil)
	case http.MethodPost:
		body := spec.StaticBody()
		if body == nil {
			body = make(map[string]any)
		}
		if req.Payload != nil {
			body["action_type"] = string(action.TypeWebhook)
			body["action_id"] = req.ActionID
			body["session_id"] = req.SessionID
			body["payload"] = req.Payload
		}
		return i.send(ctx, req.ActionType, http.MethodPost, spec.URL, spec.Headers, body)
	default:
		return "", &parleyerrors.ExecutionFailure{
			ActionType: string(action.TypeWebhook),
			Err:        fmt.Errorf("unsupported webhook method %q", spec.Method),
		}
	}
}

func (i *Invoker) send(ctx context.Context, actionType action.Type, method, target string, headers map[string]string, body map[string]any) (string, error) {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return "", &parleyerrors.ExecutionFailure{ActionType: string(actionType), Err: err}
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return "", &parleyerrors.ExecutionFailure{ActionType: string(actionType), Err: err}
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := i.client.Do(req)
	if err != nil {
		i.logger.Warn("action %s call failed: %v", actionType, err)
		return "", &parleyerrors.ExecutionFailure{ActionType: string(actionType), Err: err}
	}
	defer resp.Body.Close()

	data, err := httpclient.ReadBody(resp.Body, httpclient.MaxBodyBytes)
	if err != nil {
		return "", &parleyerrors.ExecutionFailure{ActionType: string(actionType), Err: err}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", &parleyerrors.ExecutionFailure{
			ActionType: string(actionType),
			Err:        &parleyerrors.HTTPStatusError{StatusCode: resp.StatusCode, Body: string(data)},
		}
	}
	return string(data), nil
}
