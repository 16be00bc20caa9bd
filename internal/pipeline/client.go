package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	parleyerrors "parley/internal/errors"
	"parley/internal/httpclient"
	"parley/internal/logging"
)

// DispatchRequest asks the host to start a new agent session in a room.
// Metadata is opaque to the host and handed to the new session verbatim.
type DispatchRequest struct {
	AgentName string `json:"agent_name"`
	Room      string `json:"room"`
	Metadata  string `json:"metadata"`
}

// Client drives the audio pipeline host: speaking, dispatching new agent
// sessions, transferring and removing participants, and the event feed.
type Client struct {
	baseURL string
	http    *http.Client
	logger  logging.Logger
}

// NewClient builds a pipeline host client.
func NewClient(baseURL string, logger logging.Logger) *Client {
	logger = logging.OrNop(logger)
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpclient.New(30*time.Second, logger),
		logger:  logger,
	}
}

// WithTimeout overrides the control-surface request timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	if d > 0 {
		c.http.Timeout = d
	}
	return c
}

type sayRequest struct {
	Text               string `json:"text"`
	AllowInterruptions bool   `json:"allow_interruptions"`
}

// Say asks the host to synthesize and speak text in a room. Uninterruptible
// utterances (final messages) block barge-in on the host side.
func (c *Client) Say(ctx context.Context, room, text string, allowInterruptions bool) error {
	path := fmt.Sprintf("/sessions/%s/say", url.PathEscape(room))
	if err := c.post(ctx, path, sayRequest{Text: text, AllowInterruptions: allowInterruptions}); err != nil {
		return &parleyerrors.SpeechFailure{SessionID: room, Err: err}
	}
	return nil
}

// Dispatch starts a new agent session in the room.
func (c *Client) Dispatch(ctx context.Context, req DispatchRequest) error {
	return c.post(ctx, "/dispatch", req)
}

// DeleteRoom removes the room and its remote participant, ending the call.
func (c *Client) DeleteRoom(ctx context.Context, room string) error {
	path := fmt.Sprintf("/rooms/%s", url.PathEscape(room))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building delete request: %w", err)
	}
	return c.do(req)
}

type transferRequest struct {
	TransferTo   string `json:"transfer_to"`
	PlayDialtone bool   `json:"play_dialtone"`
}

// TransferToPhone asks the host to transfer the remote participant to a
// phone number (SIP REFER on the host side).
func (c *Client) TransferToPhone(ctx context.Context, room, number string) error {
	path := fmt.Sprintf("/sessions/%s/transfer", url.PathEscape(room))
	return c.post(ctx, path, transferRequest{TransferTo: "tel:" + number})
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := httpclient.ReadBody(resp.Body, httpclient.MaxErrorBodyBytes)
		return &parleyerrors.HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}

// Listen subscribes to the room's event feed over WebSocket and invokes
// handler for each event until ctx is cancelled or the feed closes.
func (c *Client) Listen(ctx context.Context, room string, handler func(Event)) error {
	wsURL, err := c.eventsURL(room)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connecting event feed for room %s: %w", room, err)
	}
	defer conn.Close()

	// Unblock ReadJSON when the session ends.
	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	for {
		var event Event
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("event feed for room %s: %w", room, err)
		}
		if event.Room == "" {
			event.Room = room
		}
		handler(event)
	}
}

func (c *Client) eventsURL(room string) (string, error) {
	parsed, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing pipeline url: %w", err)
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/events"
	query := parsed.Query()
	query.Set("room", room)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
