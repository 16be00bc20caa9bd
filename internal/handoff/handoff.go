// Package handoff moves a live conversation to another assistant: it
// dispatches a fresh agent session into the same room with the transcript
// attached, then retires the current session. The dispatch must be accepted
// before the current session shuts down so the caller never ends up with no
// agent in the room.
package handoff

import (
	"context"
	"encoding/json"
	"fmt"

	"parley/internal/logging"
	"parley/internal/orchestrator"
	"parley/internal/pipeline"
	"parley/internal/session"
)

// ReasonAgentTransferred marks a shutdown caused by a successful handoff.
const ReasonAgentTransferred = "agent_transferred"

// Metadata rides along with the dispatch request and seeds the replacement
// session. ConversationLog is the transcript JSON-encoded as a string so the
// envelope stays flat for the pipeline host.
type Metadata struct {
	ChangeAssistant bool   `json:"change_assistant"`
	AssistantID     string `json:"assistant_id"`
	SessionID       string `json:"session_id"`
	ConversationLog string `json:"conversation_log"`
}

// ParseMetadata decodes dispatch metadata. It returns nil with no error when
// raw is empty or not a handoff envelope, so fresh sessions pass through.
func ParseMetadata(raw string) (*Metadata, error) {
	if raw == "" {
		return nil, nil
	}
	var meta Metadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, fmt.Errorf("decoding dispatch metadata: %w", err)
	}
	if !meta.ChangeAssistant {
		return nil, nil
	}
	return &meta, nil
}

// Entries decodes the carried transcript.
func (m *Metadata) Entries() ([]session.Entry, error) {
	if m.ConversationLog == "" {
		return nil, nil
	}
	var entries []session.Entry
	if err := json.Unmarshal([]byte(m.ConversationLog), &entries); err != nil {
		return nil, fmt.Errorf("decoding conversation log: %w", err)
	}
	return entries, nil
}

// Dispatcher starts a new agent session in a room.
type Dispatcher interface {
	Dispatch(ctx context.Context, req pipeline.DispatchRequest) error
}

// Config wires a per-session coordinator.
type Config struct {
	Dispatcher Dispatcher
	// AgentName is the worker pool the pipeline host dispatches to.
	AgentName string
	// Shutdown retires the current session once the replacement is accepted.
	Shutdown func(ctx context.Context, reason string)
	Logger   logging.Logger
	Metrics  *orchestrator.Metrics
}

// Coordinator performs assistant-to-assistant handoffs for one session.
type Coordinator struct {
	dispatcher Dispatcher
	agentName  string
	shutdown   func(ctx context.Context, reason string)
	logger     logging.Logger
	metrics    *orchestrator.Metrics
}

// NewCoordinator builds a coordinator.
func NewCoordinator(cfg Config) *Coordinator {
	return &Coordinator{
		dispatcher: cfg.Dispatcher,
		agentName:  cfg.AgentName,
		shutdown:   cfg.Shutdown,
		logger:     logging.OrNop(cfg.Logger),
		metrics:    cfg.Metrics,
	}
}

// Transfer hands the conversation off to targetAssistantID. The replacement
// session is dispatched with the transcript snapshot; only after the host
// accepts the dispatch does the current session shut down. On dispatch
// failure the current session keeps running.
func (c *Coordinator) Transfer(ctx context.Context, sess *session.Session, targetAssistantID string) error {
	if !supportsTarget(sess, targetAssistantID) {
		return fmt.Errorf("assistant %q is not a transfer target for session %s", targetAssistantID, sess.ID)
	}

	log, err := json.Marshal(sess.Transcript.Snapshot())
	if err != nil {
		return fmt.Errorf("encoding conversation log: %w", err)
	}
	meta, err := json.Marshal(Metadata{
		ChangeAssistant: true,
		AssistantID:     targetAssistantID,
		SessionID:       sess.ID,
		ConversationLog: string(log),
	})
	if err != nil {
		return fmt.Errorf("encoding dispatch metadata: %w", err)
	}

	c.logger.Info("session %s: handing off to assistant %s", sess.ID, targetAssistantID)
	err = c.dispatcher.Dispatch(ctx, pipeline.DispatchRequest{
		AgentName: c.agentName,
		Room:      sess.RoomID,
		Metadata:  string(meta),
	})
	if err != nil {
		return fmt.Errorf("dispatching assistant %s for session %s: %w", targetAssistantID, sess.ID, err)
	}

	if c.metrics != nil {
		c.metrics.IncHandoff()
	}
	c.shutdown(ctx, ReasonAgentTransferred)
	return nil
}

func supportsTarget(sess *session.Session, assistantID string) bool {
	for _, agent := range sess.SupportAgents {
		if agent.AssistantID == assistantID {
			return true
		}
	}
	return false
}
