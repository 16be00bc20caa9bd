// Package session holds the per-call session model, its transcript, and the
// process-wide registry of live sessions.
package session

import (
	"time"

	"parley/internal/action"
	"parley/internal/config"
)

// Session is the immutable identity and configuration of one live call. The
// transcript is the only mutable part and is safe for concurrent use.
type Session struct {
	ID            string
	RoomID        string
	AssistantID   string
	AuthKey       string
	Actions       []action.Descriptor
	KBID          string
	SupportAgents []config.SupportAgent
	StartedAt     time.Time

	Transcript *Transcript
}

// New builds a session from its loaded configuration.
func New(id, assistantID string, cfg *config.SessionConfig, ac config.AssistantConfig) *Session {
	return &Session{
		ID:            id,
		RoomID:        id,
		AssistantID:   assistantID,
		AuthKey:       cfg.AuthKey,
		Actions:       ac.Actions,
		KBID:          ac.KBID,
		SupportAgents: cfg.SupportAgents,
		StartedAt:     time.Now(),
		Transcript:    NewTranscript(),
	}
}
