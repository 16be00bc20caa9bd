// Package config loads per-session configuration documents and process
// settings. Session documents live in a key/value store keyed by room id and
// are immutable for the lifetime of a session.
package config

import (
	"encoding/json"
	"fmt"

	"parley/internal/action"
)

// SessionConfig is the JSON document stored per room/session id.
type SessionConfig struct {
	AgentsConfig   map[string]AssistantConfig `json:"agents_config"`
	SupportAgents  []SupportAgent             `json:"support_agents,omitempty"`
	AssistantID    string                     `json:"assistant_id,omitempty"`
	AuthKey        string                     `json:"auth_key,omitempty"`
	APIKey         string                     `json:"api_key,omitempty"`
	InitialMessage string                     `json:"initial_message,omitempty"`
}

// AssistantConfig configures a single assistant identity within a session.
type AssistantConfig struct {
	SystemPrompt string              `json:"system_prompt"`
	Actions      []action.Descriptor `json:"actions,omitempty"`
	KBID         string              `json:"kb_id,omitempty"`
	Synthesizer  map[string]any      `json:"synthesizer,omitempty"`
	Transcriber  map[string]any      `json:"transcriber,omitempty"`
	Agent        AgentConfig         `json:"agent"`
}

// AgentConfig selects the model and carries assistant-level settings.
type AgentConfig struct {
	Model              string             `json:"model,omitempty"`
	APIKey             string             `json:"api_key,omitempty"`
	AdditionalSettings AdditionalSettings `json:"additional_settings"`
}

// AdditionalSettings holds assistant behaviour knobs.
type AdditionalSettings struct {
	InitialMessage string           `json:"initial_message,omitempty"`
	Reminder       ReminderSettings `json:"reminder"`
}

// ReminderSettings drives idle escalation and the session duration cap.
type ReminderSettings struct {
	ReminderMessages          []string `json:"reminder_messages,omitempty"`
	MessageBeforeTermination  string   `json:"message_before_termination,omitempty"`
	MaxCallDuration           int      `json:"max_call_duration,omitempty"`
	AllowedIdleTimeSeconds    int      `json:"allowed_idle_time_seconds,omitempty"`
	NumCheckHumanPresentTimes int      `json:"num_check_human_present_times,omitempty"`
}

// SupportAgent describes an assistant the conversation can be handed off to.
type SupportAgent struct {
	AssistantID  string `json:"assistant_id"`
	Trigger      string `json:"trigger"`
	TransferText string `json:"transfer_text"`
}

// Assistant returns the config block for an assistant id.
func (c *SessionConfig) Assistant(assistantID string) (AssistantConfig, error) {
	if c == nil || len(c.AgentsConfig) == 0 {
		return AssistantConfig{}, fmt.Errorf("no agents_config present")
	}
	ac, ok := c.AgentsConfig[assistantID]
	if !ok {
		return AssistantConfig{}, fmt.Errorf("assistant %s not in agents_config", assistantID)
	}
	return ac, nil
}

// ParseSessionConfig decodes a stored session document.
func ParseSessionConfig(raw []byte) (*SessionConfig, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty session config document")
	}
	var cfg SessionConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing session config: %w", err)
	}
	return &cfg, nil
}
