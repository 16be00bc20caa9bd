package orchestrator

import (
	"time"

	"parley/internal/config"
)

const (
	defaultIdleTimeout        = 10 * time.Second
	defaultMaxReminderRepeats = 2
	defaultReminderMessage    = "Are you still there?"
	defaultFinalMessage       = "It seems you are away. I will end the call now. Goodbye."
	defaultMaxSessionDuration = 10 * time.Minute
)

// ReminderPolicy drives idle escalation and the hard session duration cap.
// Loaded once from session configuration; immutable afterwards.
type ReminderPolicy struct {
	IdleTimeout        time.Duration
	MaxReminderRepeats int
	ReminderMessages   []string
	FinalMessage       string
	MaxSessionDuration time.Duration
}

// PolicyFromSettings converts the stored reminder settings, filling defaults
// for anything the document omits.
func PolicyFromSettings(s config.ReminderSettings) ReminderPolicy {
	policy := ReminderPolicy{
		IdleTimeout:        defaultIdleTimeout,
		MaxReminderRepeats: defaultMaxReminderRepeats,
		ReminderMessages:   []string{defaultReminderMessage},
		FinalMessage:       defaultFinalMessage,
		MaxSessionDuration: defaultMaxSessionDuration,
	}
	if s.AllowedIdleTimeSeconds > 0 {
		policy.IdleTimeout = time.Duration(s.AllowedIdleTimeSeconds) * time.Second
	}
	if s.NumCheckHumanPresentTimes > 0 {
		policy.MaxReminderRepeats = s.NumCheckHumanPresentTimes
	}
	if len(s.ReminderMessages) > 0 {
		policy.ReminderMessages = s.ReminderMessages
	}
	if s.MessageBeforeTermination != "" {
		policy.FinalMessage = s.MessageBeforeTermination
	}
	if s.MaxCallDuration > 0 {
		policy.MaxSessionDuration = time.Duration(s.MaxCallDuration) * time.Second
	}
	return policy
}

// ReminderMessage returns the message for the k-th reminder. The list rarely
// has more than one entry; escalation past the end repeats the last message.
func (p ReminderPolicy) ReminderMessage(k int) string {
	if len(p.ReminderMessages) == 0 {
		return defaultReminderMessage
	}
	if k >= len(p.ReminderMessages) {
		return p.ReminderMessages[len(p.ReminderMessages)-1]
	}
	return p.ReminderMessages[k]
}
