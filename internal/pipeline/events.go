// Package pipeline is the boundary to the external audio pipeline host. The
// worker reacts to the high-level events the host pushes and drives the call
// through the host's control surface; audio itself never crosses here.
package pipeline

// EventType enumerates the notifications the audio pipeline pushes.
type EventType string

const (
	EventUserStartedSpeaking      EventType = "user_started_speaking"
	EventUserStoppedSpeaking      EventType = "user_stopped_speaking"
	EventUserSpeechCommitted      EventType = "user_speech_committed"
	EventAgentStartedSpeaking     EventType = "agent_started_speaking"
	EventAgentStoppedSpeaking     EventType = "agent_stopped_speaking"
	EventAgentSpeechCommitted     EventType = "agent_speech_committed"
	EventParticipantDisconnected  EventType = "participant_disconnected"
	EventMetricsCollected         EventType = "metrics_collected"
)

// Event is one pipeline notification for a room.
type Event struct {
	Type    EventType   `json:"type"`
	Room    string      `json:"room"`
	Content string      `json:"content,omitempty"`
	Usage   *UsageDelta `json:"usage,omitempty"`
}

// UsageDelta carries incremental usage counters on metrics events.
type UsageDelta struct {
	LLMPromptTokens     int     `json:"llm_prompt_tokens,omitempty"`
	LLMCompletionTokens int     `json:"llm_completion_tokens,omitempty"`
	TTSCharacters       int     `json:"tts_characters_count,omitempty"`
	STTAudioSeconds     float64 `json:"stt_audio_duration,omitempty"`
}
