// Package persist saves a finished session's transcript and usage summary to
// the backend. It runs once per session at shutdown; a failed save is logged
// and dropped rather than retried, the call is already over.
package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"parley/internal/httpclient"
	"parley/internal/logging"
	"parley/internal/pipeline"
	"parley/internal/session"
)

// UsageSummary aggregates pipeline usage counters over a session's lifetime.
type UsageSummary struct {
	LLMPromptTokens     int     `json:"llm_prompt_tokens"`
	LLMCompletionTokens int     `json:"llm_completion_tokens"`
	TTSCharacters       int     `json:"tts_characters_count"`
	STTAudioSeconds     float64 `json:"stt_audio_duration"`
}

// UsageCollector accumulates usage deltas from metrics events. Safe for
// concurrent use; the event feed and the shutdown path touch it from
// different goroutines.
type UsageCollector struct {
	mu      sync.Mutex
	summary UsageSummary
}

// NewUsageCollector returns a zeroed collector.
func NewUsageCollector() *UsageCollector {
	return &UsageCollector{}
}

// Add folds one usage delta into the running summary.
func (c *UsageCollector) Add(delta *pipeline.UsageDelta) {
	if delta == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summary.LLMPromptTokens += delta.LLMPromptTokens
	c.summary.LLMCompletionTokens += delta.LLMCompletionTokens
	c.summary.TTSCharacters += delta.TTSCharacters
	c.summary.STTAudioSeconds += delta.STTAudioSeconds
}

// Summary returns the accumulated totals.
func (c *UsageCollector) Summary() UsageSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary
}

type saveRequest struct {
	Conversations []session.Entry `json:"conversations"`
	SessionID     string          `json:"session_id"`
	UsageSummary  UsageSummary    `json:"usage_summary"`
}

// Saver writes finished sessions to the backend.
type Saver struct {
	baseURL string
	http    *http.Client
	logger  logging.Logger
}

// NewSaver builds a saver for the backend at baseURL.
func NewSaver(baseURL string, logger logging.Logger) *Saver {
	logger = logging.OrNop(logger)
	return &Saver{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpclient.New(15*time.Second, logger),
		logger:  logger,
	}
}

// Save posts the transcript and usage summary for one finished session.
func (s *Saver) Save(ctx context.Context, sess *session.Session, usage UsageSummary) error {
	entries := sess.Transcript.Snapshot()
	payload, err := json.Marshal(saveRequest{
		Conversations: entries,
		SessionID:     sess.ID,
		UsageSummary:  usage,
	})
	if err != nil {
		return fmt.Errorf("encoding conversation save: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/save/conversations", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building conversation save request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sess.AuthKey != "" {
		req.Header.Set("Authorization", sess.AuthKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("saving conversation for session %s: %w", sess.ID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := httpclient.ReadBody(resp.Body, httpclient.MaxErrorBodyBytes)
		return fmt.Errorf("saving conversation for session %s: status %d: %s", sess.ID, resp.StatusCode, body)
	}

	s.logger.Info("session %s: saved %d transcript entries", sess.ID, len(entries))
	return nil
}
