// Package orchestrator runs the per-session activity state machine: idle
// detection, reminder escalation, and the hard session duration cap.
// Speaking flags and the activity clock are atomics written straight from
// the event feed; the escalation bookkeeping lives on a single consumer
// goroutine and needs no locks.
package orchestrator

import (
	"context"
	"sync/atomic"
	"time"

	"parley/internal/logging"
	"parley/internal/pipeline"
	"parley/internal/session"
)

const (
	defaultPollInterval = 5 * time.Second
	eventBufferSize     = 64
)

// Termination reasons passed to the TerminateFunc.
const (
	ReasonIdleTimeout = "idle_timeout"
	ReasonMaxDuration = "max_call_duration"
)

// Speaker voices an utterance in the session's room.
type Speaker interface {
	Say(ctx context.Context, room, text string, allowInterruptions bool) error
}

// TerminateFunc retires the session. It must be idempotent: the idle
// escalation and the max-duration timer race, and the loser still calls it.
type TerminateFunc func(ctx context.Context, reason string)

// Config wires an orchestrator to its session.
type Config struct {
	Session   *session.Session
	Policy    ReminderPolicy
	Speaker   Speaker
	Terminate TerminateFunc
	Logger    logging.Logger
	Metrics   *Metrics

	// PollInterval overrides the idle check cadence, used by tests.
	PollInterval time.Duration
}

// activityState tracks speaking flags and idle bookkeeping. The atomic
// fields are written by the event feed goroutine and read by the run loop;
// reminderCount is owned by the run loop alone.
type activityState struct {
	lastActivityAt atomic.Int64 // unix nanos
	userSpeaking   atomic.Bool
	agentSpeaking  atomic.Bool
	reminderCount  int
}

func (s *activityState) touch() {
	s.lastActivityAt.Store(time.Now().UnixNano())
}

func (s *activityState) idleFor() time.Duration {
	return time.Since(time.Unix(0, s.lastActivityAt.Load()))
}

// Orchestrator is the concurrent controller for one session's lifecycle.
type Orchestrator struct {
	sess      *session.Session
	policy    ReminderPolicy
	speaker   Speaker
	terminate TerminateFunc
	logger    logging.Logger
	metrics   *Metrics

	pollInterval time.Duration
	events       chan pipeline.Event

	state    activityState
	terminal bool
}

// New builds an orchestrator. Run must be called to start it.
func New(cfg Config) *Orchestrator {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = DefaultMetrics()
	}
	return &Orchestrator{
		sess:         cfg.Session,
		policy:       cfg.Policy,
		speaker:      cfg.Speaker,
		terminate:    cfg.Terminate,
		logger:       logging.OrNop(cfg.Logger),
		metrics:      metrics,
		pollInterval: poll,
		events:       make(chan pipeline.Event, eventBufferSize),
	}
}

// HandleEvent feeds a pipeline notification into the state machine. It never
// blocks. Speaking flags and the activity clock are applied right here, on
// the feed goroutine: a reminder in flight holds the run loop for the length
// of the utterance, and a stop event lost to a full buffer would otherwise
// pin a speaking flag and mute every later reminder. Only events the run
// loop still needs go through the channel, and those may be dropped with a
// warning when the buffer is full.
func (o *Orchestrator) HandleEvent(ev pipeline.Event) {
	switch ev.Type {
	case pipeline.EventUserStartedSpeaking:
		o.state.userSpeaking.Store(true)
		return
	case pipeline.EventUserStoppedSpeaking:
		o.state.userSpeaking.Store(false)
		o.state.touch()
		return
	case pipeline.EventAgentStartedSpeaking:
		o.state.agentSpeaking.Store(true)
		return
	case pipeline.EventAgentStoppedSpeaking:
		o.state.agentSpeaking.Store(false)
		o.state.touch()
		return
	case pipeline.EventAgentSpeechCommitted:
		o.state.touch()
		return
	case pipeline.EventUserSpeechCommitted:
		o.state.touch()
		// Also rides the channel so the run loop restarts the escalation.
	}
	select {
	case o.events <- ev:
	default:
		o.logger.Warn("session %s: dropping event %s, orchestrator busy", o.sess.ID, ev.Type)
	}
}

// Run consumes events, polls for idleness, and arms the max-duration timer.
// It returns when the session reaches a terminal state or ctx is cancelled
// (handoff and external close cancel ctx, suppressing termination here).
func (o *Orchestrator) Run(ctx context.Context) {
	o.state.touch()

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()
	maxTimer := time.NewTimer(o.policy.MaxSessionDuration)
	defer maxTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-o.events:
			o.handleEvent(ev)
		case <-ticker.C:
			if o.checkIdle(ctx) {
				return
			}
		case <-maxTimer.C:
			o.logger.Info("session %s: max call duration reached", o.sess.ID)
			o.finish(ctx, ReasonMaxDuration)
			return
		}
	}
}

func (o *Orchestrator) handleEvent(ev pipeline.Event) {
	switch ev.Type {
	case pipeline.EventUserSpeechCommitted:
		// The user actually said something, so escalation starts over.
		o.state.reminderCount = 0
	case pipeline.EventParticipantDisconnected:
		o.logger.Info("session %s: participant disconnected", o.sess.ID)
	case pipeline.EventMetricsCollected:
		// Consumed by the usage collector upstream.
	default:
		o.logger.Debug("session %s: ignoring event %s", o.sess.ID, ev.Type)
	}
}

// checkIdle runs one poll tick. Returns true when the session terminated.
func (o *Orchestrator) checkIdle(ctx context.Context) bool {
	if o.terminal {
		return true
	}
	if o.state.userSpeaking.Load() || o.state.agentSpeaking.Load() {
		return false
	}
	idle := o.state.idleFor()
	if idle < o.policy.IdleTimeout {
		return false
	}

	if o.state.reminderCount < o.policy.MaxReminderRepeats {
		message := o.policy.ReminderMessage(o.state.reminderCount)
		o.logger.Info("session %s: idle %s, reminder %d/%d",
			o.sess.ID, idle.Round(time.Millisecond), o.state.reminderCount+1, o.policy.MaxReminderRepeats)
		if err := o.speaker.Say(ctx, o.sess.RoomID, message, true); err != nil {
			o.logger.Error("session %s: reminder speech failed: %v", o.sess.ID, err)
		}
		o.metrics.IncReminder()
		o.state.reminderCount++
		o.state.touch()
		return false
	}

	o.logger.Info("session %s: idle after %d reminders, terminating", o.sess.ID, o.state.reminderCount)
	o.finish(ctx, ReasonIdleTimeout)
	return true
}

// finish speaks the final message and invokes termination. The final message
// is uninterruptible; a speech failure is logged and termination proceeds.
func (o *Orchestrator) finish(ctx context.Context, reason string) {
	if o.terminal {
		return
	}
	o.terminal = true
	if o.policy.FinalMessage != "" {
		if err := o.speaker.Say(ctx, o.sess.RoomID, o.policy.FinalMessage, false); err != nil {
			o.logger.Error("session %s: final message failed: %v", o.sess.ID, err)
		}
	}
	o.terminate(ctx, reason)
}
