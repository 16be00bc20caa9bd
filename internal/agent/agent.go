// Package agent owns the per-call session controller: it loads the session's
// configuration, assembles the toolset, runs the orchestrator and the pipeline
// event feed, and tears everything down exactly once however the call ends.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"parley/internal/capability"
	"parley/internal/config"
	"parley/internal/handoff"
	"parley/internal/invoker"
	"parley/internal/kb"
	"parley/internal/logging"
	"parley/internal/orchestrator"
	"parley/internal/persist"
	"parley/internal/pipeline"
	"parley/internal/session"
)

const shutdownTimeout = 10 * time.Second

// ReasonParticipantLeft marks a shutdown caused by the caller hanging up.
const ReasonParticipantLeft = "participant_disconnected"

// PipelineHost is the slice of the pipeline client a controller drives.
type PipelineHost interface {
	Say(ctx context.Context, room, text string, allowInterruptions bool) error
	Dispatch(ctx context.Context, req pipeline.DispatchRequest) error
	DeleteRoom(ctx context.Context, room string) error
	TransferToPhone(ctx context.Context, room, number string) error
	Listen(ctx context.Context, room string, handler func(pipeline.Event)) error
}

// WorkerDeps wires the process-wide collaborators a worker hands to each
// session controller.
type WorkerDeps struct {
	Store    config.Store
	Pipeline PipelineHost
	Registry *session.Registry
	Invoker  *invoker.Invoker
	Searcher kb.Searcher
	Saver    *persist.Saver
	Metrics  *orchestrator.Metrics
	Logger   logging.Logger

	// AgentName is this worker pool's name on the pipeline host, used when
	// dispatching handoff sessions back into the same room.
	AgentName string
}

// Worker accepts dispatched rooms and runs one controller per session.
type Worker struct {
	store    config.Store
	pipeline PipelineHost
	registry *session.Registry
	invoker  *invoker.Invoker
	searcher kb.Searcher
	saver    *persist.Saver
	metrics  *orchestrator.Metrics
	logger   logging.Logger
	agent    string
}

// NewWorker builds a worker.
func NewWorker(deps WorkerDeps) *Worker {
	return &Worker{
		store:    deps.Store,
		pipeline: deps.Pipeline,
		registry: deps.Registry,
		invoker:  deps.Invoker,
		searcher: deps.Searcher,
		saver:    deps.Saver,
		metrics:  deps.Metrics,
		logger:   logging.OrNop(deps.Logger),
		agent:    deps.AgentName,
	}
}

// Launch starts a session for a dispatched room and runs its controller in
// the background. It returns once the session is registered.
func (w *Worker) Launch(ctx context.Context, roomID, metadata string) error {
	c, err := w.StartSession(ctx, roomID, metadata)
	if err != nil {
		return err
	}
	go func() {
		if err := c.Run(context.Background()); err != nil {
			w.logger.Error("session %s: run failed: %v", c.sess.ID, err)
			_ = c.Close(context.Background(), "run_failed")
		}
	}()
	return nil
}

// CloseCall retires a live session by id. It backs the close_call tool.
func (w *Worker) CloseCall(ctx context.Context, sessionID, reason string) error {
	handle, err := w.registry.Get(sessionID)
	if err != nil {
		return err
	}
	return handle.Close(ctx, reason)
}

// StartSession builds the controller for a dispatched room. Metadata is the
// opaque dispatch payload; a handoff envelope inside it turns this into a
// continuation of an earlier conversation.
func (w *Worker) StartSession(ctx context.Context, roomID, metadata string) (*Controller, error) {
	meta, err := handoff.ParseMetadata(metadata)
	if err != nil {
		w.logger.Warn("room %s: ignoring malformed dispatch metadata: %v", roomID, err)
		meta = nil
	}

	cfg, err := w.store.SessionConfig(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("loading config for room %s: %w", roomID, err)
	}

	assistantID := cfg.AssistantID
	if meta != nil {
		assistantID = meta.AssistantID
	}
	ac, err := cfg.Assistant(assistantID)
	if err != nil {
		return nil, fmt.Errorf("room %s: %w", roomID, err)
	}

	sess := session.New(roomID, assistantID, cfg, ac)

	c := &Controller{
		worker:  w,
		sess:    sess,
		usage:   persist.NewUsageCollector(),
		logger:  w.logger,
		metrics: w.metrics,
	}

	prompt := buildSystemPrompt(ac.SystemPrompt, cfg.SupportAgents)
	if meta != nil {
		entries, err := meta.Entries()
		if err != nil {
			w.logger.Warn("session %s: dropping carried transcript: %v", sess.ID, err)
		}
		seedTranscript(sess, entries)
		prompt = continuationInstruction + "\n\n" + prompt
	} else {
		c.initialMessage = initialMessage(cfg, ac)
	}
	c.prompt = prompt

	coordinator := handoff.NewCoordinator(handoff.Config{
		Dispatcher: w.pipeline,
		AgentName:  w.agent,
		Shutdown: func(ctx context.Context, reason string) {
			if err := c.Close(ctx, reason); err != nil {
				w.logger.Error("session %s: handoff shutdown: %v", sess.ID, err)
			}
		},
		Logger:  w.logger,
		Metrics: w.metrics,
	})

	builder := capability.NewBuilder(capability.BuilderDeps{
		Executor:    w.invoker,
		Searcher:    w.searcher,
		Transferrer: coordinator,
		Closer:      w,
		Phone:       w.pipeline,
		Logger:      w.logger,
	})
	c.toolset = builder.Build(sess)

	c.orch = orchestrator.New(orchestrator.Config{
		Session:   sess,
		Policy:    orchestrator.PolicyFromSettings(ac.Agent.AdditionalSettings.Reminder),
		Speaker:   w.pipeline,
		Terminate: func(ctx context.Context, reason string) { _ = c.Close(ctx, reason) },
		Logger:    w.logger,
		Metrics:   w.metrics,
	})

	w.registry.Insert(c)
	w.metrics.IncActiveSessions()
	w.logger.Info("session %s: started assistant %s (%d tools, handoff=%t)",
		sess.ID, assistantID, c.toolset.Len(), meta != nil)
	return c, nil
}

func initialMessage(cfg *config.SessionConfig, ac config.AssistantConfig) string {
	if msg := ac.Agent.AdditionalSettings.InitialMessage; msg != "" {
		return msg
	}
	return cfg.InitialMessage
}

// Controller runs one session end to end and implements session.Handle.
type Controller struct {
	worker  *Worker
	sess    *session.Session
	toolset *capability.Toolset
	orch    *orchestrator.Orchestrator
	usage   *persist.UsageCollector
	logger  logging.Logger
	metrics *orchestrator.Metrics

	prompt         string
	initialMessage string

	mu     sync.Mutex
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// Session implements session.Handle.
func (c *Controller) Session() *session.Session { return c.sess }

// SystemPrompt is the composed prompt for the language model, including
// transfer instructions and, on handoffs, the continuation instruction.
func (c *Controller) SystemPrompt() string { return c.prompt }

// Toolset exposes the session's capability table.
func (c *Controller) Toolset() *capability.Toolset { return c.toolset }

// InvokeTool runs a named tool with the model-supplied arguments.
func (c *Controller) InvokeTool(ctx context.Context, name string, args map[string]any) (string, error) {
	result, err := c.toolset.Invoke(ctx, c.sess, name, args)
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.metrics.IncToolInvocation(name, status)
	return result, err
}

// Run drives the session until it ends: the orchestrator loop and the
// pipeline event feed run concurrently, and the initial greeting is spoken
// once both are up. Run returns nil on a clean shutdown.
func (c *Controller) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		c.orch.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return c.worker.pipeline.Listen(gctx, c.sess.RoomID, c.onEvent)
	})

	if c.initialMessage != "" {
		if err := c.worker.pipeline.Say(runCtx, c.sess.RoomID, c.initialMessage, true); err != nil {
			c.logger.Error("session %s: initial message failed: %v", c.sess.ID, err)
		} else {
			c.sess.Transcript.Append(session.RoleAgent, c.initialMessage)
		}
	}

	err := g.Wait()
	if runCtx.Err() != nil {
		return nil
	}
	return err
}

// onEvent fans one pipeline event into the transcript, the usage collector
// and the orchestrator. It runs on the event feed goroutine.
func (c *Controller) onEvent(ev pipeline.Event) {
	switch ev.Type {
	case pipeline.EventUserSpeechCommitted:
		if ev.Content != "" {
			c.sess.Transcript.Append(session.RoleUser, ev.Content)
		}
	case pipeline.EventAgentSpeechCommitted:
		if ev.Content != "" {
			c.sess.Transcript.Append(session.RoleAgent, ev.Content)
		}
	case pipeline.EventMetricsCollected:
		c.usage.Add(ev.Usage)
	case pipeline.EventParticipantDisconnected:
		if err := c.Close(context.Background(), ReasonParticipantLeft); err != nil {
			c.logger.Error("session %s: close after disconnect: %v", c.sess.ID, err)
		}
		return
	}
	c.orch.HandleEvent(ev)
}

// Close retires the session: it stops the loops, evicts the session from the
// registry, persists the transcript and, unless the session was handed off,
// removes the room. Close is idempotent; concurrent callers observe the first
// result.
func (c *Controller) Close(ctx context.Context, reason string) error {
	c.closeOnce.Do(func() {
		c.closeErr = c.doClose(reason)
	})
	return c.closeErr
}

func (c *Controller) doClose(reason string) error {
	c.logger.Info("session %s: closing (%s)", c.sess.ID, reason)

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	// RemoveHandle, not Remove: on handoff the replacement session for the
	// same room can be registered before this shutdown finishes, and the
	// blocking save below must not end with us evicting the live handle.
	c.worker.registry.RemoveHandle(c)
	c.metrics.DecActiveSessions()
	c.metrics.IncTermination(reason)

	// The run context is already cancelled; shutdown work gets its own
	// deadline so a slow backend cannot wedge the worker.
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var saveErr error
	if c.worker.saver != nil {
		if err := c.worker.saver.Save(ctx, c.sess, c.usage.Summary()); err != nil {
			c.logger.Error("session %s: transcript save failed: %v", c.sess.ID, err)
			saveErr = err
		}
	}

	if reason != handoff.ReasonAgentTransferred {
		if err := c.worker.pipeline.DeleteRoom(ctx, c.sess.RoomID); err != nil {
			c.logger.Error("session %s: room delete failed: %v", c.sess.ID, err)
		}
	}
	return saveErr
}
