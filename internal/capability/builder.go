package capability

import (
	"time"

	"parley/internal/action"
	parleyerrors "parley/internal/errors"
	"parley/internal/kb"
	"parley/internal/logging"
	"parley/internal/session"
)

// Builder assembles a session's toolset from its action descriptors plus the
// registry-wide built-ins.
type Builder struct {
	exec     ActionExecutor
	searcher kb.Searcher
	transfer AgentTransferrer
	closer   CallCloser
	phone    PhoneTransferrer
	logger   logging.Logger
	now      func() time.Time
}

// BuilderDeps wires the collaborators tools delegate to.
type BuilderDeps struct {
	Executor    ActionExecutor
	Searcher    kb.Searcher
	Transferrer AgentTransferrer
	Closer      CallCloser
	Phone       PhoneTransferrer
	Logger      logging.Logger

	// Now overrides the clock in tool descriptions, used by tests.
	Now func() time.Time
}

// NewBuilder constructs a toolset builder.
func NewBuilder(deps BuilderDeps) *Builder {
	return &Builder{
		exec:     deps.Executor,
		searcher: deps.Searcher,
		transfer: deps.Transferrer,
		closer:   deps.Closer,
		phone:    deps.Phone,
		logger:   logging.OrNop(deps.Logger),
		now:      deps.Now,
	}
}

// Build walks the session's action descriptors in configured order and maps
// each to its tool, then adds search_kb (when a knowledge base is set),
// transfer_to_agent (when support agents exist) and close_call. Malformed
// descriptors are skipped with a diagnostic; Build never fails.
func (b *Builder) Build(sess *session.Session) *Toolset {
	toolset := NewToolset()

	for i := range sess.Actions {
		desc := &sess.Actions[i]
		if err := desc.Validate(); err != nil {
			cfgErr := &parleyerrors.ConfigurationError{Item: desc.ID, Err: err}
			b.logger.Warn("session %s: skipping action: %v", sess.ID, cfgErr)
			continue
		}
		tool := b.toolFor(desc, sess.ID)
		if tool == nil {
			continue
		}
		b.register(toolset, tool, sess.ID)
	}

	if sess.KBID != "" {
		b.register(toolset, newSearchKBTool(sess.KBID, sess.ID, b.searcher), sess.ID)
	}
	if len(sess.SupportAgents) > 0 {
		b.register(toolset, newAgentTransferTool(sess.ID, b.transfer), sess.ID)
	}
	b.register(toolset, newCloseCallTool(sess.ID, b.closer), sess.ID)

	return toolset
}

func (b *Builder) toolFor(desc *action.Descriptor, sessionID string) *Descriptor {
	switch desc.Type {
	case action.TypeSendEmail:
		return newSendEmailTool(desc.ID, sessionID, b.exec)
	case action.TypeSendSMS:
		return newSendSMSTool(desc.ID, sessionID, b.exec)
	case action.TypeAppointment:
		return newAppointmentTool(desc.ID, sessionID, b.exec, b.now)
	case action.TypeCallTransfer:
		return newHumanTransferTool(desc, sessionID, b.phone)
	case action.TypeShopify:
		return newShopifyTool(desc, sessionID, b.exec)
	case action.TypeWebhook:
		return CompileWebhook(desc.Webhook, sessionID, desc.ID, b.exec)
	default:
		return nil
	}
}

// register applies the first-registration-wins collision policy: a duplicate
// name is logged and dropped rather than silently replacing the earlier tool.
func (b *Builder) register(toolset *Toolset, tool *Descriptor, sessionID string) {
	if err := toolset.Register(tool); err != nil {
		b.logger.Warn("session %s: %v (keeping earlier registration)", sessionID, err)
	}
}
