package capability

import (
	"context"
	"fmt"

	"parley/internal/action"
	"parley/internal/invoker"
	"parley/internal/session"
)

// ExternalAPICallerName is the fixed tool name for compiled webhook actions.
// A session configuring more than one generic webhook keeps only the first
// compilation under this name (see Toolset.Register).
const ExternalAPICallerName = "EXTERNAL_API_CALLER"

// ActionExecutor performs the outbound call for an invoked tool.
type ActionExecutor interface {
	Execute(ctx context.Context, sess *session.Session, req invoker.Request) (string, error)
}

// CompileWebhook synthesizes a tool from a webhook action's dynamic field
// specification: two fixed parameters (action_id, session_id) followed by one
// string parameter per dynamic field, and an invoke closure that bundles the
// dynamic values into a payload for the executor. A spec without dynamic
// values compiles to the two fixed parameters only.
func CompileWebhook(spec *action.WebhookSpec, sessionID, actionID string, exec ActionExecutor) *Descriptor {
	fieldNames := spec.DynamicFieldNames()
	fields, _ := spec.DynamicFields()

	params := make([]Parameter, 0, len(fieldNames)+2)
	params = append(params,
		Parameter{Name: "action_id", Type: "string", Description: "Action ID"},
		Parameter{Name: "session_id", Type: "string", Description: "Session ID"},
	)
	for _, name := range fieldNames {
		params = append(params, Parameter{
			Name:        name,
			Type:        "string",
			Description: fields[name].Description,
		})
	}

	return &Descriptor{
		Name: ExternalAPICallerName,
		Description: fmt.Sprintf(
			"Call the configured external API with the collected values. action_id = %s and session_id = %s",
			actionID, sessionID),
		Parameters: params,
		Invoke: func(ctx context.Context, sess *session.Session, args map[string]any) (string, error) {
			var payload map[string]any
			if len(fieldNames) > 0 {
				payload = make(map[string]any, len(fieldNames))
				for _, name := range fieldNames {
					if v, ok := args[name]; ok {
						payload[name] = v
					}
				}
			}
			return exec.Execute(ctx, sess, invoker.Request{
				ActionType: action.TypeWebhook,
				ActionID:   argString(args, "action_id", actionID),
				SessionID:  argString(args, "session_id", sessionID),
				Payload:    payload,
			})
		},
	}
}
