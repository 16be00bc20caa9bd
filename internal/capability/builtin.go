package capability

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"parley/internal/action"
	"parley/internal/invoker"
	"parley/internal/kb"
	"parley/internal/session"
)

// AgentTransferrer hands the conversation off to another assistant.
type AgentTransferrer interface {
	Transfer(ctx context.Context, sess *session.Session, targetAssistantID string) error
}

// CallCloser retires a session and disconnects the remote participant.
type CallCloser interface {
	CloseCall(ctx context.Context, sessionID, reason string) error
}

// PhoneTransferrer transfers the remote participant to a phone number.
type PhoneTransferrer interface {
	TransferToPhone(ctx context.Context, room, number string) error
}

var nonDigits = regexp.MustCompile(`\D`)

// normalizePhone strips everything but digits and prefixes "+" (E.164-ish,
// matching what the SMS backend expects).
func normalizePhone(number string) string {
	return "+" + nonDigits.ReplaceAllString(number, "")
}

func newSendEmailTool(actionID, sessionID string, exec ActionExecutor) *Descriptor {
	return &Descriptor{
		Name: "send_email",
		Description: fmt.Sprintf(
			"Send an email to the specified recipient action_id = %s and session_id = %s",
			actionID, sessionID),
		Parameters: []Parameter{
			{Name: "to_email", Type: "string", Description: "Recipient email"},
			{Name: "subject", Type: "string", Description: "Email subject"},
			{Name: "body", Type: "string", Description: "Email body"},
			{Name: "action_id", Type: "string", Description: "Action ID"},
			{Name: "session_id", Type: "string", Description: "Session ID"},
		},
		Invoke: func(ctx context.Context, sess *session.Session, args map[string]any) (string, error) {
			return exec.Execute(ctx, sess, invoker.Request{
				ActionType: action.TypeSendEmail,
				ActionID:   argString(args, "action_id", actionID),
				SessionID:  argString(args, "session_id", sessionID),
				Fields: map[string]any{
					"to_email": argString(args, "to_email", ""),
					"subject":  argString(args, "subject", ""),
					"body":     argString(args, "body", ""),
				},
			})
		},
	}
}

func newSendSMSTool(actionID, sessionID string, exec ActionExecutor) *Descriptor {
	return &Descriptor{
		Name: "send_sms",
		Description: fmt.Sprintf(
			"Send an SMS to the specified recipient action_id = %s and session_id = %s",
			actionID, sessionID),
		Parameters: []Parameter{
			{Name: "to_number", Type: "string", Description: "Recipient phone number"},
			{Name: "message", Type: "string", Description: "SMS body"},
			{Name: "action_id", Type: "string", Description: "Action ID"},
			{Name: "session_id", Type: "string", Description: "Session ID"},
		},
		Invoke: func(ctx context.Context, sess *session.Session, args map[string]any) (string, error) {
			return exec.Execute(ctx, sess, invoker.Request{
				ActionType: action.TypeSendSMS,
				ActionID:   argString(args, "action_id", actionID),
				SessionID:  argString(args, "session_id", sessionID),
				Fields: map[string]any{
					"to_number":    normalizePhone(argString(args, "to_number", "")),
					"message_body": argString(args, "message", ""),
				},
			})
		},
	}
}

func newAppointmentTool(actionID, sessionID string, exec ActionExecutor, now func() time.Time) *Descriptor {
	if now == nil {
		now = time.Now
	}
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return &Descriptor{
		Name: "create_appointment",
		Description: fmt.Sprintf(
			`If anyone asks for a meeting/appointment use this tool. Make sure you have collected or know the email, date, time and timezone for booking using this appointment.

Note: You don't need to fetch the available slots to use this tool.
If this tool is not able to book the requested time, it returns the other available slots for booking. Today's date and time in America/New_York is %s and action_id = %s and session_id = %s`,
			now().In(loc).Format("2006-01-02 15:04:05"), actionID, sessionID),
		Parameters: []Parameter{
			{Name: "length", Type: "string", Description: "Appointment length (15m, 30m, 45m, 1hr)"},
			{Name: "nl_date_time", Type: "string", Description: `Date and time at which the appointment has to be booked. Accepts a specific date (MM-DD-YYYY) with time or relative day strings with time, e.g. "tomorrow 10:30 AM", "today 10:30 PM", "10-01-2025 10:30 AM".`},
			{Name: "timezone", Type: "string", Description: `Timezone to book the appointment in. Example: IST "Asia/Kolkata", PST "America/Los_Angeles", CST "America/Chicago", EST "America/New_York"`},
			{Name: "email", Type: "string", Description: "Email to send confirmation"},
			{Name: "title", Type: "string", Description: "Title of the appointment"},
			{Name: "description", Type: "string", Description: "Description of the appointment"},
			{Name: "action_id", Type: "string", Description: "Action ID"},
			{Name: "session_id", Type: "string", Description: "Session ID"},
		},
		Invoke: func(ctx context.Context, sess *session.Session, args map[string]any) (string, error) {
			return exec.Execute(ctx, sess, invoker.Request{
				ActionType: action.TypeAppointment,
				ActionID:   argString(args, "action_id", actionID),
				SessionID:  argString(args, "session_id", sessionID),
				Fields: map[string]any{
					"length":       argString(args, "length", ""),
					"nl_date_time": argString(args, "nl_date_time", ""),
					"timezone":     argString(args, "timezone", ""),
					"email":        argString(args, "email", ""),
					"title":        argString(args, "title", ""),
					"description":  argString(args, "description", ""),
				},
			})
		},
	}
}

func newShopifyTool(desc *action.Descriptor, sessionID string, exec ActionExecutor) *Descriptor {
	actionID := desc.ID
	switch desc.Webhook.SubType {
	case action.ShopifyOrderStatus:
		return &Descriptor{
			Name: "order_status",
			Description: fmt.Sprintf(
				"Look up the status of a customer's order action_id = %s and session_id = %s",
				actionID, sessionID),
			Parameters: []Parameter{
				{Name: "order_id", Type: "string", Description: "Order identifier"},
				{Name: "action_id", Type: "string", Description: "Action ID"},
				{Name: "session_id", Type: "string", Description: "Session ID"},
			},
			Invoke: func(ctx context.Context, sess *session.Session, args map[string]any) (string, error) {
				return exec.Execute(ctx, sess, invoker.Request{
					ActionType: action.TypeShopify,
					ActionID:   argString(args, "action_id", actionID),
					SessionID:  argString(args, "session_id", sessionID),
					Fields: map[string]any{
						"order_id":            argString(args, "order_id", ""),
						"shopify_action_type": action.ShopifyOrderStatus,
					},
				})
			},
		}
	case action.ShopifySearch:
		return &Descriptor{
			Name: "search",
			Description: fmt.Sprintf(
				"Search the store catalog for products action_id = %s and session_id = %s",
				actionID, sessionID),
			Parameters: []Parameter{
				{Name: "search_term", Type: "string", Description: "What to search the catalog for"},
				{Name: "action_id", Type: "string", Description: "Action ID"},
				{Name: "session_id", Type: "string", Description: "Session ID"},
			},
			Invoke: func(ctx context.Context, sess *session.Session, args map[string]any) (string, error) {
				return exec.Execute(ctx, sess, invoker.Request{
					ActionType: action.TypeShopify,
					ActionID:   argString(args, "action_id", actionID),
					SessionID:  argString(args, "session_id", sessionID),
					Fields: map[string]any{
						"search_term":         argString(args, "search_term", ""),
						"shopify_action_type": action.ShopifySearch,
					},
				})
			},
		}
	default:
		return nil
	}
}

func newHumanTransferTool(desc *action.Descriptor, sessionID string, phone PhoneTransferrer) *Descriptor {
	number := normalizePhone(desc.PhoneNumber)
	return &Descriptor{
		Name: "transfer_to_human_agent",
		Description: fmt.Sprintf(
			"Transfer the call to a human agent phone_number = %s and session_id = %s",
			number, sessionID),
		Parameters: []Parameter{
			{Name: "session_id", Type: "string", Description: "Session ID"},
		},
		Invoke: func(ctx context.Context, sess *session.Session, args map[string]any) (string, error) {
			if err := phone.TransferToPhone(ctx, sess.RoomID, number); err != nil {
				return "", err
			}
			return fmt.Sprintf("transferred to %s", number), nil
		},
	}
}

func newSearchKBTool(kbID, sessionID string, searcher kb.Searcher) *Descriptor {
	return &Descriptor{
		Name: "search_kb",
		Description: fmt.Sprintf(
			"Search the internal knowledge base for relevant information kb_id = %s and session_id = %s",
			kbID, sessionID),
		Parameters: []Parameter{
			{Name: "query", Type: "string", Description: "Query to search the knowledge base"},
			{Name: "kb_id", Type: "string", Description: "Knowledge base ID"},
		},
		Invoke: func(ctx context.Context, sess *session.Session, args map[string]any) (string, error) {
			matches, err := searcher.Search(ctx, argString(args, "query", ""), argString(args, "kb_id", kbID))
			if err != nil {
				return "", err
			}
			return kb.FormatMatches(matches), nil
		},
	}
}

func newAgentTransferTool(sessionID string, transferrer AgentTransferrer) *Descriptor {
	return &Descriptor{
		Name: "transfer_to_agent",
		Description: fmt.Sprintf(
			"Transfer the conversation to the specified assistant, identified by its Assistant ID, session_id = %s",
			sessionID),
		Parameters: []Parameter{
			{Name: "agent_id", Type: "string", Description: "Assistant ID to transfer to"},
			{Name: "session_id", Type: "string", Description: "Session ID"},
		},
		Invoke: func(ctx context.Context, sess *session.Session, args map[string]any) (string, error) {
			target := argString(args, "agent_id", "")
			if target == "" {
				return "", fmt.Errorf("agent_id is required")
			}
			if err := transferrer.Transfer(ctx, sess, target); err != nil {
				return "", err
			}
			return fmt.Sprintf("transferring conversation to assistant %s", target), nil
		},
	}
}

func newCloseCallTool(sessionID string, closer CallCloser) *Descriptor {
	return &Descriptor{
		Name: "close_call",
		Description: fmt.Sprintf(
			"Close the call, session_id = %s. Use only when the user wants to end the call or has gone silent for too long.",
			sessionID),
		Parameters: []Parameter{
			{Name: "session_id", Type: "string", Description: "Session ID"},
		},
		Invoke: func(ctx context.Context, sess *session.Session, args map[string]any) (string, error) {
			if err := closer.CloseCall(ctx, argString(args, "session_id", sessionID), "call_closed"); err != nil {
				return "", err
			}
			return "call closed", nil
		},
	}
}
