// Package action holds the declarative configuration model for callable
// integrations. Descriptors are loaded once per session and never mutated.
package action

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Type identifies the kind of integration an action descriptor configures.
type Type string

const (
	TypeSendEmail    Type = "SEND_EMAIL"
	TypeSendSMS      Type = "SEND_SMS"
	TypeCallTransfer Type = "CALL_TRANSFER"
	TypeAppointment  Type = "APPOINTMENT"
	TypeShopify      Type = "SHOPIFY"
	TypeWebhook      Type = "WEBHOOK"
)

// Shopify webhook sub-types selecting which tool a SHOPIFY action produces.
const (
	ShopifyOrderStatus = "order_status"
	ShopifySearch      = "search"
)

// Descriptor describes one configured action for a session.
type Descriptor struct {
	ID   string `json:"id"`
	Type Type   `json:"type"`

	// CALL_TRANSFER
	PhoneNumber string `json:"phone_number,omitempty"`

	// WEBHOOK and SHOPIFY
	Webhook *WebhookSpec `json:"webhook,omitempty"`
}

// WebhookSpec carries the request shape for a generic webhook action. Body
// accepts both a single body object and a list of body parts; a dynamic part
// declares type=dynamic with a values map of field name -> spec.
type WebhookSpec struct {
	URL         string            `json:"url"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers,omitempty"`
	QueryParams string            `json:"query_params,omitempty"`
	Body        json.RawMessage   `json:"body,omitempty"`

	// SubType selects the tool for SHOPIFY actions (order_status or search).
	SubType string `json:"sub_type,omitempty"`
}

// FieldSpec describes one dynamic body field.
type FieldSpec struct {
	Description string `json:"description"`
}

type bodyPart struct {
	Type   string               `json:"type"`
	Values map[string]FieldSpec `json:"values"`
}

// DynamicFields extracts the dynamic field map from the body spec. It accepts
// both a single dynamic body object and a list of body parts whose first
// dynamic entry wins. Returns false when the body carries no dynamic spec.
func (w *WebhookSpec) DynamicFields() (map[string]FieldSpec, bool) {
	if w == nil || len(w.Body) == 0 {
		return nil, false
	}

	var single bodyPart
	if err := json.Unmarshal(w.Body, &single); err == nil && single.Type == "dynamic" {
		return single.Values, len(single.Values) > 0
	}

	var parts []bodyPart
	if err := json.Unmarshal(w.Body, &parts); err == nil {
		for _, part := range parts {
			if part.Type == "dynamic" {
				return part.Values, len(part.Values) > 0
			}
		}
	}
	return nil, false
}

// DynamicFieldNames returns the dynamic field names in deterministic order.
func (w *WebhookSpec) DynamicFieldNames() []string {
	fields, ok := w.DynamicFields()
	if !ok {
		return nil
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StaticBody returns the configured body as a JSON object when it is neither
// dynamic nor a part list. Used for POST webhooks with a fixed payload.
func (w *WebhookSpec) StaticBody() map[string]any {
	if w == nil || len(w.Body) == 0 {
		return nil
	}
	if _, dynamic := w.DynamicFields(); dynamic {
		return nil
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body, &body); err != nil {
		return nil
	}
	// A bare {"type":"dynamic"} object with no values is not a payload.
	if t, ok := body["type"].(string); ok && t == "dynamic" {
		return nil
	}
	return body
}

// Validate reports whether the descriptor carries the fields its declared
// type requires. Callers skip invalid descriptors rather than failing the
// whole session build.
func (d *Descriptor) Validate() error {
	if d == nil {
		return fmt.Errorf("nil action descriptor")
	}
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("action missing id")
	}
	switch d.Type {
	case TypeSendEmail, TypeSendSMS, TypeAppointment:
		return nil
	case TypeCallTransfer:
		if strings.TrimSpace(d.PhoneNumber) == "" {
			return fmt.Errorf("action %s: CALL_TRANSFER missing phone_number", d.ID)
		}
		return nil
	case TypeShopify:
		if d.Webhook == nil {
			return fmt.Errorf("action %s: SHOPIFY missing webhook spec", d.ID)
		}
		switch d.Webhook.SubType {
		case ShopifyOrderStatus, ShopifySearch:
			return nil
		default:
			return fmt.Errorf("action %s: SHOPIFY unknown sub_type %q", d.ID, d.Webhook.SubType)
		}
	case TypeWebhook:
		if d.Webhook == nil || strings.TrimSpace(d.Webhook.URL) == "" {
			return fmt.Errorf("action %s: WEBHOOK missing url", d.ID)
		}
		switch strings.ToUpper(d.Webhook.Method) {
		case "GET", "POST":
			return nil
		default:
			return fmt.Errorf("action %s: WEBHOOK unsupported method %q", d.ID, d.Webhook.Method)
		}
	default:
		return fmt.Errorf("action %s: unknown type %q", d.ID, d.Type)
	}
}

// FindByID returns the descriptor with the given id, or nil.
func FindByID(descriptors []Descriptor, id string) *Descriptor {
	for i := range descriptors {
		if descriptors[i].ID == id {
			return &descriptors[i]
		}
	}
	return nil
}
