package action

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDynamicFieldsSingleObject(t *testing.T) {
	spec := &WebhookSpec{
		Body: json.RawMessage(`{"type":"dynamic","values":{"order_ref":{"description":"Order reference"},"email":{"description":"Customer email"}}}`),
	}

	fields, ok := spec.DynamicFields()
	require.True(t, ok)
	assert.Len(t, fields, 2)
	assert.Equal(t, "Order reference", fields["order_ref"].Description)
	assert.Equal(t, []string{"email", "order_ref"}, spec.DynamicFieldNames())
}

func TestDynamicFieldsPartList(t *testing.T) {
	spec := &WebhookSpec{
		Body: json.RawMessage(`[{"type":"dynamic","values":{"ticket_id":{"description":"Ticket id"}}},{"type":"static"}]`),
	}

	fields, ok := spec.DynamicFields()
	require.True(t, ok)
	assert.Len(t, fields, 1)
	assert.Contains(t, fields, "ticket_id")
}

func TestDynamicFieldsAbsent(t *testing.T) {
	var nilSpec *WebhookSpec
	_, ok := nilSpec.DynamicFields()
	assert.False(t, ok)

	spec := &WebhookSpec{Body: json.RawMessage(`{"customer":"fixed"}`)}
	_, ok = spec.DynamicFields()
	assert.False(t, ok)
	assert.Equal(t, map[string]any{"customer": "fixed"}, spec.StaticBody())
}

func TestStaticBodyExcludesDynamic(t *testing.T) {
	spec := &WebhookSpec{Body: json.RawMessage(`{"type":"dynamic","values":{"a":{"description":"x"}}}`)}
	assert.Nil(t, spec.StaticBody())
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		desc    Descriptor
		wantErr bool
	}{
		{"email ok", Descriptor{ID: "1", Type: TypeSendEmail}, false},
		{"missing id", Descriptor{Type: TypeSendSMS}, true},
		{"transfer needs phone", Descriptor{ID: "2", Type: TypeCallTransfer}, true},
		{"transfer ok", Descriptor{ID: "2", Type: TypeCallTransfer, PhoneNumber: "+15551234567"}, false},
		{"webhook needs url", Descriptor{ID: "3", Type: TypeWebhook, Webhook: &WebhookSpec{Method: "GET"}}, true},
		{"webhook bad method", Descriptor{ID: "3", Type: TypeWebhook, Webhook: &WebhookSpec{URL: "https://x", Method: "PUT"}}, true},
		{"webhook ok", Descriptor{ID: "3", Type: TypeWebhook, Webhook: &WebhookSpec{URL: "https://x", Method: "post"}}, false},
		{"shopify bad subtype", Descriptor{ID: "4", Type: TypeShopify, Webhook: &WebhookSpec{SubType: "refund"}}, true},
		{"shopify ok", Descriptor{ID: "4", Type: TypeShopify, Webhook: &WebhookSpec{SubType: ShopifySearch}}, false},
		{"unknown type", Descriptor{ID: "5", Type: Type("MYSTERY")}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.desc.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFindByID(t *testing.T) {
	list := []Descriptor{{ID: "a"}, {ID: "b"}}
	require.NotNil(t, FindByID(list, "b"))
	assert.Nil(t, FindByID(list, "c"))
}
