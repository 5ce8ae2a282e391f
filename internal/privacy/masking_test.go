package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPhone(t *testing.T) {
	tests := []struct {
		name     string
		phone    string
		expected string
	}{
		{
			name:     "e164 number keeps plus and last four",
			phone:    "+4915551230001",
			expected: "+*********0001",
		},
		{
			name:     "bare digits",
			phone:    "15551230001",
			expected: "*******0001",
		},
		{
			name:     "short number fully masked",
			phone:    "1234",
			expected: "****",
		},
		{
			name:     "very short number fully masked",
			phone:    "12",
			expected: "**",
		},
		{
			name:     "empty",
			phone:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MaskPhone(tt.phone))
		})
	}
}

func TestMaskJID(t *testing.T) {
	tests := []struct {
		name     string
		jid      string
		expected string
	}{
		{
			name:     "user jid keeps server",
			jid:      "15551230001@s.whatsapp.net",
			expected: "*******0001@s.whatsapp.net",
		},
		{
			name:     "group jid keeps server",
			jid:      "120363041234567890@g.us",
			expected: "**************7890@g.us",
		},
		{
			name:     "no server part masked like a plain id",
			jid:      "15551230001",
			expected: "*******0001",
		},
		{
			name:     "empty",
			jid:      "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MaskJID(tt.jid))
		})
	}
}

func TestMaskProviderID(t *testing.T) {
	assert.Equal(t, "****************MjQ3Qg", MaskProviderID("wamid.HBgLMTU1NTMjQ3Qg"))
	assert.Equal(t, "******", MaskProviderID("abc123"))
	assert.Equal(t, "", MaskProviderID(""))
}

func TestMaskName(t *testing.T) {
	assert.Equal(t, "A…", MaskName("Alice Doe"))
	assert.Equal(t, "Ž…", MaskName("Žana"))
	assert.Equal(t, "", MaskName(""))
}

func TestMaskSensitiveFields(t *testing.T) {
	fields := map[string]interface{}{
		"phone":               "+4915551230001",
		"senderPhone":         "15557770001",
		"chat_id":             "15551230001@s.whatsapp.net",
		"provider_message_id": "wamid.HBgLMTU1NTMjQ3Qg",
		"contact_name":        "Alice Doe",
		"signature":           "sha256=deadbeef",
		"verify_token":        "hub-verify-token",
		"status_code":         200,
		"path":                "/api/v1/conversations",
	}

	masked := MaskSensitiveFields(fields)

	assert.Equal(t, "+*********0001", masked["phone"])
	assert.Equal(t, "*******0001", masked["senderPhone"])
	assert.Equal(t, "*******0001@s.whatsapp.net", masked["chat_id"])
	assert.Equal(t, "****************MjQ3Qg", masked["provider_message_id"])
	assert.Equal(t, "A…", masked["contact_name"])
	assert.Equal(t, "[redacted]", masked["signature"])
	assert.Equal(t, "[redacted]", masked["verify_token"])
	assert.Equal(t, 200, masked["status_code"])
	assert.Equal(t, "/api/v1/conversations", masked["path"])
}

func TestMaskSensitiveFieldsKeyNormalization(t *testing.T) {
	fields := map[string]interface{}{
		"Contact-Phone": "15551230001",
		"chatId":        "15551230001@s.whatsapp.net",
		"API_KEY":       "k-123456",
	}

	masked := MaskSensitiveFields(fields)

	assert.Equal(t, "*******0001", masked["Contact-Phone"])
	assert.Equal(t, "*******0001@s.whatsapp.net", masked["chatId"])
	assert.Equal(t, "[redacted]", masked["API_KEY"])
}

func TestMaskSensitiveFieldsWalksNestedStructures(t *testing.T) {
	fields := map[string]interface{}{
		"event": "message_received",
		"data": map[string]interface{}{
			"sender_phone": "15557770001",
			"contacts": []interface{}{
				map[string]interface{}{"phone": "15558880002"},
			},
		},
	}

	masked := MaskSensitiveFields(fields)

	data := masked["data"].(map[string]interface{})
	assert.Equal(t, "*******0001", data["sender_phone"])
	contact := data["contacts"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "*******0002", contact["phone"])
	assert.Equal(t, "message_received", masked["event"])
}

func TestMaskSensitiveFieldsNonStringPassThrough(t *testing.T) {
	fields := map[string]interface{}{
		"phone": 15551230001,
		"chat":  nil,
	}

	masked := MaskSensitiveFields(fields)

	assert.Equal(t, 15551230001, masked["phone"])
	assert.Nil(t, masked["chat"])
}

func TestMaskSensitiveFieldsDoesNotMutateInput(t *testing.T) {
	fields := map[string]interface{}{"phone": "15551230001"}

	MaskSensitiveFields(fields)

	assert.Equal(t, "15551230001", fields["phone"])
}

func TestMaskSensitiveFieldsNil(t *testing.T) {
	assert.Nil(t, MaskSensitiveFields(nil))
}
