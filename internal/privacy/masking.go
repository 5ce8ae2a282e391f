// Package privacy masks personal identifiers before they reach logs.
// Masking keeps just enough suffix to correlate log lines with database
// rows; secrets are never partially shown.
package privacy

import "strings"

const redacted = "[redacted]"

// MaskPhone hides a phone number except its last four digits. A leading
// plus sign survives so E.164 numbers stay recognizable.
//
//	"+4915551230001" -> "+**********0001"
func MaskPhone(phone string) string {
	if phone == "" {
		return ""
	}
	prefix := ""
	digits := phone
	if strings.HasPrefix(phone, "+") {
		prefix = "+"
		digits = phone[1:]
	}
	return prefix + maskTail(digits, 4)
}

// MaskJID hides the user part of a chat identifier and keeps the server
// so the connection type stays readable.
//
//	"15551230001@s.whatsapp.net" -> "*******0001@s.whatsapp.net"
func MaskJID(jid string) string {
	if jid == "" {
		return ""
	}
	at := strings.IndexByte(jid, '@')
	if at < 0 {
		return maskTail(jid, 4)
	}
	return maskTail(jid[:at], 4) + jid[at:]
}

// MaskProviderID hides a provider message id except its last six
// characters, enough to match a receipt against an earlier log line.
func MaskProviderID(id string) string {
	if id == "" {
		return ""
	}
	return maskTail(id, 6)
}

// MaskName reduces a person's name to its first rune.
//
//	"Alice Doe" -> "A…"
func MaskName(name string) string {
	if name == "" {
		return ""
	}
	runes := []rune(name)
	return string(runes[0]) + "…"
}

// maskTail replaces all but the last keep runes with asterisks. Strings
// at or under the keep length are fully masked so short values never
// leak whole.
func maskTail(s string, keep int) string {
	runes := []rune(s)
	if len(runes) <= keep {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-keep) + string(runes[len(runes)-keep:])
}

// Field classification sets. Keys are normalized (lowercased, with
// underscores and hyphens removed) before lookup, so "contact_phone",
// "contactPhone", and "Contact-Phone" all classify the same way.
var (
	phoneKeys = map[string]struct{}{
		"phone": {}, "phonenumber": {}, "contactphone": {},
		"senderphone": {}, "recipient": {}, "recipientphone": {},
		"from": {}, "to": {},
	}
	jidKeys = map[string]struct{}{
		"chatid": {}, "externalchatid": {}, "jid": {}, "chat": {},
	}
	providerIDKeys = map[string]struct{}{
		"messageid": {}, "providermessageid": {}, "wamid": {},
	}
	nameKeys = map[string]struct{}{
		"contactname": {}, "pushname": {}, "displayname": {},
	}
	secretKeys = map[string]struct{}{
		"signature": {}, "secret": {}, "token": {}, "verifytoken": {},
		"apikey": {}, "authorization": {}, "password": {},
	}
)

func normalizeKey(key string) string {
	key = strings.ToLower(key)
	key = strings.ReplaceAll(key, "_", "")
	return strings.ReplaceAll(key, "-", "")
}

// MaskSensitiveFields returns a copy of a log field map with personal
// identifiers masked and secrets fully redacted. Nested maps and slices
// are walked too, so decoded JSON payloads can be passed in whole.
// Unrecognized keys and non-string values pass through untouched.
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for key, value := range fields {
		masked[key] = maskValue(key, value)
	}
	return masked
}

func maskValue(key string, value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return maskString(key, v)
	case map[string]interface{}:
		return MaskSensitiveFields(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, elem := range v {
			out[i] = maskValue(key, elem)
		}
		return out
	default:
		return value
	}
}

func maskString(key, value string) interface{} {
	switch norm := normalizeKey(key); {
	case keyIn(norm, secretKeys):
		return redacted
	case keyIn(norm, phoneKeys):
		return MaskPhone(value)
	case keyIn(norm, jidKeys):
		return MaskJID(value)
	case keyIn(norm, providerIDKeys):
		return MaskProviderID(value)
	case keyIn(norm, nameKeys):
		return MaskName(value)
	default:
		return value
	}
}

func keyIn(key string, set map[string]struct{}) bool {
	_, ok := set[key]
	return ok
}
