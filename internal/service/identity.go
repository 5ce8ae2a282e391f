package service

import (
	"fmt"
	"strings"

	pkgconstants "whatscrm/pkg/constants"
)

// Digit bounds for chat identities. Contacts follow E.164 with room
// for business accounts; group JIDs and linked IDs run longer.
const (
	minIdentityDigits = 7
	maxContactDigits  = 20
	maxExtendedDigits = 25
)

func allDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// ValidatePhoneNumber accepts the identities that appear in chat and
// sender fields: E.164 numbers with or without a plus, contact JIDs
// (@c.us), group JIDs (@g.us, including the hyphenated compound form),
// and linked IDs (@lid).
func ValidatePhoneNumber(phone string) error {
	if phone == "" {
		return fmt.Errorf("phone number cannot be empty")
	}

	label, maxDigits := "phone number", maxContactDigits
	switch {
	case strings.Contains(phone, "@g.us"):
		label, maxDigits = "group ID", maxExtendedDigits
	case strings.HasSuffix(phone, "@lid"):
		label, maxDigits = "linked ID", maxExtendedDigits
	}

	id := strings.TrimSuffix(phone, "@c.us")
	id = strings.TrimSuffix(id, "@g.us")
	id = strings.TrimSuffix(id, "@lid")

	if prefix, _, compound := strings.Cut(id, "-"); compound {
		// Compound group JIDs look like 120363-1234567890; only the
		// creator prefix is digit-checked.
		if prefix == "" || !allDigits(prefix) {
			return fmt.Errorf("invalid group ID format")
		}
		return nil
	}

	id = strings.TrimPrefix(id, "+")
	if id == "" {
		return fmt.Errorf("phone number must contain digits")
	}
	if len(id) < minIdentityDigits || len(id) > maxDigits {
		return fmt.Errorf("%s must be between %d and %d digits, got %d", label, minIdentityDigits, maxDigits, len(id))
	}
	if !allDigits(id) {
		return fmt.Errorf("%s must contain only digits", label)
	}
	return nil
}

// ValidateMessageID rejects IDs that could corrupt log lines. Provider
// message IDs are opaque strings, so only length and control characters
// are checked.
func ValidateMessageID(msgID string) error {
	if msgID == "" {
		return fmt.Errorf("message ID cannot be empty")
	}
	if len(msgID) > pkgconstants.MaxMessageIDLength {
		return fmt.Errorf("message ID too long (max %d characters)", pkgconstants.MaxMessageIDLength)
	}
	if strings.ContainsAny(msgID, "\x00\n\r\t") {
		return fmt.Errorf("message ID contains invalid characters")
	}
	return nil
}

// ValidateNumberID validates a connection number ID. Cloud phone number
// IDs are numeric, QR connection IDs are operator-chosen names; both
// share the same character rules.
func ValidateNumberID(numberID string) error {
	if numberID == "" {
		return fmt.Errorf("number ID cannot be empty")
	}
	if len(numberID) > pkgconstants.MaxNumberIDLength {
		return fmt.Errorf("number ID too long (max %d characters)", pkgconstants.MaxNumberIDLength)
	}
	for _, c := range numberID {
		ok := c == '-' || c == '_' ||
			(c >= '0' && c <= '9') ||
			(c >= 'a' && c <= 'z') ||
			(c >= 'A' && c <= 'Z')
		if !ok {
			return fmt.Errorf("number ID must contain only alphanumeric characters, hyphens, and underscores")
		}
	}
	return nil
}
