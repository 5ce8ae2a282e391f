// Package validation holds the input checks shared by the config loader
// and the HTTP layer. Every failure carries errors.ErrCodeInvalidInput
// so callers can map the whole package to a 400 uniformly.
package validation

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"whatscrm/internal/errors"
	"whatscrm/pkg/constants"
)

const (
	maxTimeoutSeconds = 3600
	maxRetentionDays  = 3650
)

func invalidf(format string, args ...any) error {
	return errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf(format, args...))
}

// ValidatePhoneNumber checks that phone is a bare international number:
// an optional plus sign followed by 7 to 15 digits. Chat JIDs and group
// IDs do not pass here; the ingest path carries its own identity checks.
func ValidatePhoneNumber(phone string) error {
	digits := strings.TrimPrefix(phone, "+")
	if digits == "" {
		return invalidf("phone number cannot be empty")
	}
	if strings.ContainsFunc(digits, func(r rune) bool { return r < '0' || r > '9' }) {
		return invalidf("phone number must contain only digits")
	}
	if n := len(digits); n < constants.MinPhoneNumberLength || n > constants.MaxPhoneNumberLength {
		return invalidf("phone number must be %d to %d digits, got %d",
			constants.MinPhoneNumberLength, constants.MaxPhoneNumberLength, n)
	}
	return nil
}

// ValidateDispatchURL validates an outbound webhook target URL. Unless
// allowLoopback is set, hosts that name the local machine or a private
// network are rejected so a misconfigured target cannot reach internal
// services.
func ValidateDispatchURL(rawURL string, allowLoopback bool) error {
	if rawURL == "" {
		return invalidf("dispatch URL cannot be empty")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid dispatch URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return invalidf("dispatch URL scheme must be http or https, got %q", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return invalidf("dispatch URL must include a host")
	}
	if allowLoopback {
		return nil
	}

	if strings.EqualFold(host, "localhost") {
		return invalidf("dispatch URL must not target localhost")
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
			return invalidf("dispatch URL must not target internal address %s", host)
		}
	}
	return nil
}

// ValidateHTTPRequestSize rejects requests whose declared body size is
// unknown or above maxBytes. The declaration can lie, so callers still
// cap the actual read with http.MaxBytesReader; this check just fails
// fast before any bytes are consumed.
func ValidateHTTPRequestSize(r *http.Request, maxBytes int64) error {
	switch {
	case r.ContentLength < 0:
		return invalidf("request must declare a content length")
	case r.ContentLength > maxBytes:
		return invalidf("request body is %d bytes, limit is %d", r.ContentLength, maxBytes)
	}
	return nil
}

// ValidateStringLength checks len(value) against inclusive bounds.
func ValidateStringLength(value, field string, min, max int) error {
	if n := len(value); n < min || n > max {
		return invalidf("%s must be %d to %d characters, got %d", field, min, max, n)
	}
	return nil
}

// ValidateNumericRange checks value against inclusive bounds.
func ValidateNumericRange(value int, field string, min, max int) error {
	if value < min || value > max {
		return invalidf("%s must be between %d and %d, got %d", field, min, max, value)
	}
	return nil
}

// ValidateTimeout bounds a timeout between one second and one hour.
func ValidateTimeout(timeoutSec int, field string) error {
	if timeoutSec < 1 || timeoutSec > maxTimeoutSeconds {
		return invalidf("%s must be between 1 and %d seconds, got %d", field, maxTimeoutSeconds, timeoutSec)
	}
	return nil
}

// ValidateRetentionDays bounds the cleanup retention window at ten years.
func ValidateRetentionDays(days int) error {
	if days < 1 || days > maxRetentionDays {
		return invalidf("retention days must be between 1 and %d, got %d", maxRetentionDays, days)
	}
	return nil
}
