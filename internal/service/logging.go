package service

import (
	"context"
	"strings"

	"whatscrm/internal/constants"

	"github.com/sirupsen/logrus"
)

// ContextKey is a package-local context key type (staticcheck SA1029).
type ContextKey string

// VerboseContextKey carries the startup verbose flag. When set, event
// logs include raw identifiers and message content.
const VerboseContextKey ContextKey = "verbose"

// IsVerboseLogging reports whether the context carries the verbose flag.
func IsVerboseLogging(ctx context.Context) bool {
	verbose, ok := ctx.Value(VerboseContextKey).(bool)
	return ok && verbose
}

// SanitizePhoneNumber keeps only the last digits of a phone number so
// log lines can be correlated without exposing the full number.
func SanitizePhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}
	digits := strings.TrimSuffix(phone, "@c.us")
	if len(digits) <= constants.DefaultPhoneMaskLength {
		return "***"
	}
	return "***" + digits[len(digits)-constants.DefaultPhoneMaskLength:]
}

// SanitizeMessageID shortens provider message IDs. The prefix is enough
// to find the row without reproducing the full ID in logs.
func SanitizeMessageID(msgID string) string {
	if len(msgID) <= constants.DefaultMessageIDLength {
		return msgID
	}
	return msgID[:constants.DefaultMessageIDLength] + "..."
}

// SanitizeChatJID masks the user part of a chat JID while keeping the
// server suffix, so logs still show whether an ID was a contact, a
// group, or a linked ID. Format: 1234567890@c.us becomes ***7890@c.us.
func SanitizeChatJID(jid string) string {
	if jid == "" {
		return ""
	}
	if idx := strings.Index(jid, "@"); idx > 0 {
		return SanitizePhoneNumber(jid[:idx]) + jid[idx:]
	}
	return SanitizePhoneNumber(jid)
}

// SanitizeContent hides message content entirely.
func SanitizeContent(content string) string {
	if content == "" {
		return ""
	}
	return "[hidden]"
}

// LogWithContext returns an entry tagged with the verbose state.
func LogWithContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	return logger.WithField("verbose", IsVerboseLogging(ctx))
}

// LogEventProcessing logs one inbound event, with identifiers masked
// unless verbose logging was requested at startup.
func LogEventProcessing(ctx context.Context, logger *logrus.Logger, kind string, chatID, msgID, sender, content string) {
	fields := logrus.Fields{
		"kind":   kind,
		"chatID": SanitizeChatJID(chatID),
		"msgID":  SanitizeMessageID(msgID),
		"sender": SanitizePhoneNumber(sender),
	}
	if IsVerboseLogging(ctx) {
		fields["chatID"] = chatID
		fields["msgID"] = msgID
		fields["sender"] = sender
		fields["content"] = content
	}
	logger.WithFields(fields).Info("Processing event")
}
