package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePhoneNumber(t *testing.T) {
	tests := []struct {
		name      string
		phone     string
		expectErr bool
		errMsg    string
	}{
		{
			name:      "valid international format",
			phone:     "+1234567890",
			expectErr: false,
		},
		{
			name:      "valid WhatsApp format",
			phone:     "1234567890@c.us",
			expectErr: false,
		},
		{
			name:      "valid WhatsApp format with plus",
			phone:     "+1234567890@c.us",
			expectErr: false,
		},
		{
			name:      "valid local format",
			phone:     "1234567890",
			expectErr: false,
		},
		{
			name:      "valid minimum length",
			phone:     "1234567",
			expectErr: false,
		},
		{
			name:      "valid business account length",
			phone:     "12345678901234567890",
			expectErr: false,
		},
		{
			name:      "valid group ID",
			phone:     "120363044444444444@g.us",
			expectErr: false,
		},
		{
			name:      "valid compound group ID",
			phone:     "120363-1234567890@g.us",
			expectErr: false,
		},
		{
			name:      "valid linked ID",
			phone:     "123456789012345678901234@lid",
			expectErr: false,
		},
		{
			name:      "empty phone number",
			phone:     "",
			expectErr: true,
			errMsg:    "phone number cannot be empty",
		},
		{
			name:      "too short",
			phone:     "123456",
			expectErr: true,
			errMsg:    "phone number must be between 7 and 20 digits",
		},
		{
			name:      "too long",
			phone:     "123456789012345678901",
			expectErr: true,
			errMsg:    "phone number must be between 7 and 20 digits",
		},
		{
			name:      "group ID too long",
			phone:     "12345678901234567890123456@g.us",
			expectErr: true,
			errMsg:    "group ID must be between 7 and 25 digits",
		},
		{
			name:      "linked ID too long",
			phone:     "12345678901234567890123456@lid",
			expectErr: true,
			errMsg:    "linked ID must be between 7 and 25 digits",
		},
		{
			name:      "contains letters",
			phone:     "+123abc7890",
			expectErr: true,
			errMsg:    "phone number must contain only digits",
		},
		{
			name:      "contains spaces",
			phone:     "+123 456 7890",
			expectErr: true,
			errMsg:    "phone number must contain only digits",
		},
		{
			name:      "compound group ID with letters",
			phone:     "abc123-456@g.us",
			expectErr: true,
			errMsg:    "invalid group ID format",
		},
		{
			name:      "compound group ID with empty prefix",
			phone:     "-1234567890@g.us",
			expectErr: true,
			errMsg:    "invalid group ID format",
		},
		{
			name:      "plus only",
			phone:     "+",
			expectErr: true,
			errMsg:    "phone number must contain digits",
		},
		{
			name:      "WhatsApp suffix only",
			phone:     "@c.us",
			expectErr: true,
			errMsg:    "phone number must contain digits",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePhoneNumber(tt.phone)
			if tt.expectErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateMessageID(t *testing.T) {
	tests := []struct {
		name      string
		msgID     string
		expectErr bool
		errMsg    string
	}{
		{
			name:      "valid message ID",
			msgID:     "msg_123_456",
			expectErr: false,
		},
		{
			name:      "valid cloud message ID",
			msgID:     "wamid.HBgLMTU1NTEyMzQ1NjcVAgARGBJ",
			expectErr: false,
		},
		{
			name:      "valid UUID format",
			msgID:     "550e8400-e29b-41d4-a716-446655440000",
			expectErr: false,
		},
		{
			name:      "empty message ID",
			msgID:     "",
			expectErr: true,
			errMsg:    "message ID cannot be empty",
		},
		{
			name:      "too long",
			msgID:     strings.Repeat("a", 257),
			expectErr: true,
			errMsg:    "message ID too long",
		},
		{
			name:      "contains null byte",
			msgID:     "msg\x00123",
			expectErr: true,
			errMsg:    "message ID contains invalid characters",
		},
		{
			name:      "contains newline",
			msgID:     "msg\n123",
			expectErr: true,
			errMsg:    "message ID contains invalid characters",
		},
		{
			name:      "contains tab",
			msgID:     "msg\t123",
			expectErr: true,
			errMsg:    "message ID contains invalid characters",
		},
		{
			name:      "single character",
			msgID:     "a",
			expectErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessageID(tt.msgID)
			if tt.expectErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateNumberID(t *testing.T) {
	tests := []struct {
		name      string
		numberID  string
		expectErr bool
		errMsg    string
	}{
		{
			name:      "valid cloud phone number ID",
			numberID:  "105500100000000",
			expectErr: false,
		},
		{
			name:      "valid QR connection name",
			numberID:  "qr-sales",
			expectErr: false,
		},
		{
			name:      "valid with underscores",
			numberID:  "sales_line_2",
			expectErr: false,
		},
		{
			name:      "valid mixed case",
			numberID:  "Sales1_Test-2",
			expectErr: false,
		},
		{
			name:      "single character",
			numberID:  "a",
			expectErr: false,
		},
		{
			name:      "empty number ID",
			numberID:  "",
			expectErr: true,
			errMsg:    "number ID cannot be empty",
		},
		{
			name:      "contains spaces",
			numberID:  "sales line",
			expectErr: true,
			errMsg:    "number ID must contain only alphanumeric characters",
		},
		{
			name:      "contains punctuation",
			numberID:  "sales!",
			expectErr: true,
			errMsg:    "number ID must contain only alphanumeric characters",
		},
		{
			name:      "too long",
			numberID:  strings.Repeat("a", 65),
			expectErr: true,
			errMsg:    "number ID too long",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNumberID(tt.numberID)
			if tt.expectErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
