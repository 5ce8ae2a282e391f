package errors

import (
	stderrors "errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestFieldsPlainError(t *testing.T) {
	err := stderrors.New("boom")
	fields := Fields(err)

	assert.Equal(t, err, fields[logrus.ErrorKey])
	assert.NotContains(t, fields, "error_code")
	assert.NotContains(t, fields, "retryable")
}

func TestFieldsClassifiedError(t *testing.T) {
	err := WrapRetryable(stderrors.New("connection refused"), ErrCodeDispatch, "post failed").
		WithDetail("target", "crm").
		WithDetail("attempt", 2)

	fields := Fields(err)

	assert.Equal(t, ErrCodeDispatch, fields["error_code"])
	assert.Equal(t, true, fields["retryable"])
	assert.Equal(t, "crm", fields["target"])
	assert.Equal(t, 2, fields["attempt"])
}

func TestFieldsFindsWrappedClassification(t *testing.T) {
	inner := New(ErrCodeDatabaseQuery, "insert failed").WithDetail("operation", "save message")
	err := stderrors.Join(stderrors.New("outer"), inner)

	fields := Fields(err)
	assert.Equal(t, ErrCodeDatabaseQuery, fields["error_code"])
	assert.Equal(t, "save message", fields["operation"])
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, logrus.ErrorLevel, LogLevel(stderrors.New("boom")))
	assert.Equal(t, logrus.ErrorLevel, LogLevel(New(ErrCodeNotFound, "missing")))
	assert.Equal(t, logrus.WarnLevel, LogLevel(WrapRetryable(stderrors.New("503"), ErrCodeBridge, "bridge down")))
}
