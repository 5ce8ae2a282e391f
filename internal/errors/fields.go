package errors

import "github.com/sirupsen/logrus"

// Fields flattens an error into log fields. Plain errors contribute
// only the error itself; classified errors add their code,
// retryability, and any attached details.
func Fields(err error) logrus.Fields {
	fields := logrus.Fields{logrus.ErrorKey: err}

	appErr, ok := AsAppError(err)
	if !ok {
		return fields
	}

	fields["error_code"] = appErr.Code
	fields["retryable"] = appErr.Retryable
	for k, v := range appErr.Details {
		fields[k] = v
	}
	return fields
}

// LogLevel picks the level a failure should be logged at. Retryable
// failures stay at warn so alerts key on errors that need a human.
func LogLevel(err error) logrus.Level {
	if IsRetryable(err) {
		return logrus.WarnLevel
	}
	return logrus.ErrorLevel
}
