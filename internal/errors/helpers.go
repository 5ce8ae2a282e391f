package errors

import "fmt"

// NewValidationError reports a rejected input field. The user message
// names the field but never echoes the submitted value.
func NewValidationError(field, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithDetail("field", field).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewConfigError reports a bad or missing configuration key.
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithDetail("config_key", key).
		WithUserMessage("Configuration error")
}

// NewDatabaseError classifies a failed storage operation. Storage
// failures are mapped to 503 so load balancers treat the instance as
// unhealthy rather than the request as broken.
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithDetail("operation", operation).
		WithUserMessage("Database operation failed")
}

// NewUpstreamError classifies a failed call to an external endpoint.
// Server-side statuses and throttling are marked retryable; other 4xx
// mean the request itself is wrong and repetition will not help.
func NewUpstreamError(code ErrorCode, endpoint string, statusCode int, err error) *AppError {
	appErr := Wrap(err, code, fmt.Sprintf("upstream call failed with status %d", statusCode)).
		WithDetail("endpoint", endpoint).
		WithDetail("status_code", statusCode).
		WithUserMessage("Upstream service error")
	appErr.Retryable = statusCode >= 500 || statusCode == 429 || statusCode == 408
	return appErr
}

// NewAuthError reports a failed authentication attempt. The reason
// stays in the details for logs; clients only see the generic message.
func NewAuthError(reason string) *AppError {
	return New(ErrCodeAuthentication, "authentication failed").
		WithDetail("reason", reason).
		WithUserMessage("Authentication failed")
}

// NewNotFoundError reports a missing resource.
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithDetail("resource", resource).
		WithDetail("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s not found", resource))
}

// NewRateLimitError reports an exhausted request budget.
func NewRateLimitError(limit int, window string) *AppError {
	return New(ErrCodeRateLimit, "rate limit exceeded").
		WithDetail("limit", limit).
		WithDetail("window", window).
		WithUserMessage("Too many requests, please try again later")
}
