package errors

import (
	"encoding/json"
	"net/http"

	"whatscrm/internal/privacy"
	"whatscrm/internal/tracing"
)

// HTTPStatus maps an error onto the response status its code implies.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case ErrCodeValidationFailed, ErrCodeInvalidInput, ErrCodeInvalidConfig, ErrCodeMissingConfig:
		return http.StatusBadRequest
	case ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeAuthorization:
		return http.StatusForbidden
	case ErrCodeNotFound, ErrCodeUnknownNumber:
		return http.StatusNotFound
	case ErrCodeDuplicateMessage:
		return http.StatusConflict
	case ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeWhatsAppAPI, ErrCodeBridge, ErrCodeDispatch:
		if IsRetryable(err) {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	case ErrCodeDatabaseConnection, ErrCodeDatabaseQuery, ErrCodeDatabaseMigration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the JSON body written for failed API requests.
type ErrorResponse struct {
	Error struct {
		Code    ErrorCode              `json:"code"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details,omitempty"`
	} `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteHTTP renders err as a JSON error response. The client sees the
// user message, never the internal one, and details pass through
// privacy masking so identifiers attached for logging do not leak.
func WriteHTTP(w http.ResponseWriter, r *http.Request, err error) {
	resp := ErrorResponse{RequestID: tracing.GetRequestID(r.Context())}
	resp.Error.Code = GetCode(err)
	resp.Error.Message = GetUserMessage(err)
	if appErr, ok := AsAppError(err); ok && len(appErr.Details) > 0 {
		resp.Error.Details = privacy.MaskSensitiveFields(appErr.Details)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(resp)
}
