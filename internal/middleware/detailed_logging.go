package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"whatscrm/internal/httputil"
	"whatscrm/internal/privacy"
	"whatscrm/internal/service"
	"whatscrm/internal/tracing"

	"github.com/sirupsen/logrus"
)

// DetailedLoggingConfig controls the wire-level debug logging layer.
type DetailedLoggingConfig struct {
	LogRequestHeaders  bool     `json:"log_request_headers"`
	LogResponseHeaders bool     `json:"log_response_headers"`
	LogRequestBody     bool     `json:"log_request_body"`
	LogResponseBody    bool     `json:"log_response_body"`
	MaxBodySize        int      `json:"max_body_size"`
	SensitiveHeaders   []string `json:"sensitive_headers"`
	SkipEndpoints      []string `json:"skip_endpoints"`
}

// DefaultDetailedLoggingConfig logs headers but no bodies. Health and
// metrics polling would drown the log, and the websocket endpoint
// cannot be captured once the connection is hijacked, so all three are
// skipped.
func DefaultDetailedLoggingConfig() DetailedLoggingConfig {
	return DetailedLoggingConfig{
		LogRequestHeaders: true,
		MaxBodySize:       2048,
		SensitiveHeaders: []string{
			"Authorization", "Cookie", "Set-Cookie",
			"X-Api-Key", "X-Hub-Signature-256",
		},
		SkipEndpoints: []string{"/health", "/metrics", "/ws"},
	}
}

// DetailedLoggingMiddleware logs request and response detail for
// endpoints not on the skip list. It does nothing while the logger sits
// above debug level, so it can stay installed in production and switch
// on with a log level change.
func DetailedLoggingMiddleware(logger *logrus.Logger, config DetailedLoggingConfig) func(http.Handler) http.Handler {
	sensitive := make(map[string]struct{}, len(config.SensitiveHeaders))
	for _, name := range config.SensitiveHeaders {
		sensitive[strings.ToLower(name)] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !logger.IsLevelEnabled(logrus.DebugLevel) || skipPath(r.URL.Path, config.SkipEndpoints) {
				next.ServeHTTP(w, r)
				return
			}

			info := tracing.GetRequestInfo(r.Context())
			logRequestDetail(logger, r, info, config, sensitive)

			if !config.LogResponseBody && !config.LogResponseHeaders {
				next.ServeHTTP(w, r)
				return
			}

			capture := &captureWriter{ResponseWriter: w, status: http.StatusOK, limit: config.MaxBodySize}
			next.ServeHTTP(capture, r)
			logResponseDetail(logger, capture, info, config, sensitive)
		})
	}
}

func skipPath(path string, skips []string) bool {
	for _, skip := range skips {
		if strings.HasPrefix(path, skip) {
			return true
		}
	}
	return false
}

func logRequestDetail(logger *logrus.Logger, r *http.Request, info *tracing.RequestInfo, config DetailedLoggingConfig, sensitive map[string]struct{}) {
	fields := logrus.Fields{
		service.LogFieldRequestID: info.RequestID,
		service.LogFieldTraceID:   info.TraceID,
		service.LogFieldMethod:    r.Method,
		service.LogFieldURL:       r.URL.String(),
		service.LogFieldRemoteIP:  httputil.GetClientIP(r),
		"protocol":                r.Proto,
		"content_length":          r.ContentLength,
	}

	if config.LogRequestHeaders {
		fields["request_headers"] = flattenHeaders(r.Header, sensitive)
	}

	if config.LogRequestBody && isTextContent(r.Header.Get("Content-Type")) {
		if preview, truncated, ok := readBodyPreview(r, config.MaxBodySize); ok {
			fields["request_body"] = maskBody(preview, truncated)
		}
	}

	logger.WithFields(fields).Debug("Request detail")
}

func logResponseDetail(logger *logrus.Logger, capture *captureWriter, info *tracing.RequestInfo, config DetailedLoggingConfig, sensitive map[string]struct{}) {
	fields := logrus.Fields{
		service.LogFieldRequestID:  info.RequestID,
		service.LogFieldTraceID:    info.TraceID,
		service.LogFieldStatusCode: capture.status,
		service.LogFieldSize:       capture.bytes,
	}

	if config.LogResponseHeaders {
		fields["response_headers"] = flattenHeaders(capture.Header(), sensitive)
	}

	if config.LogResponseBody && capture.body.Len() > 0 {
		fields["response_body"] = maskBody(capture.body.Bytes(), capture.truncated)
	}

	logger.WithFields(fields).Debug("Response detail")
}

// flattenHeaders joins each header's values and blanks the sensitive
// ones.
func flattenHeaders(h http.Header, sensitive map[string]struct{}) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if _, hidden := sensitive[strings.ToLower(name)]; hidden {
			out[name] = "[redacted]"
		} else {
			out[name] = strings.Join(values, ", ")
		}
	}
	return out
}

// maskBody runs a complete JSON object body through field masking so
// phone numbers and ids do not land in debug logs verbatim. Truncated
// or non-JSON bodies are reported by size only, never raw.
func maskBody(body []byte, truncated bool) interface{} {
	if !truncated {
		var obj map[string]interface{}
		if err := json.Unmarshal(body, &obj); err == nil {
			return privacy.MaskSensitiveFields(obj)
		}
	}
	label := fmt.Sprintf("%d bytes", len(body))
	if truncated {
		label += " (truncated)"
	}
	return label
}

// readBodyPreview reads up to max bytes of the request body and splices
// the consumed part back so the handler still sees the full stream.
// Chunked requests, where ContentLength is -1, work the same way.
func readBodyPreview(r *http.Request, max int) (preview []byte, truncated bool, ok bool) {
	if r.Body == nil || max <= 0 {
		return nil, false, false
	}
	buf, err := io.ReadAll(io.LimitReader(r.Body, int64(max)+1))
	if err != nil {
		return nil, false, false
	}

	rest := r.Body
	r.Body = splicedBody{io.MultiReader(bytes.NewReader(buf), rest), rest}

	if len(buf) > max {
		return buf[:max], true, true
	}
	return buf, false, true
}

type splicedBody struct {
	io.Reader
	io.Closer
}

// captureWriter tees response bytes into a bounded buffer for the
// response detail log line.
type captureWriter struct {
	http.ResponseWriter
	status    int
	bytes     int64
	limit     int
	body      bytes.Buffer
	truncated bool
}

func (cw *captureWriter) WriteHeader(status int) {
	cw.status = status
	cw.ResponseWriter.WriteHeader(status)
}

func (cw *captureWriter) Write(data []byte) (int, error) {
	n, err := cw.ResponseWriter.Write(data)
	if n > 0 {
		room := cw.limit - cw.body.Len()
		if room > n {
			room = n
		}
		if room > 0 {
			cw.body.Write(data[:room])
		}
		if n > room {
			cw.truncated = true
		}
	}
	cw.bytes += int64(n)
	return n, err
}

// Unwrap exposes the underlying writer for http.ResponseController.
func (cw *captureWriter) Unwrap() http.ResponseWriter {
	return cw.ResponseWriter
}

// isTextContent reports whether a request body is worth previewing.
// Media uploads and other binary payloads are skipped.
func isTextContent(contentType string) bool {
	return strings.HasPrefix(contentType, "application/json") ||
		strings.HasPrefix(contentType, "text/") ||
		strings.HasPrefix(contentType, "application/x-www-form-urlencoded")
}
