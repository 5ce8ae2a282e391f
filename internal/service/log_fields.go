package service

// Shared structured-log field names. Handlers, middleware, and services
// use these instead of ad-hoc strings so one grep finds every line for
// a request and downstream pipelines can index on stable keys.
//
// Level conventions: Debug for per-event detail behind the verbose
// flag, Info for lifecycle and successful operations, Warn for
// degraded-but-continuing conditions such as retries and rate limits,
// Error for failed operations, Fatal only when startup cannot proceed.
const (
	LogFieldRequestID = "request_id"
	LogFieldTraceID   = "trace_id"

	LogFieldService   = "service"
	LogFieldComponent = "component"

	LogFieldMethod     = "method"
	LogFieldURL        = "url"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"

	LogFieldDuration = "duration_ms"
	LogFieldSize     = "size_bytes"
)
