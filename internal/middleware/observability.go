// Package middleware instruments the HTTP surface: request metrics,
// spans, correlation ids, and optional wire-level debug logging.
package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"whatscrm/internal/httputil"
	"whatscrm/internal/metrics"
	"whatscrm/internal/privacy"
	"whatscrm/internal/service"
	"whatscrm/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// responseRecorder notes the status code and byte count a handler
// produced so the middleware can report them after ServeHTTP returns.
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (rr *responseRecorder) WriteHeader(status int) {
	rr.status = status
	rr.ResponseWriter.WriteHeader(status)
}

func (rr *responseRecorder) Write(data []byte) (int, error) {
	n, err := rr.ResponseWriter.Write(data)
	rr.bytes += int64(n)
	return n, err
}

// Unwrap exposes the underlying writer so http.ResponseController and
// websocket upgrades can reach the Hijacker behind the recorder.
func (rr *responseRecorder) Unwrap() http.ResponseWriter {
	return rr.ResponseWriter
}

// routeTemplate returns the mux route pattern for the request, falling
// back to the raw path when the router did not match. Metric labels use
// the pattern so "/api/v1/conversations/{id}" stays one series no
// matter how many conversations exist.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil && tpl != "" {
			return tpl
		}
	}
	return r.URL.Path
}

// maskedFields runs a field map through privacy masking and converts
// the result for logrus.
func maskedFields(fields map[string]interface{}) logrus.Fields {
	out := make(logrus.Fields, len(fields))
	for k, v := range privacy.MaskSensitiveFields(fields) {
		out[k] = v
	}
	return out
}

// ObservabilityMiddleware wraps every request with a span, a request
// id, request metrics, and start/finish log lines.
func ObservabilityMiddleware(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracing.WithOtelTracing(r.Context(), "http_request")
			defer span.End()

			ctx = tracing.WithRequestID(ctx, tracing.GenerateRequestID())
			ctx = tracing.WithStartTime(ctx, time.Now())
			r = r.WithContext(ctx)

			endpoint := routeTemplate(r)
			clientIP := httputil.GetClientIP(r)

			tracing.AddSpanAttributes(ctx,
				attribute.String("http.method", r.Method),
				attribute.String("http.route", endpoint),
				attribute.String("http.target", r.URL.RequestURI()),
				attribute.String("client.address", clientIP),
				attribute.String("user_agent.original", r.Header.Get("User-Agent")),
			)

			info := tracing.GetRequestInfo(ctx)
			logger.WithFields(logrus.Fields{
				service.LogFieldRequestID: info.RequestID,
				service.LogFieldTraceID:   info.TraceID,
				service.LogFieldMethod:    r.Method,
				service.LogFieldURL:       r.URL.Path,
				service.LogFieldRemoteIP:  clientIP,
			}).Info("HTTP request started")

			requestLabels := map[string]string{"method": r.Method, "endpoint": endpoint}
			metrics.IncrementCounter("http_requests_total", requestLabels, "HTTP requests received")
			metrics.AddToCounter("http_requests_in_flight", 1, nil, "HTTP requests currently being served")
			defer metrics.AddToCounter("http_requests_in_flight", -1, nil, "HTTP requests currently being served")

			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			duration := tracing.Duration(ctx)
			status := strconv.Itoa(rec.status)

			tracing.AddSpanAttributes(ctx,
				attribute.Int("http.response.status_code", rec.status),
				attribute.Int64("http.response.size", rec.bytes),
			)
			if rec.status >= 400 {
				tracing.SetSpanStatus(ctx, codes.Error, fmt.Sprintf("HTTP %d", rec.status))
			} else {
				tracing.SetSpanStatus(ctx, codes.Ok, "")
			}

			statusLabels := map[string]string{"method": r.Method, "endpoint": endpoint, "status": status}
			metrics.RecordTimer("http_request_duration", duration, statusLabels, "HTTP request duration")
			metrics.IncrementCounter("http_responses_total", statusLabels, "HTTP responses by status")
			if rec.bytes > 0 {
				metrics.AddToCounter("http_response_bytes_total", float64(rec.bytes), requestLabels, "Bytes written in HTTP responses")
			}

			level := logrus.InfoLevel
			switch {
			case rec.status >= 500:
				level = logrus.ErrorLevel
			case rec.status >= 400:
				level = logrus.WarnLevel
			}
			logger.WithFields(logrus.Fields{
				service.LogFieldRequestID:  info.RequestID,
				service.LogFieldTraceID:    info.TraceID,
				service.LogFieldMethod:     r.Method,
				service.LogFieldURL:        r.URL.Path,
				service.LogFieldStatusCode: rec.status,
				service.LogFieldDuration:   duration.Milliseconds(),
				service.LogFieldSize:       rec.bytes,
			}).Log(level, "HTTP request completed")
		})
	}
}

// WebhookObservabilityMiddleware instruments an ingest endpoint.
// Channel names the event source carried as a metric label, such as
// "cloud". Payload fields never appear in these logs; anything that
// does go through privacy masking first.
func WebhookObservabilityMiddleware(logger *logrus.Logger, channel string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()

			ctx, span := tracing.WithOtelTracing(r.Context(), "ingest_webhook")
			defer span.End()
			r = r.WithContext(ctx)

			clientIP := httputil.GetClientIP(r)
			tracing.AddSpanAttributes(ctx,
				attribute.String("ingest.channel", channel),
				attribute.String("http.method", r.Method),
				attribute.Int64("http.request.content_length", r.ContentLength),
				attribute.String("client.address", clientIP),
			)

			metrics.IncrementCounter("ingest_requests_total", map[string]string{
				"channel": channel,
			}, "Webhook deliveries received")

			info := tracing.GetRequestInfo(ctx)
			logger.WithFields(maskedFields(map[string]interface{}{
				service.LogFieldRequestID: info.RequestID,
				service.LogFieldTraceID:   info.TraceID,
				service.LogFieldService:   "ingest",
				service.LogFieldComponent: channel,
				service.LogFieldRemoteIP:  clientIP,
				"content_length":          r.ContentLength,
			})).Info("Webhook delivery received")

			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			elapsed := time.Since(started)
			status := strconv.Itoa(rec.status)

			tracing.AddSpanAttributes(ctx,
				attribute.Int("http.response.status_code", rec.status),
				attribute.Int64("ingest.duration_ms", elapsed.Milliseconds()),
			)

			metrics.RecordTimer("ingest_webhook_duration", elapsed, map[string]string{
				"channel": channel,
				"status":  status,
			}, "Webhook processing duration")

			level := logrus.InfoLevel
			if rec.status >= 400 {
				level = logrus.ErrorLevel
				tracing.SetSpanStatus(ctx, codes.Error, fmt.Sprintf("webhook rejected with HTTP %d", rec.status))
				metrics.IncrementCounter("ingest_failures_total", map[string]string{
					"channel": channel,
					"status":  status,
				}, "Webhook deliveries rejected")
			} else {
				tracing.SetSpanStatus(ctx, codes.Ok, "")
				metrics.IncrementCounter("ingest_accepted_total", map[string]string{
					"channel": channel,
				}, "Webhook deliveries accepted")
			}

			logger.WithFields(maskedFields(map[string]interface{}{
				service.LogFieldRequestID:  info.RequestID,
				service.LogFieldTraceID:    info.TraceID,
				service.LogFieldService:    "ingest",
				service.LogFieldComponent:  channel,
				service.LogFieldStatusCode: rec.status,
				service.LogFieldDuration:   elapsed.Milliseconds(),
				service.LogFieldSize:       rec.bytes,
			})).Log(level, "Webhook delivery completed")
		})
	}
}
