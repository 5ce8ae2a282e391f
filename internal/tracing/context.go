// Package tracing carries correlation ids through request contexts and
// wires OpenTelemetry spans around them. Log lines and exported spans
// share the same trace and span ids.
package tracing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

type requestIDKey struct{}
type traceIDKey struct{}
type spanIDKey struct{}
type startTimeKey struct{}

// RequestInfo bundles the correlation fields attached to a request.
type RequestInfo struct {
	RequestID string    `json:"request_id"`
	TraceID   string    `json:"trace_id"`
	SpanID    string    `json:"span_id"`
	StartTime time.Time `json:"start_time"`
}

// randomID returns prefix plus n random bytes in hex. When the random
// source fails it falls back to the wall clock, which stays unique
// enough for log correlation.
func randomID(prefix string, n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s%d", prefix, time.Now().UnixNano())
	}
	return prefix + hex.EncodeToString(buf)
}

// GenerateRequestID returns a fresh id for one HTTP request.
func GenerateRequestID() string {
	return randomID("req_", 8)
}

// GenerateTraceID returns a fresh id in the W3C trace id format.
func GenerateTraceID() string {
	return randomID("", 16)
}

// GenerateSpanID returns a fresh id in the W3C span id format.
func GenerateSpanID() string {
	return randomID("", 8)
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, id)
}

func WithSpanID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, spanIDKey{}, id)
}

func WithStartTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, startTimeKey{}, t)
}

func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func GetTraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey{}).(string)
	return id
}

func GetSpanID(ctx context.Context) string {
	id, _ := ctx.Value(spanIDKey{}).(string)
	return id
}

func GetStartTime(ctx context.Context) time.Time {
	t, _ := ctx.Value(startTimeKey{}).(time.Time)
	return t
}

// GetRequestInfo collects every correlation field from the context.
// Missing fields come back zero valued.
func GetRequestInfo(ctx context.Context) *RequestInfo {
	return &RequestInfo{
		RequestID: GetRequestID(ctx),
		TraceID:   GetTraceID(ctx),
		SpanID:    GetSpanID(ctx),
		StartTime: GetStartTime(ctx),
	}
}

// Duration reports how long the request has been running, zero when no
// start time was recorded.
func Duration(ctx context.Context) time.Duration {
	start := GetStartTime(ctx)
	if start.IsZero() {
		return 0
	}
	return time.Since(start)
}
