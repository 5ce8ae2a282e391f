package main

import (
	"encoding/json"
	"net/http"

	"whatscrm/internal/metrics"
	"whatscrm/internal/tracing"

	"github.com/sirupsen/logrus"
)

// handleMetrics serves a snapshot of the in-process metrics registry.
func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info := tracing.GetRequestInfo(r.Context())
		s.logger.WithFields(logrus.Fields{
			"request_id": info.RequestID,
			"trace_id":   info.TraceID,
		}).Debug("Serving metrics snapshot")

		snapshot := metrics.GetAllMetrics()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")

		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snapshot); err != nil {
			// Headers are already out; all we can do is log.
			s.logger.WithError(err).Error("Failed to encode metrics snapshot")
		}
	}
}
