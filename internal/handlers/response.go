package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"sanjeevani-backend/pkg/logging"
	"sanjeevani-backend/pkg/metrics"
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// HealthChecker reports whether a backing store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// base carries the response helpers shared by all handlers
type base struct {
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// observe records the request duration for endpoint when the returned func runs
func (h *base) observe(endpoint string) func() {
	start := time.Now()
	return func() {
		h.metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}

// sendJSON sends a JSON response
func (h *base) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendOK records a successful request and sends data
func (h *base) sendOK(w http.ResponseWriter, r *http.Request, endpoint string, data interface{}) {
	h.metrics.RecordAPIRequest(endpoint, r.Method, "200")
	h.sendJSON(w, data, http.StatusOK)
}

// sendError sends an error response
func (h *base) sendError(w http.ResponseWriter, r *http.Request, endpoint, message string, statusCode int) {
	h.metrics.RecordAPIRequest(endpoint, r.Method, strconv.Itoa(statusCode))

	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}
