package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"sanjeevani-backend/internal/forecast"
	"sanjeevani-backend/internal/services"
	"sanjeevani-backend/pkg/logging"
	"sanjeevani-backend/pkg/metrics"
)

// ForecastCapturer stores the forecast for a login session
type ForecastCapturer interface {
	CaptureForecast(ctx context.Context, req services.CaptureRequest) (*services.CaptureResult, error)
}

// SprayPredictor classifies the latest stored session
type SprayPredictor interface {
	RunSprayPrediction(ctx context.Context) (*services.PredictionResult, error)
}

// WindowFinder selects favorable spray windows
type WindowFinder interface {
	BestSprayTimes(ctx context.Context) ([]forecast.ClassifiedBlock, error)
}

// SprayHandler handles weather capture and spray window endpoints
type SprayHandler struct {
	base
	capturer  ForecastCapturer
	predictor SprayPredictor
	windows   WindowFinder
	health    HealthChecker
	validate  *validator.Validate
}

// NewSprayHandler creates a new spray handler
func NewSprayHandler(
	capturer ForecastCapturer,
	predictor SprayPredictor,
	windows WindowFinder,
	health HealthChecker,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *SprayHandler {
	return &SprayHandler{
		base:      base{logger: logger, metrics: metricsCollector},
		capturer:  capturer,
		predictor: predictor,
		windows:   windows,
		health:    health,
		validate:  newValidator(),
	}
}

// CaptureLoginRequest is the body of POST /weather/capture-login
type CaptureLoginRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	SessionID string   `json:"session_id" validate:"required,max=128,excludes=_"`
}

// CaptureLoginResponse reports the outcome of a login-time capture
type CaptureLoginResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	Blocks       int    `json:"blocks"`
	Classified   int    `json:"classified"`
	Unclassified int    `json:"unclassified,omitempty"`
}

// SprayWindow is one entry of the best-time response
type SprayWindow struct {
	TemperatureC    float64 `json:"temperature_c"`
	HumidityPercent float64 `json:"humidity_percent"`
	RainfallMm      float64 `json:"rainfall_mm"`
	ForecastDate    string  `json:"forecast_date"`
	Status          string  `json:"status"`
}

// BestTimeResponse is the body of GET /spray/best-time
type BestTimeResponse struct {
	Success bool          `json:"success"`
	Data    []SprayWindow `json:"data"`
}

// CaptureLogin handles POST /weather/capture-login. Capture and prediction
// failures are reported in a 200 body so the caller's login is never blocked.
func (h *SprayHandler) CaptureLogin(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/weather/capture-login"
	ctx := r.Context()
	defer h.observe(endpoint)()

	var req CaptureLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.metrics.RecordAPIError("bad_request", endpoint)
		h.sendError(w, r, endpoint, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.metrics.RecordAPIError("validation_error", endpoint)
		h.sendError(w, r, endpoint, validationMessage(err), http.StatusBadRequest)
		return
	}

	ctx = logging.WithSessionID(ctx, req.SessionID)

	capture, err := h.capturer.CaptureForecast(ctx, services.CaptureRequest{
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		SessionID: req.SessionID,
	})
	if err != nil {
		h.logger.Error(ctx, "[API_CAPTURE_ERROR] Weather capture failed", nil, err)
		h.metrics.RecordAPIError("capture_error", endpoint)
		h.sendOK(w, r, endpoint, CaptureLoginResponse{
			Success: false,
			Message: "weather capture failed, spray windows may be stale",
		})
		return
	}

	resp := CaptureLoginResponse{
		Success: true,
		Message: "Weather data captured and processed.",
		Blocks:  capture.Blocks,
	}

	prediction, err := h.predictor.RunSprayPrediction(ctx)
	if err != nil {
		h.logger.Error(ctx, "[API_PREDICT_ERROR] Spray prediction failed", logging.Fields{
			"blocks": capture.Blocks,
		}, err)
		h.metrics.RecordAPIError("prediction_error", endpoint)
		resp.Success = false
		resp.Message = "weather captured but spray prediction failed"
		h.sendOK(w, r, endpoint, resp)
		return
	}

	resp.Classified = prediction.Classified
	if prediction.Failures != nil {
		resp.Unclassified = capture.Blocks - prediction.Classified
		resp.Message = "Weather data captured; some blocks could not be classified."
	}

	h.sendOK(w, r, endpoint, resp)
}

// BestTime handles GET /spray/best-time
func (h *SprayHandler) BestTime(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/spray/best-time"
	ctx := r.Context()
	defer h.observe(endpoint)()

	windows, err := h.windows.BestSprayTimes(ctx)
	if err != nil {
		h.logger.Error(ctx, "[API_BEST_TIME_ERROR] Failed to select spray windows", nil, err)
		h.metrics.RecordAPIError("internal_error", endpoint)
		h.sendError(w, r, endpoint, "failed to retrieve spray windows", http.StatusInternalServerError)
		return
	}

	data := make([]SprayWindow, 0, len(windows))
	for _, b := range windows {
		data = append(data, SprayWindow{
			TemperatureC:    b.TemperatureC,
			HumidityPercent: b.HumidityPercent,
			RainfallMm:      b.RainfallMm,
			ForecastDate:    b.ReferenceTime.Format(time.RFC3339),
			Status:          b.Status,
		})
	}

	h.sendOK(w, r, endpoint, BestTimeResponse{Success: true, Data: data})
}

// HealthCheck handles GET /health
func (h *SprayHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"database":  "up",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK

	if err := h.health.HealthCheck(ctx); err != nil {
		h.logger.Warn(ctx, "[HEALTH_CHECK] Database unreachable", logging.Fields{
			"error": err.Error(),
		})
		status["status"] = "degraded"
		status["database"] = "down"
		code = http.StatusServiceUnavailable
	}

	h.sendJSON(w, status, code)
}

// Root handles GET /
func (h *SprayHandler) Root(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, map[string]string{"status": "Backend running successfully"}, http.StatusOK)
}

// RegisterRoutes registers all spray API routes
func (h *SprayHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/", h.Root).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.HandleFunc("/weather/capture-login", h.CaptureLogin).Methods("POST")
	router.HandleFunc("/spray/best-time", h.BestTime).Methods("GET")
}

// newValidator reports fields by their JSON names
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "excludes":
		return fmt.Sprintf("%s must not contain %q", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
	}
}
