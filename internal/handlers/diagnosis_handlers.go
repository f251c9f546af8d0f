package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/gorilla/mux"

	"sanjeevani-backend/internal/models"
	"sanjeevani-backend/internal/repository"
	"sanjeevani-backend/internal/services"
	"sanjeevani-backend/pkg/logging"
	"sanjeevani-backend/pkg/metrics"
)

const defaultUsername = "anonymous"

// DiagnosisRecorder stores uploads, diagnoses them and reads them back
type DiagnosisRecorder interface {
	Upload(ctx context.Context, username, filename string, r io.Reader) (*models.PlantDiagnosis, error)
	Get(ctx context.Context, id int64) (*models.PlantDiagnosis, error)
	Predict(ctx context.Context, req services.PredictRequest) (*services.PredictOutcome, error)
}

// DiagnosisHandler handles plant image endpoints
type DiagnosisHandler struct {
	base
	diagnoses DiagnosisRecorder
	maxBytes  int64
}

// NewDiagnosisHandler creates a new diagnosis handler. maxBytes bounds the
// accepted image size.
func NewDiagnosisHandler(diagnoses DiagnosisRecorder, maxBytes int64, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *DiagnosisHandler {
	return &DiagnosisHandler{
		base:      base{logger: logger, metrics: metricsCollector},
		diagnoses: diagnoses,
		maxBytes:  maxBytes,
	}
}

// UploadResponse is the body of a successful POST /upload-image
type UploadResponse struct {
	Success     bool   `json:"success"`
	DiagnosisID int64  `json:"diagnosis_id"`
	FilePath    string `json:"file_path"`
	Message     string `json:"message"`
}

// DiagnosisView is the public form of a stored diagnosis
type DiagnosisView struct {
	ID          int64           `json:"id"`
	Username    string          `json:"username"`
	ImagePath   string          `json:"image_path"`
	DiseaseName string          `json:"disease_name"`
	Confidence  *float64        `json:"confidence"`
	Extra       json.RawMessage `json:"extra_json,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// PredictResponse is the body of an accepted POST /predict/{crop}
type PredictResponse struct {
	Success        bool              `json:"success"`
	DiagnosisID    int64             `json:"diagnosis_id"`
	PredictedLabel string            `json:"predicted_label"`
	Confidence     float64           `json:"confidence"`
	TreatmentInfo  *models.Treatment `json:"treatment_info"`
	CreatedNewRow  bool              `json:"created_new_row"`
}

// PredictRejection is the body of POST /predict/{crop} when the photo shows
// another crop or the diagnosis is not confident enough
type PredictRejection struct {
	Success     bool    `json:"success"`
	Match       bool    `json:"match"`
	Detail      string  `json:"detail"`
	Detected    string  `json:"detected"`
	Confidence  float64 `json:"confidence"`
	DiagnosisID int64   `json:"diagnosis_id"`
}

// formUsername reads the optional username field
func formUsername(r *http.Request) (string, error) {
	username := r.FormValue("username")
	if username == "" {
		return defaultUsername, nil
	}
	if utf8.RuneCountInString(username) > models.MaxUsernameLength {
		return "", fmt.Errorf("username must be at most %d characters", models.MaxUsernameLength)
	}
	return username, nil
}

// UploadImage handles POST /upload-image
func (h *DiagnosisHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/upload-image"
	ctx := r.Context()
	defer h.observe(endpoint)()

	// headroom for the multipart envelope and form fields
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)

	file, header, err := r.FormFile("image")
	if err != nil {
		h.metrics.RecordAPIError("bad_request", endpoint)
		message := "No file selected"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			message = "file exceeds upload limit"
		}
		h.sendError(w, r, endpoint, message, http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Filename == "" {
		h.metrics.RecordAPIError("bad_request", endpoint)
		h.sendError(w, r, endpoint, "No file selected", http.StatusBadRequest)
		return
	}

	username, err := formUsername(r)
	if err != nil {
		h.metrics.RecordAPIError("validation_error", endpoint)
		h.sendError(w, r, endpoint, err.Error(), http.StatusBadRequest)
		return
	}

	d, err := h.diagnoses.Upload(ctx, username, header.Filename, file)
	if err != nil {
		var ve *models.ValidationError
		if errors.As(err, &ve) {
			h.metrics.RecordAPIError("validation_error", endpoint)
			h.sendError(w, r, endpoint, ve.Message, http.StatusBadRequest)
			return
		}
		h.logger.Error(ctx, "[API_UPLOAD_ERROR] Failed to store upload", logging.Fields{
			"filename": header.Filename,
		}, err)
		h.metrics.RecordAPIError("internal_error", endpoint)
		h.sendError(w, r, endpoint, "failed to store image", http.StatusInternalServerError)
		return
	}

	h.sendOK(w, r, endpoint, UploadResponse{
		Success:     true,
		DiagnosisID: d.ID,
		FilePath:    filepath.ToSlash(d.ImagePath),
		Message:     "Uploaded",
	})
}

// GetDiagnosis handles GET /diagnosis/{id}
func (h *DiagnosisHandler) GetDiagnosis(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/diagnosis/{id}"
	ctx := r.Context()
	defer h.observe(endpoint)()

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		h.metrics.RecordAPIError("bad_request", endpoint)
		h.sendError(w, r, endpoint, "invalid diagnosis id", http.StatusBadRequest)
		return
	}

	d, err := h.diagnoses.Get(ctx, id)
	if repository.IsNotFound(err) {
		h.sendError(w, r, endpoint, "Not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error(ctx, "[API_GET_DIAGNOSIS_ERROR] Failed to get diagnosis", logging.Fields{
			"diagnosis_id": id,
		}, err)
		h.metrics.RecordAPIError("internal_error", endpoint)
		h.sendError(w, r, endpoint, "failed to retrieve diagnosis", http.StatusInternalServerError)
		return
	}

	view := DiagnosisView{
		ID:          d.ID,
		Username:    d.Username,
		ImagePath:   filepath.ToSlash(d.ImagePath),
		DiseaseName: d.DiseaseName,
		Confidence:  d.ConfidenceValue(),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if d.ExtraJSON.Valid && json.Valid([]byte(d.ExtraJSON.String)) {
		view.Extra = json.RawMessage(d.ExtraJSON.String)
	}

	h.sendOK(w, r, endpoint, map[string]interface{}{
		"success":   true,
		"diagnosis": view,
	})
}

// PredictCrop handles POST /predict/{crop}. The form carries either the
// diagnosis_id of an earlier upload or a new image.
func (h *DiagnosisHandler) PredictCrop(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/predict/{crop}"
	ctx := r.Context()
	defer h.observe(endpoint)()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		h.metrics.RecordAPIError("bad_request", endpoint)
		message := "invalid form body"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			message = "file exceeds upload limit"
		}
		h.sendError(w, r, endpoint, message, http.StatusBadRequest)
		return
	}

	username, err := formUsername(r)
	if err != nil {
		h.metrics.RecordAPIError("validation_error", endpoint)
		h.sendError(w, r, endpoint, err.Error(), http.StatusBadRequest)
		return
	}

	req := services.PredictRequest{Crop: mux.Vars(r)["crop"], Username: username}
	if raw := r.FormValue("diagnosis_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			h.metrics.RecordAPIError("bad_request", endpoint)
			h.sendError(w, r, endpoint, "invalid diagnosis id", http.StatusBadRequest)
			return
		}
		req.DiagnosisID = id
	} else {
		file, header, err := r.FormFile("image")
		switch {
		case err == nil:
			defer file.Close()
			req.Filename, req.Image = header.Filename, file
		case !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart):
			h.metrics.RecordAPIError("bad_request", endpoint)
			h.sendError(w, r, endpoint, "invalid image part", http.StatusBadRequest)
			return
		}
	}

	out, err := h.diagnoses.Predict(ctx, req)
	if err != nil {
		var ve *models.ValidationError
		switch {
		case errors.As(err, &ve):
			h.metrics.RecordAPIError("validation_error", endpoint)
			h.sendError(w, r, endpoint, ve.Message, http.StatusBadRequest)
		case repository.IsNotFound(err):
			h.sendError(w, r, endpoint, "Diagnosis ID not found", http.StatusNotFound)
		case errors.Is(err, services.ErrDiagnosisUnavailable):
			h.metrics.RecordAPIError("unavailable", endpoint)
			h.sendError(w, r, endpoint, err.Error(), http.StatusServiceUnavailable)
		default:
			h.logger.Error(ctx, "[API_PREDICT_CROP_ERROR] Diagnosis failed", logging.Fields{
				"crop":         req.Crop,
				"diagnosis_id": req.DiagnosisID,
			}, err)
			h.metrics.RecordAPIError("internal_error", endpoint)
			h.sendError(w, r, endpoint, "failed to diagnose image", http.StatusInternalServerError)
		}
		return
	}

	if !out.Accepted {
		h.sendOK(w, r, endpoint, PredictRejection{
			Success:     false,
			Match:       false,
			Detail:      out.Detail,
			Detected:    out.Label,
			Confidence:  out.Confidence,
			DiagnosisID: out.DiagnosisID,
		})
		return
	}

	h.sendOK(w, r, endpoint, PredictResponse{
		Success:        true,
		DiagnosisID:    out.DiagnosisID,
		PredictedLabel: out.Label,
		Confidence:     out.Confidence,
		TreatmentInfo:  out.Treatment,
		CreatedNewRow:  out.CreatedNewRow,
	})
}

// RegisterRoutes registers all diagnosis API routes
func (h *DiagnosisHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/upload-image", h.UploadImage).Methods("POST")
	router.HandleFunc("/predict/{crop}", h.PredictCrop).Methods("POST")
	router.HandleFunc("/diagnosis/{id}", h.GetDiagnosis).Methods("GET")
}
