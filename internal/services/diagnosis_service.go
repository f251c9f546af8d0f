package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"sanjeevani-backend/internal/classifier"
	"sanjeevani-backend/internal/models"
	"sanjeevani-backend/internal/repository"
	"sanjeevani-backend/internal/uploads"
	"sanjeevani-backend/pkg/logging"
	"sanjeevani-backend/pkg/metrics"
)

// MinDiagnosisConfidence is the lowest model confidence accepted as a diagnosis
const MinDiagnosisConfidence = 0.60

// ErrDiagnosisUnavailable is returned by Predict when no image model is configured
var ErrDiagnosisUnavailable = errors.New("crop diagnosis is not configured")

// ImageStore persists uploaded images
type ImageStore interface {
	Save(originalName string, r io.Reader) (string, error)
	Remove(path string) error
}

// DiagnosisService records plant image uploads and diagnoses them
type DiagnosisService struct {
	repo      repository.DiagnosisRepository
	images    ImageStore
	diagnoser classifier.ImageClassifier
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
	now       func() time.Time
}

// NewDiagnosisService creates a new diagnosis service. diagnoser may be nil,
// in which case uploads still work and Predict reports ErrDiagnosisUnavailable.
func NewDiagnosisService(repo repository.DiagnosisRepository, images ImageStore, diagnoser classifier.ImageClassifier, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *DiagnosisService {
	return &DiagnosisService{
		repo:      repo,
		images:    images,
		diagnoser: diagnoser,
		logger:    logger,
		metrics:   metricsCollector,
		now:       time.Now,
	}
}

// Upload stores a verified image and records a pending diagnosis for it.
// Rejected files are reported as ValidationError and never kept on disk.
func (s *DiagnosisService) Upload(ctx context.Context, username, filename string, r io.Reader) (*models.PlantDiagnosis, error) {
	if utf8.RuneCountInString(username) > models.MaxUsernameLength {
		s.metrics.RecordUpload("rejected")
		return nil, &models.ValidationError{
			Field:   "username",
			Value:   username,
			Message: fmt.Sprintf("username must be at most %d characters", models.MaxUsernameLength),
		}
	}
	if !uploads.AllowedFile(filename) {
		s.metrics.RecordUpload("rejected")
		return nil, &models.ValidationError{
			Field:   "image",
			Value:   filename,
			Message: "only png, jpg and jpeg images are accepted",
		}
	}

	path, err := s.images.Save(filename, r)
	if err != nil {
		if errors.Is(err, uploads.ErrInvalidImage) || errors.Is(err, uploads.ErrTooLarge) || errors.Is(err, uploads.ErrInvalidFileType) {
			s.metrics.RecordUpload("rejected")
			return nil, &models.ValidationError{
				Field:   "image",
				Value:   filename,
				Message: err.Error(),
			}
		}
		s.metrics.RecordUpload("failed")
		return nil, err
	}

	now := s.now().UTC()
	d := &models.PlantDiagnosis{
		Username:    username,
		ImagePath:   path,
		DiseaseName: models.DiagnosisPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.CreateDiagnosis(ctx, d); err != nil {
		s.metrics.RecordUpload("failed")
		if rmErr := s.images.Remove(path); rmErr != nil {
			s.logger.Warn(ctx, "[UPLOAD_CLEANUP_ERROR] Failed to remove orphaned upload", logging.Fields{
				"image_path": path,
				"error":      rmErr.Error(),
			})
		}
		return nil, err
	}

	s.metrics.RecordUpload("accepted")
	s.logger.Info(ctx, "[UPLOAD_COMPLETE] Image stored for diagnosis", logging.Fields{
		"diagnosis_id": d.ID,
		"username":     username,
		"image_path":   path,
	})

	return d, nil
}

// Get returns a diagnosis by ID
func (s *DiagnosisService) Get(ctx context.Context, id int64) (*models.PlantDiagnosis, error) {
	return s.repo.GetDiagnosis(ctx, id)
}

// PredictRequest diagnoses either a stored upload (DiagnosisID) or a new
// image (Filename and Image)
type PredictRequest struct {
	Crop        string
	DiagnosisID int64
	Username    string
	Filename    string
	Image       io.Reader
}

// PredictOutcome reports a diagnosis attempt. Accepted is false when the photo
// shows a different crop or the model is not confident enough; Detail then
// explains why and Label holds what the model saw.
type PredictOutcome struct {
	Accepted      bool
	Detail        string
	DiagnosisID   int64
	Label         string
	Confidence    float64
	Treatment     *models.Treatment
	CreatedNewRow bool
}

// Predict verifies the photo shows the selected crop, diagnoses its disease
// and stores the result with a treatment recommendation
func (s *DiagnosisService) Predict(ctx context.Context, req PredictRequest) (*PredictOutcome, error) {
	if s.diagnoser == nil {
		return nil, ErrDiagnosisUnavailable
	}
	if !classifier.IsKnownCrop(req.Crop) {
		s.metrics.RecordDiagnosis("rejected")
		return nil, &models.ValidationError{
			Field:   "crop",
			Value:   req.Crop,
			Message: fmt.Sprintf("unknown crop %q, choose one of %v", req.Crop, classifier.Crops),
		}
	}

	d, created, err := s.diagnosisFor(ctx, req)
	if err != nil {
		return nil, err
	}

	outcome := &PredictOutcome{DiagnosisID: d.ID, CreatedNewRow: created}
	log := s.logger.WithFields(logging.Fields{
		"diagnosis_id": d.ID,
		"crop":         req.Crop,
	})

	// A failed crop check does not block the diagnosis
	detected, err := s.diagnoser.IdentifyCrop(ctx, d.ImagePath)
	if err != nil {
		log.Warn(ctx, "[DIAGNOSE_VERIFY_ERROR] Crop verification skipped", logging.Fields{
			"error": err.Error(),
		})
	} else if classifier.NormalizeCropName(detected.Label) != classifier.NormalizeCropName(req.Crop) {
		s.metrics.RecordDiagnosis("crop_mismatch")
		outcome.Label = detected.Label
		outcome.Confidence = detected.Confidence
		outcome.Detail = fmt.Sprintf("Mismatch: Selected %s, Detected %s (%.2f)", req.Crop, detected.Label, detected.Confidence)
		return outcome, nil
	}

	result, err := s.diagnoser.DiagnoseDisease(ctx, d.ImagePath, req.Crop)
	if err != nil {
		s.metrics.RecordDiagnosis("failed")
		log.Error(ctx, "[DIAGNOSE_ERROR] Disease model failed", nil, err)
		return nil, fmt.Errorf("failed to diagnose image: %w", err)
	}

	outcome.Label = result.Label
	outcome.Confidence = result.Confidence
	if result.Confidence < MinDiagnosisConfidence {
		s.metrics.RecordDiagnosis("low_confidence")
		outcome.Detail = fmt.Sprintf("Low confidence (%.2f). Please upload a better image.", result.Confidence)
		return outcome, nil
	}

	outcome.Treatment = s.treatmentFor(ctx, result.Label)

	extra, err := json.Marshal(models.DiagnosisDetails{
		Probabilities: result.Probabilities,
		Treatment:     outcome.Treatment,
		ModelUsed:     result.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode diagnosis details: %w", err)
	}

	d.DiseaseName = result.Label
	d.Confidence = sql.NullFloat64{Float64: result.Confidence, Valid: true}
	d.ExtraJSON = sql.NullString{String: string(extra), Valid: true}
	d.UpdatedAt = s.now().UTC()

	if err := s.repo.UpdateDiagnosis(ctx, d); err != nil {
		s.metrics.RecordDiagnosis("failed")
		return nil, err
	}

	s.metrics.RecordDiagnosis("diagnosed")
	outcome.Accepted = true
	log.Info(ctx, "[DIAGNOSE_COMPLETE] Diagnosis stored", logging.Fields{
		"disease_name": result.Label,
		"confidence":   result.Confidence,
	})

	return outcome, nil
}

// diagnosisFor loads the referenced diagnosis or records the new upload
func (s *DiagnosisService) diagnosisFor(ctx context.Context, req PredictRequest) (*models.PlantDiagnosis, bool, error) {
	if req.DiagnosisID > 0 {
		d, err := s.repo.GetDiagnosis(ctx, req.DiagnosisID)
		if err != nil {
			return nil, false, err
		}
		return d, false, nil
	}

	if req.Image == nil {
		return nil, false, &models.ValidationError{
			Field:   "image",
			Message: "an image or diagnosis_id is required",
		}
	}

	d, err := s.Upload(ctx, req.Username, req.Filename, req.Image)
	if err != nil {
		return nil, false, err
	}
	return d, true, nil
}

// treatmentFor returns the stored recommendation, or the default when none exists
func (s *DiagnosisService) treatmentFor(ctx context.Context, disease string) *models.Treatment {
	t, err := s.repo.GetTreatment(ctx, disease)
	if err == nil {
		return t
	}
	if !repository.IsNotFound(err) {
		s.logger.Warn(ctx, "[DIAGNOSE_TREATMENT_ERROR] Using default treatment", logging.Fields{
			"disease_name": disease,
			"error":        err.Error(),
		})
	}
	return models.DefaultTreatment(disease)
}
