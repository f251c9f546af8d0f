package services

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"sanjeevani-backend/internal/classifier"
	"sanjeevani-backend/internal/forecast"
	"sanjeevani-backend/internal/models"
	"sanjeevani-backend/internal/repository"
	"sanjeevani-backend/pkg/logging"
	"sanjeevani-backend/pkg/metrics"
)

// PredictionService classifies the blocks of the latest session
type PredictionService struct {
	repo       repository.WeatherRepository
	classifier classifier.Classifier
	logger     *logging.StructuredLogger
	metrics    *metrics.Collector
	now        func() time.Time
}

// PredictionResult summarizes one classification run
type PredictionResult struct {
	SessionCreatedAt time.Time
	Classified       int
	Favorable        int
	// Failures holds the blocks the classifier could not label; they are
	// left out of the stored predictions.
	Failures error
}

// NewPredictionService creates a new prediction service
func NewPredictionService(repo repository.WeatherRepository, c classifier.Classifier, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *PredictionService {
	return &PredictionService{
		repo:       repo,
		classifier: c,
		logger:     logger,
		metrics:    metricsCollector,
		now:        time.Now,
	}
}

// RunSprayPrediction classifies every block of the most recent session and
// upserts the labels. It is a no-op when nothing has been ingested yet.
func (s *PredictionService) RunSprayPrediction(ctx context.Context) (*PredictionResult, error) {
	latest, err := s.repo.LatestSession(ctx)
	if repository.IsNotFound(err) {
		s.logger.Info(ctx, "[PREDICT_SKIP] No forecast session stored", nil)
		return &PredictionResult{}, nil
	}
	if err != nil {
		return nil, err
	}

	blocks, err := s.repo.GetSessionBlocks(ctx, latest)
	if err != nil {
		return nil, err
	}

	result := &PredictionResult{SessionCreatedAt: latest}
	now := s.now().UTC()
	predictions := make([]*models.SprayPrediction, 0, len(blocks))

	var failures *multierror.Error
	for _, b := range blocks {
		status, err := s.classifier.Classify(ctx, classifier.FeaturesOf(b.ToBlock()))
		if err != nil {
			s.metrics.RecordClassifierError(s.classifier.Name())
			failures = multierror.Append(failures, fmt.Errorf("block %s: %w", b.UniqueKey, err))
			continue
		}

		predictions = append(predictions, models.NewSprayPrediction(b, status, now))
		s.metrics.RecordPrediction(status)
		if forecast.IsFavorable(status) {
			result.Favorable++
		}
	}

	if err := s.repo.UpsertPredictions(ctx, predictions); err != nil {
		s.logger.Error(ctx, "[PREDICT_STORE_ERROR] Failed to store predictions", logging.Fields{
			"predictions": len(predictions),
		}, err)
		return nil, err
	}

	result.Classified = len(predictions)
	result.Failures = failures.ErrorOrNil()

	fields := logging.Fields{
		"session_created_at": latest,
		"blocks":             len(blocks),
		"classified":         result.Classified,
		"favorable":          result.Favorable,
		"classifier":         s.classifier.Name(),
	}
	if result.Failures != nil {
		s.logger.Warn(ctx, "[PREDICT_PARTIAL] Some blocks could not be classified", fields)
	} else {
		s.logger.Info(ctx, "[PREDICT_COMPLETE] Spray prediction completed", fields)
	}

	return result, nil
}
