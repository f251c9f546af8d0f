package services

import (
	"context"

	"sanjeevani-backend/internal/forecast"
	"sanjeevani-backend/internal/repository"
	"sanjeevani-backend/pkg/logging"
	"sanjeevani-backend/pkg/metrics"
)

// WindowService answers best-spray-time queries from stored predictions
type WindowService struct {
	repo    repository.WeatherRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewWindowService creates a new window service
func NewWindowService(repo repository.WeatherRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *WindowService {
	return &WindowService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// BestSprayTimes returns up to two favorable windows per date from the latest
// session, earliest date first. An empty store yields an empty list.
func (s *WindowService) BestSprayTimes(ctx context.Context) ([]forecast.ClassifiedBlock, error) {
	timer := s.metrics.NewTimer(s.metrics.WindowSelectionLatency)
	defer timer.ObserveDuration()

	latest, err := s.repo.LatestSession(ctx)
	if repository.IsNotFound(err) {
		return []forecast.ClassifiedBlock{}, nil
	}
	if err != nil {
		return nil, err
	}

	predictions, err := s.repo.GetFavorablePredictions(ctx, latest, forecast.FavorableLabels)
	if err != nil {
		return nil, err
	}

	candidates := make([]forecast.ClassifiedBlock, 0, len(predictions))
	for _, p := range predictions {
		candidates = append(candidates, p.ToClassifiedBlock())
	}

	windows := forecast.SelectWindows(candidates)
	s.metrics.SelectedWindowsTotal.Add(float64(len(windows)))

	s.logger.Debug(ctx, "[WINDOWS_SELECTED] Spray windows selected", logging.Fields{
		"session_created_at": latest,
		"candidates":         len(candidates),
		"selected":           len(windows),
	})

	return windows, nil
}
