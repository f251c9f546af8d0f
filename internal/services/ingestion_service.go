package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sanjeevani-backend/internal/forecast"
	"sanjeevani-backend/internal/models"
	"sanjeevani-backend/internal/repository"
	"sanjeevani-backend/pkg/logging"
	"sanjeevani-backend/pkg/metrics"
)

// ForecastSource fetches a raw multi-day forecast for a location
type ForecastSource interface {
	Name() string
	FetchForecast(ctx context.Context, latitude, longitude float64) (forecast.Forecast, error)
}

// IngestionService turns provider forecasts into stored operational blocks
type IngestionService struct {
	source  ForecastSource
	repo    repository.WeatherRepository
	label   string
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	now     func() time.Time

	// sessionLocks serializes captures of the same session id. An entry
	// lives only while a capture holds or waits for it.
	locksMu      sync.Mutex
	sessionLocks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// CaptureRequest identifies the location and session of one ingestion
type CaptureRequest struct {
	Latitude  float64
	Longitude float64
	SessionID string
}

// CaptureResult contains ingestion statistics
type CaptureResult struct {
	SessionID        string
	SessionCreatedAt time.Time
	Days             int
	Blocks           int
	Synthesized      int
	AcceptedSamples  int
	RejectedSamples  int
	Duration         time.Duration
}

// NewIngestionService creates a new ingestion service. sourceLabel is the
// provenance stored with every block.
func NewIngestionService(source ForecastSource, repo repository.WeatherRepository, sourceLabel string, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *IngestionService {
	if sourceLabel == "" {
		sourceLabel = source.Name()
	}
	return &IngestionService{
		source:  source,
		repo:    repo,
		label:   sourceLabel,
		logger:  logger,
		metrics: metricsCollector,
		now:     time.Now,

		sessionLocks: make(map[string]*sessionLock),
	}
}

// lockSession blocks until no other capture holds id and returns the release
// func. The entry is dropped once its last holder or waiter releases it.
func (s *IngestionService) lockSession(id string) func() {
	s.locksMu.Lock()
	l, ok := s.sessionLocks[id]
	if !ok {
		l = &sessionLock{}
		s.sessionLocks[id] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.sessionLocks, id)
		}
		s.locksMu.Unlock()
	}
}

func (s *IngestionService) heldSessionLocks() int {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	return len(s.sessionLocks)
}

// CaptureForecast fetches the forecast for a location and stores its
// operational blocks under the request's session id. Every block is keyed
// before anything is written, so an invalid session never leaves partial rows.
func (s *IngestionService) CaptureForecast(ctx context.Context, req CaptureRequest) (*CaptureResult, error) {
	if err := forecast.ValidateSessionID(req.SessionID); err != nil {
		s.metrics.RecordIngestion("invalid")
		return nil, &models.ValidationError{
			Field:   "session_id",
			Value:   req.SessionID,
			Message: err.Error(),
		}
	}

	ctx = logging.WithSessionID(ctx, req.SessionID)
	log := s.logger.WithFields(logging.Fields{
		"latitude":  req.Latitude,
		"longitude": req.Longitude,
		"provider":  s.source.Name(),
	})

	unlock := s.lockSession(req.SessionID)
	defer unlock()

	timer := s.metrics.NewTimer(s.metrics.IngestionDuration)
	log.Info(ctx, "[INGEST_START] Starting forecast capture", logging.Fields{
		"stage": "FETCH",
	})

	raw, err := s.source.FetchForecast(ctx, req.Latitude, req.Longitude)
	if err != nil {
		s.metrics.RecordIngestion("failed")
		s.metrics.RecordIngestionError("provider_error")
		log.Error(ctx, "[INGEST_FETCH_ERROR] Forecast fetch failed", nil, err)
		return nil, fmt.Errorf("failed to fetch forecast: %w", err)
	}

	placed, rejected := forecast.Partition(raw)
	blocks := forecast.Aggregate(placed, raw.Latitude, raw.Longitude)
	s.metrics.RecordSamples(len(placed), rejected)

	result := &CaptureResult{
		SessionID:       req.SessionID,
		Blocks:          len(blocks),
		Days:            len(blocks) / forecast.BlocksPerDay,
		AcceptedSamples: len(placed),
		RejectedSamples: rejected,
	}

	if len(blocks) == 0 {
		result.Duration = timer.ObserveDuration()
		s.metrics.RecordIngestion("empty")
		log.Warn(ctx, "[INGEST_EMPTY] Forecast produced no blocks", logging.Fields{
			"samples":  len(raw.Samples),
			"rejected": rejected,
		})
		return result, nil
	}

	createdAt := s.now().UTC().Truncate(time.Microsecond)
	rows := make([]*models.WeatherBlock, 0, len(blocks))
	for _, b := range blocks {
		row, err := models.NewWeatherBlock(b, req.SessionID, s.label, createdAt)
		if err != nil {
			s.metrics.RecordIngestion("failed")
			s.metrics.RecordIngestionError("key_error")
			return nil, fmt.Errorf("failed to key block %d/%d: %w", b.DayIndex, b.BlockIndex, err)
		}
		if b.Synthesized {
			result.Synthesized++
		}
		rows = append(rows, row)
	}

	if err := s.repo.UpsertBlocks(ctx, rows); err != nil {
		s.metrics.RecordIngestion("failed")
		s.metrics.RecordIngestionError("store_error")
		log.Error(ctx, "[INGEST_STORE_ERROR] Failed to store blocks", logging.Fields{
			"blocks": len(rows),
		}, err)
		return nil, err
	}

	s.metrics.BlocksSynthesizedTotal.Add(float64(result.Synthesized))
	s.metrics.RecordIngestion("success")
	result.SessionCreatedAt = createdAt
	result.Duration = timer.ObserveDuration()

	log.Info(ctx, "[INGEST_COMPLETE] Forecast capture completed", logging.Fields{
		"days":             result.Days,
		"blocks":           result.Blocks,
		"synthesized":      result.Synthesized,
		"accepted_samples": result.AcceptedSamples,
		"rejected_samples": result.RejectedSamples,
		"duration_ms":      result.Duration.Milliseconds(),
		"stage":            "COMPLETE",
	})

	return result, nil
}
