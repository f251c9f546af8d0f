package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"sanjeevani-backend/internal/models"
	"sanjeevani-backend/pkg/database"
	"sanjeevani-backend/pkg/logging"
	"sanjeevani-backend/pkg/metrics"
)

// WeatherRepository provides data access for forecast blocks and spray predictions
type WeatherRepository interface {
	// Block operations
	UpsertBlocks(ctx context.Context, blocks []*models.WeatherBlock) error
	LatestSession(ctx context.Context) (time.Time, error)
	GetSessionBlocks(ctx context.Context, createdAt time.Time) ([]*models.WeatherBlock, error)

	// Prediction operations
	UpsertPredictions(ctx context.Context, predictions []*models.SprayPrediction) error
	GetFavorablePredictions(ctx context.Context, createdAt time.Time, labels []string) ([]*models.SprayPrediction, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// weatherRepository implements WeatherRepository
type weatherRepository struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewWeatherRepository creates a new weather repository
func NewWeatherRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) WeatherRepository {
	return &weatherRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

const upsertBlockQuery = `
	INSERT INTO weather_blocks (
		unique_key, session_id, day_index, block_index,
		temperature_c, humidity_percent, rainfall_mm,
		forecast_time, utc_offset_seconds, latitude, longitude,
		source, synthesized, created_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (unique_key) DO UPDATE SET
		temperature_c = EXCLUDED.temperature_c,
		humidity_percent = EXCLUDED.humidity_percent,
		rainfall_mm = EXCLUDED.rainfall_mm,
		source = EXCLUDED.source,
		synthesized = EXCLUDED.synthesized,
		created_at = EXCLUDED.created_at
`

// UpsertBlocks writes all blocks of one ingestion in a single transaction.
// Existing keys keep their forecast time and identity; values, provenance and
// the session marker are refreshed.
func (r *weatherRepository) UpsertBlocks(ctx context.Context, blocks []*models.WeatherBlock) error {
	err := r.execBatch(ctx, "upsert_weather_blocks", upsertBlockQuery, len(blocks), func(i int) []interface{} {
		b := blocks[i]
		return []interface{}{
			b.UniqueKey,
			b.SessionID,
			b.DayIndex,
			b.BlockIndex,
			b.TemperatureC,
			b.HumidityPercent,
			b.RainfallMm,
			b.ForecastTime,
			b.UTCOffsetSeconds,
			b.Latitude,
			b.Longitude,
			b.Source,
			b.Synthesized,
			b.CreatedAt,
		}
	})
	if err != nil {
		return fmt.Errorf("failed to upsert weather blocks: %w", err)
	}

	r.metrics.BlocksWrittenTotal.Add(float64(len(blocks)))
	return nil
}

// LatestSession returns the session marker of the most recent ingestion
func (r *weatherRepository) LatestSession(ctx context.Context) (time.Time, error) {
	query := `SELECT MAX(created_at) FROM weather_blocks`

	var latest sql.NullTime
	if err := r.db.GetContext(ctx, "latest_session", &latest, query); err != nil {
		return time.Time{}, fmt.Errorf("failed to get latest session: %w", err)
	}

	if !latest.Valid {
		return time.Time{}, &NotFoundError{
			Resource: "weather_session",
			ID:       "latest",
		}
	}

	return latest.Time, nil
}

// GetSessionBlocks returns every block stored with the given session marker
func (r *weatherRepository) GetSessionBlocks(ctx context.Context, createdAt time.Time) ([]*models.WeatherBlock, error) {
	query := `
		SELECT id, unique_key, session_id, day_index, block_index,
		       temperature_c, humidity_percent, rainfall_mm,
		       forecast_time, utc_offset_seconds, latitude, longitude,
		       source, synthesized, created_at
		FROM weather_blocks
		WHERE created_at = $1
		ORDER BY day_index, block_index
	`

	var blocks []*models.WeatherBlock
	if err := r.db.SelectContext(ctx, "get_session_blocks", &blocks, query, createdAt); err != nil {
		return nil, fmt.Errorf("failed to get session blocks: %w", err)
	}

	return blocks, nil
}

const upsertPredictionQuery = `
	INSERT INTO spray_predictions (
		unique_key, temperature_c, humidity_percent, rainfall_mm,
		forecast_time, utc_offset_seconds, status, created_at, updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (unique_key) DO UPDATE SET
		temperature_c = EXCLUDED.temperature_c,
		humidity_percent = EXCLUDED.humidity_percent,
		rainfall_mm = EXCLUDED.rainfall_mm,
		forecast_time = EXCLUDED.forecast_time,
		utc_offset_seconds = EXCLUDED.utc_offset_seconds,
		status = EXCLUDED.status,
		created_at = EXCLUDED.created_at,
		updated_at = EXCLUDED.updated_at
`

// UpsertPredictions writes the classification of one session in a single transaction
func (r *weatherRepository) UpsertPredictions(ctx context.Context, predictions []*models.SprayPrediction) error {
	err := r.execBatch(ctx, "upsert_spray_predictions", upsertPredictionQuery, len(predictions), func(i int) []interface{} {
		p := predictions[i]
		return []interface{}{
			p.UniqueKey,
			p.TemperatureC,
			p.HumidityPercent,
			p.RainfallMm,
			p.ForecastTime,
			p.UTCOffsetSeconds,
			p.Status,
			p.CreatedAt,
			p.UpdatedAt,
		}
	})
	if err != nil {
		return fmt.Errorf("failed to upsert spray predictions: %w", err)
	}

	return nil
}

// GetFavorablePredictions returns the predictions of a session whose status is
// one of labels, ordered by forecast time
func (r *weatherRepository) GetFavorablePredictions(ctx context.Context, createdAt time.Time, labels []string) ([]*models.SprayPrediction, error) {
	query := `
		SELECT id, unique_key, temperature_c, humidity_percent, rainfall_mm,
		       forecast_time, utc_offset_seconds, status, created_at, updated_at
		FROM spray_predictions
		WHERE created_at = $1 AND status = ANY($2)
		ORDER BY forecast_time ASC, id ASC
	`

	var predictions []*models.SprayPrediction
	if err := r.db.SelectContext(ctx, "get_favorable_predictions", &predictions, query, createdAt, pq.Array(labels)); err != nil {
		return nil, fmt.Errorf("failed to get favorable predictions: %w", err)
	}

	return predictions, nil
}

// HealthCheck performs a repository health check
func (r *weatherRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// execBatch runs query once per row inside one serializable transaction
// using a prepared statement. Either every row is written or none is.
func (r *weatherRepository) execBatch(ctx context.Context, queryType, query string, n int, args func(i int) []interface{}) error {
	if n == 0 {
		return nil
	}

	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		r.metrics.DBQueryDuration.WithLabelValues(queryType).Observe(duration.Seconds())
		r.logger.Debug(ctx, "[REPO_BATCH_UPSERT] Batch upsert finished", logging.Fields{
			"query_type":  queryType,
			"count":       n,
			"duration_ms": duration.Milliseconds(),
		})
	}()

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			r.metrics.RecordDBError("batch_exec_error")
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		r.metrics.RecordDBError("commit_error")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}

// IsNotFound reports whether err is or wraps a NotFoundError
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
