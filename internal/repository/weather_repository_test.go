package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sanjeevani-backend/internal/models"
	"sanjeevani-backend/pkg/database"
	"sanjeevani-backend/pkg/logging"
	"sanjeevani-backend/pkg/metrics"
)

type fixture struct {
	db      *database.PostgresDB
	mock    sqlmock.Sqlmock
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := logging.NewStructuredLogger("test", "0", logging.DebugLevel)
	logger.SetOutput(io.Discard)
	collector := metrics.NewCollector("test", prometheus.NewRegistry())

	db := database.Wrap(sqlx.NewDb(conn, "postgres"), &database.Config{Database: "spray"}, logger, collector)
	t.Cleanup(func() { conn.Close() })

	return &fixture{db: db, mock: mock, logger: logger, metrics: collector}
}

var sessionMarker = time.Date(2026, 3, 10, 6, 15, 0, 123000, time.UTC)

func sampleBlocks() []*models.WeatherBlock {
	return []*models.WeatherBlock{
		{
			UniqueKey: "abc123_1_1", SessionID: "abc123", DayIndex: 1, BlockIndex: 1,
			TemperatureC: 23, HumidityPercent: 62.5, RainfallMm: 1,
			ForecastTime: time.Date(2026, 3, 9, 23, 30, 0, 0, time.UTC), UTCOffsetSeconds: 19800,
			Latitude: 12.97, Longitude: 77.59, Source: "OpenWeatherMap", CreatedAt: sessionMarker,
		},
		{
			UniqueKey: "abc123_1_2", SessionID: "abc123", DayIndex: 1, BlockIndex: 2,
			ForecastTime: time.Date(2026, 3, 10, 4, 30, 0, 0, time.UTC), UTCOffsetSeconds: 19800,
			Latitude: 12.97, Longitude: 77.59, Source: "OpenWeatherMap", Synthesized: true, CreatedAt: sessionMarker,
		},
	}
}

func TestWeatherRepository_UpsertBlocks(t *testing.T) {
	f := newFixture(t)
	repo := NewWeatherRepository(f.db, f.logger, f.metrics)
	blocks := sampleBlocks()

	f.mock.ExpectBegin()
	prep := f.mock.ExpectPrepare(`INSERT INTO weather_blocks .* ON CONFLICT \(unique_key\) DO UPDATE SET`)
	for _, b := range blocks {
		prep.ExpectExec().
			WithArgs(b.UniqueKey, b.SessionID, b.DayIndex, b.BlockIndex,
				b.TemperatureC, b.HumidityPercent, b.RainfallMm,
				b.ForecastTime, b.UTCOffsetSeconds, b.Latitude, b.Longitude,
				b.Source, b.Synthesized, b.CreatedAt).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	f.mock.ExpectCommit()

	require.NoError(t, repo.UpsertBlocks(context.Background(), blocks))
	assert.NoError(t, f.mock.ExpectationsWereMet())
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.BlocksWrittenTotal))
}

func TestWeatherRepository_UpsertBlocksRollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	repo := NewWeatherRepository(f.db, f.logger, f.metrics)

	f.mock.ExpectBegin()
	prep := f.mock.ExpectPrepare(`INSERT INTO weather_blocks`)
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WillReturnError(errors.New("serialization failure"))
	f.mock.ExpectRollback()

	err := repo.UpsertBlocks(context.Background(), sampleBlocks())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to upsert weather blocks")
	assert.NoError(t, f.mock.ExpectationsWereMet())
	assert.Zero(t, testutil.ToFloat64(f.metrics.BlocksWrittenTotal))
}

func TestWeatherRepository_UpsertBlocksEmptyIsNoop(t *testing.T) {
	f := newFixture(t)
	repo := NewWeatherRepository(f.db, f.logger, f.metrics)

	require.NoError(t, repo.UpsertBlocks(context.Background(), nil))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestWeatherRepository_LatestSession(t *testing.T) {
	tests := []struct {
		name         string
		rows         *sqlmock.Rows
		wantNotFound bool
	}{
		{"existing session", sqlmock.NewRows([]string{"max"}).AddRow(sessionMarker), false},
		{"empty table", sqlmock.NewRows([]string{"max"}).AddRow(nil), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			repo := NewWeatherRepository(f.db, f.logger, f.metrics)

			f.mock.ExpectQuery(`SELECT MAX\(created_at\) FROM weather_blocks`).WillReturnRows(tt.rows)

			got, err := repo.LatestSession(context.Background())

			if tt.wantNotFound {
				require.Error(t, err)
				assert.True(t, IsNotFound(err))
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(sessionMarker))
		})
	}
}

func TestWeatherRepository_GetSessionBlocks(t *testing.T) {
	f := newFixture(t)
	repo := NewWeatherRepository(f.db, f.logger, f.metrics)

	columns := []string{
		"id", "unique_key", "session_id", "day_index", "block_index",
		"temperature_c", "humidity_percent", "rainfall_mm",
		"forecast_time", "utc_offset_seconds", "latitude", "longitude",
		"source", "synthesized", "created_at",
	}
	rows := sqlmock.NewRows(columns).
		AddRow(1, "abc123_1_1", "abc123", 1, 1, 23.0, 62.5, 1.0,
			time.Date(2026, 3, 9, 23, 30, 0, 0, time.UTC), 19800, 12.97, 77.59,
			"OpenWeatherMap", false, sessionMarker)

	f.mock.ExpectQuery(`FROM weather_blocks\s+WHERE created_at = \$1`).
		WithArgs(sessionMarker).
		WillReturnRows(rows)

	blocks, err := repo.GetSessionBlocks(context.Background(), sessionMarker)

	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "abc123_1_1", blocks[0].UniqueKey)
	assert.Equal(t, 62.5, blocks[0].HumidityPercent)
	assert.Equal(t, 5, blocks[0].LocalForecastTime().Hour())
}

func TestWeatherRepository_UpsertPredictions(t *testing.T) {
	f := newFixture(t)
	repo := NewWeatherRepository(f.db, f.logger, f.metrics)

	now := sessionMarker.Add(time.Minute)
	predictions := []*models.SprayPrediction{
		models.NewSprayPrediction(sampleBlocks()[0], "1", now),
	}

	f.mock.ExpectBegin()
	f.mock.ExpectPrepare(`INSERT INTO spray_predictions .* ON CONFLICT \(unique_key\)`).
		ExpectExec().
		WithArgs("abc123_1_1", 23.0, 62.5, 1.0, predictions[0].ForecastTime, 19800, "1", sessionMarker, now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectCommit()

	require.NoError(t, repo.UpsertPredictions(context.Background(), predictions))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestWeatherRepository_GetFavorablePredictions(t *testing.T) {
	f := newFixture(t)
	repo := NewWeatherRepository(f.db, f.logger, f.metrics)

	columns := []string{
		"id", "unique_key", "temperature_c", "humidity_percent", "rainfall_mm",
		"forecast_time", "utc_offset_seconds", "status", "created_at", "updated_at",
	}
	rows := sqlmock.NewRows(columns).
		AddRow(7, "abc123_1_2", 26.0, 58.0, 0.0, time.Date(2026, 3, 10, 4, 30, 0, 0, time.UTC), 19800, "1", sessionMarker, sessionMarker).
		AddRow(8, "abc123_1_3", 24.0, 66.0, 0.0, time.Date(2026, 3, 10, 10, 30, 0, 0, time.UTC), 19800, "1.0", sessionMarker, sessionMarker)

	f.mock.ExpectQuery(`FROM spray_predictions\s+WHERE created_at = \$1 AND status = ANY\(\$2\)`).
		WithArgs(sessionMarker, sqlmock.AnyArg()).
		WillReturnRows(rows)

	got, err := repo.GetFavorablePredictions(context.Background(), sessionMarker, []string{"1", "1.0"})

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1.0", got[1].Status)
	assert.Equal(t, 16, got[1].ToClassifiedBlock().ReferenceTime.Hour())
}

func TestWeatherRepository_QueryErrorsAreWrapped(t *testing.T) {
	f := newFixture(t)
	repo := NewWeatherRepository(f.db, f.logger, f.metrics)

	f.mock.ExpectQuery(`FROM spray_predictions`).WillReturnError(errors.New("relation does not exist"))

	_, err := repo.GetFavorablePredictions(context.Background(), sessionMarker, []string{"1"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get favorable predictions")
	assert.False(t, IsNotFound(err))
}
