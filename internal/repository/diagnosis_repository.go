package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"sanjeevani-backend/internal/models"
	"sanjeevani-backend/pkg/database"
	"sanjeevani-backend/pkg/logging"
)

// DiagnosisRepository provides data access for plant image diagnoses
type DiagnosisRepository interface {
	CreateDiagnosis(ctx context.Context, d *models.PlantDiagnosis) error
	GetDiagnosis(ctx context.Context, id int64) (*models.PlantDiagnosis, error)
	UpdateDiagnosis(ctx context.Context, d *models.PlantDiagnosis) error
	GetTreatment(ctx context.Context, disease string) (*models.Treatment, error)
}

type diagnosisRepository struct {
	db     *database.PostgresDB
	logger *logging.StructuredLogger
}

// NewDiagnosisRepository creates a new diagnosis repository
func NewDiagnosisRepository(db *database.PostgresDB, logger *logging.StructuredLogger) DiagnosisRepository {
	return &diagnosisRepository{db: db, logger: logger}
}

// CreateDiagnosis inserts d and sets its ID
func (r *diagnosisRepository) CreateDiagnosis(ctx context.Context, d *models.PlantDiagnosis) error {
	query := `
		INSERT INTO plant_diagnosis (username, image_path, disease_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := r.db.GetContext(ctx, "create_diagnosis", &d.ID, query,
		d.Username,
		d.ImagePath,
		d.DiseaseName,
		d.CreatedAt,
		d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create diagnosis: %w", err)
	}

	r.logger.Debug(ctx, "[REPO_CREATE_DIAGNOSIS] Diagnosis created", logging.Fields{
		"diagnosis_id": d.ID,
		"username":     d.Username,
	})

	return nil
}

// GetDiagnosis retrieves a diagnosis by ID
func (r *diagnosisRepository) GetDiagnosis(ctx context.Context, id int64) (*models.PlantDiagnosis, error) {
	query := `
		SELECT id, username, image_path, disease_name, confidence, extra_json, created_at, updated_at
		FROM plant_diagnosis
		WHERE id = $1
	`

	var d models.PlantDiagnosis
	err := r.db.GetContext(ctx, "get_diagnosis", &d, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{
			Resource: "plant_diagnosis",
			ID:       strconv.FormatInt(id, 10),
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get diagnosis: %w", err)
	}

	return &d, nil
}

// UpdateDiagnosis stores the disease, confidence and details of d
func (r *diagnosisRepository) UpdateDiagnosis(ctx context.Context, d *models.PlantDiagnosis) error {
	query := `
		UPDATE plant_diagnosis
		SET disease_name = $1, confidence = $2, extra_json = $3, updated_at = $4
		WHERE id = $5
	`

	result, err := r.db.ExecContext(ctx, "update_diagnosis", query,
		d.DiseaseName,
		d.Confidence,
		d.ExtraJSON,
		d.UpdatedAt,
		d.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update diagnosis: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update diagnosis: %w", err)
	}
	if affected == 0 {
		return &NotFoundError{
			Resource: "plant_diagnosis",
			ID:       strconv.FormatInt(d.ID, 10),
		}
	}

	r.logger.Debug(ctx, "[REPO_UPDATE_DIAGNOSIS] Diagnosis updated", logging.Fields{
		"diagnosis_id": d.ID,
		"disease_name": d.DiseaseName,
	})

	return nil
}

// GetTreatment retrieves the pesticide recommendation for a disease
func (r *diagnosisRepository) GetTreatment(ctx context.Context, disease string) (*models.Treatment, error) {
	query := `
		SELECT disease, chemical_pesticides, cause_prevention
		FROM pesticide_recommendation
		WHERE disease = $1
	`

	var t models.Treatment
	err := r.db.GetContext(ctx, "get_treatment", &t, query, disease)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Resource: "pesticide_recommendation", ID: disease}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get treatment: %w", err)
	}

	return &t, nil
}
