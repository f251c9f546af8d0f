package models

import (
	"database/sql"
	"time"
)

// DiagnosisPending is the disease name recorded until a diagnosis is produced
const DiagnosisPending = "Pending"

// MaxUsernameLength is the longest username plant_diagnosis can store
const MaxUsernameLength = 128

// PlantDiagnosis tracks an uploaded plant image and its diagnosis
type PlantDiagnosis struct {
	ID          int64           `json:"id" db:"id"`
	Username    string          `json:"username" db:"username"`
	ImagePath   string          `json:"image_path" db:"image_path"`
	DiseaseName string          `json:"disease_name" db:"disease_name"`
	Confidence  sql.NullFloat64 `json:"-" db:"confidence"`
	ExtraJSON   sql.NullString  `json:"-" db:"extra_json"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// ConfidenceValue returns the diagnosis confidence, or nil before one exists
func (d *PlantDiagnosis) ConfidenceValue() *float64 {
	if !d.Confidence.Valid {
		return nil
	}
	v := d.Confidence.Float64
	return &v
}

// Treatment is the pesticide recommendation for a disease
type Treatment struct {
	Disease            string `json:"disease" db:"disease"`
	ChemicalPesticides string `json:"chemical_pesticides" db:"chemical_pesticides"`
	CausePrevention    string `json:"cause_prevention" db:"cause_prevention"`
}

// DefaultTreatment is the advice given for a disease with no stored recommendation
func DefaultTreatment(disease string) *Treatment {
	return &Treatment{
		Disease:            disease,
		ChemicalPesticides: "Consult local expert",
		CausePrevention:    "Ensure good field hygiene",
	}
}

// DiagnosisDetails is stored as extra_json alongside a completed diagnosis
type DiagnosisDetails struct {
	Probabilities []float64  `json:"probabilities"`
	Treatment     *Treatment `json:"treatment"`
	ModelUsed     string     `json:"model_used,omitempty"`
}
