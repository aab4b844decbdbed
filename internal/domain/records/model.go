package records

import (
	"time"

	"github.com/google/uuid"
)

// Field names as submitted by the create form and persisted in JSON.
const (
	FieldID            = "id"
	FieldPatientName   = "patient_name"
	FieldAge           = "age"
	FieldGender        = "gender"
	FieldHeight        = "height"
	FieldWeight        = "weight"
	FieldBloodPressure = "blood_pressure"
	FieldHeartRate     = "heart_rate"
	FieldTemperature   = "temperature"
	FieldSymptoms      = "symptoms"
	FieldDiagnosis     = "diagnosis"
	FieldCreatedAt     = "created_at"
)

// DefaultTemperature is used when the form leaves temperature blank.
const DefaultTemperature = 36.6

// CreatedAtLayout is a fixed-width UTC timestamp, so string order matches
// chronological order in listings.
const CreatedAtLayout = "2006-01-02T15:04:05.000000Z07:00"

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// MedicalRecord is one patient's submitted data. It is written once and
// never modified.
type MedicalRecord struct {
	ID            uuid.UUID `json:"id"`
	PatientName   string    `json:"patient_name"`
	Age           int       `json:"age"`
	Gender        Gender    `json:"gender"`
	Height        float64   `json:"height"`
	Weight        float64   `json:"weight"`
	BloodPressure string    `json:"blood_pressure"`
	HeartRate     *int      `json:"heart_rate"`
	Temperature   float64   `json:"temperature"`
	Symptoms      string    `json:"symptoms"`
	Diagnosis     string    `json:"diagnosis"`
	CreatedAt     string    `json:"created_at"`
}

// NewRecord validates in against Schema and builds a record with the given
// id and creation time. All field failures are reported together.
func NewRecord(in FormInput, id uuid.UUID, now time.Time) (*MedicalRecord, error) {
	vals, verr := validate(Schema, in)
	if verr != nil {
		return nil, verr
	}

	rec := &MedicalRecord{
		ID:            id,
		PatientName:   vals.str(FieldPatientName),
		Age:           vals[FieldAge].(int),
		Gender:        Gender(vals.str(FieldGender)),
		Height:        vals[FieldHeight].(float64),
		Weight:        vals[FieldWeight].(float64),
		BloodPressure: vals.str(FieldBloodPressure),
		Temperature:   DefaultTemperature,
		Symptoms:      vals.str(FieldSymptoms),
		Diagnosis:     vals.str(FieldDiagnosis),
		CreatedAt:     now.UTC().Format(CreatedAtLayout),
	}
	if hr, ok := vals[FieldHeartRate].(int); ok {
		rec.HeartRate = &hr
	}
	if t, ok := vals[FieldTemperature].(float64); ok {
		rec.Temperature = t
	}
	return rec, nil
}

func (c cleaned) str(name string) string {
	s, _ := c[name].(string)
	return s
}
