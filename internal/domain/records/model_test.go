package records

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func validForm() FormInput {
	return FormInput{
		FieldPatientName: "Ann Lee",
		FieldAge:         "42",
		FieldGender:      "female",
		FieldHeight:      "165.5",
		FieldWeight:      "60",
	}
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNewRecord_Valid(t *testing.T) {
	id := uuid.New()
	rec, err := NewRecord(validForm(), id, fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ID != id {
		t.Errorf("ID = %s, want %s", rec.ID, id)
	}
	if rec.PatientName != "Ann Lee" || rec.Age != 42 || rec.Gender != GenderFemale {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.Height != 165.5 || rec.Weight != 60 {
		t.Errorf("height/weight = %v/%v", rec.Height, rec.Weight)
	}
	if rec.CreatedAt != "2024-03-01T12:00:00.000000Z" {
		t.Errorf("CreatedAt = %q", rec.CreatedAt)
	}
}

func TestNewRecord_Defaults(t *testing.T) {
	rec, err := NewRecord(validForm(), uuid.New(), fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Temperature != DefaultTemperature {
		t.Errorf("Temperature = %v, want %v", rec.Temperature, DefaultTemperature)
	}
	if rec.HeartRate != nil {
		t.Errorf("expected nil heart rate, got %d", *rec.HeartRate)
	}
	if rec.BloodPressure != "" || rec.Symptoms != "" || rec.Diagnosis != "" {
		t.Errorf("expected empty optional strings, got %+v", rec)
	}
}

func TestNewRecord_OptionalFields(t *testing.T) {
	in := validForm()
	in[FieldHeartRate] = "72"
	in[FieldTemperature] = "38.2"
	in[FieldBloodPressure] = "120/80"
	in[FieldSymptoms] = "cough\nfever"

	rec, err := NewRecord(in, uuid.New(), fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.HeartRate == nil || *rec.HeartRate != 72 {
		t.Errorf("HeartRate = %v", rec.HeartRate)
	}
	if rec.Temperature != 38.2 {
		t.Errorf("Temperature = %v", rec.Temperature)
	}
	if rec.BloodPressure != "120/80" {
		t.Errorf("BloodPressure = %q", rec.BloodPressure)
	}
	if rec.Symptoms != "cough\nfever" {
		t.Errorf("Symptoms = %q", rec.Symptoms)
	}
}

func TestNewRecord_AgeBounds(t *testing.T) {
	tests := []struct {
		age     string
		want    int
		wantErr bool
	}{
		{"0", 0, false},
		{"150", 150, false},
		{"150.0", 150, false},
		{"42.00", 42, false},
		{"151", 0, true},
		{"151.0", 0, true},
		{"-1", 0, true},
		{"forty", 0, true},
		{"42.5", 0, true},
		{"1e400", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.age, func(t *testing.T) {
			in := validForm()
			in[FieldAge] = tt.age

			rec, err := NewRecord(in, uuid.New(), fixedNow)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if rec.Age != tt.want {
					t.Errorf("Age = %d, want %d", rec.Age, tt.want)
				}
				return
			}
			verr, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if !verr.Has(FieldAge) {
				t.Errorf("expected error on age, got %v", verr)
			}
		})
	}
}

func TestNewRecord_HeartRateZeroFraction(t *testing.T) {
	in := validForm()
	in[FieldHeartRate] = "72.0"

	rec, err := NewRecord(in, uuid.New(), fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.HeartRate == nil || *rec.HeartRate != 72 {
		t.Errorf("HeartRate = %v, want 72", rec.HeartRate)
	}
}

func TestNewRecord_CollectsAllErrors(t *testing.T) {
	in := FormInput{
		FieldAge:         "200",
		FieldGender:      "other",
		FieldHeight:      "abc",
		FieldTemperature: "50",
	}

	_, err := NewRecord(in, uuid.New(), fixedNow)
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %v", err)
	}

	want := []string{FieldPatientName, FieldAge, FieldGender, FieldHeight, FieldWeight, FieldTemperature}
	if len(verr.Fields) != len(want) {
		t.Fatalf("expected %d errors, got %v", len(want), verr.Fields)
	}
	for i, f := range want {
		if verr.Fields[i].Field != f {
			t.Errorf("error %d on %s, want %s", i, verr.Fields[i].Field, f)
		}
	}
	if msg := verr.For(FieldAge)[0]; msg != "ensure this value is less than or equal to 150" {
		t.Errorf("age message = %q", msg)
	}
	if msg := verr.For(FieldPatientName)[0]; msg != "this field is required" {
		t.Errorf("patient_name message = %q", msg)
	}
}

func TestNewRecord_GenderAliases(t *testing.T) {
	tests := map[string]Gender{
		"M":      GenderMale,
		"f":      GenderFemale,
		"Male":   GenderMale,
		"female": GenderFemale,
	}
	for in, want := range tests {
		form := validForm()
		form[FieldGender] = in
		rec, err := NewRecord(form, uuid.New(), fixedNow)
		if err != nil {
			t.Fatalf("gender %q: unexpected error: %v", in, err)
		}
		if rec.Gender != want {
			t.Errorf("gender %q = %q, want %q", in, rec.Gender, want)
		}
	}
}

func TestNewRecord_TrimsAndLimitsStrings(t *testing.T) {
	in := validForm()
	in[FieldPatientName] = "  Ann Lee  "
	rec, err := NewRecord(in, uuid.New(), fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.PatientName != "Ann Lee" {
		t.Errorf("PatientName = %q", rec.PatientName)
	}

	in[FieldPatientName] = strings.Repeat("é", 101)
	_, err = NewRecord(in, uuid.New(), fixedNow)
	if verr, ok := err.(*ValidationError); !ok || !verr.Has(FieldPatientName) {
		t.Errorf("expected patient_name length error, got %v", err)
	}

	in[FieldPatientName] = strings.Repeat("é", 100)
	if _, err := NewRecord(in, uuid.New(), fixedNow); err != nil {
		t.Errorf("100 characters should be accepted: %v", err)
	}
}

func TestNewRecord_RejectsNonFiniteNumbers(t *testing.T) {
	for _, v := range []string{"NaN", "Inf", "-Inf"} {
		in := validForm()
		in[FieldWeight] = v
		_, err := NewRecord(in, uuid.New(), fixedNow)
		if verr, ok := err.(*ValidationError); !ok || !verr.Has(FieldWeight) {
			t.Errorf("weight %q: expected validation error, got %v", v, err)
		}
	}
}

func TestCreatedAt_SortsChronologically(t *testing.T) {
	a, _ := NewRecord(validForm(), uuid.New(), time.Date(2024, 1, 1, 9, 59, 59, 999999000, time.UTC))
	b, _ := NewRecord(validForm(), uuid.New(), time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
	c, _ := NewRecord(validForm(), uuid.New(), time.Date(2024, 1, 1, 11, 0, 0, 0, time.FixedZone("CET", 3600)))

	if !(a.CreatedAt < b.CreatedAt) {
		t.Errorf("%q should sort before %q", a.CreatedAt, b.CreatedAt)
	}
	if c.CreatedAt != b.CreatedAt {
		t.Errorf("times are normalized to UTC: %q vs %q", c.CreatedAt, b.CreatedAt)
	}
}
