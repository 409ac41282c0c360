package domain

// Prescription statuses.
const (
	PrescriptionPending  = "PENDING"
	PrescriptionApproved = "APPROVED"
	PrescriptionRejected = "REJECTED"
)

// PrescribedDrug is one line of a prescription. It is stored as JSON. A
// missing DurationDays counts as one day.
type PrescribedDrug struct {
	DrugID       int64    `json:"drug_id" validate:"required,gt=0"`
	DosagePerDay float64  `json:"dosage_per_day" validate:"gte=0"`
	DurationDays *float64 `json:"duration_days,omitempty" validate:"omitempty,gte=0"`
}

type Prescription struct {
	ID              int64            `db:"id" json:"id"`
	PharmacyID      *int64           `db:"pharmacy_id" json:"pharmacy_id"`
	PatientName     string           `db:"patient_name" json:"patient_name"`
	PatientAge      *float64         `db:"patient_age" json:"patient_age"`
	PatientWeight   *float64         `db:"patient_weight" json:"patient_weight"`
	DoctorName      string           `db:"doctor_name" json:"doctor_name"`
	RawDrugs        string           `db:"prescribed_drugs" json:"-"`
	PrescribedDrugs []PrescribedDrug `db:"-" json:"prescribed_drugs"`
	Notes           *string          `db:"notes" json:"notes"`
	Status          string           `db:"status" json:"status"`
	ApprovedBy      *int64           `db:"approved_by" json:"approved_by"`
	ApprovedAt      *string          `db:"approved_at" json:"approved_at"`
	RejectionReason *string          `db:"rejection_reason" json:"rejection_reason"`
	CreatedAt       string           `db:"created_at" json:"created_at"`
}

// Interaction severities.
const (
	SeverityMild     = "mild"
	SeverityModerate = "moderate"
	SeveritySevere   = "severe"
)

type DrugInteraction struct {
	DrugID1     int64  `db:"drug_id_1" json:"drug_id_1"`
	DrugID2     int64  `db:"drug_id_2" json:"drug_id_2"`
	Severity    string `db:"severity" json:"severity"`
	Description string `db:"description" json:"description"`
}

type DosageLimit struct {
	ID           int64    `db:"id" json:"id"`
	DrugID       int64    `db:"drug_id" json:"drug_id"`
	MinAgeYears  *float64 `db:"min_age_years" json:"min_age_years"`
	MaxAgeYears  *float64 `db:"max_age_years" json:"max_age_years"`
	MinWeightKg  *float64 `db:"min_weight_kg" json:"min_weight_kg"`
	MaxDailyDose *float64 `db:"max_daily_dose" json:"max_daily_dose"`
}
