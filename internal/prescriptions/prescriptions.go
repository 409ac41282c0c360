// Package prescriptions checks prescriptions against dosage limits and drug
// interactions and moves them through the approval workflow.
package prescriptions

import (
	"context"
	"errors"
	"fmt"

	"pharmacy/m/domain"
	"pharmacy/m/internal/audit"
	"pharmacy/m/internal/store"
)

var (
	ErrNotFound          = store.ErrNotFound
	ErrForbidden         = errors.New("prescription belongs to another pharmacy")
	ErrInvalidTransition = errors.New("prescription is not pending")
	ErrValidationFailed  = errors.New("prescription validation failed")
	ErrUnassigned        = errors.New("user is not assigned to a pharmacy")
)

// Store is the persistence the workflow needs.
type Store interface {
	GetDrugsByID(ctx context.Context, ids []int64) (map[int64]domain.Drug, error)
	DosageLimitsFor(ctx context.Context, ids []int64) ([]domain.DosageLimit, error)
	InteractionsAmong(ctx context.Context, ids []int64) ([]domain.DrugInteraction, error)
	CreatePrescription(ctx context.Context, p domain.Prescription) (*domain.Prescription, error)
	GetPrescription(ctx context.Context, id int64) (*domain.Prescription, error)
	ListPrescriptions(ctx context.Context, scope *int64, status string, limit int) ([]domain.Prescription, error)
	ResolvePrescription(ctx context.Context, id int64, status string, by int64, reason *string) (bool, error)
}

// Issue is one finding of Validate. Blocking issues prevent the prescription
// from being stored.
type Issue struct {
	DrugID   int64   `json:"drug_id,omitempty"`
	DrugIDs  []int64 `json:"drug_ids,omitempty"`
	Severity string  `json:"severity,omitempty"`
	Message  string  `json:"message"`
	Blocking bool    `json:"blocking"`
}

type Validation struct {
	Valid            bool    `json:"valid"`
	Issues           []Issue `json:"issues"`
	RequiresApproval bool    `json:"requires_approval"`
}

// ValidationError carries the issues of a rejected prescription.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string { return ErrValidationFailed.Error() }

func (e *ValidationError) Is(target error) bool { return target == ErrValidationFailed }

// Request is the input for Create.
type Request struct {
	PatientName     string                  `json:"patient_name" validate:"required"`
	PatientAge      *float64                `json:"patient_age" validate:"omitempty,gte=0"`
	PatientWeight   *float64                `json:"patient_weight" validate:"omitempty,gt=0"`
	DoctorName      string                  `json:"doctor_name" validate:"required"`
	PrescribedDrugs []domain.PrescribedDrug `json:"prescribed_drugs" validate:"required,min=1,dive"`
	Notes           *string                 `json:"notes"`
}

type Service struct {
	store Store
	audit *audit.Recorder
}

func NewService(st Store, recorder *audit.Recorder) *Service {
	return &Service{store: st, audit: recorder}
}

// Validate checks every prescribed drug exists and stays within the dosage
// limits that apply to the patient, and reports interactions between the
// drugs. Controlled drugs and severe interactions require approval.
func (s *Service) Validate(ctx context.Context, drugs []domain.PrescribedDrug, age, weight *float64) (*Validation, error) {
	out := &Validation{Valid: true, Issues: []Issue{}}
	if len(drugs) == 0 {
		return out, nil
	}

	ids := make([]int64, 0, len(drugs))
	for _, d := range drugs {
		ids = append(ids, d.DrugID)
	}
	catalog, err := s.store.GetDrugsByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	limits, err := s.store.DosageLimitsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	limitsByDrug := map[int64][]domain.DosageLimit{}
	for _, l := range limits {
		limitsByDrug[l.DrugID] = append(limitsByDrug[l.DrugID], l)
	}

	for _, d := range drugs {
		drug, ok := catalog[d.DrugID]
		if !ok {
			out.Issues = append(out.Issues, Issue{DrugID: d.DrugID, Message: "Drug not found", Blocking: true})
			continue
		}
		if drug.ControlledDrug {
			out.RequiresApproval = true
		}
		if age == nil && weight == nil {
			continue
		}
		if issue := checkDosage(d, limitsByDrug[d.DrugID], age, weight); issue != nil {
			out.Issues = append(out.Issues, *issue)
		}
	}

	interactions, err := s.store.InteractionsAmong(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, in := range interactions {
		msg := in.Description
		if msg == "" {
			msg = "Drug interaction: " + in.Severity
		}
		out.Issues = append(out.Issues, Issue{
			DrugIDs:  []int64{in.DrugID1, in.DrugID2},
			Severity: in.Severity,
			Message:  msg,
		})
		if in.Severity == domain.SeveritySevere {
			out.RequiresApproval = true
		}
	}

	for _, issue := range out.Issues {
		if issue.Blocking {
			out.Valid = false
		}
	}
	return out, nil
}

// checkDosage returns a blocking issue for the first limit that applies to
// the patient and is exceeded by the prescribed course.
func checkDosage(d domain.PrescribedDrug, limits []domain.DosageLimit, age, weight *float64) *Issue {
	days := 1.0
	if d.DurationDays != nil {
		days = *d.DurationDays
	}
	dose := d.DosagePerDay * days
	for _, l := range limits {
		if age != nil {
			if l.MinAgeYears != nil && *age < *l.MinAgeYears {
				continue
			}
			if l.MaxAgeYears != nil && *age > *l.MaxAgeYears {
				continue
			}
		}
		if weight != nil && l.MinWeightKg != nil && *weight < *l.MinWeightKg {
			continue
		}
		if l.MaxDailyDose != nil && dose > *l.MaxDailyDose {
			return &Issue{
				DrugID:   d.DrugID,
				Message:  fmt.Sprintf("Exceeds max daily dose (%g)", *l.MaxDailyDose),
				Blocking: true,
			}
		}
	}
	return nil
}

// Create validates and stores a prescription for caller's pharmacy. It is
// stored PENDING when it requires approval and APPROVED otherwise.
func (s *Service) Create(ctx context.Context, caller domain.User, req Request) (*domain.Prescription, error) {
	if caller.Unassigned() {
		return nil, ErrUnassigned
	}
	v, err := s.Validate(ctx, req.PrescribedDrugs, req.PatientAge, req.PatientWeight)
	if err != nil {
		return nil, err
	}
	if !v.Valid {
		return nil, &ValidationError{Issues: v.Issues}
	}

	status := domain.PrescriptionApproved
	if v.RequiresApproval {
		status = domain.PrescriptionPending
	}
	p, err := s.store.CreatePrescription(ctx, domain.Prescription{
		PharmacyID:      caller.PharmacyID,
		PatientName:     req.PatientName,
		PatientAge:      req.PatientAge,
		PatientWeight:   req.PatientWeight,
		DoctorName:      req.DoctorName,
		PrescribedDrugs: req.PrescribedDrugs,
		Notes:           req.Notes,
		Status:          status,
	})
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, domain.ActionCreate, "prescription", p.ID, map[string]any{
		"patient_name": p.PatientName,
		"doctor_name":  p.DoctorName,
		"status":       p.Status,
	})
	return p, nil
}

// List returns caller's prescriptions, newest first.
func (s *Service) List(ctx context.Context, caller domain.User, status string, limit int) ([]domain.Prescription, error) {
	if caller.Unassigned() {
		return nil, ErrUnassigned
	}
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListPrescriptions(ctx, caller.PharmacyID, status, limit)
}

// Approve marks a pending prescription approved.
func (s *Service) Approve(ctx context.Context, caller domain.User, id int64) (*domain.Prescription, error) {
	p, err := s.resolve(ctx, caller, id, domain.PrescriptionApproved, nil)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, domain.ActionApprove, "prescription", p.ID, map[string]any{
		"approved_by": p.ApprovedBy,
		"approved_at": p.ApprovedAt,
	})
	return p, nil
}

// Reject marks a pending prescription rejected with an optional reason.
func (s *Service) Reject(ctx context.Context, caller domain.User, id int64, reason *string) (*domain.Prescription, error) {
	if reason != nil && *reason == "" {
		reason = nil
	}
	p, err := s.resolve(ctx, caller, id, domain.PrescriptionRejected, reason)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, domain.ActionReject, "prescription", p.ID, map[string]any{
		"approved_by":      p.ApprovedBy,
		"approved_at":      p.ApprovedAt,
		"rejection_reason": p.RejectionReason,
	})
	return p, nil
}

func (s *Service) resolve(ctx context.Context, caller domain.User, id int64, status string, reason *string) (*domain.Prescription, error) {
	p, err := s.store.GetPrescription(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.Unscoped() && (caller.PharmacyID == nil || p.PharmacyID == nil || *p.PharmacyID != *caller.PharmacyID) {
		return nil, ErrForbidden
	}
	ok, err := s.store.ResolvePrescription(ctx, id, status, caller.ID, reason)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTransition
	}
	return s.store.GetPrescription(ctx, id)
}
