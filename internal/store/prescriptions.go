package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"pharmacy/m/domain"
)

const prescriptionColumns = `id, pharmacy_id, patient_name, patient_age, patient_weight, doctor_name,
	prescribed_drugs, notes, status, approved_by, approved_at, rejection_reason, created_at`

// CreatePrescription stores a prescription with the given status.
func (q *Queries) CreatePrescription(ctx context.Context, p domain.Prescription) (*domain.Prescription, error) {
	raw, err := json.Marshal(p.PrescribedDrugs)
	if err != nil {
		return nil, fmt.Errorf("encoding prescribed drugs: %w", err)
	}
	id, err := q.insert(ctx,
		`INSERT INTO prescriptions (pharmacy_id, patient_name, patient_age, patient_weight, doctor_name,
		                            prescribed_drugs, notes, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.PharmacyID, p.PatientName, p.PatientAge, p.PatientWeight, p.DoctorName,
		string(raw), p.Notes, p.Status, q.timestamp(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating prescription: %w", err)
	}
	return q.GetPrescription(ctx, id)
}

func (q *Queries) GetPrescription(ctx context.Context, id int64) (*domain.Prescription, error) {
	var p domain.Prescription
	err := q.get(ctx, &p, `SELECT `+prescriptionColumns+` FROM prescriptions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting prescription: %w", err)
	}
	if err := decodePrescribedDrugs(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPrescriptions returns prescriptions for scope (all when nil), newest
// first, optionally filtered by status.
func (q *Queries) ListPrescriptions(ctx context.Context, scope *int64, status string, limit int) ([]domain.Prescription, error) {
	query := `SELECT ` + prescriptionColumns + ` FROM prescriptions WHERE 1=1`
	var args []any
	if scope != nil {
		query += ` AND pharmacy_id = ?`
		args = append(args, *scope)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	out := []domain.Prescription{}
	if err := q.selectAll(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("listing prescriptions: %w", err)
	}
	for i := range out {
		if err := decodePrescribedDrugs(&out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ResolvePrescription moves a pending prescription to status. It reports false
// when the prescription was not pending.
func (q *Queries) ResolvePrescription(ctx context.Context, id int64, status string, by int64, reason *string) (bool, error) {
	n, err := q.exec(ctx,
		`UPDATE prescriptions SET status = ?, approved_by = ?, approved_at = ?, rejection_reason = ?
		 WHERE id = ? AND status = ?`,
		status, by, q.timestamp(), reason, id, domain.PrescriptionPending,
	)
	if err != nil {
		return false, fmt.Errorf("resolving prescription: %w", err)
	}
	return n > 0, nil
}

// CreateInteraction records an interaction between two drugs. The pair is
// stored with the smaller id first; an existing pair is left untouched.
func (q *Queries) CreateInteraction(ctx context.Context, in domain.DrugInteraction) error {
	a, b := in.DrugID1, in.DrugID2
	if a > b {
		a, b = b, a
	}
	_, err := q.exec(ctx,
		`INSERT INTO drug_interactions (drug_id_1, drug_id_2, severity, description)
		 VALUES (?, ?, ?, ?) ON CONFLICT DO NOTHING`,
		a, b, in.Severity, in.Description,
	)
	if err != nil {
		return fmt.Errorf("creating drug interaction: %w", err)
	}
	return nil
}

// InteractionsAmong returns the interactions where both drugs are in ids.
func (q *Queries) InteractionsAmong(ctx context.Context, ids []int64) ([]domain.DrugInteraction, error) {
	if len(ids) < 2 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		`SELECT drug_id_1, drug_id_2, severity, description FROM drug_interactions
		 WHERE drug_id_1 IN (?) AND drug_id_2 IN (?)
		 ORDER BY drug_id_1, drug_id_2`, ids, ids)
	if err != nil {
		return nil, fmt.Errorf("preparing interactions query: %w", err)
	}
	var out []domain.DrugInteraction
	if err := q.selectAll(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("listing drug interactions: %w", err)
	}
	return out, nil
}

func (q *Queries) CreateDosageLimit(ctx context.Context, l domain.DosageLimit) error {
	_, err := q.insert(ctx,
		`INSERT INTO dosage_limits (drug_id, min_age_years, max_age_years, min_weight_kg, max_daily_dose)
		 VALUES (?, ?, ?, ?, ?)`,
		l.DrugID, l.MinAgeYears, l.MaxAgeYears, l.MinWeightKg, l.MaxDailyDose,
	)
	if err != nil {
		return fmt.Errorf("creating dosage limit: %w", err)
	}
	return nil
}

// DosageLimitsFor returns the dosage limits of the given drugs.
func (q *Queries) DosageLimitsFor(ctx context.Context, ids []int64) ([]domain.DosageLimit, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		`SELECT id, drug_id, min_age_years, max_age_years, min_weight_kg, max_daily_dose
		 FROM dosage_limits WHERE drug_id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("preparing dosage limits query: %w", err)
	}
	var out []domain.DosageLimit
	if err := q.selectAll(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("listing dosage limits: %w", err)
	}
	return out, nil
}

func decodePrescribedDrugs(p *domain.Prescription) error {
	p.PrescribedDrugs = []domain.PrescribedDrug{}
	if p.RawDrugs == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(p.RawDrugs), &p.PrescribedDrugs); err != nil {
		return fmt.Errorf("decoding prescribed drugs of prescription %d: %w", p.ID, err)
	}
	return nil
}
