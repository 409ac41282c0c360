package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pharmacy/m/domain"
)

// CreatePharmacy registers a tenant.
func (q *Queries) CreatePharmacy(ctx context.Context, p domain.Pharmacy) (*domain.Pharmacy, error) {
	id, err := q.insert(ctx,
		`INSERT INTO pharmacies (name, address, phone, created_at) VALUES (?, ?, ?, ?)`,
		p.Name, p.Address, p.Phone, q.timestamp(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pharmacy: %w", err)
	}
	return q.GetPharmacy(ctx, id)
}

func (q *Queries) GetPharmacy(ctx context.Context, id int64) (*domain.Pharmacy, error) {
	var p domain.Pharmacy
	err := q.get(ctx, &p, `SELECT id, name, address, phone, created_at FROM pharmacies WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting pharmacy: %w", err)
	}
	return &p, nil
}

func (q *Queries) ListPharmacies(ctx context.Context) ([]domain.Pharmacy, error) {
	pharmacies := []domain.Pharmacy{}
	err := q.selectAll(ctx, &pharmacies, `SELECT id, name, address, phone, created_at FROM pharmacies ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("listing pharmacies: %w", err)
	}
	return pharmacies, nil
}

// UpdatePharmacy replaces a pharmacy's details.
func (q *Queries) UpdatePharmacy(ctx context.Context, p domain.Pharmacy) (*domain.Pharmacy, error) {
	n, err := q.exec(ctx,
		`UPDATE pharmacies SET name = ?, address = ?, phone = ? WHERE id = ?`,
		p.Name, p.Address, p.Phone, p.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating pharmacy: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return q.GetPharmacy(ctx, p.ID)
}
