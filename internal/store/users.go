package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pharmacy/m/domain"
)

const userColumns = `id, email, full_name, password_hash, role, pharmacy_id, created_at`

// CreateUser inserts a profile. The email must already be normalised.
func (q *Queries) CreateUser(ctx context.Context, u domain.User) (*domain.User, error) {
	id, err := q.insert(ctx,
		`INSERT INTO users (email, full_name, password_hash, role, pharmacy_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.Email, u.FullName, u.PasswordHash, u.Role, u.PharmacyID, q.timestamp(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return q.GetUser(ctx, id)
}

// GetUser returns a profile by id.
func (q *Queries) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	var u domain.User
	err := q.get(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return &u, nil
}

// GetUserByEmail returns a profile by its normalised email.
func (q *Queries) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := q.get(ctx, &u, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return &u, nil
}

// UpdateUserPassword replaces a user's password hash.
func (q *Queries) UpdateUserPassword(ctx context.Context, id int64, hash string) error {
	n, err := q.exec(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, id)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AssignUser sets a user's pharmacy and role.
func (q *Queries) AssignUser(ctx context.Context, id int64, pharmacyID *int64, role string) (*domain.User, error) {
	n, err := q.exec(ctx, `UPDATE users SET pharmacy_id = ?, role = ? WHERE id = ?`, pharmacyID, role, id)
	if err != nil {
		return nil, fmt.Errorf("assigning user: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return q.GetUser(ctx, id)
}
