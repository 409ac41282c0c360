package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"pharmacy/m/domain"
	"pharmacy/m/internal/auth"
	"pharmacy/m/internal/store"
)

// EnsureAdmin creates an unscoped ADMIN profile for email unless a profile
// with that email already exists. It reports whether one was created.
func EnsureAdmin(ctx context.Context, st *store.Store, email, password string, logger *logrus.Logger) (bool, error) {
	if email == "" || password == "" {
		return false, nil
	}
	_, err := st.GetUserByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return false, err
	}
	u, err := st.CreateUser(ctx, domain.User{
		Email:        email,
		FullName:     "Administrator",
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
	})
	if err != nil {
		return false, fmt.Errorf("creating bootstrap admin: %w", err)
	}
	logger.WithFields(logrus.Fields{"module": "seed", "user_id": u.ID, "email": u.Email}).Info("bootstrap admin created")
	return true, nil
}
