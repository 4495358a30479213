package db

import (
	"context"

	"github.com/kusalkrp/bus-tracking-api/internal/models"
)

// FindUserByEmail returns the login identity registered under email
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		"SELECT id, email, password_hash, role, operator_id, operator_type FROM users WHERE email = $1", email,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.OperatorID, &u.OperatorType)
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}
