package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"donation-api/internal/apperr"
	"donation-api/internal/models"
)

type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := r.db.GetContext(ctx, &u, r.db.Rebind(`
		SELECT id, email, password_hash, created_at, updated_at FROM users WHERE email = ?`), email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %q: %w", email, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// Create inserts an administrator. A taken email surfaces as ErrConflict.
func (r *UserRepo) Create(ctx context.Context, email, passwordHash string) (*models.User, error) {
	var u models.User
	err := r.db.GetContext(ctx, &u, r.db.Rebind(`
		INSERT INTO users (email, password_hash) VALUES (?, ?)
		RETURNING id, email, password_hash, created_at, updated_at`), email, passwordHash)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("email %q already in use: %w", email, apperr.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &u, nil
}
