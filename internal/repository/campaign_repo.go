package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"donation-api/internal/apperr"
)

type CampaignRepo struct {
	db *sqlx.DB
}

func NewCampaignRepo(db *sqlx.DB) *CampaignRepo {
	return &CampaignRepo{db: db}
}

// FindIDByName returns the id of the campaign with the given name.
func (r *CampaignRepo) FindIDByName(ctx context.Context, name string) (string, error) {
	var id string
	err := r.db.GetContext(ctx, &id, r.db.Rebind(`SELECT id FROM campaigns WHERE name = ?`), name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("campaign %q: %w", name, apperr.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("find campaign: %w", err)
	}
	return id, nil
}

// Ensure creates the campaign when missing and returns its id.
func (r *CampaignRepo) Ensure(ctx context.Context, name string) (string, error) {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO campaigns (id, name) VALUES (?, ?)
		ON CONFLICT (name) DO NOTHING`), uuid.NewString(), name)
	if err != nil {
		return "", fmt.Errorf("ensure campaign: %w", err)
	}
	return r.FindIDByName(ctx, name)
}
