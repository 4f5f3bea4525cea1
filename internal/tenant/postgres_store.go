package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) Store {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetAIConfig(ctx context.Context, tenantID string) (*AIConfig, error) {
	query := `
		SELECT provider_priority, prompt_template
		FROM ai_configs
		WHERE tenant_id = $1 AND active = true
	`

	cfg := &AIConfig{TenantID: tenantID}
	err := s.db.QueryRow(ctx, query, tenantID).Scan(&cfg.Priority, &cfg.PromptTemplate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// No per-tenant config is the common case; defaults apply.
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to get ai config: %w", err)
	}

	return cfg, nil
}

func (s *PostgresStore) GetTier(ctx context.Context, tenantID string) (string, error) {
	query := `
		SELECT subscription
		FROM restaurants
		WHERE id = $1 AND is_active = true
	`

	var tier string
	err := s.db.QueryRow(ctx, query, tenantID).Scan(&tier)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get subscription tier: %w", err)
	}

	return tier, nil
}
