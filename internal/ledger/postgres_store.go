package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) Store {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO ai_generation_logs (tenant_id, request_id, request_type, provider, model, tokens_used, cost_usd, succeeded)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err := s.db.QueryRow(ctx, query,
		rec.TenantID, rec.RequestID, rec.RequestType, rec.Provider,
		rec.Model, rec.Tokens, rec.CostUSD, rec.Succeeded,
	).Scan(&rec.ID, &rec.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to append generation record: %w", err)
	}

	return nil
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID string, from, to time.Time) ([]*Record, error) {
	query := `
		SELECT id, tenant_id, request_id, request_type, provider, model, tokens_used, cost_usd, succeeded, created_at
		FROM ai_generation_logs
		WHERE tenant_id = $1 AND created_at BETWEEN $2 AND $3
		ORDER BY created_at DESC
	`
	rows, err := s.db.Query(ctx, query, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query generation records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var r Record
		err := rows.Scan(
			&r.ID, &r.TenantID, &r.RequestID, &r.RequestType, &r.Provider,
			&r.Model, &r.Tokens, &r.CostUSD, &r.Succeeded, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan generation record: %w", err)
		}
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating generation records: %w", err)
	}

	return records, nil
}

func (s *PostgresStore) TotalCostByTenant(ctx context.Context, tenantID string, from, to time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(cost_usd), 0)
		FROM ai_generation_logs
		WHERE tenant_id = $1 AND created_at BETWEEN $2 AND $3
	`
	var total float64
	err := s.db.QueryRow(ctx, query, tenantID, from, to).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to get total cost: %w", err)
	}

	return total, nil
}
