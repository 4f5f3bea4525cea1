// Package ledger records every generation attempt and keeps the atomic
// per-tenant monthly usage counters the quota policy reads.
package ledger

import (
	"context"
	"time"
)

// Record is one generation attempt against one provider. Append-only: a
// two-provider fallback produces two records, and failed attempts are
// recorded for cost auditing even when the request ultimately fails.
type Record struct {
	ID          string
	TenantID    string
	RequestID   string
	RequestType string
	Provider    string
	Model       string
	Tokens      int
	CostUSD     float64
	Succeeded   bool
	CreatedAt   time.Time
}

type Store interface {
	Append(ctx context.Context, rec *Record) error
	ListByTenant(ctx context.Context, tenantID string, from, to time.Time) ([]*Record, error)
	TotalCostByTenant(ctx context.Context, tenantID string, from, to time.Time) (float64, error)
}

// CounterStore is the transactional counter service behind quota enforcement.
// Reserve must be an atomic add returning the post-increment count for the
// current period; the orchestrator never caches counts across requests.
type CounterStore interface {
	// Reserve atomically increments the period request count and returns the
	// new value.
	Reserve(ctx context.Context, tenantID, requestType string) (int64, error)
	// Release undoes a reservation after a quota deny or a generation that
	// produced nothing.
	Release(ctx context.Context, tenantID, requestType string) error
	// AddUsage accrues tokens and cost for a successful generation. The
	// request count was already taken by Reserve.
	AddUsage(ctx context.Context, tenantID, requestType string, tokens int, cost float64) error
	// Count reads the current period request count.
	Count(ctx context.Context, tenantID, requestType string) (int64, error)
}

// Period is the calendar month bucket counters are keyed by.
func Period(t time.Time) string {
	return t.UTC().Format("2006-01")
}
