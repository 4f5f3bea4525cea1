// Package tenant exposes per-restaurant configuration: subscription tier and
// AI generation settings.
package tenant

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("tenant not found")

// AIConfig is a tenant's generation configuration. Loaded per request and
// read-only during the request's lifetime; edits through the admin surface
// take effect on the next request, never mid-request.
type AIConfig struct {
	TenantID string
	// Priority is the fallback order of provider names. Empty means the
	// process-wide default order.
	Priority []string
	// PromptTemplate optionally overrides the builtin description prompt.
	PromptTemplate string
}

type Store interface {
	GetAIConfig(ctx context.Context, tenantID string) (*AIConfig, error)
	// GetTier returns the raw subscription value ("free", "starter",
	// "professional", "enterprise").
	GetTier(ctx context.Context, tenantID string) (string, error)
}
