package generation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/waiterai/menuai/internal/cost"
	"github.com/waiterai/menuai/internal/ledger"
	"github.com/waiterai/menuai/internal/prompt"
	"github.com/waiterai/menuai/internal/provider"
	"github.com/waiterai/menuai/internal/quota"
	"github.com/waiterai/menuai/internal/tenant"
)

// Recorder is the write half of the usage ledger; every attempted provider
// produces exactly one record through it.
type Recorder interface {
	Append(ctx context.Context, rec *ledger.Record) error
}

// taskParams are the per-task generation parameters.
type taskParams struct {
	temperature float64
	maxTokens   int
}

var paramsByType = map[string]taskParams{
	quota.TypeDescription: {temperature: 0.7, maxTokens: 300},
	quota.TypeTranslation: {temperature: 0.3, maxTokens: 200},
	quota.TypeChat:        {temperature: 0.8, maxTokens: 500},
}

const DefaultAttemptTimeout = 30 * time.Second

// Config wires the orchestrator's collaborators. All of them are constructed
// once at process start and injected; the orchestrator holds no hidden global
// state.
type Config struct {
	Providers []provider.Provider
	// Priority is the default fallback order by provider name; tenants may
	// override it per request via their AIConfig.
	Priority       []string
	Policy         *quota.Policy
	Counters       ledger.CounterStore
	Records        Recorder
	Tenants        tenant.Store
	Costs          *cost.Table
	Tracer         trace.Tracer
	AttemptTimeout time.Duration
}

type Orchestrator struct {
	providers      map[string]provider.Provider
	order          []string
	breakers       map[string]*gobreaker.CircuitBreaker
	policy         *quota.Policy
	counters       ledger.CounterStore
	records        Recorder
	tenants        tenant.Store
	costs          *cost.Table
	tracer         trace.Tracer
	attemptTimeout time.Duration
}

func New(cfg Config) *Orchestrator {
	providers := make(map[string]provider.Provider, len(cfg.Providers))
	breakers := make(map[string]*gobreaker.CircuitBreaker, len(cfg.Providers))
	for _, p := range cfg.Providers {
		providers[p.Name()] = p
		breakers[p.Name()] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        p.Name(),
			MaxRequests: 3,
			Interval:    5 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		})
	}

	timeout := cfg.AttemptTimeout
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}

	return &Orchestrator{
		providers:      providers,
		order:          cfg.Priority,
		breakers:       breakers,
		policy:         cfg.Policy,
		counters:       cfg.Counters,
		records:        cfg.Records,
		tenants:        cfg.Tenants,
		costs:          cfg.Costs,
		tracer:         cfg.Tracer,
		attemptTimeout: timeout,
	}
}

// GenerateDescription produces a sales-optimized menu description for one
// item, in the requested language.
func (o *Orchestrator) GenerateDescription(ctx context.Context, tenantID string, req *DescriptionRequest) (*Result, error) {
	if req == nil || strings.TrimSpace(req.ItemName) == "" {
		return nil, fmt.Errorf("%w: item name is required", ErrInvalidInput)
	}
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", ErrInvalidInput)
	}

	ctx, span := o.tracer.Start(ctx, "generation.description")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("item", req.ItemName),
		attribute.String("language", req.TargetLanguage),
	)

	cfg, tier, err := o.tenantState(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := o.reserve(ctx, tenantID, tier, quota.TypeDescription); err != nil {
		return nil, err
	}

	promptText := prompt.RenderDescriptionTemplate(cfg.PromptTemplate, prompt.DescriptionData{
		ItemName:    req.ItemName,
		Ingredients: req.Ingredients,
		Cuisine:     req.Cuisine,
		Dietary:     req.Dietary,
		Allergens:   req.Allergens,
		SpiceLevel:  req.SpiceLevel,
		Language:    req.TargetLanguage,
	})

	resp, costUSD, err := o.complete(ctx, tenantID, cfg, quota.TypeDescription, promptText)
	if err != nil {
		o.release(ctx, tenantID, quota.TypeDescription)
		return nil, err
	}

	return &Result{
		Text:         resp.Content,
		ProviderUsed: resp.Provider,
		Model:        resp.Model,
		TokensUsed:   resp.TotalTokens(),
		CostUSD:      costUSD,
	}, nil
}

// TranslateMenuItem translates an item's name and description, parsing the
// provider's mandated NAME/DESCRIPTION output format.
func (o *Orchestrator) TranslateMenuItem(ctx context.Context, tenantID string, req *TranslationRequest) (*TranslationResult, error) {
	if req == nil || strings.TrimSpace(req.ItemName) == "" || strings.TrimSpace(req.Description) == "" {
		return nil, fmt.Errorf("%w: item name and description are required", ErrInvalidInput)
	}
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", ErrInvalidInput)
	}

	ctx, span := o.tracer.Start(ctx, "generation.translation")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("language", req.TargetLanguage),
	)

	cfg, tier, err := o.tenantState(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := o.reserve(ctx, tenantID, tier, quota.TypeTranslation); err != nil {
		return nil, err
	}

	promptText := prompt.BuildTranslation(req.ItemName, req.Description, req.TargetLanguage, req.Cuisine)

	resp, costUSD, err := o.complete(ctx, tenantID, cfg, quota.TypeTranslation, promptText)
	if err != nil {
		o.release(ctx, tenantID, quota.TypeTranslation)
		return nil, err
	}

	name, description := prompt.ParseTranslation(resp.Content)
	return &TranslationResult{
		Name:         name,
		Description:  description,
		ProviderUsed: resp.Provider,
		TokensUsed:   resp.TotalTokens(),
		CostUSD:      costUSD,
	}, nil
}

// GenerateChatResponse answers a diner's question as a cancellable stream of
// fragments. Fallback to the next provider happens only before the first
// delta is observed; once output has been delivered a failure surfaces as a
// terminal error fragment.
func (o *Orchestrator) GenerateChatResponse(ctx context.Context, tenantID string, req *ChatRequest) (<-chan Fragment, error) {
	if req == nil || strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", ErrInvalidInput)
	}

	cfg, tier, err := o.tenantState(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := o.reserve(ctx, tenantID, tier, quota.TypeChat); err != nil {
		return nil, err
	}

	promptText := prompt.BuildChat(req.Query, req.Menu, req.Restaurant, req.History)

	out := make(chan Fragment)
	go o.streamChat(ctx, tenantID, cfg, promptText, out)
	return out, nil
}

func (o *Orchestrator) tenantState(ctx context.Context, tenantID string) (*tenant.AIConfig, quota.Tier, error) {
	rawTier, err := o.tenants.GetTier(ctx, tenantID)
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			return nil, "", fmt.Errorf("%w: unknown tenant", ErrInvalidInput)
		}
		return nil, "", err
	}
	cfg, err := o.tenants.GetAIConfig(ctx, tenantID)
	if err != nil {
		return nil, "", err
	}
	return cfg, quota.ParseTier(rawTier), nil
}

// reserve takes one quota unit atomically and checks the policy against the
// post-increment count. Check-then-increment would race two concurrent
// requests past the cap; reserve-then-check cannot.
func (o *Orchestrator) reserve(ctx context.Context, tenantID string, tier quota.Tier, requestType string) error {
	after, err := o.counters.Reserve(ctx, tenantID, requestType)
	if err != nil {
		return fmt.Errorf("usage reservation failed: %w", err)
	}
	if !o.policy.Allow(tier, requestType, after) {
		o.release(ctx, tenantID, requestType)
		return fmt.Errorf("%w: %s limit reached on the %s plan", ErrQuotaExceeded, requestType, tier)
	}
	return nil
}

// release returns a reserved unit after a denial or a generation that
// produced nothing. Failed generations do not burn quota.
func (o *Orchestrator) release(ctx context.Context, tenantID, requestType string) {
	if err := o.counters.Release(ctx, tenantID, requestType); err != nil {
		log.Printf("generation: failed to release %s reservation for tenant %s: %v", requestType, tenantID, err)
	}
}

// priorityFor resolves the provider order for this request: the tenant's own
// order when configured, the process default otherwise. The order is fixed
// for the lifetime of the request and never reshuffled by load.
func (o *Orchestrator) priorityFor(cfg *tenant.AIConfig) []string {
	if cfg != nil && len(cfg.Priority) > 0 {
		return cfg.Priority
	}
	return o.order
}

// complete runs the request/response fallback chain: providers are attempted
// strictly in priority order, retryable failures advance to the next one, and
// every attempt is ledgered.
func (o *Orchestrator) complete(ctx context.Context, tenantID string, cfg *tenant.AIConfig, requestType, promptText string) (*provider.Response, float64, error) {
	requestID := uuid.New().String()
	params := paramsByType[requestType]

	var lastErr error
	for _, name := range o.priorityFor(cfg) {
		p, ok := o.providers[name]
		if !ok {
			continue
		}
		cb := o.breakers[name]
		if cb.State() == gobreaker.StateOpen {
			lastErr = fmt.Errorf("%w: circuit breaker open for %s", provider.ErrUnavailable, name)
			continue
		}

		model := p.Models().For(requestType)
		attemptCtx, cancel := context.WithTimeout(ctx, o.attemptTimeout)
		result, err := cb.Execute(func() (interface{}, error) {
			return p.Complete(attemptCtx, &provider.Request{
				Model:       model,
				Messages:    []provider.Message{{Role: "user", Content: promptText}},
				MaxTokens:   params.maxTokens,
				Temperature: params.temperature,
				TenantID:    tenantID,
				RequestID:   requestID,
			})
		})
		cancel()

		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				// Rejected before any network call; not an attempt.
				lastErr = fmt.Errorf("%w: circuit breaker rejected %s", provider.ErrUnavailable, name)
				continue
			}
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			if !provider.Retryable(err) {
				// Fallback routes around outages, not caller bugs.
				return nil, 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
			log.Printf("generation: provider %s failed for tenant %s: %v", name, tenantID, err)
			o.record(ctx, &ledger.Record{
				TenantID:    tenantID,
				RequestID:   requestID,
				RequestType: requestType,
				Provider:    name,
				Model:       model,
			})
			lastErr = err
			continue
		}

		resp := result.(*provider.Response)
		costUSD := o.costs.Estimate(name, resp.TotalTokens())
		o.record(ctx, &ledger.Record{
			TenantID:    tenantID,
			RequestID:   requestID,
			RequestType: requestType,
			Provider:    name,
			Model:       resp.Model,
			Tokens:      resp.TotalTokens(),
			CostUSD:     costUSD,
			Succeeded:   true,
		})
		if err := o.counters.AddUsage(ctx, tenantID, requestType, resp.TotalTokens(), costUSD); err != nil {
			log.Printf("generation: failed to accrue usage for tenant %s: %v", tenantID, err)
		}
		return resp, costUSD, nil
	}

	return nil, 0, fmt.Errorf("%w: last error: %v", ErrAllProvidersFailed, lastErr)
}

// streamChat relays provider chunks to the caller. Providers are tried in
// priority order until one yields output; after the first delta the attempt
// is committed and a later failure becomes a terminal error fragment.
func (o *Orchestrator) streamChat(ctx context.Context, tenantID string, cfg *tenant.AIConfig, promptText string, out chan<- Fragment) {
	defer close(out)

	requestID := uuid.New().String()
	params := paramsByType[quota.TypeChat]

	var lastErr error
	for _, name := range o.priorityFor(cfg) {
		p, ok := o.providers[name]
		if !ok {
			continue
		}
		cb := o.breakers[name]
		if cb.State() == gobreaker.StateOpen {
			lastErr = fmt.Errorf("%w: circuit breaker open for %s", provider.ErrUnavailable, name)
			continue
		}

		model := p.Models().For(quota.TypeChat)
		streamCtx, cancel := context.WithCancel(ctx)
		ch, err := p.CompleteStream(streamCtx, &provider.Request{
			Model:       model,
			Messages:    []provider.Message{{Role: "user", Content: promptText}},
			MaxTokens:   params.maxTokens,
			Temperature: params.temperature,
			Stream:      true,
			TenantID:    tenantID,
			RequestID:   requestID,
		})
		if err != nil {
			cancel()
			lastErr = err
			if !provider.Retryable(err) {
				o.release(ctx, tenantID, quota.TypeChat)
				o.send(ctx, out, Fragment{Err: ErrInvalidInput})
				return
			}
			continue
		}

		delivered, earlyErr := o.relay(ctx, ch, out, cb)
		cancel()

		if earlyErr != nil {
			// Failed before the first delta: safe to fall back.
			log.Printf("generation: provider %s stream failed for tenant %s: %v", name, tenantID, earlyErr)
			o.record(ctx, &ledger.Record{
				TenantID:    tenantID,
				RequestID:   requestID,
				RequestType: quota.TypeChat,
				Provider:    name,
				Model:       model,
			})
			lastErr = earlyErr
			continue
		}

		// Committed attempt: fragments were delivered (or the stream ended
		// cleanly). Adapters report no partial token usage for streams, so
		// the record carries zero tokens and cost.
		o.record(ctx, &ledger.Record{
			TenantID:    tenantID,
			RequestID:   requestID,
			RequestType: quota.TypeChat,
			Provider:    name,
			Model:       model,
			Succeeded:   delivered,
		})
		return
	}

	o.release(ctx, tenantID, quota.TypeChat)
	log.Printf("generation: all chat providers failed for tenant %s: %v", tenantID, lastErr)
	o.send(ctx, out, Fragment{Err: ErrAllProvidersFailed})
}

// relay forwards chunks until the stream terminates or the caller goes away.
// It returns the pre-delivery error, if any, so the caller can fall back; a
// failure after delivery is surfaced in-band and never retried.
func (o *Orchestrator) relay(ctx context.Context, ch <-chan *provider.Chunk, out chan<- Fragment, cb *gobreaker.CircuitBreaker) (delivered bool, earlyErr error) {
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				// Producer closed without a Done marker; treat as complete.
				o.send(ctx, out, Fragment{Done: true})
				return delivered, nil
			}
			if chunk.Err != nil {
				_, _ = cb.Execute(func() (interface{}, error) {
					return nil, chunk.Err
				})
				if !delivered {
					return false, chunk.Err
				}
				o.send(ctx, out, Fragment{Err: ErrStreamInterrupted})
				return delivered, nil
			}
			if chunk.Done {
				o.send(ctx, out, Fragment{Done: true})
				return delivered, nil
			}
			if !o.send(ctx, out, Fragment{Delta: chunk.Delta}) {
				return delivered, nil
			}
			delivered = true
		case <-ctx.Done():
			return delivered, nil
		}
	}
}

func (o *Orchestrator) send(ctx context.Context, out chan<- Fragment, f Fragment) bool {
	select {
	case out <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

func (o *Orchestrator) record(ctx context.Context, rec *ledger.Record) {
	if err := o.records.Append(ctx, rec); err != nil {
		log.Printf("generation: failed to record attempt for tenant %s: %v", rec.TenantID, err)
	}
}
