// Package api exposes the orchestration API over HTTP: description and
// translation generation, the streaming chat assistant, usage reporting and
// menu QR codes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/waiterai/menuai/internal/auth"
	"github.com/waiterai/menuai/internal/generation"
	"github.com/waiterai/menuai/internal/ledger"
	"github.com/waiterai/menuai/internal/prompt"
	"github.com/waiterai/menuai/pkg/qr"
	"github.com/waiterai/menuai/pkg/ratelimit"
)

// Generator is the orchestration API the handlers consume.
type Generator interface {
	GenerateDescription(ctx context.Context, tenantID string, req *generation.DescriptionRequest) (*generation.Result, error)
	TranslateMenuItem(ctx context.Context, tenantID string, req *generation.TranslationRequest) (*generation.TranslationResult, error)
	GenerateChatResponse(ctx context.Context, tenantID string, req *generation.ChatRequest) (<-chan generation.Fragment, error)
}

type Handler struct {
	generator   Generator
	records     ledger.Store
	limiter     *ratelimit.Limiter
	tracer      trace.Tracer
	menuBaseURL string
}

func NewHandler(generator Generator, records ledger.Store, limiter *ratelimit.Limiter, tracer trace.Tracer, menuBaseURL string) *Handler {
	return &Handler{
		generator:   generator,
		records:     records,
		limiter:     limiter,
		tracer:      tracer,
		menuBaseURL: menuBaseURL,
	}
}

type descriptionRequest struct {
	ItemName       string   `json:"item_name"`
	Ingredients    []string `json:"ingredients"`
	Cuisine        string   `json:"cuisine"`
	DietaryTags    []string `json:"dietary_tags"`
	Allergens      []string `json:"allergens"`
	SpiceLevel     string   `json:"spice_level"`
	TargetLanguage string   `json:"target_language"`
}

type translationRequest struct {
	ItemName       string `json:"item_name"`
	Description    string `json:"description"`
	TargetLanguage string `json:"target_language"`
	Cuisine        string `json:"cuisine"`
}

type chatRequest struct {
	Query      string         `json:"query"`
	Menu       []chatMenuItem `json:"menu"`
	Restaurant chatRestaurant `json:"restaurant"`
	History    []chatMessage  `json:"history"`
}

type chatMenuItem struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Price       string `json:"price"`
	Description string `json:"description"`
}

type chatRestaurant struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	Cuisine     string `json:"cuisine"`
	Description string `json:"description"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (h *Handler) HandleDescription(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.prepare(w, r, 300)
	if !ok {
		return
	}

	var req descriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "api.description")
	defer span.End()
	span.SetAttributes(attribute.String("tenant_id", tenantID))

	result, err := h.generator.GenerateDescription(ctx, tenantID, &generation.DescriptionRequest{
		ItemName:       req.ItemName,
		Ingredients:    req.Ingredients,
		Cuisine:        req.Cuisine,
		Dietary:        req.DietaryTags,
		Allergens:      req.Allergens,
		SpiceLevel:     req.SpiceLevel,
		TargetLanguage: req.TargetLanguage,
	})
	if err != nil {
		h.writeGenerationError(w, tenantID, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"text":        result.Text,
		"provider":    result.ProviderUsed,
		"model":       result.Model,
		"tokens_used": result.TokensUsed,
		"cost_usd":    result.CostUSD,
	})
}

func (h *Handler) HandleTranslation(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.prepare(w, r, 200)
	if !ok {
		return
	}

	var req translationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	ctx, span := h.tracer.Start(r.Context(), "api.translation")
	defer span.End()
	span.SetAttributes(attribute.String("tenant_id", tenantID))

	result, err := h.generator.TranslateMenuItem(ctx, tenantID, &generation.TranslationRequest{
		ItemName:       req.ItemName,
		Description:    req.Description,
		TargetLanguage: req.TargetLanguage,
		Cuisine:        req.Cuisine,
	})
	if err != nil {
		h.writeGenerationError(w, tenantID, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":        result.Name,
		"description": result.Description,
		"provider":    result.ProviderUsed,
	})
}

// HandleChat streams assistant fragments as server-sent events. The stream
// ends with either "data: [DONE]" or an error event; a dropped connection
// cancels the upstream provider call.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.prepare(w, r, 500)
	if !ok {
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	menu := make([]prompt.MenuItem, len(req.Menu))
	for i, item := range req.Menu {
		menu[i] = prompt.MenuItem{
			Name:        item.Name,
			Category:    item.Category,
			Price:       item.Price,
			Description: item.Description,
		}
	}
	history := make([]prompt.ChatMessage, len(req.History))
	for i, msg := range req.History {
		history[i] = prompt.ChatMessage{Role: msg.Role, Content: msg.Content}
	}

	ch, err := h.generator.GenerateChatResponse(r.Context(), tenantID, &generation.ChatRequest{
		Query: req.Query,
		Menu:  menu,
		Restaurant: prompt.RestaurantInfo{
			Name:        req.Restaurant.Name,
			Address:     req.Restaurant.Address,
			Cuisine:     req.Restaurant.Cuisine,
			Description: req.Restaurant.Description,
		},
		History: history,
	})
	if err != nil {
		h.writeGenerationError(w, tenantID, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok2 := w.(http.Flusher)
	if !ok2 {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	for fragment := range ch {
		if fragment.Err != nil {
			fmt.Fprintf(w, "event: error\ndata: {\"error\": \"%s\"}\n\n", errorMessage(fragment.Err))
			flusher.Flush()
			break
		}

		if fragment.Done {
			fmt.Fprintf(w, "data: [DONE]\n\n")
			flusher.Flush()
			break
		}

		escaped := strings.ReplaceAll(fragment.Delta, `"`, `\"`)
		escaped = strings.ReplaceAll(escaped, "\n", `\n`)
		fmt.Fprintf(w, "data: {\"delta\":\"%s\"}\n\n", escaped)
		flusher.Flush()
	}
}

func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := auth.GetTenantID(ctx)
	if tenantID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	now := time.Now()
	from := now.AddDate(0, 0, -30) // Default: last 30 days
	to := now

	if fromStr := r.URL.Query().Get("from"); fromStr != "" {
		var err error
		from, err = time.Parse(time.RFC3339, fromStr)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid 'from' date format (use RFC3339)"})
			return
		}
	}
	if toStr := r.URL.Query().Get("to"); toStr != "" {
		var err error
		to, err = time.Parse(time.RFC3339, toStr)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid 'to' date format (use RFC3339)"})
			return
		}
	}

	records, err := h.records.ListByTenant(ctx, tenantID, from, to)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load usage"})
		return
	}

	totalCost, err := h.records.TotalCostByTenant(ctx, tenantID, from, to)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load usage"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tenant_id":      tenantID,
		"total_requests": len(records),
		"total_cost_usd": totalCost,
		"logs":           records,
		"from":           from,
		"to":             to,
	})
}

// HandleMenuQR returns a PNG QR code linking to the tenant's public menu.
func (h *Handler) HandleMenuQR(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.GetTenantID(r.Context())
	if tenantID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	size := 0
	if sizeStr := r.URL.Query().Get("size"); sizeStr != "" {
		parsed, err := strconv.Atoi(sizeStr)
		if err != nil || parsed <= 0 || parsed > 2048 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid size"})
			return
		}
		size = parsed
	}

	png, err := qr.MenuPNG(h.menuBaseURL, tenantID, r.URL.Query().Get("table"), size)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to generate qr code"})
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// prepare authenticates the tenant and applies the edge burst limit.
// estimatedTokens sizes the limiter charge by request type.
func (h *Handler) prepare(w http.ResponseWriter, r *http.Request, estimatedTokens int) (string, bool) {
	ctx := r.Context()
	tenantID := auth.GetTenantID(ctx)
	if tenantID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return "", false
	}

	allowed, err := h.limiter.Allow(ctx, tenantID, estimatedTokens)
	if err != nil || !allowed {
		w.Header().Set("Retry-After", "60s")
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error":       "rate limit exceeded",
			"retry_after": "60s",
		})
		return "", false
	}

	return tenantID, true
}

// writeGenerationError maps orchestrator errors onto the closed set of
// caller-visible kinds. Raw provider error text never crosses this boundary.
func (h *Handler) writeGenerationError(w http.ResponseWriter, tenantID string, err error) {
	switch {
	case errors.Is(err, generation.ErrQuotaExceeded):
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error": "monthly AI quota exceeded, upgrade your plan for more generations",
		})
	case errors.Is(err, generation.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request"})
	case errors.Is(err, generation.ErrAllProvidersFailed):
		log.Printf("api: generation failed for tenant %s: %v", tenantID, err)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": "AI generation failed, please try again later",
		})
	default:
		log.Printf("api: internal error for tenant %s: %v", tenantID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, generation.ErrStreamInterrupted):
		return "chat stream interrupted"
	case errors.Is(err, generation.ErrAllProvidersFailed):
		return "AI generation failed, please try again later"
	default:
		return "invalid request"
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
