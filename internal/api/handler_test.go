package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	extratelimit "github.com/vnmchuo/ratelimiter"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/waiterai/menuai/internal/auth"
	"github.com/waiterai/menuai/internal/generation"
	"github.com/waiterai/menuai/internal/ledger"
	"github.com/waiterai/menuai/pkg/ratelimit"
)

// Mock Generator
type mockGenerator struct {
	describeFunc  func(ctx context.Context, tenantID string, req *generation.DescriptionRequest) (*generation.Result, error)
	translateFunc func(ctx context.Context, tenantID string, req *generation.TranslationRequest) (*generation.TranslationResult, error)
	chatFunc      func(ctx context.Context, tenantID string, req *generation.ChatRequest) (<-chan generation.Fragment, error)
}

func (m *mockGenerator) GenerateDescription(ctx context.Context, tenantID string, req *generation.DescriptionRequest) (*generation.Result, error) {
	if m.describeFunc != nil {
		return m.describeFunc(ctx, tenantID, req)
	}
	return &generation.Result{Text: "mock", ProviderUsed: "deepseek", Model: "deepseek-chat", TokensUsed: 100, CostUSD: 0.0001}, nil
}

func (m *mockGenerator) TranslateMenuItem(ctx context.Context, tenantID string, req *generation.TranslationRequest) (*generation.TranslationResult, error) {
	if m.translateFunc != nil {
		return m.translateFunc(ctx, tenantID, req)
	}
	return &generation.TranslationResult{Name: "mock name", Description: "mock description", ProviderUsed: "deepseek"}, nil
}

func (m *mockGenerator) GenerateChatResponse(ctx context.Context, tenantID string, req *generation.ChatRequest) (<-chan generation.Fragment, error) {
	if m.chatFunc != nil {
		return m.chatFunc(ctx, tenantID, req)
	}
	ch := make(chan generation.Fragment, 2)
	ch <- generation.Fragment{Delta: "mock"}
	ch <- generation.Fragment{Done: true}
	close(ch)
	return ch, nil
}

// Mock Ledger Store
type mockLedgerStore struct {
	listFunc      func(ctx context.Context, tenantID string, from, to time.Time) ([]*ledger.Record, error)
	totalCostFunc func(ctx context.Context, tenantID string, from, to time.Time) (float64, error)
}

func (m *mockLedgerStore) Append(ctx context.Context, rec *ledger.Record) error { return nil }

func (m *mockLedgerStore) ListByTenant(ctx context.Context, tenantID string, from, to time.Time) ([]*ledger.Record, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, tenantID, from, to)
	}
	return nil, nil
}

func (m *mockLedgerStore) TotalCostByTenant(ctx context.Context, tenantID string, from, to time.Time) (float64, error) {
	if m.totalCostFunc != nil {
		return m.totalCostFunc(ctx, tenantID, from, to)
	}
	return 0, nil
}

// Mock Limiter Store
type mockLimiterStore struct {
	allowed bool
	err     error
}

func (m *mockLimiterStore) AllowN(ctx context.Context, key string, n int) (*extratelimit.Result, error) {
	return &extratelimit.Result{Allowed: m.allowed}, m.err
}

func (m *mockLimiterStore) Allow(ctx context.Context, key string) (*extratelimit.Result, error) {
	return &extratelimit.Result{Allowed: m.allowed}, m.err
}

func (m *mockLimiterStore) Status(ctx context.Context, key string) (*extratelimit.Result, error) {
	return &extratelimit.Result{Allowed: m.allowed}, m.err
}

// Test Suite
func setupTest(gen *mockGenerator, limiterAllowed bool) (*Handler, *mockLedgerStore) {
	if gen == nil {
		gen = &mockGenerator{}
	}
	records := &mockLedgerStore{}
	limiter := ratelimit.NewTestLimiter(&mockLimiterStore{allowed: limiterAllowed})
	tracer := noop.NewTracerProvider().Tracer("test")

	return NewHandler(gen, records, limiter, tracer, "https://menu.example.com"), records
}

func authed(req *http.Request) *http.Request {
	return req.WithContext(auth.WithTenantID(req.Context(), "test-tenant"))
}

func TestHandleDescription_Unauthorized(t *testing.T) {
	h, _ := setupTest(nil, true)
	req := httptest.NewRequest("POST", "/v1/menu/descriptions", nil)
	w := httptest.NewRecorder()

	h.HandleDescription(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["error"] != "unauthorized" {
		t.Errorf("Expected unauthorized error, got %v", resp["error"])
	}
}

func TestHandleDescription_InvalidBody(t *testing.T) {
	h, _ := setupTest(nil, true)
	req := authed(httptest.NewRequest("POST", "/v1/menu/descriptions", strings.NewReader(`{invalid json}`)))
	w := httptest.NewRecorder()

	h.HandleDescription(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestHandleDescription_RateLimited(t *testing.T) {
	h, _ := setupTest(nil, false)
	reqBody, _ := json.Marshal(map[string]string{"item_name": "Laksa"})
	req := authed(httptest.NewRequest("POST", "/v1/menu/descriptions", bytes.NewReader(reqBody)))
	w := httptest.NewRecorder()

	h.HandleDescription(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") != "60s" {
		t.Errorf("Expected Retry-After: 60s header, got %s", w.Header().Get("Retry-After"))
	}
}

func TestHandleDescription_Success(t *testing.T) {
	gen := &mockGenerator{
		describeFunc: func(ctx context.Context, tenantID string, req *generation.DescriptionRequest) (*generation.Result, error) {
			if tenantID != "test-tenant" {
				t.Errorf("Unexpected tenant %q", tenantID)
			}
			if req.ItemName != "Buckwheat Fried Chicken" {
				t.Errorf("Unexpected item name %q", req.ItemName)
			}
			return &generation.Result{
				Text:         "Crispy buckwheat-crusted chicken.",
				ProviderUsed: "deepseek",
				Model:        "deepseek-chat",
				TokensUsed:   120,
				CostUSD:      0.0000336,
			}, nil
		},
	}
	h, _ := setupTest(gen, true)

	reqBody, _ := json.Marshal(map[string]interface{}{
		"item_name":   "Buckwheat Fried Chicken",
		"ingredients": []string{"chicken", "buckwheat"},
		"cuisine":     "Asian-fusion",
		"allergens":   []string{"gluten", "eggs"},
		"spice_level": "mild",
	})
	req := authed(httptest.NewRequest("POST", "/v1/menu/descriptions", bytes.NewReader(reqBody)))
	w := httptest.NewRecorder()

	h.HandleDescription(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["text"] != "Crispy buckwheat-crusted chicken." {
		t.Errorf("Unexpected text %v", resp["text"])
	}
	if resp["provider"] != "deepseek" {
		t.Errorf("Unexpected provider %v", resp["provider"])
	}
	if resp["tokens_used"].(float64) != 120 {
		t.Errorf("Unexpected tokens_used %v", resp["tokens_used"])
	}
}

func TestHandleDescription_QuotaExceeded(t *testing.T) {
	gen := &mockGenerator{
		describeFunc: func(ctx context.Context, tenantID string, req *generation.DescriptionRequest) (*generation.Result, error) {
			return nil, generation.ErrQuotaExceeded
		},
	}
	h, _ := setupTest(gen, true)

	reqBody, _ := json.Marshal(map[string]string{"item_name": "Laksa"})
	req := authed(httptest.NewRequest("POST", "/v1/menu/descriptions", bytes.NewReader(reqBody)))
	w := httptest.NewRecorder()

	h.HandleDescription(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", w.Code)
	}

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !strings.Contains(resp["error"], "quota exceeded") {
		t.Errorf("Expected quota message, got %v", resp["error"])
	}
}

func TestHandleDescription_AllProvidersFailedIsSanitized(t *testing.T) {
	gen := &mockGenerator{
		describeFunc: func(ctx context.Context, tenantID string, req *generation.DescriptionRequest) (*generation.Result, error) {
			return nil, errors.Join(generation.ErrAllProvidersFailed, errors.New("deepseek api status 500: secret internals"))
		},
	}
	h, _ := setupTest(gen, true)

	reqBody, _ := json.Marshal(map[string]string{"item_name": "Laksa"})
	req := authed(httptest.NewRequest("POST", "/v1/menu/descriptions", bytes.NewReader(reqBody)))
	w := httptest.NewRecorder()

	h.HandleDescription(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "secret internals") {
		t.Error("Raw provider error text leaked to the caller")
	}
}

func TestHandleTranslation_Success(t *testing.T) {
	h, _ := setupTest(nil, true)

	reqBody, _ := json.Marshal(map[string]string{
		"item_name":       "Spicy Noodles",
		"description":     "A fiery classic.",
		"target_language": "zh",
	})
	req := authed(httptest.NewRequest("POST", "/v1/menu/translations", bytes.NewReader(reqBody)))
	w := httptest.NewRecorder()

	h.HandleTranslation(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["name"] != "mock name" || resp["description"] != "mock description" {
		t.Errorf("Unexpected translation payload: %v", resp)
	}
}

func TestHandleChat_StreamsSSE(t *testing.T) {
	gen := &mockGenerator{
		chatFunc: func(ctx context.Context, tenantID string, req *generation.ChatRequest) (<-chan generation.Fragment, error) {
			if req.Query != "what do you recommend?" {
				t.Errorf("Unexpected query %q", req.Query)
			}
			ch := make(chan generation.Fragment, 3)
			ch <- generation.Fragment{Delta: "Try the"}
			ch <- generation.Fragment{Delta: " laksa."}
			ch <- generation.Fragment{Done: true}
			close(ch)
			return ch, nil
		},
	}
	h, _ := setupTest(gen, true)

	reqBody, _ := json.Marshal(map[string]interface{}{
		"query":      "what do you recommend?",
		"restaurant": map[string]string{"name": "Nasi House"},
	})
	req := authed(httptest.NewRequest("POST", "/v1/chat", bytes.NewReader(reqBody)))
	w := httptest.NewRecorder()

	h.HandleChat(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if w.Header().Get("Content-Type") != "text/event-stream" {
		t.Errorf("Expected text/event-stream content type, got %s", w.Header().Get("Content-Type"))
	}

	body := w.Body.String()
	if !strings.Contains(body, "data: {\"delta\":\"Try the\"}") {
		t.Errorf("Body missing first fragment: %s", body)
	}
	if !strings.Contains(body, "data: {\"delta\":\" laksa.\"}") {
		t.Errorf("Body missing second fragment: %s", body)
	}
	if !strings.Contains(body, "data: [DONE]") {
		t.Errorf("Body missing DONE marker: %s", body)
	}
}

func TestHandleChat_ErrorEvent(t *testing.T) {
	gen := &mockGenerator{
		chatFunc: func(ctx context.Context, tenantID string, req *generation.ChatRequest) (<-chan generation.Fragment, error) {
			ch := make(chan generation.Fragment, 2)
			ch <- generation.Fragment{Delta: "partial "}
			ch <- generation.Fragment{Err: generation.ErrStreamInterrupted}
			close(ch)
			return ch, nil
		},
	}
	h, _ := setupTest(gen, true)

	reqBody, _ := json.Marshal(map[string]string{"query": "hi"})
	req := authed(httptest.NewRequest("POST", "/v1/chat", bytes.NewReader(reqBody)))
	w := httptest.NewRecorder()

	h.HandleChat(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "event: error") {
		t.Errorf("Body missing error event: %s", body)
	}
	if !strings.Contains(body, "chat stream interrupted") {
		t.Errorf("Body missing interrupted message: %s", body)
	}
	if strings.Contains(body, "data: [DONE]") {
		t.Errorf("Interrupted stream must not end with DONE: %s", body)
	}
}

func TestHandleChat_QuotaExceededBeforeStream(t *testing.T) {
	gen := &mockGenerator{
		chatFunc: func(ctx context.Context, tenantID string, req *generation.ChatRequest) (<-chan generation.Fragment, error) {
			return nil, generation.ErrQuotaExceeded
		},
	}
	h, _ := setupTest(gen, true)

	reqBody, _ := json.Marshal(map[string]string{"query": "hi"})
	req := authed(httptest.NewRequest("POST", "/v1/chat", bytes.NewReader(reqBody)))
	w := httptest.NewRecorder()

	h.HandleChat(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", w.Code)
	}
}

func TestHandleUsage_Unauthorized(t *testing.T) {
	h, _ := setupTest(nil, true)
	req := httptest.NewRequest("GET", "/v1/usage", nil)
	w := httptest.NewRecorder()

	h.HandleUsage(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}

func TestHandleUsage_InvalidDateFormat(t *testing.T) {
	h, _ := setupTest(nil, true)
	req := authed(httptest.NewRequest("GET", "/v1/usage?from=not-a-date", nil))
	w := httptest.NewRecorder()

	h.HandleUsage(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestHandleUsage_Success(t *testing.T) {
	h, records := setupTest(nil, true)
	records.listFunc = func(ctx context.Context, tenantID string, from, to time.Time) ([]*ledger.Record, error) {
		return []*ledger.Record{
			{TenantID: "test-tenant", RequestType: "description", Provider: "deepseek"},
			{TenantID: "test-tenant", RequestType: "chat", Provider: "gemini"},
		}, nil
	}
	records.totalCostFunc = func(ctx context.Context, tenantID string, from, to time.Time) (float64, error) {
		return 0.005, nil
	}

	req := authed(httptest.NewRequest("GET", "/v1/usage", nil))
	w := httptest.NewRecorder()

	h.HandleUsage(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp["total_requests"].(float64) != 2 {
		t.Errorf("Expected total_requests == 2, got %v", resp["total_requests"])
	}
	if resp["total_cost_usd"].(float64) != 0.005 {
		t.Errorf("Expected total_cost_usd == 0.005, got %v", resp["total_cost_usd"])
	}
}

func TestHandleMenuQR_Success(t *testing.T) {
	h, _ := setupTest(nil, true)
	req := authed(httptest.NewRequest("GET", "/v1/qr?size=256&table=7", nil))
	w := httptest.NewRecorder()

	h.HandleMenuQR(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if w.Header().Get("Content-Type") != "image/png" {
		t.Errorf("Expected image/png content type, got %s", w.Header().Get("Content-Type"))
	}
	if w.Body.Len() == 0 {
		t.Error("Expected non-empty PNG body")
	}
}

func TestHandleMenuQR_InvalidSize(t *testing.T) {
	h, _ := setupTest(nil, true)
	req := authed(httptest.NewRequest("GET", "/v1/qr?size=99999", nil))
	w := httptest.NewRecorder()

	h.HandleMenuQR(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}
