package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"salonkita/backend/internal/cache"
	"salonkita/backend/internal/pricing"
	"salonkita/backend/internal/service"
	"salonkita/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, pricing.NewEngine(false), cache.NoopBalanceCache{}, 5*time.Second, "main-salon")
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*")
}

func loginToken(t *testing.T, handler http.Handler, username string, password string) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d (%s)", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode login body: %v", err)
	}
	token, _ := body["access_token"].(string)
	if token == "" {
		t.Fatalf("expected access token, got %v", body)
	}
	return token
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestVisitLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "staff", "staff123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/visits", token, map[string]any{
		"customer_id": "cust-dewi",
		"status":      "draft",
		"line_items": []map[string]any{
			{"item_type": "service", "service_id": "svc-haircut", "qty": 1},
		},
		"payments": []map[string]any{
			{"method": "cash", "amount": 150000},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create visit: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	var created struct {
		Visit struct {
			ID     string `json:"id"`
			Total  int64  `json:"total_amount"`
			Status string `json:"status"`
		} `json:"visit"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode visit: %v", err)
	}
	if created.Visit.Total != 150000 {
		t.Fatalf("expected total 150000, got %d", created.Visit.Total)
	}
	if created.Visit.Status != "draft" {
		t.Fatalf("expected draft, got %s", created.Visit.Status)
	}

	rec = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/v1/visits/%s/finalize", created.Visit.ID), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("finalize: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	// Second finalize is a validation failure, not a 500.
	rec = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/v1/visits/%s/finalize", created.Visit.ID), token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("double finalize: expected 400, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/v1/visits/%s", created.Visit.ID), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get visit: expected 200, got %d", rec.Code)
	}
}

func TestCreateVisitValidationReturns400(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "staff", "staff123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/visits", token, map[string]any{
		"customer_id": "cust-dewi",
		"line_items": []map[string]any{
			{"item_type": "service", "service_id": "svc-haircut", "product_id": "prod-shampoo", "qty": 1},
		},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for ambiguous item ref, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestPrepaidUseConflictStatuses(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "staff", "staff123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/prepaid/use", token, map[string]any{
		"customer_id": "cust-dewi",
		"amount":      10000,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 with no accounts, got %d (%s)", rec.Code, rec.Body.String())
	}

	adminToken := loginToken(t, handler, "admin", "admin123")
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/prepaid/sell", adminToken, map[string]any{
		"customer_id": "cust-dewi",
		"plan_id":     "plan-500",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("sell prepaid: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/prepaid/use", token, map[string]any{
		"customer_id": "cust-dewi",
		"amount":      600000,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for overdraw, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/prepaid/use", token, map[string]any{
		"customer_id": "cust-dewi",
		"amount":      50000,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for valid draw, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/customers/cust-dewi/balance", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("balance: expected 200, got %d", rec.Code)
	}
	var body struct {
		Balance struct {
			PrepaidBalance int64 `json:"prepaid_balance"`
		} `json:"balance"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if body.Balance.PrepaidBalance != 500000 {
		t.Fatalf("expected remaining 500000, got %d", body.Balance.PrepaidBalance)
	}
}

func TestPointRedeemInsufficientReturns409(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "staff", "staff123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/points/redeem", token, map[string]any{
		"customer_id": "cust-rina",
		"points":      500,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestAdminOnlyRoutesRejectStaff(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "staff", "staff123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/points/adjust", token, map[string]any{
		"customer_id":  "cust-dewi",
		"points_delta": 100,
		"memo":         "test",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff on adjust, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/audit-logs", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff on audit logs, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/services", token, map[string]any{
		"name":       "Pedicure",
		"list_price": 90000,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff creating a service, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestInventoryEndpoints(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginToken(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/inventory/purchase", token, map[string]any{
		"product_id": "prod-color-tube",
		"qty":        15,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("purchase: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/inventory/stock?product_id=prod-color-tube", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stock: expected 200, got %d", rec.Code)
	}
	var stock struct {
		CurrentStock int `json:"current_stock"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&stock); err != nil {
		t.Fatalf("decode stock: %v", err)
	}
	if stock.CurrentStock != 15 {
		t.Fatalf("expected stock 15, got %d", stock.CurrentStock)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/inventory/purchase", token, map[string]any{
		"product_id": "prod-shampoo",
		"qty":        5,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for retail-only product, got %d", rec.Code)
	}
}

func TestStoreEndpoints(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	adminToken := loginToken(t, handler, "admin", "admin123")
	staffToken := loginToken(t, handler, "staff", "staff123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/stores", staffToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get default store: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/stores", staffToken, map[string]any{"name": "Branch Dua"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("staff store create: expected 403, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/stores", adminToken, map[string]any{"name": "Branch Dua"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin store create: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var created struct {
		Store struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"store"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode store: %v", err)
	}
	if created.Store.ID == "" || created.Store.Name != "Branch Dua" {
		t.Fatalf("unexpected store payload: %+v", created.Store)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/stores?store_id="+created.Store.ID, staffToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get created store: expected 200, got %d", rec.Code)
	}
}
