package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"dukapos/backend/internal/cache"
	"dukapos/backend/internal/domain"
	"dukapos/backend/internal/observe"
	"dukapos/backend/internal/service"
	"dukapos/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager
// and real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.New()
	now := time.Now().UTC()
	adminHash, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	seeds := []domain.UserAccount{
		{
			User: domain.User{
				Username: "admin", Role: domain.RoleAdmin,
				Active: true, CreatedAt: now, UpdatedAt: now,
			},
			PasswordHash: string(adminHash),
		},
		{
			User: domain.User{
				Username: "cashier", Role: domain.RoleCashier,
				Active: true, CreatedAt: now, UpdatedAt: now,
			},
			PINHash: domain.PINDigest("4321"),
		},
	}
	for _, u := range seeds {
		if _, err := repo.SaveUser(context.Background(), u); err != nil {
			t.Fatalf("seed user %s: %v", u.Username, err)
		}
	}

	svc := service.New(repo, observe.NewHub(), cache.NoopReportCache{}, time.Minute)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)
	return New(svc, auth, "*")
}

func decimalFromInt(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func doJSON(t *testing.T, api *API, method, path, token, csrf string, payload any) *httptest.ResponseRecorder {
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
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func loginAdmin(t *testing.T, api *API) string {
	t.Helper()
	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", "", domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("admin login: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func loginCashier(t *testing.T, api *API) string {
	t.Helper()
	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/pin-login", "", "", domain.PINLoginRequest{PIN: "4321"})
	if rec.Code != http.StatusOK {
		t.Fatalf("pin login: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func csrfToken(t *testing.T, api *API) string {
	t.Helper()
	rec := doJSON(t, api, http.MethodGet, "/api/v1/auth/csrf-token", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("csrf token: expected 200, got %d", rec.Code)
	}
	var resp struct {
		CSRFToken string `json:"csrf_token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode csrf response: %v", err)
	}
	return resp.CSRFToken
}

func createProduct(t *testing.T, api *API, token, csrf, code string, qty int) domain.Product {
	t.Helper()
	rec := doJSON(t, api, http.MethodPost, "/api/v1/products", token, csrf, domain.ProductSaveRequest{
		Code:            code,
		Name:            "Product " + code,
		Price:           decimalFromInt(100),
		Cost:            decimalFromInt(60),
		OpeningQuantity: qty,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create product: expected 201, got %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Product domain.Product `json:"product"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode product response: %v", err)
	}
	return resp.Product
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	rec := doJSON(t, api, http.MethodGet, "/healthz", "", "", nil)
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

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodGet, "/api/v1/products", "", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/products", "not-a-token", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with garbage token, got %d", rec.Code)
	}
}

func TestProductLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := loginAdmin(t, api)
	csrf := csrfToken(t, api)

	product := createProduct(t, api, token, csrf, "HTTP-1", 4)
	if product.ID == "" || product.BaseQuantity != 4 {
		t.Fatalf("unexpected product %+v", product)
	}

	rec := doJSON(t, api, http.MethodGet, "/api/v1/products", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list products: expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/products/"+product.ID+"/transactions", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list transactions: expected 200, got %d", rec.Code)
	}
	var ledger struct {
		Transactions []domain.InventoryTransaction `json:"transactions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&ledger); err != nil {
		t.Fatalf("decode transactions: %v", err)
	}
	if len(ledger.Transactions) != 1 || ledger.Transactions[0].NewQuantity != 4 {
		t.Fatalf("expected opening ledger entry, got %+v", ledger.Transactions)
	}

	rec = doJSON(t, api, http.MethodDelete, "/api/v1/products/"+product.ID, token, csrf, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete product: expected 200, got %d", rec.Code)
	}
	rec = doJSON(t, api, http.MethodGet, "/api/v1/products/"+product.ID, token, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestCheckoutOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := loginAdmin(t, api)
	csrf := csrfToken(t, api)
	product := createProduct(t, api, token, csrf, "HTTP-2", 5)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/sales", token, csrf, domain.CheckoutRequest{
		Lines:         []domain.CheckoutLine{{ProductID: product.ID, Qty: 2}},
		PaymentMethod: domain.PaymentMethodCash,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout: expected 201, got %d: %s", rec.Code, rec.Body)
	}

	// Oversell maps to 422.
	rec = doJSON(t, api, http.MethodPost, "/api/v1/sales", token, csrf, domain.CheckoutRequest{
		Lines:         []domain.CheckoutLine{{ProductID: product.ID, Qty: 10}},
		PaymentMethod: domain.PaymentMethodCash,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("oversell: expected 422, got %d: %s", rec.Code, rec.Body)
	}

	// Empty cart maps to 400.
	rec = doJSON(t, api, http.MethodPost, "/api/v1/sales", token, csrf, domain.CheckoutRequest{
		PaymentMethod: domain.PaymentMethodCash,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty cart: expected 400, got %d", rec.Code)
	}
}

func TestStockAdjustEndpoint(t *testing.T) {
	api := newTestAPI(t)
	token := loginAdmin(t, api)
	csrf := csrfToken(t, api)
	product := createProduct(t, api, token, csrf, "HTTP-3", 2)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/stock/adjust", token, csrf, domain.StockAdjustRequest{
		ProductID: product.ID,
		Delta:     3,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("adjust: expected 201, got %d: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/stock/adjust", token, csrf, domain.StockAdjustRequest{
		ProductID: product.ID,
		Delta:     0,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("zero delta: expected 400, got %d", rec.Code)
	}
}

func TestCashierRoleRestrictedOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	cashierToken := loginCashier(t, api)
	csrf := csrfToken(t, api)

	rec := doJSON(t, api, http.MethodGet, "/api/v1/users", cashierToken, "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("users list: expected 403 for cashier, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/purchases", cashierToken, csrf, domain.PurchaseCreateRequest{
		ProductID: "x", SupplierID: "y", Qty: 1, CostPerUnit: decimalFromInt(1),
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("purchases: expected 403 for cashier, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/reports/sales", cashierToken, "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("reports: expected 403 for cashier, got %d", rec.Code)
	}
}

func TestUnknownJSONFieldRejected(t *testing.T) {
	api := newTestAPI(t)
	token := loginAdmin(t, api)
	csrf := csrfToken(t, api)

	raw := []byte(`{"code":"X1","name":"X","price":"10","cost":"5","bogus":true}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", csrf)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on unknown field, got %d: %s", rec.Code, rec.Body)
	}
}

func TestSalesReportOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := loginAdmin(t, api)
	csrf := csrfToken(t, api)
	product := createProduct(t, api, token, csrf, "HTTP-4", 10)

	for i := 0; i < 2; i++ {
		rec := doJSON(t, api, http.MethodPost, "/api/v1/sales", token, csrf, domain.CheckoutRequest{
			Lines:         []domain.CheckoutLine{{ProductID: product.ID, Qty: 1}},
			PaymentMethod: domain.PaymentMethodCash,
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("checkout %d: expected 201, got %d", i, rec.Code)
		}
	}

	from := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	to := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
	rec := doJSON(t, api, http.MethodGet, fmt.Sprintf("/api/v1/reports/sales?from=%s&to=%s", from, to), token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("report: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Report domain.SalesReport `json:"report"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if resp.Report.SaleCount != 2 {
		t.Fatalf("expected 2 sales in report, got %d", resp.Report.SaleCount)
	}
}
