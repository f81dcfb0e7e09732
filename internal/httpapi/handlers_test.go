package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"buildsmart/backend/internal/cache"
	"buildsmart/backend/internal/domain"
	"buildsmart/backend/internal/service"
	"buildsmart/backend/internal/store"
	"buildsmart/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded(domain.DefaultSettings())
	svc := service.New(repo, cache.NoopReportCache{}, nil, time.Second)
	auth := NewAuthManager("test-secret-key", time.Hour, "724913", repo)

	return New(svc, auth, nil, "*", nil)
}

// mustHashPassword generates a bcrypt hash of the given password or fails the test.
func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
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

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "admin123",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["access_token"] == "" || body["access_token"] == nil {
		t.Fatalf("expected access_token in response, got %v", body)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProducts_WithValidToken(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAsAdmin(t, api)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["products"] == nil {
		t.Fatalf("expected products key in response, got %v", body)
	}
}

func TestHandleCheckout_Success(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	payload, _ := json.Marshal(map[string]any{
		"lines": []map[string]any{
			{"product_id": "prod-001", "qty": "2"},
		},
		"payment_method": "cash",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", csrf)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var resp domain.SaleResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TransactionID == "" {
		t.Fatalf("expected transaction id in response")
	}
	if resp.Status != domain.TransactionCommitted {
		t.Fatalf("expected committed status, got %s", resp.Status)
	}
}

func TestHandleCheckout_InsufficientStockConflict(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	// Seeded paint stock is 2; asking for 5 must fail with 409.
	payload, _ := json.Marshal(map[string]any{
		"lines": []map[string]any{
			{"product_id": "prod-002", "qty": "5"},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", csrf)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleRefunds_FullFlow(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAsAdmin(t, api)
	csrf := fetchCSRFToken(t, api)

	checkoutPayload, _ := json.Marshal(map[string]any{
		"lines": []map[string]any{
			{"product_id": "prod-004", "qty": "1"},
		},
	})
	checkoutReq := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewReader(checkoutPayload))
	checkoutReq.Header.Set("Content-Type", "application/json")
	checkoutReq.Header.Set("Authorization", "Bearer "+token)
	checkoutReq.Header.Set("X-CSRF-Token", csrf)
	checkoutRec := httptest.NewRecorder()
	handler.ServeHTTP(checkoutRec, checkoutReq)

	if checkoutRec.Code != http.StatusOK {
		t.Fatalf("checkout failed: %d %s", checkoutRec.Code, checkoutRec.Body.String())
	}
	var sale domain.SaleResponse
	if err := json.NewDecoder(checkoutRec.Body).Decode(&sale); err != nil {
		t.Fatalf("decode checkout response: %v", err)
	}

	refundPayload, _ := json.Marshal(map[string]any{
		"transaction_id": sale.TransactionID,
		"reason":         "customer return",
		"restore_stock":  true,
		"manager_pin":    "724913",
	})
	refundReq := httptest.NewRequest(http.MethodPost, "/api/v1/refunds", bytes.NewReader(refundPayload))
	refundReq.Header.Set("Content-Type", "application/json")
	refundReq.Header.Set("Authorization", "Bearer "+token)
	refundReq.Header.Set("X-CSRF-Token", csrf)
	refundRec := httptest.NewRecorder()
	handler.ServeHTTP(refundRec, refundReq)

	if refundRec.Code != http.StatusOK {
		t.Fatalf("refund failed: %d %s", refundRec.Code, refundRec.Body.String())
	}

	// A second refund for the same transaction must be rejected.
	secondPayload, _ := json.Marshal(map[string]any{
		"transaction_id": sale.TransactionID,
		"reason":         "second attempt",
		"manager_pin":    "724913",
	})
	secondReq := httptest.NewRequest(http.MethodPost, "/api/v1/refunds", bytes.NewReader(secondPayload))
	secondReq.Header.Set("Content-Type", "application/json")
	secondReq.Header.Set("Authorization", "Bearer "+token)
	secondReq.Header.Set("X-CSRF-Token", csrf)
	secondRec := httptest.NewRecorder()
	handler.ServeHTTP(secondRec, secondReq)

	if secondRec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for second refund, got %d (body: %s)", secondRec.Code, secondRec.Body.String())
	}
}

func TestHandleRefunds_RequiresAdminRole(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	csrf := fetchCSRFToken(t, api)

	loginPayload, _ := json.Marshal(map[string]string{
		"username": "cashier",
		"password": "cashier123",
	})
	loginReq := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(loginPayload))
	loginReq.Header.Set("Content-Type", "application/json")
	loginRec := httptest.NewRecorder()
	handler.ServeHTTP(loginRec, loginReq)
	if loginRec.Code != http.StatusOK {
		t.Fatalf("cashier login failed: %d", loginRec.Code)
	}
	var loginResp domain.LoginResponse
	if err := json.NewDecoder(loginRec.Body).Decode(&loginResp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}

	payload, _ := json.Marshal(map[string]any{
		"transaction_id": "tx-whatever",
		"reason":         "test",
		"manager_pin":    "724913",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/refunds", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+loginResp.AccessToken)
	req.Header.Set("X-CSRF-Token", csrf)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier refund, got %d", rec.Code)
	}
}

func TestHandleDailyReport_CSVFormat(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAsAdmin(t, api)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/daily?format=csv", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Fatalf("expected csv content type, got %q", ct)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("summary,transactions")) {
		t.Fatalf("expected csv summary rows, got %s", rec.Body.String())
	}
}

func TestHandleLicenseStatus_Unmanaged(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/license/status", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var status domain.LicenseStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Activated {
		t.Fatalf("expected unmanaged license to report activated")
	}
}

// TestMustHashPassword verifies that the test helper produces valid bcrypt hashes
// (used to confirm test infrastructure is sound).
func TestMustHashPassword(t *testing.T) {
	hash := mustHashPassword(t, "secret")
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret")); err != nil {
		t.Fatalf("hash verification failed: %v", err)
	}
}

func TestCommitFailureResponseMasksDriverError(t *testing.T) {
	err := fmt.Errorf("%w: write tx: SQLSTATE 40001 serialization failure", store.ErrCommitFailed)

	status := statusForError(err)
	if status != http.StatusInternalServerError {
		t.Fatalf("expected 500 for commit failures, got %d", status)
	}

	rec := httptest.NewRecorder()
	writeError(rec, status, err)

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "internal server error" {
		t.Fatalf("expected generic message, got %q", body["error"])
	}
	if strings.Contains(body["error"], "SQLSTATE") {
		t.Fatalf("driver error leaked to client: %q", body["error"])
	}
}
