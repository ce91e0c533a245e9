package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tally/internal/services"
	"tally/internal/store/memory"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st := memory.New()
	srv := NewServer(":0",
		services.NewLedgerService(st, nil),
		services.NewBudgetService(st),
		services.NewGoalService(st, nil),
	)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func seedInitialBalance(t *testing.T, srv *Server, owner, method, amount string) {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPut, "/balances/initial", map[string]string{
		"owner_id": owner, "method": method, "amount": amount,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed balance: status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}
}

func TestHandleTransactions_Create(t *testing.T) {
	srv := newTestServer(t)
	seedInitialBalance(t, srv, "o1", "card", "500.00")

	rec := doJSON(t, srv, http.MethodPost, "/transactions", map[string]string{
		"owner_id":    "o1",
		"type":        "expense",
		"category":    "Groceries",
		"amount":      "12,50",
		"method":      "card",
		"occurred_on": "2024-05-03",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp transactionResponse
	decodeBody(t, rec, &resp)
	if resp.TransactionID == "" {
		t.Error("missing transaction id")
	}
	if resp.Balance.Amount != "487.50" {
		t.Errorf("balance = %s, want 487.50", resp.Balance.Amount)
	}
	if resp.Replayed {
		t.Error("fresh transaction marked replayed")
	}
}

func TestHandleTransactions_ErrorMapping(t *testing.T) {
	srv := newTestServer(t)
	seedInitialBalance(t, srv, "o1", "card", "10.00")

	base := map[string]string{
		"owner_id":    "o1",
		"type":        "expense",
		"category":    "groceries",
		"amount":      "5.00",
		"method":      "card",
		"occurred_on": "2024-05-03",
	}
	clone := func(over map[string]string) map[string]string {
		m := make(map[string]string, len(base))
		for k, v := range base {
			m[k] = v
		}
		for k, v := range over {
			m[k] = v
		}
		return m
	}

	tests := []struct {
		name       string
		body       map[string]string
		wantStatus int
		wantKind   string
	}{
		{
			name:       "insufficient funds",
			body:       clone(map[string]string{"amount": "150.00"}),
			wantStatus: http.StatusUnprocessableEntity,
			wantKind:   "insufficient_funds",
		},
		{
			name:       "unknown category",
			body:       clone(map[string]string{"category": "yachts"}),
			wantStatus: http.StatusUnprocessableEntity,
			wantKind:   "validation_error",
		},
		{
			name:       "negative amount",
			body:       clone(map[string]string{"amount": "-5.00"}),
			wantStatus: http.StatusUnprocessableEntity,
			wantKind:   "validation_error",
		},
		{
			name:       "bad date",
			body:       clone(map[string]string{"occurred_on": "03/05/2024"}),
			wantStatus: http.StatusUnprocessableEntity,
			wantKind:   "validation_error",
		},
		{
			name:       "balance never set",
			body:       clone(map[string]string{"owner_id": "nobody"}),
			wantStatus: http.StatusNotFound,
			wantKind:   "not_found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, srv, http.MethodPost, "/transactions", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			var errResp errorResponse
			decodeBody(t, rec, &errResp)
			if errResp.Error != tt.wantKind {
				t.Errorf("error kind = %q, want %q", errResp.Error, tt.wantKind)
			}
		})
	}
}

func TestHandleTransactions_IdempotentReplay(t *testing.T) {
	srv := newTestServer(t)
	seedInitialBalance(t, srv, "o1", "card", "100.00")

	body := map[string]string{
		"owner_id":        "o1",
		"type":            "expense",
		"category":        "dining",
		"amount":          "20.00",
		"method":          "card",
		"occurred_on":     "2024-05-03",
		"idempotency_key": "req-1",
	}

	first := doJSON(t, srv, http.MethodPost, "/transactions", body)
	if first.Code != http.StatusCreated {
		t.Fatalf("first status = %d", first.Code)
	}
	second := doJSON(t, srv, http.MethodPost, "/transactions", body)
	if second.Code != http.StatusOK {
		t.Fatalf("replay status = %d, want 200", second.Code)
	}

	var firstResp, secondResp transactionResponse
	decodeBody(t, first, &firstResp)
	decodeBody(t, second, &secondResp)
	if !secondResp.Replayed {
		t.Error("replay not flagged")
	}
	if secondResp.TransactionID != firstResp.TransactionID {
		t.Errorf("replay id %s, want %s", secondResp.TransactionID, firstResp.TransactionID)
	}
	if secondResp.Balance.Amount != "80.00" {
		t.Errorf("replay balance = %s, want 80.00", secondResp.Balance.Amount)
	}
}

func TestHandleInitialBalance_Conflict(t *testing.T) {
	srv := newTestServer(t)
	seedInitialBalance(t, srv, "o1", "wallet", "50.00")

	rec := doJSON(t, srv, http.MethodPut, "/balances/initial", map[string]string{
		"owner_id": "o1", "method": "wallet", "amount": "99.00",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("re-set status = %d, want 409", rec.Code)
	}
}

func TestHandleBudgets(t *testing.T) {
	srv := newTestServer(t)
	seedInitialBalance(t, srv, "o1", "card", "1000.00")

	rec := doJSON(t, srv, http.MethodPut, "/budgets", map[string]string{
		"owner_id":  "o1",
		"category":  "groceries",
		"limit":     "300.00",
		"frequency": "monthly",
		"anchor":    "2024-05-01",
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("set limit status = %d, body %s", rec.Code, rec.Body.String())
	}

	spend := doJSON(t, srv, http.MethodPost, "/transactions", map[string]string{
		"owner_id":    "o1",
		"type":        "expense",
		"category":    "groceries",
		"amount":      "120.00",
		"method":      "card",
		"occurred_on": "2024-04-10",
	})
	if spend.Code != http.StatusCreated {
		t.Fatalf("spend status = %d", spend.Code)
	}

	status := doJSON(t, srv, http.MethodGet, "/budgets/status?owner_id=o1&category=groceries&date=2024-04-20", nil)
	if status.Code != http.StatusOK {
		t.Fatalf("status code = %d, body %s", status.Code, status.Body.String())
	}
	var view budgetStatusView
	decodeBody(t, status, &view)
	if view.Spent != "120.00" {
		t.Errorf("spent = %s, want 120.00", view.Spent)
	}
	if view.Percentage != 40 {
		t.Errorf("percentage = %v, want 40", view.Percentage)
	}
	if view.PeriodStart != "2024-04-01" || view.PeriodEnd != "2024-05-01" {
		t.Errorf("window = [%s, %s], want [2024-04-01, 2024-05-01]", view.PeriodStart, view.PeriodEnd)
	}

	list := doJSON(t, srv, http.MethodGet, "/budgets?owner_id=o1", nil)
	if list.Code != http.StatusOK {
		t.Fatalf("list status = %d", list.Code)
	}
	var listResp struct {
		Budgets []budgetStatusView `json:"budgets"`
	}
	decodeBody(t, list, &listResp)
	if len(listResp.Budgets) != 1 {
		t.Errorf("listed %d budgets, want 1", len(listResp.Budgets))
	}

	missing := doJSON(t, srv, http.MethodGet, "/budgets/status?owner_id=o1&category=travel", nil)
	if missing.Code != http.StatusNotFound {
		t.Errorf("missing limit status = %d, want 404", missing.Code)
	}
}

func TestHandleGoals_AllocateFlow(t *testing.T) {
	srv := newTestServer(t)
	seedInitialBalance(t, srv, "o1", "card", "250.00")

	created := doJSON(t, srv, http.MethodPost, "/goals", map[string]string{
		"owner_id": "o1",
		"name":     "bike",
		"target":   "500.00",
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("create goal status = %d, body %s", created.Code, created.Body.String())
	}
	var goal goalView
	decodeBody(t, created, &goal)
	if goal.ID == "" || goal.Status != "active" {
		t.Fatalf("created goal = %+v, want active with id", goal)
	}

	alloc := doJSON(t, srv, http.MethodPost, "/goals/allocate", map[string]string{
		"owner_id": "o1",
		"goal_id":  goal.ID,
		"method":   "card",
		"amount":   "100.00",
	})
	if alloc.Code != http.StatusOK {
		t.Fatalf("allocate status = %d, body %s", alloc.Code, alloc.Body.String())
	}
	var outcome allocateResponse
	decodeBody(t, alloc, &outcome)
	if outcome.Allocated != "100.00" || outcome.Leftover != "0.00" {
		t.Errorf("allocated/leftover = %s/%s, want 100.00/0.00", outcome.Allocated, outcome.Leftover)
	}
	if outcome.Balance.Amount != "150.00" {
		t.Errorf("balance = %s, want 150.00", outcome.Balance.Amount)
	}
	if outcome.Goal.Current != "100.00" {
		t.Errorf("goal current = %s, want 100.00", outcome.Goal.Current)
	}

	over := doJSON(t, srv, http.MethodPost, "/goals/allocate", map[string]string{
		"owner_id": "o1",
		"goal_id":  goal.ID,
		"method":   "card",
		"amount":   "10000.00",
	})
	if over.Code != http.StatusUnprocessableEntity {
		t.Errorf("overdraw status = %d, want 422", over.Code)
	}

	list := doJSON(t, srv, http.MethodGet, "/goals?owner_id=o1", nil)
	if list.Code != http.StatusOK {
		t.Fatalf("list goals status = %d", list.Code)
	}
	var listResp struct {
		Active    []goalView `json:"active"`
		Completed []goalView `json:"completed"`
	}
	decodeBody(t, list, &listResp)
	if len(listResp.Active) != 1 || len(listResp.Completed) != 0 {
		t.Errorf("partitions = %d active / %d completed, want 1/0", len(listResp.Active), len(listResp.Completed))
	}
}

func TestHandleReconcile(t *testing.T) {
	srv := newTestServer(t)
	seedInitialBalance(t, srv, "o1", "card", "100.00")

	rec := doJSON(t, srv, http.MethodPost, "/balances/reconcile", map[string]string{"owner_id": "o1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("reconcile status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Card     string   `json:"card"`
		Wallet   string   `json:"wallet"`
		Repaired []string `json:"repaired"`
	}
	decodeBody(t, rec, &resp)
	if resp.Card != "100.00" {
		t.Errorf("card = %s, want 100.00", resp.Card)
	}
	if len(resp.Repaired) != 0 {
		t.Errorf("repaired = %v, want none", resp.Repaired)
	}
}

func TestHandleMonthOverview_CacheInvalidation(t *testing.T) {
	srv := newTestServer(t)
	seedInitialBalance(t, srv, "o1", "card", "1000.00")

	post := func(amount string) {
		rec := doJSON(t, srv, http.MethodPost, "/transactions", map[string]string{
			"owner_id":    "o1",
			"type":        "expense",
			"category":    "dining",
			"amount":      amount,
			"method":      "card",
			"occurred_on": "2024-05-10",
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("post transaction: status %d", rec.Code)
		}
	}

	post("10.00")

	first := doJSON(t, srv, http.MethodGet, "/reports/month?owner_id=o1&year=2024&month=5", nil)
	if first.Code != http.StatusOK {
		t.Fatalf("overview status = %d", first.Code)
	}
	var ov overviewResponse
	decodeBody(t, first, &ov)
	if ov.Expense != "10.00" {
		t.Errorf("expense = %s, want 10.00", ov.Expense)
	}

	// A write in the same month must invalidate the cached report.
	post("5.00")

	second := doJSON(t, srv, http.MethodGet, "/reports/month?owner_id=o1&year=2024&month=5", nil)
	decodeBody(t, second, &ov)
	if ov.Expense != "15.00" {
		t.Errorf("expense after invalidation = %s, want 15.00", ov.Expense)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodDelete, "/transactions"},
		{http.MethodGet, "/balances/reconcile"},
		{http.MethodPost, "/budgets/status"},
		{http.MethodPut, "/goals/allocate"},
	}
	for _, tt := range tests {
		rec := doJSON(t, srv, tt.method, tt.path, nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s status = %d, want 405", tt.method, tt.path, rec.Code)
		}
	}
}

func TestMalformedBody(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/transactions", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", rec.Code)
	}
}
