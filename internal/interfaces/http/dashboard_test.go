package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"horizon/internal/domain/account"
	"horizon/internal/domain/aggregation"
	"horizon/internal/domain/balance"
	"horizon/internal/domain/transaction"
	"horizon/internal/domain/user"
)

// MockDashboard implements Dashboard for testing
type MockDashboard struct {
	AggregateForCallerFunc func(ctx context.Context, selectedAccountID string, maxAge time.Duration) (*aggregation.Result, error)
}

func (m *MockDashboard) AggregateForCaller(ctx context.Context, selectedAccountID string, maxAge time.Duration) (*aggregation.Result, error) {
	if m.AggregateForCallerFunc != nil {
		return m.AggregateForCallerFunc(ctx, selectedAccountID, maxAge)
	}
	return nil, nil
}

func twoBankResult() *aggregation.Result {
	d := func(s string) decimal.Decimal { return decimal.RequireFromString(s) }
	return &aggregation.Result{
		View: &aggregation.AggregateView{
			RequestID: "req-1",
			UserID:    "u1",
			Accounts: []account.Account{
				{ID: "a1", InstitutionID: "bank-a", InstitutionName: "Bank A", Name: "Checking", CurrentBalance: d("1250.35"), Currency: "USD", Type: account.TypeChecking},
				{ID: "a2", InstitutionID: "bank-b", InstitutionName: "Bank B", Name: "Card", CurrentBalance: d("-626.35"), Currency: "USD", Type: account.TypeCredit},
			},
			ActiveAccountID:     "a1",
			TotalBanks:          2,
			TotalCurrentBalance: d("624.00"),
			Currency:            "USD",
			BalancesByCurrency:  []balance.CurrencyTotal{{Currency: "USD", Total: d("624.00"), AccountCount: 2}},
			PerInstitution: []balance.InstitutionSubtotal{
				{InstitutionID: "bank-a", InstitutionName: "Bank A", Subtotal: d("1250.35"), Currency: "USD", AccountCount: 1},
				{InstitutionID: "bank-b", InstitutionName: "Bank B", Subtotal: d("-626.35"), Currency: "USD", AccountCount: 1},
			},
			Transactions: []transaction.Transaction{
				{ID: "t1", AccountID: "a1", Amount: d("-4.50"), Currency: "USD", Date: time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), Name: "Coffee"},
			},
			GeneratedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		},
		Diagnostics: []aggregation.Diagnostic{},
	}
}

func TestHandleDashboard(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		query          string
		result         *aggregation.Result
		err            error
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "Success",
			method:         http.MethodGet,
			result:         twoBankResult(),
			expectedStatus: http.StatusOK,
			expectedBody:   `"totalCurrentBalance":"624"`,
		},
		{
			name:           "Unauthenticated",
			method:         http.MethodGet,
			err:            aggregation.ErrUnauthenticated,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Provider Unavailable",
			method:         http.MethodGet,
			err:            &aggregation.ProviderUnavailableError{UserID: "u1", Err: errors.New("503 from upstream")},
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   "unable to load accounts right now",
		},
		{
			name:           "Unexpected Error",
			method:         http.MethodGet,
			err:            errors.New("boom"),
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name:           "Bad maxAge",
			method:         http.MethodGet,
			query:          "?maxAge=yesterday",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Method Not Allowed",
			method:         http.MethodPost,
			expectedStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockDashboard{
				AggregateForCallerFunc: func(ctx context.Context, selected string, maxAge time.Duration) (*aggregation.Result, error) {
					return tt.result, tt.err
				},
			}
			handler := NewDashboardHandler(mock, 0, nil)

			req := httptest.NewRequest(tt.method, "/api/dashboard"+tt.query, nil)
			rr := httptest.NewRecorder()
			handler.HandleDashboard(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, tt.expectedStatus)
			}
			if tt.expectedBody != "" && !strings.Contains(rr.Body.String(), tt.expectedBody) {
				t.Errorf("body %q does not contain %q", rr.Body.String(), tt.expectedBody)
			}
		})
	}
}

func TestHandleDashboard_Response(t *testing.T) {
	mock := &MockDashboard{
		AggregateForCallerFunc: func(ctx context.Context, selected string, maxAge time.Duration) (*aggregation.Result, error) {
			return twoBankResult(), nil
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	rr := httptest.NewRecorder()
	NewDashboardHandler(mock, 0, nil).HandleDashboard(rr, req)

	var resp struct {
		TotalBanks   int    `json:"totalBanks"`
		TotalDisplay string `json:"totalDisplay"`
		Accounts     []struct {
			ID             string `json:"id"`
			CurrentBalance string `json:"currentBalance"`
			BalanceDisplay string `json:"balanceDisplay"`
		} `json:"accounts"`
		Transactions []struct {
			AmountDisplay string `json:"amountDisplay"`
		} `json:"transactions"`
		Degraded    bool              `json:"degraded"`
		Diagnostics []json.RawMessage `json:"diagnostics"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if resp.TotalBanks != 2 {
		t.Errorf("totalBanks = %d, want 2", resp.TotalBanks)
	}
	if resp.TotalDisplay != "$624.00" {
		t.Errorf("totalDisplay = %q, want $624.00", resp.TotalDisplay)
	}
	if len(resp.Accounts) != 2 || resp.Accounts[0].BalanceDisplay != "$1,250.35" || resp.Accounts[0].CurrentBalance != "1250.35" {
		t.Errorf("unexpected accounts %+v", resp.Accounts)
	}
	if len(resp.Transactions) != 1 || resp.Transactions[0].AmountDisplay != "-$4.50" {
		t.Errorf("unexpected transactions %+v", resp.Transactions)
	}
	if resp.Degraded {
		t.Error("degraded = true, want false")
	}
	if resp.Diagnostics == nil {
		t.Error("diagnostics should be an empty array, not null")
	}
}

func TestHandleDashboard_Degraded(t *testing.T) {
	mock := &MockDashboard{
		AggregateForCallerFunc: func(ctx context.Context, selected string, maxAge time.Duration) (*aggregation.Result, error) {
			r := twoBankResult()
			r.View.Transactions = nil
			r.Diagnostics = []aggregation.Diagnostic{{
				Kind:      aggregation.KindTransactionsDegraded,
				Stage:     aggregation.StateFetchingTransactions,
				AccountID: "a1",
				Message:   "transactions unavailable",
				Err:       errors.New("timeout"),
			}}
			return r, nil
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/dashboard?accountId=a1", nil)
	rr := httptest.NewRecorder()
	NewDashboardHandler(mock, 0, nil).HandleDashboard(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{`"degraded":true`, `"kind":"transactions_degraded"`, `"transactions":[]`} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %s: %s", want, body)
		}
	}
	if strings.Contains(body, "timeout") {
		t.Error("wrapped error text must not leak into the response")
	}
}

func TestHandleDashboard_Params(t *testing.T) {
	tests := []struct {
		query       string
		wantAccount string
		wantMaxAge  time.Duration
	}{
		{query: "", wantMaxAge: 30 * time.Second},
		{query: "?accountId=a2", wantAccount: "a2", wantMaxAge: 30 * time.Second},
		{query: "?maxAge=90", wantMaxAge: 90 * time.Second},
		{query: "?maxAge=5m&accountId=a1", wantAccount: "a1", wantMaxAge: 5 * time.Minute},
		{query: "?maxAge=0", wantMaxAge: 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			var gotAccount string
			var gotMaxAge time.Duration
			mock := &MockDashboard{
				AggregateForCallerFunc: func(ctx context.Context, selected string, maxAge time.Duration) (*aggregation.Result, error) {
					gotAccount, gotMaxAge = selected, maxAge
					return twoBankResult(), nil
				},
			}
			req := httptest.NewRequest(http.MethodGet, "/api/dashboard"+tt.query, nil)
			NewDashboardHandler(mock, 30*time.Second, nil).HandleDashboard(httptest.NewRecorder(), req)

			if gotAccount != tt.wantAccount {
				t.Errorf("accountId = %q, want %q", gotAccount, tt.wantAccount)
			}
			if gotMaxAge != tt.wantMaxAge {
				t.Errorf("maxAge = %v, want %v", gotMaxAge, tt.wantMaxAge)
			}
		})
	}
}

func TestParseMaxAge_Negative(t *testing.T) {
	for _, raw := range []string{"-5", "-1m"} {
		if _, err := parseMaxAge(raw, 0); err == nil {
			t.Errorf("parseMaxAge(%q) expected error", raw)
		}
	}
}

func TestHandleMe(t *testing.T) {
	tests := []struct {
		name           string
		ctx            context.Context
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "Logged In",
			ctx:            user.WithUser(context.Background(), user.User{ID: "u1", Name: "Ana", Email: "ana@example.com"}),
			expectedStatus: http.StatusOK,
			expectedBody:   `"name":"Ana"`,
		},
		{
			name:           "Anonymous",
			ctx:            context.Background(),
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil).WithContext(tt.ctx)
			rr := httptest.NewRecorder()
			NewUserHandler(user.ContextProvider{}).HandleMe(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.expectedStatus)
			}
			if tt.expectedBody != "" && !strings.Contains(rr.Body.String(), tt.expectedBody) {
				t.Errorf("body %q missing %q", rr.Body.String(), tt.expectedBody)
			}
		})
	}
}

func TestHandleHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name           string
		checks         map[string]HealthCheck
		expectedStatus int
		expectedBody   string
	}{
		{name: "No Checks", expectedStatus: http.StatusOK, expectedBody: `"status":"ok"`},
		{name: "All Healthy", checks: map[string]HealthCheck{"database": ok, "cache": ok}, expectedStatus: http.StatusOK, expectedBody: `"database":"ok"`},
		{name: "Cache Down", checks: map[string]HealthCheck{"database": ok, "cache": down}, expectedStatus: http.StatusServiceUnavailable, expectedBody: `"cache":"unavailable"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			NewHealthHandler(tt.checks, nil).HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rr.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.expectedStatus)
			}
			if !strings.Contains(rr.Body.String(), tt.expectedBody) {
				t.Errorf("body %q missing %q", rr.Body.String(), tt.expectedBody)
			}
		})
	}
}
