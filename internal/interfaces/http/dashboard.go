package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"horizon/internal/domain/account"
	"horizon/internal/domain/aggregation"
	"horizon/internal/domain/balance"
	"horizon/internal/domain/transaction"
	"horizon/internal/shared/money"
)

// Dashboard is satisfied by *aggregation.CachedService.
type Dashboard interface {
	AggregateForCaller(ctx context.Context, selectedAccountID string, maxAge time.Duration) (*aggregation.Result, error)
}

type DashboardHandler struct {
	dashboard     Dashboard
	defaultMaxAge time.Duration
	logger        *zap.Logger
}

// NewDashboardHandler serves the caller's consolidated view. defaultMaxAge
// applies when the request carries no maxAge.
func NewDashboardHandler(dashboard Dashboard, defaultMaxAge time.Duration, logger *zap.Logger) *DashboardHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardHandler{dashboard: dashboard, defaultMaxAge: defaultMaxAge, logger: logger}
}

// HTTP response types. Every amount carries the exact decimal string plus a
// display string formatted for its currency.
type DashboardResponse struct {
	RequestID           string                   `json:"requestId"`
	UserID              string                   `json:"userId"`
	ActiveAccountID     string                   `json:"activeAccountId,omitempty"`
	TotalBanks          int                      `json:"totalBanks"`
	TotalCurrentBalance decimal.Decimal          `json:"totalCurrentBalance"`
	TotalDisplay        string                   `json:"totalDisplay"`
	Currency            string                   `json:"currency,omitempty"`
	Accounts            []AccountResponse        `json:"accounts"`
	BalancesByCurrency  []CurrencyTotalResponse  `json:"balancesByCurrency"`
	PerInstitution      []InstitutionResponse    `json:"perInstitution"`
	Transactions        []TransactionResponse    `json:"transactions"`
	GeneratedAt         time.Time                `json:"generatedAt"`
	Degraded            bool                     `json:"degraded"`
	Diagnostics         []aggregation.Diagnostic `json:"diagnostics"`
}

type AccountResponse struct {
	account.Account
	BalanceDisplay string `json:"balanceDisplay"`
}

type CurrencyTotalResponse struct {
	balance.CurrencyTotal
	Display string `json:"display"`
}

type InstitutionResponse struct {
	balance.InstitutionSubtotal
	Display string `json:"display"`
}

type TransactionResponse struct {
	transaction.Transaction
	AmountDisplay string `json:"amountDisplay"`
}

// HandleDashboard handles GET /api/dashboard?accountId=&maxAge=.
func (h *DashboardHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	maxAge, err := parseMaxAge(query.Get("maxAge"), h.defaultMaxAge)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "maxAge must be a duration such as 30s or a number of seconds"})
		return
	}

	result, err := h.dashboard.AggregateForCaller(r.Context(), query.Get("accountId"), maxAge)
	switch {
	case err == nil:
	case errors.Is(err, aggregation.ErrUnauthenticated):
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		// Client went away; nobody is listening for a response.
		return
	case errors.Is(err, aggregation.ErrProviderUnavailable):
		h.logger.Warn("dashboard unavailable", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": aggregation.ErrProviderUnavailable.Error()})
		return
	default:
		h.logger.Error("dashboard failed", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, toDashboardResponse(result))
}

// parseMaxAge accepts a Go duration ("90s", "5m") or whole seconds ("90").
func parseMaxAge(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			return 0, errors.New("negative maxAge")
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, errors.New("negative maxAge")
	}
	return d, nil
}

func toDashboardResponse(result *aggregation.Result) DashboardResponse {
	v := result.View
	resp := DashboardResponse{
		RequestID:           v.RequestID,
		UserID:              v.UserID,
		ActiveAccountID:     v.ActiveAccountID,
		TotalBanks:          v.TotalBanks,
		TotalCurrentBalance: v.TotalCurrentBalance,
		TotalDisplay:        money.Format(v.TotalCurrentBalance, v.Currency),
		Currency:            v.Currency,
		Accounts:            make([]AccountResponse, 0, len(v.Accounts)),
		BalancesByCurrency:  make([]CurrencyTotalResponse, 0, len(v.BalancesByCurrency)),
		PerInstitution:      make([]InstitutionResponse, 0, len(v.PerInstitution)),
		Transactions:        make([]TransactionResponse, 0, len(v.Transactions)),
		GeneratedAt:         v.GeneratedAt,
		Degraded:            result.Degraded(),
		Diagnostics:         result.Diagnostics,
	}
	if resp.Diagnostics == nil {
		resp.Diagnostics = []aggregation.Diagnostic{}
	}

	for _, a := range v.Accounts {
		resp.Accounts = append(resp.Accounts, AccountResponse{
			Account:        a,
			BalanceDisplay: money.Format(a.CurrentBalance, a.Currency),
		})
	}
	for _, c := range v.BalancesByCurrency {
		resp.BalancesByCurrency = append(resp.BalancesByCurrency, CurrencyTotalResponse{
			CurrencyTotal: c,
			Display:       money.Format(c.Total, c.Currency),
		})
	}
	for _, inst := range v.PerInstitution {
		resp.PerInstitution = append(resp.PerInstitution, InstitutionResponse{
			InstitutionSubtotal: inst,
			Display:             money.Format(inst.Subtotal, inst.Currency),
		})
	}
	for _, tx := range v.Transactions {
		resp.Transactions = append(resp.Transactions, TransactionResponse{
			Transaction:   tx,
			AmountDisplay: money.Format(tx.Amount, tx.Currency),
		})
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
