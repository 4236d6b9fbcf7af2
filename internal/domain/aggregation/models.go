// Package aggregation assembles a user's consolidated dashboard view from the
// external financial-data provider.
package aggregation

import (
	"time"

	"github.com/shopspring/decimal"

	"horizon/internal/domain/account"
	"horizon/internal/domain/balance"
	"horizon/internal/domain/transaction"
)

// AggregateView is the per-request output handed to presentation. It is
// built once and never mutated afterwards. TotalCurrentBalance is always the
// exact sum of Accounts[i].CurrentBalance.
type AggregateView struct {
	RequestID           string                        `json:"requestId"`
	UserID              string                        `json:"userId"`
	Accounts            []account.Account             `json:"accounts"`
	ActiveAccountID     string                        `json:"activeAccountId,omitempty"`
	TotalBanks          int                           `json:"totalBanks"`
	TotalCurrentBalance decimal.Decimal               `json:"totalCurrentBalance"`
	Currency            string                        `json:"currency,omitempty"`
	BalancesByCurrency  []balance.CurrencyTotal       `json:"balancesByCurrency"`
	PerInstitution      []balance.InstitutionSubtotal `json:"perInstitution"`
	Transactions        []transaction.Transaction     `json:"transactions"`
	GeneratedAt         time.Time                     `json:"generatedAt"`
}

// Age reports how old the view is relative to now.
func (v *AggregateView) Age(now time.Time) time.Duration {
	return now.Sub(v.GeneratedAt)
}

// DiagnosticKind enumerates every recovered degradation.
type DiagnosticKind string

const (
	KindProviderUnavailable     DiagnosticKind = "provider_unavailable"
	KindMalformedAccount        DiagnosticKind = "malformed_account"
	KindDuplicateAccount        DiagnosticKind = "duplicate_account"
	KindSelectedAccountNotFound DiagnosticKind = "selected_account_not_found"
	KindTransactionsDegraded    DiagnosticKind = "transactions_degraded"
	KindMalformedTransaction    DiagnosticKind = "malformed_transaction"
	KindTransactionsTruncated   DiagnosticKind = "transactions_truncated"
	KindMixedCurrency           DiagnosticKind = "mixed_currency"
)

// Diagnostic is a non-fatal record of a recovered error. Position is the
// 1-based index in the provider list, 0 when not applicable.
type Diagnostic struct {
	Kind      DiagnosticKind `json:"kind"`
	Stage     State          `json:"stage"`
	AccountID string         `json:"accountId,omitempty"`
	Position  int            `json:"position,omitempty"`
	Message   string         `json:"message"`
	Err       error          `json:"-"`
}

// Result is a successful aggregation: the view plus everything that was
// recovered along the way.
type Result struct {
	View        *AggregateView `json:"view"`
	Diagnostics []Diagnostic   `json:"diagnostics"`
	States      []State        `json:"-"`
}

// Degraded reports whether anything was dropped or could not be fetched.
// A mixed-currency or truncated feed alone is informational.
func (r *Result) Degraded() bool {
	for _, d := range r.Diagnostics {
		switch d.Kind {
		case KindMixedCurrency, KindTransactionsTruncated, KindSelectedAccountNotFound:
			continue
		default:
			return true
		}
	}
	return false
}

// HasDiagnostic reports whether a diagnostic of kind was recorded.
func (r *Result) HasDiagnostic(kind DiagnosticKind) bool {
	for _, d := range r.Diagnostics {
		if d.Kind == kind {
			return true
		}
	}
	return false
}
