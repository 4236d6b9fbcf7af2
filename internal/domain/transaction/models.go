package transaction

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrMissingField    = errors.New("required field is missing")
	ErrNotNumeric      = errors.New("field is not numeric")
	ErrInvalidDate     = errors.New("unrecognised date")
	ErrInvalidCurrency = errors.New("valid ISO 4217 currency is required")
	ErrInvalidStatus   = errors.New("unrecognised pending status")
	ErrForeignAccount  = errors.New("transaction belongs to another account")
	ErrInvalidSchema   = errors.New("invalid transaction schema")
)

// Raw is one decoded provider transaction payload.
type Raw map[string]any

// Transaction is one canonical ledger entry. Amount is negative for money
// leaving the account.
type Transaction struct {
	ID        string          `json:"id"`
	AccountID string          `json:"accountId"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Date      time.Time       `json:"date"`
	Name      string          `json:"name"`
	Category  string          `json:"category,omitempty"`
	Pending   bool            `json:"pending"`
}

// Batch is the outcome of normalizing one provider transaction list.
type Batch struct {
	Transactions []Transaction
	// Skipped holds one entry per dropped payload, in input order.
	Skipped []*MalformedError
	// Truncated is the number of valid transactions cut by the feed limit.
	Truncated int
}

// MalformedError reports a transaction payload that was skipped. Position is
// the 1-based index in the provider list.
type MalformedError struct {
	TransactionID string
	Position      int
	Field         string
	Err           error
}

func (e *MalformedError) Error() string {
	if e.TransactionID == "" {
		return fmt.Sprintf("malformed transaction at position %d: %s: %v", e.Position, e.Field, e.Err)
	}
	return fmt.Sprintf("malformed transaction %s: %s: %v", e.TransactionID, e.Field, e.Err)
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}
