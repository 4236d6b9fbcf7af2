package account

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Type is the canonical account classification.
type Type string

const (
	TypeChecking Type = "checking"
	TypeSavings  Type = "savings"
	TypeCredit   Type = "credit"
	TypeOther    Type = "other"
)

// UnknownInstitution is used when a payload carries neither an institution
// id nor an institution name.
const UnknownInstitution = "unknown"

var (
	// Provider subtypes, lower-cased, grouped by canonical type.
	checkingSubtypes = map[string]struct{}{
		"checking":         {},
		"checking_account": {},
		"paypal":           {},
		"prepaid":          {},
		"cash management":  {},
	}
	savingsSubtypes = map[string]struct{}{
		"savings":         {},
		"savings_account": {},
		"money market":    {},
		"cd":              {},
		"hsa":             {},
	}
	creditSubtypes = map[string]struct{}{
		"credit card":   {},
		"credit_card":   {},
		"paypal credit": {},
	}
)

// Domain errors
var (
	ErrMissingField    = errors.New("required field is missing")
	ErrNotNumeric      = errors.New("field is not numeric")
	ErrInvalidCurrency = errors.New("valid ISO 4217 currency is required")
	ErrInvalidSchema   = errors.New("invalid account schema")
)

// Raw is one decoded provider account payload.
type Raw map[string]any

// Account is the canonical representation of one linked bank account.
// Values are never mutated after the normalizer returns them.
type Account struct {
	ID               string           `json:"id"`
	InstitutionID    string           `json:"institutionId"`
	InstitutionName  string           `json:"institutionName"`
	Name             string           `json:"name"`
	CurrentBalance   decimal.Decimal  `json:"currentBalance"`
	AvailableBalance *decimal.Decimal `json:"availableBalance,omitempty"`
	Currency         string           `json:"currency"`
	Mask             string           `json:"mask,omitempty"`
	Type             Type             `json:"type"`
	Subtype          string           `json:"subtype,omitempty"`
}

// MalformedError reports a provider account payload that could not be
// normalized. AccountID is empty when the identifier itself was missing.
type MalformedError struct {
	AccountID string
	Field     string
	Err       error
}

func (e *MalformedError) Error() string {
	if e.AccountID == "" {
		return fmt.Sprintf("malformed account: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("malformed account %s: %s: %v", e.AccountID, e.Field, e.Err)
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

// ClassifyType maps a provider type/subtype pair onto the canonical enum.
// Subtype wins when it is recognised; otherwise the top-level type decides.
func ClassifyType(providerType, subtype string) Type {
	s := strings.ToLower(strings.TrimSpace(subtype))
	if _, ok := checkingSubtypes[s]; ok {
		return TypeChecking
	}
	if _, ok := savingsSubtypes[s]; ok {
		return TypeSavings
	}
	if _, ok := creditSubtypes[s]; ok {
		return TypeCredit
	}

	switch strings.ToLower(strings.TrimSpace(providerType)) {
	case "credit", "loan":
		return TypeCredit
	case "checking":
		return TypeChecking
	case "savings":
		return TypeSavings
	default:
		return TypeOther
	}
}
