package transaction

import (
	"fmt"
	"strings"

	"horizon/internal/shared/payload"
)

// Schema maps canonical transaction fields to JSONPath expressions.
type Schema struct {
	Provider     string
	ID           string
	AccountID    string
	Amount       string
	Currency     string
	Date         string
	Name         string
	MerchantName string
	Category     string
	// Pending accepts a boolean or a status string such as "PENDING".
	Pending string
	// Direction, when mapped, reads "DEBIT"/"CREDIT" and overrides the sign
	// of Amount.
	Direction string
	// OutflowPositive is set for providers that report money leaving the
	// account as a positive amount.
	OutflowPositive bool
}

// PlaidSchema reads the Plaid transactions/get item shape.
var PlaidSchema = Schema{
	Provider:        "plaid",
	ID:              "$.transaction_id",
	AccountID:       "$.account_id",
	Amount:          "$.amount",
	Currency:        "$.iso_currency_code",
	Date:            "$.date",
	Name:            "$.name",
	MerchantName:    "$.merchant_name",
	Category:        "$.category",
	Pending:         "$.pending",
	OutflowPositive: true,
}

// OpenFinanceSchema reads the Open Finance get-transactions item shape.
var OpenFinanceSchema = Schema{
	Provider:  "openfinance",
	ID:        "$.id",
	AccountID: "$.accountId",
	Amount:    "$.amount",
	Currency:  "$.currency_code",
	Date:      "$.date",
	Name:      "$.description",
	Category:  "$.category",
	Pending:   "$.status",
	Direction: "$.type",
}

// SchemaByName returns one of the built-in schemas.
func SchemaByName(name string) (Schema, error) {
	switch strings.ToLower(name) {
	case "", PlaidSchema.Provider:
		return PlaidSchema, nil
	case OpenFinanceSchema.Provider:
		return OpenFinanceSchema, nil
	default:
		return Schema{}, fmt.Errorf("%w: unknown schema %q", ErrInvalidSchema, name)
	}
}

// Validate checks that the required fields are mapped and every path
// compiles.
func (s Schema) Validate() error {
	for field, p := range map[string]string{"id": s.ID, "amount": s.Amount, "date": s.Date} {
		if p == "" {
			return fmt.Errorf("%w: %s path is required", ErrInvalidSchema, field)
		}
	}
	paths := []string{
		s.ID, s.AccountID, s.Amount, s.Currency, s.Date, s.Name,
		s.MerchantName, s.Category, s.Pending, s.Direction,
	}
	for _, p := range paths {
		if err := payload.Compile(p); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSchema, err)
		}
	}
	return nil
}
