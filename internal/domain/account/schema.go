package account

import (
	"fmt"
	"strings"

	"horizon/internal/shared/payload"
)

// Schema maps canonical account fields to JSONPath expressions evaluated
// against a raw provider payload. An empty path leaves the field unmapped.
type Schema struct {
	Provider         string
	ID               string
	InstitutionID    string
	InstitutionName  string
	Name             string
	OfficialName     string
	CurrentBalance   string
	AvailableBalance string
	Currency         string
	Mask             string
	Type             string
	Subtype          string
	// DefaultCurrency is used when the payload carries no currency.
	DefaultCurrency string
}

// PlaidSchema reads the Plaid accounts/get item shape, with the item's
// institution copied onto each account.
var PlaidSchema = Schema{
	Provider:         "plaid",
	ID:               "$.account_id",
	InstitutionID:    "$.institution_id",
	InstitutionName:  "$.institution_name",
	Name:             "$.name",
	OfficialName:     "$.official_name",
	CurrentBalance:   "$.balances.current",
	AvailableBalance: "$.balances.available",
	Currency:         "$.balances.iso_currency_code",
	Mask:             "$.mask",
	Type:             "$.type",
	Subtype:          "$.subtype",
	DefaultCurrency:  "USD",
}

// OpenFinanceSchema reads the Open Finance get-accounts item shape.
var OpenFinanceSchema = Schema{
	Provider:         "openfinance",
	ID:               "$.id",
	InstitutionID:    "$.providerCode",
	InstitutionName:  "$.bankName",
	Name:             "$.name",
	OfficialName:     "$.marketingName",
	CurrentBalance:   "$.balance",
	AvailableBalance: "$.creditData.availableCreditLimit",
	Currency:         "$.currencyCode",
	Mask:             "$.bankData.transferNumber",
	Type:             "$.type",
	Subtype:          "$.subtype",
	DefaultCurrency:  "BRL",
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
	if s.ID == "" {
		return fmt.Errorf("%w: id path is required", ErrInvalidSchema)
	}
	if s.CurrentBalance == "" {
		return fmt.Errorf("%w: current balance path is required", ErrInvalidSchema)
	}
	paths := []string{
		s.ID, s.InstitutionID, s.InstitutionName, s.Name, s.OfficialName,
		s.CurrentBalance, s.AvailableBalance, s.Currency, s.Mask, s.Type, s.Subtype,
	}
	for _, p := range paths {
		if err := payload.Compile(p); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSchema, err)
		}
	}
	return nil
}
