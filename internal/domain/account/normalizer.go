package account

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"horizon/internal/shared/money"
	"horizon/internal/shared/payload"
)

// Normalizer converts raw provider account payloads into canonical Accounts.
// It holds no mutable state and is safe for concurrent use.
type Normalizer struct {
	schema Schema
}

// NewNormalizer creates a normalizer for the given schema.
func NewNormalizer(schema Schema) (*Normalizer, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if schema.DefaultCurrency != "" && !money.IsValidCurrency(schema.DefaultCurrency) {
		return nil, fmt.Errorf("%w: default currency %q", ErrInvalidCurrency, schema.DefaultCurrency)
	}
	return &Normalizer{schema: schema}, nil
}

// Schema returns the schema the normalizer reads with.
func (n *Normalizer) Schema() Schema {
	return n.schema
}

// NormalizeAccount builds an Account from one provider payload. It returns a
// *MalformedError when the identifier or current balance is missing, when a
// balance is not numeric, or when the currency is not a known ISO 4217 code.
func (n *Normalizer) NormalizeAccount(raw Raw) (Account, error) {
	doc := map[string]any(raw)
	s := n.schema

	id, ok := payload.String(s.ID, doc)
	if !ok {
		return Account{}, &MalformedError{Field: "id", Err: ErrMissingField}
	}

	current, err := parseAmount(s.CurrentBalance, doc, true)
	if err != nil {
		return Account{}, &MalformedError{AccountID: id, Field: "currentBalance", Err: err}
	}

	var available *decimal.Decimal
	if s.AvailableBalance != "" {
		if _, present := payload.Lookup(s.AvailableBalance, doc); present {
			v, err := parseAmount(s.AvailableBalance, doc, false)
			if err != nil {
				return Account{}, &MalformedError{AccountID: id, Field: "availableBalance", Err: err}
			}
			available = &v
		}
	}

	currency, _ := payload.String(s.Currency, doc)
	currency = strings.ToUpper(currency)
	if currency == "" {
		currency = s.DefaultCurrency
	}
	if !money.IsValidCurrency(currency) {
		return Account{}, &MalformedError{
			AccountID: id,
			Field:     "currency",
			Err:       fmt.Errorf("%w: %q", ErrInvalidCurrency, currency),
		}
	}

	institutionID, _ := payload.String(s.InstitutionID, doc)
	institutionName, _ := payload.String(s.InstitutionName, doc)
	if institutionID == "" {
		institutionID = institutionName
	}
	if institutionID == "" {
		institutionID = UnknownInstitution
	}
	if institutionName == "" {
		institutionName = institutionID
	}

	name, ok := payload.String(s.OfficialName, doc)
	if !ok {
		name, ok = payload.String(s.Name, doc)
	}
	if !ok {
		name = id
	}

	mask, _ := payload.String(s.Mask, doc)
	providerType, _ := payload.String(s.Type, doc)
	subtype, _ := payload.String(s.Subtype, doc)

	return Account{
		ID:               id,
		InstitutionID:    institutionID,
		InstitutionName:  institutionName,
		Name:             name,
		CurrentBalance:   current,
		AvailableBalance: available,
		Currency:         currency,
		Mask:             mask,
		Type:             ClassifyType(providerType, subtype),
		Subtype:          strings.ToLower(subtype),
	}, nil
}

func parseAmount(path string, doc map[string]any, required bool) (decimal.Decimal, error) {
	v, ok := payload.Lookup(path, doc)
	if !ok {
		if required {
			return decimal.Zero, ErrMissingField
		}
		return decimal.Zero, nil
	}
	d, err := money.Parse(v)
	if err != nil {
		if errors.Is(err, money.ErrEmpty) {
			return decimal.Zero, ErrMissingField
		}
		return decimal.Zero, fmt.Errorf("%w: %v", ErrNotNumeric, err)
	}
	return d, nil
}
