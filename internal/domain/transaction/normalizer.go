package transaction

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"horizon/internal/shared/money"
	"horizon/internal/shared/payload"
)

// Accepted date layouts, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// Normalizer converts raw provider transaction payloads into canonical
// Transactions. It is immutable and safe for concurrent use.
type Normalizer struct {
	schema          Schema
	limit           int
	defaultCurrency string
}

// NewNormalizer creates a normalizer. limit bounds the returned feed after
// sorting; 0 means unbounded.
func NewNormalizer(schema Schema, limit int) (*Normalizer, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: negative limit %d", ErrInvalidSchema, limit)
	}
	return &Normalizer{schema: schema, limit: limit}, nil
}

// WithDefaultCurrency returns a copy that stamps currency on entries whose
// payload carries none, typically the owning account's currency.
func (n *Normalizer) WithDefaultCurrency(currency string) *Normalizer {
	c := *n
	c.defaultCurrency = strings.ToUpper(currency)
	return &c
}

// NormalizeTransactions converts raw into transactions owned by accountID,
// sorted by date descending with ties kept in provider order. Malformed
// entries are skipped and reported in Batch.Skipped; they never fail the
// batch. Empty input yields an empty, non-nil list.
func (n *Normalizer) NormalizeTransactions(raw []Raw, accountID string) Batch {
	batch := Batch{Transactions: make([]Transaction, 0, len(raw))}

	for i, r := range raw {
		tx, err := n.normalizeOne(r, accountID)
		if err != nil {
			var malformed *MalformedError
			if !errors.As(err, &malformed) {
				malformed = &MalformedError{Field: "payload", Err: err}
			}
			malformed.Position = i + 1
			batch.Skipped = append(batch.Skipped, malformed)
			continue
		}
		batch.Transactions = append(batch.Transactions, tx)
	}

	sort.SliceStable(batch.Transactions, func(i, j int) bool {
		return batch.Transactions[i].Date.After(batch.Transactions[j].Date)
	})

	if n.limit > 0 && len(batch.Transactions) > n.limit {
		batch.Truncated = len(batch.Transactions) - n.limit
		batch.Transactions = batch.Transactions[:n.limit]
	}

	return batch
}

func (n *Normalizer) normalizeOne(raw Raw, accountID string) (Transaction, error) {
	doc := map[string]any(raw)
	s := n.schema

	id, ok := payload.String(s.ID, doc)
	if !ok {
		return Transaction{}, &MalformedError{Field: "id", Err: ErrMissingField}
	}

	if owner, ok := payload.String(s.AccountID, doc); ok && owner != accountID {
		return Transaction{}, &MalformedError{
			TransactionID: id,
			Field:         "accountId",
			Err:           fmt.Errorf("%w: %s", ErrForeignAccount, owner),
		}
	}

	amount, err := n.amount(doc)
	if err != nil {
		return Transaction{}, &MalformedError{TransactionID: id, Field: "amount", Err: err}
	}

	dateValue, ok := payload.String(s.Date, doc)
	if !ok {
		return Transaction{}, &MalformedError{TransactionID: id, Field: "date", Err: ErrMissingField}
	}
	date, err := parseDate(dateValue)
	if err != nil {
		return Transaction{}, &MalformedError{TransactionID: id, Field: "date", Err: err}
	}

	currency, _ := payload.String(s.Currency, doc)
	currency = strings.ToUpper(currency)
	if currency == "" {
		currency = n.defaultCurrency
	}
	if currency != "" && !money.IsValidCurrency(currency) {
		return Transaction{}, &MalformedError{
			TransactionID: id,
			Field:         "currency",
			Err:           fmt.Errorf("%w: %q", ErrInvalidCurrency, currency),
		}
	}

	pending, err := n.pending(doc)
	if err != nil {
		return Transaction{}, &MalformedError{TransactionID: id, Field: "pending", Err: err}
	}

	name, ok := payload.String(s.MerchantName, doc)
	if !ok {
		name, _ = payload.String(s.Name, doc)
	}
	category, _ := payload.String(s.Category, doc)

	return Transaction{
		ID:        id,
		AccountID: accountID,
		Amount:    amount,
		Currency:  currency,
		Date:      date,
		Name:      name,
		Category:  category,
		Pending:   pending,
	}, nil
}

func (n *Normalizer) amount(doc map[string]any) (decimal.Decimal, error) {
	v, ok := payload.Lookup(n.schema.Amount, doc)
	if !ok {
		return decimal.Zero, ErrMissingField
	}
	amount, err := money.Parse(v)
	if err != nil {
		if errors.Is(err, money.ErrEmpty) {
			return decimal.Zero, ErrMissingField
		}
		return decimal.Zero, fmt.Errorf("%w: %v", ErrNotNumeric, err)
	}

	if direction, ok := payload.String(n.schema.Direction, doc); ok {
		switch strings.ToUpper(direction) {
		case "DEBIT":
			return amount.Abs().Neg(), nil
		case "CREDIT":
			return amount.Abs(), nil
		}
	}
	if n.schema.OutflowPositive {
		return amount.Neg(), nil
	}
	return amount, nil
}

func (n *Normalizer) pending(doc map[string]any) (bool, error) {
	v, ok := payload.Lookup(n.schema.Pending, doc)
	if !ok {
		return false, nil
	}
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		switch strings.ToUpper(strings.TrimSpace(x)) {
		case "PENDING", "TRUE":
			return true, nil
		case "POSTED", "BOOKED", "COMPLETED", "FALSE", "":
			return false, nil
		}
		return false, fmt.Errorf("%w: %q", ErrInvalidStatus, x)
	default:
		return false, fmt.Errorf("%w: %T", ErrInvalidStatus, v)
	}
}

func parseDate(value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
}
