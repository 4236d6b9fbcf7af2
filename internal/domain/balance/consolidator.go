// Package balance combines normalized accounts into aggregate totals.
package balance

import (
	"github.com/shopspring/decimal"

	"horizon/internal/domain/account"
)

// InstitutionSubtotal is the balance held at one institution. Currency is
// empty when the institution's accounts disagree.
type InstitutionSubtotal struct {
	InstitutionID   string          `json:"institutionId"`
	InstitutionName string          `json:"institutionName"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Currency        string          `json:"currency"`
	AccountCount    int             `json:"accountCount"`
}

// CurrencyTotal is the balance held in one currency.
type CurrencyTotal struct {
	Currency     string          `json:"currency"`
	Total        decimal.Decimal `json:"total"`
	AccountCount int             `json:"accountCount"`
}

// Summary is the consolidated view over a set of accounts.
type Summary struct {
	TotalBanks          int                   `json:"totalBanks"`
	TotalCurrentBalance decimal.Decimal       `json:"totalCurrentBalance"`
	Currency            string                `json:"currency"`
	ByCurrency          []CurrencyTotal       `json:"byCurrency"`
	PerInstitution      []InstitutionSubtotal `json:"perInstitution"`
}

// Mixed reports whether the accounts span more than one currency.
func (s Summary) Mixed() bool {
	return len(s.ByCurrency) > 1
}

// Institution returns the subtotal for id.
func (s Summary) Institution(id string) (InstitutionSubtotal, bool) {
	for _, inst := range s.PerInstitution {
		if inst.InstitutionID == id {
			return inst, true
		}
	}
	return InstitutionSubtotal{}, false
}

// Consolidate sums current balances exactly. TotalCurrentBalance is the plain
// arithmetic sum of every account; when currencies differ it is still
// reported but Currency is left empty and ByCurrency carries the breakdown.
// Institution and currency entries keep the first-seen order of accounts.
func Consolidate(accounts []account.Account) Summary {
	summary := Summary{
		TotalCurrentBalance: decimal.Zero,
		ByCurrency:          []CurrencyTotal{},
		PerInstitution:      []InstitutionSubtotal{},
	}

	institutionIndex := make(map[string]int)
	currencyIndex := make(map[string]int)

	for _, acc := range accounts {
		summary.TotalCurrentBalance = summary.TotalCurrentBalance.Add(acc.CurrentBalance)

		i, ok := institutionIndex[acc.InstitutionID]
		if !ok {
			i = len(summary.PerInstitution)
			institutionIndex[acc.InstitutionID] = i
			summary.PerInstitution = append(summary.PerInstitution, InstitutionSubtotal{
				InstitutionID:   acc.InstitutionID,
				InstitutionName: acc.InstitutionName,
				Subtotal:        decimal.Zero,
				Currency:        acc.Currency,
			})
		}
		inst := &summary.PerInstitution[i]
		inst.Subtotal = inst.Subtotal.Add(acc.CurrentBalance)
		inst.AccountCount++
		if inst.Currency != acc.Currency {
			inst.Currency = ""
		}

		c, ok := currencyIndex[acc.Currency]
		if !ok {
			c = len(summary.ByCurrency)
			currencyIndex[acc.Currency] = c
			summary.ByCurrency = append(summary.ByCurrency, CurrencyTotal{
				Currency: acc.Currency,
				Total:    decimal.Zero,
			})
		}
		cur := &summary.ByCurrency[c]
		cur.Total = cur.Total.Add(acc.CurrentBalance)
		cur.AccountCount++
	}

	summary.TotalBanks = len(summary.PerInstitution)
	if len(summary.ByCurrency) == 1 {
		summary.Currency = summary.ByCurrency[0].Currency
	}

	return summary
}
