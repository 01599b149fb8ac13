package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var supportedCurrencies = map[string]struct{}{
	"ZMW": {},
	"USD": {},
}

// IsSupportedCurrency reports whether code can be charged.
func IsSupportedCurrency(code string) bool {
	_, ok := supportedCurrencies[strings.ToUpper(code)]
	return ok
}

// Price is the server side amount charged for a category.
type Price struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// Validate checks the amount is positive and the currency supported.
func (p Price) Validate() error {
	if !p.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !IsSupportedCurrency(p.Currency) {
		return ErrUnsupportedCurrency
	}
	return nil
}

// PriceTable maps service categories to prices.
type PriceTable map[Category]Price

// DefaultPriceTable returns the ZMW fees.
func DefaultPriceTable() PriceTable {
	return PriceTable{
		CategoryECard:          {Amount: decimal.NewFromInt(500), Currency: "ZMW"},
		CategoryRoadTax:        {Amount: decimal.NewFromInt(1200), Currency: "ZMW"},
		CategoryInsurance:      {Amount: decimal.NewFromInt(2500), Currency: "ZMW"},
		CategoryLicenseRenewal: {Amount: decimal.NewFromInt(300), Currency: "ZMW"},
	}
}

// ParsePriceTable reads a json object of category to {amount, currency}.
// Categories absent from raw keep their default price.
func ParsePriceTable(raw string) (PriceTable, error) {
	result := DefaultPriceTable()
	if strings.TrimSpace(raw) == "" {
		return result, nil
	}

	var parsed map[string]Price
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("model: failed to parse price table: %w", err)
	}

	for k, v := range parsed {
		c, err := ParseCategory(k)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", err, k)
		}

		v.Currency = strings.ToUpper(v.Currency)
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("price for %s: %w", c, err)
		}

		result[c] = v
	}

	return result, nil
}

// Lookup returns the price for c.
func (t PriceTable) Lookup(c Category) (Price, error) {
	p, ok := t[c]
	if !ok {
		return Price{}, ErrPriceNotConfigured
	}
	return p, nil
}
