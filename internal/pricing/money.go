package pricing

import (
	"strings"

	"github.com/shopspring/decimal"

	"trip-provider/internal/domain"
)

var minorUnits = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
	"IDR": 0,
	"CLP": 0,
	"ISK": 0,
	"BHD": 3,
	"KWD": 3,
	"OMR": 3,
	"JOD": 3,
	"TND": 3,
}

// Scale returns the number of minor-unit digits for an ISO 4217 code.
func Scale(currency string) int32 {
	if s, ok := minorUnits[strings.ToUpper(currency)]; ok {
		return s
	}
	return 2
}

// Round rounds half-up to the currency's minor unit. Amounts handled here are
// never negative, so decimal's half-away-from-zero is half-up.
func Round(d decimal.Decimal, currency string) decimal.Decimal {
	return d.Round(Scale(currency))
}

// NormalizeCurrency upper-cases and validates a three-letter currency code.
func NormalizeCurrency(currency string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(currency))
	if len(c) != 3 {
		return "", domain.Validationf("currency must be a three-letter code, got %q", currency)
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return "", domain.Validationf("currency must be a three-letter code, got %q", currency)
		}
	}
	return c, nil
}

func lineItem(sku string, unit decimal.Decimal, qty int, fees decimal.Decimal, currency string) domain.QuoteLineItem {
	unit = Round(unit, currency)
	fees = Round(fees, currency)
	total := Round(unit.Mul(decimal.NewFromInt(int64(qty))).Add(fees), currency)
	return domain.QuoteLineItem{
		SKU:       sku,
		UnitPrice: unit,
		Quantity:  qty,
		Fees:      fees,
		Total:     total,
		Currency:  currency,
	}
}
