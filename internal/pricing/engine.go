// Package pricing holds the per-product calculators. Every calculator is a
// pure function of its inputs: the same request always yields the same line
// items, which is what lets confirmation re-price a quote to detect tampering.
package pricing

import (
	"github.com/shopspring/decimal"

	"trip-provider/internal/domain"
)

type Calculator interface {
	Calculate(currency string, partySize int, params Params) (domain.QuoteLineItem, error)
}

type CalculatorFunc func(currency string, partySize int, params Params) (domain.QuoteLineItem, error)

func (f CalculatorFunc) Calculate(currency string, partySize int, params Params) (domain.QuoteLineItem, error) {
	return f(currency, partySize, params)
}

type PricingResult struct {
	Currency string
	Items    []domain.QuoteLineItem
}

func (r PricingResult) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range r.Items {
		sum = sum.Add(it.Total)
	}
	return Round(sum, r.Currency)
}

func (r PricingResult) Fees() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range r.Items {
		sum = sum.Add(it.Fees)
	}
	return Round(sum, r.Currency)
}

func (r PricingResult) PrimaryItem() (domain.QuoteLineItem, error) {
	if len(r.Items) == 0 {
		return domain.QuoteLineItem{}, domain.Validationf("pricing produced no line items")
	}
	return r.Items[0], nil
}

type Engine struct {
	calculators map[domain.ProductType]Calculator
}

// NewEngine returns an engine with the transport, hotel and attraction
// calculators registered.
func NewEngine() *Engine {
	return &Engine{calculators: map[domain.ProductType]Calculator{
		domain.ProductTransport:  CalculatorFunc(Transport),
		domain.ProductHotel:      CalculatorFunc(Hotel),
		domain.ProductAttraction: CalculatorFunc(Attraction),
	}}
}

// Register replaces or adds the calculator for a product type.
func (e *Engine) Register(t domain.ProductType, c Calculator) {
	e.calculators[t] = c
}

func (e *Engine) Supports(t domain.ProductType) bool {
	_, ok := e.calculators[t]
	return ok
}

func (e *Engine) Calculate(productType domain.ProductType, currency string, partySize int, params map[string]any) (PricingResult, error) {
	calc, ok := e.calculators[productType]
	if !ok {
		return PricingResult{}, domain.NewError(domain.KindUnsupportedProduct, "unsupported product type %q", productType)
	}
	cur, err := NormalizeCurrency(currency)
	if err != nil {
		return PricingResult{}, err
	}
	partySize, err = bounded(partySize, MaxPartySize, "party size")
	if err != nil {
		return PricingResult{}, err
	}
	item, err := calc.Calculate(cur, partySize, Params(params))
	if err != nil {
		return PricingResult{}, err
	}
	return PricingResult{Currency: cur, Items: []domain.QuoteLineItem{item}}, nil
}
