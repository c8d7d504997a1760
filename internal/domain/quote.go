package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type QuoteLineItem struct {
	SKU                string            `json:"sku"`
	UnitPrice          decimal.Decimal   `json:"unitPrice"`
	Quantity           int               `json:"quantity"`
	Fees               decimal.Decimal   `json:"fees"`
	Total              decimal.Decimal   `json:"total"`
	Currency           string            `json:"currency"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	CancellationPolicy string            `json:"cancellationPolicy"`
}

type QuoteKind string

const (
	QuoteSingle    QuoteKind = "single"
	QuoteItinerary QuoteKind = "itinerary"
)

// QuoteTokenPayload is everything a quote token carries. Exactly one of
// Single or Itinerary is set, matching Kind. Params fields hold canonical
// JSON so re-pricing sees the same bytes that were signed.
type QuoteTokenPayload struct {
	Kind      QuoteKind         `json:"kind"`
	Currency  string            `json:"currency"`
	Total     decimal.Decimal   `json:"total"`
	Fees      decimal.Decimal   `json:"fees"`
	Single    *SingleQuote      `json:"single,omitempty"`
	Itinerary *ItineraryPayload `json:"itinerary,omitempty"`
	ExpiresAt time.Time         `json:"-"`
}

type SingleQuote struct {
	ProductType ProductType     `json:"productType"`
	PartySize   int             `json:"partySize"`
	Params      string          `json:"params"`
	LineItems   []QuoteLineItem `json:"lineItems"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
}

type ItineraryPayload struct {
	ItineraryID string                 `json:"itineraryId"`
	Items       []ItineraryItemPayload `json:"items"`
}

// ItineraryItemSnapshot is a freshly priced itinerary item on its way into a
// token.
type ItineraryItemSnapshot struct {
	Reference   string          `json:"reference"`
	EntityID    string          `json:"entityId,omitempty"`
	ProductType ProductType     `json:"productType"`
	PartySize   int             `json:"partySize"`
	Params      string          `json:"params"`
	LineItems   []QuoteLineItem `json:"lineItems"`
	Fees        decimal.Decimal `json:"fees"`
	Total       decimal.Decimal `json:"total"`
}

// ItineraryItemPayload is the same item decoded out of a verified token.
type ItineraryItemPayload = ItineraryItemSnapshot

func (p *ItineraryPayload) Item(ref string) (ItineraryItemPayload, bool) {
	for _, it := range p.Items {
		if it.Reference == ref {
			return it, true
		}
	}
	return ItineraryItemPayload{}, false
}

type QuoteResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Currency  string          `json:"currency"`
	LineItems []QuoteLineItem `json:"lineItems"`
	Total     decimal.Decimal `json:"total"`
	Fees      decimal.Decimal `json:"fees"`
}

type ItineraryItemResponse struct {
	Reference   string          `json:"reference"`
	EntityID    string          `json:"entityId,omitempty"`
	ProductType ProductType     `json:"productType"`
	LineItems   []QuoteLineItem `json:"lineItems"`
	Fees        decimal.Decimal `json:"fees"`
	Total       decimal.Decimal `json:"total"`
}

type ItineraryQuote struct {
	Token       string                  `json:"token"`
	ExpiresAt   time.Time               `json:"expiresAt"`
	ItineraryID string                  `json:"itineraryId"`
	Currency    string                  `json:"currency"`
	Items       []ItineraryItemResponse `json:"items"`
	Total       decimal.Decimal         `json:"total"`
	Fees        decimal.Decimal         `json:"fees"`
}

type ConfirmResponse struct {
	OrderID     string          `json:"orderId"`
	Status      OrderStatus     `json:"status"`
	VoucherCode string          `json:"voucherCode"`
	InvoiceID   string          `json:"invoiceId"`
	Currency    string          `json:"currency"`
	Total       decimal.Decimal `json:"total"`
	Fees        decimal.Decimal `json:"fees"`
	ItemRefs    []string        `json:"itemRefs,omitempty"`
}
