package domain

import "strings"

type ProductType string

const (
	ProductTransport  ProductType = "transport"
	ProductHotel      ProductType = "hotel"
	ProductAttraction ProductType = "attraction"

	// ProductItinerary is only ever stored on orders; it is not priceable.
	ProductItinerary ProductType = "itinerary"
)

func ParseProductType(s string) ProductType {
	return ProductType(strings.ToLower(strings.TrimSpace(s)))
}

// QuoteRequest asks for a single priced item. Params semantics depend on the
// product type; see the pricing package for the keys each calculator reads.
type QuoteRequest struct {
	ProductType ProductType    `json:"productType"`
	Currency    string         `json:"currency"`
	PartySize   int            `json:"partySize"`
	Params      map[string]any `json:"params"`
}

type ItineraryItemRequest struct {
	Reference   string         `json:"reference"`
	EntityID    string         `json:"entityId"`
	ProductType ProductType    `json:"productType"`
	PartySize   int            `json:"partySize"`
	Params      map[string]any `json:"params"`
}

type ItineraryQuoteRequest struct {
	ItineraryID string                 `json:"itineraryId"`
	Currency    string                 `json:"currency"`
	Items       []ItineraryItemRequest `json:"items"`
}

type ConfirmRequest struct {
	Token             string   `json:"token"`
	ItemRefs          []string `json:"itemRefs"`
	PaymentCredential string   `json:"paymentCredential"`
	IdempotencyKey    string   `json:"-"`
}
