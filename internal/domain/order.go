package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderConfirmed OrderStatus = "CONFIRMED"
)

type Order struct {
	ID              string          `json:"orderId"`
	ProductType     ProductType     `json:"productType"`
	Currency        string          `json:"currency"`
	Total           decimal.Decimal `json:"total"`
	Fees            decimal.Decimal `json:"fees"`
	Status          OrderStatus     `json:"status"`
	VoucherCode     string          `json:"voucherCode"`
	InvoiceID       string          `json:"invoiceId"`
	PaymentID       string          `json:"paymentId"`
	IdempotencyKey  string          `json:"-"`
	QuoteTokenHash  string          `json:"-"`
	PayloadSnapshot string          `json:"-"`
	ItineraryID     string          `json:"itineraryId,omitempty"`
	SelectedRefs    string          `json:"selectedRefs,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// ErrDuplicateIdempotencyKey is returned by order stores when another order
// already holds the idempotency key.
var ErrDuplicateIdempotencyKey = errors.New("order idempotency key already exists")

const refSeparator = ","

func JoinRefs(refs []string) string {
	return strings.Join(refs, refSeparator)
}

func SplitRefs(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, refSeparator)
}
