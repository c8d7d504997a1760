package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trip-provider/internal/domain"
)

// cachedOrder carries the fields domain.Order hides from JSON, since replay
// matching needs the token hash and the key.
type cachedOrder struct {
	ID              string          `json:"id"`
	ProductType     string          `json:"productType"`
	Currency        string          `json:"currency"`
	Total           decimal.Decimal `json:"total"`
	Fees            decimal.Decimal `json:"fees"`
	Status          string          `json:"status"`
	VoucherCode     string          `json:"voucherCode"`
	InvoiceID       string          `json:"invoiceId"`
	PaymentID       string          `json:"paymentId"`
	IdempotencyKey  string          `json:"idempotencyKey,omitempty"`
	QuoteTokenHash  string          `json:"quoteTokenHash"`
	PayloadSnapshot string          `json:"payloadSnapshot"`
	ItineraryID     string          `json:"itineraryId,omitempty"`
	SelectedRefs    string          `json:"selectedRefs,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

func toCached(o *domain.Order) cachedOrder {
	return cachedOrder{
		ID:              o.ID,
		ProductType:     string(o.ProductType),
		Currency:        o.Currency,
		Total:           o.Total,
		Fees:            o.Fees,
		Status:          string(o.Status),
		VoucherCode:     o.VoucherCode,
		InvoiceID:       o.InvoiceID,
		PaymentID:       o.PaymentID,
		IdempotencyKey:  o.IdempotencyKey,
		QuoteTokenHash:  o.QuoteTokenHash,
		PayloadSnapshot: o.PayloadSnapshot,
		ItineraryID:     o.ItineraryID,
		SelectedRefs:    o.SelectedRefs,
		CreatedAt:       o.CreatedAt,
	}
}

func (c cachedOrder) order() *domain.Order {
	return &domain.Order{
		ID:              c.ID,
		ProductType:     domain.ProductType(c.ProductType),
		Currency:        c.Currency,
		Total:           c.Total,
		Fees:            c.Fees,
		Status:          domain.OrderStatus(c.Status),
		VoucherCode:     c.VoucherCode,
		InvoiceID:       c.InvoiceID,
		PaymentID:       c.PaymentID,
		IdempotencyKey:  c.IdempotencyKey,
		QuoteTokenHash:  c.QuoteTokenHash,
		PayloadSnapshot: c.PayloadSnapshot,
		ItineraryID:     c.ItineraryID,
		SelectedRefs:    c.SelectedRefs,
		CreatedAt:       c.CreatedAt,
	}
}

// CachedOrderRepo keeps recently confirmed orders in Redis so retried
// confirmations replay without a database round trip. Orders never change
// once written, so entries are only ever added or expired. Redis failures
// fall through to the wrapped store.
type CachedOrderRepo struct {
	OrderStore
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewCachedOrderRepo(inner OrderStore, client *redis.Client, ttl time.Duration, log *zap.Logger) *CachedOrderRepo {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedOrderRepo{OrderStore: inner, client: client, ttl: ttl, log: log}
}

func orderKey(id string) string { return fmt.Sprintf("trip:order:%s", id) }

func idempotencyKey(key string) string { return fmt.Sprintf("trip:idem:%s", key) }

func (r *CachedOrderRepo) Create(ctx context.Context, o *domain.Order) error {
	if err := r.OrderStore.Create(ctx, o); err != nil {
		return err
	}
	r.put(ctx, o)
	return nil
}

func (r *CachedOrderRepo) Get(ctx context.Context, id string) (*domain.Order, bool, error) {
	if o, ok := r.get(ctx, orderKey(id)); ok {
		return o, true, nil
	}
	o, found, err := r.OrderStore.Get(ctx, id)
	if err == nil && found {
		r.put(ctx, o)
	}
	return o, found, err
}

func (r *CachedOrderRepo) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Order, bool, error) {
	if o, ok := r.get(ctx, idempotencyKey(key)); ok {
		return o, true, nil
	}
	o, found, err := r.OrderStore.FindByIdempotencyKey(ctx, key)
	if err == nil && found {
		r.put(ctx, o)
	}
	return o, found, err
}

func (r *CachedOrderRepo) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return r.OrderStore.Ping(ctx)
}

func (r *CachedOrderRepo) Close() error {
	return errors.Join(r.client.Close(), r.OrderStore.Close())
}

func (r *CachedOrderRepo) get(ctx context.Context, key string) (*domain.Order, bool) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		r.log.Warn("redis get failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	var c cachedOrder
	if err := json.Unmarshal(data, &c); err != nil {
		r.log.Warn("discarding unreadable cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return c.order(), true
}

func (r *CachedOrderRepo) put(ctx context.Context, o *domain.Order) {
	data, err := json.Marshal(toCached(o))
	if err != nil {
		r.log.Warn("marshal order for cache failed", zap.String("order_id", o.ID), zap.Error(err))
		return
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, orderKey(o.ID), data, r.ttl)
	if o.IdempotencyKey != "" {
		pipe.Set(ctx, idempotencyKey(o.IdempotencyKey), data, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Warn("redis set failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}
