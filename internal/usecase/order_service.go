package usecase

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trip-provider/internal/canonical"
	"trip-provider/internal/domain"
	"trip-provider/internal/pricing"
)

// OrderRepo is the order store. Create must return
// domain.ErrDuplicateIdempotencyKey when the key is already taken, which is
// what serializes concurrent confirmations.
type OrderRepo interface {
	Create(ctx context.Context, o *domain.Order) error
	Get(ctx context.Context, id string) (*domain.Order, bool, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.Order, bool, error)
	List(ctx context.Context, page, pageSize int) ([]domain.Order, int, error)
}

type OrderService struct {
	Repo OrderRepo
	Log  *zap.Logger
	Now  func() time.Time
}

func (s *OrderService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *OrderService) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *OrderService) ConfirmOrder(ctx context.Context, payload domain.QuoteTokenPayload, rawToken, idempotencyKey, paymentID string, total, fees decimal.Decimal, selectedRefs []string) (*domain.Order, error) {
	tokenHash := canonical.HashString(rawToken)
	refs := domain.JoinRefs(selectedRefs)

	if idempotencyKey != "" {
		existing, found, err := s.Repo.FindByIdempotencyKey(ctx, idempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("find order by idempotency key: %w", err)
		}
		if found {
			return matchExisting(existing, tokenHash, refs)
		}
	}

	snapshot, err := canonical.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("snapshot quote payload: %w", err)
	}
	now := s.now()
	o := &domain.Order{
		ID:              uuid.NewString(),
		Currency:        payload.Currency,
		Total:           pricing.Round(total, payload.Currency),
		Fees:            pricing.Round(fees, payload.Currency),
		Status:          domain.OrderConfirmed,
		VoucherCode:     newVoucherCode(),
		InvoiceID:       newInvoiceID(now),
		PaymentID:       paymentID,
		IdempotencyKey:  idempotencyKey,
		QuoteTokenHash:  tokenHash,
		PayloadSnapshot: string(snapshot),
		CreatedAt:       now,
	}
	switch payload.Kind {
	case domain.QuoteItinerary:
		o.ProductType = domain.ProductItinerary
		o.ItineraryID = payload.Itinerary.ItineraryID
		o.SelectedRefs = refs
	default:
		o.ProductType = payload.Single.ProductType
	}

	if err := s.Repo.Create(ctx, o); err != nil {
		if idempotencyKey != "" && errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
			winner, found, ferr := s.Repo.FindByIdempotencyKey(ctx, idempotencyKey)
			if ferr != nil {
				return nil, fmt.Errorf("reload order by idempotency key: %w", ferr)
			}
			if !found {
				return nil, fmt.Errorf("idempotency key %q reported taken but no order found: %w", idempotencyKey, err)
			}
			s.log().Info("lost idempotent insert race", zap.String("idempotency_key", idempotencyKey), zap.String("order_id", winner.ID))
			return matchExisting(winner, tokenHash, refs)
		}
		return nil, fmt.Errorf("create order: %w", err)
	}
	s.log().Info("order confirmed",
		zap.String("order_id", o.ID),
		zap.String("product_type", string(o.ProductType)),
		zap.String("total", o.Total.String()),
		zap.String("currency", o.Currency),
	)
	return o, nil
}

// Replay returns the order already stored under key when it was created from
// the same token and selection. found is false when the key is unused.
func (s *OrderService) Replay(ctx context.Context, key, rawToken string, selectedRefs []string) (*domain.Order, bool, error) {
	if key == "" {
		return nil, false, nil
	}
	existing, found, err := s.Repo.FindByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("find order by idempotency key: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	o, err := matchExisting(existing, canonical.HashString(rawToken), domain.JoinRefs(selectedRefs))
	if err != nil {
		return nil, false, err
	}
	return o, true, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	o, found, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if !found {
		return nil, domain.NewError(domain.KindNotFound, "order %s not found", id)
	}
	return o, nil
}

// ListOrders pages through stored orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, page, pageSize int) ([]domain.Order, int, error) {
	if page < 0 || pageSize < 0 {
		return nil, 0, domain.Validationf("page and pageSize must not be negative")
	}
	orders, total, err := s.Repo.List(ctx, page, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return orders, total, nil
}

func matchExisting(o *domain.Order, tokenHash, refs string) (*domain.Order, error) {
	if o.QuoteTokenHash != tokenHash || o.SelectedRefs != refs {
		return nil, domain.NewError(domain.KindIdempotencyConflict, "idempotency key already used for a different confirmation")
	}
	return o, nil
}

func newVoucherCode() string {
	u := uuid.New()
	return "VC-" + strings.ToUpper(hex.EncodeToString(u[:5]))
}

func newInvoiceID(now time.Time) string {
	u := uuid.New()
	return "INV-" + now.Format("20060102") + "-" + strings.ToUpper(hex.EncodeToString(u[:4]))
}
