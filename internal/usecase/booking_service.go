package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"trip-provider/internal/canonical"
	"trip-provider/internal/domain"
	"trip-provider/internal/pricing"
)

type PaymentAuthorizer interface {
	Charge(ctx context.Context, credential string, amount decimal.Decimal) (string, error)
}

type EventPublisher interface {
	OrderConfirmed(ctx context.Context, o *domain.Order) error
}

const defaultPublishTimeout = time.Second

// BookingService is the provider's entry point: quote, quote an itinerary,
// confirm. Confirmation runs verify, reprice, replay check, charge, persist,
// publish; nothing is written unless every earlier step succeeded.
// PublishTimeout bounds the wait on the event publisher; zero means one
// second.
type BookingService struct {
	Engine         *pricing.Engine
	Tokens         *TokenService
	Itineraries    *ItineraryService
	Orders         *OrderService
	Payments       PaymentAuthorizer
	Events         EventPublisher
	PublishTimeout time.Duration
	Log            *zap.Logger
	Tracer         trace.Tracer
}

func (s *BookingService) tracer() trace.Tracer {
	if s.Tracer == nil {
		return otel.Tracer("trip-provider/usecase")
	}
	return s.Tracer
}

func (s *BookingService) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *BookingService) Quote(ctx context.Context, req domain.QuoteRequest) (domain.QuoteResponse, error) {
	_, span := s.tracer().Start(ctx, "booking.Quote", trace.WithAttributes(
		attribute.String("product_type", string(req.ProductType)),
		attribute.String("currency", req.Currency),
	))
	defer span.End()

	_, params, err := canonical.Normalize(req.Params)
	if err != nil {
		return domain.QuoteResponse{}, fail(span, domain.WrapError(domain.KindValidation, err, "params are not serializable"))
	}
	res, err := s.Engine.Calculate(req.ProductType, req.Currency, req.PartySize, params)
	if err != nil {
		return domain.QuoteResponse{}, fail(span, err)
	}
	token, exp, err := s.Tokens.SignQuote(req, res)
	if err != nil {
		return domain.QuoteResponse{}, fail(span, err)
	}
	s.log().Debug("quote issued",
		zap.String("product_type", string(req.ProductType)),
		zap.String("total", res.Total().String()),
		zap.String("currency", res.Currency),
	)
	return domain.QuoteResponse{
		Token:     token,
		ExpiresAt: exp,
		Currency:  res.Currency,
		LineItems: res.Items,
		Total:     res.Total(),
		Fees:      res.Fees(),
	}, nil
}

func (s *BookingService) QuoteItinerary(ctx context.Context, req domain.ItineraryQuoteRequest) (domain.ItineraryQuote, error) {
	_, span := s.tracer().Start(ctx, "booking.QuoteItinerary", trace.WithAttributes(
		attribute.String("itinerary_id", req.ItineraryID),
		attribute.Int("items", len(req.Items)),
	))
	defer span.End()

	q, err := s.Itineraries.PrepareItinerary(req)
	if err != nil {
		return domain.ItineraryQuote{}, fail(span, err)
	}
	s.log().Debug("itinerary quote issued",
		zap.String("itinerary_id", q.ItineraryID),
		zap.Int("items", len(q.Items)),
		zap.String("total", q.Total.String()),
	)
	return q, nil
}

func (s *BookingService) Confirm(ctx context.Context, req domain.ConfirmRequest) (domain.ConfirmResponse, error) {
	ctx, span := s.tracer().Start(ctx, "booking.Confirm")
	defer span.End()

	payload, err := s.Tokens.VerifyQuote(req.Token)
	if err != nil {
		return domain.ConfirmResponse{}, fail(span, err)
	}
	span.SetAttributes(attribute.String("quote_kind", string(payload.Kind)))

	var (
		total, fees decimal.Decimal
		refs        []string
	)
	switch payload.Kind {
	case domain.QuoteItinerary:
		total, fees, refs, err = s.Itineraries.Reprice(payload, req.ItemRefs)
		if err != nil {
			return domain.ConfirmResponse{}, fail(span, err)
		}
	default:
		if len(req.ItemRefs) > 0 {
			return domain.ConfirmResponse{}, fail(span, domain.Validationf("item references only apply to itinerary quotes"))
		}
		total, fees = payload.Total, payload.Fees
	}

	existing, found, err := s.Orders.Replay(ctx, req.IdempotencyKey, req.Token, refs)
	if err != nil {
		return domain.ConfirmResponse{}, fail(span, err)
	}
	if found {
		s.log().Info("confirmation replayed", zap.String("order_id", existing.ID), zap.String("idempotency_key", req.IdempotencyKey))
		span.SetAttributes(attribute.Bool("replayed", true))
		return confirmResponse(existing), nil
	}

	paymentID, err := s.Payments.Charge(ctx, req.PaymentCredential, total)
	if err != nil {
		return domain.ConfirmResponse{}, fail(span, err)
	}
	o, err := s.Orders.ConfirmOrder(ctx, payload, req.Token, req.IdempotencyKey, paymentID, total, fees, refs)
	if err != nil {
		return domain.ConfirmResponse{}, fail(span, err)
	}
	span.SetAttributes(attribute.String("order_id", o.ID))

	s.publish(ctx, o)
	return confirmResponse(o), nil
}

// publish is best-effort: the order is already persisted, so a slow or
// failing publisher is logged and never fails the confirmation.
func (s *BookingService) publish(ctx context.Context, o *domain.Order) {
	if s.Events == nil {
		return
	}
	timeout := s.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := s.Events.OrderConfirmed(ctx, o); err != nil {
		s.log().Warn("publish order.confirmed failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (s *BookingService) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	ctx, span := s.tracer().Start(ctx, "booking.GetOrder", trace.WithAttributes(attribute.String("order_id", id)))
	defer span.End()
	o, err := s.Orders.GetOrder(ctx, id)
	if err != nil {
		return nil, fail(span, err)
	}
	return o, nil
}

func (s *BookingService) ListOrders(ctx context.Context, page, pageSize int) ([]domain.Order, int, error) {
	ctx, span := s.tracer().Start(ctx, "booking.ListOrders", trace.WithAttributes(
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	))
	defer span.End()
	orders, total, err := s.Orders.ListOrders(ctx, page, pageSize)
	if err != nil {
		return nil, 0, fail(span, err)
	}
	return orders, total, nil
}

func confirmResponse(o *domain.Order) domain.ConfirmResponse {
	return domain.ConfirmResponse{
		OrderID:     o.ID,
		Status:      o.Status,
		VoucherCode: o.VoucherCode,
		InvoiceID:   o.InvoiceID,
		Currency:    o.Currency,
		Total:       o.Total,
		Fees:        o.Fees,
		ItemRefs:    domain.SplitRefs(o.SelectedRefs),
	}
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if kind := domain.KindOf(err); kind != "" {
		span.SetAttributes(attribute.String("error_kind", string(kind)))
	}
	return err
}
