package repo

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"trip-provider/internal/domain"
)

type BreakerSettings struct {
	Name             string
	ConsecutiveFails uint32
	OpenTimeout      time.Duration
	HalfOpenRequests uint32
}

// BreakerOrderRepo fails fast while the wrapped store keeps erroring. A
// duplicate idempotency key is an answer, not a fault, and does not count
// against the store.
type BreakerOrderRepo struct {
	inner OrderStore
	cb    *gobreaker.CircuitBreaker[any]
}

func NewBreakerOrderRepo(inner OrderStore, s BreakerSettings, log *zap.Logger) *BreakerOrderRepo {
	if s.Name == "" {
		s.Name = "order-store"
	}
	if s.ConsecutiveFails == 0 {
		s.ConsecutiveFails = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	if s.HalfOpenRequests == 0 {
		s.HalfOpenRequests = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.HalfOpenRequests,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFails
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrDuplicateIdempotencyKey)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("order store breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &BreakerOrderRepo{inner: inner, cb: cb}
}

type lookupResult struct {
	order *domain.Order
	found bool
}

type pageResult struct {
	orders []domain.Order
	total  int
}

func (r *BreakerOrderRepo) Create(ctx context.Context, o *domain.Order) error {
	_, err := r.cb.Execute(func() (any, error) {
		return nil, r.inner.Create(ctx, o)
	})
	return err
}

func (r *BreakerOrderRepo) Get(ctx context.Context, id string) (*domain.Order, bool, error) {
	return r.lookup(func() (*domain.Order, bool, error) { return r.inner.Get(ctx, id) })
}

func (r *BreakerOrderRepo) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Order, bool, error) {
	return r.lookup(func() (*domain.Order, bool, error) { return r.inner.FindByIdempotencyKey(ctx, key) })
}

func (r *BreakerOrderRepo) List(ctx context.Context, pageNum, pageSize int) ([]domain.Order, int, error) {
	v, err := r.cb.Execute(func() (any, error) {
		orders, total, err := r.inner.List(ctx, pageNum, pageSize)
		return pageResult{orders: orders, total: total}, err
	})
	if err != nil {
		return nil, 0, err
	}
	p := v.(pageResult)
	return p.orders, p.total, nil
}

func (r *BreakerOrderRepo) Ping(ctx context.Context) error {
	return r.inner.Ping(ctx)
}

func (r *BreakerOrderRepo) Close() error {
	return r.inner.Close()
}

func (r *BreakerOrderRepo) State() gobreaker.State {
	return r.cb.State()
}

func (r *BreakerOrderRepo) lookup(fn func() (*domain.Order, bool, error)) (*domain.Order, bool, error) {
	v, err := r.cb.Execute(func() (any, error) {
		o, found, err := fn()
		return lookupResult{order: o, found: found}, err
	})
	if err != nil {
		return nil, false, err
	}
	l := v.(lookupResult)
	return l.order, l.found, nil
}
