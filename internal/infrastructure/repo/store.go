package repo

import (
	"context"

	"trip-provider/internal/domain"
)

// OrderStore is implemented by every backend in this package and by the
// wrappers that decorate them.
type OrderStore interface {
	Create(ctx context.Context, o *domain.Order) error
	Get(ctx context.Context, id string) (*domain.Order, bool, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.Order, bool, error)
	List(ctx context.Context, page, pageSize int) ([]domain.Order, int, error)
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ OrderStore = (*MemoryOrderRepo)(nil)
	_ OrderStore = (*SQLOrderRepo)(nil)
	_ OrderStore = (*MongoOrderRepo)(nil)
	_ OrderStore = (*CachedOrderRepo)(nil)
	_ OrderStore = (*BreakerOrderRepo)(nil)
)
