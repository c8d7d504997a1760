package repo

import (
	"context"
	"sort"
	"sync"

	"trip-provider/internal/domain"
)

type MemoryOrderRepo struct {
	mu    sync.RWMutex
	m     map[string]*domain.Order
	byKey map[string]string
}

func NewMemoryOrderRepo() *MemoryOrderRepo {
	return &MemoryOrderRepo{m: make(map[string]*domain.Order), byKey: make(map[string]string)}
}

// Create inserts o unless its idempotency key is already taken; the check
// and the insert happen under one lock.
func (r *MemoryOrderRepo) Create(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o.IdempotencyKey != "" {
		if _, taken := r.byKey[o.IdempotencyKey]; taken {
			return domain.ErrDuplicateIdempotencyKey
		}
		r.byKey[o.IdempotencyKey] = o.ID
	}
	cp := *o
	r.m[o.ID] = &cp
	return nil
}

func (r *MemoryOrderRepo) Get(_ context.Context, id string) (*domain.Order, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.m[id]
	if !ok {
		return nil, false, nil
	}
	cp := *o
	return &cp, true, nil
}

func (r *MemoryOrderRepo) FindByIdempotencyKey(_ context.Context, key string) (*domain.Order, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[key]
	if !ok {
		return nil, false, nil
	}
	cp := *r.m[id]
	return &cp, true, nil
}

// List pages through orders, newest first.
func (r *MemoryOrderRepo) List(_ context.Context, page, pageSize int) ([]domain.Order, int, error) {
	r.mu.RLock()
	all := make([]domain.Order, 0, len(r.m))
	for _, o := range r.m {
		all = append(all, *o)
	}
	r.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	total := len(all)
	page, pageSize = normalizePage(page, pageSize)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (r *MemoryOrderRepo) Ping(context.Context) error { return nil }

func (r *MemoryOrderRepo) Close() error { return nil }

const maxPageSize = 100

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}
