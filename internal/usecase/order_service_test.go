package usecase

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trip-provider/internal/domain"
)

type fakeOrderRepo struct {
	mu     sync.Mutex
	byID   map[string]*domain.Order
	byKey  map[string]string
	writes int
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{byID: map[string]*domain.Order{}, byKey: map[string]string{}}
}

func (r *fakeOrderRepo) Create(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o.IdempotencyKey != "" {
		if _, taken := r.byKey[o.IdempotencyKey]; taken {
			return domain.ErrDuplicateIdempotencyKey
		}
		r.byKey[o.IdempotencyKey] = o.ID
	}
	cp := *o
	r.byID[o.ID] = &cp
	r.writes++
	return nil
}

func (r *fakeOrderRepo) Get(_ context.Context, id string) (*domain.Order, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.byID[id]
	if !ok {
		return nil, false, nil
	}
	cp := *o
	return &cp, true, nil
}

func (r *fakeOrderRepo) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Order, bool, error) {
	r.mu.Lock()
	id, ok := r.byKey[key]
	r.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	return r.Get(ctx, id)
}

func (r *fakeOrderRepo) List(_ context.Context, page, pageSize int) ([]domain.Order, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]domain.Order, 0, len(r.byID))
	for _, o := range r.byID {
		all = append(all, *o)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	start := (page - 1) * pageSize
	if start >= len(all) {
		return nil, len(all), nil
	}
	end := min(start+pageSize, len(all))
	return all[start:end], len(all), nil
}

func (r *fakeOrderRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

// racingRepo reports no order on the first lookup, as if a concurrent writer
// inserted between the lookup and the insert.
type racingRepo struct {
	*fakeOrderRepo
	missed bool
}

func (r *racingRepo) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Order, bool, error) {
	if !r.missed {
		r.missed = true
		return nil, false, nil
	}
	return r.fakeOrderRepo.FindByIdempotencyKey(ctx, key)
}

type failingRepo struct{ *fakeOrderRepo }

func (failingRepo) Create(context.Context, *domain.Order) error { return errors.New("disk full") }

func singlePayload() domain.QuoteTokenPayload {
	return domain.QuoteTokenPayload{
		Kind:     domain.QuoteSingle,
		Currency: "USD",
		Total:    decimal.RequireFromString("120.50"),
		Fees:     decimal.RequireFromString("10"),
		Single: &domain.SingleQuote{
			ProductType: domain.ProductHotel,
			PartySize:   2,
			Params:      `{"city":"Tokyo"}`,
		},
	}
}

func itineraryPayload() domain.QuoteTokenPayload {
	return domain.QuoteTokenPayload{
		Kind:     domain.QuoteItinerary,
		Currency: "USD",
		Total:    decimal.RequireFromString("300"),
		Fees:     decimal.RequireFromString("20"),
		Itinerary: &domain.ItineraryPayload{
			ItineraryID: "trip-9",
			Items: []domain.ItineraryItemPayload{
				{Reference: "flight-1", ProductType: domain.ProductTransport, Total: decimal.NewFromInt(200), Fees: decimal.NewFromInt(15)},
				{Reference: "hotel-1", ProductType: domain.ProductHotel, Total: decimal.NewFromInt(100), Fees: decimal.NewFromInt(5)},
			},
		},
	}
}

var (
	voucherPattern = regexp.MustCompile(`^VC-[0-9A-F]{10}$`)
	invoicePattern = regexp.MustCompile(`^INV-\d{8}-[0-9A-F]{8}$`)
)

func TestConfirmOrder_CreatesConfirmedOrder(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := &OrderService{Repo: repo}
	p := singlePayload()

	o, err := svc.ConfirmOrder(context.Background(), p, "raw.token.value", "key-1", "pay_abc", p.Total, p.Fees, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderConfirmed, o.Status)
	assert.Equal(t, domain.ProductHotel, o.ProductType)
	assert.Regexp(t, voucherPattern, o.VoucherCode)
	assert.Regexp(t, invoicePattern, o.InvoiceID)
	assert.Equal(t, "pay_abc", o.PaymentID)
	assert.Equal(t, "key-1", o.IdempotencyKey)
	assert.Len(t, o.QuoteTokenHash, 64)
	assert.NotContains(t, o.QuoteTokenHash, "raw")
	assert.Contains(t, o.PayloadSnapshot, `"city\":\"Tokyo\"`)
	assert.Equal(t, "120.5", o.Total.String())
	assert.Empty(t, o.SelectedRefs)
	assert.Equal(t, 1, repo.count())
}

func TestConfirmOrder_Itinerary(t *testing.T) {
	svc := &OrderService{Repo: newFakeOrderRepo()}
	p := itineraryPayload()

	o, err := svc.ConfirmOrder(context.Background(), p, "tok", "", "pay_1", decimal.NewFromInt(200), decimal.NewFromInt(15), []string{"flight-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.ProductItinerary, o.ProductType)
	assert.Equal(t, "trip-9", o.ItineraryID)
	assert.Equal(t, "flight-1", o.SelectedRefs)
}

func TestConfirmOrder_Idempotent(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := &OrderService{Repo: repo}
	p := itineraryPayload()
	ctx := context.Background()
	refs := []string{"flight-1", "hotel-1"}

	first, err := svc.ConfirmOrder(ctx, p, "tok-a", "key-7", "pay_1", p.Total, p.Fees, refs)
	require.NoError(t, err)
	second, err := svc.ConfirmOrder(ctx, p, "tok-a", "key-7", "pay_1", p.Total, p.Fees, refs)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.VoucherCode, second.VoucherCode)
	assert.Equal(t, first.InvoiceID, second.InvoiceID)
	assert.Equal(t, 1, repo.count())

	_, err = svc.ConfirmOrder(ctx, p, "tok-b", "key-7", "pay_1", p.Total, p.Fees, refs)
	assert.ErrorIs(t, err, domain.ErrIdempotencyConflict)

	_, err = svc.ConfirmOrder(ctx, p, "tok-a", "key-7", "pay_1", p.Total, p.Fees, []string{"flight-1"})
	assert.ErrorIs(t, err, domain.ErrIdempotencyConflict)
	assert.Equal(t, 1, repo.count())
}

func TestConfirmOrder_WithoutKeyAlwaysCreates(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := &OrderService{Repo: repo}
	p := singlePayload()

	a, err := svc.ConfirmOrder(context.Background(), p, "tok", "", "pay_1", p.Total, p.Fees, nil)
	require.NoError(t, err)
	b, err := svc.ConfirmOrder(context.Background(), p, "tok", "", "pay_1", p.Total, p.Fees, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.VoucherCode, b.VoucherCode)
	assert.Equal(t, 2, repo.count())
}

func TestConfirmOrder_LosingInsertObservesWinner(t *testing.T) {
	base := newFakeOrderRepo()
	p := singlePayload()
	winner, err := (&OrderService{Repo: base}).ConfirmOrder(context.Background(), p, "tok", "key-r", "pay_1", p.Total, p.Fees, nil)
	require.NoError(t, err)

	svc := &OrderService{Repo: &racingRepo{fakeOrderRepo: base}}
	got, err := svc.ConfirmOrder(context.Background(), p, "tok", "key-r", "pay_1", p.Total, p.Fees, nil)
	require.NoError(t, err)
	assert.Equal(t, winner.ID, got.ID)

	svc = &OrderService{Repo: &racingRepo{fakeOrderRepo: base}}
	_, err = svc.ConfirmOrder(context.Background(), p, "other-tok", "key-r", "pay_1", p.Total, p.Fees, nil)
	assert.ErrorIs(t, err, domain.ErrIdempotencyConflict)
	assert.Equal(t, 1, base.count())
}

func TestConfirmOrder_ConcurrentSameKey(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := &OrderService{Repo: repo}
	p := singlePayload()

	const n = 16
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, err := svc.ConfirmOrder(context.Background(), p, "tok", "key-c", "pay_1", p.Total, p.Fees, nil)
			if err == nil {
				ids[i] = o.ID
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, repo.count())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.NotEmpty(t, ids[0])
}

func TestConfirmOrder_StoreFailure(t *testing.T) {
	svc := &OrderService{Repo: &failingRepo{fakeOrderRepo: newFakeOrderRepo()}}
	p := singlePayload()
	_, err := svc.ConfirmOrder(context.Background(), p, "tok", "k", "pay_1", p.Total, p.Fees, nil)
	require.Error(t, err)
	assert.Empty(t, domain.KindOf(err))
}

func TestReplay(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := &OrderService{Repo: repo}
	p := singlePayload()
	ctx := context.Background()

	_, found, err := svc.Replay(ctx, "", "tok", nil)
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = svc.Replay(ctx, "key-x", "tok", nil)
	require.NoError(t, err)
	assert.False(t, found)

	created, err := svc.ConfirmOrder(ctx, p, "tok", "key-x", "pay_1", p.Total, p.Fees, nil)
	require.NoError(t, err)

	o, found, err := svc.Replay(ctx, "key-x", "tok", nil)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, created.ID, o.ID)

	_, _, err = svc.Replay(ctx, "key-x", "other", nil)
	assert.ErrorIs(t, err, domain.ErrIdempotencyConflict)
}

func TestGetOrder(t *testing.T) {
	svc := &OrderService{Repo: newFakeOrderRepo()}
	p := singlePayload()
	created, err := svc.ConfirmOrder(context.Background(), p, "tok", "", "pay_1", p.Total, p.Fees, nil)
	require.NoError(t, err)

	got, err := svc.GetOrder(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.VoucherCode, got.VoucherCode)

	_, err = svc.GetOrder(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListOrders(t *testing.T) {
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	svc := &OrderService{Repo: newFakeOrderRepo(), Now: func() time.Time { return now }}
	p := singlePayload()
	var ids []string
	for i := 0; i < 3; i++ {
		now = now.Add(time.Minute)
		o, err := svc.ConfirmOrder(context.Background(), p, "tok", "", "pay_1", p.Total, p.Fees, nil)
		require.NoError(t, err)
		ids = append(ids, o.ID)
	}

	orders, total, err := svc.ListOrders(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, orders, 2)
	assert.Equal(t, ids[2], orders[0].ID)
	assert.Equal(t, ids[1], orders[1].ID)

	_, _, err = svc.ListOrders(context.Background(), -1, 10)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
